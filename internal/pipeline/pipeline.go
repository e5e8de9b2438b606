// Package pipeline keeps the active sentence pool stocked. A run retires
// stale material when the pool is over its cap, finds lemmas short on
// sentences, and asks the LLM for new exemplars that pass the deterministic
// validator before anything is persisted.
package pipeline

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"murajaa/internal/arabic"
	"murajaa/internal/llm"
	"murajaa/internal/store"
	"murajaa/internal/types"
)

// Config carries the pipeline knobs. Zero values are replaced by defaults.
type Config struct {
	// MinSentences is the active-sentence floor per target lemma.
	MinSentences int
	// MinActive is the floor rotation must not cut into.
	MinActive int
	// PipelineCap bounds the total active pool; rotation runs above it.
	PipelineCap int
	// MinShown is how often a sentence must have been shown before it can
	// be considered stale.
	MinShown int
	// CandidatesPerRequest is how many sentences one LLM call asks for.
	CandidatesPerRequest int
	// MaxRetries bounds the generate-validate feedback loop per group.
	MaxRetries int
	// Workers bounds concurrent generation groups.
	Workers int
	// IntroWarmCount is how many not-yet-introduced words get sentences
	// prepared ahead of their introduction.
	IntroWarmCount int
}

// DefaultConfig returns the standing pipeline parameters.
func DefaultConfig() Config {
	return Config{
		MinSentences:         2,
		MinActive:            2,
		PipelineCap:          300,
		MinShown:             3,
		CandidatesPerRequest: 4,
		MaxRetries:           3,
		Workers:              2,
		IntroWarmCount:       4,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MinSentences <= 0 {
		c.MinSentences = d.MinSentences
	}
	if c.MinActive <= 0 {
		c.MinActive = d.MinActive
	}
	if c.PipelineCap <= 0 {
		c.PipelineCap = d.PipelineCap
	}
	if c.MinShown <= 0 {
		c.MinShown = d.MinShown
	}
	if c.CandidatesPerRequest <= 0 {
		c.CandidatesPerRequest = d.CandidatesPerRequest
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = d.MaxRetries
	}
	if c.Workers <= 0 {
		c.Workers = d.Workers
	}
	if c.IntroWarmCount <= 0 {
		c.IntroWarmCount = d.IntroWarmCount
	}
	return c
}

// IntroSource supplies the next words the learner is about to meet, so
// their sentences exist before the introduction happens.
type IntroSource interface {
	NextIntroLemmas(ctx context.Context, max int, now time.Time) ([]*types.Lemma, error)
}

// RunStats summarizes one pipeline pass.
type RunStats struct {
	ActiveBefore int
	Retired      int
	GapLemmas    int
	Groups       int
	Accepted     int
	Rejected     int
}

// Pipeline generates, validates, and rotates sentence material.
type Pipeline struct {
	store  *store.Store
	llm    llm.Client
	intros IntroSource
	fw     *arabic.FunctionWords
	config Config
	log    *zap.Logger
	now    func() time.Time
}

// New builds a pipeline. intros may be nil when intro warming is not wanted.
func New(s *store.Store, client llm.Client, intros IntroSource, config Config, log *zap.Logger) *Pipeline {
	return &Pipeline{
		store:  s,
		llm:    client,
		intros: intros,
		fw:     arabic.DefaultFunctionWords(),
		config: config.withDefaults(),
		log:    log,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Run executes one full pass: rotation if over cap, gap detection, grouped
// generation. Generation groups run concurrently; each accepted sentence
// commits in its own transaction.
func (p *Pipeline) Run(ctx context.Context) (RunStats, error) {
	now := p.now()
	var stats RunStats

	active, err := p.store.ActiveSentenceCount(ctx)
	if err != nil {
		return stats, err
	}
	stats.ActiveBefore = active

	if active > p.config.PipelineCap {
		retired, err := p.rotateStale(ctx, now)
		if err != nil {
			return stats, err
		}
		stats.Retired = retired
	}

	gaps, err := p.gapLemmas(ctx, now)
	if err != nil {
		return stats, err
	}
	stats.GapLemmas = len(gaps)
	if len(gaps) == 0 {
		p.log.Debug("pipeline pass found no gaps", zap.Int("active", active))
		return stats, nil
	}

	manifest, err := p.buildManifest(ctx)
	if err != nil {
		return stats, err
	}

	groups := groupLemmas(gaps)
	stats.Groups = len(groups)

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.config.Workers)
	for _, group := range groups {
		group := group
		g.Go(func() error {
			accepted, rejected, err := p.generateForGroup(gctx, group, manifest, now)
			mu.Lock()
			stats.Accepted += accepted
			stats.Rejected += rejected
			mu.Unlock()
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return stats, err
	}

	p.log.Info("pipeline pass complete",
		zap.Int("active_before", stats.ActiveBefore),
		zap.Int("retired", stats.Retired),
		zap.Int("gap_lemmas", stats.GapLemmas),
		zap.Int("accepted", stats.Accepted),
		zap.Int("rejected", stats.Rejected))
	return stats, nil
}

// gap carries one lemma that needs more active sentences.
type gap struct {
	lemma  *types.Lemma
	needed int
}

// gapLemmas returns the focus cohort plus upcoming intro words whose active
// sentence count is below the floor.
func (p *Pipeline) gapLemmas(ctx context.Context, now time.Time) ([]gap, error) {
	counts, err := p.store.ActiveCountByTarget(ctx)
	if err != nil {
		return nil, err
	}

	cohort, err := p.store.KnowledgeInStates(ctx,
		types.StateAcquiring, types.StateLearning, types.StateKnown, types.StateLapsed)
	if err != nil {
		return nil, err
	}

	seen := make(map[types.LemmaID]bool)
	var gaps []gap
	add := func(l *types.Lemma) {
		if l == nil || seen[l.ID] || l.IsVariant() {
			return
		}
		seen[l.ID] = true
		if needed := p.config.MinSentences - counts[l.ID]; needed > 0 {
			gaps = append(gaps, gap{lemma: l, needed: needed})
		}
	}

	for _, k := range cohort {
		l, err := p.store.GetLemma(ctx, k.LemmaID)
		if err != nil {
			return nil, err
		}
		add(l)
	}

	if p.intros != nil {
		upcoming, err := p.intros.NextIntroLemmas(ctx, p.config.IntroWarmCount, now)
		if err != nil {
			return nil, err
		}
		for _, l := range upcoming {
			add(l)
		}
	}

	sort.Slice(gaps, func(i, j int) bool {
		if gaps[i].needed != gaps[j].needed {
			return gaps[i].needed > gaps[j].needed
		}
		return gaps[i].lemma.ID < gaps[j].lemma.ID
	})
	return gaps, nil
}

const maxGroupSize = 3

// groupLemmas batches gaps for multi-target generation. Lemmas sharing a
// part of speech combine well in one sentence set; groups hold at most
// three targets, and anything left over runs single-target.
func groupLemmas(gaps []gap) [][]gap {
	byPOS := make(map[types.PartOfSpeech][]gap)
	var order []types.PartOfSpeech
	for _, g := range gaps {
		if _, ok := byPOS[g.lemma.POS]; !ok {
			order = append(order, g.lemma.POS)
		}
		byPOS[g.lemma.POS] = append(byPOS[g.lemma.POS], g)
	}

	var groups [][]gap
	for _, pos := range order {
		run := byPOS[pos]
		for len(run) > 0 {
			n := maxGroupSize
			if len(run) < n {
				n = len(run)
			}
			groups = append(groups, run[:n])
			run = run[n:]
		}
	}
	return groups
}
