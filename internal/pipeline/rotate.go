package pipeline

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"

	"murajaa/internal/types"
)

// rotateStale retires worn-out sentences to make room under the cap. A
// sentence is stale when it has been shown at least MinShown times, every
// mapped scaffold is fully known, and no scaffold is still acquiring.
// Candidates are retired least-diverse first, and never below MinActive
// active sentences for their target. Rotation stops once the pool is back
// under the cap.
func (p *Pipeline) rotateStale(ctx context.Context, now time.Time) (int, error) {
	sentences, err := p.store.AllActiveSentences(ctx)
	if err != nil {
		return 0, err
	}
	counts, err := p.store.ActiveCountByTarget(ctx)
	if err != nil {
		return 0, err
	}
	all, err := p.store.AllKnowledge(ctx)
	if err != nil {
		return 0, err
	}
	know := make(map[types.LemmaID]*types.Knowledge, len(all))
	for _, k := range all {
		know[k.LemmaID] = k
	}

	var stale []*types.Sentence
	for _, s := range sentences {
		ok, err := p.isStale(ctx, s, know)
		if err != nil {
			return 0, err
		}
		if ok {
			stale = append(stale, s)
		}
	}

	// Ascending diversity: the most-shown sentences go first.
	sort.Slice(stale, func(i, j int) bool {
		di := 1 / float64(1+stale[i].TimesShown)
		dj := 1 / float64(1+stale[j].TimesShown)
		if di != dj {
			return di < dj
		}
		return stale[i].ID < stale[j].ID
	})

	active := len(sentences)
	retired := 0
	for _, s := range stale {
		if active <= p.config.PipelineCap {
			break
		}
		if s.TargetLemmaID != nil && counts[*s.TargetLemmaID]-1 < p.config.MinActive {
			continue
		}
		if err := p.store.RetireSentence(ctx, s.ID); err != nil {
			return retired, err
		}
		if err := p.store.AppendEvent(ctx, "sentence_retired", map[string]any{
			"sentence_id": int64(s.ID),
			"times_shown": s.TimesShown,
		}, now); err != nil {
			return retired, err
		}
		if s.TargetLemmaID != nil {
			counts[*s.TargetLemmaID]--
		}
		active--
		retired++
	}

	p.log.Info("stale rotation complete",
		zap.Int("stale_candidates", len(stale)),
		zap.Int("retired", retired),
		zap.Int("active_after", active))
	return retired, nil
}

// isStale applies the staleness test to one sentence. Scaffolds are the
// mapped non-target words; unmapped words (function words) do not count.
func (p *Pipeline) isStale(ctx context.Context, s *types.Sentence, know map[types.LemmaID]*types.Knowledge) (bool, error) {
	if s.TimesShown < p.config.MinShown {
		return false, nil
	}
	words, err := p.store.SentenceWords(ctx, s.ID)
	if err != nil {
		return false, err
	}
	for _, w := range words {
		if w.LemmaID == nil || w.IsTarget {
			continue
		}
		k := know[*w.LemmaID]
		if k == nil || k.State != types.StateKnown {
			return false, nil
		}
	}
	return true, nil
}
