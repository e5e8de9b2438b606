// Package selector assembles review sessions: a greedy weighted set cover of
// due vocabulary over the active sentence inventory, with difficulty
// matching, grammar fit, diversity, and freshness folded into the score.
package selector

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"murajaa/internal/grammar"
	"murajaa/internal/store"
	"murajaa/internal/types"
)

const (
	// DefaultLimit is the session size when the caller does not specify one.
	DefaultLimit = 10

	maxReintroCards = 3
	maxIntro        = 2

	// Intro candidates are only suggested into sessions long enough to
	// absorb them, and only while recent accuracy holds up.
	introMinSessionLen   = 5
	introMinAccuracy     = 0.70
	introAccuracyWindow  = 20
	introSlotFirst       = 4
	introSlotSecond      = 8
	strugglingMinSeen    = 3
	listeningReadyRating = types.RatingGood
)

// ItemKind distinguishes sentence-backed items from bare word fallbacks.
type ItemKind string

const (
	ItemSentence ItemKind = "sentence"
	ItemWord     ItemKind = "word"
)

// SessionItem is one unit of the assembled session.
type SessionItem struct {
	Kind     ItemKind
	Sentence *types.Sentence
	Words    []types.SentenceWord
	Lemma    *types.Lemma // set for word-only items

	DueLemmaIDs    []types.LemmaID
	PrimaryLemmaID types.LemmaID
	Score          float64
}

// IntroCandidate is a suggested new word with its slot in the session.
type IntroCandidate struct {
	Lemma    *types.Lemma
	Position int
	Score    float64
}

// ReintroCard is a rich re-introduction card for a struggling word.
type ReintroCard struct {
	Lemma     *types.Lemma
	Root      *types.Root
	Siblings  []*types.Lemma
	Forms     map[string]string
	Example   *types.Sentence
	TimesSeen int
}

// Session is the full payload of one next-sentences request.
type Session struct {
	SessionID string
	Mode      types.ReviewMode
	Items     []SessionItem

	TotalDueWords   int
	CoveredDueWords int

	IntroCandidates        []IntroCandidate
	ReintroCards           []ReintroCard
	GrammarIntroNeeded     []string
	GrammarRefresherNeeded []string
}

// Selector builds sessions from the knowledge store.
type Selector struct {
	store *store.Store
	log   *zap.Logger
}

func New(st *store.Store, log *zap.Logger) *Selector {
	return &Selector{store: st, log: log}
}

// BuildSession assembles up to limit items for the given mode.
func (sel *Selector) BuildSession(ctx context.Context, limit int, mode types.ReviewMode, now time.Time) (*Session, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	sessionID := uuid.NewString()
	session := &Session{SessionID: sessionID, Mode: mode}

	know, err := sel.knowledgeMap(ctx)
	if err != nil {
		return nil, err
	}

	// Step 1: due SRS lemmas, with the struggling set carved out for
	// re-introduction cards.
	due := make(map[types.LemmaID]bool)
	var struggling []*types.Knowledge
	for _, k := range know {
		if k.State == types.StateSuspended || k.Card == nil {
			continue
		}
		if k.Card.Due.After(now) {
			continue
		}
		if k.TimesSeen >= strugglingMinSeen && k.TimesCorrect == 0 {
			struggling = append(struggling, k)
			continue
		}
		due[k.LemmaID] = true
	}
	session.TotalDueWords = len(due)

	exposures, err := sel.exposureMap(ctx)
	if err != nil {
		return nil, err
	}

	// Steps 2-3: fetch and score candidates.
	candidates, err := sel.fetchCandidates(ctx, due, know, mode, now)
	if err != nil {
		return nil, err
	}

	// Step 4: greedy marginal cover.
	selected, covered := sel.greedyCover(ctx, candidates, due, know, exposures, limit, now, sessionID)
	session.CoveredDueWords = len(covered)

	// Step 5: easy-hard-easy pacing.
	orderForFlow(selected, know)

	// Step 6: heal unmapped tokens in selected sentences.
	for i := range selected {
		sel.backfillWords(ctx, &selected[i])
	}
	session.Items = selected

	// Step 7: word-only fallbacks for uncovered due lemmas.
	if err := sel.appendWordItems(ctx, session, due, covered, limit); err != nil {
		return nil, err
	}

	// Step 8: intro candidates when the session can absorb them.
	if err := sel.appendIntroCandidates(ctx, session, know, exposures, now); err != nil {
		return nil, err
	}

	// Step 9: struggling re-introduction cards.
	if err := sel.appendReintroCards(ctx, session, struggling); err != nil {
		return nil, err
	}

	// Step 10: grammar prompt lists.
	sel.grammarPrompts(session, exposures)

	if err := sel.store.AppendEvent(ctx, "session_start", map[string]any{
		"session_id": sessionID,
		"mode":       string(mode),
		"items":      len(session.Items),
		"due":        session.TotalDueWords,
		"covered":    session.CoveredDueWords,
	}, now); err != nil {
		sel.log.Warn("record session start", zap.Error(err))
	}
	return session, nil
}

func (sel *Selector) knowledgeMap(ctx context.Context) (map[types.LemmaID]*types.Knowledge, error) {
	rows, err := sel.store.AllKnowledge(ctx)
	if err != nil {
		return nil, fmt.Errorf("load knowledge: %w", err)
	}
	m := make(map[types.LemmaID]*types.Knowledge, len(rows))
	for _, k := range rows {
		m[k.LemmaID] = k
	}
	return m, nil
}

func (sel *Selector) exposureMap(ctx context.Context) (map[string]*types.GrammarExposure, error) {
	rows, err := sel.store.AllGrammarExposure(ctx)
	if err != nil {
		return nil, fmt.Errorf("load grammar exposure: %w", err)
	}
	m := make(map[string]*types.GrammarExposure, len(rows))
	for _, g := range rows {
		m[g.Feature] = g
	}
	return m, nil
}

// fetchCandidates loads active sentences containing due lemmas, applies the
// per-mode recency gate and the listening-readiness filter, and resolves
// each sentence's word roles.
func (sel *Selector) fetchCandidates(ctx context.Context, due map[types.LemmaID]bool,
	know map[types.LemmaID]*types.Knowledge, mode types.ReviewMode, now time.Time) ([]candidate, error) {

	ids := make([]types.LemmaID, 0, len(due))
	for id := range due {
		ids = append(ids, id)
	}
	sentences, err := sel.store.ActiveSentencesWithLemmas(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("fetch candidates: %w", err)
	}

	var out []candidate
	for _, s := range sentences {
		if recencyGated(s, mode, now) {
			continue
		}
		words, err := sel.store.SentenceWords(ctx, s.ID)
		if err != nil {
			return nil, err
		}
		c := candidate{sentence: s, words: words}
		seen := make(map[types.LemmaID]bool)
		for _, w := range words {
			if w.LemmaID == nil || seen[*w.LemmaID] {
				continue
			}
			seen[*w.LemmaID] = true
			if due[*w.LemmaID] {
				c.dueCovered = append(c.dueCovered, *w.LemmaID)
			} else {
				c.scaffolds = append(c.scaffolds, *w.LemmaID)
			}
		}
		if len(c.dueCovered) == 0 {
			continue
		}
		if mode == types.ModeListening {
			ready, err := sel.scaffoldsListeningReady(ctx, c.scaffolds, know)
			if err != nil {
				return nil, err
			}
			if !ready {
				continue
			}
		}
		out = append(out, c)
	}
	return out, nil
}

// scaffoldsListeningReady requires every scaffold to have at least one
// correct review and a latest rating of Good or better.
func (sel *Selector) scaffoldsListeningReady(ctx context.Context, scaffolds []types.LemmaID,
	know map[types.LemmaID]*types.Knowledge) (bool, error) {
	for _, id := range scaffolds {
		k := know[id]
		if k == nil || k.TimesCorrect == 0 {
			return false, nil
		}
		last, err := sel.store.LastRating(ctx, id)
		if err != nil {
			return false, err
		}
		if last < listeningReadyRating {
			return false, nil
		}
	}
	return true, nil
}

// greedyCover repeatedly picks the candidate with the best marginal score
// against the uncovered remainder.
func (sel *Selector) greedyCover(ctx context.Context, candidates []candidate, due map[types.LemmaID]bool,
	know map[types.LemmaID]*types.Knowledge, exposures map[string]*types.GrammarExposure,
	limit int, now time.Time, sessionID string) ([]SessionItem, map[types.LemmaID]bool) {

	remaining := make(map[types.LemmaID]bool, len(due))
	for id := range due {
		remaining[id] = true
	}
	covered := make(map[types.LemmaID]bool)
	var selected []SessionItem

	for len(remaining) > 0 && len(selected) < limit && len(candidates) > 0 {
		bestIdx, bestScore, bestCovered := -1, 0.0, 0
		for i := range candidates {
			score, n := candidates[i].score(remaining, know, exposures, now)
			if n == 0 {
				continue
			}
			if score > bestScore {
				bestIdx, bestScore, bestCovered = i, score, n
			}
		}
		if bestIdx < 0 {
			break
		}
		c := candidates[bestIdx]
		item := SessionItem{
			Kind:     ItemSentence,
			Sentence: c.sentence,
			Words:    c.words,
			Score:    bestScore,
		}
		for _, id := range c.dueCovered {
			if remaining[id] {
				item.DueLemmaIDs = append(item.DueLemmaIDs, id)
				delete(remaining, id)
				covered[id] = true
			}
		}
		item.PrimaryLemmaID = primaryOf(c, item.DueLemmaIDs)
		selected = append(selected, item)
		candidates = append(candidates[:bestIdx], candidates[bestIdx+1:]...)

		if err := sel.store.AppendEvent(ctx, "sentence_selected", map[string]any{
			"session_id":  sessionID,
			"sentence_id": int64(c.sentence.ID),
			"score":       bestScore,
			"covered":     bestCovered,
		}, now); err != nil {
			sel.log.Warn("record sentence selection", zap.Error(err))
		}
	}
	return selected, covered
}

// primaryOf prefers the sentence's declared target when it is among the
// covered due lemmas, else the first covered lemma.
func primaryOf(c candidate, dueCovered []types.LemmaID) types.LemmaID {
	if c.sentence.TargetLemmaID != nil {
		for _, id := range dueCovered {
			if id == *c.sentence.TargetLemmaID {
				return id
			}
		}
	}
	if len(dueCovered) > 0 {
		return dueCovered[0]
	}
	if c.sentence.TargetLemmaID != nil {
		return *c.sentence.TargetLemmaID
	}
	return 0
}

// orderForFlow arranges items easiest-first, second-easiest last, hardest in
// the middle, where easiness is the minimum stability among an item's due
// lemmas (higher = easier).
func orderForFlow(items []SessionItem, know map[types.LemmaID]*types.Knowledge) {
	if len(items) < 3 {
		return
	}
	minStab := func(it SessionItem) float64 {
		m := -1.0
		for _, id := range it.DueLemmaIDs {
			s := stabilityOf(know[id])
			if m < 0 || s < m {
				m = s
			}
		}
		return m
	}
	sort.SliceStable(items, func(i, j int) bool { return minStab(items[i]) > minStab(items[j]) })
	reordered := make([]SessionItem, 0, len(items))
	reordered = append(reordered, items[0])
	reordered = append(reordered, items[2:]...)
	reordered = append(reordered, items[1])
	copy(items, reordered)
}

// backfillWords resolves any unmapped token and persists the fix.
func (sel *Selector) backfillWords(ctx context.Context, item *SessionItem) {
	for i, w := range item.Words {
		if w.LemmaID != nil {
			continue
		}
		id, found, err := sel.store.LookupLemma(ctx, w.SurfaceForm)
		if err != nil || !found {
			continue
		}
		if err := sel.store.SetSentenceWordLemma(ctx, w.SentenceID, w.Position, id); err != nil {
			sel.log.Warn("backfill sentence word", zap.Error(err),
				zap.Int64("sentence_id", int64(w.SentenceID)), zap.Int("position", w.Position))
			continue
		}
		item.Words[i].LemmaID = &id
	}
}

func (sel *Selector) appendWordItems(ctx context.Context, session *Session,
	due, covered map[types.LemmaID]bool, limit int) error {
	uncovered := make([]types.LemmaID, 0)
	for id := range due {
		if !covered[id] {
			uncovered = append(uncovered, id)
		}
	}
	sort.Slice(uncovered, func(i, j int) bool { return uncovered[i] < uncovered[j] })

	for _, id := range uncovered {
		if len(session.Items) >= limit {
			break
		}
		l, err := sel.store.GetLemma(ctx, id)
		if err != nil {
			return fmt.Errorf("word item lemma: %w", err)
		}
		session.Items = append(session.Items, SessionItem{
			Kind:           ItemWord,
			Lemma:          l,
			DueLemmaIDs:    []types.LemmaID{id},
			PrimaryLemmaID: id,
		})
	}
	return nil
}

func (sel *Selector) appendIntroCandidates(ctx context.Context, session *Session,
	know map[types.LemmaID]*types.Knowledge, exposures map[string]*types.GrammarExposure, now time.Time) error {
	if len(session.Items) < introMinSessionLen {
		return nil
	}
	acc, n, err := sel.store.RecentAccuracy(ctx, introAccuracyWindow)
	if err != nil {
		return err
	}
	if n > 0 && acc < introMinAccuracy {
		return nil
	}
	picks, err := sel.pickIntroWords(ctx, know, exposures, maxIntro, now)
	if err != nil {
		return err
	}
	slots := []int{introSlotFirst, introSlotSecond}
	for i, p := range picks {
		session.IntroCandidates = append(session.IntroCandidates, IntroCandidate{
			Lemma:    p.lemma,
			Position: slots[i],
			Score:    p.score,
		})
	}
	return nil
}

func (sel *Selector) appendReintroCards(ctx context.Context, session *Session, struggling []*types.Knowledge) error {
	sort.Slice(struggling, func(i, j int) bool { return struggling[i].TimesSeen > struggling[j].TimesSeen })
	if len(struggling) > maxReintroCards {
		struggling = struggling[:maxReintroCards]
	}
	for _, k := range struggling {
		card, err := sel.buildReintroCard(ctx, k)
		if err != nil {
			return err
		}
		session.ReintroCards = append(session.ReintroCards, *card)
	}
	return nil
}

func (sel *Selector) buildReintroCard(ctx context.Context, k *types.Knowledge) (*ReintroCard, error) {
	l, err := sel.store.GetLemma(ctx, k.LemmaID)
	if err != nil {
		return nil, fmt.Errorf("reintro lemma: %w", err)
	}
	card := &ReintroCard{Lemma: l, Forms: l.Forms, TimesSeen: k.TimesSeen}

	if l.RootID != nil {
		if root, err := sel.store.GetRoot(ctx, *l.RootID); err == nil {
			card.Root = root
		}
		sibs, err := sel.store.LemmasByRoot(ctx, *l.RootID)
		if err == nil {
			for _, s := range sibs {
				if s.ID != l.ID {
					card.Siblings = append(card.Siblings, s)
				}
			}
		}
	}

	examples, err := sel.store.ActiveSentencesWithLemmas(ctx, []types.LemmaID{l.ID})
	if err == nil && len(examples) > 0 {
		card.Example = examples[0]
	}
	return card, nil
}

// grammarPrompts fills the two feature lists: unintroduced features present
// in the selected sentences, and confused features worth resurfacing.
func (sel *Selector) grammarPrompts(session *Session, exposures map[string]*types.GrammarExposure) {
	introNeeded := make(map[string]bool)
	for _, item := range session.Items {
		if item.Sentence == nil {
			continue
		}
		for _, f := range item.Sentence.GrammarFeatures {
			g := exposures[f]
			if g == nil || g.IntroducedAt == nil {
				introNeeded[f] = true
			}
		}
	}
	for f := range introNeeded {
		session.GrammarIntroNeeded = append(session.GrammarIntroNeeded, f)
	}
	sort.Strings(session.GrammarIntroNeeded)

	for f, g := range exposures {
		if grammar.NeedsRefresher(g) {
			session.GrammarRefresherNeeded = append(session.GrammarRefresherNeeded, f)
		}
	}
	sort.Strings(session.GrammarRefresherNeeded)
}
