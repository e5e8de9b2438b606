package selector

import (
	"context"
	"math"
	"sort"
	"time"

	"murajaa/internal/grammar"
	"murajaa/internal/types"
)

const (
	// Root familiarity drops to this when every sibling is already known:
	// there is no scaffolding value left in the family.
	rootExhaustedScore = 0.1

	// A sibling introduced this recently pushes the family back in the
	// queue so the learner is not juggling two near-identical stems.
	siblingIntroCooldown = 48 * time.Hour
	siblingRecentPenalty = 0.5
)

type introPick struct {
	lemma *types.Lemma
	score float64
}

// NextIntroLemmas returns the best next words to introduce, for callers
// outside session assembly (the material pipeline warms sentences for them
// before they are introduced).
func (sel *Selector) NextIntroLemmas(ctx context.Context, max int, now time.Time) ([]*types.Lemma, error) {
	know, err := sel.knowledgeMap(ctx)
	if err != nil {
		return nil, err
	}
	exposures, err := sel.exposureMap(ctx)
	if err != nil {
		return nil, err
	}
	picks, err := sel.pickIntroWords(ctx, know, exposures, max, now)
	if err != nil {
		return nil, err
	}
	out := make([]*types.Lemma, len(picks))
	for i, p := range picks {
		out[i] = p.lemma
	}
	return out, nil
}

// pickIntroWords scores every unlearned, non-variant lemma and returns the
// top max candidates. The score combines corpus frequency, root familiarity,
// grammar readiness, and sibling introduction recency.
func (sel *Selector) pickIntroWords(ctx context.Context, know map[types.LemmaID]*types.Knowledge,
	exposures map[string]*types.GrammarExposure, max int, now time.Time) ([]introPick, error) {

	lemmas, err := sel.store.AllLemmas(ctx)
	if err != nil {
		return nil, err
	}
	byID := make(map[types.LemmaID]*types.Lemma, len(lemmas))
	for _, l := range lemmas {
		byID[l.ID] = l
	}

	readiness := grammarReadiness(exposures, now)

	var picks []introPick
	for _, l := range lemmas {
		if l.IsVariant() || !introEligible(know[l.ID]) {
			continue
		}
		score := frequencyScore(l.FrequencyRank) *
			sel.rootFamiliarity(ctx, l, know, now) *
			readiness
		if score > 0 {
			picks = append(picks, introPick{lemma: l, score: score})
		}
	}
	sort.Slice(picks, func(i, j int) bool {
		if picks[i].score != picks[j].score {
			return picks[i].score > picks[j].score
		}
		return picks[i].lemma.ID < picks[j].lemma.ID
	})
	if len(picks) > max {
		picks = picks[:max]
	}
	return picks, nil
}

// introEligible: only words not yet under study can be introduced.
func introEligible(k *types.Knowledge) bool {
	return k == nil || k.State == types.StateNew || k.State == types.StateEncountered
}

// frequencyScore maps a corpus rank to (0, 1]; unranked words sit mid-field.
func frequencyScore(rank *int) float64 {
	if rank == nil {
		return 0.4
	}
	return 1 / (1 + float64(*rank)/500)
}

// rootFamiliarity rises with the share of root siblings already under study
// or known, collapses once the whole family is known, and is penalized when
// a sibling was introduced very recently.
func (sel *Selector) rootFamiliarity(ctx context.Context, l *types.Lemma,
	know map[types.LemmaID]*types.Knowledge, now time.Time) float64 {
	if l.RootID == nil {
		return 0.5
	}
	sibs, err := sel.store.LemmasByRoot(ctx, *l.RootID)
	if err != nil || len(sibs) <= 1 {
		return 0.5
	}

	others, familiar, allKnown := 0, 0, true
	recentIntro := false
	for _, s := range sibs {
		if s.ID == l.ID {
			continue
		}
		others++
		k := know[s.ID]
		if k == nil {
			allKnown = false
			continue
		}
		switch k.State {
		case types.StateKnown:
			familiar++
		case types.StateAcquiring, types.StateLearning, types.StateLapsed:
			familiar++
			allKnown = false
		default:
			allKnown = false
		}
		if k.IntroducedAt != nil && now.Sub(*k.IntroducedAt) < siblingIntroCooldown {
			recentIntro = true
		}
	}
	if others == 0 {
		return 0.5
	}
	if allKnown && familiar == others {
		return rootExhaustedScore
	}
	score := 0.5 + 0.5*float64(familiar)/float64(others)
	if recentIntro {
		score *= siblingRecentPenalty
	}
	return score
}

// grammarReadiness is the learner's average comfort over introduced
// features, clamped so a fresh account is not locked out of new words.
func grammarReadiness(exposures map[string]*types.GrammarExposure, now time.Time) float64 {
	var sum float64
	n := 0
	for _, g := range exposures {
		if g.IntroducedAt == nil {
			continue
		}
		sum += grammar.ComfortOf(g, now)
		n++
	}
	if n == 0 {
		return 0.75
	}
	return math.Max(0.5, math.Min(1, 0.5+sum/float64(n)))
}
