package selector

import (
	"math"
	"time"

	"murajaa/internal/grammar"
	"murajaa/internal/types"
)

// Per-mode recency gates keyed by the last comprehension signal in that mode.
// A sentence the learner just failed to parse comes back quickly; one they
// understood waits a week.
var recencyGates = map[types.Comprehension]time.Duration{
	types.CompUnderstood:      7 * 24 * time.Hour,
	types.CompPartial:         2 * 24 * time.Hour,
	types.CompGrammarConfused: 24 * time.Hour,
	types.CompNoIdea:          4 * time.Hour,
}

const defaultRecencyGate = 7 * 24 * time.Hour

// recencyGated reports whether a sentence was shown too recently in the
// given mode to be a candidate.
func recencyGated(s *types.Sentence, mode types.ReviewMode, now time.Time) bool {
	last := s.LastShownIn(mode)
	if last == nil {
		return false
	}
	gate, ok := recencyGates[s.LastCompIn(mode)]
	if !ok {
		gate = defaultRecencyGate
	}
	return now.Sub(*last) < gate
}

// candidate is one active sentence under consideration, with its word roles
// resolved against the due set.
type candidate struct {
	sentence *types.Sentence
	words    []types.SentenceWord

	dueCovered []types.LemmaID // due lemmas this sentence contains
	scaffolds  []types.LemmaID // non-due content lemmas
}

// score computes the full sentence score against a (possibly reduced) due
// set. The greedy cover calls this repeatedly with the shrinking remainder.
func (c *candidate) score(remaining map[types.LemmaID]bool, know map[types.LemmaID]*types.Knowledge,
	exposures map[string]*types.GrammarExposure, now time.Time) (float64, int) {

	covered := 0
	weakest := math.MaxFloat64
	for _, id := range c.dueCovered {
		if !remaining[id] {
			continue
		}
		covered++
		if s := stabilityOf(know[id]); s < weakest {
			weakest = s
		}
	}
	if covered == 0 {
		return 0, 0
	}

	coverage := math.Pow(float64(covered), 1.5)
	dmq := difficultyMatch(weakest, c.scaffolds, know)
	fit := grammarFit(c.sentence.GrammarFeatures, exposures, now)
	diversity := 1 / float64(1+c.sentence.TimesShown)
	fresh := scaffoldFreshness(c.scaffolds, know)

	return coverage * dmq * fit * diversity * fresh, covered
}

// difficultyMatch penalizes pairing a fragile due word with fragile
// scaffolding, and mildly penalizes scaffolds weaker than the word under
// review.
func difficultyMatch(weakest float64, scaffolds []types.LemmaID, know map[types.LemmaID]*types.Knowledge) float64 {
	var sum float64
	n := 0
	anyFragile := false
	for _, id := range scaffolds {
		s := stabilityOf(know[id])
		sum += s
		n++
		if s < 0.5 {
			anyFragile = true
		}
	}
	if weakest < 0.5 && anyFragile {
		return 0.3
	}
	if weakest < 3.0 && n > 0 && sum/float64(n) < weakest {
		return 0.5
	}
	return 1.0
}

// grammarFit averages the per-feature multipliers of the sentence's tags.
func grammarFit(features []string, exposures map[string]*types.GrammarExposure, now time.Time) float64 {
	if len(features) == 0 {
		return 1.0
	}
	var sum float64
	for _, f := range features {
		sum += grammar.Multiplier(exposures[f], now)
	}
	return sum / float64(len(features))
}

// scaffoldFreshness is the geometric mean of per-scaffold novelty, floored
// so a sentence full of over-exposed words still stays in play.
func scaffoldFreshness(scaffolds []types.LemmaID, know map[types.LemmaID]*types.Knowledge) float64 {
	if len(scaffolds) == 0 {
		return 1.0
	}
	logSum := 0.0
	for _, id := range scaffolds {
		seen := 1
		if k := know[id]; k != nil && k.TimesSeen > 0 {
			seen = k.TimesSeen
		}
		logSum += math.Log(math.Min(1, 8/float64(seen)))
	}
	return math.Max(0.3, math.Exp(logSum/float64(len(scaffolds))))
}

func stabilityOf(k *types.Knowledge) float64 {
	if k == nil || k.Card == nil {
		return 0
	}
	return k.Card.Stability
}
