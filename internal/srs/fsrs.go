// Package srs implements the two scheduling phases of the engine as pure
// state transitions: the FSRS-style spaced-repetition scheduler used after
// graduation, and the 3-box Leitner acquisition phase that precedes it.
// Persistence is the caller's concern; every function here maps an input
// state plus a rating to a new state.
package srs

import (
	"math"
	"time"

	"murajaa/internal/types"
)

// Default FSRS weights (v4.5 published defaults). The scheduler is
// deterministic: no interval fuzzing is applied.
var defaultWeights = [17]float64{
	0.4872, 1.4003, 3.7145, 13.8206,
	5.1618, 1.2298, 0.8975, 0.031,
	1.6474, 0.1367, 1.0461, 2.1072,
	0.0793, 0.3246, 1.587, 0.2272, 2.8755,
}

const (
	// decay and factor define the forgetting curve R(t) = (1 + factor*t/S)^decay.
	fsrsDecay  = -0.5
	fsrsFactor = 19.0 / 81.0

	minDifficulty = 1.0
	maxDifficulty = 10.0
	minStability  = 0.01

	maxIntervalDays = 365
)

// Params configures the scheduler.
type Params struct {
	// TargetRetention is the desired recall probability at review time.
	TargetRetention float64
	// KnownStabilityDays is the stability at which a learning card is
	// promoted to known.
	KnownStabilityDays float64
	Weights            [17]float64
}

// DefaultParams returns the engine defaults: 0.9 retention, promotion to
// known at three weeks of stability.
func DefaultParams() Params {
	return Params{
		TargetRetention:    0.9,
		KnownStabilityDays: 21,
		Weights:            defaultWeights,
	}
}

// Retrievability returns the predicted recall probability for a card after
// elapsed time.
func Retrievability(c *types.Card, now time.Time) float64 {
	if c == nil || c.LastReview == nil {
		return 0
	}
	days := now.Sub(*c.LastReview).Hours() / 24
	if days < 0 {
		days = 0
	}
	return math.Pow(1+fsrsFactor*days/math.Max(c.Stability, minStability), fsrsDecay)
}

// intervalDays converts stability to a next-review interval honoring the
// target retention. At retention 0.9 the interval equals the stability.
func (p Params) intervalDays(stability float64) float64 {
	ivl := stability / fsrsFactor * (math.Pow(p.TargetRetention, 1/fsrsDecay) - 1)
	return math.Min(math.Max(ivl, 1), maxIntervalDays)
}

func (p Params) initStability(r types.Rating) float64 {
	return math.Max(p.Weights[r-1], minStability)
}

func (p Params) initDifficulty(r types.Rating) float64 {
	d := p.Weights[4] - float64(int(r)-3)*p.Weights[5]
	return clampDifficulty(d)
}

func (p Params) nextDifficulty(d float64, r types.Rating) float64 {
	next := d - p.Weights[6]*float64(int(r)-3)
	// Mean reversion toward the initial Easy difficulty keeps D bounded
	// over long review histories.
	next = p.Weights[7]*p.initDifficulty(types.RatingEasy) + (1-p.Weights[7])*next
	return clampDifficulty(next)
}

func (p Params) stabilityAfterRecall(d, s, retr float64, r types.Rating) float64 {
	hard := 1.0
	if r == types.RatingHard {
		hard = p.Weights[15]
	}
	easy := 1.0
	if r == types.RatingEasy {
		easy = p.Weights[16]
	}
	grow := math.Exp(p.Weights[8]) *
		(11 - d) *
		math.Pow(s, -p.Weights[9]) *
		(math.Exp(p.Weights[10]*(1-retr)) - 1) *
		hard * easy
	return s * (1 + grow)
}

func (p Params) stabilityAfterForget(d, s, retr float64) float64 {
	next := p.Weights[11] *
		math.Pow(d, -p.Weights[12]) *
		(math.Pow(s+1, p.Weights[13]) - 1) *
		math.Exp(p.Weights[14]*(1-retr))
	// A lapse never increases stability.
	return math.Max(math.Min(next, s), minStability)
}

func clampDifficulty(d float64) float64 {
	return math.Min(math.Max(d, minDifficulty), maxDifficulty)
}

// NewCard creates a card from a first review at now. Graduation from the
// acquisition phase seeds the card with one synthetic Good review.
func (p Params) NewCard(r types.Rating, now time.Time) *types.Card {
	lr := now
	c := &types.Card{
		State:      types.CardReview,
		Stability:  p.initStability(r),
		Difficulty: p.initDifficulty(r),
		LastReview: &lr,
		Reps:       1,
	}
	if r == types.RatingAgain {
		c.State = types.CardLearning
		c.Lapses = 1
		c.Due = now.Add(10 * time.Minute)
		return c
	}
	c.Due = now.Add(time.Duration(p.intervalDays(c.Stability) * 24 * float64(time.Hour)))
	return c
}

// Review applies one rating to a card at now and returns the successor card.
// The input card is not mutated.
func (p Params) Review(c *types.Card, r types.Rating, now time.Time) *types.Card {
	if c == nil {
		return p.NewCard(r, now)
	}
	next := c.Clone()
	retr := Retrievability(c, now)
	next.Reps++

	if r == types.RatingAgain {
		next.Lapses++
		next.Difficulty = p.nextDifficulty(c.Difficulty, r)
		next.Stability = p.stabilityAfterForget(c.Difficulty, c.Stability, retr)
		next.State = types.CardRelearning
		next.Due = now.Add(10 * time.Minute)
	} else {
		next.Difficulty = p.nextDifficulty(c.Difficulty, r)
		next.Stability = p.stabilityAfterRecall(c.Difficulty, c.Stability, retr, r)
		next.State = types.CardReview
		next.Due = now.Add(time.Duration(p.intervalDays(next.Stability) * 24 * float64(time.Hour)))
	}
	lr := now
	next.LastReview = &lr
	return next
}
