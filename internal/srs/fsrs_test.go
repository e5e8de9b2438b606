package srs

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"murajaa/internal/types"
)

func TestNewCardSeedsStability(t *testing.T) {
	p := DefaultParams()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	good := p.NewCard(types.RatingGood, now)
	assert.Equal(t, types.CardReview, good.State)
	assert.InDelta(t, p.Weights[2], good.Stability, 1e-9)
	assert.True(t, good.Due.After(now))

	again := p.NewCard(types.RatingAgain, now)
	assert.Equal(t, types.CardLearning, again.State)
	assert.Equal(t, now.Add(10*time.Minute), again.Due)
	assert.Less(t, again.Stability, good.Stability)
}

func TestReviewIsDeterministic(t *testing.T) {
	p := DefaultParams()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	c := p.NewCard(types.RatingGood, now)

	later := now.Add(4 * 24 * time.Hour)
	a := p.Review(c, types.RatingGood, later)
	b := p.Review(c, types.RatingGood, later)
	assert.Equal(t, a, b, "same inputs must yield the same schedule, no fuzz")
	assert.Equal(t, c.Reps+1, a.Reps)
}

func TestReviewDoesNotMutateInput(t *testing.T) {
	p := DefaultParams()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	c := p.NewCard(types.RatingGood, now)
	before := *c

	_ = p.Review(c, types.RatingAgain, now.Add(48*time.Hour))
	assert.Equal(t, before, *c)
}

func TestGoodGrowsStabilityAgainShrinksIt(t *testing.T) {
	p := DefaultParams()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	c := p.NewCard(types.RatingGood, now)

	next := now
	for i := 0; i < 4; i++ {
		next = c.Due
		c = p.Review(c, types.RatingGood, next)
	}
	assert.Greater(t, c.Stability, p.Weights[2], "repeated Good grows stability")

	lapsed := p.Review(c, types.RatingAgain, c.Due)
	assert.Less(t, lapsed.Stability, c.Stability, "a lapse never increases stability")
	assert.Equal(t, types.CardRelearning, lapsed.State)
	assert.Equal(t, c.Lapses+1, lapsed.Lapses)
}

func TestIntervalMatchesStabilityAtDefaultRetention(t *testing.T) {
	// With target retention 0.9 the interval formula reduces to the
	// stability itself (in days).
	p := DefaultParams()
	assert.InDelta(t, 10.0, p.intervalDays(10), 1e-6)
	assert.InDelta(t, 1.0, p.intervalDays(0.2), 1e-9, "interval floor is one day")
	assert.InDelta(t, float64(maxIntervalDays), p.intervalDays(1e6), 1e-6)
}

func TestRetrievabilityDecays(t *testing.T) {
	p := DefaultParams()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	c := p.NewCard(types.RatingGood, now)

	r0 := Retrievability(c, now)
	r7 := Retrievability(c, now.Add(7*24*time.Hour))
	assert.InDelta(t, 1.0, r0, 1e-9)
	assert.Less(t, r7, r0)
	assert.Greater(t, r7, 0.0)
}

func TestApplySRSLifecycle(t *testing.T) {
	p := DefaultParams()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	k := &types.Knowledge{LemmaID: 1, State: types.StateLearning}
	p.Graduate(k, now)
	require.NoError(t, k.CheckInvariants())

	// Drive the word to known with on-time Good reviews.
	for i := 0; i < 12 && k.State != types.StateKnown; i++ {
		p.ApplySRS(k, types.RatingGood, k.Card.Due)
	}
	assert.Equal(t, types.StateKnown, k.State)
	require.NoError(t, k.CheckInvariants())

	// Again on known demotes to lapsed.
	out := p.ApplySRS(k, types.RatingAgain, k.Card.Due)
	assert.Equal(t, types.StateLapsed, k.State)
	assert.NotNil(t, out.CardBefore)

	// A correct answer brings a lapsed word back to learning (or known if
	// stability still clears the bar).
	p.ApplySRS(k, types.RatingGood, k.Card.Due)
	assert.Contains(t, []types.KnowledgeState{types.StateLearning, types.StateKnown}, k.State)
}

func TestApplySRSSnapshotsPreReviewCard(t *testing.T) {
	p := DefaultParams()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	k := &types.Knowledge{LemmaID: 1, State: types.StateLearning}
	p.Graduate(k, now)
	pre := k.Card.Clone()

	out := p.ApplySRS(k, types.RatingGood, k.Card.Due)
	assert.Equal(t, pre, out.CardBefore)
	assert.NotEqual(t, pre, k.Card)
}

func TestRestoreCard(t *testing.T) {
	p := DefaultParams()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	k := &types.Knowledge{LemmaID: 1, State: types.StateLearning}
	p.Graduate(k, now)
	pre := k.Card.Clone()

	p.ApplySRS(k, types.RatingGood, k.Card.Due)
	RestoreCard(k, pre)
	assert.Equal(t, pre, k.Card)
	assert.Equal(t, types.StateLearning, k.State)

	RestoreCard(k, nil)
	assert.Nil(t, k.Card)
	assert.Equal(t, types.StateEncountered, k.State)
}
