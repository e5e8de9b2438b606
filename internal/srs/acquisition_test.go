package srs

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"murajaa/internal/types"
)

func acquiringKnowledge(box int, nextDue *time.Time) *types.Knowledge {
	return &types.Knowledge{
		LemmaID:            1,
		State:              types.StateAcquiring,
		AcquisitionBox:     box,
		AcquisitionNextDue: nextDue,
	}
}

func TestStartAcquisition(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	k := &types.Knowledge{LemmaID: 7, State: types.StateEncountered, Source: "reading"}
	StartAcquisition(k, "generic", false, now)

	assert.Equal(t, types.StateAcquiring, k.State)
	assert.Equal(t, 1, k.AcquisitionBox)
	require.NotNil(t, k.AcquisitionNextDue)
	assert.Equal(t, now.Add(Box1Interval), *k.AcquisitionNextDue)
	assert.Nil(t, k.Card)
	// The original, more specific source survives.
	assert.Equal(t, "reading", k.Source)
	require.NoError(t, k.CheckInvariants())

	k2 := &types.Knowledge{LemmaID: 8, State: types.StateNew}
	StartAcquisition(k2, "import", true, now)
	assert.Equal(t, now, *k2.AcquisitionNextDue)
	assert.Equal(t, "import", k2.Source)
}

func TestBox1GoodAdvancesToBox2(t *testing.T) {
	// Scenario: box 1, not yet due, rating Good. Box 1 advances even on a
	// within-session retest; the new timer is the box 2 interval.
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	due := now.Add(3 * time.Hour)
	k := acquiringKnowledge(1, &due)

	out := DefaultParams().ApplyAcquisition(k, types.RatingGood, 1, now)

	assert.Equal(t, 1, out.BoxBefore)
	assert.Equal(t, 2, out.BoxAfter)
	assert.Equal(t, 2, k.AcquisitionBox)
	assert.Equal(t, now.Add(Box2Interval), *k.AcquisitionNextDue)
	assert.Equal(t, 1, k.TimesSeen)
	assert.Equal(t, 1, k.TimesCorrect)
	assert.False(t, out.Graduated)
}

func TestBox2GoodOnlyAdvancesWhenDue(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	p := DefaultParams()

	notDue := now.Add(10 * time.Hour)
	k := acquiringKnowledge(2, &notDue)
	p.ApplyAcquisition(k, types.RatingGood, 1, now)
	assert.Equal(t, 2, k.AcquisitionBox, "not-due box 2 must not advance")
	assert.Equal(t, notDue, *k.AcquisitionNextDue, "not-due timer must not be rescheduled")
	assert.Equal(t, 1, k.TimesSeen, "the encounter is still recorded")

	wasDue := now.Add(-time.Hour)
	k = acquiringKnowledge(2, &wasDue)
	p.ApplyAcquisition(k, types.RatingGood, 1, now)
	assert.Equal(t, 3, k.AcquisitionBox)
	assert.Equal(t, now.Add(Box3Interval), *k.AcquisitionNextDue)
}

func TestBox3GoodWithoutGraduationStaysAtBox3(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	wasDue := now.Add(-time.Hour)
	k := acquiringKnowledge(3, &wasDue)
	k.TimesSeen = 2 // below the graduation gate
	k.TimesCorrect = 2

	out := DefaultParams().ApplyAcquisition(k, types.RatingGood, 2, now)

	assert.False(t, out.Graduated)
	assert.Equal(t, 3, k.AcquisitionBox)
	assert.Equal(t, now.Add(Box3Interval), *k.AcquisitionNextDue)
}

func TestAgainResetsToBox1FromAnyBox(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	p := DefaultParams()

	for _, box := range []int{1, 2, 3} {
		due := now.Add(time.Hour)
		k := acquiringKnowledge(box, &due)
		k.TimesCorrect = 1

		p.ApplyAcquisition(k, types.RatingAgain, 1, now)
		assert.Equal(t, 1, k.AcquisitionBox, "box %d", box)
		assert.Equal(t, now.Add(Box1Interval), *k.AcquisitionNextDue)
	}

	// Never-correct words get the short retry timer.
	due := now.Add(-time.Minute)
	k := acquiringKnowledge(2, &due)
	p.ApplyAcquisition(k, types.RatingAgain, 1, now)
	assert.Equal(t, now.Add(neverCorrectAgainDelay), *k.AcquisitionNextDue)
}

func TestHardKeepsBoxAndOnlyReschedulesWhenDue(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	p := DefaultParams()

	notDue := now.Add(time.Hour)
	k := acquiringKnowledge(2, &notDue)
	k.TimesCorrect = 1
	p.ApplyAcquisition(k, types.RatingHard, 1, now)
	assert.Equal(t, 2, k.AcquisitionBox)
	assert.Equal(t, notDue, *k.AcquisitionNextDue)

	wasDue := now.Add(-time.Minute)
	k = acquiringKnowledge(2, &wasDue)
	k.TimesCorrect = 1
	p.ApplyAcquisition(k, types.RatingHard, 1, now)
	assert.Equal(t, now.Add(Box2Interval), *k.AcquisitionNextDue)

	// Never correct: short retry.
	k = acquiringKnowledge(1, &wasDue)
	p.ApplyAcquisition(k, types.RatingHard, 1, now)
	assert.Equal(t, now.Add(neverCorrectHardDelay), *k.AcquisitionNextDue)
}

func TestGraduation(t *testing.T) {
	now := time.Date(2026, 3, 3, 9, 0, 0, 0, time.UTC)
	wasDue := now.Add(-time.Hour)
	k := acquiringKnowledge(3, &wasDue)
	k.TimesSeen = 4
	k.TimesCorrect = 4

	out := DefaultParams().ApplyAcquisition(k, types.RatingGood, 2, now)

	require.True(t, out.Graduated)
	assert.Equal(t, types.StateLearning, k.State)
	assert.Equal(t, 0, k.AcquisitionBox)
	assert.Nil(t, k.AcquisitionNextDue)
	require.NotNil(t, k.Card)
	assert.Positive(t, k.Card.Stability)
	require.NotNil(t, k.GraduatedAt)
	assert.Equal(t, now, *k.GraduatedAt)
	require.NoError(t, k.CheckInvariants())
}

func TestGraduationRequiresDistinctDays(t *testing.T) {
	now := time.Date(2026, 3, 3, 9, 0, 0, 0, time.UTC)
	wasDue := now.Add(-time.Hour)
	k := acquiringKnowledge(3, &wasDue)
	k.TimesSeen = 6
	k.TimesCorrect = 6

	out := DefaultParams().ApplyAcquisition(k, types.RatingGood, 1, now)
	assert.False(t, out.Graduated, "one distinct review day must not graduate")
	assert.Equal(t, 3, k.AcquisitionBox)
}

func TestGraduationRequiresAccuracy(t *testing.T) {
	now := time.Date(2026, 3, 3, 9, 0, 0, 0, time.UTC)
	wasDue := now.Add(-time.Hour)
	k := acquiringKnowledge(3, &wasDue)
	k.TimesSeen = 9
	k.TimesCorrect = 4 // 5/10 after this review: below 0.60

	out := DefaultParams().ApplyAcquisition(k, types.RatingGood, 3, now)
	assert.False(t, out.Graduated)
}

func TestNilDueTreatedAsDue(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	k := acquiringKnowledge(2, nil)
	DefaultParams().ApplyAcquisition(k, types.RatingGood, 1, now)
	assert.Equal(t, 3, k.AcquisitionBox, "nil timer counts as due")
}
