package srs

import (
	"time"

	"murajaa/internal/types"
)

// Outcome describes one applied review: the state before, the state after,
// and whether the review crossed a lifecycle boundary.
type Outcome struct {
	CardBefore *types.Card
	StateAfter types.KnowledgeState
	NextDue    time.Time
	Graduated  bool // acquisition -> learning handoff happened
	BoxBefore  int
	BoxAfter   int
}

// ApplySRS transitions a knowledge row in an SRS state (learning, known,
// lapsed) on one rating. It mutates k and returns the outcome with the
// pre-review card snapshot for the review log.
//
// Lifecycle rules: Again on a known word demotes it to lapsed; a lapsed word
// answered Good or better returns to learning; a learning word whose
// stability reaches KnownStabilityDays is promoted to known.
func (p Params) ApplySRS(k *types.Knowledge, r types.Rating, now time.Time) Outcome {
	out := Outcome{CardBefore: k.Card.Clone()}

	k.Card = p.Review(k.Card, r, now)
	k.TimesSeen++
	k.TotalEncounters++
	if r >= types.RatingGood {
		k.TimesCorrect++
	}
	lr := now
	k.LastReviewed = &lr

	switch {
	case r == types.RatingAgain:
		if k.State == types.StateKnown {
			k.State = types.StateLapsed
		}
	case k.State == types.StateLapsed:
		k.State = types.StateLearning
	}
	if k.State == types.StateLearning && k.Card.Stability >= p.KnownStabilityDays {
		k.State = types.StateKnown
	}

	out.StateAfter = k.State
	out.NextDue = k.Card.Due
	return out
}

// Graduate hands an acquiring word off to the SRS phase: the box timer is
// cleared and the card is seeded with one synthetic Good review.
func (p Params) Graduate(k *types.Knowledge, now time.Time) {
	k.State = types.StateLearning
	k.AcquisitionBox = 0
	k.AcquisitionNextDue = nil
	k.Card = p.NewCard(types.RatingGood, now)
	g := now
	k.GraduatedAt = &g
}

// RestoreCard rewinds a knowledge row to a prior card snapshot, used by undo.
// A nil snapshot means the review being undone was the card's first; the
// exact pre-SRS state is not reconstructable, so the row falls back to
// encountered with no card.
func RestoreCard(k *types.Knowledge, snapshot *types.Card) {
	k.Card = snapshot.Clone()
	if k.Card == nil {
		k.State = types.StateEncountered
		return
	}
	if !k.State.InSRS() {
		k.State = types.StateLearning
	}
}
