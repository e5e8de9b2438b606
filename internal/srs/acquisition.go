package srs

import (
	"time"

	"murajaa/internal/types"
)

// Leitner box intervals. Box 1 is learning-phase consolidation and may
// advance on within-session retests; boxes 2 and 3 encode day-scale,
// sleep-dependent consolidation and only advance when the timer has elapsed.
const (
	Box1Interval = 4 * time.Hour
	Box2Interval = 24 * time.Hour
	Box3Interval = 72 * time.Hour

	// Short retry timers for words the learner has never gotten right.
	neverCorrectAgainDelay = 5 * time.Minute
	neverCorrectHardDelay  = 10 * time.Minute
)

// Graduation gate: a box-3 word graduates on a due, correct review once it
// has enough history spread over enough distinct days.
const (
	graduationMinSeen     = 5
	graduationMinAccuracy = 0.60
	graduationMinDays     = 2
)

func boxInterval(box int) time.Duration {
	switch {
	case box <= 1:
		return Box1Interval
	case box == 2:
		return Box2Interval
	default:
		return Box3Interval
	}
}

// StartAcquisition moves a knowledge row into the acquisition phase at box 1.
// Existing counters survive; a generic source never overwrites a specific one.
func StartAcquisition(k *types.Knowledge, source string, dueImmediately bool, now time.Time) {
	k.State = types.StateAcquiring
	k.AcquisitionBox = 1
	k.Card = nil
	due := now
	if !dueImmediately {
		due = now.Add(Box1Interval)
	}
	k.AcquisitionNextDue = &due
	if k.EnteredAcquiringAt == nil {
		t := now
		k.EnteredAcquiringAt = &t
	}
	if k.IntroducedAt == nil {
		t := now
		k.IntroducedAt = &t
	}
	if k.Source == "" || k.Source == "generic" {
		k.Source = source
	}
}

// ApplyAcquisition transitions an acquiring knowledge row on one rating.
// distinctReviewDays is the number of distinct UTC dates with prior reviews
// of this lemma, supplied by the caller from the review log.
//
// The returned outcome records the box movement; when Graduated is set the
// row has been handed to the SRS phase with a freshly seeded card.
func (p Params) ApplyAcquisition(k *types.Knowledge, r types.Rating, distinctReviewDays int, now time.Time) Outcome {
	out := Outcome{BoxBefore: k.AcquisitionBox}

	isDue := k.AcquisitionNextDue == nil || !now.Before(*k.AcquisitionNextDue)
	neverCorrect := k.TimesCorrect == 0

	k.TimesSeen++
	k.TotalEncounters++
	if r >= types.RatingGood {
		k.TimesCorrect++
	}
	lr := now
	k.LastReviewed = &lr

	setDue := func(d time.Duration) {
		due := now.Add(d)
		k.AcquisitionNextDue = &due
	}

	switch {
	case r >= types.RatingGood:
		switch {
		case k.AcquisitionBox <= 1:
			// Box 1 always advances, even within a session.
			k.AcquisitionBox = 2
			setDue(Box2Interval)
		case k.AcquisitionBox == 2:
			if isDue {
				k.AcquisitionBox = 3
				setDue(Box3Interval)
			}
			// Not due: the encounter is recorded but the day-scale timer
			// is not bypassed.
		default: // box 3
			if isDue {
				if k.TimesSeen >= graduationMinSeen &&
					k.Accuracy() >= graduationMinAccuracy &&
					distinctReviewDays >= graduationMinDays {
					p.Graduate(k, now)
					out.Graduated = true
				} else {
					setDue(Box3Interval)
				}
			}
		}

	case r == types.RatingHard:
		// Stay in the box; only reset the timer when it had elapsed.
		if isDue {
			if neverCorrect {
				setDue(neverCorrectHardDelay)
			} else {
				setDue(boxInterval(k.AcquisitionBox))
			}
		}

	default: // Again
		k.AcquisitionBox = 1
		if neverCorrect {
			setDue(neverCorrectAgainDelay)
		} else {
			setDue(Box1Interval)
		}
	}

	out.StateAfter = k.State
	out.BoxAfter = k.AcquisitionBox
	if out.Graduated {
		out.NextDue = k.Card.Due
	} else if k.AcquisitionNextDue != nil {
		out.NextDue = *k.AcquisitionNextDue
	}
	return out
}
