package types

import "time"

// CardState is the internal phase of an FSRS card.
type CardState string

const (
	CardLearning   CardState = "learning"
	CardReview     CardState = "review"
	CardRelearning CardState = "relearning"
)

// Card is the FSRS scheduling state for one lemma. It is persisted as a JSON
// column and treated as opaque by everything except the scheduler.
type Card struct {
	State      CardState  `json:"state"`
	Stability  float64    `json:"stability"`
	Difficulty float64    `json:"difficulty"`
	Due        time.Time  `json:"due"`
	LastReview *time.Time `json:"last_review,omitempty"`
	Reps       int        `json:"reps"`
	Lapses     int        `json:"lapses"`
}

// Clone returns a deep copy, used for pre-review snapshots.
func (c *Card) Clone() *Card {
	if c == nil {
		return nil
	}
	cp := *c
	if c.LastReview != nil {
		lr := *c.LastReview
		cp.LastReview = &lr
	}
	return &cp
}

// Knowledge is the per-lemma learner state (one row per non-variant lemma in
// play). Exactly one of the two scheduling mechanisms is active at a time:
// the acquisition box during the Leitner phase, the FSRS card afterwards.
type Knowledge struct {
	LemmaID            LemmaID
	State              KnowledgeState
	AcquisitionBox     int // 1..3 while acquiring, 0 otherwise
	AcquisitionNextDue *time.Time
	Card               *Card

	TimesSeen       int
	TimesCorrect    int
	TotalEncounters int

	LastReviewed       *time.Time
	IntroducedAt       *time.Time
	EnteredAcquiringAt *time.Time
	GraduatedAt        *time.Time

	Source string
}

// Accuracy returns times_correct / times_seen, or 0 when unseen.
func (k *Knowledge) Accuracy() float64 {
	if k.TimesSeen == 0 {
		return 0
	}
	return float64(k.TimesCorrect) / float64(k.TimesSeen)
}

// DueAt returns the instant the lemma is next due and whether one exists.
// Acquiring rows use the box timer; SRS rows use the card. A nil acquisition
// timer counts as due immediately.
func (k *Knowledge) DueAt() (time.Time, bool) {
	switch {
	case k.State == StateAcquiring:
		if k.AcquisitionNextDue == nil {
			return time.Time{}, true
		}
		return *k.AcquisitionNextDue, true
	case k.State.InSRS() && k.Card != nil:
		return k.Card.Due, true
	}
	return time.Time{}, false
}

// IsDue reports whether the lemma is due at now.
func (k *Knowledge) IsDue(now time.Time) bool {
	due, ok := k.DueAt()
	if !ok {
		return false
	}
	return !due.After(now)
}

// CheckInvariants validates the state machine coupling between State, the
// acquisition box, and the FSRS card. Violations are write-time errors.
func (k *Knowledge) CheckInvariants() error {
	fail := func(detail string) error {
		return &ErrStateInvariant{LemmaID: k.LemmaID, Detail: detail}
	}
	switch k.State {
	case StateAcquiring:
		if k.AcquisitionBox < 1 || k.AcquisitionBox > 3 {
			return fail("acquiring without a box in 1..3")
		}
		if k.Card != nil {
			return fail("acquiring with a non-null fsrs card")
		}
	case StateLearning, StateKnown, StateLapsed:
		if k.Card == nil {
			return fail(string(k.State) + " without an fsrs card")
		}
		if k.AcquisitionBox != 0 {
			return fail(string(k.State) + " with a leftover acquisition box")
		}
	case StateEncountered, StateNew:
		if k.Card != nil || k.AcquisitionBox != 0 {
			return fail(string(k.State) + " with scheduling state attached")
		}
	case StateSuspended:
		// Suspension freezes whatever scheduling state existed.
	default:
		return fail("unknown state " + string(k.State))
	}
	return nil
}
