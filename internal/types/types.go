// Package types holds the core entities of the learning engine: vocabulary
// lemmas, sentences, per-lemma learner knowledge, and review records. All
// components share these types; behavior lives in the packages that own it.
package types

import (
	"fmt"
	"time"
)

// LemmaID identifies one canonical vocabulary unit.
type LemmaID int64

// SentenceID identifies one pre-authored exemplar sentence.
type SentenceID int64

// Rating is a four-point review outcome (Again/Hard/Good/Easy).
type Rating int

const (
	RatingAgain Rating = 1
	RatingHard  Rating = 2
	RatingGood  Rating = 3
	RatingEasy  Rating = 4
)

// Valid reports whether r is one of the four defined ratings.
func (r Rating) Valid() bool { return r >= RatingAgain && r <= RatingEasy }

// KnowledgeState is the lifecycle state of a lemma for the learner.
type KnowledgeState string

const (
	StateNew         KnowledgeState = "new"
	StateEncountered KnowledgeState = "encountered"
	StateAcquiring   KnowledgeState = "acquiring"
	StateLearning    KnowledgeState = "learning"
	StateKnown       KnowledgeState = "known"
	StateLapsed      KnowledgeState = "lapsed"
	StateSuspended   KnowledgeState = "suspended"
)

// InSRS reports whether the state is scheduled by the FSRS card.
func (s KnowledgeState) InSRS() bool {
	return s == StateLearning || s == StateKnown || s == StateLapsed
}

// ReviewMode distinguishes how material was presented.
type ReviewMode string

const (
	ModeReading   ReviewMode = "reading"
	ModeListening ReviewMode = "listening"
	ModeReintro   ReviewMode = "reintro"
)

// Comprehension is the learner's declared outcome on a whole sentence.
type Comprehension string

const (
	CompUnderstood      Comprehension = "understood"
	CompPartial         Comprehension = "partial"
	CompGrammarConfused Comprehension = "grammar_confused"
	CompNoIdea          Comprehension = "no_idea"
)

// Valid reports whether c is a defined comprehension signal.
func (c Comprehension) Valid() bool {
	switch c {
	case CompUnderstood, CompPartial, CompGrammarConfused, CompNoIdea:
		return true
	}
	return false
}

// CreditType records why a per-lemma review was generated.
type CreditType string

const (
	CreditPrimary     CreditType = "primary"
	CreditCollateral  CreditType = "collateral"
	CreditEncounter   CreditType = "encounter"
	CreditAcquisition CreditType = "acquisition"
)

// PartOfSpeech is a coarse POS tag on a lemma.
type PartOfSpeech string

const (
	POSNoun        PartOfSpeech = "noun"
	POSVerb        PartOfSpeech = "verb"
	POSAdjective   PartOfSpeech = "adj"
	POSAdverb      PartOfSpeech = "adverb"
	POSParticle    PartOfSpeech = "particle"
	POSPronoun     PartOfSpeech = "pronoun"
	POSPreposition PartOfSpeech = "preposition"
	POSOther       PartOfSpeech = "other"
)

// Lemma is one canonical vocabulary unit. A lemma with a non-nil CanonicalID
// is a variant: it never appears in sessions and only exists so its surface
// forms route tokens to the canonical entry.
type Lemma struct {
	ID            LemmaID
	Surface       string
	Bare          string // normalized form: diacritics stripped, alef-normalized
	Gloss         string
	POS           PartOfSpeech
	RootID        *int64
	FrequencyRank *int
	Forms         map[string]string // form kind -> inflected surface
	CanonicalID   *LemmaID
	CreatedAt     time.Time
}

// IsVariant reports whether the lemma redirects to a canonical entry.
func (l *Lemma) IsVariant() bool { return l.CanonicalID != nil }

// Root is a shared morphological root, usually three consonants.
type Root struct {
	ID       int64
	Radicals string
	Gloss    string
}

// Sentence is a pre-authored exemplar with per-mode presentation history.
type Sentence struct {
	ID                SentenceID
	ArabicRaw         string
	ArabicDiacritized string
	English           string
	Transliteration   string
	TargetLemmaID     *LemmaID
	IsActive          bool
	TimesShown        int
	Source            string // llm | book | manual | ...
	GrammarFeatures   []string

	LastShownReading   *time.Time
	LastShownListening *time.Time
	LastCompReading    Comprehension
	LastCompListening  Comprehension

	CreatedAt time.Time
}

// LastShownIn returns the last-shown instant for the given mode.
func (s *Sentence) LastShownIn(mode ReviewMode) *time.Time {
	if mode == ModeListening {
		return s.LastShownListening
	}
	return s.LastShownReading
}

// LastCompIn returns the last comprehension signal recorded in the given mode.
func (s *Sentence) LastCompIn(mode ReviewMode) Comprehension {
	if mode == ModeListening {
		return s.LastCompListening
	}
	return s.LastCompReading
}

// SentenceWord maps a token position in a sentence to a lemma. Function words
// may carry a nil LemmaID.
type SentenceWord struct {
	SentenceID  SentenceID
	Position    int
	SurfaceForm string
	LemmaID     *LemmaID
	IsTarget    bool
}

// ReviewLog is one append-only per-lemma rating event.
type ReviewLog struct {
	ID             int64
	LemmaID        LemmaID
	Rating         Rating
	ReviewedAt     time.Time
	ResponseMs     *int
	Mode           ReviewMode
	Signal         Comprehension // empty unless derived from a sentence review
	Credit         CreditType
	SentenceID     *SentenceID
	SessionID      string
	ClientReviewID string // unique when non-empty; enforces idempotency
	IsAcquisition  bool

	// Pre-transition snapshot. CardBefore is nil for acquisition reviews;
	// the box fields are zero for SRS reviews.
	CardBefore *Card
	BoxBefore  int
	BoxAfter   int
}

// SentenceReviewLog is one record per sentence-level review, orthogonal to
// the per-lemma ReviewLog rows it fanned out to.
type SentenceReviewLog struct {
	ID             int64
	SentenceID     *SentenceID
	PrimaryLemmaID LemmaID
	Signal         Comprehension
	Mode           ReviewMode
	ResponseMs     *int
	SessionID      string
	ClientReviewID string
	ReviewedAt     time.Time
}

// GrammarExposure tracks per-feature counters for the comfort score.
type GrammarExposure struct {
	Feature       string
	TimesSeen     int
	TimesCorrect  int
	TimesConfused int
	FirstSeenAt   *time.Time
	LastSeenAt    *time.Time
	IntroducedAt  *time.Time
}

// ConfusionRate returns times_confused / times_seen, or 0 when unseen.
func (g *GrammarExposure) ConfusionRate() float64 {
	if g.TimesSeen == 0 {
		return 0
	}
	return float64(g.TimesConfused) / float64(g.TimesSeen)
}

// Event is one structured interaction record (session_start,
// sentence_selected, word_graduated, ...). Consumers are external.
type Event struct {
	ID         int64
	Kind       string
	OccurredAt time.Time
	Attrs      map[string]any
}

// ErrStateInvariant is returned when a Knowledge row violates the state
// machine (for example an acquiring row carrying an FSRS card). Such rows are
// rejected at write time, never silently coerced.
type ErrStateInvariant struct {
	LemmaID LemmaID
	Detail  string
}

func (e *ErrStateInvariant) Error() string {
	return fmt.Sprintf("knowledge state invariant violated for lemma %d: %s", e.LemmaID, e.Detail)
}
