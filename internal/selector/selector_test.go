package selector

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"murajaa/internal/store"
	"murajaa/internal/types"
)

var testNow = time.Date(2026, 7, 1, 12, 0, 0, 0, time.UTC)

func newTestSelector(t *testing.T) (*Selector, *store.Store) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return New(st, zap.NewNop()), st
}

func addLemma(t *testing.T, st *store.Store, surface string) types.LemmaID {
	t.Helper()
	id, err := st.InsertLemma(context.Background(), &types.Lemma{
		Surface: surface, Gloss: surface, POS: types.POSNoun,
	})
	require.NoError(t, err)
	st.InvalidateLemmaIndex()
	return id
}

// addDue puts a lemma in SRS learning state with a card due in the past.
func addDue(t *testing.T, st *store.Store, id types.LemmaID, stability float64, seen, correct int) {
	t.Helper()
	due := testNow.Add(-time.Hour)
	require.NoError(t, st.PutKnowledge(context.Background(), &types.Knowledge{
		LemmaID: id, State: types.StateLearning,
		Card: &types.Card{
			State: types.CardReview, Stability: stability, Difficulty: 5,
			Due: due, Reps: seen,
		},
		TimesSeen: seen, TimesCorrect: correct,
	}))
}

func addSentence(t *testing.T, st *store.Store, raw string, target types.LemmaID, lemmaIDs ...types.LemmaID) types.SentenceID {
	t.Helper()
	words := make([]types.SentenceWord, len(lemmaIDs))
	for i := range lemmaIDs {
		id := lemmaIDs[i]
		words[i] = types.SentenceWord{Position: i, SurfaceForm: "w", LemmaID: &id, IsTarget: id == target}
	}
	sid, err := st.InsertSentence(context.Background(), &types.Sentence{
		ArabicRaw: raw, TargetLemmaID: &target, IsActive: true, Source: "manual",
	}, words)
	require.NoError(t, err)
	return sid
}

func logReview(t *testing.T, st *store.Store, id types.LemmaID, rating types.Rating) {
	t.Helper()
	require.NoError(t, st.AppendReviewLog(context.Background(), &types.ReviewLog{
		LemmaID: id, Rating: rating, ReviewedAt: testNow.Add(-time.Hour),
		Mode: types.ModeReading, Credit: types.CreditPrimary,
	}))
}

func TestEmptyStateYieldsEmptySession(t *testing.T) {
	sel, _ := newTestSelector(t)
	s, err := sel.BuildSession(context.Background(), 10, types.ModeReading, testNow)
	require.NoError(t, err)
	assert.Empty(t, s.Items)
	assert.Zero(t, s.TotalDueWords)
	assert.Zero(t, s.CoveredDueWords)
	assert.NotEmpty(t, s.SessionID)
}

func TestGreedyCoverPrefersHigherCoverage(t *testing.T) {
	sel, st := newTestSelector(t)
	ctx := context.Background()

	l1 := addLemma(t, st, "كتاب")
	l2 := addLemma(t, st, "بيت")
	l3 := addLemma(t, st, "قلم")
	for _, id := range []types.LemmaID{l1, l2, l3} {
		addDue(t, st, id, 5, 4, 3)
	}
	addSentence(t, st, "s1", l1, l1, l2) // covers two due lemmas
	addSentence(t, st, "s2", l3, l3)

	s, err := sel.BuildSession(ctx, 10, types.ModeReading, testNow)
	require.NoError(t, err)
	require.Len(t, s.Items, 2)
	assert.Equal(t, 3, s.TotalDueWords)
	assert.Equal(t, 3, s.CoveredDueWords)

	// The two-lemma sentence has the higher score and is picked first,
	// which also makes it the covering item for both l1 and l2.
	var coveredUnion []types.LemmaID
	for _, it := range s.Items {
		coveredUnion = append(coveredUnion, it.DueLemmaIDs...)
	}
	assert.ElementsMatch(t, []types.LemmaID{l1, l2, l3}, coveredUnion)
}

func TestMarginalCoverageSkipsRedundantSentence(t *testing.T) {
	sel, st := newTestSelector(t)
	ctx := context.Background()

	l1 := addLemma(t, st, "كتاب")
	l2 := addLemma(t, st, "بيت")
	addDue(t, st, l1, 5, 4, 3)
	addDue(t, st, l2, 5, 4, 3)
	addSentence(t, st, "s1", l1, l1, l2)
	addSentence(t, st, "s2", l1, l1) // nothing left to cover once s1 is in

	s, err := sel.BuildSession(ctx, 10, types.ModeReading, testNow)
	require.NoError(t, err)
	require.Len(t, s.Items, 1)
	assert.Equal(t, 2, s.CoveredDueWords)
}

func TestListeningModeExcludesUnreadyScaffold(t *testing.T) {
	sel, st := newTestSelector(t)
	ctx := context.Background()

	due := addLemma(t, st, "كتاب")
	scaffold := addLemma(t, st, "بيت")
	addDue(t, st, due, 5, 4, 3)
	// Scaffold has a card but zero correct reviews: not listening-ready.
	require.NoError(t, st.PutKnowledge(ctx, &types.Knowledge{
		LemmaID: scaffold, State: types.StateLearning,
		Card:      &types.Card{State: types.CardLearning, Stability: 2, Difficulty: 5, Due: testNow.Add(48 * time.Hour)},
		TimesSeen: 2,
	}))
	addSentence(t, st, "s", due, due, scaffold)

	listening, err := sel.BuildSession(ctx, 10, types.ModeListening, testNow)
	require.NoError(t, err)
	for _, it := range listening.Items {
		assert.Equal(t, ItemWord, it.Kind, "sentence with unready scaffold must not appear in listening mode")
	}

	reading, err := sel.BuildSession(ctx, 10, types.ModeReading, testNow)
	require.NoError(t, err)
	require.Len(t, reading.Items, 1)
	assert.Equal(t, ItemSentence, reading.Items[0].Kind)
}

func TestListeningReadyScaffoldPasses(t *testing.T) {
	sel, st := newTestSelector(t)
	ctx := context.Background()

	due := addLemma(t, st, "كتاب")
	scaffold := addLemma(t, st, "بيت")
	addDue(t, st, due, 5, 4, 3)
	require.NoError(t, st.PutKnowledge(ctx, &types.Knowledge{
		LemmaID: scaffold, State: types.StateKnown,
		Card:      &types.Card{State: types.CardReview, Stability: 30, Difficulty: 4, Due: testNow.Add(240 * time.Hour)},
		TimesSeen: 8, TimesCorrect: 7,
	}))
	logReview(t, st, scaffold, types.RatingGood)
	addSentence(t, st, "s", due, due, scaffold)

	s, err := sel.BuildSession(ctx, 10, types.ModeListening, testNow)
	require.NoError(t, err)
	require.Len(t, s.Items, 1)
	assert.Equal(t, ItemSentence, s.Items[0].Kind)
}

func TestRecencyGateFallsBackToWordItems(t *testing.T) {
	sel, st := newTestSelector(t)
	ctx := context.Background()

	due := addLemma(t, st, "كتاب")
	addDue(t, st, due, 5, 4, 3)
	sid := addSentence(t, st, "s", due, due)
	// Shown and understood an hour ago: gated for 7 days.
	require.NoError(t, st.TouchSentenceShown(ctx, sid, types.ModeReading, types.CompUnderstood, testNow.Add(-time.Hour)))

	s, err := sel.BuildSession(ctx, 10, types.ModeReading, testNow)
	require.NoError(t, err)
	require.Len(t, s.Items, 1)
	assert.Equal(t, ItemWord, s.Items[0].Kind)
	assert.Equal(t, due, s.Items[0].PrimaryLemmaID)
	assert.Zero(t, s.CoveredDueWords)
}

func TestNoIdeaGateReopensAfterFourHours(t *testing.T) {
	sel, st := newTestSelector(t)
	ctx := context.Background()

	due := addLemma(t, st, "كتاب")
	addDue(t, st, due, 5, 4, 3)
	sid := addSentence(t, st, "s", due, due)
	require.NoError(t, st.TouchSentenceShown(ctx, sid, types.ModeReading, types.CompNoIdea, testNow.Add(-5*time.Hour)))

	s, err := sel.BuildSession(ctx, 10, types.ModeReading, testNow)
	require.NoError(t, err)
	require.Len(t, s.Items, 1)
	assert.Equal(t, ItemSentence, s.Items[0].Kind)
}

func TestStrugglingLemmasBecomeReintroCards(t *testing.T) {
	sel, st := newTestSelector(t)
	ctx := context.Background()

	hard := addLemma(t, st, "كتاب")
	addDue(t, st, hard, 0.2, 4, 0) // seen 4, never correct
	addSentence(t, st, "s", hard, hard)

	s, err := sel.BuildSession(ctx, 10, types.ModeReading, testNow)
	require.NoError(t, err)
	assert.Empty(t, s.Items, "struggling lemmas leave the due set")
	require.Len(t, s.ReintroCards, 1)
	assert.Equal(t, hard, s.ReintroCards[0].Lemma.ID)
	assert.Equal(t, 4, s.ReintroCards[0].TimesSeen)
	require.NotNil(t, s.ReintroCards[0].Example)
}

func TestReintroCardCap(t *testing.T) {
	sel, st := newTestSelector(t)
	ctx := context.Background()

	for i, surface := range []string{"ا", "ب", "ت", "ث", "ج"} {
		id := addLemma(t, st, surface)
		addDue(t, st, id, 0.2, 3+i, 0)
	}
	s, err := sel.BuildSession(ctx, 10, types.ModeReading, testNow)
	require.NoError(t, err)
	require.Len(t, s.ReintroCards, maxReintroCards)
	// Sorted by times_seen descending.
	assert.GreaterOrEqual(t, s.ReintroCards[0].TimesSeen, s.ReintroCards[1].TimesSeen)
	assert.GreaterOrEqual(t, s.ReintroCards[1].TimesSeen, s.ReintroCards[2].TimesSeen)
}

func TestEasyHardEasyOrdering(t *testing.T) {
	sel, st := newTestSelector(t)
	ctx := context.Background()

	easy := addLemma(t, st, "كتاب")
	mid := addLemma(t, st, "بيت")
	hard := addLemma(t, st, "قلم")
	addDue(t, st, easy, 20, 10, 9)
	addDue(t, st, mid, 5, 6, 4)
	addDue(t, st, hard, 0.8, 4, 2)
	addSentence(t, st, "se", easy, easy)
	addSentence(t, st, "sm", mid, mid)
	addSentence(t, st, "sh", hard, hard)

	s, err := sel.BuildSession(ctx, 10, types.ModeReading, testNow)
	require.NoError(t, err)
	require.Len(t, s.Items, 3)
	assert.Equal(t, easy, s.Items[0].PrimaryLemmaID, "easiest opens the session")
	assert.Equal(t, hard, s.Items[1].PrimaryLemmaID, "hardest sits in the middle")
	assert.Equal(t, mid, s.Items[2].PrimaryLemmaID, "second-easiest closes the session")
}

func TestBackfillHealsUnmappedTokens(t *testing.T) {
	sel, st := newTestSelector(t)
	ctx := context.Background()

	due := addLemma(t, st, "كتاب")
	addDue(t, st, due, 5, 4, 3)

	dueID := due
	sid, err := st.InsertSentence(ctx, &types.Sentence{
		ArabicRaw: "قرا الولد الكتاب", TargetLemmaID: &dueID, IsActive: true,
	}, []types.SentenceWord{
		{Position: 0, SurfaceForm: "قرا"},
		{Position: 1, SurfaceForm: "الولد"},
		{Position: 2, SurfaceForm: "الكتاب", LemmaID: &dueID, IsTarget: true},
	})
	require.NoError(t, err)

	// The lemma for position 1 appears after the sentence was stored.
	boy := addLemma(t, st, "ولد")

	s, err := sel.BuildSession(ctx, 10, types.ModeReading, testNow)
	require.NoError(t, err)
	require.Len(t, s.Items, 1)

	ws, err := st.SentenceWords(ctx, sid)
	require.NoError(t, err)
	require.NotNil(t, ws[1].LemmaID, "resolvable token was persisted")
	assert.Equal(t, boy, *ws[1].LemmaID)
	assert.Nil(t, ws[0].LemmaID, "unresolvable token stays unmapped")
}

func TestGrammarPromptLists(t *testing.T) {
	sel, st := newTestSelector(t)
	ctx := context.Background()

	due := addLemma(t, st, "كتاب")
	addDue(t, st, due, 5, 4, 3)
	dueID := due
	_, err := st.InsertSentence(ctx, &types.Sentence{
		ArabicRaw: "s", TargetLemmaID: &dueID, IsActive: true,
		GrammarFeatures: []string{"idafa", "dual"},
	}, []types.SentenceWord{
		{Position: 0, SurfaceForm: "w"},
		{Position: 1, SurfaceForm: "w2", LemmaID: &dueID, IsTarget: true},
	})
	require.NoError(t, err)

	// idafa was introduced; dual was not.
	require.NoError(t, st.MarkGrammarIntroduced(ctx, "idafa", testNow.Add(-30*24*time.Hour)))
	// A confused feature with enough history gets resurfaced.
	for i := 0; i < 6; i++ {
		confused := i < 3
		require.NoError(t, st.BumpGrammarExposure(ctx, "vso_order", !confused, confused, testNow.Add(-time.Hour)))
	}

	s, err := sel.BuildSession(ctx, 10, types.ModeReading, testNow)
	require.NoError(t, err)
	assert.Equal(t, []string{"dual"}, s.GrammarIntroNeeded)
	assert.Equal(t, []string{"vso_order"}, s.GrammarRefresherNeeded)
}

func TestIntroCandidatesRequireHealthySession(t *testing.T) {
	sel, st := newTestSelector(t)
	ctx := context.Background()

	// Five due lemmas each with their own sentence: session length 5.
	for _, surface := range []string{"ا", "ب", "ت", "ث", "ج"} {
		id := addLemma(t, st, surface)
		addDue(t, st, id, 5, 6, 5)
		addSentence(t, st, "s-"+surface, id, id)
	}
	// Unlearned candidates with frequency ranks.
	r1, r2 := 10, 2000
	_, err := st.InsertLemma(ctx, &types.Lemma{Surface: "شمس", Gloss: "sun", POS: types.POSNoun, FrequencyRank: &r1})
	require.NoError(t, err)
	_, err = st.InsertLemma(ctx, &types.Lemma{Surface: "قمر", Gloss: "moon", POS: types.POSNoun, FrequencyRank: &r2})
	require.NoError(t, err)
	st.InvalidateLemmaIndex()

	s, err := sel.BuildSession(ctx, 10, types.ModeReading, testNow)
	require.NoError(t, err)
	require.Len(t, s.Items, 5)
	require.Len(t, s.IntroCandidates, 2)
	assert.Equal(t, "شمس", s.IntroCandidates[0].Lemma.Surface, "higher-frequency word first")
	assert.Equal(t, introSlotFirst, s.IntroCandidates[0].Position)
	assert.Equal(t, introSlotSecond, s.IntroCandidates[1].Position)
}

func TestIntroCandidatesSuppressedByLowAccuracy(t *testing.T) {
	sel, st := newTestSelector(t)
	ctx := context.Background()

	for _, surface := range []string{"ا", "ب", "ت", "ث", "ج"} {
		id := addLemma(t, st, surface)
		addDue(t, st, id, 5, 6, 5)
		addSentence(t, st, "s-"+surface, id, id)
		logReview(t, st, id, types.RatingAgain)
	}
	_, err := st.InsertLemma(ctx, &types.Lemma{Surface: "شمس", Gloss: "sun", POS: types.POSNoun})
	require.NoError(t, err)

	s, err := sel.BuildSession(ctx, 10, types.ModeReading, testNow)
	require.NoError(t, err)
	assert.Empty(t, s.IntroCandidates, "a failing streak blocks new introductions")
}
