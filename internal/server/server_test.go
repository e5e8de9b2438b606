package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"murajaa/internal/config"
	"murajaa/internal/review"
	"murajaa/internal/selector"
	"murajaa/internal/srs"
	"murajaa/internal/store"
	"murajaa/internal/types"
)

var testNow = time.Date(2026, 7, 20, 9, 0, 0, 0, time.UTC)

func newTestServer(t *testing.T) (*Server, *store.Store) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	log := zap.NewNop()
	srv := New(st, selector.New(st, log), review.NewDispatcher(st, srs.DefaultParams(), log),
		config.DefaultConfig(), log)
	srv.now = func() time.Time { return testNow }
	return srv, st
}

func addLemma(t *testing.T, st *store.Store, surface string) types.LemmaID {
	t.Helper()
	id, err := st.InsertLemma(context.Background(), &types.Lemma{
		Surface: surface, Gloss: surface, POS: types.POSNoun,
	})
	require.NoError(t, err)
	return id
}

func addDueSRS(t *testing.T, st *store.Store, id types.LemmaID) {
	t.Helper()
	k := &types.Knowledge{LemmaID: id, State: types.StateLearning, TimesSeen: 5, TimesCorrect: 4}
	srs.DefaultParams().Graduate(k, testNow.Add(-96*time.Hour))
	k.Card.Due = testNow.Add(-time.Hour)
	require.NoError(t, st.PutKnowledge(context.Background(), k))
}

func addSentence(t *testing.T, st *store.Store, target types.LemmaID, others ...types.LemmaID) types.SentenceID {
	t.Helper()
	words := []types.SentenceWord{{Position: 0, SurfaceForm: "في"}}
	tid := target
	words = append(words, types.SentenceWord{Position: 1, SurfaceForm: "t", LemmaID: &tid, IsTarget: true})
	for i := range others {
		id := others[i]
		words = append(words, types.SentenceWord{Position: i + 2, SurfaceForm: "w", LemmaID: &id})
	}
	sid, err := st.InsertSentence(context.Background(), &types.Sentence{
		ArabicRaw: "جملة", English: "a sentence", TargetLemmaID: &target, IsActive: true,
	}, words)
	require.NoError(t, err)
	return sid
}

func doJSON(t *testing.T, srv *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v))
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := doJSON(t, srv, http.MethodGet, "/api/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestNextSentencesReturnsSessionPayload(t *testing.T) {
	srv, st := newTestServer(t)
	lemma := addLemma(t, st, "كتاب")
	addDueSRS(t, st, lemma)
	addSentence(t, st, lemma)

	rec := doJSON(t, srv, http.MethodGet, "/api/review/next-sentences?limit=5&mode=reading", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp sessionResponse
	decodeBody(t, rec, &resp)
	assert.NotEmpty(t, resp.SessionID)
	assert.Equal(t, "reading", resp.Mode)
	require.NotEmpty(t, resp.Items)
	assert.Equal(t, "sentence", resp.Items[0].Kind)
	require.NotNil(t, resp.Items[0].Sentence)
	assert.Equal(t, "جملة", resp.Items[0].Sentence.Arabic)
	assert.Equal(t, 1, resp.TotalDueWords)
}

func TestNextSentencesRejectsBadMode(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := doJSON(t, srv, http.MethodGet, "/api/review/next-sentences?mode=osmosis", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestNextListeningFiltersUnreadyScaffolds(t *testing.T) {
	srv, st := newTestServer(t)
	lemma := addLemma(t, st, "كتاب")
	addDueSRS(t, st, lemma)
	scaffold := addLemma(t, st, "بيت")
	// Scaffold has never been answered correctly, so the sentence is not
	// listening-ready and the due word falls back to a word item.
	addSentence(t, st, lemma, scaffold)

	rec := doJSON(t, srv, http.MethodGet, "/api/review/next-listening", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp sessionResponse
	decodeBody(t, rec, &resp)
	for _, it := range resp.Items {
		assert.NotEqual(t, "sentence", it.Kind)
	}
}

func TestSubmitSentenceAndDuplicate(t *testing.T) {
	srv, st := newTestServer(t)
	lemma := addLemma(t, st, "كتاب")
	addDueSRS(t, st, lemma)
	sid := addSentence(t, st, lemma)

	body := submitSentenceRequest{
		SentenceID:     func() *int64 { v := int64(sid); return &v }(),
		PrimaryLemmaID: int64(lemma),
		Signal:         "understood",
		Mode:           "reading",
		ClientReviewID: "req-1",
	}

	rec := doJSON(t, srv, http.MethodPost, "/api/review/submit-sentence", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp submitSentenceResponse
	decodeBody(t, rec, &resp)
	assert.False(t, resp.Duplicate)
	require.Len(t, resp.WordResults, 1)
	assert.Equal(t, int64(lemma), resp.WordResults[0].LemmaID)
	assert.Equal(t, 3, resp.WordResults[0].Rating)

	rec = doJSON(t, srv, http.MethodPost, "/api/review/submit-sentence", body)
	require.Equal(t, http.StatusOK, rec.Code)
	decodeBody(t, rec, &resp)
	assert.True(t, resp.Duplicate)
	assert.Empty(t, resp.WordResults)
}

func TestSubmitSentenceRequiresClientReviewID(t *testing.T) {
	srv, st := newTestServer(t)
	lemma := addLemma(t, st, "كتاب")

	rec := doJSON(t, srv, http.MethodPost, "/api/review/submit-sentence", submitSentenceRequest{
		PrimaryLemmaID: int64(lemma), Signal: "understood",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSubmitSentenceRejectsBadSignal(t *testing.T) {
	srv, st := newTestServer(t)
	lemma := addLemma(t, st, "كتاب")

	rec := doJSON(t, srv, http.MethodPost, "/api/review/submit-sentence", submitSentenceRequest{
		PrimaryLemmaID: int64(lemma), Signal: "sort_of", ClientReviewID: "x",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSubmitWord(t *testing.T) {
	srv, st := newTestServer(t)
	lemma := addLemma(t, st, "كتاب")
	addDueSRS(t, st, lemma)

	rec := doJSON(t, srv, http.MethodPost, "/api/review/submit-word", submitWordRequest{
		LemmaID: int64(lemma), Rating: 3, Mode: "reading", ClientReviewID: "w-1",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp lemmaResultDTO
	decodeBody(t, rec, &resp)
	assert.Equal(t, int64(lemma), resp.LemmaID)
	assert.False(t, resp.Duplicate)
	require.NotNil(t, resp.NextDue)
	assert.True(t, resp.NextDue.After(testNow))
}

func TestSubmitWordRejectsBadRating(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := doJSON(t, srv, http.MethodPost, "/api/review/submit-word", submitWordRequest{
		LemmaID: 1, Rating: 9, ClientReviewID: "w-1",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestReintroResultMapping(t *testing.T) {
	srv, st := newTestServer(t)
	lemma := addLemma(t, st, "كتاب")
	addDueSRS(t, st, lemma)

	rec := doJSON(t, srv, http.MethodPost, "/api/review/reintro-result", reintroRequest{
		LemmaID: int64(lemma), Result: "remember", ClientReviewID: "r-1",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = doJSON(t, srv, http.MethodPost, "/api/review/reintro-result", reintroRequest{
		LemmaID: int64(lemma), Result: "kind_of", ClientReviewID: "r-2",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUndoSentence(t *testing.T) {
	srv, st := newTestServer(t)
	lemma := addLemma(t, st, "كتاب")
	addDueSRS(t, st, lemma)
	sid := addSentence(t, st, lemma)

	body := submitSentenceRequest{
		SentenceID:     func() *int64 { v := int64(sid); return &v }(),
		PrimaryLemmaID: int64(lemma),
		Signal:         "understood",
		ClientReviewID: "u-1",
	}
	rec := doJSON(t, srv, http.MethodPost, "/api/review/submit-sentence", body)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, srv, http.MethodPost, "/api/review/undo-sentence", undoRequest{ClientReviewID: "u-1"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp map[string]int
	decodeBody(t, rec, &resp)
	assert.Equal(t, 1, resp["reviews_undone"])
}

func TestSyncReportsPerItemStatus(t *testing.T) {
	srv, st := newTestServer(t)
	lemma := addLemma(t, st, "كتاب")
	addDueSRS(t, st, lemma)
	sid := addSentence(t, st, lemma)
	sidV := int64(sid)

	item := submitSentenceRequest{
		SentenceID:     &sidV,
		PrimaryLemmaID: int64(lemma),
		Signal:         "understood",
		ClientReviewID: "s-1",
	}
	rec := doJSON(t, srv, http.MethodPost, "/api/review/sync", syncRequest{
		Items: []submitSentenceRequest{item, item},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		Results []syncItemDTO `json:"results"`
	}
	decodeBody(t, rec, &resp)
	require.Len(t, resp.Results, 2)
	assert.Equal(t, "applied", resp.Results[0].Status)
	assert.Equal(t, "duplicate", resp.Results[1].Status)
}

func TestIntroduceWord(t *testing.T) {
	srv, st := newTestServer(t)
	lemma := addLemma(t, st, "كتاب")

	rec := doJSON(t, srv, http.MethodPost, "/api/words/introduce", introduceRequest{
		LemmaID: int64(lemma), DueImmediately: true,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	k, err := st.GetKnowledge(context.Background(), lemma)
	require.NoError(t, err)
	assert.Equal(t, types.StateAcquiring, k.State)
	assert.Equal(t, 1, k.AcquisitionBox)
}

func TestStats(t *testing.T) {
	srv, st := newTestServer(t)
	lemma := addLemma(t, st, "كتاب")
	addDueSRS(t, st, lemma)
	addSentence(t, st, lemma)

	rec := doJSON(t, srv, http.MethodGet, "/api/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp statsResponse
	decodeBody(t, rec, &resp)
	assert.Equal(t, 1, resp.States["learning"])
	assert.Equal(t, 1, resp.DueWords)
	assert.Equal(t, 1, resp.ActiveSentences)
	assert.Equal(t, 300, resp.PipelineCap)
}

func TestUnknownRouteReturns404(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := doJSON(t, srv, http.MethodGet, fmt.Sprintf("/api/%s", "nonsense"), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
