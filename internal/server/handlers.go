package server

import (
	"net/http"
	"strconv"
	"time"

	"murajaa/internal/review"
	"murajaa/internal/selector"
	"murajaa/internal/types"
)

// --- shared DTOs ---

type sentenceDTO struct {
	ID                int64    `json:"id"`
	Arabic            string   `json:"arabic"`
	ArabicDiacritized string   `json:"arabic_diacritized"`
	English           string   `json:"english"`
	Transliteration   string   `json:"transliteration,omitempty"`
	TargetLemmaID     *int64   `json:"target_lemma_id,omitempty"`
	GrammarFeatures   []string `json:"grammar_features,omitempty"`
	TimesShown        int      `json:"times_shown"`
}

type sentenceWordDTO struct {
	Position int    `json:"position"`
	Surface  string `json:"surface"`
	LemmaID  *int64 `json:"lemma_id,omitempty"`
	IsTarget bool   `json:"is_target,omitempty"`
}

type lemmaDTO struct {
	ID      int64  `json:"id"`
	Surface string `json:"surface"`
	Gloss   string `json:"gloss"`
	POS     string `json:"pos"`
}

func toSentenceDTO(s *types.Sentence) *sentenceDTO {
	if s == nil {
		return nil
	}
	dto := &sentenceDTO{
		ID:                int64(s.ID),
		Arabic:            s.ArabicRaw,
		ArabicDiacritized: s.ArabicDiacritized,
		English:           s.English,
		Transliteration:   s.Transliteration,
		GrammarFeatures:   s.GrammarFeatures,
		TimesShown:        s.TimesShown,
	}
	if s.TargetLemmaID != nil {
		id := int64(*s.TargetLemmaID)
		dto.TargetLemmaID = &id
	}
	return dto
}

func toWordDTOs(words []types.SentenceWord) []sentenceWordDTO {
	out := make([]sentenceWordDTO, len(words))
	for i, w := range words {
		out[i] = sentenceWordDTO{Position: w.Position, Surface: w.SurfaceForm, IsTarget: w.IsTarget}
		if w.LemmaID != nil {
			id := int64(*w.LemmaID)
			out[i].LemmaID = &id
		}
	}
	return out
}

func toLemmaDTO(l *types.Lemma) *lemmaDTO {
	if l == nil {
		return nil
	}
	return &lemmaDTO{ID: int64(l.ID), Surface: l.Surface, Gloss: l.Gloss, POS: string(l.POS)}
}

// --- session payload ---

type sessionItemDTO struct {
	Kind           string            `json:"kind"`
	Sentence       *sentenceDTO      `json:"sentence,omitempty"`
	Words          []sentenceWordDTO `json:"words,omitempty"`
	Lemma          *lemmaDTO         `json:"lemma,omitempty"`
	DueLemmaIDs    []int64           `json:"due_lemma_ids,omitempty"`
	PrimaryLemmaID int64             `json:"primary_lemma_id,omitempty"`
	Score          float64           `json:"score"`
}

type introCandidateDTO struct {
	Lemma    *lemmaDTO `json:"lemma"`
	Position int       `json:"position"`
	Score    float64   `json:"score"`
}

type reintroCardDTO struct {
	Lemma     *lemmaDTO         `json:"lemma"`
	Root      *string           `json:"root,omitempty"`
	RootGloss *string           `json:"root_gloss,omitempty"`
	Siblings  []lemmaDTO        `json:"siblings,omitempty"`
	Forms     map[string]string `json:"forms,omitempty"`
	Example   *sentenceDTO      `json:"example,omitempty"`
	TimesSeen int               `json:"times_seen"`
}

type sessionResponse struct {
	SessionID       string              `json:"session_id"`
	Mode            string              `json:"mode"`
	Items           []sessionItemDTO    `json:"items"`
	TotalDueWords   int                 `json:"total_due_words"`
	CoveredDueWords int                 `json:"covered_due_words"`
	IntroCandidates []introCandidateDTO `json:"intro_candidates,omitempty"`
	ReintroCards    []reintroCardDTO    `json:"reintro_cards,omitempty"`
	GrammarIntro    []string            `json:"grammar_intro_needed,omitempty"`
	GrammarRefresh  []string            `json:"grammar_refresher_needed,omitempty"`
}

func toSessionResponse(sess *selector.Session) sessionResponse {
	resp := sessionResponse{
		SessionID:       sess.SessionID,
		Mode:            string(sess.Mode),
		Items:           make([]sessionItemDTO, 0, len(sess.Items)),
		TotalDueWords:   sess.TotalDueWords,
		CoveredDueWords: sess.CoveredDueWords,
		GrammarIntro:    sess.GrammarIntroNeeded,
		GrammarRefresh:  sess.GrammarRefresherNeeded,
	}
	for _, it := range sess.Items {
		dto := sessionItemDTO{
			Kind:           string(it.Kind),
			Sentence:       toSentenceDTO(it.Sentence),
			Words:          toWordDTOs(it.Words),
			Lemma:          toLemmaDTO(it.Lemma),
			PrimaryLemmaID: int64(it.PrimaryLemmaID),
			Score:          it.Score,
		}
		for _, id := range it.DueLemmaIDs {
			dto.DueLemmaIDs = append(dto.DueLemmaIDs, int64(id))
		}
		resp.Items = append(resp.Items, dto)
	}
	for _, ic := range sess.IntroCandidates {
		resp.IntroCandidates = append(resp.IntroCandidates, introCandidateDTO{
			Lemma: toLemmaDTO(ic.Lemma), Position: ic.Position, Score: ic.Score,
		})
	}
	for _, rc := range sess.ReintroCards {
		dto := reintroCardDTO{
			Lemma:     toLemmaDTO(rc.Lemma),
			Forms:     rc.Forms,
			Example:   toSentenceDTO(rc.Example),
			TimesSeen: rc.TimesSeen,
		}
		if rc.Root != nil {
			dto.Root = &rc.Root.Radicals
			dto.RootGloss = &rc.Root.Gloss
		}
		for _, sib := range rc.Siblings {
			dto.Siblings = append(dto.Siblings, *toLemmaDTO(sib))
		}
		resp.ReintroCards = append(resp.ReintroCards, dto)
	}
	return resp
}

// --- handlers ---

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleNextSentences(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			s.badRequest(w, "limit must be a non-negative integer")
			return
		}
		limit = n
	}
	mode := types.ModeReading
	switch r.URL.Query().Get("mode") {
	case "", "reading":
	case "listening":
		mode = types.ModeListening
	default:
		s.badRequest(w, "mode must be reading or listening")
		return
	}

	sess, err := s.selector.BuildSession(r.Context(), limit, mode, s.now())
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, toSessionResponse(sess))
}

func (s *Server) handleNextListening(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			s.badRequest(w, "limit must be a non-negative integer")
			return
		}
		limit = n
	}
	sess, err := s.selector.BuildSession(r.Context(), limit, types.ModeListening, s.now())
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, toSessionResponse(sess))
}

type submitSentenceRequest struct {
	SentenceID       *int64   `json:"sentence_id"`
	PrimaryLemmaID   int64    `json:"primary_lemma_id"`
	Signal           string   `json:"comprehension_signal"`
	MissedLemmaIDs   []int64  `json:"missed_lemma_ids"`
	ConfusedFeatures []string `json:"confused_features"`
	ResponseMs       *int     `json:"response_ms"`
	SessionID        string   `json:"session_id"`
	Mode             string   `json:"review_mode"`
	ClientReviewID   string   `json:"client_review_id"`
}

func (r submitSentenceRequest) toDomain() (review.SentenceRequest, string) {
	if r.ClientReviewID == "" {
		return review.SentenceRequest{}, "client_review_id is required"
	}
	signal := types.Comprehension(r.Signal)
	if !signal.Valid() {
		return review.SentenceRequest{}, "invalid comprehension_signal"
	}
	mode := types.ReviewMode(r.Mode)
	if mode == "" {
		mode = types.ModeReading
	}
	req := review.SentenceRequest{
		PrimaryLemmaID:   types.LemmaID(r.PrimaryLemmaID),
		Signal:           signal,
		ConfusedFeatures: r.ConfusedFeatures,
		ResponseMs:       r.ResponseMs,
		SessionID:        r.SessionID,
		Mode:             mode,
		ClientReviewID:   r.ClientReviewID,
	}
	if r.SentenceID != nil {
		id := types.SentenceID(*r.SentenceID)
		req.SentenceID = &id
	}
	for _, id := range r.MissedLemmaIDs {
		req.MissedLemmaIDs = append(req.MissedLemmaIDs, types.LemmaID(id))
	}
	return req, ""
}

type wordResultDTO struct {
	LemmaID  int64      `json:"lemma_id"`
	Rating   int        `json:"rating"`
	NewState string     `json:"new_state"`
	Credit   string     `json:"credit"`
	NextDue  *time.Time `json:"next_due,omitempty"`
}

type submitSentenceResponse struct {
	Duplicate   bool            `json:"duplicate"`
	WordResults []wordResultDTO `json:"word_results"`
}

func toSubmitResponse(res *review.SentenceResult) submitSentenceResponse {
	out := submitSentenceResponse{Duplicate: res.Duplicate, WordResults: []wordResultDTO{}}
	for _, wr := range res.WordResults {
		out.WordResults = append(out.WordResults, wordResultDTO{
			LemmaID:  int64(wr.LemmaID),
			Rating:   int(wr.Rating),
			NewState: string(wr.NewState),
			Credit:   string(wr.Credit),
			NextDue:  wr.NextDue,
		})
	}
	return out
}

func (s *Server) handleSubmitSentence(w http.ResponseWriter, r *http.Request) {
	var body submitSentenceRequest
	if err := decodeJSON(r, &body); err != nil {
		s.badRequest(w, "malformed request body: "+err.Error())
		return
	}
	req, problem := body.toDomain()
	if problem != "" {
		s.badRequest(w, problem)
		return
	}
	res, err := s.dispatcher.SubmitSentence(r.Context(), req)
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, toSubmitResponse(res))
}

type submitWordRequest struct {
	LemmaID        int64  `json:"lemma_id"`
	Rating         int    `json:"rating"`
	Mode           string `json:"review_mode"`
	ResponseMs     *int   `json:"response_ms"`
	SessionID      string `json:"session_id"`
	ClientReviewID string `json:"client_review_id"`
}

type lemmaResultDTO struct {
	Duplicate bool       `json:"duplicate"`
	LemmaID   int64      `json:"lemma_id"`
	NewState  string     `json:"new_state"`
	NextDue   *time.Time `json:"next_due,omitempty"`
	Graduated bool       `json:"graduated"`
	Box       int        `json:"box,omitempty"`
}

func toLemmaResultDTO(res *review.LemmaResult) lemmaResultDTO {
	return lemmaResultDTO{
		Duplicate: res.Duplicate,
		LemmaID:   int64(res.LemmaID),
		NewState:  string(res.NewState),
		NextDue:   res.NextDue,
		Graduated: res.Graduated,
		Box:       res.Box,
	}
}

func (s *Server) handleSubmitWord(w http.ResponseWriter, r *http.Request) {
	var body submitWordRequest
	if err := decodeJSON(r, &body); err != nil {
		s.badRequest(w, "malformed request body: "+err.Error())
		return
	}
	if body.ClientReviewID == "" {
		s.badRequest(w, "client_review_id is required")
		return
	}
	rating := types.Rating(body.Rating)
	if !rating.Valid() {
		s.badRequest(w, "rating must be 1..4")
		return
	}
	mode := types.ReviewMode(body.Mode)
	if mode == "" {
		mode = types.ModeReading
	}
	res, err := s.dispatcher.SubmitLemma(r.Context(), review.LemmaRequest{
		LemmaID:        types.LemmaID(body.LemmaID),
		Rating:         rating,
		Mode:           mode,
		ResponseMs:     body.ResponseMs,
		SessionID:      body.SessionID,
		ClientReviewID: body.ClientReviewID,
	})
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, toLemmaResultDTO(res))
}

type syncRequest struct {
	Items []submitSentenceRequest `json:"items"`
}

type syncItemDTO struct {
	ClientReviewID string `json:"client_review_id"`
	Status         string `json:"status"`
	Error          string `json:"error,omitempty"`
}

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	var body syncRequest
	if err := decodeJSON(r, &body); err != nil {
		s.badRequest(w, "malformed request body: "+err.Error())
		return
	}
	items := make([]review.SentenceRequest, 0, len(body.Items))
	for _, it := range body.Items {
		req, problem := it.toDomain()
		if problem != "" {
			// Shape problems surface per item, not as a whole-batch failure.
			req = review.SentenceRequest{ClientReviewID: it.ClientReviewID}
		}
		items = append(items, req)
	}
	results := s.dispatcher.Sync(r.Context(), items)
	out := make([]syncItemDTO, 0, len(results))
	for _, res := range results {
		out = append(out, syncItemDTO{
			ClientReviewID: res.ClientReviewID,
			Status:         string(res.Status),
			Error:          res.Error,
		})
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"results": out})
}

type reintroRequest struct {
	LemmaID        int64  `json:"lemma_id"`
	Result         string `json:"result"`
	SessionID      string `json:"session_id"`
	ClientReviewID string `json:"client_review_id"`
}

func (s *Server) handleReintroResult(w http.ResponseWriter, r *http.Request) {
	var body reintroRequest
	if err := decodeJSON(r, &body); err != nil {
		s.badRequest(w, "malformed request body: "+err.Error())
		return
	}
	if body.Result != review.ReintroRemember && body.Result != review.ReintroShowAgain {
		s.badRequest(w, "result must be remember or show_again")
		return
	}
	if body.ClientReviewID == "" {
		s.badRequest(w, "client_review_id is required")
		return
	}
	res, err := s.dispatcher.SubmitReintro(r.Context(), types.LemmaID(body.LemmaID),
		body.Result, body.SessionID, body.ClientReviewID, s.now())
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, toLemmaResultDTO(res))
}

type undoRequest struct {
	ClientReviewID string `json:"client_review_id"`
}

func (s *Server) handleUndoSentence(w http.ResponseWriter, r *http.Request) {
	var body undoRequest
	if err := decodeJSON(r, &body); err != nil {
		s.badRequest(w, "malformed request body: "+err.Error())
		return
	}
	if body.ClientReviewID == "" {
		s.badRequest(w, "client_review_id is required")
		return
	}
	undone, err := s.dispatcher.UndoSentence(r.Context(), body.ClientReviewID)
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]int{"reviews_undone": undone})
}

type introduceRequest struct {
	LemmaID        int64  `json:"lemma_id"`
	Source         string `json:"source"`
	DueImmediately bool   `json:"due_immediately"`
}

func (s *Server) handleIntroduceWord(w http.ResponseWriter, r *http.Request) {
	var body introduceRequest
	if err := decodeJSON(r, &body); err != nil {
		s.badRequest(w, "malformed request body: "+err.Error())
		return
	}
	if body.LemmaID == 0 {
		s.badRequest(w, "lemma_id is required")
		return
	}
	source := body.Source
	if source == "" {
		source = "manual"
	}
	err := s.dispatcher.StartAcquisition(r.Context(), types.LemmaID(body.LemmaID),
		source, body.DueImmediately, s.now())
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type statsResponse struct {
	States          map[string]int `json:"states"`
	DueWords        int            `json:"due_words"`
	ActiveSentences int            `json:"active_sentences"`
	PipelineCap     int            `json:"pipeline_cap"`
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	counts, err := s.store.KnowledgeStateCounts(ctx)
	if err != nil {
		s.respondError(w, err)
		return
	}
	due, err := s.store.EnumerateDue(ctx, s.now())
	if err != nil {
		s.respondError(w, err)
		return
	}
	active, err := s.store.ActiveSentenceCount(ctx)
	if err != nil {
		s.respondError(w, err)
		return
	}

	resp := statsResponse{
		States:          make(map[string]int, len(counts)),
		DueWords:        len(due),
		ActiveSentences: active,
		PipelineCap:     s.config.Pipeline.PipelineCap,
	}
	for state, n := range counts {
		resp.States[string(state)] = n
	}
	s.respondJSON(w, http.StatusOK, resp)
}
