package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"murajaa/internal/store"
)

// errorBody is the uniform error envelope.
type errorBody struct {
	Error string `json:"error"`
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Warn("encode response", zap.Error(err))
	}
}

// respondError maps domain errors to HTTP statuses: not-found sentinels to
// 404, everything else to 500. Handlers pass 400s explicitly via badRequest.
func (s *Server) respondError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, store.ErrLemmaNotFound),
		errors.Is(err, store.ErrSentenceNotFound),
		errors.Is(err, store.ErrKnowledgeNotFound):
		status = http.StatusNotFound
	}
	if status == http.StatusInternalServerError {
		s.log.Error("request failed", zap.Error(err))
	}
	s.respondJSON(w, status, errorBody{Error: err.Error()})
}

func (s *Server) badRequest(w http.ResponseWriter, msg string) {
	s.respondJSON(w, http.StatusBadRequest, errorBody{Error: msg})
}

// decodeJSON parses a request body into v.
func decodeJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
