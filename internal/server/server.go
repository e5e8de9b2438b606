// Package server exposes the review engine over an HTTP JSON API.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"murajaa/internal/config"
	"murajaa/internal/review"
	"murajaa/internal/selector"
	"murajaa/internal/store"
)

// Server wires the HTTP surface to the selector, dispatcher, and store.
type Server struct {
	store      *store.Store
	selector   *selector.Selector
	dispatcher *review.Dispatcher
	config     *config.Config
	log        *zap.Logger
	now        func() time.Time
}

// New builds a server over already-constructed components.
func New(st *store.Store, sel *selector.Selector, disp *review.Dispatcher,
	cfg *config.Config, log *zap.Logger) *Server {
	return &Server{
		store:      st,
		selector:   sel,
		dispatcher: disp,
		config:     cfg,
		log:        log,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Router builds the chi router with the full API surface.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/stats", s.handleStats)

		r.Route("/review", func(r chi.Router) {
			r.Get("/next-sentences", s.handleNextSentences)
			r.Get("/next-listening", s.handleNextListening)
			r.Post("/submit-sentence", s.handleSubmitSentence)
			r.Post("/submit-word", s.handleSubmitWord)
			r.Post("/sync", s.handleSync)
			r.Post("/reintro-result", s.handleReintroResult)
			r.Post("/undo-sentence", s.handleUndoSentence)
		})

		r.Post("/words/introduce", s.handleIntroduceWord)
	})
	return r
}

// ListenAndServe runs the HTTP server until ctx is canceled, then drains
// in-flight requests within the configured shutdown window.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.config.Server.Addr,
		Handler:      s.Router(),
		ReadTimeout:  s.config.GetReadTimeout(),
		WriteTimeout: s.config.GetWriteTimeout(),
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("http server listening", zap.String("addr", srv.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.GetShutdownTimeout())
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// logRequests is a thin structured access log.
func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)))
	})
}
