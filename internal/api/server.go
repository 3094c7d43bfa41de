// Package api provides the HTTP surface: upload intake, video access,
// range-aware streaming and the live event channel.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/clipforge/clipforge/internal/auth"
	"github.com/clipforge/clipforge/internal/config"
	"github.com/clipforge/clipforge/internal/events"
	"github.com/clipforge/clipforge/internal/log"
	"github.com/clipforge/clipforge/internal/pipeline"
	"github.com/clipforge/clipforge/internal/store"
)

// Server is the HTTP API server.
type Server struct {
	cfg          *config.Config
	store        *store.Store
	orchestrator *pipeline.Orchestrator
	broadcaster  *events.Broadcaster
	verifier     auth.Verifier
	logger       zerolog.Logger
}

// New wires a Server from its collaborators.
func New(cfg *config.Config, st *store.Store, orch *pipeline.Orchestrator, bc *events.Broadcaster, verifier auth.Verifier) *Server {
	return &Server{
		cfg:          cfg,
		store:        st,
		orchestrator: orch,
		broadcaster:  bc,
		verifier:     verifier,
		logger:       log.WithComponent("api"),
	}
}

// Router builds the chi route tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(corsMiddleware)

	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Use(s.authMiddleware(false))

		r.Post("/videos", s.handleUpload)
		r.Get("/videos", s.handleList)
		r.Get("/videos/{id}", s.handleGet)
		r.Patch("/videos/{id}", s.handleUpdate)
		r.Delete("/videos/{id}", s.handleDelete)
		r.Post("/videos/{id}/reanalyze", s.handleReanalyze)
		r.Get("/events", s.handleEvents)
	})

	// Media endpoints accept the token as a query parameter because
	// browser media elements cannot attach headers to range requests.
	r.Group(func(r chi.Router) {
		r.Use(s.authMiddleware(true))

		r.Get("/videos/{id}/stream", s.handleStream)
		r.Get("/videos/{id}/thumbnail", s.handleThumbnail)
	})

	return r
}

// Serve runs the HTTP server until ctx is canceled, then drains it.
func (s *Server) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
