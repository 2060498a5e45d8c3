// Package server exposes the query service over HTTP.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"paper-rag/internal/config"
	"paper-rag/internal/models"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/hlog"
	"github.com/rs/zerolog/log"
)

// Querier answers questions; implemented by rag.RAG.
type Querier interface {
	Query(ctx context.Context, question string, topK int) (*models.PromptResponse, error)
}

// HealthFunc reports whether the backing stores are reachable.
type HealthFunc func(ctx context.Context) error

type Server struct {
	querier Querier
	health  HealthFunc
	config  *config.ServerConfig
	topK    int
	server  *http.Server
}

func NewServer(querier Querier, health HealthFunc, cfg *config.ServerConfig, defaultTopK int) *Server {
	return &Server{
		querier: querier,
		health:  health,
		config:  cfg,
		topK:    defaultTopK,
	}
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(hlog.NewHandler(log.Logger))
	r.Use(hlog.RequestIDHandler("req_id", "X-Request-Id"))
	r.Use(hlog.AccessHandler(func(r *http.Request, status, size int, duration time.Duration) {
		hlog.FromRequest(r).Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", status).
			Dur("took", duration).
			Msg("request")
	}))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(120 * time.Second))

	r.Get("/", s.handleRoot)
	r.Get("/health", s.handleHealth)
	r.Post("/query", s.handleQuery)
	return r
}

// Start serves until the server is stopped.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	log.Info().Str("addr", addr).Msg("Starting server")
	return s.server.ListenAndServe()
}

func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
