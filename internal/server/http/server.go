// Package httpserver provides the HTTP REST API of the paper search engine.
package httpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/helixir/paper-search-engine/internal/database"
	"github.com/helixir/paper-search-engine/internal/domain"
	"github.com/helixir/paper-search-engine/internal/repository"
	"github.com/helixir/paper-search-engine/internal/search"
)

// Searcher is the search surface exposed over HTTP. *search.Engine
// implements it.
type Searcher interface {
	Run(ctx context.Context, query string, opts domain.SearchOptions) (*search.Response, error)
	SearchAndIngest(ctx context.Context, query string, opts domain.SearchOptions) (*search.IngestResponse, error)
	BatchSearchAndIngest(ctx context.Context, queries []string, opts domain.SearchOptions) ([]search.BatchResult, error)
	Providers() []domain.ProviderHealth
}

// PaperReader reads stored papers.
type PaperReader interface {
	GetByID(ctx context.Context, id string) (*repository.PaperRecord, error)
	ListReferences(ctx context.Context, id string) ([]domain.Reference, error)
}

// HealthChecker reports database health.
type HealthChecker interface {
	Health(ctx context.Context) database.HealthStatus
}

// Server is the HTTP REST API server.
type Server struct {
	router     chi.Router
	httpServer *http.Server
	engine     Searcher
	papers     PaperReader
	db         HealthChecker
	validate   *validator.Validate
	logger     zerolog.Logger
}

// Config holds HTTP server configuration.
type Config struct {
	Address         string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// NewServer creates a new HTTP server. papers and db may be nil when
// persistence is disabled; the paper routes then answer 503 and readiness
// reports the database as disabled.
func NewServer(cfg Config, engine Searcher, papers PaperReader, db HealthChecker, logger zerolog.Logger) *Server {
	s := &Server{
		engine:   engine,
		papers:   papers,
		db:       db,
		validate: newValidator(),
		logger:   logger.With().Str("component", "http-server").Logger(),
	}

	s.router = s.buildRouter()

	s.httpServer = &http.Server{
		Addr:         cfg.Address,
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	return s
}

// Handler returns the root handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// buildRouter creates the chi router with all middleware and routes.
func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(correlationIDMiddleware)
	r.Use(requestLogger(s.logger))
	r.Use(jsonContentTypeMiddleware)

	r.Get("/health", s.healthHandler)
	r.Get("/ready", s.readinessHandler)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/search", s.search)
		r.Post("/search/ingest", s.searchAndIngest)
		r.Post("/search/batch", s.batchSearchAndIngest)
		r.Get("/providers", s.listProviders)
		r.Get("/papers/{paperID}", s.getPaper)
		r.Get("/papers/{paperID}/references", s.listReferences)
	})

	return r
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.logger.Info().Str("address", s.httpServer.Addr).Msg("HTTP server starting")
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("listen on HTTP address: %w", err)
	}
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// healthHandler returns basic liveness status.
func (s *Server) healthHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// readinessHandler returns readiness status including database connectivity.
func (s *Server) readinessHandler(w http.ResponseWriter, r *http.Request) {
	if s.db == nil {
		writeJSON(w, http.StatusOK, map[string]string{
			"status":   "ready",
			"database": "disabled",
		})
		return
	}

	health := s.db.Health(r.Context())
	if !health.Healthy() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status":   "not_ready",
			"database": health.Status,
			"error":    health.Error,
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":   "ready",
		"database": "healthy",
	})
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	// Headers are already sent; nothing useful can be done with the error.
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, statusCode int, code, message string) {
	writeJSON(w, statusCode, errorResponse{Error: errorBody{Code: code, Message: message}})
}
