// Package http serves the read-only operational API: health, readiness,
// Prometheus metrics, and introspection of the loaded capabilities and
// patterns. The business API stays out of this surface.
package http

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/quantfolio/quantfolio/internal/pattern"
	"github.com/quantfolio/quantfolio/internal/registry"
)

// ServerConfig holds server configuration.
type ServerConfig struct {
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// DefaultServerConfig returns the configuration used when none is given.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Addr:            ":8090",
		ReadTimeout:     10 * time.Second,
		WriteTimeout:    30 * time.Second,
		ShutdownTimeout: 10 * time.Second,
	}
}

// Server is the operational HTTP server.
type Server struct {
	router   *mux.Router
	server   *http.Server
	registry *registry.Registry
	library  *pattern.Library
	config   ServerConfig
}

// NewServer creates the server and wires its routes.
func NewServer(cfg ServerConfig, reg *registry.Registry, lib *pattern.Library) *Server {
	s := &Server{
		router:   mux.NewRouter(),
		registry: reg,
		library:  lib,
		config:   cfg,
	}
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(s.requestIDMiddleware)
	s.router.Use(s.requestLoggingMiddleware)

	s.router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	api := s.router.PathPrefix("/").Subrouter()
	api.Use(jsonContentTypeMiddleware)
	api.HandleFunc("/health", s.handleHealth).Methods("GET")
	api.HandleFunc("/ready", s.handleReady).Methods("GET")
	api.HandleFunc("/capabilities", s.handleCapabilities).Methods("GET")
	api.HandleFunc("/patterns", s.handlePatterns).Methods("GET")
	api.HandleFunc("/patterns/{id}", s.handlePattern).Methods("GET")

	s.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "not found", "path": r.URL.Path})
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// handleReady reports whether the server can actually serve work: at least
// one capability registered and at least one pattern loaded.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	capabilities := len(s.registry.Capabilities())
	patterns := len(s.library.IDs())

	status := http.StatusOK
	ready := capabilities > 0 && patterns > 0
	if !ready {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]any{
		"ready":        ready,
		"capabilities": capabilities,
		"patterns":     patterns,
	})
}

func (s *Server) handleCapabilities(w http.ResponseWriter, r *http.Request) {
	type capability struct {
		Name  string `json:"name"`
		Agent string `json:"agent"`
	}
	names := s.registry.Capabilities()
	out := make([]capability, 0, len(names))
	for _, name := range names {
		out = append(out, capability{Name: name, Agent: s.registry.Owner(name)})
	}
	writeJSON(w, http.StatusOK, map[string]any{"capabilities": out, "count": len(out)})
}

func (s *Server) handlePatterns(w http.ResponseWriter, r *http.Request) {
	type summary struct {
		ID          string `json:"id"`
		Description string `json:"description"`
		Steps       int    `json:"steps"`
	}
	ids := s.library.IDs()
	out := make([]summary, 0, len(ids))
	for _, id := range ids {
		p, err := s.library.Get(id)
		if err != nil {
			continue
		}
		out = append(out, summary{ID: p.ID, Description: p.Description, Steps: len(p.Steps)})
	}
	writeJSON(w, http.StatusOK, map[string]any{"patterns": out, "count": len(out)})
}

func (s *Server) handlePattern(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	p, err := s.library.Get(id)
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, p)
}

type requestIDKey struct{}

func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := uuid.NewString()[:8]
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		w.Header().Set("X-Request-ID", requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) requestLoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapper := &responseWrapper{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapper, r)

		requestID, _ := r.Context().Value(requestIDKey{}).(string)
		log.Info().
			Str("request_id", requestID).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", wrapper.statusCode).
			Dur("duration", time.Since(start)).
			Msg("http request")
	})
}

func jsonContentTypeMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}

// Start begins serving and blocks until the server stops.
func (s *Server) Start() error {
	log.Info().Str("addr", s.config.Addr).Msg("starting ops server")
	return s.server.ListenAndServe()
}

// Shutdown drains in-flight requests within the configured timeout.
func (s *Server) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
	defer cancel()
	log.Info().Msg("shutting down ops server")
	return s.server.Shutdown(ctx)
}

type responseWrapper struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWrapper) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
