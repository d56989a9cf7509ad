// Package server provides the HTTP API fronting the Claude CLI.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/clauderelay/clauderelay/internal/claude"
	"github.com/clauderelay/clauderelay/internal/event"
	"github.com/clauderelay/clauderelay/internal/logging"
	"github.com/clauderelay/clauderelay/internal/recovery"
	"github.com/clauderelay/clauderelay/internal/store"
	"github.com/clauderelay/clauderelay/internal/tracker"
)

// Config holds server configuration.
type Config struct {
	Port         int
	EnableCORS   bool
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	// MaxRetries feeds the recovery context built for failed chats.
	MaxRetries int
}

// DefaultConfig returns default server configuration.
func DefaultConfig() *Config {
	return &Config{
		Port:        8080,
		EnableCORS:  true,
		ReadTimeout: 30 * time.Second,
		// No write timeout: SSE connections stay open indefinitely.
		WriteTimeout: 0,
		MaxRetries:   tracker.MaxRetries,
	}
}

// Server is the HTTP server. It orchestrates the tracker, the store,
// the recovery engine and the CLI invoker but owns no session state of
// its own.
type Server struct {
	config   *Config
	router   *chi.Mux
	httpSrv  *http.Server
	tracker  *tracker.Tracker
	store    *store.Store
	recovery *recovery.Engine
	invoker  claude.Invoker
	bus      *event.Bus
	log      zerolog.Logger
}

// New creates a Server wired to the given collaborators.
func New(cfg *Config, tr *tracker.Tracker, st *store.Store, eng *recovery.Engine, inv claude.Invoker, bus *event.Bus) *Server {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = tracker.MaxRetries
	}

	s := &Server{
		config:   cfg,
		router:   chi.NewRouter(),
		tracker:  tr,
		store:    st,
		recovery: eng,
		invoker:  inv,
		bus:      bus,
		log:      logging.Component("server"),
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

// setupMiddleware configures middleware for the server.
func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Recoverer)

	if s.config.EnableCORS {
		s.router.Use(cors.Handler(cors.Options{
			AllowedOrigins:   []string{"*"},
			AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
			ExposedHeaders:   []string{"X-Request-ID"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	s.httpSrv = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	s.log.Info().Int("port", s.config.Port).Msg("http server listening")
	return s.httpSrv.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

// Router returns the chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}
