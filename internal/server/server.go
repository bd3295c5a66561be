// Package server exposes the access gate over HTTP: a gating middleware
// for mutating dashboard requests, an explicit check endpoint, and a
// read-mostly admin API. One Server owns the gate, the durable store
// writer, and the decision audit log.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/soloport/devicegate/internal/classifier"
	"github.com/soloport/devicegate/internal/decisionlog"
	"github.com/soloport/devicegate/internal/gate"
	"github.com/soloport/devicegate/internal/store"
)

// Config holds HTTP server configuration.
type Config struct {
	Addr           string
	ClassifierPath string
	AuditLogPath   string
	AdminOrigin    string
	RingSize       int
	Store          store.Config
	Logger         *slog.Logger
}

// Server wires the gate into an HTTP surface.
type Server struct {
	cfg     Config
	gate    *gate.Gate
	log     *decisionlog.Log
	backend store.Backend
	writer  *store.Writer
	logger  *slog.Logger

	httpServer *http.Server
}

// New loads the classifier config, opens the audit log and the durable
// backend, warms the gate from the backend, and returns a server ready
// to Serve. Store open failure is a warning, not a startup error: the
// gate runs in-memory-authoritative either way.
func New(cfg Config) (*Server, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	clsCfg, configHash, err := classifier.LoadWithHash(cfg.ClassifierPath)
	if err != nil {
		return nil, fmt.Errorf("server: load classifier config: %w", err)
	}

	var auditLog *decisionlog.Log
	if cfg.AuditLogPath != "" {
		auditLog, err = decisionlog.Open(cfg.AuditLogPath)
		if err != nil {
			return nil, fmt.Errorf("server: open audit log: %w", err)
		}
	}

	backend, err := store.Open(cfg.Store)
	if err != nil {
		logger.Warn("durable store unavailable, running in-memory only", "error", err)
		backend = nil
	}
	writer := store.NewWriter(backend, logger)

	g := gate.New(gate.Config{
		Classifier: classifier.New(clsCfg),
		ConfigHash: configHash,
		Writer:     writer,
		Log:        auditLog,
		RingSize:   cfg.RingSize,
		Logger:     logger,
	})
	if backend != nil {
		g.WarmFrom(context.Background(), backend)
	}

	s := &Server{
		cfg:     cfg,
		gate:    g,
		log:     auditLog,
		backend: backend,
		writer:  writer,
		logger:  logger,
	}
	s.httpServer = &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.Router(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s, nil
}

// Gate returns the underlying gate, for the CLI and tests.
func (s *Server) Gate() *gate.Gate { return s.gate }

// Router builds the chi handler tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(30 * time.Second))

	if s.cfg.AdminOrigin != "" {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   []string{s.cfg.AdminOrigin},
			AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Content-Type"},
			AllowCredentials: false,
			MaxAge:           300,
		}))
	}

	r.Get("/health", s.handleHealth)
	r.Post("/api/gate/check", s.handleCheck)

	r.Route("/admin", func(r chi.Router) {
		r.Get("/blocks", s.handleListBlocks)
		r.Get("/blocks/{fingerprint}", s.handleGetBlock)
		r.Delete("/blocks/{fingerprint}", s.handleUnblock)
		r.Get("/owner", s.handleOwner)
		r.Get("/decisions", s.handleDecisions)
	})

	return r
}

// Serve runs the HTTP server until ctx is cancelled, then shuts down
// gracefully and flushes the store writer.
func (s *Server) Serve(ctx context.Context) error {
	errc := make(chan error, 1)
	go func() {
		s.logger.Info("devicegate listening", "addr", s.cfg.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errc <- err
		}
	}()

	select {
	case err := <-errc:
		return fmt.Errorf("server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return s.Close()
}

// ReloadClassifier re-reads the classifier config file and swaps the
// rule table in place. Called by the hot-reloader on file change.
func (s *Server) ReloadClassifier() error {
	cfg, hash, err := classifier.LoadWithHash(s.cfg.ClassifierPath)
	if err != nil {
		return fmt.Errorf("server: reload classifier config: %w", err)
	}
	s.gate.Swap(classifier.New(cfg), hash)
	return nil
}

// Close flushes the async store writer and closes the audit log.
func (s *Server) Close() error {
	var firstErr error
	if s.writer != nil {
		if err := s.writer.Close(); err != nil {
			firstErr = err
		}
	}
	if s.log != nil {
		if err := s.log.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
