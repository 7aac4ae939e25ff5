package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"github.com/bl4ck0w1/profilynx/internal/analysis"
	"github.com/bl4ck0w1/profilynx/internal/orchestration"
	"github.com/bl4ck0w1/profilynx/internal/scanning"
	"github.com/bl4ck0w1/profilynx/pkg/models"
	"github.com/bl4ck0w1/profilynx/pkg/utils"
)

// Server exposes scans, tasks and batch jobs over HTTP. Synchronous scans go
// straight through the coordinator; everything queued goes through the
// orchestrator.
type Server struct {
	cfg          models.APIConfig
	coordinator  *scanning.Coordinator
	analyzer     *analysis.Analyzer
	orchestrator *orchestration.Orchestrator
	metrics      *utils.MetricsCollector
	logger       *logrus.Logger
	router       *chi.Mux
	http         *http.Server
}

func NewServer(cfg models.APIConfig, coordinator *scanning.Coordinator, analyzer *analysis.Analyzer, orch *orchestration.Orchestrator, metrics *utils.MetricsCollector, logger *logrus.Logger) *Server {
	if logger == nil {
		logger = logrus.New()
	}
	if metrics == nil {
		metrics = utils.DefaultMetricsCollector()
	}
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":8087"
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 15 * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 60 * time.Second
	}

	s := &Server{
		cfg:          cfg,
		coordinator:  coordinator,
		analyzer:     analyzer,
		orchestrator: orch,
		metrics:      metrics,
		logger:       logger,
		router:       chi.NewRouter(),
	}
	s.routes()

	s.http = &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return s
}

func (s *Server) routes() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.requestLogger)
	s.router.Use(s.recoverer)

	s.router.Get("/healthz", s.handleHealth)
	s.router.Handle("/metrics", s.metrics.Handler())

	s.router.Route("/api/v1", func(r chi.Router) {
		if s.cfg.AuthEnabled {
			r.Use(s.authenticate)
		}
		r.Post("/scan", s.handleScan)
		r.Get("/platforms", s.handlePlatforms)
		r.Get("/stats", s.handleStats)
		r.Post("/tasks", s.handleCreateTask)
		r.Get("/tasks/{id}", s.handleGetTask)
		r.Delete("/tasks/{id}", s.handleCancelTask)
		r.Post("/batches", s.handleCreateBatch)
		r.Get("/batches/{id}", s.handleGetBatch)
	})
}

// Router returns the assembled handler, mainly for tests and embedding.
func (s *Server) Router() http.Handler {
	return s.router
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.WithField("addr", s.http.Addr).Info("API server listening")
		if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.http.Shutdown(shutdownCtx)
	case err := <-errCh:
		return fmt.Errorf("api server error: %w", err)
	}
}

func (s *Server) GetStats() map[string]interface{} {
	return map[string]interface{}{
		"listen_addr":   s.cfg.ListenAddr,
		"auth_enabled":  s.cfg.AuthEnabled,
		"read_timeout":  s.cfg.ReadTimeout.String(),
		"write_timeout": s.cfg.WriteTimeout.String(),
	}
}

func respondJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
