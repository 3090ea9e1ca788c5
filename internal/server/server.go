// Package server exposes the operations HTTP surface: health, Prometheus
// metrics, book inspection, the audit log, archived batches, manual close
// and the event stream.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/purvik6062/trading-ai-agent-sub001/internal/domain"
	"github.com/purvik6062/trading-ai-agent-sub001/internal/server/handler"
	"github.com/purvik6062/trading-ai-agent-sub001/internal/server/middleware"
	"github.com/purvik6062/trading-ai-agent-sub001/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Addr   string
	APIKey string // if empty, authentication is disabled
	// RateLimitPerMinute caps /api requests per client IP. Zero disables it.
	RateLimitPerMinute int
}

// Handlers aggregates the HTTP handlers the server registers. Nil handlers
// leave their routes unregistered.
type Handlers struct {
	Health    *handler.HealthHandler
	Metrics   http.Handler
	Positions *handler.PositionHandler
	Audit     *handler.AuditHandler
	Archive   *handler.ArchiveHandler
	Events    *ws.Hub
}

// Server is the operations HTTP server.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer registers every route. Health and metrics stay outside auth so
// health checks and scrapers need no key.
func NewServer(cfg Config, handlers Handlers, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	logger = logger.With(slog.String("component", "http"))

	api := http.NewServeMux()
	if handlers.Positions != nil {
		api.HandleFunc("GET /api/positions", handlers.Positions.ListPositions)
		api.HandleFunc("GET /api/positions/{id}", handlers.Positions.GetPosition)
		api.HandleFunc("POST /api/positions/{id}/close", handlers.Positions.ClosePosition)
		api.HandleFunc("GET /api/groups", handlers.Positions.ListGroups)
	}
	if handlers.Audit != nil {
		api.HandleFunc("GET /api/audit", handlers.Audit.ListEntries)
	}
	if handlers.Archive != nil {
		api.HandleFunc("GET /api/archive", handlers.Archive.ListDay)
		api.HandleFunc("GET /api/archive/records", handlers.Archive.LoadBatch)
	}
	if handlers.Events != nil {
		api.HandleFunc("GET /ws/events", handlers.Events.HandleWS)
	}

	var protected http.Handler = api
	protected = middleware.Auth(cfg.APIKey)(protected)
	protected = middleware.RateLimit(limiter, cfg.RateLimitPerMinute, time.Minute)(protected)

	mux := http.NewServeMux()
	if handlers.Health != nil {
		mux.HandleFunc("GET /healthz", handlers.Health.HealthCheck)
	}
	if handlers.Metrics != nil {
		mux.Handle("GET /metrics", handlers.Metrics)
	}
	mux.Handle("/api/", protected)
	mux.Handle("/ws/", protected)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           middleware.Logging(logger)(mux),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return &Server{
		httpServer: srv,
		logger:     logger,
	}
}

// Handler returns the root handler, for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.InfoContext(ctx, "server: listening", slog.String("addr", s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("server: listen: %w", err)
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(shutCtx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return <-errCh
}
