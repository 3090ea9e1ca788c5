package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/purvik6062/trading-ai-agent-sub001/internal/config"
	"github.com/purvik6062/trading-ai-agent-sub001/internal/domain"
	"github.com/purvik6062/trading-ai-agent-sub001/internal/executor"
	"github.com/purvik6062/trading-ai-agent-sub001/internal/exit"
	"github.com/purvik6062/trading-ai-agent-sub001/internal/feed"
	"github.com/purvik6062/trading-ai-agent-sub001/internal/position"
	"github.com/purvik6062/trading-ai-agent-sub001/internal/server"
	"github.com/purvik6062/trading-ai-agent-sub001/internal/server/handler"
	"github.com/purvik6062/trading-ai-agent-sub001/internal/server/ws"
	"github.com/purvik6062/trading-ai-agent-sub001/internal/service"
)

// core holds the lifecycle services shared by every mode.
type core struct {
	registry  *position.Registry
	engine    *exit.Engine
	positions *service.PositionService
	recovery  *service.RecoveryService
	retention *service.RetentionService
	monitor   *service.MonitorService
}

// newCore builds the registry, engine and services on top of deps. trader
// executes swaps.
func newCore(cfg *config.Config, deps *Dependencies, trader domain.TradeExecutor, logger *slog.Logger) *core {
	registry := position.NewRegistry(position.Options{
		TrailPercent: cfg.Exit.TrailPercent,
		ClosedTTL:    cfg.Monitor.ClosedTTL.Duration,
		MaxOpen:      cfg.Admission.MaxConcurrentPositions,
	})
	engine := exit.NewEngine(exit.Config{
		DefaultPercentages: cfg.Exit.PartialExitPercentages,
		DustThreshold:      cfg.Exit.DustThreshold,
		TokenDust:          cfg.Exit.DustThresholds,
	})
	admission := service.NewAdmissionService(registry, service.AdmissionConfig{
		MaxConcurrentPositions: cfg.Admission.MaxConcurrentPositions,
		MaxPositionsPerToken:   cfg.Admission.MaxPositionsPerToken,
		MaxTotalExposure:       cfg.Admission.MaxTotalExposure,
		MaxTokenExposure:       cfg.Admission.MaxTokenExposure,
		ConflictPolicy:         domain.ConflictPolicy(cfg.Admission.ConflictPolicy),
		MergePolicy:            domain.MergePolicy(cfg.Admission.MergePolicy),
		MergePriceTolerance:    cfg.Admission.MergePriceTolerance,
	}, logger)

	positions := service.NewPositionService(service.PositionDeps{
		Registry:  registry,
		Admission: admission,
		Engine:    engine,
		Executor:  trader,
		Store:     deps.PositionStore,
		Prices:    deps.PriceCache,
		Bus:       deps.SignalBus,
		Audit:     deps.AuditStore,
		Notifier:  deps.Notifier,
		Locks:     deps.LockManager,
		Metrics:   deps.Metrics,
	}, service.ExecutionConfig{
		BaseToken:       cfg.Executor.BaseToken,
		EntryPercentage: cfg.Executor.EntryPercentage,
		MaxSlippage:     cfg.Executor.MaxSlippage,
		SwapTimeout:     cfg.Executor.SwapTimeout.Duration,
		LockTTL:         cfg.Executor.LockTTL.Duration,
		LockWait:        cfg.Executor.LockWait.Duration,
	}, logger)

	// Without an archive, only the ephemeral memory store may drop rows.
	var retention *service.RetentionService
	if cfg.Monitor.StoreRetention.Duration > 0 && (deps.Archiver != nil || cfg.Store.Driver == "memory") {
		retention = service.NewRetentionService(
			deps.PositionStore, deps.Archiver,
			cfg.Monitor.StoreRetention.Duration, cfg.Monitor.RetentionBatch, logger,
		)
	}

	monitor := service.NewMonitorService(registry, engine, positions, deps.PriceCache, retention, deps.Metrics,
		service.MonitorConfig{
			Interval:          cfg.Monitor.Interval.Duration,
			FetchTimeout:      cfg.Monitor.FetchTimeout.Duration,
			Concurrency:       cfg.Monitor.Concurrency,
			PendingTimeout:    cfg.Monitor.PendingTimeout.Duration,
			RetentionInterval: cfg.Monitor.RetentionInterval.Duration,
		}, logger)

	return &core{
		registry:  registry,
		engine:    engine,
		positions: positions,
		recovery:  service.NewRecoveryService(deps.PositionStore, registry, engine, deps.Metrics, logger),
		retention: retention,
		monitor:   monitor,
	}
}

func (a *App) trader(deps *Dependencies) domain.TradeExecutor {
	return executor.NewDryRunExecutor(deps.PriceCache, a.cfg.Executor.BaseToken, a.cfg.Executor.DryRunSlippage, a.logger)
}

// RunMode recovers the book, then runs the monitor, signal intake, feeds and
// the operations server until ctx is cancelled.
func (a *App) RunMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting run mode")

	c := newCore(a.cfg, deps, a.trader(deps), a.logger)
	if _, err := c.recovery.Recover(ctx); err != nil {
		return fmt.Errorf("run mode: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)

	signalCh := make(chan domain.SignalRequest, a.cfg.Executor.QueueSize)
	intake := executor.NewExecutor(signalCh, c.positions, a.cfg.Executor.Workers, a.logger)
	intake.SetDedupTTL(a.cfg.Executor.DedupTTL.Duration)
	intake.SetRateLimit(deps.RateLimiter, a.cfg.Executor.RateLimitPerMinute)
	g.Go(func() error {
		return intake.Run(ctx)
	})

	if a.cfg.Feed.BusEnabled {
		busFeed := feed.NewBusSignalFeed(deps.SignalBus, signalCh, a.logger)
		g.Go(func() error {
			return busFeed.Run(ctx)
		})
	}
	if a.cfg.Feed.WSURL != "" {
		header := http.Header{}
		if a.cfg.Feed.WSToken != "" {
			header.Set("Authorization", "Bearer "+a.cfg.Feed.WSToken)
		}
		wsFeed := feed.NewWSSignalFeed(a.cfg.Feed.WSURL, header, signalCh, a.logger)
		g.Go(func() error {
			return wsFeed.Run(ctx)
		})
	}

	a.startMonitoring(ctx, g, deps, c)
	return g.Wait()
}

// MonitorMode recovers the book and manages exits without accepting new
// signals.
func (a *App) MonitorMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting monitor mode")

	c := newCore(a.cfg, deps, a.trader(deps), a.logger)
	if _, err := c.recovery.Recover(ctx); err != nil {
		return fmt.Errorf("monitor mode: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)
	a.startMonitoring(ctx, g, deps, c)
	return g.Wait()
}

// RecoverMode runs recovery once, logs the result and exits.
func (a *App) RecoverMode(ctx context.Context, deps *Dependencies) error {
	c := newCore(a.cfg, deps, a.trader(deps), a.logger)
	res, err := c.recovery.Recover(ctx)
	if err != nil {
		return fmt.Errorf("recover mode: %w", err)
	}
	for _, e := range res.Errors {
		a.logger.WarnContext(ctx, "recover mode: record failed", slog.String("error", e.Error()))
	}
	a.logger.InfoContext(ctx, "recover mode finished",
		slog.Int("recovered", res.TotalRecovered),
		slog.Int("active", res.ActiveCount),
		slog.Int("pending", res.PendingCount),
		slog.Int64("expired", res.ExpiredCount),
		slog.Int("failures", res.Failures),
	)
	return nil
}

// ArchiveMode runs one retention sweep and exits.
func (a *App) ArchiveMode(ctx context.Context, deps *Dependencies) error {
	c := newCore(a.cfg, deps, a.trader(deps), a.logger)
	if c.retention == nil {
		return fmt.Errorf("archive mode: retention disabled (store_retention=%s, archive=%t)",
			a.cfg.Monitor.StoreRetention.Duration, deps.Archiver != nil)
	}
	n, err := c.retention.Sweep(ctx)
	if err != nil {
		return fmt.Errorf("archive mode: %w", err)
	}
	a.logger.InfoContext(ctx, "archive mode finished", slog.Int64("archived", n))
	return nil
}

// startMonitoring adds the monitor loop, the price feeder and the operations
// server to g.
func (a *App) startMonitoring(ctx context.Context, g *errgroup.Group, deps *Dependencies, c *core) {
	g.Go(func() error {
		return c.monitor.Run(ctx)
	})

	if a.cfg.Feed.PricesEnabled {
		prices := feed.NewPriceFeeder(deps.SignalBus, deps.PriceCache, a.logger)
		g.Go(func() error {
			return prices.Run(ctx)
		})
	}

	if a.cfg.Server.Addr == "" {
		return
	}
	hub := ws.NewHub(deps.SignalBus, service.EventsChannel, service.EventsStream, a.logger)
	g.Go(func() error {
		return hub.Run(ctx)
	})
	handlers := server.Handlers{
		Health:    handler.NewHealthHandler(c.registry, a.cfg.Mode),
		Metrics:   promhttp.HandlerFor(deps.Registry, promhttp.HandlerOpts{}),
		Positions: handler.NewPositionHandler(c.registry, c.positions, a.logger),
		Audit:     handler.NewAuditHandler(deps.AuditStore, a.logger),
		Events:    hub,
	}
	if browser, ok := deps.Archiver.(handler.ArchiveBrowser); ok {
		handlers.Archive = handler.NewArchiveHandler(browser, a.logger)
	}
	srv := server.NewServer(server.Config{
		Addr:               a.cfg.Server.Addr,
		APIKey:             a.cfg.Server.APIKey,
		RateLimitPerMinute: a.cfg.Server.RateLimitPerMinute,
	}, handlers, deps.RateLimiter, a.logger)
	g.Go(func() error {
		return srv.Run(ctx)
	})
}
