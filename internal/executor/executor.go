// Package executor turns inbound signal requests into lifecycle operations
// and provides swap executors.
package executor

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/purvik6062/trading-ai-agent-sub001/internal/domain"
)

// SignalAdder admits a signal request. It is implemented by
// service.PositionService.
type SignalAdder interface {
	AddSignal(ctx context.Context, req domain.SignalRequest) domain.Outcome
}

// Executor reads signal requests from a channel, drops replays and signals
// whose exit deadline already passed, and hands the rest to a SignalAdder.
// Several workers run concurrently; the adder serialises per token.
type Executor struct {
	signalCh <-chan domain.SignalRequest
	adder    SignalAdder
	dedup    *Dedup
	workers  int
	now      func() time.Time
	logger   *slog.Logger

	limiter   domain.RateLimiter
	perMinute int

	onOutcome       func(domain.SignalRequest, domain.Outcome)
	cleanupInterval time.Duration
}

// NewExecutor creates an Executor with the given number of workers.
func NewExecutor(signalCh <-chan domain.SignalRequest, adder SignalAdder, workers int, logger *slog.Logger) *Executor {
	if workers <= 0 {
		workers = 4
	}
	return &Executor{
		signalCh:        signalCh,
		adder:           adder,
		dedup:           NewDedup(10 * time.Minute),
		workers:         workers,
		now:             func() time.Time { return time.Now().UTC() },
		logger:          logger.With(slog.String("component", "executor")),
		cleanupInterval: time.Minute,
	}
}

// OnOutcome registers a callback invoked after every processed request.
// Must be called before Run.
func (e *Executor) OnOutcome(fn func(domain.SignalRequest, domain.Outcome)) {
	e.onOutcome = fn
}

// SetDedupTTL replaces the dedup window. Must be called before Run.
func (e *Executor) SetDedupTTL(ttl time.Duration) {
	e.dedup = NewDedup(ttl)
}

// SetRateLimit caps how many signals per minute each user may submit.
// Must be called before Run.
func (e *Executor) SetRateLimit(limiter domain.RateLimiter, perMinute int) {
	e.limiter = limiter
	e.perMinute = perMinute
}

// Run processes requests until ctx is cancelled, then drains whatever is
// already buffered in the channel and returns.
func (e *Executor) Run(ctx context.Context) error {
	e.logger.Info("executor started", slog.Int("workers", e.workers))
	defer e.logger.Info("executor stopped")

	g, gctx := errgroup.WithContext(ctx)
	for range e.workers {
		g.Go(func() error {
			return e.work(gctx)
		})
	}
	g.Go(func() error {
		ticker := time.NewTicker(e.cleanupInterval)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				e.dedup.Cleanup()
			}
		}
	})
	err := g.Wait()
	e.drain()
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

func (e *Executor) work(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case req, ok := <-e.signalCh:
			if !ok {
				return nil
			}
			e.process(ctx, req)
		}
	}
}

// process runs one request through dedup, expiry and admission.
func (e *Executor) process(ctx context.Context, req domain.SignalRequest) {
	log := e.logger.With(
		slog.String("signal_id", req.Signal.ID),
		slog.String("token_id", req.Signal.TokenID),
		slog.String("direction", string(req.Signal.Direction)),
		slog.String("username", req.Username),
	)

	// 1. Deduplication, per owner.
	if req.Signal.ID != "" && e.dedup.Seen(req.Username+":"+req.Signal.ID) {
		log.Debug("signal deduplicated, skipping")
		return
	}

	// 2. Expiry check.
	if !req.Signal.MaxExitTime.IsZero() && !e.now().Before(req.Signal.MaxExitTime) {
		log.Warn("signal past its max exit time, skipping",
			slog.Time("max_exit_time", req.Signal.MaxExitTime),
		)
		return
	}

	// 3. Per-user rate limit. Limiter errors let the signal through.
	if e.limiter != nil && e.perMinute > 0 {
		ok, err := e.limiter.Allow(ctx, "signals:"+req.Username, e.perMinute, time.Minute)
		switch {
		case err != nil:
			log.Warn("rate limiter unavailable", slog.String("error", err.Error()))
		case !ok:
			log.Warn("signal rate limited", slog.Int("per_minute", e.perMinute))
			e.report(req, domain.Outcome{Message: "rate limited", Decision: domain.DecisionCancel})
			return
		}
	}

	// 4. Admission and entry.
	out := e.adder.AddSignal(ctx, req)
	if out.Success {
		log.Info("signal admitted",
			slog.String("position_id", out.PositionID),
			slog.String("decision", string(out.Decision)),
		)
	} else {
		log.Warn("signal not admitted",
			slog.String("decision", string(out.Decision)),
			slog.String("message", out.Message),
		)
	}
	e.report(req, out)
}

func (e *Executor) report(req domain.SignalRequest, out domain.Outcome) {
	if e.onOutcome != nil {
		e.onOutcome(req, out)
	}
}

// drain processes requests already buffered after shutdown with a short
// per-request deadline so that accepted signals are not silently dropped.
func (e *Executor) drain() {
	for {
		select {
		case req, ok := <-e.signalCh:
			if !ok {
				return
			}
			e.logger.Warn("draining signal after shutdown",
				slog.String("signal_id", req.Signal.ID),
			)
			drainCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			e.process(drainCtx, req)
			cancel()
		default:
			return
		}
	}
}
