package service

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/purvik6062/trading-ai-agent-sub001/internal/domain"
	"github.com/purvik6062/trading-ai-agent-sub001/internal/exit"
	"github.com/purvik6062/trading-ai-agent-sub001/internal/metrics"
	"github.com/purvik6062/trading-ai-agent-sub001/internal/position"
)

// MonitorConfig controls the monitoring loop.
type MonitorConfig struct {
	Interval     time.Duration
	FetchTimeout time.Duration
	// Concurrency caps how many tokens are processed at once in a tick.
	Concurrency int
	// PendingTimeout fails positions whose entry never confirmed.
	PendingTimeout time.Duration
	// RetentionInterval spaces store retention sweeps. Zero disables them.
	RetentionInterval time.Duration
}

// MonitorService periodically prices every active position and drives the
// exit engine. Ticks never overlap.
type MonitorService struct {
	registry  *position.Registry
	engine    *exit.Engine
	positions *PositionService
	prices    domain.PriceOracle
	retention *RetentionService
	metrics   *metrics.Metrics
	cfg       MonitorConfig
	now       func() time.Time
	logger    *slog.Logger

	running       atomic.Bool
	lastRetention time.Time
}

// NewMonitorService creates a MonitorService. retention and m may be nil.
func NewMonitorService(
	registry *position.Registry,
	engine *exit.Engine,
	positions *PositionService,
	prices domain.PriceOracle,
	retention *RetentionService,
	m *metrics.Metrics,
	cfg MonitorConfig,
	logger *slog.Logger,
) *MonitorService {
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 10 * time.Second
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 8
	}
	return &MonitorService{
		registry:  registry,
		engine:    engine,
		positions: positions,
		prices:    prices,
		retention: retention,
		metrics:   m,
		cfg:       cfg,
		now:       func() time.Time { return time.Now().UTC() },
		logger:    logger.With(slog.String("component", "monitor")),
	}
}

// Run ticks until ctx is done. Call in a goroutine.
func (m *MonitorService) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()
	m.logger.InfoContext(ctx, "monitor started", slog.Duration("interval", m.cfg.Interval))
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := m.Tick(ctx); err != nil && !errors.Is(err, domain.ErrTickInProgress) {
				m.logger.ErrorContext(ctx, "monitor tick failed", slog.String("error", err.Error()))
			}
		}
	}
}

// Tick runs one monitoring pass. A call made while another pass is running
// returns ErrTickInProgress without doing anything.
func (m *MonitorService) Tick(ctx context.Context) error {
	if !m.running.CompareAndSwap(false, true) {
		m.metrics.TickSkipped()
		return domain.ErrTickInProgress
	}
	defer m.running.Store(false)

	start := time.Now()
	defer func() {
		m.metrics.TickDone(time.Since(start))
		m.metrics.Book(m.registry.OpenCount(), len(m.registry.Groups()))
	}()

	m.housekeep(ctx)

	tokens := activeTokens(m.registry.ListActive())
	if len(tokens) == 0 {
		return nil
	}
	prices := m.fetchPrices(ctx, tokens)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.cfg.Concurrency)
	for _, tokenID := range tokens {
		price, ok := prices[tokenID]
		if !ok || price <= 0 {
			m.metrics.PriceUnavailable()
			m.logger.WarnContext(ctx, "monitor: price unavailable, skipping token",
				slog.String("token_id", tokenID))
			continue
		}
		g.Go(func() error {
			m.processToken(gctx, tokenID, price)
			return nil
		})
	}
	return g.Wait()
}

// housekeep drops terminal positions past their TTL from memory, fails
// stale entries and periodically sweeps the store.
func (m *MonitorService) housekeep(ctx context.Context) {
	now := m.now()
	for _, p := range m.registry.Purge(now) {
		m.engine.Unregister(p.ID)
	}
	if m.cfg.PendingTimeout > 0 {
		if n := m.positions.FailStalePending(ctx, now.Add(-m.cfg.PendingTimeout)); n > 0 {
			m.logger.WarnContext(ctx, "monitor: failed stale pending positions", slog.Int("count", n))
		}
	}
	if m.retention != nil && m.cfg.RetentionInterval > 0 && now.Sub(m.lastRetention) >= m.cfg.RetentionInterval {
		m.lastRetention = now
		if _, err := m.retention.Sweep(ctx); err != nil {
			m.logger.WarnContext(ctx, "monitor: retention sweep failed", slog.String("error", err.Error()))
		}
	}
}

// fetchPrices asks for every token in one batch, falling back to
// per-token lookups when the batch fails so one bad token cannot starve
// the rest.
func (m *MonitorService) fetchPrices(ctx context.Context, tokens []string) map[string]float64 {
	batchCtx, cancel := context.WithTimeout(ctx, m.cfg.FetchTimeout)
	prices, err := m.prices.GetPrices(batchCtx, tokens)
	cancel()
	if err == nil {
		return prices
	}
	m.logger.WarnContext(ctx, "monitor: batch price fetch failed, falling back per token",
		slog.Int("tokens", len(tokens)),
		slog.String("error", err.Error()),
	)

	var (
		mu  sync.Mutex
		out = make(map[string]float64, len(tokens))
		g   errgroup.Group
	)
	g.SetLimit(m.cfg.Concurrency)
	for _, tokenID := range tokens {
		g.Go(func() error {
			tctx, cancel := context.WithTimeout(ctx, m.cfg.FetchTimeout)
			defer cancel()
			price, err := m.prices.GetPrice(tctx, tokenID)
			if err != nil {
				m.logger.DebugContext(ctx, "monitor: price fetch failed",
					slog.String("token_id", tokenID),
					slog.String("error", err.Error()),
				)
				return nil
			}
			mu.Lock()
			out[tokenID] = price
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func (m *MonitorService) processToken(ctx context.Context, tokenID string, price float64) {
	unlock, err := m.positions.LockToken(ctx, tokenID)
	if err != nil {
		m.logger.WarnContext(ctx, "monitor: token lock unavailable, skipping",
			slog.String("token_id", tokenID),
			slog.String("error", err.Error()),
		)
		return
	}
	defer unlock()

	var members []domain.Position
	for _, p := range m.registry.ListByToken(tokenID) {
		if p.Status != domain.PositionStatusActive {
			continue
		}
		if !m.engine.Tracked(p.ID) {
			m.logger.WarnContext(ctx, "monitor: registering untracked active position",
				slog.String("position_id", p.ID))
			m.engine.Register(p.ID)
		}
		members = append(members, p)
	}
	if len(members) == 0 {
		return
	}

	group, ok := m.registry.Group(tokenID)
	if ok && group.ExitStrategy == domain.ExitStrategyGrouped && len(members) > 1 {
		m.processGroup(ctx, group, members, price)
		return
	}
	for _, p := range members {
		next := p.Clone()
		d := m.engine.Evaluate(&next, price)
		m.apply(ctx, next, d, price)
	}
}

func (m *MonitorService) processGroup(ctx context.Context, group domain.PositionGroup, members []domain.Position, price float64) {
	evaluated := make([]*domain.Position, len(members))
	for i := range members {
		c := members[i].Clone()
		evaluated[i] = &c
	}
	gd := m.engine.EvaluateGroup(evaluated, group.CombinedTargets, price)

	if gd.Full {
		m.logger.InfoContext(ctx, "monitor: grouped full exit",
			slog.String("token_id", group.TokenID),
			slog.String("reason", string(gd.Reason)),
			slog.String("triggered_by", gd.TriggeredBy),
			slog.Int("members", len(members)),
		)
		m.registry.SetGroupStatus(group.TokenID, domain.GroupStatusClosing)
		for _, p := range evaluated {
			m.apply(ctx, *p, exit.Decision{
				Kind:        exit.KindFull,
				Percentage:  100,
				TargetIndex: -1,
				Reason:      gd.Reason,
				Level:       gd.Level,
			}, price)
		}
		m.registry.SetGroupStatus(group.TokenID, domain.GroupStatusActive)
		return
	}

	for _, p := range evaluated {
		d := exit.Decision{Kind: exit.KindNone, TargetIndex: -1}
		if pd, ok := gd.Partials[p.ID]; ok {
			d = pd
		} else if id, ok := gd.Individual[p.ID]; ok {
			d = id
		}
		m.apply(ctx, *p, d, price)
	}
}

func (m *MonitorService) apply(ctx context.Context, evaluated domain.Position, d exit.Decision, price float64) {
	err := m.positions.ApplyDecision(ctx, evaluated, d, price)
	if err == nil {
		return
	}
	var execErr *domain.ExecutionError
	if errors.As(err, &execErr) {
		m.logger.WarnContext(ctx, "monitor: exit execution failed, retrying next tick",
			slog.String("position_id", evaluated.ID),
			slog.String("decision", string(d.Kind)),
			slog.String("reason", string(d.Reason)),
			slog.String("error", err.Error()),
		)
		return
	}
	m.logger.ErrorContext(ctx, "monitor: apply decision failed",
		slog.String("position_id", evaluated.ID),
		slog.String("decision", string(d.Kind)),
		slog.String("error", err.Error()),
	)
}

func activeTokens(open []domain.Position) []string {
	seen := make(map[string]struct{})
	var tokens []string
	for _, p := range open {
		if p.Status != domain.PositionStatusActive {
			continue
		}
		if _, ok := seen[p.Signal.TokenID]; ok {
			continue
		}
		seen[p.Signal.TokenID] = struct{}{}
		tokens = append(tokens, p.Signal.TokenID)
	}
	sort.Strings(tokens)
	return tokens
}
