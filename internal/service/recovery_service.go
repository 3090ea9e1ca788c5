package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/purvik6062/trading-ai-agent-sub001/internal/domain"
	"github.com/purvik6062/trading-ai-agent-sub001/internal/exit"
	"github.com/purvik6062/trading-ai-agent-sub001/internal/metrics"
	"github.com/purvik6062/trading-ai-agent-sub001/internal/position"
)

// RecoveryResult summarises a recovery run.
type RecoveryResult struct {
	TotalRecovered int
	ActiveCount    int
	PendingCount   int
	ExpiredCount   int64
	// Skipped counts records already present in the registry.
	Skipped  int
	Failures int
	Errors   []error
}

// RecoveryService rebuilds the in-memory book from the store at start-up.
type RecoveryService struct {
	store    domain.PositionStore
	registry *position.Registry
	engine   *exit.Engine
	metrics  *metrics.Metrics
	now      func() time.Time
	logger   *slog.Logger
}

// NewRecoveryService creates a RecoveryService.
func NewRecoveryService(
	store domain.PositionStore,
	registry *position.Registry,
	engine *exit.Engine,
	m *metrics.Metrics,
	logger *slog.Logger,
) *RecoveryService {
	return &RecoveryService{
		store:    store,
		registry: registry,
		engine:   engine,
		metrics:  m,
		now:      func() time.Time { return time.Now().UTC() },
		logger:   logger.With(slog.String("component", "recovery")),
	}
}

// Recover expires overdue records, loads the remaining open ones into the
// registry with their exit state intact and registers active positions with
// the engine. A record that fails to decode is reported in the result and
// does not stop the others. The returned error is non-nil only when the
// store itself could not be queried.
func (s *RecoveryService) Recover(ctx context.Context) (RecoveryResult, error) {
	var res RecoveryResult

	expired, err := s.store.MarkExpiredBeforeNow(ctx, s.now())
	if err != nil {
		return res, fmt.Errorf("recovery: mark expired: %w", err)
	}
	res.ExpiredCount = expired

	records, err := s.store.QueryActiveOrPending(ctx)
	if err != nil {
		return res, fmt.Errorf("recovery: query open positions: %w", err)
	}

	for _, rec := range records {
		pos, err := rec.Decode()
		if err != nil {
			s.fail(ctx, &res, rec.ID, err)
			continue
		}
		if !pos.Status.Open() {
			continue
		}
		if err := s.registry.Restore(pos); err != nil {
			if errors.Is(err, domain.ErrAlreadyExists) {
				res.Skipped++
				continue
			}
			s.fail(ctx, &res, rec.ID, err)
			continue
		}

		res.TotalRecovered++
		switch pos.Status {
		case domain.PositionStatusActive:
			res.ActiveCount++
			s.engine.Register(pos.ID)
		case domain.PositionStatusPending:
			res.PendingCount++
		}
	}

	s.metrics.Recovered("active", res.ActiveCount)
	s.metrics.Recovered("pending", res.PendingCount)
	s.metrics.Recovered("expired", int(res.ExpiredCount))
	s.metrics.Recovered("failed", res.Failures)
	s.metrics.Book(s.registry.OpenCount(), len(s.registry.Groups()))

	s.logger.InfoContext(ctx, "recovery complete",
		slog.Int("recovered", res.TotalRecovered),
		slog.Int("active", res.ActiveCount),
		slog.Int("pending", res.PendingCount),
		slog.Int64("expired", res.ExpiredCount),
		slog.Int("skipped", res.Skipped),
		slog.Int("failures", res.Failures),
		slog.Int("groups", len(s.registry.Groups())),
	)
	return res, nil
}

func (s *RecoveryService) fail(ctx context.Context, res *RecoveryResult, id string, err error) {
	res.Failures++
	res.Errors = append(res.Errors, &domain.RecoveryError{RecordID: id, Err: err})
	s.logger.WarnContext(ctx, "recovery: record skipped",
		slog.String("position_id", id),
		slog.String("error", err.Error()),
	)
}
