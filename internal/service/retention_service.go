package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/purvik6062/trading-ai-agent-sub001/internal/domain"
)

// RetentionService moves long-terminal positions out of the primary store.
// Rows are archived first and deleted by id only after the archive write
// succeeded.
type RetentionService struct {
	store     domain.PositionStore
	archiver  domain.Archiver
	retention time.Duration
	batchSize int
	now       func() time.Time
	logger    *slog.Logger
}

// NewRetentionService creates a RetentionService. A nil archiver deletes
// without archiving.
func NewRetentionService(store domain.PositionStore, archiver domain.Archiver, retention time.Duration, batchSize int, logger *slog.Logger) *RetentionService {
	if batchSize <= 0 {
		batchSize = 500
	}
	return &RetentionService{
		store:     store,
		archiver:  archiver,
		retention: retention,
		batchSize: batchSize,
		now:       func() time.Time { return time.Now().UTC() },
		logger:    logger.With(slog.String("component", "retention")),
	}
}

// Sweep archives and deletes batches until no row older than the
// retention window is left, and returns how many rows were removed.
func (s *RetentionService) Sweep(ctx context.Context) (int64, error) {
	cutoff := s.now().Add(-s.retention)
	var total int64
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		recs, err := s.store.ListTerminalBefore(ctx, cutoff, s.batchSize)
		if err != nil {
			return total, fmt.Errorf("retention: list terminal: %w", err)
		}
		if len(recs) == 0 {
			break
		}

		path := ""
		if s.archiver != nil {
			path, err = s.archiver.ArchiveRecords(ctx, recs)
			if err != nil {
				return total, fmt.Errorf("retention: archive %d records: %w", len(recs), err)
			}
		}

		ids := make([]string, len(recs))
		for i, r := range recs {
			ids[i] = r.ID
		}
		n, err := s.store.DeleteTerminal(ctx, ids)
		if err != nil {
			return total, fmt.Errorf("retention: delete archived: %w", err)
		}
		total += n
		s.logger.InfoContext(ctx, "retention: archived terminal positions",
			slog.Int("count", len(recs)),
			slog.Int64("deleted", n),
			slog.String("path", path),
		)

		if len(recs) < s.batchSize || n == 0 {
			break
		}
	}
	return total, nil
}
