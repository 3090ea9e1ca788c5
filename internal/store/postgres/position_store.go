package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/purvik6062/trading-ai-agent-sub001/internal/domain"
)

// PositionStore implements domain.PositionStore. Each row carries the
// columns needed for filtering plus the full position as a JSONB document.
type PositionStore struct {
	pool *pgxpool.Pool
}

// NewPositionStore creates a PositionStore backed by pool.
func NewPositionStore(pool *pgxpool.Pool) *PositionStore {
	return &PositionStore{pool: pool}
}

const recordSelectCols = `id, username, vault_address, status, exit_tx_hash, document, updated_at`

func scanRecords(rows pgx.Rows) ([]domain.PositionRecord, error) {
	var recs []domain.PositionRecord
	for rows.Next() {
		var r domain.PositionRecord
		var status string
		if err := rows.Scan(
			&r.ID, &r.Username, &r.VaultAddress, &status,
			&r.ExitTxHash, &r.Document, &r.UpdatedAt,
		); err != nil {
			return nil, err
		}
		r.Status = domain.PositionStatus(status)
		recs = append(recs, r)
	}
	return recs, rows.Err()
}

// Upsert inserts the position or replaces every mutable column.
func (s *PositionStore) Upsert(ctx context.Context, pos domain.Position, owner, vault string) error {
	rec, err := domain.EncodePositionRecord(pos, owner, vault)
	if err != nil {
		return fmt.Errorf("postgres: upsert position %s: %w", pos.ID, err)
	}

	const query = `
		INSERT INTO positions (
			id, token_id, direction, status, max_exit_time,
			username, vault_address, remaining_amount, exit_tx_hash,
			document, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE SET
			status           = EXCLUDED.status,
			max_exit_time    = EXCLUDED.max_exit_time,
			username         = EXCLUDED.username,
			vault_address    = EXCLUDED.vault_address,
			remaining_amount = EXCLUDED.remaining_amount,
			exit_tx_hash     = EXCLUDED.exit_tx_hash,
			document         = EXCLUDED.document,
			updated_at       = EXCLUDED.updated_at`

	updated := pos.UpdatedAt
	if updated.IsZero() {
		updated = time.Now().UTC()
	}
	_, err = s.pool.Exec(ctx, query,
		pos.ID, pos.Signal.TokenID, string(pos.Signal.Direction), string(pos.Status),
		pos.Signal.MaxExitTime, owner, vault, pos.RemainingAmount, pos.ExitTxHash,
		rec.Document, pos.CreatedAt, updated,
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert position %s: %w", pos.ID, err)
	}
	return nil
}

// QueryActiveOrPending returns every open record, oldest update first.
func (s *PositionStore) QueryActiveOrPending(ctx context.Context) ([]domain.PositionRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+recordSelectCols+` FROM positions
		 WHERE status IN ('pending', 'active')
		 ORDER BY updated_at, id`)
	if err != nil {
		return nil, fmt.Errorf("postgres: query open positions: %w", err)
	}
	defer rows.Close()

	recs, err := scanRecords(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan open positions: %w", err)
	}
	return recs, nil
}

// UpdateStatus sets the status column, and the exit hash when given.
func (s *PositionStore) UpdateStatus(ctx context.Context, id string, status domain.PositionStatus, exitTxHash string) error {
	const query = `
		UPDATE positions SET
			status       = $2,
			exit_tx_hash = CASE WHEN $3 = '' THEN exit_tx_hash ELSE $3 END,
			updated_at   = NOW()
		WHERE id = $1`

	tag, err := s.pool.Exec(ctx, query, id, string(status), exitTxHash)
	if err != nil {
		return fmt.Errorf("postgres: update position status %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// MarkExpiredBeforeNow expires open rows whose max exit time is not after now.
func (s *PositionStore) MarkExpiredBeforeNow(ctx context.Context, now time.Time) (int64, error) {
	const query = `
		UPDATE positions SET status = 'expired', updated_at = $1
		WHERE status IN ('pending', 'active') AND max_exit_time <= $1`

	tag, err := s.pool.Exec(ctx, query, now)
	if err != nil {
		return 0, fmt.Errorf("postgres: mark expired positions: %w", err)
	}
	return tag.RowsAffected(), nil
}

// ListTerminalBefore returns up to limit terminal rows updated before the
// cutoff, oldest first.
func (s *PositionStore) ListTerminalBefore(ctx context.Context, before time.Time, limit int) ([]domain.PositionRecord, error) {
	query := `SELECT ` + recordSelectCols + ` FROM positions
		WHERE status IN ('closed', 'expired', 'failed') AND updated_at < $1
		ORDER BY updated_at, id`
	args := []any{before}
	if limit > 0 {
		query += " LIMIT $2"
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list terminal positions: %w", err)
	}
	defer rows.Close()

	recs, err := scanRecords(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan terminal positions: %w", err)
	}
	return recs, nil
}

// DeleteTerminal removes the given ids when they are terminal.
func (s *PositionStore) DeleteTerminal(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM positions
		 WHERE id = ANY($1) AND status IN ('closed', 'expired', 'failed')`, ids)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete terminal positions: %w", err)
	}
	return tag.RowsAffected(), nil
}

var _ domain.PositionStore = (*PositionStore)(nil)
