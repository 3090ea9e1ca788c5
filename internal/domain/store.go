package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
	// Event restricts audit queries to one event name.
	Event string
}

// PositionStore persists positions so they survive a restart.
type PositionStore interface {
	// Upsert writes the full position document keyed by position id.
	Upsert(ctx context.Context, pos Position, owner, vault string) error
	// QueryActiveOrPending returns raw records so that a single corrupt row
	// does not prevent the others from loading.
	QueryActiveOrPending(ctx context.Context) ([]PositionRecord, error)
	UpdateStatus(ctx context.Context, id string, status PositionStatus, exitTxHash string) error
	// MarkExpiredBeforeNow moves open positions whose max exit time passed
	// to expired and returns how many rows changed.
	MarkExpiredBeforeNow(ctx context.Context, now time.Time) (int64, error)
	// ListTerminalBefore returns terminal positions last updated before the cutoff.
	ListTerminalBefore(ctx context.Context, before time.Time, limit int) ([]PositionRecord, error)
	// DeleteTerminal removes the given ids, skipping any that are not terminal.
	DeleteTerminal(ctx context.Context, ids []string) (int64, error)
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}
