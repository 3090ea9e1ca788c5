// Package memory holds in-process store implementations used by dry-run
// mode and tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/purvik6062/trading-ai-agent-sub001/internal/domain"
)

type positionRow struct {
	rec         domain.PositionRecord
	maxExitTime time.Time
}

// PositionStore is an in-memory implementation of domain.PositionStore.
type PositionStore struct {
	mu   sync.RWMutex
	data map[string]*positionRow
	now  func() time.Time
}

// NewPositionStore creates an empty in-memory position store.
func NewPositionStore() *PositionStore {
	return &PositionStore{
		data: make(map[string]*positionRow),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// Upsert stores a copy of the encoded position.
func (s *PositionStore) Upsert(_ context.Context, pos domain.Position, owner, vault string) error {
	rec, err := domain.EncodePositionRecord(pos, owner, vault)
	if err != nil {
		return err
	}
	s.PutRecord(rec, pos.Signal.MaxExitTime)
	return nil
}

// PutRecord stores a raw record, bypassing encoding.
func (s *PositionStore) PutRecord(rec domain.PositionRecord, maxExitTime time.Time) {
	rec.Document = append([]byte(nil), rec.Document...)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[rec.ID] = &positionRow{rec: rec, maxExitTime: maxExitTime}
}

// QueryActiveOrPending returns open records ordered by last update.
func (s *PositionStore) QueryActiveOrPending(_ context.Context) ([]domain.PositionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.PositionRecord
	for _, row := range s.data {
		if row.rec.Status.Open() {
			out = append(out, copyRecord(row.rec))
		}
	}
	sortRecords(out)
	return out, nil
}

// UpdateStatus sets the status column. Returns ErrNotFound for unknown ids.
func (s *PositionStore) UpdateStatus(_ context.Context, id string, status domain.PositionStatus, exitTxHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.data[id]
	if !ok {
		return domain.ErrNotFound
	}
	row.rec.Status = status
	if exitTxHash != "" {
		row.rec.ExitTxHash = exitTxHash
	}
	row.rec.UpdatedAt = s.now()
	return nil
}

// MarkExpiredBeforeNow expires open records whose max exit time is not after now.
func (s *PositionStore) MarkExpiredBeforeNow(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, row := range s.data {
		if row.rec.Status.Open() && !row.maxExitTime.After(now) {
			row.rec.Status = domain.PositionStatusExpired
			row.rec.UpdatedAt = now
			n++
		}
	}
	return n, nil
}

// ListTerminalBefore returns terminal records updated before the cutoff.
func (s *PositionStore) ListTerminalBefore(_ context.Context, before time.Time, limit int) ([]domain.PositionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.PositionRecord
	for _, row := range s.data {
		if row.rec.Status.Terminal() && row.rec.UpdatedAt.Before(before) {
			out = append(out, copyRecord(row.rec))
		}
	}
	sortRecords(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// DeleteTerminal removes the given terminal records.
func (s *PositionStore) DeleteTerminal(_ context.Context, ids []string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, id := range ids {
		if row, ok := s.data[id]; ok && row.rec.Status.Terminal() {
			delete(s.data, id)
			n++
		}
	}
	return n, nil
}

// Get returns the stored record for id.
func (s *PositionStore) Get(id string) (domain.PositionRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row, ok := s.data[id]
	if !ok {
		return domain.PositionRecord{}, false
	}
	return copyRecord(row.rec), true
}

func copyRecord(r domain.PositionRecord) domain.PositionRecord {
	r.Document = append([]byte(nil), r.Document...)
	return r
}

func sortRecords(recs []domain.PositionRecord) {
	sort.Slice(recs, func(i, j int) bool {
		if recs[i].UpdatedAt.Equal(recs[j].UpdatedAt) {
			return recs[i].ID < recs[j].ID
		}
		return recs[i].UpdatedAt.Before(recs[j].UpdatedAt)
	})
}
