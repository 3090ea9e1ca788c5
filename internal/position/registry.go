// Package position keeps the in-memory book of positions and their
// per-token groups.
package position

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/purvik6062/trading-ai-agent-sub001/internal/domain"
)

// Owner identifies whose vault backs a position.
type Owner struct {
	Username     string
	VaultAddress string
}

// Options configures a Registry.
type Options struct {
	TrailPercent float64
	// PartialExitPercentages pins a custom ladder on every new position.
	// Leave empty to use the exit engine's defaults.
	PartialExitPercentages []float64
	// ClosedTTL is how long terminal positions stay queryable before Purge
	// drops them.
	ClosedTTL time.Duration
	// MaxOpen caps Pending and Active positions across all tokens. Create
	// enforces it under the registry lock. Zero means no cap.
	MaxOpen int
	Now     func() time.Time
}

// Registry is the authoritative in-memory set of positions. Every mutation
// recomputes the owning token's group before returning. Reads hand out
// deep copies.
type Registry struct {
	mu        sync.RWMutex
	positions map[string]*domain.Position
	groups    *GroupStore

	trailPercent float64
	partials     []float64
	closedTTL    time.Duration
	maxOpen      int
	now          func() time.Time
}

// NewRegistry creates an empty Registry.
func NewRegistry(opts Options) *Registry {
	now := opts.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Registry{
		positions:    make(map[string]*domain.Position),
		groups:       NewGroupStore(),
		trailPercent: opts.TrailPercent,
		partials:     append([]float64(nil), opts.PartialExitPercentages...),
		closedTTL:    opts.ClosedTTL,
		maxOpen:      opts.MaxOpen,
		now:          now,
	}
}

// Create registers a new Pending position for the signal. It returns
// ErrMaxPositions when the book is already at MaxOpen.
func (r *Registry) Create(sig domain.Signal, size float64, owner Owner) (domain.Position, error) {
	if size <= 0 {
		return domain.Position{}, fmt.Errorf("registry: create: size must be positive, got %v", size)
	}
	now := r.now()
	pos := &domain.Position{
		ID:              uuid.NewString(),
		Signal:          sig.Clone(),
		TrailingStop:    domain.NewTrailingStopConfig(r.trailPercent, len(sig.Targets), r.partials),
		Status:          domain.PositionStatusPending,
		OriginalAmount:  size,
		RemainingAmount: size,
		TargetExits:     []domain.TargetExit{},
		Username:        owner.Username,
		VaultAddress:    owner.VaultAddress,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.maxOpen > 0 {
		if open := r.openCountLocked(); open >= r.maxOpen {
			return domain.Position{}, fmt.Errorf("%w (%d/%d)", domain.ErrMaxPositions, open, r.maxOpen)
		}
	}
	r.positions[pos.ID] = pos
	r.groups.Attach(*pos)
	r.recomputeLocked(sig.TokenID)
	return pos.Clone(), nil
}

// Merge folds an incoming signal of the given size into an existing open
// position. Targets are averaged by size and the exit state is reset to the
// merged ladder.
func (r *Registry) Merge(id string, sig domain.Signal, size float64) (domain.Position, error) {
	if size <= 0 {
		return domain.Position{}, fmt.Errorf("registry: merge %s: size must be positive, got %v", id, size)
	}
	return r.Commit(id, func(pos *domain.Position) error {
		if pos.Signal.TokenID != sig.TokenID {
			return fmt.Errorf("token mismatch %s != %s", pos.Signal.TokenID, sig.TokenID)
		}
		targets := MergeTargets(pos.Signal.Targets, pos.RemainingAmount, sig.Targets, size)
		entry := weightedPrice(pos.Signal.CurrentPrice, pos.RemainingAmount, sig.CurrentPrice, size)

		merged := sig.Clone()
		merged.ID = pos.Signal.ID
		merged.Targets = targets
		merged.CurrentPrice = entry
		if merged.Metadata == nil {
			merged.Metadata = map[string]string{}
		}
		merged.Metadata["merged_signal_id"] = sig.ID

		pos.Signal = merged
		pos.OriginalAmount += size
		pos.RemainingAmount += size
		pos.TrailingStop = domain.NewTrailingStopConfig(
			pos.TrailingStop.TrailPercent, len(targets), pos.TrailingStop.PartialExitPercentages)
		return nil
	})
}

// Activate marks a Pending position Active after its entry executed.
func (r *Registry) Activate(id, entryTxHash string) (domain.Position, error) {
	return r.Commit(id, func(pos *domain.Position) error {
		pos.Status = domain.PositionStatusActive
		if entryTxHash != "" {
			pos.EntryTxHash = entryTxHash
		}
		return nil
	})
}

// Fail marks a position Failed.
func (r *Registry) Fail(id, reason string) (domain.Position, error) {
	return r.Commit(id, func(pos *domain.Position) error {
		pos.FailureReason = reason
		pos.Finish(domain.PositionStatusFailed, "", 0, "", r.now())
		return nil
	})
}

// Close exits the whole remaining amount. time_exit closes as Expired,
// every other reason as Closed.
func (r *Registry) Close(id string, price float64, reason domain.ExitReason, txHash string) (domain.Position, error) {
	return r.Commit(id, func(pos *domain.Position) error {
		now := r.now()
		if pos.RemainingAmount > 0 {
			pos.RecordExit(domain.TargetExit{
				TargetIndex:     -1,
				ActualExitPrice: price,
				AmountExited:    pos.RemainingAmount,
				Percentage:      100,
				Reason:          reason,
				TxHash:          txHash,
				Timestamp:       now,
			})
		}
		status := domain.PositionStatusClosed
		if reason == domain.ExitReasonTimeExit {
			status = domain.PositionStatusExpired
		}
		pos.Finish(status, reason, price, txHash, now)
		return nil
	})
}

// Commit applies fn to a copy of the open position and stores the result.
// Terminal positions are immutable and return ErrPositionTerminal.
func (r *Registry) Commit(id string, fn func(pos *domain.Position) error) (domain.Position, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur, ok := r.positions[id]
	if !ok {
		return domain.Position{}, fmt.Errorf("registry: position %s: %w", id, domain.ErrNotFound)
	}
	if cur.Status.Terminal() {
		return cur.Clone(), fmt.Errorf("registry: position %s (%s): %w", id, cur.Status, domain.ErrPositionTerminal)
	}

	next := cur.Clone()
	if err := fn(&next); err != nil {
		return cur.Clone(), fmt.Errorf("registry: position %s: %w", id, err)
	}
	next.ID = cur.ID
	if next.UpdatedAt.Equal(cur.UpdatedAt) {
		next.UpdatedAt = r.now()
	}
	if next.Status.Terminal() && next.PurgeAfter.IsZero() {
		next.PurgeAfter = next.UpdatedAt.Add(r.closedTTL)
	}

	r.positions[id] = &next
	if next.Status.Terminal() {
		r.groups.Detach(id, next.Signal.TokenID)
	}
	r.recomputeLocked(next.Signal.TokenID)
	return next.Clone(), nil
}

// Restore inserts a persisted position as-is. A position already present
// returns ErrAlreadyExists so that recovery is idempotent.
func (r *Registry) Restore(pos domain.Position) error {
	if pos.ID == "" {
		return errors.New("registry: restore: empty position id")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.positions[pos.ID]; ok {
		return fmt.Errorf("registry: restore %s: %w", pos.ID, domain.ErrAlreadyExists)
	}
	p := pos.Clone()
	if p.TargetExits == nil {
		p.TargetExits = []domain.TargetExit{}
	}
	r.positions[p.ID] = &p
	if p.Status.Open() {
		r.groups.Attach(p)
		r.recomputeLocked(p.Signal.TokenID)
	}
	return nil
}

// Get returns a copy of the position.
func (r *Registry) Get(id string) (domain.Position, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	pos, ok := r.positions[id]
	if !ok {
		return domain.Position{}, false
	}
	return pos.Clone(), true
}

// ListActive returns every Pending or Active position, oldest first.
func (r *Registry) ListActive() []domain.Position {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.filterLocked(func(p *domain.Position) bool { return p.Status.Open() })
}

// ListByToken returns the open positions on a token, oldest first.
func (r *Registry) ListByToken(tokenID string) []domain.Position {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.filterLocked(func(p *domain.Position) bool {
		return p.Status.Open() && p.Signal.TokenID == tokenID
	})
}

// OpenCount returns the number of Pending or Active positions.
func (r *Registry) OpenCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.openCountLocked()
}

func (r *Registry) openCountLocked() int {
	n := 0
	for _, p := range r.positions {
		if p.Status.Open() {
			n++
		}
	}
	return n
}

// TotalExposure sums the remaining amount of every open position.
func (r *Registry) TotalExposure() float64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var sum float64
	for _, p := range r.positions {
		if p.Status.Open() {
			sum += p.RemainingAmount
		}
	}
	return sum
}

// Group returns a copy of the token's group.
func (r *Registry) Group(tokenID string) (domain.PositionGroup, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.groups.Get(tokenID)
}

// Groups returns copies of every group.
func (r *Registry) Groups() []domain.PositionGroup {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.groups.List()
}

// SetGroupStatus flags a group as closing while a grouped full exit runs.
func (r *Registry) SetGroupStatus(tokenID string, status domain.GroupStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.groups.SetStatus(tokenID, status)
}

// Purge removes terminal positions whose retention window has passed and
// returns them.
func (r *Registry) Purge(now time.Time) []domain.Position {
	r.mu.Lock()
	defer r.mu.Unlock()
	var purged []domain.Position
	for id, p := range r.positions {
		if !p.Status.Terminal() || p.PurgeAfter.IsZero() || now.Before(p.PurgeAfter) {
			continue
		}
		purged = append(purged, p.Clone())
		delete(r.positions, id)
	}
	sort.Slice(purged, func(i, j int) bool { return purged[i].CreatedAt.Before(purged[j].CreatedAt) })
	return purged
}

func (r *Registry) filterLocked(keep func(*domain.Position) bool) []domain.Position {
	var out []domain.Position
	for _, p := range r.positions {
		if keep(p) {
			out = append(out, p.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func (r *Registry) recomputeLocked(tokenID string) {
	r.groups.Recompute(tokenID, func(id string) (domain.Position, bool) {
		p, ok := r.positions[id]
		if !ok {
			return domain.Position{}, false
		}
		return *p, true
	})
}
