// Package exit implements the target-exit and trailing-stop state machine.
package exit

import (
	"sync"
	"time"

	"github.com/purvik6062/trading-ai-agent-sub001/internal/domain"
)

// Kind names an exit decision.
type Kind string

const (
	KindNone    Kind = "none"
	KindPartial Kind = "partial"
	KindFull    Kind = "full"
)

// Decision is the outcome of evaluating a position against a price.
type Decision struct {
	Kind        Kind
	Percentage  float64 // of the remaining amount, partial only
	TargetIndex int     // partial only
	TargetPrice float64 // partial only
	Reason      domain.ExitReason
	// Level is the stop, trailing threshold or target that fired.
	Level float64
}

func none() Decision { return Decision{Kind: KindNone, TargetIndex: -1} }

func full(reason domain.ExitReason, level float64) Decision {
	return Decision{Kind: KindFull, Percentage: 100, TargetIndex: -1, Reason: reason, Level: level}
}

// DefaultPartialExitPercentages is the exit ladder used when a position has
// no custom percentages.
var DefaultPartialExitPercentages = []float64{50, 30, 20}

// DefaultDustThreshold closes a position once less than this remains.
const DefaultDustThreshold = 0.01

// Config configures the Engine.
type Config struct {
	DefaultPercentages []float64
	DustThreshold      float64
	// TokenDust overrides DustThreshold per token id.
	TokenDust map[string]float64
	Now       func() time.Time
}

// Engine evaluates exits and tracks which positions it is driving.
type Engine struct {
	defaults  []float64
	dust      float64
	tokenDust map[string]float64
	now       func() time.Time

	mu      sync.RWMutex
	tracked map[string]struct{}
}

// NewEngine creates an Engine, filling unset config with defaults.
func NewEngine(cfg Config) *Engine {
	e := &Engine{
		defaults:  append([]float64(nil), cfg.DefaultPercentages...),
		dust:      cfg.DustThreshold,
		tokenDust: make(map[string]float64, len(cfg.TokenDust)),
		now:       cfg.Now,
		tracked:   make(map[string]struct{}),
	}
	if len(e.defaults) == 0 {
		e.defaults = append([]float64(nil), DefaultPartialExitPercentages...)
	}
	if e.dust <= 0 {
		e.dust = DefaultDustThreshold
	}
	for k, v := range cfg.TokenDust {
		e.tokenDust[k] = v
	}
	if e.now == nil {
		e.now = func() time.Time { return time.Now().UTC() }
	}
	return e
}

// Register starts driving exits for a position.
func (e *Engine) Register(id string) {
	e.mu.Lock()
	e.tracked[id] = struct{}{}
	e.mu.Unlock()
}

// Unregister stops driving exits for a position.
func (e *Engine) Unregister(id string) {
	e.mu.Lock()
	delete(e.tracked, id)
	e.mu.Unlock()
}

// Tracked reports whether the position is registered.
func (e *Engine) Tracked(id string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	_, ok := e.tracked[id]
	return ok
}

// TrackedCount returns the number of registered positions.
func (e *Engine) TrackedCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.tracked)
}

// DustThreshold returns the close threshold for a token.
func (e *Engine) DustThreshold(tokenID string) float64 {
	if v, ok := e.tokenDust[tokenID]; ok && v > 0 {
		return v
	}
	return e.dust
}

// Evaluate decides what to do with pos at price. It advances pos's exit
// state in place (target flags, TP1, peak and trough); callers persist that
// state only once the decision has been carried out, so a failed swap is
// re-evaluated on the next tick.
func (e *Engine) Evaluate(pos *domain.Position, price float64) Decision {
	if !e.now().Before(pos.Signal.MaxExitTime) {
		return full(domain.ExitReasonTimeExit, 0)
	}

	if d, ok := e.scanTargets(pos, price); ok {
		return d
	}

	ts := &pos.TrailingStop
	switch ts.Phase() {
	case domain.PhaseGuarding:
		if stopBreached(pos.Signal.Direction, price, pos.Signal.StopLoss) {
			return full(domain.ExitReasonStopLoss, pos.Signal.StopLoss)
		}
		return none()
	case domain.PhaseTrailing:
		if level, hit := trail(pos, price); hit {
			return full(domain.ExitReasonTrailingStop, level)
		}
		return none()
	default:
		return none()
	}
}

// scanTargets marks the first newly reached target and returns a partial
// decision when its exit percentage is positive.
func (e *Engine) scanTargets(pos *domain.Position, price float64) (Decision, bool) {
	ts := &pos.TrailingStop
	for i, target := range pos.Signal.Targets {
		if i < len(ts.TargetsHit) && ts.TargetsHit[i] {
			continue
		}
		if !targetReached(pos.Signal.Direction, price, target) {
			continue
		}
		markHit(pos, i, price)
		pct := e.ExitPercentage(*pos, i)
		if pct > 0 {
			return Decision{
				Kind:        KindPartial,
				Percentage:  pct,
				TargetIndex: i,
				TargetPrice: target,
				Reason:      domain.ExitReasonTargetHit,
				Level:       target,
			}, true
		}
		return Decision{}, false
	}
	return Decision{}, false
}

// ExitPercentage returns the share of the remaining amount to exit when
// target i is hit. Custom percentages take precedence; otherwise the default
// ladder applies and the final target always exits in full.
func (e *Engine) ExitPercentage(pos domain.Position, i int) float64 {
	if custom := pos.TrailingStop.PartialExitPercentages; len(custom) > 0 {
		if i < len(custom) {
			return custom[i]
		}
		return 100
	}
	if i >= len(pos.Signal.Targets)-1 {
		return 100
	}
	if i < len(e.defaults) {
		return e.defaults[i]
	}
	return 100
}

// ApplyPartial books a partial exit against pos and closes it when the
// remainder is dust or the exit was total.
func (e *Engine) ApplyPartial(pos *domain.Position, d Decision, exitPrice float64, txHash string) domain.TargetExit {
	now := e.now()
	amount := pos.RemainingAmount * d.Percentage / 100
	if d.Percentage >= 100 || amount > pos.RemainingAmount {
		amount = pos.RemainingAmount
	}
	rec := domain.TargetExit{
		TargetIndex:     d.TargetIndex,
		TargetPrice:     d.TargetPrice,
		ActualExitPrice: exitPrice,
		AmountExited:    amount,
		Percentage:      d.Percentage,
		Reason:          domain.ExitReasonTargetHit,
		TxHash:          txHash,
		Timestamp:       now,
	}
	pos.RecordExit(rec)

	if d.Percentage >= 100 || pos.RemainingAmount < e.DustThreshold(pos.Signal.TokenID) {
		pos.Finish(domain.PositionStatusClosed, domain.ExitReasonTargetHit, exitPrice, txHash, now)
	}
	return rec
}

func markHit(pos *domain.Position, i int, price float64) {
	ts := &pos.TrailingStop
	for len(ts.TargetsHit) <= i {
		ts.TargetsHit = append(ts.TargetsHit, false)
	}
	ts.TargetsHit[i] = true
	if i == 0 && !ts.TP1Hit {
		ts.TP1Hit = true
		ts.IsActive = true
		ts.PeakPrice = price
		ts.LowestPrice = price
	}
}

// trail moves the peak (buy) or trough (put) and reports a breach of the
// trailing threshold.
func trail(pos *domain.Position, price float64) (float64, bool) {
	ts := &pos.TrailingStop
	switch pos.Signal.Direction {
	case domain.DirectionBuy:
		if ts.PeakPrice == 0 || price > ts.PeakPrice {
			ts.PeakPrice = price
		}
		threshold := ts.PeakPrice * (1 - ts.TrailPercent)
		return threshold, price <= threshold
	case domain.DirectionPutOptions:
		if ts.LowestPrice == 0 || price < ts.LowestPrice {
			ts.LowestPrice = price
		}
		threshold := ts.LowestPrice * (1 + ts.TrailPercent)
		return threshold, price >= threshold
	default:
		return 0, false
	}
}

func targetReached(dir domain.Direction, price, target float64) bool {
	switch dir {
	case domain.DirectionBuy:
		return price >= target
	case domain.DirectionPutOptions:
		return price <= target
	default:
		return false
	}
}

func stopBreached(dir domain.Direction, price, stop float64) bool {
	switch dir {
	case domain.DirectionBuy:
		return price <= stop
	case domain.DirectionPutOptions:
		return price >= stop
	default:
		return false
	}
}
