package domain

import "time"

// PositionStatus tracks the position lifecycle.
type PositionStatus string

const (
	PositionStatusPending PositionStatus = "pending"
	PositionStatusActive  PositionStatus = "active"
	PositionStatusClosed  PositionStatus = "closed"
	PositionStatusExpired PositionStatus = "expired"
	PositionStatusFailed  PositionStatus = "failed"
)

// Terminal reports whether no further transitions are allowed.
func (s PositionStatus) Terminal() bool {
	switch s {
	case PositionStatusClosed, PositionStatusExpired, PositionStatusFailed:
		return true
	default:
		return false
	}
}

// Open reports whether the position still counts toward exposure.
func (s PositionStatus) Open() bool {
	return s == PositionStatusPending || s == PositionStatusActive
}

// ExitReason labels why an exit happened.
type ExitReason string

const (
	ExitReasonTargetHit    ExitReason = "target_hit"
	ExitReasonStopLoss     ExitReason = "stop_loss"
	ExitReasonTrailingStop ExitReason = "trailing_stop"
	ExitReasonTimeExit     ExitReason = "time_exit"
	ExitReasonPriority     ExitReason = "priority conflict resolution"
	ExitReasonManual       ExitReason = "manual"
)

// Phase is the exit state machine phase of a position.
type Phase string

const (
	// PhaseGuarding: stop loss armed, no target hit yet.
	PhaseGuarding Phase = "guarding"
	// PhaseTrailing: first target hit, trailing stop armed.
	PhaseTrailing Phase = "trailing"
)

// TrailingStopConfig is the per-position exit state.
type TrailingStopConfig struct {
	TrailPercent           float64   `json:"trailPercent"`
	IsActive               bool      `json:"isActive"`
	TP1Hit                 bool      `json:"tp1Hit"`
	TargetsHit             []bool    `json:"targetsHit"`
	PeakPrice              float64   `json:"peakPrice,omitempty"`
	LowestPrice            float64   `json:"lowestPrice,omitempty"`
	PartialExitPercentages []float64 `json:"partialExitPercentages,omitempty"`
}

// NewTrailingStopConfig returns a fresh config for targetCount targets.
func NewTrailingStopConfig(trailPercent float64, targetCount int, partials []float64) TrailingStopConfig {
	return TrailingStopConfig{
		TrailPercent:           trailPercent,
		TargetsHit:             make([]bool, targetCount),
		PartialExitPercentages: append([]float64(nil), partials...),
	}
}

// Phase derives the exit phase. A hit first target implies TP1 even when
// the flag itself was never stored.
func (c TrailingStopConfig) Phase() Phase {
	if c.TP1Hit || (len(c.TargetsHit) > 0 && c.TargetsHit[0]) {
		return PhaseTrailing
	}
	return PhaseGuarding
}

// HitCount returns the number of targets marked hit.
func (c TrailingStopConfig) HitCount() int {
	n := 0
	for _, hit := range c.TargetsHit {
		if hit {
			n++
		}
	}
	return n
}

func (c TrailingStopConfig) clone() TrailingStopConfig {
	out := c
	out.TargetsHit = append([]bool(nil), c.TargetsHit...)
	out.PartialExitPercentages = append([]float64(nil), c.PartialExitPercentages...)
	return out
}

// TargetExit records one exit against a position. TargetIndex is -1 for
// exits not triggered by a target.
type TargetExit struct {
	TargetIndex     int        `json:"targetIndex"`
	TargetPrice     float64    `json:"targetPrice"`
	ActualExitPrice float64    `json:"actualExitPrice"`
	AmountExited    float64    `json:"amountExited"`
	Percentage      float64    `json:"percentage"`
	Reason          ExitReason `json:"reason"`
	TxHash          string     `json:"txHash,omitempty"`
	Timestamp       time.Time  `json:"timestamp"`
}

// Position is a unit of exposure opened from a signal.
type Position struct {
	ID              string             `json:"id"`
	Signal          Signal             `json:"signal"`
	TrailingStop    TrailingStopConfig `json:"trailingStop"`
	Status          PositionStatus     `json:"status"`
	OriginalAmount  float64            `json:"originalAmount"`
	RemainingAmount float64            `json:"remainingAmount"`
	TargetExits     []TargetExit       `json:"targetExits"`
	EntryTxHash     string             `json:"entryTxHash,omitempty"`
	ExitTxHash      string             `json:"exitTxHash,omitempty"`
	ExitReason      ExitReason         `json:"exitReason,omitempty"`
	ExitPrice       float64            `json:"exitPrice,omitempty"`
	FailureReason   string             `json:"failureReason,omitempty"`
	Username        string             `json:"username"`
	VaultAddress    string             `json:"vaultAddress"`
	CreatedAt       time.Time          `json:"createdAt"`
	UpdatedAt       time.Time          `json:"updatedAt"`
	ClosedAt        *time.Time         `json:"closedAt,omitempty"`
	PurgeAfter      time.Time          `json:"purgeAfter"`
}

// EntryPrice is the signal price the position was opened at.
func (p Position) EntryPrice() float64 { return p.Signal.CurrentPrice }

// ExitedAmount sums every recorded exit.
func (p Position) ExitedAmount() float64 {
	var sum float64
	for _, e := range p.TargetExits {
		sum += e.AmountExited
	}
	return sum
}

// Clone returns a deep copy safe to hand outside the registry.
func (p Position) Clone() Position {
	out := p
	out.Signal = p.Signal.Clone()
	out.TrailingStop = p.TrailingStop.clone()
	out.TargetExits = append([]TargetExit(nil), p.TargetExits...)
	if p.ClosedAt != nil {
		t := *p.ClosedAt
		out.ClosedAt = &t
	}
	return out
}

// RecordExit appends an exit and reduces the remaining amount, floored at 0.
func (p *Position) RecordExit(e TargetExit) {
	p.TargetExits = append(p.TargetExits, e)
	p.RemainingAmount -= e.AmountExited
	if p.RemainingAmount < 0 {
		p.RemainingAmount = 0
	}
	p.UpdatedAt = e.Timestamp
}

// Finish moves the position into a terminal status.
func (p *Position) Finish(status PositionStatus, reason ExitReason, price float64, txHash string, at time.Time) {
	p.Status = status
	p.ExitReason = reason
	p.ExitPrice = price
	if txHash != "" {
		p.ExitTxHash = txHash
	}
	p.ClosedAt = &at
	p.UpdatedAt = at
}
