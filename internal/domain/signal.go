package domain

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// Direction is the trade direction carried by a signal.
type Direction string

const (
	DirectionBuy        Direction = "buy"
	DirectionPutOptions Direction = "put_options"
	DirectionHold       Direction = "hold"
)

// ParseDirection normalises the spellings used by signal producers.
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "buy", "long":
		return DirectionBuy, nil
	case "put options", "put_options", "putoptions", "puts", "put":
		return DirectionPutOptions, nil
	case "hold":
		return DirectionHold, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownDirection, s)
	}
}

// Opposes reports whether d and other are opposing trade directions.
// Hold never opposes anything.
func (d Direction) Opposes(other Direction) bool {
	switch d {
	case DirectionBuy:
		return other == DirectionPutOptions
	case DirectionPutOptions:
		return other == DirectionBuy
	default:
		return false
	}
}

// Tradable reports whether a position can be opened in this direction.
func (d Direction) Tradable() bool {
	return d == DirectionBuy || d == DirectionPutOptions
}

// Signal is an externally produced trade instruction.
type Signal struct {
	ID           string            `json:"id"`
	Token        string            `json:"token"`
	TokenID      string            `json:"tokenId"`
	Direction    Direction         `json:"direction"`
	CurrentPrice float64           `json:"currentPrice"`
	Targets      []float64         `json:"targets"` // ascending
	StopLoss     float64           `json:"stopLoss"`
	MaxExitTime  time.Time         `json:"maxExitTime"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	ReceivedAt   time.Time         `json:"receivedAt"`
}

// Validate checks the structural requirements of a signal.
func (s Signal) Validate() error {
	switch {
	case strings.TrimSpace(s.TokenID) == "":
		return &ValidationError{Field: "tokenId", Reason: "required"}
	case !s.Direction.Tradable() && s.Direction != DirectionHold:
		return &ValidationError{Field: "direction", Reason: fmt.Sprintf("unknown value %q", s.Direction)}
	case s.CurrentPrice <= 0 || math.IsNaN(s.CurrentPrice) || math.IsInf(s.CurrentPrice, 0):
		return &ValidationError{Field: "currentPrice", Reason: "must be positive"}
	case len(s.Targets) == 0:
		return &ValidationError{Field: "targets", Reason: "at least one target required"}
	case s.StopLoss <= 0:
		return &ValidationError{Field: "stopLoss", Reason: "must be positive"}
	case s.MaxExitTime.IsZero():
		return &ValidationError{Field: "maxExitTime", Reason: "required"}
	}
	for i, t := range s.Targets {
		if t <= 0 {
			return &ValidationError{Field: "targets", Reason: fmt.Sprintf("target %d must be positive", i)}
		}
		if i > 0 && t < s.Targets[i-1] {
			return &ValidationError{Field: "targets", Reason: "must be ascending"}
		}
	}
	return nil
}

// Clone returns a deep copy of the signal.
func (s Signal) Clone() Signal {
	out := s
	out.Targets = append([]float64(nil), s.Targets...)
	if s.Metadata != nil {
		out.Metadata = make(map[string]string, len(s.Metadata))
		for k, v := range s.Metadata {
			out.Metadata[k] = v
		}
	}
	return out
}

// SignalRequest is an inbound signal bound to an owner and the capital to
// commit from their vault.
type SignalRequest struct {
	Signal       Signal  `json:"signal"`
	Username     string  `json:"username"`
	VaultAddress string  `json:"vaultAddress"`
	Size         float64 `json:"size"`
}
