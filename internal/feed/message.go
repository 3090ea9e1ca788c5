// Package feed receives trading signals and prices from outside the process
// and turns them into domain values.
package feed

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/purvik6062/trading-ai-agent-sub001/internal/domain"
)

// signalMessage is the inbound JSON shape shared by every signal source.
type signalMessage struct {
	ID           string            `json:"id"`
	Token        string            `json:"token"`
	TokenID      string            `json:"tokenId"`
	Direction    string            `json:"direction"`
	CurrentPrice float64           `json:"currentPrice"`
	Targets      []float64         `json:"targets"`
	StopLoss     float64           `json:"stopLoss"`
	MaxExitTime  string            `json:"maxExitTime"`
	Metadata     map[string]string `json:"metadata"`
	Username     string            `json:"username"`
	VaultAddress string            `json:"vaultAddress"`
	Size         float64           `json:"size"`
}

// DecodeSignal parses one inbound signal message. Only the wire format is
// checked here; domain rules are enforced at admission.
func DecodeSignal(data []byte, now time.Time) (domain.SignalRequest, error) {
	var msg signalMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return domain.SignalRequest{}, fmt.Errorf("feed: decode signal: %w", err)
	}

	dir, err := domain.ParseDirection(msg.Direction)
	if err != nil {
		return domain.SignalRequest{}, fmt.Errorf("feed: decode signal %q: %w", msg.ID, err)
	}

	var maxExit time.Time
	if s := strings.TrimSpace(msg.MaxExitTime); s != "" {
		maxExit, err = time.Parse(time.RFC3339, s)
		if err != nil {
			return domain.SignalRequest{}, fmt.Errorf("feed: decode signal %q: maxExitTime: %w", msg.ID, err)
		}
	}

	return domain.SignalRequest{
		Signal: domain.Signal{
			ID:           strings.TrimSpace(msg.ID),
			Token:        strings.TrimSpace(msg.Token),
			TokenID:      strings.TrimSpace(msg.TokenID),
			Direction:    dir,
			CurrentPrice: msg.CurrentPrice,
			Targets:      msg.Targets,
			StopLoss:     msg.StopLoss,
			MaxExitTime:  maxExit.UTC(),
			Metadata:     msg.Metadata,
			ReceivedAt:   now.UTC(),
		},
		Username:     strings.TrimSpace(msg.Username),
		VaultAddress: strings.TrimSpace(msg.VaultAddress),
		Size:         msg.Size,
	}, nil
}

// priceMessage is the JSON shape published on the "prices" channel.
type priceMessage struct {
	TokenID   string  `json:"tokenId"`
	Price     float64 `json:"price"`
	Timestamp string  `json:"timestamp"`
}

func decodePrice(data []byte, now time.Time) (string, float64, time.Time, error) {
	var msg priceMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return "", 0, time.Time{}, fmt.Errorf("feed: decode price: %w", err)
	}
	id := strings.TrimSpace(msg.TokenID)
	if id == "" {
		return "", 0, time.Time{}, fmt.Errorf("feed: decode price: missing tokenId")
	}
	if msg.Price <= 0 {
		return "", 0, time.Time{}, fmt.Errorf("feed: decode price %s: non-positive price %v", id, msg.Price)
	}
	ts := now
	if msg.Timestamp != "" {
		if t, err := time.Parse(time.RFC3339Nano, msg.Timestamp); err == nil {
			ts = t
		}
	}
	return id, msg.Price, ts.UTC(), nil
}
