package domain

import (
	"context"
	"time"
)

// PriceOracle returns the current price of a token.
type PriceOracle interface {
	GetPrice(ctx context.Context, tokenID string) (float64, error)
	// GetPrices omits tokens with no usable price.
	GetPrices(ctx context.Context, tokenIDs []string) (map[string]float64, error)
}

// PriceCache is a PriceOracle that price producers can write into.
type PriceCache interface {
	PriceOracle
	SetPrice(ctx context.Context, tokenID string, price float64, ts time.Time) error
}

// LockManager provides distributed locking.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// StreamMessage represents a single entry from a Redis stream.
type StreamMessage struct {
	ID      string
	Payload []byte
}

// SignalBus provides pub/sub and durable streams.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	StreamAppend(ctx context.Context, stream string, payload []byte) error
	StreamRead(ctx context.Context, stream string, lastID string, count int) ([]StreamMessage, error)
}

// RateLimiter counts requests per key in a sliding window.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}
