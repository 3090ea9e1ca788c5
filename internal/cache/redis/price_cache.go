package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/purvik6062/trading-ai-agent-sub001/internal/domain"
)

// PriceCache implements domain.PriceCache on Redis hashes at
// "<prefix>price:<tokenID>" with fields "price" and "ts" (unix nanos).
// Entries older than maxAge are treated as missing.
type PriceCache struct {
	c      *Client
	maxAge time.Duration
	now    func() time.Time
}

// NewPriceCache creates a PriceCache. maxAge <= 0 disables the staleness
// check.
func NewPriceCache(c *Client, maxAge time.Duration) *PriceCache {
	return &PriceCache{c: c, maxAge: maxAge, now: time.Now}
}

// SetPrice stores the latest price for a token.
func (pc *PriceCache) SetPrice(ctx context.Context, tokenID string, price float64, ts time.Time) error {
	fields := map[string]any{
		"price": strconv.FormatFloat(price, 'f', -1, 64),
		"ts":    strconv.FormatInt(ts.UnixNano(), 10),
	}
	if err := pc.c.rdb.HSet(ctx, pc.c.key("price", tokenID), fields).Err(); err != nil {
		return fmt.Errorf("redis: set price %s: %w", tokenID, err)
	}
	return nil
}

// GetPrice returns the cached price, or domain.ErrPriceUnavailable when it
// is missing, unparsable, non-positive or stale.
func (pc *PriceCache) GetPrice(ctx context.Context, tokenID string) (float64, error) {
	vals, err := pc.c.rdb.HGetAll(ctx, pc.c.key("price", tokenID)).Result()
	if err != nil {
		return 0, fmt.Errorf("redis: get price %s: %w", tokenID, err)
	}
	price, ok := pc.parse(vals)
	if !ok {
		return 0, fmt.Errorf("redis: get price %s: %w", tokenID, domain.ErrPriceUnavailable)
	}
	return price, nil
}

// GetPrices fetches several tokens in one pipeline. Tokens without a usable
// price are omitted.
func (pc *PriceCache) GetPrices(ctx context.Context, tokenIDs []string) (map[string]float64, error) {
	if len(tokenIDs) == 0 {
		return map[string]float64{}, nil
	}

	pipe := pc.c.rdb.Pipeline()
	cmds := make(map[string]*redis.MapStringStringCmd, len(tokenIDs))
	for _, id := range tokenIDs {
		cmds[id] = pipe.HGetAll(ctx, pc.c.key("price", id))
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("redis: get prices pipeline: %w", err)
	}

	out := make(map[string]float64, len(tokenIDs))
	for id, cmd := range cmds {
		vals, err := cmd.Result()
		if err != nil {
			continue
		}
		if price, ok := pc.parse(vals); ok {
			out[id] = price
		}
	}
	return out, nil
}

func (pc *PriceCache) parse(vals map[string]string) (float64, bool) {
	price, err := strconv.ParseFloat(vals["price"], 64)
	if err != nil || price <= 0 {
		return 0, false
	}
	if pc.maxAge > 0 {
		nanos, err := strconv.ParseInt(vals["ts"], 10, 64)
		if err != nil {
			return 0, false
		}
		if pc.now().Sub(time.Unix(0, nanos)) > pc.maxAge {
			return 0, false
		}
	}
	return price, true
}

var _ domain.PriceCache = (*PriceCache)(nil)
