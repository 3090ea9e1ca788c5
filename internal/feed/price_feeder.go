package feed

import (
	"context"
	"log/slog"
	"time"

	"github.com/purvik6062/trading-ai-agent-sub001/internal/domain"
)

// PricesChannel is the bus channel price producers publish on.
const PricesChannel = "prices"

// PriceFeeder subscribes to the "prices" channel and writes each update into
// the price cache that the monitor reads from.
type PriceFeeder struct {
	bus    domain.SignalBus
	cache  domain.PriceCache
	now    func() time.Time
	logger *slog.Logger
}

// NewPriceFeeder creates a PriceFeeder.
func NewPriceFeeder(bus domain.SignalBus, cache domain.PriceCache, logger *slog.Logger) *PriceFeeder {
	return &PriceFeeder{
		bus:    bus,
		cache:  cache,
		now:    time.Now,
		logger: logger.With(slog.String("component", "price_feeder")),
	}
}

// Run blocks until ctx is cancelled or the subscription closes.
func (f *PriceFeeder) Run(ctx context.Context) error {
	ch, err := f.bus.Subscribe(ctx, PricesChannel)
	if err != nil {
		return err
	}
	f.logger.Info("price feeder started")
	defer f.logger.Info("price feeder stopped")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case data, ok := <-ch:
			if !ok {
				return nil
			}
			if err := f.handle(ctx, data); err != nil {
				f.logger.Debug("price feeder handle message failed",
					slog.String("error", err.Error()),
					slog.Int("payload_len", len(data)),
				)
			}
		}
	}
}

func (f *PriceFeeder) handle(ctx context.Context, data []byte) error {
	id, price, ts, err := decodePrice(data, f.now())
	if err != nil {
		return err
	}
	return f.cache.SetPrice(ctx, id, price, ts)
}
