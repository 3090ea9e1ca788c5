package feed

import (
	"context"
	"log/slog"
	"time"

	"github.com/purvik6062/trading-ai-agent-sub001/internal/domain"
)

// SignalsChannel is the bus channel inbound signals are published on.
const SignalsChannel = "signals"

// BusSignalFeed subscribes to the "signals" channel and forwards every
// decodable message to out.
type BusSignalFeed struct {
	bus    domain.SignalBus
	out    chan<- domain.SignalRequest
	now    func() time.Time
	logger *slog.Logger
}

// NewBusSignalFeed creates a BusSignalFeed.
func NewBusSignalFeed(bus domain.SignalBus, out chan<- domain.SignalRequest, logger *slog.Logger) *BusSignalFeed {
	return &BusSignalFeed{
		bus:    bus,
		out:    out,
		now:    time.Now,
		logger: logger.With(slog.String("component", "bus_signal_feed")),
	}
}

// Run blocks until ctx is cancelled or the subscription closes.
func (f *BusSignalFeed) Run(ctx context.Context) error {
	ch, err := f.bus.Subscribe(ctx, SignalsChannel)
	if err != nil {
		return err
	}
	f.logger.Info("bus signal feed started", slog.String("channel", SignalsChannel))
	defer f.logger.Info("bus signal feed stopped")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case data, ok := <-ch:
			if !ok {
				return nil
			}
			if err := forward(ctx, data, f.now(), f.out); err != nil {
				f.logger.Warn("bus signal feed dropped message",
					slog.String("error", err.Error()),
					slog.Int("payload_len", len(data)),
				)
			}
		}
	}
}

// forward decodes data and sends it on out, giving up when ctx ends.
func forward(ctx context.Context, data []byte, now time.Time, out chan<- domain.SignalRequest) error {
	req, err := DecodeSignal(data, now)
	if err != nil {
		return err
	}
	select {
	case out <- req:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
