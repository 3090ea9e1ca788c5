package app

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/purvik6062/trading-ai-agent-sub001/internal/config"
	"github.com/purvik6062/trading-ai-agent-sub001/internal/domain"
	"github.com/purvik6062/trading-ai-agent-sub001/internal/executor"
	"github.com/purvik6062/trading-ai-agent-sub001/internal/metrics"
	"github.com/purvik6062/trading-ai-agent-sub001/internal/notify"
	"github.com/purvik6062/trading-ai-agent-sub001/internal/store/memory"
)

type staticPrices struct {
	mu     sync.Mutex
	prices map[string]float64
}

func (p *staticPrices) set(tokenID string, price float64) {
	p.mu.Lock()
	p.prices[tokenID] = price
	p.mu.Unlock()
}

func (p *staticPrices) GetPrice(_ context.Context, tokenID string) (float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	price, ok := p.prices[tokenID]
	if !ok {
		return 0, domain.ErrPriceUnavailable
	}
	return price, nil
}

func (p *staticPrices) GetPrices(ctx context.Context, tokenIDs []string) (map[string]float64, error) {
	out := make(map[string]float64, len(tokenIDs))
	for _, id := range tokenIDs {
		if price, err := p.GetPrice(ctx, id); err == nil {
			out[id] = price
		}
	}
	return out, nil
}

func (p *staticPrices) SetPrice(_ context.Context, tokenID string, price float64, _ time.Time) error {
	p.set(tokenID, price)
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func memoryDeps() *Dependencies {
	reg := prometheus.NewRegistry()
	return &Dependencies{
		PositionStore: memory.NewPositionStore(),
		AuditStore:    memory.NewAuditStore(),
		PriceCache:    &staticPrices{prices: make(map[string]float64)},
		Notifier:      notify.NewNotifier(nil, nil, testLogger()),
		Registry:      reg,
		Metrics:       metrics.New(reg),
	}
}

func memoryConfig() *config.Config {
	cfg := config.Defaults()
	cfg.Store.Driver = "memory"
	return &cfg
}

// With the default ladder the last target closes whatever is left.
func TestCoreDefaultLadderClosesOnLastTarget(t *testing.T) {
	cfg := memoryConfig()
	deps := memoryDeps()
	prices := deps.PriceCache.(*staticPrices)
	trader := executor.NewDryRunExecutor(prices, cfg.Executor.BaseToken, 0, testLogger())
	c := newCore(cfg, deps, trader, testLogger())
	ctx := context.Background()

	out := c.positions.AddSignal(ctx, domain.SignalRequest{
		Signal: domain.Signal{
			ID:           "sig-1",
			Token:        "WETH",
			TokenID:      "weth",
			Direction:    domain.DirectionBuy,
			CurrentPrice: 100,
			Targets:      []float64{110, 120, 130},
			StopLoss:     90,
			MaxExitTime:  time.Now().Add(24 * time.Hour),
		},
		Username:     "alice",
		VaultAddress: "0x52908400098527886e0f7030069857d2e4169ee7",
		Size:         1000,
	})
	require.True(t, out.Success, out.Message)

	for _, price := range []float64{110, 120, 130} {
		prices.set("weth", price)
		require.NoError(t, c.monitor.Tick(ctx))
	}

	pos, ok := c.registry.Get(out.PositionID)
	require.True(t, ok)
	assert.Equal(t, domain.PositionStatusClosed, pos.Status)
	assert.Zero(t, pos.RemainingAmount)

	var pcts []float64
	for _, s := range trader.Swaps()[1:] {
		pcts = append(pcts, s.Percentage)
	}
	assert.Equal(t, []float64{50, 30, 100}, pcts)
}

func TestCoreRetentionWiring(t *testing.T) {
	t.Run("memory store sweeps without archive", func(t *testing.T) {
		c := newCore(memoryConfig(), memoryDeps(), executor.NewDryRunExecutor(nil, "USDC", 0, testLogger()), testLogger())
		assert.NotNil(t, c.retention)
	})

	t.Run("postgres store needs an archive", func(t *testing.T) {
		cfg := memoryConfig()
		cfg.Store.Driver = "postgres"
		c := newCore(cfg, memoryDeps(), executor.NewDryRunExecutor(nil, "USDC", 0, testLogger()), testLogger())
		assert.Nil(t, c.retention)
	})

	t.Run("zero retention disables sweeps", func(t *testing.T) {
		cfg := memoryConfig()
		cfg.Monitor.StoreRetention.Duration = 0
		c := newCore(cfg, memoryDeps(), executor.NewDryRunExecutor(nil, "USDC", 0, testLogger()), testLogger())
		assert.Nil(t, c.retention)
	})
}

func TestArchiveMode(t *testing.T) {
	cfg := memoryConfig()
	a := New(cfg, testLogger())
	require.NoError(t, a.ArchiveMode(context.Background(), memoryDeps()))

	cfg.Store.Driver = "postgres"
	err := a.ArchiveMode(context.Background(), memoryDeps())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "retention disabled")
}

func TestRecoverModeOnEmptyStore(t *testing.T) {
	a := New(memoryConfig(), testLogger())
	assert.NoError(t, a.RecoverMode(context.Background(), memoryDeps()))
}
