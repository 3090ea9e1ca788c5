package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/purvik6062/trading-ai-agent-sub001/internal/domain"
	"github.com/purvik6062/trading-ai-agent-sub001/internal/exit"
	"github.com/purvik6062/trading-ai-agent-sub001/internal/position"
	"github.com/purvik6062/trading-ai-agent-sub001/internal/store/memory"
)

const testVault = "0x52908400098527886e0f7030069857d2e4169ee7"

var t0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type fakeTrader struct {
	mu      sync.Mutex
	fail    bool
	calls   []domain.SwapRequest
	gate    chan struct{}
	entered chan struct{}
}

func (f *fakeTrader) Swap(_ context.Context, req domain.SwapRequest) (domain.SwapResult, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	n, fail, gate, entered := len(f.calls), f.fail, f.gate, f.entered
	f.mu.Unlock()

	if gate != nil {
		entered <- struct{}{}
		<-gate
	}
	if fail {
		return domain.SwapResult{}, errors.New("route not found")
	}
	return domain.SwapResult{TxHash: fmt.Sprintf("0xtx%d", n), AmountOut: 1}, nil
}

// hold blocks the next swap until release is called. entered fires once
// that swap has been submitted.
func (f *fakeTrader) hold() (entered <-chan struct{}, release func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gate = make(chan struct{})
	f.entered = make(chan struct{}, 1)
	gate := f.gate
	return f.entered, func() {
		f.mu.Lock()
		f.gate, f.entered = nil, nil
		f.mu.Unlock()
		close(gate)
	}
}

func (f *fakeTrader) setFail(v bool) {
	f.mu.Lock()
	f.fail = v
	f.mu.Unlock()
}

func (f *fakeTrader) swaps() []domain.SwapRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.SwapRequest(nil), f.calls...)
}

type fakeOracle struct {
	mu       sync.Mutex
	prices   map[string]float64
	batchErr error
}

func newFakeOracle() *fakeOracle {
	return &fakeOracle{prices: make(map[string]float64)}
}

func (o *fakeOracle) set(tokenID string, price float64) {
	o.mu.Lock()
	o.prices[tokenID] = price
	o.mu.Unlock()
}

func (o *fakeOracle) GetPrice(_ context.Context, tokenID string) (float64, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	p, ok := o.prices[tokenID]
	if !ok {
		return 0, domain.ErrPriceUnavailable
	}
	return p, nil
}

func (o *fakeOracle) GetPrices(_ context.Context, tokenIDs []string) (map[string]float64, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.batchErr != nil {
		return nil, o.batchErr
	}
	out := make(map[string]float64, len(tokenIDs))
	for _, id := range tokenIDs {
		if p, ok := o.prices[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

// recordingBus keeps every published event.
type recordingBus struct {
	mu        sync.Mutex
	published []map[string]any
	streamed  int
}

func (b *recordingBus) Publish(_ context.Context, _ string, payload []byte) error {
	var evt map[string]any
	if err := json.Unmarshal(payload, &evt); err != nil {
		return err
	}
	b.mu.Lock()
	b.published = append(b.published, evt)
	b.mu.Unlock()
	return nil
}

func (b *recordingBus) Subscribe(_ context.Context, _ string) (<-chan []byte, error) {
	return make(chan []byte), nil
}

func (b *recordingBus) StreamAppend(_ context.Context, _ string, _ []byte) error {
	b.mu.Lock()
	b.streamed++
	b.mu.Unlock()
	return nil
}

func (b *recordingBus) StreamRead(_ context.Context, _ string, _ string, _ int) ([]domain.StreamMessage, error) {
	return nil, nil
}

func (b *recordingBus) events() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, len(b.published))
	for i, e := range b.published {
		out[i], _ = e["event"].(string)
	}
	return out
}

type harness struct {
	clock     *clock
	registry  *position.Registry
	engine    *exit.Engine
	admission *AdmissionService
	positions *PositionService
	monitor   *MonitorService
	recovery  *RecoveryService
	store     *memory.PositionStore
	audit     *memory.AuditStore
	bus       *recordingBus
	trader    *fakeTrader
	prices    *fakeOracle
}

func newHarness(t *testing.T, acfg AdmissionConfig) *harness {
	t.Helper()
	h := &harness{
		clock:  &clock{t: t0},
		store:  memory.NewPositionStore(),
		audit:  memory.NewAuditStore(),
		bus:    &recordingBus{},
		trader: &fakeTrader{},
		prices: newFakeOracle(),
	}
	logger := testLogger()

	h.registry = position.NewRegistry(position.Options{
		TrailPercent: 0.01,
		ClosedTTL:    time.Hour,
		MaxOpen:      acfg.MaxConcurrentPositions,
		Now:          h.clock.Now,
	})
	h.engine = exit.NewEngine(exit.Config{Now: h.clock.Now})
	h.admission = NewAdmissionService(h.registry, acfg, logger)
	h.admission.now = h.clock.Now
	h.positions = NewPositionService(PositionDeps{
		Registry:  h.registry,
		Admission: h.admission,
		Engine:    h.engine,
		Executor:  h.trader,
		Store:     h.store,
		Prices:    h.prices,
		Bus:       h.bus,
		Audit:     h.audit,
	}, ExecutionConfig{SwapTimeout: time.Second}, logger)
	h.monitor = NewMonitorService(h.registry, h.engine, h.positions, h.prices, nil, nil, MonitorConfig{
		Interval:       time.Second,
		FetchTimeout:   time.Second,
		Concurrency:    4,
		PendingTimeout: 5 * time.Minute,
	}, logger)
	h.monitor.now = h.clock.Now
	h.recovery = NewRecoveryService(h.store, h.registry, h.engine, nil, logger)
	h.recovery.now = h.clock.Now
	return h
}

func buySignal(id, tokenID string, price, stop float64, targets ...float64) domain.Signal {
	return domain.Signal{
		ID:           id,
		Token:        tokenID,
		TokenID:      tokenID,
		Direction:    domain.DirectionBuy,
		CurrentPrice: price,
		Targets:      targets,
		StopLoss:     stop,
		MaxExitTime:  t0.Add(30 * 24 * time.Hour),
		ReceivedAt:   t0,
	}
}

func putSignal(id, tokenID string, price, stop float64, targets ...float64) domain.Signal {
	sig := buySignal(id, tokenID, price, stop, targets...)
	sig.Direction = domain.DirectionPutOptions
	return sig
}

func request(sig domain.Signal, size float64) domain.SignalRequest {
	return domain.SignalRequest{Signal: sig, Username: "alice", VaultAddress: testVault, Size: size}
}

// open admits sig and returns the new position.
func (h *harness) open(t *testing.T, sig domain.Signal, size float64) domain.Position {
	t.Helper()
	out := h.positions.AddSignal(context.Background(), request(sig, size))
	require.True(t, out.Success, out.Message)
	pos, ok := h.registry.Get(out.PositionID)
	require.True(t, ok)
	return pos
}

func (h *harness) tick(t *testing.T, tokenID string, price float64) {
	t.Helper()
	h.prices.set(tokenID, price)
	require.NoError(t, h.monitor.Tick(context.Background()))
}

func (h *harness) get(t *testing.T, id string) domain.Position {
	t.Helper()
	pos, ok := h.registry.Get(id)
	require.True(t, ok, "position %s not in registry", id)
	return pos
}

func (h *harness) stored(t *testing.T, id string) domain.Position {
	t.Helper()
	rec, ok := h.store.Get(id)
	require.True(t, ok, "position %s not in store", id)
	pos, err := rec.Decode()
	require.NoError(t, err)
	return pos
}
