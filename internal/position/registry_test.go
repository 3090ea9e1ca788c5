package position

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/purvik6062/trading-ai-agent-sub001/internal/domain"
)

var testNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestRegistry() *Registry {
	return NewRegistry(Options{
		TrailPercent: 0.05,
		ClosedTTL:    time.Hour,
		Now:          func() time.Time { return testNow },
	})
}

func testSignal(token string, dir domain.Direction, price float64, targets ...float64) domain.Signal {
	return domain.Signal{
		ID:           "sig-" + token,
		Token:        token,
		TokenID:      "0x" + token,
		Direction:    dir,
		CurrentPrice: price,
		Targets:      targets,
		StopLoss:     price * 0.9,
		MaxExitTime:  testNow.Add(72 * time.Hour),
	}
}

func TestRegistryCreate(t *testing.T) {
	r := newTestRegistry()
	sig := testSignal("eth", domain.DirectionBuy, 100, 110, 120, 130)

	pos, err := r.Create(sig, 1000, Owner{Username: "alice", VaultAddress: "0xvault"})
	require.NoError(t, err)

	assert.NotEmpty(t, pos.ID)
	assert.Equal(t, domain.PositionStatusPending, pos.Status)
	assert.Equal(t, 1000.0, pos.OriginalAmount)
	assert.Equal(t, 1000.0, pos.RemainingAmount)
	assert.Empty(t, pos.TargetExits)
	assert.Equal(t, []bool{false, false, false}, pos.TrailingStop.TargetsHit)
	assert.Equal(t, domain.PhaseGuarding, pos.TrailingStop.Phase())
	assert.Equal(t, "alice", pos.Username)

	g, ok := r.Group(sig.TokenID)
	require.True(t, ok)
	assert.Equal(t, []string{pos.ID}, g.MemberIDs)
	assert.Equal(t, 1000.0, g.TotalExposure)
	assert.Equal(t, domain.ExitStrategyIndividual, g.ExitStrategy)
}

func TestRegistryCreateRejectsNonPositiveSize(t *testing.T) {
	r := newTestRegistry()
	_, err := r.Create(testSignal("eth", domain.DirectionBuy, 100, 110), 0, Owner{})
	require.Error(t, err)
}

func TestRegistryReadsAreCopies(t *testing.T) {
	r := newTestRegistry()
	pos, err := r.Create(testSignal("eth", domain.DirectionBuy, 100, 110, 120), 10, Owner{})
	require.NoError(t, err)

	pos.Signal.Targets[0] = 1
	pos.TrailingStop.TargetsHit[0] = true

	got, ok := r.Get(pos.ID)
	require.True(t, ok)
	assert.Equal(t, 110.0, got.Signal.Targets[0])
	assert.False(t, got.TrailingStop.TargetsHit[0])
}

func TestRegistryGroupAggregates(t *testing.T) {
	r := newTestRegistry()
	a, err := r.Create(testSignal("eth", domain.DirectionBuy, 100, 110, 120), 300, Owner{})
	require.NoError(t, err)
	_, err = r.Create(testSignal("eth", domain.DirectionBuy, 200, 120, 140), 100, Owner{})
	require.NoError(t, err)

	g, ok := r.Group("0xeth")
	require.True(t, ok)
	assert.Len(t, g.MemberIDs, 2)
	assert.InDelta(t, 400, g.TotalExposure, 1e-9)
	assert.InDelta(t, (100*300+200*100)/400.0, g.AverageEntryPrice, 1e-9)
	assert.Equal(t, []float64{110, 120, 140}, g.CombinedTargets)
	assert.Equal(t, domain.ExitStrategyGrouped, g.ExitStrategy)

	_, err = r.Close(a.ID, 105, domain.ExitReasonManual, "0xtx")
	require.NoError(t, err)

	g, ok = r.Group("0xeth")
	require.True(t, ok)
	assert.Len(t, g.MemberIDs, 1)
	assert.InDelta(t, 100, g.TotalExposure, 1e-9)
	assert.Equal(t, domain.ExitStrategyIndividual, g.ExitStrategy)
	assert.Equal(t, []float64{120, 140}, g.CombinedTargets)
}

func TestRegistryGroupDeletedWhenEmpty(t *testing.T) {
	r := newTestRegistry()
	pos, err := r.Create(testSignal("eth", domain.DirectionBuy, 100, 110), 10, Owner{})
	require.NoError(t, err)

	_, err = r.Fail(pos.ID, "entry swap failed")
	require.NoError(t, err)

	_, ok := r.Group("0xeth")
	assert.False(t, ok)
	assert.Empty(t, r.Groups())
}

func TestRegistryClose(t *testing.T) {
	r := newTestRegistry()
	pos, err := r.Create(testSignal("eth", domain.DirectionBuy, 100, 110), 50, Owner{})
	require.NoError(t, err)
	_, err = r.Activate(pos.ID, "0xentry")
	require.NoError(t, err)

	closed, err := r.Close(pos.ID, 91, domain.ExitReasonStopLoss, "0xexit")
	require.NoError(t, err)
	assert.Equal(t, domain.PositionStatusClosed, closed.Status)
	assert.Equal(t, domain.ExitReasonStopLoss, closed.ExitReason)
	assert.Zero(t, closed.RemainingAmount)
	assert.InDelta(t, closed.OriginalAmount, closed.ExitedAmount(), 1e-9)
	assert.Equal(t, testNow.Add(time.Hour), closed.PurgeAfter)
	require.NotNil(t, closed.ClosedAt)
}

func TestRegistryTimeExitExpires(t *testing.T) {
	r := newTestRegistry()
	pos, err := r.Create(testSignal("eth", domain.DirectionBuy, 100, 110), 50, Owner{})
	require.NoError(t, err)

	closed, err := r.Close(pos.ID, 100, domain.ExitReasonTimeExit, "")
	require.NoError(t, err)
	assert.Equal(t, domain.PositionStatusExpired, closed.Status)
}

func TestRegistryTerminalIsImmutable(t *testing.T) {
	r := newTestRegistry()
	pos, err := r.Create(testSignal("eth", domain.DirectionBuy, 100, 110), 50, Owner{})
	require.NoError(t, err)
	_, err = r.Close(pos.ID, 100, domain.ExitReasonManual, "")
	require.NoError(t, err)

	_, err = r.Activate(pos.ID, "")
	assert.True(t, errors.Is(err, domain.ErrPositionTerminal))
	_, err = r.Merge(pos.ID, testSignal("eth", domain.DirectionBuy, 100, 110), 1)
	assert.True(t, errors.Is(err, domain.ErrPositionTerminal))
}

func TestRegistryUnknownPosition(t *testing.T) {
	r := newTestRegistry()
	_, err := r.Activate("missing", "")
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestRegistryMerge(t *testing.T) {
	r := newTestRegistry()
	pos, err := r.Create(testSignal("eth", domain.DirectionBuy, 100, 110, 120), 300, Owner{})
	require.NoError(t, err)
	_, err = r.Commit(pos.ID, func(p *domain.Position) error {
		p.TrailingStop.TargetsHit[0] = true
		p.TrailingStop.TP1Hit = true
		return nil
	})
	require.NoError(t, err)

	incoming := testSignal("eth", domain.DirectionBuy, 102, 130)
	incoming.ID = "sig-2"
	merged, err := r.Merge(pos.ID, incoming, 100)
	require.NoError(t, err)

	assert.Equal(t, 400.0, merged.OriginalAmount)
	assert.Equal(t, 400.0, merged.RemainingAmount)
	// index 0: (110*300 + 130*100)/400, index 1: (120*300 + 130*100)/400
	assert.InDeltaSlice(t, []float64{115, 122.5}, merged.Signal.Targets, 1e-9)
	assert.Equal(t, []bool{false, false}, merged.TrailingStop.TargetsHit)
	assert.False(t, merged.TrailingStop.TP1Hit)
	assert.InDelta(t, 100.5, merged.Signal.CurrentPrice, 1e-9)
	assert.Equal(t, "sig-eth", merged.Signal.ID)
	assert.Equal(t, "sig-2", merged.Signal.Metadata["merged_signal_id"])
}

func TestRegistryRestoreIsIdempotent(t *testing.T) {
	r := newTestRegistry()
	pos := domain.Position{
		ID:              "p1",
		Signal:          testSignal("eth", domain.DirectionBuy, 100, 110),
		TrailingStop:    domain.NewTrailingStopConfig(0.05, 1, nil),
		Status:          domain.PositionStatusActive,
		OriginalAmount:  10,
		RemainingAmount: 10,
	}
	require.NoError(t, r.Restore(pos))
	err := r.Restore(pos)
	assert.True(t, errors.Is(err, domain.ErrAlreadyExists))

	g, ok := r.Group("0xeth")
	require.True(t, ok)
	assert.Equal(t, []string{"p1"}, g.MemberIDs)
}

func TestRegistryPurge(t *testing.T) {
	now := testNow
	r := NewRegistry(Options{ClosedTTL: time.Minute, Now: func() time.Time { return now }})
	open, err := r.Create(testSignal("eth", domain.DirectionBuy, 100, 110), 10, Owner{})
	require.NoError(t, err)
	done, err := r.Create(testSignal("btc", domain.DirectionBuy, 100, 110), 10, Owner{})
	require.NoError(t, err)
	_, err = r.Close(done.ID, 100, domain.ExitReasonManual, "")
	require.NoError(t, err)

	assert.Empty(t, r.Purge(now.Add(30*time.Second)))

	purged := r.Purge(now.Add(time.Minute))
	require.Len(t, purged, 1)
	assert.Equal(t, done.ID, purged[0].ID)

	_, ok := r.Get(done.ID)
	assert.False(t, ok)
	_, ok = r.Get(open.ID)
	assert.True(t, ok)
}

func TestRegistryCountsAndExposure(t *testing.T) {
	r := newTestRegistry()
	_, err := r.Create(testSignal("eth", domain.DirectionBuy, 100, 110), 10, Owner{})
	require.NoError(t, err)
	b, err := r.Create(testSignal("btc", domain.DirectionBuy, 100, 110), 20, Owner{})
	require.NoError(t, err)

	assert.Equal(t, 2, r.OpenCount())
	assert.InDelta(t, 30, r.TotalExposure(), 1e-9)
	assert.Len(t, r.ListByToken("0xbtc"), 1)

	_, err = r.Close(b.ID, 100, domain.ExitReasonManual, "")
	require.NoError(t, err)
	assert.Equal(t, 1, r.OpenCount())
	assert.Len(t, r.ListActive(), 1)
}

func TestRegistryMaxOpen(t *testing.T) {
	r := NewRegistry(Options{MaxOpen: 2, Now: func() time.Time { return testNow }})
	first, err := r.Create(testSignal("eth", domain.DirectionBuy, 100, 110), 10, Owner{})
	require.NoError(t, err)
	_, err = r.Create(testSignal("arb", domain.DirectionBuy, 1, 2), 10, Owner{})
	require.NoError(t, err)

	_, err = r.Create(testSignal("op", domain.DirectionBuy, 2, 3), 10, Owner{})
	require.ErrorIs(t, err, domain.ErrMaxPositions)
	assert.Contains(t, err.Error(), "(2/2)")
	assert.Equal(t, 2, r.OpenCount())
	_, ok := r.Group("0xop")
	assert.False(t, ok)

	// A terminal position frees its slot.
	_, err = r.Fail(first.ID, "entry swap failed")
	require.NoError(t, err)
	_, err = r.Create(testSignal("op", domain.DirectionBuy, 2, 3), 10, Owner{})
	assert.NoError(t, err)
}

func TestRegistryTerminalMemberLeavesGroup(t *testing.T) {
	r := newTestRegistry()
	a, err := r.Create(testSignal("eth", domain.DirectionBuy, 100, 110), 10, Owner{})
	require.NoError(t, err)
	b, err := r.Create(testSignal("eth", domain.DirectionBuy, 100, 120), 30, Owner{})
	require.NoError(t, err)

	g, ok := r.Group("0xeth")
	require.True(t, ok)
	assert.Equal(t, domain.ExitStrategyGrouped, g.ExitStrategy)

	_, err = r.Close(a.ID, 105, domain.ExitReasonManual, "")
	require.NoError(t, err)

	g, ok = r.Group("0xeth")
	require.True(t, ok)
	assert.Equal(t, []string{b.ID}, g.MemberIDs)
	assert.Equal(t, 30.0, g.TotalExposure)
	assert.Equal(t, domain.ExitStrategyIndividual, g.ExitStrategy)
	assert.Equal(t, []float64{120}, g.CombinedTargets)
}
