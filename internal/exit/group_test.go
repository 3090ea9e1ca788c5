package exit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/purvik6062/trading-ai-agent-sub001/internal/domain"
)

func groupMembers() (*domain.Position, *domain.Position) {
	a := buyPosition(300, 110, 120)
	a.ID = "a"
	b := buyPosition(100, 110, 130)
	b.ID = "b"
	b.Signal.StopLoss = 95
	return a, b
}

func TestEvaluateGroupPropagatesTarget(t *testing.T) {
	e := newTestEngine()
	a, b := groupMembers()

	d := e.EvaluateGroup([]*domain.Position{a, b}, []float64{110, 120, 130}, 111)
	require.False(t, d.Full)
	require.Len(t, d.Partials, 2)
	assert.Equal(t, 50.0, d.Partials["a"].Percentage)
	assert.Equal(t, 50.0, d.Partials["b"].Percentage)
	assert.Equal(t, 0, d.Partials["b"].TargetIndex)
	assert.True(t, a.TrailingStop.TP1Hit)
	assert.True(t, b.TrailingStop.TP1Hit)
}

func TestEvaluateGroupOnlyMembersHoldingTarget(t *testing.T) {
	e := newTestEngine()
	a, b := groupMembers()
	a.TrailingStop.TargetsHit[0] = true
	a.TrailingStop.TP1Hit = true
	a.TrailingStop.PeakPrice = 110
	b.TrailingStop.TargetsHit[0] = true
	b.TrailingStop.TP1Hit = true
	b.TrailingStop.PeakPrice = 110

	d := e.EvaluateGroup([]*domain.Position{a, b}, []float64{110, 120, 130}, 121)
	require.Len(t, d.Partials, 1)
	p := d.Partials["a"]
	assert.Equal(t, 1, p.TargetIndex)
	assert.Equal(t, 100.0, p.Percentage)
	assert.False(t, b.TrailingStop.TargetsHit[1])
}

func TestEvaluateGroupStopLossExitsAll(t *testing.T) {
	e := newTestEngine()
	a, b := groupMembers()

	d := e.EvaluateGroup([]*domain.Position{a, b}, []float64{110, 120, 130}, 94)
	assert.True(t, d.Full)
	assert.Equal(t, domain.ExitReasonStopLoss, d.Reason)
	assert.Equal(t, "b", d.TriggeredBy)
}

func TestEvaluateGroupTimeExitExitsAll(t *testing.T) {
	e := newTestEngine()
	a, b := groupMembers()
	a.Signal.MaxExitTime = testNow.Add(-time.Minute)

	d := e.EvaluateGroup([]*domain.Position{a, b}, []float64{110, 120, 130}, 111)
	assert.True(t, d.Full)
	assert.Equal(t, domain.ExitReasonTimeExit, d.Reason)
	assert.Equal(t, "a", d.TriggeredBy)
	assert.Empty(t, d.Partials)
}

func TestEvaluateGroupTrailingIsPerMember(t *testing.T) {
	e := newTestEngine()
	a, b := groupMembers()
	a.TrailingStop.TargetsHit[0] = true
	a.TrailingStop.TP1Hit = true
	a.TrailingStop.PeakPrice = 118
	b.TrailingStop.TargetsHit[0] = true
	b.TrailingStop.TP1Hit = true
	b.TrailingStop.PeakPrice = 110

	d := e.EvaluateGroup([]*domain.Position{a, b}, []float64{110, 120, 130}, 112)
	assert.False(t, d.Full)
	require.Contains(t, d.Individual, "a")
	assert.Equal(t, domain.ExitReasonTrailingStop, d.Individual["a"].Reason)
	assert.NotContains(t, d.Individual, "b")
}

func TestEvaluateGroupNothing(t *testing.T) {
	e := newTestEngine()
	a, b := groupMembers()

	d := e.EvaluateGroup([]*domain.Position{a, b}, []float64{110, 120, 130}, 100)
	assert.True(t, d.Empty())
}
