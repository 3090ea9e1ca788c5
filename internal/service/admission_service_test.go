package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/purvik6062/trading-ai-agent-sub001/internal/domain"
	"github.com/purvik6062/trading-ai-agent-sub001/internal/position"
)

func seed(t *testing.T, r *position.Registry, sig domain.Signal, size float64) domain.Position {
	t.Helper()
	pos, err := r.Create(sig, size, position.Owner{Username: "bob", VaultAddress: testVault})
	require.NoError(t, err)
	pos, err = r.Activate(pos.ID, "0xentry")
	require.NoError(t, err)
	return pos
}

func newAdmission(cfg AdmissionConfig) (*AdmissionService, *position.Registry) {
	r := position.NewRegistry(position.Options{TrailPercent: 0.01, Now: func() time.Time { return t0 }})
	s := NewAdmissionService(r, cfg, testLogger())
	s.now = func() time.Time { return t0 }
	return s, r
}

func TestAdmissionHoldIsCancelled(t *testing.T) {
	s, _ := newAdmission(AdmissionConfig{})
	sig := buySignal("s1", "weth", 100, 90, 110)
	sig.Direction = domain.DirectionHold

	d := s.Evaluate(context.Background(), sig, 100)
	require.IsType(t, domain.Cancel{}, d)
}

func TestAdmissionGlobalCeiling(t *testing.T) {
	s, r := newAdmission(AdmissionConfig{MaxConcurrentPositions: 1})
	seed(t, r, buySignal("s1", "weth", 100, 90, 110), 100)

	d := s.Evaluate(context.Background(), buySignal("s2", "arb", 1, 0.9, 1.1), 100)
	c, ok := d.(domain.Cancel)
	require.True(t, ok)
	assert.Contains(t, c.Reason, "max concurrent positions reached (1/1)")
}

func TestAdmissionPerTokenCeilingMerges(t *testing.T) {
	s, r := newAdmission(AdmissionConfig{MaxPositionsPerToken: 1, MergePolicy: domain.MergeSimilar})
	existing := seed(t, r, buySignal("s1", "weth", 100, 90, 110, 120), 100)

	d := s.Evaluate(context.Background(), buySignal("s2", "weth", 102, 92, 112), 50)
	assert.Equal(t, domain.Merge{PositionID: existing.ID}, d)

	// Too far from the existing entry to merge.
	d = s.Evaluate(context.Background(), buySignal("s3", "weth", 150, 140, 160), 50)
	c, ok := d.(domain.Cancel)
	require.True(t, ok)
	assert.Contains(t, c.Reason, "max positions per token")

	// Opposite direction never merges.
	d = s.Evaluate(context.Background(), putSignal("s4", "weth", 100, 110, 80, 90), 50)
	assert.IsType(t, domain.Cancel{}, d)
}

func TestAdmissionPerTokenCeilingWithoutMerge(t *testing.T) {
	s, r := newAdmission(AdmissionConfig{MaxPositionsPerToken: 1, MergePolicy: domain.MergeNever})
	seed(t, r, buySignal("s1", "weth", 100, 90, 110), 100)

	d := s.Evaluate(context.Background(), buySignal("s2", "weth", 100, 90, 110), 50)
	assert.IsType(t, domain.Cancel{}, d)
}

func TestAdmissionExposureCeilings(t *testing.T) {
	s, r := newAdmission(AdmissionConfig{MaxTotalExposure: 1500, MaxTokenExposure: 1200})
	seed(t, r, buySignal("s1", "weth", 100, 90, 110), 1000)

	d := s.Evaluate(context.Background(), buySignal("s2", "arb", 1, 0.9, 1.1), 600)
	c, ok := d.(domain.Cancel)
	require.True(t, ok)
	assert.Contains(t, c.Reason, "total exposure")

	d = s.Evaluate(context.Background(), buySignal("s3", "weth", 100, 90, 110), 300)
	c, ok = d.(domain.Cancel)
	require.True(t, ok)
	assert.Contains(t, c.Reason, "token exposure")

	d = s.Evaluate(context.Background(), buySignal("s4", "arb", 1, 0.9, 1.1), 400)
	assert.Equal(t, domain.Separate{}, d)
}

func TestAdmissionConflictPolicies(t *testing.T) {
	incoming := putSignal("new", "weth", 100, 150, 70, 80, 90)

	tests := []struct {
		name   string
		policy domain.ConflictPolicy
		want   domain.DecisionKind
	}{
		{"first wins", domain.ConflictFirstWins, domain.DecisionCancel},
		{"prioritize latest", domain.ConflictPrioritizeLatest, domain.DecisionPrioritize},
		{"risk based", domain.ConflictRiskBased, domain.DecisionPrioritize},
		{"separate", domain.ConflictSeparate, domain.DecisionSeparate},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, r := newAdmission(AdmissionConfig{ConflictPolicy: tt.policy})
			existing := seed(t, r, buySignal("old", "weth", 100, 90, 110, 120, 130), 100)

			d := s.Evaluate(context.Background(), incoming, 100)
			assert.Equal(t, tt.want, d.Kind())
			if p, ok := d.(domain.Prioritize); ok {
				assert.Equal(t, []string{existing.ID}, p.Conflicting)
			}
		})
	}
}

func TestAdmissionRiskBasedKeepsSaferPosition(t *testing.T) {
	s, r := newAdmission(AdmissionConfig{ConflictPolicy: domain.ConflictRiskBased})
	seed(t, r, buySignal("old", "weth", 100, 90, 110, 120, 130), 100)

	// Tight stop, one target, near deadline: riskier than the open position.
	risky := putSignal("new", "weth", 100, 101, 90)
	risky.MaxExitTime = t0.Add(24 * time.Hour)

	d := s.Evaluate(context.Background(), risky, 100)
	c, ok := d.(domain.Cancel)
	require.True(t, ok)
	assert.Contains(t, c.Reason, "lower risk")
}

func TestAdmissionSameDirectionIsSeparate(t *testing.T) {
	s, r := newAdmission(AdmissionConfig{ConflictPolicy: domain.ConflictFirstWins})
	seed(t, r, buySignal("old", "weth", 100, 90, 110), 100)

	d := s.Evaluate(context.Background(), buySignal("new", "weth", 101, 91, 111), 100)
	assert.Equal(t, domain.Separate{}, d)
}

func TestRiskScore(t *testing.T) {
	tests := []struct {
		name string
		sig  domain.Signal
		want float64
	}{
		{
			name: "wide stop, three targets, distant deadline",
			sig:  buySignal("a", "weth", 100, 90, 110, 120, 130),
			want: 45,
		},
		{
			name: "tight stop, one target, one day left",
			sig: func() domain.Signal {
				s := buySignal("b", "weth", 100, 99, 110)
				s.MaxExitTime = t0.Add(24 * time.Hour)
				return s
			}(),
			want: 49.5 + 20 + 19,
		},
		{
			name: "overdue deadline keeps growing",
			sig: func() domain.Signal {
				s := buySignal("c", "weth", 100, 50, 110, 120, 130)
				s.MaxExitTime = t0.Add(-10 * 24 * time.Hour)
				return s
			}(),
			want: 25 + 30,
		},
		{
			name: "total is capped at 100",
			sig: func() domain.Signal {
				s := buySignal("e", "weth", 100, 100, 110)
				s.MaxExitTime = t0.Add(-30 * 24 * time.Hour)
				return s
			}(),
			want: 100,
		},
		{
			name: "zero price is maximal risk",
			sig:  buySignal("d", "weth", 0, 90, 110),
			want: 100,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, RiskScore(tt.sig, t0), 1e-9)
		})
	}
}
