package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validSignal() Signal {
	return Signal{
		ID:           "sig-1",
		Token:        "WETH",
		TokenID:      "0xweth",
		Direction:    DirectionBuy,
		CurrentPrice: 100,
		Targets:      []float64{110, 120, 130},
		StopLoss:     90,
		MaxExitTime:  time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestParseDirection(t *testing.T) {
	tests := []struct {
		in      string
		want    Direction
		wantErr bool
	}{
		{"buy", DirectionBuy, false},
		{" BUY ", DirectionBuy, false},
		{"long", DirectionBuy, false},
		{"put options", DirectionPutOptions, false},
		{"Put_Options", DirectionPutOptions, false},
		{"puts", DirectionPutOptions, false},
		{"hold", DirectionHold, false},
		{"sell", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseDirection(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrUnknownDirection)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDirectionOpposes(t *testing.T) {
	assert.True(t, DirectionBuy.Opposes(DirectionPutOptions))
	assert.True(t, DirectionPutOptions.Opposes(DirectionBuy))
	assert.False(t, DirectionBuy.Opposes(DirectionBuy))
	assert.False(t, DirectionHold.Opposes(DirectionBuy))
	assert.False(t, DirectionBuy.Opposes(DirectionHold))
}

func TestSignalValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Signal)
		field  string
	}{
		{"valid", func(*Signal) {}, ""},
		{"hold is structurally valid", func(s *Signal) { s.Direction = DirectionHold }, ""},
		{"missing token", func(s *Signal) { s.TokenID = " " }, "tokenId"},
		{"unknown direction", func(s *Signal) { s.Direction = "sell" }, "direction"},
		{"zero price", func(s *Signal) { s.CurrentPrice = 0 }, "currentPrice"},
		{"no targets", func(s *Signal) { s.Targets = nil }, "targets"},
		{"descending targets", func(s *Signal) { s.Targets = []float64{130, 120} }, "targets"},
		{"negative target", func(s *Signal) { s.Targets = []float64{-1, 120} }, "targets"},
		{"no stop", func(s *Signal) { s.StopLoss = 0 }, "stopLoss"},
		{"no deadline", func(s *Signal) { s.MaxExitTime = time.Time{} }, "maxExitTime"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sig := validSignal()
			tt.mutate(&sig)
			err := sig.Validate()
			if tt.field == "" {
				assert.NoError(t, err)
				return
			}
			var verr *ValidationError
			require.True(t, errors.As(err, &verr), "got %v", err)
			assert.Equal(t, tt.field, verr.Field)
		})
	}
}

func TestPositionCloneIsDeep(t *testing.T) {
	closed := time.Now()
	pos := Position{
		ID:           "p1",
		Signal:       validSignal(),
		TrailingStop: NewTrailingStopConfig(0.01, 3, []float64{40, 40, 20}),
		TargetExits:  []TargetExit{{TargetIndex: 0, AmountExited: 10}},
		ClosedAt:     &closed,
	}
	pos.Signal.Metadata = map[string]string{"source": "feed"}

	cp := pos.Clone()
	cp.Signal.Targets[0] = 1
	cp.Signal.Metadata["source"] = "other"
	cp.TrailingStop.TargetsHit[0] = true
	cp.TrailingStop.PartialExitPercentages[0] = 99
	cp.TargetExits[0].AmountExited = 99
	*cp.ClosedAt = closed.Add(time.Hour)

	assert.Equal(t, 110.0, pos.Signal.Targets[0])
	assert.Equal(t, "feed", pos.Signal.Metadata["source"])
	assert.False(t, pos.TrailingStop.TargetsHit[0])
	assert.Equal(t, 40.0, pos.TrailingStop.PartialExitPercentages[0])
	assert.Equal(t, 10.0, pos.TargetExits[0].AmountExited)
	assert.Equal(t, closed, *pos.ClosedAt)
}

func TestRecordExitFloorsRemaining(t *testing.T) {
	pos := Position{OriginalAmount: 100, RemainingAmount: 100}
	pos.RecordExit(TargetExit{AmountExited: 60})
	pos.RecordExit(TargetExit{AmountExited: 60})
	assert.Zero(t, pos.RemainingAmount)
	assert.Equal(t, 120.0, pos.ExitedAmount())
}

func TestPositionRecordRoundTrip(t *testing.T) {
	ts := NewTrailingStopConfig(0.02, 3, nil)
	ts.TargetsHit[0] = true
	ts.TP1Hit = true
	ts.PeakPrice = 115
	pos := Position{
		ID:              "p1",
		Signal:          validSignal(),
		TrailingStop:    ts,
		Status:          PositionStatusActive,
		OriginalAmount:  1000,
		RemainingAmount: 500,
	}

	rec, err := EncodePositionRecord(pos, "alice", "0xvault")
	require.NoError(t, err)
	assert.Equal(t, "alice", rec.Username)
	assert.Equal(t, PositionStatusActive, rec.Status)

	// Columns win over the document.
	rec.Status = PositionStatusExpired
	got, err := rec.Decode()
	require.NoError(t, err)
	assert.Equal(t, PositionStatusExpired, got.Status)
	assert.Equal(t, "0xvault", got.VaultAddress)
	assert.Equal(t, []bool{true, false, false}, got.TrailingStop.TargetsHit)
	assert.Equal(t, 115.0, got.TrailingStop.PeakPrice)
	assert.Equal(t, PhaseTrailing, got.TrailingStop.Phase())
}

func TestPositionRecordDecodeRejectsBadDocuments(t *testing.T) {
	_, err := PositionRecord{ID: "x", Document: []byte("{")}.Decode()
	assert.Error(t, err)

	pos := Position{ID: "y", Signal: validSignal(), TrailingStop: NewTrailingStopConfig(0.01, 1, nil)}
	rec, err := EncodePositionRecord(pos, "alice", "0xvault")
	require.NoError(t, err)
	_, err = rec.Decode()
	assert.ErrorContains(t, err, "1 target flags for 3 targets")
}

func TestStatusPredicates(t *testing.T) {
	for _, s := range []PositionStatus{PositionStatusPending, PositionStatusActive} {
		assert.True(t, s.Open(), s)
		assert.False(t, s.Terminal(), s)
	}
	for _, s := range []PositionStatus{PositionStatusClosed, PositionStatusExpired, PositionStatusFailed} {
		assert.False(t, s.Open(), s)
		assert.True(t, s.Terminal(), s)
	}
}

func TestErrorsUnwrap(t *testing.T) {
	cause := errors.New("boom")
	assert.ErrorIs(t, &ExecutionError{PositionID: "p", Err: cause}, cause)
	assert.ErrorIs(t, &PersistenceError{Op: "upsert", ID: "p", Err: cause}, cause)
	assert.ErrorIs(t, &RecoveryError{RecordID: "p", Err: cause}, cause)
}

func TestPhaseFollowsFirstTarget(t *testing.T) {
	ts := NewTrailingStopConfig(0.01, 2, nil)
	assert.Equal(t, PhaseGuarding, ts.Phase())

	ts.TargetsHit[0] = true
	assert.Equal(t, PhaseTrailing, ts.Phase())

	ts = NewTrailingStopConfig(0.01, 2, nil)
	ts.TP1Hit = true
	assert.Equal(t, PhaseTrailing, ts.Phase())
}

func TestDecodeRestoresMissingTP1Flag(t *testing.T) {
	rec := PositionRecord{
		ID:     "p1",
		Status: PositionStatusActive,
		Document: []byte(`{"signal":{"targets":[110,130]},` +
			`"trailingStop":{"trailPercent":0.01,"targetsHit":[true,false],"peakPrice":115}}`),
	}
	pos, err := rec.Decode()
	require.NoError(t, err)
	assert.True(t, pos.TrailingStop.TP1Hit)
	assert.True(t, pos.TrailingStop.IsActive)
	assert.Equal(t, PhaseTrailing, pos.TrailingStop.Phase())
}
