package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/purvik6062/trading-ai-agent-sub001/internal/domain"
)

type fakeSender struct {
	name   string
	err    error
	titles []string
}

func (f *fakeSender) Send(_ context.Context, title, _ string) error {
	f.titles = append(f.titles, title)
	return f.err
}

func (f *fakeSender) Name() string { return f.name }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNotifierFiltersEvents(t *testing.T) {
	s := &fakeSender{name: "fake"}
	n := NewNotifier([]Sender{s}, []string{"position_closed", " position_failed "}, testLogger())
	ctx := context.Background()

	require.NoError(t, n.Notify(ctx, "position_opened", "opened", ""))
	require.NoError(t, n.Notify(ctx, "position_failed", "failed", ""))
	require.NoError(t, n.NotifyAll(ctx, "forced", ""))

	assert.Equal(t, []string{"failed", "forced"}, s.titles)
	assert.True(t, n.Enabled())
}

func TestNotifierContinuesAfterFailure(t *testing.T) {
	boom := errors.New("boom")
	bad := &fakeSender{name: "bad", err: boom}
	good := &fakeSender{name: "good"}
	n := NewNotifier([]Sender{bad, good}, nil, testLogger())

	err := n.Notify(context.Background(), "any", "t", "m")
	assert.ErrorIs(t, err, boom)
	assert.Len(t, good.titles, 1)
}

func TestNilNotifierDisabled(t *testing.T) {
	var n *Notifier
	assert.False(t, n.Enabled())
	assert.False(t, NewNotifier(nil, nil, testLogger()).Enabled())
	assert.NoError(t, n.Notify(context.Background(), "position_closed", "t", "m"))
}

func TestTelegramSender(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/botTOKEN/sendMessage", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s := NewTelegramSender("TOKEN", "42")
	s.baseURL = srv.URL
	require.NoError(t, s.Send(context.Background(), "Title", "body"))
	assert.Equal(t, "42", got["chat_id"])
	assert.Equal(t, "*Title*\nbody", got["text"])
}

func TestDiscordSenderStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	err := NewDiscordSender(srv.URL).Send(context.Background(), "t", "m")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
}

func TestPositionSummary(t *testing.T) {
	pos := domain.Position{
		ID:       "p1",
		Username: "alice",
		Signal: domain.Signal{
			Token:        "ARB",
			Direction:    domain.DirectionBuy,
			CurrentPrice: 1.2,
			Targets:      []float64{1.3, 1.4},
		},
		TrailingStop: domain.TrailingStopConfig{TargetsHit: []bool{true, false}},
		Status:       domain.PositionStatusClosed,
		ExitReason:   domain.ExitReasonTrailingStop,
		ExitPrice:    1.33,
		ExitTxHash:   "0xabc",
	}
	assert.Equal(t, "ARB buy closed", PositionTitle(pos))
	assert.Equal(t, "position p1 for alice\nentry 1.2, exit 1.33 (trailing_stop)\ntargets hit 1/2\ntx 0xabc", PositionSummary(pos))
}
