package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/purvik6062/trading-ai-agent-sub001/internal/domain"
)

const (
	writeWait         = 10 * time.Second
	pongWait          = 60 * time.Second
	pingPeriod        = (pongWait * 9) / 10
	reconnectDelay    = 2 * time.Second
	maxReconnectDelay = 60 * time.Second
)

// WSSignalFeed reads signals from a websocket endpoint. Each text frame
// carries one signal message. The feed reconnects with exponential backoff
// until ctx is cancelled.
type WSSignalFeed struct {
	url    string
	header http.Header
	out    chan<- domain.SignalRequest
	now    func() time.Time
	logger *slog.Logger
}

// NewWSSignalFeed creates a feed for url. header is sent on every dial and
// may carry an auth token.
func NewWSSignalFeed(url string, header http.Header, out chan<- domain.SignalRequest, logger *slog.Logger) *WSSignalFeed {
	return &WSSignalFeed{
		url:    url,
		header: header,
		out:    out,
		now:    time.Now,
		logger: logger.With(slog.String("component", "ws_signal_feed")),
	}
}

// Run connects and reads until ctx is cancelled.
func (f *WSSignalFeed) Run(ctx context.Context) error {
	delay := reconnectDelay
	for {
		connected, err := f.runConnection(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if connected {
			delay = reconnectDelay
		}
		f.logger.Warn("signal websocket disconnected, reconnecting",
			slog.String("error", err.Error()),
			slog.Duration("delay", delay),
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
		if delay > maxReconnectDelay {
			delay = maxReconnectDelay
		}
	}
}

// runConnection dials once and reads until the connection drops. The bool
// reports whether the dial succeeded.
func (f *WSSignalFeed) runConnection(ctx context.Context) (bool, error) {
	dialer := websocket.Dialer{HandshakeTimeout: 15 * time.Second}
	conn, _, err := dialer.DialContext(ctx, f.url, f.header)
	if err != nil {
		return false, fmt.Errorf("feed/ws: connect: %w", err)
	}
	defer conn.Close()
	f.logger.Info("signal websocket connected", slog.String("url", f.url))

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	done := make(chan struct{})
	defer close(done)
	go f.pingLoop(conn, done)

	// Unblock ReadMessage when ctx ends.
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			conn.Close()
		case <-done:
		}
	}()

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			return true, fmt.Errorf("feed/ws: read: %w: %w", domain.ErrWSDisconnect, err)
		}
		if msgType != websocket.TextMessage {
			continue
		}
		f.handle(ctx, data)
	}
}

func (f *WSSignalFeed) handle(ctx context.Context, data []byte) {
	// Some producers batch several signals into one JSON array frame.
	var batch []json.RawMessage
	if err := json.Unmarshal(data, &batch); err == nil {
		for _, item := range batch {
			f.handleOne(ctx, item)
		}
		return
	}
	f.handleOne(ctx, data)
}

func (f *WSSignalFeed) handleOne(ctx context.Context, data []byte) {
	if err := forward(ctx, data, f.now(), f.out); err != nil {
		f.logger.Warn("signal websocket dropped message",
			slog.String("error", err.Error()),
			slog.Int("payload_len", len(data)),
		)
	}
}

func (f *WSSignalFeed) pingLoop(conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}
