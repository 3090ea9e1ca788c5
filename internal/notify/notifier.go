// Package notify fans operator alerts out to chat channels. Alerts can be
// restricted to a set of lifecycle events.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/purvik6062/trading-ai-agent-sub001/internal/domain"
)

// Sender delivers one message to one channel.
type Sender interface {
	Send(ctx context.Context, title, message string) error
	Name() string
}

// Notifier dispatches to every Sender. Notify honours the event filter;
// NotifyAll does not.
type Notifier struct {
	senders []Sender
	events  map[string]bool
	logger  *slog.Logger
}

// NewNotifier creates a Notifier. An empty events list lets every event
// through.
func NewNotifier(senders []Sender, events []string, logger *slog.Logger) *Notifier {
	allowed := make(map[string]bool, len(events))
	for _, e := range events {
		if e = strings.TrimSpace(e); e != "" {
			allowed[e] = true
		}
	}
	return &Notifier{
		senders: senders,
		events:  allowed,
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// Enabled reports whether any sender is configured.
func (n *Notifier) Enabled() bool {
	return n != nil && len(n.senders) > 0
}

// Notify sends when event passes the filter. A nil Notifier drops everything.
func (n *Notifier) Notify(ctx context.Context, event, title, message string) error {
	if n == nil {
		return nil
	}
	if len(n.events) > 0 && !n.events[event] {
		n.logger.DebugContext(ctx, "event filtered out", slog.String("event", event))
		return nil
	}
	return n.dispatch(ctx, title, message)
}

// NotifyAll sends regardless of the filter.
func (n *Notifier) NotifyAll(ctx context.Context, title, message string) error {
	return n.dispatch(ctx, title, message)
}

// dispatch tries every sender; one failing does not stop the rest.
func (n *Notifier) dispatch(ctx context.Context, title, message string) error {
	var errs []error
	for _, s := range n.senders {
		if err := s.Send(ctx, title, message); err != nil {
			n.logger.ErrorContext(ctx, "sender failed",
				slog.String("sender", s.Name()),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
			continue
		}
		n.logger.DebugContext(ctx, "notification sent",
			slog.String("sender", s.Name()),
			slog.String("title", title),
		)
	}
	if len(errs) > 0 {
		return fmt.Errorf("notify: %d sender(s) failed: %w", len(errs), errors.Join(errs...))
	}
	return nil
}

// PositionTitle is the headline used for lifecycle alerts,
// e.g. "ARB put_options closed".
func PositionTitle(pos domain.Position) string {
	token := pos.Signal.Token
	if token == "" {
		token = pos.Signal.TokenID
	}
	return fmt.Sprintf("%s %s %s", token, pos.Signal.Direction, pos.Status)
}

// PositionSummary renders the body of a lifecycle alert.
func PositionSummary(pos domain.Position) string {
	var b strings.Builder
	fmt.Fprintf(&b, "position %s", pos.ID)
	if pos.Username != "" {
		fmt.Fprintf(&b, " for %s", pos.Username)
	}
	fmt.Fprintf(&b, "\nentry %.6g", pos.EntryPrice())
	if pos.ExitReason != "" {
		fmt.Fprintf(&b, ", exit %.6g (%s)", pos.ExitPrice, pos.ExitReason)
	}
	if n := pos.TrailingStop.HitCount(); n > 0 {
		fmt.Fprintf(&b, "\ntargets hit %d/%d", n, len(pos.Signal.Targets))
	}
	if pos.FailureReason != "" {
		fmt.Fprintf(&b, "\nfailure: %s", pos.FailureReason)
	}
	if pos.ExitTxHash != "" {
		fmt.Fprintf(&b, "\ntx %s", pos.ExitTxHash)
	}
	return b.String()
}
