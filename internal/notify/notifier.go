// Package notify delivers market and operational alerts to chat channels.
// Every alert goes to all registered senders (Telegram, Discord); a failing
// sender never blocks the others. Event filtering lets operators mute one
// kind of alert.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/alanyoungcy/marketscout/internal/domain"
	"github.com/alanyoungcy/marketscout/internal/engine"
)

// Event types accepted by NewNotifier's filter.
const (
	EventMarket      = "market"
	EventOperational = "operational"
)

// ErrNoSenders is returned when an alert has nowhere to go.
var ErrNoSenders = errors.New("notify: no senders configured")

// Sender is the interface that each notification channel must implement.
type Sender interface {
	// Send delivers a notification with the given title and message body.
	Send(ctx context.Context, title, message string) error
	// Name returns a human-readable identifier for the sender (e.g. "telegram").
	Name() string
}

// Notifier dispatches alerts to one or more Senders.
type Notifier struct {
	senders []Sender
	events  map[string]bool // allowed event types
	logger  *slog.Logger
}

var _ engine.Notifier = (*Notifier)(nil)

// NewNotifier creates a Notifier. Only event types in events are forwarded;
// an empty list allows all of them.
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

// Senders returns the names of the configured senders.
func (n *Notifier) Senders() []string {
	names := make([]string, len(n.senders))
	for i, s := range n.senders {
		names[i] = s.Name()
	}
	return names
}

// NotifyMarket sends a market alert. It fails when no sender accepted it, so
// the market stays eligible for the next scan.
func (n *Notifier) NotifyMarket(ctx context.Context, m domain.Market) error {
	if !n.allowed(EventMarket) {
		return nil
	}
	title, body := FormatMarket(m)
	return n.dispatch(ctx, title, body)
}

// NotifyOperational sends an operational alert to the admin channels.
func (n *Notifier) NotifyOperational(ctx context.Context, a engine.OpsAlert) error {
	if !n.allowed(EventOperational) {
		return nil
	}
	title, body := FormatOperational(a)
	return n.dispatch(ctx, title, body)
}

func (n *Notifier) allowed(event string) bool {
	return len(n.events) == 0 || n.events[event]
}

// dispatch sends to every sender and reports an error only if all of them
// failed. Partial failures are logged.
func (n *Notifier) dispatch(ctx context.Context, title, message string) error {
	if len(n.senders) == 0 {
		return ErrNoSenders
	}

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

	if len(errs) == len(n.senders) {
		return fmt.Errorf("notify: all %d sender(s) failed: %w", len(errs), errors.Join(errs...))
	}
	return nil
}
