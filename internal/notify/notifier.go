// Package notify delivers operator alerts for market lifecycle events.
// Alerts fan out to every configured channel (Telegram, Discord, signed
// webhooks); channels are independent, so one failing channel never
// blocks delivery to the rest.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// Alert is one operator notification. Webhook deliveries carry the whole
// struct as their JSON body; chat senders render Title and Message.
type Alert struct {
	Event   string    `json:"event"`
	Title   string    `json:"title"`
	Message string    `json:"message"`
	SentAt  time.Time `json:"sent_at"`
}

// Sender delivers an alert over one channel.
type Sender interface {
	Send(ctx context.Context, alert Alert) error
	// Name identifies the channel in logs (e.g. "telegram").
	Name() string
}

// Notifier dispatches alerts to one or more Senders. It maintains a set
// of allowed event types; Notify only forwards alerts whose event is in
// the allowed set, while NotifyAll bypasses the filter.
type Notifier struct {
	senders []Sender
	events  map[string]bool // allowed event types
	logger  *slog.Logger
}

// NewNotifier creates a Notifier that delivers to the given senders. Only
// events whose type appears in the events slice are forwarded by Notify.
// If events is empty, all event types are allowed.
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

// Notify sends an alert to all senders if the event type is in the
// allowed list. If no events were configured, all events pass.
func (n *Notifier) Notify(ctx context.Context, event, title, message string) error {
	if len(n.events) > 0 && !n.events[event] {
		n.logger.DebugContext(ctx, "event filtered out",
			slog.String("event", event),
		)
		return nil
	}
	return n.dispatch(ctx, Alert{
		Event:   event,
		Title:   title,
		Message: message,
		SentAt:  time.Now().UTC(),
	})
}

// NotifyAll sends an alert to all senders regardless of event type.
func (n *Notifier) NotifyAll(ctx context.Context, event, title, message string) error {
	return n.dispatch(ctx, Alert{
		Event:   event,
		Title:   title,
		Message: message,
		SentAt:  time.Now().UTC(),
	})
}

// dispatch fans the alert out to all senders concurrently, so one slow
// channel cannot hold up the others. Errors are collected and joined; a
// failing sender does not prevent delivery to the remaining ones.
func (n *Notifier) dispatch(ctx context.Context, alert Alert) error {
	if len(n.senders) == 0 {
		return nil
	}

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for _, s := range n.senders {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.Send(ctx, alert); err != nil {
				n.logger.ErrorContext(ctx, "sender failed",
					slog.String("sender", s.Name()),
					slog.String("event", alert.Event),
					slog.String("error", err.Error()),
				)
				mu.Lock()
				errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
				mu.Unlock()
				return
			}
			n.logger.DebugContext(ctx, "alert delivered",
				slog.String("sender", s.Name()),
				slog.String("event", alert.Event),
			)
		}()
	}
	wg.Wait()

	if len(errs) > 0 {
		return fmt.Errorf("notify: %w", errors.Join(errs...))
	}
	return nil
}
