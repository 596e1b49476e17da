// Package events implements the sinks that receive committed market
// events: Kafka for downstream consumers, the audit log, the signal bus
// for cross-instance fan-out, and Prometheus counters.
package events

import (
	"context"
	"errors"

	"github.com/updownhq/updown/internal/domain"
)

// Fanout delivers each event to every child sink. A failing child never
// stops delivery to the others; the joined error is returned for logging.
type Fanout struct {
	sinks []domain.EventSink
}

// NewFanout creates a Fanout over the given sinks, skipping nils.
func NewFanout(sinks ...domain.EventSink) *Fanout {
	f := &Fanout{}
	for _, s := range sinks {
		if s != nil {
			f.sinks = append(f.sinks, s)
		}
	}
	return f
}

var _ domain.EventSink = (*Fanout)(nil)

// Publish sends the event to every sink and joins any failures.
func (f *Fanout) Publish(ctx context.Context, ev domain.Event) error {
	var errs []error
	for _, s := range f.sinks {
		if err := s.Publish(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
