package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/updownhq/updown/internal/domain"
)

// EventsChannel is the signal bus channel carrying event envelopes between
// instances. Every websocket hub subscribes to it, so clients see changes
// committed by any instance.
const EventsChannel = "updown:events"

// BusSink publishes events to the signal bus.
type BusSink struct {
	bus domain.SignalBus
}

// NewBusSink creates a BusSink over the given bus.
func NewBusSink(bus domain.SignalBus) *BusSink {
	return &BusSink{bus: bus}
}

var _ domain.EventSink = (*BusSink)(nil)

// Publish sends the JSON-encoded event envelope to the events channel.
func (s *BusSink) Publish(ctx context.Context, ev domain.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("events: marshal %s: %w", ev.Type, err)
	}
	if err := s.bus.Publish(ctx, EventsChannel, payload); err != nil {
		return fmt.Errorf("events: bus publish %s: %w", ev.Type, err)
	}
	return nil
}
