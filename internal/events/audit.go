package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/updownhq/updown/internal/domain"
)

// AuditSink records every event in the audit log, giving operators a
// queryable history alongside the broker stream.
type AuditSink struct {
	store domain.AuditStore
}

// NewAuditSink creates an AuditSink over the given store.
func NewAuditSink(store domain.AuditStore) *AuditSink {
	return &AuditSink{store: store}
}

var _ domain.EventSink = (*AuditSink)(nil)

// Publish flattens the event payload into the audit detail map.
func (s *AuditSink) Publish(ctx context.Context, ev domain.Event) error {
	detail := map[string]any{"event_id": ev.ID}

	if ev.Data != nil {
		raw, err := json.Marshal(ev.Data)
		if err != nil {
			return fmt.Errorf("events: marshal audit payload %s: %w", ev.Type, err)
		}
		var fields map[string]any
		if err := json.Unmarshal(raw, &fields); err != nil {
			return fmt.Errorf("events: flatten audit payload %s: %w", ev.Type, err)
		}
		for k, v := range fields {
			detail[k] = v
		}
	}

	if err := s.store.Log(ctx, string(ev.Type), detail); err != nil {
		return fmt.Errorf("events: audit %s: %w", ev.Type, err)
	}
	return nil
}
