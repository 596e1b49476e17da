package notify

import (
	"context"
	"fmt"

	"github.com/updownhq/updown/internal/domain"
)

// AlertSink bridges committed market events into operator alerts. Only
// administrative events are forwarded; per-bet and per-claim traffic
// stays out of the alert channels, and settlements are reported by the
// keeper with its own summary.
type AlertSink struct {
	notifier *Notifier
}

// NewAlertSink creates an AlertSink over the notifier.
func NewAlertSink(notifier *Notifier) *AlertSink {
	return &AlertSink{notifier: notifier}
}

var _ domain.EventSink = (*AlertSink)(nil)

// Publish forwards pause, unpause, parameter, and rescue events.
func (s *AlertSink) Publish(ctx context.Context, ev domain.Event) error {
	var title, message string

	switch ev.Type {
	case domain.EventMarketPaused:
		title = "market paused"
		message = "Betting and settlement are suspended."
		if p, ok := ev.Data.(domain.ParamsUpdated); ok {
			message = fmt.Sprintf("Paused by %s. Betting and settlement are suspended.", p.Actor)
		}
	case domain.EventMarketUnpaused:
		title = "market unpaused"
		message = "Betting and settlement have resumed."
		if p, ok := ev.Data.(domain.ParamsUpdated); ok {
			message = fmt.Sprintf("Unpaused by %s. Betting and settlement have resumed.", p.Actor)
		}
	case domain.EventParamsUpdated:
		title = "market parameters changed"
		message = "A market parameter was updated."
		if p, ok := ev.Data.(domain.ParamsUpdated); ok {
			message = fmt.Sprintf("%s set to %s by %s.", p.Field, p.Value, p.Actor)
		}
	case domain.EventFundsRescued:
		title = "escrow rescue executed"
		message = "Escrow funds were withdrawn."
		if r, ok := ev.Data.(domain.FundsRescued); ok {
			message = fmt.Sprintf("%d units sent to %s by %s.", r.Amount, r.Recipient, r.Actor)
		}
	default:
		return nil
	}

	return s.notifier.Notify(ctx, string(ev.Type), title, message)
}
