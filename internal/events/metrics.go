package events

import (
	"context"

	"github.com/updownhq/updown/internal/domain"
	"github.com/updownhq/updown/internal/metrics"
)

// MetricsSink folds events into the Prometheus instruments. It never
// fails; an event it does not recognize still counts in the by-type total.
type MetricsSink struct {
	m *metrics.Metrics
}

// NewMetricsSink creates a MetricsSink over the given instruments.
func NewMetricsSink(m *metrics.Metrics) *MetricsSink {
	return &MetricsSink{m: m}
}

var _ domain.EventSink = (*MetricsSink)(nil)

func (s *MetricsSink) Publish(_ context.Context, ev domain.Event) error {
	s.m.EventsEmitted.WithLabelValues(string(ev.Type)).Inc()

	switch data := ev.Data.(type) {
	case domain.BetPlaced:
		s.m.BetsPlaced.Inc()
		s.m.BetVolume.Add(float64(data.Amount))
		s.m.PoolSize.WithLabelValues(string(data.Side)).Add(float64(data.Amount))
	case domain.RoundSettled:
		s.m.RoundsSettled.WithLabelValues(string(data.Tag)).Inc()
		s.m.FeesCollected.Add(float64(data.Fee))
		s.m.Rollover.Set(float64(data.Rollover))
		s.m.PoolSize.WithLabelValues(string(domain.SideHigher)).Set(0)
		s.m.PoolSize.WithLabelValues(string(domain.SideLower)).Set(0)
	case domain.ClaimPaid:
		s.m.ClaimsPaid.Inc()
		s.m.ClaimVolume.Add(float64(data.Amount))
	}
	return nil
}
