// Package metrics defines the Prometheus instruments for the market
// service. Everything registers against one registry so the HTTP handler
// can expose it all at once.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles the service's Prometheus instruments.
type Metrics struct {
	BetsPlaced    prometheus.Counter
	BetVolume     prometheus.Counter
	RoundsSettled *prometheus.CounterVec
	ClaimsPaid    prometheus.Counter
	ClaimVolume   prometheus.Counter
	FeesCollected prometheus.Counter
	PoolSize      *prometheus.GaugeVec
	Rollover      prometheus.Gauge
	EventsEmitted *prometheus.CounterVec
	OracleReads   prometheus.Counter
	OracleErrors  prometheus.Counter
	SettleErrors  prometheus.Counter
	HTTPDuration  *prometheus.HistogramVec
}

// New creates and registers the instruments. A nil registerer uses the
// Prometheus default.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		BetsPlaced: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "updown_bets_placed_total",
			Help: "Accepted stakes.",
		}),
		BetVolume: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "updown_bet_volume_total",
			Help: "Total value staked, in smallest currency units.",
		}),
		RoundsSettled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "updown_rounds_settled_total",
			Help: "Settled rounds by classification.",
		}, []string{"tag"}),
		ClaimsPaid: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "updown_claims_paid_total",
			Help: "Paid claims.",
		}),
		ClaimVolume: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "updown_claim_volume_total",
			Help: "Total value paid out to claimants.",
		}),
		FeesCollected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "updown_fees_collected_total",
			Help: "Total fees moved to the treasury.",
		}),
		PoolSize: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "updown_pool_size",
			Help: "Live pool size of the open round by side.",
		}, []string{"side"}),
		Rollover: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "updown_rollover",
			Help: "Undistributed value carried by the open round.",
		}),
		EventsEmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "updown_events_emitted_total",
			Help: "Emitted lifecycle events by type.",
		}, []string{"type"}),
		OracleReads: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "updown_oracle_reads_total",
			Help: "Successful outcome reads from the report source.",
		}),
		OracleErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "updown_oracle_errors_total",
			Help: "Failed outcome reads from the report source.",
		}),
		SettleErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "updown_settle_errors_total",
			Help: "Settlement attempts that failed.",
		}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "updown_http_request_duration_seconds",
			Help:    "HTTP request latency by route, method, and status.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "method", "status"}),
	}

	reg.MustRegister(
		m.BetsPlaced, m.BetVolume, m.RoundsSettled,
		m.ClaimsPaid, m.ClaimVolume, m.FeesCollected,
		m.PoolSize, m.Rollover, m.EventsEmitted,
		m.OracleReads, m.OracleErrors, m.SettleErrors,
		m.HTTPDuration,
	)

	return m
}
