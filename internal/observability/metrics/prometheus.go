// Package metrics provides Prometheus metrics for the composition engine.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all application metrics.
type Metrics struct {
	SessionsOpened     prometheus.Counter
	SessionsActive     prometheus.Gauge
	OrdersSubmitted    prometheus.Counter
	OrdersFailed       prometheus.Counter
	StockRejections    prometheus.Counter
	ValidationFailures prometheus.Counter
	SubmitDuration     prometheus.Histogram
	OutboxPending      prometheus.Gauge
	EventsPublished    prometheus.Counter
	EventsConsumed     prometheus.Counter
}

// New creates and registers all metrics.
func New() *Metrics {
	m := &Metrics{
		SessionsOpened: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "draft_sessions_opened_total",
			Help: "Total draft sessions opened",
		}),
		SessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "draft_sessions_active",
			Help: "Currently open draft sessions",
		}),
		OrdersSubmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "orders_submitted_total",
			Help: "Total orders accepted by the remote system",
		}),
		OrdersFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "orders_failed_total",
			Help: "Total order submissions rejected or failed in transport",
		}),
		StockRejections: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "stock_rejections_total",
			Help: "Manual lines rejected for insufficient stock",
		}),
		ValidationFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "validation_failures_total",
			Help: "Draft operations rejected by validation",
		}),
		SubmitDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "order_submit_duration_seconds",
			Help:    "End-to-end submission duration",
			Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}),
		OutboxPending: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "outbox_pending_entries",
			Help: "Pending outbox entries",
		}),
		EventsPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "order_events_published_total",
			Help: "Order events published to the pipeline",
		}),
		EventsConsumed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "order_events_consumed_total",
			Help: "Order events consumed from the pipeline",
		}),
	}

	prometheus.MustRegister(
		m.SessionsOpened,
		m.SessionsActive,
		m.OrdersSubmitted,
		m.OrdersFailed,
		m.StockRejections,
		m.ValidationFailures,
		m.SubmitDuration,
		m.OutboxPending,
		m.EventsPublished,
		m.EventsConsumed,
	)

	return m
}

// Handler returns the scrape endpoint handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
