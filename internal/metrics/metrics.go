// Package metrics registers the Prometheus instruments for the
// ticketing service. promauto registers against the default registry,
// which the /metrics handler exposes.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the ticketing service.
type Metrics struct {
	// HTTP metrics
	RequestDuration *prometheus.HistogramVec
	RequestTotal    *prometheus.CounterVec

	// Registration metrics
	RegistrationsTotal *prometheus.CounterVec

	// Validation metrics
	ValidationsTotal *prometheus.CounterVec

	// Payment metrics
	OrdersTotal   *prometheus.CounterVec
	WebhooksTotal *prometheus.CounterVec

	// Points metrics
	PointsTotal *prometheus.CounterVec
}

// New creates and registers all metrics.
func New() *Metrics {
	return &Metrics{
		RequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ticketing_http_request_duration_seconds",
				Help:    "Duration of HTTP requests",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"route", "method"},
		),

		RequestTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ticketing_http_requests_total",
				Help: "Total HTTP requests served",
			},
			[]string{"route", "method", "status"},
		),

		RegistrationsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ticketing_registrations_total",
				Help: "Tickets issued, by kind",
			},
			[]string{"kind"}, // kind: free, paid
		),

		ValidationsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ticketing_validations_total",
				Help: "QR validations processed, by outcome",
			},
			[]string{"status", "reason"}, // status: valid, already_scanned, invalid
		),

		OrdersTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ticketing_payment_orders_total",
				Help: "Payment order transitions, by resulting status",
			},
			[]string{"status"},
		),

		WebhooksTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ticketing_payment_webhooks_total",
				Help: "Gateway webhooks received, by event and result",
			},
			[]string{"event", "result"}, // result: applied, rejected, ignored
		),

		PointsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ticketing_points_total",
				Help: "Points moved through the ledger, by direction",
			},
			[]string{"direction"}, // direction: earned, deducted
		),
	}
}
