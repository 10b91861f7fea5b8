// Package metrics holds the caster's Prometheus instrumentation,
// exposed on the admin HTTP port.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	MountsOnline = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "ntripcaster_mounts_online",
			Help: "Mounts currently fed by an uploader.",
		},
	)

	SubscribersOnline = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ntripcaster_subscribers_online",
			Help: "Subscriber connections currently attached.",
		},
		[]string{"mount"},
	)

	BytesReceivedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ntripcaster_bytes_received_total",
			Help: "Bytes received from uploaders.",
		},
		[]string{"mount"},
	)

	BytesSentTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ntripcaster_bytes_sent_total",
			Help: "Bytes delivered to subscribers.",
		},
		[]string{"mount"},
	)

	SubscriberEvictionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ntripcaster_subscriber_evictions_total",
			Help: "Subscribers dropped by the caster (overrun, write_timeout, write_error, admission_cap, idle, admin).",
		},
		[]string{"reason"},
	)

	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ntripcaster_requests_total",
			Help: "Accepted connections by request kind and outcome.",
		},
		[]string{"kind", "outcome"},
	)

	AuthFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ntripcaster_auth_failures_total",
			Help: "Authentication rejections by role.",
		},
		[]string{"role"},
	)

	BroadcastLoopDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ntripcaster_broadcast_loop_duration_seconds",
			Help:    "Duration of one broadcast sweep over all mounts.",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
		},
	)
)

func Register() {
	prometheus.MustRegister(
		MountsOnline,
		SubscribersOnline,
		BytesReceivedTotal,
		BytesSentTotal,
		SubscriberEvictionsTotal,
		RequestsTotal,
		AuthFailuresTotal,
		BroadcastLoopDuration,
	)
}
