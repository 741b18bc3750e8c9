package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	UpstreamRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "esimgw_upstream_requests_total",
			Help: "Calls to the eSIM provider by endpoint and outcome",
		},
		[]string{"endpoint", "outcome"}, // ok|transport_error|http_error|api_error|decode_error
	)

	UpstreamRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "esimgw_upstream_request_duration_seconds",
			Help:    "Latency of calls to the eSIM provider",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"endpoint"},
	)

	OrdersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "esimgw_orders_total",
			Help: "Orders lifecycle counter by stage",
		},
		[]string{"stage"}, // queued|placed|failed
	)

	UsageSnapshotsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "esimgw_usage_snapshots_total",
			Help: "Usage snapshots written to ClickHouse",
		},
	)
)

func MustRegister(r prometheus.Registerer) {
	r.MustRegister(
		UpstreamRequestsTotal,
		UpstreamRequestDuration,
		OrdersTotal,
		UsageSnapshotsTotal,
	)
}

// Upstream records eSIM client calls; it satisfies esimaccess.Observer.
type Upstream struct{}

func (Upstream) ObserveRequest(path, outcome string, took time.Duration) {
	UpstreamRequestsTotal.WithLabelValues(path, outcome).Inc()
	UpstreamRequestDuration.WithLabelValues(path).Observe(took.Seconds())
}
