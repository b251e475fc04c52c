package metrics

import "github.com/prometheus/client_golang/prometheus"

// Domain counters/gauges for the deposit watcher's job lifecycle. Registered
// once at process start via MustRegister.
var (
	JobsScannedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "deposits_watcher",
			Name:      "jobs_scanned_total",
			Help:      "Total number of Job keys handed to the state machine.",
		},
		[]string{"ticker"},
	)

	WebhooksDispatchedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "deposits_watcher",
			Name:      "webhooks_dispatched_total",
			Help:      "Total webhook delivery attempts, labeled by outcome.",
		},
		[]string{"ticker", "result"}, // result: success|retry|failed
	)

	TickerBackoffState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "deposits_watcher",
			Name:      "ticker_backoff_state",
			Help:      "1 while a ticker is in RPC-error backoff, else 0.",
		},
		[]string{"ticker"},
	)

	RpcCallDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "deposits_watcher",
			Name:      "rpc_call_duration_seconds",
			Help:      "Wallet JSON-RPC call latency.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		},
		[]string{"method", "status"},
	)
)

func MustRegister() {
	prometheus.MustRegister(JobsScannedTotal, WebhooksDispatchedTotal, TickerBackoffState, RpcCallDuration)
}
