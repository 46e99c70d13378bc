package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(
		sweepSubscriptionsTotal,
		sweepRunsTotal,
		gatewayCallsLatencyMs,
	)
}

var (
	sweepSubscriptionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "billing_sweep_subscriptions_total",
			Help: "Subscriptions handled by the recurring billing sweep, by outcome.",
		},
		[]string{"outcome"}, // 'succeeded', 'failed', 'expired'
	)

	sweepRunsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "billing_sweep_runs_total",
			Help: "Total number of completed billing sweep runs.",
		},
	)

	gatewayCallsLatencyMs = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "payment_gateway_call_latency_ms",
			Help:    "Payment gateway round-trip latency in milliseconds.",
			Buckets: []float64{25, 50, 100, 200, 400, 800, 1600, 3000, 5000, 10000},
		},
		[]string{"operation", "success"},
	)
)

func ObserveSweep(succeeded, failed, expired int) {
	sweepRunsTotal.Inc()
	sweepSubscriptionsTotal.WithLabelValues("succeeded").Add(float64(succeeded))
	sweepSubscriptionsTotal.WithLabelValues("failed").Add(float64(failed))
	sweepSubscriptionsTotal.WithLabelValues("expired").Add(float64(expired))
}

func ObserveGatewayCall(operation string, success bool, d time.Duration) {
	gatewayCallsLatencyMs.WithLabelValues(norm(operation), strconv.FormatBool(success)).
		Observe(float64(d.Milliseconds()))
}
