package metrics

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(
		checkoutSessionsTotal,
		checkoutOutcomesTotal,
		processorDeclinesTotal,
		processorConfirmLatencyMs,
	)
}

var (
	checkoutSessionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "checkout_sessions_total",
			Help: "Checkout sessions started, by purchase kind.",
		},
		[]string{"kind"},
	)

	checkoutOutcomesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "checkout_outcomes_total",
			Help: "Terminal checkout outcomes (succeeded/cancelled/fatal_error).",
		},
		[]string{"outcome"},
	)

	processorDeclinesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "processor_declines_total",
			Help: "Charge declines reported by the processor, by decline code.",
		},
		[]string{"code"},
	)

	processorConfirmLatencyMs = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "processor_confirm_latency_ms",
			Help:    "Processor confirmation latency distribution in milliseconds.",
			Buckets: []float64{25, 50, 100, 200, 400, 800, 1600, 3000, 5000, 10000},
		},
	)
)

func norm(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

func IncCheckoutSession(kind string) {
	checkoutSessionsTotal.WithLabelValues(norm(kind)).Inc()
}

func IncCheckoutOutcome(outcome string) {
	checkoutOutcomesTotal.WithLabelValues(norm(outcome)).Inc()
}

func IncProcessorDecline(code string) {
	processorDeclinesTotal.WithLabelValues(norm(code)).Inc()
}

func ObserveConfirmLatency(ms int64) {
	processorConfirmLatencyMs.Observe(float64(ms))
}
