package upstream

import "github.com/prometheus/client_golang/prometheus"

const (
	outcomeSuccess  = "success"
	outcomeFailure  = "failure"
	outcomeCanceled = "canceled"
)

var (
	attemptsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "klingpay",
		Subsystem: "upstream",
		Name:      "attempts_total",
		Help:      "Upstream endpoint attempts by service host and outcome.",
	}, []string{"service", "outcome"})

	attemptDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "klingpay",
		Subsystem: "upstream",
		Name:      "attempt_duration_seconds",
		Help:      "Latency of completed upstream attempts.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"service"})
)

// Collectors returns the package metrics for registration.
func Collectors() []prometheus.Collector {
	return []prometheus.Collector{attemptsTotal, attemptDuration}
}
