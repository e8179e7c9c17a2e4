package run

import "github.com/prometheus/client_golang/prometheus"

var (
	attemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crucible_attempts_total",
			Help: "Total number of settled test cycles, by result.",
		},
		[]string{"result"},
	)

	phaseFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crucible_phase_failures_total",
			Help: "Total number of failed phase executions, by phase.",
		},
		[]string{"phase"},
	)

	cycleDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "crucible_cycle_duration_seconds",
			Help:    "Duration of one full test cycle in seconds.",
			Buckets: prometheus.DefBuckets,
		},
	)
)

func init() {
	prometheus.MustRegister(attemptsTotal)
	prometheus.MustRegister(phaseFailuresTotal)
	prometheus.MustRegister(cycleDuration)
}
