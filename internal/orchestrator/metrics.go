package orchestrator

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	stepDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "quantfolio",
		Subsystem: "orchestrator",
		Name:      "step_duration_seconds",
		Help:      "Wall-clock duration of capability step execution.",
		Buckets:   prometheus.ExponentialBuckets(0.001, 2, 14),
	}, []string{"capability"})

	stepTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "quantfolio",
		Subsystem: "orchestrator",
		Name:      "steps_total",
		Help:      "Capability step executions by terminal status.",
	}, []string{"capability", "status"})

	runTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "quantfolio",
		Subsystem: "orchestrator",
		Name:      "runs_total",
		Help:      "Pattern runs by terminal status.",
	}, []string{"pattern", "status"})
)
