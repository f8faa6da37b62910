// Package metrics exposes the orchestrator's prometheus collectors,
// served on /metrics by the same echo instance as the API.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	GCCleanedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "bay",
		Subsystem: "gc",
		Name:      "cleaned_total",
		Help:      "Number of resources reclaimed per GC task.",
	}, []string{"task"})

	GCErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "bay",
		Subsystem: "gc",
		Name:      "errors_total",
		Help:      "Number of errors encountered per GC task.",
	}, []string{"task"})

	CapabilityDispatchTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "bay",
		Subsystem: "router",
		Name:      "capability_dispatch_total",
		Help:      "Number of capability dispatches by capability and outcome.",
	}, []string{"capability", "outcome"})

	CapabilityDispatchDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "bay",
		Subsystem: "router",
		Name:      "capability_dispatch_duration_seconds",
		Help:      "Latency of capability dispatches.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"capability"})
)

// Register adds all collectors to the default registry. Called once at
// startup.
func Register() {
	prometheus.MustRegister(GCCleanedTotal, GCErrorsTotal, CapabilityDispatchTotal, CapabilityDispatchDuration)
}
