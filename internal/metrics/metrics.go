// Package metrics exposes Prometheus instruments for the kernel.
package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	gateDecisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "kernel",
			Subsystem: "gate",
			Name:      "decisions_total",
			Help:      "Policy and governance gate decisions.",
		},
		[]string{"gate", "outcome"},
	)
	invocations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "kernel",
			Subsystem: "invoker",
			Name:      "invocations_total",
			Help:      "Capability invocations by result.",
		},
		[]string{"type_id", "result"},
	)
	invocationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "kernel",
			Subsystem: "invoker",
			Name:      "invocation_duration_seconds",
			Help:      "Capability execution duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"type_id", "result"},
	)
	auditEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "kernel",
			Subsystem: "audit",
			Name:      "events_total",
			Help:      "Audit events appended, by type and success.",
		},
		[]string{"event_type", "success"},
	)
	zoneRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "kernel",
			Subsystem: "zone",
			Name:      "runs_total",
			Help:      "Zone runs by final status.",
		},
		[]string{"zone_id", "status"},
	)
	observeDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "kernel",
			Subsystem: "observe",
			Name:      "dropped_total",
			Help:      "Notifications dropped by slow observers.",
		},
	)
)

// Register adds the kernel collectors to the default registry once.
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(gateDecisions, invocations, invocationDuration, auditEvents, zoneRuns, observeDropped)
	})
}

func RecordGateDecision(gate, outcome string) {
	Register()
	gateDecisions.WithLabelValues(gate, outcome).Inc()
}

func RecordInvocation(typeID, result string, duration time.Duration) {
	Register()
	invocations.WithLabelValues(typeID, result).Inc()
	invocationDuration.WithLabelValues(typeID, result).Observe(duration.Seconds())
}

func RecordAuditEvent(eventType string, success bool) {
	Register()
	auditEvents.WithLabelValues(eventType, strconv.FormatBool(success)).Inc()
}

func RecordZoneRun(zoneID, status string) {
	Register()
	zoneRuns.WithLabelValues(zoneID, status).Inc()
}

func RecordObserveDrop() {
	Register()
	observeDropped.Inc()
}
