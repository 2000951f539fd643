package metrics

import (
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Package-level Prometheus collectors. They are registered via Register.
var (
	regOK atomic.Bool

	sessionRegisters = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "sessiond",
			Subsystem: "sessions",
			Name:      "registered_total",
			Help:      "Number of successful session registrations.",
		},
	)
	sessionUnregisters = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "sessiond",
			Subsystem: "sessions",
			Name:      "unregistered_total",
			Help:      "Number of explicit session unregistrations.",
		},
	)
	sessionsReaped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "sessiond",
			Subsystem: "sessions",
			Name:      "reaped_total",
			Help:      "Number of stale sessions removed by reconciliation.",
		},
	)
	sessionRejections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sessiond",
			Subsystem: "sessions",
			Name:      "rejected_total",
			Help:      "Registrations or checks refused by resource limits.",
		}, []string{"reason"},
	)
	activeSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "sessiond",
			Subsystem: "sessions",
			Name:      "active",
			Help:      "Live sessions observed at the last registry pass.",
		},
	)
	processesObserved = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "sessiond",
			Subsystem: "system",
			Name:      "processes_observed",
			Help:      "Total host process count at the last limit check.",
		},
	)
)

// Register registers all metrics with the provided registerer.
// It is safe to call multiple times; subsequent calls after success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{
		sessionRegisters, sessionUnregisters, sessionsReaped,
		sessionRejections, activeSessions, processesObserved,
	}
	for _, c := range cs {
		if err := r.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	regOK.Store(true)
	return nil
}

// Handler returns an http.Handler serving Prometheus metrics for the
// DefaultGatherer. The caller wires the route and server.
func Handler() http.Handler { return promhttp.Handler() }

// Below are lightweight helpers used by internal packages to record metrics.
// They no-op if Register hasn't been called.

func IncRegistered() {
	if regOK.Load() {
		sessionRegisters.Inc()
	}
}

func IncUnregistered() {
	if regOK.Load() {
		sessionUnregisters.Inc()
	}
}

func AddReaped(n int) {
	if regOK.Load() && n > 0 {
		sessionsReaped.Add(float64(n))
	}
}

func IncRejected(reason string) {
	if regOK.Load() {
		sessionRejections.WithLabelValues(reason).Inc()
	}
}

func SetActiveSessions(n int) {
	if regOK.Load() {
		activeSessions.Set(float64(n))
	}
}

func SetProcessesObserved(n int) {
	if regOK.Load() {
		processesObserved.Set(float64(n))
	}
}
