// Package poolmetrics exposes a mysqlcore.Pool's state as Prometheus
// metrics (spec: DOMAIN STACK, observability layer alongside the pool
// manager).
package poolmetrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Collector registers a gauge/counter set describing Pool behavior.
// Callers feed it values from their own polling of the Pool (the core
// package stays free of a Prometheus dependency so it can be used
// without one).
type Collector struct {
	OpenConnections prometheus.Gauge
	IdleConnections prometheus.Gauge
	WaitersQueued   prometheus.Gauge
	WaitTimeouts    prometheus.Counter
	Cancellations   prometheus.Counter
	Evictions       prometheus.Counter
}

// NewCollector builds a Collector with the given namespace/subsystem
// prefix and registers it with reg.
func NewCollector(reg prometheus.Registerer, namespace, subsystem string) *Collector {
	c := &Collector{
		OpenConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: subsystem, Name: "open_connections",
			Help: "Number of Connections currently opened by the pool, idle or checked out.",
		}),
		IdleConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: subsystem, Name: "idle_connections",
			Help: "Number of Connections currently idle in the pool.",
		}),
		WaitersQueued: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: subsystem, Name: "waiters_queued",
			Help: "Number of Get callers currently queued behind a full pool.",
		}),
		WaitTimeouts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: subsystem, Name: "wait_timeouts_total",
			Help: "Number of Get calls that gave up waiting for a Connection.",
		}),
		Cancellations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: subsystem, Name: "cancellations_total",
			Help: "Number of commands ended by KILL QUERY cancellation.",
		}),
		Evictions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: subsystem, Name: "evictions_total",
			Help: "Number of idle Connections closed for exceeding idle timeout or max lifetime.",
		}),
	}
	reg.MustRegister(c.OpenConnections, c.IdleConnections, c.WaitersQueued, c.WaitTimeouts, c.Cancellations, c.Evictions)
	return c
}
