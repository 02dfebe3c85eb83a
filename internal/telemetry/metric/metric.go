package metric

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds all application metrics.
type Registry struct {
	// Dispatch metrics
	OpsDispatched          *prometheus.CounterVec
	ReplicationWaitSeconds prometheus.Histogram
	InvokeSeconds          prometheus.Histogram

	// Lock metrics
	LockWaitSeconds prometheus.Histogram
	LocksHeld       prometheus.Gauge

	// Entity metrics
	EntitiesLive    prometheus.Gauge
	ClientsAttached prometheus.Gauge

	// Sync metrics
	SyncPayloadChunks prometheus.Counter

	reg *prometheus.Registry
}

// NewRegistry creates a metrics registry with all collectors registered
// against its own Prometheus registry, so independent simulations never
// collide on the default global registry.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()

	r := &Registry{
		OpsDispatched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "entmesh",
			Subsystem: "dispatch",
			Name:      "operations_total",
			Help:      "Operations dispatched, by type and outcome.",
		}, []string{"type", "outcome"}),
		ReplicationWaitSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "entmesh",
			Subsystem: "dispatch",
			Name:      "replication_wait_seconds",
			Help:      "Time spent blocked on the passive interlock.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 10),
		}),
		InvokeSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "entmesh",
			Subsystem: "entity",
			Name:      "invoke_seconds",
			Help:      "Entity invocation critical-section duration.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 10),
		}),
		LockWaitSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "entmesh",
			Subsystem: "lock",
			Name:      "wait_seconds",
			Help:      "Time between lock request and acquisition callback.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 10),
		}),
		LocksHeld: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "entmesh",
			Subsystem: "lock",
			Name:      "held",
			Help:      "Currently held entity locks.",
		}),
		EntitiesLive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "entmesh",
			Subsystem: "entity",
			Name:      "live",
			Help:      "Live entity instances on this process.",
		}),
		ClientsAttached: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "entmesh",
			Subsystem: "entity",
			Name:      "clients_attached",
			Help:      "Client instances holding a fetched entity reference.",
		}),
		SyncPayloadChunks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "entmesh",
			Subsystem: "sync",
			Name:      "payload_chunks_total",
			Help:      "State chunks streamed to the passive.",
		}),
		reg: reg,
	}

	reg.MustRegister(
		r.OpsDispatched,
		r.ReplicationWaitSeconds,
		r.InvokeSeconds,
		r.LockWaitSeconds,
		r.LocksHeld,
		r.EntitiesLive,
		r.ClientsAttached,
		r.SyncPayloadChunks,
	)
	return r
}

// Handler returns the HTTP handler for the /metrics endpoint.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

// Gather exposes the underlying registry for tests and status reporting.
func (r *Registry) Gather() prometheus.Gatherer {
	return r.reg
}

// OperationCounts flattens the dispatch counter into "type/outcome" keys,
// used for end-of-run reporting.
func (r *Registry) OperationCounts() (map[string]uint64, error) {
	families, err := r.reg.Gather()
	if err != nil {
		return nil, err
	}

	counts := make(map[string]uint64)
	for _, family := range families {
		if family.GetName() != "entmesh_dispatch_operations_total" {
			continue
		}
		for _, m := range family.GetMetric() {
			var opType, outcome string
			for _, label := range m.GetLabel() {
				switch label.GetName() {
				case "type":
					opType = label.GetValue()
				case "outcome":
					outcome = label.GetValue()
				}
			}
			counts[opType+"/"+outcome] = uint64(m.GetCounter().GetValue())
		}
	}
	return counts, nil
}
