package utils

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts assembly and cache activity. It is registered against an
// explicitly passed Registerer so that independent problems, and tests, never
// collide in a process wide registry.
type Metrics struct {
	AssemblyPasses   *prometheus.CounterVec
	ObjectsVisited   *prometheus.CounterVec
	CacheRebuilds    *prometheus.CounterVec
	GhostMessages    *prometheus.CounterVec
	AssemblyDuration prometheus.Histogram
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		AssemblyPasses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "femcore_assembly_passes_total",
			Help: "Residual and Jacobian assembly passes, by kind",
		}, []string{"kind"}),
		ObjectsVisited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "femcore_assembly_entities_total",
			Help: "Elements, faces, sides and nodes visited during assembly",
		}, []string{"entity"}),
		CacheRebuilds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "femcore_topology_cache_rebuilds_total",
			Help: "Rebuilds of derived mesh topology data, by cache",
		}, []string{"cache"}),
		GhostMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "femcore_ghost_messages_total",
			Help: "Messages exchanged while gathering ghost elements, by phase",
		}, []string{"phase"}),
		AssemblyDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "femcore_assembly_duration_seconds",
			Help:    "Wall time of one assembly pass",
			Buckets: prometheus.ExponentialBuckets(1e-5, 4, 10),
		}),
	}
	if reg != nil {
		reg.MustRegister(m.AssemblyPasses, m.ObjectsVisited, m.CacheRebuilds,
			m.GhostMessages, m.AssemblyDuration)
	}
	return m
}

// NewUnregisteredMetrics is a convenience for callers that do not export.
func NewUnregisteredMetrics() *Metrics {
	return NewMetrics(nil)
}
