// Package metrics exposes the worker pool's and backend's counters as
// Prometheus gauges/counters, grounded on the teacher's own metrics
// surface (`_examples/adred-codev-ws_poc/src/server.go` collectMetrics,
// which samples gopsutil's process CPU/memory the same way
// internal/backend does) translated from an ad-hoc periodic log line
// into a real `prometheus/client_golang` registry.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/vipshop/vire/internal/command"
)

// lastValues remembers the last cumulative total passed to addCounter per
// prometheus.Counter, so repeated absolute-value samples can be turned
// into monotonic .Add deltas.
var lastValues sync.Map

// Registry bundles every metric Vire exports, registered against its own
// prometheus.Registry so a caller can mount it under any HTTP mux path
// without colliding with the default global registry.
type Registry struct {
	reg *prometheus.Registry

	connections      prometheus.Gauge
	commandsExecuted prometheus.Counter
	expiredKeys      prometheus.Counter
	keyspaceHits     prometheus.Counter
	keyspaceMisses   prometheus.Counter

	cpuPercent prometheus.Gauge
	rssBytes   prometheus.Gauge
	goroutines prometheus.Gauge
	memPercent prometheus.Gauge
}

// New builds a Registry with every metric registered and ready to
// Collect/Observe.
func New() *Registry {
	r := &Registry{reg: prometheus.NewRegistry()}

	r.connections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "vire", Name: "connections", Help: "Currently connected clients, summed across workers.",
	})
	r.commandsExecuted = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "vire", Name: "commands_executed_total", Help: "Commands dispatched, summed across workers.",
	})
	r.expiredKeys = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "vire", Name: "expired_keys_total", Help: "Keys removed by lazy or active expiration.",
	})
	r.keyspaceHits = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "vire", Name: "keyspace_hits_total", Help: "Successful key lookups.",
	})
	r.keyspaceMisses = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "vire", Name: "keyspace_misses_total", Help: "Key lookups that found nothing.",
	})
	r.cpuPercent = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "vire", Name: "process_cpu_percent", Help: "Process CPU usage percent, sampled once per second.",
	})
	r.rssBytes = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "vire", Name: "process_rss_bytes", Help: "Process resident set size.",
	})
	r.goroutines = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "vire", Name: "goroutines", Help: "Live goroutine count.",
	})
	r.memPercent = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "vire", Name: "system_mem_used_percent", Help: "Host-wide memory utilization percent.",
	})

	r.reg.MustRegister(
		r.connections, r.commandsExecuted, r.expiredKeys, r.keyspaceHits, r.keyspaceMisses,
		r.cpuPercent, r.rssBytes, r.goroutines, r.memPercent,
	)
	return r
}

// Gatherer exposes the underlying prometheus.Gatherer for an HTTP handler
// (internal/manage mounts promhttp.HandlerFor against this).
func (r *Registry) Gatherer() prometheus.Gatherer { return r.reg }

// ObserveWorkerStats folds one aggregated command.Stats sample (summed
// across every worker by the caller) into the counters/gauges above.
// Counters only move forward, so the caller must pass cumulative totals,
// not per-tick deltas.
func (r *Registry) ObserveWorkerStats(s command.Stats) {
	r.connections.Set(float64(s.Connections))
	addCounter(r.commandsExecuted, s.CommandsExecuted)
	addCounter(r.expiredKeys, s.ExpiredKeys)
	addCounter(r.keyspaceHits, s.KeyspaceHits)
	addCounter(r.keyspaceMisses, s.KeyspaceMisses)
}

// ProcessSample is the subset of internal/backend.Stats metrics needs;
// kept as a plain struct (instead of importing internal/backend) so
// neither package depends on the other's internals beyond this shape.
type ProcessSample struct {
	CPUPercent           float64
	RSSBytes             uint64
	Goroutines           int
	SystemMemUsedPercent float64
}

// ObserveProcessSample folds one backend.Stats sample into the process
// gauges.
func (r *Registry) ObserveProcessSample(s ProcessSample) {
	r.cpuPercent.Set(s.CPUPercent)
	r.rssBytes.Set(float64(s.RSSBytes))
	r.goroutines.Set(float64(s.Goroutines))
	r.memPercent.Set(s.SystemMemUsedPercent)
}

// addCounter tracks the last cumulative value per counter in lastValues so
// repeated ObserveWorkerStats calls with ever-increasing totals translate
// into correct counter .Add deltas instead of overwriting.
func addCounter(c prometheus.Counter, cumulative int64) {
	last, _ := lastValues.LoadOrStore(c, int64(0))
	prev := last.(int64)
	if delta := cumulative - prev; delta > 0 {
		c.Add(float64(delta))
	}
	lastValues.Store(c, cumulative)
}
