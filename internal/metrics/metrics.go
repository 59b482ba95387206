// Package metrics exposes the teacher's PerformanceMetrics/StorageStats
// surface (internal/core/ecs/types.go, metrics.go) as real Prometheus
// instrumentation, rather than the teacher's in-process
// MetricsCollector/percentile-window implementation: recordings and
// providers already give a host everything it needs to scrape, so this
// package is a thin set of registered gauges/counters/histograms updated
// by the repository (the recorder does not report to it), not a second
// metrics storage engine.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Collector owns one Prometheus registry's worth of ECS gauges/counters,
// mirroring the fields of the teacher's PerformanceMetrics and
// StorageStats structs.
type Collector struct {
	registry *prometheus.Registry

	entityCount    prometheus.Gauge
	componentCount *prometheus.GaugeVec
	memoryUsed     *prometheus.GaugeVec
	memoryReserved *prometheus.GaugeVec
	fragmentation  *prometheus.GaugeVec

	tickDuration  prometheus.Histogram
	queryDuration prometheus.Histogram

	droppedCommandOps prometheus.Counter
	permissionDenials prometheus.Counter
	chunkCommits      prometheus.Counter
	chunkDecommits    prometheus.Counter
}

// New builds a Collector registered against a fresh prometheus.Registry,
// keeping this core independent of any process-wide default registry.
func New() *Collector {
	reg := prometheus.NewRegistry()
	c := &Collector{
		registry: reg,
		entityCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "corecs",
			Name:      "entity_count",
			Help:      "Number of currently active entities.",
		}),
		componentCount: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "corecs",
			Name:      "component_instance_count",
			Help:      "Number of live instances of a component type.",
		}, []string{"component"}),
		memoryUsed: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "corecs",
			Name:      "component_memory_used_bytes",
			Help:      "Committed bytes backing a component type's storage.",
		}, []string{"component"}),
		memoryReserved: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "corecs",
			Name:      "component_memory_reserved_bytes",
			Help:      "Reserved (virtual, possibly uncommitted) bytes for a component type.",
		}, []string{"component"}),
		fragmentation: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "corecs",
			Name:      "component_fragmentation_ratio",
			Help:      "Fraction of a component type's committed chunks holding zero live elements.",
		}, []string{"component"}),
		tickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "corecs",
			Name:      "tick_duration_seconds",
			Help:      "Wall-clock time spent advancing one tick through every phase.",
			Buckets:   prometheus.DefBuckets,
		}),
		queryDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "corecs",
			Name:      "query_duration_seconds",
			Help:      "Wall-clock time spent enumerating a query to completion.",
			Buckets:   prometheus.DefBuckets,
		}),
		droppedCommandOps: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "corecs",
			Name:      "command_ops_dropped_total",
			Help:      "Command buffer operations dropped during playback due to a stale handle.",
		}),
		permissionDenials: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "corecs",
			Name:      "permission_denials_total",
			Help:      "Writes rejected by the active phase's permission model.",
		}),
		chunkCommits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "corecs",
			Name:      "chunk_commits_total",
			Help:      "Chunks committed (given physical pages) across all component tables.",
		}),
		chunkDecommits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "corecs",
			Name:      "chunk_decommits_total",
			Help:      "Chunks decommitted (pages released) across all component tables.",
		}),
	}
	reg.MustRegister(
		c.entityCount, c.componentCount, c.memoryUsed, c.memoryReserved, c.fragmentation,
		c.tickDuration, c.queryDuration,
		c.droppedCommandOps, c.permissionDenials, c.chunkCommits, c.chunkDecommits,
	)
	return c
}

// Registry exposes the underlying prometheus.Registry for a host's
// /metrics HTTP handler (promhttp.HandlerFor).
func (c *Collector) Registry() *prometheus.Registry { return c.registry }

// SetEntityCount records the current live entity count.
func (c *Collector) SetEntityCount(n int) { c.entityCount.Set(float64(n)) }

// StorageStats is the per-component-type snapshot this package exposes,
// generalizing the teacher's StorageStats struct (types.go) from a
// single-host JSON field set into per-call Prometheus label values.
type StorageStats struct {
	ComponentCount int
	MemoryUsedBytes     int64
	MemoryReservedBytes int64
	Fragmentation       float64
}

// SetStorageStats publishes one component type's storage statistics.
func (c *Collector) SetStorageStats(component string, s StorageStats) {
	c.componentCount.WithLabelValues(component).Set(float64(s.ComponentCount))
	c.memoryUsed.WithLabelValues(component).Set(float64(s.MemoryUsedBytes))
	c.memoryReserved.WithLabelValues(component).Set(float64(s.MemoryReservedBytes))
	c.fragmentation.WithLabelValues(component).Set(s.Fragmentation)
}

// ObserveTickSeconds records one tick's wall-clock duration.
func (c *Collector) ObserveTickSeconds(seconds float64) { c.tickDuration.Observe(seconds) }

// ObserveQuerySeconds records one query enumeration's wall-clock duration.
func (c *Collector) ObserveQuerySeconds(seconds float64) { c.queryDuration.Observe(seconds) }

// RecordDroppedCommandOp increments the dropped-op counter, called once
// per entry in command.Playback's returned []DroppedOp.
func (c *Collector) RecordDroppedCommandOp() { c.droppedCommandOps.Inc() }

// RecordPermissionDenial increments the permission-denial counter.
func (c *Collector) RecordPermissionDenial() { c.permissionDenials.Inc() }

// RecordChunkCommit increments the chunk-commit counter.
func (c *Collector) RecordChunkCommit() { c.chunkCommits.Inc() }

// RecordChunkDecommit increments the chunk-decommit counter.
func (c *Collector) RecordChunkDecommit() { c.chunkDecommits.Inc() }
