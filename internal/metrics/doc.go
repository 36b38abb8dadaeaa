// Package metrics provides the metric naming scheme and the gauge registry.
//
// Naming: Normalize turns a hierarchical (service, limit name) pair into a
// flat, Prometheus-safe metric path. The transformation is a pure function
// and is applied as one transliteration pass, so the same pair always maps
// to the same path:
//
//	Normalize("EC2", "Running On-Demand m5.large Instances")
//	// -> "ec2_running_on_demand_m5_large_instances"
//
// The path doubles as the cache key and the exposed metric name, which is
// why its stability matters: renaming a metric breaks scrape continuity.
// Two limits whose names normalize to the same path share one gauge series
// and are distinguished only by their labels.
//
// Caching: Registry maps each path to a live *prometheus.GaugeVec, created
// lazily with label set {region, type} plus any extra labels requested at
// first registration. Later calls return the existing vector; the registry
// only ever grows. GetOrCreate is mutex-guarded so concurrent first
// creation is safe if region collection is ever parallelized.
//
// The registry also owns the update_processing_seconds summary, observed
// once per per-region update so slow regions are individually visible.
package metrics
