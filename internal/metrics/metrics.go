package metrics

import (
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Label names shared by every limit gauge. Extra labels are appended at
// first registration.
const (
	LabelRegion       = "region"
	LabelType         = "type"
	LabelInstanceType = "instance_type"
)

// Well-known values of the type label. Usage observations tied to a
// specific resource use the resource identifier instead of TypeCurrent.
const (
	TypeLimit   = "limit"
	TypeCurrent = "current"
)

// Normalize maps a (service, limit name) pair to its canonical metric path.
// The pair is joined with a dot, lowercased, and run through a single
// transliteration pass: space, dash and dot become underscores and
// parentheses are dropped. One pass means characters produced by the
// mapping are never themselves remapped, so the result is stable across
// calls and across restarts.
func Normalize(service, limitName string) string {
	return strings.Map(translate, strings.ToLower(service+"."+limitName))
}

func translate(r rune) rune {
	switch r {
	case ' ', '-', '.':
		return '_'
	case '(', ')':
		return -1
	}
	return r
}

// Registry hands out gauge vectors keyed by canonical metric path, creating
// them on first use and reusing them for the process lifetime. There is no
// eviction: a path registered once stays registered. All limit gauges go
// through the Registry so the exposition handler and the collector share
// one consistent catalog.
type Registry struct {
	reg prometheus.Registerer

	mu     sync.Mutex
	gauges map[string]*prometheus.GaugeVec

	// UpdateDuration times each per-region update pass.
	UpdateDuration prometheus.Summary
}

// NewRegistry creates a Registry backed by the given registerer. Tests pass
// a fresh prometheus.NewRegistry() so gauges never leak between cases.
func NewRegistry(reg prometheus.Registerer) *Registry {
	updateDuration := prometheus.NewSummary(prometheus.SummaryOpts{
		Name: "update_processing_seconds",
		Help: "Time spent querying AWS for limits",
	})
	reg.MustRegister(updateDuration)

	return &Registry{
		reg:            reg,
		gauges:         make(map[string]*prometheus.GaugeVec),
		UpdateDuration: updateDuration,
	}
}

// GetOrCreate returns the gauge vector registered under path, creating it
// with label set {region, type} plus extraLabels if it does not exist yet.
// The label set is fixed at first registration: extraLabels passed on later
// calls for an existing path are ignored.
func (r *Registry) GetOrCreate(path string, extraLabels ...string) *prometheus.GaugeVec {
	r.mu.Lock()
	defer r.mu.Unlock()

	if g, ok := r.gauges[path]; ok {
		return g
	}

	labels := append([]string{LabelRegion, LabelType}, extraLabels...)
	g := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: path,
		Help: "AWS service limit and current usage",
	}, labels)
	r.reg.MustRegister(g)
	r.gauges[path] = g
	return g
}

// Registerer exposes the underlying registerer for operational metrics that
// live outside the per-limit gauge cache.
func (r *Registry) Registerer() prometheus.Registerer {
	return r.reg
}
