package collector

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/zgpcy/aws-limits-exporter/internal/clock"
	"github.com/zgpcy/aws-limits-exporter/internal/limits"
	"github.com/zgpcy/aws-limits-exporter/internal/logger"
	"github.com/zgpcy/aws-limits-exporter/internal/metrics"
	"github.com/zgpcy/aws-limits-exporter/internal/version"
)

// OnDemandPath is the aggregate series every EC2 on-demand instance limit
// feeds into, distinguished per instance type by label.
const OnDemandPath = "ec2_running_on_demand_ec2_instances"

// CheckerFactory builds the usage checker bound to one region.
type CheckerFactory func(region string) (limits.Checker, error)

// regionChecker pairs a region name with its long-lived checker handle.
type regionChecker struct {
	region  string
	checker limits.Checker
}

// Collector drives the poll loop: one checker per region, refreshed and
// translated into gauges on a fixed interval, with per-region failure
// isolation and per-region timing.
type Collector struct {
	regions []regionChecker
	metrics *metrics.Registry
	logger  *logger.Logger
	clock   clock.Clock // Time provider for testing

	regionErrors *prometheus.CounterVec
	lastCycle    prometheus.Gauge
	buildInfo    *prometheus.GaugeVec

	loopStarted atomic.Bool // Prevent multiple collection loops

	mu        sync.RWMutex
	lastRun   time.Time
	cycleDone bool
}

// New constructs a checker for every configured region, in configuration
// order, and applies each override to its matching region before the first
// poll. Overrides for regions that are not configured are ignored.
func New(regions []string, factory CheckerFactory, overrides []limits.Override, reg *metrics.Registry, log *logger.Logger) (*Collector, error) {
	c := &Collector{
		metrics: reg,
		logger:  log,
		clock:   clock.RealClock{}, // Use real system time by default
		regionErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "aws_limits_exporter_region_errors_total",
				Help: "Total number of failed per-region update passes since startup",
			},
			[]string{metrics.LabelRegion},
		),
		lastCycle: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "aws_limits_exporter_last_cycle_timestamp_seconds",
			Help: "Unix timestamp of the last completed poll cycle",
		}),
		buildInfo: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "aws_limits_exporter_build_info",
				Help: "Build version information",
			},
			[]string{"version", "git_commit", "build_date", "go_version"},
		),
	}
	reg.Registerer().MustRegister(c.regionErrors, c.lastCycle, c.buildInfo)

	versionInfo := version.Info()
	c.buildInfo.With(prometheus.Labels{
		"version":    versionInfo["version"],
		"git_commit": versionInfo["git_commit"],
		"build_date": versionInfo["build_date"],
		"go_version": versionInfo["go_version"],
	}).Set(1)

	for _, region := range regions {
		checker, err := factory(region)
		if err != nil {
			return nil, fmt.Errorf("region %s: %w", region, err)
		}
		for _, o := range overrides {
			if o.Region == region {
				checker.SetOverride(o.Service, o.LimitName, float64(o.Value))
			}
		}
		c.regions = append(c.regions, regionChecker{region: region, checker: checker})
	}

	return c, nil
}

// Start runs the collection loop in the background: one cycle immediately,
// then one per interval until the context is cancelled. A second Start call
// while the loop is running is a no-op.
func (c *Collector) Start(ctx context.Context, interval time.Duration) {
	if !c.loopStarted.CompareAndSwap(false, true) {
		c.logger.Warn("Collection loop already started, skipping")
		return
	}

	c.RunCycle(ctx)

	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		defer c.loopStarted.Store(false) // Reset on exit
		for {
			select {
			case <-ctx.Done():
				c.logger.Info("Stopping collection loop")
				return
			case <-ticker.C:
				c.RunCycle(ctx)
			}
		}
	}()
}

// RunCycle refreshes and translates every region once, in configuration
// order. One region's failure never blocks the regions after it, nor the
// next cycle.
func (c *Collector) RunCycle(ctx context.Context) {
	start := c.clock.Now()
	for _, rc := range c.regions {
		c.updateRegion(ctx, rc.region, rc.checker)
	}

	now := c.clock.Now()
	c.lastCycle.Set(float64(now.Unix()))

	c.mu.Lock()
	c.lastRun = now
	c.cycleDone = true
	c.mu.Unlock()

	c.logger.Debug("Poll cycle completed",
		"regions", len(c.regions),
		"duration_seconds", c.clock.Since(start).Seconds())
}

// updateRegion runs one region's refresh-and-translate pass, timed by the
// update summary. Errors are counted and logged here, never propagated.
func (c *Collector) updateRegion(ctx context.Context, region string, checker limits.Checker) {
	timer := prometheus.NewTimer(c.metrics.UpdateDuration)
	defer timer.ObserveDuration()

	if err := c.update(ctx, region, checker); err != nil {
		c.regionErrors.WithLabelValues(region).Inc()
		c.logger.WithRegion(region).Error("Failed to update region", "error", err)
	}
}

func (c *Collector) update(ctx context.Context, region string, checker limits.Checker) error {
	if err := checker.Refresh(ctx); err != nil {
		return fmt.Errorf("refresh usage: %w", err)
	}
	return c.translate(region, checker.Limits())
}

// translate turns one region's usage report into gauge updates. Services
// and limit names are walked in sorted order so emission is deterministic.
// Gauges set before a failure stay set; there is no rollback within a
// region's report.
func (c *Collector) translate(region string, report limits.Report) error {
	services := make([]string, 0, len(report))
	for service := range report {
		services = append(services, service)
	}
	sort.Strings(services)

	for _, service := range services {
		svcLimits := report[service]

		names := make([]string, 0, len(svcLimits))
		for name := range svcLimits {
			names = append(names, name)
		}
		sort.Strings(names)

		// Classify each limit before any gauges are touched, so emission
		// is a pure function of the variant.
		var onDemand, general []string
		for _, name := range names {
			if classify(name) == classEC2OnDemand {
				onDemand = append(onDemand, name)
			} else {
				general = append(general, name)
			}
		}

		if len(onDemand) > 0 && strings.EqualFold(service, "ec2") {
			if err := c.emitOnDemand(region, svcLimits, onDemand); err != nil {
				return err
			}
		}
		for _, name := range general {
			c.emitGeneral(region, service, name, svcLimits[name])
		}
	}

	return nil
}

// limitClass tags a limit with its emission shape.
type limitClass int

const (
	classGeneral limitClass = iota
	classEC2OnDemand
)

func classify(limitName string) limitClass {
	if strings.Contains(strings.ToLower(limitName), "on-demand") {
		return classEC2OnDemand
	}
	return classGeneral
}

// emitOnDemand folds every EC2 on-demand instance limit into the single
// aggregate series, one instance_type label value per limit. Usage entries
// for the same instance type overwrite each other: the gauge is a
// point-in-time value, not an accumulator.
func (c *Collector) emitOnDemand(region string, svcLimits map[string]limits.Limit, names []string) error {
	g := c.metrics.GetOrCreate(OnDemandPath, metrics.LabelInstanceType)

	for _, name := range names {
		instanceType, err := instanceTypeFor(name)
		if err != nil {
			return err
		}

		limit := svcLimits[name]
		g.WithLabelValues(region, metrics.TypeLimit, instanceType).Set(limit.Value)
		for _, usage := range limit.Usage {
			g.WithLabelValues(region, metrics.TypeCurrent, instanceType).Set(usage.Value)
		}
	}

	return nil
}

// instanceTypeFor extracts the instance_type label value from an on-demand
// limit name: "total" when the name normalizes to the aggregate path
// itself, otherwise the first dotted word (instance types like m5.large are
// the only dotted words in these names). A name with neither is a backend
// contract violation.
func instanceTypeFor(limitName string) (string, error) {
	if metrics.Normalize("ec2", limitName) == OnDemandPath {
		return "total", nil
	}
	for _, word := range strings.Split(limitName, " ") {
		if strings.Contains(word, ".") {
			return word, nil
		}
	}
	return "", fmt.Errorf("on-demand limit %q: no instance type token in name", limitName)
}

// emitGeneral publishes one limit under its own normalized path. The
// ceiling goes out as type="limit"; each usage entry goes out as
// type="current", or as its resource identifier when it has one, so
// per-resource series share the metric name.
func (c *Collector) emitGeneral(region, service, limitName string, limit limits.Limit) {
	g := c.metrics.GetOrCreate(metrics.Normalize(service, limitName))

	g.WithLabelValues(region, metrics.TypeLimit).Set(limit.Value)
	for _, usage := range limit.Usage {
		metricType := metrics.TypeCurrent
		if usage.ResourceID != "" {
			metricType = usage.ResourceID
		}
		g.WithLabelValues(region, metricType).Set(usage.Value)
	}
}

// IsReady returns true once at least one full poll cycle has completed.
func (c *Collector) IsReady() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cycleDone
}

// LastCycleTime returns the completion time of the most recent poll cycle.
func (c *Collector) LastCycleTime() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastRun
}

// RegionCount returns the number of regions being polled.
func (c *Collector) RegionCount() int {
	return len(c.regions)
}
