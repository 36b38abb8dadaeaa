package collector

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/zgpcy/aws-limits-exporter/internal/limits"
	"github.com/zgpcy/aws-limits-exporter/internal/logger"
	"github.com/zgpcy/aws-limits-exporter/internal/metrics"
)

// testLogger creates a logger for testing (error level to suppress test output)
func testLogger() *logger.Logger {
	return logger.New("error")
}

// override records one SetOverride call on the mock checker.
type override struct {
	service   string
	limitName string
	value     float64
}

// mockChecker is a stub usage-checking backend for one region.
type mockChecker struct {
	mu           sync.Mutex
	report       limits.Report
	refreshErr   error
	refreshCalls int
	overrides    []override
}

func (m *mockChecker) Refresh(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.refreshCalls++
	return m.refreshErr
}

func (m *mockChecker) Limits() limits.Report {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.report
}

func (m *mockChecker) SetOverride(service, limitName string, value float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.overrides = append(m.overrides, override{service, limitName, value})
}

func (m *mockChecker) RefreshCallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.refreshCalls
}

// newTestCollector builds a collector over pre-made checkers with a fresh
// metrics registry.
func newTestCollector(t *testing.T, regions []string, checkers map[string]*mockChecker, overrides []limits.Override) (*Collector, *metrics.Registry) {
	t.Helper()
	reg := metrics.NewRegistry(prometheus.NewRegistry())
	factory := func(region string) (limits.Checker, error) {
		checker, ok := checkers[region]
		if !ok {
			t.Fatalf("no mock checker for region %s", region)
		}
		return checker, nil
	}
	coll, err := New(regions, factory, overrides, reg, testLogger())
	if err != nil {
		t.Fatalf("New() error = %v, want nil", err)
	}
	return coll, reg
}

func TestNew_AppliesMatchingOverridesBeforeFirstPoll(t *testing.T) {
	east := &mockChecker{}
	west := &mockChecker{}
	overrides := []limits.Override{
		{Region: "us-east-1", Service: "ec2", LimitName: "On-Demand m5.large", Value: 50},
		{Region: "us-west-2", Service: "s3", LimitName: "Buckets", Value: 200},
		{Region: "eu-west-1", Service: "vpc", LimitName: "VPCs", Value: 9},
	}

	newTestCollector(t, []string{"us-east-1", "us-west-2"},
		map[string]*mockChecker{"us-east-1": east, "us-west-2": west}, overrides)

	if len(east.overrides) != 1 {
		t.Fatalf("us-east-1 overrides = %d, want 1", len(east.overrides))
	}
	if east.overrides[0] != (override{"ec2", "On-Demand m5.large", 50}) {
		t.Errorf("us-east-1 override = %+v", east.overrides[0])
	}
	if len(west.overrides) != 1 || west.overrides[0].service != "s3" {
		t.Errorf("us-west-2 overrides = %+v, want one s3 override", west.overrides)
	}
	if east.RefreshCallCount() != 0 || west.RefreshCallCount() != 0 {
		t.Error("New must not trigger any refresh")
	}
}

func TestNew_FactoryErrorPropagates(t *testing.T) {
	reg := metrics.NewRegistry(prometheus.NewRegistry())
	factory := func(region string) (limits.Checker, error) {
		return nil, errors.New("no credentials")
	}
	if _, err := New([]string{"us-east-1"}, factory, nil, reg, testLogger()); err == nil {
		t.Error("Expected factory error to propagate, got nil")
	}
}

func TestRunCycle_EndToEnd(t *testing.T) {
	// Two regions, each with one EC2 on-demand limit and one generic limit.
	report := func() limits.Report {
		return limits.Report{
			"EC2": {
				"Running On-Demand m5.large Instances": {
					Value: 75,
					Usage: []limits.Usage{{Value: 42}},
				},
			},
			"S3": {
				"Buckets": {
					Value: 100,
					Usage: []limits.Usage{{Value: 12}},
				},
			},
		}
	}
	east := &mockChecker{report: report()}
	west := &mockChecker{report: report()}

	coll, reg := newTestCollector(t, []string{"us-east-1", "us-west-2"},
		map[string]*mockChecker{"us-east-1": east, "us-west-2": west}, nil)

	coll.RunCycle(context.Background())

	onDemand := reg.GetOrCreate(OnDemandPath, metrics.LabelInstanceType)
	buckets := reg.GetOrCreate("s3_buckets")

	for _, region := range []string{"us-east-1", "us-west-2"} {
		if got := testutil.ToFloat64(onDemand.WithLabelValues(region, metrics.TypeLimit, "m5.large")); got != 75 {
			t.Errorf("%s on-demand limit = %v, want 75", region, got)
		}
		if got := testutil.ToFloat64(onDemand.WithLabelValues(region, metrics.TypeCurrent, "m5.large")); got != 42 {
			t.Errorf("%s on-demand current = %v, want 42", region, got)
		}
		if got := testutil.ToFloat64(buckets.WithLabelValues(region, metrics.TypeLimit)); got != 100 {
			t.Errorf("%s bucket limit = %v, want 100", region, got)
		}
		if got := testutil.ToFloat64(buckets.WithLabelValues(region, metrics.TypeCurrent)); got != 12 {
			t.Errorf("%s bucket current = %v, want 12", region, got)
		}
	}

	if !coll.IsReady() {
		t.Error("IsReady() = false after a completed cycle")
	}
	if coll.LastCycleTime().IsZero() {
		t.Error("LastCycleTime() is zero after a completed cycle")
	}
}

func TestRunCycle_AggregateLimitGetsTotalInstanceType(t *testing.T) {
	checker := &mockChecker{report: limits.Report{
		"ec2": {
			"Running On-Demand EC2 instances": {
				Value: 256,
				Usage: []limits.Usage{{Value: 31}},
			},
		},
	}}
	coll, reg := newTestCollector(t, []string{"us-east-1"},
		map[string]*mockChecker{"us-east-1": checker}, nil)

	coll.RunCycle(context.Background())

	g := reg.GetOrCreate(OnDemandPath, metrics.LabelInstanceType)
	if got := testutil.ToFloat64(g.WithLabelValues("us-east-1", metrics.TypeLimit, "total")); got != 256 {
		t.Errorf("aggregate limit = %v, want 256", got)
	}
	if got := testutil.ToFloat64(g.WithLabelValues("us-east-1", metrics.TypeCurrent, "total")); got != 31 {
		t.Errorf("aggregate current = %v, want 31", got)
	}
}

func TestRunCycle_MalformedOnDemandNameIsolatedToRegion(t *testing.T) {
	// No dotted token and not the aggregate name: a backend contract
	// violation that must abort this region only.
	bad := &mockChecker{report: limits.Report{
		"EC2": {
			"Running On-Demand Weird Instances": {Value: 5},
		},
	}}
	good := &mockChecker{report: limits.Report{
		"S3": {
			"Buckets": {Value: 100, Usage: []limits.Usage{{Value: 3}}},
		},
	}}

	coll, reg := newTestCollector(t, []string{"us-east-1", "us-west-2"},
		map[string]*mockChecker{"us-east-1": bad, "us-west-2": good}, nil)

	coll.RunCycle(context.Background())

	buckets := reg.GetOrCreate("s3_buckets")
	if got := testutil.ToFloat64(buckets.WithLabelValues("us-west-2", metrics.TypeCurrent)); got != 3 {
		t.Errorf("healthy region current = %v, want 3", got)
	}
	if got := testutil.ToFloat64(coll.regionErrors.WithLabelValues("us-east-1")); got != 1 {
		t.Errorf("us-east-1 error count = %v, want 1", got)
	}
	if got := testutil.ToFloat64(coll.regionErrors.WithLabelValues("us-west-2")); got != 0 {
		t.Errorf("us-west-2 error count = %v, want 0", got)
	}
}

func TestRunCycle_RefreshFailureDoesNotBlockOtherRegionsOrNextCycle(t *testing.T) {
	failing := &mockChecker{refreshErr: errors.New("throttled")}
	healthy := &mockChecker{report: limits.Report{
		"VPC": {"VPCs": {Value: 5, Usage: []limits.Usage{{Value: 2}}}},
	}}

	coll, reg := newTestCollector(t, []string{"us-east-1", "us-west-2"},
		map[string]*mockChecker{"us-east-1": failing, "us-west-2": healthy}, nil)

	coll.RunCycle(context.Background())
	coll.RunCycle(context.Background())

	if failing.RefreshCallCount() != 2 {
		t.Errorf("failing region refresh calls = %d, want 2 (must be retried each cycle)", failing.RefreshCallCount())
	}
	if healthy.RefreshCallCount() != 2 {
		t.Errorf("healthy region refresh calls = %d, want 2", healthy.RefreshCallCount())
	}

	vpcs := reg.GetOrCreate("vpc_vpcs")
	if got := testutil.ToFloat64(vpcs.WithLabelValues("us-west-2", metrics.TypeCurrent)); got != 2 {
		t.Errorf("healthy region current = %v, want 2", got)
	}
	if got := testutil.ToFloat64(coll.regionErrors.WithLabelValues("us-east-1")); got != 2 {
		t.Errorf("failing region error count = %v, want 2", got)
	}
}

func TestRunCycle_ResourceIDBecomesTypeLabel(t *testing.T) {
	checker := &mockChecker{report: limits.Report{
		"ElasticLoadBalancing": {
			"Listeners per load balancer": {
				Value: 50,
				Usage: []limits.Usage{
					{Value: 4, ResourceID: "alb-prod"},
					{Value: 7, ResourceID: "alb-staging"},
					{Value: 1},
				},
			},
		},
	}}
	coll, reg := newTestCollector(t, []string{"us-east-1"},
		map[string]*mockChecker{"us-east-1": checker}, nil)

	coll.RunCycle(context.Background())

	g := reg.GetOrCreate("elasticloadbalancing_listeners_per_load_balancer")
	if got := testutil.ToFloat64(g.WithLabelValues("us-east-1", "alb-prod")); got != 4 {
		t.Errorf("alb-prod = %v, want 4", got)
	}
	if got := testutil.ToFloat64(g.WithLabelValues("us-east-1", "alb-staging")); got != 7 {
		t.Errorf("alb-staging = %v, want 7", got)
	}
	if got := testutil.ToFloat64(g.WithLabelValues("us-east-1", metrics.TypeCurrent)); got != 1 {
		t.Errorf("current = %v, want 1", got)
	}
}

func TestRunCycle_DuplicateTupleLastWriteWins(t *testing.T) {
	checker := &mockChecker{report: limits.Report{
		"S3": {
			"Buckets": {
				Value: 100,
				Usage: []limits.Usage{{Value: 5}, {Value: 9}},
			},
		},
	}}
	coll, reg := newTestCollector(t, []string{"us-east-1"},
		map[string]*mockChecker{"us-east-1": checker}, nil)

	coll.RunCycle(context.Background())

	g := reg.GetOrCreate("s3_buckets")
	if got := testutil.ToFloat64(g.WithLabelValues("us-east-1", metrics.TypeCurrent)); got != 9 {
		t.Errorf("current = %v, want 9 (last write wins)", got)
	}
}

func TestRunCycle_OnDemandLimitsOutsideEC2AreNotEmitted(t *testing.T) {
	checker := &mockChecker{report: limits.Report{
		"SomeService": {
			"On-Demand widgets": {Value: 10},
		},
	}}
	promReg := prometheus.NewRegistry()
	reg := metrics.NewRegistry(promReg)
	factory := func(region string) (limits.Checker, error) { return checker, nil }
	coll, err := New([]string{"us-east-1"}, factory, nil, reg, testLogger())
	if err != nil {
		t.Fatalf("New() error = %v, want nil", err)
	}

	coll.RunCycle(context.Background())

	// Neither the aggregate series nor a general series may appear.
	families, err := promReg.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	for _, mf := range families {
		if mf.GetName() == OnDemandPath || mf.GetName() == "someservice_on_demand_widgets" {
			t.Errorf("unexpected series %s emitted for non-EC2 on-demand limit", mf.GetName())
		}
	}
	if got := testutil.ToFloat64(coll.regionErrors.WithLabelValues("us-east-1")); got != 0 {
		t.Errorf("error count = %v, want 0", got)
	}
}

func TestInstanceTypeFor(t *testing.T) {
	tests := []struct {
		name      string
		limitName string
		want      string
		wantErr   bool
	}{
		{"dotted token", "Running On-Demand m5.large Instances", "m5.large", false},
		{"aggregate name", "Running On-Demand EC2 instances", "total", false},
		{"mixed case aggregate", "Running On-Demand EC2 Instances", "total", false},
		{"no dotted token", "Running On-Demand Weird Instances", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := instanceTypeFor(tt.limitName)
			if (err != nil) != tt.wantErr {
				t.Fatalf("instanceTypeFor(%q) error = %v, wantErr %v", tt.limitName, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("instanceTypeFor(%q) = %q, want %q", tt.limitName, got, tt.want)
			}
		})
	}
}

func TestStart_StopsOnContextCancel(t *testing.T) {
	checker := &mockChecker{report: limits.Report{}}
	coll, _ := newTestCollector(t, []string{"us-east-1"},
		map[string]*mockChecker{"us-east-1": checker}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	coll.Start(ctx, 10*time.Millisecond)

	// The initial cycle runs synchronously.
	if checker.RefreshCallCount() < 1 {
		t.Fatal("Start did not run an initial cycle")
	}

	time.Sleep(35 * time.Millisecond)
	cancel()
	time.Sleep(25 * time.Millisecond)

	stopped := checker.RefreshCallCount()
	time.Sleep(35 * time.Millisecond)
	if got := checker.RefreshCallCount(); got != stopped {
		t.Errorf("refresh calls kept growing after cancel: %d -> %d", stopped, got)
	}
}

func TestStart_SecondCallIsNoOp(t *testing.T) {
	checker := &mockChecker{report: limits.Report{}}
	coll, _ := newTestCollector(t, []string{"us-east-1"},
		map[string]*mockChecker{"us-east-1": checker}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	coll.Start(ctx, time.Hour)
	calls := checker.RefreshCallCount()
	coll.Start(ctx, time.Hour)

	if got := checker.RefreshCallCount(); got != calls {
		t.Errorf("second Start ran another cycle: %d -> %d", calls, got)
	}
}
