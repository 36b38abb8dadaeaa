package aws

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/servicequotas"
	sqtypes "github.com/aws/aws-sdk-go-v2/service/servicequotas/types"
	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/errgroup"

	"github.com/zgpcy/aws-limits-exporter/internal/config"
	"github.com/zgpcy/aws-limits-exporter/internal/limits"
	"github.com/zgpcy/aws-limits-exporter/internal/logger"
)

// AWS API retry constants
const (
	// MaxRetryElapsedTime is the maximum time to spend retrying a failed API call
	MaxRetryElapsedTime = 2 * time.Minute

	// InitialRetryInterval is the initial backoff interval for retries
	InitialRetryInterval = 1 * time.Second

	// MaxRetryInterval is the maximum backoff interval between retries
	MaxRetryInterval = 30 * time.Second

	// MaxConcurrentServiceFetches bounds parallel Service Quotas queries per refresh
	MaxConcurrentServiceFetches = 4

	// UsageMetricWindow is how far back CloudWatch is asked for a quota's usage metric
	UsageMetricWindow = 15 * time.Minute

	// UsageMetricPeriod is the CloudWatch statistics period in seconds
	UsageMetricPeriod = 300
)

// Checker implements the limits.Checker boundary on top of the AWS Service
// Quotas, CloudWatch and EC2 APIs for a single region.
type Checker struct {
	region string
	cfg    *config.Config
	logger *logger.Logger

	quotas *servicequotas.Client
	cw     *cloudwatch.Client
	ec2    *ec2.Client

	overrides map[overrideKey]float64

	mu     sync.RWMutex
	report limits.Report
}

type overrideKey struct {
	service   string
	limitName string
}

// Verify that Checker implements limits.Checker
var _ limits.Checker = (*Checker)(nil)

// NewChecker creates a checker bound to one region, using the SDK default
// credential chain.
func NewChecker(ctx context.Context, cfg *config.Config, region string, log *logger.Logger) (*Checker, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config for %s: %w", region, err)
	}

	return &Checker{
		region:    region,
		cfg:       cfg,
		logger:    log.WithRegion(region),
		quotas:    servicequotas.NewFromConfig(awsCfg),
		cw:        cloudwatch.NewFromConfig(awsCfg),
		ec2:       ec2.NewFromConfig(awsCfg),
		overrides: make(map[overrideKey]float64),
		report:    limits.Report{},
	}, nil
}

// SetOverride replaces the ceiling reported for one limit. Overrides apply
// to every later Refresh; set them before the first one.
func (c *Checker) SetOverride(service, limitName string, value float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.overrides[overrideKey{service, limitName}] = value
}

// Limits returns the snapshot taken by the last successful Refresh.
func (c *Checker) Limits() limits.Report {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.report
}

// Refresh queries Service Quotas for every configured service plus the EC2
// running on-demand instance family, and replaces the current snapshot.
// Partial data is kept when only some services fail (partial data beats no
// data on a scrape); Refresh fails only when every fetch fails.
func (c *Checker) Refresh(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.GetAPITimeout())
	defer cancel()

	var (
		mu      sync.Mutex
		report  = limits.Report{}
		errs    []error
		fetches int
	)

	record := func(service string, svcLimits map[string]limits.Limit, err error) {
		mu.Lock()
		defer mu.Unlock()
		fetches++
		if err != nil {
			errs = append(errs, err)
			return
		}
		if len(svcLimits) == 0 {
			return
		}
		if existing, ok := report[service]; ok {
			for name, limit := range svcLimits {
				existing[name] = limit
			}
		} else {
			report[service] = svcLimits
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(MaxConcurrentServiceFetches)

	for _, service := range c.cfg.Services {
		service := service
		g.Go(func() error {
			svcLimits, err := c.fetchServiceQuotas(gctx, service)
			if err != nil {
				c.logger.Warn("Failed to fetch service quotas, continuing with others",
					"service", service, "error", err)
				record(service, nil, fmt.Errorf("service %s: %w", service, err))
				return nil
			}
			record(service, svcLimits, nil)
			return nil
		})
	}

	g.Go(func() error {
		onDemand, err := c.fetchOnDemandInstances(gctx)
		if err != nil {
			c.logger.Warn("Failed to fetch running on-demand instances", "error", err)
			record("ec2", nil, fmt.Errorf("ec2 on-demand instances: %w", err))
			return nil
		}
		record("ec2", onDemand, nil)
		return nil
	})

	// Workers never return errors; failures are recorded per fetch.
	_ = g.Wait()

	if len(errs) == fetches && fetches > 0 {
		return fmt.Errorf("all %d fetches failed for region %s (check AWS credentials and permissions): %v",
			fetches, c.region, errs)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.applyOverrides(report)
	c.report = report
	return nil
}

// applyOverrides replaces ceilings in the freshly built report with any
// operator overrides recorded for this region. Overrides naming limits the
// report does not contain are ignored. Callers must hold c.mu.
func (c *Checker) applyOverrides(report limits.Report) {
	for key, value := range c.overrides {
		if svcLimits, ok := report[key.service]; ok {
			if limit, ok := svcLimits[key.limitName]; ok {
				limit.Value = value
				svcLimits[key.limitName] = limit
			}
		}
	}
}

// fetchServiceQuotas lists one service's quotas and resolves current usage
// for quotas that advertise a CloudWatch usage metric. Each page fetch is
// retried with exponential backoff.
func (c *Checker) fetchServiceQuotas(ctx context.Context, service string) (map[string]limits.Limit, error) {
	var quotaList []sqtypes.ServiceQuota

	operation := func() error {
		quotaList = quotaList[:0]
		paginator := servicequotas.NewListServiceQuotasPaginator(c.quotas, &servicequotas.ListServiceQuotasInput{
			ServiceCode: aws.String(service),
		})
		for paginator.HasMorePages() {
			output, err := paginator.NextPage(ctx)
			if err != nil {
				c.logger.Debug("Service Quotas call failed, will retry",
					"service", service, "error", err)
				return err
			}
			quotaList = append(quotaList, output.Quotas...)
		}
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = InitialRetryInterval
	bo.MaxInterval = MaxRetryInterval
	bo.MaxElapsedTime = MaxRetryElapsedTime
	if err := backoff.Retry(operation, backoff.WithContext(bo, ctx)); err != nil {
		return nil, fmt.Errorf("list quotas failed after retries: %w", err)
	}

	svcLimits := make(map[string]limits.Limit, len(quotaList))
	for _, q := range quotaList {
		if q.QuotaName == nil || q.Value == nil {
			continue
		}

		// EC2's own on-demand quotas are vCPU-based and carry no instance
		// type in the name; the instance counter builds the per-type
		// on-demand limit family instead.
		if strings.EqualFold(service, "ec2") && strings.Contains(strings.ToLower(*q.QuotaName), "on-demand") {
			continue
		}

		limit := limits.Limit{Value: *q.Value}
		if q.UsageMetric != nil {
			usage, ok, err := c.fetchQuotaUsage(ctx, q.UsageMetric)
			if err != nil {
				c.logger.Debug("CloudWatch usage query failed",
					"service", service, "quota", *q.QuotaName, "error", err)
			} else if ok {
				limit.Usage = []limits.Usage{{Value: usage}}
			}
		}
		svcLimits[*q.QuotaName] = limit
	}

	return svcLimits, nil
}

// fetchQuotaUsage asks CloudWatch for the quota's advertised usage metric
// over the recent window. The second return value is false when the metric
// has no datapoints yet.
func (c *Checker) fetchQuotaUsage(ctx context.Context, metric *sqtypes.MetricInfo) (float64, bool, error) {
	if metric.MetricNamespace == nil || metric.MetricName == nil {
		return 0, false, nil
	}

	stat := "Maximum"
	if metric.MetricStatisticRecommendation != nil && *metric.MetricStatisticRecommendation != "" {
		stat = *metric.MetricStatisticRecommendation
	}

	dimensions := make([]cwtypes.Dimension, 0, len(metric.MetricDimensions))
	for name, value := range metric.MetricDimensions {
		dimensions = append(dimensions, cwtypes.Dimension{
			Name:  aws.String(name),
			Value: aws.String(value),
		})
	}

	end := time.Now()
	output, err := c.cw.GetMetricStatistics(ctx, &cloudwatch.GetMetricStatisticsInput{
		Namespace:  metric.MetricNamespace,
		MetricName: metric.MetricName,
		Dimensions: dimensions,
		StartTime:  aws.Time(end.Add(-UsageMetricWindow)),
		EndTime:    aws.Time(end),
		Period:     aws.Int32(UsageMetricPeriod),
		Statistics: []cwtypes.Statistic{cwtypes.Statistic(stat)},
	})
	if err != nil {
		return 0, false, err
	}
	if len(output.Datapoints) == 0 {
		return 0, false, nil
	}

	// Use the most recent datapoint.
	latest := output.Datapoints[0]
	for _, dp := range output.Datapoints[1:] {
		if dp.Timestamp != nil && latest.Timestamp != nil && dp.Timestamp.After(*latest.Timestamp) {
			latest = dp
		}
	}
	return datapointValue(latest, stat), true, nil
}

func datapointValue(dp cwtypes.Datapoint, stat string) float64 {
	var v *float64
	switch stat {
	case "Average":
		v = dp.Average
	case "Sum":
		v = dp.Sum
	case "Minimum":
		v = dp.Minimum
	default:
		v = dp.Maximum
	}
	if v == nil {
		return 0
	}
	return *v
}
