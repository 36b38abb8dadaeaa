package aws

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/aws/aws-sdk-go-v2/service/servicequotas"

	"github.com/zgpcy/aws-limits-exporter/internal/limits"
)

const (
	// OnDemandAggregateLimitName is the limit covering all running
	// on-demand instances in a region, regardless of type.
	OnDemandAggregateLimitName = "Running On-Demand EC2 instances"

	// DefaultOnDemandCeiling is used when the account's standard-instances
	// quota cannot be read. Matches the default vCPU quota for standard
	// on-demand instances in a fresh account.
	DefaultOnDemandCeiling = 1152

	// standardInstancesQuotaCode is the Service Quotas code for "Running
	// On-Demand Standard (A, C, D, H, I, M, R, T, Z) instances".
	standardInstancesQuotaCode = "L-1216C47A"
)

// fetchOnDemandInstances counts running on-demand instances per instance
// type and shapes the counts into the on-demand limit family: one
// aggregate limit plus one limit per instance type seen.
func (c *Checker) fetchOnDemandInstances(ctx context.Context) (map[string]limits.Limit, error) {
	counts, err := c.countRunningInstances(ctx)
	if err != nil {
		return nil, err
	}

	ceiling := c.onDemandCeiling(ctx)
	return buildOnDemandLimits(counts, ceiling), nil
}

// countRunningInstances tallies running instances per instance type,
// skipping spot and scheduled instances: only on-demand capacity counts
// against the on-demand limit family.
func (c *Checker) countRunningInstances(ctx context.Context) (map[string]float64, error) {
	counts := make(map[string]float64)

	input := &ec2.DescribeInstancesInput{
		Filters: []ec2types.Filter{
			{
				Name:   aws.String("instance-state-name"),
				Values: []string{"running"},
			},
		},
	}

	paginator := ec2.NewDescribeInstancesPaginator(c.ec2, input)
	for paginator.HasMorePages() {
		output, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("describe instances: %w", err)
		}
		for _, reservation := range output.Reservations {
			for _, instance := range reservation.Instances {
				if instance.InstanceLifecycle != "" {
					continue
				}
				counts[string(instance.InstanceType)]++
			}
		}
	}

	return counts, nil
}

// onDemandCeiling reads the account's standard-instances vCPU quota, which
// serves as the ceiling for the on-demand limit family. Falls back to the
// account default when the quota cannot be read.
func (c *Checker) onDemandCeiling(ctx context.Context) float64 {
	output, err := c.quotas.GetServiceQuota(ctx, &servicequotas.GetServiceQuotaInput{
		ServiceCode: aws.String("ec2"),
		QuotaCode:   aws.String(standardInstancesQuotaCode),
	})
	if err != nil || output.Quota == nil || output.Quota.Value == nil {
		if err != nil {
			c.logger.Debug("Failed to read standard instances quota, using default ceiling",
				"error", err)
		}
		return DefaultOnDemandCeiling
	}
	return *output.Quota.Value
}

// buildOnDemandLimits shapes per-type running instance counts into the
// on-demand limit family. Limit names follow the
// "Running On-Demand <type> Instances" convention the translator parses
// instance types out of.
func buildOnDemandLimits(counts map[string]float64, ceiling float64) map[string]limits.Limit {
	svcLimits := make(map[string]limits.Limit, len(counts)+1)

	var total float64
	for instanceType, count := range counts {
		total += count
		name := fmt.Sprintf("Running On-Demand %s Instances", instanceType)
		svcLimits[name] = limits.Limit{
			Value: ceiling,
			Usage: []limits.Usage{{Value: count}},
		}
	}

	svcLimits[OnDemandAggregateLimitName] = limits.Limit{
		Value: ceiling,
		Usage: []limits.Usage{{Value: total}},
	}

	return svcLimits
}
