// Package aws implements the usage-checking backend on top of the AWS
// APIs.
//
// The Checker type binds one region and implements limits.Checker. Each
// Refresh builds a fresh usage report from three sources:
//   - Service Quotas: quota names and ceiling values for every configured
//     service code
//   - CloudWatch: current usage for quotas that advertise a usage metric,
//     using the quota's recommended statistic over a recent window
//   - EC2 DescribeInstances: running on-demand instance counts per
//     instance type, shaped into the
//     "Running On-Demand <type> Instances" limit family plus the
//     region-wide aggregate
//
// Per-service fetches run concurrently under a bounded errgroup and are
// retried with exponential backoff. A refresh keeps partial data when only
// some services fail and fails only when every fetch does, so one broken
// API does not blank out a whole region's metrics.
//
// Operator overrides recorded via SetOverride before the first Refresh
// replace the matching quota's ceiling in every later report.
//
// Authentication uses the SDK default credential chain; the exporter never
// manages credentials itself.
package aws
