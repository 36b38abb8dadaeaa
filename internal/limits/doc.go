// Package limits defines the usage-checking backend boundary.
//
// This package provides the generic types for one region's limit/usage
// snapshot and the Checker interface that any backend must implement. It
// keeps the collector independent of how usage is actually computed: the
// AWS-backed checker in internal/aws implements the same interface as the
// stub checkers used in tests.
//
// The Checker contract per region:
//
//	type Checker interface {
//		Refresh(ctx context.Context) error
//		Limits() Report
//		SetOverride(service, limitName string, value float64)
//	}
//
// A Report is a nested mapping of service name to limit name to Limit,
// where each Limit carries a ceiling value and a list of current-usage
// observations (optionally tagged with a resource identifier).
//
// The package also owns operator limit overrides. An override replaces the
// ceiling reported for one limit in one region and is written as a single
// line:
//
//	region/service/limit-name=value
//
// For example:
//
//	us-east-1/ec2/On-Demand m5.large=50
//
// ParseOverrides turns a newline-separated block of such lines into
// Override records. Lines without an equals sign are skipped; malformed
// lines that do contain one fail parsing, which is fatal at startup.
package limits
