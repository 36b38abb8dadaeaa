// Package config provides configuration management for the AWS Limits
// Exporter.
//
// This package handles loading configuration from a YAML file, filling
// unset values from environment variables, applying defaults, parsing the
// operator limit-override block, and validating the result.
//
// Configuration sources (in order of precedence):
//  1. YAML configuration file (highest priority)
//  2. Environment variables
//  3. Default values (lowest priority)
//
// Supported environment variables:
//   - AWS_LIMITS_HTTP_PORT: HTTP server port (1-65535, default 8080)
//   - AWS_LIMITS_REFRESH_INTERVAL: Poll interval in seconds (default 1800)
//   - AWS_LIMITS_REGIONS: Comma-separated region list
//     (default "us-east-1,us-west-2")
//   - AWS_LIMITS_LOG_LEVEL: Log level (debug, info, warn, error)
//   - AWS_LIMITS_API_TIMEOUT: AWS API timeout in seconds
//
// Limit overrides are file-only. They pre-seed limit ceilings before the
// first poll, one override per line:
//
//	limit_overrides: |
//	  us-east-1/ec2/On-Demand m5.large=50
//	  us-west-2/vpc/VPCs=10
//
// Example configuration file (config.yaml):
//
//	http_port: 8080
//	refresh_interval: 1800
//	log_level: "info"
//
//	regions:
//	  - us-east-1
//	  - us-west-2
//
//	services:
//	  - ec2
//	  - vpc
//
// A malformed override line or out-of-range setting fails Load, and the
// process must not start serving in that case.
package config
