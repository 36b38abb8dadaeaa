package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/zgpcy/aws-limits-exporter/internal/limits"
)

// Configuration validation constants
const (
	MinPort = 1     // Minimum valid port number
	MaxPort = 65535 // Maximum valid port number

	// Default values
	DefaultHTTPPort        = 8080
	DefaultRefreshInterval = 1800 // 30 minutes in seconds
	DefaultRegions         = "us-east-1,us-west-2"
	DefaultLogLevel        = "info"
	DefaultAPITimeout      = 120 // AWS API timeout in seconds
)

// DefaultServices are the Service Quotas service codes polled when the
// config does not name any.
var DefaultServices = []string{"ec2", "ebs", "vpc", "elasticloadbalancing"}

// Config represents the application configuration
type Config struct {
	HTTPPort        int      `yaml:"http_port"`
	RefreshInterval int      `yaml:"refresh_interval"` // seconds
	Regions         []string `yaml:"regions"`
	Services        []string `yaml:"services"`
	LimitOverrides  string   `yaml:"limit_overrides"` // newline-separated override lines
	LogLevel        string   `yaml:"log_level"`
	APITimeout      int      `yaml:"api_timeout"` // AWS API timeout in seconds

	// Overrides is the parsed form of LimitOverrides.
	Overrides []limits.Override `yaml:"-"`
}

// Load loads configuration from a YAML file, falls back to environment
// variables for settings the file leaves unset, applies defaults, and
// validates the result. A missing file is not an error; an unreadable or
// unparseable one is.
//
// Precedence is file, then environment, then default. Limit overrides come
// from the file only.
func Load(path string) (*Config, error) {
	var cfg Config

	// #nosec G304 -- Config file path is provided by administrator via CLI flag, not user input
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	case os.IsNotExist(err):
		// Environment-only deployment.
	default:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := applyEnvFallbacks(&cfg); err != nil {
		return nil, fmt.Errorf("environment variable error: %w", err)
	}

	applyDefaults(&cfg)

	cfg.Overrides, err = limits.ParseOverrides(cfg.LimitOverrides)
	if err != nil {
		return nil, fmt.Errorf("invalid limit override: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// applyEnvFallbacks fills settings the config file left unset from
// environment variables. File values always win over the environment.
func applyEnvFallbacks(cfg *Config) error {
	if cfg.HTTPPort == 0 {
		if val := os.Getenv("AWS_LIMITS_HTTP_PORT"); val != "" {
			i, err := strconv.Atoi(val)
			if err != nil {
				return fmt.Errorf("invalid AWS_LIMITS_HTTP_PORT: must be an integer, got %q", val)
			}
			cfg.HTTPPort = i
		}
	}

	if cfg.RefreshInterval == 0 {
		if val := os.Getenv("AWS_LIMITS_REFRESH_INTERVAL"); val != "" {
			i, err := strconv.Atoi(val)
			if err != nil {
				return fmt.Errorf("invalid AWS_LIMITS_REFRESH_INTERVAL: must be an integer, got %q", val)
			}
			cfg.RefreshInterval = i
		}
	}

	if len(cfg.Regions) == 0 {
		if val := os.Getenv("AWS_LIMITS_REGIONS"); val != "" {
			cfg.Regions = splitRegions(val)
		}
	}

	if cfg.LogLevel == "" {
		if val := os.Getenv("AWS_LIMITS_LOG_LEVEL"); val != "" {
			cfg.LogLevel = val
		}
	}

	if cfg.APITimeout == 0 {
		if val := os.Getenv("AWS_LIMITS_API_TIMEOUT"); val != "" {
			i, err := strconv.Atoi(val)
			if err != nil {
				return fmt.Errorf("invalid AWS_LIMITS_API_TIMEOUT: must be an integer, got %q", val)
			}
			cfg.APITimeout = i
		}
	}

	return nil
}

// applyDefaults sets default values for settings neither the file nor the
// environment provided.
func applyDefaults(cfg *Config) {
	if cfg.HTTPPort == 0 {
		cfg.HTTPPort = DefaultHTTPPort
	}
	if cfg.RefreshInterval == 0 {
		cfg.RefreshInterval = DefaultRefreshInterval
	}
	if len(cfg.Regions) == 0 {
		cfg.Regions = splitRegions(DefaultRegions)
	}
	if len(cfg.Services) == 0 {
		cfg.Services = append([]string(nil), DefaultServices...)
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = DefaultLogLevel
	}
	if cfg.APITimeout == 0 {
		cfg.APITimeout = DefaultAPITimeout
	}
}

func splitRegions(val string) []string {
	var regions []string
	for _, region := range strings.Split(val, ",") {
		region = strings.TrimSpace(region)
		if region != "" {
			regions = append(regions, region)
		}
	}
	return regions
}

// validate validates the configuration
func validate(cfg *Config) error {
	if cfg.HTTPPort < MinPort || cfg.HTTPPort > MaxPort {
		return fmt.Errorf("http_port must be between %d and %d, got %d", MinPort, MaxPort, cfg.HTTPPort)
	}

	if cfg.RefreshInterval <= 0 {
		return fmt.Errorf("refresh_interval must be positive, got %d", cfg.RefreshInterval)
	}

	if len(cfg.Regions) == 0 {
		return fmt.Errorf("no regions configured")
	}
	for i, region := range cfg.Regions {
		if region == "" {
			return fmt.Errorf("region at index %d is empty", i)
		}
	}

	if cfg.APITimeout <= 0 {
		return fmt.Errorf("api_timeout must be positive, got %d", cfg.APITimeout)
	}
	if cfg.APITimeout > 600 {
		return fmt.Errorf("api_timeout should not exceed 600 seconds, got %d", cfg.APITimeout)
	}

	return nil
}

// GetRefreshInterval returns the poll interval as a duration.
func (c *Config) GetRefreshInterval() time.Duration {
	return time.Duration(c.RefreshInterval) * time.Second
}

// GetAPITimeout returns the AWS API timeout as a duration.
func (c *Config) GetAPITimeout() time.Duration {
	return time.Duration(c.APITimeout) * time.Second
}
