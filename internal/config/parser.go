package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment variables that override file values.
const (
	EnvBaseURL  = "MERCHLOAD_BASE_URL"
	EnvRate     = "MERCHLOAD_RATE"
	EnvDuration = "MERCHLOAD_DURATION"
)

// ExecutorConstantArrivalRate is the only supported executor.
const ExecutorConstantArrivalRate = "constant-arrival-rate"

// LoadConfig loads a test configuration from a file.
//
// The file format is determined by extension:
//   - .yaml, .yml -> YAML
//   - .json -> JSON
func LoadConfig(path string) (*TestConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return ParseConfig(data, path)
}

// ParseConfig parses configuration data.
//
// The format is determined by the file extension in path, or defaults to YAML
// if the path is empty or has an unknown extension.
func ParseConfig(data []byte, path string) (*TestConfig, error) {
	var config TestConfig

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".json":
		if err := json.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse JSON config: %w", err)
		}
	case ".yaml", ".yml", "":
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	default:
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse config (unknown format %s): %w", ext, err)
		}
	}

	return &config, nil
}

// ParseDurationString parses a duration string with support for common formats.
//
// Supported formats:
//   - Standard Go duration: "30s", "2m", "1h30m", "500ms"
//   - Seconds as integer: "30" (treated as 30 seconds)
func ParseDurationString(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}

	d, err := time.ParseDuration(s)
	if err == nil {
		return d, nil
	}

	if seconds, err := strconv.Atoi(s); err == nil {
		return time.Duration(seconds) * time.Second, nil
	}

	return 0, fmt.Errorf("invalid duration format: %s", s)
}

// DefaultThresholds returns the pass/fail criteria used when a config
// declares none.
func DefaultThresholds() map[string][]string {
	return map[string][]string{
		"http_req_duration":  {"p(99.99) < 50"},
		"errors":             {"rate<0.0001"},
		"auth_duration":      {"p(95) < 50"},
		"info_duration":      {"p(95) < 50"},
		"send_coin_duration": {"p(95) < 50"},
		"buy_item_duration":  {"p(95) < 50"},
	}
}

// Default returns a fully defaulted configuration.
func Default() *TestConfig {
	config := &TestConfig{}
	ApplyDefaults(config)
	return config
}

// ApplyDefaults applies default values to a TestConfig.
//
// A nil thresholds map receives DefaultThresholds; an explicitly empty one
// is kept empty.
func ApplyDefaults(config *TestConfig) {
	if config.Name == "" {
		config.Name = "merch shop load"
	}
	if config.BaseURL == "" {
		config.BaseURL = "http://localhost:8080"
	}
	if config.Thresholds == nil {
		config.Thresholds = DefaultThresholds()
	}

	applyScenarioDefaults(&config.Scenario)

	// Shop
	shop := &config.Shop
	if shop.Users == 0 {
		shop.Users = 100
	}
	if shop.UserPrefix == "" {
		shop.UserPrefix = "testuser"
	}
	if shop.Password == "" {
		shop.Password = "password123"
	}
	if shop.SendCoinProbability == nil {
		p := 0.3
		shop.SendCoinProbability = &p
	}
	if shop.BuyItemProbability == nil {
		p := 0.2
		shop.BuyItemProbability = &p
	}
	if shop.MaxTransfer == 0 {
		shop.MaxTransfer = 100
	}
	if shop.MaxIdle == nil {
		d := Duration(100 * time.Millisecond)
		shop.MaxIdle = &d
	}

	// HTTP
	if config.HTTP.RequestTimeout == 0 {
		config.HTTP.RequestTimeout = Duration(10 * time.Second)
	}
	if config.HTTP.MaxIdleConns == 0 {
		config.HTTP.MaxIdleConns = 1000
	}
	if config.HTTP.MaxIdleConnsPerHost == 0 {
		config.HTTP.MaxIdleConnsPerHost = 1000
	}
	if config.HTTP.IdleConnTimeout == 0 {
		config.HTTP.IdleConnTimeout = Duration(90 * time.Second)
	}
	if config.HTTP.UserAgent == "" {
		config.HTTP.UserAgent = "merchload/1.0"
	}

	// Metrics
	if config.Metrics.TrendMode == "" {
		config.Metrics.TrendMode = "hdr"
	}
	if config.Metrics.SignificantFigures == 0 {
		config.Metrics.SignificantFigures = 3
	}
	if config.Metrics.BucketInterval == 0 {
		config.Metrics.BucketInterval = Duration(time.Second)
	}
	if config.Metrics.MaxBuckets == 0 {
		config.Metrics.MaxBuckets = 3600
	}

	// Logging
	if config.Logging.Level == "" {
		config.Logging.Level = "info"
	}
	if config.Logging.Format == "" {
		config.Logging.Format = "console"
	}
	if config.Logging.MaxSizeMB == 0 {
		config.Logging.MaxSizeMB = 100
	}
	if config.Logging.MaxBackups == 0 {
		config.Logging.MaxBackups = 3
	}
	if config.Logging.MaxAgeDays == 0 {
		config.Logging.MaxAgeDays = 28
	}

	// Telemetry
	if config.Telemetry.Exporter == "" {
		config.Telemetry.Exporter = "none"
	}
	if config.Telemetry.Interval == 0 {
		config.Telemetry.Interval = Duration(10 * time.Second)
	}
	if config.Telemetry.ServiceName == "" {
		config.Telemetry.ServiceName = "merchload"
	}

	// Options
	if config.Options.SetupTimeout == 0 {
		config.Options.SetupTimeout = Duration(60 * time.Second)
	}
	if config.Options.TeardownTimeout == 0 {
		config.Options.TeardownTimeout = Duration(60 * time.Second)
	}
	if config.Options.ProbeInterval == 0 {
		config.Options.ProbeInterval = Duration(time.Second)
	}
}

// applyScenarioDefaults applies default values to the scenario.
func applyScenarioDefaults(sc *ScenarioConfig) {
	if sc.Executor == "" {
		sc.Executor = ExecutorConstantArrivalRate
	}
	if sc.Rate == 0 {
		sc.Rate = 1000
	}
	if sc.TimeUnit == 0 {
		sc.TimeUnit = Duration(time.Second)
	}
	if sc.Duration == 0 {
		sc.Duration = Duration(5 * time.Minute)
	}
	if sc.MaxVUs == 0 {
		sc.MaxVUs = 1000
		if sc.PreAllocatedVUs > sc.MaxVUs {
			sc.MaxVUs = sc.PreAllocatedVUs
		}
	}
	if sc.PreAllocatedVUs == 0 {
		sc.PreAllocatedVUs = 100
		if sc.PreAllocatedVUs > sc.MaxVUs {
			sc.PreAllocatedVUs = sc.MaxVUs
		}
	}
	if sc.GracefulStop == 0 {
		sc.GracefulStop = Duration(30 * time.Second)
	}
}

// ApplyEnv overrides file values with MERCHLOAD_* environment variables.
// lookup is usually os.LookupEnv.
func ApplyEnv(config *TestConfig, lookup func(string) (string, bool)) error {
	if v, ok := lookup(EnvBaseURL); ok && v != "" {
		config.BaseURL = v
	}
	if v, ok := lookup(EnvRate); ok && v != "" {
		rate, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvRate, err)
		}
		config.Scenario.Rate = rate
	}
	if v, ok := lookup(EnvDuration); ok && v != "" {
		d, err := ParseDurationString(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvDuration, err)
		}
		config.Scenario.Duration = Duration(d)
	}
	return nil
}
