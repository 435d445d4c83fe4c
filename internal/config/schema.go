// Package config provides configuration parsing and validation for a
// merchload run.
package config

import (
	"encoding/json"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// TestConfig is the root configuration for a load test run. It is loaded
// once, defaulted and validated, then treated as immutable.
//
// Example YAML:
//
//	name: "shop load"
//	baseUrl: "http://localhost:8080"
//	scenario:
//	  executor: constant-arrival-rate
//	  rate: 1000
//	  timeUnit: 1s
//	  duration: 5m
//	  preAllocatedVUs: 100
//	  maxVUs: 1000
//	thresholds:
//	  http_req_duration: ["p(99.99) < 50"]
//	  errors: ["rate<0.0001"]
type TestConfig struct {
	// Name of the test (for reporting)
	Name string `json:"name,omitempty" yaml:"name,omitempty"`

	// Description of the test (optional)
	Description string `json:"description,omitempty" yaml:"description,omitempty"`

	// BaseURL is the shop API under test
	BaseURL string `json:"baseUrl,omitempty" yaml:"baseUrl,omitempty"`

	// Scenario defines the load profile
	Scenario ScenarioConfig `json:"scenario" yaml:"scenario"`

	// Thresholds map a series name to pass/fail expressions
	Thresholds map[string][]string `json:"thresholds,omitempty" yaml:"thresholds,omitempty"`

	// Shop configures the user journey
	Shop ShopConfig `json:"shop,omitempty" yaml:"shop,omitempty"`

	// HTTP configures the client
	HTTP HTTPConfig `json:"http,omitempty" yaml:"http,omitempty"`

	// Metrics configures aggregation
	Metrics MetricsConfig `json:"metrics,omitempty" yaml:"metrics,omitempty"`

	// Logging configures the run log
	Logging LoggingConfig `json:"logging,omitempty" yaml:"logging,omitempty"`

	// Telemetry configures metric export
	Telemetry TelemetryConfig `json:"telemetry,omitempty" yaml:"telemetry,omitempty"`

	// Options for test execution
	Options ExecutionOptions `json:"options,omitempty" yaml:"options,omitempty"`
}

// ScenarioConfig defines the load profile.
type ScenarioConfig struct {
	// Executor specifies the load generation strategy.
	// Only "constant-arrival-rate" is supported.
	Executor string `json:"executor,omitempty" yaml:"executor,omitempty"`

	// Rate is the number of iterations started per TimeUnit
	Rate float64 `json:"rate,omitempty" yaml:"rate,omitempty"`

	// TimeUnit is the period Rate refers to
	TimeUnit Duration `json:"timeUnit,omitempty" yaml:"timeUnit,omitempty"`

	// Duration is how long iterations are started for
	Duration Duration `json:"duration,omitempty" yaml:"duration,omitempty"`

	// PreAllocatedVUs are created before the first iteration
	PreAllocatedVUs int `json:"preAllocatedVUs,omitempty" yaml:"preAllocatedVUs,omitempty"`

	// MaxVUs caps the VU pool
	MaxVUs int `json:"maxVUs,omitempty" yaml:"maxVUs,omitempty"`

	// GracefulStop is how long to wait for iterations to finish
	GracefulStop Duration `json:"gracefulStop,omitempty" yaml:"gracefulStop,omitempty"`

	// IterationTimeout bounds one iteration (0 = unbounded)
	IterationTimeout Duration `json:"iterationTimeout,omitempty" yaml:"iterationTimeout,omitempty"`
}

// ShopConfig configures the shop user journey.
type ShopConfig struct {
	// Users is the size of the credential fixture
	Users int `json:"users,omitempty" yaml:"users,omitempty"`

	// UserPrefix names fixture users: prefix + index
	UserPrefix string `json:"userPrefix,omitempty" yaml:"userPrefix,omitempty"`

	// Password is shared by every fixture user
	Password string `json:"password,omitempty" yaml:"password,omitempty"`

	// SendCoinProbability is the chance an iteration transfers coins
	SendCoinProbability *float64 `json:"sendCoinProbability,omitempty" yaml:"sendCoinProbability,omitempty"`

	// BuyItemProbability is the chance an iteration buys an item
	BuyItemProbability *float64 `json:"buyItemProbability,omitempty" yaml:"buyItemProbability,omitempty"`

	// MaxTransfer bounds a transfer amount
	MaxTransfer int64 `json:"maxTransfer,omitempty" yaml:"maxTransfer,omitempty"`

	// MaxIdle bounds the pause that closes an iteration
	MaxIdle *Duration `json:"maxIdle,omitempty" yaml:"maxIdle,omitempty"`

	// Items restricts purchases to these catalog items
	Items []string `json:"items,omitempty" yaml:"items,omitempty"`

	// ValidateInfoSchema checks the balance response against its schema
	ValidateInfoSchema bool `json:"validateInfoSchema,omitempty" yaml:"validateInfoSchema,omitempty"`

	// SkipPreflight skips the reachability check during setup
	SkipPreflight bool `json:"skipPreflight,omitempty" yaml:"skipPreflight,omitempty"`

	// Seed derives per-VU random sources (0 = time-based)
	Seed int64 `json:"seed,omitempty" yaml:"seed,omitempty"`
}

// HTTPConfig configures the shop client.
type HTTPConfig struct {
	// RequestTimeout bounds every request
	RequestTimeout Duration `json:"requestTimeout,omitempty" yaml:"requestTimeout,omitempty"`

	// MaxIdleConns limits idle connections overall
	MaxIdleConns int `json:"maxIdleConns,omitempty" yaml:"maxIdleConns,omitempty"`

	// MaxIdleConnsPerHost limits idle connections per host
	MaxIdleConnsPerHost int `json:"maxIdleConnsPerHost,omitempty" yaml:"maxIdleConnsPerHost,omitempty"`

	// MaxConnsPerHost limits connections per host (0 = unlimited)
	MaxConnsPerHost int `json:"maxConnsPerHost,omitempty" yaml:"maxConnsPerHost,omitempty"`

	// IdleConnTimeout is how long idle connections are kept
	IdleConnTimeout Duration `json:"idleConnTimeout,omitempty" yaml:"idleConnTimeout,omitempty"`

	// DisableKeepAlives opens a new connection per request
	DisableKeepAlives bool `json:"disableKeepAlives,omitempty" yaml:"disableKeepAlives,omitempty"`

	// InsecureSkipVerify skips TLS certificate verification
	InsecureSkipVerify bool `json:"insecureSkipVerify,omitempty" yaml:"insecureSkipVerify,omitempty"`

	// UserAgent is sent with every request
	UserAgent string `json:"userAgent,omitempty" yaml:"userAgent,omitempty"`

	// Headers are added to every request
	Headers map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`
}

// MetricsConfig configures aggregation.
type MetricsConfig struct {
	// TrendMode is "hdr" (default) or "exact"
	TrendMode string `json:"trendMode,omitempty" yaml:"trendMode,omitempty"`

	// SignificantFigures is the HDR histogram precision (1-5)
	SignificantFigures int `json:"significantFigures,omitempty" yaml:"significantFigures,omitempty"`

	// BucketInterval is the time-series resolution
	BucketInterval Duration `json:"bucketInterval,omitempty" yaml:"bucketInterval,omitempty"`

	// MaxBuckets bounds the retained time series
	MaxBuckets int `json:"maxBuckets,omitempty" yaml:"maxBuckets,omitempty"`
}

// LoggingConfig configures the run log.
type LoggingConfig struct {
	// Level is debug, info, warn or error
	Level string `json:"level,omitempty" yaml:"level,omitempty"`

	// Format is "console" or "json"
	Format string `json:"format,omitempty" yaml:"format,omitempty"`

	// File, when set, receives the log instead of stderr
	File string `json:"file,omitempty" yaml:"file,omitempty"`

	// MaxSizeMB is the size at which the log file is rotated
	MaxSizeMB int `json:"maxSizeMB,omitempty" yaml:"maxSizeMB,omitempty"`

	// MaxBackups is the number of rotated files kept
	MaxBackups int `json:"maxBackups,omitempty" yaml:"maxBackups,omitempty"`

	// MaxAgeDays is how long rotated files are kept
	MaxAgeDays int `json:"maxAgeDays,omitempty" yaml:"maxAgeDays,omitempty"`

	// Compress gzips rotated files
	Compress bool `json:"compress,omitempty" yaml:"compress,omitempty"`
}

// TelemetryConfig configures OpenTelemetry metric export.
type TelemetryConfig struct {
	// Exporter is none, stdout, otlp-http or otlp-grpc
	Exporter string `json:"exporter,omitempty" yaml:"exporter,omitempty"`

	// Endpoint is the collector address for OTLP exporters
	Endpoint string `json:"endpoint,omitempty" yaml:"endpoint,omitempty"`

	// Insecure disables TLS for OTLP exporters
	Insecure bool `json:"insecure,omitempty" yaml:"insecure,omitempty"`

	// Interval is the export period
	Interval Duration `json:"interval,omitempty" yaml:"interval,omitempty"`

	// ServiceName labels exported metrics
	ServiceName string `json:"serviceName,omitempty" yaml:"serviceName,omitempty"`
}

// ExecutionOptions controls test execution behavior.
type ExecutionOptions struct {
	// SetupTimeout is the maximum time for setup
	SetupTimeout Duration `json:"setupTimeout,omitempty" yaml:"setupTimeout,omitempty"`

	// TeardownTimeout is the maximum time for teardown
	TeardownTimeout Duration `json:"teardownTimeout,omitempty" yaml:"teardownTimeout,omitempty"`

	// ThresholdCheckInterval enables live threshold evaluation (0 = off)
	ThresholdCheckInterval Duration `json:"thresholdCheckInterval,omitempty" yaml:"thresholdCheckInterval,omitempty"`

	// ProbeInterval is the load-generator CPU/memory sampling period
	ProbeInterval Duration `json:"probeInterval,omitempty" yaml:"probeInterval,omitempty"`

	// DisableProbe turns the load-generator probe off
	DisableProbe bool `json:"disableProbe,omitempty" yaml:"disableProbe,omitempty"`
}

// Duration is a time.Duration that can be unmarshaled from JSON/YAML
// strings such as "30s", or from bare integer seconds.
type Duration time.Duration

// GetDuration returns the duration or a default if zero.
func (d Duration) GetDuration(defaultValue time.Duration) time.Duration {
	if d == 0 {
		return defaultValue
	}
	return time.Duration(d)
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// String returns the duration as a string.
func (d Duration) String() string {
	return time.Duration(d).String()
}

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Duration) UnmarshalJSON(b []byte) error {
	s := string(b)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	if s == "null" {
		s = ""
	}
	dur, err := ParseDurationString(s)
	if err != nil {
		return err
	}
	*d = Duration(dur)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: duration must be a scalar", node.Line)
	}
	dur, err := ParseDurationString(node.Value)
	if err != nil {
		return err
	}
	*d = Duration(dur)
	return nil
}
