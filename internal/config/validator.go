package config

import (
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/wesleyorama2/merchload/internal/shopapi"
	"github.com/wesleyorama2/merchload/internal/threshold"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation error on field '%s': %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation error: %s", e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors struct {
	Errors []*ValidationError
}

func (e *ValidationErrors) Error() string {
	if len(e.Errors) == 0 {
		return "no validation errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e.Errors)))
	for i, err := range e.Errors {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// Add adds an error to the collection.
func (e *ValidationErrors) Add(field, message string) {
	e.Errors = append(e.Errors, &ValidationError{Field: field, Message: message})
}

// HasErrors returns true if there are any errors.
func (e *ValidationErrors) HasErrors() bool {
	return len(e.Errors) > 0
}

// Validate validates the entire test configuration. It expects defaults
// to have been applied.
//
// Returns nil if valid, or a *ValidationErrors containing all validation
// errors.
func (c *TestConfig) Validate() error {
	errs := &ValidationErrors{}

	validateBaseURL(c.BaseURL, errs)
	validateScenario(&c.Scenario, errs)
	validateThresholds(c.Thresholds, errs)
	validateShop(&c.Shop, errs)
	validateHTTP(&c.HTTP, errs)
	validateMetrics(&c.Metrics, errs)
	validateLogging(&c.Logging, errs)
	validateTelemetry(&c.Telemetry, errs)

	if c.Options.ThresholdCheckInterval < 0 {
		errs.Add("options.thresholdCheckInterval", "thresholdCheckInterval cannot be negative")
	}
	if c.Options.ProbeInterval < 0 {
		errs.Add("options.probeInterval", "probeInterval cannot be negative")
	}

	if errs.HasErrors() {
		return errs
	}
	return nil
}

func validateBaseURL(baseURL string, errs *ValidationErrors) {
	if baseURL == "" {
		errs.Add("baseUrl", "baseUrl is required")
		return
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		errs.Add("baseUrl", fmt.Sprintf("invalid URL: %v", err))
		return
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		errs.Add("baseUrl", "baseUrl must use http or https")
	}
	if u.Host == "" {
		errs.Add("baseUrl", "baseUrl must include a host")
	}
}

// validateScenario validates the constant-arrival-rate profile.
func validateScenario(sc *ScenarioConfig, errs *ValidationErrors) {
	const prefix = "scenario"

	if sc.Executor != ExecutorConstantArrivalRate {
		errs.Add(prefix+".executor", fmt.Sprintf("unsupported executor type: %s", sc.Executor))
	}
	if sc.Rate <= 0 {
		errs.Add(prefix+".rate", "rate must be greater than 0")
	}
	if sc.TimeUnit <= 0 {
		errs.Add(prefix+".timeUnit", "timeUnit must be greater than 0")
	}
	if sc.Duration <= 0 {
		errs.Add(prefix+".duration", "duration must be greater than 0")
	}
	if sc.MaxVUs < 1 {
		errs.Add(prefix+".maxVUs", "maxVUs must be at least 1")
	}
	if sc.PreAllocatedVUs < 0 {
		errs.Add(prefix+".preAllocatedVUs", "preAllocatedVUs cannot be negative")
	}
	if sc.MaxVUs > 0 && sc.PreAllocatedVUs > sc.MaxVUs {
		errs.Add(prefix+".preAllocatedVUs", "preAllocatedVUs cannot be greater than maxVUs")
	}
	if sc.GracefulStop < 0 {
		errs.Add(prefix+".gracefulStop", "gracefulStop cannot be negative")
	}
	if sc.IterationTimeout < 0 {
		errs.Add(prefix+".iterationTimeout", "iterationTimeout cannot be negative")
	}
}

// validateThresholds parses every expression so that a typo fails the
// run before any load is sent.
func validateThresholds(thresholds map[string][]string, errs *ValidationErrors) {
	series := make([]string, 0, len(thresholds))
	for name := range thresholds {
		series = append(series, name)
	}
	sort.Strings(series)

	for _, name := range series {
		if name == "" {
			errs.Add("thresholds", "series name cannot be empty")
			continue
		}
		for i, expr := range thresholds[name] {
			if _, err := threshold.Parse(name, expr); err != nil {
				errs.Add(fmt.Sprintf("thresholds.%s[%d]", name, i), err.Error())
			}
		}
	}
}

func validateShop(shop *ShopConfig, errs *ValidationErrors) {
	if shop.Users < 1 {
		errs.Add("shop.users", "users must be at least 1")
	}
	if shop.SendCoinProbability != nil && (*shop.SendCoinProbability < 0 || *shop.SendCoinProbability > 1) {
		errs.Add("shop.sendCoinProbability", "sendCoinProbability must be within [0, 1]")
	}
	if shop.BuyItemProbability != nil && (*shop.BuyItemProbability < 0 || *shop.BuyItemProbability > 1) {
		errs.Add("shop.buyItemProbability", "buyItemProbability must be within [0, 1]")
	}
	if shop.MaxTransfer < 1 {
		errs.Add("shop.maxTransfer", "maxTransfer must be at least 1")
	}
	if shop.MaxIdle != nil && *shop.MaxIdle < 0 {
		errs.Add("shop.maxIdle", "maxIdle cannot be negative")
	}
	for i, item := range shop.Items {
		if _, ok := shopapi.LookupItem(item); !ok {
			errs.Add(fmt.Sprintf("shop.items[%d]", i), fmt.Sprintf("unknown item: %s", item))
		}
	}
}

func validateHTTP(h *HTTPConfig, errs *ValidationErrors) {
	if h.RequestTimeout <= 0 {
		errs.Add("http.requestTimeout", "requestTimeout must be greater than 0")
	}
	if h.MaxIdleConns < 0 || h.MaxIdleConnsPerHost < 0 || h.MaxConnsPerHost < 0 {
		errs.Add("http", "connection limits cannot be negative")
	}
}

func validateMetrics(m *MetricsConfig, errs *ValidationErrors) {
	switch m.TrendMode {
	case "hdr", "exact":
	default:
		errs.Add("metrics.trendMode", fmt.Sprintf("invalid trend mode: %s (must be hdr or exact)", m.TrendMode))
	}
	if m.SignificantFigures < 1 || m.SignificantFigures > 5 {
		errs.Add("metrics.significantFigures", "significantFigures must be between 1 and 5")
	}
	if m.BucketInterval <= 0 {
		errs.Add("metrics.bucketInterval", "bucketInterval must be greater than 0")
	}
}

func validateLogging(l *LoggingConfig, errs *ValidationErrors) {
	switch strings.ToLower(l.Level) {
	case "debug", "info", "warn", "error":
	default:
		errs.Add("logging.level", fmt.Sprintf("invalid log level: %s", l.Level))
	}
	switch l.Format {
	case "console", "json":
	default:
		errs.Add("logging.format", fmt.Sprintf("invalid log format: %s (must be console or json)", l.Format))
	}
}

func validateTelemetry(t *TelemetryConfig, errs *ValidationErrors) {
	switch t.Exporter {
	case "none", "stdout":
	case "otlp-http", "otlp-grpc":
		if t.Endpoint == "" {
			errs.Add("telemetry.endpoint", "endpoint is required for OTLP exporters")
		}
	default:
		errs.Add("telemetry.exporter", fmt.Sprintf("invalid exporter: %s", t.Exporter))
	}
	if t.Interval <= 0 {
		errs.Add("telemetry.interval", "interval must be greater than 0")
	}
}
