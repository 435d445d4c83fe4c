package config

import (
	"io"

	"github.com/wesleyorama2/merchload/internal/executor"
	"github.com/wesleyorama2/merchload/internal/logging"
	"github.com/wesleyorama2/merchload/internal/metrics"
	"github.com/wesleyorama2/merchload/internal/scenario/shop"
	"github.com/wesleyorama2/merchload/internal/shopapi"
	"github.com/wesleyorama2/merchload/internal/telemetry"
)

// ExecutorConfig converts the scenario section for the executor.
func (c *TestConfig) ExecutorConfig() executor.Config {
	sc := c.Scenario
	return executor.Config{
		Type:             executor.Type(sc.Executor),
		Rate:             sc.Rate,
		TimeUnit:         sc.TimeUnit.Std(),
		Duration:         sc.Duration.Std(),
		PreAllocatedVUs:  sc.PreAllocatedVUs,
		MaxVUs:           sc.MaxVUs,
		GracefulStop:     sc.GracefulStop.Std(),
		IterationTimeout: sc.IterationTimeout.Std(),
		Seed:             c.Shop.Seed,
	}
}

// ShopConfig converts the shop section for the scenario.
func (c *TestConfig) ShopConfig() shop.Config {
	s := c.Shop
	cfg := shop.DefaultConfig()
	cfg.Users = s.Users
	cfg.UserPrefix = s.UserPrefix
	cfg.Password = s.Password
	cfg.MaxTransfer = s.MaxTransfer
	cfg.ValidateInfoSchema = s.ValidateInfoSchema
	cfg.Preflight = !s.SkipPreflight
	if s.SendCoinProbability != nil {
		cfg.SendCoinProbability = *s.SendCoinProbability
	}
	if s.BuyItemProbability != nil {
		cfg.BuyItemProbability = *s.BuyItemProbability
	}
	if s.MaxIdle != nil {
		cfg.MaxIdle = s.MaxIdle.Std()
	}
	if len(s.Items) > 0 {
		cfg.Items = append([]string(nil), s.Items...)
	}
	return cfg
}

// MetricsConfig converts the metrics section for the registry.
func (c *TestConfig) MetricsConfig() metrics.Config {
	cfg := metrics.DefaultConfig()
	cfg.TrendMode = metrics.TrendMode(c.Metrics.TrendMode)
	cfg.HistogramSigFigs = c.Metrics.SignificantFigures
	cfg.BucketInterval = c.Metrics.BucketInterval.Std()
	cfg.MaxBuckets = c.Metrics.MaxBuckets
	return cfg
}

// ClientOptions converts the HTTP section and base URL for the shop client.
func (c *TestConfig) ClientOptions() []shopapi.ClientOption {
	h := c.HTTP
	transport := shopapi.DefaultTransportConfig()
	if h.MaxIdleConns > 0 {
		transport.MaxIdleConns = h.MaxIdleConns
	}
	if h.MaxIdleConnsPerHost > 0 {
		transport.MaxIdleConnsPerHost = h.MaxIdleConnsPerHost
	}
	if h.IdleConnTimeout > 0 {
		transport.IdleConnTimeout = h.IdleConnTimeout.Std()
	}
	transport.MaxConnsPerHost = h.MaxConnsPerHost
	transport.DisableKeepAlives = h.DisableKeepAlives
	transport.InsecureSkipVerify = h.InsecureSkipVerify

	opts := []shopapi.ClientOption{
		shopapi.WithBaseURL(c.BaseURL),
		shopapi.WithTransport(transport),
		shopapi.WithTimeout(h.RequestTimeout.GetDuration(shopapi.DefaultTimeout)),
	}
	if h.UserAgent != "" {
		opts = append(opts, shopapi.WithHeader("User-Agent", h.UserAgent))
	}
	for k, v := range h.Headers {
		opts = append(opts, shopapi.WithHeader(k, v))
	}
	return opts
}

// LoggingOptions converts the logging section. Console output goes to out.
func (c *TestConfig) LoggingOptions(out io.Writer, runID string) logging.Options {
	l := c.Logging
	return logging.Options{
		Level:      l.Level,
		Format:     l.Format,
		File:       l.File,
		MaxSizeMB:  l.MaxSizeMB,
		MaxBackups: l.MaxBackups,
		MaxAgeDays: l.MaxAgeDays,
		Compress:   l.Compress,
		Output:     out,
		RunID:      runID,
	}
}

// TelemetryConfig converts the telemetry section.
func (c *TestConfig) TelemetryConfig(runID, version string) telemetry.Config {
	t := c.Telemetry
	return telemetry.Config{
		Exporter:       telemetry.ExporterType(t.Exporter),
		Endpoint:       t.Endpoint,
		Insecure:       t.Insecure,
		Interval:       t.Interval.Std(),
		ServiceName:    t.ServiceName,
		ServiceVersion: version,
		RunID:          runID,
	}
}
