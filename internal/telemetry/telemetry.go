// Package telemetry forwards registry samples to an OpenTelemetry meter.
package telemetry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.uber.org/zap"

	"github.com/wesleyorama2/merchload/internal/metrics"
)

// ExporterType selects where samples are exported.
type ExporterType string

const (
	ExporterNone     ExporterType = "none"
	ExporterStdout   ExporterType = "stdout"
	ExporterOTLPHTTP ExporterType = "otlp-http"
	ExporterOTLPGRPC ExporterType = "otlp-grpc"
)

// Config holds configuration for the exporter.
type Config struct {
	// Exporter selects the backend (default none)
	Exporter ExporterType

	// Endpoint is the collector address for OTLP exporters
	Endpoint string

	// Insecure disables TLS for OTLP exporters
	Insecure bool

	// Interval is the export period (default 10s)
	Interval time.Duration

	// ServiceName and ServiceVersion identify the load generator
	ServiceName    string
	ServiceVersion string

	// RunID is attached to every measurement
	RunID string

	// Reader overrides the exporter-backed periodic reader. Used by tests.
	Reader sdkmetric.Reader
}

// Exporter is a metrics.Sink backed by an OpenTelemetry meter provider.
//
// Trends become float64 histograms in milliseconds, rates become int64
// counters split by an "ok" attribute, counters stay counters. Every
// instrument is named "merchload.<series>" and created on first use.
type Exporter struct {
	config   Config
	provider *sdkmetric.MeterProvider
	meter    metric.Meter
	logger   *zap.Logger
	runAttr  metric.MeasurementOption
	okAttr   metric.MeasurementOption
	failAttr metric.MeasurementOption

	mu         sync.RWMutex
	histograms map[string]metric.Float64Histogram
	counters   map[string]metric.Int64Counter
}

// New creates an exporter. With ExporterNone and no Reader the meter
// provider has no reader and every measurement is dropped.
func New(ctx context.Context, cfg Config, logger *zap.Logger) (*Exporter, error) {
	if cfg.Exporter == "" {
		cfg.Exporter = ExporterNone
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = "merchload"
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	res, err := createResource(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics resource: %w", err)
	}

	opts := []sdkmetric.Option{sdkmetric.WithResource(res)}
	switch {
	case cfg.Reader != nil:
		opts = append(opts, sdkmetric.WithReader(cfg.Reader))
	case cfg.Exporter != ExporterNone:
		exporter, err := createExporter(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create metrics exporter: %w", err)
		}
		opts = append(opts, sdkmetric.WithReader(
			sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(cfg.Interval))))
	}

	provider := sdkmetric.NewMeterProvider(opts...)
	e := &Exporter{
		config:     cfg,
		provider:   provider,
		meter:      provider.Meter("github.com/wesleyorama2/merchload"),
		logger:     logger,
		runAttr:    metric.WithAttributes(attribute.String("run_id", cfg.RunID)),
		okAttr:     metric.WithAttributes(attribute.String("run_id", cfg.RunID), attribute.Bool("ok", true)),
		failAttr:   metric.WithAttributes(attribute.String("run_id", cfg.RunID), attribute.Bool("ok", false)),
		histograms: make(map[string]metric.Float64Histogram),
		counters:   make(map[string]metric.Int64Counter),
	}
	logger.Debug("telemetry exporter ready",
		zap.String("exporter", string(cfg.Exporter)),
		zap.String("endpoint", cfg.Endpoint))
	return e, nil
}

// createExporter creates the metrics exporter named by the configuration.
func createExporter(ctx context.Context, cfg Config) (sdkmetric.Exporter, error) {
	switch cfg.Exporter {
	case ExporterStdout:
		return stdoutmetric.New()

	case ExporterOTLPGRPC:
		opts := []otlpmetricgrpc.Option{}
		if cfg.Endpoint != "" {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(cfg.Endpoint))
		}
		if cfg.Insecure {
			opts = append(opts, otlpmetricgrpc.WithInsecure())
		}
		return otlpmetricgrpc.New(ctx, opts...)

	case ExporterOTLPHTTP:
		opts := []otlpmetrichttp.Option{}
		if cfg.Endpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(cfg.Endpoint))
		}
		if cfg.Insecure {
			opts = append(opts, otlpmetrichttp.WithInsecure())
		}
		return otlpmetrichttp.New(ctx, opts...)

	default:
		return nil, fmt.Errorf("unknown exporter type: %s", cfg.Exporter)
	}
}

func createResource(cfg Config) (*resource.Resource, error) {
	attrs := []attribute.KeyValue{semconv.ServiceName(cfg.ServiceName)}
	if cfg.ServiceVersion != "" {
		attrs = append(attrs, semconv.ServiceVersion(cfg.ServiceVersion))
	}
	return resource.Merge(resource.Default(), resource.NewWithAttributes("", attrs...))
}

// Enabled reports whether measurements leave the process.
func (e *Exporter) Enabled() bool {
	return e.config.Exporter != ExporterNone || e.config.Reader != nil
}

// ObserveTrend records a trend sample in milliseconds.
func (e *Exporter) ObserveTrend(name string, value float64) {
	if h := e.histogram(name); h != nil {
		h.Record(context.Background(), value, e.runAttr)
	}
}

// ObserveRate counts a rate sample under its outcome.
func (e *Exporter) ObserveRate(name string, ok bool) {
	c := e.counter(name)
	if c == nil {
		return
	}
	if ok {
		c.Add(context.Background(), 1, e.okAttr)
	} else {
		c.Add(context.Background(), 1, e.failAttr)
	}
}

// ObserveCounter adds delta to a counter.
func (e *Exporter) ObserveCounter(name string, delta int64) {
	if c := e.counter(name); c != nil && delta > 0 {
		c.Add(context.Background(), delta, e.runAttr)
	}
}

func (e *Exporter) histogram(name string) metric.Float64Histogram {
	e.mu.RLock()
	h, ok := e.histograms[name]
	e.mu.RUnlock()
	if ok {
		return h
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if h, ok := e.histograms[name]; ok {
		return h
	}
	h, err := e.meter.Float64Histogram(instrumentName(name), metric.WithUnit("ms"))
	if err != nil {
		e.logger.Warn("failed to create histogram", zap.String("series", name), zap.Error(err))
	}
	e.histograms[name] = h
	return h
}

func (e *Exporter) counter(name string) metric.Int64Counter {
	e.mu.RLock()
	c, ok := e.counters[name]
	e.mu.RUnlock()
	if ok {
		return c
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if c, ok := e.counters[name]; ok {
		return c
	}
	c, err := e.meter.Int64Counter(instrumentName(name))
	if err != nil {
		e.logger.Warn("failed to create counter", zap.String("series", name), zap.Error(err))
	}
	e.counters[name] = c
	return c
}

func instrumentName(series string) string {
	return "merchload." + series
}

// ForceFlush exports pending measurements.
func (e *Exporter) ForceFlush(ctx context.Context) error {
	return e.provider.ForceFlush(ctx)
}

// Shutdown flushes and stops the meter provider.
func (e *Exporter) Shutdown(ctx context.Context) error {
	return e.provider.Shutdown(ctx)
}

var _ metrics.Sink = (*Exporter)(nil)
