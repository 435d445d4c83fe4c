package perf

import (
	"context"
	"errors"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/wesleyorama2/merchload/internal/config"
	"github.com/wesleyorama2/merchload/internal/engine"
	"github.com/wesleyorama2/merchload/internal/metrics"
	"github.com/wesleyorama2/merchload/internal/scenario/shop"
	"github.com/wesleyorama2/merchload/internal/shopapi"
	"github.com/wesleyorama2/merchload/internal/sysmon"
)

// Config is a run configuration as read from YAML or JSON.
type Config = config.TestConfig

// Duration is a config duration; it accepts Go duration strings or whole
// seconds.
type Duration = config.Duration

// Summary is the outcome of a run.
type Summary = engine.Summary

// Progress is a live view of a running test.
type Progress = engine.Progress

// Sink receives every sample as it is recorded.
type Sink = metrics.Sink

// ErrThresholdsFailed is returned by Summary.Err when a completed run
// breached at least one threshold.
var ErrThresholdsFailed = engine.ErrThresholdsFailed

// LoadConfig reads a config file, applies MERCHLOAD_* environment
// overrides and defaults, and validates the result.
func LoadConfig(path string) (*Config, error) {
	cfg, err := config.LoadConfig(path)
	if err != nil {
		return nil, err
	}
	if err := config.ApplyEnv(cfg, os.LookupEnv); err != nil {
		return nil, err
	}
	config.ApplyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Option configures a Runner.
type Option func(*Runner)

// WithLogger sets the logger. The default discards everything.
func WithLogger(logger *zap.Logger) Option {
	return func(r *Runner) { r.logger = logger }
}

// WithRunID tags logs and the summary with id instead of a random one.
func WithRunID(id string) Option {
	return func(r *Runner) { r.runID = id }
}

// WithSink forwards every sample to s, e.g. an OpenTelemetry exporter.
func WithSink(s Sink) Option {
	return func(r *Runner) { r.sink = s }
}

// WithProgress calls fn every interval while the load is running.
func WithProgress(fn func(Progress), interval time.Duration) Option {
	return func(r *Runner) {
		r.onProgress = fn
		r.progressInterval = interval
	}
}

// Runner runs the shop scenario once.
//
//	cfg, _ := perf.LoadConfig("load.yaml")
//	runner, _ := perf.NewRunner(cfg)
//	summary, _ := runner.Run(context.Background())
//	if err := summary.Err(); err != nil { ... }
type Runner struct {
	config *Config
	logger *zap.Logger
	runID  string
	sink   Sink

	onProgress       func(Progress)
	progressInterval time.Duration

	engine *engine.Engine
}

// NewRunner prepares a run. Defaults are applied to cfg and it is
// validated; the first invalid field aborts with a *config.ValidationErrors.
func NewRunner(cfg *Config, opts ...Option) (*Runner, error) {
	if cfg == nil {
		return nil, errors.New("config cannot be nil")
	}
	config.ApplyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	r := &Runner{config: cfg, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(r)
	}
	client := shopapi.NewClient(cfg.ClientOptions()...)
	scenario, err := shop.New(cfg.ShopConfig(), client, r.logger)
	if err != nil {
		return nil, err
	}

	var probe *sysmon.Options
	if !cfg.Options.DisableProbe {
		probe = &sysmon.Options{Interval: cfg.Options.ProbeInterval.Std()}
	}

	r.engine, err = engine.New(scenario, engine.Options{
		Name:                   cfg.Name,
		RunID:                  r.runID,
		Executor:               cfg.ExecutorConfig(),
		Thresholds:             cfg.Thresholds,
		Metrics:                cfg.MetricsConfig(),
		Sink:                   r.sink,
		SetupTimeout:           cfg.Options.SetupTimeout.Std(),
		TeardownTimeout:        cfg.Options.TeardownTimeout.Std(),
		ThresholdCheckInterval: cfg.Options.ThresholdCheckInterval.Std(),
		Probe:                  probe,
		OnProgress:             r.onProgress,
		ProgressInterval:       r.progressInterval,
		Logger:                 r.logger,
	})
	if err != nil {
		return nil, err
	}
	return r, nil
}

// Run executes the test. The summary is returned even when err is non-nil
// unless the run could not start. A threshold breach is not an error here;
// check Summary.Err.
func (r *Runner) Run(ctx context.Context) (*Summary, error) {
	return r.engine.Run(ctx)
}

// Progress returns a live view of the run.
func (r *Runner) Progress() Progress {
	return r.engine.Progress()
}

// Config returns the effective configuration.
func (r *Runner) Config() *Config {
	return r.config
}
