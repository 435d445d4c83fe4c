// Package engine orchestrates a load test run: setup, constant-arrival-rate
// execution, teardown, threshold evaluation and the final summary.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/wesleyorama2/merchload/internal/executor"
	"github.com/wesleyorama2/merchload/internal/metrics"
	"github.com/wesleyorama2/merchload/internal/sysmon"
	"github.com/wesleyorama2/merchload/internal/threshold"
)

// ErrThresholdsFailed reports a run that completed but breached at least
// one threshold.
var ErrThresholdsFailed = errors.New("thresholds failed")

// Scenario is the workload an engine drives.
type Scenario interface {
	executor.Scenario

	// Name identifies the scenario in logs and the summary.
	Name() string

	// Setup runs once before any iteration and prepares shared,
	// read-only fixture data.
	Setup(ctx context.Context) error

	// Teardown runs once after the last iteration, even when setup failed.
	Teardown(ctx context.Context) error
}

// SeriesDeclarer is implemented by scenarios that know their series up
// front, so that the summary lists them even when they received no samples.
type SeriesDeclarer interface {
	DeclareSeries(r *metrics.Registry)
}

// Options configures an Engine.
type Options struct {
	// Name of the test (for reporting)
	Name string

	// RunID tags logs and the summary; generated when empty
	RunID string

	// Executor is the load profile
	Executor executor.Config

	// Thresholds map a series name to pass/fail expressions
	Thresholds map[string][]string

	// Metrics configures the registry
	Metrics metrics.Config

	// Sink receives every sample (may be nil)
	Sink metrics.Sink

	// SetupTimeout and TeardownTimeout bound the hooks (default 60s)
	SetupTimeout    time.Duration
	TeardownTimeout time.Duration

	// ThresholdCheckInterval enables live threshold evaluation (0 = off)
	ThresholdCheckInterval time.Duration

	// Probe enables the load-generator probe when non-nil
	Probe *sysmon.Options

	// OnProgress, when set, is called every ProgressInterval while running
	OnProgress       func(Progress)
	ProgressInterval time.Duration

	Logger *zap.Logger
}

// Engine runs one scenario once.
//
// Example usage:
//
//	eng, _ := engine.New(scenario, engine.Options{Executor: cfg, Thresholds: th})
//	summary, err := eng.Run(ctx)
//	if err == nil && !summary.Passed {
//		err = engine.ErrThresholdsFailed
//	}
type Engine struct {
	opts       Options
	scenario   Scenario
	thresholds []threshold.Threshold
	registry   *metrics.Registry
	exec       *executor.ConstantArrivalRate
	probe      *sysmon.Probe
	logger     *zap.Logger

	state   atomic.Int32
	started atomic.Bool

	mu        sync.RWMutex
	startTime time.Time
}

// New validates the options and parses the thresholds. Any error here is
// a configuration error; no load has been sent.
func New(scenario Scenario, opts Options) (*Engine, error) {
	if scenario == nil {
		return nil, errors.New("scenario is required")
	}
	if opts.RunID == "" {
		opts.RunID = uuid.NewString()
	}
	if opts.Name == "" {
		opts.Name = scenario.Name()
	}
	if opts.SetupTimeout <= 0 {
		opts.SetupTimeout = 60 * time.Second
	}
	if opts.TeardownTimeout <= 0 {
		opts.TeardownTimeout = 60 * time.Second
	}
	if opts.ProgressInterval <= 0 {
		opts.ProgressInterval = time.Second
	}
	if opts.Executor.Type == "" {
		opts.Executor.Type = executor.TypeConstantArrivalRate
	}

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("scenario", scenario.Name()))

	thresholds, err := threshold.ParseAll(opts.Thresholds)
	if err != nil {
		return nil, fmt.Errorf("invalid thresholds: %w", err)
	}

	registry := metrics.NewRegistry(opts.Metrics, opts.Sink)
	exec, err := executor.NewConstantArrivalRate(opts.Executor, scenario, registry, logger)
	if err != nil {
		return nil, fmt.Errorf("invalid executor configuration: %w", err)
	}

	e := &Engine{
		opts:       opts,
		scenario:   scenario,
		thresholds: thresholds,
		registry:   registry,
		exec:       exec,
		logger:     logger,
	}
	if opts.Probe != nil {
		e.probe = sysmon.NewProbe(*opts.Probe, registry, logger)
	}
	e.state.Store(int32(StateInit))
	return e, nil
}

// State returns the current lifecycle state.
func (e *Engine) State() State {
	return State(e.state.Load())
}

// Registry exposes the run's metrics.
func (e *Engine) Registry() *metrics.Registry {
	return e.registry
}

// Thresholds returns the parsed thresholds, ordered by series.
func (e *Engine) Thresholds() []threshold.Threshold {
	return e.thresholds
}

func (e *Engine) transition(to State) {
	from := State(e.state.Swap(int32(to)))
	e.registry.SetPhase(to.String())
	e.logger.Info("run state changed",
		zap.String("from", from.String()),
		zap.String("to", to.String()))
}

// Run executes the lifecycle once and returns the summary.
//
// The returned error is non-nil only for fatal conditions: a failed setup
// or an executor that could not start. Breached thresholds are reported
// through Summary.Passed. Cancelling ctx ends Running early; teardown and
// reporting still happen.
func (e *Engine) Run(ctx context.Context) (*Summary, error) {
	if !e.started.CompareAndSwap(false, true) {
		return nil, errors.New("engine already started")
	}

	start := time.Now()
	e.mu.Lock()
	e.startTime = start
	e.mu.Unlock()

	e.logger.Info("run starting",
		zap.String("runId", e.opts.RunID),
		zap.Float64("rate", e.opts.Executor.Rate),
		zap.Duration("duration", e.opts.Executor.Duration),
		zap.Int("maxVUs", e.opts.Executor.MaxVUs),
		zap.Int("thresholds", len(e.thresholds)))

	e.declareSeries()
	e.registry.Start(context.WithoutCancel(ctx))

	var runErr error
	setupErr := e.setup(ctx)
	if setupErr != nil {
		runErr = fmt.Errorf("setup failed: %w", setupErr)
		e.logger.Error("setup failed, skipping load", zap.Error(setupErr))
	} else {
		if err := e.running(ctx); err != nil {
			runErr = err
		}
	}

	e.teardown(ctx)
	summary := e.report(start, ctx.Err() != nil, setupErr)
	e.transition(StateDone)
	return summary, runErr
}

func (e *Engine) declareSeries() {
	e.registry.Declare(metrics.KindCounter,
		metrics.Iterations, metrics.IterationsFailed, metrics.DroppedIterations,
		metrics.IterationsAbandoned, metrics.HTTPReqs)
	e.registry.Declare(metrics.KindTrend,
		metrics.IterationDuration, metrics.HTTPReqDuration, metrics.HTTPReqWaiting)
	e.registry.Declare(metrics.KindRate, metrics.HTTPReqFailed, metrics.Checks, metrics.Errors)
	if d, ok := e.scenario.(SeriesDeclarer); ok {
		d.DeclareSeries(e.registry)
	}
}

func (e *Engine) setup(ctx context.Context) error {
	e.transition(StateSetup)
	if err := ctx.Err(); err != nil {
		return err
	}
	setupCtx, cancel := context.WithTimeout(ctx, e.opts.SetupTimeout)
	defer cancel()
	return e.scenario.Setup(setupCtx)
}

// running drives the executor and its companion workers until the
// executor has drained.
func (e *Engine) running(ctx context.Context) error {
	e.transition(StateRunning)

	auxCtx, stopAux := context.WithCancel(ctx)
	defer stopAux()
	g, gctx := errgroup.WithContext(auxCtx)

	g.Go(func() error {
		defer stopAux()
		if err := e.exec.Run(gctx); err != nil {
			return fmt.Errorf("executor failed: %w", err)
		}
		return nil
	})

	if e.probe != nil {
		g.Go(func() error { return e.probe.Run(gctx) })
	}
	if e.opts.ThresholdCheckInterval > 0 && len(e.thresholds) > 0 {
		g.Go(func() error { return e.watchThresholds(gctx) })
	}
	if e.opts.OnProgress != nil {
		g.Go(func() error { return e.reportProgress(gctx) })
	}

	return g.Wait()
}

func (e *Engine) teardown(ctx context.Context) {
	e.transition(StateTeardown)
	teardownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.opts.TeardownTimeout)
	defer cancel()
	if err := e.scenario.Teardown(teardownCtx); err != nil {
		e.logger.Warn("teardown failed", zap.Error(err))
	}
}

// report freezes the metrics and evaluates thresholds against them.
func (e *Engine) report(start time.Time, aborted bool, setupErr error) *Summary {
	e.transition(StateReported)
	e.registry.Freeze()
	snap := e.registry.Snapshot()
	report := threshold.Evaluate(snap, e.thresholds)

	end := time.Now()
	summary := &Summary{
		RunID:      e.opts.RunID,
		Name:       e.opts.Name,
		Scenario:   e.scenario.Name(),
		StartTime:  start,
		EndTime:    end,
		Duration:   end.Sub(start),
		Passed:     report.Passed && setupErr == nil,
		Aborted:    aborted,
		Executor:   e.exec.Stats(),
		Config:     e.opts.Executor,
		Metrics:    snap,
		Thresholds: report,
		TimeSeries: e.registry.TimeSeries(),
	}
	if setupErr != nil {
		summary.SetupError = setupErr.Error()
	}
	if e.probe != nil {
		summary.ProbeWarnings = e.probe.Warnings()
	}

	fields := []zap.Field{
		zap.Bool("passed", summary.Passed),
		zap.Bool("aborted", aborted),
		zap.Int64("iterations", snap.Counter(metrics.Iterations)),
		zap.Int64("dropped", snap.Counter(metrics.DroppedIterations)),
		zap.Int64("abandoned", snap.Counter(metrics.IterationsAbandoned)),
		zap.Duration("duration", summary.Duration),
	}
	for _, r := range report.Failed() {
		e.logger.Warn("threshold failed",
			zap.String("series", r.Series),
			zap.String("expression", r.Expression),
			zap.Float64("actual", r.Actual),
			zap.String("message", r.Message))
	}
	e.logger.Info("run finished", fields...)
	return summary
}

// watchThresholds evaluates thresholds periodically and logs each one the
// first time it starts failing. It never aborts the run.
func (e *Engine) watchThresholds(ctx context.Context) error {
	ticker := time.NewTicker(e.opts.ThresholdCheckInterval)
	defer ticker.Stop()

	failing := make(map[string]bool)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		report := threshold.Evaluate(e.registry.Snapshot(), e.thresholds)
		for _, r := range report.Results {
			key := r.Series + ": " + r.Expression
			switch {
			case !r.Passed && !failing[key]:
				failing[key] = true
				e.logger.Warn("threshold currently failing",
					zap.String("series", r.Series),
					zap.String("expression", r.Expression),
					zap.Float64("actual", r.Actual))
			case r.Passed && failing[key]:
				delete(failing, key)
				e.logger.Info("threshold recovered",
					zap.String("series", r.Series),
					zap.String("expression", r.Expression),
					zap.Float64("actual", r.Actual))
			}
		}
	}
}

func (e *Engine) reportProgress(ctx context.Context) error {
	ticker := time.NewTicker(e.opts.ProgressInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			e.opts.OnProgress(e.Progress())
		}
	}
}
