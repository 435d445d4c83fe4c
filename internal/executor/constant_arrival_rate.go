package executor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/wesleyorama2/merchload/internal/metrics"
	"github.com/wesleyorama2/merchload/internal/rate"
	"github.com/wesleyorama2/merchload/internal/vu"
)

// ConstantArrivalRate starts iterations at a fixed rate regardless of how
// long each one takes (open model).
//
// Each tick of the clock is handed to an idle VU. When none is idle the
// pool grows up to MaxVUs; beyond that the tick is dropped and counted on
// dropped_iterations. The dispatch loop never waits for a VU.
//
// Once the schedule ends, in-flight iterations get GracefulStop to finish.
// Any still running after that are abandoned: counted once on
// iterations_abandoned, recorded as failed, and their samples discarded.
type ConstantArrivalRate struct {
	config   Config
	scenario Scenario
	runner   *Runner
	registry *metrics.Registry
	logger   *zap.Logger

	mu        sync.RWMutex
	pool      *vu.Pool
	clock     *rate.Clock
	startTime time.Time

	flightsMu sync.Mutex
	flights   map[*flight]struct{}
	wg        sync.WaitGroup

	started    atomic.Bool
	iterations atomic.Int64
	dropped    atomic.Int64
	abandoned  atomic.Int64
	warnedDrop atomic.Bool
}

// flight is one in-flight iteration. Whoever settles it first, the
// iteration itself or the drain deadline, decides how it is counted.
type flight struct {
	vu      *vu.VirtualUser
	settled atomic.Bool
}

func (f *flight) settle() bool {
	return f.settled.CompareAndSwap(false, true)
}

// NewConstantArrivalRate creates a new constant-arrival-rate executor.
func NewConstantArrivalRate(config Config, scenario Scenario, registry *metrics.Registry, logger *zap.Logger) (*ConstantArrivalRate, error) {
	if config.Type == "" {
		config.Type = TypeConstantArrivalRate
	}
	if config.TimeUnit == 0 {
		config.TimeUnit = time.Second
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if scenario == nil {
		return nil, errors.New("executor: scenario is required")
	}
	if registry == nil {
		return nil, errors.New("executor: metrics registry is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &ConstantArrivalRate{
		config:   config,
		scenario: scenario,
		runner:   NewRunner(scenario, config.IterationTimeout, logger),
		registry: registry,
		logger:   logger,
		flights:  make(map[*flight]struct{}),
	}, nil
}

// Type returns the executor type.
func (e *ConstantArrivalRate) Type() Type {
	return TypeConstantArrivalRate
}

// Run creates the VU pool, dispatches ticks until the schedule is exhausted
// or ctx is cancelled, then drains in-flight iterations. It may be called
// once.
func (e *ConstantArrivalRate) Run(ctx context.Context) error {
	if !e.started.CompareAndSwap(false, true) {
		return errors.New("executor already started")
	}

	pool, err := vu.NewPool(vu.PoolConfig{
		PreAllocated: e.config.PreAllocatedVUs,
		Max:          e.config.MaxVUs,
		Seed:         e.config.Seed,
		Init:         e.scenario.InitVU,
	})
	if err != nil {
		return fmt.Errorf("create VU pool: %w", err)
	}
	clock, err := rate.NewClock(e.config.Rate, e.config.TimeUnit, e.config.Duration)
	if err != nil {
		pool.Close()
		return fmt.Errorf("create rate clock: %w", err)
	}

	e.mu.Lock()
	e.pool = pool
	e.clock = clock
	e.startTime = clock.Start()
	e.mu.Unlock()

	e.logger.Info("constant arrival rate started",
		zap.Float64("rate", e.config.Rate),
		zap.Duration("timeUnit", e.config.TimeUnit),
		zap.Duration("duration", e.config.Duration),
		zap.Int64("scheduled", clock.Total()),
		zap.Int("preAllocatedVUs", e.config.PreAllocatedVUs),
		zap.Int("maxVUs", e.config.MaxVUs))

	// Iterations outlive ctx until the drain deadline.
	iterCtx, cancelIterations := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelIterations()

	for {
		tick, ok := clock.Next(ctx)
		if !ok {
			break
		}
		e.dispatch(iterCtx, tick)
	}

	e.drain(cancelIterations)
	pool.Close()

	stats := e.Stats()
	e.logger.Info("constant arrival rate finished",
		zap.Int64("iterations", stats.Iterations),
		zap.Int64("dropped", stats.Dropped),
		zap.Int64("abandoned", stats.Abandoned),
		zap.Int("peakVUs", stats.PeakVUs))
	return nil
}

// dispatch hands tick to a VU or drops it.
func (e *ConstantArrivalRate) dispatch(ctx context.Context, tick rate.Tick) {
	v, err := e.pool.Acquire()
	if err != nil {
		e.clock.Drop()
		e.dropped.Add(1)
		e.registry.AddCounter(metrics.DroppedIterations, 1)
		switch {
		case !errors.Is(err, vu.ErrPoolExhausted):
			e.logger.Warn("failed to acquire VU", zap.Int64("tick", tick.Seq), zap.Error(err))
		case e.warnedDrop.CompareAndSwap(false, true):
			e.logger.Warn("insufficient VUs, dropping iterations; consider raising maxVUs",
				zap.Int("maxVUs", e.config.MaxVUs))
		}
		return
	}

	e.registry.SetActiveVUs(e.pool.Busy())

	f := &flight{vu: v}
	e.flightsMu.Lock()
	e.flights[f] = struct{}{}
	e.flightsMu.Unlock()

	e.wg.Add(1)
	go e.runIteration(ctx, f)
}

func (e *ConstantArrivalRate) runIteration(ctx context.Context, f *flight) {
	defer e.wg.Done()

	res := metrics.NewIterationResult()
	_ = e.runner.Run(ctx, f.vu, res)

	e.flightsMu.Lock()
	delete(e.flights, f)
	e.flightsMu.Unlock()

	e.pool.Release(f.vu)
	e.registry.SetActiveVUs(e.pool.Busy())

	if !f.settle() {
		return
	}
	e.iterations.Add(1)
	e.registry.Ingest(res)
}

// drain waits up to GracefulStop for in-flight iterations, then abandons
// the rest and cancels their context.
func (e *ConstantArrivalRate) drain(cancelIterations context.CancelFunc) {
	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	gracefulStop := e.config.GracefulStop
	if gracefulStop == 0 {
		gracefulStop = DefaultGracefulStop
	}
	timer := time.NewTimer(gracefulStop)
	defer timer.Stop()

	select {
	case <-done:
		return
	case <-timer.C:
	}

	n := e.abandonInFlight()
	cancelIterations()
	if n > 0 {
		e.logger.Warn("graceful stop elapsed, abandoning in-flight iterations",
			zap.Duration("gracefulStop", gracefulStop),
			zap.Int64("abandoned", n))
	}
}

// abandonInFlight settles every in-flight iteration as abandoned and
// returns how many it settled.
func (e *ConstantArrivalRate) abandonInFlight() int64 {
	e.flightsMu.Lock()
	defer e.flightsMu.Unlock()

	var n int64
	for f := range e.flights {
		if !f.settle() {
			continue
		}
		n++
		e.registry.ObserveRate(metrics.Errors, true)
	}
	if n > 0 {
		e.abandoned.Add(n)
		e.registry.AddCounter(metrics.IterationsAbandoned, n)
		e.registry.AddCounter(metrics.IterationsFailed, n)
	}
	return n
}

// Progress returns the fraction of the schedule elapsed (0.0 to 1.0).
func (e *ConstantArrivalRate) Progress() float64 {
	e.mu.RLock()
	clock := e.clock
	e.mu.RUnlock()
	if clock == nil {
		return 0
	}
	return clock.Progress()
}

// Stats returns executor statistics.
func (e *ConstantArrivalRate) Stats() Stats {
	e.mu.RLock()
	pool, clock, startTime := e.pool, e.clock, e.startTime
	e.mu.RUnlock()

	e.flightsMu.Lock()
	inFlight := int64(len(e.flights))
	e.flightsMu.Unlock()

	stats := Stats{
		StartTime:     startTime,
		TotalDuration: e.config.Duration,
		MaxVUs:        e.config.MaxVUs,
		Iterations:    e.iterations.Load(),
		Dropped:       e.dropped.Load(),
		Abandoned:     e.abandoned.Load(),
		InFlight:      inFlight,
		TargetRate:    e.config.Rate,
		TimeUnit:      e.config.TimeUnit.String(),
	}
	if !startTime.IsZero() {
		stats.Elapsed = time.Since(startTime)
	}
	if clock != nil {
		stats.Scheduled = clock.Total()
	}
	if pool != nil {
		ps := pool.Stats()
		stats.ActiveVUs = ps.Busy
		stats.CreatedVUs = ps.Created
		stats.PeakVUs = ps.Peak
	}
	return stats
}

var _ Executor = (*ConstantArrivalRate)(nil)
