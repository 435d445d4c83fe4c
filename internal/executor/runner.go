package executor

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"go.uber.org/zap"

	"github.com/wesleyorama2/merchload/internal/metrics"
	"github.com/wesleyorama2/merchload/internal/vu"
)

// Runner executes single iterations of a scenario.
//
// Every iteration, including one that errors or panics, records its wall
// time on iteration_duration and increments the iterations counter. An
// error or panic marks the result as failed; a panic never escapes.
type Runner struct {
	scenario Scenario
	timeout  time.Duration
	logger   *zap.Logger
}

// NewRunner creates a runner. timeout bounds each iteration; zero leaves
// it unbounded.
func NewRunner(scenario Scenario, timeout time.Duration, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{scenario: scenario, timeout: timeout, logger: logger}
}

// Run executes one iteration on v, recording into res.
func (r *Runner) Run(ctx context.Context, v *vu.VirtualUser, res *metrics.IterationResult) (err error) {
	start := time.Now()
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("iteration panicked: %v", p)
			r.logger.Error("iteration panicked",
				zap.Int("vu", v.ID),
				zap.Any("panic", p),
				zap.ByteString("stack", debug.Stack()))
		}
		if err != nil {
			res.MarkFailed()
			r.logger.Debug("iteration failed", zap.Int("vu", v.ID), zap.Error(err))
		}
		res.AddDuration(metrics.IterationDuration, time.Since(start))
		res.AddCounter(metrics.Iterations, 1)
	}()

	return r.scenario.Iteration(ctx, v, res)
}
