// Package executor drives iterations according to a load model.
package executor

import (
	"context"
	"fmt"
	"time"

	"github.com/wesleyorama2/merchload/internal/metrics"
	"github.com/wesleyorama2/merchload/internal/vu"
)

// Type identifies the type of executor.
type Type string

const (
	// TypeConstantArrivalRate starts iterations at a fixed rate regardless
	// of how long each one takes.
	TypeConstantArrivalRate Type = "constant-arrival-rate"
)

// DefaultGracefulStop bounds how long in-flight iterations may run after
// the schedule ends.
const DefaultGracefulStop = 30 * time.Second

// Scenario is the work an executor runs on each VU.
type Scenario interface {
	// InitVU prepares a VU once, when the pool creates it.
	InitVU(v *vu.VirtualUser) error

	// Iteration runs one unit of work and records its samples in res.
	Iteration(ctx context.Context, v *vu.VirtualUser, res *metrics.IterationResult) error
}

// Executor is a load generation strategy.
type Executor interface {
	// Type returns the executor type.
	Type() Type

	// Run blocks until the schedule is exhausted or ctx is cancelled and
	// in-flight iterations have drained.
	Run(ctx context.Context) error

	// Progress returns the fraction of the schedule elapsed (0.0 to 1.0).
	Progress() float64

	// Stats returns executor statistics.
	Stats() Stats
}

// Config contains configuration for an executor.
type Config struct {
	// Type is the executor type
	Type Type `json:"type" yaml:"type"`

	// Rate is the number of iterations started per TimeUnit
	Rate float64 `json:"rate" yaml:"rate"`

	// TimeUnit is the period Rate refers to (default 1s)
	TimeUnit time.Duration `json:"timeUnit" yaml:"timeUnit"`

	// Duration is how long iterations are started for
	Duration time.Duration `json:"duration" yaml:"duration"`

	// PreAllocatedVUs are created before the first tick
	PreAllocatedVUs int `json:"preAllocatedVUs" yaml:"preAllocatedVUs"`

	// MaxVUs caps the pool
	MaxVUs int `json:"maxVUs" yaml:"maxVUs"`

	// GracefulStop bounds the drain after the schedule ends (default 30s)
	GracefulStop time.Duration `json:"gracefulStop" yaml:"gracefulStop"`

	// IterationTimeout bounds a single iteration (0 = unbounded)
	IterationTimeout time.Duration `json:"iterationTimeout,omitempty" yaml:"iterationTimeout,omitempty"`

	// Seed derives per-VU random sources (0 = time-based)
	Seed int64 `json:"seed,omitempty" yaml:"seed,omitempty"`
}

// Validate validates the executor configuration.
func (c *Config) Validate() error {
	if c.Type == "" {
		return &ValidationError{Field: "type", Message: "executor type is required"}
	}
	if c.Type != TypeConstantArrivalRate {
		return &ValidationError{Field: "type", Message: fmt.Sprintf("unsupported executor type: %s", c.Type)}
	}
	if c.Rate <= 0 {
		return &ValidationError{Field: "rate", Message: "rate must be > 0"}
	}
	if c.TimeUnit < 0 {
		return &ValidationError{Field: "timeUnit", Message: "timeUnit must be > 0"}
	}
	if c.Duration <= 0 {
		return &ValidationError{Field: "duration", Message: "duration must be > 0"}
	}
	if c.MaxVUs < 1 {
		return &ValidationError{Field: "maxVUs", Message: "maxVUs must be >= 1"}
	}
	if c.PreAllocatedVUs < 0 || c.PreAllocatedVUs > c.MaxVUs {
		return &ValidationError{Field: "preAllocatedVUs", Message: "preAllocatedVUs must be between 0 and maxVUs"}
	}
	if c.GracefulStop < 0 {
		return &ValidationError{Field: "gracefulStop", Message: "gracefulStop must be >= 0"}
	}
	if c.IterationTimeout < 0 {
		return &ValidationError{Field: "iterationTimeout", Message: "iterationTimeout must be >= 0"}
	}
	return nil
}

// Stats contains real-time executor statistics.
type Stats struct {
	// Timing
	StartTime     time.Time     `json:"startTime"`
	Elapsed       time.Duration `json:"elapsed"`
	TotalDuration time.Duration `json:"totalDuration"`

	// VU stats
	ActiveVUs  int `json:"activeVUs"`
	CreatedVUs int `json:"createdVUs"`
	PeakVUs    int `json:"peakVUs"`
	MaxVUs     int `json:"maxVUs"`

	// Iteration stats
	Scheduled  int64 `json:"scheduled"`
	Iterations int64 `json:"iterations"`
	Dropped    int64 `json:"dropped"`
	Abandoned  int64 `json:"abandoned"`
	InFlight   int64 `json:"inFlight"`

	// Rate info
	TargetRate float64 `json:"targetRate"`
	TimeUnit   string  `json:"timeUnit"`
}

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}
