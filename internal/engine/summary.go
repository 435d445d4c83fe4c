package engine

import (
	"time"

	"github.com/wesleyorama2/merchload/internal/executor"
	"github.com/wesleyorama2/merchload/internal/metrics"
	"github.com/wesleyorama2/merchload/internal/threshold"
)

// Summary is the outcome of a run.
type Summary struct {
	// Run metadata
	RunID     string        `json:"runId"`
	Name      string        `json:"name"`
	Scenario  string        `json:"scenario"`
	StartTime time.Time     `json:"startTime"`
	EndTime   time.Time     `json:"endTime"`
	Duration  time.Duration `json:"duration"`

	// Passed is true when setup succeeded and every threshold held.
	Passed bool `json:"passed"`

	// Aborted is true when the run was cancelled before its schedule ended.
	Aborted bool `json:"aborted"`

	SetupError    string `json:"setupError,omitempty"`
	ProbeWarnings int64  `json:"probeWarnings,omitempty"`

	Config     executor.Config       `json:"config"`
	Executor   executor.Stats        `json:"executor"`
	Metrics    *metrics.Snapshot     `json:"metrics"`
	Thresholds threshold.Report      `json:"thresholds"`
	TimeSeries []*metrics.TimeBucket `json:"timeSeries,omitempty"`
}

// Err returns ErrThresholdsFailed when a completed run breached a
// threshold, and nil otherwise.
func (s *Summary) Err() error {
	if s == nil || s.Passed || s.SetupError != "" {
		return nil
	}
	return ErrThresholdsFailed
}

// AchievedRate is the iterations started per second over the run.
func (s *Summary) AchievedRate() float64 {
	if s.Metrics == nil || s.Metrics.Elapsed <= 0 {
		return 0
	}
	return float64(s.Metrics.Counter(metrics.Iterations)) / s.Metrics.Elapsed.Seconds()
}

// Progress is a live view of a running engine.
type Progress struct {
	State      State         `json:"state"`
	Elapsed    time.Duration `json:"elapsed"`
	Progress   float64       `json:"progress"`
	Iterations int64         `json:"iterations"`
	Dropped    int64         `json:"dropped"`
	InFlight   int64         `json:"inFlight"`
	ActiveVUs  int           `json:"activeVUs"`
	CreatedVUs int           `json:"createdVUs"`
	MaxVUs     int           `json:"maxVUs"`
	TargetRate float64       `json:"targetRate"`

	// Latest time bucket, nil before the first one is emitted.
	Latest *metrics.TimeBucket `json:"latest,omitempty"`
}

// Progress returns a live view of the run.
func (e *Engine) Progress() Progress {
	stats := e.exec.Stats()
	e.mu.RLock()
	start := e.startTime
	e.mu.RUnlock()

	p := Progress{
		State:      e.State(),
		Progress:   e.exec.Progress(),
		Iterations: stats.Iterations,
		Dropped:    stats.Dropped,
		InFlight:   stats.InFlight,
		ActiveVUs:  stats.ActiveVUs,
		CreatedVUs: stats.CreatedVUs,
		MaxVUs:     stats.MaxVUs,
		TargetRate: perSecond(e.opts.Executor),
		Latest:     e.registry.LatestBucket(),
	}
	if !start.IsZero() {
		p.Elapsed = time.Since(start)
	}
	return p
}

func perSecond(cfg executor.Config) float64 {
	unit := cfg.TimeUnit
	if unit <= 0 {
		unit = time.Second
	}
	return cfg.Rate * float64(time.Second) / float64(unit)
}
