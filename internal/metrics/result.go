package metrics

import "time"

// Built-in series names.
const (
	Iterations          = "iterations"
	IterationDuration   = "iteration_duration"
	IterationsFailed    = "iterations_failed"
	DroppedIterations   = "dropped_iterations"
	IterationsAbandoned = "iterations_abandoned"

	HTTPReqs        = "http_reqs"
	HTTPReqDuration = "http_req_duration"
	HTTPReqWaiting  = "http_req_waiting"
	HTTPReqFailed   = "http_req_failed"

	Checks = "checks"
	Errors = "errors"
)

type trendPoint struct {
	name  string
	value float64
}

type ratePoint struct {
	name string
	ok   bool
}

type counterPoint struct {
	name  string
	delta int64
}

// IterationResult collects the samples produced by a single iteration.
// It is owned by one goroutine until handed to Registry.Ingest and is not
// safe for concurrent use.
type IterationResult struct {
	trends   []trendPoint
	rates    []ratePoint
	counters []counterPoint
	checks   []ratePoint
	failed   bool
}

// NewIterationResult returns an empty result.
func NewIterationResult() *IterationResult {
	return &IterationResult{
		trends: make([]trendPoint, 0, 8),
		rates:  make([]ratePoint, 0, 8),
	}
}

// AddTrend records a raw trend value.
func (r *IterationResult) AddTrend(name string, v float64) {
	r.trends = append(r.trends, trendPoint{name: name, value: v})
}

// AddDuration records d in milliseconds on a trend.
func (r *IterationResult) AddDuration(name string, d time.Duration) {
	r.AddTrend(name, durationToMillis(d))
}

// AddRate records a boolean sample.
func (r *IterationResult) AddRate(name string, ok bool) {
	r.rates = append(r.rates, ratePoint{name: name, ok: ok})
}

// AddCounter increments a counter by delta.
func (r *IterationResult) AddCounter(name string, delta int64) {
	r.counters = append(r.counters, counterPoint{name: name, delta: delta})
}

// Check records a named assertion and returns ok unchanged so that checks
// can be chained.
func (r *IterationResult) Check(name string, ok bool) bool {
	r.checks = append(r.checks, ratePoint{name: name, ok: ok})
	return ok
}

// MarkFailed flags the iteration as failed.
func (r *IterationResult) MarkFailed() { r.failed = true }

// Failed reports whether the iteration was flagged as failed.
func (r *IterationResult) Failed() bool { return r.failed }

// TrendValues returns the values recorded for a trend, in order.
func (r *IterationResult) TrendValues(name string) []float64 {
	var out []float64
	for _, p := range r.trends {
		if p.name == name {
			out = append(out, p.value)
		}
	}
	return out
}

// RateValues returns the samples recorded for a rate, in order.
func (r *IterationResult) RateValues(name string) []bool {
	var out []bool
	for _, p := range r.rates {
		if p.name == name {
			out = append(out, p.ok)
		}
	}
	return out
}

// CheckResult returns the outcome of the named check and whether it ran.
// If the check ran more than once, all runs must have passed.
func (r *IterationResult) CheckResult(name string) (passed, ran bool) {
	passed = true
	for _, c := range r.checks {
		if c.name == name {
			ran = true
			passed = passed && c.ok
		}
	}
	return passed && ran, ran
}
