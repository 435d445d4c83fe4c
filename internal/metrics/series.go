package metrics

import (
	"sync"
	"sync/atomic"
)

// Kind identifies the aggregation type of a series.
type Kind string

const (
	KindTrend   Kind = "trend"
	KindRate    Kind = "rate"
	KindCounter Kind = "counter"
)

// Rate is a boolean series reporting the fraction of true samples.
//
// Both counts are updated under one lock so that a concurrent reader never
// observes a true sample without its matching total.
type Rate struct {
	name string

	mu    sync.Mutex
	trues int64
	total int64
}

// Name returns the series name.
func (r *Rate) Name() string { return r.name }

// Add records a single sample.
func (r *Rate) Add(ok bool) {
	r.mu.Lock()
	if ok {
		r.trues++
	}
	r.total++
	r.mu.Unlock()
}

// Stats returns the current counts.
func (r *Rate) Stats() RateStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := RateStats{Passes: r.trues, Fails: r.total - r.trues, Total: r.total}
	if r.total > 0 {
		s.Rate = float64(r.trues) / float64(r.total)
	}
	return s
}

// RateStats is a frozen view of a Rate. Passes counts true samples.
type RateStats struct {
	Rate   float64 `json:"rate"`
	Passes int64   `json:"passes"`
	Fails  int64   `json:"fails"`
	Total  int64   `json:"total"`
}

// Counter is a monotonically increasing series.
type Counter struct {
	name  string
	value atomic.Int64
}

// Name returns the series name.
func (c *Counter) Name() string { return c.name }

// Add increments the counter. Negative deltas are ignored.
func (c *Counter) Add(n int64) {
	if n > 0 {
		c.value.Add(n)
	}
}

// Value returns the current count.
func (c *Counter) Value() int64 { return c.value.Load() }

// CounterStats is a frozen view of a Counter. Rate is per second of
// elapsed run time.
type CounterStats struct {
	Count int64   `json:"count"`
	Rate  float64 `json:"rate"`
}
