// Package rate provides the arrival-rate clock used to pace iteration starts.
package rate

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"
)

// ErrInvalidRate is returned when a clock is configured with a non-positive
// rate, time unit or duration.
var ErrInvalidRate = errors.New("invalid arrival rate")

// Tick is a single scheduled iteration start.
type Tick struct {
	// Seq is the zero-based position of the tick in the schedule.
	Seq int64

	// Scheduled is the absolute time the tick was due.
	Scheduled time.Time
}

// Clock emits ticks at a fixed rate for a bounded duration.
//
// Tick i is due at start + i*(timeUnit/rate). Deadlines are computed from
// the start time rather than from the previous tick, so a slow consumer
// never causes the schedule to drift: late ticks are emitted immediately
// and the clock catches up.
//
// Over a run of duration D at rate R per unit U the clock emits exactly
// ceil(R*D/U) ticks, then reports exhaustion. A clock is single-use.
//
// # Thread Safety
//
// Next may be called from multiple goroutines; each tick is delivered to
// exactly one caller. Drop and Stats are lock-free.
type Clock struct {
	rate     float64
	timeUnit time.Duration
	duration time.Duration
	total    int64

	mu        sync.Mutex
	start     time.Time
	started   bool
	next      int64
	exhausted bool

	emitted atomic.Int64
	dropped atomic.Int64
}

// Stats is a point-in-time view of a clock.
type Stats struct {
	Rate      float64       `json:"rate"`
	TimeUnit  time.Duration `json:"timeUnit"`
	Duration  time.Duration `json:"duration"`
	Scheduled int64         `json:"scheduled"`
	Emitted   int64         `json:"emitted"`
	Dropped   int64         `json:"dropped"`
	Elapsed   time.Duration `json:"elapsed"`
	Exhausted bool          `json:"exhausted"`
}

// NewClock creates a clock that emits rate ticks per timeUnit for duration.
// The schedule starts on the first call to Start or Next.
func NewClock(rate float64, timeUnit, duration time.Duration) (*Clock, error) {
	if rate <= 0 || math.IsNaN(rate) || math.IsInf(rate, 0) {
		return nil, fmt.Errorf("%w: rate must be positive, got %v", ErrInvalidRate, rate)
	}
	if timeUnit <= 0 {
		return nil, fmt.Errorf("%w: time unit must be positive, got %v", ErrInvalidRate, timeUnit)
	}
	if duration <= 0 {
		return nil, fmt.Errorf("%w: duration must be positive, got %v", ErrInvalidRate, duration)
	}

	// Small epsilon so that float error on exact products (10/s * 1s) does
	// not add a phantom tick.
	expected := rate * float64(duration) / float64(timeUnit)
	total := int64(math.Ceil(expected - 1e-9))
	if total < 1 {
		total = 1
	}

	return &Clock{
		rate:     rate,
		timeUnit: timeUnit,
		duration: duration,
		total:    total,
	}, nil
}

// Start anchors the schedule at the current time. Calling Start more than
// once, or after Next, has no effect.
func (c *Clock) Start() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.startLocked()
	return c.start
}

func (c *Clock) startLocked() {
	if !c.started {
		c.start = time.Now()
		c.started = true
	}
}

// Interval returns the nominal time between two ticks.
func (c *Clock) Interval() time.Duration {
	return time.Duration(float64(c.timeUnit) / c.rate)
}

// Total returns the number of ticks in the full schedule.
func (c *Clock) Total() int64 {
	return c.total
}

// offset returns the due offset of tick seq from the start time.
func (c *Clock) offset(seq int64) time.Duration {
	return time.Duration(float64(seq) * float64(c.timeUnit) / c.rate)
}

// Next blocks until the next tick is due and returns it. It returns false
// once the schedule is exhausted or ctx is cancelled; after that every call
// returns false.
func (c *Clock) Next(ctx context.Context) (Tick, bool) {
	c.mu.Lock()
	c.startLocked()
	if c.exhausted || c.next >= c.total {
		c.exhausted = true
		c.mu.Unlock()
		return Tick{}, false
	}
	seq := c.next
	c.next++
	due := c.start.Add(c.offset(seq))
	c.mu.Unlock()

	if wait := time.Until(due); wait > 0 {
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			c.Stop()
			return Tick{}, false
		case <-timer.C:
		}
	} else if ctx.Err() != nil {
		c.Stop()
		return Tick{}, false
	}

	c.emitted.Add(1)
	return Tick{Seq: seq, Scheduled: due}, true
}

// Stop exhausts the clock. Pending and future calls to Next return false.
func (c *Clock) Stop() {
	c.mu.Lock()
	c.exhausted = true
	c.mu.Unlock()
}

// Drop records that an emitted tick could not be served.
func (c *Clock) Drop() {
	c.dropped.Add(1)
}

// Dropped returns the number of ticks recorded as dropped.
func (c *Clock) Dropped() int64 {
	return c.dropped.Load()
}

// Progress returns the fraction of the schedule's wall time that has
// elapsed, clamped to [0, 1].
func (c *Clock) Progress() float64 {
	c.mu.Lock()
	started, start := c.started, c.start
	c.mu.Unlock()
	if !started {
		return 0
	}
	p := float64(time.Since(start)) / float64(c.duration)
	if p > 1 {
		return 1
	}
	return p
}

// Stats returns the clock's counters.
func (c *Clock) Stats() Stats {
	c.mu.Lock()
	started, start, exhausted := c.started, c.start, c.exhausted
	c.mu.Unlock()

	var elapsed time.Duration
	if started {
		elapsed = time.Since(start)
	}
	return Stats{
		Rate:      c.rate,
		TimeUnit:  c.timeUnit,
		Duration:  c.duration,
		Scheduled: c.total,
		Emitted:   c.emitted.Load(),
		Dropped:   c.dropped.Load(),
		Elapsed:   elapsed,
		Exhausted: exhausted,
	}
}
