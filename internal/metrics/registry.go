// Package metrics aggregates the samples produced by iterations into named
// series and exposes point-in-time snapshots of them.
package metrics

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Sink receives every sample accepted by a Registry, in addition to the
// registry's own aggregation. Implementations must be safe for concurrent
// use.
type Sink interface {
	ObserveTrend(name string, value float64)
	ObserveRate(name string, ok bool)
	ObserveCounter(name string, delta int64)
}

// Config contains configuration for a Registry.
type Config struct {
	// TrendMode selects HDR or exact trend storage (default: hdr)
	TrendMode TrendMode

	// BucketInterval is the interval for time-series buckets (default: 1s)
	BucketInterval time.Duration

	// MaxBuckets is the maximum number of buckets to retain (default: 3600)
	MaxBuckets int

	// HistogramMin is the minimum recordable value in microseconds (default: 1)
	HistogramMin int64

	// HistogramMax is the maximum recordable value in microseconds (default: 1 hour)
	HistogramMax int64

	// HistogramSigFigs is the number of significant figures (default: 3)
	HistogramSigFigs int
}

// DefaultConfig returns the default registry configuration.
func DefaultConfig() Config {
	return Config{
		TrendMode:        TrendHDR,
		BucketInterval:   time.Second,
		MaxBuckets:       3600,
		HistogramMin:     1,
		HistogramMax:     3600000000,
		HistogramSigFigs: 3,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.TrendMode == "" {
		c.TrendMode = d.TrendMode
	}
	if c.BucketInterval <= 0 {
		c.BucketInterval = d.BucketInterval
	}
	if c.MaxBuckets <= 0 {
		c.MaxBuckets = d.MaxBuckets
	}
	if c.HistogramMin <= 0 {
		c.HistogramMin = d.HistogramMin
	}
	if c.HistogramMax <= c.HistogramMin {
		c.HistogramMax = d.HistogramMax
	}
	if c.HistogramSigFigs < 1 || c.HistogramSigFigs > 5 {
		c.HistogramSigFigs = d.HistogramSigFigs
	}
	return c
}

// Registry owns every series of a run.
//
// Series are created on first use. A name belongs to exactly one kind;
// asking for an existing name as a different kind is a programming error
// and panics.
//
// After Freeze the registry rejects new samples, so a snapshot taken after
// Freeze is final.
//
// # Thread Safety
//
// Registry is safe for concurrent use. Trend updates take a per-series
// lock, counters are atomic, and the background emitter runs in its own
// goroutine.
type Registry struct {
	config Config
	sink   Sink

	mu       sync.RWMutex
	kinds    map[string]Kind
	trends   map[string]*Trend
	rates    map[string]*Rate
	counters map[string]*Counter
	checks   map[string]*Rate

	bucketStore *TimeBucketStore
	activeVUs   atomic.Int32
	peakVUs     atomic.Int32
	phase       atomic.Value

	startTime time.Time
	frozen    atomic.Bool
	frozenAt  time.Time

	emitterCancel context.CancelFunc
	emitterWg     sync.WaitGroup
}

// NewRegistry creates a registry. sink may be nil.
func NewRegistry(config Config, sink Sink) *Registry {
	r := &Registry{
		config:      config.withDefaults(),
		sink:        sink,
		kinds:       make(map[string]Kind),
		trends:      make(map[string]*Trend),
		rates:       make(map[string]*Rate),
		counters:    make(map[string]*Counter),
		checks:      make(map[string]*Rate),
		bucketStore: NewTimeBucketStore(config.MaxBuckets),
		startTime:   time.Now(),
	}
	r.phase.Store("")
	return r
}

func (r *Registry) claim(name string, kind Kind) {
	if existing, ok := r.kinds[name]; ok && existing != kind {
		panic(fmt.Sprintf("metrics: series %q already registered as %s, not %s", name, existing, kind))
	}
	r.kinds[name] = kind
}

// Trend returns the named trend, creating it if needed.
func (r *Registry) Trend(name string) *Trend {
	r.mu.RLock()
	t, ok := r.trends[name]
	r.mu.RUnlock()
	if ok {
		return t
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.trends[name]; ok {
		return t
	}
	r.claim(name, KindTrend)
	t = newTrend(name, r.config)
	r.trends[name] = t
	return t
}

// Rate returns the named rate, creating it if needed.
func (r *Registry) Rate(name string) *Rate {
	r.mu.RLock()
	s, ok := r.rates[name]
	r.mu.RUnlock()
	if ok {
		return s
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.rates[name]; ok {
		return s
	}
	r.claim(name, KindRate)
	s = &Rate{name: name}
	r.rates[name] = s
	return s
}

// Counter returns the named counter, creating it if needed.
func (r *Registry) Counter(name string) *Counter {
	r.mu.RLock()
	c, ok := r.counters[name]
	r.mu.RUnlock()
	if ok {
		return c
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.counters[name]; ok {
		return c
	}
	r.claim(name, KindCounter)
	c = &Counter{name: name}
	r.counters[name] = c
	return c
}

func (r *Registry) check(name string) *Rate {
	r.mu.RLock()
	c, ok := r.checks[name]
	r.mu.RUnlock()
	if ok {
		return c
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.checks[name]; ok {
		return c
	}
	c = &Rate{name: name}
	r.checks[name] = c
	return c
}

// Declare registers series up front so that they appear in snapshots even
// when no sample is ever recorded.
func (r *Registry) Declare(kind Kind, names ...string) {
	for _, name := range names {
		switch kind {
		case KindTrend:
			r.Trend(name)
		case KindRate:
			r.Rate(name)
		case KindCounter:
			r.Counter(name)
		}
	}
}

// ObserveTrend records a trend value. It returns false once frozen.
func (r *Registry) ObserveTrend(name string, v float64) bool {
	if r.frozen.Load() {
		return false
	}
	r.Trend(name).Add(v)
	if r.sink != nil {
		r.sink.ObserveTrend(name, v)
	}
	return true
}

// ObserveRate records a boolean sample. It returns false once frozen.
func (r *Registry) ObserveRate(name string, ok bool) bool {
	if r.frozen.Load() {
		return false
	}
	r.Rate(name).Add(ok)
	if r.sink != nil {
		r.sink.ObserveRate(name, ok)
	}
	return true
}

// AddCounter increments a counter. It returns false once frozen.
func (r *Registry) AddCounter(name string, delta int64) bool {
	if r.frozen.Load() {
		return false
	}
	r.Counter(name).Add(delta)
	if r.sink != nil {
		r.sink.ObserveCounter(name, delta)
	}
	return true
}

// Ingest folds a finished iteration into the registry. Checks feed both
// their own series and the aggregate "checks" rate. It returns false if
// the registry is frozen, in which case nothing is recorded.
func (r *Registry) Ingest(res *IterationResult) bool {
	if res == nil || r.frozen.Load() {
		return false
	}
	for _, p := range res.trends {
		r.ObserveTrend(p.name, p.value)
	}
	for _, p := range res.rates {
		r.ObserveRate(p.name, p.ok)
	}
	for _, p := range res.counters {
		r.AddCounter(p.name, p.delta)
	}
	for _, c := range res.checks {
		r.check(c.name).Add(c.ok)
		r.ObserveRate(Checks, c.ok)
	}
	if res.failed {
		r.AddCounter(IterationsFailed, 1)
	}
	r.bucketStore.RecordIteration(res.failed)
	return true
}

// SetActiveVUs updates the active VU gauge and its peak.
func (r *Registry) SetActiveVUs(n int) {
	r.activeVUs.Store(int32(n))
	for {
		peak := r.peakVUs.Load()
		if int32(n) <= peak || r.peakVUs.CompareAndSwap(peak, int32(n)) {
			return
		}
	}
}

// ActiveVUs returns the active VU gauge.
func (r *Registry) ActiveVUs() int { return int(r.activeVUs.Load()) }

// SetPhase labels subsequent time buckets.
func (r *Registry) SetPhase(phase string) { r.phase.Store(phase) }

// Phase returns the current bucket label.
func (r *Registry) Phase() string { return r.phase.Load().(string) }

// Start resets the run clock and begins emitting time buckets every
// BucketInterval until Freeze is called or ctx is done.
func (r *Registry) Start(ctx context.Context) {
	r.mu.Lock()
	r.startTime = time.Now()
	r.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	r.emitterCancel = cancel
	r.emitterWg.Add(1)
	go r.runEmitter(ctx)
}

func (r *Registry) runEmitter(ctx context.Context) {
	defer r.emitterWg.Done()

	ticker := time.NewTicker(r.config.BucketInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.emitBucket()
		}
	}
}

func (r *Registry) emitBucket() *TimeBucket {
	var http TrendStats
	r.mu.RLock()
	t, ok := r.trends[HTTPReqDuration]
	r.mu.RUnlock()
	if ok {
		http = t.Stats()
	}
	return r.bucketStore.CreateBucket(BucketTotals{
		Phase:      r.Phase(),
		Iterations: r.counterValue(Iterations),
		Dropped:    r.counterValue(DroppedIterations),
		ActiveVUs:  r.ActiveVUs(),
		HTTP:       http,
	})
}

func (r *Registry) counterValue(name string) int64 {
	r.mu.RLock()
	c, ok := r.counters[name]
	r.mu.RUnlock()
	if !ok {
		return 0
	}
	return c.Value()
}

// TimeSeries returns the retained time buckets.
func (r *Registry) TimeSeries() []*TimeBucket {
	return r.bucketStore.GetBuckets()
}

// LatestBucket returns the most recent time bucket, or nil.
func (r *Registry) LatestBucket() *TimeBucket {
	return r.bucketStore.GetLatestBucket()
}

// Freeze stops accepting samples, stops the emitter and closes a final
// bucket. Calling Freeze more than once has no further effect.
func (r *Registry) Freeze() {
	if !r.frozen.CompareAndSwap(false, true) {
		return
	}
	if r.emitterCancel != nil {
		r.emitterCancel()
		r.emitterWg.Wait()
	}
	r.mu.Lock()
	r.frozenAt = time.Now()
	r.mu.Unlock()
	r.emitBucket()
}

// Frozen reports whether Freeze has been called.
func (r *Registry) Frozen() bool { return r.frozen.Load() }

// Snapshot returns a copy of every series. Percentile queries against the
// snapshot never touch the live series.
func (r *Registry) Snapshot() *Snapshot {
	r.mu.RLock()
	trends := make([]*Trend, 0, len(r.trends))
	for _, t := range r.trends {
		trends = append(trends, t)
	}
	rates := make([]*Rate, 0, len(r.rates))
	for _, s := range r.rates {
		rates = append(rates, s)
	}
	counters := make([]*Counter, 0, len(r.counters))
	for _, c := range r.counters {
		counters = append(counters, c)
	}
	checks := make([]*Rate, 0, len(r.checks))
	for _, c := range r.checks {
		checks = append(checks, c)
	}
	start, end := r.startTime, r.frozenAt
	r.mu.RUnlock()

	now := time.Now()
	if end.IsZero() {
		end = now
	}
	elapsed := end.Sub(start)

	snap := &Snapshot{
		Trends:    make(map[string]TrendStats, len(trends)),
		Rates:     make(map[string]RateStats, len(rates)),
		Counters:  make(map[string]CounterStats, len(counters)),
		ActiveVUs: r.ActiveVUs(),
		PeakVUs:   int(r.peakVUs.Load()),
		Phase:     r.Phase(),
		Elapsed:   elapsed,
		StartTime: start,
		Timestamp: now,
		Final:     r.frozen.Load(),
	}
	for _, t := range trends {
		snap.Trends[t.name] = t.Stats()
	}
	for _, s := range rates {
		snap.Rates[s.name] = s.Stats()
	}
	for _, c := range counters {
		stats := CounterStats{Count: c.Value()}
		if elapsed > 0 {
			stats.Rate = float64(stats.Count) / elapsed.Seconds()
		}
		snap.Counters[c.name] = stats
	}
	for _, c := range checks {
		s := c.Stats()
		snap.Checks = append(snap.Checks, CheckStats{Name: c.name, Passes: s.Passes, Fails: s.Fails})
	}
	sort.Slice(snap.Checks, func(i, j int) bool { return snap.Checks[i].Name < snap.Checks[j].Name })
	return snap
}

// CheckStats counts the outcomes of one named check.
type CheckStats struct {
	Name   string `json:"name"`
	Passes int64  `json:"passes"`
	Fails  int64  `json:"fails"`
}

// Snapshot is a point-in-time copy of a registry.
type Snapshot struct {
	Trends   map[string]TrendStats   `json:"trends"`
	Rates    map[string]RateStats    `json:"rates"`
	Counters map[string]CounterStats `json:"counters"`
	Checks   []CheckStats            `json:"checks"`

	ActiveVUs int           `json:"activeVUs"`
	PeakVUs   int           `json:"peakVUs"`
	Phase     string        `json:"phase"`
	Elapsed   time.Duration `json:"elapsed"`
	StartTime time.Time     `json:"startTime"`
	Timestamp time.Time     `json:"timestamp"`

	// Final is true when the snapshot was taken after Freeze.
	Final bool `json:"final"`
}

// Kind reports which kind of series name refers to in the snapshot.
func (s *Snapshot) Kind(name string) (Kind, bool) {
	if _, ok := s.Trends[name]; ok {
		return KindTrend, true
	}
	if _, ok := s.Rates[name]; ok {
		return KindRate, true
	}
	if _, ok := s.Counters[name]; ok {
		return KindCounter, true
	}
	return "", false
}

// Counter returns the count of a counter series, or 0 if absent.
func (s *Snapshot) Counter(name string) int64 {
	return s.Counters[name].Count
}
