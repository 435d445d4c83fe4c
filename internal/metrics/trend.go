package metrics

import (
	"math"
	"sort"
	"sync"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
)

// TrendMode selects how a Trend stores its samples.
type TrendMode string

const (
	// TrendHDR stores samples in an HDR histogram: constant memory,
	// percentiles accurate to the configured significant figures.
	TrendHDR TrendMode = "hdr"

	// TrendExact keeps every sample. Memory grows with the run.
	TrendExact TrendMode = "exact"
)

// valueScale converts trend values (milliseconds for durations) into the
// integer units stored in the histogram, keeping microsecond resolution.
const valueScale = 1000

// sketch is the quantile store behind a Trend.
type sketch interface {
	record(v float64)
	quantile(p float64) float64
	clone() sketch
}

type hdrSketch struct {
	hist     *hdrhistogram.Histogram
	min, max int64
}

func newHDRSketch(cfg Config) *hdrSketch {
	return &hdrSketch{
		hist: hdrhistogram.New(cfg.HistogramMin, cfg.HistogramMax, cfg.HistogramSigFigs),
		min:  cfg.HistogramMin,
		max:  cfg.HistogramMax,
	}
}

func (s *hdrSketch) record(v float64) {
	scaled := int64(math.Round(v * valueScale))
	if scaled < s.min {
		scaled = s.min
	}
	if scaled > s.max {
		scaled = s.max
	}
	_ = s.hist.RecordValue(scaled)
}

func (s *hdrSketch) quantile(p float64) float64 {
	if s.hist.TotalCount() == 0 {
		return 0
	}
	return float64(s.hist.ValueAtQuantile(p)) / valueScale
}

func (s *hdrSketch) clone() sketch {
	c := &hdrSketch{
		hist: hdrhistogram.New(s.hist.LowestTrackableValue(), s.hist.HighestTrackableValue(), int(s.hist.SignificantFigures())),
		min:  s.min,
		max:  s.max,
	}
	c.hist.Merge(s.hist)
	return c
}

type exactSketch struct {
	values []float64
	sorted bool
}

func (s *exactSketch) record(v float64) {
	s.values = append(s.values, v)
	s.sorted = false
}

// quantile uses the nearest-rank method.
func (s *exactSketch) quantile(p float64) float64 {
	n := len(s.values)
	if n == 0 {
		return 0
	}
	if !s.sorted {
		sort.Float64s(s.values)
		s.sorted = true
	}
	rank := int(math.Ceil(p / 100 * float64(n)))
	if rank < 1 {
		rank = 1
	}
	if rank > n {
		rank = n
	}
	return s.values[rank-1]
}

func (s *exactSketch) clone() sketch {
	values := make([]float64, len(s.values))
	copy(values, s.values)
	sort.Float64s(values)
	return &exactSketch{values: values, sorted: true}
}

// Trend is a distribution series. Durations are recorded in milliseconds.
type Trend struct {
	name string

	mu     sync.Mutex
	sketch sketch
	count  int64
	sum    float64
	min    float64
	max    float64
}

func newTrend(name string, cfg Config) *Trend {
	t := &Trend{name: name}
	if cfg.TrendMode == TrendExact {
		t.sketch = &exactSketch{}
	} else {
		t.sketch = newHDRSketch(cfg)
	}
	return t
}

// Name returns the series name.
func (t *Trend) Name() string { return t.name }

// Add records a raw value.
func (t *Trend) Add(v float64) {
	if math.IsNaN(v) {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	t.sketch.record(v)
	if t.count == 0 || v < t.min {
		t.min = v
	}
	if t.count == 0 || v > t.max {
		t.max = v
	}
	t.count++
	t.sum += v
}

// AddDuration records d in milliseconds.
func (t *Trend) AddDuration(d time.Duration) {
	t.Add(durationToMillis(d))
}

// Stats returns an independent copy of the trend's aggregates. The copy
// can answer arbitrary percentile queries without touching the live series.
func (t *Trend) Stats() TrendStats {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := TrendStats{
		Count:  t.count,
		Min:    t.min,
		Max:    t.max,
		sketch: t.sketch.clone(),
	}
	if t.count > 0 {
		s.Avg = t.sum / float64(t.count)
	}
	s.Med = s.Percentile(50)
	s.P90 = s.Percentile(90)
	s.P95 = s.Percentile(95)
	s.P99 = s.Percentile(99)
	return s
}

// TrendStats is a frozen view of a Trend.
type TrendStats struct {
	Count int64   `json:"count"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Avg   float64 `json:"avg"`
	Med   float64 `json:"med"`
	P90   float64 `json:"p90"`
	P95   float64 `json:"p95"`
	P99   float64 `json:"p99"`

	sketch sketch
}

// Percentile returns the p-th percentile (0-100). An empty trend yields 0.
func (s TrendStats) Percentile(p float64) float64 {
	if s.sketch == nil || s.Count == 0 {
		return 0
	}
	if p <= 0 {
		return s.Min
	}
	if p >= 100 {
		return s.Max
	}
	return s.sketch.quantile(p)
}

func durationToMillis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
