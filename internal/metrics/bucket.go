package metrics

import (
	"sync"
	"sync/atomic"
	"time"
)

// TimeBucket is one interval of the run's time series.
type TimeBucket struct {
	Timestamp time.Time `json:"timestamp"`
	Phase     string    `json:"phase"`

	TotalIterations int64 `json:"totalIterations"`
	TotalDropped    int64 `json:"totalDropped"`

	IntervalIterations int64   `json:"intervalIterations"`
	IntervalRate       float64 `json:"intervalRate"`
	IntervalErrorRate  float64 `json:"intervalErrorRate"`

	// HTTP latency percentiles at bucket time, in milliseconds.
	LatencyP50 float64 `json:"latencyP50"`
	LatencyP95 float64 `json:"latencyP95"`
	LatencyP99 float64 `json:"latencyP99"`

	ActiveVUs int `json:"activeVUs"`
}

// TimeBucketStore keeps the most recent buckets in a ring buffer.
//
// Interval accumulators are updated lock-free; CreateBucket swaps them
// out under the store lock.
type TimeBucketStore struct {
	buckets    []*TimeBucket
	head       int
	count      int
	maxBuckets int
	mu         sync.RWMutex

	lastBucketTime time.Time

	currentIterations atomic.Int64
	currentFailures   atomic.Int64
}

// NewTimeBucketStore creates a store holding at most maxBuckets buckets.
// For a one-hour run with one-second buckets use 3600.
func NewTimeBucketStore(maxBuckets int) *TimeBucketStore {
	if maxBuckets <= 0 {
		maxBuckets = 3600
	}
	return &TimeBucketStore{
		buckets:        make([]*TimeBucket, maxBuckets),
		maxBuckets:     maxBuckets,
		lastBucketTime: time.Now(),
	}
}

// RecordIteration adds a completed iteration to the current interval.
func (tbs *TimeBucketStore) RecordIteration(failed bool) {
	tbs.currentIterations.Add(1)
	if failed {
		tbs.currentFailures.Add(1)
	}
}

// BucketTotals are the cumulative values captured into a bucket.
type BucketTotals struct {
	Phase      string
	Iterations int64
	Dropped    int64
	ActiveVUs  int
	HTTP       TrendStats
}

// CreateBucket closes the current interval and appends it to the ring.
func (tbs *TimeBucketStore) CreateBucket(totals BucketTotals) *TimeBucket {
	tbs.mu.Lock()
	defer tbs.mu.Unlock()

	now := time.Now()
	iterations := tbs.currentIterations.Swap(0)
	failures := tbs.currentFailures.Swap(0)

	seconds := now.Sub(tbs.lastBucketTime).Seconds()
	if seconds <= 0 {
		seconds = 1
	}
	errorRate := 0.0
	if iterations > 0 {
		errorRate = float64(failures) / float64(iterations)
	}

	bucket := &TimeBucket{
		Timestamp:          now,
		Phase:              totals.Phase,
		TotalIterations:    totals.Iterations,
		TotalDropped:       totals.Dropped,
		IntervalIterations: iterations,
		IntervalRate:       float64(iterations) / seconds,
		IntervalErrorRate:  errorRate,
		LatencyP50:         totals.HTTP.Med,
		LatencyP95:         totals.HTTP.P95,
		LatencyP99:         totals.HTTP.P99,
		ActiveVUs:          totals.ActiveVUs,
	}

	tbs.buckets[tbs.head] = bucket
	tbs.head = (tbs.head + 1) % tbs.maxBuckets
	if tbs.count < tbs.maxBuckets {
		tbs.count++
	}
	tbs.lastBucketTime = now

	return bucket
}

// GetBuckets returns all retained buckets in chronological order.
func (tbs *TimeBucketStore) GetBuckets() []*TimeBucket {
	tbs.mu.RLock()
	defer tbs.mu.RUnlock()

	if tbs.count == 0 {
		return nil
	}
	result := make([]*TimeBucket, tbs.count)
	if tbs.count < tbs.maxBuckets {
		copy(result, tbs.buckets[:tbs.count])
		return result
	}
	for i := 0; i < tbs.count; i++ {
		result[i] = tbs.buckets[(tbs.head+i)%tbs.maxBuckets]
	}
	return result
}

// GetLatestBucket returns the most recent bucket, or nil.
func (tbs *TimeBucketStore) GetLatestBucket() *TimeBucket {
	tbs.mu.RLock()
	defer tbs.mu.RUnlock()

	if tbs.count == 0 {
		return nil
	}
	idx := tbs.head - 1
	if idx < 0 {
		idx = tbs.maxBuckets - 1
	}
	return tbs.buckets[idx]
}

// SteadyRate averages the interval iteration rate over buckets tagged with
// phase. It returns the rate and the number of buckets used.
func (tbs *TimeBucketStore) SteadyRate(phase string) (float64, int) {
	var sum float64
	var n int
	for _, b := range tbs.GetBuckets() {
		if b.Phase == phase {
			sum += b.IntervalRate
			n++
		}
	}
	if n == 0 {
		return 0, 0
	}
	return sum / float64(n), n
}
