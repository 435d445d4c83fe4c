package metrics

import "testing"

func TestTimeBucketStore_RingBuffer(t *testing.T) {
	store := NewTimeBucketStore(3)

	for i := int64(1); i <= 5; i++ {
		store.CreateBucket(BucketTotals{Iterations: i})
	}

	buckets := store.GetBuckets()
	if len(buckets) != 3 {
		t.Fatalf("len(GetBuckets()) = %d, want 3", len(buckets))
	}
	for i, want := range []int64{3, 4, 5} {
		if buckets[i].TotalIterations != want {
			t.Errorf("bucket[%d].TotalIterations = %d, want %d", i, buckets[i].TotalIterations, want)
		}
	}
	if latest := store.GetLatestBucket(); latest.TotalIterations != 5 {
		t.Errorf("GetLatestBucket().TotalIterations = %d, want 5", latest.TotalIterations)
	}
}

func TestTimeBucketStore_IntervalErrorRate(t *testing.T) {
	store := NewTimeBucketStore(10)
	store.RecordIteration(false)
	store.RecordIteration(false)
	store.RecordIteration(true)
	store.RecordIteration(false)

	b := store.CreateBucket(BucketTotals{Phase: "running"})
	if b.IntervalIterations != 4 {
		t.Errorf("IntervalIterations = %d, want 4", b.IntervalIterations)
	}
	if b.IntervalErrorRate != 0.25 {
		t.Errorf("IntervalErrorRate = %v, want 0.25", b.IntervalErrorRate)
	}

	// Accumulators reset after each bucket.
	b = store.CreateBucket(BucketTotals{Phase: "running"})
	if b.IntervalIterations != 0 {
		t.Errorf("IntervalIterations after reset = %d, want 0", b.IntervalIterations)
	}

	if _, n := store.SteadyRate("running"); n != 2 {
		t.Errorf("SteadyRate buckets = %d, want 2", n)
	}
	if _, n := store.SteadyRate("teardown"); n != 0 {
		t.Errorf("SteadyRate(teardown) buckets = %d, want 0", n)
	}
}

func TestTimeBucketStore_Empty(t *testing.T) {
	store := NewTimeBucketStore(0)
	if store.GetBuckets() != nil {
		t.Error("GetBuckets() on empty store should be nil")
	}
	if store.GetLatestBucket() != nil {
		t.Error("GetLatestBucket() on empty store should be nil")
	}
}
