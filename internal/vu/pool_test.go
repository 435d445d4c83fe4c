package vu

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestPoolConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  PoolConfig
		wantErr bool
	}{
		{"valid", PoolConfig{PreAllocated: 2, Max: 5}, false},
		{"equal bounds", PoolConfig{PreAllocated: 5, Max: 5}, false},
		{"zero preallocated", PoolConfig{PreAllocated: 0, Max: 1}, false},
		{"zero max", PoolConfig{PreAllocated: 0, Max: 0}, true},
		{"negative preallocated", PoolConfig{PreAllocated: -1, Max: 5}, true},
		{"preallocated above max", PoolConfig{PreAllocated: 6, Max: 5}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestNewPool_PreAllocates(t *testing.T) {
	var inits atomic.Int32
	p, err := NewPool(PoolConfig{
		PreAllocated: 3,
		Max:          10,
		Init: func(v *VirtualUser) error {
			inits.Add(1)
			v.Data = v.ID * 10
			return nil
		},
	})
	if err != nil {
		t.Fatalf("NewPool() error = %v", err)
	}

	if got := inits.Load(); got != 3 {
		t.Errorf("Init called %d times, want 3", got)
	}
	stats := p.Stats()
	if stats.Created != 3 || stats.Idle != 3 || stats.Busy != 0 {
		t.Errorf("Stats() = %+v, want 3 created and idle", stats)
	}
}

func TestPool_GrowsLazilyToMax(t *testing.T) {
	p, err := NewPool(PoolConfig{PreAllocated: 1, Max: 3})
	if err != nil {
		t.Fatalf("NewPool() error = %v", err)
	}

	var held []*VirtualUser
	for i := 0; i < 3; i++ {
		v, err := p.Acquire()
		if err != nil {
			t.Fatalf("Acquire() #%d error = %v", i, err)
		}
		held = append(held, v)
	}

	if _, err := p.Acquire(); !errors.Is(err, ErrPoolExhausted) {
		t.Fatalf("Acquire() past max error = %v, want ErrPoolExhausted", err)
	}

	ids := map[int]bool{}
	for _, v := range held {
		ids[v.ID] = true
		if v.State() != StateBusy {
			t.Errorf("VU %d state = %s, want busy", v.ID, v.State())
		}
	}
	if len(ids) != 3 {
		t.Errorf("got %d distinct VU IDs, want 3", len(ids))
	}

	p.Release(held[0])
	v, err := p.Acquire()
	if err != nil {
		t.Fatalf("Acquire() after Release error = %v", err)
	}
	if v != held[0] {
		t.Errorf("Acquire() returned VU %d, want reused VU %d", v.ID, held[0].ID)
	}
	if p.Stats().Created != 3 {
		t.Errorf("Created = %d, want 3", p.Stats().Created)
	}
}

func TestPool_InitErrorIsReturned(t *testing.T) {
	boom := errors.New("boom")
	p, err := NewPool(PoolConfig{
		Max: 2,
		Init: func(v *VirtualUser) error {
			if v.ID == 1 {
				return boom
			}
			return nil
		},
	})
	if err != nil {
		t.Fatalf("NewPool() error = %v", err)
	}

	if _, err := p.Acquire(); err != nil {
		t.Fatalf("first Acquire() error = %v", err)
	}
	if _, err := p.Acquire(); !errors.Is(err, boom) {
		t.Errorf("second Acquire() error = %v, want boom", err)
	}
}

func TestPool_NeverExceedsCapUnderOversubscription(t *testing.T) {
	const maxVUs = 5
	p, err := NewPool(PoolConfig{PreAllocated: 2, Max: maxVUs})
	if err != nil {
		t.Fatalf("NewPool() error = %v", err)
	}

	var (
		wg        sync.WaitGroup
		inUse     atomic.Int32
		maxInUse  atomic.Int32
		exhausted atomic.Int64
		holders   sync.Map
	)

	for g := 0; g < 50; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				v, err := p.Acquire()
				if errors.Is(err, ErrPoolExhausted) {
					exhausted.Add(1)
					continue
				}
				if err != nil {
					t.Errorf("Acquire() error = %v", err)
					return
				}

				if _, loaded := holders.LoadOrStore(v.ID, struct{}{}); loaded {
					t.Errorf("VU %d held by two iterations", v.ID)
				}
				n := inUse.Add(1)
				for {
					cur := maxInUse.Load()
					if n <= cur || maxInUse.CompareAndSwap(cur, n) {
						break
					}
				}
				time.Sleep(10 * time.Microsecond)
				inUse.Add(-1)
				holders.Delete(v.ID)
				p.Release(v)
			}
		}()
	}
	wg.Wait()

	if got := maxInUse.Load(); got > maxVUs {
		t.Errorf("max concurrent VUs = %d, want <= %d", got, maxVUs)
	}
	if exhausted.Load() == 0 {
		t.Error("expected some acquisitions to fail with ErrPoolExhausted")
	}
	stats := p.Stats()
	if stats.Created > maxVUs || stats.Peak > maxVUs {
		t.Errorf("Stats() = %+v exceeds cap %d", stats, maxVUs)
	}
	if stats.Busy != 0 {
		t.Errorf("Busy = %d after all releases, want 0", stats.Busy)
	}
}

func TestPool_DoubleReleaseIsNoop(t *testing.T) {
	p, err := NewPool(PoolConfig{PreAllocated: 1, Max: 1})
	if err != nil {
		t.Fatalf("NewPool() error = %v", err)
	}

	v, _ := p.Acquire()
	p.Release(v)
	p.Release(v)

	if stats := p.Stats(); stats.Idle != 1 || stats.Busy != 0 {
		t.Errorf("Stats() = %+v, want 1 idle 0 busy", stats)
	}
}

func TestPool_Close(t *testing.T) {
	p, err := NewPool(PoolConfig{PreAllocated: 2, Max: 2})
	if err != nil {
		t.Fatalf("NewPool() error = %v", err)
	}
	held, _ := p.Acquire()
	p.Close()

	if _, err := p.Acquire(); !errors.Is(err, ErrPoolClosed) {
		t.Errorf("Acquire() after Close error = %v, want ErrPoolClosed", err)
	}

	p.Release(held)
	if held.State() != StateStopped {
		t.Errorf("released VU state = %s, want stopped", held.State())
	}
}

func TestPool_DeterministicRandomness(t *testing.T) {
	draw := func() []int {
		p, err := NewPool(PoolConfig{PreAllocated: 3, Max: 3, Seed: 42})
		if err != nil {
			t.Fatalf("NewPool() error = %v", err)
		}
		var out []int
		for i := 0; i < 3; i++ {
			v, _ := p.Acquire()
			out = append(out, v.ID*1000+v.Rand().Intn(1000))
		}
		return out
	}

	first, second := draw(), draw()
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("draws differ with the same seed: %v vs %v", first, second)
		}
	}
}

func TestState_String(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateIdle, "idle"},
		{StateBusy, "busy"},
		{StateStopped, "stopped"},
		{State(99), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", tt.state, got, tt.want)
		}
	}
}
