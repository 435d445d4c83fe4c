package vu

import (
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"
)

var (
	// ErrPoolExhausted is returned by Acquire when every VU is busy and
	// the pool is at its maximum size.
	ErrPoolExhausted = errors.New("virtual user pool exhausted")

	// ErrPoolClosed is returned by Acquire after Close.
	ErrPoolClosed = errors.New("virtual user pool closed")
)

// InitFunc prepares a freshly created VU, typically by setting Data.
type InitFunc func(v *VirtualUser) error

// PoolConfig configures a Pool.
type PoolConfig struct {
	// PreAllocated VUs are created by NewPool.
	PreAllocated int

	// Max is the hard cap on VUs ever created.
	Max int

	// Seed derives each VU's random source as Seed+ID. Zero uses the
	// current time.
	Seed int64

	// Init is called once per VU at creation. May be nil.
	Init InitFunc
}

// Validate checks the pool bounds.
func (c PoolConfig) Validate() error {
	if c.PreAllocated < 0 {
		return fmt.Errorf("preAllocatedVUs must be non-negative, got %d", c.PreAllocated)
	}
	if c.Max < 1 {
		return fmt.Errorf("maxVUs must be at least 1, got %d", c.Max)
	}
	if c.PreAllocated > c.Max {
		return fmt.Errorf("preAllocatedVUs (%d) must not exceed maxVUs (%d)", c.PreAllocated, c.Max)
	}
	return nil
}

// Pool lends VUs to iterations.
//
// VUs are created eagerly up to PreAllocated and lazily after that, never
// beyond Max. Acquire never blocks: when nothing is idle and the cap is
// reached it fails with ErrPoolExhausted so that the caller can drop the
// work instead of queueing it.
//
// # Thread Safety
//
// Pool is safe for concurrent use.
type Pool struct {
	config PoolConfig
	seed   int64

	mu     sync.Mutex
	idle   []*VirtualUser
	all    []*VirtualUser
	busy   int
	peak   int
	closed bool
}

// NewPool creates a pool and its pre-allocated VUs.
func NewPool(config PoolConfig) (*Pool, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	p := &Pool{
		config: config,
		seed:   config.Seed,
		idle:   make([]*VirtualUser, 0, config.Max),
		all:    make([]*VirtualUser, 0, config.Max),
	}
	if p.seed == 0 {
		p.seed = time.Now().UnixNano()
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	for i := 0; i < config.PreAllocated; i++ {
		v, err := p.spawnLocked()
		if err != nil {
			return nil, err
		}
		p.idle = append(p.idle, v)
	}
	return p, nil
}

// spawnLocked creates the next VU. Callers hold p.mu.
func (p *Pool) spawnLocked() (*VirtualUser, error) {
	id := len(p.all)
	v := New(id, rand.New(rand.NewSource(p.seed+int64(id))))
	if p.config.Init != nil {
		if err := p.config.Init(v); err != nil {
			return nil, fmt.Errorf("init VU %d: %w", id, err)
		}
	}
	p.all = append(p.all, v)
	return v, nil
}

// Acquire lends a VU to the caller, who must return it with Release.
func (p *Pool) Acquire() (*VirtualUser, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, ErrPoolClosed
	}

	var v *VirtualUser
	if n := len(p.idle); n > 0 {
		v = p.idle[n-1]
		p.idle = p.idle[:n-1]
	} else if len(p.all) < p.config.Max {
		var err error
		if v, err = p.spawnLocked(); err != nil {
			return nil, err
		}
	} else {
		return nil, ErrPoolExhausted
	}

	if !v.transition(StateIdle, StateBusy) {
		return nil, fmt.Errorf("VU %d acquired in state %s", v.ID, v.State())
	}
	v.iterations.Add(1)
	p.busy++
	if p.busy > p.peak {
		p.peak = p.busy
	}
	return v, nil
}

// Release returns a VU to the pool. Releasing a VU that is not busy is a
// no-op.
func (p *Pool) Release(v *VirtualUser) {
	if v == nil || !v.transition(StateBusy, StateIdle) {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.busy--
	if p.closed {
		v.state.Store(int32(StateStopped))
		return
	}
	p.idle = append(p.idle, v)
}

// Close stops lending VUs. Busy VUs may still be released.
func (p *Pool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	for _, v := range p.idle {
		v.state.Store(int32(StateStopped))
	}
	p.idle = nil
}

// Stats is a point-in-time view of a pool.
type Stats struct {
	Busy    int `json:"busy"`
	Idle    int `json:"idle"`
	Created int `json:"created"`
	Peak    int `json:"peak"`
	Max     int `json:"max"`
}

// Stats returns the pool's current counts.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Stats{
		Busy:    p.busy,
		Idle:    len(p.idle),
		Created: len(p.all),
		Peak:    p.peak,
		Max:     p.config.Max,
	}
}

// Busy returns the number of VUs currently lent out.
func (p *Pool) Busy() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.busy
}
