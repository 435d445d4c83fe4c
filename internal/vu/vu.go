// Package vu provides virtual users and the elastic pool that lends them
// to iterations.
package vu

import (
	"math/rand"
	"sync/atomic"
)

// State represents the lifecycle state of a virtual user.
type State int32

const (
	// StateIdle indicates the VU is parked in the pool.
	StateIdle State = iota
	// StateBusy indicates the VU is lent to an iteration.
	StateBusy
	// StateStopped indicates the pool has been closed.
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateBusy:
		return "busy"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// VirtualUser is a single simulated client.
//
// Everything a VU carries is private to it: its random source, and
// whatever per-user state the scenario attaches in Data. The pool
// guarantees that at most one iteration holds a VU at a time, so none of
// it needs locking.
type VirtualUser struct {
	// ID is unique within a pool and assigned in creation order from 0.
	ID int

	// Data holds scenario-specific state set when the VU is created.
	Data any

	rng        *rand.Rand
	state      atomic.Int32
	iterations atomic.Int64
}

// New creates an idle VU with the given random source.
func New(id int, rng *rand.Rand) *VirtualUser {
	if rng == nil {
		rng = rand.New(rand.NewSource(int64(id)))
	}
	return &VirtualUser{ID: id, rng: rng}
}

// Rand returns the VU's private random source.
func (v *VirtualUser) Rand() *rand.Rand { return v.rng }

// State returns the current lifecycle state.
func (v *VirtualUser) State() State { return State(v.state.Load()) }

// Iterations returns how many times the VU has been acquired.
func (v *VirtualUser) Iterations() int64 { return v.iterations.Load() }

func (v *VirtualUser) transition(from, to State) bool {
	return v.state.CompareAndSwap(int32(from), int32(to))
}
