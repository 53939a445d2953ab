package dbpool

import (
	"fmt"
	"sync/atomic"
)

// State is the lifecycle position of a pool.
type State int32

const (
	StateUninitialized State = iota
	StateValidating
	StateConnecting
	StateReady
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateValidating:
		return "validating"
	case StateConnecting:
		return "connecting"
	case StateReady:
		return "ready"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// PoolState maps a non-ready lifecycle state to the state reported in errors.
func (s State) PoolState() PoolState {
	switch s {
	case StateClosing:
		return PoolStateShuttingDown
	case StateClosed:
		return PoolStateDisconnected
	case StateReady:
		return ""
	default:
		return PoolStateInitializing
	}
}

// Lifecycle tracks pool state with lock-free transitions.
type Lifecycle struct {
	state atomic.Int32
}

func (l *Lifecycle) Load() State {
	return State(l.state.Load())
}

// Set moves unconditionally to s.
func (l *Lifecycle) Set(s State) {
	l.state.Store(int32(s))
}

// Transition moves from one state to another and reports whether it won.
func (l *Lifecycle) Transition(from, to State) bool {
	return l.state.CompareAndSwap(int32(from), int32(to))
}

// BeginClose moves a live pool to Closing. It returns false when the pool is
// already closing or closed.
func (l *Lifecycle) BeginClose() bool {
	for {
		cur := l.Load()
		if cur == StateClosing || cur == StateClosed {
			return false
		}
		if l.Transition(cur, StateClosing) {
			return true
		}
	}
}

// EnsureReady returns a sealed pool error unless the pool is Ready.
func (l *Lifecycle) EnsureReady(backend Backend, operation string) *Error {
	s := l.Load()
	if s == StateReady {
		return nil
	}
	return NewPoolError(backend, s.PoolState(), fmt.Sprintf("pool is %s", s)).
		WithContext("operation", operation).
		Seal()
}
