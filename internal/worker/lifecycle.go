package worker

import "sync/atomic"

// State is the lifecycle state of a worker
type State int32

const (
	// StateUninitialized means no load has succeeded yet
	StateUninitialized State = iota
	// StateLoading means a load is in progress
	StateLoading
	// StateReady means the store is loaded and queries are evaluated
	StateReady
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	default:
		return "unknown"
	}
}

// lifecycle holds the current state. Only the worker goroutine changes it;
// readers such as the health server may observe it concurrently.
type lifecycle struct {
	state atomic.Int32
}

func (l *lifecycle) get() State {
	return State(l.state.Load())
}

// transition moves from one state to another, reporting false when the
// current state is not from
func (l *lifecycle) transition(from, to State) bool {
	return l.state.CompareAndSwap(int32(from), int32(to))
}
