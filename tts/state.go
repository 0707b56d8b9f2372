package tts

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// EngineState is the lifecycle state of an engine or backend.
type EngineState int32

const (
	// StateUninitialized indicates nothing has been set up, or shutdown completed.
	StateUninitialized EngineState = iota
	// StateInitializing indicates a backend is starting up.
	StateInitializing
	// StateReady indicates utterances can be spoken.
	StateReady
	// StateError indicates initialization failed. Initialize may be retried.
	StateError
	// StateUnavailable indicates the platform has no speech capability. Terminal.
	StateUnavailable
)

// String returns the string representation of the state.
func (s EngineState) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	case StateError:
		return "error"
	case StateUnavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

// StateMachine guards EngineState transitions. Writers are serialized;
// Current is a lock-free snapshot read.
type StateMachine struct {
	current     atomic.Int32
	mu          sync.Mutex
	transitions map[EngineState][]EngineState
	onEnter     map[EngineState]func(from EngineState)
}

// NewStateMachine creates a state machine in StateUninitialized.
func NewStateMachine() *StateMachine {
	return &StateMachine{
		transitions: map[EngineState][]EngineState{
			StateUninitialized: {StateInitializing},
			StateInitializing:  {StateReady, StateError, StateUnavailable, StateUninitialized},
			StateReady:         {StateReady, StateUninitialized},
			StateError:         {StateInitializing, StateUninitialized},
			StateUnavailable:   {},
		},
		onEnter: make(map[EngineState]func(EngineState)),
	}
}

// Current returns the current state.
func (sm *StateMachine) Current() EngineState {
	return EngineState(sm.current.Load())
}

// CanTransition reports whether moving to the given state is allowed.
func (sm *StateMachine) CanTransition(to EngineState) bool {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.allowed(sm.Current(), to)
}

// Transition moves to the given state or returns an error naming the
// rejected transition.
func (sm *StateMachine) Transition(to EngineState) error {
	sm.mu.Lock()
	from := sm.Current()
	if !sm.allowed(from, to) {
		sm.mu.Unlock()
		return fmt.Errorf("invalid state transition %s -> %s", from, to)
	}
	sm.current.Store(int32(to))
	fn := sm.onEnter[to]
	sm.mu.Unlock()

	if fn != nil {
		fn(from)
	}
	return nil
}

// Force sets the state without consulting the transition table. Shutdown
// uses it to return to StateUninitialized from anywhere but Unavailable.
func (sm *StateMachine) Force(to EngineState) {
	sm.mu.Lock()
	from := sm.Current()
	sm.current.Store(int32(to))
	fn := sm.onEnter[to]
	sm.mu.Unlock()

	if fn != nil && from != to {
		fn(from)
	}
}

// OnEnter registers a callback for entering a state.
func (sm *StateMachine) OnEnter(state EngineState, fn func(from EngineState)) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.onEnter[state] = fn
}

func (sm *StateMachine) allowed(from, to EngineState) bool {
	for _, s := range sm.transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}
