// Package coordinator owns the utterance queue and exactly one active
// synthesis backend. A dispatch loop hands queued utterances to the backend
// in priority order, and SwitchToNeural/SwitchToNative swap the backend
// without losing events for the utterance in flight.
//
// Events from backends are delivered to the registered handler on a single
// goroutine, in the order they were produced. Handlers may call back into
// the Coordinator.
package coordinator
