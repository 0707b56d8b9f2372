package tts

import "time"

// EventType identifies a backend notification.
type EventType int

const (
	EventStart EventType = iota
	EventProgress
	EventDone
	EventPaused
	EventResumed
	EventCancelled
	EventError
)

func (t EventType) String() string {
	switch t {
	case EventStart:
		return "start"
	case EventProgress:
		return "progress"
	case EventDone:
		return "done"
	case EventPaused:
		return "paused"
	case EventResumed:
		return "resumed"
	case EventCancelled:
		return "cancelled"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further events follow for the utterance.
func (t EventType) Terminal() bool {
	return t == EventDone || t == EventCancelled || t == EventError
}

// Event is a notification about one utterance.
type Event struct {
	Type        EventType
	UtteranceID string
	Tag         string
	Backend     BackendType
	Progress    float64 // 0..1, meaningful for EventProgress
	Err         error   // set for EventError
	Time        time.Time
}

// EventHandler receives backend events. Each backend has at most one.
type EventHandler func(Event)

// NewEvent creates an event stamped with the current time.
func NewEvent(t EventType, id string, backend BackendType) Event {
	return Event{
		Type:        t,
		UtteranceID: id,
		Backend:     backend,
		Time:        time.Now(),
	}
}
