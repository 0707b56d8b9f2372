package platform

import (
	"context"

	"github.com/dgnsrekt/voxkit/tts"
)

// Utterance is one piece of text with the settings to speak it with.
type Utterance struct {
	Text   string
	Rate   float64
	Pitch  float64
	Volume float64
	// Voice is a driver voice id. Empty uses the driver default.
	Voice string
}

// Notification reports progress of an utterance started with Speak.
// Type uses the tts event vocabulary.
type Notification struct {
	Type     tts.EventType
	ID       string
	Progress float64
	Err      error
}

// Capability is a native speech engine. Drivers speak one utterance at a
// time and report everything else through the listener.
type Capability interface {
	// Name identifies the driver in logs.
	Name() string

	// Initialize checks that the engine exists. A missing engine yields an
	// error of KindNotSupported.
	Initialize(ctx context.Context) error

	// Speak starts the utterance and returns once it is under way.
	Speak(id string, u Utterance) error

	Pause() error
	Resume() error

	// CancelAll stops the current utterance. It returns after the
	// utterance's terminal notification has been sent.
	CancelAll() error
	Shutdown() error

	IsSpeaking() bool
	IsPaused() bool
	SupportsPause() bool

	ListVoices(ctx context.Context) ([]tts.Voice, error)

	// SetListener sets the notification receiver. nil detaches.
	SetListener(func(Notification))
}
