package tts

import "context"

// Backend is the capability surface shared by every synthesis backend.
// The coordinator holds exactly one active Backend and never inspects its
// concrete type.
type Backend interface {
	// Type identifies the variant for observers.
	Type() BackendType

	// State returns the backend lifecycle state.
	State() EngineState

	// IsSpeaking reports whether an utterance is in flight. It must become
	// true before Speak returns.
	IsSpeaking() bool

	// Progress returns the progress of the current utterance in [0, 1].
	Progress() float64

	// Initialize prepares the backend. A platform without speech support
	// returns an error of KindNotSupported.
	Initialize(ctx context.Context) error

	// Speak starts an utterance and returns without waiting for it to
	// finish. Completion is reported through the event handler.
	Speak(req Request, id string) error

	Pause() error
	Resume() error

	// Stop interrupts the current utterance. When Stop returns, the
	// utterance's terminal event has already been delivered.
	Stop() error

	// Shutdown releases all resources. It is safe to call repeatedly.
	Shutdown() error

	Voices() []Voice
	SetVoice(voice Voice) error
	SetRate(rate float64) error
	SetPitch(pitch float64) error
	SetVolume(volume float64) error

	// SetEventHandler attaches the single event subscriber. nil detaches.
	SetEventHandler(h EventHandler)

	// SupportsPause reports whether Pause and Resume have any effect.
	SupportsPause() bool
}

// NeuralBackend adds model management to Backend. Only model management
// calls use these methods; dispatch goes through Backend alone.
type NeuralBackend interface {
	Backend

	// LoadModel loads the model found in dir.
	LoadModel(ctx context.Context, dir string, desc ModelDescriptor) error
	UnloadModel() error
	LoadedModel() (ModelDescriptor, bool)

	// SetStyle selects the active voice style without reloading weights.
	SetStyle(name string) error
	Styles() []string
}
