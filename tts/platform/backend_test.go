package platform

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dgnsrekt/voxkit/tts"
)

type recorder struct {
	mu     sync.Mutex
	events []tts.Event
}

func (r *recorder) handle(ev tts.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) types() []tts.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]tts.EventType, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Type
	}
	return out
}

func (r *recorder) wait(t *testing.T, typ tts.EventType) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if types := r.types(); len(types) > 0 && types[len(types)-1] == typ {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("events = %v, want last %v", r.types(), typ)
}

func readyBackend(t *testing.T) (*Backend, *Fake, *recorder) {
	t.Helper()
	f := NewFake()
	b := NewBackend(f, nil)
	if err := b.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	r := &recorder{}
	b.SetEventHandler(r.handle)
	t.Cleanup(func() { _ = b.Shutdown() })
	return b, f, r
}

func TestBackendSpeak(t *testing.T) {
	b, f, r := readyBackend(t)

	req, _ := tts.NewRequest("Hello world", tts.WithRate(1.5), tts.WithTag("t1"))
	if err := b.Speak(req, "u1"); err != nil {
		t.Fatalf("Speak failed: %v", err)
	}
	if !b.IsSpeaking() {
		t.Error("IsSpeaking should be true when Speak returns")
	}
	r.wait(t, tts.EventDone)

	if got := r.types(); len(got) != 2 || got[0] != tts.EventStart {
		t.Errorf("events = %v", got)
	}
	if r.events[1].Tag != "t1" || r.events[1].Backend != tts.BackendNative {
		t.Errorf("done event = %+v", r.events[1])
	}
	spoken := f.Spoken()
	if len(spoken) != 1 || spoken[0].Rate != 1.5 || spoken[0].Volume != 1 || spoken[0].Voice != "fake-en-f" {
		t.Errorf("spoken = %+v", spoken)
	}
	if b.Progress() != 1 {
		t.Errorf("Progress = %v", b.Progress())
	}
}

func TestBackendNotInitialized(t *testing.T) {
	b := NewBackend(NewFake(), nil)
	req, _ := tts.NewRequest("hi")
	if err := b.Speak(req, "u1"); tts.KindOf(err) != tts.KindNotInitialized {
		t.Errorf("Speak = %v, want NOT_INITIALIZED", err)
	}
}

func TestBackendInitializeNotSupported(t *testing.T) {
	f := NewFake()
	f.FailInitialize(tts.NewError(tts.KindNotSupported, "no engine", nil))
	b := NewBackend(f, nil)

	err := b.Initialize(context.Background())
	if tts.KindOf(err) != tts.KindNotSupported {
		t.Errorf("Initialize = %v, want NOT_SUPPORTED", err)
	}
	if b.State() != tts.StateError {
		t.Errorf("State = %v", b.State())
	}
}

func TestBackendStopSendsOneCancelled(t *testing.T) {
	b, f, r := readyBackend(t)
	f.SetHold(true)

	req, _ := tts.NewRequest("long text")
	_ = b.Speak(req, "u1")
	if err := b.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	terminal := 0
	for _, tp := range r.types() {
		if tp.Terminal() {
			terminal++
			if tp != tts.EventCancelled {
				t.Errorf("terminal event %v", tp)
			}
		}
	}
	if terminal != 1 {
		t.Errorf("got %d terminal events: %v", terminal, r.types())
	}
	if b.IsSpeaking() {
		t.Error("IsSpeaking should be false after Stop")
	}
	if f.Cancels() != 1 {
		t.Errorf("driver cancels = %d", f.Cancels())
	}

	// A second utterance is accepted afterwards.
	f.SetHold(false)
	if err := b.Speak(req, "u2"); err != nil {
		t.Fatalf("Speak after Stop failed: %v", err)
	}
	r.wait(t, tts.EventDone)
}

func TestBackendPause(t *testing.T) {
	b, f, r := readyBackend(t)
	f.SetHold(true)

	req, _ := tts.NewRequest("pause me")
	_ = b.Speak(req, "u1")
	r.wait(t, tts.EventStart)

	if err := b.Pause(); err != nil {
		t.Fatalf("Pause failed: %v", err)
	}
	if err := b.Resume(); err != nil {
		t.Fatalf("Resume failed: %v", err)
	}
	_ = b.Stop()

	want := []tts.EventType{tts.EventStart, tts.EventPaused, tts.EventResumed, tts.EventCancelled}
	got := r.types()
	if len(got) != len(want) {
		t.Fatalf("events = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("event %d = %v, want %v", i, got[i], want[i])
		}
	}

	f.SetPauseSupport(false)
	if b.SupportsPause() {
		t.Error("SupportsPause should follow the driver")
	}
	if err := b.Pause(); tts.KindOf(err) != tts.KindNotSupported {
		t.Errorf("Pause = %v, want NOT_SUPPORTED", err)
	}
}

func TestBackendSpeakFailure(t *testing.T) {
	b, f, _ := readyBackend(t)
	f.FailSpeak(errors.New("device lost"))

	req, _ := tts.NewRequest("hi")
	if err := b.Speak(req, "u1"); tts.KindOf(err) != tts.KindEngineError {
		t.Errorf("Speak = %v, want ENGINE_ERROR", err)
	}
	if b.IsSpeaking() {
		t.Error("IsSpeaking should be false after a rejected Speak")
	}
}

func TestBackendVoices(t *testing.T) {
	b, f, _ := readyBackend(t)

	voices := b.Voices()
	if len(voices) != len(DefaultFakeVoices) {
		t.Fatalf("voices = %+v", voices)
	}
	if err := b.SetVoice(voices[1]); err != nil {
		t.Fatalf("SetVoice failed: %v", err)
	}
	if err := b.SetVoice(tts.Voice{ID: "nobody", Backend: tts.BackendNative}); tts.KindOf(err) != tts.KindVoiceNotFound {
		t.Errorf("SetVoice(unknown) = %v, want VOICE_NOT_FOUND", err)
	}

	_ = b.SetRate(9)
	_ = b.SetVolume(0.3)
	req, _ := tts.NewRequest("hi")
	_ = b.Speak(req, "u1")
	for b.IsSpeaking() {
		time.Sleep(time.Millisecond)
	}

	u := f.Spoken()[0]
	if u.Voice != "fake-en-m" || u.Rate != tts.MaxRate || u.Volume != 0.3 {
		t.Errorf("utterance = %+v", u)
	}
}

func TestBackendShutdownIdempotent(t *testing.T) {
	b, _, _ := readyBackend(t)
	for i := 0; i < 2; i++ {
		if err := b.Shutdown(); err != nil {
			t.Fatalf("Shutdown %d failed: %v", i, err)
		}
		if b.State() != tts.StateUninitialized {
			t.Errorf("State = %v", b.State())
		}
	}
}
