package neural

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/dgnsrekt/voxkit/internal/audio"
	"github.com/dgnsrekt/voxkit/internal/cache"
	"github.com/dgnsrekt/voxkit/tts"
)

type eventLog struct {
	mu     sync.Mutex
	events []tts.Event
}

func (l *eventLog) handle(ev tts.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev)
}

func (l *eventLog) types(id string) []tts.EventType {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []tts.EventType
	for _, ev := range l.events {
		if ev.UtteranceID == id {
			out = append(out, ev.Type)
		}
	}
	return out
}

func (l *eventLog) waitTerminal(t *testing.T, id string) tts.EventType {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		types := l.types(id)
		if n := len(types); n > 0 && types[n-1].Terminal() {
			return types[n-1]
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("no terminal event for %s; got %v", id, l.types(id))
	return 0
}

func waitIdle(t *testing.T, b *Backend) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for b.IsSpeaking() {
		if time.Now().After(deadline) {
			t.Fatal("backend still speaking")
		}
		time.Sleep(time.Millisecond)
	}
}

func newTestBackend(t *testing.T, opts ...BackendOption) (*Backend, *audio.MockPlayer, *fakeRuntime, *eventLog) {
	t.Helper()
	dir := writeModel(t, "F1", "M1")
	rt := newFakeRuntime()
	player := audio.NewMockPlayer(44100, audio.MockCallbacks{})
	b := NewBackend(NewEngine(rt), player, opts...)

	if err := b.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	desc := tts.ModelDescriptor{ID: "test-model", Name: "Test", Language: "en", DefaultStyle: "M1"}
	if err := b.LoadModel(context.Background(), dir, desc); err != nil {
		t.Fatalf("LoadModel failed: %v", err)
	}

	log := &eventLog{}
	b.SetEventHandler(log.handle)
	t.Cleanup(func() { _ = b.Shutdown() })
	return b, player, rt, log
}

func TestBackendSpeakCompletes(t *testing.T) {
	b, player, _, log := newTestBackend(t)

	req, _ := tts.NewRequest("Hello there.", tts.WithTag("greeting"))
	if err := b.Speak(req, "u1"); err != nil {
		t.Fatalf("Speak failed: %v", err)
	}
	if !b.IsSpeaking() {
		t.Error("IsSpeaking should be true as soon as Speak returns")
	}

	if got := log.waitTerminal(t, "u1"); got != tts.EventDone {
		t.Fatalf("terminal event = %v, want done", got)
	}
	types := log.types("u1")
	if types[0] != tts.EventStart {
		t.Errorf("first event = %v, want start", types[0])
	}
	if len(player.Played()) != 1 {
		t.Errorf("played %d buffers, want 1", len(player.Played()))
	}
	if b.Progress() != 1 {
		t.Errorf("Progress = %v, want 1", b.Progress())
	}

	waitIdle(t, b)
}

func TestBackendReportsSynthesisProgress(t *testing.T) {
	b, _, rt, log := newTestBackend(t)

	var (
		mu   sync.Mutex
		seen []float64
	)
	rt.mu.Lock()
	rt.onEstimator = func(step int) {
		if step > 0 {
			mu.Lock()
			seen = append(seen, b.Progress())
			mu.Unlock()
		}
	}
	rt.mu.Unlock()

	req, _ := tts.NewRequest("Progress please.")
	if err := b.Speak(req, "u1"); err != nil {
		t.Fatalf("Speak failed: %v", err)
	}
	if got := log.waitTerminal(t, "u1"); got != tts.EventDone {
		t.Fatalf("terminal event = %v, want done", got)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(seen) != DenoiseSteps-1 {
		t.Fatalf("sampled %d times, want %d", len(seen), DenoiseSteps-1)
	}
	prev := 0.0
	for i, p := range seen {
		if p <= prev || p >= synthesisShare {
			t.Errorf("progress[%d] = %v, want increasing within (0, %v)", i, p, synthesisShare)
		}
		prev = p
	}
}

func TestBackendStopDeliversOneCancelled(t *testing.T) {
	b, player, _, log := newTestBackend(t)
	player.SetHold(true)

	req, _ := tts.NewRequest("Hold this thought.")
	if err := b.Speak(req, "u1"); err != nil {
		t.Fatalf("Speak failed: %v", err)
	}
	if !player.WaitForState(audio.StatePlaying, time.Second) {
		t.Fatal("playback never started")
	}

	if err := b.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	// The terminal event must already be recorded when Stop returns.
	types := log.types("u1")
	cancelled := 0
	for _, tp := range types {
		if tp.Terminal() {
			if tp != tts.EventCancelled {
				t.Errorf("unexpected terminal event %v", tp)
			}
			cancelled++
		}
	}
	if cancelled != 1 {
		t.Errorf("got %d terminal events, want exactly one cancelled: %v", cancelled, types)
	}
	if b.IsSpeaking() {
		t.Error("IsSpeaking should be false after Stop")
	}
}

func TestBackendPauseResume(t *testing.T) {
	b, player, _, log := newTestBackend(t)
	player.SetHold(true)

	req, _ := tts.NewRequest("Pause me.")
	_ = b.Speak(req, "u1")
	if !player.WaitForState(audio.StatePlaying, time.Second) {
		t.Fatal("playback never started")
	}

	if err := b.Pause(); err != nil {
		t.Fatalf("Pause failed: %v", err)
	}
	if player.State() != audio.StatePaused {
		t.Errorf("player state = %s, want paused", player.State())
	}
	if err := b.Resume(); err != nil {
		t.Fatalf("Resume failed: %v", err)
	}
	_ = b.Stop()

	want := []tts.EventType{tts.EventStart, tts.EventPaused, tts.EventResumed, tts.EventCancelled}
	got := log.types("u1")
	if len(got) != len(want) {
		t.Fatalf("events = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("event %d = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestBackendRejectsConcurrentSpeak(t *testing.T) {
	b, player, _, _ := newTestBackend(t)
	player.SetHold(true)

	req, _ := tts.NewRequest("one")
	_ = b.Speak(req, "u1")
	if err := b.Speak(req, "u2"); tts.KindOf(err) != tts.KindEngineError {
		t.Errorf("second Speak = %v, want ENGINE_ERROR", err)
	}
}

func TestBackendVoicesAndStyles(t *testing.T) {
	b, _, _, _ := newTestBackend(t)

	desc, ok := b.LoadedModel()
	if !ok || desc.ID != "test-model" {
		t.Fatalf("LoadedModel = %+v, %v", desc, ok)
	}

	voices := b.Voices()
	if len(voices) != 2 {
		t.Fatalf("voices = %+v", voices)
	}
	if voices[0].Style() != "F1" || voices[0].Gender != tts.GenderFemale || voices[0].Backend != tts.BackendNeural {
		t.Errorf("voice[0] = %+v", voices[0])
	}
	if voices[1].ID != "test-model:M1" || voices[1].ModelID != "test-model" {
		t.Errorf("voice[1] = %+v", voices[1])
	}

	if err := b.SetStyle("X9"); tts.KindOf(err) != tts.KindVoiceNotFound {
		t.Errorf("SetStyle(unknown) = %v, want VOICE_NOT_FOUND", err)
	}
	if err := b.SetVoice(voices[0]); err != nil {
		t.Errorf("SetVoice failed: %v", err)
	}
	if err := b.SetVoice(tts.Voice{ID: "native", Backend: tts.BackendNative}); tts.KindOf(err) != tts.KindVoiceNotFound {
		t.Errorf("SetVoice(native) = %v, want VOICE_NOT_FOUND", err)
	}

	if err := b.UnloadModel(); err != nil {
		t.Fatalf("UnloadModel failed: %v", err)
	}
	if _, ok := b.LoadedModel(); ok || len(b.Voices()) != 0 {
		t.Error("model state should be cleared after unload")
	}
	req, _ := tts.NewRequest("hi")
	if err := b.Speak(req, "u1"); tts.KindOf(err) != tts.KindModelNotFound {
		t.Errorf("Speak without model = %v, want MODEL_NOT_FOUND", err)
	}
}

func TestBackendUsesCache(t *testing.T) {
	c, err := cache.New(cache.Config{MemoryBytes: 1 << 22}, nil)
	if err != nil {
		t.Fatalf("cache.New failed: %v", err)
	}
	b, _, rt, log := newTestBackend(t, WithCache(c))

	req, _ := tts.NewRequest("Cache me.")
	for _, id := range []string{"u1", "u2"} {
		if err := b.Speak(req, id); err != nil {
			t.Fatalf("Speak failed: %v", err)
		}
		log.waitTerminal(t, id)
		waitIdle(t, b)
	}

	if n := rt.count(VocoderGraph); n != 1 {
		t.Errorf("vocoder ran %d times, want 1 with a warm cache", n)
	}
	if s := c.Stats(); s.L1Hits != 1 {
		t.Errorf("cache stats = %+v", s)
	}
}

func TestBackendChunksLongText(t *testing.T) {
	b, player, _, log := newTestBackend(t, WithChunkLength(20))

	req, _ := tts.NewRequest("First sentence here. Second one here. Third one.")
	_ = b.Speak(req, "u1")
	if got := log.waitTerminal(t, "u1"); got != tts.EventDone {
		t.Fatalf("terminal = %v", got)
	}
	if n := len(player.Played()); n != 3 {
		t.Errorf("played %d chunks, want 3", n)
	}

	progress := 0
	for _, tp := range log.types("u1") {
		if tp == tts.EventProgress {
			progress++
		}
	}
	if progress != 2 {
		t.Errorf("progress events = %d, want 2", progress)
	}
}

func TestBackendShutdownIdempotent(t *testing.T) {
	b, _, _, _ := newTestBackend(t)

	if err := b.Shutdown(); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}
	if err := b.Shutdown(); err != nil {
		t.Fatalf("second Shutdown failed: %v", err)
	}
	if b.State() != tts.StateUninitialized {
		t.Errorf("State = %v", b.State())
	}
	if err := b.Initialize(context.Background()); err != nil {
		t.Errorf("re-Initialize failed: %v", err)
	}
}

func TestBackendRateAndVolumeClamp(t *testing.T) {
	b, _, _, _ := newTestBackend(t)

	_ = b.SetRate(5)
	_ = b.SetVolume(-1)
	_ = b.SetPitch(0.1)

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.rate != tts.MaxRate || b.volume != tts.MinVolume || b.pitch != tts.MinPitch {
		t.Errorf("rate=%v volume=%v pitch=%v", b.rate, b.volume, b.pitch)
	}
}
