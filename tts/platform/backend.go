package platform

import (
	"context"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dgnsrekt/voxkit/internal/logging"
	"github.com/dgnsrekt/voxkit/internal/markup"
	"github.com/dgnsrekt/voxkit/tts"
)

// stopTimeout bounds how long Stop waits for the driver's terminal
// notification before reporting the cancellation itself.
const stopTimeout = 2 * time.Second

// Backend adapts a Capability to tts.Backend.
type Backend struct {
	cap Capability
	log *log.Logger

	state    atomic.Int32
	speaking atomic.Bool
	progress atomic.Uint64

	mu      sync.Mutex
	handler tts.EventHandler
	voices  []tts.Voice
	voice   tts.Voice
	rate    float64
	pitch   float64
	volume  float64
	current *utterance
}

type utterance struct {
	id   string
	tag  string
	once sync.Once
	done chan struct{}
}

var _ tts.Backend = (*Backend)(nil)

// NewBackend wraps c.
func NewBackend(c Capability, logger *log.Logger) *Backend {
	b := &Backend{
		cap:    c,
		log:    logging.OrDefault(logger, "platform"),
		rate:   tts.DefaultRate,
		pitch:  tts.DefaultPitch,
		volume: tts.DefaultVolume,
	}
	b.state.Store(int32(tts.StateUninitialized))
	return b
}

// Capability returns the wrapped driver.
func (b *Backend) Capability() Capability { return b.cap }

// Type implements tts.Backend.
func (b *Backend) Type() tts.BackendType { return tts.BackendNative }

// State implements tts.Backend.
func (b *Backend) State() tts.EngineState { return tts.EngineState(b.state.Load()) }

// IsSpeaking implements tts.Backend.
func (b *Backend) IsSpeaking() bool { return b.speaking.Load() }

// Progress implements tts.Backend.
func (b *Backend) Progress() float64 { return math.Float64frombits(b.progress.Load()) }

// SupportsPause implements tts.Backend.
func (b *Backend) SupportsPause() bool { return b.cap.SupportsPause() }

// Initialize implements tts.Backend.
func (b *Backend) Initialize(ctx context.Context) error {
	if b.State() == tts.StateReady {
		return nil
	}
	if err := b.cap.Initialize(ctx); err != nil {
		b.state.Store(int32(tts.StateError))
		return tts.Wrap(tts.KindEngineError, "speech driver failed to initialize", err)
	}

	voices, err := b.cap.ListVoices(ctx)
	if err != nil {
		b.log.Warn("Could not list voices", "driver", b.cap.Name(), "error", err)
	}
	b.cap.SetListener(b.onNotification)

	b.mu.Lock()
	b.voices = voices
	if b.voice.ID == "" && len(voices) > 0 {
		b.voice = voices[0]
	}
	b.mu.Unlock()

	b.state.Store(int32(tts.StateReady))
	b.log.Info("Platform voices ready", "driver", b.cap.Name(), "voices", len(voices))
	return nil
}

// SetEventHandler implements tts.Backend.
func (b *Backend) SetEventHandler(h tts.EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handler = h
}

// Voices implements tts.Backend.
func (b *Backend) Voices() []tts.Voice {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]tts.Voice(nil), b.voices...)
}

// SetVoice implements tts.Backend.
func (b *Backend) SetVoice(voice tts.Voice) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	v, ok := tts.FindVoice(b.voices, voice.ID)
	if !ok || voice.Backend != tts.BackendNative {
		return tts.NewError(tts.KindVoiceNotFound, "voice not offered by platform", nil).
			WithContext("voice", voice.ID)
	}
	b.voice = v
	return nil
}

// SetRate implements tts.Backend.
func (b *Backend) SetRate(rate float64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rate = tts.ClampRate(rate)
	return nil
}

// SetPitch implements tts.Backend.
func (b *Backend) SetPitch(pitch float64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pitch = tts.ClampPitch(pitch)
	return nil
}

// SetVolume implements tts.Backend.
func (b *Backend) SetVolume(volume float64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.volume = tts.ClampVolume(volume)
	return nil
}

// Speak implements tts.Backend.
func (b *Backend) Speak(req tts.Request, id string) error {
	if b.State() != tts.StateReady {
		return tts.NewError(tts.KindNotInitialized, "platform backend not initialized", nil)
	}

	b.mu.Lock()
	if b.current != nil {
		active := b.current.id
		b.mu.Unlock()
		return tts.NewError(tts.KindEngineError, "utterance already in progress", nil).
			WithContext("active", active)
	}
	u := Utterance{
		Text:   markup.Speakable(req),
		Rate:   req.RateOr(b.rate),
		Pitch:  req.PitchOr(b.pitch),
		Volume: req.VolumeOr(b.volume),
		Voice:  b.voice.ID,
	}
	if v, ok := tts.FindVoice(b.voices, req.VoiceID()); ok {
		u.Voice = v.ID
	}
	cur := &utterance{id: id, tag: req.Tag(), done: make(chan struct{})}
	b.current = cur
	b.speaking.Store(true)
	b.setProgress(0)
	b.mu.Unlock()

	if u.Text == "" {
		b.clear(cur)
		return tts.NewError(tts.KindInvalidText, "nothing to speak", nil)
	}
	if err := b.cap.Speak(id, u); err != nil {
		b.clear(cur)
		return tts.Wrap(tts.KindEngineError, "speech driver rejected utterance", err)
	}
	return nil
}

func (b *Backend) clear(cur *utterance) {
	b.mu.Lock()
	if b.current == cur {
		b.current = nil
	}
	b.mu.Unlock()
	b.speaking.Store(false)
}

func (b *Backend) onNotification(n Notification) {
	b.mu.Lock()
	cur := b.current
	b.mu.Unlock()
	if cur == nil || cur.id != n.ID {
		b.log.Debug("Dropping stale notification", "id", n.ID, "type", n.Type)
		return
	}

	switch n.Type {
	case tts.EventStart:
		b.setProgress(0)
	case tts.EventProgress:
		b.setProgress(n.Progress)
	case tts.EventDone:
		b.setProgress(1)
	}

	if n.Type.Terminal() {
		b.finish(cur, n.Type, n.Err)
		return
	}
	b.emit(cur, n.Type, n.Err)
}

// finish delivers the single terminal event of cur.
func (b *Backend) finish(cur *utterance, t tts.EventType, err error) {
	cur.once.Do(func() {
		b.mu.Lock()
		if b.current == cur {
			b.current = nil
		}
		b.mu.Unlock()

		b.emit(cur, t, err)
		b.speaking.Store(false)
		close(cur.done)
	})
}

func (b *Backend) emit(cur *utterance, t tts.EventType, err error) {
	b.mu.Lock()
	h := b.handler
	b.mu.Unlock()
	if h == nil {
		return
	}

	ev := tts.NewEvent(t, cur.id, tts.BackendNative)
	ev.Tag = cur.tag
	ev.Progress = b.Progress()
	ev.Err = err
	h(ev)
}

// Pause implements tts.Backend.
func (b *Backend) Pause() error {
	if !b.cap.SupportsPause() {
		return tts.NewError(tts.KindNotSupported, "pause not supported", nil).
			WithContext("driver", b.cap.Name())
	}
	return b.cap.Pause()
}

// Resume implements tts.Backend.
func (b *Backend) Resume() error {
	if !b.cap.SupportsPause() {
		return tts.NewError(tts.KindNotSupported, "resume not supported", nil).
			WithContext("driver", b.cap.Name())
	}
	return b.cap.Resume()
}

// Stop implements tts.Backend. The current utterance's terminal event has
// been delivered when it returns.
func (b *Backend) Stop() error {
	b.mu.Lock()
	cur := b.current
	b.mu.Unlock()
	if cur == nil {
		return nil
	}

	err := b.cap.CancelAll()
	select {
	case <-cur.done:
	case <-time.After(stopTimeout):
		b.log.Warn("Driver did not confirm cancellation", "driver", b.cap.Name(), "id", cur.id)
		b.finish(cur, tts.EventCancelled, nil)
	}
	return err
}

// Shutdown implements tts.Backend.
func (b *Backend) Shutdown() error {
	if b.State() == tts.StateUninitialized {
		return nil
	}
	_ = b.Stop()
	b.cap.SetListener(nil)
	err := b.cap.Shutdown()
	b.state.Store(int32(tts.StateUninitialized))
	return err
}

func (b *Backend) setProgress(p float64) {
	b.progress.Store(math.Float64bits(p))
}
