package platform

import (
	"context"
	"sync"
	"time"

	"github.com/dgnsrekt/voxkit/tts"
)

// Fake is an in-memory Capability. It "speaks" for a fixed time per
// character and records what it was asked to say.
type Fake struct {
	mu          sync.Mutex
	perChar     time.Duration
	hold        bool
	canPause    bool
	initErr     error
	speakErr    error
	initialized bool
	voices      []tts.Voice
	listener    func(Notification)
	spoken      []Utterance
	cancels     int
	run         *fakeRun
}

type fakeRun struct {
	id      string
	stop    chan struct{}
	done    chan struct{}
	paused  bool
	elapsed time.Duration
}

var _ Capability = (*Fake)(nil)

// DefaultFakeVoices are offered by a new Fake.
var DefaultFakeVoices = []tts.Voice{
	{ID: "fake-en-f", Name: "Fake Female", Language: "en-US", Gender: tts.GenderFemale, Backend: tts.BackendNative, Quality: tts.QualityNormal},
	{ID: "fake-en-m", Name: "Fake Male", Language: "en-US", Gender: tts.GenderMale, Backend: tts.BackendNative, Quality: tts.QualityNormal},
}

// NewFake returns a fake that finishes utterances instantly.
func NewFake() *Fake {
	return &Fake{
		canPause: true,
		voices:   append([]tts.Voice(nil), DefaultFakeVoices...),
	}
}

// SetCharDuration makes each character take d to speak.
func (f *Fake) SetCharDuration(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.perChar = d
}

// SetHold keeps every utterance running until it is cancelled.
func (f *Fake) SetHold(hold bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hold = hold
}

// SetPauseSupport toggles SupportsPause.
func (f *Fake) SetPauseSupport(ok bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.canPause = ok
}

// FailInitialize makes Initialize return err.
func (f *Fake) FailInitialize(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.initErr = err
}

// FailSpeak makes Speak return err.
func (f *Fake) FailSpeak(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.speakErr = err
}

// Spoken returns every utterance passed to Speak.
func (f *Fake) Spoken() []Utterance {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Utterance(nil), f.spoken...)
}

// Cancels returns how many times a running utterance was cancelled.
func (f *Fake) Cancels() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cancels
}

// Name implements Capability.
func (f *Fake) Name() string { return DriverFake }

// Initialize implements Capability.
func (f *Fake) Initialize(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.initErr != nil {
		return f.initErr
	}
	f.initialized = true
	return nil
}

// SetListener implements Capability.
func (f *Fake) SetListener(l func(Notification)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listener = l
}

// Speak implements Capability.
func (f *Fake) Speak(id string, u Utterance) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.initialized {
		return tts.NewError(tts.KindNotInitialized, "fake driver not initialized", nil)
	}
	if f.speakErr != nil {
		return f.speakErr
	}
	if f.run != nil {
		return tts.NewError(tts.KindEngineError, "fake driver busy", nil)
	}

	f.spoken = append(f.spoken, u)
	r := &fakeRun{id: id, stop: make(chan struct{}), done: make(chan struct{})}
	f.run = r
	go f.play(r, time.Duration(len([]rune(u.Text)))*f.perChar, f.hold)
	return nil
}

func (f *Fake) play(r *fakeRun, total time.Duration, hold bool) {
	defer close(r.done)
	f.notify(Notification{Type: tts.EventStart, ID: r.id})

	const tick = time.Millisecond
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		f.mu.Lock()
		finished := !hold && !r.paused && r.elapsed >= total
		f.mu.Unlock()
		if finished {
			break
		}

		select {
		case <-r.stop:
			f.finish(r)
			f.notify(Notification{Type: tts.EventCancelled, ID: r.id})
			return
		case <-ticker.C:
			f.mu.Lock()
			if !r.paused {
				r.elapsed += tick
			}
			f.mu.Unlock()
		}
	}

	f.finish(r)
	f.notify(Notification{Type: tts.EventDone, ID: r.id, Progress: 1})
}

func (f *Fake) finish(r *fakeRun) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.run == r {
		f.run = nil
	}
}

func (f *Fake) notify(n Notification) {
	f.mu.Lock()
	l := f.listener
	f.mu.Unlock()
	if l != nil {
		l(n)
	}
}

// Pause implements Capability.
func (f *Fake) Pause() error {
	f.mu.Lock()
	if !f.canPause {
		f.mu.Unlock()
		return tts.NewError(tts.KindNotSupported, "pause not supported", nil)
	}
	r := f.run
	if r == nil || r.paused {
		f.mu.Unlock()
		return nil
	}
	r.paused = true
	f.mu.Unlock()

	f.notify(Notification{Type: tts.EventPaused, ID: r.id})
	return nil
}

// Resume implements Capability.
func (f *Fake) Resume() error {
	f.mu.Lock()
	if !f.canPause {
		f.mu.Unlock()
		return tts.NewError(tts.KindNotSupported, "resume not supported", nil)
	}
	r := f.run
	if r == nil || !r.paused {
		f.mu.Unlock()
		return nil
	}
	r.paused = false
	f.mu.Unlock()

	f.notify(Notification{Type: tts.EventResumed, ID: r.id})
	return nil
}

// CancelAll implements Capability.
func (f *Fake) CancelAll() error {
	f.mu.Lock()
	r := f.run
	if r == nil {
		f.mu.Unlock()
		return nil
	}
	select {
	case <-r.stop:
	default:
		close(r.stop)
		f.cancels++
	}
	f.mu.Unlock()

	<-r.done
	return nil
}

// Shutdown implements Capability.
func (f *Fake) Shutdown() error {
	err := f.CancelAll()
	f.mu.Lock()
	f.initialized = false
	f.mu.Unlock()
	return err
}

// IsSpeaking implements Capability.
func (f *Fake) IsSpeaking() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.run != nil
}

// IsPaused implements Capability.
func (f *Fake) IsPaused() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.run != nil && f.run.paused
}

// SupportsPause implements Capability.
func (f *Fake) SupportsPause() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.canPause
}

// ListVoices implements Capability.
func (f *Fake) ListVoices(ctx context.Context) ([]tts.Voice, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]tts.Voice(nil), f.voices...), nil
}
