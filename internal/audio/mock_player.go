package audio

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// MockPlayer is a Sink that simulates playback without producing sound.
type MockPlayer struct {
	sampleRate int

	mu       sync.Mutex
	volume   float64
	speed    float64
	hold     bool
	stopCh   chan struct{}
	elapsed  time.Duration
	duration time.Duration
	played   [][]float32
	failWith error

	state atomic.Int32

	callbacks MockCallbacks

	playCount   atomic.Int64
	pauseCount  atomic.Int64
	resumeCount atomic.Int64
	stopCount   atomic.Int64
}

// MockCallbacks provides hooks for testing.
type MockCallbacks struct {
	OnPlay  func(samples []float32)
	OnStop  func()
	OnPause func()
}

// MockPlayerMetrics contains call counters.
type MockPlayerMetrics struct {
	PlayCount   int64
	PauseCount  int64
	ResumeCount int64
	StopCount   int64
}

// NewMockPlayer creates a mock that finishes playback instantly.
func NewMockPlayer(sampleRate int, callbacks MockCallbacks) *MockPlayer {
	mp := &MockPlayer{
		sampleRate: sampleRate,
		volume:     1.0,
		callbacks:  callbacks,
	}
	mp.state.Store(int32(StateStopped))
	return mp
}

// SetSpeed makes playback take speed times the real audio duration.
// Zero finishes immediately.
func (mp *MockPlayer) SetSpeed(speed float64) {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	mp.speed = speed
}

// SetHold keeps playback running until Stop is called.
func (mp *MockPlayer) SetHold(hold bool) {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	mp.hold = hold
}

// FailNext makes the next Play return err.
func (mp *MockPlayer) FailNext(err error) {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	mp.failWith = err
}

// Play implements Sink.
func (mp *MockPlayer) Play(ctx context.Context, samples []float32) error {
	mp.mu.Lock()
	if mp.State() == StateClosed {
		mp.mu.Unlock()
		return ErrClosed
	}
	if err := mp.failWith; err != nil {
		mp.failWith = nil
		mp.mu.Unlock()
		return err
	}
	mp.stopLocked()

	buf := make([]float32, len(samples))
	copy(buf, samples)
	mp.played = append(mp.played, buf)

	stop := make(chan struct{})
	mp.stopCh = stop
	mp.elapsed = 0
	mp.duration = time.Duration(float64(Duration(len(samples), mp.sampleRate)) * mp.speed)
	hold := mp.hold
	mp.state.Store(int32(StatePlaying))
	mp.playCount.Add(1)
	mp.mu.Unlock()

	if mp.callbacks.OnPlay != nil {
		mp.callbacks.OnPlay(buf)
	}

	const tick = time.Millisecond
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		mp.mu.Lock()
		if mp.stopCh != stop {
			mp.mu.Unlock()
			return ErrStopped
		}
		if !hold && mp.elapsed >= mp.duration && mp.State() == StatePlaying {
			mp.stopCh = nil
			mp.state.Store(int32(StateStopped))
			mp.mu.Unlock()
			return nil
		}
		mp.mu.Unlock()

		select {
		case <-ctx.Done():
			_ = mp.Stop()
			return ctx.Err()
		case <-stop:
			return ErrStopped
		case <-ticker.C:
			mp.mu.Lock()
			if mp.State() == StatePlaying {
				mp.elapsed += tick
			}
			mp.mu.Unlock()
		}
	}
}

// Pause implements Sink.
func (mp *MockPlayer) Pause() error {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	if s := mp.State(); s != StatePlaying {
		return fmt.Errorf("cannot pause: player is %s", s)
	}
	mp.state.Store(int32(StatePaused))
	mp.pauseCount.Add(1)
	if mp.callbacks.OnPause != nil {
		mp.callbacks.OnPause()
	}
	return nil
}

// Resume implements Sink.
func (mp *MockPlayer) Resume() error {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	if s := mp.State(); s != StatePaused {
		return fmt.Errorf("cannot resume: player is %s", s)
	}
	mp.state.Store(int32(StatePlaying))
	mp.resumeCount.Add(1)
	return nil
}

// Stop implements Sink.
func (mp *MockPlayer) Stop() error {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	mp.stopLocked()
	return nil
}

func (mp *MockPlayer) stopLocked() {
	if mp.stopCh != nil {
		close(mp.stopCh)
		mp.stopCh = nil
		mp.stopCount.Add(1)
		if mp.callbacks.OnStop != nil {
			mp.callbacks.OnStop()
		}
	}
	if mp.State() != StateClosed {
		mp.state.Store(int32(StateStopped))
	}
}

// SetVolume implements Sink.
func (mp *MockPlayer) SetVolume(volume float64) error {
	if volume < 0.0 || volume > 1.0 {
		return errors.New("volume must be between 0.0 and 1.0")
	}
	mp.mu.Lock()
	defer mp.mu.Unlock()
	mp.volume = volume
	return nil
}

// Volume returns the last volume set.
func (mp *MockPlayer) Volume() float64 {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	return mp.volume
}

// State implements Sink.
func (mp *MockPlayer) State() PlayerState {
	return PlayerState(mp.state.Load())
}

// Position implements Sink.
func (mp *MockPlayer) Position() time.Duration {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	if s := mp.State(); s != StatePlaying && s != StatePaused {
		return 0
	}
	return mp.elapsed
}

// SampleRate implements Sink.
func (mp *MockPlayer) SampleRate() int {
	return mp.sampleRate
}

// Close implements Sink.
func (mp *MockPlayer) Close() error {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	mp.stopLocked()
	mp.state.Store(int32(StateClosed))
	return nil
}

// Played returns copies of every buffer passed to Play.
func (mp *MockPlayer) Played() [][]float32 {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	out := make([][]float32, len(mp.played))
	copy(out, mp.played)
	return out
}

// GetMetrics returns call counters.
func (mp *MockPlayer) GetMetrics() MockPlayerMetrics {
	return MockPlayerMetrics{
		PlayCount:   mp.playCount.Load(),
		PauseCount:  mp.pauseCount.Load(),
		ResumeCount: mp.resumeCount.Load(),
		StopCount:   mp.stopCount.Load(),
	}
}

// WaitForState polls until the player reaches state or timeout elapses.
func (mp *MockPlayer) WaitForState(state PlayerState, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if mp.State() == state {
			return true
		}
		time.Sleep(time.Millisecond)
	}
	return mp.State() == state
}
