package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ebitengine/oto/v3"
)

var (
	// ErrStopped is returned by Play when playback was stopped early.
	ErrStopped = errors.New("playback stopped")
	// ErrClosed is returned when the player has been closed.
	ErrClosed = errors.New("player is closed")
)

// PlayerState represents the current state of a player.
type PlayerState int32

const (
	StateStopped PlayerState = iota
	StatePlaying
	StatePaused
	StateClosed
)

func (s PlayerState) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Sink plays mono float32 sample buffers.
type Sink interface {
	// Play blocks until samples have drained, Stop is called or ctx ends.
	// It returns nil on natural completion and ErrStopped when stopped.
	Play(ctx context.Context, samples []float32) error
	Pause() error
	Resume() error
	Stop() error
	SetVolume(volume float64) error
	State() PlayerState
	Position() time.Duration
	SampleRate() int
	Close() error
}

// PlayerConfig contains configuration for the audio player.
type PlayerConfig struct {
	SampleRate   int // 44100 or 48000 Hz only
	BufferSize   time.Duration
	PollInterval time.Duration
}

// DefaultPlayerConfig returns the default player configuration.
func DefaultPlayerConfig() PlayerConfig {
	return PlayerConfig{
		SampleRate:   44100,
		BufferSize:   100 * time.Millisecond,
		PollInterval: 10 * time.Millisecond,
	}
}

func validateConfig(config PlayerConfig) error {
	if config.SampleRate != 44100 && config.SampleRate != 48000 {
		return fmt.Errorf("sample rate must be 44100 or 48000 Hz, got %d", config.SampleRate)
	}
	if config.BufferSize < 0 {
		return errors.New("buffer size must not be negative")
	}
	if config.PollInterval <= 0 {
		return errors.New("poll interval must be positive")
	}
	return nil
}

// oto allows a single context per process.
var (
	sharedOnce sync.Once
	sharedCtx  *oto.Context
	sharedRate int
	sharedErr  error
)

func otoContext(config PlayerConfig) (*oto.Context, error) {
	sharedOnce.Do(func() {
		op := &oto.NewContextOptions{
			SampleRate:   config.SampleRate,
			ChannelCount: 1,
			Format:       oto.FormatSignedInt16LE,
			BufferSize:   config.BufferSize,
		}
		ctx, ready, err := oto.NewContext(op)
		if err != nil {
			sharedErr = fmt.Errorf("failed to create oto context: %w", err)
			return
		}
		<-ready
		sharedCtx = ctx
		sharedRate = config.SampleRate
	})
	if sharedErr != nil {
		return nil, sharedErr
	}
	if sharedRate != config.SampleRate {
		return nil, fmt.Errorf("audio device already opened at %d Hz", sharedRate)
	}
	return sharedCtx, nil
}

// Player is a Sink backed by the system audio device.
type Player struct {
	context *oto.Context
	config  PlayerConfig

	mu     sync.Mutex
	player *oto.Player
	// data backs the reader of player and must outlive it.
	data   []byte
	stopCh chan struct{}

	state  atomic.Int32
	volume atomic.Uint64

	startTime  time.Time
	pauseStart time.Time
	totalPause time.Duration
	duration   time.Duration
}

// NewPlayer opens the audio device.
func NewPlayer(config PlayerConfig) (*Player, error) {
	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	ctx, err := otoContext(config)
	if err != nil {
		return nil, err
	}

	p := &Player{context: ctx, config: config}
	p.state.Store(int32(StateStopped))
	p.volume.Store(math.Float64bits(1))
	return p, nil
}

// Play implements Sink.
func (p *Player) Play(ctx context.Context, samples []float32) error {
	if len(samples) == 0 {
		return nil
	}

	p.mu.Lock()
	if p.State() == StateClosed {
		p.mu.Unlock()
		return ErrClosed
	}
	p.stopLocked()

	data := PCM16(samples)
	op := p.context.NewPlayer(bytes.NewReader(data))
	op.SetVolume(p.Volume())

	stop := make(chan struct{})
	p.player = op
	p.data = data
	p.stopCh = stop
	p.startTime = time.Now()
	p.totalPause = 0
	p.duration = Duration(len(samples), p.config.SampleRate)
	p.state.Store(int32(StatePlaying))
	op.Play()
	p.mu.Unlock()

	ticker := time.NewTicker(p.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = p.Stop()
			return ctx.Err()
		case <-stop:
			return ErrStopped
		case <-ticker.C:
			done, err := p.poll(op)
			if done {
				return err
			}
		}
	}
}

// poll reports whether op has finished, releasing it if so.
func (p *Player) poll(op *oto.Player) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.player != op {
		return true, ErrStopped
	}
	if p.State() == StatePaused || op.IsPlaying() {
		return false, nil
	}

	err := op.Err()
	_ = op.Close()
	p.player = nil
	p.data = nil
	p.state.Store(int32(StateStopped))
	if err != nil {
		return true, fmt.Errorf("playback failed: %w", err)
	}
	return true, nil
}

// Pause pauses the current playback.
func (p *Player) Pause() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if s := p.State(); s != StatePlaying {
		return fmt.Errorf("cannot pause: player is %s", s)
	}
	p.player.Pause()
	p.pauseStart = time.Now()
	p.state.Store(int32(StatePaused))
	return nil
}

// Resume resumes paused playback.
func (p *Player) Resume() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if s := p.State(); s != StatePaused {
		return fmt.Errorf("cannot resume: player is %s", s)
	}
	p.totalPause += time.Since(p.pauseStart)
	p.player.Play()
	p.state.Store(int32(StatePlaying))
	return nil
}

// Stop stops playback. A blocked Play returns ErrStopped.
func (p *Player) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopLocked()
	return nil
}

func (p *Player) stopLocked() {
	if p.player != nil {
		p.player.Pause()
		_ = p.player.Close()
		p.player = nil
		p.data = nil
	}
	if p.stopCh != nil {
		close(p.stopCh)
		p.stopCh = nil
	}
	if p.State() != StateClosed {
		p.state.Store(int32(StateStopped))
	}
}

// SetVolume sets the playback volume (0.0 to 1.0).
func (p *Player) SetVolume(volume float64) error {
	if volume < 0.0 || volume > 1.0 {
		return fmt.Errorf("volume must be between 0.0 and 1.0, got %f", volume)
	}
	p.volume.Store(math.Float64bits(volume))

	p.mu.Lock()
	if p.player != nil {
		p.player.SetVolume(volume)
	}
	p.mu.Unlock()
	return nil
}

// Volume returns the current volume.
func (p *Player) Volume() float64 {
	return math.Float64frombits(p.volume.Load())
}

// State returns the current player state.
func (p *Player) State() PlayerState {
	return PlayerState(p.state.Load())
}

// Position returns the elapsed playback time of the current buffer.
func (p *Player) Position() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()

	var pos time.Duration
	switch p.State() {
	case StatePlaying:
		pos = time.Since(p.startTime) - p.totalPause
	case StatePaused:
		pos = p.pauseStart.Sub(p.startTime) - p.totalPause
	default:
		return 0
	}
	if pos > p.duration {
		pos = p.duration
	}
	return pos
}

// SampleRate returns the device sample rate.
func (p *Player) SampleRate() int {
	return p.config.SampleRate
}

// Close stops playback. The shared device stays open for the process.
func (p *Player) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopLocked()
	p.state.Store(int32(StateClosed))
	return nil
}
