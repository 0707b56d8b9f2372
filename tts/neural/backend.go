package neural

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"

	"github.com/charmbracelet/log"
	"github.com/dgnsrekt/voxkit/internal/audio"
	"github.com/dgnsrekt/voxkit/internal/cache"
	"github.com/dgnsrekt/voxkit/internal/logging"
	"github.com/dgnsrekt/voxkit/internal/markup"
	"github.com/dgnsrekt/voxkit/tts"
)

// DefaultChunkLength bounds the text synthesized in one pipeline run.
const DefaultChunkLength = 300

// Backend speaks requests through the neural pipeline and an audio sink.
type Backend struct {
	engine   *Engine
	sink     audio.Sink
	cache    *cache.SampleCache
	log      *log.Logger
	chunkLen int

	state    atomic.Int32
	speaking atomic.Bool
	progress atomic.Uint64
	// chunkBase and chunkSpan place the chunk being synthesized within
	// the utterance, as float64 bits.
	chunkBase atomic.Uint64
	chunkSpan atomic.Uint64

	mu      sync.Mutex
	handler tts.EventHandler
	model   tts.ModelDescriptor
	loaded  bool
	styles  []string
	style   string
	voices  []tts.Voice
	rate    float64
	pitch   float64
	volume  float64
	current *job
}

type job struct {
	id     string
	tag    string
	req    tts.Request
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	// resume is non-nil while the job is paused.
	resume chan struct{}
}

var _ tts.NeuralBackend = (*Backend)(nil)

// BackendOption configures a Backend.
type BackendOption func(*Backend)

// WithCache reuses synthesized audio across requests.
func WithCache(c *cache.SampleCache) BackendOption {
	return func(b *Backend) { b.cache = c }
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) BackendOption {
	return func(b *Backend) { b.log = logging.OrDefault(l, "neural") }
}

// WithChunkLength sets the longest text passed to one pipeline run.
func WithChunkLength(n int) BackendOption {
	return func(b *Backend) { b.chunkLen = n }
}

// NewBackend creates a neural backend playing through sink.
func NewBackend(engine *Engine, sink audio.Sink, opts ...BackendOption) *Backend {
	b := &Backend{
		engine:   engine,
		sink:     sink,
		log:      logging.OrDefault(nil, "neural"),
		chunkLen: DefaultChunkLength,
		rate:     tts.DefaultRate,
		pitch:    tts.DefaultPitch,
		volume:   tts.DefaultVolume,
	}
	for _, opt := range opts {
		opt(b)
	}
	b.state.Store(int32(tts.StateUninitialized))
	engine.SetEventHandler(b.onEngineEvent)
	return b
}

// synthesisShare is the part of a chunk's progress spent synthesizing.
const synthesisShare = 0.5

// onEngineEvent turns denoise progress into utterance progress.
func (b *Backend) onEngineEvent(ev EngineEvent) {
	switch ev.Type {
	case EngineProgress:
		if !b.speaking.Load() {
			return
		}
		base := math.Float64frombits(b.chunkBase.Load())
		span := math.Float64frombits(b.chunkSpan.Load())
		b.setProgress(base + span*synthesisShare*ev.Progress)
	case EngineFailed:
		b.log.Debug("Synthesis failed", "error", ev.Err)
	}
}

// Type implements tts.Backend.
func (b *Backend) Type() tts.BackendType { return tts.BackendNeural }

// State implements tts.Backend.
func (b *Backend) State() tts.EngineState { return tts.EngineState(b.state.Load()) }

// IsSpeaking implements tts.Backend.
func (b *Backend) IsSpeaking() bool { return b.speaking.Load() }

// Progress implements tts.Backend.
func (b *Backend) Progress() float64 { return math.Float64frombits(b.progress.Load()) }

// SupportsPause implements tts.Backend.
func (b *Backend) SupportsPause() bool { return true }

// Initialize implements tts.Backend.
func (b *Backend) Initialize(ctx context.Context) error {
	if b.State() == tts.StateReady {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := b.engine.Initialize(); err != nil {
		b.state.Store(int32(tts.StateError))
		return err
	}
	b.state.Store(int32(tts.StateReady))
	return nil
}

// SetEventHandler implements tts.Backend.
func (b *Backend) SetEventHandler(h tts.EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handler = h
}

// LoadModel implements tts.NeuralBackend.
func (b *Backend) LoadModel(ctx context.Context, dir string, desc tts.ModelDescriptor) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if b.State() != tts.StateReady {
		return tts.NewError(tts.KindNotInitialized, "neural backend not initialized", nil)
	}
	_ = b.Stop()

	if err := b.engine.LoadModel(dir); err != nil {
		return err
	}
	styles, err := ListStyles(dir)
	if err != nil || len(styles) == 0 {
		b.engine.UnloadModel()
		return tts.NewError(tts.KindModelLoadError, "model has no voice styles", err).
			WithContext("model", desc.ID)
	}

	style := styles[0]
	for _, s := range styles {
		if s == desc.DefaultStyle {
			style = s
		}
	}
	if _, err := b.engine.Style(style); err != nil {
		b.engine.UnloadModel()
		return tts.Wrap(tts.KindModelLoadError, "failed to load default style", err)
	}

	b.mu.Lock()
	b.model = desc
	b.loaded = true
	b.styles = styles
	b.style = style
	b.voices = voicesFor(desc, styles)
	b.mu.Unlock()

	b.log.Info("Neural model ready", "model", desc.ID, "styles", len(styles), "style", style)
	return nil
}

func voicesFor(desc tts.ModelDescriptor, styles []string) []tts.Voice {
	voices := make([]tts.Voice, 0, len(styles))
	for _, s := range styles {
		voices = append(voices, tts.Voice{
			ID:       desc.ID + ":" + s,
			Name:     fmt.Sprintf("%s (%s)", desc.Name, s),
			Language: desc.Language,
			Gender:   styleGender(s),
			Backend:  tts.BackendNeural,
			Quality:  tts.QualityHigh,
			Metadata: map[string]string{tts.MetadataStyle: s},
			ModelID:  desc.ID,
		})
	}
	return voices
}

// styleGender reads the conventional F/M prefix of style names.
func styleGender(name string) tts.Gender {
	if name == "" {
		return tts.GenderUnknown
	}
	return tts.ParseGender(name[:1])
}

// UnloadModel implements tts.NeuralBackend.
func (b *Backend) UnloadModel() error {
	_ = b.Stop()
	b.engine.UnloadModel()

	b.mu.Lock()
	defer b.mu.Unlock()
	b.model = tts.ModelDescriptor{}
	b.loaded = false
	b.styles = nil
	b.style = ""
	b.voices = nil
	return nil
}

// LoadedModel implements tts.NeuralBackend.
func (b *Backend) LoadedModel() (tts.ModelDescriptor, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.model, b.loaded
}

// Styles implements tts.NeuralBackend.
func (b *Backend) Styles() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.styles...)
}

// SetStyle implements tts.NeuralBackend.
func (b *Backend) SetStyle(name string) error {
	b.mu.Lock()
	known := contains(b.styles, name)
	b.mu.Unlock()

	if !known {
		return tts.NewError(tts.KindVoiceNotFound, "unknown voice style", nil).
			WithContext("style", name)
	}
	if _, err := b.engine.Style(name); err != nil {
		return err
	}

	b.mu.Lock()
	b.style = name
	b.mu.Unlock()
	return nil
}

// Voices implements tts.Backend.
func (b *Backend) Voices() []tts.Voice {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]tts.Voice(nil), b.voices...)
}

// SetVoice implements tts.Backend by selecting the voice's style.
func (b *Backend) SetVoice(voice tts.Voice) error {
	if voice.Backend != tts.BackendNeural || voice.Style() == "" {
		return tts.NewError(tts.KindVoiceNotFound, "not a neural voice", nil).
			WithContext("voice", voice.ID)
	}
	return b.SetStyle(voice.Style())
}

// SetRate implements tts.Backend.
func (b *Backend) SetRate(rate float64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rate = tts.ClampRate(rate)
	return nil
}

// SetPitch implements tts.Backend. The model has no pitch control, so the
// value is stored but not applied.
func (b *Backend) SetPitch(pitch float64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pitch = tts.ClampPitch(pitch)
	b.log.Debug("Pitch is not applied by neural synthesis", "pitch", b.pitch)
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
		return tts.NewError(tts.KindNotInitialized, "neural backend not initialized", nil)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.loaded {
		return tts.NewError(tts.KindModelNotFound, "no neural model loaded", nil)
	}
	if b.current != nil {
		return tts.NewError(tts.KindEngineError, "utterance already in progress", nil).
			WithContext("active", b.current.id)
	}

	ctx, cancel := context.WithCancel(context.Background())
	j := &job{
		id:     id,
		tag:    req.Tag(),
		req:    req,
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	b.current = j
	b.speaking.Store(true)
	b.setProgress(0)

	go b.run(j)
	return nil
}

func (b *Backend) run(j *job) {
	defer close(j.done)

	b.emit(j, tts.EventStart, 0, nil)
	err := b.speakJob(j)

	switch {
	case err == nil:
		b.setProgress(1)
		b.emit(j, tts.EventDone, 1, nil)
	case j.ctx.Err() != nil || errors.Is(err, audio.ErrStopped) || tts.KindOf(err) == tts.KindCancelled:
		b.emit(j, tts.EventCancelled, b.Progress(), nil)
	default:
		b.log.Error("Utterance failed", "id", j.id, "error", err)
		b.emit(j, tts.EventError, b.Progress(), err)
	}

	b.mu.Lock()
	if b.current == j {
		b.current = nil
	}
	b.mu.Unlock()
	b.speaking.Store(false)
	j.cancel()
}

func (b *Backend) speakJob(j *job) error {
	b.mu.Lock()
	model := b.model.ID
	style := b.style
	rate := j.req.RateOr(b.rate)
	volume := j.req.VolumeOr(b.volume)
	if v, ok := tts.FindVoice(b.voices, j.req.VoiceID()); ok {
		style = v.Style()
	}
	b.mu.Unlock()

	chunks := markup.SplitSentences(markup.Speakable(j.req), b.chunkLen)
	if len(chunks) == 0 {
		return tts.NewError(tts.KindInvalidText, "nothing to speak", nil)
	}

	span := 1 / float64(len(chunks))
	b.chunkSpan.Store(math.Float64bits(span))
	for i, chunk := range chunks {
		b.chunkBase.Store(math.Float64bits(float64(i) * span))
		samples, err := b.synthesize(j.ctx, model, style, rate, volume, chunk)
		if err != nil {
			return err
		}
		if err := b.waitIfPaused(j); err != nil {
			return err
		}
		if err := j.ctx.Err(); err != nil {
			return err
		}
		if err := b.sink.Play(j.ctx, samples); err != nil {
			return err
		}

		p := float64(i+1) / float64(len(chunks))
		b.setProgress(p)
		if i+1 < len(chunks) {
			b.emit(j, tts.EventProgress, p, nil)
		}
	}
	return nil
}

func (b *Backend) synthesize(ctx context.Context, model, style string, rate, volume float64, text string) ([]float32, error) {
	var key string
	if b.cache != nil {
		key = cache.Key(model, style, rate, volume, text)
		if samples, ok := b.cache.Get(key); ok {
			return samples, nil
		}
	}

	samples, err := b.engine.Synthesize(ctx, text, style, rate, volume)
	if err != nil {
		return nil, err
	}

	if b.cache != nil {
		if err := b.cache.Put(key, samples); err != nil {
			b.log.Warn("Failed to cache audio", "error", err)
		}
	}
	return samples, nil
}

func (b *Backend) waitIfPaused(j *job) error {
	b.mu.Lock()
	resume := j.resume
	b.mu.Unlock()

	if resume == nil {
		return nil
	}
	select {
	case <-resume:
		return nil
	case <-j.ctx.Done():
		return j.ctx.Err()
	}
}

// Pause implements tts.Backend. Pausing during synthesis holds playback
// until Resume.
func (b *Backend) Pause() error {
	b.mu.Lock()
	j := b.current
	if j == nil || j.resume != nil {
		b.mu.Unlock()
		return nil
	}
	j.resume = make(chan struct{})
	b.mu.Unlock()

	if b.sink.State() == audio.StatePlaying {
		if err := b.sink.Pause(); err != nil {
			b.log.Debug("Sink pause failed", "error", err)
		}
	}
	b.emit(j, tts.EventPaused, b.Progress(), nil)
	return nil
}

// Resume implements tts.Backend.
func (b *Backend) Resume() error {
	b.mu.Lock()
	j := b.current
	if j == nil || j.resume == nil {
		b.mu.Unlock()
		return nil
	}
	close(j.resume)
	j.resume = nil
	b.mu.Unlock()

	if b.sink.State() == audio.StatePaused {
		if err := b.sink.Resume(); err != nil {
			b.log.Debug("Sink resume failed", "error", err)
		}
	}
	b.emit(j, tts.EventResumed, b.Progress(), nil)
	return nil
}

// Stop implements tts.Backend. It returns after the utterance's terminal
// event has been delivered.
func (b *Backend) Stop() error {
	b.mu.Lock()
	j := b.current
	b.mu.Unlock()

	if j == nil {
		return nil
	}
	j.cancel()
	b.engine.Stop()
	_ = b.sink.Stop()
	<-j.done
	return nil
}

// Shutdown implements tts.Backend.
func (b *Backend) Shutdown() error {
	if b.State() == tts.StateUninitialized {
		return nil
	}
	_ = b.Stop()
	_ = b.UnloadModel()
	b.engine.Shutdown()
	b.state.Store(int32(tts.StateUninitialized))
	return nil
}

func (b *Backend) emit(j *job, t tts.EventType, progress float64, err error) {
	b.mu.Lock()
	h := b.handler
	b.mu.Unlock()
	if h == nil {
		return
	}

	ev := tts.NewEvent(t, j.id, tts.BackendNeural)
	ev.Tag = j.tag
	ev.Progress = progress
	ev.Err = err
	h(ev)
}

func (b *Backend) setProgress(p float64) {
	b.progress.Store(math.Float64bits(p))
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
