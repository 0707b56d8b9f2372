package neural

import (
	"context"
	"os"
	"path/filepath"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/dgnsrekt/voxkit/internal/logging"
	"github.com/dgnsrekt/voxkit/tts"
)

// EngineEventType identifies an Engine notification.
type EngineEventType int

const (
	EngineStarted EngineEventType = iota
	EngineProgress
	EngineCompleted
	EngineFailed
)

// EngineEvent is reported for each Synthesize call.
type EngineEvent struct {
	Type     EngineEventType
	Progress float64
	Err      error
}

// Engine owns a Runtime and the currently loaded model. It synthesizes one
// text at a time and knows nothing about playback.
type Engine struct {
	rt      Runtime
	log     *log.Logger
	metrics *logging.Recorder

	mu          sync.Mutex
	initialized bool
	pipeline    *Pipeline
	dir         string
	styles      map[string]*Style
	cancel      context.CancelFunc
	onEvent     func(EngineEvent)

	// synthMu serialises graph execution and model swaps. It is always
	// taken before mu.
	synthMu sync.Mutex
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithEngineLogger sets the logger.
func WithEngineLogger(l *log.Logger) EngineOption {
	return func(e *Engine) { e.log = logging.OrDefault(l, "neural") }
}

// WithMetrics records per-stage synthesis timings.
func WithMetrics(r *logging.Recorder) EngineOption {
	return func(e *Engine) { e.metrics = r }
}

// NewEngine creates an engine running graphs on rt.
func NewEngine(rt Runtime, opts ...EngineOption) *Engine {
	e := &Engine{
		rt:  rt,
		log: logging.OrDefault(nil, "neural"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Initialize checks that a runtime is present.
func (e *Engine) Initialize() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.rt == nil {
		return tts.NewError(tts.KindEngineError, "no neural runtime available", nil)
	}
	e.initialized = true
	return nil
}

// SetEventHandler sets the callback for synthesis notifications.
func (e *Engine) SetEventHandler(h func(EngineEvent)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onEvent = h
}

// LoadModel opens the model in dir, replacing any loaded model.
func (e *Engine) LoadModel(dir string) error {
	e.Stop()
	e.synthMu.Lock()
	defer e.synthMu.Unlock()

	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.initialized {
		return tts.NewError(tts.KindNotInitialized, "neural engine not initialized", nil)
	}
	for _, f := range RequiredFiles {
		if _, err := os.Stat(filepath.Join(dir, f)); err != nil {
			return tts.NewError(tts.KindModelLoadError, "model file missing", err).
				WithContext("file", f)
		}
	}

	p, err := OpenPipeline(e.rt, dir, e.metrics)
	if err != nil {
		return tts.Wrap(tts.KindModelLoadError, "failed to load model", err)
	}

	e.unloadLocked()
	e.pipeline = p
	e.dir = dir
	e.styles = make(map[string]*Style)
	e.log.Info("Model loaded", "dir", dir, "sampleRate", p.Config().SampleRate)
	return nil
}

// UnloadModel closes the loaded model and drops cached styles.
func (e *Engine) UnloadModel() {
	e.Stop()
	e.synthMu.Lock()
	defer e.synthMu.Unlock()

	e.mu.Lock()
	defer e.mu.Unlock()
	e.unloadLocked()
}

func (e *Engine) unloadLocked() {
	if e.pipeline == nil {
		return
	}
	if err := e.pipeline.Close(); err != nil {
		e.log.Warn("Failed to close model sessions", "error", err)
	}
	e.pipeline = nil
	e.dir = ""
	e.styles = nil
}

// IsModelLoaded reports whether a model is ready for synthesis.
func (e *Engine) IsModelLoaded() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pipeline != nil
}

// ModelDir returns the directory of the loaded model.
func (e *Engine) ModelDir() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.dir
}

// SampleRate returns the loaded model's sample rate, or the default.
func (e *Engine) SampleRate() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.pipeline == nil {
		return DefaultModelConfig().SampleRate
	}
	return e.pipeline.Config().SampleRate
}

// Style returns the named style of the loaded model, loading it on first
// use.
func (e *Engine) Style(name string) (*Style, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.pipeline == nil {
		return nil, tts.NewError(tts.KindModelNotFound, "no model loaded", nil)
	}
	if s, ok := e.styles[name]; ok {
		return s, nil
	}
	s, err := LoadStyle(StylePath(e.dir, name))
	if err != nil {
		return nil, tts.NewError(tts.KindVoiceNotFound, "voice style unavailable", err).
			WithContext("style", name)
	}
	e.styles[name] = s
	return s, nil
}

// Synthesize produces samples for text with the named style. Stop aborts
// it between stages.
func (e *Engine) Synthesize(ctx context.Context, text, style string, rate, volume float64) ([]float32, error) {
	st, err := e.Style(style)
	if err != nil {
		return nil, err
	}

	e.synthMu.Lock()
	defer e.synthMu.Unlock()

	e.mu.Lock()
	p := e.pipeline
	if p == nil {
		e.mu.Unlock()
		return nil, tts.NewError(tts.KindModelNotFound, "no model loaded", nil)
	}
	ctx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	emit := e.onEvent
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		e.cancel = nil
		e.mu.Unlock()
		cancel()
	}()

	notify := func(ev EngineEvent) {
		if emit != nil {
			emit(ev)
		}
	}

	notify(EngineEvent{Type: EngineStarted})
	samples, err := p.Synthesize(ctx, text, SynthesisOptions{
		Style:  st,
		Rate:   rate,
		Volume: volume,
		Progress: func(f float64) {
			notify(EngineEvent{Type: EngineProgress, Progress: f})
		},
	})
	if err != nil {
		if tts.KindOf(err) != tts.KindCancelled {
			notify(EngineEvent{Type: EngineFailed, Err: err})
		}
		return nil, err
	}
	notify(EngineEvent{Type: EngineCompleted, Progress: 1})
	return samples, nil
}

// Stop aborts the synthesis in progress, if any.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cancel != nil {
		e.cancel()
	}
}

// Shutdown stops synthesis and unloads the model. The engine can be
// initialized again afterwards.
func (e *Engine) Shutdown() {
	e.Stop()

	e.synthMu.Lock()
	defer e.synthMu.Unlock()

	e.mu.Lock()
	defer e.mu.Unlock()

	e.unloadLocked()
	e.initialized = false
}

// Close shuts the engine down and releases the runtime.
func (e *Engine) Close() error {
	e.Shutdown()
	if e.rt != nil {
		return e.rt.Close()
	}
	return nil
}
