package coordinator

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dgnsrekt/voxkit/internal/logging"
	"github.com/dgnsrekt/voxkit/internal/queue"
	"github.com/dgnsrekt/voxkit/tts"
)

// Poll interval bounds for the dispatch loop.
const (
	DefaultPollInterval = 50 * time.Millisecond
	MinPollInterval     = 10 * time.Millisecond
	MaxPollInterval     = time.Second
)

var (
	// ErrUnavailable is returned by every call once the platform has
	// reported that it has no speech support.
	ErrUnavailable = tts.NewError(tts.KindNotSupported, "speech is not available on this platform", nil)

	// ErrNoNeuralBackend is returned by SwitchToNeural when the coordinator
	// was built without one.
	ErrNoNeuralBackend = tts.NewError(tts.KindNotSupported, "no neural backend configured", nil)
)

// ModelRegistry looks up model descriptors.
type ModelRegistry interface {
	ListAvailableModels() []tts.ModelDescriptor
	GetModelByID(id string) (tts.ModelDescriptor, bool)
}

// ModelStorage locates installed models. ModelPath returns "" when the
// model is not installed.
type ModelStorage interface {
	ModelPath(id string) string
}

// Stats summarises queue and dispatch activity.
type Stats struct {
	Backend       tts.BackendType
	QueueSize     int
	PeakQueueSize int
	Enqueued      int64
	Evicted       int64
	Rejected      int64
	Dispatched    int64
	Completed     int64
	Cancelled     int64
	Failed        int64
	Switches      int64
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithNeuralBackend enables SwitchToNeural.
func WithNeuralBackend(b tts.NeuralBackend) Option {
	return func(c *Coordinator) { c.neural = b }
}

// WithModelRegistry sets where SwitchToNeural looks up model ids.
func WithModelRegistry(r ModelRegistry) Option {
	return func(c *Coordinator) { c.registry = r }
}

// WithModelStorage sets where SwitchToNeural finds installed models.
func WithModelStorage(s ModelStorage) Option {
	return func(c *Coordinator) { c.storage = s }
}

// WithQueueCapacity bounds the utterance queue.
func WithQueueCapacity(n int) Option {
	return func(c *Coordinator) { c.capacity = n }
}

// WithPollInterval sets how often the dispatch loop checks for work. It is
// clamped to [MinPollInterval, MaxPollInterval].
func WithPollInterval(d time.Duration) Option {
	return func(c *Coordinator) { c.poll = d }
}

// WithEventHandler registers the single event subscriber.
func WithEventHandler(h tts.EventHandler) Option {
	return func(c *Coordinator) { c.handler = h }
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(c *Coordinator) { c.log = logging.OrDefault(l, "coordinator") }
}

// WithSpeech sets the initial voice and speech parameters. An empty voice
// selects the backend's first voice.
func WithSpeech(cfg tts.SpeechConfig) Option {
	return func(c *Coordinator) {
		c.rate = tts.ClampRate(cfg.Rate)
		c.pitch = tts.ClampPitch(cfg.Pitch)
		c.volume = tts.ClampVolume(cfg.Volume)
		c.voice = tts.Voice{ID: cfg.Voice}
	}
}

// Coordinator queues utterances and dispatches them to the active backend.
type Coordinator struct {
	platform tts.Backend
	neural   tts.NeuralBackend
	registry ModelRegistry
	storage  ModelStorage
	handler  tts.EventHandler
	log      *log.Logger
	capacity int
	poll     time.Duration

	queue *queue.UtteranceQueue
	state *tts.StateMachine

	// lifecycleMu serialises Initialize, Shutdown and backend switches.
	lifecycleMu sync.Mutex
	stopLoop    context.CancelFunc
	loopDone    chan struct{}

	backendMu sync.RWMutex
	active    tts.Backend
	gen       atomic.Uint64

	pump atomic.Pointer[eventPump]

	settingsMu sync.Mutex
	voice      tts.Voice
	rate       float64
	pitch      float64
	volume     float64

	evictMu sync.Mutex
	evicted []queue.Item

	dispatched atomic.Int64
	completed  atomic.Int64
	cancelled  atomic.Int64
	failed     atomic.Int64
	switches   atomic.Int64
}

// New creates a coordinator around the platform backend. It does nothing
// until Initialize is called.
func New(platform tts.Backend, opts ...Option) *Coordinator {
	c := &Coordinator{
		platform: platform,
		log:      logging.OrDefault(nil, "coordinator"),
		poll:     DefaultPollInterval,
		state:    tts.NewStateMachine(),
		rate:     tts.DefaultRate,
		pitch:    tts.DefaultPitch,
		volume:   tts.DefaultVolume,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.poll = clampPoll(c.poll)
	c.queue = queue.New(c.capacity, queue.WithEvictionHandler(c.onEvict))
	return c
}

func clampPoll(d time.Duration) time.Duration {
	switch {
	case d <= 0:
		return DefaultPollInterval
	case d < MinPollInterval:
		return MinPollInterval
	case d > MaxPollInterval:
		return MaxPollInterval
	}
	return d
}

// PollInterval returns the effective dispatch interval.
func (c *Coordinator) PollInterval() time.Duration { return c.poll }

// Initialize prepares the platform backend and starts dispatching. It is a
// no-op when already Ready.
func (c *Coordinator) Initialize(ctx context.Context) error {
	c.lifecycleMu.Lock()
	defer c.lifecycleMu.Unlock()

	switch c.state.Current() {
	case tts.StateReady:
		return nil
	case tts.StateUnavailable:
		return ErrUnavailable
	}
	if err := c.state.Transition(tts.StateInitializing); err != nil {
		return tts.Wrap(tts.KindEngineError, "cannot initialize", err)
	}

	if err := c.platform.Initialize(ctx); err != nil {
		if tts.KindOf(err) == tts.KindNotSupported {
			c.state.Force(tts.StateUnavailable)
			c.log.Warn("Speech is not available on this platform", "error", err)
			return tts.Wrap(tts.KindNotSupported, "platform speech unavailable", err)
		}
		c.state.Force(tts.StateError)
		c.log.Error("Platform backend failed to initialize", "error", err)
		return tts.Wrap(tts.KindEngineError, "platform backend failed to initialize", err)
	}

	c.pump.Store(newEventPump(c.handler))

	c.backendMu.Lock()
	c.attach(c.platform)
	c.backendMu.Unlock()
	c.applySettings(c.platform)
	c.refreshVoice(c.platform, "")

	loopCtx, cancel := context.WithCancel(context.Background())
	c.stopLoop = cancel
	c.loopDone = make(chan struct{})
	go c.run(loopCtx, c.loopDone)

	if err := c.state.Transition(tts.StateReady); err != nil {
		return tts.Wrap(tts.KindEngineError, "cannot initialize", err)
	}
	c.log.Info("Coordinator ready", "backend", c.platform.Type(), "poll", c.poll)
	return nil
}

// Shutdown stops dispatching, cancels everything queued or speaking and
// shuts both backends down. It is safe to call repeatedly, and Initialize
// may be called again afterwards. It must not be called from the event
// handler.
func (c *Coordinator) Shutdown() error {
	c.lifecycleMu.Lock()
	defer c.lifecycleMu.Unlock()

	switch c.state.Current() {
	case tts.StateUninitialized, tts.StateUnavailable:
		return nil
	}

	if c.stopLoop != nil {
		c.stopLoop()
		<-c.loopDone
		c.stopLoop = nil
	}
	// Callers racing with the backend shutdowns below see ErrNotInitialized.
	c.state.Force(tts.StateUninitialized)

	c.cancelItems(c.queue.Clear())

	c.backendMu.Lock()
	if c.active != nil {
		if err := c.active.Stop(); err != nil {
			c.log.Warn("Failed to stop backend", "backend", c.active.Type(), "error", err)
		}
		c.active.SetEventHandler(nil)
		c.active = nil
		c.gen.Add(1)
	}
	c.backendMu.Unlock()

	var first error
	if err := c.platform.Shutdown(); err != nil {
		first = err
	}
	if c.neural != nil {
		if err := c.neural.Shutdown(); err != nil && first == nil {
			first = err
		}
	}

	if p := c.pump.Swap(nil); p != nil {
		p.close()
	}
	c.state.Force(tts.StateUninitialized)
	c.log.Info("Coordinator shut down")

	if first != nil {
		return tts.Wrap(tts.KindEngineError, "backend shutdown failed", first)
	}
	return nil
}

// ready returns nil when operations are allowed.
func (c *Coordinator) ready() error {
	switch c.state.Current() {
	case tts.StateReady:
		return nil
	case tts.StateUnavailable:
		return ErrUnavailable
	default:
		return tts.ErrNotInitialized
	}
}

// Speak queues req and returns its utterance id. An Urgent request cancels
// everything below Urgent and interrupts the current utterance.
func (c *Coordinator) Speak(req tts.Request) (string, error) {
	if err := c.ready(); err != nil {
		return "", err
	}

	if req.Priority() == tts.PriorityUrgent {
		c.cancelItems(c.queue.ClearBelow(tts.PriorityUrgent))

		// The write lock waits out a dispatch that is still inside Speak.
		c.backendMu.Lock()
		if c.active != nil {
			if err := c.active.Stop(); err != nil {
				c.log.Warn("Failed to interrupt for urgent utterance", "error", err)
			}
		}
		c.backendMu.Unlock()
	}

	id, err := c.queue.Enqueue(req)
	c.flushEvicted()
	if err != nil {
		c.log.Warn("Utterance rejected", "priority", req.Priority(), "queued", c.queue.Size())
		return "", err
	}
	c.log.Debug("Utterance queued", "id", id, "priority", req.Priority())
	return id, nil
}

// SpeakText queues text at the given priority.
func (c *Coordinator) SpeakText(text string, priority tts.Priority) (string, error) {
	req, err := tts.NewRequest(text, tts.WithPriority(priority))
	if err != nil {
		return "", err
	}
	return c.Speak(req)
}

// Pause pauses the current utterance. Backends that cannot pause ignore it.
func (c *Coordinator) Pause() error {
	if err := c.ready(); err != nil {
		return err
	}
	c.backendMu.RLock()
	defer c.backendMu.RUnlock()

	if c.active == nil {
		return tts.ErrNotInitialized
	}
	if !c.active.SupportsPause() {
		c.log.Info("Pause is not supported by the active backend", "backend", c.active.Type())
		return nil
	}
	return c.active.Pause()
}

// Resume continues a paused utterance.
func (c *Coordinator) Resume() error {
	if err := c.ready(); err != nil {
		return err
	}
	c.backendMu.RLock()
	defer c.backendMu.RUnlock()

	if c.active == nil {
		return tts.ErrNotInitialized
	}
	if !c.active.SupportsPause() {
		c.log.Info("Resume is not supported by the active backend", "backend", c.active.Type())
		return nil
	}
	return c.active.Resume()
}

// Stop interrupts the current utterance. Queued utterances still play.
func (c *Coordinator) Stop() error {
	if err := c.ready(); err != nil {
		return err
	}
	c.backendMu.RLock()
	defer c.backendMu.RUnlock()
	if c.active == nil {
		return tts.ErrNotInitialized
	}
	return c.active.Stop()
}

// StopAll clears the queue and interrupts the current utterance.
func (c *Coordinator) StopAll() error {
	if err := c.ready(); err != nil {
		return err
	}
	c.cancelItems(c.queue.Clear())
	return c.Stop()
}

// SetVoice selects a voice on the active backend.
func (c *Coordinator) SetVoice(voice tts.Voice) error {
	if err := c.ready(); err != nil {
		return err
	}
	c.backendMu.RLock()
	var err error = tts.ErrNotInitialized
	if c.active != nil {
		err = c.active.SetVoice(voice)
	}
	c.backendMu.RUnlock()
	if err != nil {
		return err
	}

	c.settingsMu.Lock()
	c.voice = voice
	c.settingsMu.Unlock()
	return nil
}

// SetVoiceStyle selects a style of the loaded neural model.
func (c *Coordinator) SetVoiceStyle(name string) error {
	if err := c.ready(); err != nil {
		return err
	}
	if c.neural == nil || c.ActiveBackend() != tts.BackendNeural {
		return tts.NewError(tts.KindNotSupported, "voice styles need the neural backend", nil).
			WithContext("style", name)
	}
	if err := c.neural.SetStyle(name); err != nil {
		return err
	}
	c.refreshVoice(c.neural, name)
	return nil
}

// SetSpeechRate clamps rate to [0.5, 2], applies it and returns the value
// used.
func (c *Coordinator) SetSpeechRate(rate float64) (float64, error) {
	rate = tts.ClampRate(rate)
	c.settingsMu.Lock()
	c.rate = rate
	c.settingsMu.Unlock()
	return rate, c.forward(func(b tts.Backend) error { return b.SetRate(rate) })
}

// SetPitch clamps pitch to [0.5, 2], applies it and returns the value used.
func (c *Coordinator) SetPitch(pitch float64) (float64, error) {
	pitch = tts.ClampPitch(pitch)
	c.settingsMu.Lock()
	c.pitch = pitch
	c.settingsMu.Unlock()
	return pitch, c.forward(func(b tts.Backend) error { return b.SetPitch(pitch) })
}

// SetVolume clamps volume to [0, 1], applies it and returns the value used.
func (c *Coordinator) SetVolume(volume float64) (float64, error) {
	volume = tts.ClampVolume(volume)
	c.settingsMu.Lock()
	c.volume = volume
	c.settingsMu.Unlock()
	return volume, c.forward(func(b tts.Backend) error { return b.SetVolume(volume) })
}

// forward applies a setting to the active backend if there is one. Values
// set before Initialize are applied when a backend is attached.
func (c *Coordinator) forward(fn func(tts.Backend) error) error {
	c.backendMu.RLock()
	defer c.backendMu.RUnlock()
	if c.active == nil {
		return nil
	}
	return fn(c.active)
}

func (c *Coordinator) applySettings(b tts.Backend) {
	c.settingsMu.Lock()
	rate, pitch, volume := c.rate, c.pitch, c.volume
	c.settingsMu.Unlock()

	for name, err := range map[string]error{
		"rate":   b.SetRate(rate),
		"pitch":  b.SetPitch(pitch),
		"volume": b.SetVolume(volume),
	} {
		if err != nil {
			c.log.Warn("Backend rejected setting", "setting", name, "backend", b.Type(), "error", err)
		}
	}
}

// refreshVoice selects the voice for style when one is given. Otherwise it
// keeps the current voice if b offers it. Failing both it falls back to b's
// first voice.
func (c *Coordinator) refreshVoice(b tts.Backend, style string) {
	voices := b.Voices()

	c.settingsMu.Lock()
	defer c.settingsMu.Unlock()

	if style != "" {
		for _, v := range voices {
			if v.Style() == style {
				c.voice = v
				return
			}
		}
	} else if v, ok := tts.FindVoice(voices, c.voice.ID); ok && b.SetVoice(v) == nil {
		c.voice = v
		return
	}
	if len(voices) > 0 {
		c.voice = voices[0]
		return
	}
	c.voice = tts.Voice{}
}

// SwitchToNeural loads modelID on the neural backend and makes it active.
// On failure the previous backend stays active.
func (c *Coordinator) SwitchToNeural(ctx context.Context, modelID string) error {
	c.lifecycleMu.Lock()
	defer c.lifecycleMu.Unlock()

	if err := c.ready(); err != nil {
		return err
	}
	if c.neural == nil {
		return ErrNoNeuralBackend
	}

	desc, ok := c.GetModelByID(modelID)
	if !ok {
		return tts.NewError(tts.KindModelNotFound, "unknown model", nil).WithContext("model", modelID)
	}
	dir := ""
	if c.storage != nil {
		dir = c.storage.ModelPath(modelID)
	}
	if dir == "" {
		return tts.NewError(tts.KindModelNotFound, "model is not installed", nil).WithContext("model", modelID)
	}

	if c.neural.State() != tts.StateReady {
		if err := c.neural.Initialize(ctx); err != nil {
			return tts.Wrap(tts.KindEngineError, "neural backend failed to initialize", err)
		}
	}
	if loaded, ok := c.neural.LoadedModel(); !ok || loaded.ID != modelID {
		if err := c.neural.LoadModel(ctx, dir, desc); err != nil {
			return tts.Wrap(tts.KindModelLoadError, "failed to load model", err)
		}
	}

	c.applySettings(c.neural)
	c.swap(c.neural)
	c.refreshVoice(c.neural, desc.DefaultStyle)
	c.log.Info("Switched to neural backend", "model", modelID, "dir", dir)
	return nil
}

// SwitchToNative makes the platform backend active again. The neural model
// stays loaded.
func (c *Coordinator) SwitchToNative(ctx context.Context) error {
	c.lifecycleMu.Lock()
	defer c.lifecycleMu.Unlock()

	if err := c.ready(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	c.applySettings(c.platform)
	c.swap(c.platform)
	c.refreshVoice(c.platform, "")
	c.log.Info("Switched to native backend")
	return nil
}

// swap replaces the active backend. The old backend is stopped while its
// handler is still attached, so the interrupted utterance reports exactly
// one Cancelled event. Events from earlier generations are dropped.
func (c *Coordinator) swap(next tts.Backend) {
	c.backendMu.Lock()
	defer c.backendMu.Unlock()

	old := c.active
	if old == next {
		return
	}
	if old != nil {
		if err := old.Stop(); err != nil {
			c.log.Warn("Failed to stop backend during switch", "backend", old.Type(), "error", err)
		}
		old.SetEventHandler(nil)
	}
	c.attach(next)
	c.switches.Add(1)
}

// attach installs a generation-tagged handler on b and makes it active.
// The caller holds backendMu for writing.
func (c *Coordinator) attach(b tts.Backend) {
	g := c.gen.Add(1)
	b.SetEventHandler(func(ev tts.Event) { c.onBackendEvent(g, ev) })
	c.active = b
}

// onBackendEvent must not take backendMu: backends report from inside
// Stop, which runs under it.
func (c *Coordinator) onBackendEvent(gen uint64, ev tts.Event) {
	if gen != c.gen.Load() {
		c.log.Debug("Dropping event from detached backend", "type", ev.Type, "id", ev.UtteranceID)
		return
	}
	c.emit(ev)
}

func (c *Coordinator) emit(ev tts.Event) {
	switch ev.Type {
	case tts.EventDone:
		c.completed.Add(1)
	case tts.EventCancelled:
		c.cancelled.Add(1)
	case tts.EventError:
		c.failed.Add(1)
	}
	if p := c.pump.Load(); p != nil {
		p.push(ev)
	}
}

// onEvict runs under the queue lock, so it only records the item.
func (c *Coordinator) onEvict(item queue.Item) {
	c.evictMu.Lock()
	c.evicted = append(c.evicted, item)
	c.evictMu.Unlock()
}

func (c *Coordinator) flushEvicted() {
	c.evictMu.Lock()
	items := c.evicted
	c.evicted = nil
	c.evictMu.Unlock()

	for _, item := range items {
		c.log.Debug("Utterance evicted", "id", item.ID, "priority", item.Priority())
	}
	c.cancelItems(items)
}

// cancelItems reports queued items that will never be spoken.
func (c *Coordinator) cancelItems(items []queue.Item) {
	backend := c.ActiveBackend()
	for _, item := range items {
		ev := tts.NewEvent(tts.EventCancelled, item.ID, backend)
		ev.Tag = item.Request.Tag()
		c.emit(ev)
	}
}

func (c *Coordinator) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(c.poll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for c.dispatch() {
			}
		}
	}
}

// dispatch hands the next queued utterance to the active backend. It
// reports whether another dispatch might succeed straight away.
func (c *Coordinator) dispatch() bool {
	if c.state.Current() != tts.StateReady {
		return false
	}

	c.backendMu.RLock()
	defer c.backendMu.RUnlock()

	b := c.active
	if b == nil || b.IsSpeaking() {
		return false
	}
	item, ok := c.queue.Dequeue()
	if !ok {
		return false
	}

	c.dispatched.Add(1)
	if err := b.Speak(item.Request, item.ID); err != nil {
		c.log.Error("Backend rejected utterance", "id", item.ID, "backend", b.Type(), "error", err)
		ev := tts.NewEvent(tts.EventError, item.ID, b.Type())
		ev.Tag = item.Request.Tag()
		ev.Err = err
		c.emit(ev)
		return true
	}
	c.log.Debug("Utterance dispatched", "id", item.ID, "backend", b.Type())
	return false
}

// State returns the coordinator lifecycle state.
func (c *Coordinator) State() tts.EngineState { return c.state.Current() }

// IsSpeaking reports whether the active backend has an utterance in flight.
func (c *Coordinator) IsSpeaking() bool {
	c.backendMu.RLock()
	defer c.backendMu.RUnlock()
	return c.active != nil && c.active.IsSpeaking()
}

// Progress returns the progress of the current utterance.
func (c *Coordinator) Progress() float64 {
	c.backendMu.RLock()
	defer c.backendMu.RUnlock()
	if c.active == nil {
		return 0
	}
	return c.active.Progress()
}

// CurrentVoice returns the selected voice.
func (c *Coordinator) CurrentVoice() tts.Voice {
	c.settingsMu.Lock()
	defer c.settingsMu.Unlock()
	return c.voice
}

// Voices lists the voices of the active backend.
func (c *Coordinator) Voices() []tts.Voice {
	c.backendMu.RLock()
	defer c.backendMu.RUnlock()
	if c.active == nil {
		return nil
	}
	return c.active.Voices()
}

// ActiveBackend returns the kind of backend utterances go to. Before
// Initialize it reports the platform backend.
func (c *Coordinator) ActiveBackend() tts.BackendType {
	c.backendMu.RLock()
	defer c.backendMu.RUnlock()
	if c.active == nil {
		return c.platform.Type()
	}
	return c.active.Type()
}

// QueueSize returns the number of queued utterances.
func (c *Coordinator) QueueSize() int { return c.queue.Size() }

// Stats returns activity counters.
func (c *Coordinator) Stats() Stats {
	q := c.queue.GetStats()
	return Stats{
		Backend:       c.ActiveBackend(),
		QueueSize:     q.CurrentSize,
		PeakQueueSize: q.PeakSize,
		Enqueued:      q.TotalEnqueued,
		Evicted:       q.TotalEvicted,
		Rejected:      q.TotalRejected,
		Dispatched:    c.dispatched.Load(),
		Completed:     c.completed.Load(),
		Cancelled:     c.cancelled.Load(),
		Failed:        c.failed.Load(),
		Switches:      c.switches.Load(),
	}
}

// ListAvailableModels returns the registry's models.
func (c *Coordinator) ListAvailableModels() []tts.ModelDescriptor {
	if c.registry == nil {
		return nil
	}
	return c.registry.ListAvailableModels()
}

// GetModelByID looks a model up in the registry.
func (c *Coordinator) GetModelByID(id string) (tts.ModelDescriptor, bool) {
	if c.registry == nil {
		return tts.ModelDescriptor{}, false
	}
	return c.registry.GetModelByID(id)
}
