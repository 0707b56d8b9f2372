package platform

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dgnsrekt/voxkit/internal/logging"
	"github.com/dgnsrekt/voxkit/tts"
)

const (
	// voiceListTimeout bounds the voice listing command.
	voiceListTimeout = 5 * time.Second
	// killWait bounds how long Wait lingers on output pipes after the
	// process is killed.
	killWait = 500 * time.Millisecond
)

// Process is a Capability that runs one command per utterance. The text is
// written to the command's stdin, which is set up before the process
// starts.
type Process struct {
	name       string
	candidates []string
	args       func(u Utterance) []string
	input      func(u Utterance) string
	voices     func(out []byte) []tts.Voice
	voiceArgs  []string
	canPause   bool
	log        *log.Logger

	mu       sync.Mutex
	binary   string
	listener func(Notification)
	run      *procRun
}

type procRun struct {
	id        string
	cmd       *exec.Cmd
	cancel    context.CancelFunc
	cancelled bool
	paused    bool
	done      chan struct{}
}

var _ Capability = (*Process)(nil)

// Name implements Capability.
func (p *Process) Name() string { return p.name }

// Binary returns the resolved executable, or "" before Initialize.
func (p *Process) Binary() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.binary
}

// Initialize implements Capability by locating the executable.
func (p *Process) Initialize(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.binary != "" {
		return nil
	}
	for _, c := range p.candidates {
		if path, err := exec.LookPath(c); err == nil {
			p.binary = path
			p.log.Debug("Speech engine found", "driver", p.name, "path", path)
			return nil
		}
	}
	return tts.NewError(tts.KindNotSupported, "speech engine not installed", nil).
		WithContext("driver", p.name).
		WithContext("candidates", strings.Join(p.candidates, ","))
}

// SetListener implements Capability.
func (p *Process) SetListener(l func(Notification)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.listener = l
}

// Speak implements Capability.
func (p *Process) Speak(id string, u Utterance) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.binary == "" {
		return tts.NewError(tts.KindNotInitialized, "speech engine not initialized", nil)
	}
	if p.run != nil {
		return tts.NewError(tts.KindEngineError, "speech engine busy", nil).
			WithContext("active", p.run.id)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cmd := exec.CommandContext(ctx, p.binary, p.args(u)...)
	if p.input != nil {
		cmd.Stdin = strings.NewReader(p.input(u))
	} else {
		cmd.Stdin = strings.NewReader(u.Text)
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	cmd.WaitDelay = killWait

	if err := cmd.Start(); err != nil {
		cancel()
		return tts.Wrap(tts.KindEngineError, "failed to start speech engine", err)
	}

	r := &procRun{id: id, cmd: cmd, cancel: cancel, done: make(chan struct{})}
	p.run = r
	go p.wait(r, &stderr)
	return nil
}

func (p *Process) wait(r *procRun, stderr *bytes.Buffer) {
	defer close(r.done)
	defer r.cancel()

	p.notify(Notification{Type: tts.EventStart, ID: r.id})
	err := r.cmd.Wait()

	p.mu.Lock()
	cancelled := r.cancelled
	if p.run == r {
		p.run = nil
	}
	p.mu.Unlock()

	switch {
	case cancelled:
		p.notify(Notification{Type: tts.EventCancelled, ID: r.id})
	case err != nil:
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			err = fmt.Errorf("%w: %s", err, msg)
		}
		p.notify(Notification{
			Type: tts.EventError,
			ID:   r.id,
			Err:  tts.Wrap(tts.KindEngineError, p.name+" failed", err),
		})
	default:
		p.notify(Notification{Type: tts.EventDone, ID: r.id, Progress: 1})
	}
}

func (p *Process) notify(n Notification) {
	p.mu.Lock()
	l := p.listener
	p.mu.Unlock()
	if l != nil {
		l(n)
	}
}

// Pause implements Capability by suspending the process.
func (p *Process) Pause() error {
	if !p.canPause {
		return tts.NewError(tts.KindNotSupported, "pause not supported", nil).
			WithContext("driver", p.name)
	}

	p.mu.Lock()
	r := p.run
	if r == nil || r.paused || r.cancelled {
		p.mu.Unlock()
		return nil
	}
	if err := suspend(r.cmd.Process); err != nil {
		p.mu.Unlock()
		return tts.Wrap(tts.KindEngineError, "failed to pause", err)
	}
	r.paused = true
	p.mu.Unlock()

	p.notify(Notification{Type: tts.EventPaused, ID: r.id})
	return nil
}

// Resume implements Capability.
func (p *Process) Resume() error {
	if !p.canPause {
		return tts.NewError(tts.KindNotSupported, "resume not supported", nil).
			WithContext("driver", p.name)
	}

	p.mu.Lock()
	r := p.run
	if r == nil || !r.paused {
		p.mu.Unlock()
		return nil
	}
	if err := resume(r.cmd.Process); err != nil {
		p.mu.Unlock()
		return tts.Wrap(tts.KindEngineError, "failed to resume", err)
	}
	r.paused = false
	p.mu.Unlock()

	p.notify(Notification{Type: tts.EventResumed, ID: r.id})
	return nil
}

// CancelAll implements Capability.
func (p *Process) CancelAll() error {
	p.mu.Lock()
	r := p.run
	if r == nil {
		p.mu.Unlock()
		return nil
	}
	r.cancelled = true
	if r.paused {
		_ = resume(r.cmd.Process)
		r.paused = false
	}
	r.cancel()
	p.mu.Unlock()

	<-r.done
	return nil
}

// Shutdown implements Capability.
func (p *Process) Shutdown() error {
	return p.CancelAll()
}

// IsSpeaking implements Capability.
func (p *Process) IsSpeaking() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.run != nil
}

// IsPaused implements Capability.
func (p *Process) IsPaused() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.run != nil && p.run.paused
}

// SupportsPause implements Capability.
func (p *Process) SupportsPause() bool { return p.canPause }

// ListVoices implements Capability.
func (p *Process) ListVoices(ctx context.Context) ([]tts.Voice, error) {
	bin := p.Binary()
	if bin == "" {
		return nil, tts.NewError(tts.KindNotInitialized, "speech engine not initialized", nil)
	}
	if p.voices == nil {
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(ctx, voiceListTimeout)
	defer cancel()
	out, err := exec.CommandContext(ctx, bin, p.voiceArgs...).Output()
	if err != nil {
		return nil, tts.NewError(tts.KindEngineError, "failed to list voices", err).
			WithContext("driver", p.name)
	}
	return p.voices(out), nil
}

func newProcess(name string, logger *log.Logger, candidates ...string) *Process {
	return &Process{
		name:       name,
		candidates: candidates,
		log:        logging.OrDefault(logger, "platform"),
	}
}
