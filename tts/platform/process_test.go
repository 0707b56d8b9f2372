//go:build !windows

package platform

import (
	"context"
	"os/exec"
	"sync"
	"testing"
	"time"

	"github.com/dgnsrekt/voxkit/tts"
)

type notes struct {
	mu  sync.Mutex
	all []Notification
}

func (n *notes) add(x Notification) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.all = append(n.all, x)
}

func (n *notes) last() (Notification, int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.all) == 0 {
		return Notification{}, 0
	}
	return n.all[len(n.all)-1], len(n.all)
}

func shellProcess(t *testing.T, script string) *Process {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	p := newProcess("sh", nil, "sh")
	p.args = func(Utterance) []string { return []string{"-c", script} }
	p.canPause = canSignal
	if err := p.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	return p
}

func waitNote(t *testing.T, n *notes, typ tts.EventType) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if last, _ := n.last(); last.Type == typ {
			return
		}
		time.Sleep(time.Millisecond)
	}
	last, _ := n.last()
	t.Fatalf("last notification = %v, want %v", last.Type, typ)
}

func TestProcessCompletes(t *testing.T) {
	p := shellProcess(t, "cat >/dev/null")
	n := &notes{}
	p.SetListener(n.add)

	if err := p.Speak("u1", Utterance{Text: "hello"}); err != nil {
		t.Fatalf("Speak failed: %v", err)
	}
	waitNote(t, n, tts.EventDone)
	if first := n.all[0]; first.Type != tts.EventStart || first.ID != "u1" {
		t.Errorf("first notification = %+v", first)
	}
}

func TestProcessFailureReportsStderr(t *testing.T) {
	p := shellProcess(t, "echo boom >&2; exit 3")
	n := &notes{}
	p.SetListener(n.add)

	_ = p.Speak("u1", Utterance{Text: "x"})
	waitNote(t, n, tts.EventError)
	last, _ := n.last()
	if tts.KindOf(last.Err) != tts.KindEngineError {
		t.Errorf("error kind = %v", tts.KindOf(last.Err))
	}
}

func TestProcessCancelAll(t *testing.T) {
	p := shellProcess(t, "sleep 10")
	n := &notes{}
	p.SetListener(n.add)

	_ = p.Speak("u1", Utterance{Text: "x"})
	if err := p.Speak("u2", Utterance{Text: "y"}); tts.KindOf(err) != tts.KindEngineError {
		t.Errorf("second Speak = %v, want ENGINE_ERROR", err)
	}
	if err := p.Pause(); err != nil {
		t.Fatalf("Pause failed: %v", err)
	}
	if !p.IsPaused() {
		t.Error("IsPaused should be true")
	}

	start := time.Now()
	if err := p.CancelAll(); err != nil {
		t.Fatalf("CancelAll failed: %v", err)
	}
	if time.Since(start) > 5*time.Second {
		t.Error("CancelAll waited for the process to finish")
	}
	last, count := n.last()
	if last.Type != tts.EventCancelled {
		t.Errorf("last notification = %v, want cancelled", last.Type)
	}
	if count != 3 {
		t.Errorf("got %d notifications, want start, paused, cancelled", count)
	}
	if p.IsSpeaking() {
		t.Error("IsSpeaking should be false after CancelAll")
	}
}

func TestProcessMissingBinary(t *testing.T) {
	p := newProcess("none", nil, "voxkit-no-such-binary")
	if err := p.Initialize(context.Background()); tts.KindOf(err) != tts.KindNotSupported {
		t.Errorf("Initialize = %v, want NOT_SUPPORTED", err)
	}
	if err := p.Speak("u1", Utterance{Text: "x"}); tts.KindOf(err) != tts.KindNotInitialized {
		t.Errorf("Speak = %v, want NOT_INITIALIZED", err)
	}
}
