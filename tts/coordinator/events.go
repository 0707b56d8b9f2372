package coordinator

import (
	"sync"

	"github.com/dgnsrekt/voxkit/tts"
)

// eventPump delivers events to one handler in FIFO order. push never
// blocks, so backends can report while the coordinator holds its locks.
type eventPump struct {
	handler tts.EventHandler

	mu      sync.Mutex
	cond    *sync.Cond
	pending []tts.Event
	closed  bool
	done    chan struct{}
}

func newEventPump(h tts.EventHandler) *eventPump {
	p := &eventPump{handler: h, done: make(chan struct{})}
	p.cond = sync.NewCond(&p.mu)
	go p.run()
	return p
}

func (p *eventPump) push(ev tts.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.pending = append(p.pending, ev)
	p.cond.Signal()
}

func (p *eventPump) run() {
	defer close(p.done)
	for {
		p.mu.Lock()
		for len(p.pending) == 0 && !p.closed {
			p.cond.Wait()
		}
		if len(p.pending) == 0 {
			p.mu.Unlock()
			return
		}
		batch := p.pending
		p.pending = nil
		p.mu.Unlock()

		for _, ev := range batch {
			if p.handler != nil {
				p.handler(ev)
			}
		}
	}
}

// close delivers everything already pushed and then stops the pump. It
// must not be called from the handler.
func (p *eventPump) close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		<-p.done
		return
	}
	p.closed = true
	p.cond.Signal()
	p.mu.Unlock()
	<-p.done
}
