package orchestrator

import (
	"context"
	"sync"
	"time"

	channerics "github.com/niceyeti/channerics/channels"
)

// Loop is the single serialization point of the control plane: an
// unbounded FIFO consumed by one goroutine. Submit never blocks the
// transport goroutines feeding it.
type Loop struct {
	orch *Orchestrator
	tick time.Duration

	mu     sync.Mutex
	queue  []Event
	notify chan struct{}
}

// NewLoop creates a loop around the orchestrator with the given tick
// period.
func NewLoop(orch *Orchestrator, tick time.Duration) *Loop {
	return &Loop{
		orch:   orch,
		tick:   tick,
		notify: make(chan struct{}, 1),
	}
}

// Submit enqueues an event. Safe to call from any goroutine.
func (l *Loop) Submit(ev Event) {
	l.mu.Lock()
	l.queue = append(l.queue, ev)
	l.mu.Unlock()
	select {
	case l.notify <- struct{}{}:
	default:
	}
}

func (l *Loop) pop() (Event, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.queue) == 0 {
		return nil, false
	}
	ev := l.queue[0]
	l.queue = l.queue[1:]
	return ev, true
}

// Run consumes events until the context ends. In-flight in-memory
// state is discarded on exit; nothing is drained or persisted.
func (l *Loop) Run(ctx context.Context) {
	done := ctx.Done()
	ticks := channerics.NewTicker(done, l.tick)
	for {
		if ev, ok := l.pop(); ok {
			l.orch.Dispatch(ev)
			continue
		}
		select {
		case <-done:
			return
		case <-l.notify:
		case <-ticks:
			l.orch.Dispatch(TickEvent{})
		}
	}
}
