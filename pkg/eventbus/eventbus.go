package eventbus

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Event is anything published on the bus.
type Event interface {
	Name() string
}

// Listener handles one event. Errors are logged, never returned to the publisher.
type Listener func(ctx context.Context, event Event) error

const listenerTimeout = time.Minute

type queued struct {
	ctx   context.Context
	event Event
}

// Bus delivers events in publish order. A single dispatcher runs the
// listeners of one event one after another before moving to the next, so
// two changes to the same part always reach listeners in the order they
// were committed. Publish never blocks on listeners.
type Bus struct {
	mu        sync.Mutex
	cond      *sync.Cond
	listeners map[string][]Listener
	queue     []queued
	closed    bool
	wg        sync.WaitGroup
	done      chan struct{}
	logger    *zap.Logger
}

func New(logger *zap.Logger) *Bus {
	b := &Bus{
		listeners: make(map[string][]Listener),
		done:      make(chan struct{}),
		logger:    logger,
	}
	b.cond = sync.NewCond(&b.mu)
	go b.dispatch()
	return b
}

func (b *Bus) Subscribe(eventName string, listener Listener) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.listeners[eventName] = append(b.listeners[eventName], listener)
}

// Publish queues the event for the dispatcher. Events published after
// Close are dropped.
func (b *Bus) Publish(ctx context.Context, event Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		b.logger.Warn("event dropped after close", zap.String("event", event.Name()))
		return
	}
	// Detached from the request so handlers outlive the response.
	b.queue = append(b.queue, queued{ctx: context.WithoutCancel(ctx), event: event})
	b.wg.Add(1)
	b.cond.Signal()
}

func (b *Bus) dispatch() {
	defer close(b.done)
	for {
		b.mu.Lock()
		for len(b.queue) == 0 && !b.closed {
			b.cond.Wait()
		}
		if len(b.queue) == 0 {
			b.mu.Unlock()
			return
		}
		next := b.queue[0]
		b.queue[0] = queued{}
		b.queue = b.queue[1:]
		listeners := append([]Listener(nil), b.listeners[next.event.Name()]...)
		b.mu.Unlock()

		for _, l := range listeners {
			b.run(next, l)
		}
		b.wg.Done()
	}
}

func (b *Bus) run(q queued, l Listener) {
	ctx, cancel := context.WithTimeout(q.ctx, listenerTimeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event listener panicked", zap.String("event", q.event.Name()), zap.Any("panic", r))
		}
	}()
	if err := l(ctx, q.event); err != nil {
		b.logger.Error("event listener failed",
			zap.String("event", q.event.Name()),
			zap.Error(err),
		)
	}
}

// Wait blocks until every event published so far has been handled.
func (b *Bus) Wait() {
	b.wg.Wait()
}

// Close delivers what is queued and stops the dispatcher.
func (b *Bus) Close() {
	b.mu.Lock()
	b.closed = true
	b.cond.Broadcast()
	b.mu.Unlock()
	<-b.done
}
