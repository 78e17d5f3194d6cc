package audit

import (
	"context"
	"sync"
	"time"

	"github.com/sentra-ai/sentra/internal/redact"
)

// Sink consumes audit events (file, webhook, etc.).
type Sink interface {
	Name() string
	Deliver(context.Context, *Event) error
	Close(context.Context) error
}

// Emitter buffers events and delivers them to sinks off the scan path.
// Emit never blocks: when the queue is full the event is dropped and
// counted, never the scan delayed.
type Emitter struct {
	queue           chan *Event
	sinks           []Sink
	shutdownTimeout time.Duration

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup

	statsMu  sync.Mutex
	enqueued uint64
	dropped  uint64
	failed   uint64
}

// EmitterConfig sizes the queue and worker pool.
type EmitterConfig struct {
	QueueSize       int
	Workers         int
	ShutdownTimeout time.Duration
}

// NewEmitter starts background delivery workers.
func NewEmitter(cfg EmitterConfig, sinks []Sink) *Emitter {
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = 1000
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = 1
	}
	shutdown := cfg.ShutdownTimeout
	if shutdown <= 0 {
		shutdown = 2 * time.Second
	}

	em := &Emitter{
		queue:           make(chan *Event, queueSize),
		sinks:           sinks,
		shutdownTimeout: shutdown,
	}
	for i := 0; i < workers; i++ {
		em.wg.Add(1)
		go em.worker()
	}
	return em
}

// Emit enqueues the event without blocking.
func (e *Emitter) Emit(ev *Event) {
	if e == nil || ev == nil {
		return
	}

	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		e.count(&e.dropped)
		return
	}

	select {
	case e.queue <- ev:
		e.count(&e.enqueued)
	default:
		e.count(&e.dropped)
	}
}

// Close stops intake and waits up to the shutdown timeout for the queue to
// drain, then closes the sinks.
func (e *Emitter) Close(ctx context.Context) {
	if e == nil {
		return
	}
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	close(e.queue)
	e.mu.Unlock()

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	if ctx == nil {
		ctx = context.Background()
	}
	waitCtx, cancel := context.WithTimeout(ctx, e.shutdownTimeout)
	defer cancel()

	select {
	case <-done:
	case <-waitCtx.Done():
	}

	for _, s := range e.sinks {
		if err := s.Close(waitCtx); err != nil {
			redact.Warnf("audit: sink %s close error: %v", s.Name(), err)
		}
	}
}

// Stats reports delivery counters.
func (e *Emitter) Stats() (enqueued, dropped, failed uint64) {
	if e == nil {
		return 0, 0, 0
	}
	e.statsMu.Lock()
	defer e.statsMu.Unlock()
	return e.enqueued, e.dropped, e.failed
}

func (e *Emitter) count(c *uint64) {
	e.statsMu.Lock()
	*c++
	e.statsMu.Unlock()
}

func (e *Emitter) worker() {
	defer e.wg.Done()
	for ev := range e.queue {
		for _, s := range e.sinks {
			if err := s.Deliver(context.Background(), ev); err != nil {
				redact.Warnf("audit: sink %s failed: %v", s.Name(), err)
				e.count(&e.failed)
			}
		}
	}
}
