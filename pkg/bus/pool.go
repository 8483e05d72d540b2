package bus

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/savaki/sentiment-bot/pkg/logger"
	"go.uber.org/zap"
)

// ErrQueueFull is returned when a task is submitted to a saturated pool
var ErrQueueFull = errors.New("publish queue full")

// Handle tracks a single submitted publish
type Handle struct {
	done chan struct{}
	err  error
}

func newHandle() *Handle {
	return &Handle{done: make(chan struct{})}
}

func (h *Handle) finish(err error) {
	h.err = err
	close(h.done)
}

// Done is closed once the publish attempt has finished
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Err returns the publish result; only meaningful after Done is closed
func (h *Handle) Err() error {
	select {
	case <-h.done:
		return h.err
	default:
		return nil
	}
}

// Wait blocks until the attempt finishes or ctx is done
func (h *Handle) Wait(ctx context.Context) error {
	select {
	case <-h.done:
		return h.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

type task struct {
	ctx    context.Context
	msg    Message
	handle *Handle
}

// Pool publishes messages from a bounded queue on a single background worker,
// letting a request handler submit a publish and return without waiting.
type Pool struct {
	publisher Publisher
	timeout   time.Duration
	tasks     chan task

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// NewPool starts a pool with one worker and a queue of queueSize tasks.
// Each publish is bounded by timeout.
func NewPool(publisher Publisher, queueSize int, timeout time.Duration) *Pool {
	if queueSize < 1 {
		queueSize = 1
	}
	p := &Pool{
		publisher: publisher,
		timeout:   timeout,
		tasks:     make(chan task, queueSize),
	}
	p.wg.Add(1)
	go p.run()
	return p
}

// Submit queues msg for publishing. It never blocks; a full queue or closed
// pool yields an already-finished handle carrying the error.
func (p *Pool) Submit(ctx context.Context, msg Message) *Handle {
	h := newHandle()

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		h.finish(ErrClosed)
		return h
	}

	// the publish outlives the submitting request
	t := task{ctx: context.WithoutCancel(ctx), msg: msg, handle: h}
	select {
	case p.tasks <- t:
	default:
		h.finish(ErrQueueFull)
	}
	return h
}

// Close stops accepting tasks and waits for queued ones to finish
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.tasks)
	p.mu.Unlock()

	p.wg.Wait()
}

func (p *Pool) run() {
	defer p.wg.Done()
	for t := range p.tasks {
		t.handle.finish(p.publish(t))
	}
}

func (p *Pool) publish(t task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.GetLogger().Error("publish panicked", zap.Any("panic", r), zap.String("message_id", t.msg.ID))
			err = errors.New("publish panicked")
		}
	}()

	ctx := t.ctx
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}
	return p.publisher.Publish(ctx, t.msg)
}
