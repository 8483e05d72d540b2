package bus

import (
	"context"
	"errors"
	"sync"
)

// ErrClosed is returned when publishing to a closed bus or pool
var ErrClosed = errors.New("bus closed")

// Memory is an in-process bus used by the local server. Delivery is
// at-most-once; it stands in for SNS when everything runs in one process.
type Memory struct {
	messages chan Message
	done     chan struct{}
	once     sync.Once
}

// NewMemory creates an in-process bus buffering up to size messages
func NewMemory(size int) *Memory {
	return &Memory{
		messages: make(chan Message, size),
		done:     make(chan struct{}),
	}
}

// Publish enqueues msg, blocking while the buffer is full
func (m *Memory) Publish(ctx context.Context, msg Message) error {
	if msg.ID == "" {
		msg.ID = NewID()
	}
	select {
	case <-m.done:
		return ErrClosed
	default:
	}
	select {
	case m.messages <- msg:
		return nil
	case <-m.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Consume blocks until a message is available, ctx is done, or the bus is
// closed. ok is false in the latter two cases.
func (m *Memory) Consume(ctx context.Context) (Message, bool) {
	select {
	case msg := <-m.messages:
		return msg, true
	case <-m.done:
		return Message{}, false
	case <-ctx.Done():
		return Message{}, false
	}
}

// Close stops delivery; pending messages are dropped
func (m *Memory) Close() {
	m.once.Do(func() { close(m.done) })
}
