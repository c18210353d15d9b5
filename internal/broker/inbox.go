package broker

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrInboxClosed is returned once the inbox is closed
var ErrInboxClosed = errors.New("inbox closed")

// Inbox queues transport deliveries until the owner polls. Transport
// callbacks push from their own goroutines; a single consumer polls.
type Inbox struct {
	messages chan InboundMessage
	failures chan error
	done     chan struct{}
	once     sync.Once
}

// NewInbox creates an inbox holding up to size messages
func NewInbox(size int) *Inbox {
	if size <= 0 {
		size = 1
	}
	return &Inbox{
		messages: make(chan InboundMessage, size),
		failures: make(chan error, 1),
		done:     make(chan struct{}),
	}
}

// Push queues a message, blocking while the inbox is full. It returns false
// once the inbox is closed.
func (i *Inbox) Push(topic string, payload []byte) bool {
	msg := InboundMessage{
		Topic:   topic,
		Payload: append([]byte(nil), payload...),
	}

	select {
	case i.messages <- msg:
		return true
	case <-i.done:
		return false
	}
}

// Fail records a transport failure for the next poll. Only the first
// failure is kept.
func (i *Inbox) Fail(err error) {
	select {
	case i.failures <- err:
	default:
	}
}

// Len returns the number of queued messages
func (i *Inbox) Len() int {
	return len(i.messages)
}

// Poll hands every queued message to handle, in arrival order. With wait > 0
// it first blocks up to wait for a message. Messages that arrive during the
// drain are left for the next poll.
func (i *Inbox) Poll(ctx context.Context, wait time.Duration, handle func(InboundMessage)) (int, error) {
	select {
	case err := <-i.failures:
		return 0, err
	case <-i.done:
		return 0, ErrInboxClosed
	default:
	}

	n := 0
	if wait > 0 && len(i.messages) == 0 {
		timer := time.NewTimer(wait)
		defer timer.Stop()

		select {
		case msg := <-i.messages:
			handle(msg)
			n++
		case err := <-i.failures:
			return 0, err
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-i.done:
			return 0, ErrInboxClosed
		case <-timer.C:
			return 0, nil
		}
	}

	for pending := len(i.messages); pending > 0; pending-- {
		handle(<-i.messages)
		n++
	}

	return n, nil
}

// Close unblocks pushers and fails later polls
func (i *Inbox) Close() {
	i.once.Do(func() { close(i.done) })
}
