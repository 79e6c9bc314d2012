package tabsync

import (
	"sync"
)

// Bus is the in-process delivery strategy: direct fan-out to subscribers
// in the same process. The most recent message is retained and replayed
// to late joiners.
type Bus struct {
	mu     sync.Mutex
	subs   map[int]func(Message)
	nextID int
	last   *Message
	closed bool
}

// Compile-time check that Bus implements the Broadcaster interface.
var _ Broadcaster = (*Bus)(nil)

// NewBus creates an in-process broadcaster
func NewBus() *Bus {
	return &Bus{
		subs: make(map[int]func(Message)),
	}
}

// Broadcast delivers the message to every subscriber synchronously
func (b *Bus) Broadcast(msg Message) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.last = &msg
	handlers := make([]func(Message), 0, len(b.subs))
	for _, h := range b.subs {
		handlers = append(handlers, h)
	}
	b.mu.Unlock()

	// Deliver outside the lock so a handler can publish or subscribe
	for _, h := range handlers {
		h(msg)
	}
	return nil
}

// Subscribe registers a handler. The most recent message, if any, is
// replayed immediately so late joiners converge.
func (b *Bus) Subscribe(handler func(Message)) (cancel func()) {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = handler
	last := b.last
	b.mu.Unlock()

	if last != nil {
		handler(*last)
	}

	return func() {
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
	}
}

// Close drops all subscriptions
func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.subs = make(map[int]func(Message))
	return nil
}
