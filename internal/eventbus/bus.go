// Package eventbus fans out a run's events to zero or more subscribers
// without letting a slow subscriber block the producer.
package eventbus

import (
	"sync"

	"github.com/example/adgen/internal/domain"
)

const defaultBufferSize = 256

// Bus is a per-run broadcast channel. Subscribers that fall behind are
// dropped rather than backpressuring Publish.
type Bus struct {
	mu          sync.Mutex
	subscribers map[chan domain.Event]struct{}
	bufferSize  int
	replay      []domain.Event // small tail kept for late subscribers
	closed      bool
}

// New builds a Bus with the default per-subscriber buffer size.
func New() *Bus {
	return &Bus{
		subscribers: make(map[chan domain.Event]struct{}),
		bufferSize:  defaultBufferSize,
	}
}

// Subscribe returns a channel of future events plus any retained replay
// events (at minimum the most recent Started, and the terminal event once
// the run has ended). Call Unsubscribe when done to release the channel.
func (b *Bus) Subscribe() (<-chan domain.Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan domain.Event, b.bufferSize)
	for _, ev := range b.replay {
		ch <- ev
	}
	if b.closed {
		close(ch)
		return ch, func() {}
	}
	b.subscribers[ch] = struct{}{}

	unsubscribe := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if _, ok := b.subscribers[ch]; ok {
			delete(b.subscribers, ch)
			close(ch)
		}
	}
	return ch, unsubscribe
}

// Publish delivers ev to every current subscriber. A subscriber whose
// buffer is full is dropped: its channel is closed and removed.
func (b *Bus) Publish(ev domain.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if ev.Type == domain.EventTypeStarted || ev.IsTerminal() {
		b.replay = append(b.replay, ev)
	}

	for ch := range b.subscribers {
		select {
		case ch <- ev:
		default:
			delete(b.subscribers, ch)
			close(ch)
		}
	}

	if ev.IsTerminal() {
		b.closed = true
		for ch := range b.subscribers {
			delete(b.subscribers, ch)
			close(ch)
		}
	}
}
