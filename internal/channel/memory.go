// internal/channel/memory.go
package channel

import (
	"context"
	"fmt"
	"sync"
)

// Bus is an in-process topic hub. It backs solo play (where host and AI
// share one process) and tests; delivery mimics the wide-area transport,
// fanning out to every current subscriber including the sender.
type Bus struct {
	mu     sync.Mutex
	topics map[string][]*memoryChannel
}

// NewBus creates an empty in-process hub.
func NewBus() *Bus {
	return &Bus{topics: make(map[string][]*memoryChannel)}
}

// Subscribe attaches a new channel to the named topic.
func (b *Bus) Subscribe(topic string) Channel {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch := &memoryChannel{
		bus:    b,
		topic:  topic,
		events: make(chan Event, 64),
	}
	b.topics[topic] = append(b.topics[topic], ch)
	return ch
}

func (b *Bus) publish(topic string, ev Event) {
	b.mu.Lock()
	subs := make([]*memoryChannel, len(b.topics[topic]))
	copy(subs, b.topics[topic])
	b.mu.Unlock()

	for _, sub := range subs {
		select {
		case sub.events <- ev:
		default:
			// Slow subscriber; the transport is fire-and-forget, so the
			// event is dropped and the resync cycle repairs the gap.
		}
	}
}

func (b *Bus) unsubscribe(ch *memoryChannel) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.topics[ch.topic]
	for i, sub := range subs {
		if sub == ch {
			b.topics[ch.topic] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	close(ch.events)
}

type memoryChannel struct {
	bus    *Bus
	topic  string
	events chan Event

	closeOnce sync.Once
	closed    bool
	mu        sync.Mutex
}

func (c *memoryChannel) Publish(ctx context.Context, ev Event) error {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return fmt.Errorf("publish on closed channel %q", c.topic)
	}
	c.bus.publish(c.topic, ev)
	return nil
}

func (c *memoryChannel) Events() <-chan Event {
	return c.events
}

func (c *memoryChannel) Close() error {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()
		c.bus.unsubscribe(c)
	})
	return nil
}
