// Package eventbus is an in-process, topic-based fan-out bus. Publishers never
// block: a subscriber that falls behind misses messages instead of stalling
// the publisher.
package eventbus

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
)

// DefaultBuffer is the per-subscriber queue length used when New gets zero.
const DefaultBuffer = 256

var (
	ErrClosed            = errors.New("event bus closed")
	ErrSubscriberLagging = errors.New("subscriber lagging")
	ErrContextNil        = errors.New("context is nil")
)

// Message is one published payload.
type Message struct {
	Topic   string
	Payload any
}

// Bus fans published messages out to the subscribers of their topic. It is
// safe for concurrent use.
type Bus struct {
	buffer int

	mu     sync.RWMutex
	subs   map[string]map[*Subscription]struct{}
	closed bool
}

// New returns a bus whose subscriptions buffer up to buffer messages each.
// A non-positive buffer uses DefaultBuffer.
func New(buffer int) *Bus {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Bus{
		buffer: buffer,
		subs:   make(map[string]map[*Subscription]struct{}),
	}
}

// Publish delivers payload to every current subscriber of topic. Delivery to
// each subscriber preserves publish order. Subscribers with a full queue skip
// the message and Publish reports ErrSubscriberLagging after delivering to the
// rest.
func (b *Bus) Publish(ctx context.Context, topic string, payload any) error {
	if ctx == nil {
		return ErrContextNil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return ErrClosed
	}

	msg := Message{Topic: topic, Payload: payload}
	subs := b.subs[topic]
	lagging := 0
	for sub := range subs {
		select {
		case sub.ch <- msg:
		default:
			sub.dropped.Add(1)
			lagging++
		}
	}
	if lagging > 0 {
		return fmt.Errorf("%w: %d of %d subscribers on %q", ErrSubscriberLagging, lagging, len(subs), topic)
	}
	return nil
}

// Subscribe registers a new subscriber for topic. On a closed bus the returned
// subscription's channel is already closed.
func (b *Bus) Subscribe(topic string) *Subscription {
	ch := make(chan Message, b.buffer)
	sub := &Subscription{C: ch, ch: ch, bus: b, topic: topic}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		sub.closed = true
		close(ch)
		return sub
	}
	if b.subs[topic] == nil {
		b.subs[topic] = make(map[*Subscription]struct{})
	}
	b.subs[topic][sub] = struct{}{}
	return sub
}

// Subscribers returns the number of live subscribers of topic.
func (b *Bus) Subscribers(topic string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[topic])
}

// Close closes every subscription. Later publishes return ErrClosed.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for topic, subs := range b.subs {
		for sub := range subs {
			sub.closeLocked()
		}
		delete(b.subs, topic)
	}
}

// Subscription receives the messages of one topic on C until Close.
type Subscription struct {
	C <-chan Message

	ch      chan Message
	bus     *Bus
	topic   string
	closed  bool
	dropped atomic.Uint64
}

// Dropped returns how many messages this subscriber missed.
func (s *Subscription) Dropped() uint64 {
	return s.dropped.Load()
}

// Close unsubscribes and closes C. Safe to call more than once.
func (s *Subscription) Close() {
	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()

	if subs, ok := s.bus.subs[s.topic]; ok {
		delete(subs, s)
		if len(subs) == 0 {
			delete(s.bus.subs, s.topic)
		}
	}
	s.closeLocked()
}

// closeLocked requires the bus lock.
func (s *Subscription) closeLocked() {
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}
