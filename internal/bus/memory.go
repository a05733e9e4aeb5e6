package bus

import (
	"context"
	"fmt"
	"sync"
	"time"

	"vitaex/pkg/platform/sentinel"
)

const memorySubBuffer = 256

// MemoryBus is an in-process Bus for tests and local development. Each
// subscriber gets its own goroutine and buffered channel, so per-topic FIFO
// order is preserved per subscriber and a slow handler never blocks siblings
// on other topics.
type MemoryBus struct {
	mu     sync.RWMutex
	subs   map[string][]*memorySub
	closed bool
}

type memorySub struct {
	bus   *MemoryBus
	topic string
	ch    chan []byte
	done  chan struct{}
	once  sync.Once
}

// NewMemory creates an empty in-process bus.
func NewMemory() *MemoryBus {
	return &MemoryBus{subs: make(map[string][]*memorySub)}
}

func (b *MemoryBus) Publish(ctx context.Context, topic, eventType string, payload map[string]any, userID, correlationID string) (string, error) {
	corr := ensureCorrelationID(correlationID)
	evt := Event{
		Topic:         topic,
		Type:          eventType,
		Payload:       payload,
		UserID:        userID,
		CorrelationID: corr,
		Timestamp:     time.Now().UTC(),
	}
	raw, err := evt.Encode()
	if err != nil {
		return "", err
	}

	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return "", fmt.Errorf("publish %s: %w", topic, sentinel.ErrBusUnavailable)
	}
	subs := append([]*memorySub(nil), b.subs[topic]...)
	b.mu.RUnlock()

	for _, sub := range subs {
		select {
		case sub.ch <- raw:
		case <-sub.done:
		case <-ctx.Done():
			return corr, ctx.Err()
		}
	}
	return corr, nil
}

// Subscribe always fans out to every subscriber; the subscriber name option
// only matters for group-based transports.
func (b *MemoryBus) Subscribe(ctx context.Context, topic string, fn MessageHandler, _ ...SubscribeOption) (Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, fmt.Errorf("subscribe %s: %w", topic, sentinel.ErrBusUnavailable)
	}
	sub := &memorySub{
		bus:   b,
		topic: topic,
		ch:    make(chan []byte, memorySubBuffer),
		done:  make(chan struct{}),
	}
	b.subs[topic] = append(b.subs[topic], sub)

	go func() {
		for {
			select {
			case <-sub.done:
				return
			case raw := <-sub.ch:
				fn(ctx, raw)
			}
		}
	}()
	return sub, nil
}

func (b *MemoryBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	for _, subs := range b.subs {
		for _, sub := range subs {
			sub.stop()
		}
	}
	b.subs = make(map[string][]*memorySub)
	return nil
}

func (s *memorySub) Close() error {
	s.bus.mu.Lock()
	subs := s.bus.subs[s.topic]
	for i, cand := range subs {
		if cand == s {
			s.bus.subs[s.topic] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	s.bus.mu.Unlock()
	s.stop()
	return nil
}

func (s *memorySub) stop() {
	s.once.Do(func() { close(s.done) })
}
