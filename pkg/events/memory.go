package events

import (
	"context"
	"sync"
)

// MemoryBus implements Bus in-process, for tests and single-node dev runs.
type MemoryBus struct {
	mu     sync.RWMutex
	nextID int
	subs   map[string]map[int]func(event string, payload []byte)
}

// NewMemoryBus creates an empty in-process bus.
func NewMemoryBus() *MemoryBus {
	return &MemoryBus{subs: make(map[string]map[int]func(string, []byte))}
}

func (b *MemoryBus) Publish(ctx context.Context, topic, event string, payload []byte) error {
	b.mu.RLock()
	handlers := make([]func(string, []byte), 0, len(b.subs[topic]))
	for _, h := range b.subs[topic] {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()
	for _, h := range handlers {
		h(event, payload)
	}
	return nil
}

func (b *MemoryBus) Subscribe(topic string, handler func(event string, payload []byte)) (func(), error) {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	if b.subs[topic] == nil {
		b.subs[topic] = make(map[int]func(string, []byte))
	}
	b.subs[topic][id] = handler
	b.mu.Unlock()
	return func() {
		b.mu.Lock()
		delete(b.subs[topic], id)
		b.mu.Unlock()
	}, nil
}
