package event

import (
	"context"
	"fmt"
	"sync"
)

// Handler reacts to a published event. It runs synchronously inside the
// publisher's transaction, so a returned error aborts it.
type Handler func(ctx context.Context, e Event) error

type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// Recorder persists events for asynchronous relay
type Recorder interface {
	Record(ctx context.Context, e Event) error
}

// Bus dispatches events to in-process subscribers after recording them
type Bus struct {
	mu       sync.RWMutex
	handlers map[Type][]Handler
	recorder Recorder
}

func NewBus(recorder Recorder) *Bus {
	return &Bus{
		handlers: make(map[Type][]Handler),
		recorder: recorder,
	}
}

func (b *Bus) Subscribe(t Type, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[t] = append(b.handlers[t], h)
}

func (b *Bus) Publish(ctx context.Context, e Event) error {
	if b.recorder != nil {
		if err := b.recorder.Record(ctx, e); err != nil {
			return fmt.Errorf("failed to record event %s: %w", e.Type, err)
		}
	}

	b.mu.RLock()
	handlers := append([]Handler(nil), b.handlers[e.Type]...)
	b.mu.RUnlock()

	for _, h := range handlers {
		if err := h(ctx, e); err != nil {
			return fmt.Errorf("handler for %s failed: %w", e.Type, err)
		}
	}
	return nil
}

// Collector records published events in memory
type Collector struct {
	mu     sync.Mutex
	Events []Event
}

func (c *Collector) Record(_ context.Context, e Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Events = append(c.Events, e)
	return nil
}

func (c *Collector) Types() []Type {
	c.mu.Lock()
	defer c.mu.Unlock()
	types := make([]Type, 0, len(c.Events))
	for _, e := range c.Events {
		types = append(types, e.Type)
	}
	return types
}
