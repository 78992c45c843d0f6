package event

import (
	"context"
	"sync"

	"github.com/1ureka/syncpad/internal/util"
)

// Handler receives published events.
type Handler func(Event)

// Bus is a synchronous publish/subscribe hub. Handlers run in subscription
// order on the publishing goroutine. A panicking handler is recovered and
// logged; the remaining handlers still run.
type Bus struct {
	mu       sync.RWMutex
	nextID   int
	handlers []subscription
}

type subscription struct {
	id int
	fn Handler
}

// NewBus returns an empty bus.
func NewBus() *Bus {
	return &Bus{}
}

// Subscribe registers fn and returns a function that removes it.
func (b *Bus) Subscribe(fn Handler) (cancel func()) {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.handlers = append(b.handlers, subscription{id: id, fn: fn})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { b.remove(id) })
	}
}

func (b *Bus) remove(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, s := range b.handlers {
		if s.id == id {
			// copy so a Publish iterating the old slice is unaffected
			next := make([]subscription, 0, len(b.handlers)-1)
			next = append(next, b.handlers[:i]...)
			b.handlers = append(next, b.handlers[i+1:]...)
			return
		}
	}
}

// Publish delivers ev to every current subscriber. A nil bus drops events.
func (b *Bus) Publish(ev Event) {
	if b == nil {
		return
	}
	b.mu.RLock()
	handlers := b.handlers
	b.mu.RUnlock()

	for _, s := range handlers {
		b.deliver(s.fn, ev)
	}
}

func (b *Bus) deliver(fn Handler, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			util.LogError("event handler panicked on %s: %v", ev.Kind, r)
		}
	}()
	fn(ev)
}

// Expect subscribes immediately and returns a function that blocks until an
// event matching match is published or ctx ends. Subscribing before the
// triggering call avoids missing a fast reply.
func (b *Bus) Expect(match func(Event) bool) (wait func(ctx context.Context) (Event, error)) {
	ch := make(chan Event, 1)
	cancel := b.Subscribe(func(ev Event) {
		if !match(ev) {
			return
		}
		select {
		case ch <- ev:
		default:
		}
	})
	return func(ctx context.Context) (Event, error) {
		defer cancel()
		select {
		case ev := <-ch:
			return ev, nil
		case <-ctx.Done():
			return Event{}, ctx.Err()
		}
	}
}
