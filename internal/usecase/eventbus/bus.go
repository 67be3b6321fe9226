// Package eventbus carries bridge notifications (connection state, transfer
// progress, selection changes) from the components that produce them to
// status displays and tests.
package eventbus

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"bimbridge/internal/domain"
)

type subscription struct {
	id      uint64
	filter  domain.EventType // empty matches every event
	handler domain.EventHandler
}

func (s subscription) matches(t domain.EventType) bool {
	return s.filter == "" || s.filter == t
}

// Bus is an in-process, goroutine-safe event bus.
type Bus struct {
	mu     sync.RWMutex
	subs   []subscription
	nextID atomic.Uint64
	logger *slog.Logger
	wg     sync.WaitGroup
	closed atomic.Bool
}

// New creates an event bus.
func New(logger *slog.Logger) *Bus {
	return &Bus{logger: logger}
}

// Publish fans an event out to every matching subscriber. Each handler runs
// in its own goroutine so a slow status display never stalls the socket or
// the main loop. Panicking handlers are recovered.
func (b *Bus) Publish(ctx context.Context, event domain.Event) {
	if b.closed.Load() {
		return
	}

	b.mu.RLock()
	matched := make([]subscription, 0, len(b.subs))
	for _, sub := range b.subs {
		if sub.matches(event.Type) {
			matched = append(matched, sub)
		}
	}
	b.mu.RUnlock()

	for _, sub := range matched {
		b.dispatch(ctx, event, sub)
	}
}

func (b *Bus) dispatch(ctx context.Context, event domain.Event, sub subscription) {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				b.logger.Error("event handler panicked",
					"event", string(event.Type),
					"panic", r,
				)
			}
		}()
		sub.handler(ctx, event)
	}()
}

// Subscribe registers a handler for a specific event type.
// Returns an unsubscribe function.
func (b *Bus) Subscribe(eventType domain.EventType, handler domain.EventHandler) func() {
	return b.add(eventType, handler)
}

// SubscribeAll registers a handler that receives every event.
// Returns an unsubscribe function.
func (b *Bus) SubscribeAll(handler domain.EventHandler) func() {
	return b.add("", handler)
}

func (b *Bus) add(filter domain.EventType, handler domain.EventHandler) func() {
	id := b.nextID.Add(1)

	b.mu.Lock()
	b.subs = append(b.subs, subscription{id: id, filter: filter, handler: handler})
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		for i, s := range b.subs {
			if s.id == id {
				b.subs = append(b.subs[:i], b.subs[i+1:]...)
				return
			}
		}
	}
}

// Close prevents new publishes and waits for in-flight handlers to finish.
// Close is idempotent.
func (b *Bus) Close() {
	if b.closed.Swap(true) {
		return
	}
	b.wg.Wait()
}

// Nop is an EventBus that drops everything. Components fall back to it when
// no bus is wired.
type Nop struct{}

func (Nop) Publish(context.Context, domain.Event) {}
func (Nop) Subscribe(domain.EventType, domain.EventHandler) func() { return func() {} }
func (Nop) SubscribeAll(domain.EventHandler) func() { return func() {} }
func (Nop) Close() {}
