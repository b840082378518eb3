// Package eventbus implements the subscription registry that routes
// decoded gateway events to callbacks. A Bus is an explicit owned
// instance with process lifetime: it is constructed once at startup and
// injected wherever dispatch happens, so independent connections (and
// tests) never share registrations, and reconnecting never clears them.
package eventbus

import (
	"log/slog"
	"sync"

	"github.com/jkaninda/chatwire/internal/protocol"
)

// HandlerFunc consumes one gateway event.
type HandlerFunc func(ev *protocol.Event)

// Subscription is the identity handle for a registered callback. The same
// handle may cover several event types; Unsubscribe removes it everywhere.
type Subscription struct {
	fn     HandlerFunc
	events []string
}

// Bus maps event types to their ordered subscriber lists.
type Bus struct {
	mu     sync.RWMutex
	subs   map[string][]*Subscription
	logger *slog.Logger
}

// New creates an empty bus.
func New(logger *slog.Logger) *Bus {
	return &Bus{
		subs:   make(map[string][]*Subscription),
		logger: logger,
	}
}

// Subscribe registers fn for the given event types and returns its handle.
// Per event type, callbacks run in subscription order at dispatch.
func (b *Bus) Subscribe(fn HandlerFunc, eventTypes ...string) *Subscription {
	sub := &Subscription{fn: fn, events: eventTypes}

	b.mu.Lock()
	defer b.mu.Unlock()
	for _, et := range eventTypes {
		b.subs[et] = append(b.subs[et], sub)
	}

	b.logger.Debug("subscribed", slog.Any("events", eventTypes), slog.Int("count", len(eventTypes)))
	return sub
}

// Unsubscribe removes the handle from every event type it was registered
// under. From the moment it returns, the callback receives no further
// events; a dispatch already resolved against the old list may still
// deliver (snapshot semantics). No-op for an unknown or already removed
// handle.
func (b *Bus) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for _, et := range sub.events {
		list := b.subs[et]
		for i, s := range list {
			if s == sub {
				b.subs[et] = append(list[:i:i], list[i+1:]...)
				break
			}
		}
		if len(b.subs[et]) == 0 {
			delete(b.subs, et)
		}
	}
}

// Resolve returns a snapshot of the current subscriber callbacks for the
// event type, in subscription order. The copy keeps iteration safe when a
// callback subscribes or unsubscribes during its own execution.
func (b *Bus) Resolve(eventType string) []HandlerFunc {
	b.mu.RLock()
	defer b.mu.RUnlock()

	list := b.subs[eventType]
	if len(list) == 0 {
		return nil
	}
	out := make([]HandlerFunc, len(list))
	for i, s := range list {
		out[i] = s.fn
	}
	return out
}

// Subscribers reports how many handles are registered for the event type.
func (b *Bus) Subscribers(eventType string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[eventType])
}
