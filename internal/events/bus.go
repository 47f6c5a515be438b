package events

import (
	"sync"

	"github.com/rs/zerolog"
)

// Handler receives emitted events. Handlers run synchronously on the
// emitting goroutine and must not block.
type Handler func(Event)

type subscription struct {
	id uint64
	h  Handler
}

// Bus fans events out to subscribers
type Bus struct {
	mu       sync.RWMutex
	nextID   uint64
	handlers map[EventType][]subscription
	all      []subscription
	log      zerolog.Logger
}

// NewBus creates an empty event bus
func NewBus(log zerolog.Logger) *Bus {
	return &Bus{
		handlers: make(map[EventType][]subscription),
		log:      log.With().Str("component", "event_bus").Logger(),
	}
}

// Subscribe registers h for the given event types.
// With no types, h receives every event. The returned func removes the
// subscription and is safe to call more than once.
func (b *Bus) Subscribe(h Handler, types ...EventType) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	sub := subscription{id: b.nextID, h: h}

	if len(types) == 0 {
		b.all = append(b.all, sub)
	} else {
		for _, t := range types {
			b.handlers[t] = append(b.handlers[t], sub)
		}
	}

	return func() { b.unsubscribe(sub.id) }
}

func (b *Bus) unsubscribe(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.all = without(b.all, id)
	for t, subs := range b.handlers {
		if remaining := without(subs, id); len(remaining) > 0 {
			b.handlers[t] = remaining
		} else {
			delete(b.handlers, t)
		}
	}
}

func without(subs []subscription, id uint64) []subscription {
	out := subs[:0:0]
	for _, s := range subs {
		if s.id != id {
			out = append(out, s)
		}
	}
	return out
}

// Publish delivers ev to every matching subscriber.
// A panicking handler is logged and does not stop delivery to the rest.
func (b *Bus) Publish(ev Event) {
	b.mu.RLock()
	targets := make([]Handler, 0, len(b.all)+len(b.handlers[ev.Type]))
	for _, s := range b.handlers[ev.Type] {
		targets = append(targets, s.h)
	}
	for _, s := range b.all {
		targets = append(targets, s.h)
	}
	b.mu.RUnlock()

	for _, h := range targets {
		b.deliver(h, ev)
	}
}

func (b *Bus) deliver(h Handler, ev Event) {
	defer func() {
		if p := recover(); p != nil {
			b.log.Error().
				Str("event_type", string(ev.Type)).
				Interface("panic", p).
				Msg("Event handler panicked")
		}
	}()
	h(ev)
}
