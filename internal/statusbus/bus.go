// Package statusbus fans parsed worker events out to in-process observers.
//
// Delivery is synchronous and in publish order: every subscriber sees every
// event, and sequence numbers increase in the order events are delivered. A
// subscriber that returns an error or panics is logged and counted; the
// remaining subscribers still receive the event. Handlers run on the
// publishing goroutine (the worker's output reader) and must not block.
//
// A handler may publish. The nested event is queued behind the one being
// delivered and goes out once every subscriber has seen the current event,
// so Publish never deadlocks on itself.
package statusbus

import (
	"fmt"
	"log/slog"
	"sync"

	"docintake/internal/events"
	"docintake/internal/logging"
	"docintake/internal/metrics"
)

// Handler receives one event.
type Handler func(events.Event) error

type subscriber struct {
	id      uint64
	name    string
	handler Handler
}

// Bus is an in-process publish/subscribe hub.
type Bus struct {
	subsMu sync.RWMutex
	subs   []subscriber
	nextID uint64

	mu       sync.Mutex
	seq      uint64
	queue    []events.Event
	draining bool

	logger *slog.Logger
}

// New returns an empty bus.
func New(logger *slog.Logger) *Bus {
	return &Bus{logger: logging.NewComponentLogger(logger, "statusbus")}
}

// Subscription identifies a registered handler.
type Subscription struct {
	bus  *Bus
	id   uint64
	once sync.Once
}

// Unsubscribe removes the handler. Calling it more than once is harmless, and
// it is safe to call from inside a handler.
func (s *Subscription) Unsubscribe() {
	if s == nil || s.bus == nil {
		return
	}
	s.once.Do(func() { s.bus.remove(s.id) })
}

// Subscribe registers handler under name. The name labels log lines and
// failure metrics.
func (b *Bus) Subscribe(name string, handler Handler) *Subscription {
	b.subsMu.Lock()
	b.nextID++
	id := b.nextID
	b.subs = append(b.subs, subscriber{id: id, name: name, handler: handler})
	count := len(b.subs)
	b.subsMu.Unlock()

	metrics.SetBusSubscribers(count)
	return &Subscription{bus: b, id: id}
}

// UnsubscribeAll drops every subscriber. Used at teardown so handlers from a
// previous run never see the next one.
func (b *Bus) UnsubscribeAll() {
	b.subsMu.Lock()
	b.subs = nil
	b.subsMu.Unlock()
	metrics.SetBusSubscribers(0)
}

// Len returns the number of subscribers.
func (b *Bus) Len() int {
	b.subsMu.RLock()
	defer b.subsMu.RUnlock()
	return len(b.subs)
}

// Publish assigns the next sequence number and queues ev. When no other
// Publish is delivering, the caller delivers the queue, ev included, before
// returning. Otherwise the delivering caller picks ev up in sequence order.
func (b *Bus) Publish(ev events.Event) events.Event {
	b.mu.Lock()
	b.seq++
	ev.Seq = b.seq
	b.queue = append(b.queue, ev)
	if b.draining {
		b.mu.Unlock()
		return ev
	}
	b.draining = true
	for len(b.queue) > 0 {
		next := b.queue[0]
		b.queue[0] = events.Event{}
		b.queue = b.queue[1:]
		b.mu.Unlock()
		b.deliverAll(next)
		b.mu.Lock()
	}
	b.queue = nil
	b.draining = false
	b.mu.Unlock()
	return ev
}

func (b *Bus) deliverAll(ev events.Event) {
	b.subsMu.RLock()
	subs := append([]subscriber(nil), b.subs...)
	b.subsMu.RUnlock()

	for _, sub := range subs {
		if err := deliver(sub, ev); err != nil {
			metrics.RecordHandlerFailure(sub.name)
			logging.WarnWithContext(b.logger, "status subscriber failed", "subscriber_failed",
				logging.String("subscriber", sub.name),
				logging.Int64("seq", int64(ev.Seq)),
				logging.String("event_kind", string(ev.Kind)),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "subscriber handlers must not fail or block"),
				logging.String(logging.FieldImpact, "this subscriber missed the event; others received it"),
			)
		}
	}
}

func deliver(sub subscriber, ev events.Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return sub.handler(ev)
}

func (b *Bus) remove(id uint64) {
	b.subsMu.Lock()
	for i, sub := range b.subs {
		if sub.id == id {
			b.subs = append(b.subs[:i:i], b.subs[i+1:]...)
			break
		}
	}
	count := len(b.subs)
	b.subsMu.Unlock()
	metrics.SetBusSubscribers(count)
}
