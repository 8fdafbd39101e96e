// Package event is the in-process fan-out between the diary, the refresh
// job and websocket subscribers.
package event

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Topics published by sleepcast.
const (
	TopicPeriodRecorded    = "diary.period.recorded"
	TopicPeriodDeleted     = "diary.period.deleted"
	TopicForecastRefreshed = "diary.forecast.refreshed"
	TopicForecastRejected  = "diary.forecast.rejected"
)

// Event is a message on the bus. Payload type depends on Topic.
type Event struct {
	Topic     string
	Source    string
	Timestamp time.Time
	Payload   any
}

// Handler receives events. It must not block for long; use PublishAsync
// when the handler may.
type Handler func(ctx context.Context, ev Event)

// Publisher is the subset of Bus that producers depend on.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
	PublishAsync(ctx context.Context, ev Event)
}

// Subscriber is the subset of Bus that consumers depend on.
type Subscriber interface {
	Subscribe(topic string, handler Handler) (unsubscribe func())
}

var (
	_ Publisher  = (*Bus)(nil)
	_ Subscriber = (*Bus)(nil)
)

// Bus is an in-memory event bus. Publish runs handlers in the caller's
// goroutine; PublishAsync gives each handler its own.
type Bus struct {
	mu       sync.RWMutex
	handlers map[string][]entry
	allSubs  []entry
	nextID   uint64
	logger   *zap.Logger
}

type entry struct {
	id      uint64
	handler Handler
}

// NewBus creates an empty bus.
func NewBus(logger *zap.Logger) *Bus {
	return &Bus{
		handlers: make(map[string][]entry),
		logger:   logger,
	}
}

// Publish dispatches ev synchronously. A zero Timestamp is set to now.
func (b *Bus) Publish(ctx context.Context, ev Event) error {
	ev = stamp(ev)
	for _, h := range b.targets(ev.Topic) {
		b.safeCall(ctx, h.handler, ev)
	}
	return nil
}

// PublishAsync dispatches ev to every matching handler in a new goroutine.
func (b *Bus) PublishAsync(ctx context.Context, ev Event) {
	ev = stamp(ev)
	for _, h := range b.targets(ev.Topic) {
		go b.safeCall(ctx, h.handler, ev)
	}
}

// Subscribe registers handler for one topic and returns its unsubscribe func.
func (b *Bus) Subscribe(topic string, handler Handler) (unsubscribe func()) {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.handlers[topic] = append(b.handlers[topic], entry{id: id, handler: handler})
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.handlers[topic] = remove(b.handlers[topic], id)
	}
}

// SubscribeAll registers handler for every topic.
func (b *Bus) SubscribeAll(handler Handler) (unsubscribe func()) {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.allSubs = append(b.allSubs, entry{id: id, handler: handler})
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.allSubs = remove(b.allSubs, id)
	}
}

// targets snapshots the handlers for topic so dispatch runs unlocked.
func (b *Bus) targets(topic string) []entry {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]entry, 0, len(b.handlers[topic])+len(b.allSubs))
	out = append(out, b.handlers[topic]...)
	return append(out, b.allSubs...)
}

func remove(entries []entry, id uint64) []entry {
	for i, e := range entries {
		if e.id == id {
			return append(entries[:i:i], entries[i+1:]...)
		}
	}
	return entries
}

func stamp(ev Event) Event {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	return ev
}

func (b *Bus) safeCall(ctx context.Context, handler Handler, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event handler panicked",
				zap.String("topic", ev.Topic),
				zap.String("source", ev.Source),
				zap.Any("panic", r),
			)
		}
	}()
	handler(ctx, ev)
}
