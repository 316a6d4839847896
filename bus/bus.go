// Package bus turns raw filesystem activity under the vault into typed
// change events and fans them out to in-process subscribers.
package bus

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/CalvinMagezi/agent-hq-sub000/logger"
)

// Event kinds. The set is open-ended; subscribers match on prefix or
// exact kind.
const (
	KindJobCreated   = "job:created"
	KindJobClaimed   = "job:claimed"
	KindJobCompleted = "job:completed"
	KindJobFailed    = "job:failed"

	KindTaskCreated   = "task:created"
	KindTaskClaimed   = "task:claimed"
	KindTaskCompleted = "task:completed"
	KindTaskFailed    = "task:failed"

	KindNoteCreated  = "note:created"
	KindNoteModified = "note:modified"
	KindNoteDeleted  = "note:deleted"

	KindSystemModified = "system:modified"

	KindApprovalCreated  = "approval:created"
	KindApprovalResolved = "approval:resolved"

	KindThreadUpdated = "thread:updated"
)

// Event is one observed vault change
type Event struct {
	Kind      string
	Path      string
	Data      map[string]string
	Timestamp time.Time
}

// Handler receives events for one subscriber
type Handler func(Event)

const subscriberBuffer = 1024

type subscriber struct {
	name string
	ch   chan Event
	done chan struct{}
}

// Bus fans events out to subscribers. Each subscriber gets events in
// publish order on its own goroutine, so a slow handler delays only
// itself. A subscriber that falls more than a full buffer behind loses
// events, with a warning.
type Bus struct {
	mu     sync.RWMutex
	subs   map[string]*subscriber
	closed bool
	log    *zap.SugaredLogger
}

// New creates an empty bus
func New() *Bus {
	return &Bus{
		subs: make(map[string]*subscriber),
		log:  logger.Named("bus"),
	}
}

// Subscribe registers a named handler. Re-subscribing a name replaces the
// previous subscription.
func (b *Bus) Subscribe(name string, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	if old, ok := b.subs[name]; ok {
		close(old.done)
	}

	sub := &subscriber{
		name: name,
		ch:   make(chan Event, subscriberBuffer),
		done: make(chan struct{}),
	}
	b.subs[name] = sub

	go func() {
		for {
			select {
			case ev := <-sub.ch:
				handler(ev)
			case <-sub.done:
				return
			}
		}
	}()
}

// Unsubscribe removes a named subscription
func (b *Bus) Unsubscribe(name string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if sub, ok := b.subs[name]; ok {
		close(sub.done)
		delete(b.subs, name)
	}
}

// Publish delivers an event to every subscriber
func (b *Bus) Publish(ev Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, sub := range b.subs {
		select {
		case sub.ch <- ev:
		default:
			b.log.Warnw("Dropping event for slow subscriber",
				"subscriber", sub.name, "kind", ev.Kind, "path", ev.Path)
		}
	}
}

// Close stops all subscriber goroutines
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for name, sub := range b.subs {
		close(sub.done)
		delete(b.subs, name)
	}
}
