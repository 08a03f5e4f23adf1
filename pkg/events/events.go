// Package events implements the synchronous event bus the arbitration
// engine uses to notify observers of resource-set lifecycle transitions.
package events

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Type identifies a resource-set lifecycle event. Event identifiers are
// integer-interned by name on first use (see intern), matching the bus's
// delivery contract.
type Type string

const (
	ResourceSetCreated   Type = "resource_set_created"
	ResourceSetDestroyed Type = "resource_set_destroyed"
	ResourceSetAcquire   Type = "resource_set_acquire"
	ResourceSetRelease   Type = "resource_set_release"
)

// Event is a single resource-set lifecycle notification. Payload is
// always the tag-1 shape `{rset_id}` per the event bus contract; Message
// and Metadata carry diagnostic context beyond the wire payload.
type Event struct {
	ID        string
	Type      Type
	RsetID    uint32
	Timestamp time.Time
	Message   string
	Metadata  map[string]string
}

// Subscriber is a channel that receives events.
type Subscriber chan *Event

var (
	internMu  sync.Mutex
	nextID    uint32
	internTab = map[Type]uint32{}
)

// intern returns the dense integer id assigned to an event type,
// assigning one on first use.
func intern(t Type) uint32 {
	internMu.Lock()
	defer internMu.Unlock()
	if id, ok := internTab[t]; ok {
		return id
	}
	nextID++
	internTab[t] = nextID
	return nextID
}

// InternedID returns the integer id interned for t, assigning one on
// first use if t has not been seen before.
func InternedID(t Type) uint32 {
	return intern(t)
}

// Bus delivers resource-set lifecycle events to subscribers. Delivery is
// synchronous within the emitting call: Publish invokes every
// subscriber's channel send before returning, mirroring the arbitration
// engine's single-threaded, non-yielding call contract.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[Subscriber]bool
}

// NewBus creates an empty event bus.
func NewBus() *Bus {
	return &Bus{
		subscribers: make(map[Subscriber]bool),
	}
}

// Subscribe registers a new subscription and returns its channel.
func (b *Bus) Subscribe() Subscriber {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := make(Subscriber, 64)
	b.subscribers[sub] = true
	return sub
}

// Unsubscribe removes a subscription and closes its channel.
func (b *Bus) Unsubscribe(sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.subscribers[sub]; ok {
		delete(b.subscribers, sub)
		close(sub)
	}
}

// Publish delivers an event to every current subscriber synchronously.
// Subscribers with a full buffer miss the event rather than blocking the
// arbitration call that emitted it.
func (b *Bus) Publish(evt *Event) {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}
	if evt.ID == "" {
		evt.ID = uuid.NewString()
	}
	intern(evt.Type)

	b.mu.RLock()
	defer b.mu.RUnlock()

	for sub := range b.subscribers {
		select {
		case sub <- evt:
		default:
		}
	}
}

// SubscriberCount returns the number of active subscriptions.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}
