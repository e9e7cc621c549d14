// Package events provides an in-process bus for treasury lifecycle events.
// Consumers subscribe to receive status transitions for bridge transfers,
// executions and reconciliation runs.
package events

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Type identifies the kind of event
type Type string

const (
	TypeBridgeStatusChanged   Type = "bridge.status_changed"
	TypeExecutionCompleted    Type = "execution.completed"
	TypeExecutionFailed       Type = "execution.failed"
	TypeReconciliationStarted Type = "reconciliation.started"
	TypeReconciliationDone    Type = "reconciliation.done"
	TypeSafeDeployed          Type = "safe.deployed"
)

// Event is a lifecycle notification. Payload holds event-specific data.
type Event struct {
	ID        uuid.UUID
	Type      Type
	Timestamp time.Time
	Payload   map[string]string
}

// Bus fans events out to subscribers. Slow subscribers drop events rather
// than block publishers; the bus never backs up the settlement path.
type Bus struct {
	mu   sync.RWMutex
	subs map[uuid.UUID]chan Event
	size int
}

// NewBus creates a bus with the given per-subscriber buffer size.
func NewBus(bufferSize int) *Bus {
	if bufferSize <= 0 {
		bufferSize = 64
	}
	return &Bus{
		subs: make(map[uuid.UUID]chan Event),
		size: bufferSize,
	}
}

// Subscribe registers a new subscriber. The returned cancel function must be
// called to release the subscription.
func (b *Bus) Subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := uuid.New()
	ch := make(chan Event, b.size)
	b.subs[id] = ch

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if ch, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(ch)
		}
	}
	return ch, cancel
}

// Publish delivers an event to all subscribers. Delivery is best-effort:
// a subscriber with a full buffer misses the event.
func (b *Bus) Publish(eventType Type, payload map[string]string) {
	event := Event{
		ID:        uuid.New(),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- event:
		default:
		}
	}
}
