// Package bus is the in-process pub/sub channel between the reconciliation
// engine and the presentation layer. The engine publishes merge reports and
// state changes; renderers subscribe. The engine never imports the UI.
package bus

import (
	"strings"
	"sync"
)

const defaultBufferSize = 64

// Event is a message published on the bus.
type Event struct {
	Topic   string
	Payload any
}

// Engine event topics.
const (
	TopicSyncReport   = "sync.report"   // payload: engine.MergeReport
	TopicSyncState    = "sync.state"    // payload: StateChangedEvent
	TopicTaskConflict = "task.conflict" // payload: TaskConflictEvent
	TopicUndoExpired  = "undo.expired"  // payload: UndoEvent
	TopicUndoReverted = "undo.reverted" // payload: UndoEvent
	TopicRollover     = "day.rollover"  // payload: RolloverEvent
)

// StateChangedEvent is published when the sync state machine transitions.
type StateChangedEvent struct {
	Old string
	New string
}

// TaskConflictEvent is published when a mutation is permanently rejected
// and its task flagged for user-visible indication.
type TaskConflictEvent struct {
	TaskID string
	Reason string
}

// UndoEvent is published when an undo window expires or is used.
type UndoEvent struct {
	TaskID string
}

// RolloverEvent is published after a daily rollover freezes the prior day.
type RolloverEvent struct {
	Date      string // frozen day, "YYYY-MM-DD"
	DoneCount int
}

// Subscription represents an active subscription.
type Subscription struct {
	id     int
	prefix string
	ch     chan Event
}

// Ch returns the channel to receive events on.
func (s *Subscription) Ch() <-chan Event { return s.ch }

// Bus is a simple in-process pub/sub bus with topic prefix matching.
type Bus struct {
	mu     sync.RWMutex
	subs   map[int]*Subscription
	nextID int
}

// New creates a new Bus.
func New() *Bus {
	return &Bus{subs: make(map[int]*Subscription)}
}

// Subscribe creates a subscription for events matching the given topic
// prefix. An empty prefix matches all topics. Delivery is buffered and
// non-blocking; a slow consumer misses events rather than stalling a sync
// cycle.
func (b *Bus) Subscribe(topicPrefix string) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	sub := &Subscription{
		id:     b.nextID,
		prefix: topicPrefix,
		ch:     make(chan Event, defaultBufferSize),
	}
	b.subs[sub.id] = sub
	return sub
}

// Unsubscribe removes a subscription and closes its channel.
func (b *Bus) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.subs[sub.id]; ok {
		delete(b.subs, sub.id)
		close(sub.ch)
	}
}

// Publish sends an event to all matching subscribers without blocking.
func (b *Bus) Publish(topic string, payload any) {
	event := Event{Topic: topic, Payload: payload}

	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, sub := range b.subs {
		if sub.prefix == "" || strings.HasPrefix(topic, sub.prefix) {
			select {
			case sub.ch <- event:
			default:
				// Buffer full, drop event for this subscriber.
			}
		}
	}
}

// SubscriberCount returns the number of active subscriptions.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
