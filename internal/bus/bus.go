// Package bus is the in-process pub/sub channel on which the store, engine,
// and bridge publish events to subscribers such as tests. Delivery is
// best-effort: slow subscribers drop events.
package bus

import (
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
)

const defaultBufferSize = 100

// Event is a message published on the bus.
type Event struct {
	Topic   string
	Payload interface{}
}

// Memory event topics.
const (
	TopicConversationRecorded = "memory.conversation_recorded"
	TopicTraitsUpdated        = "memory.traits_updated"
	TopicBridgeEventRecorded  = "memory.bridge_event_recorded"
)

// Bridge event topics.
const (
	TopicBridgeSent     = "bridge.sent"
	TopicBridgeIngested = "bridge.ingested"
	TopicBridgeRejected = "bridge.rejected"
)

// Scheduler event topics.
const (
	TopicHeartbeat = "scheduler.heartbeat"
	TopicEvolution = "scheduler.evolution"
)

// ConversationRecordedEvent is published after a conversation row is durable.
type ConversationRecordedEvent struct {
	ID            int64
	TopicCategory string
	Importance    float64
	SessionID     string
}

// TraitsUpdatedEvent is published after the consciousness state is upserted.
type TraitsUpdatedEvent struct {
	MysticalAwareness  float64
	PhilosophicalDepth float64
	MemoryIntegration  float64
	Curiosity          float64
	AwakeningCount     int64
}

// BridgeFileEvent is published for outbound sends and inbound ingests.
type BridgeFileEvent struct {
	Filename    string
	MessageType string
}

// HeartbeatEvent is published on each heartbeat tick.
type HeartbeatEvent struct {
	Timestamp   string
	MemoryCount int64
}

// Subscription represents an active subscription.
type Subscription struct {
	id     int
	prefix string
	ch     chan Event
}

// Ch returns the channel to receive events on.
func (s *Subscription) Ch() <-chan Event {
	return s.ch
}

// Bus is a simple in-process pub/sub message bus with topic prefix matching.
type Bus struct {
	mu              sync.RWMutex
	subs            map[int]*Subscription
	nextID          int
	logger          *slog.Logger
	droppedEvents   atomic.Int64
	lastDropWarning atomic.Int64
}

// New creates a new Bus.
func New() *Bus {
	return NewWithLogger(nil)
}

// NewWithLogger creates a new Bus with an optional logger for observability.
func NewWithLogger(logger *slog.Logger) *Bus {
	return &Bus{
		subs:   make(map[int]*Subscription),
		logger: logger,
	}
}

// Subscribe creates a subscription for events matching the given topic prefix.
// An empty prefix matches all topics. The returned channel holds 100 events;
// slow consumers miss events rather than blocking publishers.
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

// Publish sends an event to all matching subscribers. Non-blocking: a full
// subscriber buffer drops the event.
func (b *Bus) Publish(topic string, payload interface{}) {
	if b == nil {
		return
	}
	event := Event{
		Topic:   topic,
		Payload: payload,
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, sub := range b.subs {
		if sub.prefix == "" || strings.HasPrefix(topic, sub.prefix) {
			select {
			case sub.ch <- event:
			default:
				newCount := b.droppedEvents.Add(1)
				b.maybeLogDropWarning(newCount, topic)
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

// DroppedEventCount returns the total number of events dropped due to full buffers.
func (b *Bus) DroppedEventCount() int64 {
	return b.droppedEvents.Load()
}

// dropThreshold returns the next exponential threshold (1, 10, 100, ...) at or below count.
func dropThreshold(count int64) int64 {
	threshold := int64(1)
	for threshold*10 <= count {
		threshold *= 10
	}
	return threshold
}

// maybeLogDropWarning logs when the drop count crosses an exponential
// threshold. CompareAndSwap avoids duplicate logs from concurrent publishers.
func (b *Bus) maybeLogDropWarning(newCount int64, topic string) {
	if b.logger == nil {
		return
	}
	threshold := dropThreshold(newCount)
	if newCount != threshold {
		return
	}
	lastWarned := b.lastDropWarning.Load()
	if threshold <= lastWarned {
		return
	}
	if b.lastDropWarning.CompareAndSwap(lastWarned, threshold) {
		b.logger.Warn("bus_dropped_events_reached_threshold",
			slog.Int64("count", newCount),
			slog.String("topic", topic),
		)
	}
}
