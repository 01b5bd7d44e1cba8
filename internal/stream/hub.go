// Package stream fans engine events out to notification and
// persistence consumers without letting a slow consumer stall the
// monitor loop.
package stream

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"bist-sentinel/internal/models"
)

// EventKind labels what an event envelope carries.
type EventKind string

const (
	// KindDecision marks a freshly built decision.
	KindDecision EventKind = "decision"
	// KindPosition marks a position lifecycle transition.
	KindPosition EventKind = "position"
	// KindAlarm marks a fired threshold alarm.
	KindAlarm EventKind = "alarm"
)

// Event is the envelope distributed by the hub. Exactly one of the
// payload pointers is set, matching Kind.
type Event struct {
	Kind     EventKind              `json:"kind"`
	Symbol   string                 `json:"symbol"`
	Time     time.Time              `json:"time"`
	Price    float64                `json:"price"`
	Decision *models.Decision       `json:"decision,omitempty"`
	Position *models.PositionEvent  `json:"position,omitempty"`
	Alarm    *models.ThresholdAlarm `json:"alarm,omitempty"`
}

// NewDecisionEvent wraps a decision for broadcast.
func NewDecisionEvent(dec *models.Decision) Event {
	return Event{
		Kind:     KindDecision,
		Symbol:   dec.Symbol,
		Time:     dec.CreatedAt,
		Price:    dec.Price,
		Decision: dec,
	}
}

// NewPositionEvent wraps a lifecycle event for broadcast.
func NewPositionEvent(ev models.PositionEvent) Event {
	return Event{
		Kind:     KindPosition,
		Symbol:   ev.Symbol,
		Time:     ev.Time,
		Price:    ev.Price,
		Position: &ev,
	}
}

// NewAlarmEvent wraps a fired alarm for broadcast.
func NewAlarmEvent(alarm models.ThresholdAlarm, price float64, now time.Time) Event {
	return Event{
		Kind:   KindAlarm,
		Symbol: alarm.Symbol,
		Time:   now,
		Price:  price,
		Alarm:  &alarm,
	}
}

// HubConfig controls the hub's buffering.
type HubConfig struct {
	// BufferSize is the intake buffer between Publish and the
	// broadcast loop.
	BufferSize int
	// SubscriberBufferSize is the per-subscription channel buffer.
	SubscriberBufferSize int
}

// DefaultHubConfig returns buffer sizes comfortable for a daily-bar
// engine, where bursts stay small.
func DefaultHubConfig() HubConfig {
	return HubConfig{
		BufferSize:           256,
		SubscriberBufferSize: 32,
	}
}

// Hub distributes events to channel subscribers and registered push
// consumers. Publishing never blocks: when a buffer is full the
// oldest queued event is evicted to make room for the newest.
type Hub struct {
	config HubConfig

	mu          sync.RWMutex
	subscribers []*Subscription
	started     bool

	consumersMu sync.RWMutex
	consumers   []Consumer

	events chan Event
	done   chan struct{}

	metricsMu       sync.RWMutex
	eventsReceived  uint64
	eventsBroadcast uint64
	eventsDropped   uint64
}

// NewHub creates a hub with default configuration.
func NewHub() *Hub {
	return NewHubWithConfig(DefaultHubConfig())
}

// NewHubWithConfig creates a hub with custom buffering.
func NewHubWithConfig(config HubConfig) *Hub {
	def := DefaultHubConfig()
	if config.BufferSize <= 0 {
		config.BufferSize = def.BufferSize
	}
	if config.SubscriberBufferSize <= 0 {
		config.SubscriberBufferSize = def.SubscriberBufferSize
	}
	return &Hub{
		config: config,
		events: make(chan Event, config.BufferSize),
		done:   make(chan struct{}),
	}
}

// Start launches the broadcast loop. Calling Start twice is a no-op.
func (h *Hub) Start(ctx context.Context) {
	h.mu.Lock()
	if h.started {
		h.mu.Unlock()
		return
	}
	h.started = true
	h.mu.Unlock()

	go h.broadcastLoop(ctx)
}

func (h *Hub) broadcastLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-h.done:
			return
		case ev := <-h.events:
			h.metricsMu.Lock()
			h.eventsReceived++
			h.metricsMu.Unlock()

			h.Broadcast(ev)
		}
	}
}

// Stop halts the broadcast loop and closes every subscriber channel.
func (h *Hub) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.started {
		return
	}
	h.started = false
	close(h.done)

	for _, sub := range h.subscribers {
		close(sub.ch)
	}
	h.subscribers = nil
}

// IsStarted returns whether the broadcast loop is running.
func (h *Hub) IsStarted() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.started
}

// Publish queues an event for asynchronous broadcast. When the intake
// buffer is full the oldest queued event is evicted first.
func (h *Hub) Publish(ev Event) {
	select {
	case h.events <- ev:
		return
	default:
	}

	select {
	case <-h.events:
		h.metricsMu.Lock()
		h.eventsDropped++
		h.metricsMu.Unlock()
	default:
	}

	select {
	case h.events <- ev:
	default:
		h.metricsMu.Lock()
		h.eventsDropped++
		h.metricsMu.Unlock()
	}
}

// Broadcast delivers an event to matching subscribers and consumers
// without going through the intake buffer.
func (h *Hub) Broadcast(ev Event) {
	h.mu.RLock()
	subs := make([]*Subscription, len(h.subscribers))
	copy(subs, h.subscribers)
	h.mu.RUnlock()

	for _, sub := range subs {
		if !sub.wants(ev.Kind) {
			continue
		}
		h.deliver(sub, ev)
	}

	h.notifyConsumers(ev)
}

// deliver pushes an event into one subscription buffer, evicting the
// oldest queued event when the buffer is full.
func (h *Hub) deliver(sub *Subscription, ev Event) {
	select {
	case sub.ch <- ev:
		h.metricsMu.Lock()
		h.eventsBroadcast++
		h.metricsMu.Unlock()
		return
	default:
	}

	select {
	case <-sub.ch:
		atomic.AddUint64(&sub.dropped, 1)
		h.metricsMu.Lock()
		h.eventsDropped++
		h.metricsMu.Unlock()
	default:
	}

	select {
	case sub.ch <- ev:
		h.metricsMu.Lock()
		h.eventsBroadcast++
		h.metricsMu.Unlock()
	default:
		atomic.AddUint64(&sub.dropped, 1)
		h.metricsMu.Lock()
		h.eventsDropped++
		h.metricsMu.Unlock()
	}
}

// Subscription is one subscriber's view of the hub. Events are read
// from C until the hub closes it.
type Subscription struct {
	ID        string
	C         <-chan Event
	CreatedAt time.Time

	ch      chan Event
	kinds   map[EventKind]bool
	dropped uint64
}

// Dropped reports how many events this subscription lost to a full
// buffer.
func (s *Subscription) Dropped() uint64 {
	return atomic.LoadUint64(&s.dropped)
}

func (s *Subscription) wants(kind EventKind) bool {
	if len(s.kinds) == 0 {
		return true
	}
	return s.kinds[kind]
}

// Subscribe registers a channel subscriber. With no kinds given the
// subscription receives every event.
func (h *Hub) Subscribe(kinds ...EventKind) *Subscription {
	sub := &Subscription{
		ID:        uuid.New().String(),
		CreatedAt: time.Now(),
		ch:        make(chan Event, h.config.SubscriberBufferSize),
	}
	sub.C = sub.ch
	if len(kinds) > 0 {
		sub.kinds = make(map[EventKind]bool, len(kinds))
		for _, k := range kinds {
			sub.kinds[k] = true
		}
	}

	h.mu.Lock()
	h.subscribers = append(h.subscribers, sub)
	h.mu.Unlock()

	return sub
}

// Unsubscribe removes a subscription and closes its channel.
func (h *Hub) Unsubscribe(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for i, s := range h.subscribers {
		if s == sub {
			close(s.ch)
			h.subscribers = append(h.subscribers[:i], h.subscribers[i+1:]...)
			return
		}
	}
}

// GetSubscriberCount returns the number of active subscriptions.
func (h *Hub) GetSubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}

// Consumer receives events pushed by the hub. Each delivery runs in
// its own goroutine so a slow consumer cannot stall the broadcast.
type Consumer interface {
	// OnEvent is called for each matching event.
	OnEvent(ev Event)
	// Kinds filters delivery. Nil or empty means every kind.
	Kinds() []EventKind
}

// RegisterConsumer adds a push consumer.
func (h *Hub) RegisterConsumer(consumer Consumer) {
	h.consumersMu.Lock()
	h.consumers = append(h.consumers, consumer)
	h.consumersMu.Unlock()
}

// UnregisterConsumer removes a previously registered consumer.
func (h *Hub) UnregisterConsumer(consumer Consumer) {
	h.consumersMu.Lock()
	defer h.consumersMu.Unlock()

	for i, c := range h.consumers {
		if c == consumer {
			h.consumers = append(h.consumers[:i], h.consumers[i+1:]...)
			break
		}
	}
}

func (h *Hub) notifyConsumers(ev Event) {
	h.consumersMu.RLock()
	consumers := make([]Consumer, len(h.consumers))
	copy(consumers, h.consumers)
	h.consumersMu.RUnlock()

	for _, consumer := range consumers {
		kinds := consumer.Kinds()
		if len(kinds) == 0 || containsKind(kinds, ev.Kind) {
			go consumer.OnEvent(ev)
		}
	}
}

func containsKind(kinds []EventKind, kind EventKind) bool {
	for _, k := range kinds {
		if k == kind {
			return true
		}
	}
	return false
}

// ConsumerFunc adapts a plain function to the Consumer interface.
type ConsumerFunc struct {
	kinds []EventKind
	fn    func(Event)
}

// NewConsumerFunc creates a consumer from a function. With no kinds
// the function sees every event.
func NewConsumerFunc(kinds []EventKind, fn func(Event)) *ConsumerFunc {
	return &ConsumerFunc{kinds: kinds, fn: fn}
}

// OnEvent implements Consumer.
func (c *ConsumerFunc) OnEvent(ev Event) {
	if c.fn != nil {
		c.fn(ev)
	}
}

// Kinds implements Consumer.
func (c *ConsumerFunc) Kinds() []EventKind {
	return c.kinds
}

// HubMetrics contains hub throughput counters.
type HubMetrics struct {
	EventsReceived  uint64
	EventsBroadcast uint64
	EventsDropped   uint64
	Subscribers     int
	Consumers       int
}

// GetMetrics returns a snapshot of the hub counters.
func (h *Hub) GetMetrics() HubMetrics {
	h.consumersMu.RLock()
	consumers := len(h.consumers)
	h.consumersMu.RUnlock()

	h.metricsMu.RLock()
	defer h.metricsMu.RUnlock()

	return HubMetrics{
		EventsReceived:  h.eventsReceived,
		EventsBroadcast: h.eventsBroadcast,
		EventsDropped:   h.eventsDropped,
		Subscribers:     h.GetSubscriberCount(),
		Consumers:       consumers,
	}
}
