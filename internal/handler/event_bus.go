// internal/handler/event_bus.go
package handler

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"scanner-service/internal/model"
)

// EventBus fans session events out to subscribers
type EventBus struct {
	subscribers map[int]*subscription
	nextID      int
	events      chan *model.SessionEvent
	mutex       sync.RWMutex
	logger      *zap.Logger
}

type subscription struct {
	types map[model.EventType]bool
	ch    chan *model.SessionEvent
}

func (s *subscription) wants(eventType model.EventType) bool {
	return len(s.types) == 0 || s.types[eventType]
}

// NewEventBus creates a new event bus
func NewEventBus(logger *zap.Logger) *EventBus {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EventBus{
		subscribers: make(map[int]*subscription),
		events:      make(chan *model.SessionEvent, 1000),
		logger:      logger.With(zap.String("component", "event-bus")),
	}
}

// Start distributes published events until ctx is done
func (eb *EventBus) Start(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event := <-eb.events:
			eb.distributeEvent(event)
		}
	}
}

// Publish queues an event without blocking the session that produced it
func (eb *EventBus) Publish(event *model.SessionEvent) {
	select {
	case eb.events <- event:
	default:
		eb.logger.Warn("Event bus full, dropping event",
			zap.String("event_type", string(event.EventType)),
			zap.String("session_id", event.SessionID.String()),
		)
	}
}

// Subscribe returns a channel of events of the given types, or of every
// type when none are given, and a function that ends the subscription.
func (eb *EventBus) Subscribe(types ...model.EventType) (<-chan *model.SessionEvent, func()) {
	eb.mutex.Lock()
	defer eb.mutex.Unlock()

	sub := &subscription{
		types: make(map[model.EventType]bool, len(types)),
		ch:    make(chan *model.SessionEvent, 100),
	}
	for _, t := range types {
		sub.types[t] = true
	}

	id := eb.nextID
	eb.nextID++
	eb.subscribers[id] = sub

	var once sync.Once
	return sub.ch, func() {
		once.Do(func() {
			eb.mutex.Lock()
			delete(eb.subscribers, id)
			eb.mutex.Unlock()
			close(sub.ch)
		})
	}
}

// distributeEvent distributes an event to subscribers
func (eb *EventBus) distributeEvent(event *model.SessionEvent) {
	eb.mutex.RLock()
	defer eb.mutex.RUnlock()

	for _, sub := range eb.subscribers {
		if !sub.wants(event.EventType) {
			continue
		}
		select {
		case sub.ch <- event:
		default:
			// Subscriber is slow, skip
		}
	}
}
