// internal/handler/event_bus.go
package handler

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"v850-service/internal/model"
)

// EventBus fans session events out to subscribers.
type EventBus struct {
	subscribers map[model.EventType][]chan *model.SessionEvent
	all         []chan *model.SessionEvent
	events      chan *model.SessionEvent
	mutex       sync.RWMutex
	logger      *zap.Logger
}

// NewEventBus creates a new event bus
func NewEventBus(logger *zap.Logger) *EventBus {
	return &EventBus{
		subscribers: make(map[model.EventType][]chan *model.SessionEvent),
		events:      make(chan *model.SessionEvent, 1000),
		logger:      logger,
	}
}

// Start distributes published events until ctx ends.
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

// Publish queues an event without blocking the caller.
func (eb *EventBus) Publish(event *model.SessionEvent) {
	select {
	case eb.events <- event:
	default:
		if eb.logger != nil {
			eb.logger.Warn("Event bus full, dropping event",
				zap.String("event_type", string(event.EventType)),
				zap.String("session_id", event.SessionID.String()),
			)
		}
	}
}

// Subscribe returns a channel receiving events of the given types, or of
// every type when none are given.
func (eb *EventBus) Subscribe(eventTypes ...model.EventType) <-chan *model.SessionEvent {
	eb.mutex.Lock()
	defer eb.mutex.Unlock()

	subscriber := make(chan *model.SessionEvent, 100)
	if len(eventTypes) == 0 {
		eb.all = append(eb.all, subscriber)
		return subscriber
	}
	for _, t := range eventTypes {
		eb.subscribers[t] = append(eb.subscribers[t], subscriber)
	}
	return subscriber
}

// Unsubscribe removes and closes a channel returned by Subscribe.
func (eb *EventBus) Unsubscribe(ch <-chan *model.SessionEvent) {
	eb.mutex.Lock()
	defer eb.mutex.Unlock()

	var found chan *model.SessionEvent
	eb.all = remove(eb.all, ch, &found)
	for t, subs := range eb.subscribers {
		eb.subscribers[t] = remove(subs, ch, &found)
	}
	if found != nil {
		close(found)
	}
}

func remove(subs []chan *model.SessionEvent, ch <-chan *model.SessionEvent, found *chan *model.SessionEvent) []chan *model.SessionEvent {
	kept := subs[:0]
	for _, s := range subs {
		if (<-chan *model.SessionEvent)(s) == ch {
			*found = s
			continue
		}
		kept = append(kept, s)
	}
	return kept
}

// distributeEvent distributes an event to subscribers
func (eb *EventBus) distributeEvent(event *model.SessionEvent) {
	eb.mutex.RLock()
	defer eb.mutex.RUnlock()

	for _, subs := range [][]chan *model.SessionEvent{eb.subscribers[event.EventType], eb.all} {
		for _, subscriber := range subs {
			select {
			case subscriber <- event:
			default:
				// Subscriber is slow, skip
			}
		}
	}
}
