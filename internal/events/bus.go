// Package events carries coordinator lifecycle events to in-process
// subscribers and to the JSONL audit log.
package events

import (
	"sync"
	"time"

	"github.com/msageha/tradedesk/internal/logger"
)

type EventType string

const (
	EventPhaseStarted      EventType = "phase_started"
	EventPhaseCompleted    EventType = "phase_completed"
	EventTaskDispatched    EventType = "task_dispatched"
	EventTaskCompleted     EventType = "task_completed"
	EventTaskDegraded      EventType = "task_degraded"
	EventTaskLateCompleted EventType = "task_late_completed"
	EventSessionFinalized  EventType = "session_finalized"

	// EventAll subscribes to every event type.
	EventAll EventType = "*"
)

type Event struct {
	Type      EventType      `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	SessionID string         `json:"session_id,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
}

type Subscriber func(Event)

// Bus is a non-blocking publish/subscribe bus. Each subscriber has a buffered
// channel; when it is full the event is dropped for that subscriber.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[EventType][]chan Event
	bufferSize  int
	wg          sync.WaitGroup
	now         func() time.Time
}

func NewBus(bufferSize int) *Bus {
	if bufferSize <= 0 {
		bufferSize = 100
	}
	return &Bus{
		subscribers: make(map[EventType][]chan Event),
		bufferSize:  bufferSize,
		now:         time.Now,
	}
}

// Subscribe registers fn for eventType, or for every type with EventAll. fn
// runs on its own goroutine; panics are recovered. The returned func
// unsubscribes.
func (b *Bus) Subscribe(eventType EventType, fn Subscriber) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Event, b.bufferSize)
	b.subscribers[eventType] = append(b.subscribers[eventType], ch)

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		for event := range ch {
			func() {
				defer func() {
					if r := recover(); r != nil {
						logger.L.WithField("event", event.Type).WithField("panic", r).Error("event subscriber panicked")
					}
				}()
				fn(event)
			}()
		}
	}()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()

		subs := b.subscribers[eventType]
		for i, subCh := range subs {
			if subCh == ch {
				b.subscribers[eventType] = append(subs[:i], subs[i+1:]...)
				close(ch)
				break
			}
		}
	}
}

// Publish delivers an event to the subscribers of its type and of EventAll.
func (b *Bus) Publish(eventType EventType, sessionID string, data map[string]any) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	event := Event{
		Type:      eventType,
		Timestamp: b.now().UTC(),
		SessionID: sessionID,
		Data:      data,
	}

	deliver := func(subs []chan Event) {
		for _, ch := range subs {
			select {
			case ch <- event:
			default:
				logger.L.WithField("event", eventType).Debug("subscriber buffer full, event dropped")
			}
		}
	}
	deliver(b.subscribers[eventType])
	if eventType != EventAll {
		deliver(b.subscribers[EventAll])
	}
}

// Close unsubscribes everyone and waits for queued events to be delivered.
func (b *Bus) Close() {
	b.mu.Lock()
	for eventType, subs := range b.subscribers {
		for _, ch := range subs {
			close(ch)
		}
		delete(b.subscribers, eventType)
	}
	b.mu.Unlock()
	b.wg.Wait()
}
