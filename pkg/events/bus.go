package events

import (
	"sync"
	"time"

	"github.com/code-100-precent/LingBook/pkg/logger"
	"go.uber.org/zap"
)

// Document lifecycle events published by the batch driver.
const (
	DocumentStarted   = "document.started"
	DocumentCompleted = "document.completed"
	DocumentFailed    = "document.failed"

	// Wildcard subscribers receive every event.
	Wildcard = "*"
)

// Event is one lifecycle notification.
type Event struct {
	Type      string                 `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
	Source    string                 `json:"source"`
}

type EventHandler func(event Event) error

// EventBus delivers events to handlers on their own goroutines.
type EventBus struct {
	handlers map[string][]EventHandler
	counts   map[string]int
	mu       sync.RWMutex
	inflight sync.WaitGroup
}

func New() *EventBus {
	return &EventBus{
		handlers: make(map[string][]EventHandler),
		counts:   make(map[string]int),
	}
}

func (bus *EventBus) Subscribe(eventType string, handler EventHandler) {
	bus.mu.Lock()
	defer bus.mu.Unlock()
	bus.handlers[eventType] = append(bus.handlers[eventType], handler)
	logger.Debug("event handler subscribed", zap.String("eventType", eventType))
}

// Unsubscribe removes every handler for eventType.
func (bus *EventBus) Unsubscribe(eventType string) {
	bus.mu.Lock()
	defer bus.mu.Unlock()
	delete(bus.handlers, eventType)
}

func (bus *EventBus) Publish(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	bus.mu.Lock()
	bus.counts[event.Type]++
	handlers := make([]EventHandler, 0, len(bus.handlers[event.Type])+len(bus.handlers[Wildcard]))
	handlers = append(handlers, bus.handlers[event.Type]...)
	handlers = append(handlers, bus.handlers[Wildcard]...)
	bus.mu.Unlock()

	if len(handlers) == 0 {
		logger.Debug("no handlers for event", zap.String("eventType", event.Type))
		return
	}

	for _, h := range handlers {
		bus.inflight.Add(1)
		go func(h EventHandler) {
			defer bus.inflight.Done()
			if err := h(event); err != nil {
				logger.Error("event handler failed",
					zap.String("eventType", event.Type),
					zap.Error(err))
			}
		}(h)
	}
}

// Wait blocks until every handler started so far has returned.
func (bus *EventBus) Wait() {
	bus.inflight.Wait()
}

// Counts reports how many times each event type was published.
func (bus *EventBus) Counts() map[string]int {
	bus.mu.RLock()
	defer bus.mu.RUnlock()
	out := make(map[string]int, len(bus.counts))
	for k, v := range bus.counts {
		out[k] = v
	}
	return out
}
