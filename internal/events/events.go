package events

import (
	"time"

	"github.com/kaustubh-5016/Federated-Learning-Traffic/internal/model"
)

// Event represents a generic event structure
type Event struct {
	Type      string
	Timestamp time.Time
	Data      interface{}
}

// ClientStatusChangeEvent is published when a client's self-reported status
// record differs from the previously observed one.
type ClientStatusChangeEvent struct {
	ClientId string
	Status   model.StatusRecord
}

// RoundCompletedEvent is published after every aggregation step.
type RoundCompletedEvent struct {
	Round    int32
	MeanLoss float64
}

// RunFinishedEvent is published once the configured round count is exhausted
// or the run aborts.
type RunFinishedEvent struct {
	ExitCode    int32
	ExitMessage string
}

// EventBus represents the event bus that handles event subscription and dispatching
type EventBus struct {
	subscribers map[string][]chan<- Event
}

// NewEventBus creates a new instance of the event bus
func NewEventBus() *EventBus {
	return &EventBus{
		subscribers: make(map[string][]chan<- Event),
	}
}

// Subscribe adds a new subscriber for a given event type
func (eb *EventBus) Subscribe(eventType string, subscriber chan<- Event) {
	eb.subscribers[eventType] = append(eb.subscribers[eventType], subscriber)
}

// Publish sends an event to all subscribers of a given event type
func (eb *EventBus) Publish(event Event) {
	subscribers := eb.subscribers[event.Type]
	for _, subscriber := range subscribers {
		subscriber <- event
	}
}
