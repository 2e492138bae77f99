package events

import (
	"sync"
	"time"

	"github.com/nkefor/cutover/pkg/types"
)

// EventType represents the type of deployment event
type EventType string

const (
	EventPhaseChanged     EventType = "deployment.phase_changed"
	EventPromoted         EventType = "deployment.promoted"
	EventRolledBack       EventType = "deployment.rolled_back"
	EventFailed           EventType = "deployment.failed"
	EventRollbackExecuted EventType = "rollback.executed"
	EventProbeFailed      EventType = "probe.failed"
)

// Event represents one deployment lifecycle event
type Event struct {
	Type         EventType
	DeploymentID string
	Service      string
	Phase        types.Phase
	Color        types.Color
	Timestamp    time.Time
	Message      string
}

// Subscriber is a channel that receives events
type Subscriber chan *Event

// Broker fans deployment events out to subscribers. Publishing never
// blocks the pipeline: slow subscribers drop events.
type Broker struct {
	subscribers map[Subscriber]bool
	mu          sync.RWMutex
	eventCh     chan *Event
	stopCh      chan struct{}
}

// NewBroker creates a new event broker
func NewBroker() *Broker {
	return &Broker{
		subscribers: make(map[Subscriber]bool),
		eventCh:     make(chan *Event, 64),
		stopCh:      make(chan struct{}),
	}
}

// Start begins the broker's distribution loop
func (b *Broker) Start() {
	go b.run()
}

// Stop stops the broker
func (b *Broker) Stop() {
	close(b.stopCh)
}

// Subscribe creates a new subscription and returns its channel
func (b *Broker) Subscribe() Subscriber {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := make(Subscriber, 32)
	b.subscribers[sub] = true
	return sub
}

// Unsubscribe removes a subscription and closes its channel
func (b *Broker) Unsubscribe(sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.subscribers, sub)
	close(sub)
}

// Publish sends an event to all subscribers
func (b *Broker) Publish(event *Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	select {
	case b.eventCh <- event:
	case <-b.stopCh:
	}
}

func (b *Broker) run() {
	for {
		select {
		case event := <-b.eventCh:
			b.broadcast(event)
		case <-b.stopCh:
			return
		}
	}
}

func (b *Broker) broadcast(event *Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for sub := range b.subscribers {
		select {
		case sub <- event:
		default:
			// Subscriber buffer full, skip
		}
	}
}

// SubscriberCount returns the number of active subscribers
func (b *Broker) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}
