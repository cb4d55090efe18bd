package objects

import (
	"sync"
	"time"
)

// EventType names one higher-level lifecycle event a built-in object's
// Execute handler can raise, outside the data model engine itself (spec
// §4.5 "Execute handlers on Server resources emit higher-level events").
type EventType string

const (
	EventDisable                 EventType = "server.disable"
	EventRegistrationUpdateTrig  EventType = "server.registration_update_trigger"
	EventBootstrapRequestTrigger EventType = "server.bootstrap_request_trigger"
	EventFirmwareUpdateRequested EventType = "firmware.update_requested"
	EventDeviceRebootRequested   EventType = "device.reboot_requested"
)

// Event is one published lifecycle event.
type Event struct {
	Type      EventType
	SSID      uint16
	Timestamp time.Time
	Message   string
}

// Subscriber is a channel that receives events.
type Subscriber chan Event

// Broker fans lifecycle events raised by built-in object Execute handlers
// out to every subscriber. Adapted from the teacher's pkg/events.Broker:
// kept the buffered-channel-per-subscriber fan-out (this is a genuine
// N-subscriber broadcast, unlike the observation subsystem's
// at-most-one-in-flight requirement, so the teacher's plain broadcast
// pattern applies unchanged here).
type Broker struct {
	mu          sync.RWMutex
	subscribers map[Subscriber]bool
	eventCh     chan Event
	stopCh      chan struct{}
}

// NewBroker creates a Broker and does not start its distribution loop;
// call Start.
func NewBroker() *Broker {
	return &Broker{
		subscribers: make(map[Subscriber]bool),
		eventCh:     make(chan Event, 100),
		stopCh:      make(chan struct{}),
	}
}

// Start begins the broker's event distribution loop in the background.
func (b *Broker) Start() {
	go b.run()
}

// Stop ends the distribution loop.
func (b *Broker) Stop() {
	close(b.stopCh)
}

// Subscribe returns a new channel that receives every subsequently
// published event.
func (b *Broker) Subscribe() Subscriber {
	b.mu.Lock()
	defer b.mu.Unlock()
	sub := make(Subscriber, 16)
	b.subscribers[sub] = true
	return sub
}

// Unsubscribe removes sub and closes it.
func (b *Broker) Unsubscribe(sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.subscribers[sub] {
		delete(b.subscribers, sub)
		close(sub)
	}
}

// Publish queues ev for delivery to every current subscriber.
func (b *Broker) Publish(ev Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	select {
	case b.eventCh <- ev:
	case <-b.stopCh:
	}
}

func (b *Broker) run() {
	for {
		select {
		case ev := <-b.eventCh:
			b.broadcast(ev)
		case <-b.stopCh:
			return
		}
	}
}

func (b *Broker) broadcast(ev Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for sub := range b.subscribers {
		select {
		case sub <- ev:
		default:
		}
	}
}
