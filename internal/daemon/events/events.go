// Package events provides a broadcast bus for daemon-internal notifications.
// The server fans events out to connected browser UIs over SSE; other
// components (registry, dev discovery, watcher) publish without knowing
// who is listening.
package events

import (
	"sync"

	"github.com/google/uuid"

	"github.com/qol-tools/qol-tray/internal/models"
)

// Event types published on the bus.
const (
	TypePluginsChanged    = "plugins_changed"
	TypeDiscoveryStarted  = "discovery_started"
	TypeDiscoveryComplete = "discovery_complete"
)

// Event is a single bus notification. The JSON form is what SSE clients
// receive verbatim.
type Event struct {
	Type    string                    `json:"type"`
	Plugins []models.DiscoveredPlugin `json:"plugins,omitempty"`
}

// subscriberCap is the buffer size of each subscriber channel. A consumer
// that falls further behind than this loses events rather than blocking
// publishers.
const subscriberCap = 64

// Bus is a fan-out broadcast bus. Publish never blocks.
type Bus struct {
	mu   sync.RWMutex
	subs map[string]chan Event
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{
		subs: make(map[string]chan Event),
	}
}

// Subscribe registers a new subscriber and returns its ID and channel.
// The caller must Unsubscribe with the returned ID when done.
func (b *Bus) Subscribe() (string, <-chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := uuid.New().String()
	ch := make(chan Event, subscriberCap)
	b.subs[id] = ch
	return id, ch
}

// Unsubscribe removes a subscription and closes its channel.
func (b *Bus) Unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if ch, ok := b.subs[id]; ok {
		close(ch)
		delete(b.subs, id)
	}
}

// Publish sends an event to all subscribers. Non-blocking: drops if a
// subscriber's channel is full.
func (b *Bus) Publish(ev Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
			// Drop if subscriber can't keep up
		}
	}
}

// PluginsChanged announces that the installed plugin set changed.
func (b *Bus) PluginsChanged() {
	b.Publish(Event{Type: TypePluginsChanged})
}

// DiscoveryStarted announces that a dev-mode plugin discovery scan began.
func (b *Bus) DiscoveryStarted() {
	b.Publish(Event{Type: TypeDiscoveryStarted})
}

// DiscoveryComplete announces a finished discovery scan with its results.
func (b *Bus) DiscoveryComplete(plugins []models.DiscoveredPlugin) {
	b.Publish(Event{Type: TypeDiscoveryComplete, Plugins: plugins})
}

// SubscriberCount returns the number of active subscribers.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
