// Package events fans recording notifications out to in-process
// subscribers, such as the SSE stream, with a short replay buffer.
package events

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Event is one published notification.
type Event struct {
	ID        string          `json:"event_id"`
	Type      string          `json:"event_type"`
	Timestamp string          `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// Filter selects events by type. An empty filter matches everything.
type Filter struct {
	Types []string
}

func (f Filter) matches(e Event) bool {
	if len(f.Types) == 0 {
		return true
	}
	for _, t := range f.Types {
		if strings.TrimSpace(t) == e.Type {
			return true
		}
	}
	return false
}

// Bus provides pub-sub event distribution for SSE subscribers.
// It maintains a ring buffer for replay on reconnect.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[uint64]subscriber
	nextID      uint64
	seq         atomic.Uint64

	ring     []Event
	ringSize int
	ringHead int
	ringMu   sync.RWMutex
}

type subscriber struct {
	ch     chan Event
	filter Filter
}

// NewBus creates an event bus with the given ring buffer size.
func NewBus(ringSize int) *Bus {
	if ringSize < 1 {
		ringSize = 1
	}
	return &Bus{
		subscribers: make(map[uint64]subscriber),
		ring:        make([]Event, ringSize),
		ringSize:    ringSize,
	}
}

// Subscribe registers a new subscriber and returns a channel and cancel function.
func (b *Bus) Subscribe(filter Filter) (<-chan Event, func()) {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	ch := make(chan Event, 64)
	b.subscribers[id] = subscriber{ch: ch, filter: filter}
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		delete(b.subscribers, id)
		b.mu.Unlock()
	}
	return ch, cancel
}

// Subscribers returns the number of active subscribers.
func (b *Bus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// ReplaySince returns buffered events published after lastEventID, oldest
// first. An empty or unknown ID replays the whole buffer.
func (b *Bus) ReplaySince(lastEventID string, filter Filter) []Event {
	b.ringMu.RLock()
	defer b.ringMu.RUnlock()

	known := false
	if lastEventID != "" {
		for _, e := range b.ring {
			if e.ID == lastEventID {
				known = true
				break
			}
		}
	}

	var out []Event
	found := !known
	for i := 0; i < b.ringSize; i++ {
		e := b.ring[(b.ringHead+i)%b.ringSize]
		if e.ID == "" {
			continue
		}
		if !found {
			if e.ID == lastEventID {
				found = true
			}
			continue
		}
		if filter.matches(e) {
			out = append(out, e)
		}
	}
	return out
}

// Publish sends an event to all matching subscribers and adds it to the
// ring buffer. Slow subscribers miss events rather than block the caller.
// The signature matches recording.Notifier.
func (b *Bus) Publish(eventType string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", eventType, err)
	}

	now := time.Now()
	event := Event{
		ID:        fmt.Sprintf("%d-%d", now.UnixMilli(), b.seq.Add(1)),
		Type:      eventType,
		Timestamp: now.UTC().Format(time.RFC3339),
		Data:      data,
	}

	b.ringMu.Lock()
	b.ring[b.ringHead] = event
	b.ringHead = (b.ringHead + 1) % b.ringSize
	b.ringMu.Unlock()

	b.mu.RLock()
	for _, sub := range b.subscribers {
		if sub.filter.matches(event) {
			select {
			case sub.ch <- event:
			default:
			}
		}
	}
	b.mu.RUnlock()
	return nil
}
