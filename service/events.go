package service

import (
	"sync"
	"time"

	"github.com/smartpigdefi/smartpig/logger"
	"github.com/smartpigdefi/smartpig/model"
)

type EventType string

const (
	EventTransition EventType = "payment.transition"
	EventSettled    EventType = "payment.settled"
	EventSession    EventType = "session.changed"
)

// Event is published on every lifecycle transition and session change.
type Event struct {
	Type      EventType       `json:"type"`
	PaymentID string          `json:"payment_id,omitempty"`
	Direction model.Direction `json:"direction,omitempty"`
	Step      string          `json:"step"`
	Data      interface{}     `json:"data,omitempty"`
	At        time.Time       `json:"at"`
}

// EventBus fans events out to subscribers. Publish never blocks; a
// subscriber that falls behind loses events.
type EventBus struct {
	mu   sync.RWMutex
	next int
	subs map[int]chan Event
}

func NewEventBus() *EventBus {
	return &EventBus{subs: make(map[int]chan Event)}
}

// Subscribe returns a channel of events and a function that unsubscribes
// and closes it.
func (b *EventBus) Subscribe(buffer int) (<-chan Event, func()) {
	ch := make(chan Event, buffer)

	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(ch)
		})
	}
}

func (b *EventBus) Publish(ev Event) {
	if b == nil {
		return
	}
	if ev.At.IsZero() {
		ev.At = time.Now()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
			logger.Log.WithField("type", ev.Type).Debug("Dropping event for slow subscriber")
		}
	}
}
