// Package events fans order and inventory state transitions out to per-store
// subscribers (kitchen displays, pickup boards). Delivery is best effort:
// a slow or dead subscriber never fails the pipeline step that published.
package events

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"

	"beverage-order-intake/internal/domain"
)

type Publisher interface {
	Publish(ctx context.Context, storeID string, ev domain.Event)
}

// Subscription is one consumer's view of a store channel. Cancel exactly once
// when done; the channel is closed by Cancel.
type Subscription struct {
	C      <-chan domain.Event
	cancel func()
	once   sync.Once
}

func (s *Subscription) Cancel() {
	s.once.Do(s.cancel)
}

type Hub struct {
	mu   sync.RWMutex
	subs map[string]map[chan domain.Event]struct{}
	log  *logrus.Entry
}

func NewHub(log *logrus.Entry) *Hub {
	return &Hub{subs: make(map[string]map[chan domain.Event]struct{}), log: log}
}

// Subscribe registers a buffered channel on the store's topic.
func (h *Hub) Subscribe(storeID string, buffer int) *Subscription {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan domain.Event, buffer)

	h.mu.Lock()
	if h.subs[storeID] == nil {
		h.subs[storeID] = make(map[chan domain.Event]struct{})
	}
	h.subs[storeID][ch] = struct{}{}
	h.mu.Unlock()

	return &Subscription{
		C: ch,
		cancel: func() {
			h.mu.Lock()
			if set, ok := h.subs[storeID]; ok {
				delete(set, ch)
				if len(set) == 0 {
					delete(h.subs, storeID)
				}
			}
			h.mu.Unlock()
			close(ch)
		},
	}
}

// Publish delivers to every subscriber of the store. A full subscriber buffer
// drops the event for that subscriber and logs it; publishing never blocks.
func (h *Hub) Publish(_ context.Context, storeID string, ev domain.Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for ch := range h.subs[storeID] {
		select {
		case ch <- ev:
		default:
			h.log.WithFields(logrus.Fields{
				"store_id": storeID,
				"action":   ev.Action,
			}).Warn("subscriber buffer full, event dropped")
		}
	}
}

// NopPublisher swallows events; used where fan-out is not wired.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, string, domain.Event) {}
