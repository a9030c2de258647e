// Package stream fans live board updates out to mounted presentation
// surfaces over Server-Sent Events.
package stream

import (
	"sync"

	"go.uber.org/zap"

	"github.com/appetiteclub/liveboard/internal/board"
	"github.com/appetiteclub/liveboard/internal/bus"
	"github.com/appetiteclub/liveboard/internal/notify"
)

// Update types pushed to surfaces.
const (
	UpdateOrder        = "order"
	UpdateEvent        = "event"
	UpdateConnectivity = "connectivity"
)

// Update is one SSE payload. Exactly one of the pointer fields is set,
// matching Type.
type Update struct {
	Type   string        `json:"type"`
	Order  *board.Order  `json:"order,omitempty"`
	Event  *notify.Event `json:"event,omitempty"`
	Health *bus.Health   `json:"health,omitempty"`
}

// Hub broadcasts updates to every connected surface. Each subscriber gets a
// buffered channel; a slow consumer drops updates rather than stalling the
// rest — the polling fallback makes dropped frames safe.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[string]chan Update
	logger      *zap.SugaredLogger
}

func NewHub(logger *zap.SugaredLogger) *Hub {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Hub{
		subscribers: make(map[string]chan Update),
		logger:      logger,
	}
}

// Subscribe adds a surface and returns its update channel.
func (h *Hub) Subscribe(subscriberID string) <-chan Update {
	h.mu.Lock()
	defer h.mu.Unlock()

	ch := make(chan Update, 100)
	h.subscribers[subscriberID] = ch

	h.logger.Infow("surface subscribed", "subscriber_id", subscriberID, "total", len(h.subscribers))
	return ch
}

// Unsubscribe removes a surface and closes its channel.
func (h *Hub) Unsubscribe(subscriberID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if ch, ok := h.subscribers[subscriberID]; ok {
		close(ch)
		delete(h.subscribers, subscriberID)
		h.logger.Infow("surface unsubscribed", "subscriber_id", subscriberID, "total", len(h.subscribers))
	}
}

// Broadcast sends an update to every subscriber, skipping any whose buffer
// is full.
func (h *Hub) Broadcast(u Update) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for id, ch := range h.subscribers {
		select {
		case ch <- u:
		default:
			h.logger.Infow("subscriber buffer full, dropping update", "subscriber_id", id, "type", u.Type)
		}
	}
}

// Close drops every subscriber.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for id, ch := range h.subscribers {
		close(ch)
		delete(h.subscribers, id)
	}
}
