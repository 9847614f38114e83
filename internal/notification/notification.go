package notification

import (
	"sync"

	"github.com/Kali-Decoder/somnia-data-stream-dice-roll/internal/models"
)

// Hub broadcasts pool events to live subscribers and keeps a short
// backlog for clients that connect late.
type Hub struct {
	subscribers map[string]chan models.PoolEvent
	recent      []models.PoolEvent
	backlog     int
	mu          sync.RWMutex
}

func NewHub(backlog int) *Hub {
	return &Hub{
		subscribers: make(map[string]chan models.PoolEvent),
		backlog:     backlog,
	}
}

func (h *Hub) Subscribe(id string) chan models.PoolEvent {
	h.mu.Lock()
	defer h.mu.Unlock()

	if old, exists := h.subscribers[id]; exists {
		close(old)
	}
	ch := make(chan models.PoolEvent, 100)
	h.subscribers[id] = ch
	return ch
}

func (h *Hub) Unsubscribe(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if ch, exists := h.subscribers[id]; exists {
		close(ch)
		delete(h.subscribers, id)
	}
}

// Publish never blocks; a subscriber whose buffer is full misses the event.
func (h *Hub) Publish(ev models.PoolEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.backlog > 0 {
		h.recent = append(h.recent, ev)
		if len(h.recent) > h.backlog {
			h.recent = h.recent[len(h.recent)-h.backlog:]
		}
	}
	for _, ch := range h.subscribers {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Recent returns the backlog, oldest first.
func (h *Hub) Recent() []models.PoolEvent {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return append([]models.PoolEvent(nil), h.recent...)
}

func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}
