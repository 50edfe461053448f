package notify

import (
	"sync"

	"github.com/terra-clan/quiz-engine/internal/models"
)

const subscriberBuffer = 16

// Hub delivers notifications to live subscribers of this process
type Hub struct {
	mu   sync.RWMutex
	subs map[string]map[chan *models.Notification]struct{}
}

// NewHub creates an empty hub
func NewHub() *Hub {
	return &Hub{subs: make(map[string]map[chan *models.Notification]struct{})}
}

// Subscribe registers a listener for a user's notifications. The returned
// cancel function unregisters it and closes the channel.
func (h *Hub) Subscribe(userID string) (<-chan *models.Notification, func()) {
	ch := make(chan *models.Notification, subscriberBuffer)

	h.mu.Lock()
	if h.subs[userID] == nil {
		h.subs[userID] = make(map[chan *models.Notification]struct{})
	}
	h.subs[userID][ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs[userID], ch)
			if len(h.subs[userID]) == 0 {
				delete(h.subs, userID)
			}
			h.mu.Unlock()
			close(ch)
		})
	}
}

// Publish sends n to every subscriber of its user and returns how many
// received it. Slow subscribers with a full buffer miss the message.
func (h *Hub) Publish(n *models.Notification) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	delivered := 0
	for ch := range h.subs[n.UserID] {
		select {
		case ch <- n:
			delivered++
		default:
		}
	}
	return delivered
}

// Subscribers returns the number of live subscribers for a user
func (h *Hub) Subscribers(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[userID])
}
