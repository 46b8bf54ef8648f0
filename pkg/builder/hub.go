package builder

import "sync"

type subscriber chan Record

// Hub fans record snapshots out to per-project subscribers.
type Hub struct {
	mu   sync.Mutex
	subs map[string][]subscriber
}

func NewHub() *Hub {
	return &Hub{subs: make(map[string][]subscriber)}
}

// Subscribe registers interest in projectID. The returned cancel func must be
// called once the caller stops reading; the channel closes when the run ends.
func (h *Hub) Subscribe(projectID string) (<-chan Record, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	ch := make(subscriber, 16)
	h.subs[projectID] = append(h.subs[projectID], ch)
	return ch, func() { h.unsubscribe(projectID, ch) }
}

func (h *Hub) unsubscribe(projectID string, ch subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()

	subs := h.subs[projectID]
	for i, sub := range subs {
		if sub == ch {
			h.subs[projectID] = append(subs[:i], subs[i+1:]...)
			close(ch)
			break
		}
	}
	if len(h.subs[projectID]) == 0 {
		delete(h.subs, projectID)
	}
}

// Publish delivers rec to every subscriber of its project. Slow subscribers miss
// intermediate snapshots rather than blocking the driver.
func (h *Hub) Publish(rec Record) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, sub := range h.subs[rec.ProjectID] {
		select {
		case sub <- rec:
		default:
		}
	}
}

// Close ends every subscription of projectID.
func (h *Hub) Close(projectID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, sub := range h.subs[projectID] {
		close(sub)
	}
	delete(h.subs, projectID)
}
