package effects

import "sync"

// Hub fans effects out to subscribers without ever blocking the publisher.
type Hub struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]chan Effect
	closed bool
}

func NewHub() *Hub {
	return &Hub{subs: make(map[int]chan Effect)}
}

// Subscribe registers an observer. The returned func unsubscribes and closes
// the channel.
func (h *Hub) Subscribe(buffer int) (<-chan Effect, func()) {
	if buffer <= 0 {
		buffer = 1
	}
	ch := make(chan Effect, buffer)

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		close(ch)
		return ch, func() {}
	}
	id := h.nextID
	h.nextID++
	h.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if sub, ok := h.subs[id]; ok {
				delete(h.subs, id)
				close(sub)
			}
		})
	}
}

func (h *Hub) Publish(effect Effect) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range h.subs {
		select {
		case ch <- effect:
		default:
		}
	}
}

func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for id, ch := range h.subs {
		delete(h.subs, id)
		close(ch)
	}
}
