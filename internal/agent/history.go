package agent

import "sync"

// DefaultHistorySize is the number of messages an agent remembers.
const DefaultHistorySize = 10

// History is a bounded, ordered record of the messages an agent exchanged
// with its model. When full, the oldest message is dropped.
// It is safe for concurrent use.
type History struct {
	mu    sync.Mutex
	limit int
	items []string
}

// NewHistory creates a history holding at most limit messages.
// A non-positive limit selects DefaultHistorySize.
func NewHistory(limit int) *History {
	if limit <= 0 {
		limit = DefaultHistorySize
	}
	return &History{limit: limit, items: make([]string, 0, limit)}
}

// Append records a message, evicting the oldest ones beyond the limit.
func (h *History) Append(msg string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.items = append(h.items, msg)
	if over := len(h.items) - h.limit; over > 0 {
		// Copy down so the backing array doesn't grow without bound.
		n := copy(h.items, h.items[over:])
		h.items = h.items[:n]
	}
}

// Snapshot returns a copy of the messages, oldest first.
func (h *History) Snapshot() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.items...)
}

// Len returns the number of messages held.
func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.items)
}

// Limit returns the maximum number of messages held.
func (h *History) Limit() int {
	return h.limit
}
