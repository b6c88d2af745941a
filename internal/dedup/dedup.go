// Package dedup suppresses repeat webhook deliveries of the same message.
package dedup

import (
	"fmt"
	"sync"
)

const DefaultCapacity = 100

// Window remembers the keys of the most recent admitted events.
// When full, the oldest key is evicted first.
type Window struct {
	mu       sync.Mutex
	capacity int
	seen     map[string]struct{}
	order    []string
}

func NewWindow(capacity int) *Window {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Window{
		capacity: capacity,
		seen:     make(map[string]struct{}, capacity),
	}
}

// Admit reports whether the event identified by (senderID, text, timestamp)
// has not been seen before. The first delivery is admitted and recorded;
// repeats return false and leave the window untouched.
func (w *Window) Admit(senderID, text string, timestamp int64) bool {
	key := fmt.Sprintf("%s:%s:%d", senderID, text, timestamp)

	w.mu.Lock()
	defer w.mu.Unlock()

	if _, ok := w.seen[key]; ok {
		return false
	}

	if len(w.order) >= w.capacity {
		oldest := w.order[0]
		w.order = w.order[1:]
		delete(w.seen, oldest)
	}

	w.seen[key] = struct{}{}
	w.order = append(w.order, key)
	return true
}

// Len returns the number of keys currently held.
func (w *Window) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.order)
}
