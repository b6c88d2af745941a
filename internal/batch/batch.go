// Package batch groups a user's rapid-fire messages into one logical turn.
//
// Instagram delivers multi-part messages as separate webhook events;
// answering each one individually produces disjointed replies and wastes
// completion calls. Messages are accumulated per user and handed off as a
// single combined text once the user has been quiet long enough.
package batch

import (
	"sort"
	"strings"
	"sync"
	"time"
)

const DefaultQuietWindow = 5 * time.Second

type openBatch struct {
	messages   []string
	lastUpdate time.Time
}

// Flush is one user's combined turn emitted by Sweep.
type Flush struct {
	UserID   string
	Combined string
	Count    int
}

// Accumulator holds at most one open batch per user.
type Accumulator struct {
	mu    sync.Mutex
	quiet time.Duration
	open  map[string]*openBatch
}

func NewAccumulator(quiet time.Duration) *Accumulator {
	if quiet <= 0 {
		quiet = DefaultQuietWindow
	}
	return &Accumulator{
		quiet: quiet,
		open:  make(map[string]*openBatch),
	}
}

// Append adds text to the user's open batch, creating one if needed,
// and restarts the quiet window. Append never flushes; flushing only
// happens on Sweep, so a message can sit up to quiet+tick before a reply.
func (a *Accumulator) Append(userID, text string, now time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()

	b, ok := a.open[userID]
	if !ok {
		b = &openBatch{}
		a.open[userID] = b
	}
	b.messages = append(b.messages, text)
	b.lastUpdate = now
}

// Sweep removes every batch whose quiet window has elapsed and returns
// the combined texts, messages joined with newlines in arrival order.
func (a *Accumulator) Sweep(now time.Time) []Flush {
	a.mu.Lock()
	defer a.mu.Unlock()

	var flushed []Flush
	for userID, b := range a.open {
		if now.Sub(b.lastUpdate) > a.quiet {
			flushed = append(flushed, Flush{
				UserID:   userID,
				Combined: strings.Join(b.messages, "\n"),
				Count:    len(b.messages),
			})
			delete(a.open, userID)
		}
	}

	sort.Slice(flushed, func(i, j int) bool { return flushed[i].UserID < flushed[j].UserID })
	return flushed
}

// Pending returns the number of queued messages for the user.
func (a *Accumulator) Pending(userID string) int {
	a.mu.Lock()
	defer a.mu.Unlock()

	if b, ok := a.open[userID]; ok {
		return len(b.messages)
	}
	return 0
}
