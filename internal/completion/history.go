package completion

import (
	"sync"

	openai "github.com/sashabaranov/go-openai"
)

const maxHistoryTurns = 10

// historyStore keeps the recent conversation per user so replies stay
// coherent across batches. Oldest turns fall off first.
type historyStore struct {
	mu    sync.Mutex
	turns map[string][]openai.ChatCompletionMessage
}

func newHistoryStore() *historyStore {
	return &historyStore{turns: make(map[string][]openai.ChatCompletionMessage)}
}

func (h *historyStore) get(userID string) []openai.ChatCompletionMessage {
	h.mu.Lock()
	defer h.mu.Unlock()

	stored := h.turns[userID]
	out := make([]openai.ChatCompletionMessage, len(stored))
	copy(out, stored)
	return out
}

func (h *historyStore) add(userID, role, content string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	turns := append(h.turns[userID], openai.ChatCompletionMessage{Role: role, Content: content})
	if len(turns) > maxHistoryTurns {
		turns = turns[len(turns)-maxHistoryTurns:]
	}
	h.turns[userID] = turns
}

func (h *historyStore) clear(userID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.turns, userID)
}
