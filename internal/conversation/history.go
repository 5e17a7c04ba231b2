package conversation

import (
	"sync"

	"github.com/mnemochat/mnemo/internal/llm"
)

// History keeps the rolling message window per conversation thread. It is
// purely in-memory; a restart starts every thread fresh. Durable facts
// belong in the memory store, not here.
type History struct {
	window int

	mu      sync.Mutex
	threads map[string][]llm.Message
}

func NewHistory(window int) *History {
	return &History{
		window:  window,
		threads: make(map[string][]llm.Message),
	}
}

// Append adds a message to the thread and trims it to the window size.
func (h *History) Append(key string, msg llm.Message) {
	h.mu.Lock()
	defer h.mu.Unlock()

	msgs := append(h.threads[key], msg)
	if len(msgs) > h.window {
		msgs = msgs[len(msgs)-h.window:]
	}
	h.threads[key] = msgs
}

// Window returns a copy of the thread's current messages, oldest first.
func (h *History) Window(key string) []llm.Message {
	h.mu.Lock()
	defer h.mu.Unlock()

	msgs := h.threads[key]
	out := make([]llm.Message, len(msgs))
	copy(out, msgs)
	return out
}
