package chatlog

import (
	"sync"
)

// EntryType classifies what a log entry recorded.
type EntryType string

const (
	TypeText  EntryType = "text"
	TypeImage EntryType = "image"
	TypeOther EntryType = "other"
)

// Entry is one message as seen by the chat log. Timestamps are preformatted
// text so the log never depends on a wall clock of its own.
type Entry struct {
	Sender    string    `json:"sender"`
	Timestamp string    `json:"timestamp"`
	Type      EntryType `json:"type"`
	Content   string    `json:"content"`
	ReplyTo   string    `json:"replyTo,omitempty"`
}

// Context is what prompt assembly gets to see about a chat: its title, the
// rolling summary of older history and the recent raw entries.
type Context struct {
	Title   string
	Summary string
	Recent  []Entry
}

// Log keeps a capped ring buffer of entries per chat plus a counter of
// messages seen since the last summarization. The buffer capacity and the
// recent window are independent sizes so the window survives buffer trims.
type Log struct {
	capacity int
	recent   int
	interval int

	summaries *SummaryStore

	mu    sync.Mutex
	chats map[string]*chatState
}

type chatState struct {
	title   string
	entries []Entry
	counter int
}

func NewLog(capacity, recent, interval int, summaries *SummaryStore) *Log {
	return &Log{
		capacity:  capacity,
		recent:    recent,
		interval:  interval,
		summaries: summaries,
		chats:     make(map[string]*chatState),
	}
}

// Append records an entry and reports whether the chat is due for
// summarization. A non-empty title updates the stored chat title.
func (l *Log) Append(chatID string, entry Entry, title string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	state, ok := l.chats[chatID]
	if !ok {
		state = &chatState{}
		l.chats[chatID] = state
	}
	if title != "" {
		state.title = title
	}

	state.entries = append(state.entries, entry)
	if len(state.entries) > l.capacity {
		state.entries = state.entries[len(state.entries)-l.capacity:]
	}
	state.counter++
	return state.counter >= l.interval
}

// Older returns every buffered entry except the recent window at the tail.
// These are the entries a summarization pass may fold away.
func (l *Log) Older(chatID string) []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()

	state, ok := l.chats[chatID]
	if !ok {
		return nil
	}
	n := len(state.entries) - l.recent
	if n <= 0 {
		return nil
	}
	out := make([]Entry, n)
	copy(out, state.entries[:n])
	return out
}

// Context composes the chat's prompt context. The second return is false
// when the chat has no log yet.
func (l *Log) Context(chatID string) (Context, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	state, ok := l.chats[chatID]
	if !ok {
		return Context{}, false
	}

	start := len(state.entries) - l.recent
	if start < 0 {
		start = 0
	}
	recent := make([]Entry, len(state.entries)-start)
	copy(recent, state.entries[start:])

	return Context{
		Title:   state.title,
		Summary: l.summaries.Get(chatID),
		Recent:  recent,
	}, true
}

// ResetCounter marks the chat as freshly summarized.
func (l *Log) ResetCounter(chatID string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if state, ok := l.chats[chatID]; ok {
		state.counter = 0
	}
}

// PendingChats lists chats with messages logged since their last
// summarization, whether or not they reached the interval yet.
func (l *Log) PendingChats() []string {
	l.mu.Lock()
	defer l.mu.Unlock()

	var out []string
	for chatID, state := range l.chats {
		if state.counter > 0 {
			out = append(out, chatID)
		}
	}
	return out
}

// Summary returns the stored rolling summary, empty if none exists.
func (l *Log) Summary(chatID string) string {
	return l.summaries.Get(chatID)
}

// SetSummary replaces the chat's rolling summary and persists it.
func (l *Log) SetSummary(chatID, summary string) error {
	return l.summaries.Set(chatID, summary)
}
