package memory

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/samber/oops"
)

// Entry is one saved memory. Entries keep their insertion order per chat.
type Entry struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}

// Store holds every chat's memories behind one JSON snapshot file. The file
// is read once at construction and rewritten in full on every mutation.
type Store struct {
	path string

	mu      sync.Mutex
	entries map[string][]Entry
}

func NewStore(path string) *Store {
	s := &Store{
		path:    path,
		entries: make(map[string][]Entry),
	}
	if err := s.load(); err != nil {
		slog.Warn("starting with empty memory store",
			"component", "memory", "path", path, "error", err)
		s.entries = make(map[string][]Entry)
	}
	return s
}

// Add stores a new memory for the chat. IDs are short random strings, unique
// within the chat.
func (s *Store) Add(chatID, content string) (Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry := Entry{
		ID:        s.newID(chatID),
		Content:   content,
		CreatedAt: time.Now(),
	}
	s.entries[chatID] = append(s.entries[chatID], entry)

	if err := s.save(); err != nil {
		list := s.entries[chatID]
		s.entries[chatID] = list[:len(list)-1]
		return Entry{}, fmt.Errorf("persist memories: %w", err)
	}
	return entry, nil
}

// Delete removes one memory. The bool reports whether the ID existed.
func (s *Store) Delete(chatID, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	list := s.entries[chatID]
	for i, e := range list {
		if e.ID != id {
			continue
		}
		list = append(list[:i], list[i+1:]...)
		if len(list) == 0 {
			delete(s.entries, chatID)
		} else {
			s.entries[chatID] = list
		}
		if err := s.save(); err != nil {
			return true, fmt.Errorf("persist memories: %w", err)
		}
		return true, nil
	}
	return false, nil
}

// List returns the chat's memories in insertion order.
func (s *Store) List(chatID string) []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	list := s.entries[chatID]
	out := make([]Entry, len(list))
	copy(out, list)
	return out
}

// Clear drops every memory of the chat and reports how many were removed.
func (s *Store) Clear(chatID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(s.entries[chatID])
	if n == 0 {
		return 0, nil
	}
	delete(s.entries, chatID)
	if err := s.save(); err != nil {
		return 0, fmt.Errorf("persist memories: %w", err)
	}
	return n, nil
}

// Stats reports how many chats have memories and the total entry count.
func (s *Store) Stats() (chats, entries int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, list := range s.entries {
		entries += len(list)
	}
	return len(s.entries), entries
}

// Format renders entries for the system context, one line per memory.
func Format(entries []Entry) string {
	var sb strings.Builder
	for _, e := range entries {
		sb.WriteString("- [")
		sb.WriteString(e.ID)
		sb.WriteString("] ")
		sb.WriteString(e.Content)
		sb.WriteString("\n")
	}
	return sb.String()
}

func (s *Store) newID(chatID string) string {
	for {
		id := uuid.NewString()[:8]
		if !s.hasID(chatID, id) {
			return id
		}
	}
}

func (s *Store) hasID(chatID, id string) bool {
	for _, e := range s.entries[chatID] {
		if e.ID == id {
			return true
		}
	}
	return false
}

func (s *Store) load() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return oops.Errorf("read memory store: %w", err)
	}
	if err := json.Unmarshal(data, &s.entries); err != nil {
		return oops.Errorf("parse memory store: %w", err)
	}
	return nil
}

func (s *Store) save() error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(s.entries, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.path, data, 0644)
}
