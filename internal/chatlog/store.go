package chatlog

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/samber/oops"
)

// SummaryStore persists one rolling summary per chat as a single JSON file,
// rewritten in full on every change.
type SummaryStore struct {
	path string

	mu        sync.Mutex
	summaries map[string]string
}

func NewSummaryStore(path string) *SummaryStore {
	s := &SummaryStore{
		path:      path,
		summaries: make(map[string]string),
	}
	if err := s.load(); err != nil {
		slog.Warn("starting with empty summary store",
			"component", "chatlog", "path", path, "error", err)
		s.summaries = make(map[string]string)
	}
	return s
}

func (s *SummaryStore) Get(chatID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.summaries[chatID]
}

func (s *SummaryStore) Set(chatID, summary string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.summaries[chatID] = summary
	if err := s.save(); err != nil {
		return fmt.Errorf("persist summaries: %w", err)
	}
	return nil
}

// Count reports how many chats have a stored summary.
func (s *SummaryStore) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.summaries)
}

func (s *SummaryStore) load() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return oops.Errorf("read summary store: %w", err)
	}
	if err := json.Unmarshal(data, &s.summaries); err != nil {
		return oops.Errorf("parse summary store: %w", err)
	}
	return nil
}

func (s *SummaryStore) save() error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(s.summaries, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.path, data, 0644)
}
