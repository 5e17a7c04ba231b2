package chatcfg

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/samber/oops"
)

// ChatConfig holds the chat-supplied API settings. Both fields are optional;
// a record with neither set is dropped from the store entirely.
type ChatConfig struct {
	APIKey  string `json:"apiKey,omitempty"`
	BaseURL string `json:"baseUrl,omitempty"`
}

func (c ChatConfig) Empty() bool {
	return c.APIKey == "" && c.BaseURL == ""
}

// Store persists per-chat API configuration as one JSON file, rewritten in
// full on every change.
type Store struct {
	path string

	mu      sync.Mutex
	configs map[string]ChatConfig
}

func NewStore(path string) *Store {
	s := &Store{
		path:    path,
		configs: make(map[string]ChatConfig),
	}
	if err := s.load(); err != nil {
		slog.Warn("starting with empty chat config store",
			"component", "chatcfg", "path", path, "error", err)
		s.configs = make(map[string]ChatConfig)
	}
	return s
}

// Get returns the chat's config, zero-valued when the chat has none.
func (s *Store) Get(chatID string) ChatConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.configs[chatID]
}

func (s *Store) SetAPIKey(chatID, key string) error {
	return s.update(chatID, func(c *ChatConfig) { c.APIKey = key })
}

func (s *Store) SetBaseURL(chatID, url string) error {
	return s.update(chatID, func(c *ChatConfig) { c.BaseURL = url })
}

// Clear removes the chat's config. The bool reports whether anything was set.
func (s *Store) Clear(chatID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.configs[chatID]; !ok {
		return false, nil
	}
	delete(s.configs, chatID)
	if err := s.save(); err != nil {
		return true, fmt.Errorf("persist chat configs: %w", err)
	}
	return true, nil
}

// Count reports how many chats carry their own config.
func (s *Store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.configs)
}

func (s *Store) update(chatID string, fn func(*ChatConfig)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cfg := s.configs[chatID]
	fn(&cfg)
	if cfg.Empty() {
		delete(s.configs, chatID)
	} else {
		s.configs[chatID] = cfg
	}
	if err := s.save(); err != nil {
		return fmt.Errorf("persist chat configs: %w", err)
	}
	return nil
}

func (s *Store) load() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return oops.Errorf("read chat config store: %w", err)
	}
	if err := json.Unmarshal(data, &s.configs); err != nil {
		return oops.Errorf("parse chat config store: %w", err)
	}
	return nil
}

func (s *Store) save() error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(s.configs, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.path, data, 0644)
}
