package chatcfg

import (
	"strings"
	"sync"
)

// PendingKind names what a chat's wizard is waiting for.
type PendingKind string

const (
	PendingNone    PendingKind = ""
	PendingAPIKey  PendingKind = "api_key"
	PendingBaseURL PendingKind = "base_url"
)

// Wizard captures the next free-text message of a chat as a config value.
// State is per chat and purely in-memory; a restart simply forgets any
// half-finished setup.
type Wizard struct {
	store *Store

	mu      sync.Mutex
	pending map[string]PendingKind
}

func NewWizard(store *Store) *Wizard {
	return &Wizard{
		store:   store,
		pending: make(map[string]PendingKind),
	}
}

// Begin arms the wizard. A chat has at most one pending capture; starting a
// new one replaces whatever was pending before.
func (w *Wizard) Begin(chatID string, kind PendingKind) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if kind == PendingNone {
		delete(w.pending, chatID)
		return
	}
	w.pending[chatID] = kind
}

// Pending reports what the chat's wizard is waiting for, if anything.
func (w *Wizard) Pending(chatID string) PendingKind {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.pending[chatID]
}

// Cancel clears any pending capture and reports whether one existed.
func (w *Wizard) Cancel(chatID string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	_, ok := w.pending[chatID]
	delete(w.pending, chatID)
	return ok
}

// Consume offers a free-text message to the wizard. With a capture pending
// the text becomes the new config value and the returned kind says which;
// otherwise the wizard declines with PendingNone and the message flows on to
// normal handling. The pending state clears even if persisting fails, since
// the value is live in memory either way.
func (w *Wizard) Consume(chatID, text string) (PendingKind, error) {
	w.mu.Lock()
	kind, ok := w.pending[chatID]
	if !ok {
		w.mu.Unlock()
		return PendingNone, nil
	}
	delete(w.pending, chatID)
	w.mu.Unlock()

	value := strings.TrimSpace(text)
	var err error
	switch kind {
	case PendingAPIKey:
		err = w.store.SetAPIKey(chatID, value)
	case PendingBaseURL:
		err = w.store.SetBaseURL(chatID, value)
	}
	return kind, err
}
