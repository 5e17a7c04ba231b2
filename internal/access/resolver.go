package access

import (
	"github.com/mnemochat/mnemo/internal/chatcfg"
	"github.com/mnemochat/mnemo/internal/llm"
)

// Resolver decides which credentials a chat talks to the backend with.
// Allow-listed chats ride on the operator's global key and base URL; any
// chat-supplied override is ignored for them so a group member cannot point
// the operator's key at a foreign endpoint. Every other chat must bring its
// own key, with the base URL falling back from chat-local to the global
// default.
type Resolver struct {
	allowed map[string]bool
	global  llm.Credentials
	chats   *chatcfg.Store
}

func NewResolver(allowChats []string, global llm.Credentials, chats *chatcfg.Store) *Resolver {
	allowed := make(map[string]bool, len(allowChats))
	for _, id := range allowChats {
		allowed[id] = true
	}
	return &Resolver{
		allowed: allowed,
		global:  global,
		chats:   chats,
	}
}

// Allowed reports whether the chat is on the operator's allow-list.
func (r *Resolver) Allowed(chatID string) bool {
	return r.allowed[chatID]
}

// Resolve returns the credentials the chat should use. The bool is false
// when the chat has no way to reach the backend at all.
func (r *Resolver) Resolve(chatID string) (llm.Credentials, bool) {
	if r.allowed[chatID] {
		if r.global.APIKey == "" {
			return llm.Credentials{}, false
		}
		return r.global, true
	}

	local := r.chats.Get(chatID)
	if local.APIKey == "" {
		return llm.Credentials{}, false
	}
	baseURL := local.BaseURL
	if baseURL == "" {
		baseURL = r.global.BaseURL
	}
	return llm.Credentials{APIKey: local.APIKey, BaseURL: baseURL}, true
}

// HasAccess is the gate checked before any model call is attempted.
func (r *Resolver) HasAccess(chatID string) bool {
	_, ok := r.Resolve(chatID)
	return ok
}
