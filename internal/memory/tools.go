package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mnemochat/mnemo/internal/llm"
)

const (
	toolSaveMemory   = "save_memory"
	toolDeleteMemory = "delete_memory"
)

// Tools exposes the store to the model as callable functions.
type Tools struct {
	store *Store
}

func NewTools(store *Store) *Tools {
	return &Tools{store: store}
}

func (t *Tools) Definitions() []llm.ToolDef {
	return []llm.ToolDef{
		{
			Name:        toolSaveMemory,
			Description: "Save a durable note about this chat or its participants so it survives into future conversations.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"content": map[string]any{
						"type":        "string",
						"description": "The fact to remember, as one concise sentence.",
					},
				},
				"required": []string{"content"},
			},
		},
		{
			Name:        toolDeleteMemory,
			Description: "Delete a previously saved memory by its ID.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"memory_id": map[string]any{
						"type":        "string",
						"description": "ID of the memory to delete.",
					},
				},
				"required": []string{"memory_id"},
			},
		},
	}
}

// Execute runs one tool call for a chat. Failures come back as plain text so
// the model can read and recover from them; a bad call never aborts the turn.
func (t *Tools) Execute(ctx context.Context, chatID, name, arguments string) string {
	switch name {
	case toolSaveMemory:
		var args struct {
			Content string `json:"content"`
		}
		if err := json.Unmarshal([]byte(arguments), &args); err != nil {
			return "Invalid arguments: " + err.Error()
		}
		if strings.TrimSpace(args.Content) == "" {
			return "Cannot save an empty memory."
		}
		entry, err := t.store.Add(chatID, strings.TrimSpace(args.Content))
		if err != nil {
			slog.Warn("memory save failed",
				"component", "memory", "chat_id", chatID, "error", err)
			return "Failed to save memory."
		}
		return fmt.Sprintf("Memory saved with ID %s.", entry.ID)

	case toolDeleteMemory:
		var args struct {
			MemoryID string `json:"memory_id"`
		}
		if err := json.Unmarshal([]byte(arguments), &args); err != nil {
			return "Invalid arguments: " + err.Error()
		}
		ok, err := t.store.Delete(chatID, args.MemoryID)
		if err != nil {
			slog.Warn("memory delete failed",
				"component", "memory", "chat_id", chatID, "error", err)
			return "Failed to delete memory."
		}
		if !ok {
			return fmt.Sprintf("Memory %s not found.", args.MemoryID)
		}
		return fmt.Sprintf("Memory %s deleted.", args.MemoryID)
	}
	return fmt.Sprintf("Unknown tool: %s", name)
}
