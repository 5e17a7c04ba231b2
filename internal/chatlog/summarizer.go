package chatlog

import (
	"context"
	"log/slog"
	"strings"

	"github.com/mnemochat/mnemo/internal/llm"
)

const summaryInstruction = `You maintain a rolling summary of a chat conversation. ` +
	`Merge the previous summary with the new messages into one updated summary ` +
	`that keeps the facts, decisions and open threads a future reply would need. ` +
	`Keep it under 200 words. Reply with the summary text only, no preamble.`

// Summarizer folds older log entries into the chat's rolling summary through
// the model backend. It is fire-and-forget: failures are logged and the
// counter resets either way, so the next interval simply tries again.
type Summarizer struct {
	client    llm.Client
	model     string
	maxTokens int
	log       *Log
}

func NewSummarizer(client llm.Client, model string, maxTokens int, log *Log) *Summarizer {
	return &Summarizer{
		client:    client,
		model:     model,
		maxTokens: maxTokens,
		log:       log,
	}
}

// Summarize condenses the chat's older entries. The caller supplies the
// credentials the chat resolved to.
func (s *Summarizer) Summarize(ctx context.Context, chatID string, creds llm.Credentials) {
	older := s.log.Older(chatID)
	if len(older) == 0 {
		s.log.ResetCounter(chatID)
		return
	}

	resp, err := s.client.Complete(ctx, llm.Request{
		Creds:  creds,
		Model:  s.model,
		System: summaryInstruction,
		Messages: []llm.Message{
			{Role: llm.RoleUser, Content: buildSummaryPrompt(s.log.Summary(chatID), older)},
		},
		MaxTokens: s.maxTokens,
	})
	s.log.ResetCounter(chatID)
	if err != nil {
		slog.Warn("chat summarization failed",
			"component", "chatlog", "chat_id", chatID, "error", err)
		return
	}

	summary := strings.TrimSpace(resp.Content)
	if summary == "" {
		slog.Warn("chat summarization returned nothing",
			"component", "chatlog", "chat_id", chatID)
		return
	}
	if err := s.log.SetSummary(chatID, summary); err != nil {
		slog.Warn("chat summary not persisted",
			"component", "chatlog", "chat_id", chatID, "error", err)
	}
}

func buildSummaryPrompt(previous string, older []Entry) string {
	var sb strings.Builder
	sb.WriteString("Previous summary:\n")
	if previous == "" {
		sb.WriteString("(none)\n")
	} else {
		sb.WriteString(previous)
		sb.WriteString("\n")
	}
	sb.WriteString("\nNew messages:\n")
	sb.WriteString(FormatEntries(older))
	return sb.String()
}

// FormatEntries renders log entries as a plain transcript, one line each.
func FormatEntries(entries []Entry) string {
	var sb strings.Builder
	for _, e := range entries {
		if e.Timestamp != "" {
			sb.WriteString("[")
			sb.WriteString(e.Timestamp)
			sb.WriteString("] ")
		}
		sb.WriteString(e.Sender)
		if e.ReplyTo != "" {
			sb.WriteString(" (replying to ")
			sb.WriteString(e.ReplyTo)
			sb.WriteString(")")
		}
		sb.WriteString(": ")
		sb.WriteString(e.Content)
		sb.WriteString("\n")
	}
	return sb.String()
}
