package conversation

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mnemochat/mnemo/internal/llm"
)

// ToolExecutor is what the loop calls tools against. Execute always returns
// text; tool failures come back as readable results, never as errors.
type ToolExecutor interface {
	Definitions() []llm.ToolDef
	Execute(ctx context.Context, chatID, name, arguments string) string
}

// Runner drives the completion loop: ask the model, run whatever tools it
// requests, feed the results back in, repeat. After the initial round trip
// at most maxRounds additional ones are made; hitting the cap yields an
// empty answer rather than an error.
type Runner struct {
	client    llm.Client
	tools     ToolExecutor
	maxRounds int
}

func NewRunner(client llm.Client, tools ToolExecutor, maxRounds int) *Runner {
	return &Runner{
		client:    client,
		tools:     tools,
		maxRounds: maxRounds,
	}
}

// RunRequest carries one turn's worth of context into the loop. OnDelta,
// when set, receives the cumulative streamed text of each round; the
// accumulation restarts per round, and tool-call fragments never fire it.
type RunRequest struct {
	Creds       llm.Credentials
	Model       string
	System      string
	Messages    []llm.Message
	ChatID      string
	MaxTokens   int
	Temperature float32
	OnDelta     func(cumulative string)
}

// Run executes the loop and returns the model's final text. An empty string
// with a nil error means the round cap was hit before the model settled on
// an answer; the caller should treat that as "nothing to say".
func (r *Runner) Run(ctx context.Context, req RunRequest) (string, error) {
	transcript := make([]llm.Message, len(req.Messages))
	copy(transcript, req.Messages)

	var tools []llm.ToolDef
	if r.tools != nil {
		tools = r.tools.Definitions()
	}

	for round := 0; round <= r.maxRounds; round++ {
		resp, err := r.client.Complete(ctx, llm.Request{
			Creds:       req.Creds,
			Model:       req.Model,
			System:      req.System,
			Messages:    transcript,
			Tools:       tools,
			MaxTokens:   req.MaxTokens,
			Temperature: req.Temperature,
			OnDelta:     req.OnDelta,
		})
		if err != nil {
			return "", fmt.Errorf("completion round %d: %w", round, err)
		}
		if r.tools == nil || len(resp.ToolCalls) == 0 {
			return resp.Content, nil
		}

		transcript = append(transcript, llm.Message{
			Role:      llm.RoleAssistant,
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		})
		for _, call := range resp.ToolCalls {
			result := r.tools.Execute(ctx, req.ChatID, call.Name, call.Arguments)
			transcript = append(transcript, llm.Message{
				Role:       llm.RoleTool,
				Content:    result,
				ToolCallID: call.ID,
			})
		}
	}

	slog.Warn("tool round limit reached without a final answer",
		"component", "conversation", "chat_id", req.ChatID, "max_rounds", r.maxRounds)
	return "", nil
}
