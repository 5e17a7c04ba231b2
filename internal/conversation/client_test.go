package conversation

import (
	"context"

	"github.com/mnemochat/mnemo/internal/llm"
)

// scriptedClient replays canned completions in order and records every
// request it saw.
type scriptedClient struct {
	responses []scriptedResponse
	requests  []llm.Request
	lookup    func(creds llm.Credentials, model string) (*llm.ModelInfo, error)
	lookups   int
}

type scriptedResponse struct {
	completion *llm.Completion
	err        error
	stream     []string
}

func (c *scriptedClient) Complete(_ context.Context, req llm.Request) (*llm.Completion, error) {
	c.requests = append(c.requests, req)
	if len(c.responses) == 0 {
		return &llm.Completion{}, nil
	}
	next := c.responses[0]
	c.responses = c.responses[1:]
	if req.OnDelta != nil {
		for _, cumulative := range next.stream {
			req.OnDelta(cumulative)
		}
	}
	return next.completion, next.err
}

func (c *scriptedClient) LookupModel(_ context.Context, creds llm.Credentials, model string) (*llm.ModelInfo, error) {
	c.lookups++
	if c.lookup != nil {
		return c.lookup(creds, model)
	}
	return nil, nil
}

func (c *scriptedClient) GenerateImage(context.Context, llm.ImageRequest) ([]byte, error) {
	return nil, nil
}

// scriptedTools records tool invocations and answers with canned text.
type scriptedTools struct {
	calls  []string
	args   []string
	result func(name, arguments string) string
}

func (s *scriptedTools) Definitions() []llm.ToolDef {
	return []llm.ToolDef{
		{Name: "save_memory", Description: "save", Parameters: map[string]any{"type": "object"}},
		{Name: "delete_memory", Description: "delete", Parameters: map[string]any{"type": "object"}},
	}
}

func (s *scriptedTools) Execute(_ context.Context, chatID, name, arguments string) string {
	s.calls = append(s.calls, name)
	s.args = append(s.args, arguments)
	if s.result != nil {
		return s.result(name, arguments)
	}
	return "ok"
}
