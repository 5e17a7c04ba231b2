package llm

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
)

const requestTimeout = 120 * time.Second

// OpenAI talks to any OpenAI-compatible backend. Credentials arrive per
// request because chats may bring their own key and base URL, so the
// underlying client is built per call over a shared http.Client.
type OpenAI struct {
	httpClient *http.Client
}

func NewOpenAI() *OpenAI {
	return &OpenAI{
		httpClient: &http.Client{
			Timeout: requestTimeout,
		},
	}
}

func (o *OpenAI) client(creds Credentials) *openai.Client {
	clientConfig := openai.DefaultConfig(creds.APIKey)

	if creds.BaseURL != "" {
		clientConfig.BaseURL = strings.TrimRight(creds.BaseURL, "/")
	}
	clientConfig.HTTPClient = o.httpClient

	return openai.NewClientWithConfig(clientConfig)
}

func (o *OpenAI) Complete(ctx context.Context, req Request) (*Completion, error) {
	oaReq := openai.ChatCompletionRequest{
		Model:               req.Model,
		Messages:            buildMessages(req),
		MaxCompletionTokens: req.MaxTokens,
		Temperature:         req.Temperature,
	}

	for _, tool := range req.Tools {
		oaReq.Tools = append(oaReq.Tools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        tool.Name,
				Description: tool.Description,
				Parameters:  tool.Parameters,
			},
		})
	}

	client := o.client(req.Creds)

	if req.OnDelta != nil {
		return o.completeStream(ctx, client, oaReq, req.OnDelta)
	}

	resp, err := client.CreateChatCompletion(ctx, oaReq)
	if err != nil {
		return nil, fmt.Errorf("create chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("chat completion returned no choices")
	}

	msg := resp.Choices[0].Message
	out := &Completion{Content: msg.Content}
	for _, tc := range msg.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}
	return out, nil
}

func (o *OpenAI) completeStream(ctx context.Context, client *openai.Client, oaReq openai.ChatCompletionRequest, onDelta func(string)) (*Completion, error) {
	oaReq.Stream = true

	stream, err := client.CreateChatCompletionStream(ctx, oaReq)
	if err != nil {
		return nil, fmt.Errorf("create chat completion stream: %w", err)
	}
	defer stream.Close()

	var content strings.Builder
	var calls []ToolCall

	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("receive stream delta: %w", err)
		}
		if len(resp.Choices) == 0 {
			continue
		}

		delta := resp.Choices[0].Delta
		if delta.Content != "" {
			content.WriteString(delta.Content)
			onDelta(content.String())
		}

		// Tool call fragments are merged by index and never reach onDelta.
		for _, tc := range delta.ToolCalls {
			idx := 0
			if tc.Index != nil {
				idx = *tc.Index
			}
			for len(calls) <= idx {
				calls = append(calls, ToolCall{})
			}
			if tc.ID != "" {
				calls[idx].ID = tc.ID
			}
			if tc.Function.Name != "" {
				calls[idx].Name = tc.Function.Name
			}
			calls[idx].Arguments += tc.Function.Arguments
		}
	}

	return &Completion{Content: content.String(), ToolCalls: calls}, nil
}

func buildMessages(req Request) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(req.Messages)+1)

	if req.System != "" {
		out = append(out, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.System,
		})
	}

	for _, msg := range req.Messages {
		oaMsg := openai.ChatCompletionMessage{
			Role:       string(msg.Role),
			ToolCallID: msg.ToolCallID,
		}

		// go-openai rejects messages with both Content and MultiContent.
		if len(msg.Parts) > 0 {
			for _, p := range msg.Parts {
				switch p.Kind {
				case PartImage:
					oaMsg.MultiContent = append(oaMsg.MultiContent, openai.ChatMessagePart{
						Type:     openai.ChatMessagePartTypeImageURL,
						ImageURL: &openai.ChatMessageImageURL{URL: p.ImageURL},
					})
				default:
					oaMsg.MultiContent = append(oaMsg.MultiContent, openai.ChatMessagePart{
						Type: openai.ChatMessagePartTypeText,
						Text: p.Text,
					})
				}
			}
		} else {
			oaMsg.Content = msg.Content
		}

		for _, tc := range msg.ToolCalls {
			oaMsg.ToolCalls = append(oaMsg.ToolCalls, openai.ToolCall{
				ID:   tc.ID,
				Type: openai.ToolTypeFunction,
				Function: openai.FunctionCall{
					Name:      tc.Name,
					Arguments: tc.Arguments,
				},
			})
		}

		out = append(out, oaMsg)
	}

	return out
}

func (o *OpenAI) GenerateImage(ctx context.Context, req ImageRequest) ([]byte, error) {
	client := o.client(req.Creds)

	resp, err := client.CreateImage(ctx, openai.ImageRequest{
		Prompt:         req.Prompt,
		Model:          req.Model,
		N:              1,
		Size:           openai.CreateImageSize1024x1024,
		ResponseFormat: openai.CreateImageResponseFormatB64JSON,
	})
	if err != nil {
		return nil, fmt.Errorf("create image: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("image response has no data")
	}

	data, err := base64.StdEncoding.DecodeString(resp.Data[0].B64JSON)
	if err != nil {
		return nil, fmt.Errorf("decode image payload: %w", err)
	}
	return data, nil
}
