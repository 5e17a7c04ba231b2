package conversation

import (
	"context"
	"log/slog"
	"sync"

	"github.com/mnemochat/mnemo/internal/llm"
)

// ImageSupport is what we know about a model's ability to take image input.
type ImageSupport int

const (
	ImageSupportUnknown ImageSupport = iota
	ImageSupportYes
	ImageSupportNo
)

// CapabilityCache answers "does this model accept images" by asking the
// backend's model registry once per (base URL, model) pair. Lookups that
// fail are cached as unknown rather than retried, and unknown means the
// caller should pass content through unchanged instead of guessing.
type CapabilityCache struct {
	client llm.Client

	mu    sync.Mutex
	known map[string]ImageSupport
}

func NewCapabilityCache(client llm.Client) *CapabilityCache {
	return &CapabilityCache{
		client: client,
		known:  make(map[string]ImageSupport),
	}
}

func (c *CapabilityCache) ImageSupport(ctx context.Context, creds llm.Credentials, model string) ImageSupport {
	key := creds.BaseURL + "|" + model

	c.mu.Lock()
	if support, ok := c.known[key]; ok {
		c.mu.Unlock()
		return support
	}
	c.mu.Unlock()

	support := c.probe(ctx, creds, model)

	c.mu.Lock()
	c.known[key] = support
	c.mu.Unlock()
	return support
}

func (c *CapabilityCache) probe(ctx context.Context, creds llm.Credentials, model string) ImageSupport {
	info, err := c.client.LookupModel(ctx, creds, model)
	if err != nil {
		slog.Warn("model capability lookup failed",
			"component", "conversation", "model", model, "error", err)
		return ImageSupportUnknown
	}
	if info == nil {
		// Registry reachable but the model is not listed there.
		return ImageSupportUnknown
	}
	if len(info.InputModalities) == 0 {
		// Listed without modality metadata.
		return ImageSupportUnknown
	}
	if info.AcceptsImages() {
		return ImageSupportYes
	}
	return ImageSupportNo
}
