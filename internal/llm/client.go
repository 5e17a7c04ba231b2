package llm

import "context"

// Client is the backend surface the gateway depends on. The production
// implementation is OpenAI; tests script their own.
type Client interface {
	// Complete runs one chat completion, streaming when req.OnDelta is set.
	Complete(ctx context.Context, req Request) (*Completion, error)

	// LookupModel fetches one entry from the backend model registry.
	// A reachable registry without the model yields (nil, nil).
	LookupModel(ctx context.Context, creds Credentials, model string) (*ModelInfo, error)

	// GenerateImage renders a prompt with the image model and returns the
	// raw image bytes.
	GenerateImage(ctx context.Context, req ImageRequest) ([]byte, error)
}
