package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/elliotchance/pie/v2"
)

type registryEntry struct {
	ID           string `json:"id"`
	Architecture *struct {
		// OpenRouter publishes either of these; plain OpenAI neither.
		Modality        string   `json:"modality"`
		InputModalities []string `json:"input_modalities"`
	} `json:"architecture"`
}

// LookupModel fetches the registry entry for one model. go-openai's typed
// listing drops the modality metadata this needs, so the call goes over raw
// HTTP against the same base URL.
func (o *OpenAI) LookupModel(ctx context.Context, creds Credentials, model string) (*ModelInfo, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(creds.BaseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("missing base url")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/models", nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+creds.APIKey)

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("model registry http %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var decoded struct {
		Data []registryEntry `json:"data"`
	}
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	idx := pie.FindFirstUsing(decoded.Data, func(e registryEntry) bool {
		return e.ID == model
	})
	if idx < 0 {
		return nil, nil
	}

	info := &ModelInfo{ID: decoded.Data[idx].ID}
	if arch := decoded.Data[idx].Architecture; arch != nil {
		if len(arch.InputModalities) > 0 {
			info.InputModalities = arch.InputModalities
		} else if arch.Modality != "" {
			// Legacy "text+image->text" form.
			input, _, _ := strings.Cut(arch.Modality, "->")
			info.InputModalities = strings.Split(input, "+")
		}
	}
	return info, nil
}
