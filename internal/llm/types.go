package llm

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

type PartKind string

const (
	PartText  PartKind = "text"
	PartImage PartKind = "image"
)

// Part is one segment of a structured message. ImageURL holds either a remote
// URL or a base64 data URL.
type Part struct {
	Kind     PartKind
	Text     string
	ImageURL string
}

// Message is one transcript entry. Content carries plain text; Parts, when
// non-nil, carries structured multi-part content instead and Content is
// ignored. Assistant messages may carry ToolCalls; tool results reference the
// call they answer via ToolCallID.
type Message struct {
	Role       Role
	Content    string
	Parts      []Part
	ToolCalls  []ToolCall
	ToolCallID string
}

// HasImage reports whether any part carries image content.
func (m Message) HasImage() bool {
	for _, p := range m.Parts {
		if p.Kind == PartImage {
			return true
		}
	}
	return false
}

// PlainText flattens the message to text: Content for plain messages, the
// concatenated text parts otherwise.
func (m Message) PlainText() string {
	if m.Parts == nil {
		return m.Content
	}
	var out string
	for _, p := range m.Parts {
		if p.Kind != PartText || p.Text == "" {
			continue
		}
		if out != "" {
			out += "\n"
		}
		out += p.Text
	}
	return out
}

type ToolCall struct {
	ID        string
	Name      string
	Arguments string
}

type ToolDef struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// Credentials are resolved per chat before every backend call.
type Credentials struct {
	APIKey  string
	BaseURL string
}

// Request is one chat-completion round trip. A non-nil OnDelta switches the
// call to streaming; it receives the cumulative content text after every
// delta and never fires for tool-call fragments.
type Request struct {
	Creds       Credentials
	Model       string
	System      string
	Messages    []Message
	Tools       []ToolDef
	MaxTokens   int
	Temperature float32
	OnDelta     func(cumulative string)
}

type Completion struct {
	Content   string
	ToolCalls []ToolCall
}

type ImageRequest struct {
	Creds  Credentials
	Model  string
	Prompt string
}

// ModelInfo is one registry entry. InputModalities stays empty when the
// backend does not publish modality metadata.
type ModelInfo struct {
	ID              string
	InputModalities []string
}

// AcceptsImages reports whether the published modalities include image input.
// Only meaningful when InputModalities is non-empty.
func (m ModelInfo) AcceptsImages() bool {
	for _, mod := range m.InputModalities {
		if mod == "image" {
			return true
		}
	}
	return false
}
