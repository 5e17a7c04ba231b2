package conversation

import "github.com/mnemochat/mnemo/internal/llm"

// imagePlaceholder stands in for an image the active model cannot see.
const imagePlaceholder = "[image]"

// SanitizeImages rewrites image-bearing messages down to a single text
// message when the model is known not to accept image input. History can
// hold images from before a model switch, and sending those to a text-only
// model fails the whole request. With support unknown or confirmed the
// messages pass through untouched.
func SanitizeImages(messages []llm.Message, support ImageSupport) []llm.Message {
	if support != ImageSupportNo {
		return messages
	}

	out := make([]llm.Message, len(messages))
	for i, msg := range messages {
		if msg.HasImage() {
			text := msg.PlainText()
			if text == "" {
				text = imagePlaceholder
			}
			msg.Content = text
			msg.Parts = nil
		}
		out[i] = msg
	}
	return out
}
