package validation

import (
	"chat-gateway/internal/service/llm"
	"errors"
	"fmt"
)

// MaxMessageChars bounds a single message's content; oversized payloads are
// rejected outright
const MaxMessageChars = 50000

// ChatRequestValidator validates chat-related requests
type ChatRequestValidator struct{}

// NewChatRequestValidator creates a new ChatRequestValidator
func NewChatRequestValidator() *ChatRequestValidator {
	return &ChatRequestValidator{}
}

// ValidateMessages validates the inbound message history
func (v *ChatRequestValidator) ValidateMessages(messages []llm.Message) error {
	if len(messages) == 0 {
		return errors.New("messages cannot be empty")
	}

	for i, msg := range messages {
		switch msg.Role {
		case "user", "assistant", "system":
		default:
			return fmt.Errorf("message %d has invalid role %q", i, msg.Role)
		}
		if msg.Content == "" {
			return fmt.Errorf("message %d has empty content", i)
		}
		if len(msg.Content) > MaxMessageChars {
			return fmt.Errorf("message %d exceeds %d characters", i, MaxMessageChars)
		}
	}

	return nil
}

// ValidateWebSearchContextSize validates the optional search context size
func (v *ChatRequestValidator) ValidateWebSearchContextSize(size string) error {
	switch size {
	case "", "low", "medium", "high":
		return nil
	default:
		return fmt.Errorf("web_search_context_size must be one of: low, medium, high; got %s", size)
	}
}

// ValidateChatRequest validates a complete chat request
func (v *ChatRequestValidator) ValidateChatRequest(messages []llm.Message, webSearchContextSize string) error {
	if err := v.ValidateMessages(messages); err != nil {
		return err
	}

	if err := v.ValidateWebSearchContextSize(webSearchContextSize); err != nil {
		return err
	}

	return nil
}
