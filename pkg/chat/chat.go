package chat

import (
	"fmt"
	"strings"
)

const (
	ChatRoleUser   = "user"
	ChatRoleAgent  = "assistant"
	ChatRoleSystem = "system"
)

// ChatMessage represents a single chat message in the conversation.
// The shape matches the Ollama and OpenAI-style chat APIs.
type ChatMessage struct {
	Role    string `json:"role"` // "user", "assistant", "system"
	Content string `json:"content"`
}

// ChatResponse is a completed model reply.
type ChatResponse struct {
	Message string `json:"message,omitempty"`
	Model   string `json:"model,omitempty"`
}

// Validate checks that every message has a known role and some content.
func Validate(messages []ChatMessage) error {
	if len(messages) == 0 {
		return fmt.Errorf("no messages")
	}
	for i, m := range messages {
		switch m.Role {
		case ChatRoleUser, ChatRoleAgent, ChatRoleSystem:
		default:
			return fmt.Errorf("message %d: unknown role %q", i, m.Role)
		}
		if strings.TrimSpace(m.Content) == "" {
			return fmt.Errorf("message %d: content cannot be empty", i)
		}
	}
	return nil
}

// Split separates system messages from the conversation, joining the
// system parts with blank lines. Providers with a dedicated system field
// use it.
func Split(messages []ChatMessage) (string, []ChatMessage) {
	var systemParts []string
	var rest []ChatMessage
	for _, msg := range messages {
		if msg.Role == ChatRoleSystem {
			systemParts = append(systemParts, msg.Content)
		} else {
			rest = append(rest, msg)
		}
	}
	return strings.Join(systemParts, "\n\n"), rest
}
