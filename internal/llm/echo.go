// ABOUTME: Offline ChatModel that echoes the task back and terminates
// ABOUTME: Selected with llm.backend "echo" for local runs without an API key

package llm

import (
	"context"
	"fmt"
)

// EchoModel answers the latest user message once, then terminates.
type EchoModel struct{}

// Model returns "echo".
func (EchoModel) Model() string { return "echo" }

// Chat echoes the last non-empty user message with a termination suffix.
func (EchoModel) Chat(ctx context.Context, messages []ChatMessage) (*Reply, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	for i := len(messages) - 1; i >= 0; i-- {
		m := messages[i]
		if m.Role == RoleUser && m.Content != "" {
			return &Reply{Content: fmt.Sprintf("You asked: %s\n\nTERMINATE", m.Content)}, nil
		}
	}
	return &Reply{Content: "TERMINATE"}, nil
}

var _ ChatModel = EchoModel{}
