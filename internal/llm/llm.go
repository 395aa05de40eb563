// ABOUTME: Chat model abstraction used by the assistant agent
// ABOUTME: Message and reply types shared by every backend

package llm

import (
	"context"
	"encoding/json"
)

// Roles understood by chat-completions backends
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatMessage is one entry of the conversation sent to a model.
type ChatMessage struct {
	Role    string
	Content string
	Name    string
}

// Reply is a model's answer to a conversation.
type Reply struct {
	Content string
	// ToolCalls holds the raw tool_calls array when the model requested any.
	ToolCalls json.RawMessage
	// TotalTokens as reported by the backend, zero when unknown.
	TotalTokens int
}

// ChatModel produces the next assistant message for a conversation.
type ChatModel interface {
	Chat(ctx context.Context, messages []ChatMessage) (*Reply, error)
	// Model returns the model identifier recorded with every message.
	Model() string
}
