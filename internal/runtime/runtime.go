// ABOUTME: Boundary between the gateway and a multi-turn agent runtime
// ABOUTME: Runtimes emit every produced message to a Subscriber before delivering it

package runtime

import (
	"context"
	"encoding/json"
	"errors"
)

// ErrTurnDeadline is returned when a single agent turn exceeds its deadline.
var ErrTurnDeadline = errors.New("turn deadline exceeded")

// Roles of conversation participants, as seen by the proxy
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Event is one message produced by a participant.
type Event struct {
	Sender  string
	Role    string
	Content string
	// HasContent is false when the message carried no content field at all
	// (for example a pure tool-call message).
	HasContent bool
	// Model identifies the language model behind the sender, if any.
	Model     string
	ToolCalls json.RawMessage
	// Raw is the runtime-specific message, for logging only.
	Raw any
}

// HandledDecision tells the runtime whether delivery continues.
type HandledDecision int

const (
	// Continue delivers the message to its recipient as usual.
	Continue HandledDecision = iota
	// Suppress stops the recipient from replying and ends the conversation.
	Suppress
)

func (d HandledDecision) String() string {
	switch d {
	case Continue:
		return "continue"
	case Suppress:
		return "suppress"
	default:
		return "unknown"
	}
}

// Subscriber observes every message a runtime produces.
type Subscriber interface {
	OnMessage(ctx context.Context, ev Event) HandledDecision
}

// SubscriberFunc adapts a function to Subscriber.
type SubscriberFunc func(ctx context.Context, ev Event) HandledDecision

// OnMessage calls f.
func (f SubscriberFunc) OnMessage(ctx context.Context, ev Event) HandledDecision {
	return f(ctx, ev)
}

// RunRequest describes one conversation.
type RunRequest struct {
	Prompt string
	// MaxTurns bounds the proxy's automatic replies. <= 0 uses DefaultMaxTurns.
	MaxTurns int
	// IsTermination ends the conversation after the matching message has
	// been emitted. Nil never terminates early.
	IsTermination func(Event) bool
}

// Turn is one entry of the conversation history.
type Turn struct {
	Sender  string
	Role    string
	Content string
}

// Result is the full ordered history of a finished conversation,
// starting with the initial prompt.
type Result struct {
	History []Turn
}

// Runtime drives a conversation to completion.
type Runtime interface {
	Run(ctx context.Context, req RunRequest, sub Subscriber) (*Result, error)
}

// ConfigWarner is implemented by runtimes that can detect an unusable
// model configuration up front. An empty string means no warning.
type ConfigWarner interface {
	ConfigWarning() string
}

// DefaultMaxTurns is the proxy's automatic reply limit.
const DefaultMaxTurns = 5
