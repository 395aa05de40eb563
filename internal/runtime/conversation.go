// ABOUTME: Two-agent conversation between an auto-replying proxy and an LLM assistant
// ABOUTME: Emits each message to the subscriber before the other side sees it

package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/2389/hercules-gateway/internal/llm"
)

// Default participant names and assistant instructions
const (
	DefaultProxyName     = "UserProxy"
	DefaultAssistantName = "Assistant"
	DefaultSystemMessage = "You are a helpful AI assistant. Provide concise answers. " +
		"When the task is fully resolved or you have no more to say, end your response with TERMINATE."
)

// ConversationConfig configures a Conversation.
type ConversationConfig struct {
	Model         llm.ChatModel
	SystemMessage string
	ProxyName     string
	AssistantName string
	// DefaultAutoReply is what the proxy says back after each assistant turn.
	DefaultAutoReply string
	// TurnTimeout bounds each model call. 0 means no per-turn bound.
	TurnTimeout time.Duration
	// Warning is reported through ConfigWarning.
	Warning string
	Logger  *slog.Logger
}

// Conversation is a Runtime with two participants: a proxy that relays the
// task and never asks for human input, and an assistant backed by a ChatModel.
type Conversation struct {
	cfg    ConversationConfig
	logger *slog.Logger
}

// NewConversation creates a Conversation, filling in default names.
func NewConversation(cfg ConversationConfig) (*Conversation, error) {
	if cfg.Model == nil {
		return nil, errors.New("conversation requires a chat model")
	}
	if cfg.SystemMessage == "" {
		cfg.SystemMessage = DefaultSystemMessage
	}
	if cfg.ProxyName == "" {
		cfg.ProxyName = DefaultProxyName
	}
	if cfg.AssistantName == "" {
		cfg.AssistantName = DefaultAssistantName
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Conversation{
		cfg:    cfg,
		logger: logger.With("component", "runtime"),
	}, nil
}

// ConfigWarning reports a configured model warning, if any.
func (c *Conversation) ConfigWarning() string {
	return c.cfg.Warning
}

// Run drives the conversation until the assistant terminates, the
// subscriber suppresses a message, or the proxy runs out of replies.
// The initial prompt is part of the history but is not emitted.
func (c *Conversation) Run(ctx context.Context, req RunRequest, sub Subscriber) (*Result, error) {
	maxTurns := req.MaxTurns
	if maxTurns <= 0 {
		maxTurns = DefaultMaxTurns
	}
	terminates := req.IsTermination
	if terminates == nil {
		terminates = func(Event) bool { return false }
	}

	res := &Result{History: []Turn{{Sender: c.cfg.ProxyName, Role: RoleUser, Content: req.Prompt}}}
	messages := []llm.ChatMessage{
		{Role: llm.RoleSystem, Content: c.cfg.SystemMessage},
		{Role: llm.RoleUser, Content: req.Prompt, Name: c.cfg.ProxyName},
	}

	for autoReplies := 0; ; autoReplies++ {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		reply, err := c.assistantTurn(ctx, messages)
		if err != nil {
			return res, err
		}

		ev := Event{
			Sender:     c.cfg.AssistantName,
			Role:       RoleAssistant,
			Content:    reply.Content,
			HasContent: reply.Content != "" || len(reply.ToolCalls) == 0,
			Model:      c.cfg.Model.Model(),
			ToolCalls:  reply.ToolCalls,
			Raw:        reply,
		}
		decision := sub.OnMessage(ctx, ev)
		res.History = append(res.History, Turn{Sender: ev.Sender, Role: ev.Role, Content: ev.Content})
		messages = append(messages, llm.ChatMessage{Role: llm.RoleAssistant, Content: reply.Content, Name: c.cfg.AssistantName})

		if decision == Suppress || terminates(ev) {
			break
		}
		if autoReplies >= maxTurns {
			c.logger.Debug("proxy reached auto-reply limit", "max_turns", maxTurns)
			break
		}

		ev = Event{
			Sender:     c.cfg.ProxyName,
			Role:       RoleUser,
			Content:    c.cfg.DefaultAutoReply,
			HasContent: true,
		}
		decision = sub.OnMessage(ctx, ev)
		res.History = append(res.History, Turn{Sender: ev.Sender, Role: ev.Role, Content: ev.Content})
		messages = append(messages, llm.ChatMessage{Role: llm.RoleUser, Content: ev.Content, Name: c.cfg.ProxyName})

		if decision == Suppress || terminates(ev) {
			break
		}
	}

	return res, nil
}

// assistantTurn asks the model for the next message within the turn deadline
func (c *Conversation) assistantTurn(ctx context.Context, messages []llm.ChatMessage) (*llm.Reply, error) {
	turnCtx := ctx
	if c.cfg.TurnTimeout > 0 {
		var cancel context.CancelFunc
		turnCtx, cancel = context.WithTimeout(ctx, c.cfg.TurnTimeout)
		defer cancel()
	}

	start := time.Now()
	reply, err := c.cfg.Model.Chat(turnCtx, messages)
	if err != nil {
		if ctx.Err() == nil && errors.Is(turnCtx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w after %s", ErrTurnDeadline, c.cfg.TurnTimeout)
		}
		return nil, fmt.Errorf("assistant turn: %w", err)
	}

	c.logger.Debug("assistant replied",
		"model", c.cfg.Model.Model(),
		"duration", time.Since(start),
		"tokens", reply.TotalTokens)
	return reply, nil
}

var _ Runtime = (*Conversation)(nil)
var _ ConfigWarner = (*Conversation)(nil)
