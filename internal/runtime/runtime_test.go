// ABOUTME: Tests for the two-agent conversation runtime
// ABOUTME: Drives it with a stub model to check turn order, limits and warnings

package runtime

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/hercules-gateway/internal/llm"
)

// fakeModel replies from a queue and records what it was sent
type fakeModel struct {
	mu      sync.Mutex
	replies []string
	calls   [][]llm.ChatMessage
	block   bool
	err     error
}

func (f *fakeModel) Model() string { return "fake-model" }

func (f *fakeModel) Chat(ctx context.Context, messages []llm.ChatMessage) (*llm.Reply, error) {
	f.mu.Lock()
	f.calls = append(f.calls, append([]llm.ChatMessage(nil), messages...))
	if f.err != nil {
		f.mu.Unlock()
		return nil, f.err
	}
	if f.block {
		f.mu.Unlock()
		<-ctx.Done()
		return nil, ctx.Err()
	}
	var content string
	if len(f.replies) > 0 {
		content = f.replies[0]
		f.replies = f.replies[1:]
	} else {
		content = "still thinking"
	}
	f.mu.Unlock()
	return &llm.Reply{Content: content}, nil
}

// recorder collects emitted events
type recorder struct {
	events   []Event
	decision func(Event) HandledDecision
}

func (r *recorder) OnMessage(_ context.Context, ev Event) HandledDecision {
	r.events = append(r.events, ev)
	if r.decision != nil {
		return r.decision(ev)
	}
	return Continue
}

func endsWithTerminate(ev Event) bool {
	return strings.HasSuffix(strings.ToUpper(strings.TrimSpace(ev.Content)), "TERMINATE")
}

func newTestConversation(t *testing.T, model llm.ChatModel, timeout time.Duration) *Conversation {
	t.Helper()
	c, err := NewConversation(ConversationConfig{Model: model, TurnTimeout: timeout})
	require.NoError(t, err)
	return c
}

func TestConversation_TerminatesOnSentinel(t *testing.T) {
	model := &fakeModel{replies: []string{"Here is the answer.", "TERMINATE"}}
	conv := newTestConversation(t, model, 0)
	rec := &recorder{}

	res, err := conv.Run(context.Background(), RunRequest{Prompt: "task", IsTermination: endsWithTerminate}, rec)
	require.NoError(t, err)

	// assistant, proxy auto-reply, assistant TERMINATE
	require.Len(t, rec.events, 3)
	assert.Equal(t, DefaultAssistantName, rec.events[0].Sender)
	assert.Equal(t, "fake-model", rec.events[0].Model)
	assert.Equal(t, DefaultProxyName, rec.events[1].Sender)
	assert.Equal(t, "", rec.events[1].Content)
	assert.Empty(t, rec.events[1].Model)
	assert.Equal(t, "TERMINATE", rec.events[2].Content)

	// prompt is in history but was not emitted
	require.Len(t, res.History, 4)
	assert.Equal(t, Turn{Sender: DefaultProxyName, Role: RoleUser, Content: "task"}, res.History[0])
	assert.Equal(t, RoleAssistant, res.History[1].Role)
}

func TestConversation_SendsSystemMessageAndPrompt(t *testing.T) {
	model := &fakeModel{replies: []string{"done TERMINATE"}}
	conv := newTestConversation(t, model, 0)

	_, err := conv.Run(context.Background(), RunRequest{Prompt: "write a haiku", IsTermination: endsWithTerminate}, &recorder{})
	require.NoError(t, err)

	require.Len(t, model.calls, 1)
	first := model.calls[0]
	require.Len(t, first, 2)
	assert.Equal(t, llm.RoleSystem, first[0].Role)
	assert.Equal(t, DefaultSystemMessage, first[0].Content)
	assert.Equal(t, "write a haiku", first[1].Content)
}

func TestConversation_MaxTurns(t *testing.T) {
	model := &fakeModel{}
	conv := newTestConversation(t, model, 0)
	rec := &recorder{}

	_, err := conv.Run(context.Background(), RunRequest{Prompt: "loop", MaxTurns: 2}, rec)
	require.NoError(t, err)

	// three assistant turns separated by two proxy replies
	assert.Len(t, rec.events, 5)
	assert.Len(t, model.calls, 3)
}

func TestConversation_DefaultMaxTurns(t *testing.T) {
	model := &fakeModel{}
	conv := newTestConversation(t, model, 0)

	_, err := conv.Run(context.Background(), RunRequest{Prompt: "loop"}, &recorder{})
	require.NoError(t, err)
	assert.Len(t, model.calls, DefaultMaxTurns+1)
}

func TestConversation_SuppressStopsRecipient(t *testing.T) {
	model := &fakeModel{replies: []string{"first", "second"}}
	conv := newTestConversation(t, model, 0)
	rec := &recorder{decision: func(Event) HandledDecision { return Suppress }}

	res, err := conv.Run(context.Background(), RunRequest{Prompt: "p"}, rec)
	require.NoError(t, err)

	assert.Len(t, rec.events, 1)
	assert.Len(t, res.History, 2)
	assert.Len(t, model.calls, 1)
}

func TestConversation_TurnDeadline(t *testing.T) {
	model := &fakeModel{block: true}
	conv := newTestConversation(t, model, 20*time.Millisecond)

	_, err := conv.Run(context.Background(), RunRequest{Prompt: "p"}, &recorder{})
	assert.ErrorIs(t, err, ErrTurnDeadline)
}

func TestConversation_ParentCancelIsNotTurnDeadline(t *testing.T) {
	model := &fakeModel{block: true}
	conv := newTestConversation(t, model, time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := conv.Run(ctx, RunRequest{Prompt: "p"}, &recorder{})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrTurnDeadline)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestConversation_ModelError(t *testing.T) {
	boom := errors.New("invalid api key")
	conv := newTestConversation(t, &fakeModel{err: boom}, 0)

	_, err := conv.Run(context.Background(), RunRequest{Prompt: "p"}, &recorder{})
	assert.ErrorIs(t, err, boom)
}

func TestNewConversation(t *testing.T) {
	_, err := NewConversation(ConversationConfig{})
	assert.Error(t, err)

	c, err := NewConversation(ConversationConfig{Model: llm.EchoModel{}, Warning: "placeholder"})
	require.NoError(t, err)
	assert.Equal(t, "placeholder", c.ConfigWarning())
}

func TestConversation_EchoModel(t *testing.T) {
	conv := newTestConversation(t, llm.EchoModel{}, 0)
	rec := &recorder{}

	_, err := conv.Run(context.Background(), RunRequest{Prompt: "hello", IsTermination: endsWithTerminate}, rec)
	require.NoError(t, err)

	require.Len(t, rec.events, 1)
	assert.Contains(t, rec.events[0].Content, "You asked: hello")
}

func TestScripted(t *testing.T) {
	boom := errors.New("runtime crashed")
	s := &Scripted{
		Turns: []ScriptedTurn{
			{Sender: "Assistant", Role: RoleAssistant, Content: "one"},
			{Sender: "UserProxy", Role: RoleUser, NoContent: true},
		},
		Err: boom,
	}
	rec := &recorder{}

	res, err := s.Run(context.Background(), RunRequest{Prompt: "p"}, rec)
	assert.ErrorIs(t, err, boom)
	require.Len(t, rec.events, 2)
	assert.False(t, rec.events[1].HasContent)
	assert.Len(t, res.History, 3)
}

func TestScripted_StopsOnTermination(t *testing.T) {
	s := &Scripted{
		Turns: []ScriptedTurn{
			{Sender: "Assistant", Role: RoleAssistant, Content: "TERMINATE"},
			{Sender: "Assistant", Role: RoleAssistant, Content: "never sent"},
		},
		Err: errors.New("not reached"),
	}
	rec := &recorder{}

	_, err := s.Run(context.Background(), RunRequest{Prompt: "p", IsTermination: endsWithTerminate}, rec)
	require.NoError(t, err)
	assert.Len(t, rec.events, 1)
}

func TestScripted_DelayHonorsContext(t *testing.T) {
	s := &Scripted{Turns: []ScriptedTurn{{Sender: "Assistant", Content: "late", Delay: time.Minute}}}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := s.Run(ctx, RunRequest{Prompt: "p"}, &recorder{})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestHandledDecision_String(t *testing.T) {
	assert.Equal(t, "continue", Continue.String())
	assert.Equal(t, "suppress", Suppress.String())
}
