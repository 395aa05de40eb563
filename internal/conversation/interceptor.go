// ABOUTME: Runtime subscriber that classifies, broadcasts and persists each message
// ABOUTME: Observes only; it never steers the runtime's own reply logic

package conversation

import (
	"context"
	"log/slog"

	"github.com/2389/hercules-gateway/internal/hub"
	"github.com/2389/hercules-gateway/internal/runtime"
	"github.com/2389/hercules-gateway/internal/store"
)

// interceptor handles the messages of one session. The runtime calls
// OnMessage sequentially, so each message is broadcast and persisted before
// the next one is seen.
type interceptor struct {
	relay     *Relay
	roomID    string
	logger    *slog.Logger
	processed int
}

func (ic *interceptor) OnMessage(ctx context.Context, ev runtime.Event) runtime.HandledDecision {
	content, hasContent := eventContent(ev)
	agent := ev.Sender
	if agent == "" {
		agent = "UnknownAgent"
	}

	switch Classify(content, hasContent) {
	case ClassIgnored:
		ic.logger.Debug("dropping message without content", "agent", agent)

	case ClassTermination:
		ic.logger.Info("agent is terminating", "agent", agent)
		ic.relay.broadcaster.BroadcastToRoom(ctx, ic.roomID, hub.NewTerminateEvent(agent))

	case ClassOrdinary:
		ic.processed++
		ic.relay.broadcaster.BroadcastToRoom(ctx, ic.roomID, hub.AgentMessage{Agent: agent, Message: content})

		msg := &store.Message{
			RoomID:    ic.roomID,
			AgentName: agent,
			Content:   content,
			ToolCalls: ev.ToolCalls,
		}
		if ev.Model != "" {
			model := ev.Model
			msg.ModelUsed = &model
		}
		ic.relay.persistOrReport(ctx, msg)
	}

	return runtime.Continue
}

var _ runtime.Subscriber = (*interceptor)(nil)
