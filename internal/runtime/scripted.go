// ABOUTME: Deterministic Runtime that replays a fixed list of turns
// ABOUTME: Lets relay and gateway tests drive sessions without a model

package runtime

import (
	"context"
	"encoding/json"
	"time"
)

// ScriptedTurn is one canned message.
type ScriptedTurn struct {
	Sender    string
	Role      string
	Content   string
	NoContent bool
	Model     string
	ToolCalls json.RawMessage
	// Delay is waited before the turn is emitted.
	Delay time.Duration
}

// Scripted replays Turns in order. After the last turn it returns Err.
type Scripted struct {
	Turns   []ScriptedTurn
	Err     error
	Warning string
}

// ConfigWarning returns s.Warning.
func (s *Scripted) ConfigWarning() string {
	return s.Warning
}

// Run emits each turn, stopping early on Suppress or termination.
func (s *Scripted) Run(ctx context.Context, req RunRequest, sub Subscriber) (*Result, error) {
	res := &Result{History: []Turn{{Sender: DefaultProxyName, Role: RoleUser, Content: req.Prompt}}}

	for _, turn := range s.Turns {
		if turn.Delay > 0 {
			timer := time.NewTimer(turn.Delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return res, ctx.Err()
			case <-timer.C:
			}
		}
		if err := ctx.Err(); err != nil {
			return res, err
		}

		ev := Event{
			Sender:     turn.Sender,
			Role:       turn.Role,
			Content:    turn.Content,
			HasContent: !turn.NoContent,
			Model:      turn.Model,
			ToolCalls:  turn.ToolCalls,
			Raw:        turn,
		}
		decision := sub.OnMessage(ctx, ev)
		res.History = append(res.History, Turn{Sender: ev.Sender, Role: ev.Role, Content: ev.Content})

		if decision == Suppress || (req.IsTermination != nil && req.IsTermination(ev)) {
			return res, nil
		}
	}

	return res, s.Err
}

var _ Runtime = (*Scripted)(nil)
var _ ConfigWarner = (*Scripted)(nil)
