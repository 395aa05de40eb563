// ABOUTME: Wire shapes broadcast to room watchers
// ABOUTME: Ordinary agent messages, termination events, and system error notices

package hub

// SystemAgent is the agent name carried by server-originated notices.
const SystemAgent = "System"

// TerminateEventName is the event value sent when an agent emits the sentinel.
const TerminateEventName = "TERMINATE"

// Payload is a message that can be broadcast to a room. WithTimestamp returns
// a copy stamped with ts unless the payload already carries a timestamp.
type Payload interface {
	WithTimestamp(ts string) Payload
	Kind() string
}

// AgentMessage is an ordinary turn produced by an agent.
type AgentMessage struct {
	Agent     string `json:"agent"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp,omitempty"`
}

func (m AgentMessage) WithTimestamp(ts string) Payload {
	if m.Timestamp == "" {
		m.Timestamp = ts
	}
	return m
}

func (m AgentMessage) Kind() string { return "message" }

// TerminateEvent tells watchers that an agent has finished.
type TerminateEvent struct {
	Agent     string `json:"agent"`
	Event     string `json:"event"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp,omitempty"`
}

// NewTerminateEvent builds the termination notice for agent.
func NewTerminateEvent(agent string) TerminateEvent {
	return TerminateEvent{
		Agent:   agent,
		Event:   TerminateEventName,
		Message: agent + " has finished.",
	}
}

func (e TerminateEvent) WithTimestamp(ts string) Payload {
	if e.Timestamp == "" {
		e.Timestamp = ts
	}
	return e
}

func (e TerminateEvent) Kind() string { return "terminate" }

// SystemError is a best-effort notice about a backend failure. It never
// carries a "message" field so clients can tell it apart from agent output.
type SystemError struct {
	Agent       string `json:"agent"`
	Error       string `json:"error"`
	MessageType string `json:"message_type,omitempty"`
	Timestamp   string `json:"timestamp,omitempty"`
}

// NewSystemError builds a System notice with an optional type tag.
func NewSystemError(errText, messageType string) SystemError {
	return SystemError{
		Agent:       SystemAgent,
		Error:       errText,
		MessageType: messageType,
	}
}

func (e SystemError) WithTimestamp(ts string) Payload {
	if e.Timestamp == "" {
		e.Timestamp = ts
	}
	return e
}

func (e SystemError) Kind() string { return "system_error" }
