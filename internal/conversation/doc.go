// Package conversation relays an agent runtime's output to a room.
//
// # Overview
//
// A Relay runs one session per (room, prompt). It sits between the agent
// runtime and the outside world: every message the runtime produces is
// classified, broadcast to the room's live connections, and appended to the
// transcript store.
//
//	relay, err := conversation.NewRelay(conversation.RelayConfig{
//		Runtime:     rt,
//		Broadcaster: broadcaster,
//		Store:       st,
//		SessionLog:  sessionlog.New(roomsDir),
//	})
//	res := relay.Run(ctx, roomID, prompt)
//
// # Classification
//
// Content that is exactly "TERMINATE" after trimming (any case) is a
// termination: it is broadcast as a TERMINATE event and never persisted.
// Empty content is dropped. Everything else is an ordinary message.
//
// # Session states
//
//	INIT -> RUNNING -> TERMINATED
//	                \-> FAILED
//
// INIT persists and broadcasts the prompt. TERMINATED captures the first
// substantive assistant reply. FAILED broadcasts a runtime_error notice and
// stores a System record. Both terminal states append one session log
// record and set the room status.
//
// # Failures
//
// A failed transcript append is reported to the room as a System notice
// (message_type "persistence_error") and the session continues. A failed
// send prunes that connection and nothing else.
package conversation
