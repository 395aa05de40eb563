// ABOUTME: Classification of agent messages into ordinary, termination, or ignored
// ABOUTME: Also holds the runtime's looser end-of-conversation predicate

package conversation

import (
	"fmt"
	"strings"

	"github.com/2389/hercules-gateway/internal/runtime"
)

// Sentinel is the token agents emit to end a conversation.
const Sentinel = "TERMINATE"

// Class is how the relay treats one message.
type Class int

const (
	// ClassIgnored messages have no content after trimming.
	ClassIgnored Class = iota
	// ClassOrdinary messages are broadcast and persisted.
	ClassOrdinary
	// ClassTermination messages are exactly the sentinel; broadcast as an
	// event, never persisted.
	ClassTermination
)

func (c Class) String() string {
	switch c {
	case ClassOrdinary:
		return "ordinary"
	case ClassTermination:
		return "termination"
	default:
		return "ignored"
	}
}

// Classify compares the trimmed content case-insensitively against the
// sentinel. "TERMINATE" and " terminate\n" are terminations; "terminate
// later" is ordinary.
func Classify(content string, hasContent bool) Class {
	if !hasContent {
		return ClassIgnored
	}
	trimmed := strings.TrimSpace(content)
	switch {
	case trimmed == "":
		return ClassIgnored
	case strings.EqualFold(trimmed, Sentinel):
		return ClassTermination
	default:
		return ClassOrdinary
	}
}

// IsTerminationMessage is the predicate handed to the runtime: the
// conversation ends once a message's trimmed content ends with the sentinel.
func IsTerminationMessage(ev runtime.Event) bool {
	return strings.HasSuffix(strings.ToUpper(strings.TrimSpace(ev.Content)), Sentinel)
}

// eventContent returns the text of ev, falling back to the stringified raw
// message when the event carried no content field.
func eventContent(ev runtime.Event) (string, bool) {
	if ev.HasContent {
		return ev.Content, true
	}
	switch raw := ev.Raw.(type) {
	case string:
		return raw, true
	case fmt.Stringer:
		return raw.String(), true
	}
	return "", false
}

// FirstReply scans history in order for the first assistant turn whose
// trimmed content is neither empty nor the sentinel. Nil when none qualifies.
func FirstReply(history []runtime.Turn) *string {
	for _, turn := range history {
		if turn.Role != runtime.RoleAssistant {
			continue
		}
		if Classify(turn.Content, true) == ClassOrdinary {
			reply := strings.TrimSpace(turn.Content)
			return &reply
		}
	}
	return nil
}
