// ABOUTME: Store interfaces and data types for hercules-gateway persistence
// ABOUTME: Defines Room, Message, and the transcript/room store contracts

package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// ErrInvalidMessage is returned when a message lacks a required field
var ErrInvalidMessage = errors.New("invalid message")

// ErrDuplicateRoom is returned when trying to create a room that already exists
var ErrDuplicateRoom = errors.New("room already exists")

// RoomStatus tracks where a room's conversation is in its lifecycle
type RoomStatus string

const (
	RoomStatusPending   RoomStatus = "pending"
	RoomStatusRunning   RoomStatus = "running"
	RoomStatusCompleted RoomStatus = "completed"
	RoomStatusFailed    RoomStatus = "failed"
)

// Room is the metadata row for a task room
type Room struct {
	ID         string
	UserID     string
	TaskPrompt string
	FolderPath string
	Status     RoomStatus
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Custom message types for server-originated transcript records
const (
	CustomTypeLLMConfigWarning = "llm_config_warning"
	CustomTypeRuntimeError     = "runtime_error"
)

// Message is one transcript entry in a room
type Message struct {
	ID         string
	Seq        int64 // insertion order within the store, assigned on append
	RoomID     string
	AgentName  string
	Content    string
	ModelUsed  *string         // model identifier of the emitting agent, if any
	ToolCalls  json.RawMessage // tool-call payload attached to the message, if any
	TokenCount *int
	CustomType *string // e.g. "runtime_error" for System records
	CreatedAt  time.Time
}

// Validate checks the fields every append requires
func (m *Message) Validate() error {
	switch {
	case m == nil:
		return fmt.Errorf("%w: nil message", ErrInvalidMessage)
	case m.RoomID == "":
		return fmt.Errorf("%w: room_id is required", ErrInvalidMessage)
	case m.AgentName == "":
		return fmt.Errorf("%w: agent_name is required", ErrInvalidMessage)
	case m.Content == "":
		return fmt.Errorf("%w: content is required", ErrInvalidMessage)
	}
	return nil
}

// prepareMessage validates msg and returns a copy with server defaults
// filled in: a fresh ID and a UTC timestamp when absent.
func prepareMessage(msg *Message) (*Message, error) {
	if err := msg.Validate(); err != nil {
		return nil, err
	}
	m := *msg
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now()
	}
	m.CreatedAt = m.CreatedAt.UTC()
	return &m, nil
}

// TranscriptStore is the durable, ordered record of room messages
type TranscriptStore interface {
	// AppendMessage persists msg and returns the stored record.
	AppendMessage(ctx context.Context, msg *Message) (*Message, error)
	// ListMessages returns a room's messages in append order. limit <= 0 means all.
	ListMessages(ctx context.Context, roomID string, limit int) ([]*Message, error)
}

// RoomStore holds room metadata
type RoomStore interface {
	CreateRoom(ctx context.Context, room *Room) error
	// GetRoom returns the room only if it is owned by userID.
	GetRoom(ctx context.Context, roomID, userID string) (*Room, error)
	UpdateRoomStatus(ctx context.Context, roomID string, status RoomStatus) error
}

// Store combines every persistence concern the gateway needs
type Store interface {
	TranscriptStore
	RoomStore

	// Ping reports whether the backing database is reachable
	Ping(ctx context.Context) error

	// Close releases any resources held by the store
	Close() error
}
