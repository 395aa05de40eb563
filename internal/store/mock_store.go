// ABOUTME: Mock Store implementation for testing
// ABOUTME: Allows tests to run without SQLite and to inject append failures

package store

import (
	"context"
	"sync"
	"time"
)

// MockStore is an in-memory Store implementation for testing.
type MockStore struct {
	mu       sync.RWMutex
	rooms    map[string]*Room      // keyed by room ID
	messages map[string][]*Message // keyed by room ID, append order
	seq      int64

	// AppendErr, when set, is consulted before every append. A non-nil
	// return fails that append without storing anything.
	AppendErr func(msg *Message) error
	// PingErr is returned by Ping.
	PingErr error
}

// NewMockStore creates a new MockStore.
func NewMockStore() *MockStore {
	return &MockStore{
		rooms:    make(map[string]*Room),
		messages: make(map[string][]*Message),
	}
}

// CreateRoom stores a new room.
func (m *MockStore) CreateRoom(ctx context.Context, room *Room) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.rooms[room.ID]; ok {
		return ErrDuplicateRoom
	}
	if room.Status == "" {
		room.Status = RoomStatusPending
	}
	if room.CreatedAt.IsZero() {
		room.CreatedAt = time.Now().UTC()
	}
	if room.UpdatedAt.IsZero() {
		room.UpdatedAt = room.CreatedAt
	}
	r := *room
	m.rooms[r.ID] = &r
	return nil
}

// GetRoom retrieves a room owned by userID.
func (m *MockStore) GetRoom(ctx context.Context, roomID, userID string) (*Room, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.rooms[roomID]
	if !ok || r.UserID != userID {
		return nil, ErrNotFound
	}
	out := *r
	return &out, nil
}

// UpdateRoomStatus sets a room's status.
func (m *MockStore) UpdateRoomStatus(ctx context.Context, roomID string, status RoomStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.rooms[roomID]
	if !ok {
		return ErrNotFound
	}
	r.Status = status
	r.UpdatedAt = time.Now().UTC()
	return nil
}

// AppendMessage stores a copy of msg.
func (m *MockStore) AppendMessage(ctx context.Context, msg *Message) (*Message, error) {
	stored, err := prepareMessage(msg)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.AppendErr != nil {
		if err := m.AppendErr(stored); err != nil {
			return nil, err
		}
	}

	m.seq++
	stored.Seq = m.seq
	m.messages[stored.RoomID] = append(m.messages[stored.RoomID], stored)

	out := *stored
	return &out, nil
}

// ListMessages returns copies of a room's messages in append order.
func (m *MockStore) ListMessages(ctx context.Context, roomID string, limit int) ([]*Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	msgs := m.messages[roomID]
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[:limit]
	}
	out := make([]*Message, 0, len(msgs))
	for _, msg := range msgs {
		c := *msg
		out = append(out, &c)
	}
	return out, nil
}

// Ping returns PingErr.
func (m *MockStore) Ping(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.PingErr
}

// SetPingErr changes what Ping returns.
func (m *MockStore) SetPingErr(err error) {
	m.mu.Lock()
	m.PingErr = err
	m.mu.Unlock()
}

// Close is a no-op.
func (m *MockStore) Close() error {
	return nil
}

var _ Store = (*MockStore)(nil)
var _ Store = (*SQLiteStore)(nil)
var _ Store = (*PostgresStore)(nil)
