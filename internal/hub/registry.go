// ABOUTME: Room-scoped registry of live client connections
// ABOUTME: Tracks which connections watch which room and drops empty rooms

package hub

import (
	"context"
	"log/slog"
	"sync"
)

// Conn is a live, message-oriented client channel. The registry holds it for
// routing only; opening and closing it is the transport's business.
type Conn interface {
	ID() string
	Send(ctx context.Context, data []byte) error
}

// Registry maps room IDs to the connections currently watching them.
// A connection is a member of at most one room at a time.
type Registry struct {
	mu     sync.RWMutex
	rooms  map[string][]Conn // roomID -> live connections in attach order
	member map[Conn]string   // conn -> roomID
	logger *slog.Logger
}

// NewRegistry creates an empty registry. Pass nil logger for default.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		rooms:  make(map[string][]Conn),
		member: make(map[Conn]string),
		logger: logger.With("component", "registry"),
	}
}

// Connect registers conn under roomID. A connection already attached to
// another room is moved; attaching it to the same room again does nothing.
func (r *Registry) Connect(conn Conn, roomID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if current, ok := r.member[conn]; ok {
		if current == roomID {
			return
		}
		r.removeLocked(conn, current)
	}

	r.rooms[roomID] = append(r.rooms[roomID], conn)
	r.member[conn] = roomID

	r.logger.Info("connection attached",
		"room_id", roomID,
		"conn_id", conn.ID(),
		"room_size", len(r.rooms[roomID]))
}

// Disconnect removes conn from roomID. Unknown connections and rooms are
// ignored, so calling it twice is harmless.
func (r *Registry) Disconnect(conn Conn, roomID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.removeLocked(conn, roomID) {
		return
	}

	r.logger.Info("connection detached",
		"room_id", roomID,
		"conn_id", conn.ID(),
		"room_size", len(r.rooms[roomID]))
}

// removeLocked drops conn from roomID and deletes the room entry once it is
// empty. Reports whether anything was removed. Caller holds r.mu.
func (r *Registry) removeLocked(conn Conn, roomID string) bool {
	conns, ok := r.rooms[roomID]
	if !ok {
		return false
	}

	idx := -1
	for i, c := range conns {
		if c == conn {
			idx = i
			break
		}
	}
	if idx < 0 {
		return false
	}

	conns = append(conns[:idx:idx], conns[idx+1:]...)
	if len(conns) == 0 {
		delete(r.rooms, roomID)
	} else {
		r.rooms[roomID] = conns
	}
	if r.member[conn] == roomID {
		delete(r.member, conn)
	}
	return true
}

// Connections returns a snapshot of the room's live set. Later Connect or
// Disconnect calls do not affect the returned slice.
func (r *Registry) Connections(roomID string) []Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conns := r.rooms[roomID]
	if len(conns) == 0 {
		return nil
	}
	out := make([]Conn, len(conns))
	copy(out, conns)
	return out
}

// HasRoom reports whether the room currently has any live connection.
func (r *Registry) HasRoom(roomID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.rooms[roomID]
	return ok
}

// Count returns the number of live connections in the room.
func (r *Registry) Count(roomID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms[roomID])
}

// RoomCount returns the number of rooms with at least one live connection.
func (r *Registry) RoomCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}

// ConnCount returns the number of live connections across all rooms.
func (r *Registry) ConnCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.member)
}
