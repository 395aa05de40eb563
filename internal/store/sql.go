// ABOUTME: database/sql implementation shared by the SQLite and Postgres stores
// ABOUTME: Room metadata and transcript queries with per-dialect placeholders

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"
)

// dialect captures the differences between the supported SQL backends
type dialect struct {
	name string
	// numbered placeholders ($1, $2, ...) instead of ?
	numbered bool
	// isDuplicate reports a unique-constraint violation
	isDuplicate func(error) bool
}

// sqlStore implements Store on top of database/sql
type sqlStore struct {
	db      *sql.DB
	dialect dialect
	logger  *slog.Logger
}

// rebind rewrites ? placeholders for dialects that number them
func (s *sqlStore) rebind(query string) string {
	if !s.dialect.numbered {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Ping reports whether the database is reachable
func (s *sqlStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection
func (s *sqlStore) Close() error {
	s.logger.Info("closing store", "dialect", s.dialect.name)
	return s.db.Close()
}

// CreateRoom inserts a room metadata row.
// Returns ErrDuplicateRoom if the room ID is already taken.
func (s *sqlStore) CreateRoom(ctx context.Context, room *Room) error {
	now := time.Now().UTC()
	if room.CreatedAt.IsZero() {
		room.CreatedAt = now
	}
	if room.UpdatedAt.IsZero() {
		room.UpdatedAt = room.CreatedAt
	}
	if room.Status == "" {
		room.Status = RoomStatusPending
	}

	query := s.rebind(`
		INSERT INTO rooms (room_id, user_id, task_prompt, folder_path, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	_, err := s.db.ExecContext(ctx, query,
		room.ID,
		room.UserID,
		room.TaskPrompt,
		room.FolderPath,
		string(room.Status),
		room.CreatedAt.UTC().Format(time.RFC3339Nano),
		room.UpdatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		if s.dialect.isDuplicate(err) {
			return ErrDuplicateRoom
		}
		return fmt.Errorf("inserting room: %w", err)
	}

	s.logger.Debug("created room", "room_id", room.ID, "user_id", room.UserID)
	return nil
}

// GetRoom retrieves a room owned by userID.
// Returns ErrNotFound if the room doesn't exist or belongs to someone else.
func (s *sqlStore) GetRoom(ctx context.Context, roomID, userID string) (*Room, error) {
	query := s.rebind(`
		SELECT room_id, user_id, task_prompt, folder_path, status, created_at, updated_at
		FROM rooms
		WHERE room_id = ? AND user_id = ?
	`)

	var room Room
	var folderPath sql.NullString
	var status, createdAtStr, updatedAtStr string
	err := s.db.QueryRowContext(ctx, query, roomID, userID).Scan(
		&room.ID,
		&room.UserID,
		&room.TaskPrompt,
		&folderPath,
		&status,
		&createdAtStr,
		&updatedAtStr,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying room: %w", err)
	}

	room.FolderPath = folderPath.String
	room.Status = RoomStatus(status)
	if room.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAtStr); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if room.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAtStr); err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}
	return &room, nil
}

// UpdateRoomStatus sets a room's lifecycle status.
// Returns ErrNotFound if the room doesn't exist.
func (s *sqlStore) UpdateRoomStatus(ctx context.Context, roomID string, status RoomStatus) error {
	query := s.rebind(`UPDATE rooms SET status = ?, updated_at = ? WHERE room_id = ?`)
	res, err := s.db.ExecContext(ctx, query,
		string(status),
		time.Now().UTC().Format(time.RFC3339Nano),
		roomID,
	)
	if err != nil {
		return fmt.Errorf("updating room status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking updated rows: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// AppendMessage persists a transcript message and returns the stored copy
// with its ID, timestamp, and sequence number filled in.
func (s *sqlStore) AppendMessage(ctx context.Context, msg *Message) (*Message, error) {
	m, err := prepareMessage(msg)
	if err != nil {
		return nil, err
	}

	var toolCalls *string
	if len(m.ToolCalls) > 0 {
		tc := string(m.ToolCalls)
		toolCalls = &tc
	}

	query := s.rebind(`
		INSERT INTO ai_messages (
			message_id, room_id, agent_name, content, model_used, tool_calls,
			token_count, custom_type, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING seq
	`)
	err = s.db.QueryRowContext(ctx, query,
		m.ID,
		m.RoomID,
		m.AgentName,
		m.Content,
		m.ModelUsed,
		toolCalls,
		m.TokenCount,
		m.CustomType,
		m.CreatedAt.Format(time.RFC3339Nano),
	).Scan(&m.Seq)
	if err != nil {
		return nil, fmt.Errorf("inserting message: %w", err)
	}

	s.logger.Debug("saved message",
		"message_id", m.ID,
		"room_id", m.RoomID,
		"agent", m.AgentName,
		"seq", m.Seq)
	return m, nil
}

// ListMessages returns a room's transcript in append order
func (s *sqlStore) ListMessages(ctx context.Context, roomID string, limit int) ([]*Message, error) {
	query := `
		SELECT seq, message_id, room_id, agent_name, content, model_used, tool_calls,
		       token_count, custom_type, created_at
		FROM ai_messages
		WHERE room_id = ?
		ORDER BY seq ASC
	`
	args := []any{roomID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("querying messages: %w", err)
	}
	defer rows.Close()

	var messages []*Message
	for rows.Next() {
		var m Message
		var modelUsed, toolCalls, customType sql.NullString
		var tokenCount sql.NullInt64
		var createdAtStr string
		if err := rows.Scan(
			&m.Seq,
			&m.ID,
			&m.RoomID,
			&m.AgentName,
			&m.Content,
			&modelUsed,
			&toolCalls,
			&tokenCount,
			&customType,
			&createdAtStr,
		); err != nil {
			return nil, fmt.Errorf("scanning message: %w", err)
		}
		if modelUsed.Valid {
			m.ModelUsed = &modelUsed.String
		}
		if toolCalls.Valid {
			m.ToolCalls = []byte(toolCalls.String)
		}
		if tokenCount.Valid {
			n := int(tokenCount.Int64)
			m.TokenCount = &n
		}
		if customType.Valid {
			m.CustomType = &customType.String
		}
		if m.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAtStr); err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		messages = append(messages, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating messages: %w", err)
	}
	return messages, nil
}
