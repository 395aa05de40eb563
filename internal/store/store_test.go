// ABOUTME: Tests for message validation and defaults shared by every backend
// ABOUTME: Also exercises Open driver selection against SQLite

package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestStore creates a temporary SQLite store for testing.
func setupTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	store, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)

	t.Cleanup(func() {
		store.Close()
	})

	return store
}

func TestMessage_Validate(t *testing.T) {
	var nilMsg *Message
	assert.ErrorIs(t, nilMsg.Validate(), ErrInvalidMessage)
	assert.ErrorIs(t, (&Message{AgentName: "a", Content: "c"}).Validate(), ErrInvalidMessage)
	assert.NoError(t, (&Message{RoomID: "r", AgentName: "a", Content: "c"}).Validate())
}

func TestPrepareMessage_FillsDefaults(t *testing.T) {
	in := &Message{RoomID: "r", AgentName: "a", Content: "c"}

	out, err := prepareMessage(in)
	require.NoError(t, err)

	assert.NotEmpty(t, out.ID)
	assert.False(t, out.CreatedAt.IsZero())
	assert.Equal(t, "UTC", out.CreatedAt.Location().String())
	assert.Empty(t, in.ID, "input must not be mutated")
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	t.Run("sqlite by default", func(t *testing.T) {
		s, err := Open(ctx, "", filepath.Join(t.TempDir(), "x.db"))
		require.NoError(t, err)
		defer s.Close()

		assert.NoError(t, s.Ping(ctx))
		_, ok := s.(*SQLiteStore)
		assert.True(t, ok)
	})

	t.Run("unknown driver", func(t *testing.T) {
		_, err := Open(ctx, "mysql", "whatever")
		assert.Error(t, err)
	})
}

func TestRebind(t *testing.T) {
	pg := &sqlStore{dialect: postgresDialect}
	lite := &sqlStore{dialect: sqliteDialect}

	q := "UPDATE rooms SET status = ?, updated_at = ? WHERE room_id = ?"
	assert.Equal(t, "UPDATE rooms SET status = $1, updated_at = $2 WHERE room_id = $3", pg.rebind(q))
	assert.Equal(t, q, lite.rebind(q))
}

func TestIsConstraintViolation(t *testing.T) {
	assert.False(t, isConstraintViolation(nil))
	assert.True(t, isConstraintViolation(errors.New("UNIQUE constraint failed: rooms.room_id")))
	assert.False(t, isConstraintViolation(errors.New("disk I/O error")))
}

func TestIsUniqueViolation(t *testing.T) {
	assert.False(t, isUniqueViolation(errors.New("UNIQUE constraint failed")))
}
