// ABOUTME: Tests for room creation and folder bookkeeping
// ABOUTME: Checks id derivation, prompt validation and store failures

package room

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/hercules-gateway/internal/store"
)

func TestGenerateID(t *testing.T) {
	ts := time.Unix(1700000000, 500000000)

	sum := sha256.Sum256([]byte("user-1" + "1700000000.5"))
	assert.Equal(t, hex.EncodeToString(sum[:]), GenerateID("user-1", ts))

	assert.Len(t, GenerateID("user-1", ts), 64)
	assert.NotEqual(t, GenerateID("user-1", ts), GenerateID("user-2", ts))
	assert.NotEqual(t, GenerateID("user-1", ts), GenerateID("user-1", ts.Add(time.Millisecond)))
}

func TestManager_Create(t *testing.T) {
	ms := store.NewMockStore()
	base := t.TempDir()
	m := NewManager(ms, base, nil)
	m.now = func() time.Time { return time.Unix(1700000000, 0) }

	room, err := m.Create(context.Background(), "user-1", "Summarize X")
	require.NoError(t, err)

	assert.Equal(t, GenerateID("user-1", time.Unix(1700000000, 0)), room.ID)
	assert.Equal(t, store.RoomStatusPending, room.Status)
	assert.True(t, filepath.IsAbs(room.FolderPath))
	assert.Equal(t, filepath.Join(base, room.ID), room.FolderPath)

	prompt, err := os.ReadFile(filepath.Join(room.FolderPath, PromptFileName))
	require.NoError(t, err)
	assert.Equal(t, "Summarize X", string(prompt))

	stored, err := ms.GetRoom(context.Background(), room.ID, "user-1")
	require.NoError(t, err)
	assert.Equal(t, "Summarize X", stored.TaskPrompt)
	assert.Equal(t, room.FolderPath, stored.FolderPath)
}

func TestManager_CreateRequiresPrompt(t *testing.T) {
	m := NewManager(store.NewMockStore(), t.TempDir(), nil)

	_, err := m.Create(context.Background(), "user-1", "")
	assert.ErrorIs(t, err, ErrEmptyPrompt)
}

func TestManager_CreateStoreFailure(t *testing.T) {
	ms := store.NewMockStore()
	m := NewManager(ms, t.TempDir(), nil)
	fixed := time.Unix(1700000000, 0)
	m.now = func() time.Time { return fixed }

	_, err := m.Create(context.Background(), "user-1", "p")
	require.NoError(t, err)

	// Same user and instant collide on the id
	_, err = m.Create(context.Background(), "user-1", "p")
	assert.True(t, errors.Is(err, store.ErrDuplicateRoom))
}
