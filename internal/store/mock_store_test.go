// ABOUTME: Tests for the in-memory MockStore
// ABOUTME: Covers ordering, injected append failures and room ownership

package store

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockStore_AppendAndList(t *testing.T) {
	m := NewMockStore()
	ctx := context.Background()

	for _, content := range []string{"one", "two", "three"} {
		_, err := m.AppendMessage(ctx, &Message{RoomID: "r", AgentName: "a", Content: content})
		require.NoError(t, err)
	}

	msgs, err := m.ListMessages(ctx, "r", 0)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, "one", msgs[0].Content)
	assert.Equal(t, int64(3), msgs[2].Seq)

	limited, err := m.ListMessages(ctx, "r", 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestMockStore_AppendErr(t *testing.T) {
	m := NewMockStore()
	ctx := context.Background()
	boom := errors.New("boom")

	calls := 0
	m.AppendErr = func(*Message) error {
		calls++
		if calls == 2 {
			return boom
		}
		return nil
	}

	_, err := m.AppendMessage(ctx, &Message{RoomID: "r", AgentName: "a", Content: "1"})
	require.NoError(t, err)
	_, err = m.AppendMessage(ctx, &Message{RoomID: "r", AgentName: "a", Content: "2"})
	assert.ErrorIs(t, err, boom)
	_, err = m.AppendMessage(ctx, &Message{RoomID: "r", AgentName: "a", Content: "3"})
	require.NoError(t, err)

	msgs, err := m.ListMessages(ctx, "r", 0)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "1", msgs[0].Content)
	assert.Equal(t, "3", msgs[1].Content)
}

func TestMockStore_Rooms(t *testing.T) {
	m := NewMockStore()
	ctx := context.Background()

	require.NoError(t, m.CreateRoom(ctx, &Room{ID: "r", UserID: "u", TaskPrompt: "p"}))
	assert.ErrorIs(t, m.CreateRoom(ctx, &Room{ID: "r", UserID: "u"}), ErrDuplicateRoom)

	got, err := m.GetRoom(ctx, "r", "u")
	require.NoError(t, err)
	assert.Equal(t, RoomStatusPending, got.Status)

	_, err = m.GetRoom(ctx, "r", "someone-else")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, m.UpdateRoomStatus(ctx, "r", RoomStatusRunning))
	got, err = m.GetRoom(ctx, "r", "u")
	require.NoError(t, err)
	assert.Equal(t, RoomStatusRunning, got.Status)

	assert.ErrorIs(t, m.UpdateRoomStatus(ctx, "nope", RoomStatusFailed), ErrNotFound)
}
