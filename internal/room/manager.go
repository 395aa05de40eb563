// ABOUTME: Task room creation: id generation, on-disk folder, metadata row
// ABOUTME: Each room gets <rooms_dir>/<room_id>/input_prompt.txt

package room

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/2389/hercules-gateway/internal/store"
)

// PromptFileName holds the original task prompt inside a room folder.
const PromptFileName = "input_prompt.txt"

// ErrEmptyPrompt is returned when a room is requested without a prompt.
var ErrEmptyPrompt = errors.New("prompt is required")

// Manager creates rooms on disk and in the room store.
type Manager struct {
	rooms   store.RoomStore
	baseDir string
	now     func() time.Time
	logger  *slog.Logger
}

// NewManager creates a Manager that keeps room folders under baseDir.
func NewManager(rooms store.RoomStore, baseDir string, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		rooms:   rooms,
		baseDir: baseDir,
		now:     time.Now,
		logger:  logger.With("component", "rooms"),
	}
}

// BaseDir returns the directory room folders live in.
func (m *Manager) BaseDir() string {
	return m.baseDir
}

// GenerateID derives a room id from the owner and creation time: the hex
// SHA-256 of userID followed by the unix time in seconds with its fraction.
func GenerateID(userID string, t time.Time) string {
	secs := float64(t.UnixNano()) / float64(time.Second)
	sum := sha256.Sum256([]byte(userID + strconv.FormatFloat(secs, 'f', -1, 64)))
	return hex.EncodeToString(sum[:])
}

// Create makes a pending room for userID with the given prompt.
func (m *Manager) Create(ctx context.Context, userID, prompt string) (*store.Room, error) {
	if prompt == "" {
		return nil, ErrEmptyPrompt
	}

	now := m.now().UTC()
	id := GenerateID(userID, now)

	dir, err := filepath.Abs(filepath.Join(m.baseDir, id))
	if err != nil {
		return nil, fmt.Errorf("resolving room directory: %w", err)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("could not create room directory: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, PromptFileName), []byte(prompt), 0644); err != nil {
		return nil, fmt.Errorf("could not write initial prompt to room: %w", err)
	}

	room := &store.Room{
		ID:         id,
		UserID:     userID,
		TaskPrompt: prompt,
		FolderPath: dir,
		Status:     store.RoomStatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := m.rooms.CreateRoom(ctx, room); err != nil {
		return nil, fmt.Errorf("storing room metadata: %w", err)
	}

	m.logger.Info("room created", "room_id", id, "user_id", userID, "folder", dir)
	return room, nil
}
