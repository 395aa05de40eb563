// ABOUTME: Per-room append-only completion log for conversation sessions
// ABOUTME: One JSON object per line in <base>/<room_id>/agent_log.json

package sessionlog

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// FileName is the log file inside each room directory.
const FileName = "agent_log.json"

// Event texts written for each terminal outcome
const (
	EventCompleted = "Agent chat session processing complete."
	EventFailed    = "Agent chat session failed."
)

// NoReplyPlaceholder replaces a missing captured reply.
const NoReplyPlaceholder = "No specific initial response captured / only TERMINATE."

// ErrInvalidRoomID is returned for room IDs that would escape the base directory.
var ErrInvalidRoomID = errors.New("invalid room id")

// Record is one completion entry.
type Record struct {
	Timestamp time.Time
	Event     string
	Prompt    string
	// Reply is the first substantive reply, nil when none was captured.
	Reply *string
}

// Logger appends Records under a base directory.
type Logger struct {
	baseDir string
	mu      sync.Mutex
}

// New creates a Logger rooted at baseDir.
func New(baseDir string) *Logger {
	return &Logger{baseDir: baseDir}
}

// Path returns the log file for a room.
func (l *Logger) Path(roomID string) string {
	return filepath.Join(l.baseDir, roomID, FileName)
}

// Append writes rec as one line to the room's log, creating the room
// directory if needed.
func (l *Logger) Append(roomID string, rec Record) error {
	if roomID == "" || roomID == "." || roomID == ".." || strings.ContainsAny(roomID, `/\`) {
		return fmt.Errorf("%w: %q", ErrInvalidRoomID, roomID)
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}
	reply := NoReplyPlaceholder
	if rec.Reply != nil {
		reply = *rec.Reply
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	dir := filepath.Join(l.baseDir, roomID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating room directory: %w", err)
	}

	f, err := os.OpenFile(filepath.Join(dir, FileName), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("opening session log: %w", err)
	}

	werr := writeRecord(f, rec, reply)
	if err := f.Close(); err != nil && werr == nil {
		werr = fmt.Errorf("closing session log: %w", err)
	}
	return werr
}

// writeRecord encodes one line. zerolog hands write failures to its global
// error handler, so the writer keeps the error for the caller instead.
func writeRecord(w io.Writer, rec Record, reply string) error {
	ew := &errWriter{w: w}
	zl := zerolog.New(ew)
	zl.Log().
		Str("timestamp", rec.Timestamp.UTC().Format(time.RFC3339Nano)).
		Str("event", rec.Event).
		Str("prompt", rec.Prompt).
		Str("captured_reply", reply).
		Msg("")
	if ew.err != nil {
		return fmt.Errorf("writing session log: %w", ew.err)
	}
	return nil
}

// errWriter remembers the first failed or short write.
type errWriter struct {
	w   io.Writer
	err error
}

func (e *errWriter) Write(p []byte) (int, error) {
	n, err := e.w.Write(p)
	if err == nil && n < len(p) {
		err = io.ErrShortWrite
	}
	if err != nil && e.err == nil {
		e.err = err
	}
	return n, err
}
