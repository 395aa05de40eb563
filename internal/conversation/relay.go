// ABOUTME: ConversationRelay drives one agent session for a room
// ABOUTME: Record first, then fan out; every session ends in exactly one log record

package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/2389/hercules-gateway/internal/hub"
	"github.com/2389/hercules-gateway/internal/runtime"
	"github.com/2389/hercules-gateway/internal/sessionlog"
	"github.com/2389/hercules-gateway/internal/store"
)

const defaultPersistTimeout = 5 * time.Second

// State is where a session is in its lifecycle.
type State string

const (
	StateInit       State = "init"
	StateRunning    State = "running"
	StateTerminated State = "terminated"
	StateFailed     State = "failed"
)

// Message types carried by System notices
const (
	MessageTypePersistenceError = "persistence_error"
	MessageTypeRuntimeError     = "runtime_error"
	MessageTypeConfigWarning    = store.CustomTypeLLMConfigWarning
)

// Broadcaster fans payloads out to a room's live connections.
type Broadcaster interface {
	BroadcastToRoom(ctx context.Context, roomID string, payload hub.Payload) int
}

// SessionLog records one completion entry per finished session.
type SessionLog interface {
	Append(roomID string, rec sessionlog.Record) error
}

// TokenCounter counts tokens for persisted messages. *llm.TokenCounter satisfies it.
type TokenCounter interface {
	Count(text string) (int, bool)
}

// Recorder receives relay counters. *metrics.Metrics satisfies it.
type Recorder interface {
	ObservePersist(ok bool)
	ObserveSession(state string, d time.Duration)
}

// RelayConfig wires a Relay. Runtime, Broadcaster and Store are required.
type RelayConfig struct {
	Runtime     runtime.Runtime
	Broadcaster Broadcaster
	Store       store.TranscriptStore
	// Rooms, when set, tracks room status through the session.
	Rooms      store.RoomStore
	SessionLog SessionLog
	Tokens     TokenCounter
	Metrics    Recorder
	Logger     *slog.Logger

	MaxTurns       int
	PersistTimeout time.Duration
	// ProxyName is the agent name the initial prompt is attributed to.
	ProxyName string
}

// Relay sits between the agent runtime and the outside world.
type Relay struct {
	runtime        runtime.Runtime
	broadcaster    Broadcaster
	store          store.TranscriptStore
	rooms          store.RoomStore
	sessionLog     SessionLog
	tokens         TokenCounter
	metrics        Recorder
	maxTurns       int
	persistTimeout time.Duration
	proxyName      string
	logger         *slog.Logger
}

// Result is the outcome of one session. Reply is the captured first
// substantive reply or nil; Err is set only in StateFailed.
type Result struct {
	RoomID string
	State  State
	Reply  *string
	Err    error
}

// NewRelay creates a relay from cfg.
func NewRelay(cfg RelayConfig) (*Relay, error) {
	switch {
	case cfg.Runtime == nil:
		return nil, errors.New("relay requires a runtime")
	case cfg.Broadcaster == nil:
		return nil, errors.New("relay requires a broadcaster")
	case cfg.Store == nil:
		return nil, errors.New("relay requires a transcript store")
	}
	if cfg.PersistTimeout <= 0 {
		cfg.PersistTimeout = defaultPersistTimeout
	}
	if cfg.MaxTurns <= 0 {
		cfg.MaxTurns = runtime.DefaultMaxTurns
	}
	if cfg.ProxyName == "" {
		cfg.ProxyName = runtime.DefaultProxyName
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Relay{
		runtime:        cfg.Runtime,
		broadcaster:    cfg.Broadcaster,
		store:          cfg.Store,
		rooms:          cfg.Rooms,
		sessionLog:     cfg.SessionLog,
		tokens:         cfg.Tokens,
		metrics:        cfg.Metrics,
		maxTurns:       cfg.MaxTurns,
		persistTimeout: cfg.PersistTimeout,
		proxyName:      cfg.ProxyName,
		logger:         cfg.Logger.With("component", "relay"),
	}, nil
}

// Run drives one session for roomID to a terminal state. It never returns
// a partial reply: the result carries either the captured string or nil.
func (r *Relay) Run(ctx context.Context, roomID, prompt string) Result {
	start := time.Now()
	logger := r.logger.With("room_id", roomID)

	// INIT
	r.setRoomStatus(ctx, roomID, store.RoomStatusRunning)

	if w, ok := r.runtime.(runtime.ConfigWarner); ok {
		if warning := w.ConfigWarning(); warning != "" {
			logger.Warn("session starting with unusable model config", "warning", warning)
			r.broadcaster.BroadcastToRoom(ctx, roomID, hub.NewSystemError(warning, MessageTypeConfigWarning))
			r.persistSystem(ctx, roomID, warning, store.CustomTypeLLMConfigWarning)
		}
	}

	r.persistOrReport(ctx, &store.Message{
		RoomID:    roomID,
		AgentName: r.proxyName,
		Content:   prompt,
	})
	r.broadcaster.BroadcastToRoom(ctx, roomID, hub.AgentMessage{Agent: r.proxyName, Message: prompt})

	// RUNNING
	logger.Info("session running", "max_turns", r.maxTurns)
	ic := &interceptor{relay: r, roomID: roomID, logger: logger}
	res, err := r.runtime.Run(ctx, runtime.RunRequest{
		Prompt:        prompt,
		MaxTurns:      r.maxTurns,
		IsTermination: IsTerminationMessage,
	}, ic)

	if err != nil {
		return r.fail(ctx, roomID, prompt, err, start)
	}

	// TERMINATED
	var reply *string
	if res != nil {
		reply = FirstReply(res.History)
	}
	r.finish(ctx, roomID, prompt, StateTerminated, reply, start)
	logger.Info("session terminated",
		"messages", ic.processed,
		"reply_captured", reply != nil,
		"duration", time.Since(start))
	return Result{RoomID: roomID, State: StateTerminated, Reply: reply}
}

// fail moves the session to FAILED: notice, error record, log entry
func (r *Relay) fail(ctx context.Context, roomID, prompt string, runErr error, start time.Time) Result {
	notice := fmt.Sprintf("Agent runtime error: %v", runErr)
	r.logger.Error("session failed", "room_id", roomID, "error", runErr)

	// The run context may already be cancelled; the notice still goes out
	detached := context.WithoutCancel(ctx)
	r.broadcaster.BroadcastToRoom(detached, roomID, hub.NewSystemError(notice, MessageTypeRuntimeError))
	r.persistSystem(detached, roomID, notice, store.CustomTypeRuntimeError)

	r.finish(detached, roomID, prompt, StateFailed, nil, start)
	return Result{RoomID: roomID, State: StateFailed, Err: runErr}
}

// finish writes the session log record and the final room status
func (r *Relay) finish(ctx context.Context, roomID, prompt string, state State, reply *string, start time.Time) {
	event := sessionlog.EventCompleted
	status := store.RoomStatusCompleted
	if state == StateFailed {
		event = sessionlog.EventFailed
		status = store.RoomStatusFailed
	}

	if r.sessionLog != nil {
		err := r.sessionLog.Append(roomID, sessionlog.Record{
			Timestamp: time.Now(),
			Event:     event,
			Prompt:    prompt,
			Reply:     reply,
		})
		if err != nil {
			r.logger.Error("failed to write session log", "room_id", roomID, "error", err)
		}
	}

	r.setRoomStatus(context.WithoutCancel(ctx), roomID, status)

	if r.metrics != nil {
		r.metrics.ObserveSession(string(state), time.Since(start))
	}
}

// persistOrReport appends msg; on failure it tells the room and carries on
func (r *Relay) persistOrReport(ctx context.Context, msg *store.Message) {
	if err := r.saveMessage(ctx, msg); err != nil {
		notice := fmt.Sprintf("Failed to store message from %s to database.", msg.AgentName)
		r.broadcaster.BroadcastToRoom(ctx, msg.RoomID, hub.NewSystemError(notice, MessageTypePersistenceError))
	}
}

// persistSystem stores a tagged System record; failures are only logged
func (r *Relay) persistSystem(ctx context.Context, roomID, content, customType string) {
	_ = r.saveMessage(ctx, &store.Message{
		RoomID:     roomID,
		AgentName:  hub.SystemAgent,
		Content:    content,
		CustomType: &customType,
	})
}

// saveMessage appends with a separate timeout context so persistence
// completes even if the session context is cancelled.
func (r *Relay) saveMessage(ctx context.Context, msg *store.Message) error {
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.persistTimeout)
	defer cancel()

	if msg.TokenCount == nil && r.tokens != nil {
		if n, ok := r.tokens.Count(msg.Content); ok {
			msg.TokenCount = &n
		}
	}

	stored, err := r.store.AppendMessage(saveCtx, msg)
	if r.metrics != nil {
		r.metrics.ObservePersist(err == nil)
	}
	if err != nil {
		r.logger.Error("failed to save message",
			"error", err,
			"room_id", msg.RoomID,
			"agent", msg.AgentName)
		return err
	}

	r.logger.Debug("message saved",
		"message_id", stored.ID,
		"room_id", stored.RoomID,
		"agent", stored.AgentName)
	return nil
}

func (r *Relay) setRoomStatus(ctx context.Context, roomID string, status store.RoomStatus) {
	if r.rooms == nil {
		return
	}
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.persistTimeout)
	defer cancel()

	if err := r.rooms.UpdateRoomStatus(saveCtx, roomID, status); err != nil && !errors.Is(err, store.ErrNotFound) {
		r.logger.Warn("failed to update room status",
			"room_id", roomID,
			"status", status,
			"error", err)
	}
}
