// ABOUTME: Best-effort fan-out of payloads to every connection in a room
// ABOUTME: Connections whose send fails are pruned from the registry

package hub

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

const defaultSendTimeout = 10 * time.Second

// Recorder receives fan-out counters. *metrics.Metrics satisfies it.
type Recorder interface {
	ObserveBroadcast(kind string, delivered, failed int)
	ObserveLiveConnections(rooms, conns int)
}

// BroadcasterOptions configures a Broadcaster.
type BroadcasterOptions struct {
	// SendTimeout bounds a single send attempt. Defaults to 10s.
	SendTimeout time.Duration
	Logger      *slog.Logger
	Recorder    Recorder
	// Now overrides the clock used for server timestamps.
	Now func() time.Time
}

// Broadcaster delivers payloads to the connections tracked by a Registry.
type Broadcaster struct {
	registry    *Registry
	sendTimeout time.Duration
	recorder    Recorder
	now         func() time.Time
	logger      *slog.Logger
}

// NewBroadcaster creates a broadcaster over registry.
func NewBroadcaster(registry *Registry, opts BroadcasterOptions) *Broadcaster {
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = defaultSendTimeout
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Broadcaster{
		registry:    registry,
		sendTimeout: opts.SendTimeout,
		recorder:    opts.Recorder,
		now:         opts.Now,
		logger:      opts.Logger.With("component", "broadcaster"),
	}
}

// Registry returns the registry this broadcaster routes through.
func (b *Broadcaster) Registry() *Registry {
	return b.registry
}

// SendToOne serializes payload and makes a single bounded send attempt.
// It reports failure but leaves the registry untouched.
func (b *Broadcaster) SendToOne(ctx context.Context, conn Conn, payload Payload) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding %s payload: %w", payload.Kind(), err)
	}
	return b.send(ctx, conn, data)
}

// send bounds each attempt by sendTimeout alone. A cancelled caller context
// must not read as a transport failure, or healthy watchers would be pruned.
func (b *Broadcaster) send(ctx context.Context, conn Conn, data []byte) error {
	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), b.sendTimeout)
	defer cancel()
	return conn.Send(sendCtx, data)
}

// BroadcastToRoom stamps payload with a server timestamp if it has none and
// sends it to every connection in the room at call time. Sends run
// concurrently and all finish before it returns, so per-connection order
// follows call order. Failed connections are disconnected afterwards.
// Returns the number of successful deliveries; an empty room is a no-op.
func (b *Broadcaster) BroadcastToRoom(ctx context.Context, roomID string, payload Payload) int {
	payload = payload.WithTimestamp(b.now().UTC().Format(time.RFC3339Nano))

	conns := b.registry.Connections(roomID)
	if len(conns) == 0 {
		b.logger.Debug("no live connections, nothing to broadcast",
			"room_id", roomID,
			"kind", payload.Kind())
		b.record(payload.Kind(), 0, 0)
		return 0
	}

	data, err := json.Marshal(payload)
	if err != nil {
		b.logger.Error("failed to encode broadcast payload",
			"room_id", roomID,
			"kind", payload.Kind(),
			"error", err)
		return 0
	}

	failed := make([]bool, len(conns))
	var wg sync.WaitGroup
	for i, conn := range conns {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := b.send(ctx, conn, data); err != nil {
				b.logger.Warn("broadcast send failed, marking for disconnect",
					"room_id", roomID,
					"conn_id", conn.ID(),
					"error", err)
				failed[i] = true
			}
		}()
	}
	wg.Wait()

	delivered := 0
	pruned := 0
	for i, conn := range conns {
		if failed[i] {
			b.registry.Disconnect(conn, roomID)
			pruned++
			continue
		}
		delivered++
	}

	b.record(payload.Kind(), delivered, pruned)
	return delivered
}

func (b *Broadcaster) record(kind string, delivered, failed int) {
	if b.recorder == nil {
		return
	}
	b.recorder.ObserveBroadcast(kind, delivered, failed)
	b.recorder.ObserveLiveConnections(b.registry.RoomCount(), b.registry.ConnCount())
}
