// ABOUTME: WebSocket endpoint that attaches watchers to a room's broadcast set
// ABOUTME: Adapts gorilla/websocket connections to hub.Conn with serialized writes

package gateway

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/2389/hercules-gateway/internal/auth"
	"github.com/2389/hercules-gateway/internal/store"
)

const (
	// writeWait bounds a send when the caller's context has no deadline.
	writeWait = 10 * time.Second
	// maxClientMessage caps inbound frames; clients only send chatter.
	maxClientMessage = 64 * 1024
)

// wsConn is a hub.Conn over a gorilla WebSocket. gorilla allows one
// concurrent writer, so Send is serialized.
type wsConn struct {
	id   string
	conn *websocket.Conn
	mu   sync.Mutex
}

func newWSConn(conn *websocket.Conn) *wsConn {
	return &wsConn{id: uuid.New().String(), conn: conn}
}

func (c *wsConn) ID() string { return c.id }

// Send writes one text frame, honoring ctx's deadline.
func (c *wsConn) Send(ctx context.Context, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(writeWait)
	}
	if err := c.conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// closeGoingAway sends a going-away close frame and closes the socket,
// which ends the handler's read loop.
func (c *wsConn) closeGoingAway(reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, reason)
	_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
	_ = c.conn.Close()
}

// newUpgrader accepts same-host origins, plus any listed in allowed.
// A "*" entry accepts every origin.
func newUpgrader(allowed []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			for _, a := range allowed {
				if a == "*" || strings.EqualFold(a, origin) {
					return true
				}
			}
			u, err := url.Parse(origin)
			if err != nil {
				return false
			}
			return strings.EqualFold(u.Host, r.Host)
		},
	}
}

// handleWebSocket handles GET /ws/{room_id}. The caller must own the room.
// Inbound text is only logged; a read error or close frame detaches the
// connection.
func (g *Gateway) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	roomID := r.PathValue("room_id")
	caller := auth.MustFromContext(r.Context())

	if _, err := g.store.GetRoom(r.Context(), roomID, caller.UserID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			g.sendJSONError(w, http.StatusNotFound, "room not found or access denied")
			return
		}
		g.logger.Error("failed to get room", "room_id", roomID, "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	// Checked before the upgrade so Connect itself never has to refuse.
	if limit := g.config.WebSocket.MaxConnectionsPerRoom; limit > 0 && g.registry.Count(roomID) >= limit {
		g.sendJSONError(w, http.StatusServiceUnavailable, "room is full")
		return
	}

	raw, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error
		g.logger.Debug("websocket upgrade failed", "room_id", roomID, "error", err)
		return
	}

	conn := newWSConn(raw)
	logger := g.logger.With("room_id", roomID, "conn_id", conn.ID())
	g.trackWebSocket(conn, true)
	g.registry.Connect(conn, roomID)
	g.observeConnections()
	logger.Info("websocket connected", "user_id", caller.UserID)

	defer func() {
		g.trackWebSocket(conn, false)
		g.registry.Disconnect(conn, roomID)
		g.observeConnections()
		_ = raw.Close()
		logger.Info("websocket disconnected")
	}()

	raw.SetReadLimit(maxClientMessage)
	for {
		msgType, data, err := raw.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Debug("websocket read failed", "error", err)
			}
			return
		}
		if msgType == websocket.TextMessage {
			logger.Info("client message", "text", string(data))
		}
	}
}

func (g *Gateway) trackWebSocket(conn *wsConn, live bool) {
	g.wsMu.Lock()
	defer g.wsMu.Unlock()
	if live {
		g.wsConns[conn] = struct{}{}
	} else {
		delete(g.wsConns, conn)
	}
}

// closeWebSockets closes every tracked connection. Each handler then
// detaches its connection from the registry.
func (g *Gateway) closeWebSockets() {
	g.wsMu.Lock()
	conns := make([]*wsConn, 0, len(g.wsConns))
	for c := range g.wsConns {
		conns = append(conns, c)
	}
	g.wsMu.Unlock()

	if len(conns) > 0 {
		g.logger.Info("closing websocket connections", "count", len(conns))
	}
	for _, c := range conns {
		c.closeGoingAway("server shutting down")
	}
}

func (g *Gateway) observeConnections() {
	if g.metrics != nil {
		g.metrics.ObserveLiveConnections(g.registry.RoomCount(), g.registry.ConnCount())
	}
}
