// ABOUTME: Tests for the WebSocket room feed
// ABOUTME: Dials real connections against an httptest server and reads broadcast frames

package gateway

import (
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/hercules-gateway/internal/auth"
	"github.com/2389/hercules-gateway/internal/config"
)

func (tg *testGateway) wsURL(roomID string) string {
	return "ws" + strings.TrimPrefix(tg.srv.URL, "http") + "/ws/" + roomID
}

func (tg *testGateway) dial(t *testing.T, roomID string) *websocket.Conn {
	t.Helper()
	conn, resp, err := websocket.DefaultDialer.Dial(tg.wsURL(roomID), nil)
	require.NoError(t, err)
	resp.Body.Close()
	t.Cleanup(func() { conn.Close() })

	require.Eventually(t, func() bool {
		return tg.gw.registry.Count(roomID) > 0
	}, 2*time.Second, 5*time.Millisecond)
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var frame map[string]any
	require.NoError(t, conn.ReadJSON(&frame))
	return frame
}

func TestWebSocket_ReceivesSessionInOrder(t *testing.T) {
	tg := newTestGateway(t, greeter(), nil)
	rm, err := tg.gw.rooms.Create(context.Background(), auth.AnonymousUserID, "Say hi")
	require.NoError(t, err)

	conn := tg.dial(t, rm.ID)

	res, err := tg.gw.runSession(context.Background(), rm.ID, "Say hi")
	require.NoError(t, err)
	assert.Equal(t, "terminated", string(res.State))

	prompt := readFrame(t, conn)
	assert.Equal(t, "UserProxy", prompt["agent"])
	assert.Equal(t, "Say hi", prompt["message"])
	assert.NotEmpty(t, prompt["timestamp"])

	reply := readFrame(t, conn)
	assert.Equal(t, "Assistant", reply["agent"])
	assert.Equal(t, "Hello", reply["message"])

	done := readFrame(t, conn)
	assert.Equal(t, "TERMINATE", done["event"])
	assert.Equal(t, "Assistant has finished.", done["message"])
}

func TestWebSocket_DisconnectLeavesRegistry(t *testing.T) {
	tg := newTestGateway(t, greeter(), nil)
	rm, err := tg.gw.rooms.Create(context.Background(), auth.AnonymousUserID, "Say hi")
	require.NoError(t, err)

	conn := tg.dial(t, rm.ID)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("hello from the client")))
	require.NoError(t, conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))

	assert.Eventually(t, func() bool {
		return tg.gw.registry.Count(rm.ID) == 0
	}, 2*time.Second, 5*time.Millisecond)
}

func TestWebSocket_ShutdownClosesConnections(t *testing.T) {
	tg := newTestGateway(t, greeter(), nil)
	rm, err := tg.gw.rooms.Create(context.Background(), auth.AnonymousUserID, "Say hi")
	require.NoError(t, err)

	conn := tg.dial(t, rm.ID)
	tg.gw.closeWebSockets()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, _, err = conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "got %v", err)

	assert.Eventually(t, func() bool {
		return tg.gw.registry.Count(rm.ID) == 0
	}, 2*time.Second, 5*time.Millisecond)
}

func TestWebSocket_UnknownRoom(t *testing.T) {
	tg := newTestGateway(t, greeter(), nil)

	_, resp, err := websocket.DefaultDialer.Dial(tg.wsURL("no-such-room"), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestWebSocket_RoomFull(t *testing.T) {
	tg := newTestGateway(t, greeter(), func(cfg *config.Config) {
		cfg.WebSocket.MaxConnectionsPerRoom = 1
	})
	rm, err := tg.gw.rooms.Create(context.Background(), auth.AnonymousUserID, "Say hi")
	require.NoError(t, err)

	tg.dial(t, rm.ID)

	_, resp, err := websocket.DefaultDialer.Dial(tg.wsURL(rm.ID), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestWebSocket_RequiresToken(t *testing.T) {
	tg := newTestGateway(t, greeter(), withAuth)
	rm, err := tg.gw.rooms.Create(context.Background(), "ada", "Say hi")
	require.NoError(t, err)

	_, resp, err := websocket.DefaultDialer.Dial(tg.wsURL(rm.ID), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	conn, resp, err := websocket.DefaultDialer.Dial(tg.wsURL(rm.ID)+"?access_token="+userToken(t, "ada"), nil)
	require.NoError(t, err)
	resp.Body.Close()
	conn.Close()
}

func TestNewUpgrader_CheckOrigin(t *testing.T) {
	tests := []struct {
		name    string
		allowed []string
		host    string
		origin  string
		want    bool
	}{
		{"no origin", nil, "gw.local", "", true},
		{"same host", nil, "gw.local:8000", "http://gw.local:8000", true},
		{"foreign host", nil, "gw.local", "https://evil.example", false},
		{"listed", []string{"https://app.example"}, "gw.local", "https://app.example", true},
		{"wildcard", []string{"*"}, "gw.local", "https://anything.example", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u := newUpgrader(tt.allowed)
			r, err := http.NewRequest(http.MethodGet, "http://"+tt.host+"/ws/x", nil)
			require.NoError(t, err)
			if tt.origin != "" {
				r.Header.Set("Origin", tt.origin)
			}
			assert.Equal(t, tt.want, u.CheckOrigin(r))
		})
	}
}
