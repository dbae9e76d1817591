package gateway

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campus-social/realtime-gateway/internal/hub"
	"github.com/campus-social/realtime-gateway/internal/model"
	"github.com/campus-social/realtime-gateway/pkg/logger"
)

func newWSServer(t *testing.T, f *fixture, handshake time.Duration, origins ...string) string {
	t.Helper()
	srv := httptest.NewServer(NewWebSocketHandler(f.gw, origins, handshake, logger.NewNop()))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url string, header http.Header) *websocket.Conn {
	t.Helper()
	ws, _, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	t.Cleanup(func() { ws.Close() })
	return ws
}

func readEvent(t *testing.T, ws *websocket.Conn) model.Envelope {
	t.Helper()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	var env model.Envelope
	require.NoError(t, ws.ReadJSON(&env))
	return env
}

func readUntil(t *testing.T, ws *websocket.Conn, event string) model.Envelope {
	t.Helper()
	for {
		env := readEvent(t, ws)
		if env.Event == event {
			return env
		}
	}
}

func TestWebSocket_QueryTokenHandshake(t *testing.T) {
	f := newFixture(t, Options{})
	url := newWSServer(t, f, time.Second)

	ws := dial(t, url+"?token="+f.token(t, "alice"), nil)

	env := readEvent(t, ws)
	require.Equal(t, model.EventConnected, env.Event)
	var connected model.ConnectedEvent
	require.NoError(t, json.Unmarshal(env.Data, &connected))
	assert.Equal(t, "alice", connected.UserID)
	assert.NotEmpty(t, connected.ConnectionID)
	assert.True(t, f.gw.IsOnline("alice"))
}

func TestWebSocket_BearerHeaderHandshake(t *testing.T) {
	f := newFixture(t, Options{})
	url := newWSServer(t, f, time.Second)

	header := http.Header{}
	header.Set("Authorization", "Bearer "+f.token(t, "bob"))
	ws := dial(t, url, header)

	assert.Equal(t, model.EventConnected, readEvent(t, ws).Event)
	assert.True(t, f.gw.IsOnline("bob"))
}

func TestWebSocket_AuthenticateFrame(t *testing.T) {
	f := newFixture(t, Options{})
	url := newWSServer(t, f, time.Second)

	ws := dial(t, url, nil)
	require.NoError(t, ws.WriteJSON(map[string]any{
		"event": model.EventAuthenticate,
		"data":  model.AuthenticatePayload{Token: f.token(t, "carol")},
	}))

	assert.Equal(t, model.EventConnected, readEvent(t, ws).Event)
	assert.True(t, f.gw.IsOnline("carol"))
}

func TestWebSocket_InvalidTokenIsClosed(t *testing.T) {
	f := newFixture(t, Options{})
	url := newWSServer(t, f, time.Second)

	ws := dial(t, url+"?token=forged", nil)

	env := readEvent(t, ws)
	assert.Equal(t, model.EventError, env.Event)

	_, _, err := ws.ReadMessage()
	require.Error(t, err)
	assert.True(t, websocket.IsCloseError(err, websocket.ClosePolicyViolation), "got %v", err)
	assert.Zero(t, f.hub.ConnectionCount())
}

func TestWebSocket_HandshakeTimeout(t *testing.T) {
	f := newFixture(t, Options{})
	url := newWSServer(t, f, 100*time.Millisecond)

	ws := dial(t, url, nil)

	start := time.Now()
	env := readEvent(t, ws)
	assert.Equal(t, model.EventError, env.Event)
	assert.Less(t, time.Since(start), 2*time.Second)

	_, _, err := ws.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.ClosePolicyViolation), "got %v", err)
	assert.Zero(t, f.hub.ConnectionCount())
}

func TestWebSocket_RejectsForeignOrigin(t *testing.T) {
	f := newFixture(t, Options{})
	url := newWSServer(t, f, time.Second, "https://campus.example.edu")

	header := http.Header{}
	header.Set("Origin", "https://evil.example.com")
	_, resp, err := websocket.DefaultDialer.Dial(url+"?token="+f.token(t, "alice"), header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	header.Set("Origin", "https://campus.example.edu")
	ws := dial(t, url+"?token="+f.token(t, "alice"), header)
	assert.Equal(t, model.EventConnected, readEvent(t, ws).Event)
}

func TestWebSocket_RoomFanOutAndPresence(t *testing.T) {
	f := newFixture(t, Options{})
	url := newWSServer(t, f, time.Second)

	alice := dial(t, url+"?token="+f.token(t, "alice"), nil)
	readUntil(t, alice, model.EventConnected)

	bob := dial(t, url+"?token="+f.token(t, "bob"), nil)
	readUntil(t, bob, model.EventConnected)

	online := readUntil(t, alice, model.EventUserOnline)
	var presence model.PresenceEvent
	require.NoError(t, json.Unmarshal(online.Data, &presence))
	assert.Equal(t, "bob", presence.UserID)

	for _, ws := range []*websocket.Conn{alice, bob} {
		require.NoError(t, ws.WriteJSON(map[string]any{"event": model.EventJoinCommunity, "data": "chess"}))
	}
	require.Eventually(t, func() bool {
		return f.hub.RoomSize(hub.CommunityRoom("chess")) == 2
	}, 2*time.Second, 10*time.Millisecond)

	f.gw.Publish(hub.CommunityRoom("chess"), model.EventNewMessage, model.NewMessageEvent{
		Message:     map[string]string{"content": "gg"},
		CommunityID: "chess",
	})
	for _, ws := range []*websocket.Conn{alice, bob} {
		env := readUntil(t, ws, model.EventNewMessage)
		var msg model.NewMessageEvent
		require.NoError(t, json.Unmarshal(env.Data, &msg))
		assert.Equal(t, "chess", msg.CommunityID)
	}

	require.NoError(t, bob.Close())
	offline := readUntil(t, alice, model.EventUserOffline)
	require.NoError(t, json.Unmarshal(offline.Data, &presence))
	assert.Equal(t, "bob", presence.UserID)
	assert.False(t, f.gw.IsOnline("bob"))
}

func TestWebSocket_ProtocolErrorKeepsSocketOpen(t *testing.T) {
	f := newFixture(t, Options{})
	url := newWSServer(t, f, time.Second)

	ws := dial(t, url+"?token="+f.token(t, "alice"), nil)
	readUntil(t, ws, model.EventConnected)

	require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte("not json")))
	assert.Equal(t, model.EventError, readEvent(t, ws).Event)

	require.NoError(t, ws.WriteJSON(map[string]any{"event": model.EventJoinCommunity, "data": "chess"}))
	require.Eventually(t, func() bool {
		return f.hub.RoomSize(hub.CommunityRoom("chess")) == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestOriginChecker(t *testing.T) {
	check := originChecker([]string{"https://campus.example.edu/"})

	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	assert.True(t, check(req), "non-browser clients send no origin")

	req.Header.Set("Origin", "https://CAMPUS.example.edu")
	assert.True(t, check(req))

	req.Header.Set("Origin", "http://campus.example.edu")
	assert.False(t, check(req))

	assert.True(t, originChecker(nil)(req))
}
