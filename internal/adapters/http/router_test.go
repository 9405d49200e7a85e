package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/dkeye/Chat/internal/app"
	"github.com/dkeye/Chat/internal/app/orch"
	"github.com/dkeye/Chat/internal/config"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	static := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(static, "index.html"), []byte("<html>chat</html>"), 0o600))
	return &config.Config{
		Mode:          "test",
		Port:          0,
		AllowedOrigin: "*",
		StaticPath:    static,
		ReadLimit:     1 << 20,
		PingPeriod:    54 * time.Second,
		PongWait:      60 * time.Second,
		WriteWait:     10 * time.Second,
		SendBuffer:    32,
		Secret:        "test-secret",
		RateLimit:     config.RateLimit{Requests: 100, Window: 15 * time.Minute},
	}
}

func newTestServer(t *testing.T, cfg *config.Config) (*httptest.Server, *orch.Orchestrator) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	reg := app.NewRegistry()
	rooms, err := app.NewRoomStore(reg)
	require.NoError(t, err)
	o := orch.New(reg, rooms, app.SimplePolicy{})

	srv := httptest.NewServer(SetupRouter(ctx, cfg, o))
	t.Cleanup(srv.Close)
	return srv, o
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, v map[string]any) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(v))
}

// expect reads frames until one of type typ arrives.
func expect(t *testing.T, conn *websocket.Conn, typ string) map[string]any {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	for {
		var ev map[string]any
		require.NoError(t, conn.ReadJSON(&ev), "waiting for %s", typ)
		if ev["type"] == typ {
			return ev
		}
	}
}

func TestChatOverWebsocket(t *testing.T) {
	srv, o := newTestServer(t, testConfig(t))
	alice := dial(t, srv)
	bob := dial(t, srv)

	send(t, alice, map[string]any{"type": "createRoom", "username": "alice"})
	created := expect(t, alice, "roomCreated")
	code := created["roomCode"].(string)
	assert.Len(t, code, 6)

	send(t, bob, map[string]any{"type": "checkUsername", "username": "alice"})
	assert.Equal(t, true, expect(t, bob, "usernameCheckResult")["isTaken"])

	send(t, bob, map[string]any{"type": "joinRoom", "roomCode": code, "username": "bob"})
	assert.Equal(t, "bob", expect(t, alice, "userJoined")["username"])
	assert.Equal(t, "bob", expect(t, bob, "userJoined")["username"])

	send(t, bob, map[string]any{"type": "sendMessage", "roomCode": code, "message": "<b>hi</b>", "username": "bob", "ackId": "m1"})
	ack := expect(t, bob, "ack")
	assert.Equal(t, "m1", ack["ackId"])
	assert.Equal(t, true, ack["success"])
	msg := expect(t, alice, "receiveMessage")
	assert.Equal(t, "hi", msg["message"])
	assert.Equal(t, "bob", msg["username"])

	send(t, alice, map[string]any{"type": "ping"})
	expect(t, alice, "pong")

	require.NoError(t, alice.Close())
	left := expect(t, bob, "userLeft")
	assert.Equal(t, "alice", left["username"])
	assert.Equal(t, true, left["isHost"])

	require.Eventually(t, func() bool { return o.Stats().Connections == 1 }, 3*time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, o.Stats().Rooms)
}

func TestErrorsGoToCaller(t *testing.T) {
	srv, _ := newTestServer(t, testConfig(t))
	conn := dial(t, srv)

	send(t, conn, map[string]any{"type": "joinRoom", "roomCode": "000000", "username": "bob"})
	assert.Equal(t, "Invalid Room Code!", expect(t, conn, "error")["error"])

	send(t, conn, map[string]any{"type": "createRoom", "username": ""})
	assert.Equal(t, "Invalid username", expect(t, conn, "error")["error"])

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{not json")))
	assert.Equal(t, "Invalid payload", expect(t, conn, "error")["error"])

	send(t, conn, map[string]any{"type": "sendMessage", "roomCode": "123456", "message": "x", "ackId": "a1"})
	ack := expect(t, conn, "ack")
	assert.Equal(t, false, ack["success"])
}

func TestRejectsForeignOrigin(t *testing.T) {
	cfg := testConfig(t)
	cfg.AllowedOrigin = "https://good.example"
	srv, _ := newTestServer(t, cfg)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/ws"
	hdr := http.Header{"Origin": []string{"https://evil.example"}}
	_, resp, err := websocket.DefaultDialer.Dial(url, hdr)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	hdr.Set("Origin", "https://good.example")
	conn, _, err := websocket.DefaultDialer.Dial(url, hdr)
	require.NoError(t, err)
	_ = conn.Close()
}

func TestHealthz(t *testing.T) {
	srv, _ := newTestServer(t, testConfig(t))

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, float64(0), body["rooms"])
}

func TestIndexAndRedirect(t *testing.T) {
	srv, _ := newTestServer(t, testConfig(t))
	client := &http.Client{CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }}

	resp, err := client.Get(srv.URL + "/")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Cookies(), "session cookie is issued")

	resp, err = client.Get(srv.URL + "/some/where")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/", resp.Header.Get("Location"))
}

func TestRateLimitOnPages(t *testing.T) {
	cfg := testConfig(t)
	cfg.RateLimit = config.RateLimit{Requests: 2, Window: time.Minute}
	srv, _ := newTestServer(t, cfg)

	for range 2 {
		resp, err := http.Get(srv.URL + "/")
		require.NoError(t, err)
		resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}
	resp, err := http.Get(srv.URL + "/")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)

	// Health checks are not page traffic.
	resp, err = http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestCORSAllowAll(t *testing.T) {
	srv, _ := newTestServer(t, testConfig(t))

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/healthz", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://anywhere.example")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestDebugRoomsOnlyInDebugMode(t *testing.T) {
	cfg := testConfig(t)
	cfg.Mode = "debug"
	srv, o := newTestServer(t, cfg)
	code, err := o.Rooms.CreateRoom("sid-a", "alice")
	require.NoError(t, err)

	resp, err := http.Get(srv.URL + "/debug/rooms")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var rooms []map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&rooms))
	require.Len(t, rooms, 1)
	assert.Equal(t, string(code), rooms[0]["roomCode"])
	assert.Equal(t, "alice", rooms[0]["host"])

	quiet, _ := newTestServer(t, testConfig(t))
	client := &http.Client{CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }}
	resp2, err := client.Get(quiet.URL + "/debug/rooms")
	require.NoError(t, err)
	resp2.Body.Close()
	assert.Equal(t, http.StatusFound, resp2.StatusCode)
}
