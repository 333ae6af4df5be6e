package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wetalk/internal/app/account"
	"wetalk/internal/app/chat"
	"wetalk/internal/app/history"
	"wetalk/internal/configs"
)

const readTimeout = 2 * time.Second

type testServer struct {
	srv     *httptest.Server
	history *history.FSStore
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	cfg := &configs.AppConfig{
		Environment:    "development",
		Port:           3030,
		TicketSecret:   "integration-test-secret",
		HistoryBackend: configs.HistoryBackendFS,
		HistoryDir:     t.TempDir(),
	}

	registry := chat.NewRegistry()
	historyStore := history.NewFSStore(cfg.HistoryDir)
	accounts := account.NewMemoryStore(registry)
	chatRouter := chat.NewRouter(registry, historyStore, cfg.TicketSecret)

	srv := httptest.NewServer(Router(&AppDeps{
		Config:   cfg,
		Router:   chatRouter,
		Accounts: accounts,
	}))
	t.Cleanup(srv.Close)

	return &testServer{srv: srv, history: historyStore}
}

func (ts *testServer) dial(t *testing.T, path string) *websocket.Conn {
	t.Helper()

	wsURL := "ws" + strings.TrimPrefix(ts.srv.URL, "http") + path

	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err, "dialing %s", path)
	if resp != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { conn.Close() })

	return conn
}

func sendFrame(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()

	raw, err := json.Marshal(v)
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, raw))
}

// readFrame reads one frame into a generic map, failing the test if nothing
// arrives within the read timeout.
func readFrame(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(readTimeout)))

	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)

	var frame map[string]any
	require.NoError(t, json.Unmarshal(raw, &frame))
	return frame
}

func register(t *testing.T, conn *websocket.Conn, username, password string) map[string]any {
	t.Helper()
	sendFrame(t, conn, map[string]any{"type": "register", "username": username, "password": password})
	return readFrame(t, conn)
}

func login(t *testing.T, conn *websocket.Conn, username, password string) map[string]any {
	t.Helper()
	sendFrame(t, conn, map[string]any{"type": "login", "username": username, "password": password})
	return readFrame(t, conn)
}

// createAccount registers and logs in on a fresh auth connection, returning
// the image id and session ticket.
func createAccount(t *testing.T, ts *testServer, username, password string) (int64, string) {
	t.Helper()

	conn := ts.dial(t, "/ws/login")
	defer conn.Close()

	resp := register(t, conn, username, password)
	require.Equal(t, true, resp["success"], "register %s: %v", username, resp)

	resp = login(t, conn, username, password)
	require.Equal(t, true, resp["success"], "login %s: %v", username, resp)

	return int64(resp["image_id"].(float64)), resp["token"].(string)
}

// joinChat opens a chat connection, binds it, and returns the connection and
// the presence list from the resulting add_user event.
func joinChat(t *testing.T, ts *testServer, username, ticket string) (*websocket.Conn, [][2]any) {
	t.Helper()

	conn := ts.dial(t, "/ws/chat")
	sendFrame(t, conn, map[string]any{"type": "add_user", "username": username, "token": ticket})

	event := readFrame(t, conn)
	require.Equal(t, "add_user", event["type"])

	return conn, presenceList(t, event)
}

func presenceList(t *testing.T, event map[string]any) [][2]any {
	t.Helper()

	rawUsers, ok := event["users"].([]any)
	require.True(t, ok, "add_user event without users: %v", event)

	var users [][2]any
	for _, u := range rawUsers {
		pair, ok := u.([]any)
		require.True(t, ok)
		require.Len(t, pair, 2)
		users = append(users, [2]any{pair[0], pair[1].(float64)})
	}
	return users
}

func TestHealthEndpoint(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.Get(ts.srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Data    struct {
			Status string `json:"status"`
		} `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, 0, body.Code)
	assert.Equal(t, "ok", body.Data.Status)
}

func TestAuthEndpoint(t *testing.T) {
	ts := newTestServer(t)
	conn := ts.dial(t, "/ws/login")

	resp := register(t, conn, "alice", "hunter2")
	assert.Equal(t, true, resp["success"])

	// A second registration for the same name is refused.
	resp = register(t, conn, "alice", "other-password")
	assert.Equal(t, false, resp["success"])
	assert.NotEmpty(t, resp["error"])

	// Login before registering.
	resp = login(t, conn, "bob", "hunter2")
	assert.Equal(t, false, resp["success"])

	// Login with the wrong password.
	resp = login(t, conn, "alice", "wrong")
	assert.Equal(t, false, resp["success"])

	// The bootstrap name can be neither registered nor logged into.
	resp = register(t, conn, "Group", "hunter2")
	assert.Equal(t, false, resp["success"])
	resp = login(t, conn, "Group", "")
	assert.Equal(t, false, resp["success"])

	// Correct credentials yield the image id and a session ticket.
	resp = login(t, conn, "alice", "hunter2")
	require.Equal(t, true, resp["success"])
	assert.Equal(t, "alice", resp["username"])
	assert.Equal(t, float64(2), resp["image_id"])
	assert.NotEmpty(t, resp["token"])
}

func TestChatSessionLifecycle(t *testing.T) {
	ts := newTestServer(t)

	aliceID, aliceTicket := createAccount(t, ts, "alice", "hunter2")
	bobID, bobTicket := createAccount(t, ts, "bob", "swordfish")
	require.Equal(t, int64(2), aliceID)
	require.Equal(t, int64(3), bobID)

	aliceConn, users := joinChat(t, ts, "alice", aliceTicket)
	require.Equal(t, [][2]any{{"Group", float64(1)}, {"alice", float64(2)}}, users)

	bobConn, users := joinChat(t, ts, "bob", bobTicket)
	require.Equal(t, [][2]any{{"Group", float64(1)}, {"alice", float64(2)}, {"bob", float64(3)}}, users)

	// alice sees the same broadcast when bob joins.
	event := readFrame(t, aliceConn)
	require.Equal(t, "add_user", event["type"])
	assert.Len(t, presenceList(t, event), 3)

	// While online, a second login for alice is refused.
	authConn := ts.dial(t, "/ws/login")
	resp := login(t, authConn, "alice", "hunter2")
	assert.Equal(t, false, resp["success"])

	// Private message: only alice receives it, stamped with bob's identity.
	sendFrame(t, bobConn, map[string]any{
		"type": "private_message", "to": "alice", "from": "spoofed",
		"message": "pst", "timestamp": "10:00:00",
	})
	event = readFrame(t, aliceConn)
	assert.Equal(t, "private_message", event["type"])
	assert.Equal(t, "bob", event["from"])
	assert.Equal(t, "pst", event["message"])

	// Public message reaches everyone, the sender included.
	sendFrame(t, aliceConn, map[string]any{
		"type": "public_message", "from": "alice",
		"message": "hello all", "timestamp": "10:00:01",
	})
	for _, conn := range []*websocket.Conn{aliceConn, bobConn} {
		event = readFrame(t, conn)
		assert.Equal(t, "public_message", event["type"])
		assert.Equal(t, "alice", event["from"])
		assert.Equal(t, "hello all", event["message"])
	}

	// Logout persists the supplied history record and announces the removal.
	historyPayload := `{"imageId":2,"chatHistory":[["bob","<p>pst</p>"]]}`
	sendFrame(t, aliceConn, map[string]any{
		"type": "logout", "user": "alice", "history": json.RawMessage(historyPayload),
	})

	event = readFrame(t, bobConn)
	assert.Equal(t, "user_remove", event["type"])
	assert.Equal(t, "alice", event["user"])

	// The write precedes the user_remove broadcast, so the record is durable
	// by the time bob saw the event above.
	stored, err := ts.history.Read(context.Background(), "alice")
	require.NoError(t, err)
	assert.JSONEq(t, historyPayload, string(stored))

	// Reconnecting replays the stored record after the presence broadcast.
	reconn, _ := joinChat(t, ts, "alice", aliceTicket)
	event = readFrame(t, reconn)
	require.Equal(t, "history", event["type"])

	replayed, err := json.Marshal(event["history"])
	require.NoError(t, err)
	assert.JSONEq(t, historyPayload, string(replayed))

	// bob hears alice rejoin.
	event = readFrame(t, bobConn)
	assert.Equal(t, "add_user", event["type"])
}

func TestChatBindRequiresTicket(t *testing.T) {
	ts := newTestServer(t)

	_, aliceTicket := createAccount(t, ts, "alice", "hunter2")
	createAccount(t, ts, "mallory", "muahaha")

	t.Run("no ticket", func(t *testing.T) {
		conn := ts.dial(t, "/ws/chat")
		sendFrame(t, conn, map[string]any{"type": "add_user", "username": "alice"})

		require.NoError(t, conn.SetReadDeadline(time.Now().Add(readTimeout)))
		_, _, err := conn.ReadMessage()
		assert.True(t, websocket.IsCloseError(err, chat.CloseCodeAlreadyConnected), "got %v", err)
	})

	t.Run("ticket for another user", func(t *testing.T) {
		conn := ts.dial(t, "/ws/login")
		resp := login(t, conn, "mallory", "muahaha")
		require.Equal(t, true, resp["success"])
		malloryTicket := resp["token"].(string)

		chatConn := ts.dial(t, "/ws/chat")
		sendFrame(t, chatConn, map[string]any{"type": "add_user", "username": "alice", "token": malloryTicket})

		require.NoError(t, chatConn.SetReadDeadline(time.Now().Add(readTimeout)))
		_, _, err := chatConn.ReadMessage()
		assert.True(t, websocket.IsCloseError(err, chat.CloseCodeAlreadyConnected), "got %v", err)
	})

	t.Run("duplicate bind", func(t *testing.T) {
		first, _ := joinChat(t, ts, "alice", aliceTicket)

		second := ts.dial(t, "/ws/chat")
		sendFrame(t, second, map[string]any{"type": "add_user", "username": "alice", "token": aliceTicket})

		require.NoError(t, second.SetReadDeadline(time.Now().Add(readTimeout)))
		_, _, err := second.ReadMessage()
		assert.True(t, websocket.IsCloseError(err, chat.CloseCodeAlreadyConnected), "got %v", err)

		// The first connection is unaffected and still routable.
		sendFrame(t, first, map[string]any{
			"type": "public_message", "from": "alice", "message": "still here", "timestamp": "10:00:02",
		})
		event := readFrame(t, first)
		assert.Equal(t, "public_message", event["type"])
	})
}

func TestChatDisconnectBroadcastsRemoval(t *testing.T) {
	ts := newTestServer(t)

	_, aliceTicket := createAccount(t, ts, "alice", "hunter2")
	_, bobTicket := createAccount(t, ts, "bob", "swordfish")

	aliceConn, _ := joinChat(t, ts, "alice", aliceTicket)
	bobConn, _ := joinChat(t, ts, "bob", bobTicket)
	readFrame(t, aliceConn) // bob's join broadcast

	// alice drops the socket without a logout frame.
	aliceConn.Close()

	event := readFrame(t, bobConn)
	assert.Equal(t, "user_remove", event["type"])
	assert.Equal(t, "alice", event["user"])

	// No history record exists for an abrupt disconnect.
	_, err := ts.history.Read(context.Background(), "alice")
	assert.ErrorIs(t, err, history.ErrNotFound)
}
