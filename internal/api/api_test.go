package api

import (
	"bytes"
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

	"github.com/tokmz/qim"
	"github.com/tokmz/qim/internal/auth"
	"github.com/tokmz/qim/internal/chat"
	"github.com/tokmz/qim/internal/fanout"
	"github.com/tokmz/qim/internal/history"
	"github.com/tokmz/qim/internal/store"
	"github.com/tokmz/qim/middleware"
	"github.com/tokmz/qim/pkg/cache"
	"github.com/tokmz/qim/pkg/ws"
)

type result[T any] struct {
	Code    int    `json:"code"`
	Data    T      `json:"data"`
	Message string `json:"message"`
}

type env struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type harness struct {
	srv    *httptest.Server
	store  store.Store
	tokens map[string]string
	users  map[string]*store.User
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	ctx := context.Background()

	s := store.NewMemory()
	c, err := cache.NewWithOptions(cache.WithMemory(cache.DefaultMemoryConfig()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	authCfg := auth.Config{Secret: "test-secret", Issuer: "qim", TTL: time.Hour}
	verifier := auth.NewVerifier(authCfg, s, nil)
	issuer := auth.NewIssuer(authCfg)

	counters := ws.NewCounters()
	router := ws.NewRouter(ws.WithRouterMetrics(counters))
	gate := ws.NewGate(verifier, ws.AnonymousDeny, nil)
	manager, err := ws.NewManager(router, gate, nil, ws.WithMetrics(counters), ws.WithSendQueueSize(32))
	require.NoError(t, err)

	svc := chat.New(s, fanout.New(router), history.New(s, c, history.Config{}, nil), nil)
	gate.SetGuard(svc.SubscriptionGuard())

	h := New(svc, s, manager, counters, nil)
	require.NoError(t, h.RegisterSend(manager.Dispatcher()))
	manager.Start()

	e := qim.New(qim.WithMode("test"))
	h.Register(e, "/ws/connect", middleware.Auth(verifier, nil))

	srv := httptest.NewServer(e.Handler())
	t.Cleanup(func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = manager.Shutdown(sctx)
		srv.Close()
	})

	hs := &harness{srv: srv, store: s, tokens: map[string]string{}, users: map[string]*store.User{}}
	for _, u := range []*store.User{
		{Username: "alice", FirstName: "Alice", LastName: "Liddell"},
		{Username: "bob"},
		{Username: "carol"},
	} {
		require.NoError(t, s.CreateUser(ctx, u))
		token, err := issuer.Issue(u)
		require.NoError(t, err)
		hs.tokens[u.Username] = token
		hs.users[u.Username] = u
	}
	return hs
}

func call[T any](t *testing.T, hs *harness, user, method, path string, body any) (int, result[T]) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, hs.srv.URL+path, reader)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if user != "" {
		req.Header.Set("Authorization", "Bearer "+hs.tokens[user])
	}
	res, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer res.Body.Close()

	var out result[T]
	require.NoError(t, json.NewDecoder(res.Body).Decode(&out))
	return res.StatusCode, out
}

func (hs *harness) createDirect(t *testing.T, from, to string) *store.Conversation {
	t.Helper()
	status, res := call[store.Conversation](t, hs, from, http.MethodPost, "/api/conversations", map[string]any{
		"type":         "direct",
		"participants": []string{hs.users[to].ID},
	})
	require.Equal(t, http.StatusOK, status, res.Message)
	return &res.Data
}

func TestREST_RequiresToken(t *testing.T) {
	hs := newHarness(t)

	status, _ := call[any](t, hs, "", http.MethodGet, "/api/conversations", nil)
	assert.Equal(t, http.StatusUnauthorized, status)

	req, _ := http.NewRequest(http.MethodGet, hs.srv.URL+"/api/users/me", nil)
	req.Header.Set("Authorization", "Bearer not-a-jwt")
	res, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	_ = res.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)
}

func TestREST_Me(t *testing.T) {
	hs := newHarness(t)
	status, res := call[store.User](t, hs, "alice", http.MethodGet, "/api/users/me", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "alice", res.Data.Username)
	assert.Equal(t, hs.users["alice"].ID, res.Data.ID)
}

func TestREST_ConversationAndMessages(t *testing.T) {
	hs := newHarness(t)
	conv := hs.createDirect(t, "alice", "bob")
	assert.ElementsMatch(t, []string{hs.users["alice"].ID, hs.users["bob"].ID}, conv.Participants)

	status, list := call[chat.ConversationList](t, hs, "bob", http.MethodGet, "/api/conversations?page=0&size=5", nil)
	require.Equal(t, http.StatusOK, status)
	require.Len(t, list.Data.Items, 1)

	status, sent := call[store.Message](t, hs, "alice", http.MethodPost, "/api/conversations/"+conv.ID+"/messages", map[string]any{"content": "hello"})
	require.Equal(t, http.StatusOK, status, sent.Message)
	assert.Equal(t, "hello", sent.Data.Content)

	status, page := call[history.Page](t, hs, "bob", http.MethodGet, "/api/conversations/"+conv.ID+"/messages?page=0&size=20", nil)
	require.Equal(t, http.StatusOK, status)
	require.Len(t, page.Data.Content, 1)
	assert.Equal(t, 15, page.Data.Size, "size is clamped")

	status, _ = call[history.Page](t, hs, "carol", http.MethodGet, "/api/conversations/"+conv.ID+"/messages", nil)
	assert.Equal(t, http.StatusForbidden, status)

	status, _ = call[history.Page](t, hs, "bob", http.MethodGet, "/api/conversations/"+conv.ID+"/messages?before=yesterday", nil)
	assert.Equal(t, http.StatusBadRequest, status)

	status, count := call[CountResponse](t, hs, "bob", http.MethodGet, "/api/notifications/count", nil)
	require.Equal(t, http.StatusOK, status)
	assert.EqualValues(t, 1, count.Data.Count)

	status, read := call[store.Message](t, hs, "bob", http.MethodPut, "/api/messages/"+sent.Data.ID+"/read", nil)
	require.Equal(t, http.StatusOK, status)
	assert.True(t, read.Data.Read)

	status, marked := call[MarkedResponse](t, hs, "bob", http.MethodPut, "/api/messages/mark-all-read/"+conv.ID, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Empty(t, marked.Data.MessageIDs)

	status, _ = call[store.Message](t, hs, "bob", http.MethodPut, "/api/messages/"+sent.Data.ID, map[string]any{"content": "hijack"})
	assert.Equal(t, http.StatusForbidden, status)

	status, edited := call[store.Message](t, hs, "alice", http.MethodPut, "/api/messages/"+sent.Data.ID, map[string]any{"content": "hello!"})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "hello!", edited.Data.Content)

	status, _ = call[any](t, hs, "alice", http.MethodDelete, "/api/messages/"+sent.Data.ID, nil)
	assert.Equal(t, http.StatusOK, status)

	status, left := call[LeaveResponse](t, hs, "alice", http.MethodDelete, "/api/conversations/"+conv.ID, nil)
	require.Equal(t, http.StatusOK, status)
	assert.True(t, left.Data.Deleted)
}

func TestREST_NotificationsAndSettings(t *testing.T) {
	hs := newHarness(t)
	conv := hs.createDirect(t, "alice", "bob")
	for _, text := range []string{"one", "two"} {
		status, _ := call[store.Message](t, hs, "alice", http.MethodPost, "/api/conversations/"+conv.ID+"/messages", map[string]any{"content": text})
		require.Equal(t, http.StatusOK, status)
	}

	status, list := call[chat.NotificationList](t, hs, "bob", http.MethodGet, "/api/notifications?unreadOnly=true", nil)
	require.Equal(t, http.StatusOK, status)
	require.Len(t, list.Data.Items, 2)
	assert.Equal(t, "Alice Liddell sent a message: two", list.Data.Items[0].Content)

	status, _ = call[any](t, hs, "alice", http.MethodPut, "/api/notifications/"+list.Data.Items[0].ID+"/read", nil)
	assert.Equal(t, http.StatusNotFound, status, "not alice's notification")

	status, _ = call[any](t, hs, "bob", http.MethodPut, "/api/notifications/"+list.Data.Items[0].ID+"/read", nil)
	require.Equal(t, http.StatusOK, status)

	status, all := call[CountResponse](t, hs, "bob", http.MethodPut, "/api/notifications/read-all", nil)
	require.Equal(t, http.StatusOK, status)
	assert.EqualValues(t, 1, all.Data.Count)

	status, settings := call[store.UserConversation](t, hs, "bob", http.MethodPut, "/api/user-conversations/"+conv.ID, map[string]any{"muted": true})
	require.Equal(t, http.StatusOK, status)
	assert.True(t, settings.Data.Muted)
	assert.False(t, settings.Data.Pinned)

	status, settings = call[store.UserConversation](t, hs, "bob", http.MethodPut, "/api/user-conversations/"+conv.ID+"/read", nil)
	require.Equal(t, http.StatusOK, status)
	assert.NotNil(t, settings.Data.LastReadAt)
	assert.True(t, settings.Data.Muted)
}

func TestHealthz(t *testing.T) {
	hs := newHarness(t)
	res, err := http.Get(hs.srv.URL + "/healthz")
	require.NoError(t, err)
	defer res.Body.Close()

	var out result[HealthResponse]
	require.NoError(t, json.NewDecoder(res.Body).Decode(&out))
	assert.Equal(t, "ok", out.Data.Status)
	assert.NotNil(t, out.Data.Stats)
}

// ---- WebSocket ----

func (hs *harness) dial(t *testing.T, user string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(hs.srv.URL, "http") + "/ws/connect"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	headers := map[string]string{}
	if user != "" {
		headers[ws.HeaderAuthorization] = "Bearer " + hs.tokens[user]
	}
	writeFrame(t, conn, &ws.Frame{Command: ws.CommandConnect, Headers: headers})
	require.Equal(t, ws.CommandConnected, readFrame(t, conn).Command)
	return conn
}

func writeFrame(t *testing.T, conn *websocket.Conn, f *ws.Frame) {
	t.Helper()
	data, err := json.Marshal(f)
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, data))
}

func readFrame(t *testing.T, conn *websocket.Conn) *ws.Frame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var f ws.Frame
	require.NoError(t, json.Unmarshal(data, &f))
	return &f
}

func subscribe(t *testing.T, conn *websocket.Conn, dest string) *ws.Frame {
	t.Helper()
	writeFrame(t, conn, &ws.Frame{Command: ws.CommandSubscribe, Destination: dest, Receipt: "sub-" + dest})
	return readFrame(t, conn)
}

func TestWS_SendFansOutToTopicAndQueue(t *testing.T) {
	hs := newHarness(t)
	conv := hs.createDirect(t, "alice", "bob")
	topic := "/topic/conversations/" + conv.ID

	bob := hs.dial(t, "bob")
	require.Equal(t, ws.CommandReceipt, subscribe(t, bob, topic).Command)
	require.Equal(t, ws.CommandReceipt, subscribe(t, bob, ws.UserNotificationsQueue).Command)

	alice := hs.dial(t, "alice")
	writeFrame(t, alice, &ws.Frame{
		Command:     ws.CommandSend,
		Destination: "/app/conversations/" + conv.ID + "/messages",
		Receipt:     "send-1",
		Body:        json.RawMessage(`{"content":"hi bob"}`),
	})
	assert.Equal(t, ws.CommandReceipt, readFrame(t, alice).Command)

	got := map[string]env{}
	for range 2 {
		f := readFrame(t, bob)
		require.Equal(t, ws.CommandMessage, f.Command)
		var e env
		require.NoError(t, json.Unmarshal(f.Body, &e))
		got[f.Destination] = e
	}
	assert.Equal(t, string(fanout.TypeMessage), got[topic].Type)
	assert.Equal(t, string(fanout.TypeNotification), got[ws.UserNotificationsQueue].Type)

	var note fanout.NotificationPayload
	require.NoError(t, json.Unmarshal(got[ws.UserNotificationsQueue].Payload, &note))
	assert.Equal(t, "Alice Liddell sent a message: hi bob", note.Content)
	assert.NotEmpty(t, note.ID)
}

func TestWS_NonMemberCannotSubscribe(t *testing.T) {
	hs := newHarness(t)
	conv := hs.createDirect(t, "alice", "bob")

	carol := hs.dial(t, "carol")
	f := subscribe(t, carol, "/topic/conversations/"+conv.ID)
	assert.Equal(t, ws.CommandError, f.Command)
}

func TestWS_SendErrors(t *testing.T) {
	hs := newHarness(t)
	conv := hs.createDirect(t, "alice", "bob")

	carol := hs.dial(t, "carol")
	writeFrame(t, carol, &ws.Frame{
		Command:     ws.CommandSend,
		Destination: "/app/conversations/" + conv.ID + "/typing",
		Receipt:     "t1",
		Body:        json.RawMessage(`{"status":"typing"}`),
	})
	f := readFrame(t, carol)
	assert.Equal(t, ws.CommandError, f.Command)

	alice := hs.dial(t, "alice")
	writeFrame(t, alice, &ws.Frame{
		Command:     ws.CommandSend,
		Destination: "/app/chat/" + conv.ID + "/read",
		Receipt:     "r1",
		Body:        json.RawMessage(`{}`),
	})
	assert.Equal(t, ws.CommandError, readFrame(t, alice).Command)
}

func TestWS_BulkReadAndEcho(t *testing.T) {
	hs := newHarness(t)
	conv := hs.createDirect(t, "alice", "bob")
	status, sent := call[store.Message](t, hs, "alice", http.MethodPost, "/api/conversations/"+conv.ID+"/messages", map[string]any{"content": "x"})
	require.Equal(t, http.StatusOK, status)

	alice := hs.dial(t, "alice")
	topic := "/topic/conversations/" + conv.ID
	require.Equal(t, ws.CommandReceipt, subscribe(t, alice, topic).Command)
	require.Equal(t, ws.CommandReceipt, subscribe(t, alice, ws.UserNotificationsQueue).Command)

	bob := hs.dial(t, "bob")
	body, _ := json.Marshal(map[string]any{"messageIds": []string{sent.Data.ID, "unknown"}})
	writeFrame(t, bob, &ws.Frame{Command: ws.CommandSend, Destination: "/app/chat/" + conv.ID + "/read-bulk", Body: body})

	f := readFrame(t, alice)
	var e env
	require.NoError(t, json.Unmarshal(f.Body, &e))
	assert.Equal(t, string(fanout.TypeBulkReadReceipt), e.Type)
	var receipt fanout.BulkReadReceiptPayload
	require.NoError(t, json.Unmarshal(e.Payload, &receipt))
	assert.Equal(t, []string{sent.Data.ID}, receipt.MessageIDs)

	writeFrame(t, alice, &ws.Frame{Command: ws.CommandSend, Destination: "/app/notifications", Body: json.RawMessage(`{"message":"ping"}`)})
	f = readFrame(t, alice)
	assert.Equal(t, ws.UserNotificationsQueue, f.Destination)
	require.NoError(t, json.Unmarshal(f.Body, &e))
	assert.Equal(t, string(fanout.TypeNotification), e.Type)
}
