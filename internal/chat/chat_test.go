package chat

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tokmz/qim/internal/fanout"
	"github.com/tokmz/qim/internal/history"
	"github.com/tokmz/qim/internal/store"
	"github.com/tokmz/qim/pkg/cache"
	"github.com/tokmz/qim/pkg/ws"
)

type envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type recorder struct {
	mu   sync.Mutex
	sent map[ws.Destination][]envelope
}

func (r *recorder) Publish(dest ws.Destination, payload []byte) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	var env envelope
	_ = json.Unmarshal(payload, &env)
	r.sent[dest] = append(r.sent[dest], env)
	return 1
}

func (r *recorder) PublishToUser(userID string, payload []byte) int {
	return r.Publish(ws.UserQueue(userID), payload)
}

func (r *recorder) at(dest ws.Destination) []envelope {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]envelope(nil), r.sent[dest]...)
}

func (r *recorder) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = map[ws.Destination][]envelope{}
}

type fixture struct {
	svc   *Service
	store store.Store
	rec   *recorder
	users map[string]*store.User
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	c, err := cache.NewWithOptions(cache.WithMemory(cache.DefaultMemoryConfig()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	s := store.NewMemory()
	rec := &recorder{sent: map[ws.Destination][]envelope{}}
	svc := New(s, fanout.New(rec), history.New(s, c, history.Config{}, nil), nil)

	users := map[string]*store.User{}
	for _, u := range []*store.User{
		{Username: "u1", FirstName: "Ada", LastName: "Lovelace"},
		{Username: "u2"},
		{Username: "u3"},
	} {
		require.NoError(t, s.CreateUser(context.Background(), u))
		users[u.Username] = u
	}
	return &fixture{svc: svc, store: s, rec: rec, users: users}
}

func (f *fixture) id(name string) string { return f.users[name].ID }

func (f *fixture) direct(t *testing.T) *store.Conversation {
	t.Helper()
	conv, err := f.svc.CreateConversation(context.Background(), f.id("u1"), CreateInput{
		Type:         store.ConversationDirect,
		Participants: []string{f.id("u2")},
	})
	require.NoError(t, err)
	return conv
}

func TestSendMessageScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c1 := f.direct(t)

	m1, err := f.svc.Send(ctx, SendInput{ConversationID: c1.ID, SenderID: f.id("u1"), Content: "hello"})
	require.NoError(t, err)
	assert.False(t, m1.Read)

	page, err := f.svc.History(ctx, f.id("u2"), history.Query{ConversationID: c1.ID})
	require.NoError(t, err)
	require.Len(t, page.Content, 1)
	assert.Equal(t, m1.ID, page.Content[0].ID)

	topic := f.rec.at(ws.ConversationTopic(c1.ID))
	require.Len(t, topic, 1)
	assert.Equal(t, "MESSAGE", topic[0].Type)
	var payload store.Message
	require.NoError(t, json.Unmarshal(topic[0].Payload, &payload))
	assert.Equal(t, m1.ID, payload.ID)

	notes := f.rec.at(ws.UserQueue(f.id("u2")))
	require.Len(t, notes, 1)
	assert.Equal(t, "NOTIFICATION", notes[0].Type)
	var np fanout.NotificationPayload
	require.NoError(t, json.Unmarshal(notes[0].Payload, &np))
	assert.Equal(t, "Ada Lovelace sent a message: hello", np.Content)
	assert.Equal(t, "MESSAGE", np.Type)
	assert.Empty(t, f.rec.at(ws.UserQueue(f.id("u1"))))

	// 通知已持久化，文案与推送一致
	list, err := f.svc.Notifications(ctx, f.id("u2"), true, 0, 10)
	require.NoError(t, err)
	require.Len(t, list.Items, 1)
	assert.Equal(t, np.Content, list.Items[0].Content)
	assert.Equal(t, np.ID, list.Items[0].ID)

	conv, err := f.store.FindConversation(ctx, c1.ID)
	require.NoError(t, err)
	require.NotNil(t, conv.LastMessage)
	assert.Equal(t, "hello", conv.LastMessage.Content)
}

func TestSendRequiresMembership(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c1 := f.direct(t)

	_, err := f.svc.Send(ctx, SendInput{ConversationID: c1.ID, SenderID: f.id("u3"), Content: "hi"})
	assert.ErrorIs(t, err, ErrNotParticipant)
	_, err = f.svc.Send(ctx, SendInput{ConversationID: "missing", SenderID: f.id("u1"), Content: "hi"})
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = f.svc.Send(ctx, SendInput{ConversationID: c1.ID, SenderID: f.id("u1"), Content: "  "})
	assert.ErrorIs(t, err, ErrEmptyMessage)
	assert.Empty(t, f.rec.at(ws.ConversationTopic(c1.ID)))
}

func TestReadReceiptScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c1 := f.direct(t)
	m1, err := f.svc.Send(ctx, SendInput{ConversationID: c1.ID, SenderID: f.id("u1"), Content: "hello"})
	require.NoError(t, err)
	f.rec.reset()

	got, err := f.svc.MarkRead(ctx, f.id("u2"), c1.ID, m1.ID)
	require.NoError(t, err)
	assert.True(t, got.Read)

	for _, dest := range []ws.Destination{ws.ConversationTopic(c1.ID), ws.UserQueue(f.id("u1"))} {
		envs := f.rec.at(dest)
		require.Len(t, envs, 1, dest)
		assert.Equal(t, "READ_RECEIPT", envs[0].Type)
		var p fanout.ReadReceiptPayload
		require.NoError(t, json.Unmarshal(envs[0].Payload, &p))
		assert.Equal(t, m1.ID, p.MessageID)
		assert.Equal(t, f.id("u2"), p.ReaderUserID)
	}

	_, err = f.svc.MarkRead(ctx, f.id("u2"), "other", m1.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestBulkReadIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c1 := f.direct(t)
	for i := 0; i < 3; i++ {
		_, err := f.svc.Send(ctx, SendInput{ConversationID: c1.ID, SenderID: f.id("u1"), Content: "m"})
		require.NoError(t, err)
	}
	_, err := f.svc.Send(ctx, SendInput{ConversationID: c1.ID, SenderID: f.id("u2"), Content: "own"})
	require.NoError(t, err)
	f.rec.reset()

	first, err := f.svc.MarkAllRead(ctx, c1.ID, f.id("u2"))
	require.NoError(t, err)
	assert.Len(t, first, 3)
	second, err := f.svc.MarkAllRead(ctx, c1.ID, f.id("u2"))
	require.NoError(t, err)
	assert.Empty(t, second)

	envs := f.rec.at(ws.ConversationTopic(c1.ID))
	require.Len(t, envs, 2)
	var p1, p2 fanout.BulkReadReceiptPayload
	require.NoError(t, json.Unmarshal(envs[0].Payload, &p1))
	require.NoError(t, json.Unmarshal(envs[1].Payload, &p2))
	assert.Equal(t, "BULK_READ_RECEIPT", envs[1].Type)
	assert.ElementsMatch(t, first, p1.MessageIDs)
	assert.Empty(t, p2.MessageIDs)
	assert.Equal(t, c1.ID, p2.ConversationID)

	unread, err := f.store.UnreadMessages(ctx, c1.ID, f.id("u2"))
	require.NoError(t, err)
	assert.Empty(t, unread)
}

func TestMarkListRead(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c1 := f.direct(t)
	a, err := f.svc.Send(ctx, SendInput{ConversationID: c1.ID, SenderID: f.id("u1"), Content: "a"})
	require.NoError(t, err)
	b, err := f.svc.Send(ctx, SendInput{ConversationID: c1.ID, SenderID: f.id("u1"), Content: "b"})
	require.NoError(t, err)

	ids, err := f.svc.MarkListRead(ctx, c1.ID, f.id("u2"), []string{a.ID, "unknown"})
	require.NoError(t, err)
	assert.Equal(t, []string{a.ID}, ids)

	ids, err = f.svc.MarkListRead(ctx, c1.ID, f.id("u2"), []string{a.ID})
	require.NoError(t, err)
	assert.Empty(t, ids)

	unread, err := f.store.UnreadMessages(ctx, c1.ID, f.id("u2"))
	require.NoError(t, err)
	require.Len(t, unread, 1)
	assert.Equal(t, b.ID, unread[0].ID)
}

func TestEditAndDelete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c1 := f.direct(t)
	m, err := f.svc.Send(ctx, SendInput{ConversationID: c1.ID, SenderID: f.id("u1"), Content: "draft"})
	require.NoError(t, err)
	f.rec.reset()

	_, err = f.svc.Edit(ctx, f.id("u2"), m.ID, "hacked")
	assert.ErrorIs(t, err, ErrNotSender)
	assert.ErrorIs(t, f.svc.Delete(ctx, f.id("u2"), m.ID), ErrNotSender)

	edited, err := f.svc.Edit(ctx, f.id("u1"), m.ID, "final")
	require.NoError(t, err)
	assert.Equal(t, "final", edited.Content)

	require.NoError(t, f.svc.Delete(ctx, f.id("u1"), m.ID))
	_, err = f.store.FindMessage(ctx, m.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)

	envs := f.rec.at(ws.ConversationTopic(c1.ID))
	require.Len(t, envs, 2)
	assert.Equal(t, "MESSAGE", envs[0].Type)
	assert.Equal(t, "DELETE", envs[1].Type)
	assert.JSONEq(t, `{"messageId":"`+m.ID+`"}`, string(envs[1].Payload))
}

func TestTyping(t *testing.T) {
	f := newFixture(t)
	c1 := f.direct(t)
	require.NoError(t, f.svc.Typing(context.Background(), c1.ID, f.id("u2"), "typing"))
	assert.ErrorIs(t, f.svc.Typing(context.Background(), c1.ID, f.id("u3"), "typing"), ErrNotParticipant)

	envs := f.rec.at(ws.ConversationTopic(c1.ID))
	require.Len(t, envs, 1)
	assert.Equal(t, "TYPING", envs[0].Type)
}

func TestSettings(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c1 := f.direct(t)
	yes := true

	uc, err := f.svc.UpdateSettings(ctx, f.id("u1"), c1.ID, SettingsInput{Muted: &yes})
	require.NoError(t, err)
	assert.True(t, uc.Muted)
	assert.False(t, uc.Pinned)

	uc, err = f.svc.UpdateSettings(ctx, f.id("u1"), c1.ID, SettingsInput{Pinned: &yes})
	require.NoError(t, err)
	assert.True(t, uc.Muted)
	assert.True(t, uc.Pinned)

	envs := f.rec.at(ws.ConversationTopic(c1.ID))
	require.Len(t, envs, 2)
	assert.Equal(t, "CONVERSATION_UPDATE", envs[0].Type)
	assert.JSONEq(t, `{"conversationId":"`+c1.ID+`"}`, string(envs[0].Payload))

	_, err = f.svc.UpdateSettings(ctx, f.id("u3"), c1.ID, SettingsInput{Muted: &yes})
	assert.ErrorIs(t, err, ErrNotParticipant)
}

func TestMarkConversationRead(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c1 := f.direct(t)
	_, err := f.svc.Send(ctx, SendInput{ConversationID: c1.ID, SenderID: f.id("u1"), Content: "m"})
	require.NoError(t, err)
	f.rec.reset()

	start := time.Now().UTC().Add(-time.Second)
	uc, err := f.svc.MarkConversationRead(ctx, f.id("u2"), c1.ID)
	require.NoError(t, err)
	require.NotNil(t, uc.LastReadAt)
	assert.True(t, uc.LastReadAt.After(start))

	unread, err := f.store.UnreadMessages(ctx, c1.ID, f.id("u2"))
	require.NoError(t, err)
	assert.Empty(t, unread)

	var types []string
	for _, e := range f.rec.at(ws.ConversationTopic(c1.ID)) {
		types = append(types, e.Type)
	}
	assert.Equal(t, []string{"BULK_READ_RECEIPT", "CONVERSATION_UPDATE"}, types)
}

func TestNotifications(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c1 := f.direct(t)
	for i := 0; i < 2; i++ {
		_, err := f.svc.Send(ctx, SendInput{ConversationID: c1.ID, SenderID: f.id("u1"), Content: "m"})
		require.NoError(t, err)
	}

	count, err := f.svc.UnreadNotifications(ctx, f.id("u2"))
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	list, err := f.svc.Notifications(ctx, f.id("u2"), false, 0, 10)
	require.NoError(t, err)
	require.Len(t, list.Items, 2)

	assert.ErrorIs(t, f.svc.MarkNotificationRead(ctx, f.id("u1"), list.Items[0].ID), store.ErrNotFound)
	require.NoError(t, f.svc.MarkNotificationRead(ctx, f.id("u2"), list.Items[0].ID))

	n, err := f.svc.MarkAllNotificationsRead(ctx, f.id("u2"))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	f.svc.EchoNotification(ctx, f.id("u3"), "ping")
	notes := f.rec.at(ws.UserQueue(f.id("u3")))
	require.Len(t, notes, 1)
	assert.Equal(t, "NOTIFICATION", notes[0].Type)
}

func TestCreateConversation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.CreateConversation(ctx, f.id("u1"), CreateInput{Type: store.ConversationDirect, Participants: []string{f.id("u2"), f.id("u3")}})
	assert.ErrorIs(t, err, ErrInvalidConversation)
	_, err = f.svc.CreateConversation(ctx, f.id("u1"), CreateInput{Type: store.ConversationDirect, Participants: []string{f.id("u1")}})
	assert.ErrorIs(t, err, ErrInvalidConversation)
	_, err = f.svc.CreateConversation(ctx, f.id("u1"), CreateInput{Type: "channel", Participants: []string{f.id("u2")}})
	assert.ErrorIs(t, err, ErrInvalidConversation)
	_, err = f.svc.CreateConversation(ctx, f.id("u1"), CreateInput{Type: store.ConversationGroup, Participants: []string{"ghost"}})
	assert.ErrorIs(t, err, ErrInvalidConversation)

	group, err := f.svc.CreateConversation(ctx, f.id("u1"), CreateInput{
		Type:         store.ConversationGroup,
		Name:         " team ",
		Participants: []string{f.id("u2"), f.id("u3"), f.id("u2")},
	})
	require.NoError(t, err)
	assert.Equal(t, "team", group.Name)
	assert.Equal(t, []string{f.id("u1"), f.id("u2"), f.id("u3")}, group.Participants)
	assert.Equal(t, []string{f.id("u1")}, group.Admins)

	list, err := f.svc.Conversations(ctx, f.id("u3"), 0, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), list.Total)

	_, err = f.svc.Conversation(ctx, f.id("u3"), group.ID)
	require.NoError(t, err)

	_, err = f.svc.RenameConversation(ctx, f.id("u2"), group.ID, "x")
	assert.ErrorIs(t, err, ErrNotAdmin)
	renamed, err := f.svc.RenameConversation(ctx, f.id("u1"), group.ID, "core")
	require.NoError(t, err)
	assert.Equal(t, "core", renamed.Name)
}

func TestLeaveConversation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	group, err := f.svc.CreateConversation(ctx, f.id("u1"), CreateInput{
		Type:         store.ConversationGroup,
		Participants: []string{f.id("u2"), f.id("u3")},
	})
	require.NoError(t, err)

	deleted, err := f.svc.LeaveConversation(ctx, f.id("u1"), group.ID)
	require.NoError(t, err)
	assert.False(t, deleted)
	conv, err := f.store.FindConversation(ctx, group.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{f.id("u2"), f.id("u3")}, conv.Participants)
	assert.Empty(t, conv.Admins)

	// 只剩两人时删除整个会话
	deleted, err = f.svc.LeaveConversation(ctx, f.id("u2"), group.ID)
	require.NoError(t, err)
	assert.True(t, deleted)
	_, err = f.store.FindConversation(ctx, group.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestSubscriptionGuard(t *testing.T) {
	f := newFixture(t)
	c1 := f.direct(t)
	guard := f.svc.SubscriptionGuard()
	ctx := context.Background()

	assert.NoError(t, guard(ctx, &ws.Principal{UserID: f.id("u2")}, ws.ConversationTopic(c1.ID)))
	assert.ErrorIs(t, guard(ctx, &ws.Principal{UserID: f.id("u3")}, ws.ConversationTopic(c1.ID)), ws.ErrForbidden)
	assert.ErrorIs(t, guard(ctx, &ws.Principal{UserID: f.id("u1")}, ws.ConversationTopic("missing")), ws.ErrForbidden)
	assert.NoError(t, guard(ctx, nil, ws.ConversationTopic(c1.ID)))
	assert.NoError(t, guard(ctx, &ws.Principal{UserID: f.id("u1")}, ws.UserQueue(f.id("u1"))))
}
