package store

import (
	"context"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tokmz/qim/pkg/logger"
	"github.com/tokmz/qim/pkg/orm"
)

// backends 同一组用例同时覆盖内存与 SQLite 实现
func backends(t *testing.T) map[string]func(t *testing.T) Store {
	return map[string]func(t *testing.T) Store{
		"memory": func(t *testing.T) Store { return NewMemory() },
		"sqlite": func(t *testing.T) Store {
			cfg := orm.DefaultConfig()
			cfg.DSN = filepath.Join(t.TempDir(), "store.db")
			cfg.Logger = logger.NewNop()
			cfg.PrepareStmt = false
			s, err := Open(cfg, true)
			if err != nil {
				t.Skipf("sqlite unavailable: %v", err)
			}
			t.Cleanup(func() { _ = s.Close() })
			return s
		},
	}
}

func eachBackend(t *testing.T, fn func(t *testing.T, s Store)) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			fn(t, open(t))
		})
	}
}

func TestUserDisplayName(t *testing.T) {
	assert.Equal(t, "Ada Lovelace", (&User{FirstName: "Ada", LastName: "Lovelace", Username: "ada"}).DisplayName())
	assert.Equal(t, "Ada", (&User{FirstName: "Ada"}).DisplayName())
	assert.Equal(t, "ada", (&User{Username: "ada"}).DisplayName())
	assert.Equal(t, "Someone", (&User{}).DisplayName())

	var u *User
	assert.Equal(t, "Someone", u.DisplayName())
}

func TestStore_Users(t *testing.T) {
	eachBackend(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		u := &User{Username: "alice", Email: "alice@example.com", Authorities: []string{"ROLE_USER"}}
		require.NoError(t, s.CreateUser(ctx, u))
		require.NotEmpty(t, u.ID)

		got, err := s.FindUserByUsername(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, u.ID, got.ID)
		assert.Equal(t, []string{"ROLE_USER"}, got.Authorities)

		got, err = s.FindUserByEmail(ctx, "alice@example.com")
		require.NoError(t, err)
		assert.Equal(t, u.ID, got.ID)

		_, err = s.FindUser(ctx, "missing")
		assert.ErrorIs(t, err, ErrNotFound)
		_, err = s.FindUserByEmail(ctx, "")
		assert.ErrorIs(t, err, ErrNotFound)

		err = s.CreateUser(ctx, &User{Username: "alice", Email: "other@example.com"})
		assert.ErrorIs(t, err, ErrDuplicate)
	})
}

func TestStore_Conversations(t *testing.T) {
	eachBackend(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		first := &Conversation{Type: ConversationDirect, Participants: []string{"u1", "u2"}}
		require.NoError(t, s.CreateConversation(ctx, first))
		second := &Conversation{Type: ConversationGroup, Name: "team", Participants: []string{"u1", "u3", "u4"}, Admins: []string{"u1"}}
		require.NoError(t, s.CreateConversation(ctx, second))

		// 成员关系随会话一起建立
		uc, err := s.FindUserConversation(ctx, "u2", first.ID)
		require.NoError(t, err)
		assert.False(t, uc.Muted)

		first.LastMessage = &Message{ID: "m1", Content: "hi"}
		first.UpdatedAt = time.Now().UTC().Add(time.Minute)
		require.NoError(t, s.UpdateConversation(ctx, first))

		list, total, err := s.ListConversations(ctx, "u1", Pagination{Page: 0, Size: 10})
		require.NoError(t, err)
		assert.Equal(t, int64(2), total)
		require.Len(t, list, 2)
		assert.Equal(t, first.ID, list[0].ID)
		require.NotNil(t, list[0].LastMessage)
		assert.Equal(t, "hi", list[0].LastMessage.Content)

		list, _, err = s.ListConversations(ctx, "u1", Pagination{Page: 1, Size: 1})
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, second.ID, list[0].ID)

		second.RemoveMember("u3")
		require.NoError(t, s.LeaveConversation(ctx, second, "u3"))
		_, total, err = s.ListConversations(ctx, "u3", Pagination{Size: 10})
		require.NoError(t, err)
		assert.Zero(t, total)
		got, err := s.FindConversation(ctx, second.ID)
		require.NoError(t, err)
		assert.Equal(t, []string{"u1", "u4"}, got.Participants)

		require.NoError(t, s.CreateMessage(ctx, &Message{ConversationID: first.ID, SenderID: "u1", Content: "x"}))
		require.NoError(t, s.DeleteConversation(ctx, first.ID))
		_, err = s.FindConversation(ctx, first.ID)
		assert.ErrorIs(t, err, ErrNotFound)
		msgs, _, err := s.ListMessages(ctx, MessageQuery{ConversationID: first.ID})
		require.NoError(t, err)
		assert.Empty(t, msgs)
		assert.ErrorIs(t, s.DeleteConversation(ctx, first.ID), ErrNotFound)
	})
}

func TestStore_Messages(t *testing.T) {
	eachBackend(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		base := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
		var ids []string
		for i := 0; i < 5; i++ {
			sender := "u1"
			if i%2 == 1 {
				sender = "u2"
			}
			m := &Message{ConversationID: "c1", SenderID: sender, Content: "m", CreatedAt: base.Add(time.Duration(i) * time.Second)}
			require.NoError(t, s.CreateMessage(ctx, m))
			ids = append(ids, m.ID)
		}
		require.NoError(t, s.CreateMessage(ctx, &Message{ConversationID: "c2", SenderID: "u1", CreatedAt: base}))

		list, total, err := s.ListMessages(ctx, MessageQuery{ConversationID: "c1", Pagination: Pagination{Page: 0, Size: 3}})
		require.NoError(t, err)
		assert.Equal(t, int64(5), total)
		require.Len(t, list, 3)
		assert.Equal(t, ids[:3], []string{list[0].ID, list[1].ID, list[2].ID})

		before := base.Add(3 * time.Second)
		list, total, err = s.ListMessages(ctx, MessageQuery{ConversationID: "c1", Before: &before, Pagination: Pagination{Page: 1, Size: 2}})
		require.NoError(t, err)
		assert.Equal(t, int64(3), total)
		require.Len(t, list, 1)
		assert.Equal(t, ids[2], list[0].ID)

		// u1 读取时只看 u2 发送的未读消息
		unread, err := s.UnreadMessages(ctx, "c1", "u1")
		require.NoError(t, err)
		require.Len(t, unread, 2)
		assert.Equal(t, ids[1], unread[0].ID)

		n, err := s.MarkMessagesRead(ctx, []string{ids[1], ids[3]})
		require.NoError(t, err)
		assert.Equal(t, int64(2), n)
		n, err = s.MarkMessagesRead(ctx, []string{ids[1]})
		require.NoError(t, err)
		assert.Zero(t, n)
		unread, err = s.UnreadMessages(ctx, "c1", "u1")
		require.NoError(t, err)
		assert.Empty(t, unread)

		m, err := s.FindMessage(ctx, ids[0])
		require.NoError(t, err)
		m.Content = "edited"
		m.Attachments = []string{"a.png"}
		require.NoError(t, s.UpdateMessage(ctx, m))
		m, err = s.FindMessage(ctx, ids[0])
		require.NoError(t, err)
		assert.Equal(t, "edited", m.Content)
		assert.Equal(t, []string{"a.png"}, m.Attachments)

		require.NoError(t, s.DeleteMessage(ctx, ids[0]))
		assert.ErrorIs(t, s.DeleteMessage(ctx, ids[0]), ErrNotFound)
		assert.ErrorIs(t, s.UpdateMessage(ctx, &Message{ID: "missing"}), ErrNotFound)
	})
}

func TestPagination_Offset(t *testing.T) {
	assert.Equal(t, 0, Pagination{Page: 0, Size: 15}.Offset())
	assert.Equal(t, 30, Pagination{Page: 2, Size: 15}.Offset())
	assert.Equal(t, 0, Pagination{Page: -3, Size: 15}.Offset())
	assert.Equal(t, MaxOffset, Pagination{Page: math.MaxInt, Size: 15}.Offset())
	assert.Equal(t, MaxOffset, Pagination{Page: math.MaxInt / 2, Size: 3}.Offset())
}

func TestStore_HugePageIsEmpty(t *testing.T) {
	eachBackend(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		for i := 0; i < 3; i++ {
			require.NoError(t, s.CreateMessage(ctx, &Message{ConversationID: "c1", SenderID: "u1", Content: "m"}))
		}
		list, total, err := s.ListMessages(ctx, MessageQuery{ConversationID: "c1", Pagination: Pagination{Page: math.MaxInt / 2, Size: 15}})
		require.NoError(t, err)
		assert.Equal(t, int64(3), total)
		assert.Empty(t, list)
	})
}

func TestStore_Notifications(t *testing.T) {
	eachBackend(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
		var ids []string
		for i := 0; i < 3; i++ {
			n := &Notification{UserID: "u1", Type: NotificationMessage, Content: "n", CreatedAt: base.Add(time.Duration(i) * time.Minute)}
			require.NoError(t, s.CreateNotification(ctx, n))
			ids = append(ids, n.ID)
		}
		require.NoError(t, s.CreateNotification(ctx, &Notification{UserID: "u2", Content: "other"}))

		list, total, err := s.ListNotifications(ctx, NotificationQuery{UserID: "u1", Pagination: Pagination{Size: 10}})
		require.NoError(t, err)
		assert.Equal(t, int64(3), total)
		require.Len(t, list, 3)
		assert.Equal(t, ids[2], list[0].ID)

		require.NoError(t, s.MarkNotificationRead(ctx, ids[2]))
		assert.ErrorIs(t, s.MarkNotificationRead(ctx, "missing"), ErrNotFound)

		count, err := s.CountUnreadNotifications(ctx, "u1")
		require.NoError(t, err)
		assert.Equal(t, int64(2), count)

		list, total, err = s.ListNotifications(ctx, NotificationQuery{UserID: "u1", UnreadOnly: true, Pagination: Pagination{Size: 10}})
		require.NoError(t, err)
		assert.Equal(t, int64(2), total)
		assert.Equal(t, ids[1], list[0].ID)

		n, err := s.MarkAllNotificationsRead(ctx, "u1")
		require.NoError(t, err)
		assert.Equal(t, int64(2), n)
		count, err = s.CountUnreadNotifications(ctx, "u1")
		require.NoError(t, err)
		assert.Zero(t, count)

		count, err = s.CountUnreadNotifications(ctx, "u2")
		require.NoError(t, err)
		assert.Equal(t, int64(1), count)
	})
}

func TestStore_UserConversationUpsert(t *testing.T) {
	eachBackend(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		_, err := s.FindUserConversation(ctx, "u1", "c1")
		assert.ErrorIs(t, err, ErrNotFound)

		require.NoError(t, s.SaveUserConversation(ctx, &UserConversation{UserID: "u1", ConversationID: "c1", Muted: true}))
		now := time.Now().UTC().Truncate(time.Second)
		require.NoError(t, s.SaveUserConversation(ctx, &UserConversation{UserID: "u1", ConversationID: "c1", Muted: true, Pinned: true, LastReadAt: &now}))

		uc, err := s.FindUserConversation(ctx, "u1", "c1")
		require.NoError(t, err)
		assert.True(t, uc.Muted)
		assert.True(t, uc.Pinned)
		require.NotNil(t, uc.LastReadAt)
		assert.True(t, now.Equal(*uc.LastReadAt))
	})
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()
	c := &Conversation{Type: ConversationGroup, Participants: []string{"u1", "u2"}}
	require.NoError(t, s.CreateConversation(ctx, c))

	got, err := s.FindConversation(ctx, c.ID)
	require.NoError(t, err)
	got.Participants[0] = "mutated"

	again, err := s.FindConversation(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, "u1", again.Participants[0])
}
