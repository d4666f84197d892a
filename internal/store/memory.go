package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// memoryStore 进程内存储，用于开发与测试
// 返回值均为副本，调用方修改后需显式保存
type memoryStore struct {
	mu  sync.RWMutex
	now func() time.Time
	seq int64

	users         map[string]*User
	conversations map[string]*Conversation
	messages      map[string]*memoryMessage
	notifications map[string]*memoryNotification
	settings      map[string]*UserConversation // userID + "/" + conversationID
}

type memoryMessage struct {
	Message
	seq int64
}

type memoryNotification struct {
	Notification
	seq int64
}

// MemoryOption 内存存储选项
type MemoryOption func(*memoryStore)

// WithClock 替换时间源
func WithClock(now func() time.Time) MemoryOption {
	return func(m *memoryStore) { m.now = now }
}

// NewMemory 创建内存存储
func NewMemory(opts ...MemoryOption) Store {
	m := &memoryStore{
		now:           time.Now,
		users:         make(map[string]*User),
		conversations: make(map[string]*Conversation),
		messages:      make(map[string]*memoryMessage),
		notifications: make(map[string]*memoryNotification),
		settings:      make(map[string]*UserConversation),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *memoryStore) timestamp() time.Time {
	return m.now().UTC()
}

func settingsKey(userID, conversationID string) string {
	return userID + "/" + conversationID
}

func ensureID(id *string) {
	if *id == "" {
		*id = uuid.NewString()
	}
}

func cloneStrings(s []string) []string {
	if s == nil {
		return nil
	}
	return append([]string(nil), s...)
}

func cloneUser(u *User) *User {
	c := *u
	c.Authorities = cloneStrings(u.Authorities)
	return &c
}

func cloneMessage(msg *Message) *Message {
	c := *msg
	c.Attachments = cloneStrings(msg.Attachments)
	return &c
}

func cloneConversation(conv *Conversation) *Conversation {
	c := *conv
	c.Participants = cloneStrings(conv.Participants)
	c.Admins = cloneStrings(conv.Admins)
	if conv.LastMessage != nil {
		c.LastMessage = cloneMessage(conv.LastMessage)
	}
	return &c
}

func paginate[T any](items []T, p Pagination) []T {
	if p.Size <= 0 {
		return items
	}
	start := p.Offset()
	if start < 0 || start >= len(items) {
		return []T{}
	}
	end := start + p.Size
	if end > len(items) {
		end = len(items)
	}
	return items[start:end]
}

// ---------- users ----------

func (m *memoryStore) CreateUser(_ context.Context, u *User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.users {
		if existing.Username == u.Username {
			return ErrDuplicate.WithMessage("用户名已存在")
		}
	}
	ensureID(&u.ID)
	now := m.timestamp()
	u.CreatedAt, u.UpdatedAt = now, now
	m.users[u.ID] = cloneUser(u)
	return nil
}

func (m *memoryStore) FindUser(_ context.Context, id string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if u, ok := m.users[id]; ok {
		return cloneUser(u), nil
	}
	return nil, ErrNotFound
}

func (m *memoryStore) FindUserByUsername(_ context.Context, username string) (*User, error) {
	return m.findUser(func(u *User) bool { return u.Username == username })
}

func (m *memoryStore) FindUserByEmail(_ context.Context, email string) (*User, error) {
	return m.findUser(func(u *User) bool { return email != "" && u.Email == email })
}

func (m *memoryStore) findUser(match func(*User) bool) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, u := range m.users {
		if match(u) {
			return cloneUser(u), nil
		}
	}
	return nil, ErrNotFound
}

// ---------- conversations ----------

func (m *memoryStore) CreateConversation(_ context.Context, c *Conversation) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	ensureID(&c.ID)
	now := m.timestamp()
	c.CreatedAt, c.UpdatedAt = now, now
	m.conversations[c.ID] = cloneConversation(c)

	for _, uid := range c.Participants {
		key := settingsKey(uid, c.ID)
		if _, ok := m.settings[key]; ok {
			continue
		}
		m.settings[key] = &UserConversation{
			ID:             uuid.NewString(),
			UserID:         uid,
			ConversationID: c.ID,
			UpdatedAt:      now,
		}
	}
	return nil
}

func (m *memoryStore) FindConversation(_ context.Context, id string) (*Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if c, ok := m.conversations[id]; ok {
		return cloneConversation(c), nil
	}
	return nil, ErrNotFound
}

func (m *memoryStore) ListConversations(_ context.Context, userID string, p Pagination) ([]Conversation, int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var all []Conversation
	for _, c := range m.conversations {
		if _, member := m.settings[settingsKey(userID, c.ID)]; member {
			all = append(all, *cloneConversation(c))
		}
	}
	sort.SliceStable(all, func(i, j int) bool {
		if all[i].UpdatedAt.Equal(all[j].UpdatedAt) {
			return all[i].ID < all[j].ID
		}
		return all[i].UpdatedAt.After(all[j].UpdatedAt)
	})
	return paginate(all, p), int64(len(all)), nil
}

func (m *memoryStore) UpdateConversation(_ context.Context, c *Conversation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.conversations[c.ID]; !ok {
		return ErrNotFound
	}
	m.conversations[c.ID] = cloneConversation(c)
	return nil
}

func (m *memoryStore) LeaveConversation(_ context.Context, c *Conversation, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.conversations[c.ID]; !ok {
		return ErrNotFound
	}
	m.conversations[c.ID] = cloneConversation(c)
	delete(m.settings, settingsKey(userID, c.ID))
	return nil
}

func (m *memoryStore) DeleteConversation(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.conversations[id]; !ok {
		return ErrNotFound
	}
	delete(m.conversations, id)
	for k, msg := range m.messages {
		if msg.ConversationID == id {
			delete(m.messages, k)
		}
	}
	for k, uc := range m.settings {
		if uc.ConversationID == id {
			delete(m.settings, k)
		}
	}
	return nil
}

// ---------- messages ----------

func (m *memoryStore) CreateMessage(_ context.Context, msg *Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	ensureID(&msg.ID)
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = m.timestamp()
	}
	if msg.UpdatedAt.IsZero() {
		msg.UpdatedAt = msg.CreatedAt
	}
	m.seq++
	m.messages[msg.ID] = &memoryMessage{Message: *cloneMessage(msg), seq: m.seq}
	return nil
}

func (m *memoryStore) FindMessage(_ context.Context, id string) (*Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if msg, ok := m.messages[id]; ok {
		return cloneMessage(&msg.Message), nil
	}
	return nil, ErrNotFound
}

func (m *memoryStore) UpdateMessage(_ context.Context, msg *Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.messages[msg.ID]
	if !ok {
		return ErrNotFound
	}
	existing.Message = *cloneMessage(msg)
	return nil
}

func (m *memoryStore) DeleteMessage(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.messages[id]; !ok {
		return ErrNotFound
	}
	delete(m.messages, id)
	return nil
}

// sortedMessages 会话内消息按创建时间升序，同一时刻按写入顺序
func (m *memoryStore) sortedMessages(conversationID string, keep func(*Message) bool) []*memoryMessage {
	var list []*memoryMessage
	for _, msg := range m.messages {
		if msg.ConversationID == conversationID && keep(&msg.Message) {
			list = append(list, msg)
		}
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].seq < list[j].seq
		}
		return list[i].CreatedAt.Before(list[j].CreatedAt)
	})
	return list
}

func (m *memoryStore) ListMessages(_ context.Context, q MessageQuery) ([]Message, int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	list := m.sortedMessages(q.ConversationID, func(msg *Message) bool {
		return q.Before == nil || msg.CreatedAt.Before(*q.Before)
	})
	page := paginate(list, q.Pagination)
	out := make([]Message, 0, len(page))
	for _, msg := range page {
		out = append(out, *cloneMessage(&msg.Message))
	}
	return out, int64(len(list)), nil
}

func (m *memoryStore) UnreadMessages(_ context.Context, conversationID, readerID string) ([]Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	list := m.sortedMessages(conversationID, func(msg *Message) bool {
		return !msg.Read && msg.SenderID != readerID
	})
	out := make([]Message, 0, len(list))
	for _, msg := range list {
		out = append(out, *cloneMessage(&msg.Message))
	}
	return out, nil
}

func (m *memoryStore) MarkMessagesRead(_ context.Context, ids []string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	now := m.timestamp()
	for _, id := range ids {
		if msg, ok := m.messages[id]; ok && !msg.Read {
			msg.Read = true
			msg.UpdatedAt = now
			n++
		}
	}
	return n, nil
}

// ---------- notifications ----------

func (m *memoryStore) CreateNotification(_ context.Context, n *Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	ensureID(&n.ID)
	if n.CreatedAt.IsZero() {
		n.CreatedAt = m.timestamp()
	}
	m.seq++
	m.notifications[n.ID] = &memoryNotification{Notification: *n, seq: m.seq}
	return nil
}

func (m *memoryStore) FindNotification(_ context.Context, id string) (*Notification, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if n, ok := m.notifications[id]; ok {
		c := n.Notification
		return &c, nil
	}
	return nil, ErrNotFound
}

func (m *memoryStore) ListNotifications(_ context.Context, q NotificationQuery) ([]Notification, int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var list []*memoryNotification
	for _, n := range m.notifications {
		if n.UserID == q.UserID && (!q.UnreadOnly || !n.IsRead) {
			list = append(list, n)
		}
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].seq > list[j].seq
		}
		return list[i].CreatedAt.After(list[j].CreatedAt)
	})

	page := paginate(list, q.Pagination)
	out := make([]Notification, 0, len(page))
	for _, n := range page {
		out = append(out, n.Notification)
	}
	return out, int64(len(list)), nil
}

func (m *memoryStore) CountUnreadNotifications(_ context.Context, userID string) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var n int64
	for _, item := range m.notifications {
		if item.UserID == userID && !item.IsRead {
			n++
		}
	}
	return n, nil
}

func (m *memoryStore) MarkNotificationRead(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.notifications[id]
	if !ok {
		return ErrNotFound
	}
	n.IsRead = true
	return nil
}

func (m *memoryStore) MarkAllNotificationsRead(_ context.Context, userID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var count int64
	for _, n := range m.notifications {
		if n.UserID == userID && !n.IsRead {
			n.IsRead = true
			count++
		}
	}
	return count, nil
}

// ---------- settings ----------

func (m *memoryStore) FindUserConversation(_ context.Context, userID, conversationID string) (*UserConversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if uc, ok := m.settings[settingsKey(userID, conversationID)]; ok {
		c := *uc
		return &c, nil
	}
	return nil, ErrNotFound
}

func (m *memoryStore) SaveUserConversation(_ context.Context, uc *UserConversation) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := settingsKey(uc.UserID, uc.ConversationID)
	if existing, ok := m.settings[key]; ok {
		uc.ID = existing.ID
	}
	ensureID(&uc.ID)
	uc.UpdatedAt = m.timestamp()
	c := *uc
	m.settings[key] = &c
	return nil
}

func (m *memoryStore) Close() error { return nil }
