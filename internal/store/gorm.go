package store

import (
	"context"
	stderrors "errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tokmz/qim/pkg/orm"
)

// gormStore 基于 GORM 的关系型存储
type gormStore struct {
	db *gorm.DB
}

// NewGorm 包装已建立的连接；autoMigrate 为 true 时同步表结构
func NewGorm(db *gorm.DB, autoMigrate bool) (Store, error) {
	if autoMigrate {
		if err := db.AutoMigrate(Models()...); err != nil {
			return nil, ErrStore.WithError(err)
		}
	}
	return &gormStore{db: db}, nil
}

// Open 按配置建立连接并返回存储
func Open(cfg *orm.Config, autoMigrate bool) (Store, error) {
	db, err := orm.New(cfg)
	if err != nil {
		return nil, ErrStore.WithError(err)
	}
	s, err := NewGorm(db, autoMigrate)
	if err != nil {
		_ = orm.Close(db)
		return nil, err
	}
	return s, nil
}

// wrap 统一转换 GORM 错误
func wrap(err error) error {
	switch {
	case err == nil:
		return nil
	case stderrors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound
	case stderrors.Is(err, gorm.ErrDuplicatedKey), isUniqueViolation(err):
		return ErrDuplicate.WithError(err)
	default:
		return ErrStore.WithError(err)
	}
}

func isUniqueViolation(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") || strings.Contains(msg, "duplicate")
}

func affected(tx *gorm.DB) error {
	if tx.Error != nil {
		return wrap(tx.Error)
	}
	if tx.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *gormStore) conn(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx)
}

// ---------- users ----------

func (s *gormStore) CreateUser(ctx context.Context, u *User) error {
	ensureID(&u.ID)
	return wrap(s.conn(ctx).Create(u).Error)
}

func (s *gormStore) FindUser(ctx context.Context, id string) (*User, error) {
	var u User
	if err := s.conn(ctx).Where("id = ?", id).Take(&u).Error; err != nil {
		return nil, wrap(err)
	}
	return &u, nil
}

func (s *gormStore) FindUserByUsername(ctx context.Context, username string) (*User, error) {
	var u User
	if err := s.conn(ctx).Where("username = ?", username).Take(&u).Error; err != nil {
		return nil, wrap(err)
	}
	return &u, nil
}

func (s *gormStore) FindUserByEmail(ctx context.Context, email string) (*User, error) {
	if email == "" {
		return nil, ErrNotFound
	}
	var u User
	if err := s.conn(ctx).Where("email = ?", email).Take(&u).Error; err != nil {
		return nil, wrap(err)
	}
	return &u, nil
}

// ---------- conversations ----------

func (s *gormStore) CreateConversation(ctx context.Context, c *Conversation) error {
	ensureID(&c.ID)
	return wrap(s.conn(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(c).Error; err != nil {
			return err
		}
		if len(c.Participants) == 0 {
			return nil
		}
		members := make([]UserConversation, 0, len(c.Participants))
		for _, uid := range c.Participants {
			members = append(members, UserConversation{
				ID:             uuid.NewString(),
				UserID:         uid,
				ConversationID: c.ID,
			})
		}
		return tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&members).Error
	}))
}

func (s *gormStore) FindConversation(ctx context.Context, id string) (*Conversation, error) {
	var c Conversation
	if err := s.conn(ctx).Where("id = ?", id).Take(&c).Error; err != nil {
		return nil, wrap(err)
	}
	return &c, nil
}

func (s *gormStore) ListConversations(ctx context.Context, userID string, p Pagination) ([]Conversation, int64, error) {
	members := s.conn(ctx).Model(&UserConversation{}).Select("conversation_id").Where("user_id = ?", userID)
	q := s.conn(ctx).Model(&Conversation{}).Where("id IN (?)", members)

	var total int64
	if err := q.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, wrap(err)
	}

	list := make([]Conversation, 0)
	q = q.Order("updated_at DESC").Order("id")
	if p.Size > 0 {
		q = q.Offset(p.Offset()).Limit(p.Size)
	}
	if err := q.Find(&list).Error; err != nil {
		return nil, 0, wrap(err)
	}
	return list, total, nil
}

func (s *gormStore) UpdateConversation(ctx context.Context, c *Conversation) error {
	return affected(s.conn(ctx).Model(&Conversation{ID: c.ID}).
		Select("name", "participants", "admins", "last_message", "updated_at").
		Updates(c))
}

func (s *gormStore) LeaveConversation(ctx context.Context, c *Conversation, userID string) error {
	return s.conn(ctx).Transaction(func(tx *gorm.DB) error {
		if err := (&gormStore{db: tx}).UpdateConversation(ctx, c); err != nil {
			return err
		}
		return wrap(tx.Where("user_id = ? AND conversation_id = ?", userID, c.ID).Delete(&UserConversation{}).Error)
	})
}

func (s *gormStore) DeleteConversation(ctx context.Context, id string) error {
	return s.conn(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("conversation_id = ?", id).Delete(&Message{}).Error; err != nil {
			return wrap(err)
		}
		if err := tx.Where("conversation_id = ?", id).Delete(&UserConversation{}).Error; err != nil {
			return wrap(err)
		}
		return affected(tx.Where("id = ?", id).Delete(&Conversation{}))
	})
}

// ---------- messages ----------

func (s *gormStore) CreateMessage(ctx context.Context, m *Message) error {
	ensureID(&m.ID)
	return wrap(s.conn(ctx).Create(m).Error)
}

func (s *gormStore) FindMessage(ctx context.Context, id string) (*Message, error) {
	var m Message
	if err := s.conn(ctx).Where("id = ?", id).Take(&m).Error; err != nil {
		return nil, wrap(err)
	}
	return &m, nil
}

func (s *gormStore) UpdateMessage(ctx context.Context, m *Message) error {
	return affected(s.conn(ctx).Model(&Message{ID: m.ID}).
		Select("content", "attachments", "is_read", "updated_at").
		Updates(m))
}

func (s *gormStore) DeleteMessage(ctx context.Context, id string) error {
	return affected(s.conn(ctx).Where("id = ?", id).Delete(&Message{}))
}

func (s *gormStore) ListMessages(ctx context.Context, q MessageQuery) ([]Message, int64, error) {
	tx := s.conn(ctx).Model(&Message{}).Where("conversation_id = ?", q.ConversationID)
	if q.Before != nil {
		tx = tx.Where("created_at < ?", q.Before.UTC())
	}

	var total int64
	if err := tx.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, wrap(err)
	}

	list := make([]Message, 0)
	tx = tx.Order("created_at ASC").Order("id")
	if q.Size > 0 {
		tx = tx.Offset(q.Offset()).Limit(q.Size)
	}
	if err := tx.Find(&list).Error; err != nil {
		return nil, 0, wrap(err)
	}
	return list, total, nil
}

func (s *gormStore) UnreadMessages(ctx context.Context, conversationID, readerID string) ([]Message, error) {
	list := make([]Message, 0)
	err := s.conn(ctx).
		Where("conversation_id = ? AND is_read = ? AND sender_id <> ?", conversationID, false, readerID).
		Order("created_at ASC").
		Find(&list).Error
	if err != nil {
		return nil, wrap(err)
	}
	return list, nil
}

func (s *gormStore) MarkMessagesRead(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	tx := s.conn(ctx).Model(&Message{}).
		Where("id IN ? AND is_read = ?", ids, false).
		Updates(map[string]any{"is_read": true, "updated_at": time.Now().UTC()})
	return tx.RowsAffected, wrap(tx.Error)
}

// ---------- notifications ----------

func (s *gormStore) CreateNotification(ctx context.Context, n *Notification) error {
	ensureID(&n.ID)
	return wrap(s.conn(ctx).Create(n).Error)
}

func (s *gormStore) FindNotification(ctx context.Context, id string) (*Notification, error) {
	var n Notification
	if err := s.conn(ctx).Where("id = ?", id).Take(&n).Error; err != nil {
		return nil, wrap(err)
	}
	return &n, nil
}

func (s *gormStore) ListNotifications(ctx context.Context, q NotificationQuery) ([]Notification, int64, error) {
	tx := s.conn(ctx).Model(&Notification{}).Where("user_id = ?", q.UserID)
	if q.UnreadOnly {
		tx = tx.Where("is_read = ?", false)
	}

	var total int64
	if err := tx.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, wrap(err)
	}

	list := make([]Notification, 0)
	tx = tx.Order("created_at DESC").Order("id DESC")
	if q.Size > 0 {
		tx = tx.Offset(q.Offset()).Limit(q.Size)
	}
	if err := tx.Find(&list).Error; err != nil {
		return nil, 0, wrap(err)
	}
	return list, total, nil
}

func (s *gormStore) CountUnreadNotifications(ctx context.Context, userID string) (int64, error) {
	var n int64
	err := s.conn(ctx).Model(&Notification{}).Where("user_id = ? AND is_read = ?", userID, false).Count(&n).Error
	return n, wrap(err)
}

func (s *gormStore) MarkNotificationRead(ctx context.Context, id string) error {
	var n Notification
	if err := s.conn(ctx).Select("id").Where("id = ?", id).Take(&n).Error; err != nil {
		return wrap(err)
	}
	return wrap(s.conn(ctx).Model(&Notification{}).Where("id = ?", id).Update("is_read", true).Error)
}

func (s *gormStore) MarkAllNotificationsRead(ctx context.Context, userID string) (int64, error) {
	tx := s.conn(ctx).Model(&Notification{}).
		Where("user_id = ? AND is_read = ?", userID, false).
		Update("is_read", true)
	return tx.RowsAffected, wrap(tx.Error)
}

// ---------- settings ----------

func (s *gormStore) FindUserConversation(ctx context.Context, userID, conversationID string) (*UserConversation, error) {
	var uc UserConversation
	err := s.conn(ctx).Where("user_id = ? AND conversation_id = ?", userID, conversationID).Take(&uc).Error
	if err != nil {
		return nil, wrap(err)
	}
	return &uc, nil
}

func (s *gormStore) SaveUserConversation(ctx context.Context, uc *UserConversation) error {
	ensureID(&uc.ID)
	uc.UpdatedAt = time.Now().UTC()
	return wrap(s.conn(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "conversation_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"muted", "pinned", "last_read_at", "updated_at"}),
	}).Create(uc).Error)
}

func (s *gormStore) Close() error {
	return orm.Close(s.db)
}
