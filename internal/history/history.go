// Package history 会话历史消息的分页读取与短期缓存
package history

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/tokmz/qim/internal/store"
	"github.com/tokmz/qim/pkg/cache"
	"github.com/tokmz/qim/pkg/logger"
	"github.com/tokmz/qim/pkg/tracing"
)

const (
	DefaultMaxPageSize = 15
	DefaultTTL         = 30 * time.Second
)

// Config 历史缓存配置
type Config struct {
	MaxPageSize int
	TTL         time.Duration
	// InvalidateOnWrite 为 true 时写入会让该会话已缓存的页失效
	InvalidateOnWrite bool
}

// Query 历史查询
type Query struct {
	ConversationID string
	Page           int
	Size           int
	Before         *time.Time
}

// Page 分页结果
type Page struct {
	Content       []store.Message `json:"content"`
	Page          int             `json:"page"`
	Size          int             `json:"size"`
	TotalElements int64           `json:"totalElements"`
	TotalPages    int             `json:"totalPages"`
}

// Service 历史消息服务
type Service struct {
	messages store.MessageStore
	sf       *cache.SingleflightCache
	cfg      Config
	log      logger.Logger
}

// New 创建历史消息服务
func New(messages store.MessageStore, c cache.Cache, cfg Config, log logger.Logger) *Service {
	if cfg.MaxPageSize <= 0 {
		cfg.MaxPageSize = DefaultMaxPageSize
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Service{
		messages: messages,
		sf:       cache.NewSingleflightCache(c),
		cfg:      cfg,
		log:      log,
	}
}

// Normalize 规整分页参数：page < 0 视为 0，size 不在 (0, max] 内时取 max，
// page*size 不超过 store.MaxOffset
func (s *Service) Normalize(q Query) Query {
	if q.Page < 0 {
		q.Page = 0
	}
	if q.Size <= 0 || q.Size > s.cfg.MaxPageSize {
		q.Size = s.cfg.MaxPageSize
	}
	if limit := store.MaxOffset / q.Size; q.Page > limit {
		q.Page = limit
	}
	if q.Before != nil {
		b := q.Before.UTC()
		q.Before = &b
	}
	return q
}

// Key 缓存键，同一查询总是得到同一个键
// q 必须已经过 Normalize
func Key(q Query) string {
	before := "null"
	if q.Before != nil {
		before = q.Before.UTC().Format(time.RFC3339Nano)
	}
	return fmt.Sprintf("%s_%d_%d_%s", q.ConversationID, q.Page, q.Size, before)
}

func generationKey(conversationID string) string {
	return "history:gen:" + conversationID
}

// cacheKey 启用写失效时把会话代数折进键里
func (s *Service) cacheKey(ctx context.Context, q Query) string {
	key := "history:" + Key(q)
	if !s.cfg.InvalidateOnWrite {
		return key
	}
	var gen int64
	if err := s.sf.Get(ctx, generationKey(q.ConversationID), &gen); err != nil {
		return key + "#0"
	}
	return fmt.Sprintf("%s#%d", key, gen)
}

// Messages 读取一页历史消息
// 存储失败时返回空页，不向调用方报错
func (s *Service) Messages(ctx context.Context, q Query) Page {
	q = s.Normalize(q)
	ctx, span := tracing.StartSpan(ctx, "history.messages")
	defer span.End()

	key := s.cacheKey(ctx, q)
	page, err := cache.RememberWithLock(ctx, s.sf, key, s.cfg.TTL, func(ctx context.Context) (Page, error) {
		return s.load(ctx, q)
	}, cache.CacheIf(func(p Page) bool {
		return len(p.Content) <= q.Size
	}))
	if err != nil {
		tracing.RecordError(span, err)
		s.log.ErrorContext(ctx, "load history failed",
			zap.String("conversation_id", q.ConversationID),
			zap.Int("page", q.Page),
			zap.Error(err))
		return emptyPage(q)
	}
	return page
}

func (s *Service) load(ctx context.Context, q Query) (Page, error) {
	list, total, err := s.messages.ListMessages(ctx, store.MessageQuery{
		ConversationID: q.ConversationID,
		Pagination:     store.Pagination{Page: q.Page, Size: q.Size},
		Before:         q.Before,
	})
	if err != nil {
		return Page{}, err
	}
	if list == nil {
		list = []store.Message{}
	}
	return Page{
		Content:       list,
		Page:          q.Page,
		Size:          q.Size,
		TotalElements: total,
		TotalPages:    totalPages(total, q.Size),
	}, nil
}

// Invalidate 让会话已缓存的所有页失效；未启用写失效时为空操作
func (s *Service) Invalidate(ctx context.Context, conversationID string) {
	if !s.cfg.InvalidateOnWrite {
		return
	}
	if _, err := s.sf.Incr(ctx, generationKey(conversationID)); err != nil {
		s.log.WarnContext(ctx, "bump history generation failed",
			zap.String("conversation_id", conversationID),
			zap.Error(err))
	}
}

func emptyPage(q Query) Page {
	return Page{Content: []store.Message{}, Page: q.Page, Size: q.Size}
}

func totalPages(total int64, size int) int {
	if size <= 0 || total <= 0 {
		return 0
	}
	return int((total + int64(size) - 1) / int64(size))
}
