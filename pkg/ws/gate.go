package ws

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/tokmz/qim/pkg/logger"
)

const bearerPrefix = "Bearer "

// Authenticator 凭证校验
type Authenticator interface {
	Verify(ctx context.Context, credential string) (*Principal, error)
}

// AuthenticatorFunc 函数适配
type AuthenticatorFunc func(ctx context.Context, credential string) (*Principal, error)

// Verify 实现 Authenticator
func (f AuthenticatorFunc) Verify(ctx context.Context, credential string) (*Principal, error) {
	return f(ctx, credential)
}

// AnonymousPolicy 未认证会话的处理方式
type AnonymousPolicy string

const (
	// AnonymousDeny 保持连接，但拒绝一切订阅与发送
	AnonymousDeny AnonymousPolicy = "deny"
	// AnonymousPublic 允许订阅会话主题，不可订阅用户队列，不可发送
	AnonymousPublic AnonymousPolicy = "public"
	// AnonymousReject 握手阶段直接拒绝并断开
	AnonymousReject AnonymousPolicy = "reject"
)

// ParseAnonymousPolicy 解析匿名策略，空串为 deny
func ParseAnonymousPolicy(s string) (AnonymousPolicy, error) {
	switch p := AnonymousPolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case "", AnonymousDeny:
		return AnonymousDeny, nil
	case AnonymousPublic, AnonymousReject:
		return p, nil
	}
	return "", ErrInvalidConfig.WithMessage(fmt.Sprintf("ws: unknown anonymous policy %q", s))
}

// SubscriptionGuard 订阅前的业务校验（例如会话成员资格）
// 只对已认证会话调用
type SubscriptionGuard func(ctx context.Context, p *Principal, dest Destination) error

// Gate 连接闸门
// 只检查 CONNECT 帧；其余帧原样放行，由 Authorize* 按策略决定能否订阅或发送
type Gate struct {
	auth    Authenticator
	policy  atomic.Value // AnonymousPolicy
	guard   atomic.Pointer[SubscriptionGuard]
	metrics Metrics
	log     logger.Logger
}

// NewGate 创建闸门
func NewGate(auth Authenticator, policy AnonymousPolicy, log logger.Logger) *Gate {
	if log == nil {
		log = logger.NewNop()
	}
	g := &Gate{auth: auth, metrics: &NoopMetrics{}, log: log}
	g.policy.Store(policy)
	return g
}

// SetMetrics 设置认证失败计数，须在处理连接前调用
func (g *Gate) SetMetrics(m Metrics) {
	if m == nil {
		m = &NoopMetrics{}
	}
	g.metrics = m
}

// SetPolicy 运行期切换匿名策略（配置热更新）
func (g *Gate) SetPolicy(p AnonymousPolicy) {
	g.policy.Store(p)
}

// Policy 当前匿名策略
func (g *Gate) Policy() AnonymousPolicy {
	return g.policy.Load().(AnonymousPolicy)
}

// SetGuard 设置订阅校验
func (g *Gate) SetGuard(guard SubscriptionGuard) {
	g.guard.Store(&guard)
}

// Admit 处理入站帧
// CONNECT 时至多调用一次 Authenticator；校验失败只记录日志，帧照常放行，会话按匿名处理
func (g *Gate) Admit(ctx context.Context, s *Session, f *Frame) error {
	if f.Command != CommandConnect {
		return nil
	}
	if s.State() != StateConnecting {
		return ErrAlreadyConnected
	}

	var p *Principal
	if header, ok := f.Header(HeaderAuthorization); ok && strings.HasPrefix(header, bearerPrefix) {
		principal, err := g.auth.Verify(ctx, strings.TrimPrefix(header, bearerPrefix))
		if err != nil {
			g.metrics.IncrementAuthFailures()
			g.log.Warn("credential rejected", zap.String("session_id", s.ID()), zap.Error(err))
		} else {
			p = principal
		}
	}

	if p == nil && g.Policy() == AnonymousReject {
		return ErrUnauthenticated
	}
	if _, ok := s.transition(p); !ok {
		return ErrAlreadyConnected
	}
	return nil
}

// AuthorizeSubscribe 订阅授权
func (g *Gate) AuthorizeSubscribe(ctx context.Context, s *Session, dest Destination) error {
	switch s.State() {
	case StateConnecting:
		return ErrNotConnected
	case StateDisconnected:
		return ErrConnectionClosed
	}

	p := s.Principal()
	if p == nil {
		if g.Policy() == AnonymousPublic && dest.IsConversation() {
			return nil
		}
		return ErrUnauthenticated
	}

	if dest.IsUserQueue() && dest.ID() != p.UserID {
		return ErrForbidden
	}
	if guard := g.guard.Load(); guard != nil && *guard != nil {
		return (*guard)(ctx, p, dest)
	}
	return nil
}

// AuthorizeSend 发送授权，匿名会话在任何策略下都不能发送
func (g *Gate) AuthorizeSend(s *Session) error {
	switch s.State() {
	case StateConnecting:
		return ErrNotConnected
	case StateDisconnected:
		return ErrConnectionClosed
	}
	if s.Principal() == nil {
		return ErrUnauthenticated
	}
	return nil
}
