package qim

import "github.com/tokmz/qim/pkg/ws"

const (
	// ContextTraceIDKey 链路追踪trace_id键
	ContextTraceIDKey = "trace_id"
	// ContextUidKey 用户uid键
	ContextUidKey = "uid"
	// ContextPrincipalKey 已认证主体键
	ContextPrincipalKey = "principal"
)

// GetContextTraceID 获取上下文链路追踪trace_id
func GetContextTraceID(ctx *Context) string {
	return ctx.GetString(ContextTraceIDKey)
}

// SetContextTraceID 设置上下文链路追踪trace_id
func SetContextTraceID(ctx *Context, traceID string) {
	ctx.Set(ContextTraceIDKey, traceID)
}

// GetContextUid 获取上下文用户uid
func GetContextUid(ctx *Context) string {
	return ctx.GetString(ContextUidKey)
}

// SetContextUid 设置上下文用户uid
func SetContextUid(ctx *Context, uid string) {
	ctx.Set(ContextUidKey, uid)
}

// GetContextPrincipal 获取已认证主体，未认证时返回 nil
func GetContextPrincipal(ctx *Context) *ws.Principal {
	v, ok := ctx.Get(ContextPrincipalKey)
	if !ok {
		return nil
	}
	p, _ := v.(*ws.Principal)
	return p
}

// SetContextPrincipal 设置已认证主体，同时写入 uid
func SetContextPrincipal(ctx *Context, p *ws.Principal) {
	if p == nil {
		return
	}
	ctx.Set(ContextPrincipalKey, p)
	SetContextUid(ctx, p.UserID)
}
