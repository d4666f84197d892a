package logger

import (
	"context"

	"go.opentelemetry.io/otel/trace"
)

type contextKey string

const (
	traceIDKey contextKey = "trace_id"
	uidKey     contextKey = "uid"
)

// WithTraceID 将 TraceID 写入 Context
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey, traceID)
}

// WithUID 将用户 ID 写入 Context
func WithUID(ctx context.Context, uid string) context.Context {
	return context.WithValue(ctx, uidKey, uid)
}

// TraceIDFromContext 获取 TraceID
// 优先使用显式写入的值，其次取 OpenTelemetry Span 的 TraceID
func TraceIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(traceIDKey).(string); ok && v != "" {
		return v
	}
	sc := trace.SpanFromContext(ctx).SpanContext()
	if sc.HasTraceID() {
		return sc.TraceID().String()
	}
	return ""
}

// UIDFromContext 获取用户 ID
func UIDFromContext(ctx context.Context) string {
	v, _ := ctx.Value(uidKey).(string)
	return v
}
