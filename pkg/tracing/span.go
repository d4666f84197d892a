package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "qim"

// StartSpan 以全局 TracerProvider 开启内部 span
// 未启用追踪时得到的是 noop span，调用方无需判断
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, name, trace.WithAttributes(attrs...))
}

// RecordError err 非 nil 时记录并把 span 标为失败
func RecordError(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// Finish 记录错误后结束 span，适合 defer 配合具名返回值
//
//	ctx, span := tracing.StartSpan(ctx, "ws.send")
//	defer func() { tracing.Finish(span, err) }()
func Finish(span trace.Span, err error) {
	RecordError(span, err)
	span.End()
}
