package middleware

import (
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/tokmz/qim"
)

const httpTracerName = "qim.http"

// Tracing 为每个请求创建 Server Span
// 沿用上游 traceparent，TraceID 写入响应体，skip 中的路径不追踪
func Tracing(skip ...string) qim.HandlerFunc {
	skipped := make(map[string]struct{}, len(skip))
	for _, p := range skip {
		skipped[p] = struct{}{}
	}

	return func(c *qim.Context) {
		req := c.Request()
		if _, ok := skipped[req.URL.Path]; ok {
			c.Next()
			return
		}

		// 每次请求取全局 provider，晚于中间件安装的 provider 也能生效
		prop := otel.GetTextMapPropagator()
		ctx := prop.Extract(req.Context(), propagation.HeaderCarrier(req.Header))

		route := c.FullPath()
		attrs := []attribute.KeyValue{
			semconv.HTTPRequestMethodKey.String(req.Method),
			semconv.URLPath(req.URL.Path),
			semconv.ServerAddress(req.Host),
			semconv.UserAgentOriginal(req.UserAgent()),
			semconv.ClientAddress(c.ClientIP()),
		}
		if route != "" {
			attrs = append(attrs, semconv.HTTPRoute(route))
		} else {
			route = req.URL.Path
		}

		ctx, span := otel.Tracer(httpTracerName).Start(ctx, req.Method+" "+route,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(attrs...),
		)
		defer span.End()

		if sc := span.SpanContext(); sc.HasTraceID() {
			qim.SetContextTraceID(c, sc.TraceID().String())
		}
		c.SetRequestContext(ctx)
		prop.Inject(ctx, propagation.HeaderCarrier(c.Writer().Header()))

		c.Next()

		status := c.Writer().Status()
		span.SetAttributes(semconv.HTTPResponseStatusCode(status))
		if uid := qim.GetContextUid(c); uid != "" {
			span.SetAttributes(attribute.String("enduser.id", uid))
		}
		if status >= http.StatusInternalServerError {
			span.SetStatus(codes.Error, http.StatusText(status))
		}
	}
}
