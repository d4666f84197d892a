package ws

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
)

// Request 一次 SEND 的处理上下文
type Request struct {
	Ctx     context.Context
	Frame   *Frame
	Pattern string
	Params  map[string]string
}

// Param 读取路径参数
func (r *Request) Param(name string) string {
	return r.Params[name]
}

// Handler SEND 处理器
type Handler func(*Session, *Request) error

// NextFunc 中间件下一步函数
type NextFunc func() error

// MiddlewareFunc 中间件函数
type MiddlewareFunc func(*Session, *Request, NextFunc) error

type route struct {
	pattern  string
	segments []string
	handler  Handler
}

// match 逐段匹配，{name} 段捕获为参数
func (rt *route) match(segments []string) (map[string]string, bool) {
	if len(segments) != len(rt.segments) {
		return nil, false
	}
	var params map[string]string
	for i, seg := range rt.segments {
		if strings.HasPrefix(seg, "{") && strings.HasSuffix(seg, "}") {
			if segments[i] == "" {
				return nil, false
			}
			if params == nil {
				params = make(map[string]string, 2)
			}
			params[seg[1:len(seg)-1]] = segments[i]
			continue
		}
		if seg != segments[i] {
			return nil, false
		}
	}
	return params, true
}

// Dispatcher 按应用目的地分发 SEND 帧
type Dispatcher struct {
	routes     []*route
	middleware []MiddlewareFunc
	compiled   []*route // 预编译的处理器链
	mu         sync.RWMutex
	frozen     bool
}

// NewDispatcher 创建分发器
func NewDispatcher() *Dispatcher {
	return &Dispatcher{}
}

// Register 注册处理器，pattern 形如 /app/conversations/{id}/messages
func (d *Dispatcher) Register(pattern string, handler Handler) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.frozen {
		return ErrRouterFrozen
	}
	for _, rt := range d.routes {
		if rt.pattern == pattern {
			return ErrHandlerExists
		}
	}

	d.routes = append(d.routes, &route{
		pattern:  pattern,
		segments: splitPath(pattern),
		handler:  handler,
	})
	return nil
}

// Use 添加中间件
func (d *Dispatcher) Use(middleware ...MiddlewareFunc) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.middleware = append(d.middleware, middleware...)
}

// Freeze 冻结分发器（启动后不可修改）
func (d *Dispatcher) Freeze() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.frozen {
		return
	}
	d.frozen = true

	d.compiled = make([]*route, 0, len(d.routes))
	for _, rt := range d.routes {
		d.compiled = append(d.compiled, &route{
			pattern:  rt.pattern,
			segments: rt.segments,
			handler:  chain(d.middleware, rt.handler),
		})
	}
}

// chain 从后向前构建中间件链
func chain(middleware []MiddlewareFunc, handler Handler) Handler {
	final := handler
	for i := len(middleware) - 1; i >= 0; i-- {
		final = func(mw MiddlewareFunc, next Handler) Handler {
			return func(s *Session, r *Request) error {
				return mw(s, r, func() error {
					return next(s, r)
				})
			}
		}(middleware[i], final)
	}
	return final
}

// Dispatch 查找并执行处理器
func (d *Dispatcher) Dispatch(ctx context.Context, s *Session, f *Frame) error {
	segments := splitPath(f.Destination)

	d.mu.RLock()
	frozen := d.frozen
	routes := d.compiled
	var middleware []MiddlewareFunc
	if !frozen {
		routes = d.routes
		middleware = d.middleware
	}
	d.mu.RUnlock()

	for _, rt := range routes {
		params, ok := rt.match(segments)
		if !ok {
			continue
		}
		handler := rt.handler
		if !frozen {
			// 未冻结时动态构建
			handler = chain(middleware, handler)
		}
		return handler(s, &Request{Ctx: ctx, Frame: f, Pattern: rt.pattern, Params: params})
	}
	return ErrHandlerNotFound
}

func splitPath(p string) []string {
	return strings.Split(strings.Trim(p, "/"), "/")
}

// SendHandlerFunc 泛型处理器（解码帧体）
type SendHandlerFunc[Req any] func(*Session, *Request, *Req) error

// HandleSend 注册泛型处理器，帧体按 JSON 解码到 Req
func HandleSend[Req any](d *Dispatcher, pattern string, handler SendHandlerFunc[Req]) error {
	return d.Register(pattern, func(s *Session, r *Request) error {
		var req Req
		if len(r.Frame.Body) > 0 {
			if err := json.Unmarshal(r.Frame.Body, &req); err != nil {
				return ErrInvalidFrame.WithError(err)
			}
		}
		return handler(s, r, &req)
	})
}
