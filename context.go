package qim

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tokmz/qim/pkg/errors"
	"github.com/tokmz/qim/pkg/logger"
)

// Context 包装 gin.Context，统一响应格式
type Context struct {
	ctx *gin.Context
}

func (c *Context) Request() *http.Request     { return c.ctx.Request }
func (c *Context) Writer() gin.ResponseWriter { return c.ctx.Writer }
func (c *Context) Param(key string) string    { return c.ctx.Param(key) }

// FullPath 路由模板，如 /api/messages/:id
func (c *Context) FullPath() string { return c.ctx.FullPath() }

func (c *Context) ShouldBind(obj any) error      { return c.ctx.ShouldBind(obj) }
func (c *Context) ShouldBindQuery(obj any) error { return c.ctx.ShouldBindQuery(obj) }
func (c *Context) ShouldBindUri(obj any) error   { return c.ctx.ShouldBindUri(obj) }

func (c *Context) JSON(code int, obj any)        { c.ctx.JSON(code, obj) }
func (c *Context) Set(key string, value any)     { c.ctx.Set(key, value) }
func (c *Context) Get(key string) (any, bool)    { return c.ctx.Get(key) }
func (c *Context) GetString(key string) string   { return c.ctx.GetString(key) }
func (c *Context) Next()                         { c.ctx.Next() }
func (c *Context) Abort()                        { c.ctx.Abort() }
func (c *Context) AbortWithStatus(code int)      { c.ctx.AbortWithStatus(code) }
func (c *Context) ClientIP() string              { return c.ctx.ClientIP() }
func (c *Context) GetHeader(key string) string   { return c.ctx.GetHeader(key) }
func (c *Context) Header(key, value string)      { c.ctx.Header(key, value) }
func (c *Context) wrapBindError(err error) error { return errors.ErrBadRequest.WithError(err) }

// SetRequestContext 替换请求的 context，追踪中间件注入 span 时使用
func (c *Context) SetRequestContext(ctx context.Context) {
	c.ctx.Request = c.ctx.Request.WithContext(ctx)
}

// Success 200 并包装为统一响应
func (c *Context) Success(data any) {
	c.respond(http.StatusOK, Success(data))
}

// Nil 无数据的成功响应
func (c *Context) Nil() {
	c.Success(nil)
}

// Fail code 落在 4xx/5xx 时同时作为 HTTP 状态码，否则返回 200
func (c *Context) Fail(code int, message string) {
	status := code
	if status < 400 || status > 599 {
		status = http.StatusOK
	}
	c.respond(status, Fail(code, message))
}

// RespondError 业务错误按其 HttpCode 与 Code 输出，其余一律 500
func (c *Context) RespondError(err error) {
	var bizErr *errors.Error
	if errors.As(err, &bizErr) {
		c.respond(bizErr.HttpCode, &Response{Code: bizErr.Code, Message: bizErr.Message})
		return
	}

	message := errors.ErrServer.Message
	if err != nil {
		message = err.Error()
	}
	c.respond(errors.ErrServer.HttpCode, &Response{Code: errors.ErrServer.Code, Message: message})
}

// Page 分页响应
func (c *Context) Page(list any, total int64, page, size int) {
	c.respond(http.StatusOK, Success(NewPageResp(list, total, page, size)))
}

func (c *Context) respond(status int, resp *Response) {
	resp.TraceID = GetContextTraceID(c)
	c.JSON(status, resp)
}

// RequestContext 交给服务层的 context
// trace_id 与 uid 写入 logger 包的 key，服务层 *Context 日志可直接带出
func (c *Context) RequestContext() context.Context {
	ctx := c.ctx.Request.Context()
	if traceID := GetContextTraceID(c); traceID != "" {
		ctx = logger.WithTraceID(ctx, traceID)
	}
	if uid := GetContextUid(c); uid != "" {
		ctx = logger.WithUID(ctx, uid)
	}
	return ctx
}
