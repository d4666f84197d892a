package qim

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// HandlerFunc 处理函数与中间件共用的签名，中间件调用 c.Next() 继续
type HandlerFunc func(*Context)

func wrap(fn HandlerFunc) gin.HandlerFunc {
	if fn == nil {
		panic("qim: nil handler")
	}
	return func(c *gin.Context) { fn(&Context{ctx: c}) }
}

func wrapAll(fns ...HandlerFunc) []gin.HandlerFunc {
	out := make([]gin.HandlerFunc, len(fns))
	for i, fn := range fns {
		out[i] = wrap(fn)
	}
	return out
}

// RouterGroup 路由组
type RouterGroup struct {
	group *gin.RouterGroup
}

// Group 创建子路由组
func (rg *RouterGroup) Group(path string, middlewares ...HandlerFunc) *RouterGroup {
	return &RouterGroup{group: rg.group.Group(path, wrapAll(middlewares...)...)}
}

// Use 注册中间件
func (rg *RouterGroup) Use(middlewares ...HandlerFunc) {
	rg.group.Use(wrapAll(middlewares...)...)
}

// handle 路由级中间件先于处理函数执行
func (rg *RouterGroup) handle(method, path string, handler HandlerFunc, middlewares []HandlerFunc) {
	rg.group.Handle(method, path, append(wrapAll(middlewares...), wrap(handler))...)
}

func (rg *RouterGroup) GET(path string, handler HandlerFunc, middlewares ...HandlerFunc) {
	rg.handle(http.MethodGet, path, handler, middlewares)
}

func (rg *RouterGroup) POST(path string, handler HandlerFunc, middlewares ...HandlerFunc) {
	rg.handle(http.MethodPost, path, handler, middlewares)
}

func (rg *RouterGroup) PUT(path string, handler HandlerFunc, middlewares ...HandlerFunc) {
	rg.handle(http.MethodPut, path, handler, middlewares)
}

func (rg *RouterGroup) DELETE(path string, handler HandlerFunc, middlewares ...HandlerFunc) {
	rg.handle(http.MethodDelete, path, handler, middlewares)
}

// RouteRegister 即 rg.GET、rg.POST 等方法值
type RouteRegister func(path string, handler HandlerFunc, middlewares ...HandlerFunc)

// Handle 绑定请求参数并以 data 返回处理结果
//
//	qim.Handle[CreateReq, Conversation](g.POST, "", h.create)
func Handle[Req, Resp any](register RouteRegister, path string, handler func(*Context, *Req) (*Resp, error), middlewares ...HandlerFunc) {
	register(path, func(c *Context) {
		if req, ok := bind[Req](c); ok {
			resp, err := handler(c, req)
			reply(c, resp, err)
		}
	}, middlewares...)
}

// Handle0 绑定请求参数，成功时 data 为 null
func Handle0[Req any](register RouteRegister, path string, handler func(*Context, *Req) error, middlewares ...HandlerFunc) {
	register(path, func(c *Context) {
		if req, ok := bind[Req](c); ok {
			reply[struct{}](c, nil, handler(c, req))
		}
	}, middlewares...)
}

// HandleOnly 无请求参数
func HandleOnly[Resp any](register RouteRegister, path string, handler func(*Context) (*Resp, error), middlewares ...HandlerFunc) {
	register(path, func(c *Context) {
		resp, err := handler(c)
		reply(c, resp, err)
	}, middlewares...)
}

func bind[Req any](c *Context) (*Req, bool) {
	req := new(Req)
	if err := autoBind(c, req); err != nil {
		c.RespondError(err)
		return nil, false
	}
	return req, true
}

func reply[T any](c *Context, data *T, err error) {
	switch {
	case err != nil:
		c.RespondError(err)
	case data == nil:
		c.Nil()
	default:
		c.Success(data)
	}
}

// autoBind GET/DELETE 绑定查询参数，其余方法按 Content-Type 绑定非空请求体
// 最后尝试绑定路径参数
func autoBind(c *Context, obj any) error {
	var err error
	switch req := c.Request(); req.Method {
	case http.MethodGet, http.MethodDelete:
		err = c.ShouldBindQuery(obj)
	default:
		if req.ContentLength != 0 {
			err = c.ShouldBind(obj)
		}
	}
	if err != nil {
		return c.wrapBindError(err)
	}
	// 路由可能没有 URI 参数
	_ = c.ShouldBindUri(obj)
	return nil
}
