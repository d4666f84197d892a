package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/tokmz/qim"
)

// CORSConfig 跨域配置
type CORSConfig struct {
	// AllowOrigins 允许的源，["*"] 表示全部
	// 支持 "https://*.example.com" 形式的单段通配
	AllowOrigins []string

	AllowMethods  []string
	AllowHeaders  []string
	ExposeHeaders []string

	// AllowCredentials 为 true 时 AllowOrigins 不能为 ["*"]
	AllowCredentials bool

	// MaxAge 预检缓存时间
	MaxAge time.Duration
}

// DefaultCORSConfig 允许所有源，放行聊天接口用到的方法与头
func DefaultCORSConfig() *CORSConfig {
	return &CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{
			http.MethodGet,
			http.MethodPost,
			http.MethodPut,
			http.MethodDelete,
			http.MethodOptions,
		},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "Authorization", "traceparent"},
		ExposeHeaders: []string{"traceparent"},
		MaxAge:        12 * time.Hour,
	}
}

// CORSWithOrigins 默认配置，仅替换允许的源；origins 为空时允许全部
func CORSWithOrigins(origins []string) *CORSConfig {
	cfg := DefaultCORSConfig()
	if len(origins) > 0 {
		cfg.AllowOrigins = origins
	}
	return cfg
}

// originMatcher 源匹配
type originMatcher struct {
	any       bool
	exact     map[string]struct{}
	wildcards [][2]string // prefix, suffix
}

func newOriginMatcher(origins []string) *originMatcher {
	m := &originMatcher{exact: make(map[string]struct{})}
	for _, o := range origins {
		switch {
		case o == "*":
			m.any = true
		case strings.Contains(o, "*"):
			parts := strings.SplitN(o, "*", 2)
			m.wildcards = append(m.wildcards, [2]string{parts[0], parts[1]})
		default:
			m.exact[o] = struct{}{}
		}
	}
	return m
}

func (m *originMatcher) match(origin string) bool {
	if m.any {
		return true
	}
	if _, ok := m.exact[origin]; ok {
		return true
	}
	for _, w := range m.wildcards {
		// 通配部分不能为空
		if len(origin) > len(w[0])+len(w[1]) && strings.HasPrefix(origin, w[0]) && strings.HasSuffix(origin, w[1]) {
			return true
		}
	}
	return false
}

// CORS 创建跨域中间件
func CORS(cfgs ...*CORSConfig) qim.HandlerFunc {
	cfg := DefaultCORSConfig()
	if len(cfgs) > 0 && cfgs[0] != nil {
		cfg = cfgs[0]
	}

	matcher := newOriginMatcher(cfg.AllowOrigins)
	if cfg.AllowCredentials && matcher.any {
		panic("qim/middleware: CORS AllowCredentials cannot be used with AllowOrigins [\"*\"]")
	}

	allowMethods := strings.Join(cfg.AllowMethods, ", ")
	allowHeaders := strings.Join(cfg.AllowHeaders, ", ")
	exposeHeaders := strings.Join(cfg.ExposeHeaders, ", ")
	maxAge := strconv.Itoa(int(cfg.MaxAge.Seconds()))

	return func(c *qim.Context) {
		origin := c.GetHeader("Origin")
		if origin == "" || !matcher.match(origin) {
			c.Next()
			return
		}

		if matcher.any {
			c.Header("Access-Control-Allow-Origin", "*")
		} else {
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Vary", "Origin")
		}
		if cfg.AllowCredentials {
			c.Header("Access-Control-Allow-Credentials", "true")
		}
		if exposeHeaders != "" {
			c.Header("Access-Control-Expose-Headers", exposeHeaders)
		}

		if c.Request().Method == http.MethodOptions {
			c.Header("Access-Control-Allow-Methods", allowMethods)
			c.Header("Access-Control-Allow-Headers", allowHeaders)
			c.Header("Access-Control-Max-Age", maxAge)
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
