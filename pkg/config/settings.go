package config

import (
	"fmt"
	"strings"
	"time"
)

// Settings 服务端完整配置
type Settings struct {
	Server    ServerSettings    `mapstructure:"server"`
	Log       LogSettings       `mapstructure:"log"`
	Auth      AuthSettings      `mapstructure:"auth"`
	WS        WSSettings        `mapstructure:"ws"`
	Broker    BrokerSettings    `mapstructure:"broker"`
	History   HistorySettings   `mapstructure:"history"`
	Cache     CacheSettings     `mapstructure:"cache"`
	Store     StoreSettings     `mapstructure:"store"`
	Tracing   TracingSettings   `mapstructure:"tracing"`
	RateLimit RateLimitSettings `mapstructure:"ratelimit"`
	Jobs      JobsSettings      `mapstructure:"jobs"`
}

// ServerSettings HTTP 服务配置
type ServerSettings struct {
	Addr            string        `mapstructure:"addr"`
	Mode            string        `mapstructure:"mode"` // debug / release / test
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	TrustedProxies  []string      `mapstructure:"trusted_proxies"`
	CORSOrigins     []string      `mapstructure:"cors_origins"`
}

// LogSettings 日志配置
type LogSettings struct {
	Level  string         `mapstructure:"level"`
	Format string         `mapstructure:"format"`
	File   string         `mapstructure:"file"`
	Rotate RotateSettings `mapstructure:"rotate"`
	// Sampling 开启后同一条日志每秒只完整记录前 100 条
	Sampling bool `mapstructure:"sampling"`
}

// RotateSettings 日志轮转，Filename 为空时不启用
type RotateSettings struct {
	Filename   string `mapstructure:"filename"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxAge     int    `mapstructure:"max_age"`
	MaxBackups int    `mapstructure:"max_backups"`
	Compress   bool   `mapstructure:"compress"`
}

// AuthSettings 令牌签发与校验
type AuthSettings struct {
	Secret   string        `mapstructure:"secret"`
	Issuer   string        `mapstructure:"issuer"`
	TokenTTL time.Duration `mapstructure:"token_ttl"`
}

// WSSettings 实时连接配置
type WSSettings struct {
	Path               string        `mapstructure:"path"`
	MaxConnections     int64         `mapstructure:"max_connections"`
	MaxMessageSize     int64         `mapstructure:"max_message_size"`
	SendQueueSize      int           `mapstructure:"send_queue_size"`
	HeartbeatInterval  time.Duration `mapstructure:"heartbeat_interval"`
	HeartbeatTimeout   time.Duration `mapstructure:"heartbeat_timeout"`
	AnonymousPolicy    string        `mapstructure:"anonymous_policy"`     // deny / public / reject
	SlowConsumerPolicy string        `mapstructure:"slow_consumer_policy"` // drop / disconnect
	AllowedOrigins     []string      `mapstructure:"allowed_origins"`
}

// BrokerSettings 跨节点转发
type BrokerSettings struct {
	Relay   string `mapstructure:"relay"` // none / redis
	Channel string `mapstructure:"channel"`
}

// HistorySettings 历史消息缓存
type HistorySettings struct {
	MaxPageSize       int           `mapstructure:"max_page_size"`
	TTL               time.Duration `mapstructure:"ttl"`
	InvalidateOnWrite bool          `mapstructure:"invalidate_on_write"`
}

// CacheSettings 缓存后端
type CacheSettings struct {
	Driver        string        `mapstructure:"driver"` // memory / redis
	KeyPrefix     string        `mapstructure:"key_prefix"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
	Tracing       bool          `mapstructure:"tracing"`
	Redis         RedisSettings `mapstructure:"redis"`
}

// RedisSettings Redis 连接，缓存与集群转发共用
type RedisSettings struct {
	Mode       string   `mapstructure:"mode"` // single / cluster / sentinel
	Addr       string   `mapstructure:"addr"`
	Addrs      []string `mapstructure:"addrs"`
	MasterName string   `mapstructure:"master_name"`
	Password   string   `mapstructure:"password"`
	DB         int      `mapstructure:"db"`
	PoolSize   int      `mapstructure:"pool_size"`
}

// StoreSettings 持久化
type StoreSettings struct {
	Driver      string   `mapstructure:"driver"` // memory / sqlite / mysql / postgres / sqlserver
	DSN         string   `mapstructure:"dsn"`
	Replicas    []string `mapstructure:"replicas"`
	LogLevel    string   `mapstructure:"log_level"`
	AutoMigrate bool     `mapstructure:"auto_migrate"`
	Tracing     bool     `mapstructure:"tracing"`
}

// TracingSettings 链路追踪
type TracingSettings struct {
	Enabled      bool    `mapstructure:"enabled"`
	ServiceName  string  `mapstructure:"service_name"`
	Exporter     string  `mapstructure:"exporter"` // stdout / otlp / otlp-grpc / noop
	Endpoint     string  `mapstructure:"endpoint"`
	Insecure     bool    `mapstructure:"insecure"`
	SamplingRate float64 `mapstructure:"sampling_rate"`
}

// RateLimitSettings REST 接口限流
type RateLimitSettings struct {
	Enabled           bool    `mapstructure:"enabled"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

// JobsSettings 定时任务，cron 表达式带秒字段，为空时不调度
type JobsSettings struct {
	StatsReport string `mapstructure:"stats_report"`
}

// Defaults 默认配置
// 时长用字符串表示，便于 AllSettings 原样输出
func Defaults() map[string]any {
	return map[string]any{
		"server.addr":             ":8080",
		"server.mode":             "release",
		"server.read_timeout":     "15s",
		"server.write_timeout":    "15s",
		"server.idle_timeout":     "60s",
		"server.shutdown_timeout": "10s",
		"server.trusted_proxies":  []string{},
		"server.cors_origins":     []string{"*"},

		"log.level":              "info",
		"log.format":             "json",
		"log.file":               "",
		"log.sampling":           false,
		"log.rotate.filename":    "",
		"log.rotate.max_size":    100,
		"log.rotate.max_age":     30,
		"log.rotate.max_backups": 10,
		"log.rotate.compress":    false,

		"auth.secret":    "qim-dev-secret-change-me",
		"auth.issuer":    "qim",
		"auth.token_ttl": "24h",

		"ws.path":                 "/ws/connect",
		"ws.max_connections":      10000,
		"ws.max_message_size":     64 * 1024,
		"ws.send_queue_size":      256,
		"ws.heartbeat_interval":   "30s",
		"ws.heartbeat_timeout":    "60s",
		"ws.anonymous_policy":     "deny",
		"ws.slow_consumer_policy": "drop",
		"ws.allowed_origins":      []string{},

		"broker.relay":   "none",
		"broker.channel": "qim:broadcast",

		"history.max_page_size":       15,
		"history.ttl":                 "30s",
		"history.invalidate_on_write": false,

		"cache.driver":            "memory",
		"cache.key_prefix":        "qim:",
		"cache.sweep_interval":    "1s",
		"cache.tracing":           false,
		"cache.redis.mode":        "single",
		"cache.redis.addr":        "127.0.0.1:6379",
		"cache.redis.addrs":       []string{},
		"cache.redis.master_name": "",
		"cache.redis.password":    "",
		"cache.redis.db":          0,
		"cache.redis.pool_size":   10,

		"store.driver":       "memory",
		"store.dsn":          "",
		"store.replicas":     []string{},
		"store.log_level":    "warn",
		"store.auto_migrate": true,
		"store.tracing":      false,

		"tracing.enabled":       false,
		"tracing.service_name":  "qim",
		"tracing.exporter":      "stdout",
		"tracing.endpoint":      "",
		"tracing.insecure":      true,
		"tracing.sampling_rate": 1.0,

		"ratelimit.enabled":             false,
		"ratelimit.requests_per_second": 20.0,
		"ratelimit.burst":               40,

		"jobs.stats_report": "0 */5 * * * *",
	}
}

// Validate 校验配置
func (s *Settings) Validate() error {
	var problems []string
	check := func(ok bool, format string, args ...any) {
		if !ok {
			problems = append(problems, fmt.Sprintf(format, args...))
		}
	}

	check(s.Server.Addr != "", "server.addr is required")
	check(s.Auth.Secret != "", "auth.secret is required")
	check(s.Auth.TokenTTL > 0, "auth.token_ttl must be positive")
	check(oneOf(s.WS.AnonymousPolicy, "deny", "public", "reject"), "ws.anonymous_policy %q is not one of deny/public/reject", s.WS.AnonymousPolicy)
	check(oneOf(s.WS.SlowConsumerPolicy, "drop", "disconnect"), "ws.slow_consumer_policy %q is not one of drop/disconnect", s.WS.SlowConsumerPolicy)
	check(s.WS.SendQueueSize > 0, "ws.send_queue_size must be positive")
	check(oneOf(s.Broker.Relay, "none", "redis"), "broker.relay %q is not one of none/redis", s.Broker.Relay)
	check(s.History.MaxPageSize > 0, "history.max_page_size must be positive")
	check(s.History.TTL > 0, "history.ttl must be positive")
	check(oneOf(s.Cache.Driver, "memory", "redis"), "cache.driver %q is not one of memory/redis", s.Cache.Driver)
	check(oneOf(s.Store.Driver, "memory", "sqlite", "mysql", "postgres", "sqlserver"), "store.driver %q is not supported", s.Store.Driver)
	check(s.Store.Driver == "memory" || s.Store.DSN != "", "store.dsn is required for driver %q", s.Store.Driver)
	check(!s.Tracing.Enabled || oneOf(s.Tracing.Exporter, "stdout", "otlp", "otlp-grpc", "noop"), "tracing.exporter %q is not supported", s.Tracing.Exporter)

	if len(problems) > 0 {
		return ErrConfigInvalid.WithError(fmt.Errorf("%s", strings.Join(problems, "; ")))
	}
	return nil
}

func oneOf(v string, options ...string) bool {
	for _, o := range options {
		if strings.EqualFold(v, o) {
			return true
		}
	}
	return false
}

// Load 读取配置文件与 QIM_ 前缀的环境变量
// path 为空时在 ./configs 与当前目录搜索 config.yaml，找不到只用默认值
func Load(path string, opts ...Option) (*Config, *Settings, error) {
	base := []Option{
		WithDefaults(Defaults()),
		WithEnvPrefix("QIM"),
		WithEnvKeyReplacer(strings.NewReplacer(".", "_")),
	}
	if path != "" {
		base = append(base, WithConfigFile(path))
	} else {
		base = append(base,
			WithConfigName("config"),
			WithConfigType("yaml"),
			WithConfigPaths("./configs", "."),
			WithOptional(true),
		)
	}
	c := New(append(base, opts...)...)

	if err := c.Load(); err != nil {
		return nil, nil, err
	}

	s, err := c.Settings()
	if err != nil {
		return nil, nil, err
	}
	return c, s, nil
}

// Settings 解析并校验当前配置
func (c *Config) Settings() (*Settings, error) {
	var s Settings
	if err := c.Unmarshal(&s); err != nil {
		return nil, err
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Watch 监听配置文件，变更且校验通过后回调
// 校验失败的修改会被报告并忽略，继续使用上一次的配置
func (c *Config) Watch(fn func(*Settings)) {
	c.mu.Lock()
	c.onChange = func() {
		s, err := c.Settings()
		if err != nil {
			c.reportError(fmt.Errorf("reload: %w", err))
			return
		}
		fn(s)
	}
	c.mu.Unlock()
	c.StartWatch()
}
