package cache

import (
	"fmt"
	"time"
)

// DriverType 驱动类型
type DriverType string

const (
	DriverRedis  DriverType = "redis"
	DriverMemory DriverType = "memory"
)

// RedisMode Redis 部署模式
type RedisMode string

const (
	RedisStandalone RedisMode = "single"
	RedisCluster    RedisMode = "cluster"
	RedisSentinel   RedisMode = "sentinel"
)

// Config 缓存配置
type Config struct {
	Driver     DriverType
	Redis      *RedisConfig
	Memory     *MemoryConfig
	Serializer Serializer
	KeyPrefix  string
	DefaultTTL time.Duration // Set 传入 0 时使用
}

// RedisConfig Redis 连接配置
// 单机模式用 Addr，集群与哨兵模式用 Addrs
type RedisConfig struct {
	Mode         RedisMode
	Addr         string
	Addrs        []string
	MasterName   string
	Username     string
	Password     string
	DB           int
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// MemoryConfig 内存驱动配置
type MemoryConfig struct {
	// SweepInterval 两次清扫之间的最短间隔
	// 清扫由最早到期的条目驱动，该值只用于合并相邻到期时间
	SweepInterval time.Duration
	// MaxEntries 0 表示不限制，超出时淘汰最早到期的条目
	MaxEntries int
}

// DefaultConfig 默认使用内存驱动
func DefaultConfig() *Config {
	return &Config{
		Driver:     DriverMemory,
		Serializer: JSONSerializer{},
		DefaultTTL: 10 * time.Minute,
		Memory:     DefaultMemoryConfig(),
	}
}

// DefaultRedisConfig 本机单实例
func DefaultRedisConfig() *RedisConfig {
	return &RedisConfig{
		Mode:         RedisStandalone,
		Addr:         "localhost:6379",
		PoolSize:     10,
		MinIdleConns: 2,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	}
}

// DefaultMemoryConfig 默认内存驱动配置
func DefaultMemoryConfig() *MemoryConfig {
	return &MemoryConfig{SweepInterval: time.Second}
}

// Option 配置选项
type Option func(*Config)

// WithRedis 使用 Redis 驱动
func WithRedis(cfg *RedisConfig) Option {
	return func(c *Config) { c.Driver, c.Redis = DriverRedis, cfg }
}

// WithMemory 使用内存驱动
func WithMemory(cfg *MemoryConfig) Option {
	return func(c *Config) { c.Driver, c.Memory = DriverMemory, cfg }
}

func WithSerializer(s Serializer) Option {
	return func(c *Config) { c.Serializer = s }
}

// WithKeyPrefix 所有键加统一前缀，多个服务共用 Redis 时避免冲突
func WithKeyPrefix(prefix string) Option {
	return func(c *Config) { c.KeyPrefix = prefix }
}

func WithDefaultTTL(ttl time.Duration) Option {
	return func(c *Config) { c.DefaultTTL = ttl }
}

func buildConfig(opts []Option) *Config {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.Serializer == nil {
		cfg.Serializer = JSONSerializer{}
	}
	return cfg
}

// New 按配置创建缓存，nil 使用默认配置
func New(cfg *Config) (Cache, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.Serializer == nil {
		cfg.Serializer = JSONSerializer{}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Driver == DriverRedis {
		return newRedisCache(cfg)
	}
	return newMemoryCache(cfg, time.Now), nil
}

// NewWithOptions 以选项创建缓存
func NewWithOptions(opts ...Option) (Cache, error) {
	return New(buildConfig(opts))
}

// Validate 校验驱动及其配置
func (c *Config) Validate() error {
	switch {
	case c.Driver == DriverMemory && c.Memory == nil:
		return invalidConfig("memory config is required")
	case c.Driver == DriverRedis && c.Redis == nil:
		return invalidConfig("redis config is required")
	case c.Driver == DriverRedis:
		return c.Redis.Validate()
	case c.Driver != DriverMemory:
		return invalidConfig("unsupported driver %q", c.Driver)
	}
	return nil
}

// Validate 校验各模式必需的地址
func (r *RedisConfig) Validate() error {
	switch r.Mode {
	case RedisStandalone, "":
		if r.Addr == "" {
			return invalidConfig("single mode requires addr")
		}
	case RedisCluster:
		if len(r.Addrs) == 0 {
			return invalidConfig("cluster mode requires addrs")
		}
	case RedisSentinel:
		if len(r.Addrs) == 0 || r.MasterName == "" {
			return invalidConfig("sentinel mode requires addrs and master name")
		}
	default:
		return invalidConfig("unknown redis mode %q", r.Mode)
	}
	return nil
}

func invalidConfig(format string, args ...any) error {
	return ErrCacheInvalidConfig.WithError(fmt.Errorf(format, args...))
}
