package config

import (
	"fmt"
	"strings"
	"sync"

	"github.com/spf13/viper"

	"github.com/tokmz/qim/pkg/errors"
)

// Config viper 的并发安全封装
// 优先级：Set > 环境变量 > 配置文件 > 默认值
type Config struct {
	viper *viper.Viper
	mu    sync.RWMutex

	configFile  string
	configName  string
	configType  string
	configPaths []string
	optional    bool // 按名称搜索不到文件时不报错

	watching   bool
	registered bool
	onChange func()
	onError  func(error)

	defaults       map[string]any
	envPrefix      string
	envKeyReplacer *strings.Replacer
}

// Option 配置选项
type Option func(*Config)

// WithConfigFile 配置文件完整路径，优先于按名称搜索
func WithConfigFile(path string) Option {
	return func(c *Config) { c.configFile = path }
}

// WithConfigName 按名称在 WithConfigPaths 给出的目录中搜索，不含扩展名
func WithConfigName(name string) Option {
	return func(c *Config) { c.configName = name }
}

func WithConfigType(typ string) Option {
	return func(c *Config) { c.configType = typ }
}

func WithConfigPaths(paths ...string) Option {
	return func(c *Config) { c.configPaths = paths }
}

func WithOptional(optional bool) Option {
	return func(c *Config) { c.optional = optional }
}

// WithOnError 热更新失败时回调，未设置时写 stderr
func WithOnError(fn func(error)) Option {
	return func(c *Config) { c.onError = fn }
}

func WithDefaults(defaults map[string]any) Option {
	return func(c *Config) { c.defaults = defaults }
}

func WithEnvPrefix(prefix string) Option {
	return func(c *Config) { c.envPrefix = prefix }
}

func WithEnvKeyReplacer(r *strings.Replacer) Option {
	return func(c *Config) { c.envKeyReplacer = r }
}

// New 创建配置管理器，调用 Load 后生效
func New(opts ...Option) *Config {
	c := &Config{viper: viper.New()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Load 读取默认值、环境变量与配置文件
// 既没有文件路径也没有文件名时只用默认值和环境变量
func (c *Config) Load() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for k, v := range c.defaults {
		c.viper.SetDefault(k, v)
	}
	if c.envPrefix != "" {
		c.viper.SetEnvPrefix(c.envPrefix)
		c.viper.AutomaticEnv()
	}
	if c.envKeyReplacer != nil {
		c.viper.SetEnvKeyReplacer(c.envKeyReplacer)
	}

	switch {
	case c.configFile != "":
		c.viper.SetConfigFile(c.configFile)
	case c.configName != "":
		c.viper.SetConfigName(c.configName)
		if c.configType != "" {
			c.viper.SetConfigType(c.configType)
		}
		for _, path := range c.configPaths {
			c.viper.AddConfigPath(path)
		}
	default:
		return nil
	}

	if err := c.viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			if c.optional {
				return nil
			}
			return ErrConfigNotFound.WithError(err)
		}
		return ErrConfigReadFailed.WithError(err)
	}
	return nil
}

// GetString 单个键的当前值
func (c *Config) GetString(key string) string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.viper.GetString(key)
}

// Set 运行期覆盖，优先级最高
func (c *Config) Set(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.viper.Set(key, value)
}

// AllSettings 合并后的全部配置，qim config 命令原样输出
func (c *Config) AllSettings() map[string]any {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.viper.AllSettings()
}

// Unmarshal 解码到结构体，时长字符串按 time.Duration 解析
func (c *Config) Unmarshal(rawVal any) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if err := c.viper.Unmarshal(rawVal); err != nil {
		return ErrConfigInvalid.WithError(fmt.Errorf("unmarshal: %w", err))
	}
	return nil
}

// ConfigFileUsed 实际读取的文件，未读取时为空
func (c *Config) ConfigFileUsed() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.viper.ConfigFileUsed()
}

// OnError 替换热更新失败回调
func (c *Config) OnError(fn func(error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onError = fn
}

// Close 停止监控
func (c *Config) Close() {
	c.StopWatch()
}
