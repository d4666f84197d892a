package config

import (
	"fmt"
	"os"

	"github.com/fsnotify/fsnotify"
)

// StartWatch 监控配置文件，未读取文件时什么也不做
// viper 的 fsnotify watcher 无法停止，只在首次调用时注册一次
func (c *Config) StartWatch() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.viper.ConfigFileUsed() == "" {
		return
	}
	if !c.registered {
		c.viper.OnConfigChange(c.handleChange)
		c.viper.WatchConfig()
		c.registered = true
	}
	c.watching = true
}

// StopWatch 停止触发变更回调
func (c *Config) StopWatch() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.watching = false
}

// IsWatching 是否正在监控
func (c *Config) IsWatching() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.watching
}

func (c *Config) handleChange(e fsnotify.Event) {
	c.mu.RLock()
	watching, onChange := c.watching, c.onChange
	c.mu.RUnlock()

	if !watching || onChange == nil {
		return
	}
	// 编辑器常以重命名替换文件，三种事件都视为变更
	if e.Has(fsnotify.Write) || e.Has(fsnotify.Create) || e.Has(fsnotify.Rename) {
		onChange()
	}
}

func (c *Config) reportError(err error) {
	c.mu.RLock()
	onError := c.onError
	c.mu.RUnlock()

	if onError != nil {
		onError(err)
		return
	}
	fmt.Fprintf(os.Stderr, "[config] %v\n", err)
}
