package config

import "github.com/tokmz/qim/pkg/errors"

// 配置包专用错误定义
var (
	// ErrConfigNotFound 配置文件未找到
	ErrConfigNotFound = errors.New(3101, 500, "配置文件未找到", nil)
	// ErrConfigReadFailed 配置读取失败
	ErrConfigReadFailed = errors.New(3102, 500, "配置读取失败", nil)
	// ErrConfigInvalid 配置校验失败
	ErrConfigInvalid = errors.New(3103, 500, "配置无效", nil)
)
