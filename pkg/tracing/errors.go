package tracing

import "github.com/tokmz/qim/pkg/errors"

var (
	// ErrInvalidConfig 追踪配置无效
	ErrInvalidConfig = errors.New(3201, 500, "tracing config error", nil)
	// ErrExporter 导出器创建失败
	ErrExporter = errors.New(3202, 500, "tracing exporter error", nil)
)
