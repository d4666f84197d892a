package logger

// Format 日志格式
type Format string

const (
	JSONFormat    Format = "json"
	ConsoleFormat Format = "console"
)

// IsValid 是否为支持的格式
func (f Format) IsValid() bool {
	return f == JSONFormat || f == ConsoleFormat
}

// Config 日志配置
type Config struct {
	Level  Level  // 零值即 InfoLevel
	Format Format // 默认 json

	Console bool          // 输出到标准输出
	File    string        // 追加写入的文件，不轮转
	Rotate  *RotateConfig // 轮转文件，nil 则不启用

	// Sampling 非 nil 时按秒采样，WebSocket 帧级日志量大时使用
	Sampling *SamplingConfig

	EnableCaller     bool
	EnableStacktrace bool // Error 及以上记录堆栈
}

// RotateConfig lumberjack 轮转参数
type RotateConfig struct {
	Filename   string
	MaxSize    int // MB，默认 100
	MaxAge     int // 天，默认 30
	MaxBackups int // 默认 10
	LocalTime  bool
	Compress   bool
}

// SamplingConfig 每秒前 Initial 条全部记录，之后每 Thereafter 条记录一条
type SamplingConfig struct {
	Initial    int
	Thereafter int
}

func (c *Config) setDefaults() {
	if c.Format == "" {
		c.Format = JSONFormat
	}
	// 没有任何输出时退回控制台
	if !c.Console && c.File == "" && c.Rotate == nil {
		c.Console = true
	}
	if r := c.Rotate; r != nil {
		if r.MaxSize == 0 {
			r.MaxSize = 100
		}
		if r.MaxAge == 0 {
			r.MaxAge = 30
		}
		if r.MaxBackups == 0 {
			r.MaxBackups = 10
		}
	}
	if s := c.Sampling; s != nil {
		if s.Initial == 0 {
			s.Initial = 100
		}
		if s.Thereafter == 0 {
			s.Thereafter = 100
		}
	}
}
