package logger

import (
	"fmt"
	"strings"

	"go.uber.org/zap/zapcore"
)

// Level 日志级别，数值与 zapcore.Level 一致
type Level int8

const (
	DebugLevel Level = Level(zapcore.DebugLevel)
	InfoLevel  Level = Level(zapcore.InfoLevel)
	WarnLevel  Level = Level(zapcore.WarnLevel)
	ErrorLevel Level = Level(zapcore.ErrorLevel)
)

func (l Level) String() string { return l.zap().String() }

func (l Level) zap() zapcore.Level { return zapcore.Level(l) }

// ParseLevel 不区分大小写，例如 "debug"、"WARN"
func ParseLevel(s string) (Level, error) {
	var zl zapcore.Level
	if err := zl.UnmarshalText([]byte(strings.ToLower(strings.TrimSpace(s)))); err != nil {
		return InfoLevel, fmt.Errorf("invalid log level %q", s)
	}
	return Level(zl), nil
}
