package tracing

import (
	"fmt"
	"time"
)

// 导出器类型
const (
	ExporterOTLP     = "otlp" // OTLP over HTTP
	ExporterOTLPGRPC = "otlp-grpc"
	ExporterStdout   = "stdout"
	ExporterNoop     = "noop"
)

// Config 链路追踪配置
type Config struct {
	Enabled        bool
	ServiceName    string
	ServiceVersion string
	Environment    string

	ExporterType     string
	ExporterEndpoint string // 为空时由 OTEL_EXPORTER_OTLP_ENDPOINT 决定
	ExporterHeaders  map[string]string
	Insecure         bool

	// SamplingType always / never / ratio / parent_based
	SamplingType string
	SamplingRate float64

	ResourceAttributes map[string]string

	BatchTimeout       time.Duration
	MaxExportBatchSize int
	MaxQueueSize       int
}

// DefaultConfig 输出到 stdout，全量采样
func DefaultConfig() *Config {
	return &Config{
		Enabled:            true,
		ServiceName:        "qim",
		ServiceVersion:     "1.0.0",
		Environment:        "development",
		ExporterType:       ExporterStdout,
		SamplingType:       "parent_based",
		SamplingRate:       1,
		BatchTimeout:       5 * time.Second,
		MaxExportBatchSize: 512,
		MaxQueueSize:       2048,
	}
}

// Validate 校验配置
func (c *Config) Validate() error {
	var err error
	switch {
	case c.ServiceName == "":
		err = fmt.Errorf("service name is required")
	case c.SamplingRate < 0 || c.SamplingRate > 1:
		err = fmt.Errorf("sampling rate %v out of [0, 1]", c.SamplingRate)
	default:
		switch c.ExporterType {
		case ExporterOTLP, ExporterOTLPGRPC, ExporterStdout, ExporterNoop:
		default:
			err = fmt.Errorf("unsupported exporter %q", c.ExporterType)
		}
	}
	if err != nil {
		return ErrInvalidConfig.WithError(err)
	}
	return nil
}
