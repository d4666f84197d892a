package tracing

import (
	"os"
	"strconv"

	"go.opentelemetry.io/otel/sdk/trace"
)

// newSampler 按 SamplingType 选择采样器
// OTEL_TRACES_SAMPLER 存在时以环境变量为准，便于部署时临时调整
func newSampler(cfg *Config) trace.Sampler {
	kind, rate := cfg.SamplingType, cfg.SamplingRate
	if env := os.Getenv("OTEL_TRACES_SAMPLER"); env != "" {
		kind, rate = env, envRatio()
	}

	switch kind {
	case "always", "always_on":
		return trace.AlwaysSample()
	case "never", "always_off":
		return trace.NeverSample()
	case "ratio", "traceidratio":
		return trace.TraceIDRatioBased(rate)
	case "parentbased_always_on":
		return trace.ParentBased(trace.AlwaysSample())
	case "parentbased_always_off":
		return trace.ParentBased(trace.NeverSample())
	default:
		return trace.ParentBased(trace.TraceIDRatioBased(rate))
	}
}

// envRatio OTEL_TRACES_SAMPLER_ARG，缺失或越界时取 1
func envRatio() float64 {
	r, err := strconv.ParseFloat(os.Getenv("OTEL_TRACES_SAMPLER_ARG"), 64)
	if err != nil || r < 0 || r > 1 {
		return 1
	}
	return r
}
