package tracing

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestConfigValidate(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	cfg.ExporterType = "zipkin"
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.SamplingRate = 2
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.ServiceName = ""
	assert.Error(t, cfg.Validate())
}

func TestNewTracerProviderDisabled(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Enabled = false

	tp, err := NewTracerProvider(context.Background(), cfg)
	require.NoError(t, err)
	defer tp.Shutdown(context.Background())

	ctx, span := StartSpan(context.Background(), "history.load", attribute.String("conversation.id", "c1"))
	RecordError(span, nil)
	Finish(span, errors.New("boom"))

	assert.True(t, span.SpanContext().IsValid())
	assert.NotNil(t, ctx)
}

func TestFinishRecordsError(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	defer otel.SetTracerProvider(prev)

	_, ok := StartSpan(context.Background(), "ok")
	Finish(ok, nil)
	_, failed := StartSpan(context.Background(), "failed", attribute.Int("page", 2))
	Finish(failed, errors.New("store down"))

	spans := rec.Ended()
	require.Len(t, spans, 2)
	assert.Equal(t, codes.Unset, spans[0].Status().Code)
	assert.Equal(t, codes.Error, spans[1].Status().Code)
	assert.Equal(t, "store down", spans[1].Status().Description)
	assert.Contains(t, spans[1].Attributes(), attribute.Int("page", 2))
}

func TestResourceFromEnv(t *testing.T) {
	t.Setenv("OTEL_RESOURCE_ATTRIBUTES", "deployment.region=eu-1")
	cfg := DefaultConfig()
	cfg.ResourceAttributes = map[string]string{"team": "im"}

	res, err := newResource(context.Background(), cfg)
	require.NoError(t, err)
	attrs := res.Set()
	v, ok := attrs.Value("deployment.region")
	require.True(t, ok)
	assert.Equal(t, "eu-1", v.AsString())
	v, ok = attrs.Value("team")
	require.True(t, ok)
	assert.Equal(t, "im", v.AsString())
	v, _ = attrs.Value("service.name")
	assert.Equal(t, "qim", v.AsString())
}

func TestNoopExporter(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ExporterType = ExporterNoop
	exp, err := newExporter(context.Background(), cfg)
	require.NoError(t, err)
	assert.Nil(t, exp)
}
