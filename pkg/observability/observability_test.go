package observability

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric/noop"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/ajitpratap0/sqlrt/pkg/config"
	"github.com/ajitpratap0/sqlrt/pkg/logger"
)

func recordSpans(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	SetTracerProvider(tp)
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	return sr
}

func TestSpan_Success(t *testing.T) {
	sr := recordSpans(t)

	_, span := StartSpan(context.Background(), "query")
	span.SetAttribute("db.locator", "sqlite:///tmp/x.db")
	span.SetAttribute("db.rows", 3)
	span.SetAttribute("db.cached", false)
	span.SetAttribute("db.ttl", time.Second)
	span.AddEvent("cache_miss")
	span.End(context.Background(), nil)

	spans := sr.Ended()
	require.Len(t, spans, 1)
	s := spans[0]
	assert.Equal(t, "sqlrt.query", s.Name())
	assert.Equal(t, codes.Ok, s.Status().Code)
	assert.Len(t, s.Attributes(), 4)
	require.Len(t, s.Events(), 1)
	assert.Equal(t, "cache_miss", s.Events()[0].Name)
}

func TestSpan_Error(t *testing.T) {
	sr := recordSpans(t)

	_, span := StartSpan(context.Background(), "exec")
	span.End(context.Background(), errors.New("syntax error"))

	spans := sr.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status().Code)
	assert.Equal(t, "syntax error", spans[0].Status().Description)
}

func TestRecordStatement_NoopMeter(t *testing.T) {
	SetMeterProvider(noop.NewMeterProvider())
	assert.NotPanics(t, func() {
		RecordStatement(context.Background(), "query", "success", time.Millisecond)
	})
	assert.NotNil(t, GetMeter())
}

func TestLogger_Fields(t *testing.T) {
	recordSpans(t)

	core, logs := observer.New(zap.DebugLevel)
	base := zap.New(core)

	ctx := context.WithValue(context.Background(), logger.SessionIDKey, "s-1")
	ctx = context.WithValue(ctx, logger.LocatorKey, "sqlite://db")
	ctx, span := StartSpan(ctx, "query")
	defer span.End(ctx, nil)

	Logger(ctx, base).Info("executed")

	entries := logs.All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "s-1", fields["session_id"])
	assert.Equal(t, "sqlite://db", fields["locator"])
	assert.NotEmpty(t, fields["trace_id"])
	assert.NotEmpty(t, fields["span_id"])
}

func TestLogger_NoContext(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	base := zap.New(core)

	Logger(context.Background(), base).Info("plain")
	require.Equal(t, 1, logs.Len())
	assert.Empty(t, logs.All()[0].ContextMap())
	assert.NotNil(t, Logger(context.Background(), nil))
}

func TestInitialize_StdoutExporter(t *testing.T) {
	var buf bytes.Buffer
	cfg := config.Default().Observability
	cfg.EnableTracing = true
	cfg.TracingSampleRate = 1.0
	cfg.ServiceName = "sqlrt-test"

	require.NoError(t, Initialize(cfg, WithWriter(&buf), WithVersion("1.2.3")))

	_, span := StartSpan(context.Background(), "exec")
	span.End(context.Background(), nil)

	require.NoError(t, Shutdown(context.Background()))
	assert.Contains(t, buf.String(), "sqlrt.exec")
	assert.Contains(t, buf.String(), "sqlrt-test")
}

func TestInitialize_Disabled(t *testing.T) {
	cfg := config.Default().Observability
	cfg.EnableTracing = false
	require.NoError(t, Initialize(cfg))
	assert.NotNil(t, GetTracer())
}

func TestSampler(t *testing.T) {
	assert.Equal(t, sdktrace.NeverSample().Description(), sampler(0).Description())
	assert.Equal(t, sdktrace.AlwaysSample().Description(), sampler(1).Description())
	assert.Contains(t, sampler(0.5).Description(), "TraceIDRatioBased")
}
