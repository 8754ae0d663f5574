// Package observability wires OpenTelemetry tracing and metrics for sqlrt.
//
// Until Initialize installs a provider the package records into the global
// otel providers, which are no-ops by default, so instrumented code never
// needs to check whether tracing is on.
package observability

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/ajitpratap0/sqlrt/pkg/config"
	"github.com/ajitpratap0/sqlrt/pkg/logger"
)

const instrumentationName = "github.com/ajitpratap0/sqlrt"

var (
	mu       sync.RWMutex
	tracer   trace.Tracer = otel.Tracer(instrumentationName)
	meter    metric.Meter = otel.Meter(instrumentationName)
	provider *sdktrace.TracerProvider
	insts    *instruments
)

// Option configures Initialize.
type Option func(*options)

type options struct {
	writer  io.Writer
	version string
}

// WithWriter sets where the stdout exporter writes spans.
func WithWriter(w io.Writer) Option {
	return func(o *options) { o.writer = w }
}

// WithVersion sets the service version resource attribute.
func WithVersion(v string) Option {
	return func(o *options) { o.version = v }
}

// Initialize installs a tracer provider exporting through stdouttrace when
// tracing is enabled. Calling it again replaces the previous provider.
func Initialize(cfg config.ObservabilityConfig, opts ...Option) error {
	o := options{writer: os.Stderr, version: "dev"}
	for _, opt := range opts {
		opt(&o)
	}

	if !cfg.EnableTracing {
		return nil
	}

	res, err := resource.New(context.Background(),
		resource.WithAttributes(
			semconv.ServiceNameKey.String(cfg.ServiceName),
			semconv.ServiceVersionKey.String(o.version),
		),
	)
	if err != nil {
		return fmt.Errorf("failed to create resource: %w", err)
	}

	exporter, err := stdouttrace.New(stdouttrace.WithWriter(o.writer))
	if err != nil {
		return fmt.Errorf("failed to create stdout exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler(cfg.TracingSampleRate)),
		sdktrace.WithBatcher(exporter),
	)
	otel.SetTracerProvider(tp)

	mu.Lock()
	old := provider
	provider = tp
	tracer = tp.Tracer(instrumentationName)
	mu.Unlock()

	if old != nil {
		_ = old.Shutdown(context.Background())
	}
	logger.Debug("tracing initialized", zap.String("service", cfg.ServiceName), zap.Float64("sample_rate", cfg.TracingSampleRate))
	return nil
}

func sampler(rate float64) sdktrace.Sampler {
	switch {
	case rate <= 0:
		return sdktrace.NeverSample()
	case rate >= 1.0:
		return sdktrace.AlwaysSample()
	default:
		return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(rate))
	}
}

// SetTracerProvider makes spans go to tp instead.
func SetTracerProvider(tp trace.TracerProvider) {
	mu.Lock()
	defer mu.Unlock()
	tracer = tp.Tracer(instrumentationName)
}

// SetMeterProvider makes statement metrics go to mp instead.
func SetMeterProvider(mp metric.MeterProvider) {
	mu.Lock()
	defer mu.Unlock()
	meter = mp.Meter(instrumentationName)
	insts = nil
}

// GetTracer returns the current tracer
func GetTracer() trace.Tracer {
	mu.RLock()
	defer mu.RUnlock()
	return tracer
}

// GetMeter returns the current meter
func GetMeter() metric.Meter {
	mu.RLock()
	defer mu.RUnlock()
	return meter
}

// Shutdown flushes and stops the installed tracer provider.
func Shutdown(ctx context.Context) error {
	mu.Lock()
	tp := provider
	provider = nil
	mu.Unlock()

	var errs []string
	if tp != nil {
		if err := tp.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Sprintf("failed to shutdown tracer: %v", err))
		}
	}

	if err := logger.Sync(); err != nil {
		// syncing stdout/stderr fails on many platforms
		msg := err.Error()
		if !strings.Contains(msg, "bad file descriptor") &&
			!strings.Contains(msg, "invalid argument") &&
			!strings.Contains(msg, "/dev/stdout") &&
			!strings.Contains(msg, "/dev/stderr") {
			errs = append(errs, fmt.Sprintf("failed to sync logger: %v", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %s", strings.Join(errs, "; "))
	}
	return nil
}
