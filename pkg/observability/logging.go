package observability

import (
	"context"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/ajitpratap0/sqlrt/pkg/logger"
)

// Logger returns base enriched with the session and locator values of ctx
// and, when ctx carries a valid span, its trace and span ids.
func Logger(ctx context.Context, base *zap.Logger) *zap.Logger {
	if base == nil {
		base = logger.Get()
	}

	fields := make([]zap.Field, 0, 4)
	if v, ok := ctx.Value(logger.SessionIDKey).(string); ok {
		fields = append(fields, zap.String("session_id", v))
	}
	if v, ok := ctx.Value(logger.LocatorKey).(string); ok {
		fields = append(fields, zap.String("locator", v))
	}

	sc := trace.SpanFromContext(ctx).SpanContext()
	if sc.IsValid() {
		fields = append(fields,
			zap.String("trace_id", sc.TraceID().String()),
			zap.String("span_id", sc.SpanID().String()),
		)
	}

	if len(fields) == 0 {
		return base
	}
	return base.With(fields...)
}
