package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/ajitpratap0/sqlrt/pkg/logger"
)

type instruments struct {
	statements metric.Int64Counter
	duration   metric.Float64Histogram
}

// statementInstruments lazily creates the statement instruments on the
// current meter.
func statementInstruments() *instruments {
	mu.RLock()
	in := insts
	m := meter
	mu.RUnlock()
	if in != nil {
		return in
	}

	in = &instruments{}
	var err error
	in.statements, err = m.Int64Counter("sqlrt.statements",
		metric.WithDescription("Statements executed"),
		metric.WithUnit("{statement}"))
	if err != nil {
		logger.Warn("failed to create statement counter", zap.Error(err))
	}
	in.duration, err = m.Float64Histogram("sqlrt.statement.duration",
		metric.WithDescription("Statement execution duration"),
		metric.WithUnit("s"))
	if err != nil {
		logger.Warn("failed to create statement histogram", zap.Error(err))
	}

	mu.Lock()
	if insts == nil {
		insts = in
	}
	in = insts
	mu.Unlock()
	return in
}

// RecordStatement counts one statement execution and its duration.
func RecordStatement(ctx context.Context, kind, status string, d time.Duration) {
	in := statementInstruments()
	attrs := metric.WithAttributes(
		attribute.String("kind", kind),
		attribute.String("status", status),
	)
	if in.statements != nil {
		in.statements.Add(ctx, 1, attrs)
	}
	if in.duration != nil {
		in.duration.Record(ctx, d.Seconds(), attrs)
	}
}
