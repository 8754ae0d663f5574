package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Span wraps an otel span, batching attributes until End.
type Span struct {
	span       trace.Span
	kind       string
	startTime  time.Time
	attributes []attribute.KeyValue
}

// StartSpan starts a span named "sqlrt.<kind>".
func StartSpan(ctx context.Context, kind string) (context.Context, *Span) {
	ctx, span := GetTracer().Start(ctx, "sqlrt."+kind, trace.WithSpanKind(trace.SpanKindClient))
	return ctx, &Span{
		span:      span,
		kind:      kind,
		startTime: time.Now(),
	}
}

// SetAttribute adds an attribute to the span
func (s *Span) SetAttribute(key string, value interface{}) {
	var attr attribute.KeyValue

	switch v := value.(type) {
	case string:
		attr = attribute.String(key, v)
	case int:
		attr = attribute.Int(key, v)
	case int64:
		attr = attribute.Int64(key, v)
	case float64:
		attr = attribute.Float64(key, v)
	case bool:
		attr = attribute.Bool(key, v)
	default:
		attr = attribute.String(key, fmt.Sprintf("%v", v))
	}

	s.attributes = append(s.attributes, attr)
}

// AddEvent adds an event to the span
func (s *Span) AddEvent(name string, attrs ...attribute.KeyValue) {
	s.span.AddEvent(name, trace.WithAttributes(attrs...))
}

// End sets the status from err, records the statement metrics and ends the
// span.
func (s *Span) End(ctx context.Context, err error) {
	if len(s.attributes) > 0 {
		s.span.SetAttributes(s.attributes...)
	}

	if err != nil {
		s.span.RecordError(err)
		s.span.SetStatus(codes.Error, err.Error())
	} else {
		s.span.SetStatus(codes.Ok, "")
	}

	RecordStatement(ctx, s.kind, getStatus(err), time.Since(s.startTime))
	s.span.End()
}

// getStatus returns status string for metrics
func getStatus(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
