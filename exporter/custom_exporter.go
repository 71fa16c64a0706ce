package exporter

import (
	"context"

	"github.com/fllarpy/perf-probe/domain"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.uber.org/zap"
)

// Statement attribute keys, old and stable database semantic conventions.
var statementKeys = []attribute.Key{
	semconv.DBQueryTextKey,
	attribute.Key("db.statement"),
}

// FrameExporter turns finished spans into frames buffered per trace. Paired
// with a simple span processor it runs synchronously on span end, so the
// frames of a request are in the store by the time its server span ends.
type FrameExporter struct {
	store  domain.FrameStore
	logger *zap.Logger
}

func NewFrameExporter(store domain.FrameStore, logger *zap.Logger) *FrameExporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FrameExporter{
		store:  store,
		logger: logger,
	}
}

func (e *FrameExporter) ExportSpans(ctx context.Context, spans []sdktrace.ReadOnlySpan) error {
	for _, span := range spans {
		traceID := span.SpanContext().TraceID().String()
		e.store.AddFrame(traceID, toFrame(span))
	}
	return nil
}

func (e *FrameExporter) Shutdown(ctx context.Context) error {
	e.logger.Debug("frame exporter shut down")
	return nil
}

func toFrame(span sdktrace.ReadOnlySpan) domain.Frame {
	return domain.Frame{
		Name:      span.Name(),
		Kind:      span.SpanKind().String(),
		Statement: statement(span.Attributes()),
		Start:     span.StartTime(),
		Duration:  span.EndTime().Sub(span.StartTime()),
	}
}

func statement(attrs []attribute.KeyValue) string {
	for _, key := range statementKeys {
		for _, attr := range attrs {
			if attr.Key == key {
				return attr.Value.AsString()
			}
		}
	}
	return ""
}
