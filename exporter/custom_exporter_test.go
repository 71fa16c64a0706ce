package exporter

import (
	"context"
	"testing"
	"time"

	"github.com/fllarpy/perf-probe/storage/inmemory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	oteltrace "go.opentelemetry.io/otel/trace"
)

func TestFrameExporter_ExportSpans(t *testing.T) {
	traceID := oteltrace.TraceID{0x01}
	otherTraceID := oteltrace.TraceID{0x02}
	start := time.Now()

	t.Run("groups frames by trace", func(t *testing.T) {
		store := inmemory.NewStore()
		exporter := NewFrameExporter(store, nil)

		spans := tracetest.SpanStubs{
			{
				SpanContext: oteltrace.NewSpanContext(oteltrace.SpanContextConfig{TraceID: traceID, SpanID: oteltrace.SpanID{0x01}}),
				SpanKind:    oteltrace.SpanKindServer,
				Name:        "GET /users",
				StartTime:   start,
				EndTime:     start.Add(10 * time.Millisecond),
			},
			{
				SpanContext: oteltrace.NewSpanContext(oteltrace.SpanContextConfig{TraceID: otherTraceID, SpanID: oteltrace.SpanID{0x02}}),
				SpanKind:    oteltrace.SpanKindServer,
				Name:        "GET /other",
				StartTime:   start,
				EndTime:     start.Add(time.Millisecond),
			},
		}
		require.NoError(t, exporter.ExportSpans(context.Background(), spans.Snapshots()))

		frames := store.TakeFrames(traceID.String())
		require.Len(t, frames, 1)
		assert.Equal(t, "GET /users", frames[0].Name)
		assert.Equal(t, "server", frames[0].Kind)
		assert.Equal(t, 10*time.Millisecond, frames[0].Duration)
		assert.Equal(t, 1, store.PendingTraces(), "the other trace stays pending")
	})

	t.Run("reads statement from db spans", func(t *testing.T) {
		store := inmemory.NewStore()
		exporter := NewFrameExporter(store, nil)

		spans := tracetest.SpanStubs{
			{
				SpanContext: oteltrace.NewSpanContext(oteltrace.SpanContextConfig{TraceID: traceID, SpanID: oteltrace.SpanID{0x03}}),
				SpanKind:    oteltrace.SpanKindClient,
				Name:        "sql.conn.query",
				Attributes:  []attribute.KeyValue{semconv.DBSystemSqlite, attribute.String("db.statement", "SELECT 1")},
				StartTime:   start,
				EndTime:     start.Add(5 * time.Millisecond),
			},
			{
				SpanContext: oteltrace.NewSpanContext(oteltrace.SpanContextConfig{TraceID: traceID, SpanID: oteltrace.SpanID{0x04}}),
				SpanKind:    oteltrace.SpanKindClient,
				Name:        "sql.conn.exec",
				Attributes:  []attribute.KeyValue{semconv.DBQueryText("DELETE FROM users")},
				StartTime:   start,
				EndTime:     start.Add(time.Millisecond),
			},
		}
		require.NoError(t, exporter.ExportSpans(context.Background(), spans.Snapshots()))

		frames := store.TakeFrames(traceID.String())
		require.Len(t, frames, 2)
		assert.Equal(t, "client", frames[0].Kind)
		assert.Equal(t, "SELECT 1", frames[0].Statement)
		assert.Equal(t, "DELETE FROM users", frames[1].Statement)
	})

	t.Run("shutdown is a no-op", func(t *testing.T) {
		exporter := NewFrameExporter(inmemory.NewStore(), nil)
		assert.NoError(t, exporter.Shutdown(context.Background()))
	})
}
