package profiling

import (
	"sync"

	"github.com/fllarpy/perf-probe/exporter"
	"github.com/fllarpy/perf-probe/storage/inmemory"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.uber.org/zap"
)

const serviceName = "perf-probe"

var (
	defaultOnce     sync.Once
	defaultStore    *inmemory.Store
	defaultProvider *sdktrace.TracerProvider
)

// NewTracerProvider builds a provider that feeds every finished span into
// store as a frame. The simple span processor exports synchronously, which
// the middleware relies on to read a request's frames right after it ends.
func NewTracerProvider(store *inmemory.Store, logger *zap.Logger) *sdktrace.TracerProvider {
	res, err := newResource(serviceName)
	if err != nil {
		logger.Warn("falling back to default trace resource", zap.Error(err))
		res = resource.Default()
	}

	return sdktrace.NewTracerProvider(
		sdktrace.WithSpanProcessor(sdktrace.NewSimpleSpanProcessor(exporter.NewFrameExporter(store, logger))),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)
}

// DefaultTracerProvider returns the process-wide provider and its store,
// creating both on first use. The provider is installed as the OTel global
// so that spans from otelsql and otelhttp clients join request traces.
func DefaultTracerProvider() (*sdktrace.TracerProvider, *inmemory.Store) {
	defaultOnce.Do(func() {
		defaultStore = inmemory.NewStore()
		defaultProvider = NewTracerProvider(defaultStore, zap.L())
		otel.SetTracerProvider(defaultProvider)
	})
	return defaultProvider, defaultStore
}

func newResource(name string) (*resource.Resource, error) {
	return resource.Merge(
		resource.Default(),
		resource.NewSchemaless(semconv.ServiceName(name)),
	)
}
