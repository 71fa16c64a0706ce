package http

import (
	"net/http"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/trace"
)

// NewMiddleware wraps handler so that every request runs inside an OTel
// server span named after operation, created by tp.
func NewMiddleware(handler http.Handler, operation string, tp trace.TracerProvider) http.Handler {
	return otelhttp.NewHandler(handler, operation,
		otelhttp.WithTracerProvider(tp),
		otelhttp.WithSpanNameFormatter(spanName),
	)
}

// NewTransport returns a RoundTripper that records outgoing requests as
// client spans, so they show up as frames of the request that made them.
// Applications use it for their own HTTP clients.
func NewTransport(base http.RoundTripper, tp trace.TracerProvider) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	return otelhttp.NewTransport(base, otelhttp.WithTracerProvider(tp))
}

func spanName(_ string, r *http.Request) string {
	return r.Method + " " + r.URL.Path
}
