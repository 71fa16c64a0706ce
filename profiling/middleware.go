package profiling

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/fllarpy/perf-probe/domain"
	httpinstrumentation "github.com/fllarpy/perf-probe/instrumentation/http"
	"github.com/fllarpy/perf-probe/metrics"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Middleware times each request, collects the spans recorded while serving
// it and reports them as frames, longest first, narrowed by restrictions.
type Middleware struct {
	next         http.Handler
	traced       http.Handler
	restrictions []Restriction
	tp           trace.TracerProvider
	store        domain.Store
	logger       *zap.Logger
	metrics      *metrics.Metrics
	cpu          *CPUProfiler
}

type Option func(*Middleware)

// WithTracing sets the tracer provider and the store its spans are exported
// to. The two must be connected, see NewTracerProvider.
func WithTracing(tp trace.TracerProvider, store domain.Store) Option {
	return func(m *Middleware) {
		m.tp = tp
		m.store = store
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(m *Middleware) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithCPUProfile starts a CPU profile through p when a request is slow.
func WithCPUProfile(p *CPUProfiler) Option {
	return func(m *Middleware) {
		m.cpu = p
	}
}

func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Middleware) {
		m.metrics = mt
	}
}

// New wraps next. restrictions are parsed with ParseRestrictions; without
// WithTracing the process-wide DefaultTracerProvider is used.
func New(next http.Handler, restrictions []any, opts ...Option) (*Middleware, error) {
	parsed, err := ParseRestrictions(restrictions)
	if err != nil {
		return nil, err
	}

	m := &Middleware{
		next:         next,
		restrictions: parsed,
		logger:       zap.L(),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.tp == nil || m.store == nil {
		m.tp, m.store = DefaultTracerProvider()
	}
	m.traced = httpinstrumentation.NewMiddleware(http.HandlerFunc(m.capture), "request", m.tp)
	return m, nil
}

// Restrictions returns the parsed restrictions in the order they apply.
func (m *Middleware) Restrictions() []Restriction {
	return m.restrictions
}

// Next returns the wrapped handler.
func (m *Middleware) Next() http.Handler {
	return m.next
}

// responseWriter is a wrapper around http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

type traceHolderKey struct{}

// traceHolder carries the trace ID out of the otelhttp handler, which owns the span.
type traceHolder struct {
	id trace.TraceID
}

func (m *Middleware) capture(w http.ResponseWriter, r *http.Request) {
	if h, ok := r.Context().Value(traceHolderKey{}).(*traceHolder); ok {
		h.id = trace.SpanContextFromContext(r.Context()).TraceID()
	}
	m.next.ServeHTTP(w, r)
}

func (m *Middleware) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	holder := &traceHolder{}
	rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

	m.traced.ServeHTTP(rw, r.WithContext(context.WithValue(r.Context(), traceHolderKey{}, holder)))
	elapsed := time.Since(start)

	// The server span has ended here, so all of its frames are in the store.
	var frames []domain.Frame
	if holder.id.IsValid() {
		frames = m.store.TakeFrames(holder.id.String())
	}

	report := domain.Report{
		Timestamp: start,
		Method:    r.Method,
		Path:      r.URL.Path,
		Status:    rw.statusCode,
		Duration:  elapsed,
		Frames:    m.restrict(frames),
	}
	m.store.AddReport(report)

	m.logger.Info("request profile",
		zap.String("method", report.Method),
		zap.String("path", report.Path),
		zap.Int("status", report.Status),
		zap.Duration("duration", report.Duration),
		zap.Strings("frames", formatFrames(report.Frames)),
	)

	m.cpu.ProfileIfSlow(report.Path, elapsed)

	if m.metrics != nil {
		m.metrics.RequestDuration.
			WithLabelValues(report.Method, strconv.Itoa(report.Status)).
			Observe(elapsed.Seconds())
	}
}

func (m *Middleware) restrict(frames []domain.Frame) []domain.Frame {
	sorted := make([]domain.Frame, len(frames))
	copy(sorted, frames)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Duration > sorted[j].Duration
	})
	for _, r := range m.restrictions {
		sorted = r.Apply(sorted)
	}
	return sorted
}

func formatFrames(frames []domain.Frame) []string {
	rows := make([]string, 0, len(frames))
	for _, f := range frames {
		label := f.Name
		if f.Statement != "" {
			label += ": " + f.Statement
		}
		rows = append(rows, fmt.Sprintf("%12s  %-8s  %s", f.Duration, f.Kind, label))
	}
	return rows
}
