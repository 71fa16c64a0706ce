package perf_probe

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"text/template"

	"github.com/fllarpy/perf-probe/config"
	"github.com/fllarpy/perf-probe/internal/adapters/apmsql"
	"github.com/fllarpy/perf-probe/metrics"
	"github.com/fllarpy/perf-probe/profiling"
	"github.com/fllarpy/perf-probe/webapp"
	"go.uber.org/zap"
)

// Defaults applied by Bind for keys missing from the host configuration.
const (
	DefaultEnabled      = false
	DefaultSQLEnabled   = false
	DefaultSQLThreshold = 0.0
	DefaultSQLFormat    = `Slow query: {{.statement}}
Parameters: {{.parameters}}
Started: {{.start_time}}
Ended: {{.end_time}}
Duration: {{.duration}}s
Context: {{.context}}
`
)

// DefaultRestrictions returns the default, empty restrictions list.
func DefaultRestrictions() []any {
	return []any{}
}

var (
	// ErrDependencyMissing is returned by Bind when slow query logging is
	// enabled but query recording is not compiled in.
	ErrDependencyMissing = errors.New("perf_probe: query recorder is not available")
	// ErrInvalidConfiguration is returned by Bind when the configuration
	// cannot be honoured as given.
	ErrInvalidConfiguration = errors.New("perf_probe: invalid configuration")
	// ErrFormat is returned by LogQueries when the query template cannot be rendered.
	ErrFormat = errors.New("perf_probe: cannot format query")
)

// MiddlewareFactory wraps an entry point with request profiling, limited by restrictions.
type MiddlewareFactory func(next http.Handler, restrictions []any) (http.Handler, error)

// Profiler wires request profiling and slow query logging into a webapp.App
// according to the app's configuration.
type Profiler struct {
	app               *webapp.App
	middleware        MiddlewareFactory
	recorderAvailable bool
	metrics           *metrics.Metrics
	middlewareOpts    []profiling.Option
}

type Option func(*Profiler)

// WithMiddlewareFactory replaces the profiling middleware constructor.
func WithMiddlewareFactory(f MiddlewareFactory) Option {
	return func(p *Profiler) {
		p.middleware = f
	}
}

// WithRecorderAvailable overrides whether query recording is considered present.
func WithRecorderAvailable(available bool) Option {
	return func(p *Profiler) {
		p.recorderAvailable = available
	}
}

// WithMetrics makes the profiler and its middleware report to m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Profiler) {
		p.metrics = m
	}
}

// WithMiddlewareOptions passes extra options to the default profiling
// middleware. It has no effect with WithMiddlewareFactory.
func WithMiddlewareOptions(opts ...profiling.Option) Option {
	return func(p *Profiler) {
		p.middlewareOpts = append(p.middlewareOpts, opts...)
	}
}

// New creates a Profiler. If app is not nil it is bound right away;
// otherwise call Bind once the app exists.
func New(app *webapp.App, opts ...Option) (*Profiler, error) {
	p := &Profiler{
		recorderAvailable: apmsql.Available,
	}
	for _, opt := range opts {
		opt(p)
	}
	if app != nil {
		if err := p.Bind(app); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// App returns the bound app, or nil before Bind.
func (p *Profiler) App() *webapp.App {
	return p.app
}

// Bind applies configuration defaults to app and installs what the
// configuration asks for. Defaults never overwrite existing keys, so binding
// again is safe for configuration, but every Bind with PROFILER_ENABLED
// wraps the entry point once more. A failure in the SQL step leaves an
// already installed middleware in place.
func (p *Profiler) Bind(app *webapp.App) error {
	cfg := app.Config()
	cfg.SetDefault(config.ProfilerEnabled, DefaultEnabled)
	cfg.SetDefault(config.ProfilerRestrictions, DefaultRestrictions())
	cfg.SetDefault(config.ProfilerSQLEnabled, DefaultSQLEnabled)
	cfg.SetDefault(config.ProfilerSQLThreshold, DefaultSQLThreshold)
	cfg.SetDefault(config.ProfilerSQLFormat, DefaultSQLFormat)

	if cfg.Bool(config.ProfilerEnabled) {
		factory := p.middleware
		if factory == nil {
			factory = p.defaultMiddleware(app)
		}
		restrictions, err := cfg.Slice(config.ProfilerRestrictions)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidConfiguration, err)
		}
		wrapped, err := factory(app.Handler(), restrictions)
		if err != nil {
			return fmt.Errorf("%w: %s: %w", ErrInvalidConfiguration, config.ProfilerRestrictions, err)
		}
		app.SetHandler(wrapped)
		app.Logger().Info("request profiling enabled")
	}

	if cfg.Bool(config.ProfilerSQLEnabled) {
		if !p.recorderAvailable {
			return ErrDependencyMissing
		}
		if !cfg.Bool(config.RecordQueries) {
			return fmt.Errorf("%w: %s requires %s to be enabled",
				ErrInvalidConfiguration, config.ProfilerSQLEnabled, config.RecordQueries)
		}
		threshold, err := cfg.Float64E(config.ProfilerSQLThreshold)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidConfiguration, err)
		}
		app.AfterRequest(p.LogQueries)
		app.Logger().Info("slow query logging enabled", zap.Float64("threshold_seconds", threshold))
	}

	p.app = app
	return nil
}

func (p *Profiler) defaultMiddleware(app *webapp.App) MiddlewareFactory {
	return func(next http.Handler, restrictions []any) (http.Handler, error) {
		opts := append([]profiling.Option{
			profiling.WithLogger(app.Logger()),
			profiling.WithMetrics(p.metrics),
		}, p.middlewareOpts...)
		return profiling.New(next, restrictions, opts...)
	}
}

// LogQueries logs every recorded query of the request that took at least
// PROFILER_SQLALCHEMY_THRESHOLD seconds, rendered with
// PROFILER_SQLALCHEMY_FORMAT, in execution order. resp is returned unchanged.
func (p *Profiler) LogQueries(resp *webapp.Response, state webapp.RequestState) (*webapp.Response, error) {
	threshold := state.Config.Float64(config.ProfilerSQLThreshold)
	format := DefaultSQLFormat
	if state.Config.Has(config.ProfilerSQLFormat) {
		format = state.Config.String(config.ProfilerSQLFormat)
	}

	logger := state.Logger
	if logger == nil {
		logger = zap.L()
	}

	var tmpl *template.Template
	for _, q := range state.Queries {
		if q.Duration.Seconds() < threshold {
			continue
		}
		if tmpl == nil {
			var err error
			if tmpl, err = template.New("query").Option("missingkey=error").Parse(format); err != nil {
				return resp, fmt.Errorf("%w: %w", ErrFormat, err)
			}
		}

		var buf bytes.Buffer
		if err := tmpl.Execute(&buf, map[string]any{
			"statement":  q.Statement,
			"parameters": q.Parameters,
			"start_time": q.StartTime,
			"end_time":   q.EndTime,
			"duration":   q.Duration.Seconds(),
			"context":    q.Context,
		}); err != nil {
			return resp, fmt.Errorf("%w: %w", ErrFormat, err)
		}

		logger.Warn(buf.String())
		if p != nil && p.metrics != nil {
			p.metrics.SlowQueries.Inc()
		}
	}
	return resp, nil
}
