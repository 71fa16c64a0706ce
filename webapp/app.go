package webapp

import (
	"net/http"
	"time"

	"github.com/fllarpy/perf-probe/config"
	"github.com/fllarpy/perf-probe/domain"
	"github.com/fllarpy/perf-probe/internal/adapters/apmsql"
	"go.uber.org/zap"
)

// RequestState is what the host hands to after-request hooks: the active
// configuration and everything recorded while serving the request.
type RequestState struct {
	Config  config.Config
	Queries []domain.QueryRecord
	Logger  *zap.Logger
}

// AfterRequestFunc runs after the entry point produced a response and before
// it is sent. It returns the response to send, usually the one it was given.
type AfterRequestFunc func(resp *Response, state RequestState) (*Response, error)

// App is the host application: a configuration mapping, a replaceable
// request entry point and a list of after-request hooks.
type App struct {
	config       config.Config
	handler      http.Handler
	afterRequest []AfterRequestFunc
	logger       *zap.Logger
}

type Option func(*App)

func WithConfig(cfg config.Config) Option {
	return func(a *App) {
		if cfg != nil {
			a.config = cfg
		}
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(a *App) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// New creates an App dispatching to handler. A nil handler serves 404s.
func New(handler http.Handler, opts ...Option) *App {
	if handler == nil {
		handler = http.NotFoundHandler()
	}
	a := &App{
		config:  config.Config{},
		handler: handler,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *App) Config() config.Config { return a.config }

func (a *App) Logger() *zap.Logger { return a.logger }

// Handler returns the current entry point.
func (a *App) Handler() http.Handler { return a.handler }

// SetHandler replaces the entry point, typically with a wrapped version of Handler().
func (a *App) SetHandler(h http.Handler) { a.handler = h }

// AfterRequest registers fn to run after every request, in registration order.
func (a *App) AfterRequest(fn AfterRequestFunc) {
	a.afterRequest = append(a.afterRequest, fn)
}

// AfterRequestFuncs returns the registered hooks.
func (a *App) AfterRequestFuncs() []AfterRequestFunc {
	return a.afterRequest
}

func (a *App) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if a.config.Bool(config.RecordQueries) {
		ctx = apmsql.WithQueriesContext(ctx)
		r = r.WithContext(ctx)
	}

	resp := newResponse(r)
	start := time.Now()
	a.handler.ServeHTTP(resp, r)
	resp.Duration = time.Since(start)

	state := RequestState{
		Config:  a.config,
		Queries: apmsql.QueriesFromContext(ctx),
		Logger:  a.logger,
	}

	for _, fn := range a.afterRequest {
		next, err := fn(resp, state)
		if err != nil {
			a.logger.Error("after request hook failed",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Error(err),
			)
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			return
		}
		if next != nil {
			resp = next
		}
	}

	if err := resp.writeTo(w); err != nil {
		a.logger.Debug("writing response failed", zap.String("path", r.URL.Path), zap.Error(err))
	}
}
