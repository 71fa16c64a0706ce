package apmsql

import (
	"context"
	"time"

	"github.com/fllarpy/perf-probe/domain"
)

// contextKey is an unexported type for keys defined in this package.
type contextKey struct{}

var queriesKey = contextKey{}

// WithQueriesContext returns a new context that collects the queries executed
// with it. The host attaches it to the incoming *http.Request to record the
// queries of that request. When recording is not compiled in, parent is
// returned unchanged.
func WithQueriesContext(parent context.Context) context.Context {
	if !Available {
		return parent
	}
	return context.WithValue(parent, queriesKey, new([]domain.QueryRecord))
}

// QueriesFromContext returns the collected queries in execution order, or nil
// if the context was not initialised via WithQueriesContext.
func QueriesFromContext(ctx context.Context) []domain.QueryRecord {
	p, ok := ctx.Value(queriesKey).(*[]domain.QueryRecord)
	if !ok || p == nil {
		return nil
	}
	return *p
}

// recordQuery appends a statement to the slice stored in the context. It is
// used internally by wrapped driver components.
func recordQuery(ctx context.Context, query string, args []any, start, end time.Time) {
	p, ok := ctx.Value(queriesKey).(*[]domain.QueryRecord)
	if !ok || p == nil {
		return
	}
	*p = append(*p, domain.QueryRecord{
		Statement:  query,
		Parameters: args,
		StartTime:  start,
		EndTime:    end,
		Duration:   end.Sub(start),
		Context:    callerContext(),
	})
}
