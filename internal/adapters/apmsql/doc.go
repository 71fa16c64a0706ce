// Package apmsql records the SQL statements executed while serving a request.
// It wraps a database/sql driver so that every statement run with a context
// prepared by WithQueriesContext is appended to that context's query list,
// together with its parameters, timings and the calling location.
//
// Recording can be compiled out with the noapmsql build tag; Available then
// reports false and WithQueriesContext becomes a no-op.
package apmsql
