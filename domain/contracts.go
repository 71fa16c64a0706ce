package domain

import (
	"time"
)

// QueryRecord describes one SQL statement executed while serving a request.
// Records are produced by the query recorder and are read-only to consumers.
type QueryRecord struct {
	Statement  string        `json:"statement"`
	Parameters []any         `json:"parameters"`
	StartTime  time.Time     `json:"start_time"`
	EndTime    time.Time     `json:"end_time"`
	Duration   time.Duration `json:"duration"`
	// Context is the caller location that issued the statement, "file:line (function)".
	Context string `json:"context"`
}

// Frame is a single timed unit of work inside a profiled request, built from
// a finished trace span.
type Frame struct {
	Name      string        `json:"name"`
	Kind      string        `json:"kind"`
	Statement string        `json:"statement,omitempty"`
	Start     time.Time     `json:"start"`
	Duration  time.Duration `json:"duration_ns"`
}

// Report is the outcome of profiling one request.
type Report struct {
	Timestamp time.Time     `json:"timestamp"`
	Method    string        `json:"method"`
	Path      string        `json:"path"`
	Status    int           `json:"status"`
	Duration  time.Duration `json:"duration_ns"`
	Frames    []Frame       `json:"frames"`
}

// FrameStore buffers frames per trace until the request that owns the trace completes.
type FrameStore interface {
	AddFrame(traceID string, frame Frame)
	TakeFrames(traceID string) []Frame
}

// ReportReader defines the contract for reading profile reports from a store.
type ReportReader interface {
	Reports() []Report
}

// ReportWriter defines the contract for writing profile reports to a store.
type ReportWriter interface {
	AddReport(report Report)
}

// Store is the combined interface used by the profiling middleware.
type Store interface {
	FrameStore
	ReportReader
	ReportWriter
}
