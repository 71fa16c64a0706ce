// Package nplusone flags requests that run the same SQL statement over and
// over, the usual symptom of loading a collection one row at a time.
package nplusone

import (
	"github.com/fllarpy/perf-probe/domain"
	"github.com/fllarpy/perf-probe/webapp"
	"go.uber.org/zap"
)

// Finding is a statement that ran at least Threshold times in one request.
type Finding struct {
	Statement string
	Count     int
}

type Detector struct {
	threshold int
}

// NewDetector returns nil when threshold is not positive, which disables detection.
func NewDetector(threshold int) *Detector {
	if threshold <= 0 {
		return nil
	}
	return &Detector{threshold: threshold}
}

// Detect groups queries by statement text and returns the groups that reach
// the threshold, in order of first execution.
func (d *Detector) Detect(queries []domain.QueryRecord) []Finding {
	if d == nil {
		return nil
	}

	counts := make(map[string]int)
	var order []string
	for _, q := range queries {
		if _, ok := counts[q.Statement]; !ok {
			order = append(order, q.Statement)
		}
		counts[q.Statement]++
	}

	var findings []Finding
	for _, stmt := range order {
		if counts[stmt] >= d.threshold {
			findings = append(findings, Finding{Statement: stmt, Count: counts[stmt]})
		}
	}
	return findings
}

// AfterRequest is a webapp hook that logs a warning per finding.
func (d *Detector) AfterRequest(resp *webapp.Response, state webapp.RequestState) (*webapp.Response, error) {
	for _, f := range d.Detect(state.Queries) {
		state.Logger.Warn("repeated query detected",
			zap.String("path", resp.Request.URL.Path),
			zap.String("statement", f.Statement),
			zap.Int("count", f.Count),
		)
	}
	return resp, nil
}
