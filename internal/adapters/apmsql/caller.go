package apmsql

import (
	"fmt"
	"runtime"
	"strings"
)

// Frames from these packages sit between application code and the driver.
var skippedPrefixes = []string{
	"runtime.",
	"database/sql",
	"github.com/fllarpy/perf-probe/internal/adapters/apmsql.(*apm",
	"github.com/XSAM/otelsql",
	"go.opentelemetry.io/",
}

// callerContext returns "file:line (function)" for the first frame outside
// database/sql and the driver wrappers, or "<unknown>".
func callerContext() string {
	pcs := make([]uintptr, 32)
	n := runtime.Callers(3, pcs)
	frames := runtime.CallersFrames(pcs[:n])
	for {
		frame, more := frames.Next()
		if !skipped(frame.Function) {
			return fmt.Sprintf("%s:%d (%s)", frame.File, frame.Line, frame.Function)
		}
		if !more {
			return "<unknown>"
		}
	}
}

func skipped(function string) bool {
	for _, prefix := range skippedPrefixes {
		if strings.HasPrefix(function, prefix) {
			return true
		}
	}
	return false
}
