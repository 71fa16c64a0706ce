package http_reporter

import (
	"encoding/json"
	"net/http"

	"github.com/fllarpy/perf-probe/domain"
)

// NewHandler creates an HTTP handler that serves the reports held by store.
func NewHandler(store domain.ReportReader) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reports := store.Reports()
		if reports == nil {
			reports = []domain.Report{}
		}

		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		if err := json.NewEncoder(w).Encode(reports); err != nil {
			http.Error(w, "Failed to encode reports to JSON", http.StatusInternalServerError)
		}
	})
}
