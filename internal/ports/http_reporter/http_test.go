package http_reporter

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/fllarpy/perf-probe/domain"
	"github.com/fllarpy/perf-probe/storage/inmemory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReportsHandler(t *testing.T) {
	store := inmemory.NewStore()
	store.AddReport(domain.Report{
		Method:   http.MethodGet,
		Path:     "/api/v1/users",
		Status:   http.StatusOK,
		Duration: 120 * time.Millisecond,
		Frames: []domain.Frame{
			{Name: "GET /api/v1/users", Kind: "server", Duration: 120 * time.Millisecond},
			{Name: "sql.conn.query", Kind: "client", Statement: "SELECT * FROM users", Duration: 80 * time.Millisecond},
		},
	})
	store.AddReport(domain.Report{Method: http.MethodPost, Path: "/api/v1/posts", Status: http.StatusCreated})

	handler := NewHandler(store)
	req := httptest.NewRequest(http.MethodGet, "/debug/perf", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "application/json; charset=utf-8", rr.Header().Get("Content-Type"))

	var reports []domain.Report
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &reports))
	require.Len(t, reports, 2)

	assert.Equal(t, "/api/v1/users", reports[0].Path)
	assert.Equal(t, 120*time.Millisecond, reports[0].Duration)
	require.Len(t, reports[0].Frames, 2)
	assert.Equal(t, "SELECT * FROM users", reports[0].Frames[1].Statement)
	assert.Equal(t, http.StatusCreated, reports[1].Status)
}

func TestReportsHandler_Empty(t *testing.T) {
	rr := httptest.NewRecorder()
	NewHandler(inmemory.NewStore()).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/debug/perf", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, "[]", rr.Body.String())
}
