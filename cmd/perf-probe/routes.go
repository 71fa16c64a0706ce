package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fllarpy/perf-probe/domain"
	httpinstrumentation "github.com/fllarpy/perf-probe/instrumentation/http"
	"github.com/fllarpy/perf-probe/internal/ports/http_reporter"
)

type user struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

func seed(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS users (id INTEGER PRIMARY KEY, name TEXT NOT NULL)`,
		`DELETE FROM users`,
		`INSERT INTO users (id, name) VALUES (1, 'alice'), (2, 'bob'), (3, 'carol')`,
	}
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func newRouter(db *sql.DB, driver string, tp trace.TracerProvider, reports domain.ReportReader, metricsHandler http.Handler) *mux.Router {
	h := &handlers{
		db:       db,
		postgres: driver == "postgres",
		client:   &http.Client{Transport: httpinstrumentation.NewTransport(nil, tp)},
	}

	r := mux.NewRouter()
	r.HandleFunc("/", h.listUsers).Methods(http.MethodGet)
	r.HandleFunc("/users", h.listUsersOneByOne).Methods(http.MethodGet)
	r.HandleFunc("/users/{id:[0-9]+}", h.getUser).Methods(http.MethodGet)
	r.HandleFunc("/relay/{id:[0-9]+}", h.relay).Methods(http.MethodGet)
	r.HandleFunc("/slow", h.slow).Methods(http.MethodGet)
	r.Handle("/debug/perf", http_reporter.NewHandler(reports)).Methods(http.MethodGet)
	r.Handle("/metrics", metricsHandler).Methods(http.MethodGet)
	return r
}

type handlers struct {
	db       *sql.DB
	postgres bool
	client   *http.Client
}

// rebind rewrites ? placeholders to $n for postgres.
func (h *handlers) rebind(query string) string {
	if !h.postgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, c := range query {
		if c == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(c)
	}
	return b.String()
}

func (h *handlers) listUsers(w http.ResponseWriter, r *http.Request) {
	rows, err := h.db.QueryContext(r.Context(), `SELECT id, name FROM users ORDER BY id`)
	if err != nil {
		h.fail(w, err)
		return
	}
	defer rows.Close()

	users := []user{}
	for rows.Next() {
		var u user
		if err := rows.Scan(&u.ID, &u.Name); err != nil {
			h.fail(w, err)
			return
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, users)
}

// listUsersOneByOne loads ids first and then each user with its own query.
func (h *handlers) listUsersOneByOne(w http.ResponseWriter, r *http.Request) {
	rows, err := h.db.QueryContext(r.Context(), `SELECT id FROM users ORDER BY id`)
	if err != nil {
		h.fail(w, err)
		return
	}
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			_ = rows.Close()
			h.fail(w, err)
			return
		}
		ids = append(ids, id)
	}
	_ = rows.Close()
	if err := rows.Err(); err != nil {
		h.fail(w, err)
		return
	}

	users := make([]user, 0, len(ids))
	for _, id := range ids {
		var u user
		if err := h.db.QueryRowContext(r.Context(), h.rebind(`SELECT id, name FROM users WHERE id = ?`), id).Scan(&u.ID, &u.Name); err != nil {
			h.fail(w, err)
			return
		}
		users = append(users, u)
	}
	writeJSON(w, http.StatusOK, users)
}

func (h *handlers) getUser(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}

	var u user
	err = h.db.QueryRowContext(r.Context(), h.rebind(`SELECT id, name FROM users WHERE id = ?`), id).Scan(&u.ID, &u.Name)
	if errors.Is(err, sql.ErrNoRows) {
		http.Error(w, "user not found", http.StatusNotFound)
		return
	}
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

// relay fetches /users/{id} from this same server over HTTP, so the
// outgoing call shows up as a client frame of the request.
func (h *handlers) relay(w http.ResponseWriter, r *http.Request) {
	url := "http://" + r.Host + "/users/" + mux.Vars(r)["id"]
	req, err := http.NewRequestWithContext(r.Context(), http.MethodGet, url, nil)
	if err != nil {
		h.fail(w, err)
		return
	}
	resp, err := h.client.Do(req)
	if err != nil {
		zap.L().Error("relay failed", zap.Error(err))
		http.Error(w, "upstream unavailable", http.StatusBadGateway)
		return
	}
	defer resp.Body.Close()

	w.Header().Set("Content-Type", resp.Header.Get("Content-Type"))
	w.WriteHeader(resp.StatusCode)
	_, _ = io.Copy(w, resp.Body)
}

// slow runs a recursive query that takes long enough to cross a small
// PROFILER_SQLALCHEMY_THRESHOLD.
func (h *handlers) slow(w http.ResponseWriter, r *http.Request) {
	var n int64
	err := h.db.QueryRowContext(r.Context(), h.rebind(`
WITH RECURSIVE cnt(x) AS (SELECT 1 UNION ALL SELECT x + 1 FROM cnt WHERE x < ?)
SELECT count(*) FROM cnt`), 2000000).Scan(&n)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"rows": n})
}

func (h *handlers) fail(w http.ResponseWriter, err error) {
	zap.L().Error("query failed", zap.Error(err))
	http.Error(w, "internal error", http.StatusInternalServerError)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
