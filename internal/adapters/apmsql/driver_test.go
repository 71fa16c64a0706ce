//go:build !noapmsql

package apmsql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"testing"

	_ "github.com/mattn/go-sqlite3" // Import for side effects
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestDB registers a recording wrapper around go-sqlite3 and seeds a table.
func setupTestDB(t *testing.T) *sql.DB {
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	realDriver := db.Driver()
	require.NoError(t, db.Close())

	// A unique name per test avoids panics from re-registering.
	driverName := fmt.Sprintf("sqlite3-perf-%s", t.Name())
	Register(driverName, realDriver)
	assert.True(t, Registered(driverName))

	db, err = sql.Open(driverName, ":memory:")
	require.NoError(t, err, "Failed to open in-memory DB")
	db.SetMaxOpenConns(1)

	_, err = db.Exec(`
		CREATE TABLE users (id INTEGER PRIMARY KEY, name TEXT);
		INSERT INTO users (id, name) VALUES (1, 'Alice'), (2, 'Bob');
	`)
	require.NoError(t, err, "Failed to create schema and seed data")

	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestDriver_RecordsQueriesInOrder(t *testing.T) {
	db := setupTestDB(t)
	ctx := WithQueriesContext(context.Background())

	var name string
	require.NoError(t, db.QueryRowContext(ctx, "SELECT name FROM users WHERE id = ?", 2).Scan(&name))
	assert.Equal(t, "Bob", name)

	_, err := db.ExecContext(ctx, "UPDATE users SET name = ? WHERE id = ?", "Carol", 1)
	require.NoError(t, err)

	queries := QueriesFromContext(ctx)
	require.Len(t, queries, 2)

	first := queries[0]
	assert.Equal(t, "SELECT name FROM users WHERE id = ?", first.Statement)
	assert.Equal(t, []any{int64(2)}, first.Parameters)
	assert.False(t, first.StartTime.IsZero())
	assert.False(t, first.EndTime.Before(first.StartTime))
	assert.Equal(t, first.EndTime.Sub(first.StartTime), first.Duration)
	assert.Contains(t, first.Context, "driver_test.go", "context should point at the calling test")
	assert.True(t, strings.Contains(first.Context, "TestDriver_RecordsQueriesInOrder"))

	assert.Equal(t, "UPDATE users SET name = ? WHERE id = ?", queries[1].Statement)
	assert.Equal(t, []any{"Carol", int64(1)}, queries[1].Parameters)
}

func TestDriver_PreparedStatements(t *testing.T) {
	db := setupTestDB(t)
	ctx := WithQueriesContext(context.Background())

	stmt, err := db.PrepareContext(ctx, "SELECT name FROM users WHERE id = ?")
	require.NoError(t, err)
	defer stmt.Close()

	for _, id := range []int{1, 2} {
		var name string
		require.NoError(t, stmt.QueryRowContext(ctx, id).Scan(&name))
	}

	queries := QueriesFromContext(ctx)
	require.Len(t, queries, 2)
	for _, q := range queries {
		assert.Equal(t, "SELECT name FROM users WHERE id = ?", q.Statement)
	}
}

func TestDriver_NoRecordingWithoutContext(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	_, err := db.ExecContext(ctx, "DELETE FROM users WHERE id = ?", 1)
	require.NoError(t, err)

	assert.Nil(t, QueriesFromContext(ctx))
}

func TestRegister_Panics(t *testing.T) {
	assert.Panics(t, func() { Register("nil-driver", nil) })

	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	defer db.Close()

	name := "sqlite3-perf-dup"
	Register(name, db.Driver())
	assert.Panics(t, func() { Register(name, db.Driver()) })
}
