package sql

import (
	"database/sql"
	"sync"

	"github.com/XSAM/otelsql"
	"github.com/fllarpy/perf-probe/internal/adapters/apmsql"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// recordingSuffix is appended to the driver name the recorder registers under.
const recordingSuffix = "-perf"

var registerMu sync.Mutex

// Open opens a database whose statements are both recorded per request (see
// apmsql) and traced as client spans by otelsql. driverName must refer to a
// driver already registered with database/sql, e.g. "sqlite3" or "postgres".
func Open(driverName, dataSourceName string, opts ...otelsql.Option) (*sql.DB, error) {
	name, err := recordingDriver(driverName)
	if err != nil {
		return nil, err
	}

	opts = append([]otelsql.Option{
		otelsql.WithAttributes(semconv.DBSystemKey.String(driverName)),
	}, opts...)

	db, err := otelsql.Open(name, dataSourceName, opts...)
	if err != nil {
		return nil, err
	}

	return db, nil
}

// recordingDriver registers the apmsql wrapper for driverName once and
// returns the name it is registered under.
func recordingDriver(driverName string) (string, error) {
	name := driverName + recordingSuffix

	registerMu.Lock()
	defer registerMu.Unlock()

	if apmsql.Registered(name) {
		return name, nil
	}

	// sql.Open does not connect, it only resolves the driver.
	db, err := sql.Open(driverName, "")
	if err != nil {
		return "", err
	}
	realDriver := db.Driver()
	if err := db.Close(); err != nil {
		return "", err
	}

	apmsql.Register(name, realDriver)
	return name, nil
}
