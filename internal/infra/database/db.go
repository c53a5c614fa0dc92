package database

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq" // registers the postgres driver
)

// Pool sizing for a single-instance service: the cron jobs and the admin API
// together never need more than a handful of connections, 25 leaves headroom.
const (
	poolMaxOpen     = 25
	poolMaxIdle     = 25
	poolMaxLifetime = 5 * time.Minute
	poolMaxIdleTime = 1 * time.Minute
)

// NewPostgresConnection opens a tuned connection pool against the given DSN.
// A failed ping closes the pool and surfaces the error, so callers never hold
// a handle to an unreachable database.
func NewPostgresConnection(dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	db.SetMaxOpenConns(poolMaxOpen)
	db.SetMaxIdleConns(poolMaxIdle)
	db.SetConnMaxLifetime(poolMaxLifetime)
	db.SetConnMaxIdleTime(poolMaxIdleTime)

	if err = db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}
