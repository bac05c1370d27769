// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package metadata is the relational source of truth for content existence,
// ownership and play events.
package metadata

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"  // postgres driver
	_ "modernc.org/sqlite" // pure Go sqlite driver

	"github.com/rs/zerolog"

	"github.com/skyfy/skyfy/internal/config"
	"github.com/skyfy/skyfy/internal/log"
)

var (
	// ErrNotFound is returned when a content row does not exist.
	ErrNotFound = errors.New("content not found")
	// ErrInvalidName rejects empty display names.
	ErrInvalidName = errors.New("content name is empty")
	// ErrReservationClosed is returned by Commit after the reservation ended.
	ErrReservationClosed = errors.New("reservation already closed")
)

// Options tunes the connection pool.
type Options struct {
	BusyTimeout  time.Duration
	MaxOpenConns int
}

// DefaultOptions returns the pool settings used by the daemon.
func DefaultOptions() Options {
	return Options{
		BusyTimeout:  5 * time.Second,
		MaxOpenConns: 25,
	}
}

// Store wraps the *sql.DB pool.
type Store struct {
	db     *sql.DB
	driver string
	logger zerolog.Logger
}

// Open connects to driver ("sqlite" or "postgres") and pings it.
// Plain sqlite paths get WAL, busy_timeout and foreign_keys pragmas applied
// to every pooled connection.
func Open(ctx context.Context, driver, dsn string, opts Options) (*Store, error) {
	var sqlDriver string
	switch driver {
	case config.DriverSQLite:
		sqlDriver = "sqlite"
		dsn = sqliteDSN(dsn, opts.BusyTimeout)
	case config.DriverPostgres:
		sqlDriver = "postgres"
	default:
		return nil, fmt.Errorf("metadata: unsupported driver %q", driver)
	}

	db, err := sql.Open(sqlDriver, dsn)
	if err != nil {
		return nil, fmt.Errorf("metadata: open failed: %w", err)
	}
	if opts.MaxOpenConns > 0 {
		db.SetMaxOpenConns(opts.MaxOpenConns)
		db.SetMaxIdleConns(opts.MaxOpenConns)
	}
	db.SetConnMaxLifetime(time.Hour)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("metadata: ping failed: %w", err)
	}
	return &Store{db: db, driver: driver, logger: log.WithComponent("metadata")}, nil
}

func sqliteDSN(path string, busy time.Duration) string {
	if strings.HasPrefix(path, "file:") {
		return path
	}
	if busy <= 0 {
		busy = 5 * time.Second
	}
	return fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(%d)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(ON)&_time_format=sqlite",
		path, busy.Milliseconds())
}

// Close closes the pool.
func (s *Store) Close() error { return s.db.Close() }

// Driver returns the configured driver name.
func (s *Store) Driver() string { return s.driver }

// rebind rewrites "?" placeholders as "$N" for postgres.
func (s *Store) rebind(query string) string {
	if s.driver != config.DriverPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

// Check verifies the database is reachable. For sqlite it also runs
// PRAGMA quick_check and reports anything other than a single "ok" row.
func (s *Store) Check(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("metadata: ping: %w", err)
	}
	if s.driver != config.DriverSQLite {
		return nil
	}
	rows, err := s.db.QueryContext(ctx, "PRAGMA quick_check;")
	if err != nil {
		return fmt.Errorf("metadata: quick_check: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var results []string
	for rows.Next() {
		var res string
		if err := rows.Scan(&res); err != nil {
			return fmt.Errorf("metadata: scan quick_check: %w", err)
		}
		results = append(results, res)
	}
	if err := rows.Err(); err != nil {
		return err
	}
	if len(results) == 1 && strings.EqualFold(results[0], "ok") {
		return nil
	}
	return fmt.Errorf("metadata: integrity check failed: %s", strings.Join(results, "; "))
}
