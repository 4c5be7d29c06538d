// Package store persists documents and candidates in SQLite.
//
// Every write goes through RunTx so a document subtree or a candidate set
// commits as a whole or not at all. A SQLITE_BUSY condition is surfaced as a
// model.PersistenceConflictError; it is only retried when the store was
// opened with WithConflictRetries.
//
// Usage:
//
//	st, err := store.Open("corpus.db", store.WithConflictRetries(3))
//
// In tests:
//
//	st := store.OpenMemory(t)
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/athapong/docfuse/pkg/model"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a document does not exist
var ErrNotFound = errors.New("not found")

type config struct {
	busyTimeout int
	retries     int
	mkdirAll    bool
	logger      *logrus.Logger
}

func defaults() config {
	return config{busyTimeout: 5_000}
}

// Option customises Open behaviour
type Option func(*config)

// WithBusyTimeout sets PRAGMA busy_timeout in milliseconds. Default: 5000.
func WithBusyTimeout(ms int) Option { return func(c *config) { c.busyTimeout = ms } }

// WithConflictRetries retries a transaction up to n more times when SQLite
// reports BUSY. Default: 0, conflicts are returned to the caller.
func WithConflictRetries(n int) Option { return func(c *config) { c.retries = n } }

// WithMkdirAll creates parent directories of the database path before opening
func WithMkdirAll() Option { return func(c *config) { c.mkdirAll = true } }

// WithLogger sets the logger used by the store
func WithLogger(l *logrus.Logger) Option { return func(c *config) { c.logger = l } }

// Store is the SQLite backed document and candidate store
type Store struct {
	db      *sql.DB
	retries int
	logger  *logrus.Logger
}

// Open opens (and migrates) the database at path
func Open(path string, opts ...Option) (*Store, error) {
	cfg := defaults()
	for _, o := range opts {
		o(&cfg)
	}
	if cfg.logger == nil {
		cfg.logger = logrus.New()
		cfg.logger.SetFormatter(&logrus.JSONFormatter{})
	}

	memory := path == ":memory:"
	if cfg.mkdirAll && !memory {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, errors.Wrap(err, "store: mkdir")
		}
	}

	db, err := sql.Open("sqlite", dsn(path, &cfg))
	if err != nil {
		return nil, errors.Wrap(err, "store: open")
	}
	if memory {
		// each connection to ":memory:" is a separate database
		db.SetMaxOpenConns(1)
	}

	if err := applyPragmas(db, &cfg); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "store: migrate")
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "store: ping")
	}

	return &Store{db: db, retries: cfg.retries, logger: cfg.logger}, nil
}

// OpenMemory opens an in-memory store for testing and closes it when the
// test finishes.
func OpenMemory(t testing.TB, opts ...Option) *Store {
	t.Helper()
	s, err := Open(":memory:", opts...)
	if err != nil {
		t.Fatalf("store.OpenMemory: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// Close closes the database
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the underlying handle for read-only reporting
func (s *Store) DB() *sql.DB {
	return s.db
}

// dsn carries the per-connection pragmas for file databases; the modernc
// driver applies every _pragma parameter to each new connection.
func dsn(path string, cfg *config) string {
	if path == ":memory:" {
		return path
	}
	return fmt.Sprintf("%s?_pragma=foreign_keys(1)&_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)",
		path, cfg.busyTimeout)
}

func applyPragmas(db *sql.DB, cfg *config) error {
	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.busyTimeout),
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return errors.Wrapf(err, "store: %s", p)
		}
	}
	return nil
}

// IsBusy reports whether err indicates an SQLite BUSY condition
func IsBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") ||
		strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "database table is locked")
}

// RunTx executes fn inside one transaction. Any error from fn rolls the
// transaction back. BUSY conditions become a PersistenceConflictError for
// scope unless conflict retries were enabled.
func (s *Store) RunTx(ctx context.Context, scope string, fn func(*sql.Tx) error) error {
	for i := 0; ; i++ {
		err := s.runOnce(ctx, fn)
		if err == nil {
			return nil
		}
		if !IsBusy(err) {
			return err
		}
		if i >= s.retries {
			return &model.PersistenceConflictError{Scope: scope, Err: err}
		}
		s.logger.WithFields(logrus.Fields{
			"scope":   scope,
			"attempt": i + 1,
		}).Warn("Write conflict, retrying transaction")
		if err := sleepCtx(ctx, time.Duration(100*(i+1))*time.Millisecond); err != nil {
			return errors.Wrap(err, "store: context cancelled during retry")
		}
	}
}

func (s *Store) runOnce(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "store: begin tx")
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "store: commit")
	}
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
