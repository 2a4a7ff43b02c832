// Package store persists users, OAuth accounts, document metadata and chat
// history. SQLite (pure Go) is the default; PostgreSQL is supported for
// deployments that share the database with the n8n ingestion workflow.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	// PostgreSQL driver.
	_ "github.com/lib/pq"
	// Pure-Go SQLite driver (no CGO).
	_ "modernc.org/sqlite"
)

// Supported drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// ErrNotFound is returned when a looked-up row does not exist.
var ErrNotFound = errors.New("store: not found")

// Options selects and configures the database.
type Options struct {
	Driver string // DriverSQLite or DriverPostgres
	// DSN is a file path for SQLite or a connection URL for PostgreSQL.
	DSN string
	// SkipMigrations leaves the schema untouched (used by `migrate status`).
	SkipMigrations bool
}

// Store wraps the database handle. Safe for concurrent use.
type Store struct {
	db      *sql.DB
	driver  string
	logger  *slog.Logger
	nowFunc func() time.Time // injectable for deterministic tests
}

// Open connects to the database and applies pending migrations.
func Open(ctx context.Context, opts Options, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var (
		db  *sql.DB
		err error
	)

	switch opts.Driver {
	case DriverSQLite, "":
		opts.Driver = DriverSQLite
		db, err = openSQLite(opts.DSN)
	case DriverPostgres:
		db, err = sql.Open("postgres", opts.DSN)
	default:
		return nil, fmt.Errorf("store: unsupported driver %q", opts.Driver)
	}

	if err != nil {
		return nil, err
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: connecting to %s: %w", opts.Driver, err)
	}

	s := &Store{
		db:      db,
		driver:  opts.Driver,
		logger:  logger,
		nowFunc: time.Now,
	}

	if !opts.SkipMigrations {
		if err := s.Migrate(ctx); err != nil {
			db.Close()
			return nil, err
		}
	}

	logger.Info("store opened", slog.String("driver", opts.Driver))

	return s, nil
}

func openSQLite(path string) (*sql.DB, error) {
	// DSN parameters ensure pragmas apply to every connection from the pool.
	dsn := fmt.Sprintf(
		"file:%s?_pragma=journal_mode(WAL)&_pragma=synchronous(FULL)"+
			"&_pragma=foreign_keys(ON)&_pragma=busy_timeout(5000)&_time_format=sqlite",
		path,
	)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: opening database %s: %w", path, err)
	}

	// Sole-writer pattern: only one connection writes at a time.
	db.SetMaxOpenConns(1)

	return db, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Driver returns the active driver name.
func (s *Store) Driver() string {
	return s.driver
}

// Ping checks connectivity for health probes.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// q adapts a query written with ? placeholders to the active driver.
func (s *Store) q(query string) string {
	if s.driver == DriverPostgres {
		return rebindDollar(query)
	}

	return query
}

// rebindDollar rewrites ? placeholders to $1, $2, ... Quoted literals in our
// queries never contain '?', so no lexing is needed.
func rebindDollar(query string) string {
	var (
		b strings.Builder
		n int
	)

	b.Grow(len(query) + 8)

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

// placeholders returns "?, ?, ?" for n values.
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}

	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func stringArgs(vals []string) []any {
	args := make([]any, len(vals))
	for i, v := range vals {
		args[i] = v
	}

	return args
}

// withTx runs fn in a transaction, committing on nil and rolling back otherwise.
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: committing transaction: %w", err)
	}

	return nil
}

func (s *Store) now() time.Time {
	return s.nowFunc().UTC()
}

func nullTimePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}

	t := nt.Time.UTC()

	return &t
}

func timePtrArg(t *time.Time) any {
	if t == nil {
		return nil
	}

	return t.UTC()
}
