// Package sqlstore implements port.Store on a relational database:
// SQLite through modernc.org/sqlite by default, Postgres through pgx.
package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/boddenberg/envelope-ledger/internal/infra/resilience"
	"github.com/boddenberg/envelope-ledger/internal/port"

	_ "github.com/jackc/pgx/v5/stdlib"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

var tracer = otel.Tracer("infra/sqlstore")

// Supported drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config selects and tunes the database.
type Config struct {
	Driver         string // sqlite | postgres
	DSN            string // file path for sqlite, connection URL for postgres
	MaxRetries     int
	InitialBackoff time.Duration
	MaxWriters     int
}

// Store is a port.Store backed by database/sql.
type Store struct {
	db      *sql.DB
	q       *queries
	retry   resilience.Config
	writers *resilience.Bulkhead
	logger  *zap.Logger
}

var _ port.Store = (*Store)(nil)

// Open connects to the database, applies pending migrations and returns a
// ready Store. Close releases the connection pool.
func Open(ctx context.Context, cfg Config, logger *zap.Logger) (*Store, error) {
	var (
		d          dialect
		driverName string
		dsn        string
	)
	switch cfg.Driver {
	case DriverSQLite, "":
		d, driverName = dialectSQLite, "sqlite"
		if err := ensureDir(cfg.DSN); err != nil {
			return nil, err
		}
		dsn = sqliteDSN(cfg.DSN)
	case DriverPostgres:
		d, driverName, dsn = dialectPostgres, "pgx", cfg.DSN
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}

	if err := migrateUp(d, driverName, dsn); err != nil {
		return nil, err
	}

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", cfg.Driver, err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	logger.Info("database ready", zap.String("driver", driverName))

	return &Store{
		db: db,
		q:  &queries{db: db, d: d},
		retry: resilience.Config{
			MaxRetries:     cfg.MaxRetries,
			InitialBackoff: cfg.InitialBackoff,
			Retryable:      isRetryable,
		},
		writers: resilience.NewBulkhead(cfg.MaxWriters),
		logger:  logger,
	}, nil
}

// Close releases the connection pool.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// WithTx runs fn in one database transaction, retrying the whole unit when
// the engine reports a transient lock conflict.
func (s *Store) WithTx(ctx context.Context, fn func(tx port.Tx) error) error {
	ctx, span := tracer.Start(ctx, "Store.WithTx")
	defer span.End()

	if err := s.writers.Acquire(ctx); err != nil {
		return err
	}
	defer s.writers.Release()

	attempt := 0
	return resilience.RetryWithBackoff(ctx, s.retry, func() error {
		attempt++
		if attempt > 1 {
			s.logger.Warn("retrying transaction after lock conflict", zap.Int("attempt", attempt))
		}
		return s.runTx(ctx, fn)
	})
}

func (s *Store) runTx(ctx context.Context, fn func(tx port.Tx) error) (err error) {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = sqlTx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = sqlTx.Rollback()
		}
	}()

	if err = fn(&txn{queries: &queries{db: sqlTx, d: s.q.d, inTx: true}}); err != nil {
		return err
	}
	if err = sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// txn is the port.Tx handed to WithTx callbacks.
type txn struct {
	*queries
}

var _ port.Tx = (*txn)(nil)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// queries holds every statement. All SQL is written with ? placeholders
// and rebound for the active dialect.
type queries struct {
	db   querier
	d    dialect
	inTx bool
}

func (q *queries) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	res, err := q.db.ExecContext(ctx, q.d.rebind(query), args...)
	return res, translate(err)
}

func (q *queries) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	rows, err := q.db.QueryContext(ctx, q.d.rebind(query), args...)
	return rows, translate(err)
}

func (q *queries) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return q.db.QueryRowContext(ctx, q.d.rebind(query), args...)
}

// guardedExec runs a statement that may hit a unique or foreign-key
// constraint inside a savepoint, so the surrounding transaction stays
// usable after the violation. Postgres aborts the whole transaction on any
// failed statement otherwise.
func (q *queries) guardedExec(ctx context.Context, query string, args ...any) error {
	if !q.inTx {
		_, err := q.exec(ctx, query, args...)
		return err
	}

	if _, err := q.db.ExecContext(ctx, "SAVEPOINT ledger_guard"); err != nil {
		return fmt.Errorf("savepoint: %w", err)
	}
	if _, err := q.exec(ctx, query, args...); err != nil {
		if _, rbErr := q.db.ExecContext(ctx, "ROLLBACK TO SAVEPOINT ledger_guard"); rbErr != nil {
			return fmt.Errorf("rollback to savepoint: %w (after %v)", rbErr, err)
		}
		if _, relErr := q.db.ExecContext(ctx, "RELEASE SAVEPOINT ledger_guard"); relErr != nil {
			return fmt.Errorf("release savepoint: %w", relErr)
		}
		return err
	}
	if _, err := q.db.ExecContext(ctx, "RELEASE SAVEPOINT ledger_guard"); err != nil {
		return fmt.Errorf("release savepoint: %w", err)
	}
	return nil
}

// ============================================================
// Dialects
// ============================================================

type dialect int

const (
	dialectSQLite dialect = iota
	dialectPostgres
)

func (d dialect) String() string {
	if d == dialectPostgres {
		return DriverPostgres
	}
	return DriverSQLite
}

// rebind rewrites ? placeholders as $1, $2, ... for Postgres.
func (d dialect) rebind(query string) string {
	if d != dialectPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// placeholders returns "?, ?, ?" with n marks.
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

// sqliteDSN turns a file path into a modernc DSN with foreign keys on,
// a busy timeout, WAL and write-locking transactions.
func sqliteDSN(path string) string {
	params := "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_txlock=immediate"
	if strings.Contains(path, "?") {
		return path + "&" + params
	}
	return path + "?" + params
}

func ensureDir(path string) error {
	if path == "" || strings.HasPrefix(path, "file:") || strings.Contains(path, ":memory:") {
		return nil
	}
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create db directory: %w", err)
	}
	return nil
}

// Time values are stored as RFC 3339 text in both dialects.
func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
