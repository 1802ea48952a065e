package sqlstore

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/boddenberg/envelope-ledger/internal/port"

	"github.com/jackc/pgx/v5/pgconn"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// Postgres SQLSTATE codes.
const (
	pgUniqueViolation      = "23505"
	pgForeignKeyViolation  = "23503"
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
)

// translate maps driver errors onto the port sentinels. Errors it does not
// recognise are returned unchanged.
func translate(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return port.ErrNoRows
	}

	var se *sqlite.Error
	if errors.As(err, &se) {
		switch se.Code() {
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return fmt.Errorf("%w: %v", port.ErrUniqueViolation, err)
		case sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY:
			return fmt.Errorf("%w: %v", port.ErrForeignKeyViolation, err)
		}
		if se.Code()&0xff == sqlite3.SQLITE_CONSTRAINT {
			msg := se.Error()
			switch {
			case strings.Contains(msg, "UNIQUE constraint failed"):
				return fmt.Errorf("%w: %v", port.ErrUniqueViolation, err)
			case strings.Contains(msg, "FOREIGN KEY constraint failed"):
				return fmt.Errorf("%w: %v", port.ErrForeignKeyViolation, err)
			}
		}
		return err
	}

	var pe *pgconn.PgError
	if errors.As(err, &pe) {
		switch pe.Code {
		case pgUniqueViolation:
			return fmt.Errorf("%w: %v", port.ErrUniqueViolation, err)
		case pgForeignKeyViolation:
			return fmt.Errorf("%w: %v", port.ErrForeignKeyViolation, err)
		}
	}
	return err
}

// isRetryable reports lock conflicts worth replaying the transaction for.
func isRetryable(err error) bool {
	var se *sqlite.Error
	if errors.As(err, &se) {
		switch se.Code() & 0xff {
		case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
			return true
		}
		return false
	}

	var pe *pgconn.PgError
	if errors.As(err, &pe) {
		return pe.Code == pgSerializationFailure || pe.Code == pgDeadlockDetected
	}
	return false
}
