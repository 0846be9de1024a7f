package repository

import (
	"context"
	"strings"

	"github.com/Aidin1998/pincex_futures/pkg/errors"
	"github.com/dgraph-io/badger/v3"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mattn/go-sqlite3"
	"gorm.io/gorm"
)

// Postgres SQLSTATE codes that mean "retry the whole transaction".
const (
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
	pgLockNotAvailable     = "55P03"
)

// translateError maps driver errors onto the service taxonomy. Errors that
// already belong to the taxonomy pass through unchanged.
func translateError(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	var appErr *errors.Error
	if errors.As(err, &appErr) {
		return err
	}

	switch {
	case errors.Is(err, gorm.ErrRecordNotFound), errors.Is(err, badger.ErrKeyNotFound):
		return errors.NotFound.Explain(format, args...)
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return errors.InvalidState.Explain(format+": already exists", args...).Wrap(err)
	case isConflict(err):
		return errors.ConcurrencyConflict.Explain(format, args...).Wrap(err)
	default:
		return errors.StoreUnavailable.Explain(format, args...).Wrap(err)
	}
}

func isConflict(err error) bool {
	if errors.Is(err, badger.ErrConflict) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgSerializationFailure, pgDeadlockDetected, pgLockNotAvailable:
			return true
		}
	}
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrBusy || sqliteErr.Code == sqlite3.ErrLocked
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	return strings.Contains(err.Error(), "database is locked")
}
