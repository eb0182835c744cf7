// Package store implements the Store (spec §4.9): transactional sqlite
// persistence for packages, versions, distributions, ownership, API
// tokens, and the audit log. Modeled on the teacher's sqlx-backed
// internal/store, generalized from single-statement CRUD helpers to
// the multi-table commits the Registration Coordinator needs, with an
// optimistic-retry loop around sqlite's SQLITE_BUSY contention the
// teacher's single-writer dev setup never had to handle.
package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/cenk/backoff"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"islandregistry/internal/regerr"
)

// Store wraps a sqlite connection and the retry policy around
// transient lock-contention errors.
type Store struct {
	DB *sqlx.DB
}

// Open opens (and migrates) a sqlite-backed Store at path.
func Open(path string) (*Store, error) {
	db, err := sqlx.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{DB: db}, nil
}

// New wraps an already-open sqlx connection, applying the schema.
// Tests use this with an in-memory sqlite handle.
func New(db *sqlx.DB) (*Store, error) {
	if _, err := db.Exec(schema); err != nil {
		return nil, err
	}
	return &Store{DB: db}, nil
}

func (s *Store) Close() error { return s.DB.Close() }

// withTx runs fn inside a transaction, retrying on sqlite's
// SQLITE_BUSY/"database is locked" contention with exponential
// backoff (spec §4.9: optimistic-lock retry budget ≥3). Any other
// error, or exhaustion of the retry budget, aborts without retry.
func (s *Store) withTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 10 * time.Millisecond
	b.MaxInterval = 200 * time.Millisecond
	b.MaxElapsedTime = 2 * time.Second
	retries := 0

	operation := func() error {
		tx, err := s.DB.BeginTxx(ctx, nil)
		if err != nil {
			return classifyTxError(err)
		}
		if err := fn(tx); err != nil {
			tx.Rollback()
			if isTransient(err) && retries < 3 {
				retries++
				return err
			}
			return backoff.Permanent(err)
		}
		if err := tx.Commit(); err != nil {
			if isTransient(err) && retries < 3 {
				retries++
				return err
			}
			return backoff.Permanent(err)
		}
		return nil
	}

	// backoff.Retry unwraps a backoff.Permanent error to its original
	// cause before returning, so callers here see plain store/regerr
	// errors, never a *backoff.PermanentError.
	err := backoff.Retry(operation, b)
	if err == nil {
		return nil
	}
	if _, isRegerr := err.(*regerr.Error); isRegerr {
		return err
	}
	return regerr.Wrap(regerr.KindInternal, err)
}

func isTransient(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "SQLITE_BUSY")
}

func classifyTxError(err error) error {
	if isTransient(err) {
		return err
	}
	return backoff.Permanent(err)
}

// isUniqueViolation reports whether err is a sqlite UNIQUE constraint
// failure, the signal a concurrent duplicate insert raises.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

var errNotFound = sql.ErrNoRows

func isNotFound(err error) bool { return errors.Is(err, errNotFound) }

// IsNotFound reports whether err is the store's not-found sentinel, so
// callers outside this package can branch a genuine miss away from any
// other store error rather than treating both alike.
func IsNotFound(err error) bool { return isNotFound(err) }
