// Package database is the store gateway: typed access to persistent
// entities, transactional helpers, and idempotent schema bootstrap.
// The gateway never interprets values, only persists them.
package database

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/sitewatch/backend/internal/errs"
)

const (
	maxOpenConns = 20
	// Bounded wait for a pooled connection before surfacing
	// ErrStorageUnavailable to the caller.
	acquireTimeout = 2 * time.Second
)

// Store wraps the Postgres pool with typed per-entity operations.
type Store struct {
	db     *sqlx.DB
	logger *log.Logger
}

// New opens the pool and verifies connectivity.
func New(databaseURL string) (*Store, error) {
	db, err := sqlx.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &Store{
		db:     db,
		logger: log.New(log.Writer(), "[Store] ", log.LstdFlags),
	}, nil
}

// NewFromDB wraps an existing pool; used by tests with sqlmock.
func NewFromDB(db *sql.DB) *Store {
	return &Store{
		db:     sqlx.NewDb(db, "postgres"),
		logger: log.New(log.Writer(), "[Store] ", log.LstdFlags),
	}
}

// Close releases the pool.
func (s *Store) Close() error { return s.db.Close() }

// Ping reports pool health for the /health endpoint.
func (s *Store) Ping(ctx context.Context) error {
	return mapError(s.db.PingContext(ctx))
}

// Tx is the view of the store handed to a WithTx callback. All statements
// issued through it share one serialisable connection.
type Tx struct {
	tx *sqlx.Tx
}

// WithTx runs fn inside a single transaction. A pooled connection is held
// for the whole callback and released on commit or rollback; the acquire
// wait is bounded so pool exhaustion surfaces as ErrStorageUnavailable
// instead of queueing indefinitely.
func (s *Store) WithTx(ctx context.Context, fn func(*Tx) error) error {
	// The deadline bounds only the connection acquire. The transaction
	// itself runs on the caller's context; a context that expires mid-tx
	// would roll it back out from under the callback.
	acquireCtx, cancel := context.WithTimeout(ctx, acquireTimeout)
	conn, err := s.db.Connx(acquireCtx)
	cancel()
	if err != nil {
		return mapError(err)
	}
	defer conn.Close()

	tx, err := conn.BeginTxx(ctx, nil)
	if err != nil {
		return mapError(err)
	}

	if err := fn(&Tx{tx: tx}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			s.logger.Printf("rollback failed: %v", rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return mapError(err)
	}
	return nil
}

// mapError translates driver errors into the surface-stable kinds.
// 23505 (unique_violation) → Conflict; 23503 (foreign_key_violation) →
// Validation; connection-class failures → StorageUnavailable; no rows →
// NotFound. Anything else passes through for the facade's 500 path.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w", errs.ErrNotFound)
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch {
		case pqErr.Code == "23505":
			return fmt.Errorf("%s: %w", pqErr.Constraint, errs.ErrConflict)
		case pqErr.Code == "23503":
			return fmt.Errorf("%s: %w", pqErr.Constraint, errs.ErrValidation)
		case pqErr.Code.Class() == "08", // connection exceptions
			pqErr.Code == "53300", // too_many_connections
			pqErr.Code == "57P01": // admin_shutdown
			return fmt.Errorf("%v: %w", pqErr.Code, errs.ErrStorageUnavailable)
		}
		return err
	}
	if errors.Is(err, driver.ErrBadConn) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, context.Canceled) {
		return fmt.Errorf("%v: %w", err, errs.ErrStorageUnavailable)
	}
	return err
}
