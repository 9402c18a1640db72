// Package sqlite provides a concrete implementation of the persistence.Store
// interface for SQLite databases. Documents are kept as JSON bodies grouped by
// collection; rule sets are kept with their rules encoded as JSON.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/asaidimu/go-sieve/core/persistence"
	"go.uber.org/zap"
)

// dbRunner is an interface that abstracts the common methods of *sql.DB and *sql.Tx,
// allowing for the same code to be used for both transactional and non-transactional
// database operations.
type dbRunner interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Options controls how the store lays out and creates its tables.
type Options struct {
	TablePrefix   string // Prepended to every table name.
	IfNotExists   bool   // Use CREATE ... IF NOT EXISTS.
	CreateIndexes bool   // Create the lookup indexes.
	DropIfExists  bool   // Drop existing tables before creating them.
}

// DefaultOptions returns a set of sensible default options for the SQLite
// store.
func DefaultOptions() *Options {
	return &Options{
		IfNotExists:   true, // Prevent errors if a table already exists.
		CreateIndexes: true,
	}
}

// Store is the SQLite implementation of persistence.Store. It can operate in
// both transactional and non-transactional modes.
type Store struct {
	db      *sql.DB
	tx      *sql.Tx
	logger  *zap.Logger
	options *Options
}

// Ensure Store implements the persistence.Store interface.
var _ persistence.Store = (*Store)(nil)

// NewStore creates a store over db. Call EnsureSchema before first use.
func NewStore(db *sql.DB, logger *zap.Logger, options *Options) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	if options == nil {
		options = DefaultOptions()
	}
	return &Store{
		db:      db,
		options: options,
		logger:  logger,
	}
}

// runner returns the appropriate dbRunner for the current context, either the
// database connection pool or the active transaction.
func (s *Store) runner() dbRunner {
	if s.tx != nil {
		return s.tx
	}
	return s.db
}

// StartTransaction begins a new database transaction and returns a new Store
// that is scoped to that transaction.
func (s *Store) StartTransaction(ctx context.Context) (*Store, error) {
	if s.tx != nil {
		return nil, fmt.Errorf("cannot start a new transaction from an existing transactional store")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	s.logger.Debug("Transaction initiated, returning new transactional store")
	return &Store{db: s.db, tx: tx, logger: s.logger, options: s.options}, nil
}

// Commit commits the current transaction.
func (s *Store) Commit() error {
	if s.tx == nil {
		return fmt.Errorf("commit not applicable: not in a transactional context")
	}
	s.logger.Debug("Committing transaction")
	return s.tx.Commit()
}

// Rollback rolls back the current transaction.
func (s *Store) Rollback() error {
	if s.tx == nil {
		return fmt.Errorf("rollback not applicable: not in a transactional context")
	}
	s.logger.Debug("Rolling back transaction")
	return s.tx.Rollback()
}

// transact runs fn in a transaction, or directly when the store is already
// transactional.
func (s *Store) transact(ctx context.Context, fn func(tx *Store) error) error {
	if s.tx != nil {
		return fn(s)
	}
	tx, err := s.StartTransaction(ctx)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			s.logger.Error("Failed to roll back transaction", zap.Error(rbErr))
		}
		return err
	}
	return tx.Commit()
}
