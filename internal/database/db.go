// Package database provides PostgreSQL persistence for portfolios, orders,
// positions, trades, strategies, and performance snapshots.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"runtime"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"

	"github.com/trogers1052/paper-trading-service/internal/engine"
	"github.com/trogers1052/paper-trading-service/internal/indicator"
	"github.com/trogers1052/paper-trading-service/internal/strategy"
)

// Compile-time interface checks.
var (
	_ engine.Store              = (*DB)(nil)
	_ strategy.Repository       = (*DB)(nil)
	_ indicator.ScoreRepository = (*DB)(nil)
)

// queryer abstracts over *sql.DB and *sql.Tx so repository methods work both
// standalone and inside a transaction.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// DB wraps the database connection. A DB obtained from InTx routes all
// queries through the open transaction.
type DB struct {
	conn *sql.DB
	q    queryer
}

// New connects to PostgreSQL and verifies the connection.
func New(connStr string) (*DB, error) {
	conn, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := conn.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &DB{conn: conn, q: conn}, nil
}

// Close closes the underlying connection pool.
func (db *DB) Close() error {
	return db.conn.Close()
}

// InTx runs fn inside a transaction. The store passed to fn routes every
// query through that transaction; nesting reuses the open transaction.
func (db *DB) InTx(ctx context.Context, fn func(tx engine.Store) error) error {
	if _, ok := db.q.(*sql.Tx); ok {
		return fn(db)
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	txDB := &DB{conn: db.conn, q: tx}
	if err := fn(txDB); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("failed to roll back transaction: %v (original error: %w)", rbErr, err)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// RunMigrations applies all pending migrations from db/migrations.
func (db *DB) RunMigrations() error {
	driver, err := postgres.WithInstance(db.conn, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	_, filename, _, _ := runtime.Caller(0)
	migrationsPath := filepath.Join(filepath.Dir(filename), "..", "..", "db", "migrations")

	m, err := migrate.NewWithDatabaseInstance(
		"file://"+migrationsPath,
		"postgres",
		driver,
	)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}
