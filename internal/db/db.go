// Package db provides database persistence for the preset and profile store.
//
// SQLite is the default; PostgreSQL is supported for shared deployments.
// Queries are written once with ? placeholders and rebound per dialect.
package db

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"

	"github.com/randalmurphal/promptfinder/internal/db/driver"
)

//go:embed schema/*.sql schema/postgres/*.sql
var schemaFS embed.FS

// embedFSAdapter wraps embed.FS to implement driver.SchemaFS.
type embedFSAdapter struct {
	fs embed.FS
}

func (e *embedFSAdapter) ReadDir(name string) ([]driver.DirEntry, error) {
	entries, err := e.fs.ReadDir(name)
	if err != nil {
		return nil, err
	}
	result := make([]driver.DirEntry, len(entries))
	for i, entry := range entries {
		result[i] = entry
	}
	return result, nil
}

func (e *embedFSAdapter) ReadFile(name string) ([]byte, error) {
	return e.fs.ReadFile(name)
}

// DB wraps a database connection with driver abstraction.
type DB struct {
	driver driver.Driver
	path   string
}

// Open opens a SQLite database at the given path, creating the parent
// directory if needed.
func Open(path string) (*DB, error) {
	return OpenWithDialect(path, driver.DialectSQLite)
}

// OpenInMemory opens an in-memory SQLite database. Each call creates a new
// isolated database.
func OpenInMemory() (*DB, error) {
	return OpenWithDialect(driver.MemoryDSN, driver.DialectSQLite)
}

// OpenWithDialect opens a database with a specific dialect.
// For SQLite, dsn is the file path. For PostgreSQL, dsn is the connection string.
func OpenWithDialect(dsn string, dialect driver.Dialect) (*DB, error) {
	if dialect == driver.DialectSQLite && dsn != driver.MemoryDSN {
		if err := os.MkdirAll(filepath.Dir(dsn), 0755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}

	drv, err := driver.New(dialect)
	if err != nil {
		return nil, err
	}
	if err := drv.Open(dsn); err != nil {
		return nil, err
	}

	return &DB{driver: drv, path: dsn}, nil
}

// Close closes the database connection.
func (d *DB) Close() error {
	return d.driver.Close()
}

// Path returns the database DSN/path.
func (d *DB) Path() string {
	return d.path
}

// DB returns the underlying sql.DB for advanced operations.
func (d *DB) DB() *sql.DB {
	return d.driver.DB()
}

// Dialect returns the database dialect.
func (d *DB) Dialect() driver.Dialect {
	return d.driver.Dialect()
}

// Migrate runs all migrations for the given schema type.
// Schema files are named {type}_NNN.sql (e.g., store_001.sql).
func (d *DB) Migrate(ctx context.Context, schemaType string) error {
	return d.driver.Migrate(ctx, &embedFSAdapter{fs: schemaFS}, schemaType)
}

// ExecContext executes a query without returning rows.
func (d *DB) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return d.driver.Exec(ctx, query, args...)
}

// QueryContext executes a query that returns rows.
func (d *DB) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return d.driver.Query(ctx, query, args...)
}

// QueryRowContext executes a query that returns at most one row.
func (d *DB) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return d.driver.QueryRow(ctx, query, args...)
}

// Placeholder returns the placeholder for the index-th argument.
func (d *DB) Placeholder(index int) string {
	return d.driver.Placeholder(index)
}

// TxOps runs queries inside a transaction started by RunInTx.
type TxOps struct {
	tx      driver.Tx
	dialect driver.Dialect
}

// ExecContext executes a query within the transaction.
func (t *TxOps) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return t.tx.Exec(ctx, query, args...)
}

// QueryContext executes a query that returns rows within the transaction.
func (t *TxOps) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return t.tx.Query(ctx, query, args...)
}

// QueryRowContext executes a query that returns at most one row within the
// transaction.
func (t *TxOps) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return t.tx.QueryRow(ctx, query, args...)
}

// Dialect returns the database dialect.
func (t *TxOps) Dialect() driver.Dialect {
	return t.dialect
}

// RunInTx executes fn within a transaction. If fn returns an error the
// transaction is rolled back, otherwise it is committed.
func (d *DB) RunInTx(ctx context.Context, fn func(tx *TxOps) error) error {
	tx, err := d.driver.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	if err := fn(&TxOps{tx: tx, dialect: d.Dialect()}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("rollback failed: %w (original error: %v)", rbErr, err)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
