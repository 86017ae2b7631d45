// Package db is the relational store behind cmsauth sessions and the bundled
// user, grant and login-attempt tables.
//
// Queries are written once with ? placeholders and rebound per [Dialect].
// Values are always passed as parameters; only identifiers are quoted into
// query text, through [Dialect.QuoteIdentifier].
//
// # Architecture boundaries
//
// This package knows SQL dialects, connection pooling and table locking. It
// does NOT know what a session, user or permission is.
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
)

var (
	// ErrUnavailable wraps every failure to reach or query the backing store.
	ErrUnavailable = errors.New("database unavailable")
	// ErrUnsupportedDialect is returned for dialect names cmsauth has no driver for.
	ErrUnsupportedDialect = errors.New("unsupported database dialect")
)

// Querier is satisfied by *sql.DB, *sql.Conn and *sql.Tx.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Config selects the driver and pool settings.
type Config struct {
	Dialect         Dialect
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// DB is a dialect-aware handle. Its query methods accept ? placeholders.
type DB struct {
	sql     *sql.DB
	dialect Dialect
}

// Open connects to the configured store and verifies the connection.
func Open(ctx context.Context, cfg Config) (*DB, error) {
	switch cfg.Dialect {
	case MySQL, Postgres:
	case SQLite:
		ensureSQLiteDriver()
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedDialect, cfg.Dialect)
	}

	conn, err := sql.Open(cfg.Dialect.driverName(), cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	if cfg.Dialect == SQLite && isMemoryDSN(cfg.DSN) {
		// each connection to :memory: is a separate database
		conn.SetMaxOpenConns(1)
	} else if cfg.MaxOpenConns > 0 {
		conn.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		conn.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		conn.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return &DB{sql: conn, dialect: cfg.Dialect}, nil
}

// Wrap adapts an existing pool. The caller keeps ownership of conn.
func Wrap(conn *sql.DB, dialect Dialect) *DB {
	return &DB{sql: conn, dialect: dialect}
}

// Dialect returns the dialect the handle was opened with.
func (d *DB) Dialect() Dialect {
	return d.dialect
}

// SQL exposes the underlying pool.
func (d *DB) SQL() *sql.DB {
	return d.sql
}

// Close releases the pool.
func (d *DB) Close() error {
	return d.sql.Close()
}

func (d *DB) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return d.sql.ExecContext(ctx, d.dialect.Rebind(query), args...)
}

func (d *DB) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return d.sql.QueryContext(ctx, d.dialect.Rebind(query), args...)
}

func (d *DB) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return d.sql.QueryRowContext(ctx, d.dialect.Rebind(query), args...)
}

type rebound struct {
	q       Querier
	dialect Dialect
}

func (r rebound) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return r.q.ExecContext(ctx, r.dialect.Rebind(query), args...)
}

func (r rebound) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return r.q.QueryContext(ctx, r.dialect.Rebind(query), args...)
}

func (r rebound) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return r.q.QueryRowContext(ctx, r.dialect.Rebind(query), args...)
}

// WithTableLock runs fn while holding an exclusive write lock on table. fn must
// issue its statements through the Querier it is given. The lock is always
// released, and for transactional dialects an error from fn rolls back.
//
//   - MySQL: LOCK TABLES ... WRITE / UNLOCK TABLES on a pinned connection.
//   - Postgres: LOCK TABLE ... IN EXCLUSIVE MODE inside a transaction.
//   - SQLite: BEGIN IMMEDIATE on a pinned connection.
func (d *DB) WithTableLock(ctx context.Context, table string, fn func(Querier) error) error {
	switch d.dialect {
	case Postgres:
		return d.lockPostgres(ctx, table, fn)
	case MySQL:
		return d.lockPinned(ctx, "LOCK TABLES "+d.dialect.QuoteIdentifier(table)+" WRITE", "UNLOCK TABLES", "UNLOCK TABLES", fn)
	case SQLite:
		return d.lockPinned(ctx, "BEGIN IMMEDIATE", "COMMIT", "ROLLBACK", fn)
	}
	return fmt.Errorf("%w: %q", ErrUnsupportedDialect, d.dialect)
}

func (d *DB) lockPostgres(ctx context.Context, table string, fn func(Querier) error) error {
	tx, err := d.sql.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if _, err := tx.ExecContext(ctx, "LOCK TABLE "+d.dialect.QuoteIdentifier(table)+" IN EXCLUSIVE MODE"); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if err := fn(rebound{q: tx, dialect: d.dialect}); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (d *DB) lockPinned(ctx context.Context, lock, release, abort string, fn func(Querier) error) error {
	conn, err := d.sql.Conn(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, lock); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	if err := fn(rebound{q: conn, dialect: d.dialect}); err != nil {
		// release on a fresh context so a cancelled request cannot leave the lock held
		_, _ = conn.ExecContext(context.WithoutCancel(ctx), abort)
		return err
	}
	if _, err := conn.ExecContext(context.WithoutCancel(ctx), release); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}
