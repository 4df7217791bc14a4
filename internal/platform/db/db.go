// Package db opens the relational store shared by every repository.
//
// Postgres (lib/pq) is the production dialect. SQLite (modernc.org/sqlite)
// backs embedded deployments and tests. Queries are written with "?"
// placeholders and rebound per driver by sqlx.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

type Dialect string

const (
	Postgres Dialect = "postgres"
	SQLite   Dialect = "sqlite"
)

// DB wraps sqlx.DB with the dialect-specific transaction options.
type DB struct {
	*sqlx.DB
	dialect Dialect
}

// Open connects to the database for driver ("postgres" or "sqlite").
func Open(driver, url string) (*DB, error) {
	dialect := Dialect(strings.ToLower(driver))
	switch dialect {
	case Postgres:
		x, err := sqlx.Open("postgres", url)
		if err != nil {
			return nil, fmt.Errorf("opening database: %w", err)
		}
		return &DB{DB: x, dialect: Postgres}, nil
	case SQLite:
		return openSQLite(url)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
}

func openSQLite(url string) (*DB, error) {
	if !strings.Contains(url, "_time_format=") {
		sep := "?"
		if strings.Contains(url, "?") {
			sep = "&"
		}
		url += sep + "_time_format=sqlite"
	}

	x, err := sqlx.Open("sqlite", url)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// SQLite allows one writer; a single connection serializes transactions
	// instead of surfacing SQLITE_BUSY to callers.
	x.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
		"PRAGMA synchronous=NORMAL",
	}
	for _, p := range pragmas {
		if _, err := x.Exec(p); err != nil {
			x.Close()
			return nil, fmt.Errorf("setting pragma %q: %w", p, err)
		}
	}
	return &DB{DB: x, dialect: SQLite}, nil
}

func (d *DB) Dialect() Dialect { return d.dialect }

func (d *DB) txOptions() *sql.TxOptions {
	if d.dialect == Postgres {
		return &sql.TxOptions{Isolation: sql.LevelSerializable}
	}
	return nil
}

// WithTx runs fn inside one transaction. fn's error rolls everything back;
// driver errors are classified so that lost races surface as conflicts.
func (d *DB) WithTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := d.BeginTxx(ctx, d.txOptions())
	if err != nil {
		return Classify("begin transaction", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return Classify("run transaction", err)
	}
	if err := tx.Commit(); err != nil {
		return Classify("commit transaction", err)
	}
	return nil
}
