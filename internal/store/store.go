// Package store owns the projection database: schema, transactions, and
// read queries over the derived relational index (spec §3.1, §4.I).
// Backed by github.com/ncruces/go-sqlite3, a pure-Go wazero-based SQLite,
// matching the teacher's driver choice.
package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/untoldecay/bones/internal/bonerr"
	"github.com/untoldecay/bones/internal/fts"
)

// DB wraps the projection database connection.
type DB struct {
	conn *sql.DB
	path string
}

// Open opens (creating if absent) the projection database at path and
// ensures the schema exists.
func Open(path string) (*DB, error) {
	dsn := fmt.Sprintf("file:%s?_txlock=immediate", path)
	conn, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, bonerr.Wrap(bonerr.IO, "opening projection database", err)
	}
	conn.SetMaxOpenConns(1) // single-writer; readers use their own handle via snapshot isolation
	if _, err := conn.Exec(schema); err != nil {
		conn.Close()
		return nil, bonerr.Wrap(bonerr.IO, "creating projection schema", err)
	}
	if err := fts.Ensure(context.Background(), conn); err != nil {
		conn.Close()
		return nil, err
	}
	return &DB{conn: conn, path: path}, nil
}

// Path returns the on-disk path of the projection database.
func (db *DB) Path() string { return db.path }

// UnderlyingDB exposes the raw *sql.DB for callers needing direct access
// (FTS index maintenance, rebuild's drop-and-recreate).
func (db *DB) UnderlyingDB() *sql.DB { return db.conn }

// Close closes the underlying connection.
func (db *DB) Close() error { return db.conn.Close() }

// Tx is the subset of *sql.Tx the projector and read queries need.
type Tx struct {
	tx *sql.Tx
}

// WithTx runs fn inside a BEGIN IMMEDIATE transaction (forced by the
// _txlock=immediate DSN parameter), committing on success and rolling back
// on error or panic.
func (db *DB) WithTx(ctx context.Context, fn func(tx *Tx) error) (err error) {
	sqlTx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return bonerr.Wrap(bonerr.IO, "beginning transaction", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = sqlTx.Rollback()
			panic(p)
		}
	}()

	if err := fn(&Tx{tx: sqlTx}); err != nil {
		_ = sqlTx.Rollback()
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return bonerr.Wrap(bonerr.IO, "committing transaction", err)
	}
	return nil
}

func (t *Tx) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return t.tx.ExecContext(ctx, query, args...)
}

func (t *Tx) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return t.tx.QueryContext(ctx, query, args...)
}

func (t *Tx) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return t.tx.QueryRowContext(ctx, query, args...)
}
