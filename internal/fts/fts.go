// Package fts maintains the SQLite FTS5 full-text index over items, kept
// in sync with the relational projection via triggers in the same
// transaction as the projector's writes (spec §4.K).
package fts

import (
	"context"
	"database/sql"

	"github.com/untoldecay/bones/internal/bonerr"
)

const schema = `
CREATE VIRTUAL TABLE IF NOT EXISTS items_fts USING fts5(
	item_id UNINDEXED,
	title,
	description,
	search_labels,
	content = 'items',
	content_rowid = 'rowid',
	prefix = '2 3'
);

CREATE TRIGGER IF NOT EXISTS items_fts_ai AFTER INSERT ON items BEGIN
	INSERT INTO items_fts(rowid, item_id, title, description, search_labels)
	VALUES (new.rowid, new.item_id, new.title, new.description, new.search_labels);
END;

CREATE TRIGGER IF NOT EXISTS items_fts_ad AFTER DELETE ON items BEGIN
	INSERT INTO items_fts(items_fts, rowid, item_id, title, description, search_labels)
	VALUES ('delete', old.rowid, old.item_id, old.title, old.description, old.search_labels);
END;

CREATE TRIGGER IF NOT EXISTS items_fts_au AFTER UPDATE ON items BEGIN
	INSERT INTO items_fts(items_fts, rowid, item_id, title, description, search_labels)
	VALUES ('delete', old.rowid, old.item_id, old.title, old.description, old.search_labels);
	INSERT INTO items_fts(rowid, item_id, title, description, search_labels)
	VALUES (new.rowid, new.item_id, new.title, new.description, new.search_labels);
END;
`

// Ensure creates the FTS5 virtual table and its maintenance triggers if
// they don't already exist. Safe to call on every projection database open.
func Ensure(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return bonerr.Wrap(bonerr.IO, "creating items_fts index", err)
	}
	return nil
}

// Hit is one search result, ranked by FTS5's bm25() relevance score.
type Hit struct {
	ItemID string
	Rank   float64
}

// Search runs a full-text query over title/description/labels, ordered by
// relevance, capped at limit results.
func Search(ctx context.Context, db *sql.DB, query string, limit int) ([]Hit, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT item_id, bm25(items_fts) AS rank
		FROM items_fts
		WHERE items_fts MATCH ?
		ORDER BY rank
		LIMIT ?`, query, limit)
	if err != nil {
		return nil, bonerr.Wrap(bonerr.IO, "searching items_fts", err)
	}
	defer rows.Close()

	var hits []Hit
	for rows.Next() {
		var h Hit
		if err := rows.Scan(&h.ItemID, &h.Rank); err != nil {
			return nil, bonerr.Wrap(bonerr.IO, "scanning search hit", err)
		}
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

// Rebuild repopulates items_fts from the current items table, e.g. to
// recover from drift. rebuild.Full does not call it: the triggers keep the
// index in step while the log is replayed.
func Rebuild(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, `INSERT INTO items_fts(items_fts) VALUES ('rebuild')`); err != nil {
		return bonerr.Wrap(bonerr.IO, "rebuilding items_fts", err)
	}
	return nil
}

// InSync reports whether items_fts' row count matches items' row count,
// the external-content parity check spec §4.K names as a health signal.
func InSync(ctx context.Context, db *sql.DB) (bool, error) {
	var itemsCount, ftsCount int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM items`).Scan(&itemsCount); err != nil {
		return false, bonerr.Wrap(bonerr.IO, "counting items", err)
	}
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM items_fts`).Scan(&ftsCount); err != nil {
		return false, bonerr.Wrap(bonerr.IO, "counting items_fts", err)
	}
	return itemsCount == ftsCount, nil
}
