//go:build sqlite_fts5

package journal

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/starford/denote-reconcile/internal/reconcile"
)

func initFTS(conn *sql.DB) error {
	_, err := conn.Exec(`
		CREATE VIRTUAL TABLE IF NOT EXISTS items_fts USING fts5(
			pass_id UNINDEXED,
			category UNINDEXED,
			note,
			message,
			tokenize = 'unicode61 remove_diacritics 2'
		);
	`)
	return err
}

func ftsInsert(ctx context.Context, tx *sql.Tx, passID int64, it reconcile.Item) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO items_fts (pass_id, category, note, message) VALUES (?, ?, ?, ?)`,
		passID, string(it.Category), it.Note, it.Message)
	if err != nil {
		return fmt.Errorf("journal: insert fts: %w", err)
	}
	return nil
}

// Search performs an FTS5 full-text search over recorded line items.
func (db *DB) Search(ctx context.Context, query string, limit int) ([]ItemHit, error) {
	if limit <= 0 {
		limit = defaultLimit
	}
	rows, err := db.conn.QueryContext(ctx, `
		SELECT f.pass_id, p.finished_at, f.category, f.note, f.message
		FROM items_fts f JOIN passes p ON p.id = f.pass_id
		WHERE items_fts MATCH ?
		ORDER BY rank
		LIMIT ?
	`, query, limit)
	if err != nil {
		return nil, fmt.Errorf("journal: search: %w", err)
	}
	return scanHits(rows)
}
