//go:build !sqlite_fts5

package journal

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/starford/denote-reconcile/internal/reconcile"
)

func initFTS(_ *sql.DB) error {
	// FTS5 not available; search uses LIKE over the items table.
	return nil
}

func ftsInsert(_ context.Context, _ *sql.Tx, _ int64, _ reconcile.Item) error {
	// Items are already stored in the items table; nothing extra to do.
	return nil
}

// Search performs a LIKE-based search (fallback when FTS5 is not compiled in).
func (db *DB) Search(ctx context.Context, query string, limit int) ([]ItemHit, error) {
	if limit <= 0 {
		limit = defaultLimit
	}
	like := "%" + query + "%"
	rows, err := db.conn.QueryContext(ctx, `
		SELECT i.pass_id, p.finished_at, i.category, i.note, i.message
		FROM items i JOIN passes p ON p.id = i.pass_id
		WHERE i.note LIKE ? OR i.message LIKE ?
		ORDER BY i.pass_id DESC, i.seq
		LIMIT ?
	`, like, like, limit)
	if err != nil {
		return nil, fmt.Errorf("journal: search: %w", err)
	}
	return scanHits(rows)
}
