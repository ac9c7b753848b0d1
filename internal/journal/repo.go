package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/starford/denote-reconcile/internal/apperr"
	"github.com/starford/denote-reconcile/internal/reconcile"
)

// PassSummary is one row of the passes table.
type PassSummary struct {
	ID         int64            `json:"id"`
	Dir        string           `json:"dir"`
	DryRun     bool             `json:"dry_run"`
	StartedAt  time.Time        `json:"started_at"`
	FinishedAt time.Time        `json:"finished_at"`
	NextIndex  int              `json:"next_index"`
	Changes    int              `json:"changes"`
	Counts     reconcile.Counts `json:"counts"`
	Error      string           `json:"error,omitempty"`
}

// Pass is a recorded pass with its line items.
type Pass struct {
	PassSummary
	Items []reconcile.Item `json:"items"`
}

// ItemHit is a line item found by note or text search.
type ItemHit struct {
	PassID     int64              `json:"pass_id"`
	FinishedAt time.Time          `json:"finished_at"`
	Category   reconcile.Category `json:"category"`
	Note       string             `json:"note"`
	Message    string             `json:"message"`
}

const defaultLimit = 20

// RecordPass stores a report and its items within a transaction and returns
// the new pass id.
func (db *DB) RecordPass(ctx context.Context, r *reconcile.Report) (int64, error) {
	countsJSON, err := json.Marshal(r.Counts)
	if err != nil {
		return 0, fmt.Errorf("journal: encode counts: %w", err)
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("journal: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	res, err := tx.ExecContext(ctx, `
		INSERT INTO passes (dir, dry_run, started_at, finished_at, next_index, changes, counts, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, r.Dir, r.DryRun, r.StartedAt, r.FinishedAt, r.NextIndex, r.Changes(), string(countsJSON), r.Error)
	if err != nil {
		return 0, fmt.Errorf("journal: insert pass: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("journal: pass id: %w", err)
	}

	if len(r.Items) > 0 {
		stmt, err := tx.PrepareContext(ctx, `INSERT INTO items (pass_id, seq, category, note, message) VALUES (?, ?, ?, ?, ?)`)
		if err != nil {
			return 0, fmt.Errorf("journal: prepare item insert: %w", err)
		}
		defer stmt.Close()
		for i, it := range r.Items {
			if _, err := stmt.ExecContext(ctx, id, i, string(it.Category), it.Note, it.Message); err != nil {
				return 0, fmt.Errorf("journal: insert item: %w", err)
			}
			if err := ftsInsert(ctx, tx, id, it); err != nil {
				return 0, err
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("journal: commit: %w", err)
	}
	return id, nil
}

// ListPasses returns passes newest first, together with the total count.
func (db *DB) ListPasses(ctx context.Context, limit, offset int) ([]PassSummary, int, error) {
	if limit <= 0 {
		limit = defaultLimit
	}
	if offset < 0 {
		offset = 0
	}

	var total int
	if err := db.conn.QueryRowContext(ctx, `SELECT count(*) FROM passes`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("journal: count passes: %w", err)
	}

	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, dir, dry_run, started_at, finished_at, next_index, changes, counts, error
		FROM passes
		ORDER BY id DESC
		LIMIT ? OFFSET ?
	`, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("journal: list passes: %w", err)
	}
	defer rows.Close()

	var out []PassSummary
	for rows.Next() {
		s, err := scanSummary(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, s)
	}
	return out, total, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSummary(row scanner) (PassSummary, error) {
	var (
		s      PassSummary
		counts string
	)
	if err := row.Scan(&s.ID, &s.Dir, &s.DryRun, &s.StartedAt, &s.FinishedAt, &s.NextIndex, &s.Changes, &counts, &s.Error); err != nil {
		return s, err
	}
	if err := json.Unmarshal([]byte(counts), &s.Counts); err != nil {
		return s, fmt.Errorf("journal: decode counts of pass %d: %w", s.ID, err)
	}
	return s, nil
}

// GetPass returns one pass with its items in report order.
func (db *DB) GetPass(ctx context.Context, id int64) (*Pass, error) {
	row := db.conn.QueryRowContext(ctx, `
		SELECT id, dir, dry_run, started_at, finished_at, next_index, changes, counts, error
		FROM passes WHERE id = ?
	`, id)
	s, err := scanSummary(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("journal: pass %d: %w", id, apperr.ErrNotFound)
		}
		return nil, fmt.Errorf("journal: get pass: %w", err)
	}

	rows, err := db.conn.QueryContext(ctx, `
		SELECT category, note, message FROM items WHERE pass_id = ? ORDER BY seq
	`, id)
	if err != nil {
		return nil, fmt.Errorf("journal: get items: %w", err)
	}
	defer rows.Close()

	p := &Pass{PassSummary: s, Items: []reconcile.Item{}}
	for rows.Next() {
		var it reconcile.Item
		if err := rows.Scan(&it.Category, &it.Note, &it.Message); err != nil {
			return nil, err
		}
		p.Items = append(p.Items, it)
	}
	return p, rows.Err()
}

// NoteHistory returns the line items that named note, newest first.
func (db *DB) NoteHistory(ctx context.Context, note string, limit int) ([]ItemHit, error) {
	if limit <= 0 {
		limit = defaultLimit
	}
	rows, err := db.conn.QueryContext(ctx, `
		SELECT i.pass_id, p.finished_at, i.category, i.note, i.message
		FROM items i JOIN passes p ON p.id = i.pass_id
		WHERE i.note = ?
		ORDER BY i.pass_id DESC, i.seq
		LIMIT ?
	`, note, limit)
	if err != nil {
		return nil, fmt.Errorf("journal: note history: %w", err)
	}
	return scanHits(rows)
}

func scanHits(rows *sql.Rows) ([]ItemHit, error) {
	defer rows.Close()
	var out []ItemHit
	for rows.Next() {
		var h ItemHit
		if err := rows.Scan(&h.PassID, &h.FinishedAt, &h.Category, &h.Note, &h.Message); err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}
