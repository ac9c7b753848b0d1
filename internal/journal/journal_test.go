package journal

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/starford/denote-reconcile/internal/apperr"
	"github.com/starford/denote-reconcile/internal/reconcile"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	f, err := os.CreateTemp("", "denote-journal-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	f.Close()
	t.Cleanup(func() { os.Remove(f.Name()) })

	db, err := Open(f.Name())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func sampleReport(dryRun bool) *reconcile.Report {
	start := time.Date(2025, 7, 4, 12, 45, 25, 0, time.UTC)
	return &reconcile.Report{
		Dir:        "/notes",
		DryRun:     dryRun,
		StartedAt:  start,
		FinishedAt: start.Add(time.Second),
		NextIndex:  7,
		Counts:     reconcile.Counts{Notes: 6, Resolved: 1, Unresolved: 1, NotesWritten: 2},
		Items: []reconcile.Item{
			{Category: reconcile.CategoryResolved, Note: "20250201T090000--draft-copy__task.md", Message: "project_id set to 20250114T100100 via legacy-field (Website Redesign)"},
			{Category: reconcile.CategoryUnresolved, Note: "20250201T090100--buy-milk__task.md", Message: "no project matched"},
		},
	}
}

func TestSchemaCreation(t *testing.T) {
	db := testDB(t)
	var count int
	if err := db.conn.QueryRow(`SELECT count(*) FROM passes`).Scan(&count); err != nil {
		t.Fatalf("passes table missing: %v", err)
	}
	if err := db.conn.QueryRow(`SELECT count(*) FROM items`).Scan(&count); err != nil {
		t.Fatalf("items table missing: %v", err)
	}
}

func TestRecordAndGetPass(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	r := sampleReport(false)

	id, err := db.RecordPass(ctx, r)
	if err != nil {
		t.Fatalf("RecordPass: %v", err)
	}
	p, err := db.GetPass(ctx, id)
	if err != nil {
		t.Fatalf("GetPass: %v", err)
	}
	if p.Dir != "/notes" || p.NextIndex != 7 || p.DryRun {
		t.Errorf("summary = %+v", p.PassSummary)
	}
	if p.Counts != r.Counts {
		t.Errorf("counts = %+v", p.Counts)
	}
	if p.Changes != r.Changes() {
		t.Errorf("changes = %d, want %d", p.Changes, r.Changes())
	}
	if !p.FinishedAt.Equal(r.FinishedAt) {
		t.Errorf("finished_at = %v", p.FinishedAt)
	}
	if len(p.Items) != 2 || p.Items[0] != r.Items[0] || p.Items[1] != r.Items[1] {
		t.Errorf("items = %+v", p.Items)
	}
}

func TestGetPassMissing(t *testing.T) {
	db := testDB(t)
	if _, err := db.GetPass(context.Background(), 42); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("err = %v", err)
	}
}

func TestListPassesNewestFirst(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if _, err := db.RecordPass(ctx, sampleReport(i == 2)); err != nil {
			t.Fatal(err)
		}
	}

	passes, total, err := db.ListPasses(ctx, 2, 0)
	if err != nil {
		t.Fatalf("ListPasses: %v", err)
	}
	if total != 3 || len(passes) != 2 {
		t.Fatalf("total = %d, page = %d", total, len(passes))
	}
	if passes[0].ID <= passes[1].ID || !passes[0].DryRun {
		t.Errorf("passes = %+v", passes)
	}

	rest, _, err := db.ListPasses(ctx, 2, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(rest) != 1 {
		t.Errorf("second page = %d", len(rest))
	}
}

func TestNoteHistory(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	_, _ = db.RecordPass(ctx, sampleReport(false))
	_, _ = db.RecordPass(ctx, sampleReport(false))

	hits, err := db.NoteHistory(ctx, "20250201T090100--buy-milk__task.md", 10)
	if err != nil {
		t.Fatalf("NoteHistory: %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("hits = %d", len(hits))
	}
	if hits[0].PassID <= hits[1].PassID || hits[0].Category != reconcile.CategoryUnresolved {
		t.Errorf("hits = %+v", hits)
	}
}

func TestSearchItems(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	_, _ = db.RecordPass(ctx, sampleReport(false))

	hits, err := db.Search(ctx, "Redesign", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 1 || hits[0].Note != "20250201T090000--draft-copy__task.md" {
		t.Errorf("hits = %+v", hits)
	}
}
