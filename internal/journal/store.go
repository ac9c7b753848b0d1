package journal

import (
	"context"

	"github.com/starford/denote-reconcile/internal/reconcile"
)

// Store defines the pass history operations.
// Consumers should depend on this interface rather than the concrete *DB type
// to facilitate testing with fakes.
type Store interface {
	RecordPass(ctx context.Context, r *reconcile.Report) (int64, error)
	ListPasses(ctx context.Context, limit, offset int) ([]PassSummary, int, error)
	GetPass(ctx context.Context, id int64) (*Pass, error)
	NoteHistory(ctx context.Context, note string, limit int) ([]ItemHit, error)
	Search(ctx context.Context, query string, limit int) ([]ItemHit, error)
	Close() error
}

// Verify *DB satisfies Store at compile time.
var _ Store = (*DB)(nil)
