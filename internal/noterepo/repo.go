package noterepo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"

	"github.com/starford/denote-reconcile/internal/allocator"
	"github.com/starford/denote-reconcile/internal/checksum"
	"github.com/starford/denote-reconcile/internal/denote"
	"github.com/starford/denote-reconcile/internal/parser"
	"github.com/starford/denote-reconcile/internal/storage"
)

// ErrModified is returned by Save when the file changed on disk after it was
// loaded. Nothing is written.
var ErrModified = errors.New("modified on disk since load")

// Diagnostic records a file that was skipped while listing.
type Diagnostic struct {
	Path string
	Err  error
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("%s: %v", d.Path, d.Err)
}

// Listing is the result of enumerating the corpus.
type Listing struct {
	Notes       []*Note
	Diagnostics []Diagnostic
}

// SaveResult describes what Save did to one note.
type SaveResult struct {
	OldPath string
	NewPath string
	Renamed bool
	Written bool
}

// Repository reads and writes notes through a storage provider.
type Repository struct {
	store       storage.Provider
	counterFile string
	logger      *slog.Logger
}

// New creates a repository. An empty counterFile selects the default name.
func New(store storage.Provider, counterFile string, logger *slog.Logger) *Repository {
	if counterFile == "" {
		counterFile = allocator.CounterFile
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Repository{store: store, counterFile: counterFile, logger: logger}
}

// ListNotes enumerates every top-level note in lexicographic path order.
// Files that fail to parse are reported as diagnostics and skipped.
func (r *Repository) ListNotes(ctx context.Context) (*Listing, error) {
	files, err := r.store.List("")
	if err != nil {
		return nil, fmt.Errorf("noterepo: list: %w", err)
	}

	out := &Listing{}
	for _, fi := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		note, err := r.load(fi.Path)
		if err != nil {
			r.logger.Warn("skipping note",
				slog.String("path", fi.Path),
				slog.String("error", err.Error()))
			out.Diagnostics = append(out.Diagnostics, Diagnostic{Path: fi.Path, Err: err})
			continue
		}
		out.Notes = append(out.Notes, note)
	}
	return out, nil
}

func (r *Repository) load(p string) (*Note, error) {
	fn, err := denote.ParseFilename(path.Base(p))
	if err != nil {
		return nil, err
	}
	data, err := r.store.Read(p)
	if err != nil {
		return nil, err
	}
	doc, err := parser.Parse(data)
	if err != nil {
		return nil, err
	}
	return NewNote(p, fn, doc, data), nil
}

// Save persists a note. A changed filename is applied first as a
// non-overwriting move, then the content is written at the resulting path.
// A failed move leaves the original file untouched.
func (r *Repository) Save(_ context.Context, n *Note) (SaveResult, error) {
	res := SaveResult{OldPath: n.Path, NewPath: n.Path}

	current, err := r.store.Read(n.Path)
	if err != nil {
		return res, fmt.Errorf("noterepo: verify %s: %w", n.Path, err)
	}
	if !checksum.Matches(current, n.sum) {
		return res, fmt.Errorf("noterepo: %s: %w", n.Path, ErrModified)
	}

	if n.Renamed() {
		target := path.Join(path.Dir(n.Path), n.Name())
		if err := r.store.Move(n.Path, target); err != nil {
			return res, fmt.Errorf("noterepo: rename %s: %w", n.Path, err)
		}
		r.logger.Debug("note renamed",
			slog.String("from", n.Path),
			slog.String("to", target))
		n.Path = target
		n.loadedName = n.Filename.Clone()
		res.NewPath = target
		res.Renamed = true
	}

	content := n.Content()
	if err := r.store.Write(n.Path, content); err != nil {
		return res, fmt.Errorf("noterepo: write %s: %w", n.Path, err)
	}
	n.markSaved(n.Path, content)
	res.Written = true
	return res, nil
}

// CounterFile returns the corpus-relative counter path.
func (r *Repository) CounterFile() string { return r.counterFile }

// CounterState is the counter as found on disk.
type CounterState struct {
	Counter allocator.Counter
	Found   bool
	Legacy  bool
}

// Changed reports whether c differs from what is stored on disk.
func (s CounterState) Changed(c allocator.Counter) bool {
	if !s.Found || s.Legacy {
		return true
	}
	return c != s.Counter
}

// LoadCounter reads the counter file. A missing file yields a fresh
// counter starting at 1.
func (r *Repository) LoadCounter(_ context.Context) (CounterState, error) {
	data, err := r.store.Read(r.counterFile)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return CounterState{Counter: allocator.NewCounter()}, nil
		}
		return CounterState{}, fmt.Errorf("noterepo: read counter: %w", err)
	}
	c, legacy, err := allocator.DecodeCounter(data)
	if err != nil {
		return CounterState{}, err
	}
	return CounterState{Counter: c, Found: true, Legacy: legacy}, nil
}

// SaveCounter writes the counter file atomically.
func (r *Repository) SaveCounter(_ context.Context, c allocator.Counter) error {
	data, err := c.Encode()
	if err != nil {
		return err
	}
	if err := r.store.Write(r.counterFile, data); err != nil {
		return fmt.Errorf("noterepo: write counter: %w", err)
	}
	return nil
}
