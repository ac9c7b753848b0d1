// Package noterepo enumerates, loads and saves corpus notes. It is the only
// component that touches the corpus directory.
package noterepo

import (
	"github.com/starford/denote-reconcile/internal/checksum"
	"github.com/starford/denote-reconcile/internal/denote"
	"github.com/starford/denote-reconcile/internal/parser"
)

// Note is one corpus file: its current path, parsed filename, frontmatter
// document, and the snapshot taken at load time.
type Note struct {
	Path     string
	Filename denote.Filename
	Doc      *parser.Document

	raw          []byte
	sum          string
	loadedName   denote.Filename
	loadedFields *parser.Record
	loadedBody   string
}

// NewNote builds a note from already-parsed parts and snapshots it as the
// loaded state.
func NewNote(path string, fn denote.Filename, doc *parser.Document, raw []byte) *Note {
	return &Note{
		Path:         path,
		Filename:     fn,
		Doc:          doc,
		raw:          raw,
		sum:          checksum.Sum(raw),
		loadedName:   fn.Clone(),
		loadedFields: doc.Fields.Clone(),
		loadedBody:   doc.Body,
	}
}

// ID returns the current identifier.
func (n *Note) ID() denote.Identifier { return n.Filename.ID }

// Type returns the note type derived from the filename tags.
func (n *Note) Type() string { return n.Filename.Type() }

// Fields returns the frontmatter record.
func (n *Note) Fields() *parser.Record { return n.Doc.Fields }

// Name returns the current filename.
func (n *Note) Name() string { return n.Filename.String() }

// LoadedName returns the filename as it was on disk at load time.
func (n *Note) LoadedName() string { return n.loadedName.String() }

// Renamed reports whether the filename differs from the loaded one.
func (n *Note) Renamed() bool { return !n.Filename.Equal(n.loadedName) }

// Dirty reports whether the in-memory note differs from its loaded form.
func (n *Note) Dirty() bool {
	return n.Renamed() || !n.Doc.Fields.Equal(n.loadedFields) || n.Doc.Body != n.loadedBody
}

// Content renders the note for writing. An unchanged note renders its
// original bytes.
func (n *Note) Content() []byte {
	if !n.Doc.Fields.Equal(n.loadedFields) || n.Doc.Body != n.loadedBody {
		return parser.Format(n.Doc)
	}
	return n.raw
}

// markSaved makes the current state the new baseline.
func (n *Note) markSaved(path string, content []byte) {
	n.Path = path
	n.raw = content
	n.sum = checksum.Sum(content)
	n.loadedName = n.Filename.Clone()
	n.loadedFields = n.Doc.Fields.Clone()
	n.loadedBody = n.Doc.Body
}
