package denote

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"unicode"
	"unicode/utf8"
)

// ErrMalformedFilename is returned when a name does not follow the
// <id>--<slug>__<tag>(_<tag>)*.md scheme.
var ErrMalformedFilename = errors.New("malformed filename")

const (
	slugSep = "--"
	tagSep  = "__"
	ext     = ".md"
)

// Note types derived from the filename tag-set.
const (
	TypeTask     = "task"
	TypeProject  = "project"
	TypeOther    = ""
	TypeConflict = "conflict"
)

// Filename is the parsed form of a Denote filename.
type Filename struct {
	ID   Identifier
	Slug string
	Tags []string
}

// ParseFilename splits name on the first "--" and then the first "__".
func ParseFilename(name string) (Filename, error) {
	stem, ok := strings.CutSuffix(name, ext)
	if !ok {
		return Filename{}, fmt.Errorf("%w: %q: missing %s extension", ErrMalformedFilename, name, ext)
	}
	idPart, rest, ok := strings.Cut(stem, slugSep)
	if !ok {
		return Filename{}, fmt.Errorf("%w: %q: missing %q separator", ErrMalformedFilename, name, slugSep)
	}
	id := Identifier(idPart)
	if !id.Valid() {
		return Filename{}, fmt.Errorf("%w: %q: identifier %q is not YYYYMMDDTHHMMSS", ErrMalformedFilename, name, idPart)
	}
	slug, tagBlock, ok := strings.Cut(rest, tagSep)
	if !ok {
		return Filename{}, fmt.Errorf("%w: %q: missing %q separator", ErrMalformedFilename, name, tagSep)
	}
	if slug == "" {
		return Filename{}, fmt.Errorf("%w: %q: empty slug", ErrMalformedFilename, name)
	}
	tags := strings.Split(tagBlock, "_")
	for _, t := range tags {
		if t == "" {
			return Filename{}, fmt.Errorf("%w: %q: empty tag", ErrMalformedFilename, name)
		}
	}
	return Filename{ID: id, Slug: slug, Tags: tags}, nil
}

// FormatFilename is the inverse of ParseFilename.
func FormatFilename(f Filename) string {
	return string(f.ID) + slugSep + f.Slug + tagSep + strings.Join(f.Tags, "_") + ext
}

// String returns the textual filename.
func (f Filename) String() string { return FormatFilename(f) }

// Equal reports whether two records are value-equal.
func (f Filename) Equal(o Filename) bool {
	return f.ID == o.ID && f.Slug == o.Slug && slices.Equal(f.Tags, o.Tags)
}

// Clone returns a deep copy.
func (f Filename) Clone() Filename {
	f.Tags = slices.Clone(f.Tags)
	return f
}

// HasTag reports whether tag is in the tag-set.
func (f Filename) HasTag(tag string) bool {
	return slices.Contains(f.Tags, tag)
}

// Type derives the note type from the tag-set.
func (f Filename) Type() string {
	task, project := f.HasTag(TypeTask), f.HasTag(TypeProject)
	switch {
	case task && project:
		return TypeConflict
	case task:
		return TypeTask
	case project:
		return TypeProject
	}
	return TypeOther
}

// SlugTitle synthesizes a human title from a kebab-case slug:
// "website-redesign" becomes "Website Redesign".
func SlugTitle(slug string) string {
	words := strings.FieldsFunc(slug, func(r rune) bool { return r == '-' || r == '_' })
	for i, w := range words {
		r, size := utf8.DecodeRuneInString(w)
		words[i] = string(unicode.ToUpper(r)) + w[size:]
	}
	return strings.Join(words, " ")
}
