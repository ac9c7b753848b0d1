// Package parser reads and writes the YAML frontmatter block at the head of
// a note. Both directions are pure; file access belongs to noterepo.
package parser

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrMalformedFrontmatter is returned when the fenced block is missing or
// cannot be decoded as a flat mapping.
var ErrMalformedFrontmatter = errors.New("malformed frontmatter")

const fence = "---"

// Document is a parsed note body: the frontmatter fields plus everything
// after the closing fence.
type Document struct {
	Fields *Record
	Body   string

	eol        string // line ending used by the fences
	closingEOL bool   // closing fence followed by a line ending
}

// NewDocument returns a document with the default "\n" fences.
func NewDocument(fields *Record, body string) *Document {
	if fields == nil {
		fields = NewRecord()
	}
	return &Document{Fields: fields, Body: body, eol: "\n", closingEOL: true}
}

// Clone returns a deep copy.
func (d *Document) Clone() *Document {
	c := *d
	c.Fields = d.Fields.Clone()
	return &c
}

// Parse splits data into frontmatter and body. The first line must be a
// "---" fence and a second "---" line must close the block.
func Parse(data []byte) (*Document, error) {
	text := string(data)

	nl := strings.IndexByte(text, '\n')
	if nl < 0 {
		return nil, fmt.Errorf("%w: missing opening fence", ErrMalformedFrontmatter)
	}
	first, eol := text[:nl], "\n"
	if strings.HasSuffix(first, "\r") {
		first, eol = strings.TrimSuffix(first, "\r"), "\r\n"
	}
	if first != fence {
		return nil, fmt.Errorf("%w: missing opening fence", ErrMalformedFrontmatter)
	}

	start := nl + 1
	pos := start
	for pos <= len(text) {
		end := strings.IndexByte(text[pos:], '\n')
		last := end < 0
		if last {
			end = len(text)
		} else {
			end += pos
		}
		if strings.TrimSuffix(text[pos:end], "\r") == fence {
			fields, err := decodeBlock(text[start:pos])
			if err != nil {
				return nil, err
			}
			doc := &Document{Fields: fields, eol: eol, closingEOL: !last}
			if !last {
				doc.Body = text[end+1:]
			}
			return doc, nil
		}
		if last {
			break
		}
		pos = end + 1
	}
	return nil, fmt.Errorf("%w: missing closing fence", ErrMalformedFrontmatter)
}

func decodeBlock(block string) (*Record, error) {
	rec := NewRecord()
	if strings.TrimSpace(block) == "" {
		return rec, nil
	}

	var root yaml.Node
	if err := yaml.Unmarshal([]byte(block), &root); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFrontmatter, err)
	}
	if root.Kind != yaml.DocumentNode || len(root.Content) == 0 {
		return rec, nil
	}
	m := root.Content[0]
	if m.Kind == yaml.ScalarNode && m.ShortTag() == "!!null" {
		return rec, nil
	}
	if m.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("%w: block is not a mapping", ErrMalformedFrontmatter)
	}

	for i := 0; i+1 < len(m.Content); i += 2 {
		k, v := m.Content[i], m.Content[i+1]
		if k.Kind != yaml.ScalarNode {
			return nil, fmt.Errorf("%w: non-scalar key at line %d", ErrMalformedFrontmatter, k.Line)
		}
		if rec.Has(k.Value) {
			return nil, fmt.Errorf("%w: duplicate key %q", ErrMalformedFrontmatter, k.Value)
		}
		val, err := decodeValue(k.Value, v)
		if err != nil {
			return nil, err
		}
		rec.Set(k.Value, val)
	}
	return rec, nil
}

func decodeValue(key string, n *yaml.Node) (any, error) {
	switch n.Kind {
	case yaml.ScalarNode:
		return decodeScalar(n), nil
	case yaml.SequenceNode:
		items := make([]string, 0, len(n.Content))
		for _, item := range n.Content {
			if item.Kind != yaml.ScalarNode {
				return nil, fmt.Errorf("%w: %q: list items must be scalars", ErrMalformedFrontmatter, key)
			}
			items = append(items, item.Value)
		}
		return items, nil
	case yaml.MappingNode:
		return nil, fmt.Errorf("%w: %q: nested mappings are not supported", ErrMalformedFrontmatter, key)
	}
	return nil, fmt.Errorf("%w: %q: unsupported value", ErrMalformedFrontmatter, key)
}

func decodeScalar(n *yaml.Node) any {
	switch n.ShortTag() {
	case "!!null":
		return nil
	case "!!int":
		if isDecimal(n.Value) {
			if i, err := strconv.Atoi(n.Value); err == nil {
				return i
			}
		}
	case "!!bool":
		var b bool
		if err := n.Decode(&b); err == nil {
			return b
		}
	case "!!float":
		var f float64
		if err := n.Decode(&f); err == nil {
			return f
		}
	}
	return n.Value
}

func isDecimal(s string) bool {
	s = strings.TrimPrefix(strings.TrimPrefix(s, "-"), "+")
	if s == "" {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
