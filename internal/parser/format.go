package parser

import (
	"math"
	"slices"
	"strconv"
	"strings"
	"unicode"

	"gopkg.in/yaml.v3"
)

// FieldOrder is the preferred serialization order. Unknown fields follow in
// encounter order.
var FieldOrder = []string{
	"title", "index_id", "type", "status", "priority",
	"due_date", "start_date", "estimate", "project_id",
	"area", "assignee", "tags",
}

// Format serializes doc. Re-parsing the output yields a value-equal record
// and the same body.
func Format(doc *Document) []byte {
	eol := doc.eol
	if eol == "" {
		eol = "\n"
	}

	var b strings.Builder
	b.WriteString(fence + eol)

	rec := doc.Fields
	if rec == nil {
		rec = NewRecord()
	}
	for _, k := range FieldOrder {
		if v, ok := rec.Get(k); ok {
			writeField(&b, k, v, eol)
		}
	}
	for _, k := range rec.keys {
		if slices.Contains(FieldOrder, k) {
			continue
		}
		writeField(&b, k, rec.vals[k], eol)
	}

	b.WriteString(fence)
	if doc.closingEOL || doc.Body != "" || doc.eol == "" {
		b.WriteString(eol)
	}
	b.WriteString(doc.Body)
	return []byte(b.String())
}

func writeField(b *strings.Builder, key string, v any, eol string) {
	b.WriteString(quote(key))
	b.WriteByte(':')
	switch val := v.(type) {
	case nil:
	case string:
		b.WriteString(" " + quote(val))
	case int:
		b.WriteString(" " + strconv.Itoa(val))
	case bool:
		b.WriteString(" " + strconv.FormatBool(val))
	case float64:
		b.WriteString(" " + formatFloat(val))
	case []string:
		if len(val) == 0 {
			b.WriteString(" []")
			break
		}
		for _, item := range val {
			b.WriteString(eol + "  - " + quote(item))
		}
	}
	b.WriteString(eol)
}

// quote double-quotes s when it contains a space, a colon or a rune that is
// not printable, or when the plain form would not read back as the same
// string in value position.
func quote(s string) string {
	if s != "" && !strings.ContainsAny(s, " :") && strings.IndexFunc(s, notPrintable) < 0 && plainString(s) {
		return s
	}
	return strconv.Quote(s)
}

// notPrintable covers the YAML line breaks U+0085, U+2028 and U+2029 along
// with control characters.
func notPrintable(r rune) bool {
	return !unicode.IsPrint(r)
}

func plainString(s string) bool {
	var n yaml.Node
	if err := yaml.Unmarshal([]byte("k: "+s), &n); err != nil {
		return false
	}
	if n.Kind != yaml.DocumentNode || len(n.Content) != 1 {
		return false
	}
	m := n.Content[0]
	if m.Kind != yaml.MappingNode || len(m.Content) != 2 {
		return false
	}
	c := m.Content[1]
	if c.Kind != yaml.ScalarNode || c.Style != 0 || c.Value != s {
		return false
	}
	tag := c.ShortTag()
	return tag == "!!str" || tag == "!!timestamp"
}

func formatFloat(f float64) string {
	switch {
	case math.IsInf(f, 1):
		return ".inf"
	case math.IsInf(f, -1):
		return "-.inf"
	case math.IsNaN(f):
		return ".nan"
	}
	s := strconv.FormatFloat(f, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}
