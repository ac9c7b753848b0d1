package parser

import (
	"errors"
	"strings"
	"testing"
)

func TestParse_FieldsAndBody(t *testing.T) {
	input := []byte("---\ntitle: \"Write to Aliza\"\nindex_id: 12\nproject_id: 20250114T100300\ntags:\n  - task\n  - contacts\n---\n# Write to Aliza\nBody text.\n")
	doc, err := Parse(input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := doc.Fields.String("title"); got != "Write to Aliza" {
		t.Errorf("title = %q", got)
	}
	if n, ok := doc.Fields.Int("index_id"); !ok || n != 12 {
		t.Errorf("index_id = %v, %v", n, ok)
	}
	if got := doc.Fields.String("project_id"); got != "20250114T100300" {
		t.Errorf("project_id = %q", got)
	}
	tags, ok := doc.Fields.List("tags")
	if !ok || len(tags) != 2 || tags[0] != "task" || tags[1] != "contacts" {
		t.Errorf("tags = %v", tags)
	}
	if doc.Body != "# Write to Aliza\nBody text.\n" {
		t.Errorf("body = %q", doc.Body)
	}
}

func TestParse_PreservesKeyOrder(t *testing.T) {
	doc, err := Parse([]byte("---\nzeta: 1\nalpha: two\nmid: [a, b]\n---\n"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	keys := doc.Fields.Keys()
	if strings.Join(keys, ",") != "zeta,alpha,mid" {
		t.Errorf("keys = %v", keys)
	}
}

func TestParse_Malformed(t *testing.T) {
	cases := map[string]string{
		"no opening fence": "title: x\n---\nbody\n",
		"no closing fence": "---\ntitle: x\nbody\n",
		"leading blank":    "\n---\ntitle: x\n---\n",
		"invalid yaml":     "---\n: invalid: yaml: {{{\n---\nBody\n",
		"nested mapping":   "---\nmeta:\n  a: 1\n---\n",
		"not a mapping":    "---\n- a\n- b\n---\n",
		"duplicate key":    "---\ntitle: a\ntitle: b\n---\n",
		"empty":            "",
	}
	for name, in := range cases {
		_, err := Parse([]byte(in))
		if err == nil {
			t.Errorf("%s: expected error", name)
			continue
		}
		if !errors.Is(err, ErrMalformedFrontmatter) {
			t.Errorf("%s: error is not ErrMalformedFrontmatter: %v", name, err)
		}
	}
}

func TestParse_EmptyBlock(t *testing.T) {
	doc, err := Parse([]byte("---\n---\nbody"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if doc.Fields.Len() != 0 {
		t.Errorf("expected no fields, got %v", doc.Fields.Keys())
	}
	if doc.Body != "body" {
		t.Errorf("body = %q", doc.Body)
	}
}

func TestFormat_PreferredOrderThenUnknown(t *testing.T) {
	doc, err := Parse([]byte("---\ncustom: x\ntags: [task]\nstatus: open\nzzz: 3\ntitle: Demo\nindex_id: 4\n---\nbody\n"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	want := "---\ntitle: Demo\nindex_id: 4\nstatus: open\ntags:\n  - task\ncustom: x\nzzz: 3\n---\nbody\n"
	if got := string(Format(doc)); got != want {
		t.Errorf("Format =\n%s\nwant\n%s", got, want)
	}
}

func TestFormat_Quoting(t *testing.T) {
	rec := NewRecord()
	rec.Set("title", "Website Redesign")
	rec.Set("area", "work:ops")
	rec.Set("status", "open")
	rec.Set("assignee", "123")
	rec.Set("priority", "true")
	rec.Set("note", "")
	rec.Set("due_date", "2025-01-14")
	out := string(Format(NewDocument(rec, "")))

	for _, line := range []string{
		`title: "Website Redesign"`,
		`area: "work:ops"`,
		`status: open`,
		`assignee: "123"`,
		`priority: "true"`,
		`note: ""`,
		`due_date: 2025-01-14`,
	} {
		if !strings.Contains(out, line+"\n") {
			t.Errorf("output missing %q:\n%s", line, out)
		}
	}
}

func TestRoundTrip(t *testing.T) {
	inputs := []string{
		"---\ntitle: 'single quoted: yes'\nindex_id: 7\ntype: task\n---\nbody\n",
		"---\ntitle: Plain\nestimate: 5\ndone: false\nratio: 2.0\nempty:\ntags: []\n---\n",
		"---\ntitle: \"with \\\"escapes\\\" and: colon\"\ntags:\n  - \"a b\"\n  - '42'\n  - x\n---\n\n# Body\n\n---\nnot a fence anymore\n",
		"---\r\ntitle: crlf\r\n---\r\nbody\r\n",
		"---\ntitle: no trailing newline\n---",
		"---\ndue_date: 2025-07-04\nweird: \"- dash\"\nhash: \"#tag\"\nstar: \"*ref\"\n---\n",
		"---\ntitle: \"a\\u2028b\"\nnel: \"x\\u0085y\"\npara: \"p\\u2029q\"\ntab: \"t\\tu\"\n---\n",
	}
	for _, in := range inputs {
		first, err := Parse([]byte(in))
		if err != nil {
			t.Errorf("Parse(%q): %v", in, err)
			continue
		}
		out := Format(first)
		second, err := Parse(out)
		if err != nil {
			t.Errorf("re-Parse(%q): %v", out, err)
			continue
		}
		if !first.Fields.Equal(second.Fields) {
			t.Errorf("fields differ after round trip:\ninput %q\noutput %q", in, out)
		}
		if first.Body != second.Body {
			t.Errorf("body differs: %q vs %q", first.Body, second.Body)
		}
		if again := Format(second); string(again) != string(out) {
			t.Errorf("format is not stable: %q vs %q", out, again)
		}
	}
}

func TestFormat_QuotesLineSeparators(t *testing.T) {
	fields := NewRecord()
	fields.Set("title", "a\u2028b")
	fields.Set("tags", []string{"x\u0085y"})
	out := Format(NewDocument(fields, ""))

	if !strings.Contains(string(out), `title: "a\u2028b"`) || !strings.Contains(string(out), `- "x\u0085y"`) {
		t.Errorf("Format = %q", out)
	}
	doc, err := Parse(out)
	if err != nil {
		t.Fatalf("Parse(%q): %v", out, err)
	}
	if got := doc.Fields.String("title"); got != "a\u2028b" {
		t.Errorf("title = %q", got)
	}
}

func TestFormat_PreservesFencesAndBody(t *testing.T) {
	in := "---\r\ntitle: crlf\r\n---\r\nline one\r\nline two"
	doc, err := Parse([]byte(in))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if got := string(Format(doc)); got != in {
		t.Errorf("Format = %q, want %q", got, in)
	}

	in = "---\ntitle: bare\n---"
	doc, err = Parse([]byte(in))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if got := string(Format(doc)); got != in {
		t.Errorf("Format = %q, want %q", got, in)
	}
}

func TestRecord_SetDeleteClone(t *testing.T) {
	r := NewRecord()
	r.Set("a", 1)
	r.Set("b", "x")
	r.Set("a", 2)
	if strings.Join(r.Keys(), ",") != "a,b" {
		t.Errorf("keys = %v", r.Keys())
	}
	c := r.Clone()
	if !r.Equal(c) {
		t.Error("clone should be equal")
	}
	if !r.Delete("a") || r.Has("a") {
		t.Error("delete failed")
	}
	if r.Equal(c) {
		t.Error("records should differ after delete")
	}
	if r.Delete("missing") {
		t.Error("deleting a missing key should report false")
	}
}
