package denote

import (
	"errors"
	"testing"
)

func TestParseFilename_Basic(t *testing.T) {
	f, err := ParseFilename("20250704T124525--website-redesign__project_work.md")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.ID != "20250704T124525" {
		t.Errorf("id = %q", f.ID)
	}
	if f.Slug != "website-redesign" {
		t.Errorf("slug = %q", f.Slug)
	}
	if len(f.Tags) != 2 || f.Tags[0] != "project" || f.Tags[1] != "work" {
		t.Errorf("tags = %v, want [project work]", f.Tags)
	}
	if f.Type() != TypeProject {
		t.Errorf("type = %q, want project", f.Type())
	}
}

func TestParseFilename_RoundTrip(t *testing.T) {
	names := []string{
		"20250114T100100--website-redesign__project.md",
		"20250618T052621--write-to-aliza__task_contacts.md",
		"20250101T000000--a__b_c_d_e.md",
		"20250101T000000--slug-with--dashes__task.md",
		"20250101T000000--single_underscore__task.md",
	}
	for _, n := range names {
		f, err := ParseFilename(n)
		if err != nil {
			t.Errorf("ParseFilename(%q): %v", n, err)
			continue
		}
		if got := f.String(); got != n {
			t.Errorf("round trip %q -> %q", n, got)
		}
		again, err := ParseFilename(f.String())
		if err != nil || !again.Equal(f) {
			t.Errorf("parse(format(r)) != r for %q", n)
		}
	}
}

func TestParseFilename_Malformed(t *testing.T) {
	cases := []string{
		"20250704T124525--title.md",          // no tag block
		"20250704T124525__task.md",           // no slug separator
		"2025070T124525--title__task.md",     // short identifier
		"20250704X124525--title__task.md",    // wrong separator in identifier
		"20250704T124525--title__task.txt",   // wrong extension
		"20250704T124525--__task.md",         // empty slug
		"20250704T124525--title__task__x.md", // empty tag
		"readme.md",
	}
	for _, n := range cases {
		_, err := ParseFilename(n)
		if err == nil {
			t.Errorf("expected error for %q", n)
			continue
		}
		if !errors.Is(err, ErrMalformedFilename) {
			t.Errorf("error for %q is not ErrMalformedFilename: %v", n, err)
		}
	}
}

func TestFilenameType(t *testing.T) {
	cases := map[string]string{
		"20250101T000000--a__task.md":         TypeTask,
		"20250101T000000--a__work_project.md": TypeProject,
		"20250101T000000--a__journal.md":      TypeOther,
		"20250101T000000--a__task_project.md": TypeConflict,
	}
	for name, want := range cases {
		f, err := ParseFilename(name)
		if err != nil {
			t.Fatalf("ParseFilename(%q): %v", name, err)
		}
		if got := f.Type(); got != want {
			t.Errorf("Type(%q) = %q, want %q", name, got, want)
		}
	}
}

func TestIdentifierAdd(t *testing.T) {
	id := Identifier("20250704T235959")
	next, err := id.Add(1)
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if next != "20250705T000000" {
		t.Errorf("next = %q, want 20250705T000000", next)
	}
	if _, err := Identifier("20251399T000000").Add(1); err == nil {
		t.Error("expected error for impossible date")
	}
}

func TestSlugTitle(t *testing.T) {
	if got := SlugTitle("website-redesign"); got != "Website Redesign" {
		t.Errorf("SlugTitle = %q", got)
	}
	if got := SlugTitle("ping-kara"); got != "Ping Kara" {
		t.Errorf("SlugTitle = %q", got)
	}
}
