package reconcile

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"maps"
	"slices"
	"strings"
	"testing"

	"github.com/starford/denote-reconcile/internal/allocator"
	"github.com/starford/denote-reconcile/internal/denote"
	"github.com/starford/denote-reconcile/internal/noterepo"
	"github.com/starford/denote-reconcile/internal/parser"
	"github.com/starford/denote-reconcile/internal/resolver"
	"github.com/starford/denote-reconcile/internal/storage"
	"github.com/starford/denote-reconcile/internal/testutil"
)

const (
	websiteProject = "20250114T100100--website-redesign__project.md"
	mobileProject  = "20250114T100200--mobile-app__project.md"
	draftTask      = "20250201T090000--draft-copy__task.md"
	milkTask       = "20250201T090100--buy-milk__task.md"
	bannerTask     = "20250201T090200--homepage-ios-banner__task.md"
	loginTask      = "20250201T090300--fix-login__task.md"
)

func newEngine(t *testing.T, store storage.Provider, dir string) *Engine {
	t.Helper()
	return New(noterepo.New(store, "", testutil.Logger()), dir, testutil.Logger())
}

func run(t *testing.T, e *Engine, opts Options) *Report {
	t.Helper()
	r, err := e.Run(context.Background(), opts)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	return r
}

func fields(t *testing.T, dir, name string) *parser.Record {
	t.Helper()
	doc, err := parser.Parse([]byte(testutil.ReadFile(t, dir, name)))
	if err != nil {
		t.Fatalf("parse %s: %v", name, err)
	}
	return doc.Fields
}

func hasItem(r *Report, c Category, note string) bool {
	for _, it := range r.ItemsFor(c) {
		if it.Note == note {
			return true
		}
	}
	return false
}

// writeCorpus lays out two projects and four tasks covering every
// resolution outcome.
func writeCorpus(t *testing.T, dir string) {
	t.Helper()
	testutil.WriteFile(t, dir, websiteProject, testutil.Note("Redesign notes.\n",
		"title: Website Redesign", "identifier: 20250114T100100", "project_id: 2", "date: 2025-01-14"))
	testutil.WriteFile(t, dir, mobileProject, testutil.Note("", "title: Mobile App"))
	testutil.WriteFile(t, dir, draftTask, testutil.Note("Write the copy.\n",
		`title: "Draft copy"`, "task_id: 5", `project: "Website Redesign"`))
	testutil.WriteFile(t, dir, milkTask, testutil.Note("Two litres.\n", "title: Buy milk"))
	testutil.WriteFile(t, dir, bannerTask, testutil.Note("", "title: Banner"))
	testutil.WriteFile(t, dir, loginTask, testutil.Note("", "title: Fix login", "project_id: 20250114T100200"))
}

func corpusOptions() Options {
	opts := DefaultOptions()
	opts.Aliases = resolver.Aliases{
		"website-redesign": {"homepage"},
		"20250114T100200":  {"ios"},
	}
	return opts
}

func TestRun_FullPass(t *testing.T) {
	dir, store := testutil.TestCorpus(t)
	writeCorpus(t, dir)
	r := run(t, newEngine(t, store, dir), corpusOptions())

	// Legacy field resolved and removed.
	draft := fields(t, dir, draftTask)
	if got := draft.String("project_id"); got != "20250114T100100" {
		t.Errorf("draft project_id = %q", got)
	}
	if draft.Has("project") || draft.Has("task_id") {
		t.Errorf("draft keeps legacy fields: %v", draft.Keys())
	}
	if !hasItem(r, CategoryResolved, draftTask) {
		t.Error("draft not reported as resolved")
	}

	// No evidence: left alone and reported.
	if fields(t, dir, milkTask).Has("project_id") {
		t.Error("milk task gained a project_id")
	}
	if !hasItem(r, CategoryUnresolved, milkTask) {
		t.Error("milk task not reported unresolved")
	}

	// Aliases of two projects: left alone and reported.
	if fields(t, dir, bannerTask).Has("project_id") {
		t.Error("ambiguous task gained a project_id")
	}
	if !hasItem(r, CategoryAmbiguous, bannerTask) {
		t.Error("banner task not reported ambiguous")
	}

	if got := fields(t, dir, loginTask).String("project_id"); got != "20250114T100200" {
		t.Errorf("confirmed task project_id = %q", got)
	}

	website := fields(t, dir, websiteProject)
	for _, gone := range []string{"identifier", "project_id", "date"} {
		if website.Has(gone) {
			t.Errorf("project keeps %s", gone)
		}
	}
	if website.String("type") != "project" {
		t.Errorf("project type = %q", website.String("type"))
	}

	c := r.Counts
	if c.Notes != 6 || c.Resolved != 1 || c.Confirmed != 1 || c.Unresolved != 1 || c.Ambiguous != 1 {
		t.Errorf("counts = %+v", c)
	}
	if c.NotesWritten != 6 || !c.CounterWritten {
		t.Errorf("writes = %d, counter written = %v", c.NotesWritten, c.CounterWritten)
	}
}

func TestRun_AssignsIndicesInEnumerationOrder(t *testing.T) {
	dir, store := testutil.TestCorpus(t)
	writeCorpus(t, dir)
	r := run(t, newEngine(t, store, dir), corpusOptions())

	// The website project and the draft task carry legacy counters 2 and 5.
	if got, _ := fields(t, dir, websiteProject).Int("index_id"); got != 2 {
		t.Errorf("website index_id = %d, want 2", got)
	}
	if got, _ := fields(t, dir, draftTask).Int("index_id"); got != 5 {
		t.Errorf("draft index_id = %d, want 5", got)
	}

	order := []string{mobileProject, milkTask, bannerTask, loginTask}
	prev := 5
	for _, name := range order {
		idx, ok := fields(t, dir, name).Int("index_id")
		if !ok || idx <= prev {
			t.Fatalf("%s index_id = %d (prev %d)", name, idx, prev)
		}
		prev = idx
	}

	state, err := noterepo.New(store, "", testutil.Logger()).LoadCounter(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if state.Counter.NextIndex != prev+1 || r.NextIndex != prev+1 {
		t.Errorf("next_index = %d, report %d, want %d", state.Counter.NextIndex, r.NextIndex, prev+1)
	}
	if c := testutil.ReadFile(t, dir, allocator.CounterFile); !strings.Contains(c, `"spec_version": "3.0.0"`) {
		t.Errorf("counter file = %s", c)
	}
}

func TestRun_IndexContinuesPastExistingValues(t *testing.T) {
	dir, store := testutil.TestCorpus(t)
	testutil.WriteFile(t, dir, "20250101T000000--a__task.md", testutil.Note("", "title: A"))
	testutil.WriteFile(t, dir, "20250101T000001--b__task.md", testutil.Note("", "title: B", "index_id: 10"))
	testutil.WriteFile(t, dir, "20250101T000002--c__task.md", testutil.Note("", "title: C", "index_id: -3"))
	run(t, newEngine(t, store, dir), DefaultOptions())

	want := map[string]int{
		"20250101T000000--a__task.md": 11,
		"20250101T000001--b__task.md": 10,
		"20250101T000002--c__task.md": 12,
	}
	for name, idx := range want {
		if got, _ := fields(t, dir, name).Int("index_id"); got != idx {
			t.Errorf("%s index_id = %d, want %d", name, got, idx)
		}
	}
}

func TestRun_SecondPassChangesNothing(t *testing.T) {
	dir, store := testutil.TestCorpus(t)
	writeCorpus(t, dir)
	testutil.WriteFile(t, dir, "20250704T124525--alpha__project.md", testutil.Note("", "title: Alpha"))
	testutil.WriteFile(t, dir, "20250704T124525--beta__project.md", testutil.Note("", "title: Beta"))
	e := newEngine(t, store, dir)

	first := run(t, e, corpusOptions())
	if first.Changes() == 0 {
		t.Fatal("first pass changed nothing")
	}
	before := testutil.Snapshot(t, dir)

	second := run(t, e, corpusOptions())
	if n := second.Changes(); n != 0 {
		var buf bytes.Buffer
		_ = second.WriteText(&buf)
		t.Fatalf("second pass made %d changes:\n%s", n, buf.String())
	}
	if !maps.Equal(before, testutil.Snapshot(t, dir)) {
		t.Error("second pass modified the corpus")
	}
	// Standing findings are reported again.
	if second.Counts.Unresolved != 1 || second.Counts.Ambiguous != 1 {
		t.Errorf("counts = %+v", second.Counts)
	}
}

func TestRun_DeduplicatesCollidingProjects(t *testing.T) {
	dir, store := testutil.TestCorpus(t)
	alpha := "20250704T124525--alpha__project.md"
	beta := "20250704T124525--beta__project.md"
	testutil.WriteFile(t, dir, alpha, testutil.Note("", "title: Alpha", "identifier: 20250704T124525"))
	testutil.WriteFile(t, dir, beta, testutil.Note("", "title: Beta", "identifier: 20250704T124525"))
	testutil.WriteFile(t, dir, "20250704T124526--gamma__project.md", testutil.Note("", "title: Gamma"))
	testutil.WriteFile(t, dir, "20250705T080000--ship__task.md", testutil.Note("", "title: Ship", "project_id: 20250704T124525"))

	r := run(t, newEngine(t, store, dir), DefaultOptions())

	names := testutil.Names(t, dir)
	want := []string{
		alpha,
		"20250704T124526--gamma__project.md",
		"20250704T124527--beta__project.md",
		"20250705T080000--ship__task.md",
	}
	if strings.Join(names, "\n") != strings.Join(want, "\n") {
		t.Fatalf("files = %v", names)
	}
	if r.Counts.Deduplicated != 1 || !hasItem(r, CategoryDeduplicated, beta) {
		t.Errorf("dedup report = %+v", r.ItemsFor(CategoryDeduplicated))
	}
	if r.Counts.CollidedReferences != 1 || !hasItem(r, CategoryCollidedReference, "20250705T080000--ship__task.md") {
		t.Errorf("collided references = %+v", r.ItemsFor(CategoryCollidedReference))
	}
	if got := fields(t, dir, "20250705T080000--ship__task.md").String("project_id"); got != "20250704T124525" {
		t.Errorf("task project_id = %q", got)
	}

	seen := make(map[denote.Identifier]bool)
	for _, name := range names {
		fn, err := denote.ParseFilename(name)
		if err != nil {
			t.Fatal(err)
		}
		if seen[fn.ID] {
			t.Errorf("identifier %s used twice", fn.ID)
		}
		seen[fn.ID] = true
	}
}

func TestRun_DeduplicatesIdentityFieldsOnOtherNotes(t *testing.T) {
	dir, store := testutil.TestCorpus(t)
	testutil.WriteFile(t, dir, "20250301T100000--a__journal.md", testutil.Note("", "id: 20250301T100000"))
	testutil.WriteFile(t, dir, "20250301T100000--b__journal.md", testutil.Note("", "id: 20250301T100000"))
	run(t, newEngine(t, store, dir), DefaultOptions())

	bumped := "20250301T100001--b__journal.md"
	f := fields(t, dir, bumped)
	if got := f.String("id"); got != "20250301T100001" {
		t.Errorf("id = %q", got)
	}
	if f.Has("index_id") || f.Has("type") {
		t.Errorf("unclassified note was normalized: %v", f.Keys())
	}
}

func TestRun_DryRunWritesNothing(t *testing.T) {
	dir, store := testutil.TestCorpus(t)
	writeCorpus(t, dir)
	before := testutil.Snapshot(t, dir)

	opts := corpusOptions()
	opts.DryRun = true
	r := run(t, newEngine(t, store, dir), opts)

	if !maps.Equal(before, testutil.Snapshot(t, dir)) {
		t.Error("dry run modified the corpus")
	}
	if r.Counts.PendingWrites != 6 || !r.Counts.CounterPending || r.Counts.NotesWritten != 0 {
		t.Errorf("counts = %+v", r.Counts)
	}
	if r.Counts.Resolved != 1 || r.Changes() == 0 {
		t.Errorf("dry run report = %+v", r.Counts)
	}
}

type failingCounterStore struct {
	*storage.FS
}

func (s failingCounterStore) Write(path string, content []byte) error {
	if path == allocator.CounterFile {
		return errors.New("disk full")
	}
	return s.FS.Write(path, content)
}

func TestRun_CounterPersistFailureIsFatal(t *testing.T) {
	dir, store := testutil.TestCorpus(t)
	writeCorpus(t, dir)
	before := testutil.Snapshot(t, dir)

	e := newEngine(t, failingCounterStore{store}, dir)
	r, err := e.Run(context.Background(), corpusOptions())
	if !errors.Is(err, ErrCounterPersist) {
		t.Fatalf("err = %v", err)
	}
	if r == nil || r.Error == "" || r.Counts.NotesWritten != 0 {
		t.Errorf("report = %+v", r)
	}
	if !maps.Equal(before, testutil.Snapshot(t, dir)) {
		t.Error("notes were written after the counter failed")
	}
}

func TestRun_LegacyCounterMigrated(t *testing.T) {
	dir, store := testutil.TestCorpus(t)
	testutil.WriteFile(t, dir, allocator.CounterFile, `{"next_task_id": 20, "next_project_id": 4}`)
	testutil.WriteFile(t, dir, "20250101T000000--a__task.md", testutil.Note("", "title: A", "task_id: 19"))
	run(t, newEngine(t, store, dir), DefaultOptions())

	f := fields(t, dir, "20250101T000000--a__task.md")
	if idx, _ := f.Int("index_id"); idx != 19 || f.Has("task_id") {
		t.Errorf("index_id = %d, fields = %v", idx, f.Keys())
	}
	counter := testutil.ReadFile(t, dir, allocator.CounterFile)
	if strings.Contains(counter, "next_task_id") || !strings.Contains(counter, `"next_index": 20`) {
		t.Errorf("counter file = %s", counter)
	}
}

func TestRun_LegacyIndicesCarriedOver(t *testing.T) {
	dir, store := testutil.TestCorpus(t)
	project := "20250101T000000--site__project.md"
	task := "20250101T000001--copy__task.md"
	testutil.WriteFile(t, dir, allocator.CounterFile, `{"next_task_id": 6, "next_project_id": 3}`)
	testutil.WriteFile(t, dir, project, testutil.Note("", "title: Site", "project_id: 2"))
	testutil.WriteFile(t, dir, task, testutil.Note("", "title: Copy", `task_id: "5"`))
	fresh := "20250101T000002--fresh__task.md"
	testutil.WriteFile(t, dir, fresh, testutil.Note("", "title: Fresh"))

	r := run(t, newEngine(t, store, dir), DefaultOptions())

	want := map[string]int{project: 2, task: 5, fresh: 6}
	for name, idx := range want {
		f := fields(t, dir, name)
		if got, _ := f.Int("index_id"); got != idx {
			t.Errorf("%s index_id = %d, want %d", name, got, idx)
		}
		if f.Has("task_id") || f.Has("project_id") {
			t.Errorf("%s keeps legacy counter: %v", name, f.Keys())
		}
	}
	if r.Counts.IndicesMigrated != 2 || r.Counts.IndicesAssigned != 1 || r.NextIndex != 7 {
		t.Errorf("migrated = %d, assigned = %d, next = %d", r.Counts.IndicesMigrated, r.Counts.IndicesAssigned, r.NextIndex)
	}
}

func TestRun_LegacyIndexAlreadyTaken(t *testing.T) {
	dir, store := testutil.TestCorpus(t)
	holder := "20250101T000000--holder__task.md"
	first := "20250101T000001--first__task.md"
	second := "20250101T000002--second__task.md"
	testutil.WriteFile(t, dir, holder, testutil.Note("", "title: Holder", "index_id: 4"))
	testutil.WriteFile(t, dir, first, testutil.Note("", "title: First", "task_id: 4"))
	testutil.WriteFile(t, dir, second, testutil.Note("", "title: Second", "task_id: 8"))
	third := "20250101T000003--third__task.md"
	testutil.WriteFile(t, dir, third, testutil.Note("", "title: Third", "task_id: 8"))

	r := run(t, newEngine(t, store, dir), DefaultOptions())

	want := map[string]int{holder: 4, first: 9, second: 8, third: 10}
	for name, idx := range want {
		if got, _ := fields(t, dir, name).Int("index_id"); got != idx {
			t.Errorf("%s index_id = %d, want %d", name, got, idx)
		}
	}
	if !hasItem(r, CategoryWarning, first) || !hasItem(r, CategoryWarning, third) {
		t.Errorf("warnings = %+v", r.ItemsFor(CategoryWarning))
	}
}

func TestRun_ConflictingNoteIndexReserved(t *testing.T) {
	dir, store := testutil.TestCorpus(t)
	conflict := "20250101T000000--both__project_task.md"
	task := "20250101T000001--plain__task.md"
	testutil.WriteFile(t, dir, conflict, testutil.Note("", "title: Both", "index_id: 1"))
	testutil.WriteFile(t, dir, task, testutil.Note("", "title: Plain"))

	run(t, newEngine(t, store, dir), DefaultOptions())

	if got, _ := fields(t, dir, task).Int("index_id"); got != 2 {
		t.Errorf("task index_id = %d, want 2", got)
	}
}

func TestRun_CollisionWithUnparsableNote(t *testing.T) {
	dir, store := testutil.TestCorpus(t)
	good := "20250704T124525--alpha__project.md"
	broken := "20250704T124525--beta__project.md"
	testutil.WriteFile(t, dir, good, testutil.Note("", "title: Alpha"))
	testutil.WriteFile(t, dir, broken, "---\ntitle: [unclosed\n---\n")

	r := run(t, newEngine(t, store, dir), DefaultOptions())

	if r.Counts.DedupFailures != 1 || r.Counts.Deduplicated != 0 {
		t.Errorf("counts = %+v", r.Counts)
	}
	if !hasItem(r, CategoryDedupFailure, good) || !hasItem(r, CategoryDedupFailure, broken) {
		t.Errorf("dedup failures = %+v", r.ItemsFor(CategoryDedupFailure))
	}
	names := testutil.Names(t, dir)
	if !slices.Contains(names, good) || !slices.Contains(names, broken) {
		t.Errorf("files = %v", names)
	}
}

func TestRun_ReportsSkippedAndConflictingNotes(t *testing.T) {
	dir, store := testutil.TestCorpus(t)
	conflict := "20250101T000000--both__project_task.md"
	broken := "20250101T000001--broken__task.md"
	testutil.WriteFile(t, dir, conflict, testutil.Note("", "title: Both"))
	testutil.WriteFile(t, dir, broken, "no frontmatter here\n")
	testutil.WriteFile(t, dir, "notes.md", "---\ntitle: x\n---\n")
	before := testutil.ReadFile(t, dir, conflict)

	r := run(t, newEngine(t, store, dir), DefaultOptions())

	if r.Counts.ParseFailures != 2 || !hasItem(r, CategoryParseFailure, broken) || !hasItem(r, CategoryParseFailure, "notes.md") {
		t.Errorf("parse failures = %+v", r.ItemsFor(CategoryParseFailure))
	}
	if !hasItem(r, CategoryWarning, conflict) {
		t.Errorf("warnings = %+v", r.ItemsFor(CategoryWarning))
	}
	if got := testutil.ReadFile(t, dir, conflict); got != before {
		t.Errorf("conflicting note rewritten: %q", got)
	}
}

func TestRun_SyncTags(t *testing.T) {
	dir, store := testutil.TestCorpus(t)
	name := "20250101T000000--plan__task_web.md"
	testutil.WriteFile(t, dir, name, testutil.Note("", "title: Plan"))
	opts := DefaultOptions()
	opts.Schema.SyncTags = true
	run(t, newEngine(t, store, dir), opts)

	tags, ok := fields(t, dir, name).List("tags")
	if !ok || strings.Join(tags, ",") != "task,web" {
		t.Errorf("tags = %v", tags)
	}
}

func TestRun_TitleSynthesizedFromSlug(t *testing.T) {
	dir, store := testutil.TestCorpus(t)
	name := "20250101T000000--website-redesign__project.md"
	testutil.WriteFile(t, dir, name, testutil.Note("", "status: active"))
	run(t, newEngine(t, store, dir), DefaultOptions())

	content := testutil.ReadFile(t, dir, name)
	if !strings.HasPrefix(content, "---\ntitle: \"Website Redesign\"\nindex_id: 1\ntype: project\nstatus: active\n---\n") {
		t.Errorf("content = %q", content)
	}
}

func TestReport_Encodings(t *testing.T) {
	dir, store := testutil.TestCorpus(t)
	writeCorpus(t, dir)
	r := run(t, newEngine(t, store, dir), corpusOptions())

	var text bytes.Buffer
	if err := r.WriteText(&text); err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"references resolved:", "unresolved:\n  " + milkTask, "ambiguous:\n  " + bannerTask} {
		if !strings.Contains(text.String(), want) {
			t.Errorf("text report missing %q:\n%s", want, text.String())
		}
	}

	var buf bytes.Buffer
	if err := r.WriteJSON(&buf); err != nil {
		t.Fatal(err)
	}
	var decoded Report
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatal(err)
	}
	if decoded.Counts != r.Counts || len(decoded.Items) != len(r.Items) {
		t.Errorf("decoded counts = %+v", decoded.Counts)
	}
}
