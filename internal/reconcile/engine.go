// Package reconcile runs a metadata reconciliation pass over a note corpus.
//
// A pass executes its stages strictly in order: load, deduplicate
// identifiers, normalize schema fields, resolve task to project references,
// persist, report. Per-note problems are collected into the report; the only
// fatal failure after loading is being unable to write the index counter.
//
// One pass must run at a time against a corpus. The engine takes no lock;
// callers serialize passes.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/starford/denote-reconcile/internal/allocator"
	"github.com/starford/denote-reconcile/internal/denote"
	"github.com/starford/denote-reconcile/internal/noterepo"
	"github.com/starford/denote-reconcile/internal/resolver"
)

// ErrCounterPersist is returned when the index counter cannot be written.
// No note is written after it.
var ErrCounterPersist = errors.New("counter persist failed")

// Schema lists the fields normalization removes from task and project notes.
type Schema struct {
	DeprecatedFields []string // identity fields superseded by the filename
	LegacyCounters   []string // per-type counters superseded by index_id
	ObsoleteFields   []string
	SyncTags         bool // copy filename tags into an empty tags field
}

// DefaultSchema returns the current schema.
func DefaultSchema() Schema {
	return Schema{
		DeprecatedFields: []string{"id", "identifier"},
		LegacyCounters:   []string{"task_id"},
		ObsoleteFields:   []string{"date"},
	}
}

// Options configure one pass.
type Options struct {
	DryRun      bool
	Schema      Schema
	Aliases     resolver.Aliases
	MaxProbe    int
	SpecVersion string
}

// DefaultOptions returns options that apply the current schema.
func DefaultOptions() Options {
	return Options{
		Schema:      DefaultSchema(),
		MaxProbe:    allocator.DefaultMaxProbe,
		SpecVersion: allocator.SpecVersion,
	}
}

const (
	fieldTitle         = "title"
	fieldType          = "type"
	fieldIndexID       = "index_id"
	fieldProjectID     = "project_id"
	fieldLegacyProject = "project"
	fieldTags          = "tags"
)

// Engine runs passes over one corpus.
type Engine struct {
	repo   *noterepo.Repository
	dir    string
	logger *slog.Logger
}

// New creates an engine. dir labels reports.
func New(repo *noterepo.Repository, dir string, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{repo: repo, dir: dir, logger: logger}
}

// pass carries the state of one run from stage to stage.
type pass struct {
	opts    Options
	logger  *slog.Logger
	report  *Report
	notes   []*noterepo.Note
	skipped map[denote.Identifier][]string
	adopted map[*noterepo.Note]legacyIndex
	state   noterepo.CounterState
	counter allocator.Counter
}

// Run executes one pass. The report is returned even when err is non-nil.
func (e *Engine) Run(ctx context.Context, opts Options) (*Report, error) {
	if opts.MaxProbe <= 0 {
		opts.MaxProbe = allocator.DefaultMaxProbe
	}
	if opts.SpecVersion == "" {
		opts.SpecVersion = allocator.SpecVersion
	}
	p := &pass{
		opts:    opts,
		logger:  e.logger,
		report:  &Report{Dir: e.dir, DryRun: opts.DryRun, StartedAt: time.Now().UTC()},
		skipped: make(map[denote.Identifier][]string),
		adopted: make(map[*noterepo.Note]legacyIndex),
	}

	err := e.load(ctx, p)
	if err == nil {
		p.deduplicate()
		p.normalize()
		p.resolve()
		if opts.DryRun {
			p.preview()
		} else {
			err = e.persist(ctx, p)
		}
	}
	return e.finish(p, err)
}

func (e *Engine) finish(p *pass, err error) (*Report, error) {
	r := p.report
	r.FinishedAt = time.Now().UTC()
	r.NextIndex = p.counter.NextIndex
	if err != nil {
		r.Error = err.Error()
		e.logger.Error("reconcile: pass failed",
			slog.String("dir", e.dir),
			slog.String("error", err.Error()))
		return r, err
	}
	e.logger.Info("reconcile: pass complete",
		slog.String("dir", e.dir),
		slog.Bool("dry_run", r.DryRun),
		slog.Int("notes", r.Counts.Notes),
		slog.Int("changes", r.Changes()),
		slog.Int("unresolved", r.Counts.Unresolved),
		slog.Int("ambiguous", r.Counts.Ambiguous),
		slog.Duration("duration", r.FinishedAt.Sub(r.StartedAt)))
	return r, nil
}

func (e *Engine) load(ctx context.Context, p *pass) error {
	listing, err := e.repo.ListNotes(ctx)
	if err != nil {
		return fmt.Errorf("reconcile: load: %w", err)
	}
	p.notes = listing.Notes
	p.report.Counts.Notes = len(listing.Notes)
	for _, d := range listing.Diagnostics {
		p.report.Counts.ParseFailures++
		p.report.add(CategoryParseFailure, d.Path, "%v", d.Err)
		// A skipped note still owns its identifier.
		if fn, err := denote.ParseFilename(path.Base(d.Path)); err == nil {
			p.skipped[fn.ID] = append(p.skipped[fn.ID], d.Path)
		}
	}

	state, err := e.repo.LoadCounter(ctx)
	if err != nil {
		return fmt.Errorf("reconcile: load counter: %w", err)
	}
	p.state = state
	p.counter = state.Counter
	p.counter.SpecVersion = p.opts.SpecVersion

	e.logger.Info("reconcile: loaded",
		slog.Int("notes", len(listing.Notes)),
		slog.Int("parse_failures", len(listing.Diagnostics)),
		slog.Int("next_index", p.counter.NextIndex),
		slog.Bool("legacy_counter", state.Legacy))
	return nil
}

func (p *pass) deduplicate() {
	byID := make(map[denote.Identifier][]*noterepo.Note)
	byPath := make(map[string]*noterepo.Note, len(p.notes))
	used := make(map[denote.Identifier]struct{}, len(p.notes)+len(p.skipped))
	for _, n := range p.notes {
		byID[n.ID()] = append(byID[n.ID()], n)
		byPath[n.Path] = n
		used[n.ID()] = struct{}{}
	}
	for id := range p.skipped {
		used[id] = struct{}{}
	}

	var groups []allocator.Group
	for id, members := range byID {
		if unreadable := p.skipped[id]; len(unreadable) > 0 {
			// Notes that failed to parse are never renamed.
			p.report.Counts.DedupFailures++
			all := append(byIDPaths(members), unreadable...)
			for _, member := range all {
				p.report.add(CategoryDedupFailure, member, "identifier %s also used by %s; fix the unparsable frontmatter of %s",
					id, joinBase(all, member), joinBase(unreadable, ""))
			}
			p.logger.Warn("reconcile: collision with unparsable note left unresolved",
				slog.String("identifier", id.String()),
				slog.Int("members", len(all)))
			continue
		}
		if len(members) < 2 {
			continue
		}
		g := allocator.Group{ID: id}
		for _, n := range members {
			g.Members = append(g.Members, n.Path)
		}
		groups = append(groups, g)
	}
	if len(groups) == 0 {
		return
	}

	kept := make(map[denote.Identifier]string)
	for _, res := range allocator.Deduplicate(groups, used, p.opts.MaxProbe) {
		if res.Err != nil {
			p.report.Counts.DedupFailures++
			for _, member := range byIDPaths(byID[res.ID]) {
				p.report.add(CategoryDedupFailure, member, "%v", res.Err)
			}
			p.logger.Warn("reconcile: collision group left unresolved",
				slog.String("identifier", res.ID.String()),
				slog.String("error", res.Err.Error()))
			continue
		}
		kept[res.ID] = path.Base(res.Kept)
		for _, a := range res.Assignments {
			n := byPath[a.Path]
			oldName := n.Name()
			n.Filename.ID = a.NewID
			for _, field := range p.opts.Schema.DeprecatedFields {
				if n.Fields().String(field) == a.OldID.String() {
					n.Fields().Set(field, a.NewID.String())
				}
			}
			p.report.Counts.Deduplicated++
			p.report.add(CategoryDeduplicated, oldName, "identifier %s -> %s, renamed to %s (%s keeps %s)",
				a.OldID, a.NewID, n.Name(), kept[res.ID], a.OldID)
			p.logger.Debug("reconcile: identifier bumped",
				slog.String("path", a.Path),
				slog.String("from", a.OldID.String()),
				slog.String("to", a.NewID.String()))
		}
	}

	// Tasks that referenced a collided identifier keep pointing at the note
	// that retained it; flag them so the association can be checked.
	for _, n := range p.notes {
		if n.Type() != denote.TypeTask {
			continue
		}
		ref := denote.Identifier(n.Fields().String(fieldProjectID))
		name, ok := kept[ref]
		if !ok {
			continue
		}
		p.report.Counts.CollidedReferences++
		p.report.add(CategoryCollidedReference, n.Name(), "project_id %s was shared by %d notes; it now names %s only",
			ref, len(byID[ref]), name)
	}

	p.logger.Info("reconcile: deduplicated",
		slog.Int("groups", len(groups)),
		slog.Int("renamed", p.report.Counts.Deduplicated),
		slog.Int("failed_groups", p.report.Counts.DedupFailures))
}

// joinBase lists the base names of paths other than self.
func joinBase(paths []string, self string) string {
	var names []string
	for _, p := range paths {
		if p != self {
			names = append(names, path.Base(p))
		}
	}
	return strings.Join(names, ", ")
}

func byIDPaths(notes []*noterepo.Note) []string {
	out := make([]string, 0, len(notes))
	for _, n := range notes {
		out = append(out, n.Path)
	}
	return out
}

func (p *pass) normalize() {
	// Raise the counter past every index already in use, whatever the
	// note's type, so assigned values never repeat one.
	taken := make(map[int]struct{})
	for _, n := range p.notes {
		if v, ok := n.Fields().Int(fieldIndexID); ok && v > 0 {
			taken[v] = struct{}{}
			p.counter = p.counter.Observe(v)
		}
	}

	// A note without index_id carries its per-type counter over, unless
	// another note already holds that value.
	for _, n := range p.notes {
		if !classified(n) {
			continue
		}
		if v, ok := n.Fields().Int(fieldIndexID); ok && v > 0 {
			continue
		}
		li, ok := p.legacyIndex(n)
		if !ok {
			continue
		}
		if _, dup := taken[li.value]; dup {
			p.report.Counts.Warnings++
			p.report.add(CategoryWarning, n.Name(), "legacy %s %d is already in use; a new index_id is assigned", li.field, li.value)
			continue
		}
		taken[li.value] = struct{}{}
		p.counter = p.counter.Observe(li.value)
		p.adopted[n] = li
	}

	before := p.report.Counts.FieldsNormalized
	for _, n := range p.notes {
		switch n.Type() {
		case denote.TypeConflict:
			p.report.Counts.Warnings++
			p.report.add(CategoryWarning, n.Name(), "tagged both task and project; left untouched")
		case denote.TypeTask, denote.TypeProject:
			p.normalizeNote(n)
		}
	}

	p.logger.Info("reconcile: normalized",
		slog.Int("fields", p.report.Counts.FieldsNormalized-before),
		slog.Int("indices_assigned", p.report.Counts.IndicesAssigned),
		slog.Int("indices_migrated", p.report.Counts.IndicesMigrated),
		slog.Int("next_index", p.counter.NextIndex))
}

// legacyIndex is a per-type counter value found on a note.
type legacyIndex struct {
	field string
	value int
}

func (p *pass) legacyIndex(n *noterepo.Note) (legacyIndex, bool) {
	fields := slices.Clone(p.opts.Schema.LegacyCounters)
	if n.Type() == denote.TypeProject {
		fields = append(fields, fieldProjectID)
	}
	for _, field := range fields {
		if v, ok := positiveInt(n.Fields().Get(field)); ok {
			return legacyIndex{field: field, value: v}, true
		}
	}
	return legacyIndex{}, false
}

// positiveInt accepts an integer or a string of digits.
func positiveInt(v any, ok bool) (int, bool) {
	if !ok {
		return 0, false
	}
	switch val := v.(type) {
	case int:
		return val, val > 0
	case string:
		n, err := strconv.Atoi(val)
		return n, err == nil && n > 0
	}
	return 0, false
}

func classified(n *noterepo.Note) bool {
	t := n.Type()
	return t == denote.TypeTask || t == denote.TypeProject
}

func (p *pass) normalizeNote(n *noterepo.Note) {
	f := n.Fields()
	name := n.Name()
	changed := func(format string, args ...any) {
		p.report.Counts.FieldsNormalized++
		p.report.add(CategoryNormalized, name, format, args...)
	}

	for _, field := range p.opts.Schema.DeprecatedFields {
		if f.Delete(field) {
			changed("removed deprecated field %s", field)
		}
	}
	for _, field := range p.opts.Schema.LegacyCounters {
		if f.Delete(field) {
			changed("removed legacy counter %s", field)
		}
	}
	if n.Type() == denote.TypeProject {
		// On a project an integer project_id is the old per-type counter.
		if _, ok := f.Int(fieldProjectID); ok {
			f.Delete(fieldProjectID)
			changed("removed legacy counter %s", fieldProjectID)
		}
	}
	for _, field := range p.opts.Schema.ObsoleteFields {
		if f.Delete(field) {
			changed("removed obsolete field %s", field)
		}
	}

	if f.String(fieldTitle) == "" {
		title := denote.SlugTitle(n.Filename.Slug)
		f.Set(fieldTitle, title)
		changed("title set to %q", title)
	}
	if f.String(fieldType) != n.Type() {
		f.Set(fieldType, n.Type())
		changed("type set to %s", n.Type())
	}
	if li, ok := p.adopted[n]; ok {
		f.Set(fieldIndexID, li.value)
		p.report.Counts.IndicesMigrated++
		changed("index_id set to %d from legacy %s", li.value, li.field)
	} else if v, ok := f.Int(fieldIndexID); !ok || v <= 0 {
		var idx int
		idx, p.counter = p.counter.Assign()
		f.Set(fieldIndexID, idx)
		p.report.Counts.IndicesAssigned++
		changed("index_id set to %d", idx)
	}
	if p.opts.Schema.SyncTags && emptyValue(f.Get(fieldTags)) {
		tags := append([]string(nil), n.Filename.Tags...)
		f.Set(fieldTags, tags)
		changed("tags copied from filename")
	}
}

func emptyValue(v any, ok bool) bool {
	if !ok || v == nil {
		return true
	}
	if l, isList := v.([]string); isList {
		return len(l) == 0
	}
	if s, isString := v.(string); isString {
		return s == ""
	}
	return false
}

func (p *pass) resolve() {
	var projects []resolver.Project
	for _, n := range p.notes {
		if n.Type() != denote.TypeProject {
			continue
		}
		title := n.Fields().String(fieldTitle)
		if title == "" {
			title = denote.SlugTitle(n.Filename.Slug)
		}
		projects = append(projects, resolver.Project{ID: n.ID(), Slug: n.Filename.Slug, Title: title})
	}

	ix := resolver.NewIndex(projects, p.opts.Aliases)
	for _, w := range ix.Warnings() {
		p.report.Counts.Warnings++
		p.report.add(CategoryWarning, "aliases", "%s", w)
	}

	c := &p.report.Counts
	resolvedBefore := c.Resolved
	for _, n := range p.notes {
		if n.Type() != denote.TypeTask {
			continue
		}
		f := n.Fields()
		current := f.String(fieldProjectID)
		res := ix.Resolve(resolver.Task{
			ProjectID:     current,
			LegacyProject: f.String(fieldLegacyProject),
			Filename:      n.Filename,
			Body:          n.Doc.Body,
		})

		switch res.Kind {
		case resolver.Confirmed:
			c.Confirmed++
			if f.Delete(fieldLegacyProject) {
				c.FieldsNormalized++
				p.report.add(CategoryNormalized, n.Name(), "removed redundant legacy field %s", fieldLegacyProject)
			}
		case resolver.Substituted:
			f.Set(fieldProjectID, res.ProjectID.String())
			f.Delete(fieldLegacyProject)
			c.Resolved++
			msg := fmt.Sprintf("project_id set to %s via %s (%s)", res.ProjectID, res.Source, joinEvidence(res.Evidence))
			if res.Dangling {
				msg += fmt.Sprintf(", replacing dangling %s", current)
			}
			p.report.add(CategoryResolved, n.Name(), "%s", msg)
		case resolver.Ambiguous:
			c.Ambiguous++
			p.report.add(CategoryAmbiguous, n.Name(), "%s evidence (%s) matches %s",
				res.Source, joinEvidence(res.Evidence), joinIDs(res.Candidates))
		default:
			c.Unresolved++
			if res.Dangling {
				p.report.add(CategoryUnresolved, n.Name(), "project_id %s names no project and nothing else matched", current)
			} else {
				p.report.add(CategoryUnresolved, n.Name(), "no project matched")
			}
		}
	}

	p.logger.Info("reconcile: resolved",
		slog.Int("projects", ix.Len()),
		slog.Int("resolved", c.Resolved-resolvedBefore),
		slog.Int("confirmed", c.Confirmed),
		slog.Int("unresolved", c.Unresolved),
		slog.Int("ambiguous", c.Ambiguous))
}

func joinEvidence(ev []string) string {
	return strings.Join(ev, ", ")
}

func joinIDs(ids []denote.Identifier) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = id.String()
	}
	return strings.Join(parts, ", ")
}

func (p *pass) preview() {
	for _, n := range p.notes {
		if n.Dirty() {
			p.report.Counts.PendingWrites++
		}
	}
	p.report.Counts.CounterPending = p.state.Changed(p.counter)
}

func (e *Engine) persist(ctx context.Context, p *pass) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if p.state.Changed(p.counter) {
		if err := e.repo.SaveCounter(ctx, p.counter); err != nil {
			return fmt.Errorf("%w: %w", ErrCounterPersist, err)
		}
		p.report.Counts.CounterWritten = true
	}

	for _, n := range p.notes {
		if !n.Dirty() {
			continue
		}
		res, err := e.repo.Save(ctx, n)
		if err != nil {
			p.report.Counts.SaveFailures++
			p.report.add(CategorySaveFailure, n.Path, "%v", err)
			e.logger.Warn("reconcile: save failed",
				slog.String("path", n.Path),
				slog.String("error", err.Error()))
			continue
		}
		p.report.Counts.NotesWritten++
		if res.Renamed {
			p.report.add(CategoryWritten, res.OldPath, "renamed to %s", res.NewPath)
		} else {
			p.report.add(CategoryWritten, res.NewPath, "rewritten")
		}
		e.logger.Debug("reconcile: saved", slog.String("path", res.NewPath))
	}

	e.logger.Info("reconcile: persisted",
		slog.Bool("counter_written", p.report.Counts.CounterWritten),
		slog.Int("written", p.report.Counts.NotesWritten),
		slog.Int("failed", p.report.Counts.SaveFailures))
	return nil
}
