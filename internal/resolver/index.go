// Package resolver maps tasks to the project they belong to.
//
// Resolution runs in a fixed order and the first match wins: an existing
// project_id naming a real project, a legacy free-text project field that
// matches a canonical key, then configured alias keywords found in the task
// filename or body. Anything that matches several projects is reported as
// ambiguous instead of being guessed.
package resolver

import (
	"fmt"
	"slices"
	"sort"
	"strings"
	"unicode"

	"github.com/starford/denote-reconcile/internal/denote"
)

// Project is the part of a project note the resolver needs.
type Project struct {
	ID    denote.Identifier
	Slug  string
	Title string
}

// Aliases maps a project key (identifier or slug) to keywords that point at
// that project even though they do not match its title.
type Aliases map[string][]string

type aliasEntry struct {
	project denote.Identifier
	keyword string
	tokens  []string
}

// Index is the canonical lookup from project names to identifiers.
type Index struct {
	projects map[denote.Identifier]Project
	keys     map[string]map[denote.Identifier]struct{}
	aliases  []aliasEntry
	warnings []string
}

// NewIndex builds the canonical index over projects and the alias table.
// Alias keys that name no project, or more than one, become warnings.
func NewIndex(projects []Project, aliases Aliases) *Index {
	ix := &Index{
		projects: make(map[denote.Identifier]Project, len(projects)),
		keys:     make(map[string]map[denote.Identifier]struct{}),
	}
	for _, p := range projects {
		ix.projects[p.ID] = p
		ix.addKey(strings.ToLower(p.Slug), p.ID)
		ix.addKey(Normalize(p.Slug), p.ID)
		ix.addKey(Normalize(p.Title), p.ID)
	}

	// Alias keys are resolved against the name keys only, so iterate in a
	// fixed order and register keywords after every key is known.
	keys := make([]string, 0, len(aliases))
	for k := range aliases {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var entries []aliasEntry
	for _, key := range keys {
		id, err := ix.aliasTarget(key)
		if err != nil {
			ix.warnings = append(ix.warnings, err.Error())
			continue
		}
		for _, kw := range aliases[key] {
			tokens := Tokenize(kw)
			if len(tokens) == 0 {
				ix.warnings = append(ix.warnings, fmt.Sprintf("alias %q for %s has no words", kw, key))
				continue
			}
			entries = append(entries, aliasEntry{project: id, keyword: kw, tokens: tokens})
		}
	}
	for _, e := range entries {
		ix.addKey(Normalize(e.keyword), e.project)
	}
	ix.aliases = entries
	return ix
}

func (ix *Index) aliasTarget(key string) (denote.Identifier, error) {
	if id := denote.Identifier(key); id.Valid() {
		if _, ok := ix.projects[id]; ok {
			return id, nil
		}
		return "", fmt.Errorf("alias key %s: no project with that identifier", key)
	}
	ids := ix.Lookup(key)
	switch len(ids) {
	case 0:
		return "", fmt.Errorf("alias key %q: no matching project", key)
	case 1:
		return ids[0], nil
	default:
		return "", fmt.Errorf("alias key %q: matches %d projects", key, len(ids))
	}
}

func (ix *Index) addKey(key string, id denote.Identifier) {
	if key == "" {
		return
	}
	set, ok := ix.keys[key]
	if !ok {
		set = make(map[denote.Identifier]struct{})
		ix.keys[key] = set
	}
	set[id] = struct{}{}
}

// Warnings returns configuration problems found while building the index.
func (ix *Index) Warnings() []string { return slices.Clone(ix.warnings) }

// Has reports whether id names a known project.
func (ix *Index) Has(id denote.Identifier) bool {
	_, ok := ix.projects[id]
	return ok
}

// Len returns the number of indexed projects.
func (ix *Index) Len() int { return len(ix.projects) }

// Lookup returns the sorted identifiers of every project matching name,
// either by its lower-cased form or its normalized form.
func (ix *Index) Lookup(name string) []denote.Identifier {
	found := make(map[denote.Identifier]struct{})
	for _, key := range []string{strings.ToLower(strings.TrimSpace(name)), Normalize(name)} {
		for id := range ix.keys[key] {
			found[id] = struct{}{}
		}
	}
	return sortedIDs(found)
}

func sortedIDs(set map[denote.Identifier]struct{}) []denote.Identifier {
	out := make([]denote.Identifier, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}

// Normalize lower-cases s and drops every character that is not a letter
// or digit: "Website Redesign" and "website-redesign" both become
// "websiteredesign".
func Normalize(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Tokenize splits s into lower-case words of letters and digits.
func Tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
