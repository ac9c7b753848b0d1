package resolver

import (
	"strings"

	"github.com/starford/denote-reconcile/internal/denote"
)

// Kind is the outcome of resolving one task.
type Kind int

const (
	// Unresolved means no evidence pointed at any project.
	Unresolved Kind = iota
	// Confirmed means the task already references an existing project.
	Confirmed
	// Substituted means a project was found and project_id should be set.
	Substituted
	// Ambiguous means the evidence pointed at more than one project.
	Ambiguous
)

func (k Kind) String() string {
	switch k {
	case Confirmed:
		return "confirmed"
	case Substituted:
		return "substituted"
	case Ambiguous:
		return "ambiguous"
	default:
		return "unresolved"
	}
}

// MarshalText renders the kind by name in JSON reports.
func (k Kind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

// Source names the evidence a resolution was based on.
type Source string

const (
	SourceProjectID   Source = "project-id"
	SourceLegacyField Source = "legacy-field"
	SourceAlias       Source = "alias"
)

// Task is the part of a task note the resolver needs.
type Task struct {
	ProjectID     string // current project_id, may be empty
	LegacyProject string // free-text "project" field, may be empty
	Filename      denote.Filename
	Body          string
}

// Resolution is the tagged result of Resolve. ProjectID is set for
// Confirmed and Substituted; Candidates for Ambiguous.
type Resolution struct {
	Kind       Kind                `json:"kind"`
	Source     Source              `json:"source,omitempty"`
	ProjectID  denote.Identifier   `json:"project_id,omitempty"`
	Candidates []denote.Identifier `json:"candidates,omitempty"`
	// Evidence is the legacy value or alias keywords that matched.
	Evidence []string `json:"evidence,omitempty"`
	// Dangling is set when the task carried a project_id naming no project.
	Dangling bool `json:"dangling,omitempty"`
}

// Resolve finds the project a task belongs to.
func (ix *Index) Resolve(t Task) Resolution {
	current := strings.TrimSpace(t.ProjectID)
	if current != "" && ix.Has(denote.Identifier(current)) {
		return Resolution{Kind: Confirmed, Source: SourceProjectID, ProjectID: denote.Identifier(current)}
	}
	dangling := current != ""

	if legacy := strings.TrimSpace(t.LegacyProject); legacy != "" {
		switch ids := ix.Lookup(legacy); len(ids) {
		case 0:
		case 1:
			return Resolution{Kind: Substituted, Source: SourceLegacyField, ProjectID: ids[0], Evidence: []string{legacy}, Dangling: dangling}
		default:
			return Resolution{Kind: Ambiguous, Source: SourceLegacyField, Candidates: ids, Evidence: []string{legacy}, Dangling: dangling}
		}
	}

	matched, evidence := ix.matchAliases(taskTokens(t))
	switch ids := sortedIDs(matched); len(ids) {
	case 0:
		return Resolution{Kind: Unresolved, Dangling: dangling}
	case 1:
		return Resolution{Kind: Substituted, Source: SourceAlias, ProjectID: ids[0], Evidence: evidence, Dangling: dangling}
	default:
		return Resolution{Kind: Ambiguous, Source: SourceAlias, Candidates: ids, Evidence: evidence, Dangling: dangling}
	}
}

// taskTokens returns the words of the filename slug, its tags, and the body.
func taskTokens(t Task) []string {
	tokens := Tokenize(t.Filename.Slug)
	for _, tag := range t.Filename.Tags {
		tokens = append(tokens, Tokenize(tag)...)
	}
	// A sentinel keeps a keyword from spanning the filename/body boundary.
	tokens = append(tokens, "")
	return append(tokens, Tokenize(t.Body)...)
}

func (ix *Index) matchAliases(tokens []string) (map[denote.Identifier]struct{}, []string) {
	matched := make(map[denote.Identifier]struct{})
	var evidence []string
	for _, a := range ix.aliases {
		if containsRun(tokens, a.tokens) {
			matched[a.project] = struct{}{}
			evidence = append(evidence, a.keyword)
		}
	}
	return matched, evidence
}

// containsRun reports whether run appears as a contiguous subsequence of
// tokens.
func containsRun(tokens, run []string) bool {
	if len(run) == 0 || len(run) > len(tokens) {
		return false
	}
outer:
	for i := 0; i+len(run) <= len(tokens); i++ {
		for j, w := range run {
			if tokens[i+j] != w {
				continue outer
			}
		}
		return true
	}
	return false
}
