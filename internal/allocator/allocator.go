// Package allocator hands out unique note identifiers and sequential
// secondary indices. It is a pure query component: callers pass in the
// identifiers in use and thread the counter value through explicitly.
package allocator

import (
	"errors"
	"fmt"
	"sort"

	"github.com/starford/denote-reconcile/internal/denote"
)

var (
	// ErrAllocatorExhausted is returned when no free identifier exists
	// within the probe window of a collision group.
	ErrAllocatorExhausted = errors.New("allocator exhausted")
	// ErrInvalidIdentifier is returned when a colliding identifier cannot be
	// read as a timestamp and therefore cannot be bumped.
	ErrInvalidIdentifier = errors.New("identifier is not a valid timestamp")
)

// DefaultMaxProbe bounds how many seconds past the original identifier the
// allocator searches for a free slot.
const DefaultMaxProbe = 3600

// Group is a set of notes sharing one identifier.
type Group struct {
	ID      denote.Identifier
	Members []string // note paths
}

// Assignment is one renamed member of a collision group.
type Assignment struct {
	Path  string
	OldID denote.Identifier
	NewID denote.Identifier
}

// GroupResult describes how one collision group was resolved.
type GroupResult struct {
	ID          denote.Identifier
	Kept        string
	Assignments []Assignment
	Err         error
}

// Deduplicate resolves every group: the lexicographically first member
// keeps the identifier, the others get original+k seconds (k = 1, 2, ...),
// skipping values in used. Identifiers assigned here are added to used.
// A failed group is returned with Err set and no assignments.
func Deduplicate(groups []Group, used map[denote.Identifier]struct{}, maxProbe int) []GroupResult {
	if maxProbe <= 0 {
		maxProbe = DefaultMaxProbe
	}
	if used == nil {
		used = make(map[denote.Identifier]struct{})
	}

	sorted := make([]Group, len(groups))
	copy(sorted, groups)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	results := make([]GroupResult, 0, len(sorted))
	for _, g := range sorted {
		results = append(results, dedupGroup(g, used, maxProbe))
	}
	return results
}

func dedupGroup(g Group, used map[denote.Identifier]struct{}, maxProbe int) GroupResult {
	members := append([]string(nil), g.Members...)
	sort.Strings(members)

	res := GroupResult{ID: g.ID}
	if len(members) == 0 {
		return res
	}
	res.Kept = members[0]
	if len(members) == 1 {
		return res
	}
	if _, err := g.ID.Time(); err != nil {
		res.Err = fmt.Errorf("%w: %s", ErrInvalidIdentifier, g.ID)
		return res
	}

	used[g.ID] = struct{}{}
	reserved := make(map[denote.Identifier]struct{})
	taken := func(id denote.Identifier) bool {
		_, inUse := used[id]
		_, mine := reserved[id]
		return inUse || mine
	}

	var pending []Assignment
	k := 0
	for _, path := range members[1:] {
		var next denote.Identifier
		for {
			k++
			if k > maxProbe {
				res.Err = fmt.Errorf("%w: %s: no free identifier within %d seconds", ErrAllocatorExhausted, g.ID, maxProbe)
				return res
			}
			candidate, err := g.ID.Add(k)
			if err != nil {
				res.Err = fmt.Errorf("%w: %s", ErrInvalidIdentifier, g.ID)
				return res
			}
			if !taken(candidate) {
				next = candidate
				break
			}
		}
		reserved[next] = struct{}{}
		pending = append(pending, Assignment{Path: path, OldID: g.ID, NewID: next})
	}

	for id := range reserved {
		used[id] = struct{}{}
	}
	res.Assignments = pending
	return res
}
