package reconcile

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"
)

// Category groups report line items.
type Category string

const (
	CategoryParseFailure      Category = "parse-failure"
	CategoryDeduplicated      Category = "deduplicated"
	CategoryDedupFailure      Category = "dedup-failure"
	CategoryCollidedReference Category = "collided-reference"
	CategoryNormalized        Category = "normalized"
	CategoryResolved          Category = "resolved"
	CategoryUnresolved        Category = "unresolved"
	CategoryAmbiguous         Category = "ambiguous"
	CategoryWarning           Category = "warning"
	CategorySaveFailure       Category = "save-failure"
	CategoryWritten           Category = "written"
)

// categoryOrder is the order categories appear in the text report.
var categoryOrder = []Category{
	CategoryParseFailure,
	CategoryDeduplicated,
	CategoryDedupFailure,
	CategoryCollidedReference,
	CategoryNormalized,
	CategoryResolved,
	CategoryUnresolved,
	CategoryAmbiguous,
	CategoryWarning,
	CategorySaveFailure,
	CategoryWritten,
}

// Item is one line of the report, naming the note it concerns.
type Item struct {
	Category Category `json:"category"`
	Note     string   `json:"note"`
	Message  string   `json:"message"`
}

// Counts summarizes a pass.
type Counts struct {
	Notes              int  `json:"notes"`
	ParseFailures      int  `json:"parse_failures"`
	Deduplicated       int  `json:"identifiers_deduplicated"`
	DedupFailures      int  `json:"dedup_failures"`
	CollidedReferences int  `json:"collided_references"`
	FieldsNormalized   int  `json:"fields_normalized"`
	IndicesAssigned    int  `json:"indices_assigned"`
	IndicesMigrated    int  `json:"indices_migrated"`
	Resolved           int  `json:"references_resolved"`
	Confirmed          int  `json:"references_confirmed"`
	Unresolved         int  `json:"unresolved"`
	Ambiguous          int  `json:"ambiguous"`
	Warnings           int  `json:"warnings"`
	SaveFailures       int  `json:"save_failures"`
	NotesWritten       int  `json:"notes_written"`
	PendingWrites      int  `json:"pending_writes"`
	CounterWritten     bool `json:"counter_written"`
	CounterPending     bool `json:"counter_pending"`
}

// Report is the outcome of one pass.
type Report struct {
	Dir        string    `json:"dir"`
	DryRun     bool      `json:"dry_run"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	NextIndex  int       `json:"next_index"`
	Counts     Counts    `json:"counts"`
	Items      []Item    `json:"items"`
	Error      string    `json:"error,omitempty"`
}

func (r *Report) add(c Category, note, format string, args ...any) {
	r.Items = append(r.Items, Item{Category: c, Note: note, Message: fmt.Sprintf(format, args...)})
}

// Changes returns how many modifications the pass made (or, in a dry run,
// would make). A second pass over an unchanged corpus reports zero.
// Unresolved and ambiguous tasks are standing findings and do not count.
func (r *Report) Changes() int {
	n := r.Counts.Deduplicated + r.Counts.FieldsNormalized + r.Counts.Resolved +
		r.Counts.NotesWritten + r.Counts.PendingWrites
	if r.Counts.CounterWritten || r.Counts.CounterPending {
		n++
	}
	return n
}

// ItemsFor returns the items of one category in report order.
func (r *Report) ItemsFor(c Category) []Item {
	var out []Item
	for _, it := range r.Items {
		if it.Category == c {
			out = append(out, it)
		}
	}
	return out
}

// WriteJSON encodes the report for tools.
func (r *Report) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

// WriteText renders the report for operators.
func (r *Report) WriteText(w io.Writer) error {
	var b strings.Builder
	mode := "applied"
	if r.DryRun {
		mode = "dry run"
	}
	fmt.Fprintf(&b, "reconcile %s (%s)\n", r.Dir, mode)
	if r.Error != "" {
		fmt.Fprintf(&b, "error: %s\n", r.Error)
	}

	type row struct {
		label string
		n     int
	}
	c := r.Counts
	rows := []row{
		{"notes", c.Notes},
		{"parse failures", c.ParseFailures},
		{"identifiers deduplicated", c.Deduplicated},
		{"collision groups left unresolved", c.DedupFailures},
		{"references to collided identifiers", c.CollidedReferences},
		{"fields normalized", c.FieldsNormalized},
		{"indices assigned", c.IndicesAssigned},
		{"indices migrated", c.IndicesMigrated},
		{"references resolved", c.Resolved},
		{"references confirmed", c.Confirmed},
		{"unresolved", c.Unresolved},
		{"ambiguous", c.Ambiguous},
		{"warnings", c.Warnings},
		{"save failures", c.SaveFailures},
	}
	if r.DryRun {
		rows = append(rows, row{"notes to write", c.PendingWrites})
	} else {
		rows = append(rows, row{"notes written", c.NotesWritten})
	}
	for _, line := range rows {
		fmt.Fprintf(&b, "  %-36s %d\n", line.label+":", line.n)
	}
	fmt.Fprintf(&b, "  %-36s %d\n", "next index:", r.NextIndex)

	for _, cat := range categoryOrder {
		items := r.ItemsFor(cat)
		if len(items) == 0 {
			continue
		}
		fmt.Fprintf(&b, "\n%s:\n", cat)
		for _, it := range items {
			fmt.Fprintf(&b, "  %s: %s\n", it.Note, it.Message)
		}
	}

	_, err := io.WriteString(w, b.String())
	return err
}
