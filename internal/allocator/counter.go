package allocator

import (
	"encoding/json"
	"fmt"
)

// CounterFile is the corpus-relative name of the persisted index counter.
const CounterFile = ".denote-task-counter.json"

// SpecVersion is written into the counter file by this schema.
const SpecVersion = "3.0.0"

// Counter is the global secondary-index sequence. It is a value: Assign
// returns the updated counter instead of mutating shared state, so one pass
// threads it from load through persist.
type Counter struct {
	NextIndex   int    `json:"next_index"`
	SpecVersion string `json:"spec_version"`
}

// NewCounter returns a counter starting at 1.
func NewCounter() Counter {
	return Counter{NextIndex: 1, SpecVersion: SpecVersion}
}

// Assign returns the current value and the incremented counter.
func (c Counter) Assign() (int, Counter) {
	v := c.NextIndex
	c.NextIndex++
	return v, c
}

// Observe raises the counter past an index already present in the corpus.
func (c Counter) Observe(existing int) Counter {
	if existing >= c.NextIndex {
		c.NextIndex = existing + 1
	}
	return c
}

// legacyCounter covers every counter layout the corpus has used.
type legacyCounter struct {
	NextIndex     *int   `json:"next_index"`
	NextIndexID   *int   `json:"next_index_id"`
	NextTaskID    *int   `json:"next_task_id"`
	NextProjectID *int   `json:"next_project_id"`
	SpecVersion   string `json:"spec_version"`
}

// DecodeCounter reads a counter file. Legacy per-type layouts are folded into
// a single next_index (the highest value present). The returned flag reports
// whether the input used a legacy layout.
func DecodeCounter(data []byte) (Counter, bool, error) {
	var raw legacyCounter
	if err := json.Unmarshal(data, &raw); err != nil {
		return Counter{}, false, fmt.Errorf("allocator: decode counter: %w", err)
	}
	c := NewCounter()
	for _, v := range []*int{raw.NextIndex, raw.NextIndexID, raw.NextTaskID, raw.NextProjectID} {
		if v != nil && *v > c.NextIndex {
			c.NextIndex = *v
		}
	}
	legacy := raw.NextIndex == nil || raw.NextIndexID != nil || raw.NextTaskID != nil || raw.NextProjectID != nil
	if raw.SpecVersion != "" {
		c.SpecVersion = raw.SpecVersion
	}
	return c, legacy, nil
}

// Encode renders the counter file.
func (c Counter) Encode() ([]byte, error) {
	if c.SpecVersion == "" {
		c.SpecVersion = SpecVersion
	}
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("allocator: encode counter: %w", err)
	}
	return append(data, '\n'), nil
}
