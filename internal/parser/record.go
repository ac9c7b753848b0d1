package parser

import (
	"reflect"
	"slices"
	"strconv"
)

// Record is an ordered mapping of frontmatter field name to value.
//
// Values are one of: string, int, bool, float64, []string, or nil (an empty
// field such as "area:").
type Record struct {
	keys []string
	vals map[string]any
}

// NewRecord returns an empty record.
func NewRecord() *Record {
	return &Record{vals: make(map[string]any)}
}

// Len returns the number of fields.
func (r *Record) Len() int { return len(r.keys) }

// Keys returns field names in insertion order.
func (r *Record) Keys() []string { return slices.Clone(r.keys) }

// Has reports whether key is present.
func (r *Record) Has(key string) bool {
	_, ok := r.vals[key]
	return ok
}

// Get returns the value stored under key.
func (r *Record) Get(key string) (any, bool) {
	v, ok := r.vals[key]
	return v, ok
}

// Set stores v under key. An existing key keeps its position; a new key is
// appended.
func (r *Record) Set(key string, v any) {
	if l, ok := v.([]string); ok && l == nil {
		v = []string{}
	}
	if _, ok := r.vals[key]; !ok {
		r.keys = append(r.keys, key)
	}
	r.vals[key] = v
}

// Delete removes key and reports whether it was present.
func (r *Record) Delete(key string) bool {
	if _, ok := r.vals[key]; !ok {
		return false
	}
	delete(r.vals, key)
	r.keys = slices.DeleteFunc(r.keys, func(k string) bool { return k == key })
	return true
}

// String returns the scalar under key as text. Lists and empty fields
// yield "".
func (r *Record) String(key string) string {
	switch v := r.vals[key].(type) {
	case string:
		return v
	case int:
		return strconv.Itoa(v)
	case bool:
		return strconv.FormatBool(v)
	case float64:
		return formatFloat(v)
	}
	return ""
}

// Int returns the value under key when it is an integer.
func (r *Record) Int(key string) (int, bool) {
	v, ok := r.vals[key].(int)
	return v, ok
}

// List returns the value under key when it is a list.
func (r *Record) List(key string) ([]string, bool) {
	v, ok := r.vals[key].([]string)
	return v, ok
}

// Clone returns a deep copy.
func (r *Record) Clone() *Record {
	c := &Record{keys: slices.Clone(r.keys), vals: make(map[string]any, len(r.vals))}
	for k, v := range r.vals {
		if l, ok := v.([]string); ok {
			v = slices.Clone(l)
		}
		c.vals[k] = v
	}
	return c
}

// Equal reports value equality. Field order is not significant.
func (r *Record) Equal(o *Record) bool {
	if r == nil || o == nil {
		return r == o
	}
	if len(r.vals) != len(o.vals) {
		return false
	}
	for k, v := range r.vals {
		ov, ok := o.vals[k]
		if !ok || !reflect.DeepEqual(v, ov) {
			return false
		}
	}
	return true
}
