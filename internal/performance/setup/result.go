package setup

import (
	"fmt"
	"sort"
)

// Result is the immutable output of a setup stage.
//
// A Result is built once before any scenario starts and then shared by
// pointer with every iteration of every scenario. It is never mutated after
// Stage.Run returns it, so concurrent reads need no locking.
type Result struct {
	values map[string]any
}

// NewResult creates a Result from a copy of values. Slices of strings are
// copied too.
func NewResult(values map[string]any) *Result {
	r := &Result{values: make(map[string]any, len(values))}
	for k, v := range values {
		if s, ok := v.([]string); ok {
			v = append([]string(nil), s...)
		}
		r.values[k] = v
	}
	return r
}

// Get returns the value stored under key.
func (r *Result) Get(key string) (any, bool) {
	if r == nil {
		return nil, false
	}
	v, ok := r.values[key]
	return v, ok
}

// String returns the string stored under key, or "" if absent or not a string.
func (r *Result) String(key string) string {
	v, _ := r.Get(key)
	s, _ := v.(string)
	return s
}

// Strings returns a copy of the string list stored under key.
func (r *Result) Strings(key string) []string {
	v, _ := r.Get(key)
	s, _ := v.([]string)
	return append([]string(nil), s...)
}

// MustString returns the string stored under key or an error naming the key.
func (r *Result) MustString(key string) (string, error) {
	s := r.String(key)
	if s == "" {
		return "", fmt.Errorf("setup value %q is missing", key)
	}
	return s, nil
}

// Len returns the number of stored values.
func (r *Result) Len() int {
	if r == nil {
		return 0
	}
	return len(r.values)
}

// Keys returns the stored keys in sorted order.
func (r *Result) Keys() []string {
	if r == nil {
		return nil
	}
	keys := make([]string, 0, len(r.values))
	for k := range r.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Values collects setup outputs while the stage runs. It is only touched by
// the goroutine running the stage.
type Values struct {
	m map[string]any
}

func newValues() *Values {
	return &Values{m: make(map[string]any)}
}

// Set stores v under key, replacing any previous value.
func (v *Values) Set(key string, value any) {
	v.m[key] = value
}

// Append adds s to the string list stored under key.
func (v *Values) Append(key, s string) {
	list, _ := v.m[key].([]string)
	v.m[key] = append(list, s)
}

// String returns the string stored under key, or "".
func (v *Values) String(key string) string {
	s, _ := v.m[key].(string)
	return s
}

// Strings returns the string list stored under key.
func (v *Values) Strings(key string) []string {
	s, _ := v.m[key].([]string)
	return s
}

func (v *Values) freeze() *Result {
	return NewResult(v.m)
}
