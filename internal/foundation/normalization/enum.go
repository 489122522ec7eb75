// Package normalization turns loosely written configuration values into
// typed enumerations.
package normalization

import (
	"fmt"
	"sort"
	"strings"
)

// Enum maps case-insensitive spellings (and aliases) to typed values.
type Enum[T comparable] struct {
	name         string
	values       map[string]T
	defaultValue T
	keys         []string
}

// NewEnum builds an Enum. Keys are lower-cased and trimmed.
func NewEnum[T comparable](name string, values map[string]T, defaultValue T) *Enum[T] {
	normalized := make(map[string]T, len(values))
	keys := make([]string, 0, len(values))
	for k, v := range values {
		nk := clean(k)
		normalized[nk] = v
		keys = append(keys, nk)
	}
	sort.Strings(keys)
	return &Enum[T]{name: name, values: normalized, defaultValue: defaultValue, keys: keys}
}

// Normalize returns the matching value or the default.
func (e *Enum[T]) Normalize(raw string) T {
	if v, ok := e.values[clean(raw)]; ok {
		return v
	}
	return e.defaultValue
}

// Parse returns the matching value. Empty input yields the default.
func (e *Enum[T]) Parse(raw string) (T, error) {
	if clean(raw) == "" {
		return e.defaultValue, nil
	}
	if v, ok := e.values[clean(raw)]; ok {
		return v, nil
	}
	var zero T
	return zero, fmt.Errorf("invalid %s %q, valid options: %v", e.name, raw, e.keys)
}

// Result describes a normalization that may have rewritten the input.
type Result[T comparable] struct {
	Value   T
	Changed bool
	Warning string
}

// NormalizeWithWarning normalizes raw and explains any rewrite for field.
func (e *Enum[T]) NormalizeWithWarning(field, raw string) Result[T] {
	v, err := e.Parse(raw)
	if err != nil {
		return Result[T]{
			Value:   e.defaultValue,
			Changed: true,
			Warning: fmt.Sprintf("unknown %s '%s', defaulting to %v", field, raw, e.defaultValue),
		}
	}
	if raw != "" && fmt.Sprint(v) != raw {
		return Result[T]{Value: v, Changed: true, Warning: fmt.Sprintf("normalized %s from '%s' to '%v'", field, raw, v)}
	}
	return Result[T]{Value: v}
}

// Keys returns the accepted spellings in sorted order.
func (e *Enum[T]) Keys() []string {
	out := make([]string, len(e.keys))
	copy(out, e.keys)
	return out
}

func clean(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
