package config

import (
	"fmt"
	"strconv"
	"time"
)

// Options is the free-form option bag attached to rules and plugins.
// Accessors tolerate the value shapes yaml.v3 produces.
type Options map[string]any

// String returns the string value of key or def.
func (o Options) String(key, def string) string {
	v, ok := o[key]
	if !ok || v == nil {
		return def
	}
	switch t := v.(type) {
	case string:
		return t
	default:
		return fmt.Sprint(t)
	}
}

// Int returns the integer value of key or def.
func (o Options) Int(key string, def int) int {
	v, ok := o[key]
	if !ok || v == nil {
		return def
	}
	switch t := v.(type) {
	case int:
		return t
	case int64:
		return int(t)
	case uint64:
		return int(t)
	case float64:
		return int(t)
	case string:
		if n, err := strconv.Atoi(t); err == nil {
			return n
		}
	}
	return def
}

// Bool returns the boolean value of key or def.
func (o Options) Bool(key string, def bool) bool {
	v, ok := o[key]
	if !ok || v == nil {
		return def
	}
	switch t := v.(type) {
	case bool:
		return t
	case string:
		if b, err := strconv.ParseBool(t); err == nil {
			return b
		}
	}
	return def
}

// Strings returns a string list for key. A scalar string becomes a one-element list.
func (o Options) Strings(key string) []string {
	v, ok := o[key]
	if !ok || v == nil {
		return nil
	}
	switch t := v.(type) {
	case []string:
		return append([]string(nil), t...)
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			out = append(out, fmt.Sprint(item))
		}
		return out
	case string:
		return []string{t}
	}
	return nil
}

// Duration parses a duration value for key or returns def.
func (o Options) Duration(key string, def time.Duration) time.Duration {
	s := o.String(key, "")
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return def
	}
	return d
}

// Has reports whether key is present.
func (o Options) Has(key string) bool {
	_, ok := o[key]
	return ok
}
