// Package extset provides the canonical extension filter used as part
// of the cache key: lowercased, dot-stripped, sorted and deduplicated,
// so two requests differing only in order or case are the same filter.
package extset

import (
	"sort"
	"strings"
)

type Set struct {
	values map[string]struct{}
}

// New builds a canonical set from raw extension strings. Leading dots
// and surrounding whitespace are stripped, empty values dropped.
func New(extensions ...string) Set {
	s := Set{values: make(map[string]struct{}, len(extensions))}
	for _, ext := range extensions {
		ext = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(ext, ".")))
		if ext == "" {
			continue
		}
		s.values[ext] = struct{}{}
	}
	return s
}

func (s Set) Contains(ext string) bool {
	_, ok := s.values[strings.ToLower(strings.TrimPrefix(ext, "."))]
	return ok
}

func (s Set) Len() int {
	return len(s.values)
}

// Canonical returns the sorted member list. This is the form stored in
// archive records and compared between runs.
func (s Set) Canonical() []string {
	out := make([]string, 0, len(s.values))
	for ext := range s.values {
		out = append(out, ext)
	}
	sort.Strings(out)
	return out
}

// With returns a copy of the set with extra extensions added.
func (s Set) With(extensions ...string) Set {
	merged := make([]string, 0, len(s.values)+len(extensions))
	merged = append(merged, s.Canonical()...)
	merged = append(merged, extensions...)
	return New(merged...)
}

// Equal compares two sets regardless of original insertion order.
func (s Set) Equal(other Set) bool {
	if len(s.values) != len(other.values) {
		return false
	}
	for ext := range s.values {
		if _, ok := other.values[ext]; !ok {
			return false
		}
	}
	return true
}

// EqualSlice compares the set against a stored canonical list.
func (s Set) EqualSlice(stored []string) bool {
	return s.Equal(New(stored...))
}
