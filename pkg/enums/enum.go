// Package enums holds the closed string vocabularies stored in the database
// and carried on the wire.
package enums

import (
	"fmt"
	"slices"
)

// closedSet is the full list of values one enum type admits.
type closedSet[T ~string] struct {
	kind   string
	values []T
}

func newClosedSet[T ~string](kind string, values ...T) closedSet[T] {
	return closedSet[T]{kind: kind, values: values}
}

func (s closedSet[T]) contains(v T) bool {
	return slices.Contains(s.values, v)
}

// parse matches raw exactly; callers normalize case before parsing.
func (s closedSet[T]) parse(raw string) (T, error) {
	if v := T(raw); s.contains(v) {
		return v, nil
	}
	return "", fmt.Errorf("invalid %s %q", s.kind, raw)
}

func (s closedSet[T]) all() []T {
	return slices.Clone(s.values)
}
