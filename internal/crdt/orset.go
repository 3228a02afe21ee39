package crdt

import "sort"

// ORSet is an observed-remove set: each add carries a unique tag (the
// assigning event's hash); a remove names the tags it observed for a given
// value, so concurrent adds of the same value from different events
// survive a concurrent remove of an earlier add (spec §4.G "Assignees").
type ORSet[T comparable] struct {
	adds    map[string]T    // tag -> value
	removed map[string]bool // tags removed
}

// NewORSet returns an empty OR-set.
func NewORSet[T comparable]() *ORSet[T] {
	return &ORSet[T]{adds: map[string]T{}, removed: map[string]bool{}}
}

// Add records value under the unique tag (the add event's hash).
func (s *ORSet[T]) Add(tag string, value T) {
	s.adds[tag] = value
}

// RemoveValue marks every tag currently known to carry value as removed.
// This is "observed remove": it only removes adds this replica has seen.
func (s *ORSet[T]) RemoveValue(value T) {
	for tag, v := range s.adds {
		if v == value {
			s.removed[tag] = true
		}
	}
}

// RemoveTags marks the given tags as removed directly (used when replaying
// an unassign event that names its own target tags).
func (s *ORSet[T]) RemoveTags(tags ...string) {
	for _, t := range tags {
		s.removed[t] = true
	}
}

// Merge unions two OR-sets' adds and removed-tag sets.
func (s *ORSet[T]) Merge(other *ORSet[T]) {
	for tag, v := range other.adds {
		s.adds[tag] = v
	}
	for tag := range other.removed {
		s.removed[tag] = true
	}
}

// Values returns the distinct, not-removed values currently in the set.
func (s *ORSet[T]) Values() []T {
	seen := map[any]bool{}
	var out []T
	for tag, v := range s.adds {
		if s.removed[tag] {
			continue
		}
		if seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}

// SortedStrings returns Values() sorted ascending, for a []ORSet[string].
func (s *ORSet[T]) SortedStrings(toString func(T) string) []string {
	vals := s.Values()
	strs := make([]string, len(vals))
	for i, v := range vals {
		strs[i] = toString(v)
	}
	sort.Strings(strs)
	return strs
}
