// Package intset implements the compact sorted-int64-array encoding used
// for Set Objects whose members are all integers below the configured
// element threshold (spec §3 Object encoding variants: "intset").
package intset

import "sort"

// Set is a sorted slice of distinct int64 values.
type Set struct {
	vals []int64
}

// New returns an empty intset.
func New() *Set { return &Set{} }

// Len returns the number of members.
func (s *Set) Len() int { return len(s.vals) }

func (s *Set) search(v int64) (int, bool) {
	i := sort.Search(len(s.vals), func(i int) bool { return s.vals[i] >= v })
	if i < len(s.vals) && s.vals[i] == v {
		return i, true
	}
	return i, false
}

// Add inserts v, returning true if it was newly added.
func (s *Set) Add(v int64) bool {
	i, found := s.search(v)
	if found {
		return false
	}
	s.vals = append(s.vals, 0)
	copy(s.vals[i+1:], s.vals[i:])
	s.vals[i] = v
	return true
}

// Remove deletes v, returning true if it was present.
func (s *Set) Remove(v int64) bool {
	i, found := s.search(v)
	if !found {
		return false
	}
	s.vals = append(s.vals[:i], s.vals[i+1:]...)
	return true
}

// Contains reports whether v is a member.
func (s *Set) Contains(v int64) bool {
	_, found := s.search(v)
	return found
}

// Members returns all members in ascending order. The returned slice must
// not be mutated by the caller.
func (s *Set) Members() []int64 { return s.vals }

// Clone returns a deep copy, used for copy-on-write when a shared intset
// Object is about to be mutated.
func (s *Set) Clone() *Set {
	cp := make([]int64, len(s.vals))
	copy(cp, s.vals)
	return &Set{vals: cp}
}

// RandomMember returns the member at the given index modulo the set's size,
// picking a pseudo-random slot without a full shuffle.
func (s *Set) RandomMember(seed int) (int64, bool) {
	if len(s.vals) == 0 {
		return 0, false
	}
	return s.vals[seed%len(s.vals)], true
}
