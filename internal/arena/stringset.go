package arena

import "sort"

// StringSet is a flyweight string set: an ordered set of arena-owned byte
// strings. Get(s) returns the interned copy, de-duplicating repeated row
// prefixes and qualifiers across many cells. Pointers returned by Get are
// valid until Clear or the backing Arena is freed.
type StringSet struct {
	a       *Arena
	entries [][]byte // kept sorted for O(log n) lookup
}

// NewStringSet creates a StringSet backed by a.
func NewStringSet(a *Arena) *StringSet {
	return &StringSet{a: a}
}

// Get returns an arena-owned, interned copy of s, allocating one only if s
// has not been seen before.
func (set *StringSet) Get(s []byte) []byte {
	idx, found := set.search(s)
	if found {
		return set.entries[idx]
	}
	owned := set.a.Dup(s)
	set.entries = append(set.entries, nil)
	copy(set.entries[idx+1:], set.entries[idx:])
	set.entries[idx] = owned
	return owned
}

func (set *StringSet) search(s []byte) (int, bool) {
	idx := sort.Search(len(set.entries), func(i int) bool {
		return compareBytes(set.entries[i], s) >= 0
	})
	if idx < len(set.entries) && compareBytes(set.entries[idx], s) == 0 {
		return idx, true
	}
	return idx, false
}

// Clear empties the set without releasing the backing arena.
func (set *StringSet) Clear() { set.entries = nil }

// Len reports the number of distinct strings interned.
func (set *StringSet) Len() int { return len(set.entries) }

func compareBytes(a, b []byte) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	switch {
	case len(a) < len(b):
		return -1
	case len(a) > len(b):
		return 1
	default:
		return 0
	}
}
