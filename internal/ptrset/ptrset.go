// Package ptrset provides hash-consed, arena-allocated immutable sets of
// pointers.
//
// The sets are meant for small groups (usually fewer than a hundred
// elements) that are propagated through many basic blocks. They are merged
// and copied far more often than they are created, so:
//
//   - sets are purely additive: a set is built from a sorted array or by
//     merging two sets, never by removing elements;
//   - elements are kept sorted by Key, so iteration order is stable and
//     Contains is a binary search;
//   - every distinct content exists exactly once per Factory, so two sets are
//     equal iff they are the same *Set;
//   - memory comes from fixed-size slabs that are released only in bulk by
//     Factory.Reset.
//
// Example:
//
//	f := ptrset.NewFactory[*ir.Instruction]()
//	a := f.GetOne(retain1)
//	b := f.Get([]*ir.Instruction{retain1, retain2}) // sorted by Key
//	u := f.Merge(a, b)                              // u == b
package ptrset

import (
	"fmt"
	"sort"
	"unsafe"
)

// Element is the constraint for set members. Key must be stable for the
// lifetime of the factory and distinct for distinct elements.
type Element interface {
	comparable
	Key() uint64
}

// =============================================================================
// Set
// =============================================================================

// Set is an immutable, sorted and deduplicated set of elements.
// The zero value is not usable; obtain sets from a Factory.
type Set[T Element] struct {
	data    []T
	hash    uint64
	factory *Factory[T]
}

// Len returns the number of elements.
func (s *Set[T]) Len() int { return len(s.data) }

// Empty reports whether the set has no elements.
func (s *Set[T]) Empty() bool { return len(s.data) == 0 }

// At returns the i-th element in key order.
func (s *Set[T]) At(i int) T { return s.data[i] }

// All iterates the elements in key order.
func (s *Set[T]) All(yield func(T) bool) {
	for _, v := range s.data {
		if !yield(v) {
			return
		}
	}
}

// Slice returns a copy of the elements in key order.
func (s *Set[T]) Slice() []T {
	out := make([]T, len(s.data))
	copy(out, s.data)
	return out
}

// Count returns 1 if v is in the set and 0 otherwise.
func (s *Set[T]) Count(v T) int {
	k := v.Key()
	i := sort.Search(len(s.data), func(i int) bool { return s.data[i].Key() >= k })
	if i < len(s.data) && s.data[i] == v {
		return 1
	}
	return 0
}

// Contains reports whether v is in the set.
func (s *Set[T]) Contains(v T) bool { return s.Count(v) == 1 }

// Equal compares contents element by element. Sets from the same factory are
// equal iff they are identical, but Equal also works across factories.
func (s *Set[T]) Equal(other *Set[T]) bool {
	if s == other {
		return true
	}
	if len(s.data) != len(other.data) {
		return false
	}
	for i := range s.data {
		if s.data[i] != other.data[i] {
			return false
		}
	}
	return true
}

// HasEmptyIntersection reports whether s and other share no element. It walks
// both sorted arrays once, stopping at the first common element.
func (s *Set[T]) HasEmptyIntersection(other *Set[T]) bool {
	if s.Empty() || other.Empty() {
		return true
	}
	i, j := 0, 0
	for i < len(s.data) && j < len(other.data) {
		a, b := s.data[i], other.data[j]
		if a == b {
			return false
		}
		if a.Key() < b.Key() {
			i++
			continue
		}
		j++
	}
	return true
}

// Merge returns the union of s and other through the owning factory.
func (s *Set[T]) Merge(other *Set[T]) *Set[T] {
	if s.Empty() {
		return other
	}
	if other.Empty() {
		return s
	}
	if s.factory != other.factory {
		panic("ptrset: merging sets from different factories")
	}
	return s.factory.Merge(s, other)
}

func (s *Set[T]) String() string {
	return fmt.Sprint(s.data)
}

// =============================================================================
// Factory
// =============================================================================

const slabElems = 1024

// Stats describes the memory handed out by a factory since the last Reset.
type Stats struct {
	Sets   int
	Bytes  uintptr
	Hits   int
	Misses int
}

// Factory interns sets. It is not safe for concurrent use.
type Factory[T Element] struct {
	empty   *Set[T]
	table   map[uint64][]*Set[T]
	data    []T      // current element slab
	headers []Set[T] // current header slab
	stats   Stats
}

// NewFactory returns an empty factory.
func NewFactory[T Element]() *Factory[T] {
	f := &Factory[T]{table: make(map[uint64][]*Set[T])}
	f.empty = &Set[T]{factory: f}
	return f
}

// EmptySet returns the canonical empty set.
func (f *Factory[T]) EmptySet() *Set[T] { return f.empty }

// Stats returns allocation statistics since the last Reset.
func (f *Factory[T]) Stats() Stats { return f.stats }

// Reset forgets every interned set and releases the slabs. Sets obtained
// before Reset must not be merged or compared by identity afterwards.
func (f *Factory[T]) Reset() {
	clear(f.table)
	f.data = nil
	f.headers = nil
	f.stats = Stats{}
}

// Get returns the set holding array. The caller guarantees that array is
// sorted by Key without duplicates; anything else is a programming error and
// panics.
func (f *Factory[T]) Get(array []T) *Set[T] {
	if len(array) == 0 {
		return f.empty
	}
	if !isSortedUnique(array) {
		panic("ptrset: Get requires a sorted and uniqued array")
	}
	h := hashSeed
	for _, v := range array {
		h = hashKey(h, v.Key())
	}
	if s := f.lookup(h, func(s *Set[T]) bool { return equalSlice(s.data, array) }); s != nil {
		return s
	}
	data := f.allocData(len(array))
	copy(data, array)
	return f.insert(h, data)
}

// GetOne returns the single element set {v}.
func (f *Factory[T]) GetOne(v T) *Set[T] {
	h := hashKey(hashSeed, v.Key())
	if s := f.lookup(h, func(s *Set[T]) bool { return len(s.data) == 1 && s.data[0] == v }); s != nil {
		return s
	}
	data := f.allocData(1)
	data[0] = v
	return f.insert(h, data)
}

// Merge returns the union of s1 and s2.
func (f *Factory[T]) Merge(s1, s2 *Set[T]) *Set[T] {
	if s1.Empty() {
		return s2
	}
	if s2.Empty() {
		return s1
	}
	// Interned: identical content means identical pointer.
	if s1 == s2 {
		return s1
	}
	return f.mergeSorted(s1, s2.data)
}

// MergeSlice returns the union of s1 and the sorted, uniqued array s2.
func (f *Factory[T]) MergeSlice(s1 *Set[T], s2 []T) *Set[T] {
	if s1.Empty() {
		return f.Get(s2)
	}
	if len(s2) == 0 {
		return s1
	}
	if !isSortedUnique(s2) {
		panic("ptrset: MergeSlice requires a sorted and uniqued array")
	}
	if equalSlice(s1.data, s2) {
		return s1
	}
	return f.mergeSorted(s1, s2)
}

// mergeSorted hashes the union while walking both inputs and materialises it
// only when the intern table misses.
func (f *Factory[T]) mergeSorted(s1 *Set[T], s2 []T) *Set[T] {
	h := hashSeed
	n := 0
	unionEach(s1.data, s2, func(v T) {
		h = hashKey(h, v.Key())
		n++
	})
	// s1 already equal to the union: s2 is a subset.
	if n == len(s1.data) {
		return s1
	}
	if s := f.lookup(h, func(s *Set[T]) bool { return unionEquals(s.data, s1.data, s2, n) }); s != nil {
		return s
	}
	data := f.allocData(n)
	i := 0
	unionEach(s1.data, s2, func(v T) {
		data[i] = v
		i++
	})
	return f.insert(h, data)
}

func (f *Factory[T]) lookup(h uint64, eq func(*Set[T]) bool) *Set[T] {
	for _, s := range f.table[h] {
		if eq(s) {
			f.stats.Hits++
			return s
		}
	}
	f.stats.Misses++
	return nil
}

func (f *Factory[T]) insert(h uint64, data []T) *Set[T] {
	if len(f.headers) == cap(f.headers) {
		f.headers = make([]Set[T], 0, slabElems/8)
	}
	f.headers = append(f.headers, Set[T]{data: data, hash: h, factory: f})
	s := &f.headers[len(f.headers)-1]
	f.table[h] = append(f.table[h], s)

	var zero T
	f.stats.Sets++
	f.stats.Bytes += unsafe.Sizeof(*s) + uintptr(len(data))*unsafe.Sizeof(zero)
	return s
}

// allocData carves n elements out of the current slab. Slabs never grow in
// place, so previously returned slices stay valid.
func (f *Factory[T]) allocData(n int) []T {
	if cap(f.data)-len(f.data) < n {
		size := slabElems
		if n > size {
			size = n
		}
		f.data = make([]T, 0, size)
	}
	start := len(f.data)
	f.data = f.data[:start+n]
	return f.data[start : start+n : start+n]
}

// =============================================================================
// Helpers
// =============================================================================

const (
	hashSeed  uint64 = 14695981039346656037
	hashPrime uint64 = 1099511628211
)

// hashKey folds one key into an FNV-1a style running hash.
func hashKey(h, k uint64) uint64 {
	for i := 0; i < 8; i++ {
		h ^= k & 0xff
		h *= hashPrime
		k >>= 8
	}
	return h
}

func isSortedUnique[T Element](array []T) bool {
	for i := 1; i < len(array); i++ {
		if array[i-1].Key() >= array[i].Key() {
			return false
		}
	}
	return true
}

func equalSlice[T Element](a, b []T) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// unionEach calls fn for every element of the sorted union of a and b.
func unionEach[T Element](a, b []T, fn func(T)) {
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		ka, kb := a[i].Key(), b[j].Key()
		switch {
		case ka < kb:
			fn(a[i])
			i++
		case kb < ka:
			fn(b[j])
			j++
		default:
			fn(a[i])
			i++
			j++
		}
	}
	for ; i < len(a); i++ {
		fn(a[i])
	}
	for ; j < len(b); j++ {
		fn(b[j])
	}
}

// unionEquals reports whether data equals the n-element union of a and b
// without materialising the union.
func unionEquals[T Element](data, a, b []T, n int) bool {
	if len(data) != n {
		return false
	}
	k := 0
	ok := true
	unionEach(a, b, func(v T) {
		if ok && data[k] != v {
			ok = false
		}
		k++
	})
	return ok
}
