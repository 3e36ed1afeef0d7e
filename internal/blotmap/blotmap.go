// Package blotmap provides an insertion-ordered map whose erase is a "blot".
//
// Erasing a key leaves a tombstone in the dense slot array instead of
// shifting the remaining entries, so:
//
//   - handles returned by Insert and Handle stay valid for the lifetime of
//     the map (until Clear);
//   - iteration order is insertion order, with blotted entries skipped;
//   - Len counts live entries only.
//
//	 slots:  [ a:1 ][ b:2 ][ ----- ][ d:4 ]
//	 index:  a→0  b→1  d→3          (c was erased)
//
// Re-inserting an erased key appends a fresh slot at the end.
package blotmap

import "iter"

type slot[K comparable, V any] struct {
	key   K
	value V
	live  bool
}

// Map is an order-preserving map with soft deletion.
// The zero value is an empty map ready to use.
type Map[K comparable, V any] struct {
	slots []slot[K, V]
	index map[K]int
	live  int
}

// Handle is a stable reference to an entry.
type Handle int

// Len returns the number of live entries.
func (m *Map[K, V]) Len() int { return m.live }

// Empty reports whether the map has no live entries.
func (m *Map[K, V]) Empty() bool { return m.live == 0 }

// Find returns the value stored for key.
func (m *Map[K, V]) Find(key K) (V, bool) {
	if i, ok := m.index[key]; ok {
		return m.slots[i].value, true
	}
	var zero V
	return zero, false
}

// Contains reports whether key has a live entry.
func (m *Map[K, V]) Contains(key K) bool {
	_, ok := m.index[key]
	return ok
}

// Insert stores value under key. An existing entry is overwritten in place
// and keeps its position.
func (m *Map[K, V]) Insert(key K, value V) Handle {
	if i, ok := m.index[key]; ok {
		m.slots[i].value = value
		return Handle(i)
	}
	return m.append(key, value)
}

// FindOrInsert returns the entry for key, creating it with mk when missing.
// The boolean reports whether the entry already existed.
func (m *Map[K, V]) FindOrInsert(key K, mk func() V) (V, bool) {
	if i, ok := m.index[key]; ok {
		return m.slots[i].value, true
	}
	v := mk()
	m.append(key, v)
	return v, false
}

func (m *Map[K, V]) append(key K, value V) Handle {
	if m.index == nil {
		m.index = make(map[K]int)
	}
	m.slots = append(m.slots, slot[K, V]{key: key, value: value, live: true})
	i := len(m.slots) - 1
	m.index[key] = i
	m.live++
	return Handle(i)
}

// Erase blots the entry for key. It reports whether an entry was removed.
func (m *Map[K, V]) Erase(key K) bool {
	i, ok := m.index[key]
	if !ok {
		return false
	}
	delete(m.index, key)
	var zero V
	m.slots[i].value = zero
	m.slots[i].live = false
	m.live--
	return true
}

// Handle returns the stable handle for key.
func (m *Map[K, V]) Handle(key K) (Handle, bool) {
	i, ok := m.index[key]
	return Handle(i), ok
}

// At returns the entry behind h. ok is false if the entry was blotted.
func (m *Map[K, V]) At(h Handle) (key K, value V, ok bool) {
	s := m.slots[h]
	return s.key, s.value, s.live
}

// All iterates live entries in insertion order. Erasing the current entry
// during iteration is allowed; inserted entries are visited too.
func (m *Map[K, V]) All() iter.Seq2[K, V] {
	return func(yield func(K, V) bool) {
		for i := 0; i < len(m.slots); i++ {
			s := m.slots[i]
			if !s.live {
				continue
			}
			if !yield(s.key, s.value) {
				return
			}
		}
	}
}

// Keys returns the live keys in insertion order.
func (m *Map[K, V]) Keys() []K {
	keys := make([]K, 0, m.live)
	for k := range m.All() {
		keys = append(keys, k)
	}
	return keys
}

// Clear removes every entry, blotted or not. Outstanding handles become
// invalid.
func (m *Map[K, V]) Clear() {
	m.slots = m.slots[:0]
	clear(m.index)
	m.live = 0
}

// Clone returns a compacted copy; cp copies each value (nil copies by
// assignment).
func (m *Map[K, V]) Clone(cp func(V) V) *Map[K, V] {
	out := &Map[K, V]{}
	if m.live == 0 {
		return out
	}
	out.slots = make([]slot[K, V], 0, m.live)
	out.index = make(map[K]int, m.live)
	for k, v := range m.All() {
		if cp != nil {
			v = cp(v)
		}
		out.append(k, v)
	}
	return out
}
