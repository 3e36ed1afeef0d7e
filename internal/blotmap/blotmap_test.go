package blotmap_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mpyw/arcseq/internal/blotmap"
)

func collect(m *blotmap.Map[string, int]) ([]string, []int) {
	var keys []string
	var values []int
	for k, v := range m.All() {
		keys = append(keys, k)
		values = append(values, v)
	}
	return keys, values
}

func TestMap_InsertFindErase(t *testing.T) {
	var m blotmap.Map[string, int]
	assert.True(t, m.Empty())

	m.Insert("a", 1)
	m.Insert("b", 2)
	m.Insert("c", 3)
	require.Equal(t, 3, m.Len())

	v, ok := m.Find("b")
	require.True(t, ok)
	assert.Equal(t, 2, v)

	assert.True(t, m.Erase("b"))
	assert.False(t, m.Erase("b"))
	assert.Equal(t, 2, m.Len())

	_, ok = m.Find("b")
	assert.False(t, ok)

	keys, values := collect(&m)
	assert.Equal(t, []string{"a", "c"}, keys)
	assert.Equal(t, []int{1, 3}, values)
}

func TestMap_InsertOverwriteKeepsPosition(t *testing.T) {
	var m blotmap.Map[string, int]
	m.Insert("a", 1)
	m.Insert("b", 2)
	m.Insert("a", 10)

	keys, values := collect(&m)
	assert.Equal(t, []string{"a", "b"}, keys)
	assert.Equal(t, []int{10, 2}, values)
}

func TestMap_ReinsertAfterEraseAppends(t *testing.T) {
	var m blotmap.Map[string, int]
	m.Insert("a", 1)
	m.Insert("b", 2)
	m.Erase("a")
	m.Insert("a", 3)

	keys, _ := collect(&m)
	assert.Equal(t, []string{"b", "a"}, keys)
	assert.Equal(t, 2, m.Len())
}

func TestMap_HandleStability(t *testing.T) {
	var m blotmap.Map[string, int]
	ha := m.Insert("a", 1)
	m.Insert("b", 2)
	hc := m.Insert("c", 3)

	m.Erase("b")
	for i := 0; i < 100; i++ {
		m.Insert(string(rune('d'+i%20))+string(rune('0'+i/20)), i)
	}

	k, v, ok := m.At(ha)
	require.True(t, ok)
	assert.Equal(t, "a", k)
	assert.Equal(t, 1, v)

	k, v, ok = m.At(hc)
	require.True(t, ok)
	assert.Equal(t, "c", k)
	assert.Equal(t, 3, v)

	h, ok := m.Handle("c")
	require.True(t, ok)
	assert.Equal(t, hc, h)

	m.Erase("a")
	_, _, ok = m.At(ha)
	assert.False(t, ok)
}

func TestMap_FindOrInsert(t *testing.T) {
	var m blotmap.Map[string, *int]
	calls := 0
	mk := func() *int {
		calls++
		n := 7
		return &n
	}

	p1, existed := m.FindOrInsert("x", mk)
	assert.False(t, existed)
	p2, existed := m.FindOrInsert("x", mk)
	assert.True(t, existed)
	assert.Same(t, p1, p2)
	assert.Equal(t, 1, calls)
}

func TestMap_EraseDuringIteration(t *testing.T) {
	var m blotmap.Map[string, int]
	for i, k := range []string{"a", "b", "c", "d"} {
		m.Insert(k, i)
	}
	var seen []string
	for k, v := range m.All() {
		seen = append(seen, k)
		if v%2 == 0 {
			m.Erase(k)
		}
	}
	assert.Equal(t, []string{"a", "b", "c", "d"}, seen)
	assert.Equal(t, []string{"b", "d"}, m.Keys())
}

func TestMap_CloneCompactsAndCopies(t *testing.T) {
	var m blotmap.Map[string, *int]
	for i, k := range []string{"a", "b", "c"} {
		n := i
		m.Insert(k, &n)
	}
	m.Erase("b")

	clone := m.Clone(func(p *int) *int {
		n := *p
		return &n
	})
	require.Equal(t, 2, clone.Len())
	assert.Equal(t, []string{"a", "c"}, clone.Keys())

	orig, _ := m.Find("a")
	copied, _ := clone.Find("a")
	assert.NotSame(t, orig, copied)
	assert.Equal(t, *orig, *copied)
}

func TestMap_Clear(t *testing.T) {
	var m blotmap.Map[string, int]
	m.Insert("a", 1)
	m.Insert("b", 2)
	m.Clear()

	assert.Equal(t, 0, m.Len())
	assert.Empty(t, m.Keys())
	m.Insert("a", 3)
	v, ok := m.Find("a")
	require.True(t, ok)
	assert.Equal(t, 3, v)
}
