package ptrset_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mpyw/arcseq/internal/ptrset"
)

type node struct{ id uint64 }

func (n *node) Key() uint64 { return n.id }

func nodes(n int) []*node {
	out := make([]*node, n)
	for i := range out {
		out[i] = &node{id: uint64(i + 1)}
	}
	return out
}

func TestFactory_Interning(t *testing.T) {
	f := ptrset.NewFactory[*node]()
	ns := nodes(4)

	a := f.Get([]*node{ns[0], ns[2]})
	b := f.Get([]*node{ns[0], ns[2]})
	assert.Same(t, a, b, "equal contents must intern to the same set")

	one1 := f.GetOne(ns[1])
	one2 := f.Get([]*node{ns[1]})
	assert.Same(t, one1, one2)

	assert.Same(t, f.EmptySet(), f.Get(nil))
	assert.True(t, f.EmptySet().Empty())
}

func TestFactory_Merge(t *testing.T) {
	f := ptrset.NewFactory[*node]()
	ns := nodes(5)

	a := f.Get([]*node{ns[0], ns[2], ns[4]})
	b := f.Get([]*node{ns[1], ns[2]})

	u := f.Merge(a, b)
	assert.Equal(t, []*node{ns[0], ns[1], ns[2], ns[4]}, u.Slice())
	assert.Same(t, u, f.Merge(b, a), "union is commutative and interned")
	assert.Same(t, u, f.Get([]*node{ns[0], ns[1], ns[2], ns[4]}))

	t.Run("identity fast paths", func(t *testing.T) {
		assert.Same(t, a, f.Merge(a, a))
		assert.Same(t, a, f.Merge(a, f.EmptySet()))
		assert.Same(t, a, f.Merge(f.EmptySet(), a))
		assert.Same(t, u, f.Merge(u, b), "subset merge returns the superset")
	})

	t.Run("merge slice", func(t *testing.T) {
		got := f.MergeSlice(b, []*node{ns[0], ns[4]})
		assert.Same(t, u, got)
		assert.Same(t, b, f.MergeSlice(b, []*node{ns[1], ns[2]}))
		assert.Same(t, b, f.MergeSlice(f.EmptySet(), []*node{ns[1], ns[2]}))
	})

	t.Run("set method", func(t *testing.T) {
		assert.Same(t, u, a.Merge(b))
	})
}

func TestSet_Queries(t *testing.T) {
	f := ptrset.NewFactory[*node]()
	ns := nodes(6)
	s := f.Get([]*node{ns[1], ns[3], ns[5]})

	tests := []struct {
		name string
		n    *node
		want int
	}{
		{"first", ns[1], 1},
		{"middle", ns[3], 1},
		{"last", ns[5], 1},
		{"below", ns[0], 0},
		{"between", ns[2], 0},
		{"foreign same key", &node{id: ns[3].id}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := s.Count(tt.n); got != tt.want {
				t.Errorf("Count() = %v, want %v", got, tt.want)
			}
		})
	}

	assert.Equal(t, 3, s.Len())
	assert.True(t, s.HasEmptyIntersection(f.Get([]*node{ns[0], ns[2], ns[4]})))
	assert.False(t, s.HasEmptyIntersection(f.Get([]*node{ns[0], ns[5]})))
	assert.True(t, s.HasEmptyIntersection(f.EmptySet()))
}

func TestSet_EqualAcrossFactories(t *testing.T) {
	ns := nodes(3)
	f1 := ptrset.NewFactory[*node]()
	f2 := ptrset.NewFactory[*node]()

	a := f1.Get([]*node{ns[0], ns[1]})
	b := f2.Get([]*node{ns[0], ns[1]})
	assert.NotSame(t, a, b)
	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(f2.Get([]*node{ns[0], ns[2]})))
}

func TestFactory_RejectsUnsortedInput(t *testing.T) {
	f := ptrset.NewFactory[*node]()
	ns := nodes(3)

	assert.Panics(t, func() { f.Get([]*node{ns[1], ns[0]}) })
	assert.Panics(t, func() { f.Get([]*node{ns[1], ns[1]}) })
	assert.Panics(t, func() { f.MergeSlice(f.GetOne(ns[2]), []*node{ns[1], ns[0]}) })
}

func TestFactory_ResetAndStats(t *testing.T) {
	f := ptrset.NewFactory[*node]()
	ns := nodes(2000)

	// Enough distinct sets to span several slabs.
	var sets []*ptrset.Set[*node]
	for i := 0; i+3 <= len(ns); i += 3 {
		sets = append(sets, f.Get(ns[i:i+3]))
	}
	for i, s := range sets {
		require.Equal(t, ns[3*i:3*i+3], s.Slice(), "slab data must not move")
	}

	st := f.Stats()
	assert.Equal(t, len(sets), st.Sets)
	assert.NotZero(t, st.Bytes)

	f.Get(ns[0:3])
	assert.Equal(t, st.Hits+1, f.Stats().Hits)

	f.Reset()
	assert.Zero(t, f.Stats().Sets)
	fresh := f.Get(ns[0:3])
	assert.NotSame(t, sets[0], fresh)
	assert.True(t, sets[0].Equal(fresh))
}
