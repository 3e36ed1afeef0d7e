package cfg

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/mpyw/arcseq/internal/ir"
)

// =============================================================================
// Loop regions
// =============================================================================
//
// A region is a block, a natural loop or the whole function. Regions form a
// tree: the function region contains the top level blocks and loops, and a
// loop region contains its own blocks and directly nested loops.
//
//	function
//	├── bb0
//	├── loop(bb1)
//	│   ├── bb1        header
//	│   ├── loop(bb2)
//	│   │   └── bb2
//	│   └── bb3        latch
//	└── bb4
//
// Edges are described relative to the parent region:
//
//   - local predecessors and successors are siblings; back-edges to the
//     parent loop's header are not local edges, their source is marked as
//     a latch instead;
//   - a non-local successor leaves the parent region. It is reported as the
//     region one level up (or higher) that receives control;
//   - retreating edges that do not close a natural loop mark their source
//     as an unknown control flow edge tail and their target as a head, on
//     every level below the level where the edge becomes local.

// Region is a node of the loop-region tree.
type Region struct {
	ID     int
	Block  *ir.Block // block regions only
	Loop   *Loop     // loop regions only
	Parent *Region

	// Subregions are the children in reverse postorder (loop and function
	// regions only).
	Subregions []*Region

	Preds, Succs  []*Region
	NonLocalSuccs []*Region

	// Latch marks a region with an edge back to the header of its parent
	// loop.
	Latch bool

	UnknownEdgeHead bool
	UnknownEdgeTail bool
}

// IsBlock reports whether r wraps a single block.
func (r *Region) IsBlock() bool { return r.Block != nil }

// IsLoop reports whether r is a natural loop.
func (r *Region) IsLoop() bool { return r.Loop != nil }

// IsHeader reports whether r is the header block of its parent loop.
func (r *Region) IsHeader() bool {
	return r.IsBlock() && r.Parent != nil && r.Parent.IsLoop() && r.Parent.Loop.Header == r.Block
}

// IsFunction reports whether r is the root region.
func (r *Region) IsFunction() bool { return r.Parent == nil }

// ReverseSubregions returns the children in postorder.
func (r *Region) ReverseSubregions() []*Region {
	out := make([]*Region, len(r.Subregions))
	for i, s := range r.Subregions {
		out[len(out)-1-i] = s
	}
	return out
}

// Contains reports whether block b lies inside r.
func (r *Region) Contains(b *ir.Block) bool {
	switch {
	case r.IsBlock():
		return r.Block == b
	case r.IsLoop():
		return r.Loop.Contains(b)
	}
	return true
}

func (r *Region) String() string {
	switch {
	case r.IsBlock():
		return fmt.Sprintf("region#%d(%s)", r.ID, r.Block.Label)
	case r.IsLoop():
		return fmt.Sprintf("region#%d(loop %s)", r.ID, r.Loop.Header.Label)
	}
	return fmt.Sprintf("region#%d(function)", r.ID)
}

// RegionInfo is the loop-region tree of one function.
type RegionInfo struct {
	fn      *ir.Function
	regions []*Region // indexed by ID; nil for unreachable blocks
	top     *Region
	loops   []*Region // children before parents
	byLoop  map[*Loop]*Region
}

// TopLevel returns the function region.
func (ri *RegionInfo) TopLevel() *Region { return ri.top }

// Region returns the region with the given ID.
func (ri *RegionInfo) Region(id int) *Region {
	if id < 0 || id >= len(ri.regions) {
		return nil
	}
	return ri.regions[id]
}

// Regions returns every region, block regions first.
func (ri *RegionInfo) Regions() []*Region {
	out := make([]*Region, 0, len(ri.regions))
	for _, r := range ri.regions {
		if r != nil {
			out = append(out, r)
		}
	}
	return out
}

// RegionOf returns the block region of b, or nil if b is unreachable.
func (ri *RegionInfo) RegionOf(b *ir.Block) *Region {
	return ri.Region(b.Index())
}

// LoopsPostOrder returns the loop regions, innermost first.
func (ri *RegionInfo) LoopsPostOrder() []*Region { return ri.loops }

// BuildRegions computes the loop-region tree of fn.
func (a *Analyzer) BuildRegions(fn *ir.Function) *RegionInfo {
	li := a.DetectLoops(fn)
	rpo := ReversePostOrder(fn)

	ri := &RegionInfo{
		fn:      fn,
		regions: make([]*Region, len(fn.Blocks)+len(li.Loops)+1),
		byLoop:  make(map[*Loop]*Region, len(li.Loops)),
	}
	for _, b := range rpo {
		ri.regions[b.Index()] = &Region{ID: b.Index(), Block: b}
	}
	for i, l := range li.Loops {
		r := &Region{ID: len(fn.Blocks) + i, Loop: l}
		ri.regions[r.ID] = r
		ri.byLoop[l] = r
	}
	ri.top = &Region{ID: len(ri.regions) - 1}
	ri.regions[ri.top.ID] = ri.top

	// Parents.
	for _, l := range li.Loops {
		r := ri.byLoop[l]
		r.Parent = ri.top
		if l.Parent != nil {
			r.Parent = ri.byLoop[l.Parent]
		}
	}
	for _, b := range rpo {
		r := ri.regions[b.Index()]
		r.Parent = ri.top
		if l := li.LoopFor(b); l != nil {
			r.Parent = ri.byLoop[l]
		}
	}

	// Subregions in reverse postorder: a loop appears where its header does.
	seen := make(map[*Region]bool)
	for _, b := range rpo {
		for r := ri.regions[b.Index()]; r.Parent != nil; r = r.Parent {
			if seen[r] {
				break
			}
			seen[r] = true
			r.Parent.Subregions = append(r.Parent.Subregions, r)
		}
	}
	// Children were appended bottom-up; reorder every parent by the RPO
	// position of the first block of each child.
	rpoIndex := make(map[*ir.Block]int, len(rpo))
	for i, b := range rpo {
		rpoIndex[b] = i
	}
	for _, r := range ri.regions {
		if r != nil && len(r.Subregions) > 1 {
			sortByEntry(r.Subregions, rpoIndex)
		}
	}

	ri.buildEdges(rpo)
	ri.markUnknownEdges(li)

	for i := len(li.Loops) - 1; i >= 0; i-- {
		ri.loops = append(ri.loops, ri.byLoop[li.Loops[i]])
	}
	return ri
}

func entryBlock(r *Region) *ir.Block {
	if r.IsBlock() {
		return r.Block
	}
	return r.Loop.Header
}

func sortByEntry(rs []*Region, rpoIndex map[*ir.Block]int) {
	slices.SortFunc(rs, func(a, b *Region) int {
		return cmp.Compare(rpoIndex[entryBlock(a)], rpoIndex[entryBlock(b)])
	})
}

// childContaining returns the child of ancestor that contains b, or nil when
// b lies outside ancestor.
func (ri *RegionInfo) childContaining(ancestor *Region, b *ir.Block) *Region {
	for r := ri.RegionOf(b); r != nil; r = r.Parent {
		if r.Parent == ancestor {
			return r
		}
	}
	return nil
}

func (ri *RegionInfo) buildEdges(rpo []*ir.Block) {
	addUnique := func(list []*Region, r *Region) []*Region {
		if slices.Contains(list, r) {
			return list
		}
		return append(list, r)
	}

	for _, b := range rpo {
		for _, succ := range b.Succs() {
			if ri.RegionOf(succ) == nil {
				continue
			}
			// Every region that b's edge leaves gets a successor at its own
			// level, from the block region up to the level where the edge is
			// internal.
			for r := ri.RegionOf(b); r.Parent != nil; r = r.Parent {
				p := r.Parent
				if p.IsLoop() && succ == p.Loop.Header {
					// Also catches a header branching to itself.
					r.Latch = true
					break
				}
				if r.Contains(succ) {
					break
				}
				if p.Contains(succ) {
					s := ri.childContaining(p, succ)
					r.Succs = addUnique(r.Succs, s)
					s.Preds = addUnique(s.Preds, r)
					continue
				}
				// Leaves p: resolve the region that receives control at the
				// first level where succ is inside.
				var target *Region
				for q := p; q != nil; q = q.Parent {
					if q.Contains(succ) {
						target = ri.childContaining(q, succ)
						break
					}
				}
				r.NonLocalSuccs = addUnique(r.NonLocalSuccs, target)
			}
		}
	}
}

func (ri *RegionInfo) markUnknownEdges(li *LoopInfo) {
	for _, e := range li.Irreducible {
		for r := ri.RegionOf(e.From); r != nil && !r.Contains(e.To); r = r.Parent {
			r.UnknownEdgeTail = true
		}
		for r := ri.RegionOf(e.To); r != nil && !r.Contains(e.From); r = r.Parent {
			r.UnknownEdgeHead = true
		}
	}
}
