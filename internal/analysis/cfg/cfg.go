// Package cfg provides control flow graph analysis for the ARC optimizer:
// reachability, traversal orders, back-edges, dominance and natural loops.
package cfg

import (
	"cmp"
	"slices"

	"golang.org/x/tools/container/intsets"

	"github.com/mpyw/arcseq/internal/ir"
)

// Analyzer provides control flow graph analysis for IR functions.
// It is stateless and can be reused across multiple analyses.
type Analyzer struct{}

// New creates a new Analyzer.
func New() *Analyzer {
	return &Analyzer{}
}

// CanReach reports whether a path leads from src to dst. A block reaches
// itself.
func (a *Analyzer) CanReach(src, dst *ir.Block) bool {
	if src == nil || dst == nil {
		return false
	}

	var seen intsets.Sparse
	work := []*ir.Block{src}
	for len(work) > 0 {
		b := work[len(work)-1]
		work = work[:len(work)-1]
		if b == dst {
			return true
		}
		if seen.Insert(b.Index()) {
			work = append(work, b.Succs()...)
		}
	}
	return false
}

// =============================================================================
// Traversal orders
// =============================================================================

// PostOrder returns the blocks reachable from the entry in DFS postorder.
// Successors are visited in terminator order, so the result is deterministic.
func PostOrder(fn *ir.Function) []*ir.Block {
	entry := fn.Entry()
	if entry == nil {
		return nil
	}
	type frame struct {
		block *ir.Block
		next  int
	}
	var (
		visited intsets.Sparse
		order   []*ir.Block
		stack   = []frame{{block: entry}}
	)
	visited.Insert(entry.Index())
	for len(stack) > 0 {
		top := &stack[len(stack)-1]
		succs := top.block.Succs()
		if top.next < len(succs) {
			succ := succs[top.next]
			top.next++
			if visited.Insert(succ.Index()) {
				stack = append(stack, frame{block: succ})
			}
			continue
		}
		order = append(order, top.block)
		stack = stack[:len(stack)-1]
	}
	return order
}

// ReversePostOrder returns PostOrder reversed: every block appears after all
// of its forward-edge predecessors.
func ReversePostOrder(fn *ir.Function) []*ir.Block {
	po := PostOrder(fn)
	rpo := make([]*ir.Block, len(po))
	for i, b := range po {
		rpo[len(po)-1-i] = b
	}
	return rpo
}

// =============================================================================
// Back-edges
// =============================================================================

// Edge is a directed CFG edge.
type Edge struct {
	From, To *ir.Block
}

// Backedges returns the edges whose target is on the DFS stack when the edge
// is walked. Every cycle in the CFG contains at least one of them.
//
//	  bb0 ──▶ bb1 ──▶ bb2
//	           ▲       │
//	           └───────┘   bb2→bb1 is a back-edge
func Backedges(fn *ir.Function) []Edge {
	entry := fn.Entry()
	if entry == nil {
		return nil
	}
	type frame struct {
		block *ir.Block
		next  int
	}
	var (
		visited, onStack intsets.Sparse
		edges            []Edge
		stack            = []frame{{block: entry}}
	)
	visited.Insert(entry.Index())
	onStack.Insert(entry.Index())
	for len(stack) > 0 {
		top := &stack[len(stack)-1]
		succs := top.block.Succs()
		if top.next < len(succs) {
			succ := succs[top.next]
			top.next++
			switch {
			case onStack.Has(succ.Index()):
				edges = append(edges, Edge{From: top.block, To: succ})
			case visited.Insert(succ.Index()):
				onStack.Insert(succ.Index())
				stack = append(stack, frame{block: succ})
			}
			continue
		}
		onStack.Remove(top.block.Index())
		stack = stack[:len(stack)-1]
	}
	return edges
}

// BackedgeSet indexes back-edges for constant time lookup.
type BackedgeSet struct {
	targets map[*ir.Block]*intsets.Sparse
}

// NewBackedgeSet indexes edges.
func NewBackedgeSet(edges []Edge) *BackedgeSet {
	s := &BackedgeSet{targets: make(map[*ir.Block]*intsets.Sparse)}
	for _, e := range edges {
		set, ok := s.targets[e.From]
		if !ok {
			set = &intsets.Sparse{}
			s.targets[e.From] = set
		}
		set.Insert(e.To.Index())
	}
	return s
}

// Contains reports whether from→to is a back-edge.
func (s *BackedgeSet) Contains(from, to *ir.Block) bool {
	set, ok := s.targets[from]
	return ok && set.Has(to.Index())
}

// =============================================================================
// Dominance
// =============================================================================

// DomTree holds immediate dominators of the reachable blocks.
type DomTree struct {
	idom  map[*ir.Block]*ir.Block
	order map[*ir.Block]int // postorder number
}

// Dominators computes immediate dominators with the iterative algorithm of
// Cooper, Harvey and Kennedy over reverse postorder.
func Dominators(fn *ir.Function) *DomTree {
	po := PostOrder(fn)
	t := &DomTree{
		idom:  make(map[*ir.Block]*ir.Block, len(po)),
		order: make(map[*ir.Block]int, len(po)),
	}
	if len(po) == 0 {
		return t
	}
	for i, b := range po {
		t.order[b] = i
	}
	entry := po[len(po)-1]
	t.idom[entry] = entry

	for changed := true; changed; {
		changed = false
		for i := len(po) - 2; i >= 0; i-- {
			b := po[i]
			var idom *ir.Block
			for _, p := range b.Preds() {
				if _, ok := t.idom[p]; !ok {
					continue
				}
				if idom == nil {
					idom = p
					continue
				}
				idom = t.intersect(p, idom)
			}
			if idom != nil && t.idom[b] != idom {
				t.idom[b] = idom
				changed = true
			}
		}
	}
	return t
}

func (t *DomTree) intersect(a, b *ir.Block) *ir.Block {
	for a != b {
		for t.order[a] < t.order[b] {
			a = t.idom[a]
		}
		for t.order[b] < t.order[a] {
			b = t.idom[b]
		}
	}
	return a
}

// Idom returns the immediate dominator of b; the entry has none.
func (t *DomTree) Idom(b *ir.Block) *ir.Block {
	d := t.idom[b]
	if d == b {
		return nil
	}
	return d
}

// Reachable reports whether b is reachable from the entry.
func (t *DomTree) Reachable(b *ir.Block) bool {
	_, ok := t.idom[b]
	return ok
}

// Dominates reports whether a dominates b. Unreachable blocks are dominated
// by nothing.
func (t *DomTree) Dominates(a, b *ir.Block) bool {
	if !t.Reachable(a) || !t.Reachable(b) {
		return false
	}
	for {
		if a == b {
			return true
		}
		d := t.idom[b]
		if d == b {
			return false
		}
		b = d
	}
}

// =============================================================================
// Natural loops
// =============================================================================

// Loop is a natural loop: a header plus every block that reaches one of the
// header's latches without passing through the header.
type Loop struct {
	Header  *ir.Block
	Latches []*ir.Block
	Blocks  intsets.Sparse // block indices, header included
	Parent  *Loop
	Depth   int
}

// Contains reports whether b belongs to the loop.
func (l *Loop) Contains(b *ir.Block) bool { return l.Blocks.Has(b.Index()) }

// LoopInfo holds the natural loops of a function.
type LoopInfo struct {
	Loops []*Loop // outer loops before the loops they contain
	// Irreducible lists retreating edges whose target does not dominate
	// their source; they close cycles that are not natural loops.
	Irreducible []Edge
	innermost   map[*ir.Block]*Loop
}

// LoopFor returns the innermost loop containing b, or nil.
func (li *LoopInfo) LoopFor(b *ir.Block) *Loop { return li.innermost[b] }

// IsInLoop returns true if the block is inside a loop.
func (li *LoopInfo) IsInLoop(b *ir.Block) bool { return li.innermost[b] != nil }

// DetectLoops finds the natural loops of fn. Back-edges sharing a header
// form one loop.
func (a *Analyzer) DetectLoops(fn *ir.Function) *LoopInfo {
	li := &LoopInfo{innermost: make(map[*ir.Block]*Loop)}
	dom := Dominators(fn)

	byHeader := make(map[*ir.Block]*Loop)
	var headers []*ir.Block
	for _, e := range Backedges(fn) {
		if !dom.Dominates(e.To, e.From) {
			li.Irreducible = append(li.Irreducible, e)
			continue
		}
		l, ok := byHeader[e.To]
		if !ok {
			l = &Loop{Header: e.To}
			l.Blocks.Insert(e.To.Index())
			byHeader[e.To] = l
			headers = append(headers, e.To)
		}
		l.Latches = append(l.Latches, e.From)
		markLoopBlocks(l, e.From, dom)
	}

	// Outer loops have strictly more blocks than the loops nested in them.
	for _, h := range headers {
		li.Loops = append(li.Loops, byHeader[h])
	}
	sortLoops(li.Loops)
	for i, l := range li.Loops {
		for j := i - 1; j >= 0; j-- {
			outer := li.Loops[j]
			if outer.Contains(l.Header) && outer.Blocks.Len() > l.Blocks.Len() {
				l.Parent = outer
				l.Depth = outer.Depth + 1
				break
			}
		}
		var ids []int
		for _, id := range l.Blocks.AppendTo(ids) {
			li.innermost[fn.Blocks[id]] = l
		}
	}
	return li
}

// markLoopBlocks walks predecessors backwards from latch until the header.
func markLoopBlocks(l *Loop, latch *ir.Block, dom *DomTree) {
	work := []*ir.Block{latch}
	for len(work) > 0 {
		b := work[len(work)-1]
		work = work[:len(work)-1]
		if !dom.Reachable(b) || !l.Blocks.Insert(b.Index()) {
			continue
		}
		work = append(work, b.Preds()...)
	}
}

// sortLoops orders loops by decreasing size, then by header index, so every
// loop follows the loops enclosing it.
func sortLoops(loops []*Loop) {
	slices.SortStableFunc(loops, func(a, b *Loop) int {
		return cmp.Or(
			cmp.Compare(b.Blocks.Len(), a.Blocks.Len()),
			cmp.Compare(a.Header.Index(), b.Header.Index()),
		)
	})
}
