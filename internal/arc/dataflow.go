package arc

import (
	"log/slog"

	"github.com/mpyw/arcseq/internal/analysis/cfg"
	"github.com/mpyw/arcseq/internal/ir"
)

// =============================================================================
// Block evaluator
// =============================================================================
//
// The block evaluator runs one bottom-up sweep over the postorder and one
// top-down sweep over the reverse postorder of the CFG:
//
//	bottom-up:  exit ──▶ entry, successors merged into each block's exit
//	top-down:   entry ──▶ exit, predecessors merged into each block's entry
//
// Paired instructions are recorded in IncToDec (bottom-up) and DecToInc
// (top-down) for the matching set builder. A merge across a back-edge clears
// the block state instead: information flowing around a cycle would describe
// an unknown number of iterations.

// BlockEvaluator is the dataflow evaluator without loop awareness.
type BlockEvaluator struct {
	ctx         *Context
	fn          *ir.Function
	epilogue    EpilogueReleases
	termination ProgramTermination
	decToInc    *DecToIncMap
	incToDec    *IncToDecMap

	postOrder []*ir.Block
	rpo       []*ir.Block
	backedges *cfg.BackedgeSet
	states    map[*ir.Block]*BlockState
}

// NewBlockEvaluator prepares an evaluator for fn. The maps are owned by the
// caller and filled by Run.
func NewBlockEvaluator(ctx *Context, fn *ir.Function, epilogue EpilogueReleases, termination ProgramTermination,
	decToInc *DecToIncMap, incToDec *IncToDecMap) *BlockEvaluator {
	e := &BlockEvaluator{
		ctx:         ctx,
		fn:          fn,
		epilogue:    epilogue,
		termination: termination,
		decToInc:    decToInc,
		incToDec:    incToDec,
		postOrder:   cfg.PostOrder(fn),
		backedges:   cfg.NewBackedgeSet(cfg.Backedges(fn)),
		states:      make(map[*ir.Block]*BlockState),
	}
	e.rpo = make([]*ir.Block, len(e.postOrder))
	for i, b := range e.postOrder {
		e.rpo[len(e.postOrder)-1-i] = b
	}
	e.Clear()
	return e
}

// Clear resets every block state. Deleting retains and releases never
// changes the CFG, so the traversal orders stay valid.
func (e *BlockEvaluator) Clear() {
	for _, b := range e.postOrder {
		isTrap := isTrapBlock(e.termination, b)
		e.states[b] = newBlockState(b, isTrap)
	}
}

func isTrapBlock(pt ProgramTermination, b *ir.Block) bool {
	return pt != nil && pt.IsProgramTerminatingBlock(b)
}

// State returns the state of b, or nil for unreachable blocks.
func (e *BlockEvaluator) State(b *ir.Block) *BlockState { return e.states[b] }

// Run performs the bottom-up then the top-down sweep. It reports whether
// nested increments or decrements were seen.
func (e *BlockEvaluator) Run(freeze bool) bool {
	nesting := e.processBottomUp(freeze)
	nesting = e.processTopDown() || nesting
	e.ctx.Logger.Debug("block dataflow finished",
		slog.String("function", e.fn.Name),
		slog.Int("increments", e.incToDec.Len()),
		slog.Int("decrements", e.decToInc.Len()),
		slog.Bool("nesting", nesting))
	if e.ctx.Observer != nil {
		e.ctx.Observer.RecordSweep(snapshot(e.fn.Name, "function", e.incToDec, e.decToInc))
	}
	return nesting
}

// -----------------------------------------------------------------------------
// Top-down
// -----------------------------------------------------------------------------

func (e *BlockEvaluator) mergePredecessors(s *BlockState) {
	hasPred := false
	for _, pred := range s.block.Preds() {
		ps, ok := e.states[pred]
		if !ok {
			// Unreachable from the entry.
			continue
		}
		if e.backedges.Contains(pred, s.block) {
			s.clearTopDown()
			break
		}
		if ps.isTrap {
			continue
		}
		if hasPred {
			s.mergePredTopDown(&ps.stateMaps, e.ctx.Sets)
			continue
		}
		s.initPredTopDown(&ps.stateMaps)
		hasPred = true
	}
}

func (e *BlockEvaluator) processTopDown() bool {
	nesting := false
	for _, b := range e.rpo {
		s := e.states[b]
		e.mergePredecessors(s)
		nesting = e.processBlockTopDown(s) || nesting
	}
	return nesting
}

func (e *BlockEvaluator) processBlockTopDown(s *BlockState) bool {
	v := &topDownVisitor{ctx: e.ctx, state: &s.stateMaps, decToInc: e.decToInc}

	// Owned arguments enter at +1: their identities start out tracked as
	// incremented, and a later decrement or use moves them down the lattice.
	if s.block.IsEntry() {
		for _, arg := range s.block.Args {
			v.visit(arg)
		}
	}

	nesting := false
	for _, inst := range s.block.Instrs {
		res := v.visit(inst)
		if res.kind == resultNoEffects {
			continue
		}
		nesting = nesting || res.nesting
		v.updateOthers(inst, res)
	}
	return nesting
}

// -----------------------------------------------------------------------------
// Bottom-up
// -----------------------------------------------------------------------------

func (e *BlockEvaluator) mergeSuccessors(s *BlockState) {
	hasSucc := false
	for _, succ := range s.block.Succs() {
		if e.backedges.Contains(s.block, succ) {
			s.clearBottomUp()
			break
		}
		ss := e.states[succ]
		if ss.isTrap {
			continue
		}
		if hasSucc {
			s.mergeSuccBottomUp(&ss.stateMaps, e.ctx.Sets)
			continue
		}
		s.initSuccBottomUp(&ss.stateMaps)
		hasSucc = true
	}
}

func (e *BlockEvaluator) processBottomUp(freeze bool) bool {
	nesting := false
	for _, b := range e.postOrder {
		s := e.states[b]
		e.mergeSuccessors(s)
		nesting = e.processBlockBottomUp(s, freeze) || nesting
	}
	return nesting
}

func (e *BlockEvaluator) processBlockBottomUp(s *BlockState, freeze bool) bool {
	v := &bottomUpVisitor{
		ctx:      e.ctx,
		state:    &s.stateMaps,
		incToDec: e.incToDec,
		epilogue: e.epilogue,
		freeze:   freeze,
	}

	instrs := s.block.Instrs
	if t := s.block.Terminator(); t != nil && !isARCSignificantTerminator(t) {
		instrs = instrs[:len(instrs)-1]
	}

	nesting := false
	for i := len(instrs) - 1; i >= 0; i-- {
		inst := instrs[i]
		res := v.visit(inst)
		if res.kind == resultNoEffects {
			continue
		}
		nesting = nesting || res.nesting
		v.updateOthers(inst, res)
	}
	return nesting
}
