package arc

import (
	"log/slog"

	"github.com/mpyw/arcseq/internal/analysis/cfg"
	"github.com/mpyw/arcseq/internal/ir"
)

// =============================================================================
// Loop evaluator
// =============================================================================
//
// The loop evaluator processes one region of the loop-region tree at a time,
// innermost loops first. Inside a region every subregion is visited once per
// direction; an inner loop is already processed and only contributes its
// summary:
//
//	loop(bb1)
//	├── bb1 ── visit instructions
//	├── loop(bb2) ── apply summary of bb2..bb3
//	└── bb4 ── visit instructions
//
// Back-edges to the region's own header never appear as local edges, so a
// single pass in each direction reaches a fixpoint. Their ends still clear
// the state crossing them: the header forgets everything top-down and a
// latch forgets everything bottom-up.

// LoopEvaluator is the loop-aware dataflow evaluator.
type LoopEvaluator struct {
	ctx      *Context
	fn       *ir.Function
	regions  LoopRegions
	epilogue EpilogueReleases
	decToInc *DecToIncMap
	incToDec *IncToDecMap

	states map[*cfg.Region]*RegionState
	// unmatched holds retains and releases of processed loops that could not
	// be paired inside them. They persist for the lifetime of the evaluator.
	unmatched map[*ir.Instruction]struct{}
}

// NewLoopEvaluator prepares an evaluator for fn over its region tree.
func NewLoopEvaluator(ctx *Context, fn *ir.Function, regions LoopRegions, epilogue EpilogueReleases,
	termination ProgramTermination, decToInc *DecToIncMap, incToDec *IncToDecMap) *LoopEvaluator {
	e := &LoopEvaluator{
		ctx:       ctx,
		fn:        fn,
		regions:   regions,
		epilogue:  epilogue,
		decToInc:  decToInc,
		incToDec:  incToDec,
		states:    make(map[*cfg.Region]*RegionState),
		unmatched: make(map[*ir.Instruction]struct{}),
	}
	var add func(r *cfg.Region)
	add = func(r *cfg.Region) {
		allowsLeaks := r.IsBlock() && isTrapBlock(termination, r.Block)
		e.states[r] = newRegionState(r, allowsLeaks)
		for _, sub := range r.Subregions {
			add(sub)
		}
	}
	add(regions.TopLevel())
	return e
}

// State returns the state of region r.
func (e *LoopEvaluator) State(r *cfg.Region) *RegionState { return e.states[r] }

// IsUnmatched reports whether inst was left unpaired by an inner loop.
func (e *LoopEvaluator) IsUnmatched(inst *ir.Instruction) bool {
	_, ok := e.unmatched[inst]
	return ok
}

// RunOnRegion performs the bottom-up then the top-down sweep over the
// subregions of r. It reports whether nested increments or decrements were
// seen.
func (e *LoopEvaluator) RunOnRegion(r *cfg.Region, freeze, recompute bool) bool {
	if recompute {
		if rc, ok := e.epilogue.(EpilogueRecomputer); ok {
			rc.Recompute()
		}
	}
	sc := &regionScratch{
		ctx:       e.ctx,
		unmatched: e.unmatched,
		decToInc:  e.decToInc,
		incToDec:  e.incToDec,
		epilogue:  e.epilogue,
		freeze:    freeze,
	}
	nesting := e.processLoopBottomUp(r, sc)
	nesting = e.processLoopTopDown(r, sc) || nesting

	e.ctx.Logger.Debug("region dataflow finished",
		slog.String("function", e.fn.Name),
		slog.String("region", r.String()),
		slog.Int("increments", e.incToDec.Len()),
		slog.Int("decrements", e.decToInc.Len()),
		slog.Bool("nesting", nesting))
	if e.ctx.Observer != nil {
		e.ctx.Observer.RecordSweep(snapshot(e.fn.Name, scopeName(r), e.incToDec, e.decToInc))
	}
	return nesting
}

func scopeName(r *cfg.Region) string {
	if r.IsLoop() {
		return "loop " + r.Loop.Header.Label
	}
	return "function"
}

// SummarizeLoop rebuilds the summary of a processed loop so that its parent
// can step over it.
func (e *LoopEvaluator) SummarizeLoop(r *cfg.Region) {
	e.states[r].Summarize(e.states)
}

// SummarizeSubregionBlocks rebuilds the summaries of the blocks directly
// inside r.
func (e *LoopEvaluator) SummarizeSubregionBlocks(r *cfg.Region) {
	for _, sub := range r.Subregions {
		if sub.IsBlock() {
			e.states[sub].SummarizeBlock(sub.Block, e.ctx.Classifier)
		}
	}
}

// ClearLoopState resets the dataflow state of every subregion of r.
func (e *LoopEvaluator) ClearLoopState(r *cfg.Region) {
	for _, sub := range r.Subregions {
		e.states[sub].clear()
	}
}

// AddInterestingInst adds inst to its block's summary.
func (e *LoopEvaluator) AddInterestingInst(inst *ir.Instruction) {
	if r := e.regions.RegionOf(inst.Parent()); r != nil {
		e.states[r].AddInterestingInst(inst)
	}
}

// RemoveInterestingInst removes inst from its block's summary. The block
// must be looked up before inst is erased.
func (e *LoopEvaluator) RemoveInterestingInst(b *ir.Block, inst *ir.Instruction) {
	if r := e.regions.RegionOf(b); r != nil {
		e.states[r].RemoveInterestingInst(inst)
	}
}

// SaveMatchingInfo records the retains and releases directly inside loop r
// that were not paired. Processing the parent treats them as barriers.
func (e *LoopEvaluator) SaveMatchingInfo(r *cfg.Region) {
	if r.IsFunction() {
		return
	}
	for _, sub := range r.Subregions {
		if !sub.IsBlock() {
			continue
		}
		for _, inst := range e.states[sub].summarized {
			switch {
			case inst.IsRetain():
				if !e.incToDec.Contains(inst) {
					e.unmatched[inst] = struct{}{}
				}
			case inst.IsRelease():
				if !e.decToInc.Contains(inst) {
					e.unmatched[inst] = struct{}{}
				}
			}
		}
	}
}

// isDefinedMerge reports whether the state of pred may flow into succ.
// Unknown control flow edges make the merge undefined.
func isDefinedMerge(succ, pred *cfg.Region) bool {
	return !pred.UnknownEdgeTail && !succ.UnknownEdgeHead
}

// -----------------------------------------------------------------------------
// Top-down
// -----------------------------------------------------------------------------

func (e *LoopEvaluator) mergePredecessors(s *RegionState) {
	// The header is also entered from the latches of its loop.
	if s.region.IsHeader() {
		s.clearTopDown()
		return
	}

	hasPred := false
	for _, pred := range s.region.Preds {
		if !isDefinedMerge(s.region, pred) {
			s.clear()
			break
		}
		ps := e.states[pred]
		if hasPred {
			s.mergePredTopDown(&ps.stateMaps, e.ctx.Sets)
			continue
		}
		s.initPredTopDown(&ps.stateMaps)
		hasPred = true
	}
}

func (e *LoopEvaluator) processLoopTopDown(r *cfg.Region, sc *regionScratch) bool {
	nesting := false
	for _, sub := range r.Subregions {
		s := e.states[sub]
		if s.allowsLeaks {
			continue
		}
		e.mergePredecessors(s)
		nesting = s.processTopDown(sc) || nesting
	}
	return nesting
}

// -----------------------------------------------------------------------------
// Bottom-up
// -----------------------------------------------------------------------------

func (e *LoopEvaluator) mergeSuccessors(s *RegionState) {
	// A latch continues into the next iteration, which this sweep has not
	// seen.
	if s.region.Latch {
		s.clearBottomUp()
		return
	}

	hasSucc := false
	for _, succ := range s.region.Succs {
		if !isDefinedMerge(succ, s.region) {
			s.clear()
			break
		}
		ss := e.states[succ]
		if ss.allowsLeaks {
			continue
		}
		if hasSucc {
			s.mergeSuccBottomUp(&ss.stateMaps, e.ctx.Sets)
			continue
		}
		s.initSuccBottomUp(&ss.stateMaps)
		hasSucc = true
	}

	// Leaving the parent region early ends every lifetime we track, unless
	// the exit never returns.
	for _, succ := range s.region.NonLocalSuccs {
		if e.states[succ].allowsLeaks {
			continue
		}
		s.clear()
		break
	}
}

func (e *LoopEvaluator) processLoopBottomUp(r *cfg.Region, sc *regionScratch) bool {
	nesting := false
	for _, sub := range r.ReverseSubregions() {
		s := e.states[sub]
		e.mergeSuccessors(s)
		nesting = s.processBottomUp(sc) || nesting
	}
	return nesting
}
