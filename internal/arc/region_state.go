package arc

import (
	"slices"

	"github.com/mpyw/arcseq/internal/analysis/cfg"
	"github.com/mpyw/arcseq/internal/ir"
)

// RegionState is the dataflow state of one loop region. Besides the
// per-identity states it keeps the region's summary: the instructions that
// may matter to reference counting, in program order. A block summarises its
// own instructions; a loop concatenates the summaries of its subregions once
// it has been processed.
type RegionState struct {
	stateMaps
	region      *cfg.Region
	allowsLeaks bool
	summarized  []*ir.Instruction
}

func newRegionState(r *cfg.Region, allowsLeaks bool) *RegionState {
	return &RegionState{region: r, allowsLeaks: allowsLeaks}
}

// Region returns the region.
func (s *RegionState) Region() *cfg.Region { return s.region }

// AllowsLeaks reports whether the region ends the program.
func (s *RegionState) AllowsLeaks() bool { return s.allowsLeaks }

// SummarizedInsts returns the summary.
func (s *RegionState) SummarizedInsts() []*ir.Instruction { return s.summarized }

// SummarizeBlock rebuilds the summary of a block region.
func (s *RegionState) SummarizeBlock(b *ir.Block, c *Classifier) {
	s.summarized = s.summarized[:0]
	for _, inst := range b.Instrs {
		if isInteresting(inst, c) {
			s.summarized = append(s.summarized, inst)
		}
	}
}

// Summarize rebuilds the summary of a loop region from its subregions.
func (s *RegionState) Summarize(states map[*cfg.Region]*RegionState) {
	s.summarized = s.summarized[:0]
	for _, sub := range s.region.Subregions {
		s.summarized = append(s.summarized, states[sub].summarized...)
	}
}

// AddInterestingInst inserts inst into a block summary at its program
// position.
func (s *RegionState) AddInterestingInst(inst *ir.Instruction) {
	pos := slices.Index(s.region.Block.Instrs, inst)
	at := len(s.summarized)
	for i, other := range s.summarized {
		if slices.Index(s.region.Block.Instrs, other) > pos {
			at = i
			break
		}
	}
	s.summarized = slices.Insert(s.summarized, at, inst)
}

// RemoveInterestingInst drops inst from the summary.
func (s *RegionState) RemoveInterestingInst(inst *ir.Instruction) {
	if i := slices.Index(s.summarized, inst); i >= 0 {
		s.summarized = slices.Delete(s.summarized, i, i+1)
	}
}

// isInteresting reports whether inst can affect a reference count state.
func isInteresting(inst *ir.Instruction, c *Classifier) bool {
	return c.Kind(inst) != TransitionUnknown ||
		inst.MayHaveSideEffects() ||
		inst.MayReadOrWriteMemory() ||
		len(inst.Operands) > 0
}

// -----------------------------------------------------------------------------
// Top-down
// -----------------------------------------------------------------------------

type regionScratch struct {
	ctx       *Context
	unmatched map[*ir.Instruction]struct{}
	decToInc  *DecToIncMap
	incToDec  *IncToDecMap
	epilogue  EpilogueReleases
	freeze    bool
}

func (s *RegionState) processTopDown(sc *regionScratch) bool {
	if s.region.IsBlock() {
		return s.processBlockTopDown(sc)
	}
	s.processLoopTopDown(sc)
	return false
}

func (s *RegionState) processBlockTopDown(sc *regionScratch) bool {
	v := &topDownVisitor{ctx: sc.ctx, state: &s.stateMaps, decToInc: sc.decToInc}

	if b := s.region.Block; b.IsEntry() {
		for _, arg := range b.Args {
			v.visit(arg)
		}
	}

	nesting := false
	for _, inst := range s.summarized {
		res := v.visit(inst)
		if res.kind == resultNoEffects {
			continue
		}
		nesting = nesting || res.nesting
		v.updateOthers(inst, res)
	}
	return nesting
}

// processLoopTopDown carries the state across an already processed inner
// loop. Identities touched by a retain or release the loop could not pair
// are forgotten; the rest see every summarised instruction as a possible
// effect.
func (s *RegionState) processLoopTopDown(sc *regionScratch) {
	summary := s.summarized
	for _, inst := range summary {
		if _, ok := sc.unmatched[inst]; !ok {
			continue
		}
		root := sc.ctx.root(inst)
		for other, st := range s.topDown.All() {
			if sc.ctx.AA.MayAlias(other, root) {
				st.Clear()
			}
		}
	}
	for _, st := range s.topDown.All() {
		for _, inst := range summary {
			st.UpdateForDifferentLoopInst(inst, sc.ctx.AA)
		}
	}
}

// -----------------------------------------------------------------------------
// Bottom-up
// -----------------------------------------------------------------------------

func (s *RegionState) processBottomUp(sc *regionScratch) bool {
	if s.region.IsBlock() {
		return s.processBlockBottomUp(sc)
	}
	s.processLoopBottomUp(sc)
	return false
}

func (s *RegionState) processBlockBottomUp(sc *regionScratch) bool {
	v := &bottomUpVisitor{
		ctx:      sc.ctx,
		state:    &s.stateMaps,
		incToDec: sc.incToDec,
		epilogue: sc.epilogue,
		freeze:   sc.freeze,
	}

	insts := s.summarized
	if n := len(insts); n > 0 && insts[n-1].IsTerminator() && !isARCSignificantTerminator(insts[n-1]) {
		insts = insts[:n-1]
	}

	nesting := false
	for i := len(insts) - 1; i >= 0; i-- {
		inst := insts[i]
		res := v.visit(inst)
		if res.kind == resultNoEffects {
			continue
		}
		nesting = nesting || res.nesting
		v.updateOthers(inst, res)
	}
	return nesting
}

func (s *RegionState) processLoopBottomUp(sc *regionScratch) {
	summary := s.summarized
	for _, inst := range summary {
		if _, ok := sc.unmatched[inst]; !ok {
			continue
		}
		root := sc.ctx.root(inst)
		for other, st := range s.bottomUp.All() {
			if sc.ctx.AA.MayAlias(other, root) {
				st.Clear()
			}
		}
	}
	for _, st := range s.bottomUp.All() {
		for _, inst := range summary {
			st.UpdateForDifferentLoopInst(inst, sc.ctx.AA)
		}
	}
}
