package arc

import (
	"github.com/mpyw/arcseq/internal/blotmap"
	"github.com/mpyw/arcseq/internal/ir"
)

// resultKind tells the caller how a visited node affects other states.
type resultKind int

const (
	// resultNoEffects: the node cannot affect any other tracked state.
	resultNoEffects resultKind = iota
	// resultRCIdentity: the node acted on rcIdentity; update every other
	// state.
	resultRCIdentity
	// resultUnknown: the node has no identity of its own; update all states.
	resultUnknown
)

type dataflowResult struct {
	kind       resultKind
	rcIdentity ir.Value
	nesting    bool
}

// DecToIncMap maps a paired decrement to the top-down state that reached it.
type DecToIncMap = blotmap.Map[*ir.Instruction, *TopDownState]

// IncToDecMap maps a paired increment to the bottom-up state that reached it.
type IncToDecMap = blotmap.Map[*ir.Instruction, *BottomUpState]

// =============================================================================
// Top-down visitor
// =============================================================================

type topDownVisitor struct {
	ctx      *Context
	state    *stateMaps
	decToInc *DecToIncMap
}

func (v *topDownVisitor) visit(node ir.Value) dataflowResult {
	t := v.ctx.Classifier.Classify(node, v.ctx.Sets)
	switch t.Kind() {
	case TransitionStrongEntrance:
		return v.visitEntrance(node)
	case TransitionStrongIncrement:
		return v.visitIncrement(node.(*ir.Instruction), t)
	case TransitionStrongDecrement:
		return v.visitDecrement(node.(*ir.Instruction))
	case TransitionAutoreleasePoolCall:
		v.state.clearTopDown()
		return dataflowResult{kind: resultNoEffects}
	}
	return dataflowResult{kind: resultUnknown}
}

func (v *topDownVisitor) visitEntrance(node ir.Value) dataflowResult {
	root := v.ctx.rootOf(node)
	v.state.TopDownState(root).InitWithEntrance(node, root)
	if _, ok := node.(*ir.Argument); ok {
		return dataflowResult{kind: resultNoEffects}
	}
	// An owned apply is still a call with effects on everything else.
	return dataflowResult{kind: resultRCIdentity, rcIdentity: root}
}

func (v *topDownVisitor) visitIncrement(inst *ir.Instruction, t Transition) dataflowResult {
	root := v.ctx.root(inst)
	nesting := v.state.TopDownState(root).InitWithMutator(t, root)
	return dataflowResult{kind: resultRCIdentity, rcIdentity: root, nesting: nesting}
}

func (v *topDownVisitor) visitDecrement(inst *ir.Instruction) dataflowResult {
	root := v.ctx.root(inst)
	s := v.state.TopDownState(root)
	if s.IsRefCountInstMatchedToTrackedInstruction(inst) {
		v.decToInc.Insert(inst, s.Clone())
		s.Clear()
	}
	return dataflowResult{kind: resultRCIdentity, rcIdentity: root}
}

// updateOthers applies inst to every tracked state except the one the
// instruction itself acted on.
func (v *topDownVisitor) updateOthers(inst *ir.Instruction, res dataflowResult) {
	isMatched := func(i *ir.Instruction) bool { return v.decToInc.Contains(i) }
	for root, s := range v.state.topDown.All() {
		if res.rcIdentity != nil && root == res.rcIdentity {
			continue
		}
		s.UpdateForSameLoopInst(inst, v.ctx.AA)
		s.CheckAndResetKnownSafety(inst, root, isMatched, v.ctx.RCIA, v.ctx.AA)
	}
}

// =============================================================================
// Bottom-up visitor
// =============================================================================

type bottomUpVisitor struct {
	ctx      *Context
	state    *stateMaps
	incToDec *IncToDecMap
	epilogue EpilogueReleases
	freeze   bool
}

func (v *bottomUpVisitor) visit(node ir.Value) dataflowResult {
	t := v.ctx.Classifier.Classify(node, v.ctx.Sets)
	switch t.Kind() {
	case TransitionStrongEntrance:
		return v.visitEntrance(node)
	case TransitionStrongIncrement:
		return v.visitIncrement(node.(*ir.Instruction))
	case TransitionStrongDecrement:
		return v.visitDecrement(node.(*ir.Instruction), t)
	case TransitionAutoreleasePoolCall:
		v.state.clearBottomUp()
		return dataflowResult{kind: resultNoEffects}
	}
	return dataflowResult{kind: resultUnknown}
}

func (v *bottomUpVisitor) visitEntrance(node ir.Value) dataflowResult {
	// Nothing of this identity exists above its definition.
	root := v.ctx.rootOf(node)
	v.state.bottomUp.Erase(root)
	if _, ok := node.(*ir.Argument); ok {
		return dataflowResult{kind: resultNoEffects}
	}
	return dataflowResult{kind: resultRCIdentity, rcIdentity: root}
}

func (v *bottomUpVisitor) visitDecrement(inst *ir.Instruction, t Transition) dataflowResult {
	// A frozen epilogue release stays where it is and acts like any other
	// potential decrement.
	if v.freeze && v.epilogue != nil && v.epilogue.IsEpilogueRelease(inst) {
		return dataflowResult{kind: resultUnknown}
	}
	root := v.ctx.root(inst)
	nesting := v.state.BottomUpState(root).InitWithMutator(t, root)
	return dataflowResult{kind: resultRCIdentity, rcIdentity: root, nesting: nesting}
}

func (v *bottomUpVisitor) visitIncrement(inst *ir.Instruction) dataflowResult {
	root := v.ctx.root(inst)
	s := v.state.BottomUpState(root)
	if s.IsRefCountInstMatchedToTrackedInstruction(inst) {
		v.incToDec.Insert(inst, s.Clone())
		s.Clear()
	}
	return dataflowResult{kind: resultRCIdentity, rcIdentity: root}
}

func (v *bottomUpVisitor) updateOthers(inst *ir.Instruction, res dataflowResult) {
	isMatched := func(i *ir.Instruction) bool { return v.incToDec.Contains(i) }
	for root, s := range v.state.bottomUp.All() {
		if res.rcIdentity != nil && root == res.rcIdentity {
			continue
		}
		s.UpdateForSameLoopInst(inst, v.ctx.AA)
		s.CheckAndResetKnownSafety(inst, root, isMatched, v.ctx.RCIA, v.ctx.AA)
	}
}

// isARCSignificantTerminator reports whether a terminator can extend or end a
// lifetime. Branches only forward values and unreachable ends the program.
func isARCSignificantTerminator(t *ir.Instruction) bool {
	switch t.Op {
	case ir.OpBr, ir.OpCondBr, ir.OpUnreachable:
		return false
	}
	return true
}
