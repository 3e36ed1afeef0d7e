package arc

import (
	"fmt"

	"github.com/mpyw/arcseq/internal/ir"
	"github.com/mpyw/arcseq/internal/ptrset"
)

// =============================================================================
// Shared state
// =============================================================================
//
// A reference count state follows one RC identity through a sweep. It holds
// the tracked transition (the increments or decrements we try to pair), a
// lattice position and two safety flags:
//
//   - knownSafe: nothing between the tracked instruction and the current
//     point may decrement the identity, so removing the pair cannot free the
//     object early;
//   - codeMotionSafe: nothing in between may decrement or use the identity,
//     so the pair has no observable effect at any position.
//
// Both flags start true when tracking begins and are only lowered until the
// state is initialised again.

type refCountState struct {
	transition     Transition
	rcRoot         ir.Value
	knownSafe      bool
	codeMotionSafe bool
}

// IsTrackingRefCount reports whether any transition is tracked.
func (s *refCountState) IsTrackingRefCount() bool { return s.transition.IsValid() }

// IsTrackingRefCountInst reports whether an increment or decrement is
// tracked.
func (s *refCountState) IsTrackingRefCountInst() bool {
	return s.transition.Kind().IsMutator()
}

// Transition returns the tracked transition.
func (s *refCountState) Transition() Transition { return s.transition }

// RCRoot returns the identity this state is about.
func (s *refCountState) RCRoot() ir.Value { return s.rcRoot }

// IsKnownSafe reports the known-safety flag.
func (s *refCountState) IsKnownSafe() bool { return s.knownSafe }

// IsCodeMotionSafe reports the code-motion-safety flag.
func (s *refCountState) IsCodeMotionSafe() bool { return s.codeMotionSafe }

// Instructions returns the tracked mutators in key order.
func (s *refCountState) Instructions() []*ir.Instruction {
	if !s.IsTrackingRefCountInst() {
		return nil
	}
	return s.transition.Mutators().Slice()
}

// ContainsInstruction reports whether inst is a tracked mutator.
func (s *refCountState) ContainsInstruction(inst *ir.Instruction) bool {
	return s.IsTrackingRefCountInst() && s.transition.ContainsInstruction(inst)
}

func (s *refCountState) clear() {
	*s = refCountState{rcRoot: s.rcRoot}
}

func (s *refCountState) initWithMutator(t Transition, root ir.Value) bool {
	nesting := s.IsTrackingRefCountInst()
	s.transition = t
	s.rcRoot = root
	s.knownSafe = true
	s.codeMotionSafe = true
	return nesting
}

// potentialDecrement lowers both flags.
func (s *refCountState) potentialDecrement() {
	s.knownSafe = false
	s.codeMotionSafe = false
}

// potentialUse lowers code motion safety only.
func (s *refCountState) potentialUse() {
	s.codeMotionSafe = false
}

// classifyEffect reports whether inst may decrement or use the identity as
// seen from inside the same loop.
func (s *refCountState) classifyEffect(inst *ir.Instruction, aa AliasAnalysis) (decrement, use bool) {
	if aa.MayDecrementRefCount(inst, s.rcRoot) {
		return true, false
	}
	return false, aa.MayUseValue(inst, s.rcRoot)
}

// classifyLoopEffect is classifyEffect for an instruction inside an already
// summarised loop. The loop runs an unknown number of times, so any
// increment or decrement of an aliasing identity also counts as a
// potential decrement.
func (s *refCountState) classifyLoopEffect(inst *ir.Instruction, aa AliasAnalysis) (decrement, use bool) {
	if (inst.IsRetain() || inst.IsRelease()) && aa.MayAlias(inst.Operand(0), s.rcRoot) {
		return true, false
	}
	return s.classifyEffect(inst, aa)
}

// mergeFlags folds the flags of a state reaching the same point along another
// edge.
func (s *refCountState) mergeFlags(other *refCountState) {
	s.knownSafe = s.knownSafe && other.knownSafe
	s.codeMotionSafe = s.codeMotionSafe && other.codeMotionSafe
}

func (s *refCountState) String() string {
	return fmt.Sprintf("%v ks=%t cms=%t", s.transition, s.knownSafe, s.codeMotionSafe)
}

// =============================================================================
// Top-down state
// =============================================================================

// TopDownLattice is the position of a top-down state.
//
//	None ──▶ Incremented ──▶ MightBeUsed ──▶ MightBeDecremented
//	              └──────────────────────────────▲
type TopDownLattice int

const (
	TopDownNone TopDownLattice = iota
	TopDownIncremented
	TopDownMightBeUsed
	TopDownMightBeDecremented
)

func (l TopDownLattice) String() string {
	switch l {
	case TopDownNone:
		return "None"
	case TopDownIncremented:
		return "Incremented"
	case TopDownMightBeUsed:
		return "MightBeUsed"
	case TopDownMightBeDecremented:
		return "MightBeDecremented"
	}
	return fmt.Sprintf("TopDownLattice(%d)", int(l))
}

// TopDownState tracks increments walking from entry to exit, looking for the
// decrement that balances them.
type TopDownState struct {
	refCountState
	lat TopDownLattice
}

// Lattice returns the lattice position.
func (s *TopDownState) Lattice() TopDownLattice { return s.lat }

// Clear stops tracking.
func (s *TopDownState) Clear() {
	s.refCountState.clear()
	s.lat = TopDownNone
}

// Clone returns an independent copy. Transitions are immutable, so a shallow
// copy suffices.
func (s *TopDownState) Clone() *TopDownState {
	c := *s
	return &c
}

// InitWithMutator starts tracking the increment set t. It reports whether
// an increment was already tracked, which means increments are nested.
func (s *TopDownState) InitWithMutator(t Transition, root ir.Value) bool {
	if t.Kind() != TransitionStrongIncrement {
		panic(fmt.Sprintf("arc: top-down state initialised with %s", t.Kind()))
	}
	nesting := s.initWithMutator(t, root)
	s.lat = TopDownIncremented
	return nesting
}

// InitWithEntrance starts tracking a value that enters at +1.
func (s *TopDownState) InitWithEntrance(v, root ir.Value) {
	s.transition = EntranceTransition(v)
	s.rcRoot = root
	s.knownSafe = true
	s.codeMotionSafe = true
	s.lat = TopDownIncremented
}

// IsRefCountInstMatchedToTrackedInstruction reports whether inst balances
// the tracked increments.
func (s *TopDownState) IsRefCountInstMatchedToTrackedInstruction(inst *ir.Instruction) bool {
	return s.IsTrackingRefCountInst() && s.transition.MatchingInst(inst)
}

// UpdateForSameLoopInst applies the effect of an instruction visited in the
// same loop as the tracked increment.
func (s *TopDownState) UpdateForSameLoopInst(inst *ir.Instruction, aa AliasAnalysis) {
	if !s.IsTrackingRefCount() {
		return
	}
	s.apply(s.classifyEffect(inst, aa))
}

// UpdateForDifferentLoopInst applies the effect of an instruction inside a
// summarised inner loop.
func (s *TopDownState) UpdateForDifferentLoopInst(inst *ir.Instruction, aa AliasAnalysis) {
	if !s.IsTrackingRefCount() {
		return
	}
	s.apply(s.classifyLoopEffect(inst, aa))
}

func (s *TopDownState) apply(decrement, use bool) {
	switch {
	case decrement:
		s.potentialDecrement()
		s.lat = TopDownMightBeDecremented
	case use:
		s.potentialUse()
		if s.lat == TopDownIncremented {
			s.lat = TopDownMightBeUsed
		}
	}
}

// CheckAndResetKnownSafety lowers known safety when inst is a decrement of
// an identity that may alias root and has not been paired with an
// increment.
func (s *TopDownState) CheckAndResetKnownSafety(inst *ir.Instruction, root ir.Value,
	isMatched func(*ir.Instruction) bool, rcia RCIdentity, aa AliasAnalysis) {
	if !s.IsTrackingRefCountInst() || !s.knownSafe {
		return
	}
	if mutatorKind(inst) != TransitionStrongDecrement || isMatched(inst) {
		return
	}
	if aa.MayAlias(rcia.Root(inst.Operand(0)), root) {
		s.knownSafe = false
	}
}

// Merge meets other into s. A state that is not corroborated by other, or
// tracks a different kind of transition, is cleared.
func (s *TopDownState) Merge(other *TopDownState, sets *ptrset.Factory[*ir.Instruction]) {
	if !s.IsTrackingRefCount() || !other.IsTrackingRefCount() {
		s.Clear()
		return
	}
	if !s.transition.Merge(other.transition, sets) {
		s.Clear()
		return
	}
	s.mergeFlags(&other.refCountState)
	s.lat = max(s.lat, other.lat)
}

func (s *TopDownState) String() string {
	return fmt.Sprintf("TopDown{%s %s}", s.lat, &s.refCountState)
}

// =============================================================================
// Bottom-up state
// =============================================================================

// BottomUpLattice is the position of a bottom-up state.
//
//	None ──▶ Decremented ──▶ MightBeUsed ──▶ MightBeDecremented
//	              └──────────────────────────────▲
type BottomUpLattice int

const (
	BottomUpNone BottomUpLattice = iota
	BottomUpDecremented
	BottomUpMightBeUsed
	BottomUpMightBeDecremented
)

func (l BottomUpLattice) String() string {
	switch l {
	case BottomUpNone:
		return "None"
	case BottomUpDecremented:
		return "Decremented"
	case BottomUpMightBeUsed:
		return "MightBeUsed"
	case BottomUpMightBeDecremented:
		return "MightBeDecremented"
	}
	return fmt.Sprintf("BottomUpLattice(%d)", int(l))
}

// BottomUpState tracks decrements walking from exit to entry, looking for
// the increment that they balance.
type BottomUpState struct {
	refCountState
	lat BottomUpLattice
}

// Lattice returns the lattice position.
func (s *BottomUpState) Lattice() BottomUpLattice { return s.lat }

// Clear stops tracking.
func (s *BottomUpState) Clear() {
	s.refCountState.clear()
	s.lat = BottomUpNone
}

// Clone returns an independent copy.
func (s *BottomUpState) Clone() *BottomUpState {
	c := *s
	return &c
}

// InitWithMutator starts tracking the decrement set t. It reports whether a
// decrement was already tracked.
func (s *BottomUpState) InitWithMutator(t Transition, root ir.Value) bool {
	if t.Kind() != TransitionStrongDecrement {
		panic(fmt.Sprintf("arc: bottom-up state initialised with %s", t.Kind()))
	}
	nesting := s.initWithMutator(t, root)
	s.lat = BottomUpDecremented
	return nesting
}

// IsRefCountInstMatchedToTrackedInstruction reports whether inst is an
// increment balanced by the tracked decrements.
func (s *BottomUpState) IsRefCountInstMatchedToTrackedInstruction(inst *ir.Instruction) bool {
	return s.IsTrackingRefCountInst() && s.transition.MatchingInst(inst)
}

// UpdateForSameLoopInst applies the effect of an instruction visited in the
// same loop as the tracked decrement.
func (s *BottomUpState) UpdateForSameLoopInst(inst *ir.Instruction, aa AliasAnalysis) {
	if !s.IsTrackingRefCount() {
		return
	}
	s.apply(s.classifyEffect(inst, aa))
}

// UpdateForDifferentLoopInst applies the effect of an instruction inside a
// summarised inner loop.
func (s *BottomUpState) UpdateForDifferentLoopInst(inst *ir.Instruction, aa AliasAnalysis) {
	if !s.IsTrackingRefCount() {
		return
	}
	s.apply(s.classifyLoopEffect(inst, aa))
}

func (s *BottomUpState) apply(decrement, use bool) {
	switch {
	case decrement:
		s.potentialDecrement()
		s.lat = BottomUpMightBeDecremented
	case use:
		s.potentialUse()
		if s.lat == BottomUpDecremented {
			s.lat = BottomUpMightBeUsed
		}
	}
}

// CheckAndResetKnownSafety lowers known safety when inst is an increment of
// an identity that may alias root and has not been paired with a decrement.
func (s *BottomUpState) CheckAndResetKnownSafety(inst *ir.Instruction, root ir.Value,
	isMatched func(*ir.Instruction) bool, rcia RCIdentity, aa AliasAnalysis) {
	if !s.IsTrackingRefCountInst() || !s.knownSafe {
		return
	}
	if mutatorKind(inst) != TransitionStrongIncrement || isMatched(inst) {
		return
	}
	if aa.MayAlias(rcia.Root(inst.Operand(0)), root) {
		s.knownSafe = false
	}
}

// Merge meets other into s.
func (s *BottomUpState) Merge(other *BottomUpState, sets *ptrset.Factory[*ir.Instruction]) {
	if !s.IsTrackingRefCount() || !other.IsTrackingRefCount() {
		s.Clear()
		return
	}
	if !s.transition.Merge(other.transition, sets) {
		s.Clear()
		return
	}
	s.mergeFlags(&other.refCountState)
	s.lat = max(s.lat, other.lat)
}

func (s *BottomUpState) String() string {
	return fmt.Sprintf("BottomUp{%s %s}", s.lat, &s.refCountState)
}
