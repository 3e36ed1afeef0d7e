package arc

import (
	"fmt"

	"github.com/mpyw/arcseq/internal/ir"
)

// =============================================================================
// Matching sets
// =============================================================================
//
// A matching set is the closure of one increment under the pairing maps:
//
//	inc ──IncToDec──▶ {dec...} ──DecToInc──▶ {inc...} ──▶ ...
//
// Every increment must reach exactly the decrements of the set and every
// decrement exactly the increments. If any member is missing from its map or
// was paired with an instruction outside the set, the whole set is rejected:
// deleting part of it would unbalance the counts along some path.

// MatchingSet is a group of increments and decrements removable together.
type MatchingSet struct {
	Root       ir.Value
	Increments []*ir.Instruction
	Decrements []*ir.Instruction
}

// MatchingSetBuilder grows a matching set from a seed increment.
type MatchingSetBuilder struct {
	ctx      *Context
	decToInc *DecToIncMap
	incToDec *IncToDecMap

	set     MatchingSet
	seenInc map[*ir.Instruction]struct{}
	seenDec map[*ir.Instruction]struct{}
	newIncs []*ir.Instruction
	newDecs []*ir.Instruction

	knownSafeTD, knownSafeBU           bool
	codeMotionSafeTD, codeMotionSafeBU bool
	matchedPair                        bool
}

// NewMatchingSetBuilder creates a builder reading the pairing maps.
func NewMatchingSetBuilder(ctx *Context, decToInc *DecToIncMap, incToDec *IncToDecMap) *MatchingSetBuilder {
	return &MatchingSetBuilder{ctx: ctx, decToInc: decToInc, incToDec: incToDec}
}

// Init starts a new set seeded with inc.
func (b *MatchingSetBuilder) Init(inc *ir.Instruction) {
	b.set = MatchingSet{Root: b.ctx.root(inc)}
	b.seenInc = map[*ir.Instruction]struct{}{inc: {}}
	b.seenDec = make(map[*ir.Instruction]struct{})
	b.set.Increments = append(b.set.Increments, inc)
	b.newIncs = []*ir.Instruction{inc}
	b.newDecs = nil
	b.knownSafeTD, b.knownSafeBU = true, true
	b.codeMotionSafeTD, b.codeMotionSafeBU = true, true
	b.matchedPair = false
}

type matchFlags struct {
	knownSafe      bool
	codeMotionSafe bool
}

// matchIncrementsToDecrements follows every new increment to its decrements.
// Each decrement must have been paired top-down with that same increment.
func (b *MatchingSetBuilder) matchIncrementsToDecrements() (matchFlags, bool) {
	flags := matchFlags{knownSafe: true, codeMotionSafe: true}
	for _, inc := range b.newIncs {
		bu, ok := b.incToDec.Find(inc)
		if !ok {
			return flags, false
		}
		if !bu.IsTrackingRefCount() {
			continue
		}
		flags.knownSafe = flags.knownSafe && bu.IsKnownSafe()
		flags.codeMotionSafe = flags.codeMotionSafe && bu.IsCodeMotionSafe()

		for _, dec := range bu.Instructions() {
			td, ok := b.decToInc.Find(dec)
			if !ok || !td.IsTrackingRefCount() || !td.ContainsInstruction(inc) {
				return flags, false
			}
			if _, seen := b.seenDec[dec]; seen {
				continue
			}
			b.seenDec[dec] = struct{}{}
			b.set.Decrements = append(b.set.Decrements, dec)
			b.newDecs = append(b.newDecs, dec)
		}
	}
	return flags, true
}

// matchDecrementsToIncrements is the mirror of matchIncrementsToDecrements.
func (b *MatchingSetBuilder) matchDecrementsToIncrements() (matchFlags, bool) {
	flags := matchFlags{knownSafe: true, codeMotionSafe: true}
	for _, dec := range b.newDecs {
		td, ok := b.decToInc.Find(dec)
		if !ok {
			return flags, false
		}
		if !td.IsTrackingRefCount() {
			continue
		}
		flags.knownSafe = flags.knownSafe && td.IsKnownSafe()
		flags.codeMotionSafe = flags.codeMotionSafe && td.IsCodeMotionSafe()

		for _, inc := range td.Instructions() {
			bu, ok := b.incToDec.Find(inc)
			if !ok || !bu.IsTrackingRefCount() || !bu.ContainsInstruction(dec) {
				return flags, false
			}
			if _, seen := b.seenInc[inc]; seen {
				continue
			}
			b.seenInc[inc] = struct{}{}
			b.set.Increments = append(b.set.Increments, inc)
			b.newIncs = append(b.newIncs, inc)
		}
	}
	return flags, true
}

// MatchUp computes the closure and reports whether it can be removed.
func (b *MatchingSetBuilder) MatchUp() bool {
	for {
		flags, ok := b.matchIncrementsToDecrements()
		if !ok {
			return false
		}
		b.knownSafeBU = b.knownSafeBU && flags.knownSafe
		b.codeMotionSafeBU = b.codeMotionSafeBU && flags.codeMotionSafe
		b.newIncs = b.newIncs[:0]

		if len(b.newDecs) == 0 {
			break
		}

		flags, ok = b.matchDecrementsToIncrements()
		if !ok {
			return false
		}
		b.knownSafeTD = b.knownSafeTD && flags.knownSafe
		b.codeMotionSafeTD = b.codeMotionSafeTD && flags.codeMotionSafe
		b.newDecs = b.newDecs[:0]

		if len(b.newIncs) == 0 {
			break
		}
	}

	if b.codeMotionSafeTD != b.codeMotionSafeBU {
		panic(fmt.Sprintf("arc: asymmetric code motion safety for %s", valueName(b.set.Root)))
	}

	if !(b.knownSafeTD && b.knownSafeBU) && !(b.codeMotionSafeTD && b.codeMotionSafeBU) {
		return false
	}

	// An increment whose state stopped tracking never reached a decrement.
	if len(b.set.Decrements) == 0 {
		return false
	}
	b.matchedPair = len(b.set.Increments) > 0
	return true
}

// MatchedPair reports whether the accepted set contains an increment.
func (b *MatchingSetBuilder) MatchedPair() bool { return b.matchedPair }

// IsKnownSafe reports whether the accepted set was known safe in both
// directions.
func (b *MatchingSetBuilder) IsKnownSafe() bool { return b.knownSafeTD && b.knownSafeBU }

// IsCodeMotionSafe reports whether the accepted set was code motion safe in
// both directions.
func (b *MatchingSetBuilder) IsCodeMotionSafe() bool {
	return b.codeMotionSafeTD && b.codeMotionSafeBU
}

// Result returns the set built by the last MatchUp.
func (b *MatchingSetBuilder) Result() *MatchingSet { return &b.set }
