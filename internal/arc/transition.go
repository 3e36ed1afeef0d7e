package arc

import (
	"fmt"

	"github.com/mpyw/arcseq/internal/ir"
	"github.com/mpyw/arcseq/internal/ptrset"
)

// TransitionKind classifies the reference count effect of an IR node.
type TransitionKind int

const (
	// TransitionUnknown has no reference count effect of its own.
	TransitionUnknown TransitionKind = iota
	// TransitionStrongEntrance introduces a value at +1: an owned argument,
	// an allocation, a closure or a call returning an owned result.
	TransitionStrongEntrance
	// TransitionStrongIncrement is a retain.
	TransitionStrongIncrement
	// TransitionStrongDecrement is a release.
	TransitionStrongDecrement
	// TransitionAutoreleasePoolCall pushes or pops an autorelease pool, which
	// invalidates everything we know.
	TransitionAutoreleasePoolCall
)

func (k TransitionKind) String() string {
	switch k {
	case TransitionUnknown:
		return "Unknown"
	case TransitionStrongEntrance:
		return "StrongEntrance"
	case TransitionStrongIncrement:
		return "StrongIncrement"
	case TransitionStrongDecrement:
		return "StrongDecrement"
	case TransitionAutoreleasePoolCall:
		return "AutoreleasePoolCall"
	}
	return fmt.Sprintf("TransitionKind(%d)", int(k))
}

// IsMutator reports whether transitions of this kind carry a mutator set.
func (k TransitionKind) IsMutator() bool {
	return k == TransitionStrongIncrement || k == TransitionStrongDecrement
}

// IsEndPoint reports whether this kind starts a value's lifetime.
func (k TransitionKind) IsEndPoint() bool {
	return k == TransitionStrongEntrance
}

// Transition is a reference count transition with its payload.
//
//	┌──────────────────────┬────────────────────────────────────┐
//	│ Kind                 │ Payload                            │
//	├──────────────────────┼────────────────────────────────────┤
//	│ StrongIncrement      │ mutators: interchangeable retains  │
//	│ StrongDecrement      │ mutators: interchangeable releases │
//	│ StrongEntrance       │ entrance: the defining value       │
//	│ AutoreleasePoolCall  │ -                                  │
//	│ Unknown              │ -                                  │
//	└──────────────────────┴────────────────────────────────────┘
//
// The zero value is the Unknown transition.
type Transition struct {
	kind     TransitionKind
	mutators *ptrset.Set[*ir.Instruction]
	entrance ir.Value
}

// MutatorTransition returns an increment or decrement transition over set.
func MutatorTransition(kind TransitionKind, set *ptrset.Set[*ir.Instruction]) Transition {
	if !kind.IsMutator() {
		panic(fmt.Sprintf("arc: %s is not a mutator kind", kind))
	}
	return Transition{kind: kind, mutators: set}
}

// EntranceTransition returns the entrance transition of v.
func EntranceTransition(v ir.Value) Transition {
	return Transition{kind: TransitionStrongEntrance, entrance: v}
}

// Kind returns the transition kind.
func (t Transition) Kind() TransitionKind { return t.kind }

// Mutators returns the mutator set, or nil for non-mutator kinds.
func (t Transition) Mutators() *ptrset.Set[*ir.Instruction] { return t.mutators }

// Entrance returns the defining value of an entrance transition.
func (t Transition) Entrance() ir.Value { return t.entrance }

// IsValid reports whether t is anything but Unknown.
func (t Transition) IsValid() bool { return t.kind != TransitionUnknown }

// ContainsInstruction reports whether inst is one of the mutators.
func (t Transition) ContainsInstruction(inst *ir.Instruction) bool {
	return t.mutators != nil && t.mutators.Contains(inst)
}

// MatchingInst reports whether inst pairs with t: a decrement for an
// increment transition and an increment for a decrement transition.
func (t Transition) MatchingInst(inst *ir.Instruction) bool {
	switch t.kind {
	case TransitionStrongIncrement:
		return mutatorKind(inst) == TransitionStrongDecrement
	case TransitionStrongDecrement:
		return mutatorKind(inst) == TransitionStrongIncrement
	}
	return false
}

// Merge folds other into t. Different kinds do not merge and leave t
// untouched; mutator kinds take the union of both sets.
func (t *Transition) Merge(other Transition, sets *ptrset.Factory[*ir.Instruction]) bool {
	if t.kind != other.kind {
		return false
	}
	if t.kind.IsMutator() {
		t.mutators = sets.Merge(t.mutators, other.mutators)
	}
	return true
}

func (t Transition) String() string {
	switch {
	case t.kind.IsMutator():
		return fmt.Sprintf("%s%v", t.kind, t.mutators)
	case t.kind == TransitionStrongEntrance:
		return fmt.Sprintf("%s(%%%s)", t.kind, t.entrance.Name())
	}
	return t.kind.String()
}

// =============================================================================
// Classifier
// =============================================================================

// mutatorKind classifies the fixed retain and release opcodes.
func mutatorKind(inst *ir.Instruction) TransitionKind {
	switch {
	case inst.IsRetain():
		return TransitionStrongIncrement
	case inst.IsRelease():
		return TransitionStrongDecrement
	}
	return TransitionUnknown
}

// Classifier maps IR nodes to transitions.
type Classifier struct {
	autoreleasePool map[string]bool
}

// NewClassifier returns a classifier recognising the given autorelease pool
// entry points by callee name.
func NewClassifier(autoreleasePoolFuncs []string) *Classifier {
	c := &Classifier{autoreleasePool: make(map[string]bool, len(autoreleasePoolFuncs))}
	for _, name := range autoreleasePoolFuncs {
		c.autoreleasePool[name] = true
	}
	return c
}

// Kind returns the transition kind of node without building a payload.
func (c *Classifier) Kind(node ir.Value) TransitionKind {
	switch n := node.(type) {
	case *ir.Argument:
		if n.IsOwned() {
			return TransitionStrongEntrance
		}
	case *ir.Instruction:
		if k := mutatorKind(n); k != TransitionUnknown {
			return k
		}
		switch n.Op {
		case ir.OpAllocRef, ir.OpPartialApply:
			return TransitionStrongEntrance
		case ir.OpApply:
			if c.autoreleasePool[n.Callee] {
				return TransitionAutoreleasePoolCall
			}
			if n.Attrs.Has(ir.AttrOwned) {
				return TransitionStrongEntrance
			}
		}
	}
	return TransitionUnknown
}

// Classify returns the full transition of node. Mutator sets are obtained
// from sets.
func (c *Classifier) Classify(node ir.Value, sets *ptrset.Factory[*ir.Instruction]) Transition {
	switch k := c.Kind(node); k {
	case TransitionStrongIncrement, TransitionStrongDecrement:
		return MutatorTransition(k, sets.GetOne(node.(*ir.Instruction)))
	case TransitionStrongEntrance:
		return EntranceTransition(node)
	case TransitionAutoreleasePoolCall:
		return Transition{kind: k}
	}
	return Transition{}
}
