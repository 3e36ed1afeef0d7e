// Package alias provides a conservative alias and side effect oracle for the
// ARC optimizer.
//
// The model only knows one fact for certain: a freshly created object
// (alloc_ref, partial_apply or an apply returning [owned]) is distinct from
// every other fresh object and from every function argument. All other
// pairs of identities may alias.
//
// Effects:
//
//	┌──────────────────────┬───────────────────┬─────────────────────────────┐
//	│ Instruction          │ May decrement ptr │ May use ptr                 │
//	├──────────────────────┼───────────────────┼─────────────────────────────┤
//	│ strong_release etc.  │ always            │ never                       │
//	│ apply                │ unless [readnone] │ unless [readnone]; else     │
//	│                      │                   │ if an argument aliases ptr  │
//	│ store                │ always            │ if an operand aliases ptr   │
//	│ retains, alloc, cast │ never             │ never                       │
//	│ branches, unreachable│ never             │ never                       │
//	│ anything else        │ never             │ if an operand aliases ptr   │
//	└──────────────────────┴───────────────────┴─────────────────────────────┘
//
// Releases count as decrements of any pointer because the final release of
// an object runs its deinitializer, which may release anything it holds.
package alias

import (
	"github.com/mpyw/arcseq/internal/ir"
)

// RootFunc maps a value to its RC identity root.
type RootFunc func(ir.Value) ir.Value

// Analysis answers alias and effect queries.
type Analysis struct {
	root RootFunc
}

// New creates an Analysis. root may be nil, in which case values are compared
// as they are.
func New(root RootFunc) *Analysis {
	if root == nil {
		root = func(v ir.Value) ir.Value { return v }
	}
	return &Analysis{root: root}
}

// IsFresh reports whether v is an object created by the function itself.
func IsFresh(v ir.Value) bool {
	inst, ok := v.(*ir.Instruction)
	if !ok {
		return false
	}
	switch inst.Op {
	case ir.OpAllocRef, ir.OpPartialApply:
		return true
	case ir.OpApply:
		return inst.Attrs.Has(ir.AttrOwned)
	}
	return false
}

// MayAlias reports whether a and b may refer to the same object.
func (a *Analysis) MayAlias(x, y ir.Value) bool {
	if x == nil || y == nil {
		return false
	}
	rx, ry := a.root(x), a.root(y)
	if rx == ry {
		return true
	}
	if IsFresh(rx) && distinctFromFresh(ry) {
		return false
	}
	if IsFresh(ry) && distinctFromFresh(rx) {
		return false
	}
	return true
}

func distinctFromFresh(v ir.Value) bool {
	if _, ok := v.(*ir.Argument); ok {
		return true
	}
	return IsFresh(v)
}

// MayDecrementRefCount reports whether inst may decrement the reference count
// of ptr.
func (a *Analysis) MayDecrementRefCount(inst *ir.Instruction, ptr ir.Value) bool {
	switch inst.Op {
	case ir.OpStrongRelease, ir.OpReleaseValue, ir.OpStore:
		return true
	case ir.OpApply:
		return !inst.Attrs.Has(ir.AttrReadNone)
	}
	return false
}

// MayUseValue reports whether inst may read ptr or rely on it being alive.
func (a *Analysis) MayUseValue(inst *ir.Instruction, ptr ir.Value) bool {
	switch inst.Op {
	case ir.OpStrongRetain, ir.OpRetainValue, ir.OpStrongRelease, ir.OpReleaseValue,
		ir.OpAllocRef, ir.OpCast, ir.OpBr, ir.OpCondBr, ir.OpUnreachable:
		return false
	case ir.OpApply:
		if !inst.Attrs.Has(ir.AttrReadNone) {
			return true
		}
	}
	for _, op := range inst.Operands {
		if a.MayAlias(op, ptr) {
			return true
		}
	}
	return false
}
