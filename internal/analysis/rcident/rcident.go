// Package rcident computes reference-count identity roots.
//
// Two values share an RC identity when a retain of one may be balanced by a
// release of the other. In this IR the only operation that forwards identity
// is cast:
//
//	%1 = alloc_ref          root(%1) = %1
//	%2 = cast %1            root(%2) = %1
//	%3 = cast %2            root(%3) = %1
//	%4 = load %3            root(%4) = %4   (new object)
//
// Everything else, including arguments, call results and loads, starts a new
// identity.
package rcident

import (
	"github.com/mpyw/arcseq/internal/ir"
)

// Tracer finds RC identity roots. It memoises results and is not safe for
// concurrent use.
type Tracer struct {
	cache map[ir.Value]ir.Value
}

// New creates a Tracer.
func New() *Tracer {
	return &Tracer{cache: make(map[ir.Value]ir.Value)}
}

// Root returns the RC identity root of v, or nil for nil.
func (t *Tracer) Root(v ir.Value) ir.Value {
	if v == nil {
		return nil
	}
	if r, ok := t.cache[v]; ok {
		return r
	}
	r := t.trace(v, make(map[ir.Value]bool))
	t.cache[v] = r
	return r
}

// Invalidate forgets memoised roots. Deleting retains and releases never
// changes identities, so the optimizer only needs this after other edits.
func (t *Tracer) Invalidate() {
	clear(t.cache)
}

// trace follows cast operands backward.
//
//	┌──────────────┐
//	│  Input value │
//	└──────┬───────┘
//	       ▼
//	┌──────────────────┐ yes  ┌──────────────────────┐
//	│ Already visited? │─────▶│ Stop at this value   │
//	└──────┬───────────┘      │ (malformed cycle)    │
//	       │ no               └──────────────────────┘
//	       ▼
//	┌──────────────────┐ yes  ┌──────────────────────┐
//	│      cast?       │─────▶│ trace(operand)       │
//	└──────┬───────────┘      └──────────────────────┘
//	       │ no
//	       ▼
//	   value is the root
func (t *Tracer) trace(v ir.Value, visited map[ir.Value]bool) ir.Value {
	if visited[v] {
		return v
	}
	visited[v] = true

	inst, ok := v.(*ir.Instruction)
	if !ok || inst.Op != ir.OpCast {
		return v
	}
	if r, ok := t.cache[inst]; ok {
		return r
	}
	op := inst.Operand(0)
	if op == nil {
		return v
	}
	return t.trace(op, visited)
}
