// Package epilogue finds the epilogue releases of owned arguments.
//
// An epilogue release is the final release of an @owned argument in a
// returning block, with no later instruction that may use the argument:
//
//	func @f(%x: @owned) {
//	bb0:
//	  %1 = apply @g(%x)
//	  strong_release %x      <- epilogue release of %x
//	  return
//	}
//
// An argument only has epilogue releases when every returning block reachable
// from the entry has one; otherwise none of its releases are reported.
package epilogue

import (
	"github.com/mpyw/arcseq/internal/analysis/cfg"
	"github.com/mpyw/arcseq/internal/ir"
)

// UseOracle answers whether an instruction may use a value.
type UseOracle interface {
	MayUseValue(inst *ir.Instruction, ptr ir.Value) bool
}

// Info holds the epilogue releases of one function.
type Info struct {
	fn       *ir.Function
	root     func(ir.Value) ir.Value
	uses     UseOracle
	releases map[*ir.Instruction]*ir.Argument
}

// Compute finds the epilogue releases of fn.
func Compute(fn *ir.Function, root func(ir.Value) ir.Value, uses UseOracle) *Info {
	info := &Info{fn: fn, root: root, uses: uses}
	info.Recompute()
	return info
}

// Recompute refreshes the result after instructions of the function were
// deleted.
func (i *Info) Recompute() {
	i.releases = make(map[*ir.Instruction]*ir.Argument)
	fn, root, uses := i.fn, i.root, i.uses

	reach := cfg.New()
	var exits []*ir.Block
	for _, b := range fn.Blocks {
		if t := b.Terminator(); t != nil && t.Op == ir.OpReturn && reach.CanReach(fn.Entry(), b) {
			exits = append(exits, b)
		}
	}
	if len(exits) == 0 {
		return
	}

	for _, arg := range fn.Arguments() {
		if !arg.IsOwned() {
			continue
		}
		var found []*ir.Instruction
		for _, b := range exits {
			rel := lastRelease(b, arg, root, uses)
			if rel == nil {
				found = nil
				break
			}
			found = append(found, rel)
		}
		for _, rel := range found {
			i.releases[rel] = arg
		}
	}
}

// lastRelease scans b backwards for a release of arg, giving up at the first
// instruction that may use arg.
func lastRelease(b *ir.Block, arg *ir.Argument, root func(ir.Value) ir.Value, uses UseOracle) *ir.Instruction {
	for i := len(b.Instrs) - 1; i >= 0; i-- {
		inst := b.Instrs[i]
		if inst.IsRelease() && root(inst.Operand(0)) == ir.Value(arg) {
			return inst
		}
		if uses.MayUseValue(inst, arg) {
			return nil
		}
	}
	return nil
}

// IsEpilogueRelease reports whether inst is an epilogue release.
func (i *Info) IsEpilogueRelease(inst *ir.Instruction) bool {
	_, ok := i.releases[inst]
	return ok
}

// Argument returns the argument released by an epilogue release.
func (i *Info) Argument(inst *ir.Instruction) *ir.Argument {
	return i.releases[inst]
}

// Len returns the number of epilogue releases.
func (i *Info) Len() int { return len(i.releases) }
