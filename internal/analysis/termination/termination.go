// Package termination identifies blocks that end the program.
//
// Reference counts do not matter once the program is about to stop, so the
// optimizer lets such blocks leak: a block is program terminating when it
// ends in unreachable or calls a [noreturn] function.
package termination

import (
	"github.com/mpyw/arcseq/internal/ir"
)

// Analyzer is stateless and can be reused across functions.
type Analyzer struct{}

// New creates an Analyzer.
func New() *Analyzer {
	return &Analyzer{}
}

// IsProgramTerminatingBlock reports whether b never returns control.
func (a *Analyzer) IsProgramTerminatingBlock(b *ir.Block) bool {
	if t := b.Terminator(); t != nil && t.Op == ir.OpUnreachable {
		return true
	}
	for _, inst := range b.Instrs {
		if inst.Op == ir.OpApply && inst.Attrs.Has(ir.AttrNoReturn) {
			return true
		}
	}
	return false
}
