package arc

import (
	"log/slog"

	"github.com/mpyw/arcseq/internal/analysis/cfg"
	"github.com/mpyw/arcseq/internal/debug"
	"github.com/mpyw/arcseq/internal/ir"
	"github.com/mpyw/arcseq/internal/ptrset"
)

// =============================================================================
// Collaborators
// =============================================================================

// AliasAnalysis answers memory and reference count effect queries. Any
// answer it is unsure about must be "true".
type AliasAnalysis interface {
	MayAlias(a, b ir.Value) bool
	MayDecrementRefCount(inst *ir.Instruction, ptr ir.Value) bool
	MayUseValue(inst *ir.Instruction, ptr ir.Value) bool
}

// RCIdentity maps a value to its reference count identity root.
type RCIdentity interface {
	Root(v ir.Value) ir.Value
}

// LoopRegions exposes the loop-region tree of a function.
type LoopRegions interface {
	TopLevel() *cfg.Region
	Region(id int) *cfg.Region
	RegionOf(b *ir.Block) *cfg.Region
	LoopsPostOrder() []*cfg.Region
}

// EpilogueReleases identifies the final releases of owned arguments.
type EpilogueReleases interface {
	IsEpilogueRelease(inst *ir.Instruction) bool
}

// EpilogueRecomputer is implemented by epilogue analyses that can refresh
// themselves after releases were deleted.
type EpilogueRecomputer interface {
	Recompute()
}

// ProgramTermination identifies blocks that never return control.
type ProgramTermination interface {
	IsProgramTerminatingBlock(b *ir.Block) bool
}

// Observer receives the dataflow results of every sweep before matching and
// every matching set that was removed.
type Observer interface {
	RecordSweep(s debug.Sweep)
	RecordPairing(p debug.Pairing)
}

// =============================================================================
// Context
// =============================================================================

// Context bundles the oracles and the pointer-set arena shared by every
// component of one function's optimization.
type Context struct {
	AA         AliasAnalysis
	RCIA       RCIdentity
	Classifier *Classifier
	Sets       *ptrset.Factory[*ir.Instruction]
	Logger     *slog.Logger
	Observer   Observer
}

// NewContext returns a context with a fresh pointer-set factory. A nil
// logger falls back to slog.Default.
func NewContext(aa AliasAnalysis, rcia RCIdentity, classifier *Classifier, logger *slog.Logger) *Context {
	if logger == nil {
		logger = slog.Default()
	}
	return &Context{
		AA:         aa,
		RCIA:       rcia,
		Classifier: classifier,
		Sets:       ptrset.NewFactory[*ir.Instruction](),
		Logger:     logger,
	}
}

// root returns the RC identity of an instruction's first operand.
func (c *Context) root(inst *ir.Instruction) ir.Value {
	return c.RCIA.Root(inst.Operand(0))
}

// rootOf returns the RC identity of an entrance node.
func (c *Context) rootOf(v ir.Value) ir.Value {
	return c.RCIA.Root(v)
}
