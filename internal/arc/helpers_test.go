package arc

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mpyw/arcseq/internal/analysis/alias"
	"github.com/mpyw/arcseq/internal/analysis/rcident"
	"github.com/mpyw/arcseq/internal/ir"
)

func parse(t *testing.T, src string) *ir.Function {
	t.Helper()
	fn, err := ir.Parse(src)
	require.NoError(t, err)
	return fn
}

func newTestContext() *Context {
	rc := rcident.New()
	return NewContext(alias.New(rc.Root), rc, NewClassifier([]string{"pool_push"}), slog.New(slog.DiscardHandler))
}

func block(fn *ir.Function, label string) *ir.Block {
	for _, b := range fn.Blocks {
		if b.Label == label {
			return b
		}
	}
	return nil
}

// inst returns the n-th instruction of the block labelled label.
func inst(fn *ir.Function, label string, n int) *ir.Instruction {
	return block(fn, label).Instrs[n]
}

func arg(fn *ir.Function, name string) *ir.Argument {
	for _, a := range fn.Arguments() {
		if a.Name() == name {
			return a
		}
	}
	return nil
}
