package termination_test

import (
	"testing"

	"github.com/mpyw/arcseq/internal/analysis/termination"
	"github.com/mpyw/arcseq/internal/ir"
)

func TestAnalyzer_IsProgramTerminatingBlock(t *testing.T) {
	fn, err := ir.Parse(`
func @f(%x, %c) {
bb0:
  cond_br %c, bb1, bb2
bb1:
  unreachable
bb2:
  %1 = apply [noreturn] @abort(%x)
  unreachable
bb3:
  %2 = apply @g(%x)
  return
}`)
	if err != nil {
		t.Fatal(err)
	}

	a := termination.New()
	want := map[string]bool{"bb0": false, "bb1": true, "bb2": true, "bb3": false}
	for _, b := range fn.Blocks {
		if got := a.IsProgramTerminatingBlock(b); got != want[b.Label] {
			t.Errorf("IsProgramTerminatingBlock(%s) = %v, want %v", b.Label, got, want[b.Label])
		}
	}
}
