package ir_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mpyw/arcseq/internal/ir"
)

const module = `func @f(%x: @owned, %p, %c) {
bb0:
  strong_retain %x
  %1 = alloc_ref
  %2 = partial_apply @closure(%x, %1)
  %3 = apply [owned] [readnone] @make()
  %4 = cast %3
  store %4 to %p
  %5 = load %p
  use %5
  retain_value %x
  release_value %x
  cond_br %c, bb1, bb2
bb1:
  %6 = apply [noreturn] @fatal()
  unreachable
bb2:
  strong_release %x
  return %1
}

func @g() {
entry:
  br exit
exit:
  return
}
`

func TestParseModule_RoundTrip(t *testing.T) {
	fns, err := ir.ParseModule(module)
	require.NoError(t, err)
	require.Len(t, fns, 2)

	assert.Equal(t, module, ir.Sprint(fns[0])+"\n"+ir.Sprint(fns[1]))

	var buf bytes.Buffer
	require.NoError(t, ir.Print(&buf, fns[1]))
	assert.Equal(t, ir.Sprint(fns[1]), buf.String())
}

func TestParseModule_Structure(t *testing.T) {
	fns, err := ir.ParseModule(module)
	require.NoError(t, err)
	f := fns[0]

	args := f.Arguments()
	require.Len(t, args, 3)
	assert.True(t, args[0].IsOwned())
	assert.False(t, args[1].IsOwned())

	bb0, bb1, bb2 := f.Blocks[0], f.Blocks[1], f.Blocks[2]
	assert.True(t, bb0.IsEntry())
	assert.Equal(t, []*ir.Block{bb1, bb2}, bb0.Succs())
	assert.Equal(t, []*ir.Block{bb0}, bb2.Preds())
	assert.Empty(t, bb1.Succs())

	apply := bb0.Instrs[3]
	assert.Equal(t, ir.OpApply, apply.Op)
	assert.True(t, apply.Attrs.Has(ir.AttrOwned|ir.AttrReadNone))
	assert.False(t, apply.Attrs.Has(ir.AttrNoReturn))
	assert.Equal(t, "make", apply.Callee)

	assert.Equal(t, 2, f.CountOps(ir.OpRetainValue, ir.OpReleaseValue))
	assert.Equal(t, 1, f.CountOps(ir.OpStrongRetain))
}

func TestParseModule_Comments(t *testing.T) {
	fn, err := ir.Parse(`
// leading comment
func @f(%x) {
bb0:
  strong_retain %x // trailing comment
  strong_release %x
  return
}
`)
	require.NoError(t, err)
	assert.Equal(t, 2, fn.CountOps(ir.OpStrongRetain, ir.OpStrongRelease))
}

func TestParseModule_Errors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{
			name: "instruction outside of a function",
			src:  "strong_retain %x\n",
			want: "line 1: unexpected",
		},
		{
			name: "unknown instruction",
			src:  "func @f(%x) {\nbb0:\n  frobnicate %x\n}\n",
			want: `line 3: unknown instruction "frobnicate"`,
		},
		{
			name: "undefined value",
			src:  "func @f() {\nbb0:\n  strong_retain %y\n  return\n}\n",
			want: "undefined value %y",
		},
		{
			name: "missing result",
			src:  "func @f() {\nbb0:\n  alloc_ref\n  return\n}\n",
			want: "alloc_ref must define a result",
		},
		{
			name: "unexpected result",
			src:  "func @f(%x) {\nbb0:\n  %1 = strong_retain %x\n  return\n}\n",
			want: "strong_retain does not define a result",
		},
		{
			name: "unknown block",
			src:  "func @f() {\nbb0:\n  br bb9\n}\n",
			want: "unknown block bb9",
		},
		{
			name: "missing terminator",
			src:  "func @f(%x) {\nbb0:\n  strong_retain %x\n}\n",
			want: "block bb0 has no terminator",
		},
		{
			name: "terminator in the middle",
			src:  "func @f() {\nbb0:\n  return\n  return\n}\n",
			want: "terminator before its end",
		},
		{
			name: "unclosed function",
			src:  "func @f() {\nbb0:\n  return\n",
			want: "function @f is not closed",
		},
		{
			name: "unknown attribute",
			src:  "func @f() {\nbb0:\n  %1 = apply [pure] @g()\n  return\n}\n",
			want: "unknown attribute [pure]",
		},
		{
			name: "arity",
			src:  "func @f(%x) {\nbb0:\n  strong_retain %x, %x\n  return\n}\n",
			want: "strong_retain takes 1 operand(s), found 2",
		},
		{
			name: "duplicate parameter",
			src:  "func @f(%x, %x) {\nbb0:\n  return\n}\n",
			want: "duplicate parameter %x",
		},
		{
			name: "unknown convention",
			src:  "func @f(%x: @borrowed) {\nbb0:\n  return\n}\n",
			want: `unknown convention "@borrowed"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ir.ParseModule(tt.src)
			assert.ErrorContains(t, err, tt.want)
		})
	}
}

func TestParse_ExactlyOne(t *testing.T) {
	_, err := ir.Parse(module)
	assert.ErrorContains(t, err, "expected exactly one function, found 2")
}

func TestBuilder(t *testing.T) {
	fn := ir.NewFunction("f")
	x := fn.AddArg("x", ir.Owned)
	entry, exit := fn.Entry(), fn.AddBlock("bb1")

	b := ir.NewBuilder(entry)
	retain := b.StrongRetain(x)
	b.Apply("g", ir.AttrReadNone, x)
	b.Br(exit)
	b.SetBlock(exit)
	b.StrongRelease(x)
	b.Return(nil)
	require.NoError(t, fn.Finalize())

	want := `func @f(%x: @owned) {
bb0:
  strong_retain %x
  %1 = apply [readnone] @g(%x)
  br bb1
bb1:
  strong_release %x
  return
}
`
	assert.Equal(t, want, ir.Sprint(fn))
	assert.Equal(t, entry, retain.Parent())

	retain.EraseFromParent()
	assert.Nil(t, retain.Parent())
	assert.Len(t, entry.Instrs, 2)
	assert.Equal(t, 0, fn.CountOps(ir.OpStrongRetain))
}
