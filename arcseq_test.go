package arcseq_test

import (
	"context"
	"fmt"
	"maps"
	"math/rand/v2"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/tools/txtar"

	"github.com/mpyw/arcseq"
	"github.com/mpyw/arcseq/internal/debug"
	"github.com/mpyw/arcseq/internal/ir"
)

// fixture is one testdata/opt/*.txtar archive. The expected output is taken
// from want.<mode>.ir when present and from want.ir otherwise.
type fixture struct {
	name  string
	files map[string]string
}

func loadFixtures(t testing.TB) []fixture {
	t.Helper()

	paths, err := filepath.Glob(filepath.Join("testdata", "opt", "*.txtar"))
	require.NoError(t, err)
	require.NotEmpty(t, paths)

	fixtures := make([]fixture, 0, len(paths))
	for _, path := range paths {
		ar, err := txtar.ParseFile(path)
		require.NoError(t, err, path)

		fx := fixture{
			name:  strings.TrimSuffix(filepath.Base(path), ".txtar"),
			files: make(map[string]string),
		}
		for _, f := range ar.Files {
			fx.files[f.Name] = string(f.Data)
		}
		require.Contains(t, fx.files, "input.ir", path)
		fixtures = append(fixtures, fx)
	}
	return fixtures
}

func (fx fixture) want(mode string) string {
	if s, ok := fx.files["want."+mode+".ir"]; ok {
		return s
	}
	return fx.files["want.ir"]
}

var modes = []struct {
	name    string
	loopARC bool
}{
	{"block", false},
	{"loop", true},
}

func configFor(loopARC bool) arcseq.Config {
	c := arcseq.DefaultConfig()
	c.EnableLoopARC = loopARC
	return c
}

// canonical reparses and reprints src so that fixtures may use any spacing.
func canonical(t *testing.T, src string) string {
	t.Helper()
	fns, err := ir.ParseModule(src)
	require.NoError(t, err)
	parts := make([]string, len(fns))
	for i, fn := range fns {
		parts[i] = ir.Sprint(fn)
	}
	return strings.Join(parts, "\n")
}

func TestOptimizeSource(t *testing.T) {
	for _, fx := range loadFixtures(t) {
		for _, mode := range modes {
			t.Run(fx.name+"/"+mode.name, func(t *testing.T) {
				got, results, err := arcseq.OptimizeSource(context.Background(), fx.files["input.ir"], configFor(mode.loopARC))
				require.NoError(t, err)
				assert.Equal(t, canonical(t, fx.want(mode.name)), got)

				input := canonical(t, fx.files["input.ir"])
				changed := got != input
				require.Len(t, results, 1)
				assert.Equal(t, changed, results[0].Changed)
				assert.Equal(t, strings.Count(input, "\n")-strings.Count(got, "\n"), results[0].Removed())
			})
		}
	}
}

func TestOptimize_Idempotent(t *testing.T) {
	for _, fx := range loadFixtures(t) {
		for _, mode := range modes {
			t.Run(fx.name+"/"+mode.name, func(t *testing.T) {
				fn, err := ir.Parse(fx.files["input.ir"])
				require.NoError(t, err)

				c := configFor(mode.loopARC)
				arcseq.Optimize(fn, c)
				once := ir.Sprint(fn)

				res := arcseq.Optimize(fn, c)
				assert.False(t, res.Changed)
				assert.Zero(t, res.Removed())
				assert.Equal(t, once, ir.Sprint(fn))
			})
		}
	}
}

// TestOptimize_PreservesCounts checks that every path from the entry to a
// return sees the same net number of retains per value before and after the
// optimization.
func TestOptimize_PreservesCounts(t *testing.T) {
	for _, fx := range loadFixtures(t) {
		for _, mode := range modes {
			t.Run(fx.name+"/"+mode.name, func(t *testing.T) {
				before, err := ir.Parse(fx.files["input.ir"])
				require.NoError(t, err)
				after, err := ir.Parse(fx.files["input.ir"])
				require.NoError(t, err)

				arcseq.Optimize(after, configFor(mode.loopARC))
				assert.Equal(t, pathCounts(before), pathCounts(after))
			})
		}
	}
}

// TestOptimize_PreservesCountsRandom runs the path check over generated
// functions whose branches may target any block, so loops, self-loops,
// multi-exit loops and irreducible cycles all occur.
func TestOptimize_PreservesCountsRandom(t *testing.T) {
	const seeds = 2000

	for _, mode := range modes {
		t.Run(mode.name, func(t *testing.T) {
			for seed := range uint64(seeds) {
				src := randomFunction(rand.New(rand.NewPCG(seed, 0)))
				before, err := ir.Parse(src)
				require.NoError(t, err, src)
				after, err := ir.Parse(src)
				require.NoError(t, err, src)

				arcseq.Optimize(after, configFor(mode.loopARC))
				if !assert.Equal(t, pathCounts(before), pathCounts(after), "seed %d\n%s\noptimized:\n%s", seed, src, ir.Sprint(after)) {
					return
				}
			}
		})
	}
}

var randomInstrs = []string{
	"strong_retain %x",
	"strong_release %x",
	"strong_retain %y",
	"strong_release %y",
	"use %x",
	"apply [readnone] @tick()",
	"apply @g()",
}

// randomFunction returns a function of two to six blocks. Every block holds
// up to three instructions from randomInstrs and ends in a branch to random
// blocks, a return or, rarely, unreachable.
func randomFunction(r *rand.Rand) string {
	n := 2 + r.IntN(5)
	next := 1

	var buf strings.Builder
	buf.WriteString("func @f(%x, %y, %c) {\n")
	for i := range n {
		fmt.Fprintf(&buf, "bb%d:\n", i)
		for range r.IntN(4) {
			inst := randomInstrs[r.IntN(len(randomInstrs))]
			if strings.HasPrefix(inst, "apply") {
				inst = fmt.Sprintf("%%%d = %s", next, inst)
				next++
			}
			fmt.Fprintf(&buf, "  %s\n", inst)
		}

		switch k := r.IntN(10); {
		case i == n-1 && k < 5, k == 0:
			buf.WriteString("  return\n")
		case k == 1:
			buf.WriteString("  unreachable\n")
		case k < 5:
			fmt.Fprintf(&buf, "  br bb%d\n", r.IntN(n))
		default:
			a := r.IntN(n)
			b := (a + 1 + r.IntN(n-1)) % n
			fmt.Fprintf(&buf, "  cond_br %%c, bb%d, bb%d\n", a, b)
		}
	}
	buf.WriteString("}\n")
	return buf.String()
}

// pathCounts enumerates the paths from the entry to a return, entering each
// block at most twice, and returns the net retain count of every value along
// each path. Paths that reach an unreachable or a noreturn call are dropped:
// leaking on them is allowed.
func pathCounts(fn *ir.Function) map[string]map[string]int {
	const maxVisits = 2

	out := make(map[string]map[string]int)
	visits := make(map[*ir.Block]int)
	var path []string

	var walk func(b *ir.Block, counts map[string]int)
	walk = func(b *ir.Block, counts map[string]int) {
		if visits[b] == maxVisits {
			return
		}
		visits[b]++
		path = append(path, b.Label)
		defer func() {
			visits[b]--
			path = path[:len(path)-1]
		}()

		next := maps.Clone(counts)
		for _, inst := range b.Instrs {
			switch {
			case inst.IsRetain():
				next[inst.Operand(0).Name()]++
			case inst.IsRelease():
				next[inst.Operand(0).Name()]--
			case inst.Op == ir.OpApply && inst.Attrs.Has(ir.AttrNoReturn):
				return
			}
		}

		switch b.Terminator().Op {
		case ir.OpReturn:
			maps.DeleteFunc(next, func(_ string, n int) bool { return n == 0 })
			out[strings.Join(path, " ")] = next
		case ir.OpUnreachable:
		default:
			for _, succ := range b.Succs() {
				walk(succ, next)
			}
		}
	}
	walk(fn.Entry(), map[string]int{})
	return out
}

func TestRun(t *testing.T) {
	src := `
func @a(%x) {
bb0:
  strong_retain %x
  strong_release %x
  return
}

func @b(%x) {
bb0:
  strong_retain %x
  %1 = apply @g(%x)
  strong_release %x
  return
}
`
	fns, err := ir.ParseModule(src)
	require.NoError(t, err)

	results, err := arcseq.Run(context.Background(), fns, arcseq.DefaultConfig())
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, arcseq.Result{Function: "a", Changed: true, RemovedRetains: 1, RemovedReleases: 1}, results[0])
	assert.Equal(t, arcseq.Result{Function: "b"}, results[1])
}

func TestRun_InvalidConfig(t *testing.T) {
	c := arcseq.DefaultConfig()
	c.MaxIterations = 0

	_, err := arcseq.Run(context.Background(), nil, c)
	assert.ErrorContains(t, err, "max_iterations")
}

func TestRun_Canceled(t *testing.T) {
	fn, err := ir.Parse("func @f(%x) {\nbb0:\n  strong_retain %x\n  strong_release %x\n  return\n}\n")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = arcseq.Run(ctx, []*ir.Function{fn}, arcseq.DefaultConfig())
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 2, fn.CountOps(ir.OpStrongRetain, ir.OpStrongRelease))
}

func TestOptimizeSource_ParseError(t *testing.T) {
	_, _, err := arcseq.OptimizeSource(context.Background(), "func @f(%x) {\nbb0:\n  bogus %x\n", arcseq.DefaultConfig())
	assert.ErrorContains(t, err, "parse")
}

func TestWithObserver(t *testing.T) {
	src := `
func @f(%x, %c) {
bb0:
  strong_retain %x
  cond_br %c, bb1, bb2
bb1:
  strong_release %x
  br bb3
bb2:
  strong_release %x
  br bb3
bb3:
  return
}
`
	for _, mode := range modes {
		t.Run(mode.name, func(t *testing.T) {
			c := debug.NewCollector()
			_, _, err := arcseq.OptimizeSource(context.Background(), src, configFor(mode.loopARC), arcseq.WithObserver(c))
			require.NoError(t, err)

			assert.Equal(t, []string{"f"}, c.Functions())
			assert.NotEmpty(t, c.Sweeps("f"))

			pairings := c.Pairings("f")
			require.Len(t, pairings, 1)
			p := pairings[0]
			assert.Equal(t, "%x", p.Root)
			assert.Len(t, p.Increments, 1)
			assert.Len(t, p.Decrements, 2)
			assert.True(t, p.KnownSafe || p.CodeMotionSafe)
		})
	}
}
