package debug

import (
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
)

func TestCollector_Iteration(t *testing.T) {
	c := NewCollector()
	c.RecordSweep(Sweep{Function: "f", Scope: "function"})
	c.RecordSweep(Sweep{Function: "f", Scope: "loop2"})
	c.RecordSweep(Sweep{Function: "f", Scope: "function"})
	c.RecordSweep(Sweep{Function: "g", Scope: "function"})

	sweeps := c.Sweeps("f")
	if len(sweeps) != 3 {
		t.Fatalf("Sweeps() = %d sweeps, want 3", len(sweeps))
	}
	assert.Equal(t, 1, sweeps[0].Iteration)
	assert.Equal(t, 1, sweeps[1].Iteration)
	assert.Equal(t, 2, sweeps[2].Iteration)
	assert.Equal(t, 1, c.Sweeps("g")[0].Iteration)
	assert.Equal(t, []string{"f", "g"}, c.Functions())
}

func TestFormat_UnknownFunction(t *testing.T) {
	got := Format(NewCollector(), "missing")
	want := "Function: missing\n  Paired: (none)\n"
	if got != want {
		t.Errorf("Format() = %q, want %q", got, want)
	}
}

func TestFormat_Golden(t *testing.T) {
	c := NewCollector()
	c.RecordSweep(Sweep{
		Function: "pair",
		Scope:    "function",
		Increments: []StateInfo{{
			Inst:           "strong_retain %x",
			Root:           "%x",
			Tracked:        []string{"strong_release %x"},
			KnownSafe:      true,
			CodeMotionSafe: true,
			Lattice:        "Decremented",
		}},
		Decrements: []StateInfo{{
			Inst:      "strong_release %x",
			Root:      "%x",
			Tracked:   []string{"strong_retain %x"},
			KnownSafe: true,
			Lattice:   "MightBeUsed",
		}},
	})
	c.RecordSweep(Sweep{Function: "pair", Scope: "function"})
	c.RecordPairing(Pairing{
		Function:       "pair",
		Scope:          "function",
		Root:           "%x",
		Increments:     []string{"strong_retain %x"},
		Decrements:     []string{"strong_release %x"},
		KnownSafe:      true,
		CodeMotionSafe: false,
	})

	g := goldie.New(t, goldie.WithFixtureDir("testdata/golden"))
	g.Assert(t, "format", []byte(FormatAll(c)))
}
