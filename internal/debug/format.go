package debug

import (
	"fmt"
	"strings"
)

// Format renders everything the collector holds for function.
//
//	Function: f
//	  Sweep function #1
//	    Increments:
//	      1. strong_retain %x
//	         ├─ root: %x
//	         ├─ lattice: Decremented
//	         ├─ tracked: strong_release %x
//	         └─ safety: known-safe, code-motion-safe
//	  Paired:
//	    1. %x in function
//	       ├─ increments: strong_retain %x
//	       ├─ decrements: strong_release %x
//	       └─ safety: known-safe, code-motion-safe
func Format(c *Collector, function string) string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Function: %s\n", function)

	for _, s := range c.Sweeps(function) {
		fmt.Fprintf(&buf, "  Sweep %s #%d\n", s.Scope, s.Iteration)
		writeStates(&buf, "Increments", s.Increments)
		writeStates(&buf, "Decrements", s.Decrements)
	}

	pairings := c.Pairings(function)
	if len(pairings) == 0 {
		fmt.Fprintf(&buf, "  Paired: (none)\n")
		return buf.String()
	}
	fmt.Fprintf(&buf, "  Paired:\n")
	for i, p := range pairings {
		fmt.Fprintf(&buf, "    %d. %s in %s\n", i+1, p.Root, p.Scope)
		fmt.Fprintf(&buf, "       ├─ increments: %s\n", strings.Join(p.Increments, "; "))
		fmt.Fprintf(&buf, "       ├─ decrements: %s\n", strings.Join(p.Decrements, "; "))
		fmt.Fprintf(&buf, "       └─ safety: %s\n", safety(p.KnownSafe, p.CodeMotionSafe))
	}
	return buf.String()
}

// FormatAll renders every function the collector has seen.
func FormatAll(c *Collector) string {
	var parts []string
	for _, fn := range c.Functions() {
		parts = append(parts, Format(c, fn))
	}
	return strings.Join(parts, "\n")
}

func writeStates(buf *strings.Builder, title string, states []StateInfo) {
	if len(states) == 0 {
		fmt.Fprintf(buf, "    %s: (none)\n", title)
		return
	}
	fmt.Fprintf(buf, "    %s:\n", title)
	for i, st := range states {
		fmt.Fprintf(buf, "      %d. %s\n", i+1, st.Inst)
		fmt.Fprintf(buf, "         ├─ root: %s\n", st.Root)
		fmt.Fprintf(buf, "         ├─ lattice: %s\n", st.Lattice)
		if len(st.Tracked) > 0 {
			fmt.Fprintf(buf, "         ├─ tracked: %s\n", strings.Join(st.Tracked, "; "))
		} else {
			fmt.Fprintf(buf, "         ├─ tracked: (none)\n")
		}
		fmt.Fprintf(buf, "         └─ safety: %s\n", safety(st.KnownSafe, st.CodeMotionSafe))
	}
}

func safety(knownSafe, codeMotionSafe bool) string {
	var parts []string
	if knownSafe {
		parts = append(parts, "known-safe")
	}
	if codeMotionSafe {
		parts = append(parts, "code-motion-safe")
	}
	if len(parts) == 0 {
		return "unsafe"
	}
	return strings.Join(parts, ", ")
}
