package arc

import (
	"github.com/mpyw/arcseq/internal/debug"
	"github.com/mpyw/arcseq/internal/ir"
)

func snapshot(function, scope string, incToDec *IncToDecMap, decToInc *DecToIncMap) debug.Sweep {
	s := debug.Sweep{Function: function, Scope: scope}
	for inc, st := range incToDec.All() {
		s.Increments = append(s.Increments, stateInfo(inc, &st.refCountState, st.Lattice().String()))
	}
	for dec, st := range decToInc.All() {
		s.Decrements = append(s.Decrements, stateInfo(dec, &st.refCountState, st.Lattice().String()))
	}
	return s
}

func stateInfo(inst *ir.Instruction, st *refCountState, lattice string) debug.StateInfo {
	return debug.StateInfo{
		Inst:           inst.String(),
		Root:           valueName(st.RCRoot()),
		Tracked:        instStrings(st.Instructions()),
		KnownSafe:      st.IsKnownSafe(),
		CodeMotionSafe: st.IsCodeMotionSafe(),
		Lattice:        lattice,
	}
}

func pairing(function, scope string, ms *MatchingSet, ks, cms bool) debug.Pairing {
	return debug.Pairing{
		Function:       function,
		Scope:          scope,
		Root:           valueName(ms.Root),
		Increments:     instStrings(ms.Increments),
		Decrements:     instStrings(ms.Decrements),
		KnownSafe:      ks,
		CodeMotionSafe: cms,
	}
}

func instStrings(insts []*ir.Instruction) []string {
	if len(insts) == 0 {
		return nil
	}
	out := make([]string, len(insts))
	for i, inst := range insts {
		out[i] = inst.String()
	}
	return out
}

func valueName(v ir.Value) string {
	if v == nil {
		return "<nil>"
	}
	return "%" + v.Name()
}
