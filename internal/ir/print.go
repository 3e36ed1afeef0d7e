package ir

import (
	"fmt"
	"io"
	"strings"
)

// Print writes f in the text form accepted by Parse.
func Print(w io.Writer, f *Function) error {
	_, err := io.WriteString(w, Sprint(f))
	return err
}

// Sprint returns the text form of f.
func Sprint(f *Function) string {
	var buf strings.Builder

	args := make([]string, 0, len(f.Arguments()))
	for _, a := range f.Arguments() {
		if a.IsOwned() {
			args = append(args, fmt.Sprintf("%%%s: @owned", a.name))
		} else {
			args = append(args, "%"+a.name)
		}
	}
	fmt.Fprintf(&buf, "func @%s(%s) {\n", f.Name, strings.Join(args, ", "))
	for _, b := range f.Blocks {
		fmt.Fprintf(&buf, "%s:\n", b.Label)
		for _, inst := range b.Instrs {
			fmt.Fprintf(&buf, "  %s\n", formatInstruction(inst))
		}
	}
	buf.WriteString("}\n")
	return buf.String()
}

func formatInstruction(i *Instruction) string {
	var buf strings.Builder
	if i.Op.HasResult() {
		fmt.Fprintf(&buf, "%%%s = ", i.name)
	}
	buf.WriteString(i.Op.String())

	switch i.Op {
	case OpApply, OpPartialApply:
		for _, a := range attrNames {
			if i.Attrs.Has(a.attr) {
				fmt.Fprintf(&buf, " [%s]", a.name)
			}
		}
		fmt.Fprintf(&buf, " @%s(%s)", i.Callee, joinValues(i.Operands))
	case OpStore:
		fmt.Fprintf(&buf, " %s to %s", valueRef(i.Operand(0)), valueRef(i.Operand(1)))
	case OpBr:
		fmt.Fprintf(&buf, " %s", i.Targets[0].Label)
	case OpCondBr:
		fmt.Fprintf(&buf, " %s, %s, %s", valueRef(i.Operand(0)), i.Targets[0].Label, i.Targets[1].Label)
	default:
		if len(i.Operands) > 0 {
			buf.WriteString(" " + joinValues(i.Operands))
		}
	}
	return buf.String()
}

func joinValues(vs []Value) string {
	parts := make([]string, len(vs))
	for n, v := range vs {
		parts[n] = valueRef(v)
	}
	return strings.Join(parts, ", ")
}

func valueRef(v Value) string {
	if v == nil {
		return "<nil>"
	}
	return "%" + v.Name()
}
