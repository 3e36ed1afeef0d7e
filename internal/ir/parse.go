package ir

import (
	"fmt"
	"strings"
	"unicode"
)

// Parse reads a single function in text form.
func Parse(src string) (*Function, error) {
	fns, err := ParseModule(src)
	if err != nil {
		return nil, err
	}
	if len(fns) != 1 {
		return nil, fmt.Errorf("expected exactly one function, found %d", len(fns))
	}
	return fns[0], nil
}

// ParseModule reads every function in src. The format is line oriented:
//
//	func @name(%a: @owned, %b) {
//	bb0:
//	  %1 = apply [owned] @make(%a)
//	  cond_br %b, bb1, bb2
//	bb1:
//	  ...
//	}
//
// Values must be defined before they are used in text order; block labels may
// be referenced before they are declared. Text after "//" is ignored.
func ParseModule(src string) ([]*Function, error) {
	p := &parser{}
	var fns []*Function
	for n, raw := range strings.Split(src, "\n") {
		p.line = n + 1
		if i := strings.Index(raw, "//"); i >= 0 {
			raw = raw[:i]
		}
		toks := tokenize(raw)
		if len(toks) == 0 {
			continue
		}
		if err := p.parseLine(toks); err != nil {
			return nil, fmt.Errorf("line %d: %w", p.line, err)
		}
		if p.done != nil {
			fns = append(fns, p.done)
			p.done = nil
		}
	}
	if p.fn != nil {
		return nil, fmt.Errorf("line %d: function @%s is not closed", p.line, p.fn.Name)
	}
	return fns, nil
}

type blockFixup struct {
	inst   *Instruction
	labels []string
	line   int
}

type parser struct {
	line   int
	fn     *Function
	cur    *Block
	values map[string]Value
	blocks map[string]*Block
	fixups []blockFixup
	done   *Function
}

func (p *parser) parseLine(toks []string) error {
	switch {
	case toks[0] == "func":
		return p.parseHeader(toks)
	case p.fn == nil:
		return fmt.Errorf("unexpected %q outside of a function", toks[0])
	case toks[0] == "}" && len(toks) == 1:
		return p.finish()
	case len(toks) == 2 && toks[1] == ":":
		return p.parseLabel(toks[0])
	case p.cur == nil:
		return fmt.Errorf("instruction before the first block label")
	}
	return p.parseInstruction(toks)
}

func (p *parser) parseHeader(toks []string) error {
	if p.fn != nil {
		return fmt.Errorf("nested function")
	}
	if len(toks) < 4 || !strings.HasPrefix(toks[1], "@") || toks[2] != "(" || toks[len(toks)-1] != "{" {
		return fmt.Errorf("malformed function header")
	}
	p.fn = NewFunction(toks[1][1:])
	p.values = make(map[string]Value)
	p.blocks = make(map[string]*Block)
	p.fixups = nil
	p.cur = nil

	// The entry block is created lazily by the first label, so collect the
	// arguments first and attach them once it exists.
	args := toks[3 : len(toks)-1]
	if len(args) == 0 || args[len(args)-1] != ")" {
		return fmt.Errorf("malformed parameter list")
	}
	args = args[:len(args)-1]
	for len(args) > 0 {
		name := args[0]
		if !strings.HasPrefix(name, "%") {
			return fmt.Errorf("expected parameter, found %q", name)
		}
		conv := Guaranteed
		args = args[1:]
		if len(args) >= 2 && args[0] == ":" {
			switch args[1] {
			case "@owned":
				conv = Owned
			case "@guaranteed":
			default:
				return fmt.Errorf("unknown convention %q", args[1])
			}
			args = args[2:]
		}
		if _, dup := p.values[name[1:]]; dup {
			return fmt.Errorf("duplicate parameter %s", name)
		}
		p.values[name[1:]] = p.fn.AddArg(name[1:], conv)
		if len(args) > 0 {
			if args[0] != "," {
				return fmt.Errorf("expected ',' in parameter list, found %q", args[0])
			}
			args = args[1:]
		}
	}
	return nil
}

func (p *parser) parseLabel(label string) error {
	if _, dup := p.blocks[label]; dup {
		return fmt.Errorf("duplicate block %s", label)
	}
	var b *Block
	if len(p.fn.Blocks) == 1 && len(p.blocks) == 0 {
		// AddArg created the entry block; adopt it.
		b = p.fn.Blocks[0]
		b.Label = label
	} else {
		b = p.fn.AddBlock(label)
	}
	p.blocks[label] = b
	p.cur = b
	return nil
}

func (p *parser) finish() error {
	for _, fx := range p.fixups {
		for _, label := range fx.labels {
			b, ok := p.blocks[label]
			if !ok {
				return fmt.Errorf("line %d: unknown block %s", fx.line, label)
			}
			fx.inst.Targets = append(fx.inst.Targets, b)
		}
	}
	if err := p.fn.Finalize(); err != nil {
		return err
	}
	p.done = p.fn
	p.fn = nil
	p.cur = nil
	return nil
}

func (p *parser) value(tok string) (Value, error) {
	if !strings.HasPrefix(tok, "%") {
		return nil, fmt.Errorf("expected value, found %q", tok)
	}
	v, ok := p.values[tok[1:]]
	if !ok {
		return nil, fmt.Errorf("undefined value %s", tok)
	}
	return v, nil
}

func (p *parser) parseInstruction(toks []string) error {
	var result string
	if len(toks) >= 3 && toks[1] == "=" {
		if !strings.HasPrefix(toks[0], "%") {
			return fmt.Errorf("malformed result %q", toks[0])
		}
		result = toks[0][1:]
		if _, dup := p.values[result]; dup {
			return fmt.Errorf("redefinition of %%%s", result)
		}
		toks = toks[2:]
	}
	op, ok := LookupOp(toks[0])
	if !ok {
		return fmt.Errorf("unknown instruction %q", toks[0])
	}
	if op.HasResult() != (result != "") {
		if result == "" {
			return fmt.Errorf("%s must define a result", op)
		}
		return fmt.Errorf("%s does not define a result", op)
	}
	inst := NewInstruction(op)
	inst.name = result
	rest := toks[1:]

	var err error
	switch op {
	case OpApply, OpPartialApply:
		err = p.parseCall(inst, rest)
	case OpStore:
		if len(rest) != 3 || rest[1] != "to" {
			return fmt.Errorf("expected 'store %%v to %%addr'")
		}
		err = p.parseOperands(inst, []string{rest[0], ",", rest[2]})
	case OpBr:
		if len(rest) != 1 {
			return fmt.Errorf("expected 'br label'")
		}
		p.fixups = append(p.fixups, blockFixup{inst: inst, labels: rest, line: p.line})
	case OpCondBr:
		if len(rest) != 5 || rest[1] != "," || rest[3] != "," {
			return fmt.Errorf("expected 'cond_br %%c, label, label'")
		}
		err = p.parseOperands(inst, rest[:1])
		p.fixups = append(p.fixups, blockFixup{inst: inst, labels: []string{rest[2], rest[4]}, line: p.line})
	default:
		err = p.parseOperands(inst, rest)
	}
	if err != nil {
		return err
	}
	if err := checkArity(inst); err != nil {
		return err
	}
	p.cur.Append(inst)
	if result != "" {
		p.values[result] = inst
	}
	return nil
}

func (p *parser) parseCall(inst *Instruction, toks []string) error {
	for len(toks) >= 3 && toks[0] == "[" && toks[2] == "]" {
		found := false
		for _, a := range attrNames {
			if a.name == toks[1] {
				inst.Attrs |= a.attr
				found = true
			}
		}
		if !found {
			return fmt.Errorf("unknown attribute [%s]", toks[1])
		}
		toks = toks[3:]
	}
	if len(toks) < 3 || !strings.HasPrefix(toks[0], "@") || toks[1] != "(" || toks[len(toks)-1] != ")" {
		return fmt.Errorf("expected '@callee(args)'")
	}
	inst.Callee = toks[0][1:]
	return p.parseOperands(inst, toks[2:len(toks)-1])
}

func (p *parser) parseOperands(inst *Instruction, toks []string) error {
	for n, tok := range toks {
		if n%2 == 1 {
			if tok != "," {
				return fmt.Errorf("expected ',', found %q", tok)
			}
			continue
		}
		v, err := p.value(tok)
		if err != nil {
			return err
		}
		inst.Operands = append(inst.Operands, v)
	}
	if len(toks) > 0 && len(toks)%2 == 0 {
		return fmt.Errorf("trailing ','")
	}
	return nil
}

func checkArity(inst *Instruction) error {
	want := -1
	switch inst.Op {
	case OpStrongRetain, OpStrongRelease, OpRetainValue, OpReleaseValue, OpCast, OpLoad, OpUse, OpCondBr:
		want = 1
	case OpStore:
		want = 2
	case OpAllocRef, OpBr, OpUnreachable:
		want = 0
	case OpReturn:
		if len(inst.Operands) > 1 {
			return fmt.Errorf("return takes at most one operand")
		}
	}
	if want >= 0 && len(inst.Operands) != want {
		return fmt.Errorf("%s takes %d operand(s), found %d", inst.Op, want, len(inst.Operands))
	}
	return nil
}

func tokenize(line string) []string {
	var toks []string
	var cur strings.Builder
	flush := func() {
		if cur.Len() > 0 {
			toks = append(toks, cur.String())
			cur.Reset()
		}
	}
	for _, r := range line {
		switch {
		case unicode.IsSpace(r):
			flush()
		case strings.ContainsRune("(),=:{}[]", r):
			flush()
			toks = append(toks, string(r))
		default:
			cur.WriteRune(r)
		}
	}
	flush()
	return toks
}
