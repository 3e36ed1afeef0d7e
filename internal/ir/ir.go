// Package ir provides the reference-counted intermediate representation that
// the ARC sequence optimizer runs over.
//
// The IR is deliberately small: a function is a list of basic blocks, every
// block ends with exactly one terminator, and values are either entry block
// arguments or instruction results. Control flow edges are derived from
// terminators, so deleting a non-terminator never changes the CFG.
//
//	func @f(%x: @owned) {
//	bb0:
//	  strong_retain %x
//	  %1 = apply @g(%x)
//	  strong_release %x
//	  return
//	}
package ir

import "fmt"

// =============================================================================
// Opcodes
// =============================================================================

// Op identifies the operation performed by an instruction.
type Op int

const (
	OpInvalid Op = iota
	OpStrongRetain
	OpStrongRelease
	OpRetainValue
	OpReleaseValue
	OpAllocRef
	OpPartialApply
	OpApply
	OpCast
	OpLoad
	OpStore
	OpUse
	OpBr
	OpCondBr
	OpReturn
	OpUnreachable
)

var opNames = [...]string{
	OpInvalid:       "invalid",
	OpStrongRetain:  "strong_retain",
	OpStrongRelease: "strong_release",
	OpRetainValue:   "retain_value",
	OpReleaseValue:  "release_value",
	OpAllocRef:      "alloc_ref",
	OpPartialApply:  "partial_apply",
	OpApply:         "apply",
	OpCast:          "cast",
	OpLoad:          "load",
	OpStore:         "store",
	OpUse:           "use",
	OpBr:            "br",
	OpCondBr:        "cond_br",
	OpReturn:        "return",
	OpUnreachable:   "unreachable",
}

func (o Op) String() string {
	if o < 0 || int(o) >= len(opNames) {
		return fmt.Sprintf("Op(%d)", int(o))
	}
	return opNames[o]
}

// LookupOp returns the opcode spelled name in the text form.
func LookupOp(name string) (Op, bool) {
	for op, n := range opNames {
		if n == name && Op(op) != OpInvalid {
			return Op(op), true
		}
	}
	return OpInvalid, false
}

// IsTerminator reports whether o ends a basic block.
func (o Op) IsTerminator() bool {
	switch o {
	case OpBr, OpCondBr, OpReturn, OpUnreachable:
		return true
	}
	return false
}

// HasResult reports whether instructions with this opcode define a value.
func (o Op) HasResult() bool {
	switch o {
	case OpAllocRef, OpPartialApply, OpApply, OpCast, OpLoad:
		return true
	}
	return false
}

// =============================================================================
// Attributes and conventions
// =============================================================================

// Attr is a set of call attributes.
type Attr uint8

const (
	// AttrOwned marks an apply whose direct result is returned at +1.
	AttrOwned Attr = 1 << iota
	// AttrReadNone marks a call with no memory or reference count effects.
	AttrReadNone
	// AttrNoReturn marks a call that never returns to its caller.
	AttrNoReturn
)

var attrNames = []struct {
	attr Attr
	name string
}{
	{AttrOwned, "owned"},
	{AttrReadNone, "readnone"},
	{AttrNoReturn, "noreturn"},
}

// Has reports whether all bits of other are set in a.
func (a Attr) Has(other Attr) bool { return a&other == other }

// Convention is the ownership convention of a function argument.
type Convention int

const (
	// Guaranteed arguments are borrowed for the duration of the call.
	Guaranteed Convention = iota
	// Owned arguments are passed at +1 and must be consumed by the callee.
	Owned
)

func (c Convention) String() string {
	if c == Owned {
		return "@owned"
	}
	return "@guaranteed"
}

// =============================================================================
// Values
// =============================================================================

// Value is anything an instruction can use as an operand: entry block
// arguments and instruction results. It is also the node type handed to the
// transition classifier.
type Value interface {
	// Name returns the textual name without the leading '%'.
	Name() string
	isValue()
}

// Argument is a formal parameter of a function, attached to its entry block.
type Argument struct {
	name       string
	Convention Convention
	index      int
	block      *Block
}

func (a *Argument) Name() string { return a.name }
func (a *Argument) isValue()     {}

// Index returns the position of the argument in the parameter list.
func (a *Argument) Index() int { return a.index }

// Parent returns the entry block owning the argument.
func (a *Argument) Parent() *Block { return a.block }

// IsOwned reports whether the argument is passed at +1.
func (a *Argument) IsOwned() bool { return a.Convention == Owned }

func (a *Argument) String() string { return "%" + a.name }

// Instruction is a single operation inside a basic block.
type Instruction struct {
	id       int
	name     string
	Op       Op
	Operands []Value
	// Callee names the called function for apply and partial_apply.
	Callee string
	Attrs  Attr
	// Targets are the successor blocks of br and cond_br.
	Targets []*Block
	block   *Block
}

// NewInstruction creates a detached instruction.
func NewInstruction(op Op, operands ...Value) *Instruction {
	return &Instruction{Op: op, Operands: operands}
}

func (i *Instruction) Name() string { return i.name }
func (i *Instruction) isValue()     {}

// ID returns the function-unique identifier assigned when the instruction was
// appended. IDs grow in creation order and are never reused.
func (i *Instruction) ID() int { return i.id }

// Key orders instructions inside immutable pointer sets.
func (i *Instruction) Key() uint64 { return uint64(i.id) }

// Parent returns the block containing the instruction, or nil once erased.
func (i *Instruction) Parent() *Block { return i.block }

// Operand returns the i-th operand or nil.
func (i *Instruction) Operand(n int) Value {
	if n < 0 || n >= len(i.Operands) {
		return nil
	}
	return i.Operands[n]
}

// IsTerminator reports whether the instruction ends its block.
func (i *Instruction) IsTerminator() bool { return i.Op.IsTerminator() }

// IsRetain reports whether the instruction is an increment of its operand.
func (i *Instruction) IsRetain() bool {
	return i.Op == OpStrongRetain || i.Op == OpRetainValue
}

// IsRelease reports whether the instruction is a decrement of its operand.
func (i *Instruction) IsRelease() bool {
	return i.Op == OpStrongRelease || i.Op == OpReleaseValue
}

// MayHaveSideEffects reports whether executing the instruction may have an
// effect beyond defining its result.
func (i *Instruction) MayHaveSideEffects() bool {
	switch i.Op {
	case OpStrongRetain, OpStrongRelease, OpRetainValue, OpReleaseValue, OpStore:
		return true
	case OpApply:
		return !i.Attrs.Has(AttrReadNone)
	}
	return false
}

// MayReadOrWriteMemory reports whether the instruction may access memory.
// Releases count because the final release runs a deinitializer.
func (i *Instruction) MayReadOrWriteMemory() bool {
	switch i.Op {
	case OpLoad, OpStore, OpStrongRelease, OpReleaseValue:
		return true
	case OpApply:
		return !i.Attrs.Has(AttrReadNone)
	}
	return false
}

// EraseFromParent removes the instruction from its block.
func (i *Instruction) EraseFromParent() {
	b := i.block
	if b == nil {
		return
	}
	for n, inst := range b.Instrs {
		if inst == i {
			b.Instrs = append(b.Instrs[:n:n], b.Instrs[n+1:]...)
			break
		}
	}
	i.block = nil
}

func (i *Instruction) String() string { return formatInstruction(i) }

// =============================================================================
// Blocks and functions
// =============================================================================

// Block is a basic block.
type Block struct {
	Label  string
	Args   []*Argument
	Instrs []*Instruction
	index  int
	fn     *Function
	preds  []*Block
}

// Index returns the position of the block in its function.
func (b *Block) Index() int { return b.index }

// Parent returns the function containing the block.
func (b *Block) Parent() *Function { return b.fn }

// IsEntry reports whether b is the function entry block.
func (b *Block) IsEntry() bool { return b.index == 0 }

// Terminator returns the last instruction if it is a terminator.
func (b *Block) Terminator() *Instruction {
	if len(b.Instrs) == 0 {
		return nil
	}
	last := b.Instrs[len(b.Instrs)-1]
	if !last.IsTerminator() {
		return nil
	}
	return last
}

// Succs returns the successor blocks named by the terminator.
func (b *Block) Succs() []*Block {
	if t := b.Terminator(); t != nil {
		return t.Targets
	}
	return nil
}

// Preds returns the predecessor blocks, as of the last Function.Finalize.
func (b *Block) Preds() []*Block { return b.preds }

// Append adds inst to the end of the block and assigns its ID.
func (b *Block) Append(inst *Instruction) *Instruction {
	inst.block = b
	inst.id = b.fn.nextID
	b.fn.nextID++
	if inst.Op.HasResult() && inst.name == "" {
		inst.name = fmt.Sprintf("%d", inst.id)
	}
	b.Instrs = append(b.Instrs, inst)
	return inst
}

func (b *Block) String() string { return b.Label }

// Function is a named list of basic blocks; Blocks[0] is the entry.
type Function struct {
	Name   string
	Blocks []*Block
	nextID int
}

// NewFunction creates an empty function.
func NewFunction(name string) *Function {
	return &Function{Name: name}
}

// Entry returns the entry block, or nil for an empty function.
func (f *Function) Entry() *Block {
	if len(f.Blocks) == 0 {
		return nil
	}
	return f.Blocks[0]
}

// AddBlock appends a new block.
func (f *Function) AddBlock(label string) *Block {
	b := &Block{Label: label, index: len(f.Blocks), fn: f}
	f.Blocks = append(f.Blocks, b)
	return b
}

// AddArg appends a formal parameter to the entry block, creating it if needed.
func (f *Function) AddArg(name string, conv Convention) *Argument {
	entry := f.Entry()
	if entry == nil {
		entry = f.AddBlock("bb0")
	}
	arg := &Argument{name: name, Convention: conv, index: len(entry.Args), block: entry}
	entry.Args = append(entry.Args, arg)
	return arg
}

// Arguments returns the formal parameters.
func (f *Function) Arguments() []*Argument {
	if entry := f.Entry(); entry != nil {
		return entry.Args
	}
	return nil
}

// Finalize recomputes predecessor lists and checks that every block ends with
// exactly one terminator.
func (f *Function) Finalize() error {
	for _, b := range f.Blocks {
		b.preds = b.preds[:0]
	}
	for _, b := range f.Blocks {
		t := b.Terminator()
		if t == nil {
			return fmt.Errorf("function @%s: block %s has no terminator", f.Name, b.Label)
		}
		for _, inst := range b.Instrs[:len(b.Instrs)-1] {
			if inst.IsTerminator() {
				return fmt.Errorf("function @%s: block %s has a terminator before its end", f.Name, b.Label)
			}
		}
		for _, succ := range t.Targets {
			succ.preds = append(succ.preds, b)
		}
	}
	return nil
}

// Instructions calls yield for every instruction in block order until yield
// returns false.
func (f *Function) Instructions(yield func(*Instruction) bool) {
	for _, b := range f.Blocks {
		for _, inst := range b.Instrs {
			if !yield(inst) {
				return
			}
		}
	}
}

// CountOps returns how many instructions of the given opcodes f contains.
func (f *Function) CountOps(ops ...Op) int {
	n := 0
	f.Instructions(func(inst *Instruction) bool {
		for _, op := range ops {
			if inst.Op == op {
				n++
				break
			}
		}
		return true
	})
	return n
}

func (f *Function) String() string { return Sprint(f) }
