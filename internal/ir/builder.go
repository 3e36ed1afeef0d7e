package ir

// Builder appends instructions to a block. It keeps test and fixture code
// close to the text form:
//
//	b := ir.NewBuilder(fn.AddBlock("bb0"))
//	b.StrongRetain(x)
//	b.Apply("g", 0, x)
//	b.StrongRelease(x)
//	b.Return(nil)
type Builder struct {
	block *Block
}

// NewBuilder returns a builder positioned at the end of block.
func NewBuilder(block *Block) *Builder {
	return &Builder{block: block}
}

// Block returns the current insertion block.
func (b *Builder) Block() *Block { return b.block }

// SetBlock moves the insertion point to the end of block.
func (b *Builder) SetBlock(block *Block) { b.block = block }

func (b *Builder) emit(inst *Instruction) *Instruction {
	return b.block.Append(inst)
}

func (b *Builder) StrongRetain(v Value) *Instruction {
	return b.emit(NewInstruction(OpStrongRetain, v))
}

func (b *Builder) StrongRelease(v Value) *Instruction {
	return b.emit(NewInstruction(OpStrongRelease, v))
}

func (b *Builder) RetainValue(v Value) *Instruction {
	return b.emit(NewInstruction(OpRetainValue, v))
}

func (b *Builder) ReleaseValue(v Value) *Instruction {
	return b.emit(NewInstruction(OpReleaseValue, v))
}

func (b *Builder) AllocRef() *Instruction {
	return b.emit(NewInstruction(OpAllocRef))
}

func (b *Builder) PartialApply(callee string, captured ...Value) *Instruction {
	inst := NewInstruction(OpPartialApply, captured...)
	inst.Callee = callee
	return b.emit(inst)
}

func (b *Builder) Apply(callee string, attrs Attr, args ...Value) *Instruction {
	inst := NewInstruction(OpApply, args...)
	inst.Callee = callee
	inst.Attrs = attrs
	return b.emit(inst)
}

func (b *Builder) Cast(v Value) *Instruction {
	return b.emit(NewInstruction(OpCast, v))
}

func (b *Builder) Load(addr Value) *Instruction {
	return b.emit(NewInstruction(OpLoad, addr))
}

func (b *Builder) Store(v, addr Value) *Instruction {
	return b.emit(NewInstruction(OpStore, v, addr))
}

func (b *Builder) Use(v Value) *Instruction {
	return b.emit(NewInstruction(OpUse, v))
}

func (b *Builder) Br(target *Block) *Instruction {
	inst := NewInstruction(OpBr)
	inst.Targets = []*Block{target}
	return b.emit(inst)
}

func (b *Builder) CondBr(cond Value, t, f *Block) *Instruction {
	inst := NewInstruction(OpCondBr, cond)
	inst.Targets = []*Block{t, f}
	return b.emit(inst)
}

// Return emits a return; v may be nil.
func (b *Builder) Return(v Value) *Instruction {
	if v == nil {
		return b.emit(NewInstruction(OpReturn))
	}
	return b.emit(NewInstruction(OpReturn, v))
}

func (b *Builder) Unreachable() *Instruction {
	return b.emit(NewInstruction(OpUnreachable))
}
