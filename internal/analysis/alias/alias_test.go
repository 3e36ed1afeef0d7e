package alias_test

import (
	"testing"

	"github.com/mpyw/arcseq/internal/analysis/alias"
	"github.com/mpyw/arcseq/internal/analysis/rcident"
	"github.com/mpyw/arcseq/internal/ir"
)

type fixture struct {
	x, y           *ir.Argument
	obj1, obj2     *ir.Instruction
	owned, plain   *ir.Instruction
	castObj1, load *ir.Instruction
	release, pure  *ir.Instruction
	store, use     *ir.Instruction
	retain         *ir.Instruction
}

func build() *fixture {
	fn := ir.NewFunction("f")
	f := &fixture{
		x: fn.AddArg("x", ir.Owned),
		y: fn.AddArg("y", ir.Guaranteed),
	}
	b := ir.NewBuilder(fn.Entry())
	f.obj1 = b.AllocRef()
	f.obj2 = b.PartialApply("closure", f.x)
	f.owned = b.Apply("make", ir.AttrOwned)
	f.plain = b.Apply("get", 0)
	f.castObj1 = b.Cast(f.obj1)
	f.load = b.Load(f.y)
	f.release = b.StrongRelease(f.y)
	f.pure = b.Apply("hash", ir.AttrReadNone, f.obj1)
	f.store = b.Store(f.obj2, f.y)
	f.use = b.Use(f.castObj1)
	f.retain = b.StrongRetain(f.x)
	b.Return(nil)
	return f
}

func TestAnalysis_MayAlias(t *testing.T) {
	f := build()
	aa := alias.New(rcident.New().Root)

	tests := []struct {
		name string
		a, b ir.Value
		want bool
	}{
		{"same value", f.x, f.x, true},
		{"two arguments", f.x, f.y, true},
		{"fresh vs fresh", f.obj1, f.obj2, false},
		{"fresh vs owned apply", f.obj1, f.owned, false},
		{"fresh vs argument", f.obj1, f.x, false},
		{"argument vs fresh", f.y, f.obj2, false},
		{"fresh vs plain call result", f.obj1, f.plain, true},
		{"fresh vs load", f.obj1, f.load, true},
		{"cast shares identity", f.castObj1, f.obj1, true},
		{"cast of fresh vs other fresh", f.castObj1, f.obj2, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := aa.MayAlias(tt.a, tt.b); got != tt.want {
				t.Errorf("MayAlias(%s, %s) = %v, want %v", tt.a.Name(), tt.b.Name(), got, tt.want)
			}
		})
	}
}

func TestAnalysis_Effects(t *testing.T) {
	f := build()
	aa := alias.New(rcident.New().Root)

	tests := []struct {
		name          string
		inst          *ir.Instruction
		ptr           ir.Value
		wantDecrement bool
		wantUse       bool
	}{
		{"release of unrelated value", f.release, f.obj1, true, false},
		{"opaque call", f.plain, f.obj1, true, true},
		{"readnone call with aliasing argument", f.pure, f.castObj1, false, true},
		{"readnone call with unrelated pointer", f.pure, f.obj2, false, false},
		{"store of pointer", f.store, f.obj2, true, true},
		{"use through cast", f.use, f.obj1, false, true},
		{"use of other fresh object", f.use, f.obj2, false, false},
		{"retain", f.retain, f.x, false, false},
		{"alloc", f.obj1, f.obj1, false, false},
		{"partial apply captures", f.obj2, f.x, false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := aa.MayDecrementRefCount(tt.inst, tt.ptr); got != tt.wantDecrement {
				t.Errorf("MayDecrementRefCount() = %v, want %v", got, tt.wantDecrement)
			}
			if got := aa.MayUseValue(tt.inst, tt.ptr); got != tt.wantUse {
				t.Errorf("MayUseValue() = %v, want %v", got, tt.wantUse)
			}
		})
	}
}
