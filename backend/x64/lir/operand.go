// Package lir is the backend's machine intermediate representation: the
// output of instruction selection and the input/output of register
// allocation and move resolution. Grounded on the shape of
// ir/lir/{block,value,function,module}.go (teacher) but redesigned per
// spec.md §3/§4.2: operands are a tagged struct rather than an interface, so
// the allocator can rewrite them in place instead of reallocating.
package lir

import (
	"fmt"

	"github.com/sherter/minijavac/backend/x64/regfile"
)

// ----------------------------
// ----- Type definitions -----
// ----------------------------

// Kind discriminates the three operand shapes an Instruction slot may hold.
type Kind int

const (
	KindInvalid Kind = iota
	Imm              // immediate integer
	Reg              // a VReg, not yet or no longer virtual after allocation
	Mem              // a memory addressing mode
)

// Addressing is a base+index*scale+disp memory operand. Index.ID == 0 with
// Scale == 0 means no index register is used. Frame selects a fixed,
// non-allocatable base of %rbp instead of Base -- used for incoming stack
// arguments and spill slots, neither of which go through register
// allocation (spec §4.4 "stack slot assignment").
type Addressing struct {
	Frame bool
	Base  VReg
	Index VReg
	Scale int8
	Disp  int32
}

// Operand is one source or destination slot of an Instruction. It is a
// tagged union: exactly the fields matching Kind are meaningful.
type Operand struct {
	Kind  Kind
	Width regfile.Width
	Imm   int64
	Reg   VReg
	Mem   Addressing
}

// ---------------------
// ----- Functions -----
// ---------------------

// NewImm returns an immediate Operand.
func NewImm(v int64, w regfile.Width) Operand {
	return Operand{Kind: Imm, Width: w, Imm: v}
}

// NewReg returns a register Operand over vr.
func NewReg(vr VReg, w regfile.Width) Operand {
	return Operand{Kind: Reg, Width: w, Reg: vr}
}

// NewMem returns a memory Operand addressing base+index*scale+disp.
func NewMem(addr Addressing, w regfile.Width) Operand {
	return Operand{Kind: Mem, Width: w, Mem: addr}
}

// NewFrame returns a memory Operand at a fixed offset from %rbp.
func NewFrame(disp int32, w regfile.Width) Operand {
	return Operand{Kind: Mem, Width: w, Mem: Addressing{Frame: true, Disp: disp}}
}

// UsesVReg reports whether this operand names a virtual register that
// lifetime analysis and register allocation must track -- true for Reg, and
// for Mem operands whose Base or Index is a live vreg.
func (o Operand) UsesVReg() bool {
	switch o.Kind {
	case Reg:
		return true
	case Mem:
		return !o.Mem.Frame && (o.Base().ID != 0 || o.Index().ID != 0)
	default:
		return false
	}
}

// Base returns the base register of a Mem operand; zero value otherwise.
func (o Operand) Base() VReg { return o.Mem.Base }

// Index returns the index register of a Mem operand; zero value otherwise.
func (o Operand) Index() VReg { return o.Mem.Index }

// String renders o the way the assembler would print it.
func (o Operand) String() string {
	switch o.Kind {
	case Imm:
		return fmt.Sprintf("$%d", o.Imm)
	case Reg:
		return o.Reg.PhysicalString(o.Width)
	case Mem:
		s := ""
		if o.Mem.Disp != 0 || o.Mem.Frame {
			s += fmt.Sprintf("%d", o.Mem.Disp)
		}
		if o.Mem.Frame {
			return s + "(%rbp)"
		}
		s += "(" + o.Mem.Base.PhysicalString(regfile.B64)
		if o.Mem.Index.ID != 0 {
			s += fmt.Sprintf(",%s,%d", o.Mem.Index.PhysicalString(regfile.B64), o.Mem.Scale)
		}
		s += ")"
		return s
	default:
		panic("lir: operand has invalid kind")
	}
}
