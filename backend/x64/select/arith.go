package selector

import (
	"github.com/sherter/minijavac/backend/x64/lir"
	"github.com/sherter/minijavac/ir"
)

// lowerBinary implements the Add/Sub/And/Mul rule (spec §4.2 "Arithmetic"):
// copy the right operand into a fresh temporary, then emit the two-address
// instruction writing into that temporary. The left operand may be an
// immediate or a register; the right is always materialised into a register
// first since every x86-64 two-address form the matcher uses writes its
// destination in place.
func (s *selector) lowerBinary(n *ir.Node) error {
	left, right := n.Preds[0], n.Preds[1]
	w := width(n.Mode)

	tmp := s.proc.VRegs.New()
	s.cur.Append(&lir.Instruction{
		Op:   lir.Mov,
		Defs: []lir.Operand{lir.NewReg(tmp, w)},
		Uses: []lir.Operand{s.operandFor(right)},
	})

	s.cur.Append(&lir.Instruction{
		Op:   binaryOp(n.Op),
		Defs: []lir.Operand{lir.NewReg(tmp, w)},
		Uses: []lir.Operand{s.operandFor(left), lir.NewReg(tmp, w)},
	})

	s.values[n] = tmp
	return nil
}

func binaryOp(op ir.Opcode) lir.Op {
	switch op {
	case ir.OpAdd:
		return lir.Add
	case ir.OpSub:
		return lir.Sub
	case ir.OpAnd:
		return lir.And
	case ir.OpMul:
		return lir.IMul
	default:
		panic("select: binaryOp called with non-arithmetic opcode " + op.String())
	}
}

// lowerNeg implements the Neg rule: copy-into-temporary, then negate
// (spec §4.2 "Unary").
func (s *selector) lowerNeg(n *ir.Node) error {
	operand := n.Preds[0]
	w := width(n.Mode)

	tmp := s.proc.VRegs.New()
	s.cur.Append(&lir.Instruction{
		Op:   lir.Mov,
		Defs: []lir.Operand{lir.NewReg(tmp, w)},
		Uses: []lir.Operand{s.operandFor(operand)},
	})
	s.cur.Append(&lir.Instruction{
		Op:   lir.Neg,
		Defs: []lir.Operand{lir.NewReg(tmp, w)},
		Uses: []lir.Operand{lir.NewReg(tmp, w)},
	})

	s.values[n] = tmp
	return nil
}

// lowerArg materialises the i'th procedure argument (spec §4.2 constraint
// propagation extended to argument reception): the first six arguments
// arrive in fixed System V registers, so the vreg is constrained directly
// to that register rather than copied; the rest are read off the incoming
// stack frame at mustRegular offsets above the saved return address and
// base pointer.
func (s *selector) lowerArg(n *ir.Node) error {
	w := width(n.Mode)
	argRegs := s.rf.ArgRegs()

	if n.ProjIndex < len(argRegs) {
		vr := s.proc.VRegs.NewConstrained(argRegs[n.ProjIndex])
		s.values[n] = vr
		return nil
	}

	vr := s.proc.VRegs.New()
	disp := int32(16 + 8*(n.ProjIndex-len(argRegs)))
	s.cur.Append(&lir.Instruction{
		Op:   lir.Mov,
		Defs: []lir.Operand{lir.NewReg(vr, w)},
		Uses: []lir.Operand{lir.NewFrame(disp, w)},
	})
	s.values[n] = vr
	return nil
}
