package selector

import (
	"github.com/sherter/minijavac/backend/x64/lir"
	"github.com/sherter/minijavac/ir"
)

// lowerDivMod implements the Division/Modulo rule (spec §4.2): the dividend
// is copied into a temporary constrained to A, a sign-extension pseudo
// (Cltd) produces D:A from A, then idiv divides by the divisor. The
// quotient lands in A, the remainder in D; Div reads the former, Mod the
// latter, both by constraining their result vreg accordingly so the
// allocator either keeps it there or spills/moves it (spec §4.4).
func (s *selector) lowerDivMod(n *ir.Node) error {
	dividend, divisor := n.Preds[0], n.Preds[1]
	w := width(n.Mode)
	quotientReg, remainderReg := s.rf.DivideRegs()

	a := s.proc.VRegs.NewConstrained(quotientReg)
	s.cur.Append(&lir.Instruction{
		Op:   lir.Mov,
		Defs: []lir.Operand{lir.NewReg(a, w)},
		Uses: []lir.Operand{s.operandFor(dividend)},
	})

	d := s.proc.VRegs.NewConstrained(remainderReg)
	s.cur.Append(&lir.Instruction{
		Op:   lir.Cltd,
		Defs: []lir.Operand{lir.NewReg(d, w), lir.NewReg(a, w)},
		Uses: []lir.Operand{lir.NewReg(a, w)},
	})

	quotient := s.proc.VRegs.NewConstrained(quotientReg)
	remainder := s.proc.VRegs.NewConstrained(remainderReg)
	s.cur.Append(&lir.Instruction{
		Op:   lir.IDiv,
		Defs: []lir.Operand{lir.NewReg(quotient, w), lir.NewReg(remainder, w)},
		Uses: []lir.Operand{lir.NewReg(a, w), lir.NewReg(d, w), s.operandFor(divisor)},
	})

	if n.Op == ir.OpDiv {
		s.values[n] = quotient
	} else {
		s.values[n] = remainder
	}
	return nil
}
