package selector

import (
	"fmt"
	"strings"

	"github.com/sherter/minijavac/backend/x64/lir"
	"github.com/sherter/minijavac/ir"
)

// lowerConst implements the Constants rule: values that fit the target
// immediate stay as Imm operands everywhere they're used (see operandFor);
// values outside 32-bit signed range are pre-materialised into a register
// here because no instruction the matcher emits accepts a 64-bit immediate
// directly (spec §4.2, end-to-end scenario 6).
func (s *selector) lowerConst(n *ir.Node) error {
	if fitsInt32(n.ConstValue) {
		// Left as metadata; operandFor re-reads n.ConstValue at every use
		// site, matching the teacher's "constants stay immediates until
		// used" style.
		return nil
	}

	w := width(n.Mode)
	vr := s.proc.VRegs.New()
	s.cur.Append(&lir.Instruction{
		Op:    lir.Mov,
		Defs:  []lir.Operand{lir.NewReg(vr, w)},
		Uses:  []lir.Operand{lir.NewImm(n.ConstValue, w)},
		Label: "64-bit immediate",
	})
	s.values[n] = vr
	return nil
}

func fitsInt32(v int64) bool {
	return v >= -(1<<31) && v < 1<<31
}

// operandFor returns n's value as a lir.Operand: an immediate for OpConst
// (or a register, if lowerConst had to materialise it because it exceeds
// the 32-bit immediate range), a register for everything else.
func (s *selector) operandFor(n *ir.Node) lir.Operand {
	if n.Op == ir.OpConst {
		if vr, ok := s.values[n]; ok {
			return lir.NewReg(vr, width(n.Mode))
		}
		return lir.NewImm(n.ConstValue, width(n.Mode))
	}
	return lir.NewReg(s.valueOf(n), width(n.Mode))
}

// lowerAddress materialises a function/label reference only at its use
// site (spec §4.2 "Address"): the node itself records nothing but its
// mangled symbol, resolved lazily by lowerCall.
func (s *selector) lowerAddress(n *ir.Node) error {
	return nil
}

// symbolFor mangles an Address node's logical label into the linker symbol
// a Call instruction should reference (spec §6).
func (s *selector) symbolFor(addr *ir.Node) string {
	switch addr.Label {
	case "main":
		return s.mangler.Entry()
	case "print_int":
		return s.mangler.PrintInt()
	case "calloc_impl":
		return s.mangler.CallocImpl()
	}
	if class, method, ok := splitQualified(addr.Label); ok {
		return s.mangler.Method(class, method)
	}
	return addr.Label
}

func splitQualified(label string) (class, member string, ok bool) {
	i := strings.IndexByte(label, '.')
	if i < 0 {
		return "", "", false
	}
	return label[:i], label[i+1:], true
}

// lowerLoad is a no-op: Load's result is ModeTuple (memory, value), so the
// actual read is deferred to lowerProj, which alone knows the real width of
// the value component (spec §4.2 "Load/Store": addressing mode is derived
// from the pointer operand, base = virtualRegisterOf(ptr), no index).
func (s *selector) lowerLoad(n *ir.Node) error {
	return nil
}

// lowerProj reads the requested component out of a tuple-mode producer.
// Index 0 is always the outgoing memory value, which this backend core
// does not track as a vreg (memory dependencies only order instructions,
// spec §3); index 1 is the real result, lowered here because only the Proj
// node itself carries its true Mode.
func (s *selector) lowerProj(n *ir.Node) error {
	of := n.Preds[0]
	if n.ProjIndex == 0 {
		return nil
	}

	switch of.Op {
	case ir.OpLoad:
		ptr := of.Preds[1]
		w := width(n.Mode)
		vr := s.proc.VRegs.New()
		s.cur.Append(&lir.Instruction{
			Op:   lir.Load,
			Defs: []lir.Operand{lir.NewReg(vr, w)},
			Uses: []lir.Operand{lir.NewMem(lir.Addressing{Base: s.valueOf(ptr)}, w)},
		})
		s.values[n] = vr
	case ir.OpCall:
		a := s.valueOf(of)
		w := width(n.Mode)
		vr := s.proc.VRegs.New()
		s.cur.Append(&lir.Instruction{
			Op:   lir.Mov,
			Defs: []lir.Operand{lir.NewReg(vr, w)},
			Uses: []lir.Operand{lir.NewReg(a, w)},
		})
		s.values[n] = vr
	case ir.OpStart:
		// Argument-tuple projections are lowered directly by lowerArg's
		// OpArg nodes; a bare Proj on Start carries no value of its own.
	default:
		return fmt.Errorf("select: Proj of unsupported producer %s on node %%%d", of.Op, n.Id())
	}
	return nil
}

// lowerStore implements the Store half: writes val to the address derived
// from ptr.
func (s *selector) lowerStore(n *ir.Node) error {
	ptr, val := n.Preds[1], n.Preds[2]
	w := width(val.Mode)

	s.cur.Append(&lir.Instruction{
		Op:   lir.Store,
		Defs: []lir.Operand{lir.NewMem(lir.Addressing{Base: s.valueOf(ptr)}, w)},
		Uses: []lir.Operand{s.operandFor(val)},
	})
	return nil
}
