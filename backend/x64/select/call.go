package selector

import (
	"fmt"

	"github.com/sherter/minijavac/backend/x64/lir"
	"github.com/sherter/minijavac/backend/x64/regfile"
	"github.com/sherter/minijavac/ir"
)

// stackArgsFrame computes the byte size of the outgoing stack-argument
// region for nArgs beyond the six register arguments, rounded so the stack
// stays 16-byte aligned at the call instruction (spec §4.2 "Call" step 1).
func stackArgsFrame(nArgs, regArgs int) int32 {
	overflow := nArgs - regArgs
	if overflow <= 0 {
		return 0
	}
	size := int32(overflow * 8)
	if size%16 != 0 {
		size += 8
	}
	return size
}

// lowerCall implements the first three and last of the five-step Call
// lowering (spec §4.2): allocate the stack parameter region, split
// arguments between registers and the stack, emit the call with every
// argument vreg listed as a use, deallocate the parameter region. Step 4,
// the result copy out of A, is deferred to lowerProj: Call's own Mode is
// ModeTuple, so only a Proj on index 1 knows the real result width. Here
// the call always defines A; if nothing projects it out, it is simply dead.
func (s *selector) lowerCall(n *ir.Node) error {
	target := n.Preds[1]
	args := n.Preds[2:]
	argRegs := s.rf.ArgRegs()

	frameSize := stackArgsFrame(len(args), len(argRegs))
	uses := make([]lir.Operand, 0, len(args))

	for i, a := range args {
		if i < len(argRegs) {
			vr := s.proc.VRegs.NewConstrained(argRegs[i])
			s.cur.Append(&lir.Instruction{
				Op:   lir.Mov,
				Defs: []lir.Operand{lir.NewReg(vr, width(a.Mode))},
				Uses: []lir.Operand{s.operandFor(a)},
			})
			uses = append(uses, lir.NewReg(vr, width(a.Mode)))
			continue
		}
		disp := int32(8 * (i - len(argRegs)))
		s.cur.Append(&lir.Instruction{
			Op:   lir.Store,
			Defs: []lir.Operand{lir.NewMem(lir.Addressing{Frame: true, Disp: disp}, width(a.Mode))},
			Uses: []lir.Operand{s.operandFor(a)},
		})
	}

	result := s.proc.VRegs.NewConstrained(s.rf.ReturnReg())
	s.cur.Append(&lir.Instruction{
		Op:     lir.Call,
		Defs:   []lir.Operand{lir.NewReg(result, regfile.B64)},
		Uses:   uses,
		Target: s.symbolFor(target),
		Label:  fmt.Sprintf("frame=%d", frameSize),
	})
	s.values[n] = result
	return nil
}
