package selector

import (
	"fmt"

	"github.com/sherter/minijavac/backend/x64/lir"
	"github.com/sherter/minijavac/backend/x64/regfile"
	"github.com/sherter/minijavac/ir"
)

// relation converts an ir.Relation to its lir counterpart; the two enums
// are kept separate so lir has no dependency on ir (select is the seam
// between them, spec §4.2).
func relation(r ir.Relation) lir.Relation {
	switch r {
	case ir.RelEq:
		return lir.RelEq
	case ir.RelNe:
		return lir.RelNe
	case ir.RelLt:
		return lir.RelLt
	case ir.RelLe:
		return lir.RelLe
	case ir.RelGt:
		return lir.RelGt
	case ir.RelGe:
		return lir.RelGe
	default:
		panic("select: invalid relation " + r.String())
	}
}

// lowerReturn implements the Return rule: copy the return value into a
// vreg constrained to A, then append the ret; wireExit only marks the block
// as a return exit (spec §4.2 "Return").
func (s *selector) lowerReturn(n *ir.Node) error {
	if len(n.Preds) < 2 {
		s.cur.Append(&lir.Instruction{Op: lir.Ret})
		return nil
	}
	value := n.Preds[1]
	w := width(value.Mode)

	result := s.proc.VRegs.NewConstrained(s.returnRegFor())
	s.cur.Append(&lir.Instruction{
		Op:   lir.Mov,
		Defs: []lir.Operand{lir.NewReg(result, w)},
		Uses: []lir.Operand{s.operandFor(value)},
	})
	s.cur.Append(&lir.Instruction{Op: lir.Ret})
	return nil
}

func (s *selector) returnRegFor() regfile.Register {
	return s.rf.ReturnReg()
}

// terminator returns the last control node of b, if any (Cond or Return).
func terminator(b *ir.Block) *ir.Node {
	for i := len(b.Nodes) - 1; i >= 0; i-- {
		switch b.Nodes[i].Op {
		case ir.OpCond, ir.OpReturn:
			return b.Nodes[i]
		}
	}
	return nil
}

// wireExit sets the lir.Block's Exit to match b's control-flow shape: a
// two-way branch for a block ending in Cond, a return for one ending in
// Return, or an unconditional jump for a block that simply falls into its
// single successor.
func (s *selector) wireExit(b *ir.Block) error {
	lb := s.blocks[b]
	term := terminator(b)

	switch {
	case term != nil && term.Op == ir.OpReturn:
		lb.SetReturn()
		return nil
	case term != nil && term.Op == ir.OpCond:
		if len(b.Succs) != 2 {
			return fmt.Errorf("select: block %d ends in Cond but has %d successors", b.Id(), len(b.Succs))
		}
		cmp := term.Preds[0]
		s.cur = lb
		s.cur.Append(&lir.Instruction{
			Op:   lir.Cmp,
			Uses: []lir.Operand{s.operandFor(cmp.Preds[0]), s.operandFor(cmp.Preds[1])},
		})
		lb.SetBranch(relation(cmp.Rel), s.blocks[b.Succs[0]], s.blocks[b.Succs[1]])
		return nil
	case len(b.Succs) == 1:
		lb.SetJump(s.blocks[b.Succs[0]])
		return nil
	case len(b.Succs) == 0:
		return fmt.Errorf("select: block %d has no terminator and no successor", b.Id())
	default:
		return fmt.Errorf("select: block %d has %d successors but no branch terminator", b.Id(), len(b.Succs))
	}
}

// wirePhis fills in each lir.Phi's predecessor -> operand map now that
// every block's values have been lowered (a back-edge's source may be
// defined in a block visited after the Phi's own block).
func (s *selector) wirePhis(b *ir.Block) error {
	lb := s.blocks[b]
	for i, phi := range b.Phis {
		lphi := lb.Phis[i]
		if len(phi.Sources) != len(b.Preds) {
			return fmt.Errorf("select: phi in block %d has %d sources for %d predecessors", b.Id(), len(phi.Sources), len(b.Preds))
		}
		for j, pred := range b.Preds {
			src := phi.Sources[j]
			lphi.SetSource(s.blocks[pred], s.operandFor(src))
		}
	}
	return nil
}
