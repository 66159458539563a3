package resolve

import "github.com/sherter/minijavac/backend/x64/lir"

// removeSelfMoves drops every mov whose destination and source now name
// the same physical register or stack slot -- split-boundary and
// edge-resolution moves routinely produce these once two adjacent
// intervals of the same value happen to land in the same Location (spec
// §4.5, §4.6 "peephole").
func removeSelfMoves(proc *lir.Procedure) {
	for _, b := range proc.Blocks {
		kept := b.Instructions[:0]
		for _, inst := range b.Instructions {
			if isSelfMove(inst) {
				continue
			}
			kept = append(kept, inst)
		}
		b.Instructions = kept
	}
}

func isSelfMove(inst *lir.Instruction) bool {
	if inst.Op != lir.Mov || len(inst.Defs) != 1 || len(inst.Uses) != 1 {
		return false
	}
	d, u := inst.Defs[0], inst.Uses[0]
	if d.Kind != u.Kind {
		return false
	}
	switch d.Kind {
	case lir.Reg:
		return d.Reg.Constraint != nil && u.Reg.Constraint != nil && d.Reg.Constraint.Id() == u.Reg.Constraint.Id()
	case lir.Mem:
		return d.Mem.Frame && u.Mem.Frame && d.Mem.Disp == u.Mem.Disp
	default:
		return false
	}
}
