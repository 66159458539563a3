package resolve

import (
	"fmt"

	"github.com/sherter/minijavac/backend/x64/lifetime"
	"github.com/sherter/minijavac/backend/x64/lir"
	"github.com/sherter/minijavac/backend/x64/regalloc"
	"github.com/sherter/minijavac/backend/x64/regfile"
)

// Resolve rewrites proc's instructions in place so every Operand names a
// physical register or a stack slot instead of a virtual register, splices
// in the moves an interval split or a Phi implies, and drops the now-dead
// mov-to-self copies a peephole pass can spot (spec §4.5).
func Resolve(proc *lir.Procedure, life *lifetime.Result, alloc *regalloc.Result, rf regfile.RegisterFile) error {
	tl := newTimeline(alloc)
	widths := collectWidths(proc)

	for _, b := range proc.Blocks {
		blockStart := life.BlockStart(b)
		for k, inst := range b.Instructions {
			pos := lifetime.InstrPos(blockStart, k)
			usePos := pos - 1
			for i := range inst.Defs {
				if err := rewriteOperand(&inst.Defs[i], tl, pos); err != nil {
					return fmt.Errorf("resolve: block %d instr %d: %w", b.Id(), k, err)
				}
			}
			for i := range inst.Uses {
				if err := rewriteOperand(&inst.Uses[i], tl, usePos); err != nil {
					return fmt.Errorf("resolve: block %d instr %d: %w", b.Id(), k, err)
				}
			}
		}
	}

	if err := insertSplitBoundaryMoves(proc, life, tl, widths); err != nil {
		return err
	}
	if err := resolveEdges(proc, life, tl, widths, rf); err != nil {
		return err
	}
	removeSelfMoves(proc)
	return nil
}

// rewriteOperand replaces o's virtual-register references with the
// physical Location the allocator assigned at pos. Imm operands and
// Frame-addressed Mem operands (incoming arguments and spill slots, which
// never go through register allocation) carry no vreg and pass through
// unchanged.
func rewriteOperand(o *lir.Operand, tl *timeline, pos lifetime.BlockPosition) error {
	switch o.Kind {
	case lir.Imm:
		return nil
	case lir.Reg:
		loc, ok := tl.at(o.Reg.ID, pos)
		if !ok {
			return fmt.Errorf("no allocation recorded for %s at %v", o.Reg, pos)
		}
		return assignLocation(o, loc)
	case lir.Mem:
		if o.Mem.Frame {
			return nil
		}
		if o.Mem.Base.ID != 0 {
			loc, ok := tl.at(o.Mem.Base.ID, pos)
			if !ok {
				return fmt.Errorf("no allocation recorded for base %s at %v", o.Mem.Base, pos)
			}
			if loc.Kind != regalloc.LocationRegister {
				return fmt.Errorf("base register %s spilled to stack at %v; select should never leave an address base memory-eligible", o.Mem.Base, pos)
			}
			o.Mem.Base = lir.VReg{ID: o.Mem.Base.ID, Constraint: loc.Reg}
		}
		if o.Mem.Index.ID != 0 {
			loc, ok := tl.at(o.Mem.Index.ID, pos)
			if !ok {
				return fmt.Errorf("no allocation recorded for index %s at %v", o.Mem.Index, pos)
			}
			if loc.Kind != regalloc.LocationRegister {
				return fmt.Errorf("index register %s spilled to stack at %v", o.Mem.Index, pos)
			}
			o.Mem.Index = lir.VReg{ID: o.Mem.Index.ID, Constraint: loc.Reg}
		}
		return nil
	default:
		return fmt.Errorf("operand has invalid kind")
	}
}

// assignLocation rewrites o, a Reg-kind operand, to hold loc: a physical
// register (still Kind Reg, carried via VReg.Constraint so Operand.String
// keeps working) or a stack slot (becomes a Frame-relative Mem operand).
func assignLocation(o *lir.Operand, loc regalloc.Location) error {
	switch loc.Kind {
	case regalloc.LocationRegister:
		o.Reg = lir.VReg{ID: o.Reg.ID, Constraint: loc.Reg}
	case regalloc.LocationStack:
		disp := loc.Slot.Offset()
		*o = lir.NewFrame(disp, o.Width)
	default:
		return fmt.Errorf("unassigned location")
	}
	return nil
}

// collectWidths records, for every vreg id the procedure ever names, the
// operand width it was emitted with -- split-boundary and edge-resolution
// moves need a width to build their own operands, and there is no interval
// data left to ask once an id has already been fully rewritten.
func collectWidths(proc *lir.Procedure) map[int]regfile.Width {
	widths := make(map[int]regfile.Width)
	record := func(o lir.Operand) {
		if o.Kind == lir.Reg {
			widths[o.Reg.ID] = o.Width
		}
	}
	for _, b := range proc.Blocks {
		for _, inst := range b.Instructions {
			for _, d := range inst.Defs {
				record(d)
			}
			for _, u := range inst.Uses {
				record(u)
			}
		}
		for _, phi := range b.Phis {
			widths[phi.Dest.ID] = widthOfPhi(phi)
		}
	}
	return widths
}

// widthOfPhi infers a Phi's operand width from whichever source happens to
// be a Reg or Imm operand; Phis always merge same-width values so the
// first one found determines it.
func widthOfPhi(phi *lir.Phi) regfile.Width {
	for _, src := range phi.Sources {
		if src.Kind == lir.Reg || src.Kind == lir.Imm {
			return src.Width
		}
	}
	return regfile.B32
}
