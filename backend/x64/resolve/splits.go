package resolve

import (
	"sort"

	"github.com/sherter/minijavac/backend/x64/lifetime"
	"github.com/sherter/minijavac/backend/x64/lir"
	"github.com/sherter/minijavac/backend/x64/regalloc"
	"github.com/sherter/minijavac/backend/x64/regfile"
)

// insertSplitBoundaryMoves handles the case regalloc.tryAllocateFreeReg and
// allocateBlockedReg both produce when a split point falls strictly inside
// a block rather than on a block edge: the value must be copied from its
// old Location to its new one right at that position (spec §4.4 "split
// before", §4.5).
func insertSplitBoundaryMoves(proc *lir.Procedure, life *lifetime.Result, tl *timeline, widths map[int]regfile.Width) error {
	for _, b := range proc.Blocks {
		blockStart, blockEnd := life.BlockStart(b), life.BlockEnd(b)

		type boundary struct {
			pos      lifetime.BlockPosition
			id       int
			from, to regalloc.Location
		}
		var found []boundary
		for id := range widths {
			for _, bp := range tl.boundaries(id, blockStart, blockEnd) {
				before, ok1 := tl.at(id, bp-1)
				after, ok2 := tl.at(id, bp)
				if !ok1 || !ok2 {
					continue
				}
				found = append(found, boundary{pos: bp, id: id, from: before, to: after})
			}
		}
		if len(found) == 0 {
			continue
		}

		// Insert from the end of the block backward so earlier insertion
		// indices computed against the original instruction count stay
		// valid as the list grows.
		sort.Slice(found, func(i, j int) bool {
			return found[i].pos < found[j].pos || (found[i].pos == found[j].pos && found[i].id < found[j].id)
		})
		for i := len(found) - 1; i >= 0; i-- {
			f := found[i]
			idx := insertionIndex(b, blockStart, f.pos)
			w := widths[f.id]
			b.InsertBefore(idx, moveInstruction(operandForLocation(f.to, w), operandForLocation(f.from, w)))
		}
	}
	return nil
}

// insertionIndex returns the instruction index to insert a move at pos
// before: the first instruction whose own def position lies strictly after
// pos, so the move executes exactly between the instructions its boundary
// falls between.
func insertionIndex(b *lir.Block, blockStart lifetime.BlockPosition, pos lifetime.BlockPosition) int {
	for k := range b.Instructions {
		if lifetime.InstrPos(blockStart, k) > pos {
			return k
		}
	}
	return len(b.Instructions)
}

// operandForLocation builds the Operand resolve should read from or write
// to for loc at width w.
func operandForLocation(loc regalloc.Location, w regfile.Width) lir.Operand {
	switch loc.Kind {
	case regalloc.LocationRegister:
		return lir.NewReg(lir.VReg{Constraint: loc.Reg}, w)
	case regalloc.LocationStack:
		return lir.NewFrame(loc.Slot.Offset(), w)
	default:
		panic("resolve: move operand for an unassigned location")
	}
}

// moveInstruction builds a plain register/memory move; callers never
// target two memory operands at once since a stack-to-stack copy never
// arises here (every split or edge-crossing value keeps exactly one side
// in a register at a time, the allocator's shared-slot convention aside).
func moveInstruction(dst, src lir.Operand) *lir.Instruction {
	return &lir.Instruction{Op: lir.Mov, Defs: []lir.Operand{dst}, Uses: []lir.Operand{src}}
}
