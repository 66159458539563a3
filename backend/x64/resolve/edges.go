package resolve

import (
	"fmt"

	"github.com/sherter/minijavac/backend/x64/lifetime"
	"github.com/sherter/minijavac/backend/x64/lir"
	"github.com/sherter/minijavac/backend/x64/regalloc"
	"github.com/sherter/minijavac/backend/x64/regfile"
)

// resolveEdges lowers every Phi into the moves its predecessor edges imply,
// and additionally moves any plain (non-Phi) value whose assigned Location
// changes exactly at a block boundary -- both are spliced into the
// predecessor right before its terminator (or, on an arm of a branch, into a
// new block split onto that edge), as one parallel-move problem
// per edge so a cyclic permutation of registers (spec §9's 3-cycle
// scenario) is broken correctly instead of clobbered by naive sequential
// movs (spec §4.5, Open Question resolved in SPEC_FULL.md §13).
func resolveEdges(proc *lir.Procedure, life *lifetime.Result, tl *timeline, widths map[int]regfile.Width, rf regfile.RegisterFile) error {
	// Snapshot the block list before the loop: splitting a critical edge
	// appends a new block to proc.Blocks, which must not also be visited
	// as a predecessor by this same pass.
	preds := make([]*lir.Block, len(proc.Blocks))
	copy(preds, proc.Blocks)

	for _, b := range preds {
		for i, s := range b.Succs() {
			if s == nil {
				continue
			}
			moves, immediates, err := edgeMoves(b, s, life, tl, widths)
			if err != nil {
				return fmt.Errorf("resolve: edge block%d->block%d: %w", b.Id(), s.Id(), err)
			}
			insts := resolveParallelMoves(moves, rf.Scratch())
			for _, im := range immediates {
				insts = append(insts, moveInstruction(operandForLocation(im.to, im.width), lir.NewImm(im.imm, im.width)))
			}
			if len(insts) == 0 {
				continue
			}
			if b.Exit.Kind == lir.ExitBranch {
				splitCriticalEdge(proc, b, i, insts)
			} else {
				insertBeforeTerminator(b, insts)
			}
		}
	}
	for _, b := range proc.Blocks {
		b.Phis = nil
	}
	return nil
}

// splitCriticalEdge inserts a fresh block carrying insts on the i'th arm
// of a branch (0 = True, 1 = False) and retargets that arm to it, so the
// moves for one successor never execute on the path to the other (spec
// §4.5 -- a branch's two arms cannot share a single unconditional tail).
func splitCriticalEdge(proc *lir.Procedure, pred *lir.Block, arm int, insts []*lir.Instruction) {
	mid := proc.CreateBlock()
	mid.Instructions = insts
	if arm == 0 {
		mid.SetJump(pred.Exit.True)
		pred.Exit.True = mid
	} else {
		mid.SetJump(pred.Exit.False)
		pred.Exit.False = mid
	}
}

// edgeMove is one parallel assignment dst <- src to resolve on a single
// control-flow edge.
type edgeMove struct {
	from, to regalloc.Location
	width    regfile.Width
}

// immediateMove is an edge move whose source is a compile-time constant:
// it can never participate in a register cycle, so it is emitted directly
// rather than fed through the permutation solver.
type immediateMove struct {
	to    regalloc.Location
	imm   int64
	width regfile.Width
}

// edgeMoves collects every value transfer the edge pred->succ implies:
// one per Phi succ carries for pred, plus one for every plain vreg whose
// Location differs between the end of pred and the start of succ.
func edgeMoves(pred, succ *lir.Block, life *lifetime.Result, tl *timeline, widths map[int]regfile.Width) ([]edgeMove, []immediateMove, error) {
	predEnd := life.BlockEnd(pred) - 1
	succStart := life.BlockStart(succ)

	var moves []edgeMove
	var immediates []immediateMove

	phiDests := make(map[int]bool)
	for _, phi := range succ.Phis {
		phiDests[phi.Dest.ID] = true
		src, ok := phi.Sources[pred]
		if !ok {
			return nil, nil, fmt.Errorf("phi for %s has no source from block%d", phi.Dest, pred.Id())
		}
		dstLoc, ok := tl.at(phi.Dest.ID, succStart)
		if !ok {
			return nil, nil, fmt.Errorf("no allocation recorded for phi dest %s", phi.Dest)
		}
		w := widths[phi.Dest.ID]
		switch src.Kind {
		case lir.Imm:
			immediates = append(immediates, immediateMove{to: dstLoc, imm: src.Imm, width: w})
		case lir.Reg:
			srcLoc, ok := tl.at(src.Reg.ID, predEnd)
			if !ok {
				return nil, nil, fmt.Errorf("no allocation recorded for phi source %s at block%d's end", src.Reg, pred.Id())
			}
			moves = append(moves, edgeMove{from: srcLoc, to: dstLoc, width: w})
		default:
			return nil, nil, fmt.Errorf("phi source has unexpected operand kind")
		}
	}

	for id := range widths {
		if phiDests[id] {
			continue
		}
		fromLoc, ok := tl.at(id, predEnd)
		if !ok {
			continue
		}
		toLoc, ok := tl.at(id, succStart)
		if !ok {
			continue
		}
		if fromLoc == toLoc {
			continue
		}
		moves = append(moves, edgeMove{from: fromLoc, to: toLoc, width: widths[id]})
	}

	return moves, immediates, nil
}

// insertBeforeTerminator appends insts to the tail of an ExitJump
// predecessor's instruction list: there is no terminator instruction
// object to dodge (the jmp itself lives on Block.Exit), so the moves
// simply become the new last thing the block does before falling into its
// one successor. Branch predecessors never reach here -- their two arms
// are resolved by splitting the critical edge instead (splitCriticalEdge),
// since they cannot share a single unconditional tail.
func insertBeforeTerminator(pred *lir.Block, insts []*lir.Instruction) {
	for _, inst := range insts {
		pred.Append(inst)
	}
}
