package resolve

import (
	"fmt"

	"github.com/sherter/minijavac/backend/x64/lir"
	"github.com/sherter/minijavac/backend/x64/regalloc"
	"github.com/sherter/minijavac/backend/x64/regfile"
)

// resolveParallelMoves sequentializes a set of simultaneous dst<-src
// assignments into an order-dependent list of plain movs, breaking any
// cyclic permutation a Phi merge or a pair of crossing splits can produce
// (spec §9's 3-cycle scenario; decision recorded in SPEC_FULL.md §13: a
// 2-element register swap becomes one xchg, anything longer stages through
// the scratch register).
func resolveParallelMoves(moves []edgeMove, scratch regfile.Register) []*lir.Instruction {
	pending := make([]edgeMove, 0, len(moves))
	for _, m := range moves {
		if locKey(m.from) != locKey(m.to) {
			pending = append(pending, m)
		}
	}

	var out []*lir.Instruction
	for len(pending) > 0 {
		usedAsSrc := make(map[string]bool, len(pending))
		for _, m := range pending {
			usedAsSrc[locKey(m.from)] = true
		}

		var next []edgeMove
		progressed := false
		for _, m := range pending {
			if usedAsSrc[locKey(m.to)] {
				next = append(next, m)
				continue
			}
			out = append(out, moveInstruction(operandForLocation(m.to, m.width), operandForLocation(m.from, m.width)))
			progressed = true
		}
		pending = next
		if progressed {
			continue
		}

		// Every remaining move's destination is someone else's source:
		// pending is now a union of disjoint cycles. Break one per pass.
		out = append(out, breakOneCycle(&pending, scratch)...)
	}
	return out
}

// breakOneCycle removes one full cycle from pending (mutating it) and
// returns the instructions that implement it.
func breakOneCycle(pending *[]edgeMove, scratch regfile.Register) []*lir.Instruction {
	// byTo[L] is the move that overwrites L -- the move safe to run right
	// after whatever currently reads L as its source, since L's original
	// value will have just been consumed.
	byTo := make(map[string]int, len(*pending))
	for i, m := range *pending {
		byTo[locKey(m.to)] = i
	}

	start := (*pending)[0]
	var chain []edgeMove
	cur := start
	visited := map[string]bool{}
	for {
		chain = append(chain, cur)
		visited[locKey(cur.to)] = true
		nextIdx, ok := byTo[locKey(cur.from)]
		if !ok {
			break // shouldn't happen once stuck, but fall back to a plain chain
		}
		next := (*pending)[nextIdx]
		if visited[locKey(next.to)] {
			break
		}
		cur = next
	}

	var remaining []edgeMove
	for _, m := range *pending {
		if !visited[locKey(m.to)] {
			remaining = append(remaining, m)
		}
	}
	*pending = remaining

	if len(chain) == 2 && chain[0].from.Kind == regalloc.LocationRegister && chain[1].from.Kind == regalloc.LocationRegister &&
		locKey(chain[0].to) == locKey(chain[1].from) && locKey(chain[1].to) == locKey(chain[0].from) {
		return []*lir.Instruction{{
			Op:   lir.Xchg,
			Defs: []lir.Operand{operandForLocation(chain[0].to, chain[0].width), operandForLocation(chain[1].to, chain[1].width)},
			Uses: []lir.Operand{operandForLocation(chain[0].from, chain[0].width), operandForLocation(chain[1].from, chain[1].width)},
		}}
	}

	var out []*lir.Instruction
	first := chain[0]
	scratchOp := lir.NewReg(lir.VReg{Constraint: scratch}, first.width)
	out = append(out, moveInstruction(scratchOp, operandForLocation(first.to, first.width)))
	for i, m := range chain {
		src := operandForLocation(m.from, m.width)
		if i == len(chain)-1 {
			src = lir.NewReg(lir.VReg{Constraint: scratch}, m.width)
		}
		out = append(out, moveInstruction(operandForLocation(m.to, m.width), src))
	}
	return out
}

func locKey(l regalloc.Location) string {
	switch l.Kind {
	case regalloc.LocationRegister:
		return fmt.Sprintf("r%d", l.Reg.Id())
	case regalloc.LocationStack:
		return fmt.Sprintf("s%d", l.Slot.Index)
	default:
		return "?"
	}
}
