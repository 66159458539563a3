package lifetime

import (
	"sort"

	"github.com/sherter/minijavac/backend/x64/lir"
	"github.com/sherter/minijavac/backend/x64/regfile"
)

// Result is the outcome of Analyze: one Interval per virtual register that
// is ever live, plus one FixedInterval per physical register that is ever
// pinned by a hard constraint.
type Result struct {
	Virtual map[int]*Interval
	Fixed   map[int]*FixedInterval

	starts map[*lir.Block]BlockPosition
	ends   map[*lir.Block]BlockPosition
}

// BlockStart returns the BlockPosition the given block begins at.
func (r *Result) BlockStart(b *lir.Block) BlockPosition { return r.starts[b] }

// BlockEnd returns the BlockPosition immediately past the given block.
func (r *Result) BlockEnd(b *lir.Block) BlockPosition { return r.ends[b] }

// BlockBoundaries returns every block's start position, sorted ascending.
// regalloc uses this to keep a hard-constrained interval from stretching
// across a block it was never meant to survive into (spec §9).
func (r *Result) BlockBoundaries() []BlockPosition {
	out := make([]BlockPosition, 0, len(r.starts))
	for _, p := range r.starts {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Analyze computes lifetime intervals for every virtual and physical
// register proc's instructions touch, per spec §4.3:
//  1. a backward liveIn/liveOut fixed point, phi-aware (computeLiveSets);
//  2. a reverse per-block walk turning that liveness into LiveRanges and
//     UseSites, extending any value live across a whole block with no
//     local def/use so it doesn't fragment into spurious holes -- the
//     mechanism that in particular keeps a loop-carried value's interval
//     spanning the entire loop body, since the fixed point already made it
//     live-in/live-out of every block the loop contains;
//  3. hint propagation over every register-to-register Mov, so the
//     allocator prefers to place the two sides of a copy in the same
//     physical register and elide it (spec §3 "fromHints"/"toHints").
func Analyze(proc *lir.Procedure, rf regfile.RegisterFile) (*Result, error) {
	starts, ends := numberPositions(proc.Blocks)
	_, liveOut := computeLiveSets(proc)

	res := &Result{
		Virtual: make(map[int]*Interval),
		Fixed:   make(map[int]*FixedInterval),
		starts:  starts,
		ends:    ends,
	}

	get := func(vr lir.VReg) *Interval {
		iv, ok := res.Virtual[vr.ID]
		if !ok {
			iv = newInterval(vr)
			res.Virtual[vr.ID] = iv
		} else if iv.VReg.Constraint == nil && vr.Constraint != nil {
			iv.VReg.Constraint = vr.Constraint
		}
		return iv
	}

	for _, b := range proc.Blocks {
		blockStart, blockEnd := starts[b], ends[b]
		openEnd := make(map[int]BlockPosition, len(liveOut[b]))
		for id := range liveOut[b] {
			openEnd[id] = blockEnd
		}

		for k := len(b.Instructions) - 1; k >= 0; k-- {
			inst := b.Instructions[k]
			pos := instrPos(blockStart, k)
			usePos := pos - 1

			for _, d := range inst.Defs {
				if d.Kind != lir.Reg {
					continue
				}
				id := d.Reg.ID
				iv := get(d.Reg)
				if end, ok := openEnd[id]; ok {
					iv.addRange(pos, end)
				} else {
					iv.addRange(pos, pos+1)
				}
				iv.addUse(pos, false)
				delete(openEnd, id)
				registerConstraint(res, rf, d.Reg, pos)
			}

			for ui, u := range inst.Uses {
				mayBeMemory := inst.MayReplaceUse(ui)
				for _, id := range operandVRegIDs(u) {
					vr := vregFromOperand(u, id)
					iv := get(vr)
					if _, ok := openEnd[id]; !ok {
						openEnd[id] = usePos + 1
					}
					iv.addUse(usePos, mayBeMemory)
					registerConstraint(res, rf, vr, usePos)
				}
			}
		}

		for _, phi := range b.Phis {
			id := phi.Dest.ID
			iv := get(phi.Dest)
			if end, ok := openEnd[id]; ok {
				iv.addRange(blockStart, end)
			} else {
				iv.addRange(blockStart, blockStart+1)
			}
			delete(openEnd, id)
		}

		// Any id still open here is live-in to b with no local def: the
		// fixed point says so even though this block never touches it, so
		// give it a range spanning the block instead of leaving a hole.
		for id, end := range openEnd {
			get(lir.VReg{ID: id}).addRange(blockStart, end)
		}

		// Phi sources this block supplies to its successors are used at
		// the end of this block, on the edge -- not inside any instruction
		// (spec §4.3 step 2).
		for _, s := range b.Succs() {
			if s == nil {
				continue
			}
			for _, phi := range s.Phis {
				src, ok := phi.Sources[b]
				if !ok {
					continue
				}
				for _, id := range operandVRegIDs(src) {
					vr := vregFromOperand(src, id)
					iv := get(vr)
					pos := blockEnd - 1
					iv.addUse(pos, false)
					iv.addRange(pos, pos+1)
				}
			}
		}
	}

	for _, iv := range res.Virtual {
		iv.sortUses()
	}
	propagateHints(proc, res)

	return res, nil
}

// vregFromOperand recovers the full VReg (with its Constraint/Hint) that
// produced id within o, since operandVRegIDs only returns bare ids.
func vregFromOperand(o lir.Operand, id int) lir.VReg {
	switch o.Kind {
	case lir.Reg:
		return o.Reg
	case lir.Mem:
		if o.Mem.Base.ID == id {
			return o.Mem.Base
		}
		return o.Mem.Index
	default:
		return lir.VReg{ID: id}
	}
}

// registerConstraint records a FixedInterval entry when vr is hard-pinned
// to a physical register: the allocator must never place an unrelated
// virtual register there while vr occupies it (spec §4.4 "hard
// constraints").
func registerConstraint(res *Result, rf regfile.RegisterFile, vr lir.VReg, pos BlockPosition) {
	if vr.Constraint == nil {
		return
	}
	fi, ok := res.Fixed[vr.Constraint.Id()]
	if !ok {
		fi = &FixedInterval{Reg: vr.Constraint}
		res.Fixed[vr.Constraint.Id()] = fi
	}
	fi.Ranges = append(fi.Ranges, LiveRange{From: pos, To: pos + 1})
}

// propagateHints walks every Mov whose operands are both plain registers
// and records each side as a hint for the other: the destination's
// FromHints gets the source's preferred register (and vice versa for
// ToHints), so the allocator favors choices that let resolve's peephole
// drop the copy entirely (spec §4.6).
func propagateHints(proc *lir.Procedure, res *Result) {
	for _, b := range proc.Blocks {
		for _, inst := range b.Instructions {
			if inst.Op != lir.Mov || len(inst.Defs) != 1 || len(inst.Uses) != 1 {
				continue
			}
			d, u := inst.Defs[0], inst.Uses[0]
			if d.Kind != lir.Reg || u.Kind != lir.Reg {
				continue
			}
			dst, ok := res.Virtual[d.Reg.ID]
			if !ok {
				continue
			}
			src, ok := res.Virtual[u.Reg.ID]
			if !ok {
				continue
			}
			if dst.VReg.Constraint != nil {
				src.ToHints = appendHint(src.ToHints, dst.VReg.Constraint)
			}
			if src.VReg.Constraint != nil {
				dst.FromHints = appendHint(dst.FromHints, src.VReg.Constraint)
			}
			for _, h := range src.VReg.Hint {
				dst.FromHints = appendHint(dst.FromHints, h)
			}
			for _, h := range dst.VReg.Hint {
				src.ToHints = appendHint(src.ToHints, h)
			}
		}
	}
}

func appendHint(hints []regfile.Register, r regfile.Register) []regfile.Register {
	for _, h := range hints {
		if h.Id() == r.Id() {
			return hints
		}
	}
	return append(hints, r)
}
