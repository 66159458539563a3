package lifetime

import (
	"github.com/sherter/minijavac/backend/x64/lir"
)

// vregSet is a small set of virtual register ids, keyed by VReg.ID -- VReg
// itself is not comparable (it carries a Hint slice), so every set and map
// in this package is keyed by the id integer instead.
type vregSet map[int]bool

func (s vregSet) clone() vregSet {
	c := make(vregSet, len(s))
	for id := range s {
		c[id] = true
	}
	return c
}

func (s vregSet) union(other vregSet) {
	for id := range other {
		s[id] = true
	}
}

// defUse holds the vreg ids a block defines and upward-exposes, computed
// once and reused by every fixed-point iteration.
type defUse struct {
	def vregSet // instruction defs plus phi destinations
	use vregSet // uses not preceded by a def earlier in the same block
}

// computeDefUse scans b once, classifying every vreg id it touches.
func computeDefUse(b *lir.Block) defUse {
	du := defUse{def: vregSet{}, use: vregSet{}}
	for _, inst := range b.Instructions {
		for _, u := range inst.Uses {
			for _, id := range operandVRegIDs(u) {
				if !du.def[id] {
					du.use[id] = true
				}
			}
		}
		for _, d := range inst.Defs {
			if d.Kind == lir.Reg {
				du.def[d.Reg.ID] = true
			}
		}
	}
	for _, phi := range b.Phis {
		du.def[phi.Dest.ID] = true
	}
	return du
}

// operandVRegIDs returns the vreg ids an operand reads: itself if it is a
// register operand, or its base/index if it is a non-frame memory operand.
func operandVRegIDs(o lir.Operand) []int {
	switch o.Kind {
	case lir.Reg:
		return []int{o.Reg.ID}
	case lir.Mem:
		if o.Mem.Frame {
			return nil
		}
		var ids []int
		if o.Mem.Base.ID != 0 {
			ids = append(ids, o.Mem.Base.ID)
		}
		if o.Mem.Index.ID != 0 {
			ids = append(ids, o.Mem.Index.ID)
		}
		return ids
	default:
		return nil
	}
}

// phiDests returns the vreg ids b's phis define.
func phiDests(b *lir.Block) vregSet {
	s := vregSet{}
	for _, phi := range b.Phis {
		s[phi.Dest.ID] = true
	}
	return s
}

// computeLiveSets runs the standard backward dataflow fixed point over
// proc's blocks: liveOut(b) is the union, over b's successors s, of
// liveIn(s) with s's phi destinations replaced by the operand s's phi
// receives from b specifically (spec §4.3 step 1, "Phi-argument-aware
// liveness"). Loops make this a genuine fixed point, not a single pass:
// back edges feed liveOut(b) from a liveIn(header) that is itself still
// being refined.
func computeLiveSets(proc *lir.Procedure) (liveIn, liveOut map[*lir.Block]vregSet) {
	liveIn = make(map[*lir.Block]vregSet, len(proc.Blocks))
	liveOut = make(map[*lir.Block]vregSet, len(proc.Blocks))
	du := make(map[*lir.Block]defUse, len(proc.Blocks))
	for _, b := range proc.Blocks {
		liveIn[b] = vregSet{}
		liveOut[b] = vregSet{}
		du[b] = computeDefUse(b)
	}

	for changed := true; changed; {
		changed = false
		for i := len(proc.Blocks) - 1; i >= 0; i-- {
			b := proc.Blocks[i]
			out := vregSet{}
			for _, s := range b.Succs() {
				if s == nil {
					continue
				}
				dests := phiDests(s)
				for id := range liveIn[s] {
					if !dests[id] {
						out[id] = true
					}
				}
				for _, phi := range s.Phis {
					if src, ok := phi.Sources[b]; ok {
						for _, id := range operandVRegIDs(src) {
							out[id] = true
						}
					}
				}
			}

			in := du[b].use.clone()
			for id := range out {
				if !du[b].def[id] {
					in[id] = true
				}
			}

			if !setsEqual(in, liveIn[b]) || !setsEqual(out, liveOut[b]) {
				liveIn[b] = in
				liveOut[b] = out
				changed = true
			}
		}
	}
	return liveIn, liveOut
}

func setsEqual(a, b vregSet) bool {
	if len(a) != len(b) {
		return false
	}
	for id := range a {
		if !b[id] {
			return false
		}
	}
	return true
}
