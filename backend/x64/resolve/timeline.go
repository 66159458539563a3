// Package resolve turns the virtual-register Instructions select and
// regalloc produced into a procedure that refers only to physical
// registers and stack slots: it rewrites every Operand in place, splices
// in a move wherever an interval's assigned Location changes -- inside a
// block at a split boundary, or across a control-flow edge -- and lowers
// every Phi into the moves its predecessor edges imply (spec §4.5).
// Grounded on the teacher's Block/Instruction String() convention for how
// moves print; the split/edge-resolution shape and the xchg-vs-scratch
// cycle-breaking policy are decided in SPEC_FULL.md §13 per spec §9's
// explicit "either is acceptable" latitude on cycle breaking.
package resolve

import (
	"sort"

	"github.com/sherter/minijavac/backend/x64/lifetime"
	"github.com/sherter/minijavac/backend/x64/regalloc"
)

// segment is one contiguous stretch of one interval's assigned Location,
// keyed by the vreg id the timeline is built for.
type segment struct {
	from, to lifetime.BlockPosition
	loc      regalloc.Location
}

// timeline indexes every regalloc assignment by vreg id, each id's
// segments sorted by From so resolve can look up "where is this
// value at position p" and walk adjacent segments to find split
// boundaries.
type timeline struct {
	byID map[int][]segment
}

func newTimeline(res *regalloc.Result) *timeline {
	t := &timeline{byID: make(map[int][]segment)}
	for _, a := range res.Assignments {
		id := a.Interval.VReg.ID
		for _, r := range a.Interval.Ranges {
			t.byID[id] = append(t.byID[id], segment{from: r.From, to: r.To, loc: a.Location})
		}
	}
	for id := range t.byID {
		segs := t.byID[id]
		sort.Slice(segs, func(i, j int) bool { return segs[i].from < segs[j].from })
		t.byID[id] = segs
	}
	return t
}

// at returns the Location assigned to id at pos.
func (t *timeline) at(id int, pos lifetime.BlockPosition) (regalloc.Location, bool) {
	for _, s := range t.byID[id] {
		if pos >= s.from && pos < s.to {
			return s.loc, true
		}
	}
	return regalloc.Location{}, false
}

// atEdgeEnd returns the Location id holds immediately before blockEnd --
// the position a value crossing out of a block on any edge occupies.
func (t *timeline) atEdgeEnd(id int, blockEnd lifetime.BlockPosition) (regalloc.Location, bool) {
	return t.at(id, blockEnd-1)
}

// atBlockStart returns the Location id holds at the very top of a block.
func (t *timeline) atBlockStart(id int, blockStart lifetime.BlockPosition) (regalloc.Location, bool) {
	return t.at(id, blockStart)
}

// boundaries reports every position within [from,to) where id's segments
// change Location from one stretch to the next, i.e. every interior split
// boundary -- the points where resolve must splice in a connecting move.
func (t *timeline) boundaries(id int, from, to lifetime.BlockPosition) []lifetime.BlockPosition {
	segs := t.byID[id]
	var out []lifetime.BlockPosition
	for i := 1; i < len(segs); i++ {
		prev, next := segs[i-1], segs[i]
		if prev.to != next.from {
			continue // not contiguous (a gap where id wasn't live at all)
		}
		if prev.to <= from || prev.to >= to {
			continue
		}
		if prev.loc == next.loc {
			continue
		}
		out = append(out, prev.to)
	}
	return out
}
