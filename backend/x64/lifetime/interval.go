package lifetime

import (
	"sort"

	"github.com/sherter/minijavac/backend/x64/lir"
	"github.com/sherter/minijavac/backend/x64/regfile"
)

// ----------------------------
// ----- Type definitions -----
// ----------------------------

// LiveRange is a half-open span [From, To) during which a value is live.
// An interval's ranges hold at most one entry per block; holes between
// ranges fall on block boundaries (spec §4.3 invariant).
type LiveRange struct {
	From, To BlockPosition
}

// UseSite is a single read of a virtual register, at an odd BlockPosition
// (spec §3 "Use site").
type UseSite struct {
	Pos                   BlockPosition
	MayBeReplacedByMemory bool
}

// Interval is the lifetime of one virtual register (or one split child of
// it): the ranges it is live over and the use sites within them.
type Interval struct {
	VReg lir.VReg

	// Root is the VReg this interval (or its ancestor, across splits)
	// was originally issued for -- used to key spill-slot assignment so
	// every split child of one value shares a slot (spec §4.4).
	Root lir.VReg

	Ranges []LiveRange
	Uses   []UseSite

	FromHints []regfile.Register
	ToHints   []regfile.Register
}

// FixedInterval is the lifetime of a physical register's hard commitments:
// call-clobbered windows, divide/shift operand windows, and so on. It is
// never itself allocatable.
type FixedInterval struct {
	Reg    regfile.Register
	Ranges []LiveRange
}

// ---------------------
// ----- Functions -----
// ---------------------

// newInterval returns an empty interval for vr, its own root.
func newInterval(vr lir.VReg) *Interval {
	return &Interval{VReg: vr, Root: vr}
}

// From returns the interval's earliest live position, or -1 if it has no
// ranges yet.
func (iv *Interval) From() BlockPosition {
	if len(iv.Ranges) == 0 {
		return -1
	}
	m := iv.Ranges[0].From
	for _, r := range iv.Ranges[1:] {
		if r.From < m {
			m = r.From
		}
	}
	return m
}

// To returns the interval's latest live position.
func (iv *Interval) To() BlockPosition {
	var m BlockPosition
	for i, r := range iv.Ranges {
		if i == 0 || r.To > m {
			m = r.To
		}
	}
	return m
}

// addRange inserts [from, to) into the interval's range set, merging with
// an existing range in the same block if one is open (blocks are walked in
// order and each block's instructions in reverse, so merges only ever
// extend the most-recently-added range).
func (iv *Interval) addRange(from, to BlockPosition) {
	if len(iv.Ranges) > 0 {
		last := &iv.Ranges[len(iv.Ranges)-1]
		if from <= last.To && to >= last.From {
			if from < last.From {
				last.From = from
			}
			if to > last.To {
				last.To = to
			}
			return
		}
	}
	iv.Ranges = append(iv.Ranges, LiveRange{From: from, To: to})
}

// addUse records a use site. Callers add uses in no particular Pos order;
// sortUses puts Uses in ascending order at the end of analysis.
func (iv *Interval) addUse(pos BlockPosition, mayBeMemory bool) {
	iv.Uses = append(iv.Uses, UseSite{Pos: pos, MayBeReplacedByMemory: mayBeMemory})
}

// sortUses orders Uses ascending by Pos; called once per interval after
// the reverse walk that builds it.
func (iv *Interval) sortUses() {
	sort.Slice(iv.Uses, func(i, j int) bool { return iv.Uses[i].Pos < iv.Uses[j].Pos })
}
