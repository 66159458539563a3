// Package regalloc assigns a physical register or a stack slot to every
// lifetime interval a lifetime.Analyze pass produced, via linear-scan
// register allocation (spec §4.4). Grounded on the four-set worklist shape
// of padeir0-millipascal's resalloc.go, generalized from that allocator's
// furthest-use two-set heuristic to the full unhandled/active/inactive/
// handled interval model spec §4.4 calls for, with
// github.com/google/btree ordering the unhandled worklist by (From, vreg
// id) the way the teacher's own worklists use ordered containers rather
// than repeatedly re-sorting a slice.
package regalloc

import (
	"fmt"

	"github.com/sherter/minijavac/backend/x64/lifetime"
	"github.com/sherter/minijavac/backend/x64/lir"
	"github.com/sherter/minijavac/backend/x64/regfile"
)

// ----------------------------
// ----- Type definitions -----
// ----------------------------

// LocationKind discriminates where an interval's value lives.
type LocationKind int

const (
	LocationInvalid LocationKind = iota
	LocationRegister
	LocationStack
)

// Location is where one interval's value is stored for the duration of its
// live ranges.
type Location struct {
	Kind LocationKind
	Reg  regfile.Register
	Slot lir.StackSlot
}

func (l Location) String() string {
	switch l.Kind {
	case LocationRegister:
		return l.Reg.String()
	case LocationStack:
		return l.Slot.String()
	default:
		return "<unassigned>"
	}
}

// Assignment pairs one (possibly split-child) interval with the location
// the allocator gave it.
type Assignment struct {
	Interval *lifetime.Interval
	Location Location
}

// Result is every interval regalloc produced -- parents and every split
// child -- each with its assigned Location, plus the stack-slot supply the
// procedure ended up using (resolve and the prologue/epilogue builder both
// need its final Len()).
type Result struct {
	Assignments []Assignment
	Slots       *lir.SlotSupply
}

// AssignmentAt returns the assignment whose interval covers pos, for a
// given root vreg id -- resolve uses this to find which physical location
// an interval-split value occupies at any instruction it's read at.
func (r *Result) AssignmentAt(rootID int, pos lifetime.BlockPosition) (Location, bool) {
	for _, a := range r.Assignments {
		if a.Interval.Root.ID == rootID && a.Interval.Covers(pos) {
			return a.Location, true
		}
	}
	return Location{}, false
}

func (l Location) validate() error {
	if l.Kind == LocationInvalid {
		return fmt.Errorf("regalloc: interval left unassigned")
	}
	return nil
}
