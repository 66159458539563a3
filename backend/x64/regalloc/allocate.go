package regalloc

import (
	"fmt"
	"sort"

	"github.com/google/btree"

	"github.com/sherter/minijavac/backend/x64/lifetime"
	"github.com/sherter/minijavac/backend/x64/lir"
	"github.com/sherter/minijavac/backend/x64/regfile"
)

// unhandledItem is the btree element: ordered by (From, vreg id) so the
// worklist pop order is deterministic even when two intervals start at the
// same position (spec §4.4 "unhandled, ordered by increasing start
// position").
type unhandledItem struct {
	from lifetime.BlockPosition
	id   int
	iv   *lifetime.Interval
}

func less(a, b unhandledItem) bool {
	if a.from != b.from {
		return a.from < b.from
	}
	return a.id < b.id
}

// allocatable is the set of registers the allocator may hand out: every
// GPR except the stack and frame pointers, which never hold a virtual
// register's value, and the scratch register resolve reserves for
// Phi-cycle breaking (spec §4.5).
func allocatable(rf regfile.RegisterFile) []regfile.Register {
	var regs []regfile.Register
	sp, fp, scratch := rf.SP(), rf.FP(), rf.Scratch()
	for i := 0; i < rf.N(); i++ {
		r := rf.Get(i)
		if r.Id() == sp.Id() || r.Id() == fp.Id() || r.Id() == scratch.Id() {
			continue
		}
		regs = append(regs, r)
	}
	return regs
}

// state is the linear-scan allocator's working memory for one procedure.
type state struct {
	rf         regfile.RegisterFile
	regs       []regfile.Register
	fixed      map[int]*lifetime.FixedInterval
	slots      *lir.SlotSupply
	boundaries []lifetime.BlockPosition

	unhandled *btree.BTreeG[unhandledItem]
	active    []*lifetime.Interval
	inactive  []*lifetime.Interval

	loc    map[*lifetime.Interval]Location
	result []Assignment
}

// Allocate runs linear-scan register allocation over every interval in res,
// returning a Location for each original interval and every interval a
// split produced (spec §4.4).
func Allocate(res *lifetime.Result, slots *lir.SlotSupply, rf regfile.RegisterFile) (*Result, error) {
	s := &state{
		rf:         rf,
		regs:       allocatable(rf),
		fixed:      res.Fixed,
		slots:      slots,
		boundaries: res.BlockBoundaries(),
		unhandled:  btree.NewG(32, less),
		loc:        make(map[*lifetime.Interval]Location),
	}

	ids := make([]int, 0, len(res.Virtual))
	for id := range res.Virtual {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	for _, id := range ids {
		iv := res.Virtual[id]
		if len(iv.Ranges) == 0 {
			continue
		}
		s.push(iv)
	}

	for s.unhandled.Len() > 0 {
		item, _ := s.unhandled.DeleteMin()
		cur := item.iv
		pos := cur.From()

		s.active = retain(s.active, func(a *lifetime.Interval) bool {
			switch {
			case a.EndsBefore(pos):
				return false
			case !a.Covers(pos):
				s.inactive = append(s.inactive, a)
				return false
			default:
				return true
			}
		})
		s.inactive = retain(s.inactive, func(a *lifetime.Interval) bool {
			switch {
			case a.EndsBefore(pos):
				return false
			case a.Covers(pos):
				s.active = append(s.active, a)
				return false
			default:
				return true
			}
		})

		if reg := cur.VReg.Constraint; reg != nil {
			// A hard constraint is meant to pin a short-lived machine
			// temporary (idiv's A/D pair, a call argument register) inside
			// the block that needs it, never to carry a value across
			// control flow (spec §9 "constraints never reach over block
			// borders"). Rather than trust that invariant and assert on
			// it, defensively split cur at the first block boundary it
			// would otherwise stretch across and requeue the remainder,
			// so it re-enters this same check at its own from.
			if b, ok := firstBoundaryWithin(s.boundaries, cur.From(), cur.To()); ok {
				before, after := cur.SplitBefore(b)
				s.push(after)
				cur = before
			}
			if err := s.displaceForConstraint(cur, reg, pos); err != nil {
				return nil, err
			}
			s.loc[cur] = Location{Kind: LocationRegister, Reg: reg}
			s.active = append(s.active, cur)
			s.record(cur)
			continue
		}

		if !s.tryAllocateFreeReg(cur, pos) {
			if err := s.allocateBlockedReg(cur, pos); err != nil {
				return nil, err
			}
		}
		if loc, ok := s.loc[cur]; ok {
			s.record(cur)
			if loc.Kind == LocationRegister {
				s.active = append(s.active, cur)
			}
		}
	}

	for _, a := range s.result {
		if err := a.Location.validate(); err != nil {
			return nil, fmt.Errorf("regalloc: vreg %s: %w", a.Interval.VReg, err)
		}
	}
	return &Result{Assignments: s.result, Slots: s.slots}, nil
}

func (s *state) push(iv *lifetime.Interval) {
	s.unhandled.ReplaceOrInsert(unhandledItem{from: iv.From(), id: iv.VReg.ID, iv: iv})
}

func (s *state) record(iv *lifetime.Interval) {
	s.result = append(s.result, Assignment{Interval: iv, Location: s.loc[iv]})
}

func retain(ivs []*lifetime.Interval, keep func(*lifetime.Interval) bool) []*lifetime.Interval {
	out := ivs[:0]
	for _, iv := range ivs {
		if keep(iv) {
			out = append(out, iv)
		}
	}
	return out
}

// freeUntilPos reports, per allocatable register, the earliest position at
// or after from that register stops being free -- 0 if it is occupied
// right now, and a very large sentinel if it is free for the rest of the
// procedure (spec §4.4 "freeUntilPos").
func (s *state) freeUntilPos(from lifetime.BlockPosition, until lifetime.BlockPosition) map[int]lifetime.BlockPosition {
	const inf = lifetime.BlockPosition(1 << 30)
	free := make(map[int]lifetime.BlockPosition, len(s.regs))
	for _, r := range s.regs {
		free[r.Id()] = inf
	}

	consider := func(reg regfile.Register, iv *lifetime.Interval) {
		for _, r := range iv.Ranges {
			if r.To <= from || r.From >= until {
				continue
			}
			if r.From <= from {
				free[reg.Id()] = 0
			} else if r.From < free[reg.Id()] {
				free[reg.Id()] = r.From
			}
		}
	}

	for _, a := range s.active {
		if loc, ok := s.loc[a]; ok && loc.Kind == LocationRegister {
			free[loc.Reg.Id()] = 0
		}
	}
	for _, a := range s.inactive {
		if loc, ok := s.loc[a]; ok && loc.Kind == LocationRegister {
			consider(loc.Reg, a)
		}
	}
	for regID, fi := range s.fixed {
		reg := s.rf.Get(regID)
		consider(reg, &lifetime.Interval{Ranges: fi.Ranges})
	}
	return free
}

// tryAllocateFreeReg implements spec §4.4's "free register" step: pick the
// allocatable register free for the longest stretch covering cur, honoring
// cur's FromHints first when a hinted register happens to be free for
// cur's entire range (so resolve's peephole can drop the copy).
func (s *state) tryAllocateFreeReg(cur *lifetime.Interval, pos lifetime.BlockPosition) bool {
	free := s.freeUntilPos(pos, cur.To())

	if reg := pickHinted(cur.FromHints, free, cur.To()); reg != nil {
		s.loc[cur] = Location{Kind: LocationRegister, Reg: reg}
		return true
	}
	if reg := pickHinted(cur.ToHints, free, cur.To()); reg != nil {
		s.loc[cur] = Location{Kind: LocationRegister, Reg: reg}
		return true
	}

	var best regfile.Register
	var bestUntil lifetime.BlockPosition = -1
	for _, r := range s.regs {
		if u := free[r.Id()]; u > bestUntil {
			bestUntil, best = u, r
		}
	}
	if bestUntil <= pos {
		return false
	}
	if bestUntil < cur.To() {
		// Only part of cur fits before the register is reclaimed: split and
		// requeue the tail for a fresh allocation decision.
		before, after := cur.SplitBefore(bestUntil)
		s.loc[before] = Location{Kind: LocationRegister, Reg: best}
		s.record(before)
		s.active = append(s.active, before)
		s.push(after)
		return true
	}
	s.loc[cur] = Location{Kind: LocationRegister, Reg: best}
	return true
}

func pickHinted(hints []regfile.Register, free map[int]lifetime.BlockPosition, to lifetime.BlockPosition) regfile.Register {
	for _, h := range hints {
		if free[h.Id()] >= to {
			return h
		}
	}
	return nil
}

// allocateBlockedReg implements spec §4.4's "blocked register" step: every
// register is occupied somewhere inside cur's range, so either cur itself
// is spilled up to its first use that genuinely needs a register, or the
// active interval with the furthest next use is evicted to make room.
func (s *state) allocateBlockedReg(cur *lifetime.Interval, pos lifetime.BlockPosition) error {
	nextUse := make(map[int]lifetime.BlockPosition, len(s.regs))
	owner := make(map[int]*lifetime.Interval, len(s.regs))
	for _, r := range s.regs {
		nextUse[r.Id()] = lifetime.BlockPosition(1 << 30)
	}
	for _, a := range s.active {
		loc, ok := s.loc[a]
		if !ok || loc.Kind != LocationRegister {
			continue
		}
		if u := a.NextUseAfter(pos); u != nil {
			nextUse[loc.Reg.Id()] = u.Pos
		} else {
			nextUse[loc.Reg.Id()] = lifetime.BlockPosition(1 << 30)
		}
		owner[loc.Reg.Id()] = a
	}

	var best regfile.Register
	var bestUse lifetime.BlockPosition = -1
	for _, r := range s.regs {
		if fi, pinned := s.fixed[r.Id()]; pinned && coversAny(fi.Ranges, pos) {
			continue // truly unavailable right now, not just later in the procedure
		}
		if u := nextUse[r.Id()]; u > bestUse {
			bestUse, best = u, r
		}
	}
	if best == nil {
		return fmt.Errorf("regalloc: no allocatable register available, every one is hard-constrained at %v", pos)
	}

	firstNeed := cur.FirstUseNeedingRegister(pos)
	if firstNeed == nil {
		// cur never needs a register at all; a stack slot for its whole
		// range is strictly better than evicting someone for nothing.
		s.assignStackSlot(cur)
		return nil
	}
	if firstNeed.Pos > bestUse {
		// cur's own need comes later than the best candidate's next use
		// anyway, so evicting would buy nothing: spill cur itself instead.
		if firstNeed.Pos > pos {
			before, after := cur.SplitBefore(firstNeed.Pos)
			s.assignStackSlot(before)
			s.record(before)
			s.push(after)
			delete(s.loc, cur)
			return nil
		}
		s.assignStackSlot(cur)
		return nil
	}

	victim := owner[best.Id()]
	if victim != nil {
		before, after := victim.SplitBefore(pos)
		s.loc[before] = s.loc[victim]
		delete(s.loc, victim)
		s.record(before)
		s.active = retain(s.active, func(a *lifetime.Interval) bool { return a != victim })
		s.push(after)
	}
	s.loc[cur] = Location{Kind: LocationRegister, Reg: best}
	return nil
}

// firstBoundaryWithin reports the earliest block boundary strictly between
// from and to, if any.
func firstBoundaryWithin(boundaries []lifetime.BlockPosition, from, to lifetime.BlockPosition) (lifetime.BlockPosition, bool) {
	for _, b := range boundaries {
		if b > from && b < to {
			return b, true
		}
	}
	return 0, false
}

// overlaps reports whether a and b are live at any common position.
func overlaps(a, b *lifetime.Interval) bool {
	for _, ra := range a.Ranges {
		for _, rb := range b.Ranges {
			if ra.From < rb.To && rb.From < ra.To {
				return true
			}
		}
	}
	return false
}

// ownPositions returns the set of positions iv itself contributed to a
// FixedInterval while lifetime analysis walked its defs and uses -- exactly
// the positions registerConstraint recorded for iv's own Constraint, if any.
func ownPositions(iv *lifetime.Interval) map[lifetime.BlockPosition]bool {
	own := make(map[lifetime.BlockPosition]bool, len(iv.Uses))
	for _, u := range iv.Uses {
		own[u.Pos] = true
	}
	return own
}

// displaceForConstraint makes reg available for cur's entire range before
// the allocator commits to it: any active or inactive interval already
// holding reg that overlaps cur is forcibly evicted (spec.md:149, "if R is
// unavailable at current.from, the incumbent on R is forcibly displaced
// ... because the constraint is hard"), the same displacement
// allocateBlockedReg performs for a furthest-next-use eviction.
//
// s.fixed[reg.Id()] is consulted the same way freeUntilPos consults it for
// unconstrained intervals, but every one of cur's own def/use positions was
// itself recorded into that same FixedInterval when lifetime analysis first
// walked cur (registerConstraint), so a naive overlap test against the raw
// range list would always report a collision with cur's own windows.
// ownPositions filters those out first, leaving only windows a genuinely
// different constrained vreg contributed. A real collision there is not
// evictable -- it is another machine commitment, not a register
// allocation's choice -- and is reported as an error: two hard constraints
// wanting the same register at the same time is an instruction-selection
// bug, not something allocation can resolve.
func (s *state) displaceForConstraint(cur *lifetime.Interval, reg regfile.Register, pos lifetime.BlockPosition) error {
	if fi, ok := s.fixed[reg.Id()]; ok {
		own := ownPositions(cur)
		for _, r := range fi.Ranges {
			if own[r.From] {
				continue
			}
			if r.From < cur.To() && r.To > cur.From() {
				return fmt.Errorf("regalloc: vreg %s requires %s, which is already hard-committed over an overlapping range", cur.VReg, reg)
			}
		}
	}

	evictHolders := func(ivs []*lifetime.Interval) []*lifetime.Interval {
		return retain(ivs, func(a *lifetime.Interval) bool {
			loc, ok := s.loc[a]
			if !ok || loc.Kind != LocationRegister || loc.Reg.Id() != reg.Id() || !overlaps(cur, a) {
				return true
			}
			s.evict(a, pos)
			return false
		})
	}
	s.active = evictHolders(s.active)
	s.inactive = evictHolders(s.inactive)
	return nil
}

// evict splits victim at pos and requeues its tail for fresh allocation,
// the same displacement allocateBlockedReg performs when a furthest-next-use
// eviction frees a register for a new interval.
func (s *state) evict(victim *lifetime.Interval, pos lifetime.BlockPosition) {
	before, after := victim.SplitBefore(pos)
	s.loc[before] = s.loc[victim]
	delete(s.loc, victim)
	s.record(before)
	s.push(after)
}

func coversAny(ranges []lifetime.LiveRange, pos lifetime.BlockPosition) bool {
	for _, r := range ranges {
		if pos >= r.From && pos < r.To {
			return true
		}
	}
	return false
}

// assignStackSlot spills iv to the stack slot its root virtual register
// owns -- every split child of one root shares a slot (spec §4.4).
func (s *state) assignStackSlot(iv *lifetime.Interval) {
	slot := s.slots.Get(iv.Root.ID)
	s.loc[iv] = Location{Kind: LocationStack, Slot: slot}
}
