package lifetime

// FirstUse returns the interval's earliest use site, or nil if it has none
// (possible for a dead def that is never read).
func (iv *Interval) FirstUse() *UseSite {
	if len(iv.Uses) == 0 {
		return nil
	}
	return &iv.Uses[0]
}

// NextUseAfter returns the earliest use site at or after pos, or nil if the
// interval is not used again.
func (iv *Interval) NextUseAfter(pos BlockPosition) *UseSite {
	for i := range iv.Uses {
		if iv.Uses[i].Pos >= pos {
			return &iv.Uses[i]
		}
	}
	return nil
}

// FirstUseNeedingRegister returns the earliest use site at or after pos
// that cannot be satisfied by a memory operand -- the position spilling
// must not push past (spec §4.4's "firstUseNeedingRegister" heuristic).
func (iv *Interval) FirstUseNeedingRegister(pos BlockPosition) *UseSite {
	for i := range iv.Uses {
		if iv.Uses[i].Pos >= pos && !iv.Uses[i].MayBeReplacedByMemory {
			return &iv.Uses[i]
		}
	}
	return nil
}

// Covers reports whether the interval is live at pos: contained in one of
// its ranges under the half-open [From, To) convention.
func (iv *Interval) Covers(pos BlockPosition) bool {
	for _, r := range iv.Ranges {
		if pos >= r.From && pos < r.To {
			return true
		}
	}
	return false
}

// EndsBefore reports whether the interval's last live position is strictly
// before pos.
func (iv *Interval) EndsBefore(pos BlockPosition) bool {
	return iv.To() <= pos
}

// SplitBefore divides the interval at pos into two: before covers
// everything up to pos, after covers pos onward. Both share the same Root
// and VReg identity (the allocator assigns the after-half a fresh physical
// location; resolve inserts the connecting move). Splitting and then
// conceptually rejoining the two halves reproduces the original interval's
// ranges and uses exactly, partitioned by pos.
//
// pos must fall strictly between the interval's From and To, otherwise the
// split would produce an empty half; callers are expected to have checked
// this via Covers/EndsBefore first.
func (iv *Interval) SplitBefore(pos BlockPosition) (before, after *Interval) {
	before = &Interval{VReg: iv.VReg, Root: iv.Root}
	after = &Interval{VReg: iv.VReg, Root: iv.Root}

	for _, r := range iv.Ranges {
		switch {
		case r.To <= pos:
			before.Ranges = append(before.Ranges, r)
		case r.From >= pos:
			after.Ranges = append(after.Ranges, r)
		default:
			before.Ranges = append(before.Ranges, LiveRange{From: r.From, To: pos})
			after.Ranges = append(after.Ranges, LiveRange{From: pos, To: r.To})
		}
	}

	for _, u := range iv.Uses {
		if u.Pos < pos {
			before.Uses = append(before.Uses, u)
		} else {
			after.Uses = append(after.Uses, u)
		}
	}

	before.FromHints = iv.FromHints
	after.ToHints = iv.ToHints
	return before, after
}
