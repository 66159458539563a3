package lir

import (
	"fmt"

	"github.com/sherter/minijavac/backend/x64/regfile"
)

// ----------------------------
// ----- Type definitions -----
// ----------------------------

// VReg is a virtual register: a placeholder for a physical register or a
// stack slot, unique to one procedure (spec §3 "Virtual register" --
// "supply ... unique to one procedure"). The zero value is not a valid
// virtual register; ID 0 is reserved to let Addressing leave Index unset.
type VReg struct {
	ID int

	// Constraint, when non-nil, pins this vreg to a specific physical
	// register for its entire lifetime (e.g. the dividend of an idiv, a
	// call argument). nil means the allocator is free to choose.
	Constraint regfile.Register

	// Hint lists physical registers the allocator should prefer, in
	// priority order, without requiring them (spec §3 "toHints"/"fromHints").
	Hint []regfile.Register
}

func (v VReg) String() string {
	if v.ID == 0 {
		return "<novreg>"
	}
	return fmt.Sprintf("%%v%d", v.ID)
}

// PhysicalString renders v the way the assembler should print it once
// resolve has pinned it to a physical register (spec §4.5): the
// register's mnemonic at width w if Constraint is set, otherwise the
// virtual-register debug form, so printing an unresolved procedure still
// works for diagnostics.
func (v VReg) PhysicalString(w regfile.Width) string {
	if v.Constraint != nil {
		return v.Constraint.Sized(w)
	}
	return v.String()
}

// VRegSupply issues unique, monotonically increasing VReg ids for one
// procedure. Reset per procedure (spec §5).
type VRegSupply struct {
	next int
}

// NewVRegSupply returns a supply starting at id 1 (0 is reserved).
func NewVRegSupply() *VRegSupply {
	return &VRegSupply{next: 1}
}

// New issues a fresh, unconstrained virtual register.
func (s *VRegSupply) New() VReg {
	id := s.next
	s.next++
	return VReg{ID: id}
}

// NewConstrained issues a fresh virtual register pinned to reg.
func (s *VRegSupply) NewConstrained(reg regfile.Register) VReg {
	v := s.New()
	v.Constraint = reg
	return v
}

// Len reports how many virtual registers have been issued.
func (s *VRegSupply) Len() int {
	return s.next - 1
}
