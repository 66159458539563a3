package lir

import (
	"fmt"
	"strings"
)

// Phi is a machine-level phi function: at entry to the owning Block, Dest
// receives the operand keyed by whichever predecessor control arrived from.
// Lowered away entirely by resolve (spec §4.5) before emission.
type Phi struct {
	Dest    VReg
	Sources map[*Block]Operand
}

// NewPhi returns an empty Phi for dest.
func NewPhi(dest VReg) *Phi {
	return &Phi{Dest: dest, Sources: make(map[*Block]Operand)}
}

// SetSource records the operand supplied by predecessor pred.
func (p *Phi) SetSource(pred *Block, op Operand) {
	p.Sources[pred] = op
}

func (p *Phi) String() string {
	parts := make([]string, 0, len(p.Sources))
	for b, op := range p.Sources {
		parts = append(parts, fmt.Sprintf("block%d: %s", b.Id(), op))
	}
	return fmt.Sprintf("%s = phi(%s)", p.Dest, strings.Join(parts, ", "))
}
