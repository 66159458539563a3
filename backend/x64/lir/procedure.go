package lir

import (
	"strings"
)

// Procedure is the machine-IR form of one compiled function: an ordered
// list of Blocks (ordered by linearisation once Linearize has run), plus
// the per-procedure id supplies spec §5 requires to be fresh for each
// procedure.
type Procedure struct {
	Name   string
	Blocks []*Block

	StackSlots *SlotSupply
	VRegs      *VRegSupply

	nextBlockID int
}

// NewProcedure returns an empty Procedure named name, with fresh id supplies.
func NewProcedure(name string) *Procedure {
	return &Procedure{
		Name:       name,
		StackSlots: NewSlotSupply(),
		VRegs:      NewVRegSupply(),
	}
}

// CreateBlock appends a new, empty Block to the procedure and returns it.
func (p *Procedure) CreateBlock() *Block {
	b := NewBlock(p.nextBlockID)
	p.nextBlockID++
	p.Blocks = append(p.Blocks, b)
	return b
}

// Entry returns the procedure's first block, or nil if it has none.
func (p *Procedure) Entry() *Block {
	if len(p.Blocks) == 0 {
		return nil
	}
	return p.Blocks[0]
}

func (p *Procedure) String() string {
	sb := strings.Builder{}
	sb.WriteString(p.Name)
	sb.WriteString(":\n")
	for _, b := range p.Blocks {
		sb.WriteString(b.String())
	}
	return sb.String()
}
