package lir

import (
	"fmt"
	"strings"
)

// ----------------------------
// ----- Type definitions -----
// ----------------------------

// ExitKind discriminates how a Block leaves the procedure.
type ExitKind int

const (
	ExitInvalid ExitKind = iota
	ExitReturn           // no successor; Ret has already been appended to Instructions
	ExitJump             // one successor, unconditional
	ExitBranch           // two successors, conditional on Rel
)

// Exit describes a Block's control-flow edges out. It mirrors
// ir.Block.Succs but is itself the source of truth post-linearisation:
// resolve uses it to find which predecessor supplied which Phi source.
type Exit struct {
	Kind        ExitKind
	Next        *Block // ExitJump
	Rel         Relation
	True, False *Block // ExitBranch
}

// Block is a basic block of machine instructions, in the order the tree
// matcher emitted them. linearizedOrdinal starts unset and is only set
// through SetLinearizedOrdinal; linearize.Linearize numbers ir.Blocks, and
// the backend pipeline orders lir blocks by their place in
// Procedure.Blocks.
type Block struct {
	id                int
	linearizedOrdinal int
	Instructions      []*Instruction
	Phis              []*Phi
	Preds             []*Block
	Exit              Exit
}

// ---------------------
// ----- Functions -----
// ---------------------

// NewBlock returns an empty Block with the given id. Procedure.CreateBlock
// is the usual way to obtain one so ids stay unique within a procedure.
func NewBlock(id int) *Block {
	return &Block{id: id, linearizedOrdinal: -1}
}

// Id returns the block's unique identifier.
func (b *Block) Id() int { return b.id }

// LinearizedOrdinal returns the block's position in linearisation order.
// Panics if the block has not been linearised yet.
func (b *Block) LinearizedOrdinal() int {
	if b.linearizedOrdinal < 0 {
		panic(fmt.Sprintf("lir: block %d has not been linearised", b.id))
	}
	return b.linearizedOrdinal
}

// SetLinearizedOrdinal records the block's position in linearisation order.
func (b *Block) SetLinearizedOrdinal(ord int) {
	b.linearizedOrdinal = ord
}

// Append adds inst to the end of the block's instruction list.
func (b *Block) Append(inst *Instruction) {
	b.Instructions = append(b.Instructions, inst)
}

// Prepend inserts inst at the front of the block's instruction list.
func (b *Block) Prepend(inst *Instruction) {
	b.Instructions = append([]*Instruction{inst}, b.Instructions...)
}

// InsertBefore inserts inst immediately before the instruction at index i.
func (b *Block) InsertBefore(i int, inst *Instruction) {
	b.Instructions = append(b.Instructions[:i], append([]*Instruction{inst}, b.Instructions[i:]...)...)
}

// SetJump makes b exit unconditionally to next.
func (b *Block) SetJump(next *Block) {
	b.Exit = Exit{Kind: ExitJump, Next: next}
}

// SetBranch makes b exit conditionally: to t if rel holds, to f otherwise.
func (b *Block) SetBranch(rel Relation, t, f *Block) {
	b.Exit = Exit{Kind: ExitBranch, Rel: rel, True: t, False: f}
}

// SetReturn marks b as a procedure exit block.
func (b *Block) SetReturn() {
	b.Exit = Exit{Kind: ExitReturn}
}

// Succs returns the block's successors in a fixed order: [Next] for a jump,
// [True, False] for a branch, empty for a return.
func (b *Block) Succs() []*Block {
	switch b.Exit.Kind {
	case ExitJump:
		return []*Block{b.Exit.Next}
	case ExitBranch:
		return []*Block{b.Exit.True, b.Exit.False}
	default:
		return nil
	}
}

func (b *Block) String() string {
	sb := strings.Builder{}
	sb.WriteString(fmt.Sprintf("block%d:\n", b.id))
	for _, p := range b.Phis {
		sb.WriteByte('\t')
		sb.WriteString(p.String())
		sb.WriteByte('\n')
	}
	for _, inst := range b.Instructions {
		sb.WriteString(inst.String())
		sb.WriteByte('\n')
	}
	switch b.Exit.Kind {
	case ExitJump:
		sb.WriteString(fmt.Sprintf("\tjmp block%d\n", b.Exit.Next.id))
	case ExitBranch:
		sb.WriteString(fmt.Sprintf("\tj%s block%d else block%d\n", b.Exit.Rel, b.Exit.True.id, b.Exit.False.id))
	case ExitReturn:
		// Ret instruction already present in Instructions.
	default:
		sb.WriteString(fmt.Sprintf("// Error: block%d has no exit\n", b.id))
	}
	return sb.String()
}
