package lir

import (
	"fmt"
	"strings"
)

// ----------------------------
// ----- Type definitions -----
// ----------------------------

// Op is a machine-instruction opcode. The set is the subset of x86-64 the
// tree matcher emits; it is not a general-purpose assembler.
type Op int

const (
	OpInvalid Op = iota
	Mov
	Add
	Sub
	And
	IMul
	Neg
	Cmp
	Cltd // sign-extends %eax into %edx:%eax ahead of IDiv
	IDiv
	Lea
	Load
	Store
	Call
	Jmp
	Jcc
	Ret
	Xchg
	Push
	Pop
)

func (o Op) String() string {
	switch o {
	case Mov:
		return "mov"
	case Add:
		return "add"
	case Sub:
		return "sub"
	case And:
		return "and"
	case IMul:
		return "imul"
	case Neg:
		return "neg"
	case Cmp:
		return "cmp"
	case Cltd:
		return "cltd"
	case IDiv:
		return "idiv"
	case Lea:
		return "lea"
	case Load:
		return "mov"
	case Store:
		return "mov"
	case Call:
		return "call"
	case Jmp:
		return "jmp"
	case Jcc:
		return "jcc"
	case Ret:
		return "ret"
	case Xchg:
		return "xchg"
	case Push:
		return "push"
	case Pop:
		return "pop"
	}
	return "?"
}

// Instruction is one machine instruction: an opcode over Defs and Uses
// operands. Before register allocation, Defs/Uses hold Reg operands over
// virtual registers; after, they hold physical registers or Mem operands
// addressing spill slots.
type Instruction struct {
	Op   Op
	Defs []Operand
	Uses []Operand

	// MayBeMemory is aligned with Uses: MayBeMemory[i] reports whether
	// Uses[i] may be rewritten to a memory operand if its vreg is spilled,
	// without changing the instruction's opcode (spec §3 "Use site").
	// nil means no use may be replaced this way.
	MayBeMemory []bool

	// Rel carries the comparison relation for Jcc; unused otherwise.
	Rel Relation

	// Target is the callee symbol for Call, or the jump target label for
	// Jmp/Jcc. Until Jmp/Jcc instructions are emitted, a block's branch
	// targets live only on Block.Exit.
	Target string

	// Label, when non-empty, is a comment-level annotation (e.g. "div-by-7")
	// carried through to the emitter for diagnostics; it has no semantic
	// effect.
	Label string
}

// Relation mirrors ir.Relation for the subset of comparisons Jcc encodes;
// duplicated here rather than imported so lir has no dependency on ir --
// instruction selection is the boundary between the two (spec §4.2).
type Relation int

const (
	RelInvalid Relation = iota
	RelEq
	RelNe
	RelLt
	RelLe
	RelGt
	RelGe
)

func (r Relation) String() string {
	switch r {
	case RelEq:
		return "e"
	case RelNe:
		return "ne"
	case RelLt:
		return "l"
	case RelLe:
		return "le"
	case RelGt:
		return "g"
	case RelGe:
		return "ge"
	}
	return "?"
}

// MayReplaceUse reports whether Uses[i] is flagged as replaceable by a
// memory operand.
func (i *Instruction) MayReplaceUse(idx int) bool {
	if i.MayBeMemory == nil || idx >= len(i.MayBeMemory) {
		return false
	}
	return i.MayBeMemory[idx]
}

func (i *Instruction) String() string {
	sb := strings.Builder{}
	sb.WriteByte('\t')
	if i.Op == Jcc {
		sb.WriteString("j" + i.Rel.String())
	} else {
		sb.WriteString(i.Op.String())
	}
	sb.WriteByte(' ')

	parts := make([]string, 0, len(i.Uses)+len(i.Defs))
	for _, u := range i.Uses {
		parts = append(parts, u.String())
	}
	for _, d := range i.Defs {
		parts = append(parts, d.String())
	}
	if i.Target != "" {
		parts = append(parts, i.Target)
	}
	sb.WriteString(strings.Join(parts, ", "))
	if i.Label != "" {
		sb.WriteString(fmt.Sprintf(" // %s", i.Label))
	}
	return sb.String()
}
