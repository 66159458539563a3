// Package ir defines the input graph consumed by the backend: an immutable,
// directed graph of typed value nodes produced by earlier compiler stages
// (lexer, parser, name/type analysis, high-level IR construction and
// optimisation). Nothing in this package mutates a Graph once it is built;
// the backend only ever reads it.
package ir

import "fmt"

// Opcode identifies the operation a Node performs.
type Opcode int

const (
	OpInvalid Opcode = iota

	OpStart  // produces the argument tuple and the initial memory value.
	OpEnd    // terminates a Graph; predecessors are Return nodes and keep-alive edges.
	OpBlock  // a basic block marker; every value-producing Node references one.
	OpPhi    // value defined by predecessor; predecessors align with the block's predecessors.
	OpProj   // projects one component out of a tuple-mode predecessor (Start, Load, Call, Cond).

	OpConst   // an integer constant.
	OpAddress // address of a global function or label; materialised at use sites.

	OpAdd
	OpSub
	OpAnd
	OpMul
	OpDiv
	OpMod
	OpNeg

	OpCmp  // compares two values; mode is ModeBool, read by a following Cond.
	OpCond // conditional control split on a Cmp's relation.

	OpLoad  // reads through a memory edge.
	OpStore // writes through a memory edge.

	OpCall   // calls a procedure; first predecessor is the memory value, then the address, then args.
	OpReturn // returns zero or one values; first predecessor is the memory value.
	OpArg    // the i'th argument projected out of Start's argument tuple.
)

func (o Opcode) String() string {
	switch o {
	case OpStart:
		return "Start"
	case OpEnd:
		return "End"
	case OpBlock:
		return "Block"
	case OpPhi:
		return "Phi"
	case OpProj:
		return "Proj"
	case OpConst:
		return "Const"
	case OpAddress:
		return "Address"
	case OpAdd:
		return "Add"
	case OpSub:
		return "Sub"
	case OpAnd:
		return "And"
	case OpMul:
		return "Mul"
	case OpDiv:
		return "Div"
	case OpMod:
		return "Mod"
	case OpNeg:
		return "Neg"
	case OpCmp:
		return "Cmp"
	case OpCond:
		return "Cond"
	case OpLoad:
		return "Load"
	case OpStore:
		return "Store"
	case OpCall:
		return "Call"
	case OpReturn:
		return "Return"
	case OpArg:
		return "Arg"
	}
	return fmt.Sprintf("Opcode(%d)", int(o))
}

// Relation is the comparison relation carried by a Cmp node and read by the
// Cond that follows it.
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
		return "=="
	case RelNe:
		return "!="
	case RelLt:
		return "<"
	case RelLe:
		return "<="
	case RelGt:
		return ">"
	case RelGe:
		return ">="
	}
	return "?"
}

// Negate returns the relation that holds exactly when r does not.
func (r Relation) Negate() Relation {
	switch r {
	case RelEq:
		return RelNe
	case RelNe:
		return RelEq
	case RelLt:
		return RelGe
	case RelLe:
		return RelGt
	case RelGt:
		return RelLe
	case RelGe:
		return RelLt
	}
	panic(fmt.Sprintf("ir: cannot negate relation %v", r))
}
