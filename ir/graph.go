package ir

import (
	"fmt"
	"strings"
)

// Node is one value in the input graph. Its predecessor list encodes its
// operands; for memory-carrying opcodes (Load, Store, Call, Return) the first
// predecessor is always the incoming memory value, per spec.
type Node struct {
	id    int
	Op    Opcode
	Mode  Mode
	Preds []*Node
	Block *Block

	// Rel is meaningful only for OpCmp.
	Rel Relation
	// ConstValue is meaningful only for OpConst.
	ConstValue int64
	// Label is meaningful only for OpAddress and OpCall (callee label) and OpArg (index encoded in ProjIndex).
	Label string
	// ProjIndex selects which component of a tuple-mode predecessor OpProj reads,
	// and which argument index OpArg reads out of Start.
	ProjIndex int
}

func (n *Node) Id() int { return n.id }

func (n *Node) String() string {
	sb := strings.Builder{}
	fmt.Fprintf(&sb, "%%%d = %s", n.id, n.Op)
	if n.Op == OpConst {
		fmt.Fprintf(&sb, " %d", n.ConstValue)
	}
	if n.Op == OpCmp {
		fmt.Fprintf(&sb, " %s", n.Rel)
	}
	if n.Op == OpAddress || n.Op == OpCall {
		fmt.Fprintf(&sb, " %q", n.Label)
	}
	if len(n.Preds) > 0 {
		parts := make([]string, len(n.Preds))
		for i, p := range n.Preds {
			parts[i] = fmt.Sprintf("%%%d", p.id)
		}
		fmt.Fprintf(&sb, "(%s)", strings.Join(parts, ", "))
	}
	return sb.String()
}

// MemoryPred returns the incoming memory value of a memory-carrying node.
// Panics if n's opcode does not carry a memory edge.
func (n *Node) MemoryPred() *Node {
	switch n.Op {
	case OpLoad, OpStore, OpCall, OpReturn, OpStart:
		if len(n.Preds) == 0 {
			panic(fmt.Sprintf("ir: node %%%d (%s) has no memory predecessor", n.id, n.Op))
		}
		return n.Preds[0]
	}
	panic(fmt.Sprintf("ir: node %%%d (%s) does not carry a memory edge", n.id, n.Op))
}

// Phi is a value defined at the head of a Block whose result depends on which
// predecessor transferred control. Sources are positionally aligned with
// Block.Preds. Phi embeds a Node (Op OpPhi) so its result can be passed
// wherever a *Node operand is expected -- via phi.Node -- letting later
// instructions (inside or outside a loop) consume it like any other value.
// That backing Node is deliberately kept out of Block.Nodes: it is not part
// of the intra-block dependency DAG topoSort orders, since a Phi's value is
// available at the very top of its block regardless of definition order.
type Phi struct {
	*Node
	Sources []*Node
}

func (p *Phi) String() string {
	parts := make([]string, len(p.Sources))
	for i, s := range p.Sources {
		if s == nil {
			parts[i] = "<nil>"
		} else {
			parts[i] = fmt.Sprintf("%%%d", s.Id())
		}
	}
	return fmt.Sprintf("%%phi%d = Phi(%s)", p.Id(), strings.Join(parts, ", "))
}

// Block is a basic block in the input graph: an ordered list of value nodes
// (in program order as produced by the upstream compiler, not necessarily a
// topological order of the intra-block dependency DAG -- instruction
// selection re-derives that order, see backend/x64/select) plus the Phi
// functions defined at its head, terminated by exactly one control-flow
// node.
type Block struct {
	id    int
	Nodes []*Node
	Phis  []*Phi
	Preds []*Block
	Succs []*Block

	// linearizedOrdinal is assigned by backend/x64/linearize; -1 until then.
	linearizedOrdinal int
}

func (b *Block) Id() int { return b.id }

// LinearizedOrdinal returns the total order assigned by linearize.Linearize,
// or panics if the block has not been linearised yet.
func (b *Block) LinearizedOrdinal() int {
	if b.linearizedOrdinal < 0 {
		panic(fmt.Sprintf("ir: block %%b%d has not been linearised", b.id))
	}
	return b.linearizedOrdinal
}

// SetLinearizedOrdinal is called exactly once per block by
// backend/x64/linearize.Linearize.
func (b *Block) SetLinearizedOrdinal(ord int) {
	b.linearizedOrdinal = ord
}

func (b *Block) String() string {
	sb := strings.Builder{}
	fmt.Fprintf(&sb, "block%d:\n", b.id)
	for _, p := range b.Phis {
		fmt.Fprintf(&sb, "\t%s\n", p)
	}
	for _, n := range b.Nodes {
		fmt.Fprintf(&sb, "\t%s\n", n)
	}
	return sb.String()
}

// Graph is one procedure's input: an immutable directed graph of Nodes
// grouped into Blocks, with a distinguished Start and End.
type Graph struct {
	Name   string
	Start  *Node
	End    *Node
	Blocks []*Block
	seq    int
}

// NewGraph creates an empty, mutable-until-returned Graph builder. Once the
// caller stops calling the CreateXxx methods below and hands the Graph to the
// backend, it is treated as immutable (spec.md Lifecycles, §3).
func NewGraph(name string) *Graph {
	return &Graph{Name: name}
}

func (g *Graph) nextID() int {
	id := g.seq
	g.seq++
	return id
}

// CreateBlock adds a new, empty Block to the Graph.
func (g *Graph) CreateBlock() *Block {
	b := &Block{id: g.nextID(), linearizedOrdinal: -1}
	g.Blocks = append(g.Blocks, b)
	return b
}

// AddEdge records a control-flow edge from -> to, keeping both blocks' Preds/
// Succs consistent. Callers are responsible for calling this exactly once per
// edge; it is a builder convenience, not a general graph-mutation API.
func AddEdge(from, to *Block) {
	from.Succs = append(from.Succs, to)
	to.Preds = append(to.Preds, from)
}

func (g *Graph) newNode(op Opcode, mode Mode, block *Block, preds ...*Node) *Node {
	n := &Node{id: g.nextID(), Op: op, Mode: mode, Preds: preds, Block: block}
	if block != nil {
		block.Nodes = append(block.Nodes, n)
	}
	return n
}

// CreateStart creates the Start node of the Graph. Must be called at most once.
func (g *Graph) CreateStart(block *Block) *Node {
	if g.Start != nil {
		panic("ir: graph already has a Start node")
	}
	n := g.newNode(OpStart, ModeTuple, block)
	g.Start = n
	return n
}

// CreateEnd creates the End node of the Graph, whose predecessors are every
// Return node (and any loop-keep-alive edges the caller adds directly to
// Preds). Must be called at most once.
func (g *Graph) CreateEnd(block *Block, returns ...*Node) *Node {
	if g.End != nil {
		panic("ir: graph already has an End node")
	}
	n := g.newNode(OpEnd, ModeControl, block, returns...)
	g.End = n
	return n
}

// CreateArg projects the i'th argument out of Start's argument tuple.
func (g *Graph) CreateArg(block *Block, mode Mode, index int) *Node {
	n := g.newNode(OpArg, mode, block, g.Start)
	n.ProjIndex = index
	return n
}

// CreateConst creates an integer constant node.
func (g *Graph) CreateConst(block *Block, mode Mode, value int64) *Node {
	n := g.newNode(OpConst, mode, block)
	n.ConstValue = value
	return n
}

// CreateAddress creates a reference to a global function or label,
// materialised only at its use sites (spec.md §4.2 "Address").
func (g *Graph) CreateAddress(block *Block, label string) *Node {
	n := g.newNode(OpAddress, ModeInt64, block)
	n.Label = label
	return n
}

func mustInt(op1, op2 *Node, who string) {
	if !op1.Mode.IsInteger() || !op2.Mode.IsInteger() {
		panic(fmt.Sprintf("ir: %s requires integer operands, got %s and %s", who, op1.Mode, op2.Mode))
	}
}

// CreateAdd creates op1 + op2.
func (g *Graph) CreateAdd(block *Block, op1, op2 *Node) *Node {
	mustInt(op1, op2, "Add")
	return g.newNode(OpAdd, op1.Mode, block, op1, op2)
}

// CreateSub creates op1 - op2.
func (g *Graph) CreateSub(block *Block, op1, op2 *Node) *Node {
	mustInt(op1, op2, "Sub")
	return g.newNode(OpSub, op1.Mode, block, op1, op2)
}

// CreateAnd creates op1 & op2.
func (g *Graph) CreateAnd(block *Block, op1, op2 *Node) *Node {
	mustInt(op1, op2, "And")
	return g.newNode(OpAnd, op1.Mode, block, op1, op2)
}

// CreateMul creates op1 * op2.
func (g *Graph) CreateMul(block *Block, op1, op2 *Node) *Node {
	mustInt(op1, op2, "Mul")
	return g.newNode(OpMul, op1.Mode, block, op1, op2)
}

// CreateDiv creates the quotient of op1 / op2 (signed).
func (g *Graph) CreateDiv(block *Block, op1, op2 *Node) *Node {
	mustInt(op1, op2, "Div")
	return g.newNode(OpDiv, op1.Mode, block, op1, op2)
}

// CreateMod creates the remainder of op1 / op2 (signed).
func (g *Graph) CreateMod(block *Block, op1, op2 *Node) *Node {
	mustInt(op1, op2, "Mod")
	return g.newNode(OpMod, op1.Mode, block, op1, op2)
}

// CreateNeg creates -op1.
func (g *Graph) CreateNeg(block *Block, op1 *Node) *Node {
	if !op1.Mode.IsInteger() {
		panic("ir: Neg requires an integer operand")
	}
	return g.newNode(OpNeg, op1.Mode, block, op1)
}

// CreateCmp creates a comparison of op1 rel op2, producing a ModeBool value
// consumed by a following Cond.
func (g *Graph) CreateCmp(block *Block, rel Relation, op1, op2 *Node) *Node {
	mustInt(op1, op2, "Cmp")
	n := g.newNode(OpCmp, ModeBool, block, op1, op2)
	n.Rel = rel
	return n
}

// CreateCond terminates block with a two-way conditional split on cmp.
func (g *Graph) CreateCond(block *Block, cmp *Node) *Node {
	if cmp.Op != OpCmp {
		panic("ir: Cond requires a Cmp operand")
	}
	return g.newNode(OpCond, ModeControl, block, cmp)
}

// CreateLoad reads through the memory value mem at address ptr. Result is a
// ModeTuple; use CreateProj to extract the memory outcome (index 0) and the
// loaded value at its real mode (index 1).
func (g *Graph) CreateLoad(block *Block, mem, ptr *Node) *Node {
	return g.newNode(OpLoad, ModeTuple, block, mem, ptr)
}

// CreateProj projects component index out of a tuple-mode predecessor.
func (g *Graph) CreateProj(block *Block, mode Mode, of *Node, index int) *Node {
	if of.Mode != ModeTuple {
		panic(fmt.Sprintf("ir: Proj requires a tuple-mode predecessor, got %s", of.Mode))
	}
	n := g.newNode(OpProj, mode, block, of)
	n.ProjIndex = index
	return n
}

// CreateStore writes val through the memory value mem at address ptr,
// producing the successor memory value.
func (g *Graph) CreateStore(block *Block, mem, ptr, val *Node) *Node {
	return g.newNode(OpStore, ModeMem, block, mem, ptr, val)
}

// CreateCall calls the procedure named by target (an OpAddress node) with the
// given argument values, threading mem as the incoming memory dependency.
// Result is a ModeTuple; use CreateProj to extract the memory outcome (index
// 0) and, if the callee returns a value, the value (index 1).
func (g *Graph) CreateCall(block *Block, mem, target *Node, args ...*Node) *Node {
	if target.Op != OpAddress {
		panic("ir: Call target must be an Address node")
	}
	preds := append([]*Node{mem, target}, args...)
	n := g.newNode(OpCall, ModeTuple, block, preds...)
	n.Label = target.Label
	return n
}

// CreateReturn terminates block, optionally returning one value.
func (g *Graph) CreateReturn(block *Block, mem *Node, value *Node) *Node {
	preds := []*Node{mem}
	if value != nil {
		preds = append(preds, value)
	}
	return g.newNode(OpReturn, ModeControl, block, preds...)
}

// CreatePhi adds a Phi function to block's head. sources must align
// positionally with block.Preds; a source for a not-yet-built predecessor
// (typically the back edge of a loop) may be left nil and patched onto
// Sources once that value exists -- Sources is read only when the backend
// lowers the graph, well after graph construction finishes.
func (g *Graph) CreatePhi(block *Block, mode Mode, sources []*Node) *Phi {
	if len(sources) != len(block.Preds) {
		panic(fmt.Sprintf("ir: phi in block%d has %d sources but block has %d predecessors",
			block.id, len(sources), len(block.Preds)))
	}
	n := &Node{id: g.nextID(), Op: OpPhi, Mode: mode, Block: block}
	p := &Phi{Node: n, Sources: sources}
	block.Phis = append(block.Phis, p)
	return p
}

func (g *Graph) String() string {
	sb := strings.Builder{}
	fmt.Fprintf(&sb, "graph %s {\n", g.Name)
	for _, b := range g.Blocks {
		sb.WriteString(b.String())
	}
	sb.WriteString("}\n")
	return sb.String()
}
