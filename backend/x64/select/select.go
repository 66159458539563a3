// Package select is the tree matcher: it walks an ir.Graph, already ordered
// by linearize.Linearize, and lowers each node into lir.Instructions over
// virtual registers. Grounded on the teacher's per-opcode CreateXxx dispatch
// (ir/lir/block.go) collapsed into the single switch-based matcher spec §9
// calls for, plus padeir0-millipascal's resalloc.go call-lowering shape for
// the System V argument sequence.
package selector

import (
	"fmt"

	"github.com/sherter/minijavac/backend/x64/lir"
	"github.com/sherter/minijavac/backend/x64/regfile"
	"github.com/sherter/minijavac/ir"
	"github.com/sherter/minijavac/util"
)

// ----------------------------
// ----- Type definitions -----
// ----------------------------

// selector carries the state threaded through one procedure's instruction
// selection: the running def -> vreg environment, the ir.Block -> lir.Block
// mapping, and the register file / mangler the lowering rules consult.
type selector struct {
	proc    *lir.Procedure
	rf      regfile.RegisterFile
	mangler util.Mangler

	blocks map[*ir.Block]*lir.Block
	values map[*ir.Node]lir.VReg
	cur    *lir.Block
}

// ---------------------
// ----- Functions -----
// ---------------------

// Select lowers every block in order into proc, which must already have its
// VRegs/StackSlots supplies ready (spec §4.2, §5).
func Select(order []*ir.Block, proc *lir.Procedure, rf regfile.RegisterFile, mangler util.Mangler) error {
	s := &selector{
		proc:    proc,
		rf:      rf,
		mangler: mangler,
		blocks:  make(map[*ir.Block]*lir.Block, len(order)),
		values:  make(map[*ir.Node]lir.VReg),
	}

	for _, b := range order {
		s.blocks[b] = proc.CreateBlock()
	}
	for _, b := range order {
		lb := s.blocks[b]
		for _, phi := range b.Phis {
			dest := proc.VRegs.New()
			lb.Phis = append(lb.Phis, lir.NewPhi(dest))
			s.values[phi.Node] = dest
		}
	}

	for _, b := range order {
		if err := s.selectBlock(b); err != nil {
			return err
		}
	}

	for _, b := range order {
		if err := s.wirePhis(b); err != nil {
			return err
		}
		if err := s.wireExit(b); err != nil {
			return err
		}
	}
	return nil
}

// selectBlock emits every node of b in topological order of the intra-block
// dependency DAG (memory edges included), per spec §4.2.
func (s *selector) selectBlock(b *ir.Block) error {
	s.cur = s.blocks[b]

	order, err := topoSort(b)
	if err != nil {
		return err
	}
	for _, n := range order {
		if _, done := s.values[n]; done {
			continue
		}
		if err := s.lower(n); err != nil {
			return err
		}
	}
	return nil
}

// topoSort returns b.Nodes ordered so every node's in-block predecessors
// precede it, via Kahn's algorithm. Predecessors outside b (values defined
// in a dominating block) are treated as already satisfied.
func topoSort(b *ir.Block) ([]*ir.Node, error) {
	inBlock := make(map[*ir.Node]bool, len(b.Nodes))
	for _, n := range b.Nodes {
		inBlock[n] = true
	}

	indegree := make(map[*ir.Node]int, len(b.Nodes))
	dependents := make(map[*ir.Node][]*ir.Node, len(b.Nodes))
	for _, n := range b.Nodes {
		for _, p := range n.Preds {
			if !inBlock[p] {
				continue
			}
			indegree[n]++
			dependents[p] = append(dependents[p], n)
		}
	}

	var ready []*ir.Node
	for _, n := range b.Nodes {
		if indegree[n] == 0 {
			ready = append(ready, n)
		}
	}

	var out []*ir.Node
	for len(ready) > 0 {
		n := ready[0]
		ready = ready[1:]
		out = append(out, n)
		for _, d := range dependents[n] {
			indegree[d]--
			if indegree[d] == 0 {
				ready = append(ready, d)
			}
		}
	}

	if len(out) != len(b.Nodes) {
		return nil, fmt.Errorf("select: block %d has a cyclic intra-block dependency", b.Id())
	}
	return out, nil
}

// lower dispatches on n's opcode. Every case records its result vreg (if
// any) in s.values so later uses find it without re-emitting.
func (s *selector) lower(n *ir.Node) error {
	switch n.Op {
	case ir.OpStart, ir.OpEnd, ir.OpBlock:
		return nil // control-only markers, nothing to emit
	case ir.OpArg:
		return s.lowerArg(n)
	case ir.OpConst:
		return s.lowerConst(n)
	case ir.OpAddress:
		return s.lowerAddress(n)
	case ir.OpAdd, ir.OpSub, ir.OpAnd, ir.OpMul:
		return s.lowerBinary(n)
	case ir.OpDiv, ir.OpMod:
		return s.lowerDivMod(n)
	case ir.OpNeg:
		return s.lowerNeg(n)
	case ir.OpCmp:
		return nil // no value result; consumed directly by Cond
	case ir.OpCond:
		return nil // handled by wireExit once all blocks are lowered
	case ir.OpLoad:
		return s.lowerLoad(n)
	case ir.OpProj:
		return s.lowerProj(n)
	case ir.OpStore:
		return s.lowerStore(n)
	case ir.OpCall:
		return s.lowerCall(n)
	case ir.OpReturn:
		return s.lowerReturn(n)
	default:
		return fmt.Errorf("select: unsupported opcode %s on node %%%d", n.Op, n.Id())
	}
}

// width maps an ir.Mode onto the lir operand width the matcher should use
// for it. Non-integer modes never reach here.
func width(m ir.Mode) regfile.Width {
	if m.Bits() == 64 {
		return regfile.B64
	}
	return regfile.B32
}

// valueOf returns the vreg already emitted for n, panicking if n has not
// been lowered yet -- a violation of the dominance property the linearised
// order is supposed to guarantee (spec §4.1/§4.2), hence a panic rather than
// an error.
func (s *selector) valueOf(n *ir.Node) lir.VReg {
	v, ok := s.values[n]
	if !ok {
		panic(fmt.Sprintf("select: node %%%d used before being lowered", n.Id()))
	}
	return v
}

// constrain pins vr to reg.
func constrain(vr *lir.VReg, reg regfile.Register) {
	vr.Constraint = reg
}

// hint appends reg to vr's hint list.
func hint(vr *lir.VReg, reg regfile.Register) {
	vr.Hint = append(vr.Hint, reg)
}
