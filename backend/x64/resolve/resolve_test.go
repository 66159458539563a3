package resolve

import (
	"testing"

	"github.com/sherter/minijavac/backend/x64/lifetime"
	"github.com/sherter/minijavac/backend/x64/lir"
	"github.com/sherter/minijavac/backend/x64/linearize"
	"github.com/sherter/minijavac/backend/x64/regalloc"
	"github.com/sherter/minijavac/backend/x64/regfile"
	selector "github.com/sherter/minijavac/backend/x64/select"
	"github.com/sherter/minijavac/ir"
	"github.com/sherter/minijavac/util"
)

func compile(t *testing.T, g *ir.Graph, entry *ir.Block, name string) *lir.Procedure {
	t.Helper()
	order, err := linearize.Linearize(entry)
	if err != nil {
		t.Fatalf("Linearize() error: %v", err)
	}
	proc := lir.NewProcedure(name)
	if err := selector.Select(order, proc, regfile.New(), util.NewMangler(util.Linux)); err != nil {
		t.Fatalf("Select() error: %v", err)
	}
	return proc
}

func pipeline(t *testing.T, proc *lir.Procedure, rf regfile.RegisterFile) (*lifetime.Result, *regalloc.Result) {
	t.Helper()
	life, err := lifetime.Analyze(proc, rf)
	if err != nil {
		t.Fatalf("Analyze() error: %v", err)
	}
	alloc, err := regalloc.Allocate(life, proc.StackSlots, rf)
	if err != nil {
		t.Fatalf("Allocate() error: %v", err)
	}
	return life, alloc
}

// every Operand, in every Instruction and Phi, that still names a virtual
// register with no Constraint pinned.
func findUnresolvedVReg(proc *lir.Procedure) (string, bool) {
	check := func(o lir.Operand) (string, bool) {
		if o.Kind == lir.Reg && o.Reg.Constraint == nil {
			return o.Reg.String(), true
		}
		if o.Kind == lir.Mem && !o.Mem.Frame {
			if o.Mem.Base.ID != 0 && o.Mem.Base.Constraint == nil {
				return o.Mem.Base.String(), true
			}
			if o.Mem.Index.ID != 0 && o.Mem.Index.Constraint == nil {
				return o.Mem.Index.String(), true
			}
		}
		return "", false
	}
	for _, b := range proc.Blocks {
		if len(b.Phis) != 0 {
			return "phi still present", true
		}
		for _, inst := range b.Instructions {
			for _, d := range inst.Defs {
				if s, bad := check(d); bad {
					return s, true
				}
			}
			for _, u := range inst.Uses {
				if s, bad := check(u); bad {
					return s, true
				}
			}
		}
	}
	return "", false
}

func TestResolveBranchingDiamondDropsPhiAndLeavesNoVirtualRegisters(t *testing.T) {
	g := ir.NewGraph("diamond")
	entry := g.CreateBlock()
	less := g.CreateBlock()
	ge := g.CreateBlock()
	exit := g.CreateBlock()

	start := g.CreateStart(entry)
	a := g.CreateConst(entry, ir.ModeInt32, 1)
	b := g.CreateConst(entry, ir.ModeInt32, 2)
	cmp := g.CreateCmp(entry, ir.RelLt, b, a)
	g.CreateCond(entry, cmp)

	ir.AddEdge(entry, less)
	ir.AddEdge(entry, ge)
	ir.AddEdge(less, exit)
	ir.AddEdge(ge, exit)

	c := g.CreatePhi(exit, ir.ModeInt32, []*ir.Node{a, b})
	addr := g.CreateAddress(exit, "print_int")
	call := g.CreateCall(exit, start, addr, c.Node)
	g.CreateReturn(exit, call, nil)

	proc := compile(t, g, entry, "diamond")
	rf := regfile.New()
	life, alloc := pipeline(t, proc, rf)

	if err := Resolve(proc, life, alloc, rf); err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}

	if s, bad := findUnresolvedVReg(proc); bad {
		t.Errorf("resolved procedure still references a virtual register or phi: %s\n%s", s, proc)
	}
}

func TestResolveLoopCountingToFiveLeavesNoVirtualRegisters(t *testing.T) {
	g := ir.NewGraph("count")
	entry := g.CreateBlock()
	header := g.CreateBlock()
	body := g.CreateBlock()
	exit := g.CreateBlock()

	start := g.CreateStart(entry)
	zero := g.CreateConst(entry, ir.ModeInt32, 0)
	five := g.CreateConst(entry, ir.ModeInt32, 5)

	ir.AddEdge(entry, header)
	ir.AddEdge(header, body)
	ir.AddEdge(header, exit)
	ir.AddEdge(body, header)

	i := g.CreatePhi(header, ir.ModeInt32, []*ir.Node{zero, nil})
	cmp := g.CreateCmp(header, ir.RelLt, i.Node, five)
	g.CreateCond(header, cmp)

	one := g.CreateConst(body, ir.ModeInt32, 1)
	next := g.CreateAdd(body, i.Node, one)
	i.Sources[1] = next

	g.CreateReturn(exit, start, i.Node)

	proc := compile(t, g, entry, "count")
	rf := regfile.New()
	life, alloc := pipeline(t, proc, rf)

	if err := Resolve(proc, life, alloc, rf); err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}

	if s, bad := findUnresolvedVReg(proc); bad {
		t.Errorf("resolved procedure still references a virtual register or phi: %s\n%s", s, proc)
	}
}

// TestResolveBreaksThreeCycleWithoutCorruptingAnyValue builds a parallel-move
// set that is a pure 3-element permutation of three registers and checks that
// the emitted sequence leaves each register holding the value the permutation
// assigns it, without clobbering one of the three values outright.
func TestResolveBreaksThreeCycleWithoutCorruptingAnyValue(t *testing.T) {
	rf := regfile.New()
	regs := allocatableSample(rf, 3)

	locA := regalloc.Location{Kind: regalloc.LocationRegister, Reg: regs[0]}
	locB := regalloc.Location{Kind: regalloc.LocationRegister, Reg: regs[1]}
	locC := regalloc.Location{Kind: regalloc.LocationRegister, Reg: regs[2]}

	// A<-B, B<-C, C<-A: a 3-cycle, spec §9.
	moves := []edgeMove{
		{from: locB, to: locA, width: regfile.B32},
		{from: locC, to: locB, width: regfile.B32},
		{from: locA, to: locC, width: regfile.B32},
	}

	insts := resolveParallelMoves(moves, rf.Scratch())
	if len(insts) == 0 {
		t.Fatalf("resolveParallelMoves produced no instructions for a 3-cycle")
	}

	// Simulate: every register starts holding its own name, run the emitted
	// movs/xchgs against a tiny model, and check the permutation landed.
	scratchLoc := regalloc.Location{Kind: regalloc.LocationRegister, Reg: rf.Scratch()}
	state := map[string]string{
		locKey(locA):      "a",
		locKey(locB):      "b",
		locKey(locC):      "c",
		locKey(scratchLoc): "",
	}
	keyOf := func(o lir.Operand) string {
		if o.Kind != lir.Reg || o.Reg.Constraint == nil {
			return "?"
		}
		return locKey(regalloc.Location{Kind: regalloc.LocationRegister, Reg: o.Reg.Constraint})
	}
	for _, inst := range insts {
		dst := keyOf(inst.Defs[0])
		src := keyOf(inst.Uses[0])
		if inst.Op == lir.Xchg {
			dst2 := keyOf(inst.Defs[1])
			src2 := keyOf(inst.Uses[1])
			state[dst], state[dst2] = state[src], state[src2]
			continue
		}
		state[dst] = state[src]
	}

	if state[locKey(locA)] != "b" || state[locKey(locB)] != "c" || state[locKey(locC)] != "a" {
		t.Errorf("3-cycle resolved incorrectly: A=%s B=%s C=%s, want A=b B=c C=a",
			state[locKey(locA)], state[locKey(locB)], state[locKey(locC)])
	}
}

// TestResolveBreaksTwoCycleWithXchg checks a pure register swap becomes one
// xchg instruction rather than a scratch-staged three-mov sequence.
func TestResolveBreaksTwoCycleWithXchg(t *testing.T) {
	rf := regfile.New()
	regs := allocatableSample(rf, 2)
	locA := regalloc.Location{Kind: regalloc.LocationRegister, Reg: regs[0]}
	locB := regalloc.Location{Kind: regalloc.LocationRegister, Reg: regs[1]}

	moves := []edgeMove{
		{from: locB, to: locA, width: regfile.B32},
		{from: locA, to: locB, width: regfile.B32},
	}

	insts := resolveParallelMoves(moves, rf.Scratch())
	if len(insts) != 1 || insts[0].Op != lir.Xchg {
		t.Fatalf("resolveParallelMoves(2-swap) = %v, want a single Xchg", insts)
	}
}

func allocatableSample(rf regfile.RegisterFile, n int) []regfile.Register {
	sp, fp, scratch := rf.SP(), rf.FP(), rf.Scratch()
	var out []regfile.Register
	for i := 0; i < rf.N() && len(out) < n; i++ {
		r := rf.Get(i)
		if r.Id() == sp.Id() || r.Id() == fp.Id() || r.Id() == scratch.Id() {
			continue
		}
		out = append(out, r)
	}
	return out
}

