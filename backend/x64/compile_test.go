package x64

import (
	"strings"
	"testing"

	"github.com/sherter/minijavac/backend/x64/emit"
	"github.com/sherter/minijavac/backend/x64/lir"
	"github.com/sherter/minijavac/ir"
	"github.com/sherter/minijavac/util"
)

// assertClean walks every instruction of proc and fails the test if any
// operand still names an unresolved virtual register, or any block still
// carries a Phi -- Compile must leave nothing for resolve behind.
func assertClean(t *testing.T, proc *lir.Procedure) {
	t.Helper()
	check := func(o lir.Operand) {
		if o.Kind == lir.Reg && o.Reg.Constraint == nil {
			t.Errorf("unresolved vreg %s survived Compile", o.Reg)
		}
	}
	for _, b := range proc.Blocks {
		if len(b.Phis) != 0 {
			t.Errorf("block%d still carries a phi after Compile", b.Id())
		}
		for _, inst := range b.Instructions {
			for _, d := range inst.Defs {
				check(d)
			}
			for _, u := range inst.Uses {
				check(u)
			}
		}
	}
}

// assertFrame checks the entry block opens with push rbp / mov rsp,rbp and
// every return block closes with pop rbp immediately before its ret
// (spec.md §6).
func assertFrame(t *testing.T, proc *lir.Procedure) {
	t.Helper()
	entry := proc.Entry()
	if len(entry.Instructions) < 2 || entry.Instructions[0].Op != lir.Push || entry.Instructions[1].Op != lir.Mov {
		t.Fatalf("entry block does not open with push/mov prologue: %s", proc)
	}
	for _, b := range proc.Blocks {
		if b.Exit.Kind != lir.ExitReturn {
			continue
		}
		n := len(b.Instructions)
		if n < 2 || b.Instructions[n-1].Op != lir.Ret || b.Instructions[n-2].Op != lir.Pop {
			t.Errorf("return block%d does not close with pop/ret epilogue: %s", b.Id(), b)
		}
	}
}

func TestCompileBranchingDiamondProducesCleanProcedure(t *testing.T) {
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

	proc, err := Compile(g, util.Options{})
	if err != nil {
		t.Fatalf("Compile() error: %v", err)
	}
	assertClean(t, proc)
	assertFrame(t, proc)
}

func TestCompileLoopCountingToFiveProducesCleanProcedure(t *testing.T) {
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

	proc, err := Compile(g, util.Options{})
	if err != nil {
		t.Fatalf("Compile() error: %v", err)
	}
	assertClean(t, proc)
	assertFrame(t, proc)
}

func TestCompileDivisionByConstantInLoopProducesCleanProcedure(t *testing.T) {
	g := ir.NewGraph("divloop")
	entry := g.CreateBlock()
	header := g.CreateBlock()
	body := g.CreateBlock()
	exit := g.CreateBlock()

	start := g.CreateStart(entry)
	x := g.CreateArg(entry, ir.ModeInt32, 0)
	zero := g.CreateConst(entry, ir.ModeInt32, 0)
	five := g.CreateConst(entry, ir.ModeInt32, 5)
	seven := g.CreateConst(entry, ir.ModeInt32, 7)

	ir.AddEdge(entry, header)
	ir.AddEdge(header, body)
	ir.AddEdge(header, exit)
	ir.AddEdge(body, header)

	i := g.CreatePhi(header, ir.ModeInt32, []*ir.Node{zero, nil})
	cmp := g.CreateCmp(header, ir.RelLt, i.Node, five)
	g.CreateCond(header, cmp)

	q := g.CreateDiv(body, x, seven)
	next := g.CreateAdd(body, i.Node, q)
	i.Sources[1] = next

	g.CreateReturn(exit, start, i.Node)

	proc, err := Compile(g, util.Options{})
	if err != nil {
		t.Fatalf("Compile() error: %v", err)
	}
	assertClean(t, proc)
	assertFrame(t, proc)

	var sawIDiv bool
	for _, b := range proc.Blocks {
		for _, inst := range b.Instructions {
			if inst.Op == lir.IDiv {
				sawIDiv = true
			}
		}
	}
	if !sawIDiv {
		t.Errorf("division inside loop body was not lowered to idiv anywhere in the procedure")
	}
}

// TestCompileHardConstrainedCallSiteCollision builds a block with two
// successive calls where one argument to the second call is produced before
// the first call and must stay alive across it -- spec.md's explicit
// "two call sites in the same block" scenario.
func TestCompileHardConstrainedCallSiteCollision(t *testing.T) {
	g := ir.NewGraph("twocalls")
	entry := g.CreateBlock()
	start := g.CreateStart(entry)
	x := g.CreateArg(entry, ir.ModeInt32, 0)
	addr := g.CreateAddress(entry, "print_int")

	survivor := g.CreateAdd(entry, x, x)
	call1 := g.CreateCall(entry, start, addr, x)
	call2 := g.CreateCall(entry, call1, addr, survivor)
	g.CreateReturn(entry, call2, nil)

	proc, err := Compile(g, util.Options{})
	if err != nil {
		t.Fatalf("Compile() error: %v", err)
	}
	assertClean(t, proc)
	assertFrame(t, proc)

	var calls int
	for _, inst := range proc.Entry().Instructions {
		if inst.Op == lir.Call {
			calls++
		}
	}
	if calls != 2 {
		t.Errorf("saw %d call instructions, want 2", calls)
	}
}

// TestCompileThreeWayPhiRotationBreaksCycle builds a loop that rotates three
// loop-carried values every iteration (next_a=c, next_b=a, next_c=b) -- the
// shape most likely to force a register permutation cycle across the back
// edge (spec §9's 3-cycle scenario), and checks Compile still produces a
// clean procedure rather than erroring or silently corrupting a value.
func TestCompileThreeWayPhiRotationBreaksCycle(t *testing.T) {
	g := ir.NewGraph("rotate")
	entry := g.CreateBlock()
	header := g.CreateBlock()
	body := g.CreateBlock()
	exit := g.CreateBlock()

	start := g.CreateStart(entry)
	za := g.CreateConst(entry, ir.ModeInt32, 1)
	zb := g.CreateConst(entry, ir.ModeInt32, 2)
	zc := g.CreateConst(entry, ir.ModeInt32, 3)
	limit := g.CreateConst(entry, ir.ModeInt32, 5)

	ir.AddEdge(entry, header)
	ir.AddEdge(header, body)
	ir.AddEdge(header, exit)
	ir.AddEdge(body, header)

	a := g.CreatePhi(header, ir.ModeInt32, []*ir.Node{za, nil})
	b := g.CreatePhi(header, ir.ModeInt32, []*ir.Node{zb, nil})
	c := g.CreatePhi(header, ir.ModeInt32, []*ir.Node{zc, nil})
	cmp := g.CreateCmp(header, ir.RelLt, a.Node, limit)
	g.CreateCond(header, cmp)

	a.Sources[1] = c.Node
	b.Sources[1] = a.Node
	c.Sources[1] = b.Node

	sum := g.CreateAdd(exit, a.Node, b.Node)
	sum = g.CreateAdd(exit, sum, c.Node)
	g.CreateReturn(exit, start, sum)

	proc, err := Compile(g, util.Options{})
	if err != nil {
		t.Fatalf("Compile() error: %v", err)
	}
	assertClean(t, proc)
	assertFrame(t, proc)
}

func TestCompileLongImmediateProducesCleanProcedure(t *testing.T) {
	g := ir.NewGraph("longimm")
	entry := g.CreateBlock()
	start := g.CreateStart(entry)
	big := g.CreateConst(entry, ir.ModeInt64, 0x100000000)
	g.CreateReturn(entry, start, big)

	proc, err := Compile(g, util.Options{})
	if err != nil {
		t.Fatalf("Compile() error: %v", err)
	}
	assertClean(t, proc)
	assertFrame(t, proc)
}

func TestCompileModuleSequentialAndParallelAgree(t *testing.T) {
	newGraph := func(name string, v int64) *ir.Graph {
		g := ir.NewGraph(name)
		entry := g.CreateBlock()
		start := g.CreateStart(entry)
		c := g.CreateConst(entry, ir.ModeInt32, v)
		g.CreateReturn(entry, start, c)
		return g
	}
	gs := []*ir.Graph{newGraph("f0", 1), newGraph("f1", 2), newGraph("f2", 3), newGraph("f3", 4)}

	seq, err := CompileModule(gs, util.Options{Threads: 1})
	if err != nil {
		t.Fatalf("CompileModule(sequential) error: %v", err)
	}
	par, err := CompileModule(gs, util.Options{Threads: 4})
	if err != nil {
		t.Fatalf("CompileModule(parallel) error: %v", err)
	}
	if len(seq) != len(par) {
		t.Fatalf("len(seq)=%d len(par)=%d", len(seq), len(par))
	}
	for i := range seq {
		if seq[i].Name != par[i].Name {
			t.Errorf("procedure %d: sequential name %q, parallel name %q", i, seq[i].Name, par[i].Name)
		}
	}
}

func TestEmitTextWriterPrintsEveryBlockLabel(t *testing.T) {
	g := ir.NewGraph("labeled")
	entry := g.CreateBlock()
	start := g.CreateStart(entry)
	c := g.CreateConst(entry, ir.ModeInt32, 42)
	g.CreateReturn(entry, start, c)

	proc, err := Compile(g, util.Options{})
	if err != nil {
		t.Fatalf("Compile() error: %v", err)
	}

	var sb strings.Builder
	tw := emit.NewTextWriter(&sb)
	Emit(proc, tw)
	if err := tw.Flush(); err != nil {
		t.Fatalf("Flush() error: %v", err)
	}

	out := sb.String()
	if !strings.Contains(out, "labeled:") {
		t.Errorf("emitted text missing entry label %q:\n%s", "labeled:", out)
	}
	if !strings.Contains(out, "ret") {
		t.Errorf("emitted text missing ret:\n%s", out)
	}
}
