package selector

import (
	"testing"

	"github.com/sherter/minijavac/backend/x64/lir"
	"github.com/sherter/minijavac/backend/x64/linearize"
	"github.com/sherter/minijavac/backend/x64/regfile"
	"github.com/sherter/minijavac/ir"
	"github.com/sherter/minijavac/util"
)

func TestSelectBranchingDiamond(t *testing.T) {
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

	order, err := linearize.Linearize(entry)
	if err != nil {
		t.Fatalf("Linearize() error: %v", err)
	}

	proc := lir.NewProcedure("diamond")
	rf := regfile.New()
	mangler := util.NewMangler(util.Linux)

	if err := Select(order, proc, rf, mangler); err != nil {
		t.Fatalf("Select() error: %v", err)
	}

	if len(proc.Blocks) != 4 {
		t.Fatalf("len(proc.Blocks) = %d, want 4", len(proc.Blocks))
	}

	entryLB := proc.Blocks[0]
	if entryLB.Exit.Kind != lir.ExitBranch {
		t.Fatalf("entry block Exit.Kind = %v, want ExitBranch", entryLB.Exit.Kind)
	}

	exitLB := proc.Blocks[len(proc.Blocks)-1]
	if len(exitLB.Phis) != 1 {
		t.Fatalf("len(exit.Phis) = %d, want 1", len(exitLB.Phis))
	}
	if len(exitLB.Phis[0].Sources) != 2 {
		t.Fatalf("len(exit.Phis[0].Sources) = %d, want 2", len(exitLB.Phis[0].Sources))
	}
}

func TestSelectDivMod(t *testing.T) {
	g := ir.NewGraph("divmod")
	entry := g.CreateBlock()
	start := g.CreateStart(entry)
	x := g.CreateArg(entry, ir.ModeInt32, 0)
	seven := g.CreateConst(entry, ir.ModeInt32, 7)
	q := g.CreateDiv(entry, x, seven)
	g.CreateReturn(entry, start, q)

	order, err := linearize.Linearize(entry)
	if err != nil {
		t.Fatalf("Linearize() error: %v", err)
	}

	proc := lir.NewProcedure("divmod")
	rf := regfile.New()
	mangler := util.NewMangler(util.Linux)

	if err := Select(order, proc, rf, mangler); err != nil {
		t.Fatalf("Select() error: %v", err)
	}

	var sawCltd, sawIDiv bool
	for _, inst := range proc.Blocks[0].Instructions {
		switch inst.Op {
		case lir.Cltd:
			sawCltd = true
		case lir.IDiv:
			sawIDiv = true
		}
	}
	if !sawCltd || !sawIDiv {
		t.Errorf("division lowering missing Cltd/IDiv: cltd=%v idiv=%v", sawCltd, sawIDiv)
	}
}

func TestSelectLongImmediateIsMaterialised(t *testing.T) {
	g := ir.NewGraph("longimm")
	entry := g.CreateBlock()
	start := g.CreateStart(entry)
	big := g.CreateConst(entry, ir.ModeInt64, 0x100000000)
	g.CreateReturn(entry, start, big)

	order, err := linearize.Linearize(entry)
	if err != nil {
		t.Fatalf("Linearize() error: %v", err)
	}

	proc := lir.NewProcedure("longimm")
	if err := Select(order, proc, regfile.New(), util.NewMangler(util.Linux)); err != nil {
		t.Fatalf("Select() error: %v", err)
	}

	var sawWideMov bool
	for _, inst := range proc.Blocks[0].Instructions {
		if inst.Op == lir.Mov && len(inst.Uses) == 1 && inst.Uses[0].Kind == lir.Imm && inst.Uses[0].Imm == 0x100000000 {
			sawWideMov = true
		}
	}
	if !sawWideMov {
		t.Errorf("64-bit constant was not materialised via a dedicated mov")
	}
}
