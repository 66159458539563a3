package lifetime

import (
	"testing"

	"github.com/sherter/minijavac/backend/x64/lir"
	"github.com/sherter/minijavac/backend/x64/linearize"
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

func TestAnalyzeBranchingDiamondPhiSpansBothPredecessors(t *testing.T) {
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

	res, err := Analyze(proc, rf)
	if err != nil {
		t.Fatalf("Analyze() error: %v", err)
	}

	exitLB := proc.Blocks[len(proc.Blocks)-1]
	phi := exitLB.Phis[0]
	iv, ok := res.Virtual[phi.Dest.ID]
	if !ok {
		t.Fatalf("no interval recorded for phi dest %s", phi.Dest)
	}
	if len(iv.Ranges) == 0 {
		t.Fatalf("phi dest interval has no ranges")
	}
	if iv.From() != res.BlockStart(exitLB) {
		t.Errorf("phi dest interval From() = %v, want block start %v", iv.From(), res.BlockStart(exitLB))
	}
}

func TestAnalyzeLoopCarriedValueStaysLiveAcrossBackEdge(t *testing.T) {
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

	// header.Preds is now [entry, body]; the back edge's source is patched
	// in below once the incremented value exists.
	i := g.CreatePhi(header, ir.ModeInt32, []*ir.Node{zero, nil})
	cmp := g.CreateCmp(header, ir.RelLt, i.Node, five)
	g.CreateCond(header, cmp)

	one := g.CreateConst(body, ir.ModeInt32, 1)
	next := g.CreateAdd(body, i.Node, one)
	i.Sources[1] = next

	g.CreateReturn(exit, start, i.Node)

	proc := compile(t, g, entry, "count")
	res, err := Analyze(proc, regfile.New())
	if err != nil {
		t.Fatalf("Analyze() error: %v", err)
	}

	headerLB := proc.Blocks[1]
	phi := headerLB.Phis[0]
	iv := res.Virtual[phi.Dest.ID]
	if iv == nil {
		t.Fatalf("no interval for loop phi")
	}
	bodyLB := proc.Blocks[2]
	if !iv.Covers(res.BlockStart(bodyLB)) {
		t.Errorf("loop phi interval does not cover loop body start; ranges=%v", iv.Ranges)
	}
}

func TestIntervalSplitBeforeRejoinsToOriginal(t *testing.T) {
	iv := &Interval{VReg: lir.VReg{ID: 1}, Root: lir.VReg{ID: 1}}
	iv.addRange(0, 20)
	iv.addUse(3, true)
	iv.addUse(9, false)
	iv.addUse(15, true)

	before, after := iv.SplitBefore(10)

	if before.To() != 10 || before.From() != 0 {
		t.Errorf("before range = [%d,%d), want [0,10)", before.From(), before.To())
	}
	if after.From() != 10 || after.To() != 20 {
		t.Errorf("after range = [%d,%d), want [10,20)", after.From(), after.To())
	}

	var rejoined []UseSite
	rejoined = append(rejoined, before.Uses...)
	rejoined = append(rejoined, after.Uses...)
	if len(rejoined) != len(iv.Uses) {
		t.Fatalf("len(rejoined uses) = %d, want %d", len(rejoined), len(iv.Uses))
	}
	for i, u := range iv.Uses {
		if rejoined[i] != u {
			t.Errorf("rejoined use %d = %+v, want %+v", i, rejoined[i], u)
		}
	}
}

func TestIntervalFirstUseNeedingRegisterSkipsMemoryEligibleUses(t *testing.T) {
	iv := &Interval{VReg: lir.VReg{ID: 1}}
	iv.addUse(3, true)
	iv.addUse(7, true)
	iv.addUse(11, false)
	iv.sortUses()

	u := iv.FirstUseNeedingRegister(0)
	if u == nil || u.Pos != 11 {
		t.Fatalf("FirstUseNeedingRegister(0) = %v, want pos 11", u)
	}
}

func TestFixedIntervalRecordedForConstrainedCallArgument(t *testing.T) {
	g := ir.NewGraph("callsite")
	entry := g.CreateBlock()
	start := g.CreateStart(entry)
	x := g.CreateArg(entry, ir.ModeInt32, 0)
	addr := g.CreateAddress(entry, "print_int")
	call := g.CreateCall(entry, start, addr, x)
	g.CreateReturn(entry, call, nil)

	proc := compile(t, g, entry, "callsite")
	rf := regfile.New()
	res, err := Analyze(proc, rf)
	if err != nil {
		t.Fatalf("Analyze() error: %v", err)
	}

	if len(res.Fixed) == 0 {
		t.Errorf("expected at least one FixedInterval for the call's constrained vregs")
	}
}
