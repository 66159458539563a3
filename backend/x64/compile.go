// Package x64 orchestrates the backend core's five stages -- linearisation,
// instruction selection, lifetime analysis, register allocation and move
// resolution -- into the single entry point a driver calls per procedure,
// plus prologue/epilogue insertion and control-flow lowering, the two steps
// that only make sense once every other stage has committed to a final
// block order and a final set of physical locations (spec.md §5, §6).
package x64

import (
	"fmt"
	"sync"

	"github.com/sherter/minijavac/backend/x64/emit"
	"github.com/sherter/minijavac/backend/x64/lifetime"
	"github.com/sherter/minijavac/backend/x64/linearize"
	"github.com/sherter/minijavac/backend/x64/lir"
	"github.com/sherter/minijavac/backend/x64/regalloc"
	"github.com/sherter/minijavac/backend/x64/regfile"
	"github.com/sherter/minijavac/backend/x64/resolve"
	selector "github.com/sherter/minijavac/backend/x64/select"
	"github.com/sherter/minijavac/ir"
	"github.com/sherter/minijavac/util"
)

// stackAlign is the System V AMD64 stack alignment requirement at a call
// instruction (spec.md §6 "the stack pointer must be 16-byte aligned at the
// call instruction").
const stackAlign = 16

// Compile runs the backend core's five stages over g's entry block and
// returns the finished procedure: every Operand names a physical register
// or a stack slot, every Phi is gone, and the prologue/epilogue and the
// block-exit jumps are already spliced in. g.Name becomes the procedure's
// label and, for the entry block, its externally callable symbol -- name
// mangling happens before the graph reaches this package (spec.md §1, §6).
func Compile(g *ir.Graph, opt util.Options) (*lir.Procedure, error) {
	if len(g.Blocks) == 0 {
		return nil, fmt.Errorf("x64: graph %q has no blocks", g.Name)
	}
	entry := g.Blocks[0]

	order, err := linearize.Linearize(entry)
	if err != nil {
		return nil, fmt.Errorf("x64: %s: %w", g.Name, err)
	}
	opt.Logf("%s: linearized %d blocks", g.Name, len(order))

	proc := lir.NewProcedure(g.Name)
	rf := regfile.New()
	mangler := util.NewMangler(opt.TargetVendor)

	if err := selector.Select(order, proc, rf, mangler); err != nil {
		return nil, fmt.Errorf("x64: %s: select: %w", g.Name, err)
	}

	life, err := lifetime.Analyze(proc, rf)
	if err != nil {
		return nil, fmt.Errorf("x64: %s: lifetime: %w", g.Name, err)
	}

	alloc, err := regalloc.Allocate(life, proc.StackSlots, rf)
	if err != nil {
		return nil, fmt.Errorf("x64: %s: regalloc: %w", g.Name, err)
	}
	opt.Logf("%s: %d stack slot(s) after allocation", g.Name, alloc.Slots.Len())

	if err := resolve.Resolve(proc, life, alloc, rf); err != nil {
		return nil, fmt.Errorf("x64: %s: resolve: %w", g.Name, err)
	}

	insertPrologueEpilogue(proc, alloc.Slots, rf)
	lowerControlFlow(proc)

	return proc, nil
}

// CompileModule runs Compile over every graph in gs. When opt.Threads > 1 it
// fans the work out across that many goroutines, each claiming a contiguous
// slice of gs, collecting errors through a util.Perror the way the
// teacher's AllocateRegisters splits one parallel job across workers;
// otherwise it compiles sequentially so results and error order stay
// deterministic (spec.md §5 -- the core is not required to parallelize, but
// must support a driver that does). The returned slice is in the same order
// as gs regardless of how many threads ran.
func CompileModule(gs []*ir.Graph, opt util.Options) ([]*lir.Procedure, error) {
	procs := make([]*lir.Procedure, len(gs))

	if opt.Threads <= 1 || len(gs) <= 1 {
		for i, g := range gs {
			p, err := Compile(g, opt)
			if err != nil {
				return nil, err
			}
			procs[i] = p
		}
		return procs, nil
	}

	t := opt.Threads
	if t > len(gs) {
		t = len(gs)
	}
	n := len(gs) / t
	rem := len(gs) % t

	perr := util.NewPerror(t)
	var wg sync.WaitGroup
	wg.Add(t)

	start := 0
	for i := 0; i < t; i++ {
		end := start + n
		if i < rem {
			end++
		}
		go func(start, end int) {
			defer wg.Done()
			for i := start; i < end; i++ {
				p, err := Compile(gs[i], opt)
				if err != nil {
					perr.Append(err)
					continue
				}
				procs[i] = p
			}
		}(start, end)
		start = end
	}

	wg.Wait()
	perr.Stop()
	if errs := perr.Errors(); len(errs) > 0 {
		return nil, fmt.Errorf("x64: %d error(s) during parallel compilation: %w", len(errs), errs[0])
	}
	return procs, nil
}

// Emit drives e over proc's finished blocks in order: one Label per block
// (the entry block's label is proc.Name itself, the symbol a caller links
// against) followed by that block's Instructions. Compile must have already
// run resolve and lowerControlFlow, or e will see virtual registers and
// blocks with no explicit jump.
func Emit(proc *lir.Procedure, e emit.Emitter) {
	for i, b := range proc.Blocks {
		e.Label(blockLabel(proc, b, i))
		for _, inst := range b.Instructions {
			e.Instruction(inst)
		}
	}
}

// blockLabel returns the symbol lowerControlFlow and Emit use for block b:
// proc.Name for the first block in compiled order (the procedure's entry,
// and its externally callable symbol), an internal label otherwise.
func blockLabel(proc *lir.Procedure, b *lir.Block, ordinal int) string {
	if ordinal == 0 {
		return proc.Name
	}
	return fmt.Sprintf(".L%s_%d", proc.Name, b.Id())
}

// frameSize returns the byte size of the stack frame Compile must carve out
// below the saved base pointer, rounded up to stackAlign so a call inside
// the procedure still sees a 16-byte-aligned stack pointer (spec.md §6).
func frameSize(slots *lir.SlotSupply) int32 {
	n := int32(slots.Len()) * 8
	if rem := n % stackAlign; rem != 0 {
		n += stackAlign - rem
	}
	return n
}

// insertPrologueEpilogue prepends the System V frame setup to proc's entry
// block and appends the matching teardown immediately before every Ret
// (spec.md §6: "push base pointer, move stack pointer to base pointer,
// subtract frame size" at entry, mirrored at every return block). A
// procedure with no spills and no call-induced stack traffic still gets the
// saved base pointer -- spec.md's "empty body" edge case names exactly this.
func insertPrologueEpilogue(proc *lir.Procedure, slots *lir.SlotSupply, rf regfile.RegisterFile) {
	size := frameSize(slots)
	sp, fp := rf.SP(), rf.FP()

	prologue := []*lir.Instruction{
		{Op: lir.Push, Uses: []lir.Operand{regOperand(fp)}},
		{Op: lir.Mov, Defs: []lir.Operand{regOperand(fp)}, Uses: []lir.Operand{regOperand(sp)}},
	}
	if size > 0 {
		prologue = append(prologue, &lir.Instruction{
			Op: lir.Sub, Defs: []lir.Operand{regOperand(sp)}, Uses: []lir.Operand{lir.NewImm(int64(size), regfile.B64)},
		})
	}
	entry := proc.Entry()
	entry.Instructions = append(prologue, entry.Instructions...)

	for _, b := range proc.Blocks {
		if b.Exit.Kind != lir.ExitReturn {
			continue
		}
		retIdx := len(b.Instructions) - 1
		epilogue := []*lir.Instruction{
			{Op: lir.Pop, Defs: []lir.Operand{regOperand(fp)}},
		}
		if size > 0 {
			epilogue = append([]*lir.Instruction{
				{Op: lir.Add, Defs: []lir.Operand{regOperand(sp)}, Uses: []lir.Operand{lir.NewImm(int64(size), regfile.B64)}},
			}, epilogue...)
		}
		b.Instructions = append(b.Instructions[:retIdx], append(epilogue, b.Instructions[retIdx:]...)...)
	}
}

// regOperand wraps a physical register as a Reg operand at qword width, the
// width every frame-management instruction uses.
func regOperand(r regfile.Register) lir.Operand {
	return lir.NewReg(lir.VReg{Constraint: r}, regfile.B64)
}

// lowerControlFlow replaces every Block.Exit with the explicit Jmp/Jcc
// instructions it implies, now that block order is final and every block
// has a label (spec.md §4.1, §6 "label references"). It always emits an
// explicit jump rather than relying on fall-through to the next block in
// proc.Blocks, since resolve's critical-edge splitting appends new blocks to
// the end of that slice instead of interleaving them (backend/x64/resolve).
func lowerControlFlow(proc *lir.Procedure) {
	labels := make(map[*lir.Block]string, len(proc.Blocks))
	for i, b := range proc.Blocks {
		labels[b] = blockLabel(proc, b, i)
	}
	for _, b := range proc.Blocks {
		switch b.Exit.Kind {
		case lir.ExitJump:
			b.Append(&lir.Instruction{Op: lir.Jmp, Target: labels[b.Exit.Next]})
		case lir.ExitBranch:
			b.Append(&lir.Instruction{Op: lir.Jcc, Rel: b.Exit.Rel, Target: labels[b.Exit.True]})
			b.Append(&lir.Instruction{Op: lir.Jmp, Target: labels[b.Exit.False]})
		}
	}
}
