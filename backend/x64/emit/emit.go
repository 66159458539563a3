// Package emit defines the boundary between the backend core and a real
// assembler emitter: a minimal Emitter interface the core drives, plus a
// TextWriter reference implementation. The core never opens a file or talks
// to the filesystem itself (spec.md §1, §6) -- by the time a *lir.Procedure
// reaches this package, prologue/epilogue insertion and move resolution have
// already run, so Emitter only ever sees a flat, already-physical
// instruction stream to print or assemble.
package emit

import (
	"bufio"
	"fmt"
	"io"

	"github.com/sherter/minijavac/backend/x64/lir"
)

// Emitter receives a procedure's finished instruction stream in order.
// Label marks the start of a new basic block or the procedure entry;
// Instruction is called once per lir.Instruction within that block, in
// list order.
type Emitter interface {
	Label(name string)
	Instruction(i *lir.Instruction)
}

// TextWriter is a reference Emitter: it prints each label and instruction
// using lir's own assembly-text String() conventions, mirroring the
// teacher's Writer.Label/Ins* convention but over a plain io.Writer rather
// than the teacher's channel-multiplexed buffer, since the core has no
// goroutine-per-procedure output contention to arbitrate -- Compile already
// serializes a single procedure's emission, and CompileModule's caller owns
// ordering the per-procedure outputs it collects.
type TextWriter struct {
	w *bufio.Writer
}

// NewTextWriter returns a TextWriter that prints to w.
func NewTextWriter(w io.Writer) *TextWriter {
	return &TextWriter{w: bufio.NewWriter(w)}
}

// Label prints name as an assembler label.
func (t *TextWriter) Label(name string) {
	fmt.Fprintf(t.w, "%s:\n", name)
}

// Instruction prints i the way lir.Instruction.String formats it.
func (t *TextWriter) Instruction(i *lir.Instruction) {
	fmt.Fprintln(t.w, i.String())
}

// Flush pushes any buffered output to the underlying io.Writer. Callers
// must call it once after driving every Label/Instruction call, the same
// way bufio.Writer always requires.
func (t *TextWriter) Flush() error {
	return t.w.Flush()
}
