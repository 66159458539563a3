// Package regfile provides type definitions for the x86-64 general-purpose
// register file and the System V AMD64 calling convention tables the rest of
// the backend reads off it.
package regfile

// ----------------------------
// ----- Type definitions -----
// ----------------------------

// Width selects which sub-register view of a general-purpose register an
// Operand refers to.
type Width int

const (
	B8  Width = iota // low byte, e.g. %al
	B32              // dword view, e.g. %eax
	B64              // qword view, e.g. %rax
)

// Register defines a physical x86-64 general-purpose register.
type Register interface {
	Id() int               // unique id, 0-15, in the order DI, SI, D, C, R8, R9, A, B, BP, SP, R10-R15
	String() string        // qword assembler mnemonic, e.g. "%rax"
	Sized(w Width) string  // assembler mnemonic at the given width, e.g. Sized(B32) == "%eax"
}

// RegisterFile enumerates the sixteen x86-64 GPRs and the calling-convention
// groupings the backend needs: argument registers, the return register,
// callee-saved registers and the A:D divide pair.
type RegisterFile interface {
	SP() Register          // stack pointer, %rsp
	FP() Register          // frame pointer, %rbp
	Get(i int) Register    // the i'th GPR by Id()
	N() int                // number of GPRs in the file (16)

	ArgRegs() []Register     // integer argument registers, in System V order
	ReturnReg() Register     // integer return register, %rax
	CalleeSaved() []Register // callee-saved registers per System V
	DivideRegs() (quotient, remainder Register) // %rax, %rdx
	Scratch() Register       // caller-clobbered register never issued by the allocator, for cycle-breaking moves
}

// ---------------------
// ----- Constants -----
// ---------------------

// Register ids, fixed so Id() values are stable across the package.
const (
	idDI = iota
	idSI
	idD
	idC
	idR8
	idR9
	idA
	idB
	idBP
	idSP
	idR10
	idR11
	idR12
	idR13
	idR14
	idR15
	numGPR
)

// -------------------
// ----- Globals -----
// -------------------

var names = [numGPR][3]string{
	idDI:  {"%dil", "%edi", "%rdi"},
	idSI:  {"%sil", "%esi", "%rsi"},
	idD:   {"%dl", "%edx", "%rdx"},
	idC:   {"%cl", "%ecx", "%rcx"},
	idR8:  {"%r8b", "%r8d", "%r8"},
	idR9:  {"%r9b", "%r9d", "%r9"},
	idA:   {"%al", "%eax", "%rax"},
	idB:   {"%bl", "%ebx", "%rbx"},
	idBP:  {"%bpl", "%ebp", "%rbp"},
	idSP:  {"%spl", "%esp", "%rsp"},
	idR10: {"%r10b", "%r10d", "%r10"},
	idR11: {"%r11b", "%r11d", "%r11"},
	idR12: {"%r12b", "%r12d", "%r12"},
	idR13: {"%r13b", "%r13d", "%r13"},
	idR14: {"%r14b", "%r14d", "%r14"},
	idR15: {"%r15b", "%r15d", "%r15"},
}

// ---------------------
// ----- Functions -----
// ---------------------

// register is the concrete Register implementation; only x64File constructs
// these, so every id is in range by construction.
type register struct {
	id int
}

func (r register) Id() int { return r.id }

func (r register) String() string { return names[r.id][2] }

func (r register) Sized(w Width) string {
	return names[r.id][w]
}

// x64File is the RegisterFile for the System V AMD64 calling convention.
type x64File struct {
	regs [numGPR]register
}

// New returns the x86-64 register file.
func New() RegisterFile {
	f := &x64File{}
	for i := 0; i < numGPR; i++ {
		f.regs[i] = register{id: i}
	}
	return f
}

func (f *x64File) SP() Register       { return f.regs[idSP] }
func (f *x64File) FP() Register       { return f.regs[idBP] }
func (f *x64File) Get(i int) Register { return f.regs[i] }
func (f *x64File) N() int             { return numGPR }

// ArgRegs returns the integer argument registers in System V order: DI, SI,
// D, C, R8, R9. Arguments beyond the sixth are passed on the stack, which
// this package does not model -- that is select's concern (spec §4.2).
func (f *x64File) ArgRegs() []Register {
	return []Register{f.regs[idDI], f.regs[idSI], f.regs[idD], f.regs[idC], f.regs[idR8], f.regs[idR9]}
}

func (f *x64File) ReturnReg() Register { return f.regs[idA] }

// CalleeSaved returns BX, BP, R12-R15. BP is included even though it also
// serves as the frame pointer: a procedure that does not need a frame
// pointer may still use it as a general callee-saved register.
func (f *x64File) CalleeSaved() []Register {
	return []Register{f.regs[idB], f.regs[idBP], f.regs[idR12], f.regs[idR13], f.regs[idR14], f.regs[idR15]}
}

func (f *x64File) DivideRegs() (Register, Register) {
	return f.regs[idA], f.regs[idD]
}

// Scratch returns %r11: caller-clobbered per System V, never an argument or
// return register, and withheld from the allocator (regalloc.allocatable)
// so resolve always has one free register for breaking a Phi-permutation
// cycle that isn't a simple swap.
func (f *x64File) Scratch() Register { return f.regs[idR11] }
