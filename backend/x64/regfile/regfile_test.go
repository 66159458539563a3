package regfile

import "testing"

func TestArgRegsOrder(t *testing.T) {
	f := New()
	want := []string{"%rdi", "%rsi", "%rdx", "%rcx", "%r8", "%r9"}

	got := f.ArgRegs()
	if len(got) != len(want) {
		t.Fatalf("ArgRegs() returned %d registers, want %d", len(got), len(want))
	}
	for i, r := range got {
		if r.String() != want[i] {
			t.Errorf("ArgRegs()[%d] = %s, want %s", i, r.String(), want[i])
		}
	}
}

func TestReturnRegIsA(t *testing.T) {
	f := New()
	if got := f.ReturnReg().String(); got != "%rax" {
		t.Errorf("ReturnReg() = %s, want %%rax", got)
	}
}

func TestCalleeSaved(t *testing.T) {
	f := New()
	want := map[string]bool{"%rbx": true, "%rbp": true, "%r12": true, "%r13": true, "%r14": true, "%r15": true}

	got := f.CalleeSaved()
	if len(got) != len(want) {
		t.Fatalf("CalleeSaved() returned %d registers, want %d", len(got), len(want))
	}
	for _, r := range got {
		if !want[r.String()] {
			t.Errorf("CalleeSaved() includes unexpected register %s", r.String())
		}
	}
}

func TestDivideRegs(t *testing.T) {
	f := New()
	q, r := f.DivideRegs()
	if q.String() != "%rax" || r.String() != "%rdx" {
		t.Errorf("DivideRegs() = (%s, %s), want (%%rax, %%rdx)", q.String(), r.String())
	}
}

func TestSizedViews(t *testing.T) {
	f := New()
	a := f.ReturnReg()

	tests := []struct {
		w    Width
		want string
	}{
		{B8, "%al"},
		{B32, "%eax"},
		{B64, "%rax"},
	}
	for _, tc := range tests {
		if got := a.Sized(tc.w); got != tc.want {
			t.Errorf("Sized(%v) = %s, want %s", tc.w, got, tc.want)
		}
	}
}

func TestScratchIsDistinctFromArgAndReturnRegs(t *testing.T) {
	f := New()
	scratch := f.Scratch()
	if scratch.String() != "%r11" {
		t.Errorf("Scratch() = %s, want %%r11", scratch.String())
	}
	for _, r := range f.ArgRegs() {
		if r.Id() == scratch.Id() {
			t.Errorf("Scratch() collides with an argument register")
		}
	}
	if scratch.Id() == f.ReturnReg().Id() {
		t.Errorf("Scratch() collides with the return register")
	}
}

func TestRegistersHaveDistinctIds(t *testing.T) {
	f := New()
	seen := make(map[int]bool)
	for i := 0; i < f.N(); i++ {
		id := f.Get(i).Id()
		if seen[id] {
			t.Fatalf("duplicate register id %d at index %d", id, i)
		}
		seen[id] = true
	}
}
