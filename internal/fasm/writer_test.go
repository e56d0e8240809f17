package fasm

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"fasmgen/internal/x86"
)

func newTestWriter() (*Writer, *bytes.Buffer) {
	var buf bytes.Buffer
	return NewWriter(&buf), &buf
}

func expectContract(t *testing.T, want string, fn func()) {
	t.Helper()
	defer func() {
		t.Helper()
		r := recover()
		if r == nil {
			t.Fatalf("expected contract violation containing %q, got none", want)
		}
		ce, ok := r.(*x86.ContractError)
		if !ok {
			t.Fatalf("expected *x86.ContractError, got %T: %v", r, r)
		}
		if !strings.Contains(ce.Error(), want) {
			t.Fatalf("contract error %q does not contain %q", ce.Error(), want)
		}
	}()
	fn()
}

func mustEmit(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// ---------------------------------------------------------------------------
// End-to-end scenarios
// ---------------------------------------------------------------------------

func TestMovImmediateToMemory(t *testing.T) {
	w, buf := newTestWriter()
	mustEmit(t, w.Mov(x86.RAX.Mem(), x86.Imm(uint32(42))))
	if got := buf.String(); got != "    mov [rax], 42\n" {
		t.Fatalf("got %q", got)
	}
}

func TestMovScaledIndex(t *testing.T) {
	w, buf := newTestWriter()
	mem := x86.RBX.Mem().Scaled(x86.RCX, x86.Scale4).Add(8)
	mustEmit(t, w.Mov(x86.EAX, mem))
	if got := buf.String(); got != "    mov eax, [rbx + rcx * 4 + 8]\n" {
		t.Fatalf("got %q", got)
	}
}

func TestEntryAndLabel(t *testing.T) {
	w, buf := newTestWriter()
	start := w.AddLabel("_start")
	mustEmit(t, w.Entry(start))
	mustEmit(t, w.EmitLabel(start))
	if got := buf.String(); got != "entry _start\n    _start:\n" {
		t.Fatalf("got %q", got)
	}
}

func TestPushRet(t *testing.T) {
	w, buf := newTestWriter()
	mustEmit(t, w.Push(x86.RDI))
	mustEmit(t, w.Ret())
	if got := buf.String(); got != "    push rdi\n    ret\n" {
		t.Fatalf("got %q", got)
	}
}

func TestNullaryLines(t *testing.T) {
	w, buf := newTestWriter()
	for _, m := range []string{"syscall", "leave", "cqo", "nop"} {
		mustEmit(t, w.Instr(m))
	}
	mustEmit(t, w.Nullary("ret"))
	if got := buf.String(); got != "    syscall\n    leave\n    cqo\n    nop\n    ret\n" {
		t.Fatalf("got %q", got)
	}
}

func TestLabelWithNegativeOffset(t *testing.T) {
	w, buf := newTestWriter()
	table := w.AddLabel("table")
	mem := x86.Absolute().WithLabel(table).Add(-4).WithSize(x86.SizeDWord)
	mustEmit(t, w.Push(mem))
	if got := buf.String(); got != "    push dword [table - 4]\n" {
		t.Fatalf("got %q", got)
	}
}

func TestPreludeAndSegments(t *testing.T) {
	w, buf := newTestWriter()
	mustEmit(t, w.Prelude())
	mustEmit(t, w.Segment(true, false, true))
	mustEmit(t, w.Segment(true, true, false))
	mustEmit(t, w.Segment(false, false, false))
	mustEmit(t, w.Segment(true, true, true))
	want := "format ELF64 executable\n" +
		"segment readable executable\n" +
		"segment readable writable\n" +
		"segment\n" +
		"segment readable writable executable\n"
	if got := buf.String(); got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

// ---------------------------------------------------------------------------
// Memory rendering
// ---------------------------------------------------------------------------

func TestMemoryRendering(t *testing.T) {
	w, _ := newTestWriter()
	msg := w.AddLabel("msg")

	tests := []struct {
		name string
		mem  x86.Memory
		want string
	}{
		{"base", x86.RSP.Mem(), "[rsp]"},
		{"base plus offset", x86.RBP.Mem().Add(16), "[rbp + 16]"},
		{"base minus offset", x86.RBP.Mem().Add(-8), "[rbp - 8]"},
		{"index only", x86.Absolute().Scaled(x86.RDI, x86.Scale8), "[rdi * 8]"},
		{"index scale one", x86.Absolute().Index(x86.RDI), "[rdi]"},
		{"base index", x86.RAX.Mem().Index(x86.RBX), "[rax + rbx]"},
		{"base index scale offset", x86.R8.Mem().Scaled(x86.R9, x86.Scale2).Add(-1), "[r8 + r9 * 2 - 1]"},
		{"rip label", x86.Rip(msg), "[rip + msg]"},
		{"rip label offset", x86.Rip(msg).Add(3), "[rip + msg + 3]"},
		{"rip label negative", x86.Rip(msg).Add(-3), "[rip + msg - 3]"},
		{"label only", x86.Absolute().WithLabel(msg), "[msg]"},
		{"base label", x86.RBX.Mem().WithLabel(msg), "[rbx + msg]"},
		{"base label offset", x86.RBX.Mem().WithLabel(msg).Add(4), "[rbx + msg + 4]"},
		{"displacement only", x86.Absolute().WithOffset(4096), "[4096]"},
		{"negative displacement only", x86.Absolute().WithOffset(-4096), "[4096]"},
		{"sized", x86.RAX.Mem().WithSize(x86.SizeByte), "byte [rax]"},
		{"sized qword", x86.Rip(msg).WithSize(x86.SizeQWord), "qword [rip + msg]"},
		{"min int32", x86.RAX.Mem().WithOffset(-2147483648), "[rax - 2147483648]"},
	}
	for _, tt := range tests {
		var b strings.Builder
		w.printMemory(&b, tt.mem)
		if got := b.String(); got != tt.want {
			t.Errorf("%s: got %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestImmediateRendering(t *testing.T) {
	w, buf := newTestWriter()
	mustEmit(t, w.Mov(x86.RAX, x86.Imm(int64(-1))))
	mustEmit(t, w.Mov(x86.RAX, x86.Imm(uint64(1)<<63)))
	want := "    mov rax, -1\n    mov rax, 9223372036854775808\n"
	if got := buf.String(); got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

// ---------------------------------------------------------------------------
// Size agreement
// ---------------------------------------------------------------------------

func TestBinarySizeAgreement(t *testing.T) {
	w, buf := newTestWriter()
	l := w.AddLabel("value")

	mustEmit(t, w.Mov(x86.AL, x86.BL))
	mustEmit(t, w.Add(x86.RAX.Mem().WithSize(x86.SizeWord), x86.CX))
	mustEmit(t, w.Mov(x86.RAX, l))
	mustEmit(t, w.Binary("mov", x86.Imm(1), x86.Imm(2)))
	want := "    mov al, bl\n    add word [rax], cx\n    mov rax, value\n    mov 1, 2\n"
	if got := buf.String(); got != want {
		t.Fatalf("got %q, want %q", got, want)
	}

	expectContract(t, "operands do not have a common size", func() {
		_ = w.Mov(x86.AL, x86.AX)
	})
	expectContract(t, "operands do not have a common size", func() {
		_ = w.Mov(x86.RAX.Mem().WithSize(x86.SizeDWord), x86.RBX)
	})
}

func TestUnaryRequiresSize(t *testing.T) {
	w, buf := newTestWriter()
	l := w.AddLabel("f")
	expectContract(t, "operand does not have a known size", func() { _ = w.Push(x86.Imm(1)) })
	expectContract(t, "operand does not have a known size", func() { _ = w.Call(l) })
	expectContract(t, "operand does not have a known size", func() { _ = w.Pop(x86.RSP.Mem()) })
	if buf.Len() != 0 {
		t.Fatalf("contract violations must not write anything, got %q", buf.String())
	}
	mustEmit(t, w.Call(x86.Rip(l).WithSize(x86.SizeQWord)))
	if got := buf.String(); got != "    call qword [rip + f]\n" {
		t.Fatalf("got %q", got)
	}
}

func TestUnknownLabelWritesNothing(t *testing.T) {
	w, buf := newTestWriter()
	var other x86.Labels
	other.Add("a")
	foreign := other.Add("b")
	expectContract(t, "out of range", func() { _ = w.Jmp(foreign) })
	expectContract(t, "out of range", func() { _ = w.Mov(x86.RAX, x86.Rip(foreign)) })
	if buf.Len() != 0 {
		t.Fatalf("got partial output %q", buf.String())
	}
}

// ---------------------------------------------------------------------------
// Branches, shifts, extensions
// ---------------------------------------------------------------------------

func TestBranches(t *testing.T) {
	w, buf := newTestWriter()
	loop := w.AddLabel(".loop")
	mustEmit(t, w.Jmp(loop))
	mustEmit(t, w.Jcc(CondNE, loop))
	mustEmit(t, w.Jmp(x86.RAX))
	want := "    jmp .loop\n    jne .loop\n    jmp rax\n"
	if got := buf.String(); got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
	expectContract(t, "cannot be an immediate", func() { _ = w.Jmp(x86.Imm(0)) })
}

func TestShifts(t *testing.T) {
	w, buf := newTestWriter()
	mustEmit(t, w.Shl(x86.RAX, x86.Imm(3)))
	mustEmit(t, w.Sar(x86.EDX, x86.CL))
	want := "    shl rax, 3\n    sar edx, cl\n"
	if got := buf.String(); got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
	expectContract(t, "shift count", func() { _ = w.Shr(x86.RAX, x86.RCX) })
	expectContract(t, "known size", func() { _ = w.Shr(x86.RAX.Mem(), x86.Imm(1)) })
}

func TestExtensions(t *testing.T) {
	w, buf := newTestWriter()
	mustEmit(t, w.Movzx(x86.EAX, x86.BL))
	mustEmit(t, w.Movsx(x86.RAX, x86.RSI.Mem().WithSize(x86.SizeWord)))
	want := "    movzx eax, bl\n    movsx rax, word [rsi]\n"
	if got := buf.String(); got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
	expectContract(t, "not wider", func() { _ = w.Movzx(x86.AL, x86.BL) })
	expectContract(t, "byte or word", func() { _ = w.Movzx(x86.RAX, x86.EBX) })
	expectContract(t, "known size", func() { _ = w.Movzx(x86.RAX, x86.RBX.Mem()) })
}

func TestLeaDropsDeclaredSize(t *testing.T) {
	w, buf := newTestWriter()
	mustEmit(t, w.Lea(x86.RDI, x86.RSP.Mem().Add(8).WithSize(x86.SizeByte)))
	if got := buf.String(); got != "    lea rdi, [rsp + 8]\n" {
		t.Fatalf("got %q", got)
	}
}

func TestInstrDispatch(t *testing.T) {
	w, buf := newTestWriter()
	done := w.AddLabel("done")
	mustEmit(t, w.Instr("MOV", x86.RAX, x86.Imm(60)))
	mustEmit(t, w.Instr("imul", x86.RCX))
	mustEmit(t, w.Instr("imul", x86.RAX, x86.RCX))
	mustEmit(t, w.Instr("jz", done))
	mustEmit(t, w.Instr("lea", x86.RSI, x86.Rip(done)))
	mustEmit(t, w.Instr("syscall"))
	mustEmit(t, w.Instr("call", done))
	mustEmit(t, w.Instr("call", x86.RAX))
	want := "    mov rax, 60\n    imul rcx\n    imul rax, rcx\n    jz done\n    lea rsi, [rip + done]\n    syscall\n    call done\n    call rax\n"
	if got := buf.String(); got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
	expectContract(t, "unknown mnemonic", func() { _ = w.Instr("vaddps", x86.RAX) })
	expectContract(t, "expects 2 operand(s)", func() { _ = w.Instr("mov", x86.RAX) })
	expectContract(t, "memory operand", func() { _ = w.Instr("lea", x86.RAX, x86.RBX) })
	expectContract(t, "known size", func() { _ = w.Call(done) })
}

func TestRepertoire(t *testing.T) {
	for _, m := range Mnemonics() {
		if _, ok := Lookup(m); !ok {
			t.Errorf("Lookup(%q) failed", m)
		}
	}
	if f, ok := Lookup("jge"); !ok || f != FormBranch {
		t.Errorf("jge should be a branch, got %v %v", f, ok)
	}
	if _, ok := Lookup("hlt"); ok {
		t.Error("hlt is not part of the repertoire")
	}
}

// ---------------------------------------------------------------------------
// Sink failures
// ---------------------------------------------------------------------------

var errSink = errors.New("disk full")

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errSink }

func TestSinkFailureIsReported(t *testing.T) {
	w := NewWriter(failingWriter{})
	l := w.AddLabel("_start")
	if w.Labels() != 1 || w.LabelName(l) != "_start" {
		t.Fatal("label table not updated")
	}
	for name, err := range map[string]error{
		"prelude": w.Prelude(),
		"entry":   w.Entry(l),
		"label":   w.EmitLabel(l),
		"mov":     w.Mov(x86.RAX, x86.Imm(1)),
		"ret":     w.Ret(),
		"data":    w.StringData(l, "x"),
	} {
		if !errors.Is(err, errSink) {
			t.Errorf("%s: expected wrapped sink error, got %v", name, err)
		}
	}
	if w.LabelName(l) != "_start" {
		t.Fatal("sink failures must not disturb the label table")
	}
}

func TestComment(t *testing.T) {
	w, buf := newTestWriter()
	mustEmit(t, w.Comment("exit(0)"))
	if got := buf.String(); got != "    ; exit(0)\n" {
		t.Fatalf("got %q", got)
	}
	expectContract(t, "several lines", func() { _ = w.Comment("a\nb") })
}
