package fasm

import (
	"fmt"
	"io"
	"strings"

	"fasmgen/internal/x86"
)

// ---------------------------------------------------------------------------
// FASM source writer
//
// Writer renders instructions and directives as lines of flat assembler
// source. Every method builds its whole line first (running all operand
// checks and label lookups) and hands it to the sink in a single Write, so a
// contract violation never leaves half a line behind and a sink failure
// never touches the label table.
//
// A Writer is not safe for concurrent use.
// ---------------------------------------------------------------------------

const indent = "    "

// Writer emits FASM source to an io.Writer.
type Writer struct {
	labels x86.Labels
	out    io.Writer
}

// NewWriter returns a Writer that writes to out. Buffering, if any, is the
// business of out.
func NewWriter(out io.Writer) *Writer {
	return &Writer{out: out}
}

// AddLabel registers a label name and returns its handle.
func (w *Writer) AddLabel(name string) x86.Label {
	return w.labels.Add(name)
}

// LabelName resolves a handle issued by AddLabel.
func (w *Writer) LabelName(l x86.Label) string {
	return w.labels.Name(l)
}

// Labels returns the number of labels registered so far.
func (w *Writer) Labels() int {
	return w.labels.Len()
}

// writeLine sends one complete line to the sink.
func (w *Writer) writeLine(what, line string) error {
	if _, err := io.WriteString(w.out, line+"\n"); err != nil {
		return fmt.Errorf("fasm: writing %s: %w", what, err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Directives
// ---------------------------------------------------------------------------

// Prelude writes the format header for a 64-bit ELF executable.
func (w *Writer) Prelude() error {
	return w.writeLine("format", "format ELF64 executable")
}

// Segment writes a segment directive with the requested attributes, always
// in readable, writable, executable order.
func (w *Writer) Segment(readable, writable, executable bool) error {
	var b strings.Builder
	b.WriteString("segment")
	if readable {
		b.WriteString(" readable")
	}
	if writable {
		b.WriteString(" writable")
	}
	if executable {
		b.WriteString(" executable")
	}
	return w.writeLine("segment", b.String())
}

// Entry writes the entry point directive.
func (w *Writer) Entry(l x86.Label) error {
	return w.writeLine("entry", "entry "+w.labels.Name(l))
}

// EmitLabel writes a label definition.
func (w *Writer) EmitLabel(l x86.Label) error {
	return w.writeLine("label", indent+w.labels.Name(l)+":")
}

// Comment writes a comment line. The text must fit on one line.
func (w *Writer) Comment(text string) error {
	if strings.ContainsAny(text, "\r\n") {
		x86.Violate("Comment", "comment text spans several lines")
	}
	return w.writeLine("comment", indent+"; "+text)
}

// ---------------------------------------------------------------------------
// Operand rendering
// ---------------------------------------------------------------------------

func (w *Writer) printOperand(b *strings.Builder, op x86.Operand) {
	switch op.Kind {
	case x86.OpImmediate:
		b.WriteString(op.Imm.String())
	case x86.OpLabel:
		b.WriteString(w.labels.Name(op.Label))
	case x86.OpRegister:
		b.WriteString(op.Reg.String())
	case x86.OpMemory:
		w.printMemory(b, op.Mem)
	default:
		x86.Violate("printOperand", "unknown operand kind %d", uint8(op.Kind))
	}
}

func (w *Writer) printMemory(b *strings.Builder, mem x86.Memory) {
	if mem.Size.Known() {
		b.WriteString(mem.Size.Keyword())
		b.WriteByte(' ')
	}
	b.WriteByte('[')

	var hasBase bool
	switch mem.Kind {
	case x86.MemRip:
		b.WriteString("rip")
		hasBase = true
	case x86.MemSib:
		sib := mem.Sib
		if sib.HasBase {
			b.WriteString(sib.Base.String())
		}
		if sib.HasIndex {
			if sib.HasBase {
				b.WriteString(" + ")
			}
			b.WriteString(sib.Index.String())
			if sib.Scale != x86.Scale1 {
				fmt.Fprintf(b, " * %d", sib.Scale.Numeric())
			}
		}
		hasBase = sib.HasBase || sib.HasIndex
	default:
		x86.Violate("printMemory", "unknown addressing kind %d", uint8(mem.Kind))
	}

	hasLabel := false
	if mem.Label.Valid() {
		if hasBase {
			b.WriteString(" + ")
		}
		b.WriteString(w.labels.Name(mem.Label))
		hasLabel = true
	}

	if mem.Offset != 0 {
		preceded := hasBase || hasLabel
		switch {
		case preceded && mem.Offset < 0:
			b.WriteString(" - ")
		case preceded:
			b.WriteString(" + ")
		}
		// A leading displacement is written as its magnitude, without a sign.
		fmt.Fprintf(b, "%d", absOffset(mem.Offset))
	}
	b.WriteByte(']')
}

func absOffset(v int32) uint32 {
	if v < 0 {
		return uint32(-int64(v))
	}
	return uint32(v)
}

// ---------------------------------------------------------------------------
// Instructions
// ---------------------------------------------------------------------------

// Unary emits a one-operand instruction. The operand must have a known
// size.
func (w *Writer) Unary(mnemonic string, to x86.Arg) error {
	op := to.Operand()
	if !op.Size().Known() {
		x86.Violate(mnemonic, "operand does not have a known size")
	}
	var b strings.Builder
	b.WriteString(indent + mnemonic + " ")
	w.printOperand(&b, op)
	return w.writeLine(mnemonic, b.String())
}

// Binary emits a two-operand instruction. The operands must agree on their
// size, where an unsized operand agrees with anything.
func (w *Writer) Binary(mnemonic string, to, from x86.Arg) error {
	dst, src := to.Operand(), from.Operand()
	if _, ok := x86.CommonSize(dst.Size(), src.Size()); !ok {
		x86.Violate(mnemonic, "operands do not have a common size (%s, %s)", dst.Size(), src.Size())
	}
	return w.writeLine(mnemonic, w.instrLine(mnemonic, dst, src))
}

// Nullary emits an instruction without operands.
func (w *Writer) Nullary(mnemonic string) error {
	return w.writeLine(mnemonic, indent+mnemonic)
}

func (w *Writer) instrLine(mnemonic string, ops ...x86.Operand) string {
	var b strings.Builder
	b.WriteString(indent + mnemonic)
	for i, op := range ops {
		if i == 0 {
			b.WriteByte(' ')
		} else {
			b.WriteString(", ")
		}
		w.printOperand(&b, op)
	}
	return b.String()
}

func (w *Writer) Call(to x86.Arg) error { return w.Unary("call", to) }
func (w *Writer) Push(to x86.Arg) error { return w.Unary("push", to) }
func (w *Writer) Pop(to x86.Arg) error  { return w.Unary("pop", to) }
func (w *Writer) Inc(to x86.Arg) error  { return w.Unary("inc", to) }
func (w *Writer) Dec(to x86.Arg) error  { return w.Unary("dec", to) }
func (w *Writer) Neg(to x86.Arg) error  { return w.Unary("neg", to) }
func (w *Writer) Not(to x86.Arg) error  { return w.Unary("not", to) }
func (w *Writer) Mul(to x86.Arg) error  { return w.Unary("mul", to) }
func (w *Writer) Div(to x86.Arg) error  { return w.Unary("div", to) }
func (w *Writer) Idiv(to x86.Arg) error { return w.Unary("idiv", to) }

// Imul1 is the one-operand form of imul (rdx:rax = rax * to).
func (w *Writer) Imul1(to x86.Arg) error { return w.Unary("imul", to) }

func (w *Writer) Mov(to, from x86.Arg) error  { return w.Binary("mov", to, from) }
func (w *Writer) Add(to, from x86.Arg) error  { return w.Binary("add", to, from) }
func (w *Writer) Sub(to, from x86.Arg) error  { return w.Binary("sub", to, from) }
func (w *Writer) And(to, from x86.Arg) error  { return w.Binary("and", to, from) }
func (w *Writer) Or(to, from x86.Arg) error   { return w.Binary("or", to, from) }
func (w *Writer) Xor(to, from x86.Arg) error  { return w.Binary("xor", to, from) }
func (w *Writer) Cmp(to, from x86.Arg) error  { return w.Binary("cmp", to, from) }
func (w *Writer) Test(to, from x86.Arg) error { return w.Binary("test", to, from) }
func (w *Writer) Xchg(to, from x86.Arg) error { return w.Binary("xchg", to, from) }
func (w *Writer) Imul(to, from x86.Arg) error { return w.Binary("imul", to, from) }

// Lea loads an effective address. The destination fixes the size, the
// address itself is not accessed.
func (w *Writer) Lea(to x86.Reg, addr x86.Memory) error {
	return w.Binary("lea", to, addr.WithSize(x86.NoSize))
}

func (w *Writer) Ret() error { return w.Nullary("ret") }

// ---------------------------------------------------------------------------
// Branches, shifts and extensions
// ---------------------------------------------------------------------------

// Cond is the condition suffix of a conditional jump.
type Cond string

const (
	CondE  Cond = "e"
	CondNE Cond = "ne"
	CondZ  Cond = "z"
	CondNZ Cond = "nz"
	CondL  Cond = "l"
	CondLE Cond = "le"
	CondG  Cond = "g"
	CondGE Cond = "ge"
	CondB  Cond = "b"
	CondBE Cond = "be"
	CondA  Cond = "a"
	CondAE Cond = "ae"
	CondS  Cond = "s"
	CondNS Cond = "ns"
)

// Conds lists every supported condition.
var Conds = []Cond{CondE, CondNE, CondZ, CondNZ, CondL, CondLE, CondG, CondGE, CondB, CondBE, CondA, CondAE, CondS, CondNS}

// Branch emits a control transfer. Unlike Unary it accepts a bare label,
// whose size is implied by the instruction.
func (w *Writer) Branch(mnemonic string, target x86.Arg) error {
	op := target.Operand()
	if op.Kind == x86.OpImmediate {
		x86.Violate(mnemonic, "branch target cannot be an immediate")
	}
	return w.writeLine(mnemonic, w.instrLine(mnemonic, op))
}

// Jmp emits an unconditional jump.
func (w *Writer) Jmp(target x86.Arg) error {
	return w.Branch("jmp", target)
}

// Jcc emits a conditional jump to a label.
func (w *Writer) Jcc(cond Cond, target x86.Label) error {
	return w.Branch("j"+string(cond), target)
}

// Shift emits shl/shr/sar/rol/ror. The destination must be sized and the
// count must be an immediate or cl.
func (w *Writer) Shift(mnemonic string, to, count x86.Arg) error {
	dst, cnt := to.Operand(), count.Operand()
	if !dst.Size().Known() {
		x86.Violate(mnemonic, "operand does not have a known size")
	}
	if !(cnt.Kind == x86.OpImmediate || (cnt.Kind == x86.OpRegister && cnt.Reg == x86.CL)) {
		x86.Violate(mnemonic, "shift count must be an immediate or cl")
	}
	return w.writeLine(mnemonic, w.instrLine(mnemonic, dst, cnt))
}

func (w *Writer) Shl(to, count x86.Arg) error { return w.Shift("shl", to, count) }
func (w *Writer) Shr(to, count x86.Arg) error { return w.Shift("shr", to, count) }
func (w *Writer) Sar(to, count x86.Arg) error { return w.Shift("sar", to, count) }

// Extend emits movzx/movsx: a byte or word source widened into a strictly
// wider register.
func (w *Writer) Extend(mnemonic string, to x86.Reg, from x86.Arg) error {
	src := from.Operand()
	size := src.Size()
	if !size.Known() {
		x86.Violate(mnemonic, "operand does not have a known size")
	}
	if size != x86.SizeByte && size != x86.SizeWord {
		x86.Violate(mnemonic, "source must be a byte or word, got %s", size)
	}
	if size.Bytes() >= to.Size.Bytes() {
		x86.Violate(mnemonic, "destination %s is not wider than the %s source", to, size)
	}
	return w.writeLine(mnemonic, w.instrLine(mnemonic, to.Operand(), src))
}

func (w *Writer) Movzx(to x86.Reg, from x86.Arg) error { return w.Extend("movzx", to, from) }
func (w *Writer) Movsx(to x86.Reg, from x86.Arg) error { return w.Extend("movsx", to, from) }
