package fasm

import (
	"sort"
	"strings"

	"fasmgen/internal/x86"
)

// Form describes how an instruction treats its operands.
type Form int

const (
	FormNullary Form = iota // ret, syscall
	FormUnary               // push rax: one sized operand
	FormBinary              // mov rax, rbx: two operands of a common size
	FormBranch              // jmp label: one unsized target
	FormShift               // shl rax, cl: sized destination, imm/cl count
	FormExtend              // movzx eax, bl: register widened from byte/word
	FormLea                 // lea rax, [rbx + 8]: register and address
)

// Arity returns the number of operands the form takes.
func (f Form) Arity() int {
	switch f {
	case FormNullary:
		return 0
	case FormUnary, FormBranch:
		return 1
	default:
		return 2
	}
}

func (f Form) String() string {
	switch f {
	case FormNullary:
		return "nullary"
	case FormUnary:
		return "unary"
	case FormBinary:
		return "binary"
	case FormBranch:
		return "branch"
	case FormShift:
		return "shift"
	case FormExtend:
		return "extend"
	case FormLea:
		return "lea"
	default:
		return "unknown"
	}
}

var repertoire = map[string]Form{
	"ret":     FormNullary,
	"syscall": FormNullary,
	"leave":   FormNullary,
	"cqo":     FormNullary,
	"nop":     FormNullary,

	"call": FormUnary,
	"push": FormUnary,
	"pop":  FormUnary,
	"inc":  FormUnary,
	"dec":  FormUnary,
	"neg":  FormUnary,
	"not":  FormUnary,
	"mul":  FormUnary,
	"div":  FormUnary,
	"idiv": FormUnary,

	"mov":  FormBinary,
	"add":  FormBinary,
	"sub":  FormBinary,
	"and":  FormBinary,
	"or":   FormBinary,
	"xor":  FormBinary,
	"cmp":  FormBinary,
	"test": FormBinary,
	"xchg": FormBinary,
	"imul": FormBinary,

	"jmp": FormBranch,

	"shl": FormShift,
	"shr": FormShift,
	"sar": FormShift,
	"rol": FormShift,
	"ror": FormShift,

	"movzx": FormExtend,
	"movsx": FormExtend,

	"lea": FormLea,
}

func init() {
	for _, c := range Conds {
		repertoire["j"+string(c)] = FormBranch
	}
}

// Lookup returns the form of a mnemonic.
func Lookup(mnemonic string) (Form, bool) {
	f, ok := repertoire[strings.ToLower(mnemonic)]
	return f, ok
}

// Mnemonics returns the supported mnemonics in sorted order.
func Mnemonics() []string {
	out := make([]string, 0, len(repertoire))
	for m := range repertoire {
		out = append(out, m)
	}
	sort.Strings(out)
	return out
}

// Instr emits any mnemonic of the repertoire, dispatching on its form. It
// is the entry point used when the mnemonic is only known at run time.
// Unknown mnemonics and wrong operand counts are contract violations.
func (w *Writer) Instr(mnemonic string, args ...x86.Arg) error {
	mnemonic = strings.ToLower(mnemonic)
	form, ok := repertoire[mnemonic]
	if !ok {
		x86.Violate("Instr", "unknown mnemonic %q", mnemonic)
	}
	// imul doubles as a one-operand instruction.
	if mnemonic == "imul" && len(args) == 1 {
		return w.Imul1(args[0])
	}
	if len(args) != form.Arity() {
		x86.Violate(mnemonic, "expects %d operand(s), got %d", form.Arity(), len(args))
	}
	// A call to a bare label is sized by the instruction, like a jump.
	if mnemonic == "call" && args[0].Operand().Kind == x86.OpLabel {
		return w.Branch(mnemonic, args[0])
	}

	switch form {
	case FormNullary:
		return w.Nullary(mnemonic)
	case FormUnary:
		return w.Unary(mnemonic, args[0])
	case FormBinary:
		return w.Binary(mnemonic, args[0], args[1])
	case FormBranch:
		return w.Branch(mnemonic, args[0])
	case FormShift:
		return w.Shift(mnemonic, args[0], args[1])
	case FormExtend:
		return w.Extend(mnemonic, mustReg(mnemonic, args[0]), args[1])
	case FormLea:
		dst := mustReg(mnemonic, args[0])
		src := args[1].Operand()
		if src.Kind != x86.OpMemory {
			x86.Violate(mnemonic, "source must be a memory operand")
		}
		return w.Lea(dst, src.Mem)
	}
	return nil
}

func mustReg(mnemonic string, a x86.Arg) x86.Reg {
	op := a.Operand()
	if op.Kind != x86.OpRegister {
		x86.Violate(mnemonic, "destination must be a register, got %s", op.Kind)
	}
	return op.Reg
}
