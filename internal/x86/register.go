// Package x86 models the x86-64 registers, labels and operands written
// into FASM listings. The exported register values (RAX, EAX, ...) are
// read-only by convention.
package x86

import "strings"

// ---------------------------------------------------------------------------
// Register identities and widths
// ---------------------------------------------------------------------------

// RegName identifies one of the sixteen general-purpose registers,
// independent of the width it is accessed at.
type RegName uint8

const (
	NameA RegName = iota
	NameB
	NameC
	NameD
	NameSI
	NameDI
	NameSP
	NameBP
	NameR8
	NameR9
	NameR10
	NameR11
	NameR12
	NameR13
	NameR14
	NameR15

	numRegNames
)

// WithSize pairs the identity with a width.
func (n RegName) WithSize(size RegSize) Reg {
	return Reg{Name: n, Size: size}
}

func (n RegName) String() string {
	if n >= numRegNames {
		return "invalid"
	}
	return regNames[n]
}

var regNames = [numRegNames]string{
	"a", "b", "c", "d", "si", "di", "sp", "bp",
	"r8", "r9", "r10", "r11", "r12", "r13", "r14", "r15",
}

// RegSize is the width a register is accessed at.
type RegSize uint8

const (
	Byte RegSize = iota
	Word
	DWord
	QWord

	numRegSizes
)

// WithName pairs the width with an identity.
func (s RegSize) WithName(name RegName) Reg {
	return Reg{Name: name, Size: s}
}

// Bytes returns the width in bytes.
func (s RegSize) Bytes() int {
	return 1 << s
}

// Keyword returns the FASM size keyword for the width.
func (s RegSize) Keyword() string {
	switch s {
	case Byte:
		return "byte"
	case Word:
		return "word"
	case DWord:
		return "dword"
	case QWord:
		return "qword"
	default:
		Violate("RegSize.Keyword", "invalid register size %d", uint8(s))
		return ""
	}
}

func (s RegSize) String() string {
	if s >= numRegSizes {
		return "invalid"
	}
	return s.Keyword()
}

// ---------------------------------------------------------------------------
// Reg
// ---------------------------------------------------------------------------

// Reg is a general-purpose register accessed at a given width. Two
// registers are equal iff both identity and width are equal.
type Reg struct {
	Name RegName
	Size RegSize
}

// NewReg builds a register from its identity and width.
func NewReg(name RegName, size RegSize) Reg {
	return Reg{Name: name, Size: size}
}

// WithName returns r with its identity replaced.
func (r Reg) WithName(name RegName) Reg {
	return Reg{Name: name, Size: r.Size}
}

// WithSize returns r with its width replaced.
func (r Reg) WithSize(size RegSize) Reg {
	return Reg{Name: r.Name, Size: size}
}

// FullName returns the canonical lowercase mnemonic of the register.
func (r Reg) FullName() string {
	if r.Name >= numRegNames || r.Size >= numRegSizes {
		Violate("Reg.FullName", "no mnemonic for register (%d, %d)", uint8(r.Name), uint8(r.Size))
	}
	return mnemonics[r.Name][r.Size]
}

func (r Reg) String() string {
	return r.FullName()
}

// Mem returns the base-only memory expression [r].
func (r Reg) Mem() Memory {
	return Memory{
		Kind: MemSib,
		Sib:  Sib{Base: r, HasBase: true},
	}
}

// Operand implements Arg.
func (r Reg) Operand() Operand {
	return Operand{Kind: OpRegister, Reg: r}
}

// mnemonics is indexed by identity then width. Every cell must be filled;
// TestMnemonicTableIsTotal guards that.
var mnemonics = [numRegNames][numRegSizes]string{
	NameA:   {Byte: "al", Word: "ax", DWord: "eax", QWord: "rax"},
	NameB:   {Byte: "bl", Word: "bx", DWord: "ebx", QWord: "rbx"},
	NameC:   {Byte: "cl", Word: "cx", DWord: "ecx", QWord: "rcx"},
	NameD:   {Byte: "dl", Word: "dx", DWord: "edx", QWord: "rdx"},
	NameSI:  {Byte: "sil", Word: "si", DWord: "esi", QWord: "rsi"},
	NameDI:  {Byte: "dil", Word: "di", DWord: "edi", QWord: "rdi"},
	NameSP:  {Byte: "spl", Word: "sp", DWord: "esp", QWord: "rsp"},
	NameBP:  {Byte: "bpl", Word: "bp", DWord: "ebp", QWord: "rbp"},
	NameR8:  {Byte: "r8b", Word: "r8w", DWord: "r8d", QWord: "r8"},
	NameR9:  {Byte: "r9b", Word: "r9w", DWord: "r9d", QWord: "r9"},
	NameR10: {Byte: "r10b", Word: "r10w", DWord: "r10d", QWord: "r10"},
	NameR11: {Byte: "r11b", Word: "r11w", DWord: "r11d", QWord: "r11"},
	NameR12: {Byte: "r12b", Word: "r12w", DWord: "r12d", QWord: "r12"},
	NameR13: {Byte: "r13b", Word: "r13w", DWord: "r13d", QWord: "r13"},
	NameR14: {Byte: "r14b", Word: "r14w", DWord: "r14d", QWord: "r14"},
	NameR15: {Byte: "r15b", Word: "r15w", DWord: "r15d", QWord: "r15"},
}

var byMnemonic = func() map[string]Reg {
	m := make(map[string]Reg, int(numRegNames)*int(numRegSizes))
	for n := RegName(0); n < numRegNames; n++ {
		for s := RegSize(0); s < numRegSizes; s++ {
			m[mnemonics[n][s]] = Reg{Name: n, Size: s}
		}
	}
	return m
}()

// LookupReg maps a mnemonic such as "r9b" or "EAX" back to its register.
func LookupReg(mnemonic string) (Reg, bool) {
	r, ok := byMnemonic[strings.ToLower(mnemonic)]
	return r, ok
}

// AllRegs returns all 64 registers, identity-major.
func AllRegs() []Reg {
	out := make([]Reg, 0, int(numRegNames)*int(numRegSizes))
	for n := RegName(0); n < numRegNames; n++ {
		for s := RegSize(0); s < numRegSizes; s++ {
			out = append(out, Reg{Name: n, Size: s})
		}
	}
	return out
}

// ---------------------------------------------------------------------------
// Named registers
// ---------------------------------------------------------------------------

// The named registers are variables only because Go has no struct
// constants. Treat them as read-only; derive other widths with WithSize
// and WithName instead of assigning to them.
var (
	AL  = Reg{NameA, Byte}
	AX  = Reg{NameA, Word}
	EAX = Reg{NameA, DWord}
	RAX = Reg{NameA, QWord}

	BL  = Reg{NameB, Byte}
	BX  = Reg{NameB, Word}
	EBX = Reg{NameB, DWord}
	RBX = Reg{NameB, QWord}

	CL  = Reg{NameC, Byte}
	CX  = Reg{NameC, Word}
	ECX = Reg{NameC, DWord}
	RCX = Reg{NameC, QWord}

	DL  = Reg{NameD, Byte}
	DX  = Reg{NameD, Word}
	EDX = Reg{NameD, DWord}
	RDX = Reg{NameD, QWord}

	SIL = Reg{NameSI, Byte}
	SI  = Reg{NameSI, Word}
	ESI = Reg{NameSI, DWord}
	RSI = Reg{NameSI, QWord}

	DIL = Reg{NameDI, Byte}
	DI  = Reg{NameDI, Word}
	EDI = Reg{NameDI, DWord}
	RDI = Reg{NameDI, QWord}

	SPL = Reg{NameSP, Byte}
	SP  = Reg{NameSP, Word}
	ESP = Reg{NameSP, DWord}
	RSP = Reg{NameSP, QWord}

	BPL = Reg{NameBP, Byte}
	BP  = Reg{NameBP, Word}
	EBP = Reg{NameBP, DWord}
	RBP = Reg{NameBP, QWord}

	R8B = Reg{NameR8, Byte}
	R8W = Reg{NameR8, Word}
	R8D = Reg{NameR8, DWord}
	R8  = Reg{NameR8, QWord}

	R9B = Reg{NameR9, Byte}
	R9W = Reg{NameR9, Word}
	R9D = Reg{NameR9, DWord}
	R9  = Reg{NameR9, QWord}

	R10B = Reg{NameR10, Byte}
	R10W = Reg{NameR10, Word}
	R10D = Reg{NameR10, DWord}
	R10  = Reg{NameR10, QWord}

	R11B = Reg{NameR11, Byte}
	R11W = Reg{NameR11, Word}
	R11D = Reg{NameR11, DWord}
	R11  = Reg{NameR11, QWord}

	R12B = Reg{NameR12, Byte}
	R12W = Reg{NameR12, Word}
	R12D = Reg{NameR12, DWord}
	R12  = Reg{NameR12, QWord}

	R13B = Reg{NameR13, Byte}
	R13W = Reg{NameR13, Word}
	R13D = Reg{NameR13, DWord}
	R13  = Reg{NameR13, QWord}

	R14B = Reg{NameR14, Byte}
	R14W = Reg{NameR14, Word}
	R14D = Reg{NameR14, DWord}
	R14  = Reg{NameR14, QWord}

	R15B = Reg{NameR15, Byte}
	R15W = Reg{NameR15, Word}
	R15D = Reg{NameR15, DWord}
	R15  = Reg{NameR15, QWord}
)
