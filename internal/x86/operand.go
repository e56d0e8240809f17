package x86

import (
	"math/big"
	"strconv"
)

// ---------------------------------------------------------------------------
// Operand sizes
// ---------------------------------------------------------------------------

// OperandSize is the width an operand is accessed at. Today every size is
// the width of some register; the zero value NoSize means "not known", as
// for immediates, bare labels and memory without a declared width.
type OperandSize uint8

const (
	NoSize OperandSize = iota
	SizeByte
	SizeWord
	SizeDWord
	SizeQWord
)

// SizeOf wraps a register width as an operand size.
func SizeOf(s RegSize) OperandSize {
	return OperandSize(s) + 1
}

// Known reports whether s carries a width.
func (s OperandSize) Known() bool {
	return s != NoSize
}

// RegSize returns the wrapped register width. Calling it on NoSize is a
// contract violation.
func (s OperandSize) RegSize() RegSize {
	if s == NoSize || RegSize(s-1) >= numRegSizes {
		Violate("OperandSize.RegSize", "operand size %d carries no register width", uint8(s))
	}
	return RegSize(s - 1)
}

// Bytes returns the width in bytes, 0 for NoSize.
func (s OperandSize) Bytes() int {
	if s == NoSize {
		return 0
	}
	return s.RegSize().Bytes()
}

// Keyword returns the FASM size keyword.
func (s OperandSize) Keyword() string {
	return s.RegSize().Keyword()
}

func (s OperandSize) String() string {
	if s == NoSize {
		return "none"
	}
	return s.RegSize().String()
}

// CommonSize reconciles the sizes of two operands of one instruction:
//
//	none, none -> none
//	s, none    -> s
//	s, s       -> s
//	s, t       -> no common size (ok == false)
func CommonSize(a, b OperandSize) (size OperandSize, ok bool) {
	switch {
	case a == NoSize:
		return b, true
	case b == NoSize:
		return a, true
	case a == b:
		return a, true
	default:
		return NoSize, false
	}
}

// ---------------------------------------------------------------------------
// 128-bit immediates
// ---------------------------------------------------------------------------

// Int128 is a two's-complement 128-bit signed integer. Every supported
// immediate width, signed or unsigned, is sign- or zero-extended into it.
type Int128 struct {
	Hi int64
	Lo uint64
}

// Integer is the set of Go integer types that can become immediates.
type Integer interface {
	~int | ~int8 | ~int16 | ~int32 | ~int64 |
		~uint | ~uint8 | ~uint16 | ~uint32 | ~uint64 | ~uintptr
}

// Int128Of widens v to 128 bits, sign-extending signed types.
func Int128Of[T Integer](v T) Int128 {
	if v < 0 {
		return Int128{Hi: -1, Lo: uint64(int64(v))}
	}
	return Int128{Lo: uint64(v)}
}

// Neg returns -v, wrapping at the 128-bit boundary.
func (v Int128) Neg() Int128 {
	lo := ^v.Lo + 1
	hi := ^v.Hi
	if lo == 0 {
		hi++
	}
	return Int128{Hi: hi, Lo: lo}
}

// Sign returns -1, 0 or 1.
func (v Int128) Sign() int {
	switch {
	case v.Hi < 0:
		return -1
	case v.Hi == 0 && v.Lo == 0:
		return 0
	default:
		return 1
	}
}

// Fits reports whether v can be encoded in an operand of the given size,
// read either as signed or as unsigned. Every value fits NoSize.
func (v Int128) Fits(size OperandSize) bool {
	if size == NoSize {
		return true
	}
	bits := uint(size.Bytes() * 8)
	switch v.Hi {
	case 0:
		return bits == 64 || v.Lo <= (uint64(1)<<bits)-1
	case -1:
		lo := int64(v.Lo)
		return lo < 0 && (bits == 64 || lo >= -(int64(1)<<(bits-1)))
	default:
		return false
	}
}

func (v Int128) String() string {
	switch {
	case v.Hi == 0:
		return strconv.FormatUint(v.Lo, 10)
	case v.Hi == -1 && int64(v.Lo) < 0:
		return strconv.FormatInt(int64(v.Lo), 10)
	}
	n := new(big.Int).SetInt64(v.Hi)
	n.Lsh(n, 64)
	n.Or(n, new(big.Int).SetUint64(v.Lo))
	return n.String()
}

// ---------------------------------------------------------------------------
// Operand
// ---------------------------------------------------------------------------

// OperandKind discriminates the Operand union.
type OperandKind uint8

const (
	OpImmediate OperandKind = iota
	OpLabel
	OpMemory
	OpRegister
)

func (k OperandKind) String() string {
	switch k {
	case OpImmediate:
		return "immediate"
	case OpLabel:
		return "label"
	case OpMemory:
		return "memory"
	case OpRegister:
		return "register"
	default:
		return "unknown"
	}
}

// Operand is a value referenced by an instruction. Only the field selected
// by Kind is meaningful.
type Operand struct {
	Kind  OperandKind
	Imm   Int128
	Label Label
	Mem   Memory
	Reg   Reg
}

// Arg is anything that converts losslessly to an Operand: Reg, Memory,
// Label and Operand itself. Integers go through Imm.
type Arg interface {
	Operand() Operand
}

// Operand implements Arg.
func (o Operand) Operand() Operand {
	return o
}

// Imm builds an immediate operand, sign-extending signed sources.
func Imm[T Integer](v T) Operand {
	return Operand{Kind: OpImmediate, Imm: Int128Of(v)}
}

// ImmOf builds an immediate from an already widened value.
func ImmOf(v Int128) Operand {
	return Operand{Kind: OpImmediate, Imm: v}
}

// Size returns the width implied by the operand: the register width for
// registers, the declared width for memory, NoSize otherwise.
func (o Operand) Size() OperandSize {
	switch o.Kind {
	case OpMemory:
		return o.Mem.Size
	case OpRegister:
		return SizeOf(o.Reg.Size)
	default:
		return NoSize
	}
}
