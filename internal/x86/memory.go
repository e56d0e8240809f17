package x86

// ---------------------------------------------------------------------------
// Scale
// ---------------------------------------------------------------------------

// Scale multiplies the index register of a SIB address.
type Scale uint8

const (
	Scale1 Scale = iota
	Scale2
	Scale4
	Scale8
)

// Numeric returns 1, 2, 4 or 8.
func (s Scale) Numeric() int {
	if s > Scale8 {
		Violate("Scale.Numeric", "invalid scale %d", uint8(s))
	}
	return 1 << s
}

// ScaleOf maps 1, 2, 4 and 8 to their Scale.
func ScaleOf(n int64) (Scale, bool) {
	switch n {
	case 1:
		return Scale1, true
	case 2:
		return Scale2, true
	case 4:
		return Scale4, true
	case 8:
		return Scale8, true
	default:
		return 0, false
	}
}

// ---------------------------------------------------------------------------
// Addressing kinds
// ---------------------------------------------------------------------------

// MemKind selects the addressing mode of a Memory.
type MemKind uint8

const (
	// MemSib is base + scaled index addressing. Either part may be absent.
	MemSib MemKind = iota
	// MemRip is rip-relative addressing. It is only meaningful with a label.
	MemRip
)

func (k MemKind) String() string {
	if k == MemRip {
		return "rip"
	}
	return "sib"
}

// Sib holds the optional base and scaled index of a MemSib address.
type Sib struct {
	Base     Reg
	Index    Reg
	Scale    Scale
	HasBase  bool
	HasIndex bool
}

// ---------------------------------------------------------------------------
// Memory
// ---------------------------------------------------------------------------

// Memory is an addressing expression. It is a plain value: every builder
// returns a modified copy and leaves the receiver untouched, so one Memory
// can serve as a template for several addresses.
type Memory struct {
	Kind   MemKind
	Sib    Sib         // only for MemSib
	Label  Label       // zero Label: none
	Offset int32       // displacement
	Size   OperandSize // declared access width, NoSize if undeclared
}

// Rip returns [rip + label].
func Rip(label Label) Memory {
	return Memory{Kind: MemRip, Label: label}
}

// Absolute returns an address with neither base nor index, to be completed
// with a label and/or a displacement.
func Absolute() Memory {
	return Memory{Kind: MemSib}
}

// Index sets the index register with scale 1.
func (m Memory) Index(index Reg) Memory {
	return m.Scaled(index, Scale1)
}

// Scaled sets the index register and its scale. Only SIB addresses take an
// index; calling it on a rip-relative address is a contract violation.
func (m Memory) Scaled(index Reg, scale Scale) Memory {
	if m.Kind != MemSib {
		Violate("Memory.Scaled", "rip-relative address cannot take an index register")
	}
	m.Sib.Index = index
	m.Sib.Scale = scale
	m.Sib.HasIndex = true
	return m
}

// WithLabel attaches a label.
func (m Memory) WithLabel(label Label) Memory {
	m.Label = label
	return m
}

// WithSize declares the access width.
func (m Memory) WithSize(size OperandSize) Memory {
	m.Size = size
	return m
}

// WithOffset replaces the displacement.
func (m Memory) WithOffset(offset int32) Memory {
	m.Offset = offset
	return m
}

// Add adds a signed displacement, wrapping at 32 bits.
func (m Memory) Add(d int32) Memory {
	m.Offset += d
	return m
}

// AddUnsigned adds an unsigned displacement, wrapping at 32 bits.
func (m Memory) AddUnsigned(d uint32) Memory {
	m.Offset = int32(uint32(m.Offset) + d)
	return m
}

// Displacement is the set of source widths a displacement may be added from.
type Displacement interface {
	~int8 | ~int16 | ~int32 | ~uint8 | ~uint16 | ~uint32
}

// Displace adds d to the displacement of m with 32-bit wrapping.
func Displace[T Displacement](m Memory, d T) Memory {
	if d < 0 {
		return m.Add(int32(d))
	}
	return m.AddUnsigned(uint32(d))
}

// Operand implements Arg.
func (m Memory) Operand() Operand {
	return Operand{Kind: OpMemory, Mem: m}
}
