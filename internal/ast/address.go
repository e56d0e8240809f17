package ast

import (
	"fmt"
	"math"

	"fasmgen/internal/x86"
)

// Address is the structural reading of a MemExpr: which term is the base,
// which the index, the label and the folded displacement.
type Address struct {
	Rip   bool
	Base  *MemTerm
	Index *MemTerm
	Scale x86.Scale
	Label *MemTerm
	Disp  int64
}

// ShapeError describes why a MemExpr is not a valid address.
type ShapeError struct {
	Message string
	Pos     Position
}

func (e *ShapeError) Error() string {
	return fmt.Sprintf("%s: %s", e.Pos, e.Message)
}

// Shape classifies the terms of m. It accepts at most one base, one index,
// one label and any number of integer terms, with rip standing in for the
// base. The first unscaled register is the base; a scaled register or a
// second unscaled register is the index.
func (m *MemExpr) Shape() (*Address, error) {
	addr := &Address{}
	fail := func(t MemTerm, format string, args ...any) (*Address, error) {
		return nil, &ShapeError{Message: fmt.Sprintf(format, args...), Pos: t.Pos}
	}
	if len(m.Terms) == 0 {
		return nil, &ShapeError{Message: "empty address", Pos: m.Pos}
	}

	for i := range m.Terms {
		t := &m.Terms[i]
		switch t.Kind {
		case TermRip:
			if t.Negative {
				return fail(*t, "rip cannot be subtracted")
			}
			if addr.Rip || addr.Base != nil || addr.Index != nil {
				return fail(*t, "rip cannot be combined with other registers")
			}
			addr.Rip = true
		case TermReg:
			if t.Negative {
				return fail(*t, "register %s cannot be subtracted", t.Reg)
			}
			if addr.Rip {
				return fail(*t, "rip cannot be combined with other registers")
			}
			switch {
			case t.Scale == 0 && addr.Base == nil:
				addr.Base = t
			case addr.Index == nil:
				scale := t.Scale
				if scale == 0 {
					scale = 1
				}
				s, ok := x86.ScaleOf(scale)
				if !ok {
					return fail(*t, "invalid scale %d (must be 1, 2, 4 or 8)", t.Scale)
				}
				addr.Index = t
				addr.Scale = s
			default:
				return fail(*t, "too many registers in address")
			}
		case TermLabel:
			if t.Negative {
				return fail(*t, "label %s cannot be subtracted", t.Name)
			}
			if addr.Label != nil {
				return fail(*t, "an address can reference only one label")
			}
			addr.Label = t
		case TermInt:
			if t.Value > math.MaxInt64 {
				return fail(*t, "displacement %d out of range", t.Value)
			}
			v := int64(t.Value)
			if t.Negative {
				v = -v
			}
			addr.Disp += v
			if addr.Disp < math.MinInt32 || addr.Disp > math.MaxInt32 {
				return fail(*t, "displacement does not fit in 32 bits")
			}
		}
	}

	// [reg + rsp] means the same as [rsp + reg], and only the latter is
	// encodable.
	if addr.Base != nil && addr.Index != nil && addr.Index.Scale == 0 &&
		addr.Index.Reg.Name == x86.NameSP && addr.Base.Reg.Name != x86.NameSP {
		addr.Base, addr.Index = addr.Index, addr.Base
	}

	if addr.Rip && addr.Label == nil {
		return nil, &ShapeError{Message: "rip-relative address needs a label", Pos: m.Pos}
	}
	return addr, nil
}
