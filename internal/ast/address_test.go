package ast

import (
	"strings"
	"testing"

	"fasmgen/internal/x86"
)

func reg(r x86.Reg, scale int64) MemTerm {
	return MemTerm{Kind: TermReg, Reg: r, Scale: scale}
}

func num(v uint64, neg bool) MemTerm {
	return MemTerm{Kind: TermInt, Value: v, Negative: neg}
}

func label(name string) MemTerm {
	return MemTerm{Kind: TermLabel, Name: name}
}

func TestShapeBaseIndexDisp(t *testing.T) {
	m := &MemExpr{Terms: []MemTerm{reg(x86.RBX, 0), reg(x86.RCX, 4), num(16, false), num(24, true)}}
	addr, err := m.Shape()
	if err != nil {
		t.Fatalf("Shape: %v", err)
	}
	if addr.Base == nil || addr.Base.Reg != x86.RBX {
		t.Errorf("base = %+v, want rbx", addr.Base)
	}
	if addr.Index == nil || addr.Index.Reg != x86.RCX || addr.Scale != x86.Scale4 {
		t.Errorf("index = %+v scale %v, want rcx*4", addr.Index, addr.Scale)
	}
	if addr.Disp != -8 {
		t.Errorf("disp = %d, want -8", addr.Disp)
	}
}

func TestShapeSecondUnscaledRegisterIsIndex(t *testing.T) {
	m := &MemExpr{Terms: []MemTerm{reg(x86.RAX, 0), reg(x86.RBX, 0)}}
	addr, err := m.Shape()
	if err != nil {
		t.Fatalf("Shape: %v", err)
	}
	if addr.Base.Reg != x86.RAX || addr.Index.Reg != x86.RBX || addr.Scale != x86.Scale1 {
		t.Errorf("got base %s index %s scale %v", addr.Base.Reg, addr.Index.Reg, addr.Scale)
	}
}

func TestShapeMovesRspToBase(t *testing.T) {
	m := &MemExpr{Terms: []MemTerm{reg(x86.RBX, 0), reg(x86.RSP, 0)}}
	addr, err := m.Shape()
	if err != nil {
		t.Fatalf("Shape: %v", err)
	}
	if addr.Base.Reg != x86.RSP || addr.Index.Reg != x86.RBX {
		t.Errorf("got base %s index %s, want rsp and rbx", addr.Base.Reg, addr.Index.Reg)
	}

	// A scaled rsp stays an index so the checker can reject it.
	m = &MemExpr{Terms: []MemTerm{reg(x86.RBX, 0), reg(x86.RSP, 2)}}
	addr, err = m.Shape()
	if err != nil {
		t.Fatalf("Shape: %v", err)
	}
	if addr.Index.Reg != x86.RSP {
		t.Errorf("scaled rsp moved out of the index")
	}
}

func TestShapeRipRelative(t *testing.T) {
	m := &MemExpr{Terms: []MemTerm{{Kind: TermRip}, label("msg"), num(4, false)}}
	addr, err := m.Shape()
	if err != nil {
		t.Fatalf("Shape: %v", err)
	}
	if !addr.Rip || addr.Label == nil || addr.Label.Name != "msg" || addr.Disp != 4 {
		t.Errorf("got %+v", addr)
	}
}

func TestShapeErrors(t *testing.T) {
	tests := []struct {
		name  string
		terms []MemTerm
		want  string
	}{
		{"empty", nil, "empty address"},
		{"rip without label", []MemTerm{{Kind: TermRip}}, "needs a label"},
		{"rip and register", []MemTerm{{Kind: TermRip}, reg(x86.RAX, 0), label("x")}, "rip cannot be combined"},
		{"negative rip", []MemTerm{{Kind: TermRip, Negative: true}}, "rip cannot be subtracted"},
		{"negative register", []MemTerm{{Kind: TermReg, Reg: x86.RAX, Negative: true}}, "cannot be subtracted"},
		{"negative label", []MemTerm{{Kind: TermLabel, Name: "x", Negative: true}}, "cannot be subtracted"},
		{"three registers", []MemTerm{reg(x86.RAX, 0), reg(x86.RBX, 0), reg(x86.RCX, 0)}, "too many registers"},
		{"two labels", []MemTerm{label("a"), label("b")}, "only one label"},
		{"bad scale", []MemTerm{reg(x86.RAX, 3)}, "invalid scale 3"},
		{"disp too large", []MemTerm{num(1<<31, false)}, "32 bits"},
		{"disp overflow", []MemTerm{num(1<<63, false)}, "out of range"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &MemExpr{Terms: tt.terms, Pos: Position{Line: 3, Column: 9}}
			_, err := m.Shape()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Shape() = %v, want error containing %q", err, tt.want)
			}
		})
	}
}

func TestShapeAcceptsMinInt32(t *testing.T) {
	m := &MemExpr{Terms: []MemTerm{reg(x86.RBP, 0), num(1<<31, true)}}
	addr, err := m.Shape()
	if err != nil {
		t.Fatalf("Shape: %v", err)
	}
	if addr.Disp != -(1 << 31) {
		t.Errorf("disp = %d", addr.Disp)
	}
}

func TestPositionString(t *testing.T) {
	if got := (Position{Line: 2, Column: 5}).String(); got != "2:5" {
		t.Errorf("got %q", got)
	}
	if got := (Position{File: "a.asm", Line: 2, Column: 5}).String(); got != "a.asm:2:5" {
		t.Errorf("got %q", got)
	}
}
