package ast

import (
	"fmt"
	"strings"

	"fasmgen/internal/x86"
)

// ---------------------------------------------------------------------------
// Source position
// ---------------------------------------------------------------------------

// Position represents a line/column pair in source code (1-based). File is
// empty for input that did not come from a named file.
type Position struct {
	File   string `json:"file,omitempty"`
	Line   int    `json:"line"`
	Column int    `json:"column"`
}

func (p Position) String() string {
	if p.File != "" {
		return fmt.Sprintf("%s:%d:%d", p.File, p.Line, p.Column)
	}
	return fmt.Sprintf("%d:%d", p.Line, p.Column)
}

// ---------------------------------------------------------------------------
// Interfaces
// ---------------------------------------------------------------------------

// Node is implemented by every AST node.
type Node interface {
	GetPos() Position
}

// Stmt is implemented by every statement node.
type Stmt interface {
	Node
	stmtNode()
}

// Expr is implemented by every operand expression node.
type Expr interface {
	Node
	exprNode()
}

// ---------------------------------------------------------------------------
// Program (root)
// ---------------------------------------------------------------------------

// Program is a parsed listing. File is the path it was read from, if any;
// statements spliced in from includes carry their own file in Pos.
type Program struct {
	File  string
	Stmts []Stmt
}

// ---------------------------------------------------------------------------
// Statements
// ---------------------------------------------------------------------------

// Include represents: include "path"
type Include struct {
	Path string
	Pos  Position
}

// Format represents the prelude: format ELF64 executable
type Format struct {
	Pos Position
}

// Segment represents: segment [readable] [writable] [executable]
type Segment struct {
	Readable   bool
	Writable   bool
	Executable bool
	Pos        Position
}

// Entry represents: entry <label>
type Entry struct {
	Label string
	Pos   Position
}

// LabelDef represents: <name>:
type LabelDef struct {
	Name string
	Pos  Position
}

// Instr represents: <mnemonic> [operand {, operand}]
type Instr struct {
	Mnemonic string // lowercased
	Operands []Expr
	Pos      Position
}

// Data represents: <name> db|dw|dd|dq item {, item}
type Data struct {
	Name  string
	Size  x86.RegSize
	Items []DataItem
	Pos   Position
}

// DataItem is a number or a string inside a data definition.
type DataItem struct {
	Text   string
	Value  x86.Int128
	IsText bool
	Pos    Position
}

// Reserve represents: <name> rb|rw|rd|rq <count>
type Reserve struct {
	Name  string
	Size  x86.RegSize
	Count uint64
	Pos   Position
}

func (n *Include) GetPos() Position  { return n.Pos }
func (n *Format) GetPos() Position   { return n.Pos }
func (n *Segment) GetPos() Position  { return n.Pos }
func (n *Entry) GetPos() Position    { return n.Pos }
func (n *LabelDef) GetPos() Position { return n.Pos }
func (n *Instr) GetPos() Position    { return n.Pos }
func (n *Data) GetPos() Position     { return n.Pos }
func (n *Reserve) GetPos() Position  { return n.Pos }

func (n *Include) stmtNode()  {}
func (n *Format) stmtNode()   {}
func (n *Segment) stmtNode()  {}
func (n *Entry) stmtNode()    {}
func (n *LabelDef) stmtNode() {}
func (n *Instr) stmtNode()    {}
func (n *Data) stmtNode()     {}
func (n *Reserve) stmtNode()  {}

// ---------------------------------------------------------------------------
// Operand expressions
// ---------------------------------------------------------------------------

// RegExpr is a register operand.
type RegExpr struct {
	Reg x86.Reg
	Pos Position
}

// ImmExpr is an immediate operand, already sign-applied.
type ImmExpr struct {
	Value x86.Int128
	Pos   Position
}

// LabelExpr is a bare label operand.
type LabelExpr struct {
	Name string
	Pos  Position
}

// MemExpr is a bracketed address with an optional size keyword.
type MemExpr struct {
	Size  x86.OperandSize
	Terms []MemTerm
	Pos   Position
}

func (n *RegExpr) GetPos() Position   { return n.Pos }
func (n *ImmExpr) GetPos() Position   { return n.Pos }
func (n *LabelExpr) GetPos() Position { return n.Pos }
func (n *MemExpr) GetPos() Position   { return n.Pos }

func (n *RegExpr) exprNode()   {}
func (n *ImmExpr) exprNode()   {}
func (n *LabelExpr) exprNode() {}
func (n *MemExpr) exprNode()   {}

// TermKind discriminates the terms of an address.
type TermKind int

const (
	TermReg TermKind = iota
	TermRip
	TermLabel
	TermInt
)

// MemTerm is one +/- separated term inside brackets.
type MemTerm struct {
	Kind     TermKind
	Negative bool
	Reg      x86.Reg // TermReg
	Scale    int64   // TermReg; 0 when no "* n" was written
	Name     string  // TermLabel
	Value    uint64  // TermInt
	Pos      Position
}

// ---------------------------------------------------------------------------
// Debug printing
// ---------------------------------------------------------------------------

// DebugString renders a program one statement per line, for --ast output.
func DebugString(prog *Program) string {
	var b strings.Builder
	for _, s := range prog.Stmts {
		fmt.Fprintf(&b, "%s %s\n", s.GetPos(), stmtString(s))
	}
	return b.String()
}

func stmtString(s Stmt) string {
	switch n := s.(type) {
	case *Include:
		return fmt.Sprintf("Include(%q)", n.Path)
	case *Format:
		return "Format"
	case *Segment:
		return fmt.Sprintf("Segment(r=%v w=%v x=%v)", n.Readable, n.Writable, n.Executable)
	case *Entry:
		return fmt.Sprintf("Entry(%s)", n.Label)
	case *LabelDef:
		return fmt.Sprintf("Label(%s)", n.Name)
	case *Instr:
		ops := make([]string, len(n.Operands))
		for i, op := range n.Operands {
			ops[i] = exprString(op)
		}
		return fmt.Sprintf("Instr(%s %s)", n.Mnemonic, strings.Join(ops, ", "))
	case *Data:
		return fmt.Sprintf("Data(%s %s x%d)", n.Name, n.Size, len(n.Items))
	case *Reserve:
		return fmt.Sprintf("Reserve(%s %s x%d)", n.Name, n.Size, n.Count)
	default:
		return fmt.Sprintf("%T", s)
	}
}

func exprString(e Expr) string {
	switch n := e.(type) {
	case *RegExpr:
		return "Reg(" + n.Reg.String() + ")"
	case *ImmExpr:
		return "Imm(" + n.Value.String() + ")"
	case *LabelExpr:
		return "Label(" + n.Name + ")"
	case *MemExpr:
		var parts []string
		for _, t := range n.Terms {
			sign := "+"
			if t.Negative {
				sign = "-"
			}
			switch t.Kind {
			case TermReg:
				if t.Scale != 0 {
					parts = append(parts, fmt.Sprintf("%s%s*%d", sign, t.Reg, t.Scale))
				} else {
					parts = append(parts, sign+t.Reg.String())
				}
			case TermRip:
				parts = append(parts, sign+"rip")
			case TermLabel:
				parts = append(parts, sign+t.Name)
			case TermInt:
				parts = append(parts, fmt.Sprintf("%s%d", sign, t.Value))
			}
		}
		return fmt.Sprintf("Mem(%s %s)", n.Size, strings.Join(parts, " "))
	default:
		return fmt.Sprintf("%T", e)
	}
}
