package codegen

import (
	"fmt"
	"io"
	"math"

	"fasmgen/internal/ast"
	"fasmgen/internal/fasm"
	"fasmgen/internal/x86"
)

// ---------------------------------------------------------------------------
// Lowering: listing AST → fasm.Writer calls
//
// Every label the program defines is registered with the Writer before any
// line is written, so forward references resolve. Statements are then
// emitted in source order.
// ---------------------------------------------------------------------------

// Lower emits a checked program through w. Programs that semantic.Analyze
// reports errors for may trip the Writer's contract checks; undefined
// labels and unresolved includes are reported as errors.
func Lower(prog *ast.Program, w *fasm.Writer) error {
	l := &lowerer{w: w, labels: make(map[string]x86.Label)}
	for _, stmt := range prog.Stmts {
		switch s := stmt.(type) {
		case *ast.LabelDef:
			l.define(s.Name)
		case *ast.Data:
			l.define(s.Name)
		case *ast.Reserve:
			l.define(s.Name)
		}
	}
	for _, stmt := range prog.Stmts {
		if err := l.lowerStmt(stmt); err != nil {
			return err
		}
	}
	return nil
}

// Emit lowers prog onto a fresh Writer over out.
func Emit(prog *ast.Program, out io.Writer) error {
	return Lower(prog, fasm.NewWriter(out))
}

type lowerer struct {
	w      *fasm.Writer
	labels map[string]x86.Label
}

func (l *lowerer) define(name string) {
	if _, ok := l.labels[name]; !ok {
		l.labels[name] = l.w.AddLabel(name)
	}
}

func (l *lowerer) label(name string, pos ast.Position) (x86.Label, error) {
	lbl, ok := l.labels[name]
	if !ok {
		return x86.Label{}, fmt.Errorf("%s: undefined label %q", pos, name)
	}
	return lbl, nil
}

func (l *lowerer) lowerStmt(stmt ast.Stmt) error {
	switch s := stmt.(type) {
	case *ast.Format:
		return l.w.Prelude()
	case *ast.Segment:
		return l.w.Segment(s.Readable, s.Writable, s.Executable)
	case *ast.Entry:
		lbl, err := l.label(s.Label, s.Pos)
		if err != nil {
			return err
		}
		return l.w.Entry(lbl)
	case *ast.LabelDef:
		return l.w.EmitLabel(l.labels[s.Name])
	case *ast.Instr:
		args := make([]x86.Arg, len(s.Operands))
		for i, e := range s.Operands {
			arg, err := l.operand(e)
			if err != nil {
				return err
			}
			args[i] = arg
		}
		return l.w.Instr(s.Mnemonic, args...)
	case *ast.Data:
		items := make([]fasm.DataItem, len(s.Items))
		for i, item := range s.Items {
			if item.IsText {
				items[i] = fasm.Text(item.Text)
			} else {
				items[i] = fasm.NumOf(item.Value)
			}
		}
		return l.w.Data(l.labels[s.Name], s.Size, items...)
	case *ast.Reserve:
		if s.Count > math.MaxUint32 {
			return fmt.Errorf("%s: reserve count %d does not fit in 32 bits", s.Pos, s.Count)
		}
		return l.w.Reserve(l.labels[s.Name], s.Size, uint32(s.Count))
	case *ast.Include:
		return fmt.Errorf("%s: unresolved include %q", s.Pos, s.Path)
	default:
		return fmt.Errorf("%s: cannot lower %T", stmt.GetPos(), stmt)
	}
}

func (l *lowerer) operand(e ast.Expr) (x86.Arg, error) {
	switch ex := e.(type) {
	case *ast.RegExpr:
		return ex.Reg, nil
	case *ast.ImmExpr:
		return x86.ImmOf(ex.Value), nil
	case *ast.LabelExpr:
		return l.label(ex.Name, ex.Pos)
	case *ast.MemExpr:
		return l.memory(ex)
	default:
		return nil, fmt.Errorf("%s: cannot lower operand %T", e.GetPos(), e)
	}
}

// memory builds the addressing expression of m from its shape.
func (l *lowerer) memory(m *ast.MemExpr) (x86.Memory, error) {
	addr, err := m.Shape()
	if err != nil {
		return x86.Memory{}, err
	}

	var mem x86.Memory
	if addr.Rip {
		lbl, err := l.label(addr.Label.Name, addr.Label.Pos)
		if err != nil {
			return x86.Memory{}, err
		}
		mem = x86.Rip(lbl)
	} else {
		mem = x86.Absolute()
		if addr.Base != nil {
			mem = addr.Base.Reg.Mem()
		}
		if addr.Index != nil {
			mem = mem.Scaled(addr.Index.Reg, addr.Scale)
		}
		if addr.Label != nil {
			lbl, err := l.label(addr.Label.Name, addr.Label.Pos)
			if err != nil {
				return x86.Memory{}, err
			}
			mem = mem.WithLabel(lbl)
		}
	}
	return mem.WithOffset(int32(addr.Disp)).WithSize(m.Size), nil
}
