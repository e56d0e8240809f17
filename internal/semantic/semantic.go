package semantic

import (
	"fmt"
	"math"
	"sort"

	"fasmgen/internal/ast"
	"fasmgen/internal/fasm"
	"fasmgen/internal/x86"
)

// ---------------------------------------------------------------------------
// Diagnostic severity
// ---------------------------------------------------------------------------

// Severity indicates whether a diagnostic is an error or a warning.
type Severity int

const (
	Error Severity = iota
	Warning
)

func (s Severity) String() string {
	switch s {
	case Error:
		return "error"
	case Warning:
		return "warning"
	default:
		return "unknown"
	}
}

// MarshalText renders the severity by name in JSON diagnostics.
func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText reads a severity written by MarshalText.
func (s *Severity) UnmarshalText(text []byte) error {
	switch string(text) {
	case "error":
		*s = Error
	case "warning":
		*s = Warning
	default:
		return fmt.Errorf("unknown severity %q", text)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Diagnostic
// ---------------------------------------------------------------------------

// Diagnostic represents a single message produced by the checker.
type Diagnostic struct {
	Message  string       `json:"message"`
	Pos      ast.Position `json:"pos"`
	Severity Severity     `json:"severity"`
}

func (d Diagnostic) Error() string {
	if d.Pos.File != "" {
		return fmt.Sprintf("%s: line %d, col %d: %s: %s", d.Pos.File, d.Pos.Line, d.Pos.Column, d.Severity, d.Message)
	}
	return fmt.Sprintf("line %d, col %d: %s: %s", d.Pos.Line, d.Pos.Column, d.Severity, d.Message)
}

// HasErrors returns true if any diagnostic in the slice is an error.
func HasErrors(diags []Diagnostic) bool {
	for _, d := range diags {
		if d.Severity == Error {
			return true
		}
	}
	return false
}

// ---------------------------------------------------------------------------
// Symbols
// ---------------------------------------------------------------------------

// labelInfo records where a label was defined and whether anything refers
// to it.
type labelInfo struct {
	pos  ast.Position
	used bool
}

// ---------------------------------------------------------------------------
// Analyzer
// ---------------------------------------------------------------------------

// Analyzer walks a listing and records diagnostics. A listing without
// errors can be lowered onto a fasm.Writer without tripping any of the
// Writer's contract checks.
type Analyzer struct {
	labels      map[string]*labelInfo
	diagnostics []Diagnostic
}

// Analyze checks a complete (include-resolved) program and returns every
// diagnostic found, errors and warnings alike, in source order.
func Analyze(program *ast.Program) []Diagnostic {
	a := &Analyzer{labels: make(map[string]*labelInfo)}
	a.collectLabels(program)
	for _, stmt := range program.Stmts {
		a.analyzeStmt(stmt)
	}
	a.reportUnused()
	return a.diagnostics
}

func (a *Analyzer) error(pos ast.Position, msg string) {
	a.diagnostics = append(a.diagnostics, Diagnostic{Message: msg, Pos: pos, Severity: Error})
}

func (a *Analyzer) warn(pos ast.Position, msg string) {
	a.diagnostics = append(a.diagnostics, Diagnostic{Message: msg, Pos: pos, Severity: Warning})
}

// collectLabels registers every label definition up front, so forward
// references resolve.
func (a *Analyzer) collectLabels(prog *ast.Program) {
	for _, stmt := range prog.Stmts {
		var name string
		switch s := stmt.(type) {
		case *ast.LabelDef:
			name = s.Name
		case *ast.Data:
			name = s.Name
		case *ast.Reserve:
			name = s.Name
		default:
			continue
		}
		if prev, ok := a.labels[name]; ok {
			a.error(stmt.GetPos(), fmt.Sprintf("label %q already defined at %s", name, prev.pos))
			continue
		}
		a.labels[name] = &labelInfo{pos: stmt.GetPos()}
	}
}

// useLabel marks a reference and reports it if the label is not defined.
func (a *Analyzer) useLabel(name string, pos ast.Position) {
	info, ok := a.labels[name]
	if !ok {
		a.error(pos, fmt.Sprintf("undefined label %q", name))
		return
	}
	info.used = true
}

func (a *Analyzer) reportUnused() {
	var unused []string
	for name, info := range a.labels {
		if !info.used {
			unused = append(unused, name)
		}
	}
	sort.Slice(unused, func(i, j int) bool {
		pi, pj := a.labels[unused[i]].pos, a.labels[unused[j]].pos
		if pi.File != pj.File {
			return pi.File < pj.File
		}
		if pi.Line != pj.Line {
			return pi.Line < pj.Line
		}
		return pi.Column < pj.Column
	})
	for _, name := range unused {
		a.warn(a.labels[name].pos, fmt.Sprintf("label %q is never referenced", name))
	}
}

// ---------------------------------------------------------------------------
// Statements
// ---------------------------------------------------------------------------

func (a *Analyzer) analyzeStmt(stmt ast.Stmt) {
	switch s := stmt.(type) {
	case *ast.Include:
		a.error(s.Pos, fmt.Sprintf("unresolved include %q", s.Path))
	case *ast.Entry:
		a.useLabel(s.Label, s.Pos)
	case *ast.Instr:
		a.analyzeInstr(s)
	case *ast.Data:
		a.analyzeData(s)
	case *ast.Reserve:
		if s.Count == 0 {
			a.error(s.Pos, "reserve count must be positive")
		} else if s.Count > math.MaxUint32 {
			a.error(s.Pos, fmt.Sprintf("reserve count %d does not fit in 32 bits", s.Count))
		}
	case *ast.Format, *ast.Segment, *ast.LabelDef:
		// nothing to check
	default:
		a.error(stmt.GetPos(), fmt.Sprintf("unsupported statement %T", stmt))
	}
}

func (a *Analyzer) analyzeData(s *ast.Data) {
	size := x86.SizeOf(s.Size)
	for _, item := range s.Items {
		if item.IsText {
			if s.Size != x86.Byte {
				a.error(item.Pos, fmt.Sprintf("text is only allowed in db, not %s data", s.Size))
			} else if item.Text == "" {
				a.error(item.Pos, "empty string in data definition")
			}
			continue
		}
		if !item.Value.Fits(size) {
			a.warn(item.Pos, fmt.Sprintf("value %s does not fit in a %s", item.Value, s.Size))
		}
	}
}

// ---------------------------------------------------------------------------
// Instructions
// ---------------------------------------------------------------------------

// operand is the checker's view of one instruction operand.
type operand struct {
	expr ast.Expr
	kind x86.OperandKind
	size x86.OperandSize
	ok   bool // false if the operand itself is malformed
}

func (a *Analyzer) analyzeInstr(s *ast.Instr) {
	ops := make([]operand, len(s.Operands))
	valid := true
	for i, e := range s.Operands {
		ops[i] = a.analyzeOperand(e)
		valid = valid && ops[i].ok
	}

	form, known := fasm.Lookup(s.Mnemonic)
	if !known {
		a.error(s.Pos, fmt.Sprintf("unknown mnemonic %q", s.Mnemonic))
		return
	}
	if s.Mnemonic == "imul" && len(ops) == 1 {
		form = fasm.FormUnary
	}
	if len(ops) != form.Arity() {
		a.error(s.Pos, fmt.Sprintf("%s expects %d operand(s), got %d", s.Mnemonic, form.Arity(), len(ops)))
		return
	}
	if !valid {
		return
	}

	switch form {
	case fasm.FormUnary:
		a.checkUnary(s, ops[0])
	case fasm.FormBinary:
		a.checkBinary(s, ops[0], ops[1])
	case fasm.FormBranch:
		if ops[0].kind == x86.OpImmediate {
			a.error(ops[0].expr.GetPos(), fmt.Sprintf("%s target cannot be an immediate", s.Mnemonic))
		}
	case fasm.FormShift:
		a.checkShift(s, ops[0], ops[1])
	case fasm.FormExtend:
		a.checkExtend(s, ops[0], ops[1])
	case fasm.FormLea:
		if ops[0].kind != x86.OpRegister {
			a.error(ops[0].expr.GetPos(), "lea destination must be a register")
		}
		if ops[1].kind != x86.OpMemory {
			a.error(ops[1].expr.GetPos(), "lea source must be a memory operand")
		}
	}
}

func (a *Analyzer) checkUnary(s *ast.Instr, op operand) {
	// call takes a bare label like a branch.
	if s.Mnemonic == "call" && op.kind == x86.OpLabel {
		return
	}
	if !op.size.Known() {
		a.error(op.expr.GetPos(), fmt.Sprintf("%s: operand does not have a known size", s.Mnemonic))
	}
}

func (a *Analyzer) checkBinary(s *ast.Instr, dst, src operand) {
	if dst.kind == x86.OpImmediate || dst.kind == x86.OpLabel {
		a.error(dst.expr.GetPos(), fmt.Sprintf("%s destination must be a register or memory", s.Mnemonic))
		return
	}
	if dst.kind == x86.OpMemory && src.kind == x86.OpMemory {
		a.error(src.expr.GetPos(), fmt.Sprintf("%s cannot take two memory operands", s.Mnemonic))
		return
	}
	size, ok := x86.CommonSize(dst.size, src.size)
	if !ok {
		a.error(s.Pos, fmt.Sprintf("%s: operand size mismatch (%s, %s)", s.Mnemonic, dst.size, src.size))
		return
	}
	if !size.Known() {
		a.error(s.Pos, fmt.Sprintf("%s: operand size not specified", s.Mnemonic))
		return
	}
	a.checkImmediateRange(src, size)
}

func (a *Analyzer) checkShift(s *ast.Instr, dst, count operand) {
	if dst.kind != x86.OpRegister && dst.kind != x86.OpMemory {
		a.error(dst.expr.GetPos(), fmt.Sprintf("%s destination must be a register or memory", s.Mnemonic))
	} else if !dst.size.Known() {
		a.error(dst.expr.GetPos(), fmt.Sprintf("%s: operand does not have a known size", s.Mnemonic))
	}
	switch count.kind {
	case x86.OpImmediate:
		a.checkImmediateRange(count, x86.SizeByte)
	case x86.OpRegister:
		if count.expr.(*ast.RegExpr).Reg != x86.CL {
			a.error(count.expr.GetPos(), "shift count register must be cl")
		}
	default:
		a.error(count.expr.GetPos(), "shift count must be an immediate or cl")
	}
}

func (a *Analyzer) checkExtend(s *ast.Instr, dst, src operand) {
	if dst.kind != x86.OpRegister {
		a.error(dst.expr.GetPos(), fmt.Sprintf("%s destination must be a register", s.Mnemonic))
		return
	}
	if src.kind != x86.OpRegister && src.kind != x86.OpMemory {
		a.error(src.expr.GetPos(), fmt.Sprintf("%s source must be a register or memory", s.Mnemonic))
		return
	}
	if src.size != x86.SizeByte && src.size != x86.SizeWord {
		a.error(src.expr.GetPos(), fmt.Sprintf("%s source must be a byte or word, got %s", s.Mnemonic, src.size))
		return
	}
	if src.size.Bytes() >= dst.size.Bytes() {
		a.error(s.Pos, fmt.Sprintf("%s: destination %s is not wider than the %s source", s.Mnemonic, dst.size, src.size))
	}
}

func (a *Analyzer) checkImmediateRange(op operand, size x86.OperandSize) {
	imm, ok := op.expr.(*ast.ImmExpr)
	if !ok {
		return
	}
	if !imm.Value.Fits(size) {
		a.warn(imm.Pos, fmt.Sprintf("immediate %s does not fit in a %s operand", imm.Value, size))
	}
}

// ---------------------------------------------------------------------------
// Operands
// ---------------------------------------------------------------------------

func (a *Analyzer) analyzeOperand(e ast.Expr) operand {
	switch ex := e.(type) {
	case *ast.RegExpr:
		return operand{expr: e, kind: x86.OpRegister, size: x86.SizeOf(ex.Reg.Size), ok: true}
	case *ast.ImmExpr:
		if !ex.Value.Fits(x86.SizeQWord) {
			a.error(ex.Pos, fmt.Sprintf("immediate %s does not fit in 64 bits", ex.Value))
			return operand{expr: e, kind: x86.OpImmediate}
		}
		return operand{expr: e, kind: x86.OpImmediate, ok: true}
	case *ast.LabelExpr:
		a.useLabel(ex.Name, ex.Pos)
		return operand{expr: e, kind: x86.OpLabel, ok: true}
	case *ast.MemExpr:
		return operand{expr: e, kind: x86.OpMemory, size: ex.Size, ok: a.checkAddress(ex)}
	default:
		a.error(e.GetPos(), fmt.Sprintf("unsupported operand %T", e))
		return operand{expr: e}
	}
}

// checkAddress validates the shape of a memory operand and the registers
// and label it uses.
func (a *Analyzer) checkAddress(m *ast.MemExpr) bool {
	addr, err := m.Shape()
	if err != nil {
		serr := err.(*ast.ShapeError)
		a.error(serr.Pos, serr.Message)
		return false
	}
	ok := true
	if addr.Base != nil && addr.Base.Reg.Size != x86.QWord {
		a.error(addr.Base.Pos, fmt.Sprintf("address register %s must be 64-bit", addr.Base.Reg))
		ok = false
	}
	if addr.Index != nil {
		switch {
		case addr.Index.Reg.Size != x86.QWord:
			a.error(addr.Index.Pos, fmt.Sprintf("address register %s must be 64-bit", addr.Index.Reg))
			ok = false
		case addr.Index.Reg.Name == x86.NameSP:
			a.error(addr.Index.Pos, "rsp cannot be used as an index register")
			ok = false
		}
	}
	// The listing writes a leading displacement as its magnitude.
	if addr.Base == nil && addr.Index == nil && addr.Label == nil && addr.Disp < 0 {
		a.error(m.Pos, fmt.Sprintf("negative absolute displacement %d is not representable", addr.Disp))
		ok = false
	}
	if addr.Label != nil {
		if _, defined := a.labels[addr.Label.Name]; !defined {
			ok = false
		}
		a.useLabel(addr.Label.Name, addr.Label.Pos)
	}
	return ok
}
