package parser

import (
	"fmt"
	"strconv"
	"strings"

	"fasmgen/internal/ast"
	"fasmgen/internal/lexer"
	"fasmgen/internal/x86"
)

// ---------------------------------------------------------------------------
// ParseError
// ---------------------------------------------------------------------------

// ParseError represents a single error found during parsing.
type ParseError struct {
	Message string
	Line    int
	Column  int
}

func (e ParseError) Error() string {
	return fmt.Sprintf("line %d, col %d: %s", e.Line, e.Column, e.Message)
}

// ---------------------------------------------------------------------------
// Parser
// ---------------------------------------------------------------------------

// Parser holds the state for a single parse pass over a token stream.
type Parser struct {
	file   string
	tokens []lexer.Token
	pos    int
	errors []ParseError
}

// Parse is the main entry point. It takes a token slice (as produced by
// lexer.Lex) and returns an AST program plus any parse errors collected.
func Parse(tokens []lexer.Token) (*ast.Program, []ParseError) {
	return ParseFile("", tokens)
}

// ParseFile is Parse for tokens read from file; every position in the
// resulting tree records it.
func ParseFile(file string, tokens []lexer.Token) (*ast.Program, []ParseError) {
	p := &Parser{file: file, tokens: tokens, pos: 0}
	prog := p.parseProgram()
	prog.File = file
	return prog, p.errors
}

// ---------------------------------------------------------------------------
// Token helpers
// ---------------------------------------------------------------------------

// peek returns the current token without consuming it.
func (p *Parser) peek() lexer.Token {
	if p.pos < len(p.tokens) {
		return p.tokens[p.pos]
	}
	return lexer.Token{Type: lexer.EOF}
}

// peekAt returns the token at a given offset from the current position.
func (p *Parser) peekAt(offset int) lexer.Token {
	idx := p.pos + offset
	if idx >= 0 && idx < len(p.tokens) {
		return p.tokens[idx]
	}
	return lexer.Token{Type: lexer.EOF}
}

// advance consumes and returns the current token.
func (p *Parser) advance() lexer.Token {
	tok := p.peek()
	if tok.Type != lexer.EOF {
		p.pos++
	}
	return tok
}

// check returns true if the current token has the given type.
func (p *Parser) check(typ string) bool {
	return p.peek().Type == typ
}

// match consumes the current token if it matches any of the given types.
func (p *Parser) match(types ...string) bool {
	for _, t := range types {
		if p.check(t) {
			p.advance()
			return true
		}
	}
	return false
}

// expect consumes the current token if it matches typ; otherwise it records
// an error and returns the current token WITHOUT advancing.
func (p *Parser) expect(typ string, msg string) (lexer.Token, bool) {
	if p.check(typ) {
		return p.advance(), true
	}
	tok := p.peek()
	p.addError(tok, fmt.Sprintf("%s (got %s %q)", msg, tok.Type, tok.Value))
	return tok, false
}

// addError appends a ParseError at the given token's location.
func (p *Parser) addError(tok lexer.Token, msg string) {
	p.errors = append(p.errors, ParseError{
		Message: msg,
		Line:    tok.Line,
		Column:  tok.Column,
	})
}

// synchronize skips the rest of the current line so parsing can resume at
// the next statement.
func (p *Parser) synchronize() {
	for !p.check(lexer.EOF) && !p.check(lexer.NEWLINE) {
		p.advance()
	}
	p.match(lexer.NEWLINE)
}

// endOfStatement requires the statement to end at a line break.
func (p *Parser) endOfStatement() {
	if p.match(lexer.NEWLINE) || p.check(lexer.EOF) {
		return
	}
	tok := p.peek()
	p.addError(tok, fmt.Sprintf("unexpected %s %q after statement", tok.Type, tok.Value))
	p.synchronize()
}

func (p *Parser) at(tok lexer.Token) ast.Position {
	return ast.Position{File: p.file, Line: tok.Line, Column: tok.Column}
}

// ---------------------------------------------------------------------------
// Statements
// ---------------------------------------------------------------------------

var defineSizes = map[string]x86.RegSize{
	"db": x86.Byte, "dw": x86.Word, "dd": x86.DWord, "dq": x86.QWord,
}

var reserveSizes = map[string]x86.RegSize{
	"rb": x86.Byte, "rw": x86.Word, "rd": x86.DWord, "rq": x86.QWord,
}

var operandSizes = map[string]x86.OperandSize{
	lexer.BYTE: x86.SizeByte, lexer.WORD: x86.SizeWord, lexer.DWORD: x86.SizeDWord, lexer.QWORD: x86.SizeQWord,
}

func (p *Parser) parseProgram() *ast.Program {
	prog := &ast.Program{}
	for !p.check(lexer.EOF) {
		if p.match(lexer.NEWLINE) {
			continue
		}
		before := len(p.errors)
		stmt := p.parseStatement()
		if stmt != nil {
			prog.Stmts = append(prog.Stmts, stmt)
		}
		if len(p.errors) > before {
			p.synchronize()
			continue
		}
		// A label definition may share its line with the next statement.
		if _, ok := stmt.(*ast.LabelDef); ok {
			continue
		}
		p.endOfStatement()
	}
	return prog
}

func (p *Parser) parseStatement() ast.Stmt {
	tok := p.peek()
	switch tok.Type {
	case lexer.INCLUDE:
		return p.parseInclude()
	case lexer.FORMAT:
		return p.parseFormat()
	case lexer.SEGMENT:
		return p.parseSegment()
	case lexer.ENTRY:
		p.advance()
		name, ok := p.expect(lexer.IDENT, "expected label after entry")
		if !ok {
			return nil
		}
		return &ast.Entry{Label: name.Value, Pos: p.at(tok)}
	case lexer.IDENT:
		next := p.peekAt(1)
		if next.Type == lexer.COLON {
			p.advance()
			p.advance()
			return &ast.LabelDef{Name: tok.Value, Pos: p.at(tok)}
		}
		if next.Type == lexer.IDENT {
			kw := strings.ToLower(next.Value)
			if size, ok := defineSizes[kw]; ok {
				return p.parseData(size)
			}
			if size, ok := reserveSizes[kw]; ok {
				return p.parseReserve(size)
			}
		}
		return p.parseInstr()
	default:
		p.advance()
		p.addError(tok, fmt.Sprintf("unexpected %s %q at start of statement", tok.Type, tok.Value))
		return nil
	}
}

func (p *Parser) parseInclude() ast.Stmt {
	start := p.advance()
	path, ok := p.expect(lexer.STRING, "expected quoted path after include")
	if !ok {
		return nil
	}
	return &ast.Include{Path: path.Value, Pos: p.at(start)}
}

// parseFormat accepts only the one output format the emitter produces.
func (p *Parser) parseFormat() ast.Stmt {
	start := p.advance()
	kind, ok1 := p.expect(lexer.IDENT, "expected output format")
	mode, ok2 := p.expect(lexer.IDENT, "expected output mode")
	if !ok1 || !ok2 {
		return nil
	}
	if !strings.EqualFold(kind.Value, "ELF64") || !strings.EqualFold(mode.Value, "executable") {
		p.addError(kind, fmt.Sprintf("unsupported format %q (only ELF64 executable)", kind.Value+" "+mode.Value))
		return nil
	}
	return &ast.Format{Pos: p.at(start)}
}

func (p *Parser) parseSegment() ast.Stmt {
	start := p.advance()
	seg := &ast.Segment{Pos: p.at(start)}
	for p.check(lexer.IDENT) {
		tok := p.advance()
		var flag *bool
		switch strings.ToLower(tok.Value) {
		case "readable":
			flag = &seg.Readable
		case "writable", "writeable":
			flag = &seg.Writable
		case "executable":
			flag = &seg.Executable
		default:
			p.addError(tok, fmt.Sprintf("unknown segment attribute %q", tok.Value))
			return nil
		}
		if *flag {
			p.addError(tok, fmt.Sprintf("duplicate segment attribute %q", tok.Value))
			return nil
		}
		*flag = true
	}
	return seg
}

func (p *Parser) parseData(size x86.RegSize) ast.Stmt {
	name := p.advance()
	p.advance() // db/dw/dd/dq
	data := &ast.Data{Name: name.Value, Size: size, Pos: p.at(name)}
	for {
		tok := p.peek()
		switch tok.Type {
		case lexer.STRING:
			p.advance()
			data.Items = append(data.Items, ast.DataItem{Text: tok.Value, IsText: true, Pos: p.at(tok)})
		case lexer.INT, lexer.MINUS:
			v, ok := p.parseSignedInt()
			if !ok {
				return nil
			}
			data.Items = append(data.Items, ast.DataItem{Value: v, Pos: p.at(tok)})
		default:
			p.addError(tok, fmt.Sprintf("expected number or string in data definition (got %s %q)", tok.Type, tok.Value))
			return nil
		}
		if !p.match(lexer.COMMA) {
			return data
		}
	}
}

func (p *Parser) parseReserve(size x86.RegSize) ast.Stmt {
	name := p.advance()
	p.advance() // rb/rw/rd/rq
	tok, ok := p.expect(lexer.INT, "expected element count")
	if !ok {
		return nil
	}
	n, ok := p.parseUint(tok)
	if !ok {
		return nil
	}
	return &ast.Reserve{Name: name.Value, Size: size, Count: n, Pos: p.at(name)}
}

func (p *Parser) parseInstr() ast.Stmt {
	tok := p.advance()
	instr := &ast.Instr{Mnemonic: strings.ToLower(tok.Value), Pos: p.at(tok)}
	if p.check(lexer.NEWLINE) || p.check(lexer.EOF) {
		return instr
	}
	for {
		op := p.parseOperand()
		if op == nil {
			return nil
		}
		instr.Operands = append(instr.Operands, op)
		if !p.match(lexer.COMMA) {
			return instr
		}
	}
}

// ---------------------------------------------------------------------------
// Operands
// ---------------------------------------------------------------------------

func (p *Parser) parseOperand() ast.Expr {
	tok := p.peek()
	switch {
	case lexer.IsSizeKeyword(tok.Type):
		p.advance()
		if !p.check(lexer.LBRACKET) {
			p.addError(p.peek(), fmt.Sprintf("size %s must be followed by a memory operand", strings.ToLower(tok.Value)))
			return nil
		}
		mem := p.parseMemory()
		if mem == nil {
			return nil
		}
		mem.Size = operandSizes[tok.Type]
		mem.Pos = p.at(tok)
		return mem
	case tok.Type == lexer.LBRACKET:
		if mem := p.parseMemory(); mem != nil {
			return mem
		}
		return nil
	case tok.Type == lexer.INT || tok.Type == lexer.MINUS:
		v, ok := p.parseSignedInt()
		if !ok {
			return nil
		}
		return &ast.ImmExpr{Value: v, Pos: p.at(tok)}
	case tok.Type == lexer.IDENT:
		p.advance()
		if reg, ok := x86.LookupReg(tok.Value); ok {
			return &ast.RegExpr{Reg: reg, Pos: p.at(tok)}
		}
		return &ast.LabelExpr{Name: tok.Value, Pos: p.at(tok)}
	default:
		p.addError(tok, fmt.Sprintf("expected operand (got %s %q)", tok.Type, tok.Value))
		return nil
	}
}

func (p *Parser) parseMemory() *ast.MemExpr {
	open := p.advance() // [
	mem := &ast.MemExpr{Pos: p.at(open)}
	negative := false
	if p.match(lexer.MINUS) {
		negative = true
	}
	for {
		term, ok := p.parseTerm(negative)
		if !ok {
			return nil
		}
		mem.Terms = append(mem.Terms, term)
		switch {
		case p.match(lexer.PLUS):
			negative = false
		case p.match(lexer.MINUS):
			negative = true
		default:
			if _, ok := p.expect(lexer.RBRACKET, "expected ']' to close address"); !ok {
				return nil
			}
			return mem
		}
	}
}

func (p *Parser) parseTerm(negative bool) (ast.MemTerm, bool) {
	tok := p.peek()
	term := ast.MemTerm{Negative: negative, Pos: p.at(tok)}
	switch tok.Type {
	case lexer.RIP, lexer.INT, lexer.IDENT:
		p.advance()
	default:
		p.addError(tok, fmt.Sprintf("expected register, label or number in address (got %s %q)", tok.Type, tok.Value))
		return term, false
	}
	switch tok.Type {
	case lexer.RIP:
		term.Kind = ast.TermRip
	case lexer.INT:
		n, ok := p.parseUint(tok)
		if !ok {
			return term, false
		}
		term.Kind = ast.TermInt
		term.Value = n
	case lexer.IDENT:
		reg, isReg := x86.LookupReg(tok.Value)
		if !isReg {
			term.Kind = ast.TermLabel
			term.Name = tok.Value
			break
		}
		term.Kind = ast.TermReg
		term.Reg = reg
		if p.match(lexer.STAR) {
			st, ok := p.expect(lexer.INT, "expected scale after '*'")
			if !ok {
				return term, false
			}
			n, ok := p.parseUint(st)
			if !ok {
				return term, false
			}
			if _, valid := x86.ScaleOf(int64(n)); n > 8 || !valid {
				p.addError(st, fmt.Sprintf("invalid scale %d (must be 1, 2, 4 or 8)", n))
				return term, false
			}
			term.Scale = int64(n)
		}
	}
	return term, true
}

// ---------------------------------------------------------------------------
// Numbers
// ---------------------------------------------------------------------------

func (p *Parser) parseUint(tok lexer.Token) (uint64, bool) {
	n, err := strconv.ParseUint(tok.Value, 0, 64)
	if err != nil {
		p.addError(tok, fmt.Sprintf("integer %s out of range", tok.Value))
		return 0, false
	}
	return n, true
}

// parseSignedInt reads [-]INT as a 128-bit value, so both -2^63 and
// 2^64-1 are representable.
func (p *Parser) parseSignedInt() (x86.Int128, bool) {
	negative := p.match(lexer.MINUS)
	tok, ok := p.expect(lexer.INT, "expected integer")
	if !ok {
		return x86.Int128{}, false
	}
	n, ok := p.parseUint(tok)
	if !ok {
		return x86.Int128{}, false
	}
	v := x86.Int128Of(n)
	if negative {
		v = v.Neg()
	}
	return v, true
}
