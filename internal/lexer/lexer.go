package lexer

import (
	"fmt"
	"strings"
)

const (
	// Special
	EOF     = "EOF"
	ILLEGAL = "ILLEGAL"
	NEWLINE = "NEWLINE"

	// Literals
	IDENT  = "IDENT"  // mnemonics, registers, labels: mov, rax, _start, .loop
	INT    = "INT"    // integer literals: 0, 42, 0xFF
	STRING = "STRING" // string literals: 'hello', "hi"

	// Keywords
	INCLUDE = "INCLUDE"
	FORMAT  = "FORMAT"
	SEGMENT = "SEGMENT"
	ENTRY   = "ENTRY"
	RIP     = "RIP"

	// Size keywords
	BYTE  = "BYTE"
	WORD  = "WORD"
	DWORD = "DWORD"
	QWORD = "QWORD"

	// Delimiters
	LBRACKET = "LBRACKET" // [
	RBRACKET = "RBRACKET" // ]
	COLON    = "COLON"    // :
	COMMA    = "COMMA"    // ,

	// Operators
	PLUS  = "PLUS"  // +
	MINUS = "MINUS" // -
	STAR  = "STAR"  // *
)

// keywords maps reserved words to their token types. Keywords are matched
// case-insensitively, as FASM does.
var keywords = map[string]string{
	"include": INCLUDE,
	"format":  FORMAT,
	"segment": SEGMENT,
	"entry":   ENTRY,
	"rip":     RIP,
	"byte":    BYTE,
	"word":    WORD,
	"dword":   DWORD,
	"qword":   QWORD,
}

// IsSizeKeyword reports whether typ is one of the size keywords.
func IsSizeKeyword(typ string) bool {
	return typ == BYTE || typ == WORD || typ == DWORD || typ == QWORD
}

// Token represents a single lexical token produced by the lexer.
type Token struct {
	Type   string
	Value  string
	Line   int
	Column int
}

// LexError represents a recoverable error encountered during lexing.
type LexError struct {
	Message string
	Lexeme  string
	Line    int
	Column  int
}

func (e LexError) Error() string {
	return fmt.Sprintf("line %d, col %d: %s (got %q)", e.Line, e.Column, e.Message, e.Lexeme)
}

// Lex splits a listing into tokens. Line breaks are significant and come
// out as NEWLINE tokens; runs of blank lines collapse into one. Lexing
// continues past errors so that every problem in a file is reported.
func Lex(input string) ([]Token, []LexError) {
	var tokens []Token
	var errors []LexError
	line, col, i := 1, 1, 0

	for i < len(input) {
		ch := input[i]

		if ch == '\n' {
			if len(tokens) > 0 && tokens[len(tokens)-1].Type != NEWLINE {
				tokens = append(tokens, Token{NEWLINE, "\n", line, col})
			}
			line++
			col = 1
			i++
			continue
		}
		if isBlank(ch) {
			if ch != '\r' {
				col++
			}
			i++
			continue
		}

		// Comments run to the end of the line.
		if ch == ';' {
			i, col = skipLineComment(input, i, col)
			continue
		}

		// Strings
		if ch == '"' || ch == '\'' {
			tok, err, newI, newCol := lexString(input, i, line, col)
			i, col = newI, newCol
			if err != nil {
				errors = append(errors, *err)
			}
			if tok != nil {
				tokens = append(tokens, *tok)
			}
			continue
		}

		// Integers
		if isDigit(ch) {
			tok, err, newI, newCol := lexNumber(input, i, line, col)
			if err != nil {
				errors = append(errors, *err)
			} else {
				tokens = append(tokens, tok)
			}
			i, col = newI, newCol
			continue
		}

		// Keywords and identifiers
		if isIdentStart(ch) {
			tok, newI, newCol := lexIdentifier(input, i, line, col)
			tokens = append(tokens, tok)
			i, col = newI, newCol
			continue
		}

		if tok, ok := lexPunct(ch, line, col); ok {
			tokens = append(tokens, tok)
			i++
			col++
			continue
		}

		// Unknown characters
		errors = append(errors, LexError{
			Message: "unexpected character",
			Lexeme:  string(ch),
			Line:    line,
			Column:  col,
		})
		i++
		col++
	}

	if len(tokens) > 0 && tokens[len(tokens)-1].Type != NEWLINE {
		tokens = append(tokens, Token{NEWLINE, "\n", line, col})
	}
	tokens = append(tokens, Token{EOF, "", line, col})
	return tokens, errors
}

func skipLineComment(input string, i int, col int) (int, int) {
	for i < len(input) && input[i] != '\n' {
		i++
		col++
	}
	return i, col
}

// lexString scans a quoted string. FASM strings have no escapes, so the
// token value is the raw text between the quotes.
func lexString(input string, start int, line int, col int) (*Token, *LexError, int, int) {
	quote := input[start]
	startCol := col
	i := start + 1
	col++

	for i < len(input) {
		ch := input[i]
		if ch == '\n' || ch == '\r' {
			return nil, &LexError{
				Message: "unterminated string literal (newline in string)",
				Lexeme:  input[start:i],
				Line:    line,
				Column:  startCol,
			}, i, col
		}
		if ch == quote {
			tok := Token{STRING, input[start+1 : i], line, startCol}
			return &tok, nil, i + 1, col + 1
		}
		i++
		col++
	}

	return nil, &LexError{
		Message: "unterminated string literal (reached end of input)",
		Lexeme:  input[start:],
		Line:    line,
		Column:  startCol,
	}, i, col
}

// lexNumber scans a decimal or 0x-prefixed hexadecimal integer. A number
// running straight into letters (12ab) is an error.
func lexNumber(input string, start int, line int, col int) (Token, *LexError, int, int) {
	i := start
	startCol := col

	if input[i] == '0' && i+1 < len(input) && (input[i+1] == 'x' || input[i+1] == 'X') {
		i += 2
		col += 2
		for i < len(input) && isHexDigit(input[i]) {
			i++
			col++
		}
		if i == start+2 {
			return Token{}, &LexError{"hexadecimal literal has no digits", input[start:i], line, startCol}, i, col
		}
	} else {
		for i < len(input) && isDigit(input[i]) {
			i++
			col++
		}
	}

	if i < len(input) && isIdentPart(input[i]) {
		end := i
		for end < len(input) && isIdentPart(input[end]) {
			end++
		}
		err := &LexError{"malformed number", input[start:end], line, startCol}
		return Token{}, err, end, col + (end - i)
	}
	return Token{INT, input[start:i], line, startCol}, nil, i, col
}

func lexIdentifier(input string, start int, line int, col int) (Token, int, int) {
	i := start
	startCol := col
	for i < len(input) && isIdentPart(input[i]) {
		i++
		col++
	}
	word := input[start:i]
	tokType := IDENT
	if kw, ok := keywords[strings.ToLower(word)]; ok {
		tokType = kw
	}
	return Token{tokType, word, line, startCol}, i, col
}

func lexPunct(ch byte, line int, col int) (Token, bool) {
	switch ch {
	case '[':
		return Token{LBRACKET, "[", line, col}, true
	case ']':
		return Token{RBRACKET, "]", line, col}, true
	case ':':
		return Token{COLON, ":", line, col}, true
	case ',':
		return Token{COMMA, ",", line, col}, true
	case '+':
		return Token{PLUS, "+", line, col}, true
	case '-':
		return Token{MINUS, "-", line, col}, true
	case '*':
		return Token{STAR, "*", line, col}, true
	}
	return Token{}, false
}

func isBlank(ch byte) bool {
	return ch == ' ' || ch == '\t' || ch == '\r'
}

func isDigit(ch byte) bool {
	return ch >= '0' && ch <= '9'
}

func isHexDigit(ch byte) bool {
	return isDigit(ch) || (ch >= 'a' && ch <= 'f') || (ch >= 'A' && ch <= 'F')
}

func isLetter(ch byte) bool {
	return (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z')
}

func isIdentStart(ch byte) bool {
	return isLetter(ch) || ch == '_' || ch == '.'
}

func isIdentPart(ch byte) bool {
	return isLetter(ch) || isDigit(ch) || ch == '_' || ch == '.'
}
