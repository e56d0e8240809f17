package imports

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"fasmgen/internal/ast"
	"fasmgen/internal/lexer"
	"fasmgen/internal/parser"
)

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func resolveFile(t *testing.T, path string) (*ast.Program, []*ResolveError) {
	t.Helper()
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	tokens, lexErrs := lexer.Lex(string(content))
	if len(lexErrs) > 0 {
		t.Fatalf("lex errors: %v", lexErrs)
	}
	prog, parseErrs := parser.ParseFile(path, tokens)
	if len(parseErrs) > 0 {
		t.Fatalf("parse errors: %v", parseErrs)
	}
	return NewResolver(nil).Resolve(prog, path)
}

func labelNames(prog *ast.Program) []string {
	var names []string
	for _, s := range prog.Stmts {
		if l, ok := s.(*ast.LabelDef); ok {
			names = append(names, l.Name)
		}
	}
	return names
}

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

func TestIncludePath(t *testing.T) {
	base := filepath.FromSlash("/src")
	tests := []struct {
		path string
		want string
	}{
		{"io", filepath.FromSlash("/src/io.asm")},
		{"lib/io", filepath.FromSlash("/src/lib/io.asm")},
		{"macros.inc", filepath.FromSlash("/src/macros.inc")},
		{"../shared/x", filepath.FromSlash("/shared/x.asm")},
	}
	for _, tt := range tests {
		if got := IncludePath(base, tt.path); got != tt.want {
			t.Errorf("IncludePath(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}

func TestSpliceInPlace(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "lib/io.asm", "print:\n    ret\n")
	main := writeFile(t, dir, "main.asm", "_start:\ninclude \"lib/io\"\nexit:\n    ret\n")

	prog, errs := resolveFile(t, main)
	if len(errs) > 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	got := strings.Join(labelNames(prog), ",")
	if got != "_start,print,exit" {
		t.Errorf("labels in order: got %s", got)
	}
	for _, s := range prog.Stmts {
		if _, ok := s.(*ast.Include); ok {
			t.Errorf("include statement left in program")
		}
	}
}

func TestSplicedPositionsNameTheirFile(t *testing.T) {
	dir := t.TempDir()
	lib := writeFile(t, dir, "lib.asm", "helper:\n")
	main := writeFile(t, dir, "main.asm", "include \"lib\"\n")

	prog, errs := resolveFile(t, main)
	if len(errs) > 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if len(prog.Stmts) != 1 {
		t.Fatalf("expected 1 statement, got %d", len(prog.Stmts))
	}
	want, _ := filepath.Abs(lib)
	if got := prog.Stmts[0].GetPos().File; got != want {
		t.Errorf("position file: got %q, want %q", got, want)
	}
}

func TestTransitiveAndDiamondIncludes(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "common.asm", "shared:\n")
	writeFile(t, dir, "a.asm", "include \"common\"\na:\n")
	writeFile(t, dir, "b.asm", "include \"common\"\nb:\n")
	main := writeFile(t, dir, "main.asm", "include \"a\"\ninclude \"b\"\n")

	prog, errs := resolveFile(t, main)
	if len(errs) > 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	got := strings.Join(labelNames(prog), ",")
	if got != "shared,a,b" {
		t.Errorf("labels: got %s, want shared,a,b", got)
	}
}

func TestIncludeRelativeToIncludingFile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "lib/inner.asm", "inner:\n")
	writeFile(t, dir, "lib/outer.asm", "include \"inner\"\nouter:\n")
	main := writeFile(t, dir, "main.asm", "include \"lib/outer\"\n")

	prog, errs := resolveFile(t, main)
	if len(errs) > 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if got := strings.Join(labelNames(prog), ","); got != "inner,outer" {
		t.Errorf("labels: got %s", got)
	}
}

func TestCircularInclude(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.asm", "include \"b\"\n")
	writeFile(t, dir, "b.asm", "include \"a\"\n")
	main := writeFile(t, dir, "main.asm", "include \"a\"\n")

	_, errs := resolveFile(t, main)
	if len(errs) != 1 {
		t.Fatalf("expected 1 error, got %v", errs)
	}
	msg := errs[0].Message
	if !strings.Contains(msg, "circular include") {
		t.Fatalf("unexpected error: %s", msg)
	}
	for _, name := range []string{"main.asm", "a.asm", "b.asm"} {
		if !strings.Contains(msg, name) {
			t.Errorf("cycle chain %q does not name %s", msg, name)
		}
	}
}

func TestSelfInclude(t *testing.T) {
	dir := t.TempDir()
	main := writeFile(t, dir, "main.asm", "include \"main\"\n")
	_, errs := resolveFile(t, main)
	if len(errs) != 1 || !strings.Contains(errs[0].Message, "circular include") {
		t.Fatalf("expected a cycle error, got %v", errs)
	}
}

func TestMissingInclude(t *testing.T) {
	dir := t.TempDir()
	main := writeFile(t, dir, "main.asm", "\n\ninclude \"nowhere\"\n")
	_, errs := resolveFile(t, main)
	if len(errs) != 1 {
		t.Fatalf("expected 1 error, got %v", errs)
	}
	if !strings.Contains(errs[0].Message, "not found") {
		t.Errorf("unexpected error: %s", errs[0].Message)
	}
	if errs[0].Pos.Line != 3 || errs[0].File != main {
		t.Errorf("error location: %s", errs[0].Error())
	}
}

func TestParseErrorInIncludedFile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "bad.asm", "mov rax, [\n")
	main := writeFile(t, dir, "main.asm", "include \"bad\"\n")
	_, errs := resolveFile(t, main)
	if len(errs) == 0 || !strings.Contains(errs[0].Message, "parse error in included file") {
		t.Fatalf("expected a parse error, got %v", errs)
	}
}

func TestIncludedListsEveryFile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "lib.asm", "x:\n")
	main := writeFile(t, dir, "main.asm", "include \"lib\"\n")
	content, _ := os.ReadFile(main)
	tokens, _ := lexer.Lex(string(content))
	prog, _ := parser.ParseFile(main, tokens)

	r := NewResolver(nil)
	if _, errs := r.Resolve(prog, main); len(errs) > 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if got := len(r.Included()); got != 2 {
		t.Errorf("Included: got %d files, want 2", got)
	}
}
