package imports

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"fasmgen/internal/ast"
	"fasmgen/internal/lexer"
	"fasmgen/internal/parser"
)

// ---------------------------------------------------------------------------
// ResolveError represents an error during include resolution.
// ---------------------------------------------------------------------------

type ResolveError struct {
	Message string
	Pos     ast.Position
	File    string
}

func (e *ResolveError) Error() string {
	if e.File != "" {
		return fmt.Sprintf("%s: line %d, col %d: %s", e.File, e.Pos.Line, e.Pos.Column, e.Message)
	}
	return fmt.Sprintf("line %d, col %d: %s", e.Pos.Line, e.Pos.Column, e.Message)
}

// ---------------------------------------------------------------------------
// Resolver splices included listings into the including program:
//   - File resolution (relative to the including file's directory)
//   - Circular include detection
//   - Each file is included at most once
//   - Transitive includes (included files can include other files)
// ---------------------------------------------------------------------------

type Resolver struct {
	log *zap.Logger

	// included tracks which absolute file paths have already been spliced.
	included map[string]bool

	// includeStack tracks the current chain of includes for circular detection.
	includeStack []string

	// errors collects all resolution errors.
	errors []*ResolveError
}

// NewResolver creates a resolver. A nil logger disables logging.
func NewResolver(log *zap.Logger) *Resolver {
	if log == nil {
		log = zap.NewNop()
	}
	return &Resolver{
		log:      log,
		included: make(map[string]bool),
	}
}

// Resolve replaces every include statement in prog by the statements of
// the named file, recursively. A file already spliced once, anywhere in the
// tree, is skipped on later includes. sourceFile is the path prog was read
// from; includes in prog resolve against its directory.
func (r *Resolver) Resolve(prog *ast.Program, sourceFile string) (*ast.Program, []*ResolveError) {
	absSource, err := filepath.Abs(sourceFile)
	if err != nil {
		absSource = sourceFile
	}
	r.included[absSource] = true
	r.includeStack = append(r.includeStack, absSource)
	stmts := r.splice(prog.Stmts, filepath.Dir(absSource), sourceFile)
	r.includeStack = r.includeStack[:len(r.includeStack)-1]

	if len(r.errors) > 0 {
		return prog, r.errors
	}
	return &ast.Program{File: prog.File, Stmts: stmts}, nil
}

func (r *Resolver) splice(stmts []ast.Stmt, baseDir string, includer string) []ast.Stmt {
	out := make([]ast.Stmt, 0, len(stmts))
	for _, stmt := range stmts {
		inc, ok := stmt.(*ast.Include)
		if !ok {
			out = append(out, stmt)
			continue
		}
		out = append(out, r.resolveInclude(inc, baseDir, includer)...)
	}
	return out
}

// IncludePath maps an include path onto a file: relative to baseDir, with
// ".asm" appended when the path has no extension.
func IncludePath(baseDir, path string) string {
	rel := filepath.FromSlash(path)
	if filepath.Ext(rel) == "" {
		rel += ".asm"
	}
	if filepath.IsAbs(rel) {
		return rel
	}
	return filepath.Join(baseDir, rel)
}

func (r *Resolver) resolveInclude(inc *ast.Include, baseDir string, includer string) []ast.Stmt {
	absPath, err := filepath.Abs(IncludePath(baseDir, inc.Path))
	if err != nil {
		r.addError(inc.Pos, includer, fmt.Sprintf("cannot resolve include path %q: %v", inc.Path, err))
		return nil
	}

	// Check for circular includes.
	for _, stackPath := range r.includeStack {
		if stackPath == absPath {
			chain := append(append([]string{}, r.includeStack...), absPath)
			r.addError(inc.Pos, includer, fmt.Sprintf("circular include detected: %s", strings.Join(chain, " -> ")))
			return nil
		}
	}

	if r.included[absPath] {
		r.log.Debug("skipping repeated include", zap.String("file", absPath))
		return nil
	}

	content, err := os.ReadFile(absPath)
	if err != nil {
		if os.IsNotExist(err) {
			r.addError(inc.Pos, includer, fmt.Sprintf("included file not found: %s (resolved from %q)", absPath, inc.Path))
		} else {
			r.addError(inc.Pos, includer, fmt.Sprintf("cannot read included file %s: %v", absPath, err))
		}
		return nil
	}

	tokens, lexErrors := lexer.Lex(string(content))
	if len(lexErrors) > 0 {
		for _, e := range lexErrors {
			r.addError(inc.Pos, absPath, fmt.Sprintf("lex error in included file: %s", e.Error()))
		}
		return nil
	}

	prog, parseErrors := parser.ParseFile(absPath, tokens)
	if len(parseErrors) > 0 {
		for _, e := range parseErrors {
			r.addError(inc.Pos, absPath, fmt.Sprintf("parse error in included file: %s", e.Error()))
		}
		return nil
	}

	r.log.Debug("included file",
		zap.String("file", absPath),
		zap.String("from", includer),
		zap.Int("statements", len(prog.Stmts)),
	)

	// Register before descending so a self-include is caught as a cycle and
	// a diamond includes the shared file once.
	r.included[absPath] = true
	r.includeStack = append(r.includeStack, absPath)
	stmts := r.splice(prog.Stmts, filepath.Dir(absPath), absPath)
	r.includeStack = r.includeStack[:len(r.includeStack)-1]
	return stmts
}

// addError records a resolution error.
func (r *Resolver) addError(pos ast.Position, file string, msg string) {
	r.errors = append(r.errors, &ResolveError{
		Message: msg,
		Pos:     pos,
		File:    file,
	})
}

// Included returns the absolute paths of every file spliced so far,
// including the root, in lexical order.
func (r *Resolver) Included() []string {
	files := make([]string, 0, len(r.included))
	for f := range r.included {
		files = append(files, f)
	}
	sort.Strings(files)
	return files
}
