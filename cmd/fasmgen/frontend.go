package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/term"

	"fasmgen/internal/ast"
	"fasmgen/internal/config"
	"fasmgen/internal/imports"
	"fasmgen/internal/lexer"
	"fasmgen/internal/parser"
	"fasmgen/internal/semantic"
)

// cli carries the output streams and the settings shared by every
// subcommand.
type cli struct {
	stdout io.Writer
	stderr io.Writer
	cfg    *config.Config
	log    *zap.Logger
}

// commonFlags are accepted by every subcommand.
type commonFlags struct {
	configPath string
	debug      bool
}

func (f *commonFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&f.configPath, "config", config.FileName, "configuration file")
	fs.BoolVar(&f.debug, "debug", false, "log pipeline stages at debug level")
}

// newFlagSet creates a subcommand flag set reporting to stderr.
func (c *cli) newFlagSet(name, args string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(c.stderr)
	fs.Usage = func() {
		fmt.Fprintf(c.stderr, "Usage: fasmgen %s [options] %s\n\nOptions:\n", name, args)
		fs.PrintDefaults()
	}
	return fs
}

// setup loads the configuration and builds the logger once flags are
// parsed.
func (c *cli) setup(f *commonFlags) error {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return err
	}
	level, err := cfg.Level()
	if err != nil {
		return err
	}
	if f.debug {
		level = zapcore.DebugLevel
	}
	c.cfg = cfg
	c.log = newLogger(c.stderr, level)
	return nil
}

// newLogger writes human-readable logs to a terminal and JSON lines
// anywhere else.
func newLogger(w io.Writer, level zapcore.Level) *zap.Logger {
	var enc zapcore.Encoder
	if f, ok := w.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		encCfg := zap.NewDevelopmentEncoderConfig()
		encCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		enc = zapcore.NewConsoleEncoder(encCfg)
	} else {
		enc = zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
	}
	return zap.New(zapcore.NewCore(enc, zapcore.AddSync(w), level))
}

// ---------------------------------------------------------------------------
// Front end: source file → checked program
// ---------------------------------------------------------------------------

// parseFile lexes and parses one file without resolving includes. Lex and
// parse errors are combined into the returned error.
func parseFile(path string, log *zap.Logger) (*ast.Program, error) {
	content, err := readSource(path)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	tokens, lexErrors := lexer.Lex(content)
	if len(lexErrors) > 0 {
		var errs error
		for _, e := range lexErrors {
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", path, e))
		}
		return nil, errs
	}
	log.Debug("lexed", zap.String("file", path), zap.Int("tokens", len(tokens)))

	prog, parseErrors := parser.ParseFile(path, tokens)
	if len(parseErrors) > 0 {
		var errs error
		for _, e := range parseErrors {
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", path, e))
		}
		return nil, errs
	}
	log.Debug("parsed",
		zap.String("file", path),
		zap.Int("statements", len(prog.Stmts)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return prog, nil
}

func readSource(path string) (string, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("cannot read %s: %w", path, err)
	}
	return string(content), nil
}

// loadProgram parses path and splices its includes.
func loadProgram(path string, log *zap.Logger) (*ast.Program, error) {
	prog, err := parseFile(path, log)
	if err != nil {
		return nil, err
	}
	resolver := imports.NewResolver(log)
	merged, resolveErrors := resolver.Resolve(prog, path)
	if len(resolveErrors) > 0 {
		var errs error
		for _, e := range resolveErrors {
			errs = multierr.Append(errs, e)
		}
		return nil, errs
	}
	log.Debug("includes resolved",
		zap.String("file", path),
		zap.Int("files", len(resolver.Included())),
	)
	return merged, nil
}

// checkFile runs the whole front end. A nil error with diagnostics means
// the program was read but may still have checker errors; see
// semantic.HasErrors.
func checkFile(path string, log *zap.Logger) (*ast.Program, []semantic.Diagnostic, error) {
	prog, err := loadProgram(path, log)
	if err != nil {
		return nil, nil, err
	}
	diags := semantic.Analyze(prog)
	log.Debug("checked", zap.String("file", path), zap.Int("diagnostics", len(diags)))
	return prog, diags, nil
}

// printDiagnostics writes diagnostics one per line and returns the checker
// errors among them as one combined error.
func printDiagnostics(w io.Writer, diags []semantic.Diagnostic) error {
	var errs error
	for _, d := range diags {
		fmt.Fprintln(w, d.Error())
		if d.Severity == semantic.Error {
			errs = multierr.Append(errs, d)
		}
	}
	return errs
}
