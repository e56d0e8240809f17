package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"

	"github.com/segmentio/encoding/json"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"fasmgen/internal/ast"
	"fasmgen/internal/codegen"
	"fasmgen/internal/lexer"
	"fasmgen/internal/semantic"
)

// ---------------------------------------------------------------------------
// build
// ---------------------------------------------------------------------------

// buildFlags may override the [build] section of the configuration; only
// flags given on the command line do.
type buildFlags struct {
	commonFlags
	dir     string
	fasm    string
	asmOnly bool
	jobs    int
	output  string
}

func (c *cli) cmdBuild(ctx context.Context, args []string) int {
	var f buildFlags
	fs := c.newFlagSet("build", "<file>...")
	f.register(fs)
	fs.StringVar(&f.dir, "dir", "", "build directory (default from config)")
	fs.StringVar(&f.fasm, "fasm", "", "assembler binary (default from config)")
	fs.BoolVar(&f.asmOnly, "asm-only", false, "write the listing without assembling")
	fs.IntVar(&f.jobs, "j", 0, "files built in parallel (default from config)")
	fs.StringVar(&f.output, "o", "", "output base name (single input only)")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() < 1 {
		fs.Usage()
		return 2
	}
	if f.output != "" && fs.NArg() > 1 {
		fmt.Fprintln(c.stderr, "-o cannot be used with several inputs")
		return 2
	}
	if err := c.setup(&f.commonFlags); err != nil {
		fmt.Fprintln(c.stderr, err)
		return 1
	}

	build := c.cfg.Build
	fs.Visit(func(fl *flag.Flag) {
		switch fl.Name {
		case "dir":
			build.Dir = f.dir
		case "fasm":
			build.Fasm = f.fasm
		case "asm-only":
			build.AsmOnly = f.asmOnly
		case "j":
			build.Jobs = f.jobs
		}
	})
	if build.Jobs < 1 {
		fmt.Fprintln(c.stderr, "-j must be at least 1")
		return 2
	}

	files := fs.Args()
	if err := checkOutputNames(files, f.output); err != nil {
		fmt.Fprintln(c.stderr, err)
		return 2
	}
	type outcome struct {
		diags  []semantic.Diagnostic
		result *codegen.Result
		err    error
	}
	outcomes := make([]outcome, len(files))

	var g errgroup.Group
	g.SetLimit(build.Jobs)
	for i, file := range files {
		i, file := i, file
		g.Go(func() error {
			log := c.log.Named("build")
			prog, diags, err := checkFile(file, log)
			outcomes[i].diags = diags
			if err != nil {
				outcomes[i].err = err
				return nil
			}
			if semantic.HasErrors(diags) {
				return nil
			}
			res, err := codegen.Generate(ctx, prog, &codegen.Options{
				BuildDir:   build.Dir,
				OutputName: f.output,
				FasmPath:   build.Fasm,
				AsmOnly:    build.AsmOnly,
				Logger:     log,
			})
			outcomes[i].result = res
			outcomes[i].err = err
			return nil
		})
	}
	_ = g.Wait()

	var failures error
	for i, o := range outcomes {
		if err := printDiagnostics(c.stderr, o.diags); err != nil {
			failures = multierr.Append(failures, fmt.Errorf("%s: checker errors", files[i]))
		}
		if o.err != nil {
			failures = multierr.Append(failures, o.err)
			continue
		}
		if o.result != nil {
			fmt.Fprintf(c.stdout, "%s:\n  listing:    %s\n", files[i], o.result.AsmFile)
			if o.result.ExeFile != "" {
				fmt.Fprintf(c.stdout, "  executable: %s\n", o.result.ExeFile)
			}
		}
	}
	_ = c.log.Sync()
	return c.report(failures)
}

// checkOutputNames rejects inputs that would write the same listing and
// executable.
func checkOutputNames(files []string, override string) error {
	owner := make(map[string]string, len(files))
	var errs error
	for _, file := range files {
		name := codegen.OutputName(file, override)
		if first, ok := owner[name]; ok {
			errs = multierr.Append(errs, fmt.Errorf("%s and %s both build to %q; build them separately or rename one", first, file, name))
			continue
		}
		owner[name] = file
	}
	return errs
}

// report prints every aggregated failure and maps them to an exit code.
func (c *cli) report(failures error) int {
	errs := multierr.Errors(failures)
	for _, err := range errs {
		fmt.Fprintln(c.stderr, err)
	}
	if len(errs) > 0 {
		return 1
	}
	return 0
}

// ---------------------------------------------------------------------------
// check
// ---------------------------------------------------------------------------

// fileReport is the JSON shape of check --json.
type fileReport struct {
	File        string                `json:"file"`
	Diagnostics []semantic.Diagnostic `json:"diagnostics"`
	Errors      []string              `json:"errors,omitempty"`
}

func (c *cli) cmdCheck(ctx context.Context, args []string) int {
	var f commonFlags
	fs := c.newFlagSet("check", "<file>...")
	f.register(fs)
	asJSON := fs.Bool("json", false, "print diagnostics as JSON")
	jobs := fs.Int("j", 0, "files checked in parallel (default from config)")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() < 1 {
		fs.Usage()
		return 2
	}
	if err := c.setup(&f); err != nil {
		fmt.Fprintln(c.stderr, err)
		return 1
	}
	limit := c.cfg.Build.Jobs
	if *jobs > 0 {
		limit = *jobs
	}

	files := fs.Args()
	reports := make([]fileReport, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, file := range files {
		i, file := i, file
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			reports[i].File = file
			_, diags, err := checkFile(file, c.log.Named("check"))
			reports[i].Diagnostics = diags
			for _, e := range multierr.Errors(err) {
				reports[i].Errors = append(reports[i].Errors, e.Error())
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		fmt.Fprintln(c.stderr, err)
		return 1
	}
	_ = c.log.Sync()

	failed := false
	for _, r := range reports {
		if len(r.Errors) > 0 || semantic.HasErrors(r.Diagnostics) {
			failed = true
		}
	}

	if *asJSON {
		for i := range reports {
			if reports[i].Diagnostics == nil {
				reports[i].Diagnostics = []semantic.Diagnostic{}
			}
		}
		enc := json.NewEncoder(c.stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(reports); err != nil {
			fmt.Fprintln(c.stderr, err)
			return 1
		}
	} else {
		for _, r := range reports {
			for _, e := range r.Errors {
				fmt.Fprintln(c.stdout, e)
			}
			_ = printDiagnostics(c.stdout, r.Diagnostics)
		}
	}
	if failed {
		return 1
	}
	return 0
}

// ---------------------------------------------------------------------------
// fmt, tokens, ast
// ---------------------------------------------------------------------------

// singleFile parses the flags of a one-file command and sets up logging.
func (c *cli) singleFile(name string, args []string) (string, bool) {
	var f commonFlags
	fs := c.newFlagSet(name, "<file>")
	f.register(fs)
	if err := fs.Parse(args); err != nil {
		return "", false
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return "", false
	}
	if err := c.setup(&f); err != nil {
		fmt.Fprintln(c.stderr, err)
		return "", false
	}
	return fs.Arg(0), true
}

func (c *cli) cmdFmt(args []string) int {
	file, ok := c.singleFile("fmt", args)
	if !ok {
		return 2
	}
	prog, diags, err := checkFile(file, c.log)
	if err != nil {
		return c.report(err)
	}
	if err := printDiagnostics(c.stderr, diags); err != nil {
		return 1
	}

	out := bufio.NewWriter(c.stdout)
	if err := codegen.Emit(prog, out); err != nil {
		return c.report(err)
	}
	return c.report(out.Flush())
}

func (c *cli) cmdTokens(args []string) int {
	file, ok := c.singleFile("tokens", args)
	if !ok {
		return 2
	}
	content, err := readSource(file)
	if err != nil {
		return c.report(err)
	}
	tokens, lexErrors := lexer.Lex(content)
	for _, tok := range tokens {
		fmt.Fprintf(c.stdout, "%d:%d\t%s\t%q\n", tok.Line, tok.Column, tok.Type, tok.Value)
	}
	var errs error
	for _, e := range lexErrors {
		errs = multierr.Append(errs, fmt.Errorf("%s: %w", file, e))
	}
	return c.report(errs)
}

func (c *cli) cmdAST(args []string) int {
	file, ok := c.singleFile("ast", args)
	if !ok {
		return 2
	}
	prog, err := parseFile(file, c.log)
	if err != nil {
		return c.report(err)
	}
	fmt.Fprint(c.stdout, ast.DebugString(prog))
	return 0
}
