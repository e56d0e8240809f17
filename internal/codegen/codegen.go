package codegen

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"fasmgen/internal/ast"
)

// ---------------------------------------------------------------------------
// Options controls the behaviour of the build pipeline.
// ---------------------------------------------------------------------------

// Options configures the build pipeline.
type Options struct {
	// BuildDir is the directory where all build artifacts are written.
	// Defaults to "./build" relative to the working directory.
	BuildDir string

	// OutputName is the base name for the output files (without extension).
	// Defaults to the source file name or "output".
	OutputName string

	// FasmPath is the assembler binary. Defaults to "fasm" on PATH.
	FasmPath string

	// AsmOnly stops after writing the listing.
	AsmOnly bool

	// Logger receives pipeline progress at debug level. Nil disables
	// logging.
	Logger *zap.Logger
}

// DefaultOptions returns sensible defaults (build/ directory, fasm on PATH).
func DefaultOptions() *Options {
	return &Options{
		BuildDir: "build",
		FasmPath: DefaultFasm,
	}
}

// ---------------------------------------------------------------------------
// Result is returned by Generate with paths to all produced artifacts.
// ---------------------------------------------------------------------------

type Result struct {
	AsmFile string // path to the listing
	ExeFile string // path to the executable (empty if AsmOnly or fasm is missing)
}

// ---------------------------------------------------------------------------
// Generate: the public entry point for the build pipeline
//
// Pipeline: checked AST → listing (Writer) → executable (fasm)
// ---------------------------------------------------------------------------

// OutputName derives the base name of the listing and executable built
// from file. A non-empty override wins; a program without a file is
// "output". Dots, spaces and path separators become underscores.
func OutputName(file, override string) string {
	name := override
	if name == "" {
		if file != "" {
			base := filepath.Base(file)
			name = strings.TrimSuffix(base, filepath.Ext(base))
		} else {
			name = "output"
		}
	}
	return strings.Map(func(r rune) rune {
		if r == '.' || r == ' ' || r == '/' || r == '\\' {
			return '_'
		}
		return r
	}, name)
}

// Generate writes the listing for a checked program and, unless AsmOnly is
// set, assembles it. A missing assembler is not an error: the listing is
// kept and the result has no executable.
func Generate(ctx context.Context, program *ast.Program, opts *Options) (*Result, error) {
	if opts == nil {
		opts = DefaultOptions()
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}

	outputName := OutputName(program.File, opts.OutputName)

	// --- Create build directory ---
	buildDir := opts.BuildDir
	if buildDir == "" {
		buildDir = "build"
	}
	target := ELF64
	platformDir := filepath.Join(buildDir, target.Dir())
	if err := os.MkdirAll(platformDir, 0o755); err != nil {
		return nil, fmt.Errorf("cannot create build directory %s: %w", platformDir, err)
	}

	result := &Result{}
	log = log.With(zap.String("output", outputName))

	// --- Step 1: Write listing ---
	tc := NewToolchain(target, platformDir, outputName)
	tc.Log = log
	if opts.FasmPath != "" {
		tc.FasmPath = opts.FasmPath
	}
	if err := tc.WriteListing(program); err != nil {
		return nil, fmt.Errorf("cannot write listing %s: %w", tc.AsmFile, err)
	}
	result.AsmFile = tc.AsmFile
	log.Debug("listing written", zap.String("file", result.AsmFile))

	if opts.AsmOnly {
		return result, nil
	}

	// --- Step 2: Assemble ---
	fasmPath, err := DetectToolchain(tc.FasmPath)
	if err != nil {
		log.Warn("assembler unavailable, listing kept for manual assembly",
			zap.String("listing", result.AsmFile),
			zap.Error(err),
		)
		return result, nil
	}
	tc.FasmPath = fasmPath

	if err := tc.Assemble(ctx); err != nil {
		return result, fmt.Errorf("assembly failed: %w", err)
	}
	result.ExeFile = tc.ExeFile
	log.Debug("executable written", zap.String("file", result.ExeFile))

	if host, err := HostTarget(); err == nil && !target.Runs(host) {
		log.Info("executable targets another platform",
			zap.Stringer("target", target),
			zap.Stringer("host", host),
		)
	}
	return result, nil
}
