package codegen

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"fasmgen/internal/ast"
	"fasmgen/internal/fasm"
)

// ---------------------------------------------------------------------------
// Toolchain: listing output and fasm invocation
// ---------------------------------------------------------------------------

// DefaultFasm is the assembler looked up on PATH when none is configured.
const DefaultFasm = "fasm"

// Toolchain represents the files of one build and the assembler that turns
// the listing into an executable. fasm assembles and links in one step.
type Toolchain struct {
	Target   Target
	BuildDir string
	AsmFile  string // path to the listing
	ExeFile  string // path to the final executable
	FasmPath string
	Log      *zap.Logger
}

// NewToolchain creates a Toolchain for the given target and build directory.
func NewToolchain(target Target, buildDir, baseName string) *Toolchain {
	return &Toolchain{
		Target:   target,
		BuildDir: buildDir,
		AsmFile:  filepath.Join(buildDir, baseName+target.FileExtAsm()),
		ExeFile:  filepath.Join(buildDir, baseName+target.FileExtExe()),
		FasmPath: DefaultFasm,
		Log:      zap.NewNop(),
	}
}

// WriteListing lowers prog into the listing file, headed by a comment
// naming the source. The file is written through a buffer; flush and close
// failures are reported together with any emission error.
func (tc *Toolchain) WriteListing(prog *ast.Program) (err error) {
	f, err := os.Create(tc.AsmFile)
	if err != nil {
		return fmt.Errorf("cannot create listing: %w", err)
	}
	defer func() {
		err = multierr.Append(err, f.Close())
	}()

	buf := bufio.NewWriter(f)
	w := fasm.NewWriter(buf)
	if src := filepath.Base(prog.File); prog.File != "" && !strings.ContainsAny(src, "\r\n") {
		if err := w.Comment("source: " + src); err != nil {
			return err
		}
	}
	if err := Lower(prog, w); err != nil {
		return err
	}
	return buf.Flush()
}

// Assemble invokes fasm on the listing. Cancelling ctx kills the
// assembler.
func (tc *Toolchain) Assemble(ctx context.Context) error {
	cmd := exec.CommandContext(ctx, tc.FasmPath, tc.AsmFile, tc.ExeFile)
	if err := tc.runCmd(cmd, "assemble"); err != nil {
		return err
	}
	// fasm leaves the mode to the umask.
	if err := os.Chmod(tc.ExeFile, 0o755); err != nil {
		return fmt.Errorf("cannot mark %s executable: %w", tc.ExeFile, err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func (tc *Toolchain) runCmd(cmd *exec.Cmd, stage string) error {
	tc.Log.Debug("running",
		zap.String("stage", stage),
		zap.String("cmd", strings.Join(cmd.Args, " ")),
	)

	var output strings.Builder
	cmd.Stdout = &output
	cmd.Stderr = &output

	start := time.Now()
	err := cmd.Run()
	tc.Log.Debug("finished",
		zap.String("stage", stage),
		zap.Duration("elapsed", time.Since(start)),
		zap.Error(err),
	)
	if err != nil {
		return fmt.Errorf("%s failed: %w\n%s", stage, err, strings.TrimSpace(output.String()))
	}
	return nil
}

// DetectToolchain checks that the assembler can be found and returns the
// path it resolves to.
func DetectToolchain(fasmPath string) (string, error) {
	if fasmPath == "" {
		fasmPath = DefaultFasm
	}
	path, err := exec.LookPath(fasmPath)
	if err != nil {
		return "", fmt.Errorf("assembler not found: %w", err)
	}
	return path, nil
}
