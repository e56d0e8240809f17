package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
)

const Version = "0.2.0"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// run dispatches a subcommand and returns the process exit code: 0 on
// success, 1 when an input has errors, 2 on bad usage.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) < 1 {
		printUsage(stderr)
		return 2
	}

	c := &cli{stdout: stdout, stderr: stderr}
	command := args[0]
	switch command {
	case "build":
		return c.cmdBuild(ctx, args[1:])
	case "check":
		return c.cmdCheck(ctx, args[1:])
	case "fmt":
		return c.cmdFmt(args[1:])
	case "tokens":
		return c.cmdTokens(args[1:])
	case "ast":
		return c.cmdAST(args[1:])
	case "version", "-v", "--version":
		fmt.Fprintf(stdout, "fasmgen %s\n", Version)
		return 0
	case "help", "-h", "--help":
		printUsage(stdout)
		return 0
	default:
		fmt.Fprintf(stderr, "unknown command %q\n\n", command)
		printUsage(stderr)
		return 2
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintf(w, "fasmgen %s: FASM listing checker and builder\n\n", Version)
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  fasmgen <command> [options] <file>...")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  build <file>...   check, write the listing and assemble it with fasm")
	fmt.Fprintln(w, "  check <file>...   report diagnostics without building")
	fmt.Fprintln(w, "  fmt <file>        print the canonical listing, includes spliced")
	fmt.Fprintln(w, "  tokens <file>     print the token stream")
	fmt.Fprintln(w, "  ast <file>        print the parsed statements")
	fmt.Fprintln(w, "  version           print the version")
	fmt.Fprintln(w, "  help              print this message")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Run 'fasmgen <command> -h' for the options of a command.")
}
