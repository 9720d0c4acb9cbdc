package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/sydlexius/partsub/internal/version"
)

const usage = `usage: partsub <command> [flags] [MPN...]

commands:
  lookup   resolve MPNs (from -f FILE, arguments, or stdin); -single for one MPN
  export   export substitutions for MPNs as a spreadsheet
  shell    interactive session: paste MPN lines, then run or export
  watch    re-resolve an MPN list file whenever it changes
  health   check that the engine is reachable
  version  print build information

common flags:
  -config FILE   YAML configuration (default $PARTSUB_CONFIG)
  -brand NAME    brand to resolve against (default from configuration)
`

// errUsage signals a command-line mistake; main prints usage and exits 2.
var errUsage = errors.New("usage")

func main() {
	if err := run(os.Args[1:], os.Stdin, os.Stdout); err != nil {
		if errors.Is(err, errUsage) {
			if err != errUsage {
				fmt.Fprintf(os.Stderr, "error: %v\n", err)
			}
			fmt.Fprint(os.Stderr, usage)
			os.Exit(2)
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdin io.Reader, stdout io.Writer) error {
	if len(args) == 0 {
		return errUsage
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cmd, rest := args[0], args[1:]
	switch cmd {
	case "lookup":
		return runLookup(ctx, rest, stdin, stdout)
	case "export":
		return runExport(ctx, rest, stdin, stdout)
	case "shell":
		return runShell(ctx, rest, stdin, stdout)
	case "watch":
		return runWatch(ctx, rest, stdout)
	case "health":
		return runHealth(ctx, rest, stdout)
	case "version", "-version", "--version":
		fmt.Fprintln(stdout, version.String())
		return nil
	case "help", "-h", "-help", "--help":
		fmt.Fprint(stdout, usage)
		return nil
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n", cmd)
		return errUsage
	}
}
