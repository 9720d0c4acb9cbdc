package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"golang.org/x/term"

	"github.com/sydlexius/partsub/internal/mpn"
	"github.com/sydlexius/partsub/internal/part"
	"github.com/sydlexius/partsub/internal/resolver"
)

const shellHelp = `Paste or type MPNs, one per line. Prefix a line with \ to
enter it as an MPN even when it reads like a command (\run). Commands:
  run            resolve the MPNs entered so far
  lookup MPN     resolve a single MPN
  export         export the entered MPNs as a spreadsheet
  toggle N       expand or collapse result group N
  expand all     expand every result group
  collapse all   collapse every result group
  brand [NAME]   show or change the brand
  show           redraw the current results
  input          list the MPNs entered so far
  clear          forget input and results
  log LEVEL      set log level (debug, info, warn, error)
  help           show this help
  quit           leave the shell
`

func runShell(ctx context.Context, args []string, stdin io.Reader, stdout io.Writer) error {
	fs := flag.NewFlagSet("shell", flag.ContinueOnError)
	var common commonFlags
	common.register(fs)
	if err := fs.Parse(args); err != nil {
		return errUsage
	}

	a, err := newApp(ctx, common, stdout)
	if err != nil {
		return err
	}
	defer a.close()

	sh := newShell(a, stdout)
	if f, ok := stdin.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		sh.prompt = "partsub> "
		fmt.Fprintf(stdout, "brand %s; type help for commands\n", a.brand.DisplayName())
	}
	return sh.run(ctx, stdin)
}

// shell is the interactive front end: lines that are not commands
// accumulate as MPN input.
type shell struct {
	app    *app
	out    io.Writer
	prompt string
	input  []string
}

func newShell(a *app, out io.Writer) *shell {
	return &shell{app: a, out: out}
}

func (s *shell) run(ctx context.Context, in io.Reader) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for {
		if s.prompt != "" {
			fmt.Fprint(s.out, s.prompt)
		}
		if !scanner.Scan() {
			return scanner.Err()
		}
		if quit := s.exec(ctx, scanner.Text()); quit {
			return nil
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}

// exec handles one line and reports whether the shell should exit.
func (s *shell) exec(ctx context.Context, line string) bool {
	if literal, ok := strings.CutPrefix(strings.TrimSpace(line), `\`); ok {
		s.input = append(s.input, literal)
		return false
	}
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false
	}
	ctl := s.app.controller
	cmd := strings.ToLower(fields[0])

	switch {
	case cmd == "quit" || cmd == "exit":
		return true
	case cmd == "help" && len(fields) == 1:
		fmt.Fprint(s.out, shellHelp)
	case cmd == "run" && len(fields) == 1:
		if len(s.input) == 0 {
			fmt.Fprintln(s.out, "input is empty")
			return false
		}
		s.show(ctl.SubmitBatch(ctx, s.app.brand, mpn.Join(s.input)))
	case cmd == "lookup" && len(fields) == 2:
		s.show(ctl.Lookup(ctx, s.app.brand, fields[1]))
	case cmd == "export" && len(fields) == 1:
		s.show(ctl.ExportBatch(ctx, s.app.brand, mpn.Join(s.input)))
	case cmd == "toggle" && len(fields) == 2:
		n, err := strconv.Atoi(fields[1])
		groups := ctl.Snapshot().Groups()
		if err != nil || n < 1 || n > groups {
			fmt.Fprintf(s.out, "toggle takes a group number between 1 and %d\n", groups)
			return false
		}
		ctl.Toggle(n - 1)
		s.show(ctl.Snapshot())
	case cmd == "expand" && len(fields) == 2 && strings.EqualFold(fields[1], "all"):
		ctl.ExpandAll()
		s.show(ctl.Snapshot())
	case cmd == "collapse" && len(fields) == 2 && strings.EqualFold(fields[1], "all"):
		ctl.CollapseAll()
		s.show(ctl.Snapshot())
	case cmd == "brand" && len(fields) <= 2:
		if len(fields) == 2 {
			s.app.brand = part.ParseBrand(fields[1])
			if !s.app.brand.Supported() {
				fmt.Fprintf(s.out, "warning: %q is not a supported brand; requests will be sent anyway\n", fields[1])
			}
		}
		fmt.Fprintf(s.out, "brand: %s\n", s.app.brand.DisplayName())
	case cmd == "show" && len(fields) == 1:
		s.show(ctl.Snapshot())
	case cmd == "input" && len(fields) == 1:
		mpns := mpn.Normalize(mpn.Join(s.input))
		fmt.Fprintf(s.out, "%d MPN(s) entered\n", len(mpns))
		for _, m := range mpns {
			fmt.Fprintf(s.out, "  %s\n", m)
		}
	case cmd == "clear" && len(fields) == 1:
		s.input = nil
		ctl.Reset()
		fmt.Fprintln(s.out, "cleared")
	case cmd == "log" && len(fields) == 2:
		if err := s.app.logManager.SetLevel(fields[1]); err != nil {
			fmt.Fprintln(s.out, err)
			return false
		}
		fmt.Fprintf(s.out, "log level: %s\n", s.app.logManager.Config().Level)
	default:
		s.input = append(s.input, line)
	}
	return false
}

func (s *shell) show(snap resolver.Snapshot) {
	if err := s.app.show(snap); err != nil {
		s.app.logger.Error("rendering results", "error", err)
	}
}
