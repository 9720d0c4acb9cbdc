package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"golang.org/x/term"

	"github.com/sydlexius/partsub/internal/mpn"
	"github.com/sydlexius/partsub/internal/resolver"
	"github.com/sydlexius/partsub/internal/watcher"
)

// inputFlags select where MPNs come from.
type inputFlags struct {
	file string
}

func (f *inputFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&f.file, "f", "", "read MPNs from FILE, one per line (- for stdin)")
}

// readInput returns raw MPN text from -f, positional arguments, or a
// non-terminal stdin, in that order.
func readInput(f inputFlags, args []string, stdin io.Reader) (string, error) {
	switch {
	case f.file == "-":
		return readAll(stdin)
	case f.file != "":
		data, err := os.ReadFile(f.file)
		if err != nil {
			return "", fmt.Errorf("reading input: %w", err)
		}
		return string(data), nil
	case len(args) > 0:
		return mpn.Join(args), nil
	}
	if file, ok := stdin.(*os.File); ok && term.IsTerminal(int(file.Fd())) {
		return "", fmt.Errorf("no MPNs given: pass them as arguments, with -f FILE, or on stdin: %w", errUsage)
	}
	return readAll(stdin)
}

func readAll(r io.Reader) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("reading input: %w", err)
	}
	return string(data), nil
}

// settledError turns a failed snapshot into the command's exit error.
func settledError(snap resolver.Snapshot) error {
	if snap.Failed() {
		return errors.New(snap.Err)
	}
	return nil
}

func runLookup(ctx context.Context, args []string, stdin io.Reader, stdout io.Writer) error {
	fs := flag.NewFlagSet("lookup", flag.ContinueOnError)
	var common commonFlags
	var input inputFlags
	common.register(fs)
	input.register(fs)
	single := fs.Bool("single", false, "resolve exactly one MPN through the single-lookup endpoint")
	expandAll := fs.Bool("all", false, "expand every result group")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}

	raw, err := readInput(input, fs.Args(), stdin)
	if err != nil {
		return err
	}

	a, err := newApp(ctx, common, stdout)
	if err != nil {
		return err
	}
	defer a.close()

	var snap resolver.Snapshot
	if *single {
		mpns := mpn.Normalize(raw)
		if len(mpns) != 1 {
			return fmt.Errorf("-single takes exactly one MPN, got %d", len(mpns))
		}
		snap = a.controller.Lookup(ctx, a.brand, mpns[0])
	} else {
		snap = a.controller.SubmitBatch(ctx, a.brand, raw)
		if snap.Phase == resolver.Idle {
			return errors.New("no MPNs in input")
		}
	}

	if *expandAll {
		a.controller.ExpandAll()
	}
	if err := a.show(snap); err != nil {
		return err
	}
	return settledError(snap)
}

func runExport(ctx context.Context, args []string, stdin io.Reader, stdout io.Writer) error {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	var common commonFlags
	var input inputFlags
	common.register(fs)
	input.register(fs)
	if err := fs.Parse(args); err != nil {
		return errUsage
	}

	raw, err := readInput(input, fs.Args(), stdin)
	if err != nil {
		return err
	}

	a, err := newApp(ctx, common, stdout)
	if err != nil {
		return err
	}
	defer a.close()

	snap := a.controller.ExportBatch(ctx, a.brand, raw)
	if err := a.show(snap); err != nil {
		return err
	}
	return settledError(snap)
}

func runHealth(ctx context.Context, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("health", flag.ContinueOnError)
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

	if err := a.engine.Health(ctx); err != nil {
		a.logger.Error("health check failed", "error", err)
		return fmt.Errorf("engine at %s is not healthy", a.engine.BaseURL())
	}
	fmt.Fprintf(stdout, "engine at %s is healthy\n", a.engine.BaseURL())
	return nil
}

// settledPrinter prints each settled state at most once and skips snapshots
// that are in flight or superseded.
type settledPrinter struct {
	mu    sync.Mutex
	last  uint64
	print func(resolver.Snapshot)
}

func (p *settledPrinter) offer(snap resolver.Snapshot) bool {
	if snap.Loading() || snap.Discarded {
		return false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if snap.Seq <= p.last {
		return false
	}
	p.last = snap.Seq
	p.print(snap)
	return true
}

func runWatch(ctx context.Context, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("watch", flag.ContinueOnError)
	var common commonFlags
	common.register(fs)
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "watch takes exactly one FILE")
		return errUsage
	}
	path := fs.Arg(0)

	a, err := newApp(ctx, common, stdout)
	if err != nil {
		return err
	}
	defer a.close()

	// Submissions run concurrently; the controller keeps only the newest.
	printer := &settledPrinter{print: func(snap resolver.Snapshot) {
		fmt.Fprintf(stdout, "\n== %s ==\n", strings.TrimSpace(path))
		if err := a.show(snap); err != nil {
			a.logger.Error("rendering results", "error", err)
		}
	}}
	var wg sync.WaitGroup
	submit := func(ctx context.Context, raw string) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			printer.offer(a.controller.SubmitBatch(ctx, a.brand, raw))
		}()
	}

	svc := watcher.NewService(path, submit, a.bus, a.logger)
	err = svc.Start(ctx)
	wg.Wait()
	return err
}
