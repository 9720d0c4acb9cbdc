// Package render writes controller snapshots as plain terminal text.
package render

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"golang.org/x/term"

	"github.com/sydlexius/partsub/internal/part"
	"github.com/sydlexius/partsub/internal/resolver"
)

// Disclosure decides which of groups result groups are drawn expanded.
type Disclosure interface {
	ShowExpandedIn(index, groups int) bool
}

const (
	ansiReset  = "\x1b[0m"
	ansiBold   = "\x1b[1m"
	ansiDim    = "\x1b[2m"
	ansiRed    = "\x1b[31m"
	ansiGreen  = "\x1b[32m"
	ansiYellow = "\x1b[33m"
	ansiBlue   = "\x1b[34m"
)

// Renderer formats snapshots for a terminal or a pipe.
type Renderer struct {
	w     io.Writer
	color bool
}

// New returns a Renderer writing to w. ANSI colour is used only when color is set.
func New(w io.Writer, color bool) *Renderer {
	return &Renderer{w: w, color: color}
}

// ForFile returns a Renderer for f with colour enabled when f is a terminal
// and NO_COLOR is unset.
func ForFile(f *os.File) *Renderer {
	_, noColor := os.LookupEnv("NO_COLOR")
	return New(f, !noColor && term.IsTerminal(int(f.Fd())))
}

// Snapshot writes s. Groups for which d reports ShowExpandedIn are followed by
// their substitution table; the others show only a header line.
func (r *Renderer) Snapshot(s resolver.Snapshot, d Disclosure) error {
	tw := tabwriter.NewWriter(r.w, 0, 0, 2, ' ', 0)

	switch {
	case s.Loading():
		fmt.Fprintf(tw, "%s\n", r.paint(ansiDim, loadingText(s.Kind)))
	case s.Err != "":
		fmt.Fprintf(tw, "%s %s\n", r.paint(ansiRed, "error:"), s.Err)
	}

	if s.Result != nil {
		r.results(tw, s.Result, d)
	} else if s.Phase == resolver.Idle {
		fmt.Fprintln(tw, "no results yet")
	}

	if s.LastExport != nil && s.Kind == resolver.KindExport && s.Err == "" && !s.Loading() {
		r.receipt(tw, s)
	}
	return tw.Flush()
}

func (r *Renderer) results(w io.Writer, res *part.BatchResult, d Disclosure) {
	fmt.Fprintf(w, "%s: %d result(s) for %d submitted MPN(s)",
		r.paint(ansiBold, res.Brand.DisplayName()), res.Len(), res.Total)
	if n := res.Undetected(); n > 0 {
		fmt.Fprintf(w, ", %d without a detected series", n)
	}
	fmt.Fprintln(w)

	groups := res.Len()
	for i, mr := range res.Results {
		expanded := d.ShowExpandedIn(i, groups)
		marker := "+"
		if expanded {
			marker = "-"
		}
		fmt.Fprintf(w, "[%d] %s %s  %s  (%d substitution(s))\n",
			i+1, marker, r.paint(ansiBold, mr.MPN), r.series(mr.Detection), len(mr.Substitutions))
		if !expanded {
			continue
		}
		if len(mr.Substitutions) == 0 {
			fmt.Fprintln(w, "    no substitutions")
			continue
		}
		fmt.Fprintln(w, "    PART NUMBER\tTYPE\tDETAILS")
		for _, sub := range mr.Substitutions {
			fmt.Fprintf(w, "    %s\t%s\t%s\n", sub.PartNumber, r.badge(sub.Type), sub.Details)
		}
	}
}

func (r *Renderer) receipt(w io.Writer, s resolver.Snapshot) {
	e := s.LastExport
	fmt.Fprintf(w, "%s %s (%d bytes)\n", r.paint(ansiGreen, "exported:"), e.Location, e.Size)
}

func (r *Renderer) series(d part.Detection) string {
	if series, ok := d.Series(); ok {
		return "series " + series
	}
	return r.paint(ansiYellow, "series not detected")
}

// badge colours a substitution type by its display style. Types outside the
// known set are printed verbatim in the functional colour.
func (r *Renderer) badge(t part.SubstitutionType) string {
	switch t.Style() {
	case part.StyleOriginal:
		return r.paint(ansiGreen, string(t))
	case part.StylePackaging:
		return r.paint(ansiBlue, string(t))
	default:
		return r.paint(ansiYellow, string(t))
	}
}

func (r *Renderer) paint(code, s string) string {
	if !r.color {
		return s
	}
	return code + s + ansiReset
}

func loadingText(k resolver.Kind) string {
	switch k {
	case resolver.KindExport:
		return "exporting..."
	case resolver.KindLookup:
		return "looking up..."
	default:
		return "resolving batch..."
	}
}
