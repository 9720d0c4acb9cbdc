package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sydlexius/partsub/internal/engine"
	"github.com/sydlexius/partsub/internal/export"
	"github.com/sydlexius/partsub/internal/logging"
	"github.com/sydlexius/partsub/internal/part"
	"github.com/sydlexius/partsub/internal/render"
	"github.com/sydlexius/partsub/internal/resolver"
)

// fakeEngine answers batch lookups with one Original substitution per MPN.
func fakeEngine(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/batch", func(w http.ResponseWriter, r *http.Request) {
		var req engine.BatchRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		type sub struct {
			PartNumber string `json:"part_number"`
			Type       string `json:"type"`
			Details    string `json:"details"`
		}
		type result struct {
			MPN           string `json:"mpn"`
			Series        string `json:"series"`
			Substitutions []sub  `json:"substitutions"`
		}
		out := struct {
			Brand   string   `json:"brand"`
			Total   int      `json:"total"`
			Results []result `json:"results"`
		}{Brand: string(req.Brand), Total: len(req.MPNs)}
		for _, m := range req.MPNs {
			out.Results = append(out.Results, result{
				MPN:           m,
				Series:        "RC",
				Substitutions: []sub{{PartNumber: m + "-ALT", Type: "Original", Details: "reel"}},
			})
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(out) //nolint:errcheck
	})
	mux.HandleFunc("POST /api/batch/export", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/csv")
		io.WriteString(w, "mpn,substitute\n") //nolint:errcheck
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestApp(t *testing.T, out io.Writer) (*app, string) {
	t.Helper()
	srv := fakeEngine(t)
	dir := t.TempDir()

	logManager, logger := logging.NewManager(logging.Config{Level: "error", Format: "text"}, io.Discard)
	t.Cleanup(func() { logManager.Close() }) //nolint:errcheck

	eng := engine.New(engine.Config{BaseURL: srv.URL}, logger)
	return &app{
		logManager: logManager,
		logger:     logger,
		engine:     eng,
		controller: resolver.New(eng, export.NewLocalSink(dir, logger), slog.New(slog.NewTextHandler(io.Discard, nil))),
		renderer:   render.New(out, false),
		brand:      part.BrandYageo,
	}, dir
}

func runScript(t *testing.T, script string) (string, *shell, string) {
	t.Helper()
	var out bytes.Buffer
	a, dir := newTestApp(t, &out)
	sh := newShell(a, &out)
	require.NoError(t, sh.run(context.Background(), strings.NewReader(script)))
	return out.String(), sh, dir
}

func TestShellRunAndToggle(t *testing.T) {
	out, sh, _ := runScript(t, "  RC0603FR-0710KL  \n\nCC0603KRX5R7BB475\nrun\ntoggle 2\n")

	assert.Contains(t, out, "Yageo: 2 result(s) for 2 submitted MPN(s)")
	assert.Contains(t, out, "[1] - RC0603FR-0710KL")
	assert.Contains(t, out, "[2] + CC0603KRX5R7BB475")
	assert.Contains(t, out, "[2] - CC0603KRX5R7BB475")
	assert.Equal(t, []int{0, 1}, sh.app.controller.Expanded())
}

func TestShellRunEmpty(t *testing.T) {
	out, _, _ := runScript(t, "run\n")
	assert.Contains(t, out, "input is empty")
}

func TestShellExport(t *testing.T) {
	out, sh, dir := runScript(t, "RC0603FR-0710KL\nrun\nexport\n")

	snap := sh.app.controller.Snapshot()
	require.Empty(t, snap.Err)
	require.NotNil(t, snap.LastExport)
	assert.True(t, strings.HasSuffix(snap.LastExport.Name, ".csv"))
	assert.Contains(t, out, "exported: ")
	assert.Equal(t, 1, snap.Groups(), "export must not change results")

	_, err := os.Stat(filepath.Join(dir, snap.LastExport.Name))
	assert.NoError(t, err)
}

func TestShellExportNothing(t *testing.T) {
	out, _, _ := runScript(t, "export\n")
	assert.Contains(t, out, "error: nothing to export")
}

func TestShellClearAndInput(t *testing.T) {
	out, sh, _ := runScript(t, "A\nB\nA\ninput\nrun\nclear\ninput\n")

	assert.Contains(t, out, "3 MPN(s) entered")
	assert.Contains(t, out, "0 MPN(s) entered")
	assert.Equal(t, resolver.Idle, sh.app.controller.Snapshot().Phase)
}

func TestShellEscapedLinesAreInput(t *testing.T) {
	out, sh, _ := runScript(t, "\\run\n  \\show  \nbrand\ninput\n")

	assert.Equal(t, []string{"run", "show"}, sh.input)
	assert.Contains(t, out, "2 MPN(s) entered")
	assert.Contains(t, out, "  run\n")
	assert.Contains(t, out, "  show\n")
	assert.Contains(t, out, "brand: Yageo")
}

func TestShellBrandAndLog(t *testing.T) {
	out, sh, _ := runScript(t, "brand acme\nlog debug\nlog trace\n")

	assert.Contains(t, out, `warning: "acme" is not a supported brand`)
	assert.Equal(t, part.Brand("acme"), sh.app.brand)
	assert.Contains(t, out, "log level: debug")
	assert.Contains(t, out, `unknown log level "trace"`)
}

func TestShellQuitStopsReading(t *testing.T) {
	out, sh, _ := runScript(t, "quit\nA\nrun\n")
	assert.Empty(t, sh.input)
	assert.Empty(t, out)
}

func TestShellToggleOutOfRange(t *testing.T) {
	out, _, _ := runScript(t, "A\nrun\ntoggle 5\n")
	assert.Contains(t, out, "toggle takes a group number between 1 and 1")
}

func TestReadInput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mpns.txt")
	require.NoError(t, os.WriteFile(path, []byte("A\nB\n"), 0o600))

	got, err := readInput(inputFlags{file: path}, nil, strings.NewReader("ignored"))
	require.NoError(t, err)
	assert.Equal(t, "A\nB\n", got)

	got, err = readInput(inputFlags{}, []string{"A", "B"}, strings.NewReader("ignored"))
	require.NoError(t, err)
	assert.Equal(t, "A\nB", got)

	got, err = readInput(inputFlags{}, nil, strings.NewReader("C\n"))
	require.NoError(t, err)
	assert.Equal(t, "C\n", got)

	got, err = readInput(inputFlags{file: "-"}, []string{"A"}, strings.NewReader("D\n"))
	require.NoError(t, err)
	assert.Equal(t, "D\n", got)
}

func TestRunUsage(t *testing.T) {
	var out bytes.Buffer
	assert.True(t, errors.Is(run(nil, strings.NewReader(""), &out), errUsage))
	assert.True(t, errors.Is(run([]string{"bogus"}, strings.NewReader(""), &out), errUsage))

	require.NoError(t, run([]string{"version"}, strings.NewReader(""), &out))
	assert.Contains(t, out.String(), "partsub dev")
}
