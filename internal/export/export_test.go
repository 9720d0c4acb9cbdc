package export

import (
	"strings"
	"testing"
	"time"

	"github.com/sydlexius/partsub/internal/part"
)

func TestFileName(t *testing.T) {
	at := time.Date(2026, 10, 19, 14, 3, 7, 250_000_000, time.UTC)
	got := FileName(part.BrandYageo, at, 4, contentTypeXLSX)
	want := "yageo-substitutions-20261019-140307.250-4.xlsx"
	if got != want {
		t.Errorf("FileName = %q, want %q", got, want)
	}
}

func TestFileNameUniquePerInvocation(t *testing.T) {
	at := time.Date(2026, 10, 19, 14, 3, 7, 0, time.UTC)
	a := FileName(part.BrandYageo, at, 1, "")
	b := FileName(part.BrandYageo, at, 2, "")
	if a == b {
		t.Errorf("expected distinct names for distinct invocations, both %q", a)
	}
}

func TestFileNameSanitizesBrand(t *testing.T) {
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	got := FileName(part.Brand("Ya/Geo"), at, 1, "text/csv; charset=utf-8")
	if strings.ContainsAny(got, `/\`) {
		t.Errorf("name contains path separator: %q", got)
	}
	if !strings.HasPrefix(got, "ya_geo-") || !strings.HasSuffix(got, ".csv") {
		t.Errorf("unexpected name %q", got)
	}

	if got := FileName("", at, 1, ""); !strings.HasPrefix(got, "parts-") {
		t.Errorf("empty brand should fall back, got %q", got)
	}
}

func TestExtension(t *testing.T) {
	tests := map[string]string{
		"":                         "xlsx",
		contentTypeXLSX:            "xlsx",
		"text/csv":                 "csv",
		"text/csv; charset=utf-8":  "csv",
		"application/vnd.ms-excel": "xls",
		"application/octet-stream": "xlsx",
	}
	for in, want := range tests {
		if got := Extension(in); got != want {
			t.Errorf("Extension(%q) = %q, want %q", in, got, want)
		}
		if ContentType(want) == "" {
			t.Errorf("ContentType(%q) is empty", want)
		}
	}
}

func TestValidateName(t *testing.T) {
	for _, bad := range []string{"", ".", "..", "a/b.xlsx", `a\b.xlsx`} {
		if err := validateName(bad); err == nil {
			t.Errorf("validateName(%q) = nil, want error", bad)
		}
	}
	if err := validateName("yageo-substitutions-1.xlsx"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}
