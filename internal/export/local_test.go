package export

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestLocalSinkDeliver(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "exports")
	sink := NewLocalSink(dir, testLogger())

	data := []byte("PK\x03\x04sheet")
	rec, err := sink.Deliver(context.Background(), "yageo-substitutions-1.xlsx", contentTypeXLSX, data)
	if err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	if rec.Location != filepath.Join(dir, "yageo-substitutions-1.xlsx") {
		t.Errorf("unexpected location %q", rec.Location)
	}
	if rec.Size != len(data) {
		t.Errorf("Size = %d, want %d", rec.Size, len(data))
	}

	got, err := os.ReadFile(rec.Location)
	if err != nil {
		t.Fatalf("reading delivered file: %v", err)
	}
	if string(got) != string(data) {
		t.Errorf("content mismatch: %q", got)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("reading dir: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("expected only the delivered file, found %d entries", len(entries))
	}
}

func TestLocalSinkRefusesOverwrite(t *testing.T) {
	dir := t.TempDir()
	sink := NewLocalSink(dir, testLogger())
	name := "yageo-substitutions-2.xlsx"

	if _, err := sink.Deliver(context.Background(), name, "", []byte("first")); err != nil {
		t.Fatalf("first Deliver: %v", err)
	}
	_, err := sink.Deliver(context.Background(), name, "", []byte("second"))
	if !errors.Is(err, ErrExists) {
		t.Fatalf("expected ErrExists, got %v", err)
	}

	got, _ := os.ReadFile(filepath.Join(dir, name))
	if string(got) != "first" {
		t.Errorf("existing file was modified: %q", got)
	}
}

func TestLocalSinkInvalidName(t *testing.T) {
	sink := NewLocalSink(t.TempDir(), testLogger())
	_, err := sink.Deliver(context.Background(), "../escape.xlsx", "", []byte("x"))
	var sinkErr *SinkError
	if !errors.As(err, &sinkErr) || !errors.Is(err, ErrInvalidName) {
		t.Fatalf("expected SinkError wrapping ErrInvalidName, got %v", err)
	}
}

func TestLocalSinkCanceledContext(t *testing.T) {
	sink := NewLocalSink(t.TempDir(), testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := sink.Deliver(ctx, "a.xlsx", "", []byte("x")); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
