// Package logging builds the process logger. Output goes to the console
// writer (stderr for the CLI, so results on stdout stay clean) and optionally
// to a rotating file.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Config describes the desired logging configuration.
type Config struct {
	Level          string
	Format         string
	FilePath       string
	FileMaxSizeMB  int
	FileMaxFiles   int
	FileMaxAgeDays int
}

// DefaultConfig returns the configuration used when nothing is set.
func DefaultConfig() Config {
	return Config{
		Level:          "info",
		Format:         "text",
		FileMaxSizeMB:  10,
		FileMaxFiles:   3,
		FileMaxAgeDays: 14,
	}
}

// String returns a human-readable summary of the config.
func (c Config) String() string {
	s := fmt.Sprintf("level=%s format=%s", c.Level, c.Format)
	if c.FilePath != "" {
		s += fmt.Sprintf(" file=%s max_size=%dMB max_files=%d max_age=%dd",
			c.FilePath, c.FileMaxSizeMB, c.FileMaxFiles, c.FileMaxAgeDays)
	}
	return s
}

// swapHandler delegates to an inner handler that can be replaced at runtime.
// Loggers derived with With or WithGroup keep following the swap.
type swapHandler struct {
	inner  *atomic.Pointer[slog.Handler]
	derive func(slog.Handler) slog.Handler
}

func newSwapHandler(h slog.Handler) *swapHandler {
	p := &atomic.Pointer[slog.Handler]{}
	p.Store(&h)
	return &swapHandler{inner: p}
}

func (s *swapHandler) current() slog.Handler {
	h := *s.inner.Load()
	if s.derive != nil {
		h = s.derive(h)
	}
	return h
}

func (s *swapHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return (*s.inner.Load()).Enabled(ctx, level)
}

func (s *swapHandler) Handle(ctx context.Context, r slog.Record) error {
	return s.current().Handle(ctx, r)
}

func (s *swapHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return s.chain(func(h slog.Handler) slog.Handler { return h.WithAttrs(attrs) })
}

func (s *swapHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return s
	}
	return s.chain(func(h slog.Handler) slog.Handler { return h.WithGroup(name) })
}

func (s *swapHandler) chain(next func(slog.Handler) slog.Handler) *swapHandler {
	prev := s.derive
	return &swapHandler{inner: s.inner, derive: func(h slog.Handler) slog.Handler {
		if prev != nil {
			h = prev(h)
		}
		return next(h)
	}}
}

// Manager owns the logger lifecycle and supports runtime changes.
type Manager struct {
	console  io.Writer
	levelVar *slog.LevelVar
	handler  *swapHandler

	mu     sync.Mutex
	config Config
	closer io.Closer
}

// NewManager creates a Manager writing to console and returns it along with
// a ready-to-use logger.
func NewManager(cfg Config, console io.Writer) (*Manager, *slog.Logger) {
	lvl := &slog.LevelVar{}
	lvl.Set(parseLevel(cfg.Level))

	writer, closer := buildWriter(console, cfg)
	m := &Manager{
		console:  console,
		levelVar: lvl,
		handler:  newSwapHandler(buildHandler(writer, lvl, cfg.Format)),
		config:   cfg,
		closer:   closer,
	}
	return m, slog.New(m.handler)
}

// SetLevel changes the minimum level immediately.
func (m *Manager) SetLevel(level string) error {
	level = strings.ToLower(strings.TrimSpace(level))
	if !ValidLevel(level) {
		return fmt.Errorf("unknown log level %q (want debug, info, warn or error)", level)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.levelVar.Set(parseLevel(level))
	m.config.Level = level
	return nil
}

// Reconfigure applies a new configuration. Level-only changes are instant;
// format or file changes rebuild the handler.
func (m *Manager) Reconfigure(cfg Config) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.levelVar.Set(parseLevel(cfg.Level))

	needSwap := cfg.Format != m.config.Format ||
		cfg.FilePath != m.config.FilePath ||
		cfg.FileMaxSizeMB != m.config.FileMaxSizeMB ||
		cfg.FileMaxFiles != m.config.FileMaxFiles ||
		cfg.FileMaxAgeDays != m.config.FileMaxAgeDays

	if needSwap {
		if m.closer != nil {
			m.closer.Close() //nolint:errcheck
			m.closer = nil
		}
		writer, closer := buildWriter(m.console, cfg)
		h := buildHandler(writer, m.levelVar, cfg.Format)
		m.handler.inner.Store(&h)
		m.closer = closer
	}

	m.config = cfg
}

// Config returns the current configuration.
func (m *Manager) Config() Config {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.config
}

// Close releases the log file, if any. Safe to call more than once.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closer != nil {
		err := m.closer.Close()
		m.closer = nil
		return err
	}
	return nil
}

func parseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// FormatLevel converts a slog.Level to its configuration name.
func FormatLevel(l slog.Level) string {
	switch l {
	case slog.LevelDebug:
		return "debug"
	case slog.LevelWarn:
		return "warn"
	case slog.LevelError:
		return "error"
	default:
		return "info"
	}
}

// ValidLevel reports whether s is a recognized log level.
func ValidLevel(s string) bool {
	switch s {
	case "debug", "info", "warn", "error":
		return true
	}
	return false
}

// ValidFormat reports whether s is a recognized log format.
func ValidFormat(s string) bool {
	switch s {
	case "text", "json":
		return true
	}
	return false
}

// buildWriter tees console output into a lumberjack file when a path is set.
func buildWriter(console io.Writer, cfg Config) (io.Writer, io.Closer) {
	if cfg.FilePath == "" {
		return console, nil
	}
	def := DefaultConfig()
	lj := &lumberjack.Logger{
		Filename:   cfg.FilePath,
		MaxSize:    positiveOr(cfg.FileMaxSizeMB, def.FileMaxSizeMB),
		MaxBackups: positiveOr(cfg.FileMaxFiles, def.FileMaxFiles),
		MaxAge:     positiveOr(cfg.FileMaxAgeDays, def.FileMaxAgeDays),
	}
	return io.MultiWriter(console, lj), lj
}

func buildHandler(w io.Writer, leveler slog.Leveler, format string) slog.Handler {
	opts := &slog.HandlerOptions{Level: leveler}
	if format == "json" {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

func positiveOr(v, fallback int) int {
	if v > 0 {
		return v
	}
	return fallback
}
