package export

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// LocalSink writes exports into a directory on disk.
type LocalSink struct {
	dir    string
	logger *slog.Logger
	now    func() time.Time
}

// NewLocalSink creates a LocalSink rooted at dir. The directory is created on
// first delivery.
func NewLocalSink(dir string, logger *slog.Logger) *LocalSink {
	return &LocalSink{
		dir:    dir,
		logger: logger.With(slog.String("component", "export-local")),
		now:    time.Now,
	}
}

// Dir returns the target directory.
func (s *LocalSink) Dir() string { return s.dir }

// Deliver writes data to <dir>/<name>. Existing files are never replaced.
// The write goes through a temporary file and a rename so a reader never sees
// a partial spreadsheet.
func (s *LocalSink) Deliver(ctx context.Context, name, contentType string, data []byte) (Receipt, error) {
	if err := validateName(name); err != nil {
		return Receipt{}, &SinkError{Op: "deliver", Name: name, Err: err}
	}
	if err := ctx.Err(); err != nil {
		return Receipt{}, &SinkError{Op: "deliver", Name: name, Err: err}
	}

	if err := os.MkdirAll(s.dir, 0o755); err != nil { //nolint:gosec // G301: export directory is user-facing
		return Receipt{}, &SinkError{Op: "mkdir", Name: name, Err: err}
	}

	target := filepath.Join(s.dir, name)
	if _, err := os.Stat(target); err == nil {
		return Receipt{}, &SinkError{Op: "deliver", Name: name, Err: ErrExists}
	} else if !errors.Is(err, fs.ErrNotExist) {
		return Receipt{}, &SinkError{Op: "stat", Name: name, Err: err}
	}

	if err := writeAtomic(target, data, 0o644); err != nil {
		return Receipt{}, &SinkError{Op: "write", Name: name, Err: err}
	}

	s.logger.Info("export saved",
		slog.String("path", target),
		slog.Int("bytes", len(data)))

	return Receipt{
		Name:        name,
		Location:    target,
		Size:        len(data),
		ContentType: contentType,
		DeliveredAt: s.now().UTC(),
	}, nil
}

// writeAtomic writes data to a temporary sibling of target, syncs it, and
// links it into place. os.Link fails if target appeared in the meantime, so
// a concurrent export with the same name cannot be clobbered.
func writeAtomic(target string, data []byte, perm os.FileMode) error {
	tmp, err := os.CreateTemp(filepath.Dir(target), "."+filepath.Base(target)+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) //nolint:errcheck

	if _, err := tmp.Write(data); err != nil {
		tmp.Close() //nolint:errcheck,gosec
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close() //nolint:errcheck,gosec
		return fmt.Errorf("syncing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, perm); err != nil {
		return fmt.Errorf("setting permissions: %w", err)
	}

	if err := os.Link(tmpPath, target); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return ErrExists
		}
		// Some filesystems do not support hard links; fall back to rename.
		if _, statErr := os.Stat(target); statErr == nil {
			return ErrExists
		}
		if err := os.Rename(tmpPath, target); err != nil {
			return fmt.Errorf("renaming temp to target: %w", err)
		}
	}
	return nil
}
