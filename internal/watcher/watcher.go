// Package watcher re-submits an MPN list file whenever its contents change.
package watcher

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/sydlexius/partsub/internal/event"
	"github.com/sydlexius/partsub/internal/mpn"
)

// SubmitFunc receives the raw file contents after each change.
type SubmitFunc func(ctx context.Context, raw string)

// Service watches a single MPN list file. Editors often replace files by
// renaming, so the parent directory is watched and events are filtered by
// name. Directories where fsnotify delivers nothing fall back to polling.
type Service struct {
	path         string
	submit       SubmitFunc
	eventBus     *event.Bus
	logger       *slog.Logger
	debounce     time.Duration
	pollInterval time.Duration
	// probeTimeout bounds the fsnotify probe; zero skips fsnotify entirely.
	probeTimeout time.Duration

	// last is the normalized input most recently submitted.
	last string
}

// NewService creates a watcher for path. eventBus may be nil.
func NewService(path string, submit SubmitFunc, eventBus *event.Bus, logger *slog.Logger) *Service {
	return &Service{
		path:         filepath.Clean(path),
		submit:       submit,
		eventBus:     eventBus,
		logger:       logger.With(slog.String("component", "watcher"), slog.String("path", path)),
		debounce:     300 * time.Millisecond,
		pollInterval: 2 * time.Second,
		probeTimeout: 2 * time.Second,
	}
}

// SetDebounce overrides the default debounce interval (for testing).
func (s *Service) SetDebounce(d time.Duration) {
	s.debounce = d
}

// SetPollInterval overrides the polling interval used without fsnotify.
func (s *Service) SetPollInterval(d time.Duration) {
	s.pollInterval = d
}

// Start submits the current contents and then blocks, re-submitting after
// every change, until ctx is canceled. Only an unreadable file at startup is
// an error; later read failures are logged and the watch continues.
func (s *Service) Start(ctx context.Context) error {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", s.path, err)
	}
	s.fire(ctx, string(raw), "initial")

	dir := filepath.Dir(s.path)
	var w *fsnotify.Watcher
	if s.probeTimeout > 0 && ProbeFSNotify(dir, s.probeTimeout) {
		w, err = fsnotify.NewWatcher()
		if err == nil {
			if err = w.Add(dir); err != nil {
				w.Close() //nolint:errcheck
				w = nil
			}
		}
		if err != nil {
			s.logger.Warn("fsnotify unavailable, polling instead", slog.Any("error", err))
		}
	} else {
		s.logger.Info("fsnotify not supported here, polling instead",
			slog.Duration("interval", s.pollInterval))
	}
	if w != nil {
		defer w.Close() //nolint:errcheck
	}

	// When fsnotify is unavailable, use nil channels (never receive).
	var eventCh <-chan fsnotify.Event
	var errCh <-chan error
	var pollCh <-chan time.Time
	if w != nil {
		eventCh = w.Events
		errCh = w.Errors
	} else {
		ticker := time.NewTicker(s.pollInterval)
		defer ticker.Stop()
		pollCh = ticker.C
	}

	// Debounce timer coalesces bursts of writes into one submission.
	// Starts stopped; reset on each relevant event.
	debounceTimer := time.NewTimer(0)
	if !debounceTimer.Stop() {
		<-debounceTimer.C
	}
	pending := false

	s.logger.Info("watching input file")
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("watcher stopping")
			return nil

		case ev, ok := <-eventCh:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != s.path {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			resetTimer(debounceTimer, s.debounce)
			pending = true

		case err, ok := <-errCh:
			if !ok {
				return nil
			}
			s.logger.Error("fsnotify error", slog.Any("error", err))

		case <-pollCh:
			s.reload(ctx, "poll")

		case <-debounceTimer.C:
			if pending {
				pending = false
				s.reload(ctx, "fsnotify")
			}
		}
	}
}

func (s *Service) reload(ctx context.Context, trigger string) {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		// A rename-replace can briefly leave no file; the Create that follows
		// schedules another reload.
		s.logger.Debug("input file not readable", slog.Any("error", err))
		return
	}
	s.fire(ctx, string(raw), trigger)
}

// fire submits raw unless it normalizes to what was last submitted.
func (s *Service) fire(ctx context.Context, raw, trigger string) {
	mpns := mpn.Normalize(raw)
	joined := mpn.Join(mpns)
	if trigger != "initial" && joined == s.last {
		return
	}
	s.last = joined

	s.logger.Info("input changed",
		slog.String("trigger", trigger),
		slog.Int("mpns", len(mpns)))
	if s.eventBus != nil {
		s.eventBus.Publish(event.Event{
			Type: event.InputChanged,
			Data: map[string]any{
				"path":    s.path,
				"mpns":    len(mpns),
				"trigger": trigger,
			},
		})
	}
	s.submit(ctx, raw)
}

func resetTimer(t *time.Timer, d time.Duration) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
	t.Reset(d)
}
