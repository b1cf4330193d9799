package config

import (
	"context"
	"log/slog"
	"os"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
)

// Store holds the currently active Config behind an atomically-swappable
// reference. A request captures the reference once, at entry, so a
// mid-flight reload never affects an in-flight request (spec.md §5).
type Store struct {
	ref  atomic.Pointer[Config]
	path string
}

// NewStore wraps an already-loaded Config. path is remembered for
// subsequent file-change reloads; it may be empty if hot reload isn't
// wanted (e.g. in tests).
func NewStore(initial *Config, path string) *Store {
	s := &Store{path: path}
	s.ref.Store(initial)
	return s
}

// Get returns the currently active config. The returned pointer is never
// mutated; a reload replaces it wholesale.
func (s *Store) Get() *Config {
	return s.ref.Load()
}

// Watch blocks, reloading the config from disk on every write event to
// s.path until ctx is cancelled. A reload that fails validation is logged
// and discarded; the active config is left untouched (spec.md §6: "If
// validation fails, the current config is retained and the error
// logged").
func (s *Store) Watch(ctx context.Context, logger *slog.Logger) error {
	if s.path == "" {
		<-ctx.Done()
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer func() { _ = watcher.Close() }()

	if err := watcher.Add(s.path); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			s.reloadOnce(logger)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.ErrorContext(ctx, "config watcher error", "error", err)
		}
	}
}

func (s *Store) reloadOnce(logger *slog.Logger) {
	next, err := Load(s.path, nil, os.Environ)
	if err != nil {
		logger.Error("config reload failed, keeping active config", "error", err, "path", s.path)
		return
	}
	s.ref.Store(next)
	logger.Info("config reloaded", "path", s.path, "providers", len(next.Providers))
}
