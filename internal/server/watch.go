package server

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

const watchDebounce = 200 * time.Millisecond

// Watch reloads the registry whenever the configuration file is changed by
// another program. Writes made through the registry are recognized by their
// content and ignored. Watch blocks until ctx is done.
func (s *Server) Watch(ctx context.Context) error {
	path := filepath.Clean(s.registry.Store().PrimaryPath())

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer w.Close()

	// Watch the directory: editors and our own atomic writes replace the
	// file, which drops a watch on the file itself.
	if err := w.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("watching %s: %w", filepath.Dir(path), err)
	}
	s.log.Info().Str("path", path).Msg("watching configuration file")

	timer := time.NewTimer(watchDebounce)
	timer.Stop()

	for {
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != path {
				continue
			}
			if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Rename) || ev.Has(fsnotify.Remove) {
				timer.Reset(watchDebounce)
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			s.log.Warn().Err(err).Msg("watcher error")
		case <-timer.C:
			s.reloadIfChanged()
		}
	}
}

func (s *Server) reloadIfChanged() {
	s.mu.Lock()
	defer s.mu.Unlock()

	changed, err := s.registry.Store().PrimaryChanged()
	if err != nil {
		s.log.Warn().Err(err).Msg("checking configuration file")
		return
	}
	if !changed {
		return
	}

	s.log.Info().Msg("configuration file changed on disk, reloading")
	if err := s.registry.Reload(); err != nil {
		s.log.Error().Err(err).Msg("reloading configuration")
	}
}
