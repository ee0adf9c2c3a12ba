// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	xglog "github.com/ManuGH/mediafit/internal/log"
	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

const reloadDebounce = 500 * time.Millisecond

// ProfileWatcher holds the active profile and reloads it when the file changes.
// A reload that fails to load or validate keeps the previous profile.
type ProfileWatcher struct {
	mu      sync.RWMutex
	current Profile
	loader  *Loader
	logger  zerolog.Logger

	watcher *fsnotify.Watcher
	done    chan struct{}

	listenersMu sync.Mutex
	listeners   []chan<- Profile
}

// NewProfileWatcher creates a watcher seeded with an already loaded profile.
func NewProfileWatcher(initial Profile, loader *Loader) *ProfileWatcher {
	return &ProfileWatcher{
		current: initial,
		loader:  loader,
		logger:  xglog.WithComponent("config"),
	}
}

// Get returns the current profile.
func (w *ProfileWatcher) Get() Profile {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

// Reload re-reads the profile file. On error the old profile stays active.
func (w *ProfileWatcher) Reload(_ context.Context) error {
	w.logger.Info().Str(xglog.FieldEvent, "profile.reload_start").Msg("reloading profile")

	next, err := w.loader.Load()
	if err != nil {
		w.logger.Error().
			Err(err).
			Str(xglog.FieldEvent, "profile.reload_failed").
			Msg("failed to load profile, keeping previous")
		return fmt.Errorf("load profile: %w", err)
	}

	w.mu.Lock()
	prev := w.current
	w.current = next
	w.mu.Unlock()

	w.notify(next)

	w.logger.Info().
		Str(xglog.FieldEvent, "profile.reload_success").
		Str("previous", prev.Profile.Name).
		Str(xglog.FieldProfile, next.Profile.Name).
		Msg("profile reloaded")
	return nil
}

// Start begins watching the profile file until ctx is cancelled or Stop is
// called. Without a profile path this is a no-op.
func (w *ProfileWatcher) Start(ctx context.Context) error {
	path := w.loader.Path()
	if path == "" {
		w.logger.Info().
			Str(xglog.FieldEvent, "profile.watcher_disabled").
			Msg("profile watcher disabled (defaults + ENV only)")
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	// Watch the directory: editors replace files by rename, which drops a file watch.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("watch profile dir: %w", err)
	}
	w.watcher = watcher
	w.done = make(chan struct{})

	w.logger.Info().
		Str(xglog.FieldEvent, "profile.watcher_started").
		Str(xglog.FieldPath, path).
		Msg("watching profile for changes")

	go w.loop(ctx, filepath.Clean(path))
	return nil
}

func (w *ProfileWatcher) loop(ctx context.Context, path string) {
	defer close(w.done)

	var (
		timer  *time.Timer
		reload <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			_ = w.watcher.Close()
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != path {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				w.logger.Debug().
					Str(xglog.FieldEvent, "profile.file_changed").
					Str("op", event.Op.String()).
					Msg("profile file changed")
				if timer == nil {
					timer = time.NewTimer(reloadDebounce)
				} else {
					timer.Reset(reloadDebounce)
				}
				reload = timer.C
			}

		case <-reload:
			reload = nil
			if err := w.Reload(ctx); err != nil {
				w.logger.Error().
					Err(err).
					Str(xglog.FieldEvent, "profile.auto_reload_failed").
					Msg("automatic profile reload failed")
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error().
				Err(err).
				Str(xglog.FieldEvent, "profile.watcher_error").
				Msg("profile watcher error")
		}
	}
}

// Stop closes the watcher and waits for the loop to exit.
func (w *ProfileWatcher) Stop() {
	if w.watcher == nil {
		return
	}
	_ = w.watcher.Close()
	<-w.done
}

// Subscribe registers a channel that receives every successfully reloaded
// profile. Sends are non-blocking; a full channel misses the update.
func (w *ProfileWatcher) Subscribe(ch chan<- Profile) {
	w.listenersMu.Lock()
	defer w.listenersMu.Unlock()
	w.listeners = append(w.listeners, ch)
}

func (w *ProfileWatcher) notify(p Profile) {
	w.listenersMu.Lock()
	defer w.listenersMu.Unlock()
	for _, ch := range w.listeners {
		select {
		case ch <- p:
		default:
			w.logger.Warn().Str(xglog.FieldEvent, "profile.listener_full").Msg("profile listener channel full, update dropped")
		}
	}
}
