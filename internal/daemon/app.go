// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package daemon runs watch mode: files dropped into an inbox are converted
// with the current profile, which reloads on file change or SIGHUP.
package daemon

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/ManuGH/mediafit/internal/admission"
	"github.com/ManuGH/mediafit/internal/batch"
	"github.com/ManuGH/mediafit/internal/config"
	"github.com/ManuGH/mediafit/internal/health"
	"github.com/ManuGH/mediafit/internal/history"
	"github.com/ManuGH/mediafit/internal/log"
	"github.com/ManuGH/mediafit/internal/media"
	"github.com/rs/zerolog"
)

// Options wires an App.
type Options struct {
	Converter batch.Converter
	Inbox     *Inbox
	Gate      *admission.Gate
	// Profiles supplies the active profile. Without it Profile is used as is.
	Profiles *config.ProfileWatcher
	Profile  media.OutputProfile
	// History and Tracker are optional.
	History batch.History
	Tracker *health.RunTracker
}

// App owns the watch-mode lifecycle: profile watcher, reload signal, inbox
// and conversion dispatch.
type App struct {
	logger       zerolog.Logger
	opts         Options
	reloadSignal os.Signal
}

// NewApp validates opts and creates an App.
func NewApp(logger zerolog.Logger, opts Options) (*App, error) {
	switch {
	case opts.Converter == nil:
		return nil, ErrMissingConverter
	case opts.Inbox == nil:
		return nil, ErrMissingInbox
	case opts.Gate == nil:
		return nil, ErrMissingGate
	}
	return &App{logger: logger, opts: opts, reloadSignal: syscall.SIGHUP}, nil
}

// Run blocks until ctx is cancelled or the inbox fails. In-flight
// conversions are cancelled with ctx and awaited before returning.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	// Profile watcher is best-effort: watch mode should not fail if it cannot be started.
	if a.opts.Profiles != nil {
		if err := a.opts.Profiles.Start(ctx); err != nil {
			a.logger.Warn().Err(err).Str(log.FieldEvent, "profile.watcher_start_failed").Msg("failed to start profile watcher")
		} else {
			defer a.opts.Profiles.Stop()
		}
	}

	// SIGHUP trigger for manual reload.
	if a.opts.Profiles != nil && a.reloadSignal != nil {
		g.Go(func() error {
			hupChan := make(chan os.Signal, 1)
			signal.Notify(hupChan, a.reloadSignal)
			defer signal.Stop(hupChan)

			for {
				select {
				case <-ctx.Done():
					return nil
				case <-hupChan:
					a.logger.Info().
						Str(log.FieldEvent, "profile.reload_signal").
						Str("signal", a.reloadSignal.String()).
						Msg("received reload signal, reloading profile")
					if err := a.opts.Profiles.Reload(ctx); err != nil {
						a.logger.Warn().Err(err).Str(log.FieldEvent, "profile.reload_failed").Msg("profile reload failed")
					}
				}
			}
		})
	}

	g.Go(func() error { return a.opts.Inbox.Run(ctx) })

	g.Go(func() error {
		var workers errgroup.Group
		defer func() { _ = workers.Wait() }()
		for path := range a.opts.Inbox.Files() {
			release, err := a.opts.Gate.Acquire(ctx)
			if err != nil {
				return nil
			}
			workers.Go(func() error {
				defer release()
				a.convert(ctx, path)
				return nil
			})
		}
		return nil
	})

	return g.Wait()
}

func (a *App) profile() media.OutputProfile {
	if a.opts.Profiles != nil {
		return a.opts.Profiles.Get().OutputProfile()
	}
	return a.opts.Profile
}

func (a *App) convert(ctx context.Context, path string) {
	logger := a.logger.With().Str(log.FieldInput, path).Logger()
	profile := a.profile()
	key, err := filepath.Abs(path)
	if err != nil {
		key = path
	}

	if a.opts.History != nil {
		done, err := a.opts.History.IsProcessed(key)
		if err != nil {
			logger.Warn().Err(err).Msg("history lookup failed")
		}
		if done {
			logger.Info().Msg("already converted, skipping")
			return
		}
	}

	res, err := a.opts.Converter.Run(ctx, path, profile)
	if a.opts.Tracker != nil && ctx.Err() == nil {
		a.opts.Tracker.Record(err)
	}
	if err != nil {
		logger.Error().Err(err).Msg("inbox conversion failed")
		return
	}
	if a.opts.History != nil && len(res.Outputs) > 0 {
		if err := a.opts.History.MarkCompleted(history.Record{Key: key, Profile: profile.Name, Outputs: res.Outputs}); err != nil {
			logger.Warn().Err(err).Msg("failed to record completion")
		}
	}
}
