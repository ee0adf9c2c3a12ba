// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/ManuGH/mediafit/internal/config"
	"github.com/ManuGH/mediafit/internal/daemon"
	"github.com/ManuGH/mediafit/internal/health"
	"github.com/ManuGH/mediafit/internal/log"
	"github.com/spf13/cobra"
)

func newWatchCmd(opts *rootOptions) *cobra.Command {
	var (
		settle    time.Duration
		noHistory bool
	)
	cmd := &cobra.Command{
		Use:   "watch <dir>",
		Short: "Convert files as they appear in a directory",
		Long: `watch converts media files dropped into dir once their size has stopped
changing. The profile file is reloaded when it changes or on SIGHUP; running
conversions keep the profile they started with.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			e, err := opts.load(ctx)
			if err != nil {
				return err
			}
			defer e.close()

			inboxDir := args[0]
			if err := checkWatchDirs(inboxDir, e.profile.Output.Dir); err != nil {
				return err
			}

			eng, err := e.newEngine(ctx, opts, false)
			if err != nil {
				return err
			}
			tracker := health.NewRunTracker()
			eng.health.RegisterChecker(tracker)

			appOpts := daemon.Options{
				Converter: eng.orch,
				Inbox:     daemon.NewInbox(inboxDir, settle),
				Gate:      eng.gate,
				Profiles:  config.NewProfileWatcher(e.profile, e.loader),
				Profile:   e.profile.OutputProfile(),
				Tracker:   tracker,
			}
			if !noHistory {
				store, err := e.openHistory()
				if err != nil {
					return err
				}
				defer func() { _ = store.Close() }()
				appOpts.History = store
			}

			app, err := daemon.NewApp(log.WithComponent("watch"), appOpts)
			if err != nil {
				return err
			}

			waitStatus := e.serveStatus(ctx, eng.health)
			defer waitStatus()

			e.logger.Info().
				Str(log.FieldEvent, "watch.start").
				Str(log.FieldPath, inboxDir).
				Str(log.FieldEncoder, eng.choice.String()).
				Int("slots", eng.gate.Size()).
				Msg("watching inbox")
			return app.Run(ctx)
		},
	}
	addOutputFlags(cmd.Flags(), opts)
	cmd.Flags().DurationVar(&settle, "settle", daemon.DefaultSettle, "how long a file must stay unchanged before conversion")
	cmd.Flags().BoolVar(&noHistory, "no-history", false, "ignore and do not record conversion history")
	return cmd
}

// checkWatchDirs rejects an output directory that would feed back into the
// inbox. An empty output dir writes next to the input, which is the inbox.
func checkWatchDirs(inbox, output string) error {
	if output == "" {
		return usagef("watch needs an output directory outside the inbox (set output.output_dir or --output-dir)")
	}
	in, err := filepath.Abs(inbox)
	if err != nil {
		return fmt.Errorf("resolve inbox: %w", err)
	}
	out, err := filepath.Abs(output)
	if err != nil {
		return fmt.Errorf("resolve output dir: %w", err)
	}
	if in == out {
		return usagef("output directory %s is the watched directory", out)
	}
	return nil
}
