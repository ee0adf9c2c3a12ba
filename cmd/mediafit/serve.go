// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"strings"

	"github.com/ManuGH/mediafit/internal/api"
	"github.com/ManuGH/mediafit/internal/config"
	"github.com/ManuGH/mediafit/internal/health"
	"github.com/ManuGH/mediafit/internal/log"
	"github.com/spf13/cobra"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	var (
		ro        runnerOptions
		listen    string
		maxActive int
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Accept conversion jobs over HTTP",
		Long: `serve runs the status listener with a job API mounted under /api:

  POST /api/queue        {"url": "..."} queues a download and conversion
  GET  /api/status       lists jobs
  GET  /api/status/{id}  shows one job
  GET  /api/profiles     shows the active profile

The profile file is reloaded when it changes; queued jobs keep the profile
they were submitted with.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			e, err := opts.load(ctx)
			if err != nil {
				return err
			}
			defer e.close()

			addr := strings.TrimSpace(e.profile.Status.Listen)
			if cmd.Flags().Changed("listen") {
				addr = strings.TrimSpace(listen)
			}
			if addr == "" {
				return usagef("serve needs a listen address (set status.listen or --listen)")
			}

			eng, err := e.newEngine(ctx, opts, true)
			if err != nil {
				return err
			}
			runner, _, closeRunner, err := e.newRunner(eng, ro)
			if err != nil {
				return err
			}
			defer closeRunner()

			profiles := config.NewProfileWatcher(e.profile, e.loader)
			if err := profiles.Start(ctx); err != nil {
				e.logger.Warn().Err(err).Str(log.FieldEvent, "profile.watcher_start_failed").Msg("failed to start profile watcher")
			} else {
				defer profiles.Stop()
			}

			apiOpts := api.DefaultOptions()
			if maxActive > 0 {
				apiOpts.MaxActive = maxActive
			}
			jobs := api.NewServer(ctx, runner, profiles, apiOpts)

			e.logger.Info().
				Str(log.FieldEvent, "serve.start").
				Str("addr", addr).
				Str(log.FieldEncoder, eng.choice.String()).
				Int("slots", eng.gate.Size()).
				Msg("serving job API")
			err = health.Serve(ctx, addr, health.NewRouter(eng.health, health.Mount{Prefix: "/api", Handler: jobs.Handler()}))
			jobs.Wait()
			return err
		},
	}
	addOutputFlags(cmd.Flags(), opts)
	addRunnerFlags(cmd, &ro)
	cmd.Flags().StringVar(&listen, "listen", "", "listen address, overrides status.listen")
	cmd.Flags().IntVar(&maxActive, "max-jobs", 0, "cap on queued and running jobs (default 64)")
	cmd.Flags().IntVar(&ro.downloads, "downloads", 2, "concurrent downloads")
	return cmd
}
