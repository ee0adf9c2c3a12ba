// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ManuGH/mediafit/internal/acquire"
	"github.com/ManuGH/mediafit/internal/admission"
	"github.com/ManuGH/mediafit/internal/batch"
	"github.com/ManuGH/mediafit/internal/config"
	"github.com/ManuGH/mediafit/internal/hardware"
	"github.com/ManuGH/mediafit/internal/health"
	"github.com/ManuGH/mediafit/internal/history"
	"github.com/ManuGH/mediafit/internal/infra/ffmpeg"
	"github.com/ManuGH/mediafit/internal/log"
	"github.com/ManuGH/mediafit/internal/pipeline"
	"github.com/ManuGH/mediafit/internal/telemetry"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
)

const shutdownTimeout = 5 * time.Second

// env is the loaded profile plus process-wide logging and tracing.
type env struct {
	loader  *config.Loader
	profile config.Profile
	logger  zerolog.Logger
	tracing *telemetry.Provider
}

// load reads the profile (ENV > file > defaults), applies flag overrides and
// configures logging and tracing.
func (o *rootOptions) load(ctx context.Context) (*env, error) {
	loader := config.NewLoader(o.profilePath, version)
	p, err := loader.Load()
	if err != nil {
		return nil, err
	}
	if o.outputDir != "" {
		p.Output.Dir = o.outputDir
	}

	logCfg := p.LogConfig()
	if o.logLevel != "" {
		logCfg.Level = o.logLevel
	}
	if o.logFormat != "" {
		logCfg.Format = o.logFormat
	}
	log.Configure(logCfg)
	logger := log.WithComponent("cli")

	tracing, err := telemetry.NewProvider(ctx, telemetry.Config{
		Enabled:        p.Telemetry.Enabled,
		ServiceName:    "mediafit",
		ServiceVersion: version,
		ExporterType:   p.Telemetry.Exporter,
		Endpoint:       p.Telemetry.Endpoint,
		SamplingRate:   p.Telemetry.SamplingRate,
	})
	if err != nil {
		return nil, fmt.Errorf("init tracing: %w", err)
	}

	source := "defaults"
	if o.profilePath != "" {
		source = o.profilePath
	}
	logger.Debug().
		Str(log.FieldEvent, "profile.loaded").
		Str("source", source).
		Str(log.FieldProfile, p.Profile.Name).
		Msg("profile loaded")

	return &env{loader: loader, profile: p, logger: logger, tracing: tracing}, nil
}

func (e *env) close() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := e.tracing.Shutdown(ctx); err != nil {
		e.logger.Warn().Err(err).Msg("tracing shutdown failed")
	}
}

// dataDir holds the history database and downloads.
func (e *env) dataDir() (string, error) {
	if dir := strings.TrimSpace(e.profile.Tools.DataDir); dir != "" {
		return dir, nil
	}
	base, err := os.UserCacheDir()
	if err != nil {
		return "", fmt.Errorf("resolve data dir: %w", err)
	}
	return filepath.Join(base, "mediafit"), nil
}

func (e *env) openHistory() (*history.Store, error) {
	dir, err := e.dataDir()
	if err != nil {
		return nil, err
	}
	return history.Open(filepath.Join(dir, "history"))
}

func isAuto(vendor string) bool {
	vendor = strings.ToLower(strings.TrimSpace(vendor))
	return vendor == "" || vendor == "auto"
}

// selector builds the encoder selector for the --encoder flag.
func (e *env) selector(vendor string) (*hardware.Selector, error) {
	vendor = strings.ToLower(strings.TrimSpace(vendor))
	if !isAuto(vendor) {
		v := hardware.Vendor(vendor)
		if _, ok := hardware.Dialects[v]; !ok {
			vendors, err := hardware.ParsePriority([]string{vendor})
			if err != nil {
				return nil, usagef("--encoder: unknown vendor or encoder %q", vendor)
			}
			v = hardware.VendorSoftware
			if len(vendors) > 0 {
				v = vendors[0]
			}
		}
		return hardware.Fixed(hardware.Choose(v)), nil
	}

	priority, err := e.priority()
	if err != nil {
		return nil, err
	}
	return hardware.NewSelector(e.prober(priority), priority), nil
}

// priority is the profile's vendor probe order, nil for the default.
func (e *env) priority() ([]hardware.Vendor, error) {
	if len(e.profile.Video.EncoderPriority) == 0 {
		return nil, nil
	}
	priority, err := hardware.ParsePriority(e.profile.Video.EncoderPriority)
	if err != nil {
		return nil, fmt.Errorf("video.encoder_priority: %w", err)
	}
	return priority, nil
}

func (e *env) prober(priority []hardware.Vendor) *hardware.Prober {
	var popts []hardware.ProberOption
	if priority != nil {
		popts = append(popts, hardware.WithPriority(priority))
	}
	return hardware.NewProber(e.profile.Tools.FFmpeg, popts...)
}

// engine is the wired conversion stack for one process.
type engine struct {
	fs       afero.Fs
	choice   hardware.EncoderChoice
	analyzer *ffmpeg.Analyzer
	executor *ffmpeg.Executor
	orch     *pipeline.Orchestrator
	gate     *admission.Gate
	health   *health.Manager
}

func (e *env) newEngine(ctx context.Context, opts *rootOptions, needDownloads bool) (*engine, error) {
	p := e.profile
	fs := afero.NewOsFs()

	mgr := health.NewManager(version)
	mgr.RegisterChecker(health.NewBinaryChecker("ffmpeg", p.Tools.FFmpeg, false))
	mgr.RegisterChecker(health.NewBinaryChecker("ffprobe", p.Tools.FFprobe, false))
	mgr.RegisterChecker(health.NewBinaryChecker("yt-dlp", p.Tools.YtDlp, !needDownloads))
	if p.Output.Dir != "" {
		mgr.RegisterChecker(health.NewDirChecker("output_dir", fs, p.Output.Dir))
	}
	if err := mgr.Preflight(ctx); err != nil {
		return nil, err
	}

	sel, err := e.selector(opts.encoder)
	if err != nil {
		return nil, err
	}
	choice := sel.SelectEncoder(ctx)

	analyzer := ffmpeg.NewAnalyzer(p.Tools.FFprobe)
	executor := ffmpeg.NewExecutor(p.Tools.FFmpeg, log.WithComponent("ffmpeg"))
	executor.StallTimeout = opts.stall
	orch := pipeline.New(fs, analyzer, executor, choice, pipeline.Config{
		OutputDir: p.Output.Dir,
		Overwrite: opts.overwrite,
	})

	return &engine{
		fs:       fs,
		choice:   choice,
		analyzer: analyzer,
		executor: executor,
		orch:     orch,
		gate:     admission.ForEncoder(choice, p.Download.Concurrency),
		health:   mgr,
	}, nil
}

// runnerOptions tune batch runs.
type runnerOptions struct {
	downloads     int
	keepDownloads bool
	noHistory     bool

	// playlist expands URL inputs into their entries before the run.
	playlist bool
	start    int
	end      int
	reverse  bool
}

// newRunner wires the batch runner with downloads and history. The returned
// closer releases the history store.
func (e *env) newRunner(eng *engine, ro runnerOptions) (*batch.Runner, *acquire.Fetcher, func(), error) {
	p := e.profile
	dir, err := e.dataDir()
	if err != nil {
		return nil, nil, nil, err
	}

	var (
		opts    []batch.Option
		fopts   []acquire.FetcherOption
		closeFn = func() {}
	)
	if !ro.noHistory {
		store, err := e.openHistory()
		if err != nil {
			return nil, nil, nil, err
		}
		opts = append(opts, batch.WithHistory(store))
		fopts = append(fopts, acquire.WithInfoCache(store))
		closeFn = func() {
			if err := store.Close(); err != nil {
				e.logger.Warn().Err(err).Msg("failed to close history store")
			}
		}
	}

	fetcher := acquire.NewFetcher(p.Tools.YtDlp, acquire.Options{
		Template:        p.Output.FilenameTemplate,
		Retries:         p.Download.Retries,
		FragmentRetries: p.Download.FragmentRetries,
		RateLimitMbps:   p.Download.RateLimitMbps,
		StartsPerMinute: p.Download.StartsPerMinute,
	}, fopts...)
	opts = append(opts, batch.WithFetcher(fetcher))

	r := batch.New(eng.fs, eng.orch, eng.gate, batch.Config{
		DownloadDir:   filepath.Join(dir, "downloads"),
		KeepDownloads: ro.keepDownloads,
		Downloads:     ro.downloads,
	}, opts...)
	return r, fetcher, closeFn, nil
}

// serveStatus starts the /healthz, /readyz and /metrics listener when the
// profile enables it. The returned func waits for it to stop.
func (e *env) serveStatus(ctx context.Context, mgr *health.Manager) func() {
	addr := strings.TrimSpace(e.profile.Status.Listen)
	if addr == "" {
		return func() {}
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := health.Serve(ctx, addr, health.NewRouter(mgr)); err != nil {
			e.logger.Error().Err(err).Str("addr", addr).Msg("status listener failed")
		}
	}()
	return func() { <-done }
}
