// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package batch runs many inputs through the pipeline concurrently. Encodes
// are bounded by the encoder's session limit and downloads by their own
// gate, so a download can overlap the conversion of an earlier input.
package batch

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/ManuGH/mediafit/internal/acquire"
	"github.com/ManuGH/mediafit/internal/admission"
	"github.com/ManuGH/mediafit/internal/history"
	"github.com/ManuGH/mediafit/internal/log"
	"github.com/ManuGH/mediafit/internal/media"
	"github.com/ManuGH/mediafit/internal/pipeline"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"
)

// Converter runs the pipeline for one local input.
type Converter interface {
	Run(ctx context.Context, input string, profile media.OutputProfile) (pipeline.Result, error)
}

// Fetcher resolves and downloads remote inputs.
type Fetcher interface {
	Info(ctx context.Context, rawURL string) (media.VideoInfo, error)
	Fetch(ctx context.Context, rawURL, outDir string, sel acquire.Selection) (string, error)
}

// History remembers completed inputs.
type History interface {
	IsProcessed(key string) (bool, error)
	MarkCompleted(rec history.Record) error
}

// Config holds batch settings.
type Config struct {
	// DownloadDir receives fetched media before conversion.
	DownloadDir string
	// KeepDownloads keeps fetched media after a successful conversion.
	KeepDownloads bool
	// Downloads caps concurrent fetches (minimum 1).
	Downloads int
}

// Item is the outcome for one input.
type Item struct {
	Input  string
	Result pipeline.Result
	// Done is set for inputs skipped because history already records them.
	Done bool
	Err  error
}

// Summary aggregates a batch.
type Summary struct {
	BatchID   string
	Items     []Item
	Succeeded int
	Skipped   int
	Failed    int
	Elapsed   time.Duration
}

// Runner executes batches.
type Runner struct {
	fs        afero.Fs
	conv      Converter
	fetcher   Fetcher
	history   History
	encode    *admission.Gate
	downloads *admission.Gate
	cfg       Config
	logger    zerolog.Logger
}

// Option customises a Runner.
type Option func(*Runner)

// WithFetcher enables URL inputs.
func WithFetcher(f Fetcher) Option {
	return func(r *Runner) { r.fetcher = f }
}

// WithHistory skips inputs converted in earlier runs and records new ones.
func WithHistory(h History) Option {
	return func(r *Runner) { r.history = h }
}

// New creates a runner whose conversions pass through gate.
func New(fs afero.Fs, conv Converter, gate *admission.Gate, cfg Config, opts ...Option) *Runner {
	r := &Runner{
		fs:        fs,
		conv:      conv,
		encode:    gate,
		downloads: admission.NewGate(admission.GateDownload, cfg.Downloads),
		cfg:       cfg,
		logger:    log.WithComponent("batch"),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Run processes inputs (local paths or URLs). A failing input does not stop
// the others; its error is reported in the summary. Run itself only fails
// when ctx ends.
func (r *Runner) Run(ctx context.Context, inputs []string, profile media.OutputProfile) (Summary, error) {
	batchID := uuid.NewString()
	ctx = log.ContextWithBatchID(ctx, batchID)
	logger := log.WithContext(ctx, r.logger)
	started := time.Now()

	logger.Info().
		Int("inputs", len(inputs)).
		Int("encode_slots", r.encode.Size()).
		Int("download_slots", r.downloads.Size()).
		Str(log.FieldProfile, profile.Name).
		Msg("batch started")

	items := make([]Item, len(inputs))
	var g errgroup.Group
	g.SetLimit(r.encode.Size() + r.downloads.Size())
	for i, in := range inputs {
		g.Go(func() error {
			items[i] = r.process(ctx, in, profile)
			return nil
		})
	}
	_ = g.Wait()

	sum := Summary{BatchID: batchID, Items: items, Elapsed: time.Since(started)}
	for _, it := range items {
		switch {
		case it.Err != nil:
			sum.Failed++
		case it.Done || it.Result.Action == pipeline.ActionExists:
			sum.Skipped++
		default:
			sum.Succeeded++
		}
	}
	logger.Info().
		Int("total", len(inputs)).
		Int("succeeded", sum.Succeeded).
		Int("skipped", sum.Skipped).
		Int("failed", sum.Failed).
		Dur(log.FieldDuration, sum.Elapsed).
		Msg("batch completed")
	return sum, ctx.Err()
}

func (r *Runner) process(ctx context.Context, input string, profile media.OutputProfile) Item {
	item := Item{Input: input}
	if err := ctx.Err(); err != nil {
		item.Err = err
		return item
	}
	logger := log.WithContext(ctx, r.logger).With().Str(log.FieldInput, input).Logger()

	key, remote, err := r.key(ctx, input)
	if err != nil {
		item.Err = err
		logger.Error().Err(err).Msg("input rejected")
		return item
	}
	if r.history != nil {
		done, err := r.history.IsProcessed(key)
		if err != nil {
			logger.Warn().Err(err).Msg("history lookup failed")
		}
		if done {
			logger.Info().Str("key", key).Msg("already converted, skipping")
			item.Done = true
			return item
		}
	}

	local := input
	if remote {
		local, err = r.fetch(ctx, input, profile)
		if err != nil {
			item.Err = err
			logger.Error().Err(err).Msg("download failed")
			return item
		}
	}

	release, err := r.encode.Acquire(ctx)
	if err != nil {
		item.Err = err
		return item
	}
	res, err := r.conv.Run(ctx, local, profile)
	release()
	item.Result = res
	if err != nil {
		// The download stays so a rerun can convert without refetching.
		item.Err = err
		return item
	}

	if remote && !r.cfg.KeepDownloads {
		if err := r.fs.Remove(local); err != nil && !errors.Is(err, afero.ErrFileNotFound) {
			logger.Warn().Err(err).Str(log.FieldPath, local).Msg("failed to remove download")
		}
	}
	if r.history != nil && len(res.Outputs) > 0 {
		if err := r.history.MarkCompleted(history.Record{Key: key, Profile: profile.Name, Outputs: res.Outputs}); err != nil {
			logger.Warn().Err(err).Msg("failed to record completion")
		}
	}
	return item
}

// key identifies an input across runs: the remote ID for URLs, the absolute
// path otherwise.
func (r *Runner) key(ctx context.Context, input string) (string, bool, error) {
	if !acquire.IsURL(input) {
		abs, err := filepath.Abs(input)
		if err != nil {
			return "", false, err
		}
		return abs, false, nil
	}
	if r.fetcher == nil {
		return "", true, fmt.Errorf("%w: downloads are not enabled", acquire.ErrInvalidURL)
	}
	info, err := r.fetcher.Info(ctx, input)
	if err != nil {
		return "", true, err
	}
	return info.ID, true, nil
}

func (r *Runner) fetch(ctx context.Context, rawURL string, profile media.OutputProfile) (string, error) {
	release, err := r.downloads.Acquire(ctx)
	if err != nil {
		return "", err
	}
	defer release()
	return r.fetcher.Fetch(ctx, rawURL, r.cfg.DownloadDir, acquire.PlanSourceFormat(profile))
}

// Errors returns the failed items' errors joined, or nil.
func (s Summary) Errors() error {
	var errs []error
	for _, it := range s.Items {
		if it.Err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", it.Input, it.Err))
		}
	}
	return errors.Join(errs...)
}
