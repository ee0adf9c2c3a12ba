// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package pipeline drives one input through analysis, encoding and the
// size policy. Runs are linear and synchronous; concurrency across inputs
// belongs to the caller.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/ManuGH/mediafit/internal/hardware"
	"github.com/ManuGH/mediafit/internal/log"
	"github.com/ManuGH/mediafit/internal/media"
	"github.com/ManuGH/mediafit/internal/metrics"
	"github.com/ManuGH/mediafit/internal/naming"
	"github.com/ManuGH/mediafit/internal/splitter"
	"github.com/ManuGH/mediafit/internal/telemetry"
	"github.com/ManuGH/mediafit/internal/transcoder"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
)

// Analyzer characterizes a local file.
type Analyzer interface {
	Analyze(ctx context.Context, path string) (media.SourceCharacteristics, error)
}

// Encoder runs one planned encode to completion.
type Encoder interface {
	Encode(ctx context.Context, p transcoder.EncodeParameters) error
}

// Action is what a run did with its input.
type Action string

const (
	ActionConverted  Action = "converted"
	ActionSplit      Action = "split"
	ActionCompressed Action = "compressed"
	// ActionOversize kept an output above the limit (warn policy).
	ActionOversize Action = "oversize"
	// ActionDropped deleted an oversize output (skip policy).
	ActionDropped Action = "dropped"
	// ActionExists found the outputs of an earlier run and did nothing.
	ActionExists Action = "exists"
)

// Result describes a finished run.
type Result struct {
	JobID   string
	Input   string
	Outputs []string
	Action  Action
	// Encoder is the encoder that produced the outputs. It differs from the
	// configured choice after a software fallback.
	Encoder hardware.EncoderChoice
}

// Config holds per-orchestrator settings.
type Config struct {
	// OutputDir receives outputs. Empty means next to the input.
	OutputDir string
	// Overwrite re-encodes even when outputs already exist.
	Overwrite bool
}

// Orchestrator runs the conversion pipeline for single inputs.
type Orchestrator struct {
	fs       afero.Fs
	analyzer Analyzer
	encoder  Encoder
	choice   hardware.EncoderChoice
	cfg      Config
	logger   zerolog.Logger
}

// New creates an orchestrator encoding with choice.
func New(fs afero.Fs, analyzer Analyzer, encoder Encoder, choice hardware.EncoderChoice, cfg Config) *Orchestrator {
	return &Orchestrator{
		fs:       fs,
		analyzer: analyzer,
		encoder:  encoder,
		choice:   choice,
		cfg:      cfg,
		logger:   log.WithComponent("pipeline"),
	}
}

// OutputPathFor returns where a run of input with profile writes its
// unsplit output.
func (o *Orchestrator) OutputPathFor(input string, profile media.OutputProfile) string {
	dir := o.cfg.OutputDir
	if dir == "" {
		dir = filepath.Dir(input)
	}
	out := naming.OutputPath(dir, input, profile.Container.Extension())
	if filepath.Clean(out) == filepath.Clean(input) {
		stem := strings.TrimSuffix(filepath.Base(input), filepath.Ext(input))
		out = filepath.Join(dir, naming.Sanitize(stem+"."+profile.Name)+"."+profile.Container.Extension())
	}
	return out
}

// Run converts input into profile. Errors from each stage are returned
// unwrapped so callers can match them with errors.As. A failed run leaves
// no outputs behind.
func (o *Orchestrator) Run(ctx context.Context, input string, profile media.OutputProfile) (res Result, err error) {
	jobID := log.JobIDFromContext(ctx)
	if jobID == "" {
		jobID = uuid.NewString()
		ctx = log.ContextWithJobID(ctx, jobID)
	}
	res = Result{JobID: jobID, Input: input, Encoder: o.choice}

	out := o.OutputPathFor(input, profile)
	ctx, span := telemetry.StartStage(ctx, "pipeline", telemetry.MediaAttributes(input, out, profile.Name)...)
	logger := log.WithContext(ctx, o.logger).With().
		Str(log.FieldInput, input).
		Str(log.FieldProfile, profile.Name).
		Logger()

	stage := "validate"
	started := time.Now()
	defer func() {
		telemetry.EndSpan(span, err)
		if err != nil {
			metrics.IncJob("failed")
			logger.Error().Err(err).Str(log.FieldStage, stage).Msg("conversion failed")
			return
		}
		metrics.IncJob(string(res.Action))
		metrics.ObserveStage("total", time.Since(started))
	}()

	if err := profile.Validate(); err != nil {
		return res, err
	}

	if !o.cfg.Overwrite {
		existing, err := o.existingOutputs(out)
		if err != nil {
			return res, err
		}
		if len(existing) > 0 {
			logger.Info().Strs("outputs", existing).Msg("outputs already exist, skipping")
			res.Outputs, res.Action = existing, ActionExists
			return res, nil
		}
	}

	stage = "analyze"
	if _, err := o.fs.Stat(input); err != nil {
		return res, &media.AnalysisError{Path: input, Err: err}
	}
	stageStart := time.Now()
	chars, err := o.analyzer.Analyze(ctx, input)
	if err != nil {
		return res, err
	}
	metrics.ObserveStage(stage, time.Since(stageStart))

	stage = "plan"
	params, err := transcoder.PlanEncode(chars, profile, o.choice)
	if err != nil {
		return res, err
	}
	params.Output = out

	stage = "encode"
	if err := o.fs.MkdirAll(filepath.Dir(out), 0o750); err != nil {
		return res, fmt.Errorf("create output dir: %w", err)
	}
	stageStart = time.Now()
	params, err = o.encodeWithFallback(ctx, logger, params, profile)
	if err != nil {
		return res, err
	}
	metrics.ObserveStage(stage, time.Since(stageStart))
	if params.HasVideo() {
		res.Encoder = params.Encoder
	}

	stage = "size"
	fi, err := o.fs.Stat(out)
	if err != nil {
		o.remove(logger, out)
		return res, fmt.Errorf("stat output %s: %w", out, err)
	}
	if fi.Size() <= profile.MaxFileSize {
		logger.Info().Str(log.FieldOutput, out).Int64(log.FieldSize, fi.Size()).Msg("conversion completed")
		metrics.AddOutputBytes(fi.Size())
		res.Outputs, res.Action = []string{out}, ActionConverted
		return res, nil
	}

	stage = string(profile.OnSizeExceed)
	logger.Warn().
		Int64(log.FieldSize, fi.Size()).
		Int64(log.FieldLimit, profile.MaxFileSize).
		Str("policy", string(profile.OnSizeExceed)).
		Msg("output exceeds size limit")

	outputs, action, err := o.applySizePolicy(ctx, logger, out, fi.Size(), chars, params, profile)
	if err != nil {
		o.remove(logger, out)
		return res, err
	}
	res.Outputs, res.Action = outputs, action
	for _, p := range outputs {
		if fi, err := o.fs.Stat(p); err == nil {
			metrics.AddOutputBytes(fi.Size())
		}
	}
	logger.Info().Strs("outputs", outputs).Str("action", string(action)).Msg("conversion completed")
	return res, nil
}

// existingOutputs returns the output or its parts when a previous run
// produced them.
func (o *Orchestrator) existingOutputs(out string) ([]string, error) {
	if ok, err := afero.Exists(o.fs, out); err != nil {
		return nil, err
	} else if ok {
		return []string{out}, nil
	}
	parts, err := afero.Glob(o.fs, naming.PartGlob(out))
	if err != nil {
		return nil, err
	}
	naming.SortNatural(parts)
	return parts, nil
}

// encodeWithFallback runs the encode and, when a hardware encoder fails,
// retries once with the software encoder. It returns the parameters that
// produced the output.
func (o *Orchestrator) encodeWithFallback(ctx context.Context, logger zerolog.Logger, p transcoder.EncodeParameters, profile media.OutputProfile) (transcoder.EncodeParameters, error) {
	ctx, span := telemetry.StartStage(ctx, "encode",
		telemetry.EncodeAttributes(p.VideoCodec, string(p.Encoder.Vendor), p.Encoder.IsHardware(), p.MaxRate, p.Scale)...)
	err := o.encodeOnce(ctx, logger, p)
	if err == nil || !p.HasVideo() || !p.Encoder.IsHardware() {
		telemetry.EndSpan(span, err)
		return p, err
	}
	var encErr *media.EncodeError
	if !errors.As(err, &encErr) {
		telemetry.EndSpan(span, err)
		return p, err
	}
	telemetry.EndSpan(span, err)

	metrics.IncFallback(string(p.Encoder.Vendor))
	logger.Warn().
		Err(err).
		Str(log.FieldEncoder, p.VideoCodec).
		Msg("hardware encode failed, retrying with software encoder")

	sw := p.WithEncoder(hardware.Software(), profile.VideoCodec, profile.Quality)
	ctx, span = telemetry.StartStage(ctx, "encode",
		telemetry.EncodeAttributes(sw.VideoCodec, string(sw.Encoder.Vendor), false, sw.MaxRate, sw.Scale)...)
	err = o.encodeOnce(ctx, logger, sw)
	telemetry.EndSpan(span, err)
	return sw, err
}

// encodeOnce writes p.Output through a partial file that replaces the
// final path only after the encoder succeeded.
func (o *Orchestrator) encodeOnce(ctx context.Context, logger zerolog.Logger, p transcoder.EncodeParameters) error {
	out := p.Output
	p.Output = naming.PartialPath(out)
	logger.Info().
		Str(log.FieldOutput, out).
		Str(log.FieldEncoder, p.VideoCodec).
		Int64(log.FieldBitrate, p.MaxRate).
		Str("scale", p.Scale).
		Bool("audio_only", p.AudioOnly).
		Msg("encoding")
	if err := o.encoder.Encode(ctx, p); err != nil {
		o.remove(logger, p.Output)
		return err
	}
	if err := o.fs.Rename(p.Output, out); err != nil {
		o.remove(logger, p.Output)
		return fmt.Errorf("move %s into place: %w", out, err)
	}
	return nil
}

func (o *Orchestrator) applySizePolicy(ctx context.Context, logger zerolog.Logger, out string, size int64, chars media.SourceCharacteristics, params transcoder.EncodeParameters, profile media.OutputProfile) ([]string, Action, error) {
	switch profile.OnSizeExceed {
	case media.SizeSplit:
		parts, err := splitter.New(o.fs, o.analyzer, o.encoder, params.Encoder).Split(ctx, out, profile)
		if err != nil {
			return nil, "", err
		}
		if len(parts) == 1 && parts[0] == out {
			return parts, ActionConverted, nil
		}
		o.remove(logger, out)
		return parts, ActionSplit, nil

	case media.SizeCompress:
		if err := o.compress(ctx, logger, out, chars, params, profile); err != nil {
			return nil, "", err
		}
		return []string{out}, ActionCompressed, nil

	case media.SizeSkip:
		o.remove(logger, out)
		logger.Warn().Str(log.FieldOutput, out).Msg("oversize output dropped")
		return nil, ActionDropped, nil

	default:
		logger.Warn().Str(log.FieldOutput, out).Int64(log.FieldSize, size).Msg("keeping oversize output")
		return []string{out}, ActionOversize, nil
	}
}

// CompressBitrate is the video bitrate that brings duration into limit
// bytes after scaling by reduction and reserving audio. It is floored at
// splitter.MinVideoBitrate.
func CompressBitrate(limit int64, duration time.Duration, reduction float64, audio int64) int64 {
	total := float64(limit) * 8 / duration.Seconds() * reduction
	return max(int64(total)-audio, splitter.MinVideoBitrate)
}

// compress re-encodes the source at a bitrate derived from the size limit.
// The result replaces out only once the encode has finished.
func (o *Orchestrator) compress(ctx context.Context, logger zerolog.Logger, out string, chars media.SourceCharacteristics, params transcoder.EncodeParameters, profile media.OutputProfile) error {
	if !params.HasVideo() {
		return fmt.Errorf("compress %s: audio-only output cannot be reduced", out)
	}
	if chars.Duration <= 0 {
		return fmt.Errorf("compress %s: %w", out, splitter.ErrUnknownDuration)
	}
	var audio int64
	if params.AudioCodec != "" {
		audio = params.AudioBitrate
	}
	bitrate := CompressBitrate(profile.MaxFileSize, chars.Duration, profile.CompressReduction, audio)

	p := params.WithBitrate(bitrate)
	p.Output = out
	logger.Info().Int64(log.FieldBitrate, p.MaxRate).Msg("compressing to fit size limit")

	ctx, span := telemetry.StartStage(ctx, "compress",
		telemetry.EncodeAttributes(p.VideoCodec, string(p.Encoder.Vendor), p.Encoder.IsHardware(), p.MaxRate, p.Scale)...)
	err := o.encodeOnce(ctx, logger, p)
	telemetry.EndSpan(span, err)
	if err != nil {
		return err
	}
	if fi, err := o.fs.Stat(out); err == nil && fi.Size() > profile.MaxFileSize {
		logger.Warn().
			Int64(log.FieldSize, fi.Size()).
			Int64(log.FieldLimit, profile.MaxFileSize).
			Msg("compressed output still exceeds size limit")
	}
	return nil
}

func (o *Orchestrator) remove(logger zerolog.Logger, path string) {
	if err := o.fs.Remove(path); err != nil && !errors.Is(err, afero.ErrFileNotFound) {
		logger.Warn().Err(err).Str(log.FieldPath, path).Msg("failed to remove partial output")
	}
}
