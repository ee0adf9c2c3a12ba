// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package splitter

import (
	"context"
	"errors"
	"fmt"

	"github.com/ManuGH/mediafit/internal/hardware"
	"github.com/ManuGH/mediafit/internal/log"
	"github.com/ManuGH/mediafit/internal/media"
	"github.com/ManuGH/mediafit/internal/metrics"
	"github.com/ManuGH/mediafit/internal/naming"
	"github.com/ManuGH/mediafit/internal/telemetry"
	"github.com/ManuGH/mediafit/internal/transcoder"
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

// Splitter re-encodes an oversize file into sequential parts.
type Splitter struct {
	fs       afero.Fs
	analyzer Analyzer
	encoder  Encoder
	choice   hardware.EncoderChoice
	logger   zerolog.Logger
}

// New creates a splitter encoding parts with choice.
func New(fs afero.Fs, analyzer Analyzer, encoder Encoder, choice hardware.EncoderChoice) *Splitter {
	return &Splitter{
		fs:       fs,
		analyzer: analyzer,
		encoder:  encoder,
		choice:   choice,
		logger:   log.WithComponent("splitter"),
	}
}

// Split cuts encodedFile into parts no larger than profile.MaxFileSize and
// returns their paths in playback order. A file already within the limit is
// returned unchanged. On failure every part written so far is removed; the
// encoded file itself is never touched.
func (s *Splitter) Split(ctx context.Context, encodedFile string, profile media.OutputProfile) (paths []string, err error) {
	ctx, span := telemetry.StartStage(ctx, "split", telemetry.MediaAttributes(encodedFile, "", profile.Name)...)
	defer func() { telemetry.EndSpan(span, err) }()

	fi, err := s.fs.Stat(encodedFile)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", encodedFile, err)
	}
	if fi.Size() <= profile.MaxFileSize {
		return []string{encodedFile}, nil
	}

	chars, err := s.analyzer.Analyze(ctx, encodedFile)
	if err != nil {
		return nil, err
	}
	base, err := transcoder.PlanEncode(chars, profile, s.choice)
	if err != nil {
		return nil, err
	}

	in := PlanInput{
		Size:        fi.Size(),
		Duration:    chars.Duration,
		MaxPartSize: profile.MaxFileSize,
	}
	if !base.AudioOnly {
		in.VideoBitrate = base.MaxRate
	}
	if base.AudioCodec != "" {
		in.AudioBitrate = base.AudioBitrate
	}
	plan, err := ComputePlan(in)
	if err != nil {
		var exceeded *media.SplitExceededError
		if errors.As(err, &exceeded) {
			exceeded.Path = naming.PartPath(encodedFile, exceeded.Part)
		}
		return nil, err
	}
	span.SetAttributes(telemetry.SplitAttributes(len(plan.Parts), plan.Iterations)...)

	logger := log.WithContext(ctx, s.logger).With().Str(log.FieldInput, encodedFile).Logger()
	logger.Info().
		Int64(log.FieldSize, fi.Size()).
		Int64(log.FieldLimit, profile.MaxFileSize).
		Int(log.FieldParts, len(plan.Parts)).
		Int64(log.FieldBitrate, plan.VideoBitrate).
		Int("iterations", plan.Iterations).
		Msg("split planned")

	written := make([]string, 0, len(plan.Parts))
	defer func() {
		if err != nil {
			s.removeAll(logger, written)
			paths = nil
		}
	}()

	// Parts are encoded strictly one after another.
	for _, part := range plan.Parts {
		out := naming.PartPath(encodedFile, part.Index+1)
		written = append(written, out)
		if err := s.encodePart(ctx, logger, base, plan, part, out, profile.MaxFileSize); err != nil {
			return nil, err
		}
	}

	metrics.AddSplitParts(len(written))
	logger.Info().Int(log.FieldParts, len(written)).Msg("split completed")
	return written, nil
}

// encodePart writes one part through its partial path and renames it into
// place once it fits the limit.
func (s *Splitter) encodePart(ctx context.Context, logger zerolog.Logger, base transcoder.EncodeParameters, plan Plan, part Part, out string, limit int64) error {
	tmp := naming.PartialPath(out)
	params := base.Window(tmp, part.Start, part.Duration).WithBitrate(plan.VideoBitrate)
	floor := min(MinVideoBitrate, params.MaxRate)
	defer s.removeAll(logger, []string{tmp})

	for attempt := 0; ; attempt++ {
		if err := s.encoder.Encode(ctx, params); err != nil {
			return err
		}
		fi, err := s.fs.Stat(tmp)
		if err != nil {
			return fmt.Errorf("stat part %s: %w", tmp, err)
		}
		if fi.Size() <= limit {
			if err := s.fs.Rename(tmp, out); err != nil {
				return fmt.Errorf("move part %s into place: %w", out, err)
			}
			logger.Debug().
				Int(log.FieldPart, part.Index+1).
				Int64(log.FieldSize, fi.Size()).
				Dur("start", part.Start).
				Dur(log.FieldDuration, part.Duration).
				Msg("part written")
			return nil
		}

		if attempt == MaxIterations || params.AudioOnly || params.MaxRate <= floor {
			return &media.SplitExceededError{
				Part:       part.Index + 1,
				Path:       out,
				Size:       fi.Size(),
				Limit:      limit,
				Iterations: attempt,
			}
		}

		next := max(RetargetBitrate(params.MaxRate, fi.Size(), limit), floor)
		logger.Warn().
			Int(log.FieldPart, part.Index+1).
			Int64(log.FieldSize, fi.Size()).
			Int64(log.FieldLimit, limit).
			Int64(log.FieldBitrate, next).
			Msg("part exceeds limit, re-encoding at lower bitrate")
		metrics.IncSplitRetarget()
		if err := s.fs.Remove(tmp); err != nil {
			return fmt.Errorf("remove oversize part %s: %w", tmp, err)
		}
		params = params.WithBitrate(next)
	}
}

func (s *Splitter) removeAll(logger zerolog.Logger, paths []string) {
	for _, p := range paths {
		if err := s.fs.Remove(p); err != nil && !errors.Is(err, afero.ErrFileNotFound) {
			logger.Warn().Err(err).Str(log.FieldPath, p).Msg("failed to remove partial part")
		}
	}
}
