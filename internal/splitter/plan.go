// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package splitter cuts oversize encodes into size-bounded parts that each
// start on a keyframe.
//
// Bitrate is allocated flat: every part is encoded with the same ceiling.
// When any part would exceed the limit, the shared ceiling is lowered; it is
// never raised and never allocated per scene. The planner only fails when a
// single part cannot be brought under the limit.
package splitter

import (
	"errors"
	"fmt"
	"time"

	"github.com/ManuGH/mediafit/internal/media"
)

const (
	// MaxIterations bounds bitrate reductions, both while planning and when
	// re-encoding a part that came out too large.
	MaxIterations = 8
	// MinVideoBitrate is the lowest video ceiling a retarget may reach. A
	// source already below it keeps its own rate as the floor.
	MinVideoBitrate int64 = 500_000
	// KeyframeSlack is added to every span when estimating part sizes: the
	// seek lands on the keyframe before the span start.
	KeyframeSlack = 2 * time.Second

	planMargin   = 0.98
	encodeMargin = 0.97
)

// ErrUnknownDuration is returned when a file cannot be split by time.
var ErrUnknownDuration = errors.New("cannot split: duration unknown")

// Part is one contiguous span of the source.
type Part struct {
	// Index is 0-based; the file suffix is Index+1.
	Index         int
	Start         time.Duration
	Duration      time.Duration
	EstimatedSize int64
}

// End returns the exclusive end of the span.
func (p Part) End() time.Duration { return p.Start + p.Duration }

// Plan is the ordered split of one file.
type Plan struct {
	Parts []Part
	// VideoBitrate is the shared per-part video ceiling in bps (0 for
	// audio-only sources).
	VideoBitrate int64
	AudioBitrate int64
	Iterations   int
}

// EstimatedTotal sums the part estimates.
func (p Plan) EstimatedTotal() int64 {
	var sum int64
	for _, part := range p.Parts {
		sum += part.EstimatedSize
	}
	return sum
}

// PlanInput describes the oversize file.
type PlanInput struct {
	Size     int64
	Duration time.Duration
	// VideoBitrate caps the starting ceiling (the encode's maxrate); 0 means
	// no video stream.
	VideoBitrate int64
	AudioBitrate int64
	MaxPartSize  int64
}

// ComputePlan derives the part count, spans and shared bitrate.
// parts = ceil(size/limit); the span is duration/parts with the remainder
// in the last part. The estimate rate starts at the observed average rate of
// the file, capped by the encode ceiling, and is never raised above it.
// While a part estimate (span plus keyframe slack) exceeds the limit the
// video ceiling is cut by limit/worst*0.98, down to MinVideoBitrate or the
// starting rate when that is already lower. Audio cannot be lowered.
func ComputePlan(in PlanInput) (Plan, error) {
	if in.MaxPartSize <= 0 {
		return Plan{}, fmt.Errorf("invalid part size limit %d", in.MaxPartSize)
	}
	if in.Duration <= 0 {
		return Plan{}, ErrUnknownDuration
	}

	n := int((in.Size + in.MaxPartSize - 1) / in.MaxPartSize)
	if n < 1 {
		n = 1
	}
	spans := spansFor(in.Duration, n)

	observed := int64(float64(in.Size*8) / in.Duration.Seconds())
	audio := in.AudioBitrate
	if audio <= 0 || audio > observed {
		audio = observed
	}
	video := int64(0)
	if in.VideoBitrate > 0 {
		audio = min(in.AudioBitrate, observed)
		video = max(min(observed-audio, in.VideoBitrate), 1)
	}
	floor := min(MinVideoBitrate, video)

	for iter := 0; ; iter++ {
		parts := estimate(spans, video+audio)
		worst := worstPart(parts)
		if parts[worst].EstimatedSize <= in.MaxPartSize {
			return Plan{Parts: parts, VideoBitrate: video, AudioBitrate: in.AudioBitrate, Iterations: iter}, nil
		}

		if iter == MaxIterations || video <= floor {
			return Plan{}, &media.SplitExceededError{
				Part:       worst + 1,
				Size:       parts[worst].EstimatedSize,
				Limit:      in.MaxPartSize,
				Iterations: iter,
			}
		}

		factor := float64(in.MaxPartSize) / float64(parts[worst].EstimatedSize) * planMargin
		next := int64(float64(video+audio)*factor) - audio
		if next >= video {
			next = video - 1
		}
		video = max(next, floor)
	}
}

// spansFor splits d into n contiguous spans; the last absorbs the remainder.
func spansFor(d time.Duration, n int) []Part {
	span := d / time.Duration(n)
	parts := make([]Part, n)
	for i := range parts {
		parts[i] = Part{Index: i, Start: span * time.Duration(i), Duration: span}
	}
	parts[n-1].Duration = d - parts[n-1].Start
	return parts
}

func estimate(spans []Part, totalBitrate int64) []Part {
	out := make([]Part, len(spans))
	for i, p := range spans {
		p.EstimatedSize = int64(float64(totalBitrate) * (p.Duration + KeyframeSlack).Seconds() / 8)
		out[i] = p
	}
	return out
}

func worstPart(parts []Part) int {
	worst := 0
	for i, p := range parts {
		if p.EstimatedSize > parts[worst].EstimatedSize {
			worst = i
		}
	}
	return worst
}

// RetargetBitrate lowers bitrate for a part that came out at actual bytes
// against limit. It never raises the rate.
func RetargetBitrate(bitrate, actual, limit int64) int64 {
	if actual <= 0 {
		return bitrate
	}
	next := int64(float64(bitrate) * float64(limit) / float64(actual) * encodeMargin)
	return min(next, bitrate)
}
