// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package transcoder

import (
	"fmt"
	"math"

	"github.com/ManuGH/mediafit/internal/hardware"
	"github.com/ManuGH/mediafit/internal/media"
)

// PlanEncode derives the parameters for encoding a source into profile with
// the given encoder. Input is taken from chars.Path; the caller sets Output.
func PlanEncode(chars media.SourceCharacteristics, profile media.OutputProfile, choice hardware.EncoderChoice) (EncodeParameters, error) {
	if err := profile.Validate(); err != nil {
		return EncodeParameters{}, err
	}
	if !chars.HasVideo && !chars.HasAudio {
		return EncodeParameters{}, &media.PlanningError{Profile: profile.Name, Reason: "source has neither video nor audio"}
	}

	p := EncodeParameters{
		Input:           chars.Path,
		AudioOnly:       !chars.HasVideo,
		AudioCodec:      profile.AudioCodec.Encoder(),
		AudioBitrate:    profile.AudioBitrate,
		AudioSampleRate: profile.AudioSampleRate,
		AudioChannels:   profile.AudioChannels,
		StripData:       true,
		StripChapters:   true,
		StripMetadata:   true,
		Container:       profile.Container,
		Streamable:      profile.Faststart && profile.Container.Streamable(),
		ExtraAudioArgs:  append([]string(nil), profile.ExtraAudioArgs...),
	}
	if len(profile.SubtitleLanguages) > 0 && profile.Container != media.ContainerAVI {
		p.SubtitleLanguages = append([]string(nil), profile.SubtitleLanguages...)
	}
	if !chars.HasAudio {
		p.AudioCodec = ""
	}
	if p.AudioOnly {
		return p, nil
	}

	if profile.VideoCodec == media.VideoH264 {
		p.H264Profile = profile.H264Profile
		p.H264Level = profile.H264Level
	}
	p.PixelFormat = profile.PixelFormat
	p = p.WithEncoder(choice, profile.VideoCodec, profile.Quality)
	// ffmpeg autorotates before the filter graph, so fit the displayed frame.
	w, h := chars.DisplaySize()
	p.Scale = ScaleFilter(w, h, profile.MaxWidth, profile.MaxHeight)
	p.FPSCap = FPSCap(chars.FPS(), profile.MaxFPS)
	p.MaxRate = BitrateCeiling(chars.Bitrate, profile.MaxBitrate)
	p.BufSize = p.MaxRate
	p.ExtraVideoArgs = append([]string(nil), profile.ExtraVideoArgs...)
	return p, nil
}

// ScaleFilter fits the source into maxW x maxH preserving aspect ratio, with
// both dimensions rounded down to even and never upscaled. Unknown source
// dimensions produce an expression that ffmpeg evaluates at runtime.
func ScaleFilter(srcW, srcH, maxW, maxH int) string {
	if srcW <= 0 || srcH <= 0 {
		return fmt.Sprintf("scale='min(%d,iw)':'min(%d,ih)':force_original_aspect_ratio=decrease:force_divisible_by=2", maxW, maxH)
	}
	w, h := FitDimensions(srcW, srcH, maxW, maxH)
	return fmt.Sprintf("scale=%d:%d", w, h)
}

// FitDimensions returns the largest even dimensions no bigger than the
// source that fit inside the box with the source aspect ratio.
func FitDimensions(srcW, srcH, maxW, maxH int) (int, int) {
	scale := math.Min(1, math.Min(float64(maxW)/float64(srcW), float64(maxH)/float64(srcH)))
	w := evenFloor(int(math.Floor(float64(srcW) * scale)))
	h := evenFloor(int(math.Floor(float64(srcH) * scale)))
	return w, h
}

func evenFloor(n int) int {
	n -= n % 2
	if n < 2 {
		return 2
	}
	return n
}

// FPSCap returns the CFR output rate to force, or 0 to keep the source
// rate. Sources above the maximum are capped; invalid or sub-1 fps rates
// are pinned to the maximum.
func FPSCap(srcFPS float64, maxFPS int) int {
	if math.IsNaN(srcFPS) || srcFPS < 1 || srcFPS > float64(maxFPS) {
		return maxFPS
	}
	return 0
}

// BitrateCeiling picks the video maxrate: the explicit profile ceiling, else
// the known source bitrate, else SafetyBitrateCeiling. It is never zero.
func BitrateCeiling(src media.Bitrate, profileMax int64) int64 {
	switch {
	case profileMax > 0:
		return profileMax
	case src.Known && src.BPS > 0:
		return src.BPS
	default:
		return SafetyBitrateCeiling
	}
}

// pixelFormatFor swaps between the planar and semi-planar 8-bit 4:2:0
// layouts to match what the encoder takes natively.
func pixelFormatFor(choice hardware.EncoderChoice, requested string) string {
	if requested != "yuv420p" && requested != "nv12" {
		return requested
	}
	return choice.Dialect.SmokePixFmt
}
