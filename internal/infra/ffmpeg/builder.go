// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package ffmpeg

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ManuGH/mediafit/internal/media"
	"github.com/ManuGH/mediafit/internal/transcoder"
)

// BuildArgs serializes planned parameters into an ffmpeg argument list:
// global flags, input (with optional window), stream mapping, video,
// audio, subtitle, stripping, muxer and output.
func BuildArgs(p transcoder.EncodeParameters) []string {
	args := []string{
		"-hide_banner", "-nostdin", "-y",
		"-loglevel", "warning",
		"-nostats", "-progress", "pipe:2",
	}

	// Input-side seek lands on the keyframe before Start; re-encoding trims
	// accurately from there.
	if p.Start > 0 {
		args = append(args, "-ss", formatSeconds(p.Start))
	}
	args = append(args, "-i", p.Input)
	if p.Duration > 0 {
		args = append(args, "-t", formatSeconds(p.Duration))
	}

	args = append(args, mapArgs(p)...)

	if p.AudioOnly {
		args = append(args, "-vn")
	} else {
		args = append(args, videoArgs(p)...)
	}

	if p.AudioCodec != "" {
		args = append(args,
			"-c:a", p.AudioCodec,
			"-b:a", fmt.Sprintf("%dk", p.AudioBitrate/1000),
			"-ar", strconv.Itoa(p.AudioSampleRate),
			"-ac", strconv.Itoa(p.AudioChannels),
		)
		args = append(args, p.ExtraAudioArgs...)
	} else {
		args = append(args, "-an")
	}

	if len(p.SubtitleLanguages) > 0 {
		args = append(args, "-c:s", subtitleCodec(p.Container))
	} else {
		args = append(args, "-sn")
	}
	if p.StripData {
		args = append(args, "-dn")
	}
	if p.StripChapters {
		args = append(args, "-map_chapters", "-1")
	}
	if p.StripMetadata {
		args = append(args, "-map_metadata", "-1")
	}
	if p.Streamable {
		args = append(args, "-movflags", "+faststart")
	}

	args = append(args, "-f", muxer(p.Container), p.Output)
	return args
}

func mapArgs(p transcoder.EncodeParameters) []string {
	var args []string
	if !p.AudioOnly {
		// 0:V skips attached cover pictures.
		args = append(args, "-map", "0:V:0")
	}
	if p.AudioCodec != "" {
		args = append(args, "-map", "0:a:0?")
	}
	for _, lang := range p.SubtitleLanguages {
		args = append(args, "-map", "0:s:m:language:"+lang+"?")
	}
	return args
}

func videoArgs(p transcoder.EncodeParameters) []string {
	args := []string{"-c:v", p.VideoCodec}
	if p.Preset != "" {
		args = append(args, "-preset", p.Preset)
	}
	args = append(args, p.RateControl...)
	if p.MaxRate > 0 {
		args = append(args,
			"-maxrate", fmt.Sprintf("%dk", p.MaxRate/1000),
			"-bufsize", fmt.Sprintf("%dk", p.BufSize/1000),
		)
	}
	if p.H264Profile != "" {
		args = append(args, "-profile:v", p.H264Profile)
	}
	if p.H264Level != "" {
		args = append(args, "-level:v", p.H264Level)
	}
	if p.PixelFormat != "" {
		args = append(args, "-pix_fmt", p.PixelFormat)
	}

	var filters []string
	if p.Scale != "" {
		filters = append(filters, p.Scale)
	}
	if p.FPSCap > 0 {
		filters = append(filters, "fps="+strconv.Itoa(p.FPSCap))
	}
	if len(filters) > 0 {
		args = append(args, "-vf", strings.Join(filters, ","))
	}
	if p.FPSCap > 0 {
		args = append(args, "-fps_mode", "cfr")
	}
	if p.ForceKeyframe {
		args = append(args, "-force_key_frames", "expr:eq(n,0)")
	}
	return append(args, p.ExtraVideoArgs...)
}

func subtitleCodec(c media.Container) string {
	if c == media.ContainerMP4 {
		return "mov_text"
	}
	return "copy"
}

func muxer(c media.Container) string {
	switch c {
	case media.ContainerMKV:
		return "matroska"
	case media.ContainerAVI:
		return "avi"
	default:
		return "mp4"
	}
}

func formatSeconds(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', 3, 64)
}
