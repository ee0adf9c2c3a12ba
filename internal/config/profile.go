// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"math"
	"strings"

	"github.com/ManuGH/mediafit/internal/log"
	"github.com/ManuGH/mediafit/internal/media"
)

// OutputProfile converts the file representation into the domain profile.
// Call Validate first; invalid numbers are passed through for
// media.OutputProfile.Validate to reject.
func (p Profile) OutputProfile() media.OutputProfile {
	maxBitrate, _ := parseMaxBitrate(p.Video.MaxBitrate)

	out := media.OutputProfile{
		Name:              p.Profile.Name,
		MaxWidth:          p.Video.MaxWidth,
		MaxHeight:         p.Video.MaxHeight,
		MaxFPS:            p.Video.MaxFPS,
		Quality:           p.Video.Quality,
		MaxBitrate:        maxBitrate,
		VideoCodec:        media.VideoCodec(strings.ToLower(p.Video.Codec)),
		H264Profile:       p.Video.Profile,
		H264Level:         p.Video.Level,
		PixelFormat:       p.Video.PixelFormat,
		AudioCodec:        media.AudioCodec(strings.ToLower(p.Audio.Codec)),
		AudioBitrate:      int64(p.Audio.BitrateKbps) * 1000,
		AudioSampleRate:   p.Audio.SampleRate,
		AudioChannels:     p.Audio.Channels,
		Container:         media.Container(strings.ToLower(p.Output.Container)),
		Faststart:         p.Output.Faststart,
		MaxFileSize:       int64(math.Round(p.Output.MaxFileSizeGB * float64(media.GiB))),
		OnSizeExceed:      media.SizePolicy(strings.ToLower(p.Output.OnSizeExceed)),
		CompressReduction: p.Output.TargetBitrateReduction,
		ExtraVideoArgs:    append([]string(nil), p.Video.ExtraArgs...),
		ExtraAudioArgs:    append([]string(nil), p.Audio.ExtraArgs...),
	}
	if p.Subtitles.Embed {
		out.SubtitleLanguages = append([]string(nil), p.Subtitles.Languages...)
	}
	return out
}

// LogConfig maps the logging section onto log.Config.
func (p Profile) LogConfig() log.Config {
	return log.Config{
		Level:      p.Logging.Level,
		Format:     p.Logging.Format,
		Service:    "mediafit",
		Version:    p.Version,
		File:       p.Logging.File,
		MaxSizeMB:  p.Logging.RotationSizeMB,
		MaxBackups: p.Logging.RotationCount,
	}
}
