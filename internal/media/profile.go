// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package media

import (
	"fmt"
	"strings"
)

// VideoCodec enumerates the output video codecs a profile may ask for.
type VideoCodec string

const (
	VideoH264 VideoCodec = "h264"
	VideoH265 VideoCodec = "h265"
)

// AudioCodec enumerates the output audio codecs.
type AudioCodec string

const (
	AudioAAC  AudioCodec = "aac"
	AudioMP3  AudioCodec = "mp3"
	AudioOpus AudioCodec = "opus"
)

// Encoder returns the ffmpeg encoder name for the audio codec.
func (c AudioCodec) Encoder() string {
	switch c {
	case AudioMP3:
		return "libmp3lame"
	case AudioOpus:
		return "libopus"
	default:
		return "aac"
	}
}

// Container enumerates output containers.
type Container string

const (
	ContainerMP4 Container = "mp4"
	ContainerMKV Container = "mkv"
	ContainerAVI Container = "avi"
)

// Extension returns the file extension without the dot.
func (c Container) Extension() string { return string(c) }

// Streamable reports whether the container supports moving the index to the
// front of the file (+faststart).
func (c Container) Streamable() bool { return c == ContainerMP4 }

// SizePolicy is the action taken when an output exceeds MaxFileSize.
type SizePolicy string

const (
	SizeSplit    SizePolicy = "split"
	SizeCompress SizePolicy = "compress"
	SizeWarn     SizePolicy = "warn"
	SizeSkip     SizePolicy = "skip"
)

// ParseSizePolicy parses a policy name case-insensitively.
func ParseSizePolicy(s string) (SizePolicy, error) {
	switch p := SizePolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case SizeSplit, SizeCompress, SizeWarn, SizeSkip:
		return p, nil
	default:
		return "", fmt.Errorf("unknown on_size_exceed policy %q (want split|compress|warn|skip)", s)
	}
}

const (
	KiB int64 = 1024
	MiB       = 1024 * KiB
	GiB       = 1024 * MiB
)

// OutputProfile describes one target deliverable. It is read-only for the
// duration of a pipeline run.
type OutputProfile struct {
	Name string

	MaxWidth  int
	MaxHeight int
	MaxFPS    int
	// Quality is the encoder quality index (0-51, lower is better).
	Quality int
	// MaxBitrate is the hard video bitrate ceiling in bps; 0 means "auto".
	MaxBitrate  int64
	VideoCodec  VideoCodec
	H264Profile string
	H264Level   string
	PixelFormat string

	AudioCodec      AudioCodec
	AudioBitrate    int64
	AudioSampleRate int
	AudioChannels   int

	Container Container
	Faststart bool
	// SubtitleLanguages is the subtitle passthrough set. Empty strips all.
	SubtitleLanguages []string

	MaxFileSize       int64
	OnSizeExceed      SizePolicy
	CompressReduction float64

	ExtraVideoArgs []string
	ExtraAudioArgs []string
}

// DefaultProfile returns the stock in-car profile: 720x540 @ 25fps h264/aac
// in mp4, split at 3.9 GiB.
func DefaultProfile() OutputProfile {
	return OutputProfile{
		Name:              "default",
		MaxWidth:          720,
		MaxHeight:         540,
		MaxFPS:            25,
		Quality:           24,
		VideoCodec:        VideoH264,
		H264Profile:       "main",
		H264Level:         "4.0",
		PixelFormat:       "yuv420p",
		AudioCodec:        AudioAAC,
		AudioBitrate:      128_000,
		AudioSampleRate:   44100,
		AudioChannels:     2,
		Container:         ContainerMP4,
		Faststart:         true,
		MaxFileSize:       39 * GiB / 10,
		OnSizeExceed:      SizeSplit,
		CompressReduction: 0.8,
	}
}

// Validate checks the profile for internal consistency. It runs before any
// subprocess is spawned.
func (p OutputProfile) Validate() error {
	var problems []string
	if p.MaxWidth < 1 || p.MaxHeight < 1 {
		problems = append(problems, fmt.Sprintf("max dimensions must be >= 1 (got %dx%d)", p.MaxWidth, p.MaxHeight))
	}
	if p.MaxFPS < 1 {
		problems = append(problems, fmt.Sprintf("max fps must be >= 1 (got %d)", p.MaxFPS))
	}
	if p.Quality < 0 || p.Quality > 51 {
		problems = append(problems, fmt.Sprintf("quality must be within 0..51 (got %d)", p.Quality))
	}
	if p.MaxBitrate < 0 {
		problems = append(problems, "max bitrate must not be negative")
	}
	switch p.VideoCodec {
	case VideoH264, VideoH265:
	default:
		problems = append(problems, fmt.Sprintf("unsupported video codec %q", p.VideoCodec))
	}
	switch p.AudioCodec {
	case AudioAAC, AudioMP3, AudioOpus:
	default:
		problems = append(problems, fmt.Sprintf("unsupported audio codec %q", p.AudioCodec))
	}
	if p.AudioBitrate <= 0 {
		problems = append(problems, "audio bitrate must be positive")
	}
	if p.AudioSampleRate <= 0 {
		problems = append(problems, "audio sample rate must be positive")
	}
	if p.AudioChannels < 1 {
		problems = append(problems, "audio channels must be >= 1")
	}
	switch p.Container {
	case ContainerMP4, ContainerMKV, ContainerAVI:
	default:
		problems = append(problems, fmt.Sprintf("unsupported container %q", p.Container))
	}
	if p.MaxFileSize <= 0 {
		problems = append(problems, "max file size must be positive")
	}
	if _, err := ParseSizePolicy(string(p.OnSizeExceed)); err != nil {
		problems = append(problems, err.Error())
	}
	if p.OnSizeExceed == SizeCompress && (p.CompressReduction <= 0 || p.CompressReduction > 1) {
		problems = append(problems, fmt.Sprintf("compress reduction must be within (0,1] (got %.2f)", p.CompressReduction))
	}
	if len(problems) > 0 {
		return &PlanningError{Profile: p.Name, Reason: strings.Join(problems, "; ")}
	}
	return nil
}
