// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package transcoder turns probed source characteristics and an output
// profile into the concrete parameters of one encode.
package transcoder

import (
	"time"

	"github.com/ManuGH/mediafit/internal/hardware"
	"github.com/ManuGH/mediafit/internal/media"
)

// SafetyBitrateCeiling is the video bitrate cap used when neither the
// profile nor the source supplies one.
const SafetyBitrateCeiling int64 = 4_000_000

// EncodeParameters is one fully planned encode. Zero values mean "not applied".
type EncodeParameters struct {
	Input  string
	Output string

	// Start and Duration select a time window of the input (split parts).
	Start    time.Duration
	Duration time.Duration
	// ForceKeyframe forces an IDR at the first output frame.
	ForceKeyframe bool

	// AudioOnly drops video entirely: no scale, no fps, no video codec.
	AudioOnly bool

	Encoder     hardware.EncoderChoice
	VideoCodec  string // ffmpeg encoder name
	Preset      string
	RateControl []string
	H264Profile string
	H264Level   string
	PixelFormat string

	// Scale is a complete scale filter, e.g. "scale=720:404".
	Scale string
	// FPSCap forces constant frame rate output at this rate.
	FPSCap int

	// MaxRate and BufSize bound the video bitrate in bps.
	MaxRate int64
	BufSize int64

	AudioCodec      string // ffmpeg encoder name
	AudioBitrate    int64
	AudioSampleRate int
	AudioChannels   int

	// SubtitleLanguages are passed through; all other subtitles are dropped.
	SubtitleLanguages []string
	StripData         bool
	StripChapters     bool
	StripMetadata     bool

	Container media.Container
	// Streamable moves the index to the front of the file (+faststart).
	Streamable bool

	ExtraVideoArgs []string
	ExtraAudioArgs []string
}

// HasVideo reports whether the encode produces a video stream.
func (p EncodeParameters) HasVideo() bool { return !p.AudioOnly }

// Window returns a copy limited to [start, start+dur) with a keyframe at
// the first frame, writing to output.
func (p EncodeParameters) Window(output string, start, dur time.Duration) EncodeParameters {
	p.Output = output
	p.Start = start
	p.Duration = dur
	p.ForceKeyframe = true
	return p
}

// WithEncoder returns a copy using choice, re-deriving the codec dialect.
func (p EncodeParameters) WithEncoder(choice hardware.EncoderChoice, codec media.VideoCodec, quality int) EncodeParameters {
	if p.AudioOnly {
		return p
	}
	p.Encoder = choice
	p.VideoCodec = choice.Dialect.EncoderFor(codec)
	p.Preset = choice.Dialect.Preset
	p.RateControl = choice.Dialect.RateControl(quality)
	p.PixelFormat = pixelFormatFor(choice, p.PixelFormat)
	return p
}

// WithBitrate lowers the video bitrate ceiling to bps. It never raises it.
func (p EncodeParameters) WithBitrate(bps int64) EncodeParameters {
	if p.AudioOnly || bps <= 0 {
		return p
	}
	if p.MaxRate == 0 || bps < p.MaxRate {
		p.MaxRate = bps
		p.BufSize = bps
	}
	return p
}
