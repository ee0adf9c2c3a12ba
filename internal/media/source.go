// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package media holds the domain types shared by the planning and execution
// stages: output profiles, probed source characteristics and the error
// taxonomy reported by every stage of a conversion.
package media

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Rational is a frame rate expressed as numerator/denominator.
type Rational struct {
	Num int64
	Den int64
}

// ParseRational parses "30000/1001", "25/1" or a bare "25".
// A zero or missing denominator is normalized to 1.
func ParseRational(s string) (Rational, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Rational{}, fmt.Errorf("empty rational")
	}
	numStr, denStr, hasDen := strings.Cut(s, "/")
	num, err := strconv.ParseInt(strings.TrimSpace(numStr), 10, 64)
	if err != nil {
		f, ferr := strconv.ParseFloat(strings.TrimSpace(numStr), 64)
		if ferr != nil || hasDen {
			return Rational{}, fmt.Errorf("parse rational %q: %w", s, err)
		}
		// "29.97" style: keep three decimals of precision.
		return Rational{Num: int64(f * 1000), Den: 1000}, nil
	}
	den := int64(1)
	if hasDen {
		d, err := strconv.ParseInt(strings.TrimSpace(denStr), 10, 64)
		if err != nil {
			return Rational{}, fmt.Errorf("parse rational %q: %w", s, err)
		}
		if d != 0 {
			den = d
		}
	}
	return Rational{Num: num, Den: den}, nil
}

// Float returns the rate as frames per second. Invalid rates return 0.
func (r Rational) Float() float64 {
	if r.Den == 0 {
		return 0
	}
	return float64(r.Num) / float64(r.Den)
}

func (r Rational) String() string {
	if r.Den == 0 || r.Den == 1 {
		return strconv.FormatInt(r.Num, 10)
	}
	return fmt.Sprintf("%d/%d", r.Num, r.Den)
}

// Bitrate is a bits-per-second value that may be unknown. An unknown bitrate
// means "no cap applies", which is not the same as zero.
type Bitrate struct {
	BPS   int64
	Known bool
}

// KnownBitrate returns a known bitrate.
func KnownBitrate(bps int64) Bitrate {
	return Bitrate{BPS: bps, Known: bps > 0}
}

// ParseBitrate accepts ffprobe values. "N/A", "unknown" and other
// non-numeric or non-positive values yield an unknown bitrate.
func ParseBitrate(s string) Bitrate {
	v, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || v <= 0 {
		return Bitrate{}
	}
	return Bitrate{BPS: v, Known: true}
}

func (b Bitrate) String() string {
	if !b.Known {
		return "unknown"
	}
	return strconv.FormatInt(b.BPS/1000, 10) + "k"
}

// SourceCharacteristics is what the analyzer learned about one local input.
// It is immutable once produced.
type SourceCharacteristics struct {
	Path      string
	FrameRate Rational
	Bitrate   Bitrate
	HasVideo  bool
	HasAudio  bool
	Duration  time.Duration
	Width     int
	Height    int
	// Rotation is the display rotation in degrees, normalized to
	// 0, 90, 180 or 270. Width and Height are the coded size.
	Rotation   int
	Size       int64
	VideoCodec string
	AudioCodec string
}

// FPS returns the detected frame rate in frames per second.
func (s SourceCharacteristics) FPS() float64 {
	return s.FrameRate.Float()
}

// DisplaySize returns the frame size after rotation, which is what ffmpeg
// hands to the filter graph when it autorotates.
func (s SourceCharacteristics) DisplaySize() (int, int) {
	if s.Rotation == 90 || s.Rotation == 270 {
		return s.Height, s.Width
	}
	return s.Width, s.Height
}

// NormalizeRotation maps any degree value (display matrices report -90) to
// 0, 90, 180 or 270, rounding to the nearest quarter turn.
func NormalizeRotation(deg float64) int {
	q := int(math.Round(deg/90)) % 4
	if q < 0 {
		q += 4
	}
	return q * 90
}

// VideoInfo is the remote metadata the acquisition tool reports for a URL.
type VideoInfo struct {
	ID       string        `json:"id"`
	Title    string        `json:"title"`
	Uploader string        `json:"uploader,omitempty"`
	Duration time.Duration `json:"duration"`
	URL      string        `json:"url,omitempty"`
}
