// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package acquire plans and performs source downloads with yt-dlp.
//
// The format planner turns an output profile into an ordered list of
// selection layers. Layers are plain data; only Selection.String renders
// them into yt-dlp's format-selector syntax.
package acquire

import (
	"strconv"
	"strings"

	"github.com/ManuGH/mediafit/internal/media"
)

// Stream is the stream a constraint applies to.
type Stream int

const (
	StreamVideo Stream = iota
	StreamAudio
	// StreamCombined is a pre-muxed format carrying both video and audio.
	StreamCombined
)

// Field is a yt-dlp format field.
type Field string

const (
	FieldHeight Field = "height"
	FieldFPS    Field = "fps"
	FieldVCodec Field = "vcodec"
	FieldExt    Field = "ext"
	FieldABR    Field = "abr"
	FieldACodec Field = "acodec"
)

// QualityBound reports whether the field caps how much data is fetched, as
// opposed to expressing a packaging preference.
func (f Field) QualityBound() bool {
	switch f {
	case FieldHeight, FieldFPS, FieldVCodec, FieldABR, FieldACodec:
		return true
	default:
		return false
	}
}

// Op is a comparison operator in the selector syntax.
type Op string

const (
	OpLE     Op = "<="
	OpEq     Op = "="
	OpPrefix Op = "^="
	OpRegex  Op = "~="
)

// Constraint is one [field op value] atom.
type Constraint struct {
	Stream Stream
	Field  Field
	Op     Op
	Value  string
}

func (c Constraint) String() string {
	return "[" + string(c.Field) + string(c.Op) + c.Value + "]"
}

// Layer is one alternative of the selection. Separate layers pick the best
// video-only and best audio-only streams and merge them; combined layers
// pick a single pre-muxed format.
type Layer struct {
	Separate    bool
	Constraints []Constraint
}

// Atoms counts the layer's restrictions. Requiring separate streams is
// itself a restriction, so a separate layer counts one more than its
// constraints.
func (l Layer) Atoms() int {
	n := len(l.Constraints)
	if l.Separate {
		n++
	}
	return n
}

// QualityFields returns the quality-bound fields the layer constrains.
func (l Layer) QualityFields() map[Field]bool {
	out := make(map[Field]bool)
	for _, c := range l.Constraints {
		if c.Field.QualityBound() {
			out[c.Field] = true
		}
	}
	return out
}

func (l Layer) String() string {
	var b strings.Builder
	if !l.Separate {
		b.WriteString("best")
		for _, c := range l.Constraints {
			b.WriteString(c.String())
		}
		return b.String()
	}
	b.WriteString("bestvideo")
	for _, c := range l.Constraints {
		if c.Stream == StreamVideo {
			b.WriteString(c.String())
		}
	}
	b.WriteString("+bestaudio")
	for _, c := range l.Constraints {
		if c.Stream == StreamAudio {
			b.WriteString(c.String())
		}
	}
	return b.String()
}

// Selection is the ordered fallback chain for the acquisition tool.
type Selection struct {
	Layers []Layer

	MaxHeight    int
	MaxFPS       int
	MaxAudioKbps int
	// Ext is the preferred source container extension.
	Ext string
	// MergeFormat is the container yt-dlp merges separate streams into.
	MergeFormat string
}

// String renders the selection in yt-dlp format syntax, layers joined by "/".
func (s Selection) String() string {
	parts := make([]string, len(s.Layers))
	for i, l := range s.Layers {
		parts[i] = l.String()
	}
	return strings.Join(parts, "/")
}

// HeightCeiling maps the profile height to the smallest common source
// height that still gives the scaler headroom.
func HeightCeiling(maxHeight int) int {
	switch {
	case maxHeight <= 480:
		return 480
	case maxHeight <= 576:
		return 720
	case maxHeight <= 720:
		return 720
	case maxHeight <= 1080:
		return 1080
	default:
		return maxHeight
	}
}

// FPSCeiling allows a little headroom over the profile cap (30 fps sources
// are common for a 25 fps target) but never more than 60.
func FPSCeiling(maxFPS int) int {
	return min(60, maxFPS+5)
}

// PreferredExt is the source container most likely to remux cleanly into c.
func PreferredExt(c media.Container) string {
	if c == media.ContainerMKV {
		return "webm"
	}
	return "mp4"
}

func videoCodecPattern(c media.VideoCodec) string {
	if c == media.VideoH265 {
		return "'^(hvc1|hev1|hevc)'"
	}
	return "'^(avc|h264)'"
}

func audioCodecPrefix(c media.AudioCodec) string {
	switch c {
	case media.AudioMP3:
		return "mp3"
	case media.AudioOpus:
		return "opus"
	default:
		return "mp4a"
	}
}

// PlanSourceFormat builds the layered selection for profile p. Layers relax
// constraints in order; the final layer is unconstrained so the chain
// always resolves to something.
func PlanSourceFormat(p media.OutputProfile) Selection {
	height := HeightCeiling(p.MaxHeight)
	fps := FPSCeiling(p.MaxFPS)
	abr := int(p.AudioBitrate / 1000)
	ext := PreferredExt(p.Container)

	vHeight := Constraint{StreamVideo, FieldHeight, OpLE, strconv.Itoa(height)}
	vFPS := Constraint{StreamVideo, FieldFPS, OpLE, strconv.Itoa(fps)}
	vCodec := Constraint{StreamVideo, FieldVCodec, OpRegex, videoCodecPattern(p.VideoCodec)}
	vExt := Constraint{StreamVideo, FieldExt, OpEq, ext}
	aABR := Constraint{StreamAudio, FieldABR, OpLE, strconv.Itoa(abr)}
	aCodec := Constraint{StreamAudio, FieldACodec, OpPrefix, audioCodecPrefix(p.AudioCodec)}

	layers := []Layer{
		{Separate: true, Constraints: []Constraint{vHeight, vFPS, vCodec, vExt, aABR, aCodec}},
		{Separate: true, Constraints: []Constraint{vHeight, vFPS, vExt, aABR}},
		{Separate: true, Constraints: []Constraint{vHeight, vFPS, aABR}},
		{Separate: true, Constraints: []Constraint{vHeight}},
		{Constraints: []Constraint{{StreamCombined, FieldHeight, OpLE, strconv.Itoa(height)}}},
		{Constraints: []Constraint{{StreamCombined, FieldExt, OpEq, ext}}},
		{},
	}

	return Selection{
		Layers:       layers,
		MaxHeight:    height,
		MaxFPS:       fps,
		MaxAudioKbps: abr,
		Ext:          ext,
		MergeFormat:  mergeFormat(p.Container),
	}
}

func mergeFormat(c media.Container) string {
	if c == media.ContainerMKV {
		return "mkv"
	}
	return "mp4"
}
