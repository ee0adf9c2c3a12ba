// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package hardware decides which video encoder a run uses.
//
// Selection is two-tier, mirroring a fail-closed preflight:
//
//  1. The encoder must be compiled into the local ffmpeg (-encoders).
//  2. A real 5-frame smoke encode must succeed on this machine.
//
// Only vendors passing both are eligible; the software encoder is never
// probed and is always the last resort.
package hardware

import (
	"fmt"
	"runtime"
	"strconv"

	"github.com/ManuGH/mediafit/internal/media"
)

// Vendor identifies an encoder family.
type Vendor string

const (
	VendorNVIDIA   Vendor = "nvidia"
	VendorAMD      Vendor = "amd"
	VendorIntel    Vendor = "intel"
	VendorSoftware Vendor = "software"
)

// DefaultPriority is the hardware probe order. Software is implied last.
var DefaultPriority = []Vendor{VendorNVIDIA, VendorAMD, VendorIntel}

// Dialect is the per-vendor argument vocabulary.
type Dialect struct {
	// H264 and HEVC are the ffmpeg encoder names.
	H264 string
	HEVC string
	// Preset is the vendor's balanced speed/quality preset.
	Preset string
	// SmokePixFmt is the pixel format fed to the smoke encode.
	SmokePixFmt string
	// MaxSessions caps concurrent encodes on this encoder.
	MaxSessions int

	rateControl func(quality int) []string
}

// RateControl returns the quality-targeting arguments for index q (0-51).
func (d Dialect) RateControl(q int) []string {
	if d.rateControl == nil {
		return nil
	}
	return d.rateControl(q)
}

// EncoderFor returns the encoder name for the requested output codec.
func (d Dialect) EncoderFor(codec media.VideoCodec) string {
	if codec == media.VideoH265 {
		return d.HEVC
	}
	return d.H264
}

// Dialects maps every vendor to its argument vocabulary.
var Dialects = map[Vendor]Dialect{
	VendorNVIDIA: {
		H264:        "h264_nvenc",
		HEVC:        "hevc_nvenc",
		Preset:      "p4",
		SmokePixFmt: "yuv420p",
		MaxSessions: 3,
		rateControl: func(q int) []string {
			return []string{"-rc", "vbr", "-cq", strconv.Itoa(q)}
		},
	},
	VendorAMD: {
		H264:        "h264_amf",
		HEVC:        "hevc_amf",
		Preset:      "balanced",
		SmokePixFmt: "nv12",
		MaxSessions: 4,
		rateControl: func(q int) []string {
			qs := strconv.Itoa(q)
			return []string{"-rc", "vbr_latency", "-qp_i", qs, "-qp_p", qs}
		},
	},
	VendorIntel: {
		H264:        "h264_qsv",
		HEVC:        "hevc_qsv",
		Preset:      "medium",
		SmokePixFmt: "nv12",
		MaxSessions: 4,
		rateControl: func(q int) []string {
			return []string{"-global_quality", strconv.Itoa(q)}
		},
	},
	VendorSoftware: {
		H264:        "libx264",
		HEVC:        "libx265",
		Preset:      "medium",
		SmokePixFmt: "yuv420p",
		MaxSessions: softwareSessions(),
		rateControl: func(q int) []string {
			return []string{"-crf", strconv.Itoa(q)}
		},
	},
}

func softwareSessions() int {
	n := runtime.NumCPU() / 2
	if n < 1 {
		return 1
	}
	return n
}

// EncoderChoice is the selected vendor and its dialect. It is a plain value:
// compute it once and pass it to whoever plans encodes.
type EncoderChoice struct {
	Vendor  Vendor
	Dialect Dialect
}

// Choose returns the EncoderChoice for v.
func Choose(v Vendor) EncoderChoice {
	d, ok := Dialects[v]
	if !ok {
		v, d = VendorSoftware, Dialects[VendorSoftware]
	}
	return EncoderChoice{Vendor: v, Dialect: d}
}

// Software is the terminal fallback choice.
func Software() EncoderChoice { return Choose(VendorSoftware) }

// IsHardware reports whether the choice uses a GPU encoder.
func (c EncoderChoice) IsHardware() bool {
	return c.Vendor != VendorSoftware && c.Vendor != ""
}

func (c EncoderChoice) String() string {
	return fmt.Sprintf("%s (%s)", c.Dialect.H264, c.Vendor)
}

// ParsePriority maps encoder names (h264_nvenc, h264_amf, h264_qsv, libx264)
// to a vendor probe order. libx264 is accepted and ignored: software is
// always last. An empty list yields DefaultPriority; a list naming only
// libx264 yields an empty, non-nil order that probes no hardware.
func ParsePriority(names []string) ([]Vendor, error) {
	if len(names) == 0 {
		return append([]Vendor(nil), DefaultPriority...), nil
	}
	byEncoder := make(map[string]Vendor, len(Dialects))
	for v, d := range Dialects {
		byEncoder[d.H264] = v
	}
	seen := make(map[Vendor]bool)
	out := []Vendor{}
	for _, n := range names {
		v, ok := byEncoder[n]
		if !ok {
			return nil, fmt.Errorf("unknown encoder %q", n)
		}
		if v == VendorSoftware || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out, nil
}
