// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package ffmpeg

import (
	"testing"
	"time"

	"github.com/ManuGH/mediafit/internal/hardware"
	"github.com/ManuGH/mediafit/internal/media"
	"github.com/ManuGH/mediafit/internal/transcoder"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func TestBuildArgs_Video(t *testing.T) {
	chars := media.SourceCharacteristics{
		Path:      "/in/src.webm",
		FrameRate: media.Rational{Num: 60, Den: 1},
		Bitrate:   media.KnownBitrate(900_000),
		HasVideo:  true,
		HasAudio:  true,
		Width:     3840,
		Height:    2160,
	}
	profile := media.DefaultProfile()
	profile.MaxHeight = 576

	p, err := transcoder.PlanEncode(chars, profile, hardware.Choose(hardware.VendorNVIDIA))
	require.NoError(t, err)
	p.Output = "/out/src.mp4"

	want := []string{
		"-hide_banner", "-nostdin", "-y", "-loglevel", "warning", "-nostats", "-progress", "pipe:2",
		"-i", "/in/src.webm",
		"-map", "0:V:0", "-map", "0:a:0?",
		"-c:v", "h264_nvenc", "-preset", "p4", "-rc", "vbr", "-cq", "24",
		"-maxrate", "900k", "-bufsize", "900k",
		"-profile:v", "main", "-level:v", "4.0", "-pix_fmt", "yuv420p",
		"-vf", "scale=720:404,fps=25", "-fps_mode", "cfr",
		"-c:a", "aac", "-b:a", "128k", "-ar", "44100", "-ac", "2",
		"-sn", "-dn", "-map_chapters", "-1", "-map_metadata", "-1",
		"-movflags", "+faststart",
		"-f", "mp4", "/out/src.mp4",
	}
	if diff := cmp.Diff(want, BuildArgs(p)); diff != "" {
		t.Errorf("BuildArgs mismatch (-want +got):\n%s", diff)
	}
}

func TestBuildArgs_WindowAndSubtitles(t *testing.T) {
	p := transcoder.EncodeParameters{
		Input:             "/out/big.mkv",
		VideoCodec:        "libx264",
		RateControl:       []string{"-crf", "24"},
		MaxRate:           2_000_000,
		BufSize:           2_000_000,
		Scale:             "scale=640:360",
		AudioCodec:        "libopus",
		AudioBitrate:      96_000,
		AudioSampleRate:   48000,
		AudioChannels:     2,
		SubtitleLanguages: []string{"en"},
		Container:         media.ContainerMKV,
	}.Window("/out/big_part002.mkv", 90*time.Second, 45500*time.Millisecond)

	want := []string{
		"-hide_banner", "-nostdin", "-y", "-loglevel", "warning", "-nostats", "-progress", "pipe:2",
		"-ss", "90.000", "-i", "/out/big.mkv", "-t", "45.500",
		"-map", "0:V:0", "-map", "0:a:0?", "-map", "0:s:m:language:en?",
		"-c:v", "libx264", "-crf", "24", "-maxrate", "2000k", "-bufsize", "2000k",
		"-vf", "scale=640:360", "-force_key_frames", "expr:eq(n,0)",
		"-c:a", "libopus", "-b:a", "96k", "-ar", "48000", "-ac", "2",
		"-c:s", "copy",
		"-f", "matroska", "/out/big_part002.mkv",
	}
	if diff := cmp.Diff(want, BuildArgs(p)); diff != "" {
		t.Errorf("BuildArgs mismatch (-want +got):\n%s", diff)
	}
}

func TestBuildArgs_AudioOnly(t *testing.T) {
	chars := media.SourceCharacteristics{Path: "/in/pod.m4a", HasAudio: true}
	p, err := transcoder.PlanEncode(chars, media.DefaultProfile(), hardware.Software())
	require.NoError(t, err)
	p.Output = "/out/pod.mp4"

	want := []string{
		"-hide_banner", "-nostdin", "-y", "-loglevel", "warning", "-nostats", "-progress", "pipe:2",
		"-i", "/in/pod.m4a",
		"-map", "0:a:0?",
		"-vn",
		"-c:a", "aac", "-b:a", "128k", "-ar", "44100", "-ac", "2",
		"-sn", "-dn", "-map_chapters", "-1", "-map_metadata", "-1",
		"-movflags", "+faststart",
		"-f", "mp4", "/out/pod.mp4",
	}
	if diff := cmp.Diff(want, BuildArgs(p)); diff != "" {
		t.Errorf("BuildArgs mismatch (-want +got):\n%s", diff)
	}
}
