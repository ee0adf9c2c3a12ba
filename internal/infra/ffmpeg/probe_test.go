// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package ffmpeg

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ManuGH/mediafit/internal/media"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const probeVideo = `[STREAM]
codec_name=vp9
codec_type=video
width=3840
height=2160
r_frame_rate=60/1
avg_frame_rate=60/1
bit_rate=N/A
DISPOSITION:attached_pic=0
[/STREAM]
[STREAM]
codec_name=opus
codec_type=audio
r_frame_rate=0/0
avg_frame_rate=0/0
bit_rate=N/A
DISPOSITION:attached_pic=0
[/STREAM]
[FORMAT]
duration=634.521000
size=1048576000
bit_rate=13221000
[/FORMAT]
`

const probeAudioWithCover = `[STREAM]
codec_name=aac
codec_type=audio
bit_rate=128000
DISPOSITION:attached_pic=0
[/STREAM]
[STREAM]
codec_name=mjpeg
codec_type=video
width=600
height=600
r_frame_rate=90000/1
avg_frame_rate=0/0
DISPOSITION:attached_pic=1
[/STREAM]
[FORMAT]
duration=180.0
size=2900000
bit_rate=unknown
[/FORMAT]
`

func TestParseProbeOutput_Video(t *testing.T) {
	chars, streams := ParseProbeOutput([]byte(probeVideo))

	assert.Equal(t, 2, streams)
	assert.True(t, chars.HasVideo)
	assert.True(t, chars.HasAudio)
	assert.Equal(t, 3840, chars.Width)
	assert.Equal(t, 2160, chars.Height)
	assert.InDelta(t, 60.0, chars.FPS(), 1e-9)
	assert.Equal(t, "vp9", chars.VideoCodec)
	assert.Equal(t, "opus", chars.AudioCodec)
	assert.Equal(t, int64(1048576000), chars.Size)
	assert.Equal(t, 634521*time.Millisecond, chars.Duration)
	assert.Equal(t, media.KnownBitrate(13221000), chars.Bitrate, "falls back to container bitrate")
}

func TestParseProbeOutput_Rotation(t *testing.T) {
	sideData := `[STREAM]
codec_type=video
width=1920
height=1080
[SIDE_DATA]
rotation=-90
[/SIDE_DATA]
TAG:rotate=180
[/STREAM]
`
	chars, _ := ParseProbeOutput([]byte(sideData))
	assert.Equal(t, 270, chars.Rotation, "display matrix wins over the rotate tag")
	w, h := chars.DisplaySize()
	assert.Equal(t, [2]int{1080, 1920}, [2]int{w, h})

	chars, _ = ParseProbeOutput([]byte("[STREAM]\ncodec_type=video\nwidth=1920\nheight=1080\nTAG:rotate=90\n[/STREAM]\n"))
	assert.Equal(t, 90, chars.Rotation)

	chars, _ = ParseProbeOutput([]byte(probeVideo))
	assert.Zero(t, chars.Rotation)
}

func TestParseProbeOutput_CoverArtIsNotVideo(t *testing.T) {
	chars, streams := ParseProbeOutput([]byte(probeAudioWithCover))

	assert.Equal(t, 2, streams)
	assert.False(t, chars.HasVideo)
	assert.True(t, chars.HasAudio)
	assert.False(t, chars.Bitrate.Known, "unknown bitrate is not zero")
}

func TestParseProbeOutput_FrameRateFallbacks(t *testing.T) {
	out := "[STREAM]\ncodec_type=video\nr_frame_rate=30000/1001\navg_frame_rate=0/0\nbit_rate=900000\nunexpected_key=1\n[/STREAM]\n"
	chars, _ := ParseProbeOutput([]byte(out))

	assert.InDelta(t, 29.97, chars.FPS(), 0.001)
	assert.Equal(t, media.KnownBitrate(900_000), chars.Bitrate)

	out = "[STREAM]\ncodec_type=video\nr_frame_rate=25\n[/STREAM]\n"
	chars, _ = ParseProbeOutput([]byte(out))
	assert.Equal(t, media.Rational{Num: 25, Den: 1}, chars.FrameRate, "absent denominator is 1")
}

func TestAnalyze_Errors(t *testing.T) {
	t.Run("non-zero exit", func(t *testing.T) {
		a := NewAnalyzer("ffprobe", WithProbeFunc(func(context.Context, string, ...string) ([]byte, []byte, error) {
			return nil, []byte("missing.mp4: No such file or directory"), errors.New("exit status 1")
		}))
		_, err := a.Analyze(context.Background(), "missing.mp4")

		var ae *media.AnalysisError
		require.True(t, errors.As(err, &ae))
		assert.Equal(t, "missing.mp4", ae.Path)
		assert.Contains(t, err.Error(), "No such file")
	})

	t.Run("zero streams", func(t *testing.T) {
		a := NewAnalyzer("ffprobe", WithProbeFunc(func(context.Context, string, ...string) ([]byte, []byte, error) {
			return []byte("[FORMAT]\nduration=N/A\n[/FORMAT]\n"), nil, nil
		}))
		_, err := a.Analyze(context.Background(), "empty.bin")

		var ae *media.AnalysisError
		require.True(t, errors.As(err, &ae))
	})
}

func TestAnalyze_Success(t *testing.T) {
	var gotArgs []string
	a := NewAnalyzer("/opt/ffprobe", WithProbeFunc(func(_ context.Context, bin string, args ...string) ([]byte, []byte, error) {
		assert.Equal(t, "/opt/ffprobe", bin)
		gotArgs = args
		return []byte(probeVideo), nil, nil
	}))

	chars, err := a.Analyze(context.Background(), "/in/clip.webm")
	require.NoError(t, err)
	assert.Equal(t, "/in/clip.webm", chars.Path)
	assert.Equal(t, "/in/clip.webm", gotArgs[len(gotArgs)-1])
}
