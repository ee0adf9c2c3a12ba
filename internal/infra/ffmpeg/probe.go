// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package ffmpeg

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/ManuGH/mediafit/internal/log"
	"github.com/ManuGH/mediafit/internal/media"
	"github.com/ManuGH/mediafit/internal/procgroup"
	"github.com/rs/zerolog"
)

const probeTimeout = 30 * time.Second

// ProbeFunc runs ffprobe and returns stdout and stderr separately.
type ProbeFunc func(ctx context.Context, bin string, args ...string) (stdout, stderr []byte, err error)

func execProbe(ctx context.Context, bin string, args ...string) ([]byte, []byte, error) {
	// #nosec G204 -- bin is trusted from the profile; args are fixed except the opaque path
	cmd := exec.CommandContext(ctx, bin, args...)
	procgroup.Bind(cmd, 2*time.Second)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stdout.Bytes(), stderr.Bytes(), err
}

// Analyzer extracts SourceCharacteristics from local media files.
type Analyzer struct {
	bin    string
	run    ProbeFunc
	logger zerolog.Logger
}

// AnalyzerOption customises an Analyzer.
type AnalyzerOption func(*Analyzer)

// WithProbeFunc replaces subprocess execution, for tests.
func WithProbeFunc(fn ProbeFunc) AnalyzerOption {
	return func(a *Analyzer) { a.run = fn }
}

// NewAnalyzer creates an analyzer backed by the ffprobe binary at bin.
func NewAnalyzer(bin string, opts ...AnalyzerOption) *Analyzer {
	if bin == "" {
		bin = "ffprobe"
	}
	a := &Analyzer{bin: bin, run: execProbe, logger: log.WithComponent("analyzer")}
	for _, o := range opts {
		o(a)
	}
	return a
}

// ProbeArgs returns the ffprobe invocation for path.
func ProbeArgs(path string) []string {
	return []string{
		"-v", "error",
		"-show_entries",
		"format=duration,bit_rate,size:" +
			"stream=codec_type,codec_name,width,height,r_frame_rate,avg_frame_rate,bit_rate:" +
			"stream_tags=rotate:stream_side_data=rotation:" +
			"stream_disposition=attached_pic",
		"-of", "default",
		path,
	}
}

// Analyze probes path. A non-zero ffprobe exit or a file with no streams is
// an *media.AnalysisError.
func (a *Analyzer) Analyze(ctx context.Context, path string) (media.SourceCharacteristics, error) {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	stdout, stderr, err := a.run(ctx, a.bin, ProbeArgs(path)...)
	if err != nil {
		if ctx.Err() != nil && errors.Is(ctx.Err(), context.Canceled) {
			return media.SourceCharacteristics{}, ctx.Err()
		}
		return media.SourceCharacteristics{}, &media.AnalysisError{
			Path: path,
			Err:  fmt.Errorf("ffprobe: %w (stderr: %s)", err, truncate(string(stderr), 4096)),
		}
	}

	chars, streams := ParseProbeOutput(stdout)
	if streams == 0 {
		return media.SourceCharacteristics{}, &media.AnalysisError{Path: path, Err: errors.New("no streams found")}
	}
	chars.Path = path

	a.logger.Info().
		Str(log.FieldPath, path).
		Dur(log.FieldDuration, chars.Duration).
		Str(log.FieldResolution, fmt.Sprintf("%dx%d", chars.Width, chars.Height)).
		Int("rotation", chars.Rotation).
		Float64(log.FieldFPS, chars.FPS()).
		Str(log.FieldCodec, chars.VideoCodec).
		Str(log.FieldBitrate, chars.Bitrate.String()).
		Bool("has_video", chars.HasVideo).
		Bool("has_audio", chars.HasAudio).
		Msg("source analyzed")
	return chars, nil
}

// ParseProbeOutput reads ffprobe's default writer output: [STREAM] and
// [FORMAT] sections of key=value lines. Unknown keys are ignored. It returns
// the number of streams seen.
func ParseProbeOutput(out []byte) (media.SourceCharacteristics, int) {
	var (
		chars        media.SourceCharacteristics
		streams      int
		section      string
		cur          probeStream
		formatRate   media.Bitrate
		videoBitrate media.Bitrate
	)

	flush := func() {
		streams++
		switch cur.codecType {
		case "video":
			if cur.attachedPic || chars.HasVideo {
				return
			}
			chars.HasVideo = true
			chars.VideoCodec = cur.codecName
			chars.Width, chars.Height = cur.width, cur.height
			chars.Rotation = cur.rotation()
			chars.FrameRate = cur.frameRate()
			videoBitrate = cur.bitrate
		case "audio":
			if !chars.HasAudio {
				chars.HasAudio = true
				chars.AudioCodec = cur.codecName
			}
		}
	}

	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		switch line {
		case "[STREAM]":
			section, cur = "stream", probeStream{}
			continue
		case "[/STREAM]":
			flush()
			section = ""
			continue
		case "[FORMAT]":
			section = "format"
			continue
		case "[/FORMAT]":
			section = ""
			continue
		}
		key, val, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		switch section {
		case "stream":
			cur.set(key, val)
		case "format":
			switch key {
			case "duration":
				if secs, err := strconv.ParseFloat(val, 64); err == nil && secs > 0 && !math.IsInf(secs, 0) {
					chars.Duration = time.Duration(secs * float64(time.Second))
				}
			case "size":
				if n, err := strconv.ParseInt(val, 10, 64); err == nil {
					chars.Size = n
				}
			case "bit_rate":
				formatRate = media.ParseBitrate(val)
			}
		}
	}

	// The container rate includes audio; prefer the video stream's own.
	chars.Bitrate = videoBitrate
	if !chars.Bitrate.Known {
		chars.Bitrate = formatRate
	}
	return chars, streams
}

type probeStream struct {
	codecType   string
	codecName   string
	width       int
	height      int
	rFrameRate  string
	avgRate     string
	bitrate     media.Bitrate
	attachedPic bool
	// The display matrix wins over the legacy rotate tag.
	sideRotation string
	tagRotation  string
}

func (s *probeStream) set(key, val string) {
	switch key {
	case "codec_type":
		s.codecType = val
	case "codec_name":
		s.codecName = val
	case "width":
		s.width, _ = strconv.Atoi(val)
	case "height":
		s.height, _ = strconv.Atoi(val)
	case "r_frame_rate":
		s.rFrameRate = val
	case "avg_frame_rate":
		s.avgRate = val
	case "bit_rate":
		s.bitrate = media.ParseBitrate(val)
	case "DISPOSITION:attached_pic":
		s.attachedPic = val == "1"
	case "rotation":
		s.sideRotation = val
	case "TAG:rotate":
		s.tagRotation = val
	}
}

func (s probeStream) rotation() int {
	for _, raw := range []string{s.sideRotation, s.tagRotation} {
		if deg, err := strconv.ParseFloat(raw, 64); err == nil {
			return media.NormalizeRotation(deg)
		}
	}
	return 0
}

// frameRate prefers the average rate and falls back to the base rate.
func (s probeStream) frameRate() media.Rational {
	for _, raw := range []string{s.avgRate, s.rFrameRate} {
		if r, err := media.ParseRational(raw); err == nil && r.Float() > 0 {
			return r
		}
	}
	r, _ := media.ParseRational(s.rFrameRate)
	return r
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
