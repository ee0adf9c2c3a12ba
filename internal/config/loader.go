// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Loader handles profile loading with precedence
type Loader struct {
	configPath      string
	version         string
	ConsumedEnvKeys map[string]struct{} // Mechanical tracking of consumed keys
}

// NewLoader creates a new profile loader. An empty path loads defaults + ENV.
func NewLoader(configPath, version string) *Loader {
	return &Loader{
		configPath:      configPath,
		version:         version,
		ConsumedEnvKeys: make(map[string]struct{}),
	}
}

// Path returns the profile file the loader reads, if any.
func (l *Loader) Path() string { return l.configPath }

func (l *Loader) envString(key, defaultVal string) string {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseString(key, defaultVal)
}

func (l *Loader) envInt(key string, defaultVal int) int {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseInt(key, defaultVal)
}

func (l *Loader) envFloat(key string, defaultVal float64) float64 {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseFloat(key, defaultVal)
}

func (l *Loader) envBool(key string, defaultVal bool) bool {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseBool(key, defaultVal)
}

// Load loads the profile with precedence: ENV > File > Defaults.
// Order: Defaults -> Parse File (Strict) -> Apply Env -> Validate.
func (l *Loader) Load() (Profile, error) {
	cfg := Defaults()

	if l.configPath != "" {
		if err := l.loadFile(l.configPath, &cfg); err != nil {
			return cfg, fmt.Errorf("load profile file: %w", err)
		}
	}

	l.mergeEnv(&cfg)

	if cfg.Tools.FFprobe == "" {
		cfg.Tools.FFprobe = ResolveFFprobeBin(cfg.Tools.FFmpeg)
	}
	if cfg.Tools.DataDir != "" {
		if abs, err := filepath.Abs(cfg.Tools.DataDir); err == nil {
			cfg.Tools.DataDir = abs
		}
	}
	cfg.Version = l.version

	if err := Validate(cfg); err != nil {
		return cfg, fmt.Errorf("profile validation failed: %w", err)
	}
	return cfg, nil
}

// loadFile decodes a YAML profile on top of cfg with STRICT parsing.
// Unknown fields are a fatal error.
func (l *Loader) loadFile(path string, cfg *Profile) error {
	path = filepath.Clean(path)

	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".yaml" && ext != ".yml" {
		return fmt.Errorf("unsupported profile format: %s (only YAML supported)", ext)
	}

	// #nosec G304 -- profile paths are provided by the operator via CLI/ENV
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read file: %w", err)
	}
	return decodeStrict(data, cfg)
}

func decodeStrict(data []byte, cfg *Profile) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	if err := dec.Decode(cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		if strings.Contains(err.Error(), "field") && strings.Contains(err.Error(), "not found") {
			return fmt.Errorf("%w: %v", ErrUnknownConfigField, err)
		}
		return fmt.Errorf("strict profile parse error: %w", err)
	}

	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return ErrMultipleDocuments
	}
	return nil
}

func (l *Loader) mergeEnv(cfg *Profile) {
	cfg.Tools.FFmpeg = l.envString(EnvFFmpegBin, cfg.Tools.FFmpeg)
	cfg.Tools.FFprobe = l.envString(EnvFFprobeBin, cfg.Tools.FFprobe)
	cfg.Tools.YtDlp = l.envString(EnvYtDlpBin, cfg.Tools.YtDlp)
	cfg.Tools.DataDir = l.envString(EnvDataDir, cfg.Tools.DataDir)

	cfg.Output.Dir = l.envString(EnvOutputDir, cfg.Output.Dir)
	cfg.Output.MaxFileSizeGB = l.envFloat(EnvMaxFileSizeGB, cfg.Output.MaxFileSizeGB)
	cfg.Output.OnSizeExceed = l.envString(EnvOnSizeExceed, cfg.Output.OnSizeExceed)

	cfg.Download.Concurrency = l.envInt(EnvConcurrency, cfg.Download.Concurrency)
	cfg.Status.Listen = l.envString(EnvStatusListen, cfg.Status.Listen)

	cfg.Logging.Format = l.envString(EnvLogFormat, cfg.Logging.Format)
	cfg.Logging.File = l.envString(EnvLogFile, cfg.Logging.File)

	cfg.Telemetry.Enabled = l.envBool(EnvTraceEnabled, cfg.Telemetry.Enabled)
	cfg.Telemetry.Endpoint = l.envString(EnvTraceEndpoint, cfg.Telemetry.Endpoint)
}

// ResolveFFprobeBin derives the ffprobe path from the ffmpeg path when both
// live in the same directory, falling back to PATH lookup.
func ResolveFFprobeBin(ffmpegBin string) string {
	if ffmpegBin == "" || !strings.ContainsRune(ffmpegBin, filepath.Separator) {
		return "ffprobe"
	}
	dir := filepath.Dir(ffmpegBin)
	base := filepath.Base(ffmpegBin)
	probe := filepath.Join(dir, strings.Replace(base, "ffmpeg", "ffprobe", 1))
	if _, err := os.Stat(probe); err == nil {
		return probe
	}
	return "ffprobe"
}

// Defaults returns the built-in profile.
func Defaults() Profile {
	return Profile{
		Profile: ProfileMeta{Name: "default", Description: "720p-class in-car playback"},
		Video: VideoConfig{
			MaxWidth:    720,
			MaxHeight:   540,
			Codec:       "h264",
			Profile:     "main",
			Level:       "4.0",
			PixelFormat: "yuv420p",
			MaxBitrate:  "auto",
			MaxFPS:      25,
			Quality:     24,
		},
		Audio: AudioConfig{
			Codec:       "aac",
			BitrateKbps: 128,
			SampleRate:  44100,
			Channels:    2,
		},
		Subtitles: SubtitleConfig{Embed: false},
		Output: OutputConfig{
			Container:              "mp4",
			Faststart:              true,
			Dir:                    "./output",
			FilenameTemplate:       "{title}_{id}.{ext}",
			MaxFileSizeGB:          3.9,
			OnSizeExceed:           "split",
			TargetBitrateReduction: 0.8,
		},
		Download: DownloadConfig{
			Retries:         3,
			FragmentRetries: 10,
			StartsPerMinute: 6,
			PlaylistStart:   1,
		},
		Logging: LoggingConfig{
			Level:          "info",
			Format:         "json",
			RotationSizeMB: 10,
			RotationCount:  5,
		},
		Tools: ToolsConfig{
			FFmpeg: "ffmpeg",
			YtDlp:  "yt-dlp",
		},
		Telemetry: TelemetryConfig{
			Exporter:     "http",
			SamplingRate: 1.0,
		},
	}
}
