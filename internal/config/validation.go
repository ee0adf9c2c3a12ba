// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/text/language"
)

var knownEncoders = map[string]bool{
	"h264_nvenc": true,
	"h264_amf":   true,
	"h264_qsv":   true,
	"libx264":    true,
}

// Validate checks file-level settings and the derived output profile.
func Validate(cfg Profile) error {
	var errs []error

	if strings.TrimSpace(cfg.Profile.Name) == "" {
		errs = append(errs, errors.New("profile.name must not be empty"))
	}
	if _, err := parseMaxBitrate(cfg.Video.MaxBitrate); err != nil {
		errs = append(errs, err)
	}
	for _, enc := range cfg.Video.EncoderPriority {
		if !knownEncoders[enc] {
			errs = append(errs, fmt.Errorf("video.encoder_priority: unknown encoder %q", enc))
		}
	}
	if cfg.Audio.BitrateKbps < 32 || cfg.Audio.BitrateKbps > 320 {
		errs = append(errs, fmt.Errorf("audio.bitrate_kbps must be within 32..320 (got %d)", cfg.Audio.BitrateKbps))
	}
	for _, lang := range cfg.Subtitles.Languages {
		if _, err := language.ParseBase(lang); err != nil || len(lang) < 2 || len(lang) > 3 {
			errs = append(errs, fmt.Errorf("subtitles.languages: invalid language code %q", lang))
		}
	}
	if cfg.Output.MaxFileSizeGB < 0.1 || cfg.Output.MaxFileSizeGB > 100 {
		errs = append(errs, fmt.Errorf("output.max_file_size_gb must be within 0.1..100 (got %.2f)", cfg.Output.MaxFileSizeGB))
	}
	if cfg.Output.TargetBitrateReduction < 0.1 || cfg.Output.TargetBitrateReduction > 1 {
		errs = append(errs, fmt.Errorf("output.target_bitrate_reduction must be within 0.1..1.0 (got %.2f)", cfg.Output.TargetBitrateReduction))
	}
	if cfg.Download.Retries < 0 || cfg.Download.FragmentRetries < 0 {
		errs = append(errs, errors.New("download retries must not be negative"))
	}
	if cfg.Download.Concurrency < 0 {
		errs = append(errs, errors.New("download.concurrency must not be negative"))
	}
	if cfg.Download.PlaylistStart < 1 || cfg.Download.PlaylistEnd < 0 ||
		(cfg.Download.PlaylistEnd > 0 && cfg.Download.PlaylistEnd < cfg.Download.PlaylistStart) {
		errs = append(errs, fmt.Errorf("download.playlist_start/playlist_end: invalid range %d..%d",
			cfg.Download.PlaylistStart, cfg.Download.PlaylistEnd))
	}
	switch strings.ToLower(cfg.Logging.Format) {
	case "", "json", "console":
	default:
		errs = append(errs, fmt.Errorf("logging.format must be json or console (got %q)", cfg.Logging.Format))
	}
	if cfg.Telemetry.Enabled {
		switch cfg.Telemetry.Exporter {
		case "grpc", "http":
		default:
			errs = append(errs, fmt.Errorf("telemetry.exporter must be grpc or http (got %q)", cfg.Telemetry.Exporter))
		}
	}

	if len(errs) == 0 {
		if err := cfg.OutputProfile().Validate(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// parseMaxBitrate converts "auto" or a Mbps number into bps (0 = auto).
func parseMaxBitrate(s string) (int64, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" || s == "auto" {
		return 0, nil
	}
	mbps, err := strconv.ParseFloat(s, 64)
	if err != nil || mbps <= 0 {
		return 0, fmt.Errorf("video.max_bitrate_mbps must be \"auto\" or a positive number (got %q)", s)
	}
	return int64(mbps * 1_000_000), nil
}
