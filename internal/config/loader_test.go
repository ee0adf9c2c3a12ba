// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/ManuGH/mediafit/internal/media"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_DefaultsOnly(t *testing.T) {
	cfg, err := NewLoader("", "test").Load()
	require.NoError(t, err)

	assert.Equal(t, "default", cfg.Profile.Name)
	assert.Equal(t, "test", cfg.Version)
	assert.Equal(t, "ffprobe", cfg.Tools.FFprobe)

	p := cfg.OutputProfile()
	assert.Equal(t, 720, p.MaxWidth)
	assert.Equal(t, 540, p.MaxHeight)
	assert.Equal(t, int64(128_000), p.AudioBitrate)
	assert.Equal(t, int64(0), p.MaxBitrate, "auto maps to 0")
	assert.Equal(t, media.SizeSplit, p.OnSizeExceed)
	assert.Empty(t, p.SubtitleLanguages)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "car.yaml", `
profile:
  name: car
video:
  max_width: 1280
  max_height: 720
  max_bitrate_mbps: "2.5"
  encoder_priority: [h264_qsv, libx264]
subtitles:
  embed: true
  languages: [en, de]
output:
  container: mkv
  on_size_exceed: compress
`)

	cfg, err := NewLoader(path, "").Load()
	require.NoError(t, err)

	p := cfg.OutputProfile()
	assert.Equal(t, "car", p.Name)
	assert.Equal(t, 1280, p.MaxWidth)
	assert.Equal(t, 25, p.MaxFPS, "untouched keys keep defaults")
	assert.Equal(t, int64(2_500_000), p.MaxBitrate)
	assert.Equal(t, media.ContainerMKV, p.Container)
	assert.Equal(t, media.SizeCompress, p.OnSizeExceed)
	assert.Equal(t, []string{"en", "de"}, p.SubtitleLanguages)
	assert.Equal(t, []string{"h264_qsv", "libx264"}, cfg.Video.EncoderPriority)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "p.yml", "output:\n  on_size_exceed: warn\n")

	t.Setenv(EnvOnSizeExceed, "skip")
	t.Setenv(EnvMaxFileSizeGB, "1.5")
	t.Setenv(EnvConcurrency, "3")

	l := NewLoader(path, "")
	cfg, err := l.Load()
	require.NoError(t, err)

	assert.Equal(t, "skip", cfg.Output.OnSizeExceed)
	assert.InDelta(t, 1.5, cfg.Output.MaxFileSizeGB, 1e-9)
	assert.Equal(t, 3, cfg.Download.Concurrency)
	assert.Contains(t, l.ConsumedEnvKeys, EnvOnSizeExceed)
}

func TestLoad_StrictUnknownField(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "bad.yaml", "video:\n  max_widht: 100\n")

	_, err := NewLoader(path, "").Load()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnknownConfigField), "got %v", err)
}

func TestLoad_RejectsMultipleDocuments(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "multi.yaml", "profile:\n  name: a\n---\nprofile:\n  name: b\n")

	_, err := NewLoader(path, "").Load()
	require.ErrorIs(t, err, ErrMultipleDocuments)
}

func TestLoad_RejectsNonYAML(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "profile.toml", "[profile]\n")

	_, err := NewLoader(path, "").Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "only YAML supported")
}

func TestLoad_EmptyFileUsesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "empty.yaml", "")

	cfg, err := NewLoader(path, "").Load()
	require.NoError(t, err)
	assert.Equal(t, Defaults().Video, cfg.Video)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Profile)
		wantErr string
	}{
		{name: "defaults are valid", mutate: func(*Profile) {}},
		{name: "bad bitrate", mutate: func(p *Profile) { p.Video.MaxBitrate = "fast" }, wantErr: "max_bitrate_mbps"},
		{name: "negative bitrate", mutate: func(p *Profile) { p.Video.MaxBitrate = "-1" }, wantErr: "max_bitrate_mbps"},
		{name: "unknown encoder", mutate: func(p *Profile) { p.Video.EncoderPriority = []string{"h264_vaapi"} }, wantErr: "unknown encoder"},
		{name: "audio bitrate range", mutate: func(p *Profile) { p.Audio.BitrateKbps = 16 }, wantErr: "bitrate_kbps"},
		{name: "language code", mutate: func(p *Profile) { p.Subtitles.Languages = []string{"english"} }, wantErr: "language code"},
		{name: "size range", mutate: func(p *Profile) { p.Output.MaxFileSizeGB = 0 }, wantErr: "max_file_size_gb"},
		{name: "log format", mutate: func(p *Profile) { p.Logging.Format = "xml" }, wantErr: "logging.format"},
		{name: "domain profile", mutate: func(p *Profile) { p.Video.MaxFPS = 0 }, wantErr: "max fps"},
		{name: "playlist start", mutate: func(p *Profile) { p.Download.PlaylistStart = 0 }, wantErr: "playlist_start"},
		{name: "playlist range", mutate: func(p *Profile) { p.Download.PlaylistStart, p.Download.PlaylistEnd = 5, 2 }, wantErr: "invalid range 5..2"},
		{name: "playlist open end", mutate: func(p *Profile) { p.Download.PlaylistStart = 3 }},
		{name: "policy", mutate: func(p *Profile) { p.Output.OnSizeExceed = "truncate" }, wantErr: "on_size_exceed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(&cfg)
			err := Validate(cfg)
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidate_DomainErrorIsPlanningError(t *testing.T) {
	cfg := Defaults()
	cfg.Video.Quality = 60

	var pe *media.PlanningError
	require.True(t, errors.As(Validate(cfg), &pe))
	assert.Equal(t, "default", pe.Profile)
}

func TestResolveFFprobeBin(t *testing.T) {
	assert.Equal(t, "ffprobe", ResolveFFprobeBin(""))
	assert.Equal(t, "ffprobe", ResolveFFprobeBin("ffmpeg"))

	dir := t.TempDir()
	writeFile(t, dir, "ffprobe", "")
	assert.Equal(t, filepath.Join(dir, "ffprobe"), ResolveFFprobeBin(filepath.Join(dir, "ffmpeg")))
	assert.Equal(t, "ffprobe", ResolveFFprobeBin(filepath.Join(t.TempDir(), "ffmpeg")))
}

func TestWriteProfile_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "profile.yaml")
	want := Defaults()
	want.Profile.Name = "written"
	want.Subtitles = SubtitleConfig{Embed: true, Languages: []string{"en"}}

	require.NoError(t, WriteProfile(path, want))

	got, err := LoadFile(path, "")
	require.NoError(t, err)
	assert.Equal(t, want.Profile, got.Profile)
	assert.Equal(t, want.Subtitles, got.Subtitles)
	assert.Equal(t, want.Output, got.Output)
}

func TestParseEnvHelpers(t *testing.T) {
	t.Setenv("MEDIAFIT_TEST_INT", "42")
	t.Setenv("MEDIAFIT_TEST_BAD_INT", "forty")
	t.Setenv("MEDIAFIT_TEST_BOOL", "yes")
	t.Setenv("MEDIAFIT_TEST_EMPTY", "")
	t.Setenv("MEDIAFIT_TEST_DUR", "2s")

	assert.Equal(t, 42, ParseInt("MEDIAFIT_TEST_INT", 1))
	assert.Equal(t, 1, ParseInt("MEDIAFIT_TEST_BAD_INT", 1))
	assert.True(t, ParseBool("MEDIAFIT_TEST_BOOL", false))
	assert.Equal(t, "fallback", ParseString("MEDIAFIT_TEST_EMPTY", "fallback"))
	assert.Equal(t, "fallback", ParseString("MEDIAFIT_TEST_UNSET", "fallback"))
	assert.Equal(t, 2e9, float64(ParseDuration("MEDIAFIT_TEST_DUR", 0)))
	assert.InDelta(t, 0.5, ParseFloat("MEDIAFIT_TEST_UNSET", 0.5), 1e-9)
}
