// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/ManuGH/mediafit/internal/acquire"
	"github.com/ManuGH/mediafit/internal/batch"
	"github.com/ManuGH/mediafit/internal/config"
	"github.com/ManuGH/mediafit/internal/hardware"
	"github.com/ManuGH/mediafit/internal/pipeline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestRootCmd_Subcommands(t *testing.T) {
	var names []string
	for _, c := range newRootCmd().Commands() {
		names = append(names, c.Name())
	}
	for _, want := range []string{"convert", "batch", "playlist", "watch", "serve", "split", "encoders", "format", "profile", "history", "version"} {
		assert.Contains(t, names, want)
	}
}

func TestVersionCmd(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, version)
	assert.Contains(t, out, commit)
}

func TestProfileInitThenValidate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "car.yaml")

	out, err := execute(t, "profile", "init", path)
	require.NoError(t, err)
	assert.Contains(t, out, "wrote "+path)

	_, err = execute(t, "profile", "init", path)
	require.Error(t, err)
	assert.Equal(t, exitUsage, exitCode(err))

	_, err = execute(t, "profile", "init", "--force", path)
	require.NoError(t, err)

	out, err = execute(t, "profile", "validate", path)
	require.NoError(t, err)
	assert.Contains(t, out, "is valid")
	assert.Contains(t, out, "720x540@25")
}

func TestProfileValidate_RejectsUnknownField(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("video:\n  max_widht: 720\n"), 0o600))

	_, err := execute(t, "profile", "validate", path)
	require.Error(t, err)
	assert.Equal(t, exitFailure, exitCode(err))
}

func TestFormatCmd(t *testing.T) {
	out, err := execute(t, "format", "--log-level", "error")
	require.NoError(t, err)
	assert.Contains(t, out, "height<=")
	assert.Contains(t, out, "merge: mp4")
}

func TestServeCmd_RequiresListenAddress(t *testing.T) {
	t.Setenv(config.EnvStatusListen, "")
	_, err := execute(t, "serve", "--log-level", "error")
	require.Error(t, err)
	assert.Equal(t, exitUsage, exitCode(err))
}

func TestConvertCmd_RequiresOneInput(t *testing.T) {
	_, err := execute(t, "convert")
	require.Error(t, err)
}

func TestCheckWatchDirs(t *testing.T) {
	dir := t.TempDir()
	assert.NoError(t, checkWatchDirs(filepath.Join(dir, "in"), filepath.Join(dir, "out")))

	err := checkWatchDirs(filepath.Join(dir, "in"), filepath.Join(dir, "in", "."))
	require.Error(t, err)
	assert.Equal(t, exitUsage, exitCode(err))

	assert.Error(t, checkWatchDirs(dir, ""))
}

func TestSelector_ForcedVendor(t *testing.T) {
	e := &env{}
	for in, want := range map[string]hardware.Vendor{
		"nvidia":     hardware.VendorNVIDIA,
		"h264_qsv":   hardware.VendorIntel,
		"libx264":    hardware.VendorSoftware,
		"  Software": hardware.VendorSoftware,
	} {
		sel, err := e.selector(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, sel.SelectEncoder(context.Background()).Vendor, in)
	}

	_, err := e.selector("voodoo")
	require.Error(t, err)
	assert.Equal(t, exitUsage, exitCode(err))
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, 0, exitCode(nil))
	assert.Equal(t, exitInterrupted, exitCode(fmt.Errorf("run: %w", context.Canceled)))
	assert.Equal(t, exitUsage, exitCode(usagef("bad")))
	assert.Equal(t, exitFailure, exitCode(errors.New("boom")))
}

func TestPrintSummary(t *testing.T) {
	var buf bytes.Buffer
	printSummary(&buf, batch.Summary{
		Items: []batch.Item{
			{Input: "/in/a.mkv", Result: pipeline.Result{Action: pipeline.ActionSplit, Outputs: []string{"/out/a.part001.mp4", "/out/a.part002.mp4"}}},
			{Input: "/in/b.mkv", Done: true},
			{Input: "/in/c.mkv", Err: errors.New("encode failed")},
		},
		Succeeded: 1, Skipped: 1, Failed: 1,
	})
	out := buf.String()
	assert.Contains(t, out, "SPLIT      /in/a.mkv")
	assert.Contains(t, out, "-> /out/a.part002.mp4")
	assert.Contains(t, out, "DONE       /in/b.mkv")
	assert.Contains(t, out, "FAILED     /in/c.mkv: encode failed")
	assert.Contains(t, out, "1 succeeded, 1 skipped, 1 failed")
}

func TestPlaylistCmd_RejectsLocalPaths(t *testing.T) {
	_, err := execute(t, "playlist", "/tmp/not-a-url.mkv")
	require.Error(t, err)
	assert.Equal(t, exitUsage, exitCode(err))
}

func TestPlaylistRange(t *testing.T) {
	profile := config.Defaults().Download
	profile.PlaylistEnd = 20
	profile.PlaylistReverse = true

	cmd := newPlaylistCmd(&rootOptions{})
	require.NoError(t, cmd.Flags().Parse([]string{"--start", "3"}))
	var ro runnerOptions
	ro.start, ro.end = 3, 0

	rng, err := playlistRange(cmd.Flags(), profile, ro)
	require.NoError(t, err)
	assert.Equal(t, acquire.PlaylistRange{Start: 3, End: 20, Reverse: true}, rng, "unset flags keep the profile values")

	cmd = newPlaylistCmd(&rootOptions{})
	require.NoError(t, cmd.Flags().Parse([]string{"--start", "30"}))
	ro.start = 30
	_, err = playlistRange(cmd.Flags(), profile, ro)
	require.Error(t, err)
	assert.Equal(t, exitUsage, exitCode(err))
}
