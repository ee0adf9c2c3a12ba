// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestProfileWatcher_ReloadKeepsOldOnError(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "p.yaml", "profile:\n  name: first\n")

	loader := NewLoader(path, "")
	initial, err := loader.Load()
	require.NoError(t, err)
	w := NewProfileWatcher(initial, loader)

	require.NoError(t, os.WriteFile(path, []byte("video:\n  bogus: 1\n"), 0o600))
	require.Error(t, w.Reload(context.Background()))
	assert.Equal(t, "first", w.Get().Profile.Name)

	require.NoError(t, os.WriteFile(path, []byte("profile:\n  name: second\n"), 0o600))
	require.NoError(t, w.Reload(context.Background()))
	assert.Equal(t, "second", w.Get().Profile.Name)
}

func TestProfileWatcher_NoPathIsNoop(t *testing.T) {
	w := NewProfileWatcher(Defaults(), NewLoader("", ""))
	require.NoError(t, w.Start(context.Background()))
	w.Stop()
}

func TestProfileWatcher_FileChangeNotifies(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "p.yaml", "profile:\n  name: before\n")

	loader := NewLoader(path, "")
	initial, err := loader.Load()
	require.NoError(t, err)

	w := NewProfileWatcher(initial, loader)
	updates := make(chan Profile, 1)
	w.Subscribe(updates)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))
	defer w.Stop()

	// Other files in the directory are ignored.
	writeFile(t, dir, "unrelated.txt", "x")

	tmp := filepath.Join(dir, "p.yaml.tmp")
	require.NoError(t, os.WriteFile(tmp, []byte("profile:\n  name: after\n"), 0o600))
	require.NoError(t, os.Rename(tmp, path))

	select {
	case p := <-updates:
		assert.Equal(t, "after", p.Profile.Name)
	case <-time.After(5 * time.Second):
		t.Fatal("no reload notification")
	}
	assert.Equal(t, "after", w.Get().Profile.Name)
}

func TestProfileWatcher_ContextCancelStopsLoop(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "p.yaml", "")

	w := NewProfileWatcher(Defaults(), NewLoader(path, ""))
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, w.Start(ctx))
	cancel()
	w.Stop()
}
