// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package health

import (
	"context"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"github.com/spf13/afero"
)

// BinaryChecker checks that an external tool is on PATH.
type BinaryChecker struct {
	name     string
	bin      string
	optional bool
	lookPath func(string) (string, error)
}

// NewBinaryChecker creates a checker for bin. A missing optional binary is
// reported as degraded instead of unhealthy.
func NewBinaryChecker(name, bin string, optional bool) *BinaryChecker {
	return &BinaryChecker{name: name, bin: bin, optional: optional, lookPath: exec.LookPath}
}

func (c *BinaryChecker) Name() string { return c.name }

func (c *BinaryChecker) Check(_ context.Context) CheckResult {
	path, err := c.lookPath(c.bin)
	if err != nil {
		status := StatusUnhealthy
		if c.optional {
			status = StatusDegraded
		}
		return CheckResult{Status: status, Error: "not found", Message: c.bin}
	}
	return CheckResult{Status: StatusHealthy, Message: path}
}

// DirChecker checks that a directory exists (or can be created) and is
// writable.
type DirChecker struct {
	name string
	fs   afero.Fs
	dir  string
}

// NewDirChecker creates a checker for dir on fs.
func NewDirChecker(name string, fs afero.Fs, dir string) *DirChecker {
	return &DirChecker{name: name, fs: fs, dir: dir}
}

func (c *DirChecker) Name() string { return c.name }

func (c *DirChecker) Check(_ context.Context) CheckResult {
	if c.dir == "" {
		return CheckResult{Status: StatusHealthy, Message: "not configured (optional)"}
	}
	if err := c.fs.MkdirAll(c.dir, 0o750); err != nil {
		return CheckResult{Status: StatusUnhealthy, Error: err.Error(), Message: c.dir}
	}
	probe := filepath.Join(c.dir, ".write_test")
	if err := afero.WriteFile(c.fs, probe, []byte("ok"), 0o600); err != nil {
		return CheckResult{Status: StatusUnhealthy, Error: "not writable", Message: c.dir}
	}
	_ = c.fs.Remove(probe)
	return CheckResult{Status: StatusHealthy, Message: c.dir}
}

// RunTracker remembers the outcome of the most recent conversion.
type RunTracker struct {
	mu      sync.Mutex
	last    time.Time
	lastErr string
	now     func() time.Time
}

// NewRunTracker creates an empty tracker.
func NewRunTracker() *RunTracker {
	return &RunTracker{now: time.Now}
}

// Record stores the outcome of a conversion.
func (t *RunTracker) Record(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.last = t.now()
	t.lastErr = ""
	if err != nil {
		t.lastErr = err.Error()
	}
}

func (t *RunTracker) Name() string { return "last_conversion" }

// Check is degraded after a failed conversion. An idle process is healthy:
// watch mode may legitimately wait for hours.
func (t *RunTracker) Check(_ context.Context) CheckResult {
	t.mu.Lock()
	defer t.mu.Unlock()
	switch {
	case t.last.IsZero():
		return CheckResult{Status: StatusHealthy, Message: "no conversion yet"}
	case t.lastErr != "":
		return CheckResult{Status: StatusDegraded, Error: t.lastErr, Message: "last conversion failed"}
	default:
		return CheckResult{Status: StatusHealthy, Message: "last conversion at " + t.last.UTC().Format(time.RFC3339)}
	}
}
