// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package log

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestConfigure_Level(t *testing.T) {
	var buf bytes.Buffer
	Configure(Config{Output: &buf, Level: "warn"})
	defer Configure(Config{})

	if zerolog.GlobalLevel() != zerolog.WarnLevel {
		t.Fatalf("global level = %v, want warn", zerolog.GlobalLevel())
	}
	l := Base()
	l.Info().Msg("dropped")
	l.Warn().Msg("kept")
	out := buf.String()
	if strings.Contains(out, "dropped") || !strings.Contains(out, "kept") {
		t.Errorf("unexpected output: %s", out)
	}
}

func TestConfigure_RotatingFile(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "mediafit.log")

	var buf bytes.Buffer
	Configure(Config{Output: &buf, File: file, MaxSizeMB: 1, MaxBackups: 1})
	l := WithComponent("test")
	l.Info().Msg("to both sinks")
	if err := Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	Configure(Config{})

	data, err := os.ReadFile(file)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(data), "to both sinks") {
		t.Errorf("log file missing entry: %s", data)
	}
	if !strings.Contains(buf.String(), "to both sinks") {
		t.Errorf("primary writer missing entry: %s", buf.String())
	}
}

func TestConfigure_Console(t *testing.T) {
	var buf bytes.Buffer
	Configure(Config{Output: &buf, Format: "console"})
	defer Configure(Config{})

	l := Base()
	l.Info().Msg("human readable")
	if strings.HasPrefix(strings.TrimSpace(buf.String()), "{") {
		t.Errorf("console format produced JSON: %s", buf.String())
	}
}
