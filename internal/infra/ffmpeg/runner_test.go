// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

//go:build linux

package ffmpeg

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ManuGH/mediafit/internal/media"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestExecutorRun_NonZeroExit(t *testing.T) {
	e := NewExecutor("sh", zerolog.Nop())
	err := e.Run(context.Background(), "/out/x.mp4", []string{"-c", "echo frame=10 >&2; echo 'Unknown encoder' >&2; exit 3"}, nil)

	var ee *media.EncodeError
	require.True(t, errors.As(err, &ee))
	assert.Equal(t, 3, ee.ExitCode)
	assert.Equal(t, "/out/x.mp4", ee.Output)
	assert.Equal(t, []string{"Unknown encoder"}, ee.Stderr, "progress lines are not diagnostics")
	assert.Contains(t, err.Error(), "Unknown encoder")
}

func TestExecutorRun_Success(t *testing.T) {
	var positions []time.Duration
	e := NewExecutor("sh", zerolog.Nop())
	err := e.Run(context.Background(), "out", []string{"-c", "printf 'out_time_us=5000000\\rprogress=end\\n' >&2"}, func(d time.Duration) {
		positions = append(positions, d)
	})
	require.NoError(t, err)
	assert.Equal(t, []time.Duration{5 * time.Second}, positions)
}

func TestExecutorRun_Cancel(t *testing.T) {
	e := NewExecutor("sh", zerolog.Nop())
	e.Grace = 200 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(100 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	err := e.Run(ctx, "out", []string{"-c", "sleep 30"}, nil)
	require.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestExecutorRun_StallBecomesEncodeError(t *testing.T) {
	e := NewExecutor("sh", zerolog.Nop())
	e.Grace = 200 * time.Millisecond
	e.StallTimeout = 200 * time.Millisecond

	err := e.Run(context.Background(), "/out/x.mp4", []string{"-c", "echo out_time_us=1000 >&2; sleep 30"}, nil)

	var ee *media.EncodeError
	require.ErrorAs(t, err, &ee)
	assert.ErrorIs(t, err, ErrStalled)
	assert.Equal(t, -1, ee.ExitCode)
}

func TestRingBuffer(t *testing.T) {
	r := NewRingBuffer(3)
	assert.Empty(t, r.GetAll())

	for _, l := range []string{"a", "b", "c", "d", "e"} {
		r.Add(l)
	}
	assert.Equal(t, []string{"c", "d", "e"}, r.GetAll())
}

func TestParseProgressLine(t *testing.T) {
	_, _, ok := parseProgressLine("out_time_us=123")
	assert.True(t, ok)
	_, _, ok = parseProgressLine("[aac @ 0x55] Too many bits=1")
	assert.False(t, ok)
	_, _, ok = parseProgressLine("Error while opening encoder")
	assert.False(t, ok)
}
