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
	"io"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ManuGH/mediafit/internal/log"
	"github.com/ManuGH/mediafit/internal/media"
	"github.com/ManuGH/mediafit/internal/metrics"
	"github.com/ManuGH/mediafit/internal/procgroup"
	"github.com/ManuGH/mediafit/internal/transcoder"
	"github.com/rs/zerolog"
)

const (
	defaultGrace     = 5 * time.Second
	stderrRingLines  = 100
	progressLogEvery = 30 * time.Second
)

// Executor runs ffmpeg encodes.
type Executor struct {
	BinaryPath string
	Logger     zerolog.Logger
	// Grace is how long a cancelled encode gets to exit after SIGTERM.
	Grace time.Duration
	// StallTimeout terminates an encode whose progress does not advance for
	// this long, including before the first report. Zero (the default)
	// leaves timing to ffmpeg.
	StallTimeout time.Duration
}

// NewExecutor creates an executor for the ffmpeg binary at binaryPath.
func NewExecutor(binaryPath string, logger zerolog.Logger) *Executor {
	if binaryPath == "" {
		binaryPath = "ffmpeg"
	}
	return &Executor{
		BinaryPath: binaryPath,
		Logger:     logger,
		Grace:      defaultGrace,
	}
}

// Encode runs the planned encode to completion. A non-zero exit is an
// *media.EncodeError carrying the stderr tail; cancellation terminates the
// process group and returns ctx.Err().
func (e *Executor) Encode(ctx context.Context, p transcoder.EncodeParameters) error {
	encoder := p.VideoCodec
	if p.AudioOnly {
		encoder = p.AudioCodec
	}
	logger := log.WithContext(ctx, e.Logger).With().
		Str(log.FieldEncoder, encoder).
		Str(log.FieldOutput, p.Output).
		Logger()

	err := e.Run(ctx, p.Output, BuildArgs(p), func(pos time.Duration) {
		logger.Debug().Dur("position", pos).Msg("encode progress")
	})
	switch {
	case err == nil:
		metrics.IncEncode(encoder, "success")
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		metrics.IncEncode(encoder, "cancelled")
	default:
		metrics.IncEncode(encoder, "failure")
	}
	return err
}

// Run executes ffmpeg with args. onProgress, if set, receives the output
// position parsed from -progress reports.
func (e *Executor) Run(ctx context.Context, output string, args []string, onProgress func(time.Duration)) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	// #nosec G204 -- BinaryPath is trusted from the profile; args are built by BuildArgs
	cmd := exec.Command(e.BinaryPath, args...)
	procgroup.Set(cmd)

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("failed to pipe stderr: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("exec start failed: %w", err)
	}

	ring := NewRingBuffer(stderrRingLines)
	var observe func(key, val string)
	stallCh := make(chan error, 1)
	if e.StallTimeout > 0 {
		wd := newWatchdog(e.StallTimeout, e.StallTimeout)
		observe = wd.observe
		wdCtx, stopWatchdog := context.WithCancel(ctx)
		defer stopWatchdog()
		go func() { stallCh <- wd.run(wdCtx) }()
	}

	waitCh := make(chan error, 1)
	go func() {
		e.monitor(stderr, ring, observe, onProgress)
		waitCh <- cmd.Wait()
	}()

	select {
	case <-ctx.Done():
		e.Logger.Warn().Str(log.FieldOutput, output).Msg("encode cancelled, terminating ffmpeg")
		_ = procgroup.Terminate(cmd, waitCh, e.grace())
		return ctx.Err()
	case stall := <-stallCh:
		if stall == nil {
			// The watchdog only returns nil once ctx is done.
			_ = procgroup.Terminate(cmd, waitCh, e.grace())
			return ctx.Err()
		}
		e.Logger.Warn().Err(stall).Str(log.FieldOutput, output).Dur("timeout", e.StallTimeout).Msg("terminating unresponsive ffmpeg")
		_ = procgroup.Terminate(cmd, waitCh, e.grace())
		return &media.EncodeError{
			Output:   output,
			ExitCode: -1,
			Stderr:   ring.GetAll(),
			Err:      stall,
		}
	case err := <-waitCh:
		if err == nil {
			return nil
		}
		return &media.EncodeError{
			Output:   output,
			ExitCode: exitCode(err),
			Stderr:   ring.GetAll(),
			Err:      err,
		}
	}
}

func (e *Executor) grace() time.Duration {
	if e.Grace <= 0 {
		return defaultGrace
	}
	return e.Grace
}

// monitor drains stderr: progress reports feed observe and onProgress, every
// other line goes to the ring buffer for diagnostics.
func (e *Executor) monitor(stderr io.Reader, ring *RingBuffer, observe func(key, val string), onProgress func(time.Duration)) {
	sc := bufio.NewScanner(stderr)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	sc.Split(scanLinesCR)

	var lastLog time.Time
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		key, val, isProgress := parseProgressLine(line)
		if !isProgress {
			ring.Add(line)
			continue
		}
		if observe != nil {
			observe(key, val)
		}
		if key == "out_time_us" && onProgress != nil && time.Since(lastLog) >= progressLogEvery {
			if us, err := strconv.ParseInt(val, 10, 64); err == nil && us >= 0 {
				lastLog = time.Now()
				onProgress(time.Duration(us) * time.Microsecond)
			}
		}
	}
}

var progressKeys = map[string]bool{
	"frame": true, "fps": true, "bitrate": true, "total_size": true,
	"out_time_us": true, "out_time_ms": true, "out_time": true,
	"dup_frames": true, "drop_frames": true, "speed": true, "progress": true,
}

func parseProgressLine(line string) (string, string, bool) {
	key, val, ok := strings.Cut(line, "=")
	if !ok || strings.ContainsRune(key, ' ') {
		return "", "", false
	}
	if progressKeys[key] || strings.HasPrefix(key, "stream_") {
		return key, val, true
	}
	return "", "", false
}

// scanLinesCR splits on \n or \r so carriage-return progress updates become lines.
func scanLinesCR(data []byte, atEOF bool) (int, []byte, error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		return i + 1, data[:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}

func exitCode(err error) int {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}

// RingBuffer keeps the last N lines written to it.
type RingBuffer struct {
	lines []string
	pos   int
	full  bool
	mu    sync.Mutex
}

// NewRingBuffer creates a buffer holding size lines.
func NewRingBuffer(size int) *RingBuffer {
	if size < 1 {
		size = 1
	}
	return &RingBuffer{lines: make([]string, size)}
}

// Add appends a line, evicting the oldest when full.
func (r *RingBuffer) Add(line string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines[r.pos] = line
	r.pos = (r.pos + 1) % len(r.lines)
	if r.pos == 0 {
		r.full = true
	}
}

// GetAll returns the buffered lines, oldest first.
func (r *RingBuffer) GetAll() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.full {
		return append([]string(nil), r.lines[:r.pos]...)
	}
	res := make([]string, len(r.lines))
	copy(res, r.lines[r.pos:])
	copy(res[len(r.lines)-r.pos:], r.lines[:r.pos])
	return res
}
