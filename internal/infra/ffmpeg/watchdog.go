// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package ffmpeg

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"
)

var (
	// ErrNoProgress is returned when ffmpeg never reports progress.
	ErrNoProgress = errors.New("ffmpeg reported no progress")
	// ErrStalled is returned when ffmpeg stops advancing mid-encode.
	ErrStalled = errors.New("ffmpeg stalled")
)

type watchdogState int

const (
	stateStarting watchdogState = iota
	stateRunning
	stateCompleted
)

// watchdog turns -progress reports into start and stall timeouts.
type watchdog struct {
	mu sync.Mutex

	startTimeout time.Duration
	stallTimeout time.Duration

	lastOutUs int64
	lastSize  int64
	lastBeat  time.Time
	state     watchdogState

	now  func() time.Time
	tick time.Duration
}

func newWatchdog(startTimeout, stallTimeout time.Duration) *watchdog {
	tick := time.Second
	if q := stallTimeout / 4; q > 0 && q < tick {
		tick = q
	}
	return &watchdog{
		startTimeout: startTimeout,
		stallTimeout: stallTimeout,
		lastBeat:     time.Now(),
		now:          time.Now,
		tick:         tick,
	}
}

// observe records one progress key/value pair.
func (w *watchdog) observe(key, val string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	switch key {
	case "out_time_us":
		if us, err := strconv.ParseInt(val, 10, 64); err == nil && us > w.lastOutUs {
			w.lastOutUs = us
			w.beat()
		}
	case "total_size":
		if n, err := strconv.ParseInt(val, 10, 64); err == nil && n > w.lastSize {
			w.lastSize = n
			w.beat()
		}
	case "progress":
		if val == "end" {
			w.state = stateCompleted
		}
	}
}

func (w *watchdog) beat() {
	w.lastBeat = w.now()
	if w.state == stateStarting {
		w.state = stateRunning
	}
}

// check reports a timeout at now.
func (w *watchdog) check(now time.Time) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	idle := now.Sub(w.lastBeat)
	switch w.state {
	case stateStarting:
		if w.startTimeout > 0 && idle > w.startTimeout {
			return ErrNoProgress
		}
	case stateRunning:
		if w.stallTimeout > 0 && idle > w.stallTimeout {
			return ErrStalled
		}
	}
	return nil
}

// run checks once per tick until ctx ends or a timeout fires.
func (w *watchdog) run(ctx context.Context) error {
	t := time.NewTicker(w.tick)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			if err := w.check(w.now()); err != nil {
				return err
			}
		}
	}
}
