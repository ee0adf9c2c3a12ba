// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package admission bounds concurrent encoder sessions across a batch.
package admission

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ManuGH/mediafit/internal/hardware"
	"github.com/ManuGH/mediafit/internal/metrics"
	"golang.org/x/sync/semaphore"
)

// Gate names used as metric labels.
const (
	GateEncode   = "encode"
	GateDownload = "download"
)

// Gate is a counting semaphore. The encode gate is sized to the session
// limit of one encoder: hardware encoders only allow a few simultaneous
// sessions, so the limit is per encoder rather than per file.
type Gate struct {
	name  string
	sem   *semaphore.Weighted
	size  int64
	inUse atomic.Int64
}

// NewGate creates a gate admitting size concurrent holders (minimum 1).
// name labels its metrics.
func NewGate(name string, size int) *Gate {
	if size < 1 {
		size = 1
	}
	return &Gate{name: name, sem: semaphore.NewWeighted(int64(size)), size: int64(size)}
}

// ForEncoder sizes a gate to the choice's session limit, further capped by
// limit when limit > 0.
func ForEncoder(choice hardware.EncoderChoice, limit int) *Gate {
	n := choice.Dialect.MaxSessions
	if limit > 0 && limit < n {
		n = limit
	}
	return NewGate(GateEncode, n)
}

// Acquire blocks until a slot is free or ctx ends. The returned release
// func is idempotent.
func (g *Gate) Acquire(ctx context.Context) (release func(), err error) {
	start := time.Now()
	if err := g.sem.Acquire(ctx, 1); err != nil {
		metrics.GateRejected.WithLabelValues(g.name).Inc()
		return nil, err
	}
	metrics.GateWaitSeconds.WithLabelValues(g.name).Observe(time.Since(start).Seconds())
	return g.admitted(), nil
}

// TryAcquire takes a slot only if one is free right now.
func (g *Gate) TryAcquire() (release func(), ok bool) {
	if !g.sem.TryAcquire(1) {
		return nil, false
	}
	return g.admitted(), true
}

func (g *Gate) admitted() func() {
	metrics.GateInUse.WithLabelValues(g.name).Set(float64(g.inUse.Add(1)))
	var once sync.Once
	return func() {
		once.Do(func() {
			metrics.GateInUse.WithLabelValues(g.name).Set(float64(g.inUse.Add(-1)))
			g.sem.Release(1)
		})
	}
}

// Size returns the number of slots.
func (g *Gate) Size() int { return int(g.size) }

// InUse returns the number of slots currently held.
func (g *Gate) InUse() int { return int(g.inUse.Load()) }
