// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// FetchesTotal counts acquisition attempts by result.
	FetchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mediafit_fetch_attempts_total",
		Help: "yt-dlp download attempts by result",
	}, []string{"result"}) // result=success|failure|no_output

	// InfoCacheLookups counts metadata cache lookups.
	InfoCacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mediafit_info_cache_lookups_total",
		Help: "Remote metadata cache lookups",
	}, []string{"result"}) // result=hit|miss

	// GateWaitSeconds tracks time spent waiting for an admission slot.
	GateWaitSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "mediafit_gate_wait_seconds",
		Help:    "Time spent waiting for an admission slot",
		Buckets: prometheus.ExponentialBuckets(0.001, 4, 10),
	}, []string{"gate"}) // gate=encode|download

	// GateInUse is the number of admission slots currently held.
	GateInUse = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "mediafit_gate_slots_in_use",
		Help: "Admission slots currently held",
	}, []string{"gate"})

	// GateRejected counts acquisitions abandoned because the context ended.
	GateRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mediafit_gate_rejected_total",
		Help: "Slot acquisitions abandoned on cancellation",
	}, []string{"gate"})
)

// IncFetch records an acquisition attempt.
func IncFetch(result string) {
	FetchesTotal.WithLabelValues(result).Inc()
}

// IncInfoCache records a metadata cache lookup.
func IncInfoCache(hit bool) {
	if hit {
		InfoCacheLookups.WithLabelValues("hit").Inc()
		return
	}
	InfoCacheLookups.WithLabelValues("miss").Inc()
}
