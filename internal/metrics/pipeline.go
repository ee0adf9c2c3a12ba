// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package metrics exposes Prometheus instruments for conversions.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// StageDuration tracks wall time per pipeline stage.
	StageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "mediafit_stage_duration_seconds",
		Help:    "Duration of pipeline stages",
		Buckets: prometheus.ExponentialBuckets(0.05, 2.5, 12), // 50ms to ~1.5h
	}, []string{"stage"})

	// EncodesTotal counts encoder invocations by encoder and outcome.
	EncodesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mediafit_encodes_total",
		Help: "Encoder invocations by encoder and outcome",
	}, []string{"encoder", "outcome"}) // outcome=success|failure|cancelled

	// EncoderFallbacks counts hardware encodes retried in software.
	EncoderFallbacks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mediafit_encoder_fallbacks_total",
		Help: "Hardware encode failures retried with the software encoder",
	}, []string{"from"})

	// ProbeResults counts hardware capability probe outcomes per vendor.
	ProbeResults = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mediafit_encoder_probe_total",
		Help: "Hardware encoder smoke test outcomes",
	}, []string{"encoder", "result"}) // result=ok|failed|absent

	// SplitParts counts parts written by the splitter.
	SplitParts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mediafit_split_parts_total",
		Help: "Parts written by the splitter",
	})

	// SplitRetargets counts re-encodes of a part that came out oversized.
	SplitRetargets = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mediafit_split_retargets_total",
		Help: "Split parts re-encoded after exceeding the size limit",
	})

	// JobsTotal counts finished conversions by result.
	JobsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mediafit_jobs_total",
		Help: "Finished conversions by result",
	}, []string{"result"}) // result=converted|split|compressed|oversize|dropped|exists|failed

	// OutputBytes counts bytes written to final outputs.
	OutputBytes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mediafit_output_bytes_total",
		Help: "Bytes written to final outputs",
	})
)

// ObserveStage records the duration of a pipeline stage.
func ObserveStage(stage string, d time.Duration) {
	StageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// IncEncode records an encoder invocation outcome.
func IncEncode(encoder, outcome string) {
	EncodesTotal.WithLabelValues(encoder, outcome).Inc()
}

// IncFallback records a hardware to software retry.
func IncFallback(from string) {
	EncoderFallbacks.WithLabelValues(from).Inc()
}

// IncProbe records a capability probe outcome.
func IncProbe(encoder, result string) {
	ProbeResults.WithLabelValues(encoder, result).Inc()
}

// AddSplitParts records n written parts.
func AddSplitParts(n int) {
	SplitParts.Add(float64(n))
}

// IncSplitRetarget records one oversized part re-encode.
func IncSplitRetarget() {
	SplitRetargets.Inc()
}

// IncJob records a finished conversion.
func IncJob(result string) {
	JobsTotal.WithLabelValues(result).Inc()
}

// AddOutputBytes records bytes of a final output.
func AddOutputBytes(n int64) {
	if n > 0 {
		OutputBytes.Add(float64(n))
	}
}
