// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics_test

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ManuGH/mediafit/internal/metrics"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPromhttpExposure(t *testing.T) {
	metrics.IncJob("converted")
	metrics.ObserveStage("encode", 2*time.Second)

	srv := httptest.NewServer(promhttp.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.True(t, strings.Contains(string(body), "mediafit_jobs_total"))
	assert.True(t, strings.Contains(string(body), "mediafit_stage_duration_seconds"))
}

func TestCounters(t *testing.T) {
	before := testutil.ToFloat64(metrics.EncodesTotal.WithLabelValues("libx264", "success"))
	metrics.IncEncode("libx264", "success")
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.EncodesTotal.WithLabelValues("libx264", "success")))

	parts := testutil.ToFloat64(metrics.SplitParts)
	metrics.AddSplitParts(3)
	assert.Equal(t, parts+3, testutil.ToFloat64(metrics.SplitParts))

	out := testutil.ToFloat64(metrics.OutputBytes)
	metrics.AddOutputBytes(-5)
	assert.Equal(t, out, testutil.ToFloat64(metrics.OutputBytes), "negative sizes are ignored")

	probes := testutil.ToFloat64(metrics.ProbeResults.WithLabelValues("h264_nvenc", "failed"))
	metrics.IncProbe("h264_nvenc", "failed")
	assert.Equal(t, probes+1, testutil.ToFloat64(metrics.ProbeResults.WithLabelValues("h264_nvenc", "failed")))
}
