// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package splitter

import (
	"errors"
	"testing"
	"time"

	"github.com/ManuGH/mediafit/internal/media"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func assertPlanInvariants(t *testing.T, in PlanInput, plan Plan) {
	t.Helper()
	wantParts := int((in.Size + in.MaxPartSize - 1) / in.MaxPartSize)
	require.Len(t, plan.Parts, wantParts)

	var cursor time.Duration
	for i, p := range plan.Parts {
		assert.Equal(t, i, p.Index)
		assert.Equal(t, cursor, p.Start, "part %d leaves a gap or overlaps", i)
		assert.Positive(t, p.Duration)
		assert.LessOrEqual(t, p.EstimatedSize, in.MaxPartSize, "part %d over limit", i)
		cursor = p.End()
	}
	assert.Equal(t, in.Duration, cursor, "parts must cover the whole duration")

	// Keyframe slack overlaps neighbouring parts, so the rate alone must fit
	// the original size.
	first := plan.Parts[0]
	rate := float64(first.EstimatedSize*8) / (first.Duration + KeyframeSlack).Seconds()
	assert.LessOrEqual(t, rate*in.Duration.Seconds()/8, float64(in.Size)*1.0001)
	if in.VideoBitrate > 0 {
		assert.LessOrEqual(t, plan.VideoBitrate, in.VideoBitrate, "bitrate is never raised")
	}
}

func TestComputePlan_NinePointFiveGiB(t *testing.T) {
	in := PlanInput{
		Size:         95 * media.GiB / 10,
		Duration:     2 * time.Hour,
		VideoBitrate: 20_000_000,
		AudioBitrate: 128_000,
		MaxPartSize:  39 * media.GiB / 10,
	}
	plan, err := ComputePlan(in)
	require.NoError(t, err)
	assert.Len(t, plan.Parts, 3)
	assertPlanInvariants(t, in, plan)
}

func TestComputePlan_Properties(t *testing.T) {
	limit := 39 * media.GiB / 10
	for _, sizeGiB := range []float64{3.95, 4.5, 7.8, 7.81, 9.5, 12, 20.3} {
		for _, dur := range []time.Duration{45 * time.Minute, 90*time.Minute + 7*time.Second, 3 * time.Hour} {
			in := PlanInput{
				Size:         int64(sizeGiB * float64(media.GiB)),
				Duration:     dur,
				VideoBitrate: 50_000_000,
				AudioBitrate: 128_000,
				MaxPartSize:  limit,
			}
			plan, err := ComputePlan(in)
			require.NoError(t, err, "size %.2f GiB, duration %s", sizeGiB, dur)
			assertPlanInvariants(t, in, plan)
		}
	}
}

func TestComputePlan_RetargetsWhenSlackOverflows(t *testing.T) {
	// Exactly two full parts: the keyframe slack pushes both estimates over.
	limit := int64(100 * media.MiB)
	in := PlanInput{
		Size:         2 * limit,
		Duration:     200 * time.Second,
		VideoBitrate: 10_000_000,
		AudioBitrate: 128_000,
		MaxPartSize:  limit,
	}
	plan, err := ComputePlan(in)
	require.NoError(t, err)
	assert.Positive(t, plan.Iterations)
	assertPlanInvariants(t, in, plan)
}

func TestComputePlan_StartCappedByEncodeCeiling(t *testing.T) {
	in := PlanInput{
		Size:         5 * media.GiB,
		Duration:     time.Hour,
		VideoBitrate: 4_000_000,
		AudioBitrate: 128_000,
		MaxPartSize:  39 * media.GiB / 10,
	}
	plan, err := ComputePlan(in)
	require.NoError(t, err)
	assert.LessOrEqual(t, plan.VideoBitrate, int64(4_000_000))
}

func TestComputePlan_AudioOnlyLongFile(t *testing.T) {
	// 20h at 128 kbps.
	in := PlanInput{
		Size:         1_152_000_000,
		Duration:     20 * time.Hour,
		AudioBitrate: 128_000,
		MaxPartSize:  1_000_000_000,
	}
	plan, err := ComputePlan(in)
	require.NoError(t, err)
	assert.Zero(t, plan.VideoBitrate)
	assert.Zero(t, plan.Iterations)
	assertPlanInvariants(t, in, plan)
}

func TestComputePlan_LowBitrateVideoKeepsItsRate(t *testing.T) {
	// 30 minutes at 450 kbps total, below the minimum video rate.
	in := PlanInput{
		Size:         101_250_000,
		Duration:     30 * time.Minute,
		VideoBitrate: 4_000_000,
		AudioBitrate: 128_000,
		MaxPartSize:  60 * media.MiB,
	}
	plan, err := ComputePlan(in)
	require.NoError(t, err)
	assert.Len(t, plan.Parts, 2)
	assert.Zero(t, plan.Iterations)
	assert.Equal(t, int64(322_000), plan.VideoBitrate)
	assertPlanInvariants(t, in, plan)
}

func TestComputePlan_AudioOnlyWithoutHeadroom(t *testing.T) {
	// Two exactly full parts: the keyframe slack cannot be absorbed by
	// lowering audio.
	limit := 4 * media.MiB
	in := PlanInput{
		Size:         2 * limit,
		Duration:     10 * time.Minute,
		AudioBitrate: 128_000,
		MaxPartSize:  limit,
	}
	_, err := ComputePlan(in)
	var exceeded *media.SplitExceededError
	require.True(t, errors.As(err, &exceeded))
	assert.Equal(t, 1, exceeded.Part)
	assert.Equal(t, in.MaxPartSize, exceeded.Limit)
	assert.Zero(t, exceeded.Iterations)
}

func TestComputePlan_FloorReached(t *testing.T) {
	// 5s spans plus slack need less than the minimum video rate to fit.
	in := PlanInput{
		Size:         10 * media.MiB,
		Duration:     100 * time.Second,
		VideoBitrate: 8_000_000,
		AudioBitrate: 128_000,
		MaxPartSize:  512 * media.KiB,
	}
	_, err := ComputePlan(in)
	var exceeded *media.SplitExceededError
	require.ErrorAs(t, err, &exceeded)
	assert.Positive(t, exceeded.Iterations)
	assert.LessOrEqual(t, exceeded.Iterations, MaxIterations)
}

func TestComputePlan_UnknownDuration(t *testing.T) {
	_, err := ComputePlan(PlanInput{Size: 10, MaxPartSize: 4})
	assert.ErrorIs(t, err, ErrUnknownDuration)
}

func TestRetargetBitrate(t *testing.T) {
	assert.Equal(t, int64(1_940_000), RetargetBitrate(4_000_000, 200, 100))
	assert.Equal(t, int64(4_000_000), RetargetBitrate(4_000_000, 50, 100), "never raises")
	assert.Equal(t, int64(4_000_000), RetargetBitrate(4_000_000, 0, 100))
}
