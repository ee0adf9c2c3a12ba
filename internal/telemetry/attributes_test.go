// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package telemetry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel/attribute"
)

func TestMediaAttributes_SkipsEmpty(t *testing.T) {
	tests := []struct {
		name                   string
		input, output, profile string
		wantLen                int
	}{
		{"all", "in.mkv", "out.mp4", "default", 3},
		{"input only", "in.mkv", "", "", 1},
		{"none", "", "", "", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Len(t, MediaAttributes(tt.input, tt.output, tt.profile), tt.wantLen)
		})
	}
}

func TestEncodeAttributes(t *testing.T) {
	attrs := EncodeAttributes("h264_nvenc", "nvidia", true, 4_000_000, "scale=720:404")
	set := attribute.NewSet(attrs...)

	v, ok := set.Value(EncoderKey)
	assert.True(t, ok)
	assert.Equal(t, "h264_nvenc", v.AsString())

	v, ok = set.Value(HardwareKey)
	assert.True(t, ok)
	assert.True(t, v.AsBool())

	v, ok = set.Value(BitrateKey)
	assert.True(t, ok)
	assert.Equal(t, int64(4_000_000), v.AsInt64())
}

func TestSplitAttributes(t *testing.T) {
	set := attribute.NewSet(SplitAttributes(3, 2)...)
	v, _ := set.Value(PartsKey)
	assert.Equal(t, int64(3), v.AsInt64())
	v, _ = set.Value(IterationKey)
	assert.Equal(t, int64(2), v.AsInt64())
}
