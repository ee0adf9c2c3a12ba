// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Attribute keys shared by pipeline spans.
const (
	StageKey = attribute.Key("mediafit.stage")

	InputKey   = attribute.Key("media.input")
	OutputKey  = attribute.Key("media.output")
	ProfileKey = attribute.Key("media.profile")

	EncoderKey  = attribute.Key("transcode.encoder")
	VendorKey   = attribute.Key("transcode.vendor")
	HardwareKey = attribute.Key("transcode.hardware")
	BitrateKey  = attribute.Key("transcode.max_bitrate")
	ScaleKey    = attribute.Key("transcode.scale")

	PartKey      = attribute.Key("split.part")
	PartsKey     = attribute.Key("split.parts")
	IterationKey = attribute.Key("split.iterations")

	URLKey    = attribute.Key("acquire.url")
	FormatKey = attribute.Key("acquire.format")
)

// MediaAttributes describes the input/output pair of a job.
func MediaAttributes(input, output, profile string) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, 3)
	if input != "" {
		attrs = append(attrs, InputKey.String(input))
	}
	if output != "" {
		attrs = append(attrs, OutputKey.String(output))
	}
	if profile != "" {
		attrs = append(attrs, ProfileKey.String(profile))
	}
	return attrs
}

// EncodeAttributes describes one encoder invocation.
func EncodeAttributes(encoder, vendor string, hardware bool, maxBitrate int64, scale string) []attribute.KeyValue {
	return []attribute.KeyValue{
		EncoderKey.String(encoder),
		VendorKey.String(vendor),
		HardwareKey.Bool(hardware),
		BitrateKey.Int64(maxBitrate),
		ScaleKey.String(scale),
	}
}

// SplitAttributes describes a split plan.
func SplitAttributes(parts, iterations int) []attribute.KeyValue {
	return []attribute.KeyValue{
		PartsKey.Int(parts),
		IterationKey.Int(iterations),
	}
}
