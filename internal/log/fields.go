// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package log

// Canonical field name constants for structured logging.
const (
	// Identity fields
	FieldJobID   = "job_id"
	FieldBatchID = "batch_id"
	FieldProfile = "profile"

	// Process / pipeline fields
	FieldEvent     = "event"
	FieldComponent = "component"
	FieldStage     = "stage"
	FieldAttempt   = "attempt"

	// Media fields
	FieldCodec      = "codec"
	FieldResolution = "resolution"
	FieldFPS        = "fps"
	FieldBitrate    = "bitrate_bps"
	FieldDuration   = "duration"
	FieldEncoder    = "encoder"
	FieldVendor     = "vendor"
	FieldPart       = "part"
	FieldParts      = "parts"
	FieldSize       = "size_bytes"
	FieldLimit      = "limit_bytes"

	// Path / URL fields
	FieldPath   = "path"
	FieldInput  = "input"
	FieldOutput = "output"
	FieldURL    = "url"
)
