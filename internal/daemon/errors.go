// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package daemon

import "errors"

var (
	// ErrMissingConverter is returned when an app is created without a converter.
	ErrMissingConverter = errors.New("converter is required")

	// ErrMissingInbox is returned when an app is created without an inbox.
	ErrMissingInbox = errors.New("inbox is required")

	// ErrMissingGate is returned when an app is created without an admission gate.
	ErrMissingGate = errors.New("admission gate is required")
)
