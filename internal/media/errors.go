// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package media

import (
	"fmt"
	"strings"
)

// ProbeError reports that a hardware encoder candidate failed detection.
// It never leaves the hardware package: the candidate is excluded instead.
type ProbeError struct {
	Encoder string
	Err     error
}

func (e *ProbeError) Error() string {
	return fmt.Sprintf("probe %s: %v", e.Encoder, e.Err)
}

func (e *ProbeError) Unwrap() error { return e.Err }

// AnalysisError reports an input that could not be opened or has no streams.
type AnalysisError struct {
	Path string
	Err  error
}

func (e *AnalysisError) Error() string {
	return fmt.Sprintf("analyze %s: %v", e.Path, e.Err)
}

func (e *AnalysisError) Unwrap() error { return e.Err }

// PlanningError reports an internally inconsistent profile or plan.
type PlanningError struct {
	Profile string
	Reason  string
}

func (e *PlanningError) Error() string {
	if e.Profile == "" {
		return "invalid profile: " + e.Reason
	}
	return fmt.Sprintf("invalid profile %q: %s", e.Profile, e.Reason)
}

// EncodeError reports a media engine run that exited non-zero.
type EncodeError struct {
	Output   string
	ExitCode int
	// Stderr holds the last lines the engine printed.
	Stderr []string
	Err    error
}

func (e *EncodeError) Error() string {
	msg := fmt.Sprintf("encode %s: exit code %d", e.Output, e.ExitCode)
	if len(e.Stderr) > 0 {
		msg += ": " + strings.TrimSpace(e.Stderr[len(e.Stderr)-1])
	}
	return msg
}

func (e *EncodeError) Unwrap() error { return e.Err }

// SplitExceededError reports a part that stayed above the size limit after
// the bounded number of bitrate reductions.
type SplitExceededError struct {
	Part       int
	Path       string
	Size       int64
	Limit      int64
	Iterations int
}

func (e *SplitExceededError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("split part %d: estimated %d bytes exceeds limit %d after %d iterations",
			e.Part, e.Size, e.Limit, e.Iterations)
	}
	return fmt.Sprintf("split part %d (%s): %d bytes exceeds limit %d after %d iterations",
		e.Part, e.Path, e.Size, e.Limit, e.Iterations)
}
