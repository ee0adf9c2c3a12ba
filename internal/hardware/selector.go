// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package hardware

import (
	"context"
	"sync"

	"github.com/ManuGH/mediafit/internal/log"
)

// CapabilityProber reports usable hardware vendors.
type CapabilityProber interface {
	ProbeEncoders(ctx context.Context) Capabilities
}

// Selector picks the encoder once per process lifetime.
type Selector struct {
	prober   CapabilityProber
	priority []Vendor

	once   sync.Once
	choice EncoderChoice
}

// NewSelector probes lazily on the first SelectEncoder call.
// A nil priority uses DefaultPriority.
func NewSelector(prober CapabilityProber, priority []Vendor) *Selector {
	if priority == nil {
		priority = DefaultPriority
	}
	return &Selector{prober: prober, priority: priority}
}

// Fixed returns a Selector that always yields choice without probing.
func Fixed(choice EncoderChoice) *Selector {
	s := &Selector{}
	s.once.Do(func() { s.choice = choice })
	return s
}

// SelectEncoder returns the first vendor in priority order that passed
// probing, or Software. It never fails.
func (s *Selector) SelectEncoder(ctx context.Context) EncoderChoice {
	s.once.Do(func() {
		var caps Capabilities
		if s.prober != nil {
			caps = s.prober.ProbeEncoders(ctx)
		}
		s.choice = Select(caps, s.priority)
		logger := log.WithComponent("hardware")
		logger.Info().
			Str(log.FieldEncoder, s.choice.Dialect.H264).
			Str(log.FieldVendor, string(s.choice.Vendor)).
			Int("max_sessions", s.choice.Dialect.MaxSessions).
			Msg("encoder selected")
	})
	return s.choice
}

// Select applies the priority order to a probe result.
func Select(caps Capabilities, priority []Vendor) EncoderChoice {
	for _, v := range priority {
		if v != VendorSoftware && caps.Has(v) {
			return Choose(v)
		}
	}
	return Software()
}
