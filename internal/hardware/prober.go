// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package hardware

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/ManuGH/mediafit/internal/log"
	"github.com/ManuGH/mediafit/internal/media"
	"github.com/ManuGH/mediafit/internal/metrics"
	"github.com/ManuGH/mediafit/internal/procgroup"
	"github.com/rs/zerolog"
)

const (
	listTimeout  = 5 * time.Second
	smokeTimeout = 10 * time.Second
	smokeQuality = 28
)

// RunFunc executes a tool and returns its combined output.
type RunFunc func(ctx context.Context, bin string, args ...string) ([]byte, error)

func execRun(ctx context.Context, bin string, args ...string) ([]byte, error) {
	// #nosec G204 -- bin is trusted from the profile
	cmd := exec.CommandContext(ctx, bin, args...)
	procgroup.Bind(cmd, 2*time.Second)
	return cmd.CombinedOutput()
}

// Capabilities is the set of hardware vendors that passed the smoke encode.
type Capabilities map[Vendor]bool

// Has reports whether v is usable. Software is always usable.
func (c Capabilities) Has(v Vendor) bool {
	return v == VendorSoftware || c[v]
}

// Prober discovers working hardware encoders.
type Prober struct {
	bin      string
	run      RunFunc
	priority []Vendor
	logger   zerolog.Logger
}

// ProberOption customises a Prober.
type ProberOption func(*Prober)

// WithRunner replaces subprocess execution, for tests.
func WithRunner(run RunFunc) ProberOption {
	return func(p *Prober) { p.run = run }
}

// WithPriority limits probing to the given vendors.
func WithPriority(vendors []Vendor) ProberOption {
	return func(p *Prober) { p.priority = vendors }
}

// NewProber creates a prober for the ffmpeg binary at bin.
func NewProber(bin string, opts ...ProberOption) *Prober {
	if bin == "" {
		bin = "ffmpeg"
	}
	p := &Prober{
		bin:      bin,
		run:      execRun,
		priority: DefaultPriority,
		logger:   log.WithComponent("hardware"),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// ProbeEncoders lists the compiled-in encoders, then smoke-tests every
// hardware candidate present. It never fails: an unreadable encoder list
// yields an empty set, and a failed smoke test drops only that candidate.
func (p *Prober) ProbeEncoders(ctx context.Context) Capabilities {
	caps := Capabilities{}

	listCtx, cancel := context.WithTimeout(ctx, listTimeout)
	out, err := p.run(listCtx, p.bin, "-hide_banner", "-encoders")
	cancel()
	if err != nil {
		p.logger.Warn().Err(err).Msg("encoder probe: ffmpeg -encoders failed, using software")
		return caps
	}
	available := parseEncoderList(out)

	for _, v := range p.priority {
		d, ok := Dialects[v]
		if !ok || v == VendorSoftware {
			continue
		}
		if !available[d.H264] {
			p.logger.Debug().Str(log.FieldEncoder, d.H264).Msg("encoder probe: not in ffmpeg build, skipping")
			metrics.IncProbe(d.H264, "absent")
			continue
		}
		if err := p.smoke(ctx, d); err != nil {
			var pe *media.ProbeError
			if errors.As(err, &pe) {
				p.logger.Warn().Err(pe).Str(log.FieldEncoder, pe.Encoder).Msg("encoder probe: smoke encode failed")
			}
			metrics.IncProbe(d.H264, "failed")
			continue
		}
		caps[v] = true
		metrics.IncProbe(d.H264, "ok")
		p.logger.Info().Str(log.FieldEncoder, d.H264).Str(log.FieldVendor, string(v)).Msg("encoder probe: verified")
	}
	return caps
}

// smoke runs a real 5-frame encode of a synthetic source into the null muxer.
func (p *Prober) smoke(ctx context.Context, d Dialect) error {
	ctx, cancel := context.WithTimeout(ctx, smokeTimeout)
	defer cancel()

	out, err := p.run(ctx, p.bin, SmokeArgs(d)...)
	if err != nil {
		return &media.ProbeError{Encoder: d.H264, Err: fmt.Errorf("%w (output: %s)", err, lastLine(out))}
	}
	return nil
}

// SmokeArgs returns the ffmpeg arguments for a smoke encode with d.
func SmokeArgs(d Dialect) []string {
	args := []string{
		"-hide_banner", "-loglevel", "error",
		"-f", "lavfi",
		"-i", "testsrc=duration=0.2:size=1280x720:rate=25",
		"-vf", "format=" + d.SmokePixFmt,
		"-c:v", d.H264,
		"-preset", d.Preset,
	}
	args = append(args, d.RateControl(smokeQuality)...)
	return append(args, "-frames:v", "5", "-f", "null", "-")
}

// parseEncoderList extracts encoder names from `ffmpeg -encoders` output,
// whose entries look like " V....D h264_nvenc   NVIDIA NVENC H.264 encoder".
func parseEncoderList(out []byte) map[string]bool {
	names := make(map[string]bool)
	sc := bufio.NewScanner(bytes.NewReader(out))
	started := false
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if !started {
			// Entries follow the " ------" separator under the legend.
			started = strings.HasPrefix(line, "---")
			continue
		}
		fields := strings.Fields(line)
		if len(fields) >= 2 {
			names[fields[1]] = true
		}
	}
	return names
}

func lastLine(out []byte) string {
	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}
