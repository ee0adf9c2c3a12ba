// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package acquire

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/ManuGH/mediafit/internal/log"
	"github.com/ManuGH/mediafit/internal/media"
	"github.com/ManuGH/mediafit/internal/metrics"
	"github.com/ManuGH/mediafit/internal/naming"
	"github.com/ManuGH/mediafit/internal/procgroup"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
)

// ErrNoOutput is returned when yt-dlp exits cleanly without reporting a file.
var ErrNoOutput = errors.New("acquisition produced no output file")

// ErrInvalidURL is returned for inputs that are not http(s) URLs.
var ErrInvalidURL = errors.New("invalid url")

const (
	defaultTemplate   = "{title}_{id}.{ext}"
	defaultAttempts   = 3
	defaultBackoff    = 4 * time.Second
	defaultMaxBackoff = 10 * time.Second
	infoTimeout       = time.Minute
	killGrace         = 5 * time.Second
)

// FetchError reports a yt-dlp run that failed on every attempt.
type FetchError struct {
	URL      string
	Attempts int
	Stderr   string
	Err      error
}

func (e *FetchError) Error() string {
	msg := fmt.Sprintf("fetch %s: %v (after %d attempts)", e.URL, e.Err, e.Attempts)
	if e.Stderr != "" {
		msg += ": " + e.Stderr
	}
	return msg
}

func (e *FetchError) Unwrap() error { return e.Err }

// RunFunc runs yt-dlp and returns stdout and stderr separately.
type RunFunc func(ctx context.Context, bin string, args ...string) (stdout, stderr []byte, err error)

func execRun(ctx context.Context, bin string, args ...string) ([]byte, []byte, error) {
	// #nosec G204 -- bin is trusted from the profile; the URL is passed as a single argument
	cmd := exec.CommandContext(ctx, bin, args...)
	procgroup.Bind(cmd, killGrace)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stdout.Bytes(), stderr.Bytes(), err
}

// InfoCache stores remote metadata between runs.
type InfoCache interface {
	LookupInfo(url string) (media.VideoInfo, bool, error)
	StoreInfo(url string, info media.VideoInfo) error
}

// Options mirrors the download section of a profile.
type Options struct {
	// Template names fetched files; {title}, {id} and {ext} are expanded.
	Template        string
	Retries         int
	FragmentRetries int
	// RateLimitMbps caps download bandwidth; 0 disables the cap.
	RateLimitMbps float64
	// StartsPerMinute paces yt-dlp invocations; 0 disables pacing.
	StartsPerMinute int

	// Attempts is how many times a failed yt-dlp run is repeated.
	Attempts   int
	Backoff    time.Duration
	MaxBackoff time.Duration
}

func normalizeOptions(o Options) Options {
	if strings.TrimSpace(o.Template) == "" {
		o.Template = defaultTemplate
	}
	if o.Attempts <= 0 {
		o.Attempts = defaultAttempts
	}
	if o.Backoff <= 0 {
		o.Backoff = defaultBackoff
	}
	if o.MaxBackoff <= 0 {
		o.MaxBackoff = defaultMaxBackoff
	}
	return o
}

// Fetcher downloads single URLs with yt-dlp.
type Fetcher struct {
	bin     string
	opts    Options
	run     RunFunc
	limiter *rate.Limiter
	cache   InfoCache
	// lookups collapses concurrent metadata requests for one URL.
	lookups singleflight.Group
	logger  zerolog.Logger
}

// FetcherOption customises a Fetcher.
type FetcherOption func(*Fetcher)

// WithRunFunc replaces subprocess execution, for tests.
func WithRunFunc(run RunFunc) FetcherOption {
	return func(f *Fetcher) { f.run = run }
}

// WithInfoCache enables the metadata cache.
func WithInfoCache(c InfoCache) FetcherOption {
	return func(f *Fetcher) { f.cache = c }
}

// NewFetcher creates a fetcher for the yt-dlp binary at bin.
func NewFetcher(bin string, opts Options, fopts ...FetcherOption) *Fetcher {
	if bin == "" {
		bin = "yt-dlp"
	}
	opts = normalizeOptions(opts)
	f := &Fetcher{
		bin:    bin,
		opts:   opts,
		run:    execRun,
		logger: log.WithComponent("acquire"),
	}
	if opts.StartsPerMinute > 0 {
		f.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(opts.StartsPerMinute)), 1)
	}
	for _, o := range fopts {
		o(f)
	}
	return f
}

// IsURL reports whether s looks like an http(s) URL rather than a local path.
func IsURL(s string) bool {
	u, err := url.Parse(s)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

type ytInfo struct {
	ID         string  `json:"id"`
	Title      string  `json:"title"`
	Uploader   string  `json:"uploader"`
	Duration   float64 `json:"duration"`
	WebpageURL string  `json:"webpage_url"`
}

// Info returns remote metadata for rawURL, consulting the cache first.
func (f *Fetcher) Info(ctx context.Context, rawURL string) (media.VideoInfo, error) {
	if !IsURL(rawURL) {
		return media.VideoInfo{}, fmt.Errorf("%w: %q", ErrInvalidURL, rawURL)
	}
	if f.cache != nil {
		info, ok, err := f.cache.LookupInfo(rawURL)
		if err != nil {
			f.logger.Warn().Err(err).Str(log.FieldURL, rawURL).Msg("metadata cache lookup failed")
		}
		metrics.IncInfoCache(ok)
		if ok {
			return info, nil
		}
	}

	v, err, shared := f.lookups.Do(rawURL, func() (any, error) {
		return f.lookupInfo(ctx, rawURL)
	})
	if err != nil {
		return media.VideoInfo{}, err
	}
	if shared {
		f.logger.Debug().Str(log.FieldURL, rawURL).Msg("metadata lookup shared")
	}
	return v.(media.VideoInfo), nil
}

func (f *Fetcher) lookupInfo(ctx context.Context, rawURL string) (media.VideoInfo, error) {
	if err := f.wait(ctx); err != nil {
		return media.VideoInfo{}, err
	}
	ctx, cancel := context.WithTimeout(ctx, infoTimeout)
	defer cancel()

	stdout, stderr, err := f.run(ctx, f.bin, "--dump-single-json", "--skip-download", "--no-playlist", "--no-warnings", rawURL)
	if err != nil {
		return media.VideoInfo{}, &FetchError{URL: rawURL, Attempts: 1, Stderr: lastLine(stderr), Err: err}
	}
	var raw ytInfo
	if err := json.Unmarshal(stdout, &raw); err != nil {
		return media.VideoInfo{}, fmt.Errorf("decode metadata for %s: %w", rawURL, err)
	}
	if raw.ID == "" {
		return media.VideoInfo{}, fmt.Errorf("metadata for %s has no id", rawURL)
	}
	info := media.VideoInfo{
		ID:       raw.ID,
		Title:    raw.Title,
		Uploader: raw.Uploader,
		Duration: time.Duration(raw.Duration * float64(time.Second)),
		URL:      raw.WebpageURL,
	}
	if info.URL == "" {
		info.URL = rawURL
	}

	if f.cache != nil {
		if err := f.cache.StoreInfo(rawURL, info); err != nil {
			f.logger.Warn().Err(err).Str(log.FieldURL, rawURL).Msg("metadata cache store failed")
		}
	}
	return info, nil
}

// Fetch downloads rawURL into outDir using selection sel and returns the
// path of the produced file.
func (f *Fetcher) Fetch(ctx context.Context, rawURL, outDir string, sel Selection) (string, error) {
	info, err := f.Info(ctx, rawURL)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(outDir, 0o750); err != nil {
		return "", fmt.Errorf("create download dir: %w", err)
	}

	args := f.Args(rawURL, outDir, sel, info)
	logger := log.WithContext(ctx, f.logger).With().Str(log.FieldURL, rawURL).Logger()
	logger.Info().
		Str("format", sel.String()).
		Int("max_height", sel.MaxHeight).
		Int("max_fps", sel.MaxFPS).
		Int("max_abr_kbps", sel.MaxAudioKbps).
		Msg("download started")

	var lastErr error
	var lastStderr string
	for attempt := 1; attempt <= f.opts.Attempts; attempt++ {
		if err := f.wait(ctx); err != nil {
			return "", err
		}
		stdout, stderr, runErr := f.run(ctx, f.bin, args...)
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		if runErr == nil {
			path := lastLine(stdout)
			if path == "" {
				metrics.IncFetch("no_output")
				return "", fmt.Errorf("%w: %s", ErrNoOutput, rawURL)
			}
			if _, err := os.Stat(path); err != nil {
				metrics.IncFetch("no_output")
				return "", fmt.Errorf("%w: %s reported %s: %v", ErrNoOutput, rawURL, path, err)
			}
			metrics.IncFetch("success")
			logger.Info().Str(log.FieldPath, path).Int(log.FieldAttempt, attempt).Msg("download completed")
			return path, nil
		}

		metrics.IncFetch("failure")
		lastErr, lastStderr = runErr, lastLine(stderr)
		logger.Warn().Err(runErr).Int(log.FieldAttempt, attempt).Str("stderr", lastStderr).Msg("download attempt failed")
		if attempt == f.opts.Attempts {
			break
		}
		if err := sleepWithContext(ctx, f.backoffFor(attempt-1)); err != nil {
			return "", err
		}
	}
	return "", &FetchError{URL: rawURL, Attempts: f.opts.Attempts, Stderr: lastStderr, Err: lastErr}
}

// Args builds the yt-dlp download invocation.
func (f *Fetcher) Args(rawURL, outDir string, sel Selection, info media.VideoInfo) []string {
	name := naming.ExpandTemplate(f.opts.Template, map[string]string{
		// '%' would start a yt-dlp output template field.
		"title": strings.ReplaceAll(info.Title, "%", "%%"),
		"id":    strings.ReplaceAll(info.ID, "%", "%%"),
		"ext":   "%(ext)s",
	})

	args := []string{
		"--no-playlist",
		"--no-progress",
		"-f", sel.String(),
		"--merge-output-format", sel.MergeFormat,
		"-o", filepath.Join(outDir, name),
		"--retries", strconv.Itoa(f.opts.Retries),
		"--fragment-retries", strconv.Itoa(f.opts.FragmentRetries),
	}
	if f.opts.RateLimitMbps > 0 {
		bytesPerSec := int64(f.opts.RateLimitMbps * 1024 * 1024 / 8)
		args = append(args, "--limit-rate", strconv.FormatInt(bytesPerSec, 10))
	}
	return append(args, "--print", "after_move:filepath", "--no-simulate", rawURL)
}

func (f *Fetcher) wait(ctx context.Context) error {
	if f.limiter == nil {
		return ctx.Err()
	}
	return f.limiter.Wait(ctx)
}

func (f *Fetcher) backoffFor(retry int) time.Duration {
	d := f.opts.Backoff << retry
	if d <= 0 || d > f.opts.MaxBackoff {
		return f.opts.MaxBackoff
	}
	return d
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func lastLine(out []byte) string {
	var last string
	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			last = line
		}
	}
	return last
}
