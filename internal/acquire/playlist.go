// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package acquire

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ManuGH/mediafit/internal/log"
	"github.com/ManuGH/mediafit/internal/metrics"
)

// ErrEmptyPlaylist is returned when a playlist lists no entries in range.
var ErrEmptyPlaylist = errors.New("playlist has no entries")

const playlistTimeout = 5 * time.Minute

// PlaylistRange selects entries of a playlist. Start and End are 1-based
// and inclusive; End 0 means the last entry.
type PlaylistRange struct {
	Start   int
	End     int
	Reverse bool
}

// Validate rejects ranges yt-dlp would silently misread.
func (r PlaylistRange) Validate() error {
	if r.Start < 0 || r.End < 0 {
		return fmt.Errorf("playlist range %d..%d: indexes must not be negative", r.Start, r.End)
	}
	if r.End > 0 && r.Start > r.End {
		return fmt.Errorf("playlist range %d..%d: start after end", r.Start, r.End)
	}
	return nil
}

// PlaylistArgs builds the flat listing invocation: one entry URL per line,
// nothing downloaded.
func PlaylistArgs(rawURL string, rng PlaylistRange) []string {
	args := []string{
		"--flat-playlist",
		"--yes-playlist",
		"--no-warnings",
		"--print", "%(webpage_url,url)s",
	}
	if rng.Start > 1 {
		args = append(args, "--playlist-start", strconv.Itoa(rng.Start))
	}
	if rng.End > 0 {
		args = append(args, "--playlist-end", strconv.Itoa(rng.End))
	}
	if rng.Reverse {
		args = append(args, "--playlist-reverse")
	}
	return append(args, rawURL)
}

// PlaylistURLs lists the entry URLs of the playlist at rawURL in playlist
// order. Entries without a usable URL are skipped.
func (f *Fetcher) PlaylistURLs(ctx context.Context, rawURL string, rng PlaylistRange) ([]string, error) {
	if !IsURL(rawURL) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidURL, rawURL)
	}
	if err := rng.Validate(); err != nil {
		return nil, err
	}
	if err := f.wait(ctx); err != nil {
		return nil, err
	}
	lctx, cancel := context.WithTimeout(ctx, playlistTimeout)
	defer cancel()

	stdout, stderr, err := f.run(lctx, f.bin, PlaylistArgs(rawURL, rng)...)
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if err != nil {
		metrics.IncFetch("failure")
		return nil, &FetchError{URL: rawURL, Attempts: 1, Stderr: lastLine(stderr), Err: err}
	}

	var urls []string
	skipped := 0
	sc := bufio.NewScanner(bytes.NewReader(stdout))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if !IsURL(line) {
			skipped++
			continue
		}
		urls = append(urls, line)
	}

	logger := log.WithContext(ctx, f.logger)
	logger.Info().
		Str(log.FieldURL, rawURL).
		Int("entries", len(urls)).
		Int("skipped", skipped).
		Msg("playlist listed")
	if len(urls) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrEmptyPlaylist, rawURL)
	}
	return urls, nil
}
