// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package acquire

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/ManuGH/mediafit/internal/media"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const infoJSON = `{"id":"abc123","title":"Road Trip 100%","uploader":"someone","duration":95.5,"webpage_url":"https://example.com/watch?v=abc123"}`

type fakeYTDLP struct {
	mu       sync.Mutex
	calls    [][]string
	download func(call int, args []string) ([]byte, []byte, error)
	nDown    int
}

func (f *fakeYTDLP) run(_ context.Context, _ string, args ...string) ([]byte, []byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, args)
	if slices.Contains(args, "--dump-single-json") {
		return []byte(infoJSON), nil, nil
	}
	f.nDown++
	return f.download(f.nDown, args)
}

type memCache struct {
	infos map[string]media.VideoInfo
}

func (c *memCache) LookupInfo(url string) (media.VideoInfo, bool, error) {
	info, ok := c.infos[url]
	return info, ok, nil
}

func (c *memCache) StoreInfo(url string, info media.VideoInfo) error {
	c.infos[url] = info
	return nil
}

func TestIsURL(t *testing.T) {
	assert.True(t, IsURL("https://example.com/watch?v=1"))
	assert.True(t, IsURL("http://example.com"))
	assert.False(t, IsURL("/tmp/video.mp4"))
	assert.False(t, IsURL("ftp://example.com/x"))
	assert.False(t, IsURL("https://"))
}

func TestInfo_ParsesAndCaches(t *testing.T) {
	fake := &fakeYTDLP{}
	cache := &memCache{infos: map[string]media.VideoInfo{}}
	f := NewFetcher("yt-dlp", Options{}, WithRunFunc(fake.run), WithInfoCache(cache))

	url := "https://example.com/watch?v=abc123"
	info, err := f.Info(context.Background(), url)
	require.NoError(t, err)
	assert.Equal(t, "abc123", info.ID)
	assert.Equal(t, "Road Trip 100%", info.Title)
	assert.Equal(t, 95500*time.Millisecond, info.Duration)

	_, err = f.Info(context.Background(), url)
	require.NoError(t, err)
	assert.Len(t, fake.calls, 1, "second lookup is served from the cache")
}

func TestInfo_ConcurrentLookupsShareOneRun(t *testing.T) {
	release := make(chan struct{})
	var mu sync.Mutex
	runs := 0
	run := func(_ context.Context, _ string, _ ...string) ([]byte, []byte, error) {
		mu.Lock()
		runs++
		mu.Unlock()
		<-release
		return []byte(infoJSON), nil, nil
	}
	f := NewFetcher("yt-dlp", Options{}, WithRunFunc(run))

	const n = 4
	var started, done sync.WaitGroup
	started.Add(n)
	done.Add(n)
	errs := make(chan error, n)
	for range n {
		go func() {
			defer done.Done()
			started.Done()
			_, err := f.Info(context.Background(), "https://example.com/watch?v=abc123")
			errs <- err
		}()
	}
	started.Wait()
	time.Sleep(50 * time.Millisecond)
	close(release)
	done.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}
	assert.Equal(t, 1, runs)
}

func TestInfo_RejectsLocalPath(t *testing.T) {
	f := NewFetcher("", Options{})
	_, err := f.Info(context.Background(), "/videos/a.mp4")
	assert.ErrorIs(t, err, ErrInvalidURL)
}

func TestArgs(t *testing.T) {
	f := NewFetcher("yt-dlp", Options{Retries: 10, FragmentRetries: 5, RateLimitMbps: 8})
	sel := PlanSourceFormat(media.DefaultProfile())
	info := media.VideoInfo{ID: "abc123", Title: "A/B 50%"}

	args := f.Args("https://example.com/v", "/dl", sel, info)
	want := []string{
		"--no-playlist",
		"--no-progress",
		"-f", sel.String(),
		"--merge-output-format", "mp4",
		"-o", filepath.Join("/dl", "A_B 50%%_abc123.%(ext)s"),
		"--retries", "10",
		"--fragment-retries", "5",
		"--limit-rate", "1048576",
		"--print", "after_move:filepath",
		"--no-simulate",
		"https://example.com/v",
	}
	assert.Equal(t, want, args)
}

func TestFetch_RetriesThenSucceeds(t *testing.T) {
	dir := t.TempDir()
	produced := filepath.Join(dir, "Road Trip 100%_abc123.mp4")
	require.NoError(t, os.WriteFile(produced, []byte("x"), 0o600))

	fake := &fakeYTDLP{download: func(call int, _ []string) ([]byte, []byte, error) {
		if call == 1 {
			return nil, []byte("ERROR: HTTP Error 503\n"), errors.New("exit status 1")
		}
		return []byte("[info] something\n" + produced + "\n"), nil, nil
	}}
	f := NewFetcher("yt-dlp", Options{Backoff: time.Millisecond}, WithRunFunc(fake.run))

	path, err := f.Fetch(context.Background(), "https://example.com/watch?v=abc123", dir, PlanSourceFormat(media.DefaultProfile()))
	require.NoError(t, err)
	assert.Equal(t, produced, path)
	assert.Equal(t, 2, fake.nDown)
}

func TestFetch_AllAttemptsFail(t *testing.T) {
	fake := &fakeYTDLP{download: func(int, []string) ([]byte, []byte, error) {
		return nil, []byte("ERROR: Video unavailable\n"), errors.New("exit status 1")
	}}
	f := NewFetcher("yt-dlp", Options{Attempts: 2, Backoff: time.Millisecond}, WithRunFunc(fake.run))

	_, err := f.Fetch(context.Background(), "https://example.com/v", t.TempDir(), PlanSourceFormat(media.DefaultProfile()))
	var fe *FetchError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, 2, fe.Attempts)
	assert.Equal(t, "ERROR: Video unavailable", fe.Stderr)
}

func TestFetch_NoOutput(t *testing.T) {
	fake := &fakeYTDLP{download: func(int, []string) ([]byte, []byte, error) {
		return nil, nil, nil
	}}
	f := NewFetcher("yt-dlp", Options{}, WithRunFunc(fake.run))

	_, err := f.Fetch(context.Background(), "https://example.com/v", t.TempDir(), PlanSourceFormat(media.DefaultProfile()))
	assert.ErrorIs(t, err, ErrNoOutput)
}

func TestFetch_PacingHonoursCancellation(t *testing.T) {
	fake := &fakeYTDLP{}
	f := NewFetcher("yt-dlp", Options{StartsPerMinute: 1}, WithRunFunc(fake.run))

	// The first start consumes the only token.
	_, err := f.Info(context.Background(), "https://example.com/a")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = f.Info(ctx, "https://example.com/b")
	require.Error(t, err)
	assert.Len(t, fake.calls, 1)
}

func TestBackoffFor(t *testing.T) {
	f := NewFetcher("", Options{})
	assert.Equal(t, 4*time.Second, f.backoffFor(0))
	assert.Equal(t, 8*time.Second, f.backoffFor(1))
	assert.Equal(t, 10*time.Second, f.backoffFor(2))
}
