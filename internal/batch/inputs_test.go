// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package batch

import (
	"context"
	"testing"

	"github.com/ManuGH/mediafit/internal/acquire"
	"github.com/google/go-cmp/cmp"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpandInputs(t *testing.T) {
	fs := afero.NewMemMapFs()
	for _, name := range []string{
		"/media/ep10.mkv", "/media/ep2.mkv", "/media/ep1.mkv",
		"/media/notes.nfo", "/media/.hidden.mp4", "/media/sub/ep3.mkv",
		"/single.avi",
	} {
		require.NoError(t, afero.WriteFile(fs, name, nil, 0o644))
	}
	list := "# queue\nhttps://example.com/watch?v=9\n\n/single.avi\n"
	require.NoError(t, afero.WriteFile(fs, "/queue.txt", []byte(list), 0o644))

	got, err := ExpandInputs(fs, []string{
		"/media",
		"https://example.com/watch?v=1",
		"/queue.txt",
		"/single.avi",
	})
	require.NoError(t, err)

	want := []string{
		"/media/ep1.mkv",
		"/media/ep2.mkv",
		"/media/ep10.mkv",
		"https://example.com/watch?v=1",
		"https://example.com/watch?v=9",
		"/single.avi",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("ExpandInputs mismatch (-want +got):\n%s", diff)
	}
}

func TestExpandInputs_MissingPath(t *testing.T) {
	_, err := ExpandInputs(afero.NewMemMapFs(), []string{"/nope.mkv"})
	assert.Error(t, err)
}

func TestIsMedia(t *testing.T) {
	assert.True(t, IsMedia("a.MKV"))
	assert.True(t, IsMedia("/x/y.webm"))
	assert.False(t, IsMedia("a.part"))
	assert.False(t, IsMedia("a.txt"))
}

type fakeLister struct {
	entries map[string][]string
	ranges  []acquire.PlaylistRange
}

func (l *fakeLister) PlaylistURLs(_ context.Context, rawURL string, rng acquire.PlaylistRange) ([]string, error) {
	l.ranges = append(l.ranges, rng)
	entries, ok := l.entries[rawURL]
	if !ok {
		return nil, acquire.ErrEmptyPlaylist
	}
	return entries, nil
}

func TestExpandPlaylists(t *testing.T) {
	lister := &fakeLister{entries: map[string][]string{
		"https://example.com/playlist?list=A": {"https://example.com/watch?v=1", "https://example.com/watch?v=2"},
		"https://example.com/playlist?list=B": {"https://example.com/watch?v=2", "https://example.com/watch?v=3"},
	}}
	rng := acquire.PlaylistRange{Start: 1, End: 10}

	got, err := ExpandPlaylists(context.Background(), lister, []string{
		"https://example.com/playlist?list=A",
		"/local/clip.mkv",
		"https://example.com/playlist?list=B",
	}, rng)
	require.NoError(t, err)

	want := []string{
		"https://example.com/watch?v=1",
		"https://example.com/watch?v=2",
		"/local/clip.mkv",
		"https://example.com/watch?v=3",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("ExpandPlaylists mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, []acquire.PlaylistRange{rng, rng}, lister.ranges)
}

func TestExpandPlaylists_ListingFailureStops(t *testing.T) {
	_, err := ExpandPlaylists(context.Background(), &fakeLister{}, []string{"https://example.com/playlist?list=X"}, acquire.PlaylistRange{})
	assert.ErrorIs(t, err, acquire.ErrEmptyPlaylist)
}
