// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package batch

import (
	"bufio"
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/ManuGH/mediafit/internal/acquire"
	"github.com/ManuGH/mediafit/internal/naming"
	"github.com/spf13/afero"
)

// MediaExtensions are the local file types picked up from directories.
var MediaExtensions = map[string]bool{
	".mp4": true, ".mkv": true, ".webm": true, ".avi": true, ".mov": true,
	".m4v": true, ".ts": true, ".flv": true, ".wmv": true, ".mpg": true,
	".mpeg": true, ".m4a": true, ".mp3": true, ".opus": true, ".ogg": true,
}

// IsMedia reports whether path has a known media extension.
func IsMedia(path string) bool {
	return MediaExtensions[strings.ToLower(filepath.Ext(path))]
}

// ExpandInputs resolves command-line arguments into inputs. URLs pass
// through; directories contribute their media files in natural order;
// .txt files are read as lists (one input per line, # comments). Duplicates
// are dropped keeping the first occurrence.
func ExpandInputs(fs afero.Fs, args []string) ([]string, error) {
	var out []string
	seen := make(map[string]bool)
	add := func(in string) {
		if !seen[in] {
			seen[in] = true
			out = append(out, in)
		}
	}

	for _, arg := range args {
		if acquire.IsURL(arg) {
			add(arg)
			continue
		}
		fi, err := fs.Stat(arg)
		if err != nil {
			return nil, fmt.Errorf("input %s: %w", arg, err)
		}
		switch {
		case fi.IsDir():
			files, err := listMedia(fs, arg)
			if err != nil {
				return nil, err
			}
			for _, f := range files {
				add(f)
			}
		case strings.EqualFold(filepath.Ext(arg), ".txt"):
			lines, err := readList(fs, arg)
			if err != nil {
				return nil, err
			}
			for _, l := range lines {
				add(l)
			}
		default:
			add(arg)
		}
	}
	return out, nil
}

// PlaylistLister enumerates the entries of a remote playlist.
type PlaylistLister interface {
	PlaylistURLs(ctx context.Context, rawURL string, rng acquire.PlaylistRange) ([]string, error)
}

// ExpandPlaylists replaces every URL in inputs with the entries of the
// playlist it names, keeping input order. Local paths pass through.
// Duplicates are dropped keeping the first occurrence.
func ExpandPlaylists(ctx context.Context, lister PlaylistLister, inputs []string, rng acquire.PlaylistRange) ([]string, error) {
	var out []string
	seen := make(map[string]bool)
	add := func(in string) {
		if !seen[in] {
			seen[in] = true
			out = append(out, in)
		}
	}
	for _, in := range inputs {
		if !acquire.IsURL(in) {
			add(in)
			continue
		}
		entries, err := lister.PlaylistURLs(ctx, in, rng)
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			add(e)
		}
	}
	return out, nil
}

func listMedia(fs afero.Fs, dir string) ([]string, error) {
	entries, err := afero.ReadDir(fs, dir)
	if err != nil {
		return nil, fmt.Errorf("read dir %s: %w", dir, err)
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") || !IsMedia(e.Name()) {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	naming.SortNatural(files)
	return files, nil
}

func readList(fs afero.Fs, path string) ([]string, error) {
	f, err := fs.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open list %s: %w", path, err)
	}
	defer f.Close()

	var lines []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		lines = append(lines, line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read list %s: %w", path, err)
	}
	return lines, nil
}
