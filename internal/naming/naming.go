// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package naming derives filesystem-safe output and part names.
package naming

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/maruel/natural"
	"golang.org/x/text/unicode/norm"
)

// maxNameBytes leaves room for a _partNNN suffix and extension under the
// 255-byte name limit of FAT32/exFAT.
const maxNameBytes = 200

// Sanitize makes name safe on FAT-family filesystems: NFC-normalized,
// without reserved characters or control runes, trimmed of trailing dots
// and spaces, and bounded in length. An empty result becomes "untitled".
func Sanitize(name string) string {
	name = norm.NFC.String(name)

	var b strings.Builder
	lastUnderscore := false
	for _, r := range name {
		switch {
		case unicode.IsSpace(r):
			r = ' '
		case r == utf8.RuneError, unicode.IsControl(r), strings.ContainsRune(`<>:"/\|?*`, r):
			r = '_'
		}
		if r == '_' {
			if lastUnderscore {
				continue
			}
			lastUnderscore = true
		} else {
			lastUnderscore = false
		}
		b.WriteRune(r)
	}

	out := strings.Trim(b.String(), " ._")
	out = truncateUTF8(out, maxNameBytes)
	out = strings.TrimRight(out, " .")
	if out == "" {
		return "untitled"
	}
	return out
}

func truncateUTF8(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// ExpandTemplate fills a {title}_{id}.{ext} style template. Unknown
// placeholders are left as-is.
func ExpandTemplate(tmpl string, fields map[string]string) string {
	pairs := make([]string, 0, len(fields)*2)
	for k, v := range fields {
		if k != "ext" {
			v = Sanitize(v)
		}
		pairs = append(pairs, "{"+k+"}", v)
	}
	return strings.NewReplacer(pairs...).Replace(tmpl)
}

// OutputPath returns the converted file path for input inside dir with the
// given extension.
func OutputPath(dir, input, ext string) string {
	stem := strings.TrimSuffix(filepath.Base(input), filepath.Ext(input))
	return filepath.Join(dir, Sanitize(stem)+"."+ext)
}

// PartPath returns the n-th (1-based) part name for path:
// <stem>_part001.<ext>. Zero padding keeps lexical order equal to playback
// order up to 999 parts.
func PartPath(path string, n int) string {
	ext := filepath.Ext(path)
	stem := strings.TrimSuffix(path, ext)
	return fmt.Sprintf("%s_part%03d%s", stem, n, ext)
}

// PartialSuffix marks a file that is still being written. Encodes go to
// PartialPath and are renamed into place only once complete, so an
// interrupted run never leaves a truncated file under its final name.
const PartialSuffix = ".partial"

// PartialPath returns the in-progress name for path.
func PartialPath(path string) string { return path + PartialSuffix }

// PartGlob matches every part of path. Glob metacharacters in path itself
// ("Song [Official Video].mp4") match literally.
func PartGlob(path string) string {
	ext := filepath.Ext(path)
	return escapeGlob(strings.TrimSuffix(path, ext)) + "_part[0-9][0-9][0-9]*" + escapeGlob(ext)
}

func escapeGlob(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r == '*' || r == '?' || r == '[':
			b.WriteByte('[')
			b.WriteRune(r)
			b.WriteByte(']')
		case r == '\\' && filepath.Separator != '\\':
			b.WriteString(`\\`)
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// SortNatural orders paths so that embedded numbers compare numerically.
func SortNatural(paths []string) {
	sort.Slice(paths, func(i, j int) bool { return natural.Less(paths[i], paths[j]) })
}
