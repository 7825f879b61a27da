// SPDX-License-Identifier: MIT
// Copyright (c) 2026 ragekit
// Source: github.com/ragekit/rpf6

package rpf6

import (
	"fmt"
	"path"
	"strings"
)

// NormalizePath converts an archive/internal path to normalized slash-separated form.
// It trims spaces, accepts both "/" and "\", removes leading "./" and "/", and cleans "." segments.
// A trailing slash is dropped; directory entries are canonicalized separately.
func NormalizePath(raw string) string {
	raw = normalizePathForMatching(raw)
	raw = strings.TrimPrefix(raw, "/")
	raw = path.Clean("/" + raw)
	raw = strings.TrimPrefix(raw, "/")
	if raw == "." {
		return ""
	}

	return strings.TrimSuffix(raw, "/")
}

// normalizePathForMatching normalizes user/input paths for matcher use.
func normalizePathForMatching(path string) string {
	path = strings.TrimSpace(path)
	path = strings.ReplaceAll(path, `\`, `/`)
	path = strings.TrimPrefix(path, "./")
	return path
}

// normalizeEntryPath converts an input path to canonical file entry form.
func normalizeEntryPath(raw string) (string, error) {
	normalized := NormalizePath(raw)
	if normalized == "" {
		return "", fmt.Errorf("%w: %q", ErrInvalidEntryPath, raw)
	}

	if !validEntryName(normalized) {
		return "", fmt.Errorf("%w: %q", ErrInvalidEntryPath, raw)
	}

	return normalized, nil
}

// normalizeDirectoryPath converts an input path to canonical directory form
// with exactly one trailing slash.
func normalizeDirectoryPath(raw string) (string, error) {
	normalized, err := normalizeEntryPath(raw)
	if err != nil {
		return "", err
	}

	return normalized + "/", nil
}

// validEntryName reports whether the name fits the null-terminated ASCII
// name table: printable ASCII only, so no embedded NUL or control bytes.
func validEntryName(name string) bool {
	for i := 0; i < len(name); i++ {
		if name[i] < 0x20 || name[i] > 0x7E {
			return false
		}
	}
	return true
}

// entryKey returns the case-insensitive uniqueness key for a canonical path.
func entryKey(name string) string {
	return strings.ToLower(name)
}
