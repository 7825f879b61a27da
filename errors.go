// SPDX-License-Identifier: MIT
// Copyright (c) 2026 ragekit
// Source: github.com/ragekit/rpf6

package rpf6

import "errors"

// Sentinel errors for archive operations. Use errors.Is in callers.
var (
	// ErrInvalidHeader means the archive is missing, truncated, or has a bad header or TOC.
	ErrInvalidHeader = errors.New("invalid RPF6 archive: missing or bad header")
	// ErrNilReader means the reader is nil.
	ErrNilReader = errors.New("reader is nil")
	// ErrNilWriter means the writer is nil.
	ErrNilWriter = errors.New("writer is nil")
	// ErrEntryNotFound means the entry is not found.
	ErrEntryNotFound = errors.New("entry not found")
	// ErrEntryIsDirectory means a payload operation targeted a directory entry.
	ErrEntryIsDirectory = errors.New("entry is a directory")
	// ErrEntryOutOfRange means a stored payload region lies beyond the archive size.
	ErrEntryOutOfRange = errors.New("entry payload out of archive range")
	// ErrClosed means the reader or session is already closed.
	ErrClosed = errors.New("reader or session already closed")
	// ErrSizeOverflow means a size field exceeds the uint32 layout limit.
	ErrSizeOverflow = errors.New("size exceeds uint32 layout limit")
	// ErrArchiveTooLarge means a payload page index does not fit the 3-byte offset field.
	ErrArchiveTooLarge = errors.New("archive exceeds 3-byte page offset limit")
	// ErrCompressLevel means the DEFLATE level is outside 0..9.
	ErrCompressLevel = errors.New("compression level outside 0..9")
	// ErrInvalidCompressPattern means one or more compression rules are invalid.
	ErrInvalidCompressPattern = errors.New("invalid compress rules")
	// ErrInvalidEntryPath means an entry path is empty or invalid after normalization.
	ErrInvalidEntryPath = errors.New("invalid entry path")
	// ErrDuplicateEntryPath means two entries resolve to the same path (case-insensitive).
	ErrDuplicateEntryPath = errors.New("duplicate entry path")
	// ErrInvalidExtractPath means an archive entry path is invalid as extraction destination.
	ErrInvalidExtractPath = errors.New("invalid extract path")
)
