// SPDX-License-Identifier: MIT
// Copyright (c) 2026 ragekit
// Source: github.com/ragekit/rpf6

package rpf6

import (
	"runtime"
	"time"
)

// Internal binary layout and format limits.
const (
	archiveMagic = 0x52504636 // "RPF6" read as a big-endian word
	headerSize   = 24         // fixed archive header size in bytes
	tocEntrySize = 16         // one table-of-contents record
	pageSize     = 2048       // payload alignment unit
	maxPageIndex = 0xFFFFFF   // data offset is stored in 3 bytes
)

// Entry flag byte layout.
const (
	flagCompressed   = 0x80 // payload is a raw DEFLATE stream
	flagDirectory    = 0x40 // entry is a directory marker
	resourceTypeMask = 0x3F // low six bits tag the resource type
)

// Default writer tuning values.
const (
	DefaultWriteBuffer   = 16 * 1024 * 1024
	DefaultCompressLevel = 6
)

// EntryInfo describes a single parsed archive entry.
type EntryInfo struct {
	// Name is the canonical entry path; directories end with "/".
	Name string `json:"name" yaml:"name"`
	// NameOffset is byte offset of the entry name inside the name table.
	NameOffset uint32 `json:"name_offset" yaml:"name_offset"`
	// DataSize is stored payload size in bytes.
	DataSize uint32 `json:"data_size" yaml:"data_size"`
	// DataOffset is the payload page index; byte offset is DataOffset * 2048.
	DataOffset uint32 `json:"data_offset" yaml:"data_offset"`
	// UncompressedSize is payload size after decompression; equals DataSize for raw entries.
	UncompressedSize uint32 `json:"uncompressed_size" yaml:"uncompressed_size"`
	// ResourceType is the six-bit resource tag from the flag byte.
	ResourceType uint8 `json:"resource_type,omitempty" yaml:"resource_type,omitempty"`
	// Compressed reports whether the payload is stored as a DEFLATE stream.
	Compressed bool `json:"compressed,omitempty" yaml:"compressed,omitempty"`
	// Directory reports whether the entry is a directory marker.
	Directory bool `json:"directory,omitempty" yaml:"directory,omitempty"`
}

// ByteOffset returns the payload position in the archive file.
func (e *EntryInfo) ByteOffset() int64 {
	return int64(e.DataOffset) * pageSize
}

// Flags composes the entry flag byte from the type bits and resource tag.
func (e *EntryInfo) Flags() uint8 {
	f := e.ResourceType & resourceTypeMask
	if e.Compressed {
		f |= flagCompressed
	}
	if e.Directory {
		f |= flagDirectory
	}
	return f
}

// ArchiveInfo summarizes parsed archive metadata without payload reads.
type ArchiveInfo struct {
	// EntryCount is total table-of-contents records.
	EntryCount int `json:"entry_count" yaml:"entry_count"`
	// FileCount is number of file entries.
	FileCount int `json:"file_count" yaml:"file_count"`
	// DirectoryCount is number of directory entries.
	DirectoryCount int `json:"directory_count" yaml:"directory_count"`
	// CompressedCount is number of file entries stored compressed.
	CompressedCount int `json:"compressed_count,omitempty" yaml:"compressed_count,omitempty"`
	// NamesLength is name table size in bytes.
	NamesLength uint32 `json:"names_length" yaml:"names_length"`
	// SpecialFlag is the last archive header word, preserved verbatim.
	SpecialFlag uint32 `json:"special_flag,omitempty" yaml:"special_flag,omitempty"`
	// StoredBytes is total payload bytes as stored in the archive.
	StoredBytes uint64 `json:"stored_bytes" yaml:"stored_bytes"`
	// UncompressedBytes is total payload bytes after decompression.
	UncompressedBytes uint64 `json:"uncompressed_bytes" yaml:"uncompressed_bytes"`
}

// AddOptions configures one staged file entry.
type AddOptions struct {
	// Compress stores the payload as a raw DEFLATE stream when it is
	// actually smaller than the input.
	Compress bool `json:"compress,omitempty" yaml:"compress,omitempty"`
	// Level is the DEFLATE level 1..9; zero selects DefaultCompressLevel.
	Level int `json:"level,omitempty" yaml:"level,omitempty"`
	// ResourceType overrides the extension-derived resource tag; only the
	// low six bits are stored.
	ResourceType uint8 `json:"resource_type,omitempty" yaml:"resource_type,omitempty"`
}

// ProgressFunc receives serialization progress. Percent grows from 0 to
// 100 over one write; on failure the callback receives 0 and the error
// text as the phase.
type ProgressFunc func(percent int, phase string)

// WriteOptions configures archive serialization.
type WriteOptions struct {
	// OnProgress is called at serialization milestones.
	OnProgress ProgressFunc `json:"-" yaml:"-"`
	// SpecialFlag is stored in the last header word. The patcher keeps the
	// source archive value when this is left zero.
	SpecialFlag uint32 `json:"special_flag,omitempty" yaml:"special_flag,omitempty"`
	// BufferSize is buffered writer size in bytes.
	BufferSize int `json:"buffer_size,omitempty" yaml:"buffer_size,omitempty"`
}

// WriteResult contains serialization output statistics.
type WriteResult struct {
	// Entries is number of table-of-contents records written.
	Entries int `json:"entries" yaml:"entries"`
	// Files is number of file entries written.
	Files int `json:"files" yaml:"files"`
	// Directories is number of directory entries written.
	Directories int `json:"directories" yaml:"directories"`
	// CompressedEntries is number of file entries with compressed payload.
	CompressedEntries int `json:"compressed_entries,omitempty" yaml:"compressed_entries,omitempty"`
	// DataBytes is total stored payload bytes without padding.
	DataBytes int64 `json:"data_bytes" yaml:"data_bytes"`
	// PaddingBytes is total alignment padding written after the name table and payloads.
	PaddingBytes int64 `json:"padding_bytes" yaml:"padding_bytes"`
	// TotalBytes is final archive size in bytes.
	TotalBytes int64 `json:"total_bytes" yaml:"total_bytes"`
	// Duration is end-to-end serialization duration.
	Duration time.Duration `json:"duration,omitempty" yaml:"duration,omitempty"`
}

// ExtractFileMode controls output file open behavior during extraction.
type ExtractFileMode string

// Output file creation policies for extraction.
const (
	// ExtractFileModeAuto first tries create-only, then falls back to truncate for existing files.
	ExtractFileModeAuto ExtractFileMode = "auto"
	// ExtractFileModeTruncate opens existing files with truncate and creates missing files.
	ExtractFileModeTruncate ExtractFileMode = "truncate"
	// ExtractFileModeCreateOnly creates files only when absent and fails on existing files.
	ExtractFileModeCreateOnly ExtractFileMode = "create_only"
)

// ExtractOptions configures batch extraction behavior.
type ExtractOptions struct {
	// OnEntryDone is called after each entry attempt with the failure, if any.
	OnEntryDone func(entry EntryInfo, outputPath string, err error) `json:"-" yaml:"-"`
	// FileMode controls output file creation policy.
	FileMode ExtractFileMode `json:"file_mode,omitempty" yaml:"file_mode,omitempty"`
	// Entries limits extraction to the named archive paths; nil means all entries.
	Entries []string `json:"-" yaml:"-"`
	// MaxWorkers is number of extraction workers (zero means GOMAXPROCS).
	MaxWorkers int `json:"max_workers,omitempty" yaml:"max_workers,omitempty"`
}

// ExtractResult contains batch extraction statistics.
type ExtractResult struct {
	// Extracted is number of file entries written to disk.
	Extracted int `json:"extracted" yaml:"extracted"`
	// Directories is number of directory entries materialized.
	Directories int `json:"directories,omitempty" yaml:"directories,omitempty"`
	// Failed is number of entries that could not be extracted.
	Failed int `json:"failed,omitempty" yaml:"failed,omitempty"`
}

// PatcherOptions configures a modification session over an existing archive.
type PatcherOptions struct {
	// Policy decides compression for replaced and added payloads when no
	// explicit AddOptions are given. Nil selects DefaultCompressPolicy.
	Policy *CompressPolicy `json:"-" yaml:"-"`
	// Level is the DEFLATE level for policy-compressed payloads; zero
	// selects DefaultCompressLevel.
	Level int `json:"level,omitempty" yaml:"level,omitempty"`
}

// ModificationSummary describes staged changes against a loaded archive.
type ModificationSummary struct {
	// OriginalEntries is entry count at load time.
	OriginalEntries int `json:"original_entries" yaml:"original_entries"`
	// CurrentEntries is staged entry count.
	CurrentEntries int `json:"current_entries" yaml:"current_entries"`
	// Added lists entry names staged after load.
	Added []string `json:"added,omitempty" yaml:"added,omitempty"`
	// Modified lists source entry names with replaced payloads.
	Modified []string `json:"modified,omitempty" yaml:"modified,omitempty"`
	// Removed lists source entry names dropped from the staged set.
	Removed []string `json:"removed,omitempty" yaml:"removed,omitempty"`
}

// applyDefaults fills zero-valued add options with defaults.
func (opts *AddOptions) applyDefaults() {
	if opts.Level == 0 {
		opts.Level = DefaultCompressLevel
	}
}

// applyDefaults fills zero-valued write options with defaults.
func (opts *WriteOptions) applyDefaults() {
	if opts.BufferSize < 4096 {
		opts.BufferSize = DefaultWriteBuffer
	}
}

// applyDefaults fills zero-valued extract options with defaults.
func (opts *ExtractOptions) applyDefaults() {
	if opts.FileMode == "" {
		opts.FileMode = ExtractFileModeAuto
	}

	if opts.MaxWorkers <= 0 {
		opts.MaxWorkers = runtime.GOMAXPROCS(0)
	}
}

// applyDefaults fills zero-valued patcher options with defaults.
func (opts *PatcherOptions) applyDefaults() {
	if opts.Policy == nil {
		opts.Policy = DefaultCompressPolicy()
	}

	if opts.Level == 0 {
		opts.Level = DefaultCompressLevel
	}
}
