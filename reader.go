// SPDX-License-Identifier: MIT
// Copyright (c) 2026 ragekit
// Source: github.com/ragekit/rpf6

package rpf6

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/sirupsen/logrus"
	"lukechampine.com/blake3"
)

// Reader provides read-only access to a parsed RPF6 archive.
type Reader struct {
	// ra is the underlying random-access reader used for payload reads.
	ra io.ReaderAt
	// file is set when Reader owns an *os.File opened via Open.
	file *os.File
	// entries stores parsed immutable entry metadata in TOC order.
	entries []EntryInfo
	// size is total source size in bytes.
	size int64
	// dataStart is absolute offset of the first payload page.
	dataStart int64
	// namesLength is name table size from the header.
	namesLength uint32
	// specialFlag is the last header word, preserved verbatim.
	specialFlag uint32
	// mu guards closed state and close operation.
	mu sync.Mutex
	// closed reports whether Close was already called.
	closed bool
}

// Open opens an RPF6 archive by path and parses header, TOC, and name table.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}

	fi, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("stat: %w", err)
	}

	r, err := NewReaderFromReaderAt(f, fi.Size())
	if err != nil {
		_ = f.Close()
		return nil, err
	}

	r.file = f
	return r, nil
}

// NewReaderFromReaderAt parses an RPF6 archive from an existing ReaderAt and known size.
func NewReaderFromReaderAt(ra io.ReaderAt, size int64) (*Reader, error) {
	if ra == nil {
		return nil, ErrNilReader
	}

	r := &Reader{ra: ra, size: size}
	if err := r.parse(ra, size); err != nil {
		return nil, err
	}

	return r, nil
}

// Entries returns a copy of parsed entries in TOC order.
func (r *Reader) Entries() []EntryInfo {
	if r == nil {
		return nil
	}

	entries := make([]EntryInfo, len(r.entries))
	copy(entries, r.entries)
	return entries
}

// Entry returns parsed metadata for the named entry.
func (r *Reader) Entry(name string) (EntryInfo, bool) {
	if r == nil {
		return EntryInfo{}, false
	}

	query := NormalizePath(name)
	for i := range r.entries {
		if r.entries[i].Name == query || r.entries[i].Name == query+"/" {
			return r.entries[i], true
		}
	}

	return EntryInfo{}, false
}

// Info summarizes parsed archive metadata without payload reads.
func (r *Reader) Info() ArchiveInfo {
	if r == nil {
		return ArchiveInfo{}
	}

	info := ArchiveInfo{
		EntryCount:  len(r.entries),
		NamesLength: r.namesLength,
		SpecialFlag: r.specialFlag,
	}

	for i := range r.entries {
		e := &r.entries[i]
		if e.Directory {
			info.DirectoryCount++
			continue
		}

		info.FileCount++
		info.StoredBytes += uint64(e.DataSize)
		info.UncompressedBytes += uint64(e.UncompressedSize)
		if e.Compressed {
			info.CompressedCount++
		}
	}

	return info
}

// ReadFile extracts one file payload by exact, case-sensitive entry name.
// Compressed payloads are inflated; a damaged stream degrades to the raw
// stored bytes with a warning instead of failing.
func (r *Reader) ReadFile(name string) ([]byte, error) {
	if r == nil {
		return nil, ErrNilReader
	}

	if err := r.ensureOpen(); err != nil {
		return nil, err
	}

	query := NormalizePath(name)
	for i := range r.entries {
		e := &r.entries[i]
		if e.Name != query {
			continue
		}

		if e.Directory {
			return nil, fmt.Errorf("%w: %s", ErrEntryIsDirectory, e.Name)
		}

		return r.readEntryPayload(e)
	}

	// No exact file match; a directory stored in slash form still gets a
	// precise error instead of a generic miss.
	for i := range r.entries {
		e := &r.entries[i]
		if e.Directory && e.Name == query+"/" {
			return nil, fmt.Errorf("%w: %s", ErrEntryIsDirectory, e.Name)
		}
	}

	return nil, fmt.Errorf("%w: %s", ErrEntryNotFound, query)
}

// Digest returns the BLAKE3-256 digest of one extracted file payload.
func (r *Reader) Digest(name string) ([32]byte, error) {
	data, err := r.ReadFile(name)
	if err != nil {
		return [32]byte{}, err
	}

	return blake3.Sum256(data), nil
}

// Close closes the underlying file if the reader owns one.
func (r *Reader) Close() error {
	if r == nil {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}

	r.closed = true
	if r.file != nil {
		return r.file.Close()
	}

	return nil
}

// ensureOpen reports ErrClosed after Close was called.
func (r *Reader) ensureOpen() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrClosed
	}

	return nil
}

// readEntryPayload reads stored bytes and inflates compressed entries.
func (r *Reader) readEntryPayload(e *EntryInfo) ([]byte, error) {
	data, err := r.readEntryStored(e)
	if err != nil {
		return nil, err
	}

	if !e.Compressed {
		return data, nil
	}

	out, fallback := Decompress(data, e.UncompressedSize)
	if fallback {
		logrus.WithField("entry", e.Name).Warn("damaged DEFLATE stream, returning raw payload")
	}

	return out, nil
}

// readEntryStored reads the stored payload region without decompression.
func (r *Reader) readEntryStored(e *EntryInfo) ([]byte, error) {
	if e.DataSize == 0 {
		return nil, nil
	}

	off := e.ByteOffset()
	if off >= r.size || off+int64(e.DataSize) > r.size {
		return nil, fmt.Errorf("%w: %s", ErrEntryOutOfRange, e.Name)
	}

	data := make([]byte, e.DataSize)
	if _, err := r.ra.ReadAt(data, off); err != nil {
		return nil, fmt.Errorf("read payload: %w", err)
	}

	return data, nil
}

// parse reads and validates archive structure from ReaderAt.
func (r *Reader) parse(ra io.ReaderAt, size int64) error {
	if size < headerSize {
		return fmt.Errorf("%w: short file", ErrInvalidHeader)
	}

	header := make([]byte, headerSize)
	if _, err := ra.ReadAt(header, 0); err != nil {
		if err == io.EOF {
			return fmt.Errorf("%w: short header", ErrInvalidHeader)
		}

		return fmt.Errorf("read header: %w", err)
	}

	if getUint32(header, 0) != archiveMagic {
		return fmt.Errorf("%w: bad magic", ErrInvalidHeader)
	}

	tocSize := getUint32(header, 4)
	entryCount := getUint32(header, 8)
	namesLength := getUint32(header, 12)
	encryption := getUint32(header, 16)
	specialFlag := getUint32(header, 20)

	if encryption != 0 {
		return fmt.Errorf("%w: encrypted archives are not supported", ErrInvalidHeader)
	}

	if uint64(tocSize) != uint64(entryCount)*tocEntrySize {
		return fmt.Errorf("%w: TOC size %d does not match %d entries", ErrInvalidHeader, tocSize, entryCount)
	}

	metaEnd := int64(headerSize) + int64(tocSize) + int64(namesLength)
	if metaEnd > size {
		return fmt.Errorf("%w: truncated TOC or name table", ErrInvalidHeader)
	}

	toc := make([]byte, tocSize)
	if tocSize > 0 {
		if _, err := ra.ReadAt(toc, headerSize); err != nil {
			return fmt.Errorf("read TOC: %w", err)
		}
	}

	names := make([]byte, namesLength)
	if namesLength > 0 {
		if _, err := ra.ReadAt(names, headerSize+int64(tocSize)); err != nil {
			return fmt.Errorf("read name table: %w", err)
		}
	}

	r.namesLength = namesLength
	r.specialFlag = specialFlag
	r.dataStart = alignUp(metaEnd)
	r.entries = make([]EntryInfo, 0, entryCount)

	for i := 0; i < int(entryCount); i++ {
		rec := toc[i*tocEntrySize : (i+1)*tocEntrySize]
		nameOffset := getUint32(rec, 0)
		flags := rec[11]

		name, err := resolveEntryName(names, nameOffset, i)
		if err != nil {
			return err
		}

		r.entries = append(r.entries, EntryInfo{
			Name:             name,
			NameOffset:       nameOffset,
			DataSize:         getUint32(rec, 4),
			DataOffset:       getUint24(rec, 8),
			UncompressedSize: getUint32(rec, 12),
			ResourceType:     flags & resourceTypeMask,
			Compressed:       flags&flagCompressed != 0,
			Directory:        flags&flagDirectory != 0,
		})
	}

	return nil
}

// resolveEntryName scans a null-terminated name from the table slab.
// Entries resolving to an empty name get a synthetic placeholder so
// listings of damaged archives stay usable.
func resolveEntryName(names []byte, offset uint32, index int) (string, error) {
	if int64(offset) >= int64(len(names)) {
		return "", fmt.Errorf("%w: name offset %d out of range", ErrInvalidHeader, offset)
	}

	end := bytes.IndexByte(names[offset:], 0)
	if end < 0 {
		return "", fmt.Errorf("%w: unterminated entry name", ErrInvalidHeader)
	}

	name := string(names[offset : int(offset)+end])
	if name == "" {
		return fmt.Sprintf("__unnamed_%d", index), nil
	}

	return name, nil
}
