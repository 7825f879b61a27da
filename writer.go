// SPDX-License-Identifier: MIT
// Copyright (c) 2026 ragekit
// Source: github.com/ragekit/rpf6

package rpf6

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

var (
	// defaultWriterPool reuses default-sized bufio writers between serializations.
	defaultWriterPool = sync.Pool{
		New: func() any {
			return bufio.NewWriterSize(io.Discard, DefaultWriteBuffer)
		},
	}
	// copyBufferPool reuses payload copy buffers for source-backed entries.
	copyBufferPool = sync.Pool{
		New: func() any {
			return new([writeCopyBufferSize]byte)
		},
	}
	// zeroPage is the shared source for alignment padding writes.
	zeroPage [pageSize]byte
)

// writeCopyBufferSize is the temporary buffer size for streaming payload copy.
const writeCopyBufferSize = 64 * 1024

// sourcePayload references stored bytes of an entry in an open source archive.
// Payloads stay in the source file until serialization streams them out.
type sourcePayload struct {
	reader *Reader
	entry  EntryInfo
}

// stagedEntry holds one staged TOC record with its payload source: either
// resident bytes in final stored form or a pending source reference.
type stagedEntry struct {
	name             string
	data             []byte
	source           *sourcePayload
	uncompressedSize uint32
	resourceType     uint8
	compressed       bool
	directory        bool
}

// storedSize returns the payload size as it will appear in the archive.
func (s *stagedEntry) storedSize() uint32 {
	if s.source != nil {
		return s.source.entry.DataSize
	}

	return uint32(len(s.data))
}

// Writer accumulates staged entries and serializes complete archives.
// A Writer is confined to a single goroutine; it holds no OS resources.
type Writer struct {
	// entries keeps staged records in insertion order, which is also TOC
	// and payload order in the serialized archive.
	entries []stagedEntry
	// index maps case-insensitive entry keys to positions in entries.
	index map[string]int
}

// NewWriter returns an empty staged archive.
func NewWriter() *Writer {
	return &Writer{index: make(map[string]int)}
}

// Len returns the number of staged entries.
func (w *Writer) Len() int {
	return len(w.entries)
}

// Names returns staged entry names in insertion order.
func (w *Writer) Names() []string {
	names := make([]string, len(w.entries))
	for i := range w.entries {
		names[i] = w.entries[i].name
	}

	return names
}

// AddFile stages one local file under the given archive path.
func (w *Writer) AddFile(localPath, archivePath string, opts AddOptions) error {
	data, err := os.ReadFile(localPath)
	if err != nil {
		return fmt.Errorf("read input file: %w", err)
	}

	return w.addData(archivePath, data, opts, false)
}

// AddData stages one file entry from an in-memory payload. The payload is
// copied; when opts.Compress is set the entry is deflated now and kept raw
// if compression does not make it strictly smaller.
func (w *Writer) AddData(archivePath string, data []byte, opts AddOptions) error {
	return w.addData(archivePath, data, opts, true)
}

// addData stages a payload, optionally cloning caller-owned bytes.
func (w *Writer) addData(archivePath string, data []byte, opts AddOptions, clone bool) error {
	name, err := normalizeEntryPath(archivePath)
	if err != nil {
		return err
	}

	if err := w.checkDuplicate(name); err != nil {
		return err
	}

	entry, err := buildFileEntry(name, data, opts, clone)
	if err != nil {
		return err
	}

	w.stage(entry)
	return nil
}

// buildFileEntry converts a payload into its staged stored form: deflated
// when requested and strictly smaller, raw otherwise.
func buildFileEntry(name string, data []byte, opts AddOptions, clone bool) (stagedEntry, error) {
	opts.applyDefaults()

	uncompressed, err := checkedPayloadSize(name, int64(len(data)))
	if err != nil {
		return stagedEntry{}, err
	}

	payload := data
	if clone {
		payload = bytes.Clone(data)
	}

	compressed := false
	if opts.Compress && len(data) > 0 {
		packed, err := Compress(data, opts.Level)
		if err != nil {
			return stagedEntry{}, err
		}

		if len(packed) < len(data) {
			payload = packed
			compressed = true
		}
	}

	return stagedEntry{
		name:             name,
		data:             payload,
		uncompressedSize: uncompressed,
		resourceType:     resolveResourceType(name, opts.ResourceType),
		compressed:       compressed,
	}, nil
}

// AddDirectory stages one directory marker. The path is canonicalized to
// carry exactly one trailing slash; re-adding an existing directory is a
// no-op.
func (w *Writer) AddDirectory(archivePath string) error {
	name, err := normalizeDirectoryPath(archivePath)
	if err != nil {
		return err
	}

	if i, exists := w.index[entryKey(name)]; exists {
		if w.entries[i].directory {
			return nil
		}

		return fmt.Errorf("%w: %q conflicts with %q", ErrDuplicateEntryPath, name, w.entries[i].name)
	}

	w.stage(stagedEntry{name: name, directory: true})
	return nil
}

// AddTree stages a local directory tree under archiveBase. Every directory
// becomes a directory entry and every regular file a file entry; the policy
// decides per-file compression (nil never compresses) and level applies to
// compressed files, zero meaning DefaultCompressLevel.
func (w *Writer) AddTree(localDir, archiveBase string, policy *CompressPolicy, level int) error {
	base := NormalizePath(archiveBase)
	if base != "" {
		if err := w.AddDirectory(base); err != nil {
			return err
		}
	}

	return filepath.WalkDir(localDir, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return fmt.Errorf("walk %s: %w", p, err)
		}

		rel, err := filepath.Rel(localDir, p)
		if err != nil {
			return fmt.Errorf("relativize %s: %w", p, err)
		}

		if rel == "." {
			return nil
		}

		archivePath := path.Join(base, filepath.ToSlash(rel))
		if d.IsDir() {
			return w.AddDirectory(archivePath)
		}

		if !d.Type().IsRegular() {
			return nil
		}

		return w.AddFile(p, archivePath, AddOptions{
			Compress: policy.ShouldCompress(archivePath),
			Level:    level,
		})
	})
}

// Remove drops one staged entry by name and reports whether it existed.
// Removing a missing name is a no-op.
func (w *Writer) Remove(archivePath string) bool {
	name := NormalizePath(archivePath)
	if name == "" {
		return false
	}

	i, ok := w.index[entryKey(name)]
	if !ok {
		i, ok = w.index[entryKey(name+"/")]
	}
	if !ok {
		return false
	}

	w.entries = append(w.entries[:i], w.entries[i+1:]...)
	w.reindex()
	return true
}

// checkDuplicate rejects names already staged, case-insensitively.
func (w *Writer) checkDuplicate(name string) error {
	if i, exists := w.index[entryKey(name)]; exists {
		return fmt.Errorf("%w: %q conflicts with %q", ErrDuplicateEntryPath, name, w.entries[i].name)
	}

	return nil
}

// stage appends one checked entry and indexes it.
func (w *Writer) stage(entry stagedEntry) {
	if w.index == nil {
		w.index = make(map[string]int)
	}

	w.index[entryKey(entry.name)] = len(w.entries)
	w.entries = append(w.entries, entry)
}

// reindex rebuilds the name index after a removal.
func (w *Writer) reindex() {
	w.index = make(map[string]int, len(w.entries))
	for i := range w.entries {
		w.index[entryKey(w.entries[i].name)] = i
	}
}

// findStaged returns the staged entry index for a canonical name.
func (w *Writer) findStaged(name string) (int, bool) {
	i, ok := w.index[entryKey(name)]
	return i, ok
}

// WriteArchive serializes the staged set to outputPath. Output goes to a
// temporary file in the destination directory and is renamed into place
// only on full success, so a failed write never corrupts an existing
// archive. On failure the progress callback receives 0 and the error text.
func (w *Writer) WriteArchive(outputPath string, opts WriteOptions) (*WriteResult, error) {
	opts.applyDefaults()

	res, err := w.writeArchiveFile(outputPath, opts, nil)
	if err != nil {
		if opts.OnProgress != nil {
			opts.OnProgress(0, err.Error())
		}

		return nil, err
	}

	return res, nil
}

// WriteArchiveTo serializes the staged set to an arbitrary writer in one
// forward pass. Unlike WriteArchive it performs no atomic-rename hardening
// and reports failures through the progress callback the same way.
func (w *Writer) WriteArchiveTo(out io.Writer, opts WriteOptions) (*WriteResult, error) {
	opts.applyDefaults()

	res, err := w.serialize(out, opts)
	if err != nil {
		if opts.OnProgress != nil {
			opts.OnProgress(0, err.Error())
		}

		return nil, err
	}

	return res, nil
}

// writeArchiveFile runs serialization against a temp file and renames it over
// outputPath. A non-nil beforeRename hook runs after the temp file is complete
// and before the rename; a hook error aborts the swap and keeps the original.
func (w *Writer) writeArchiveFile(outputPath string, opts WriteOptions, beforeRename func() error) (*WriteResult, error) {
	dir := filepath.Dir(outputPath)
	tmp, err := os.CreateTemp(dir, filepath.Base(outputPath)+".tmp-*")
	if err != nil {
		return nil, fmt.Errorf("create temp archive: %w", err)
	}

	tmpPath := tmp.Name()
	defer func() {
		if tmp != nil {
			_ = tmp.Close()
		}
		if tmpPath != "" {
			_ = os.Remove(tmpPath)
		}
	}()

	res, err := w.serialize(tmp, opts)
	if err != nil {
		return nil, err
	}

	if err := tmp.Sync(); err != nil {
		return nil, fmt.Errorf("sync archive: %w", err)
	}

	if err := tmp.Close(); err != nil {
		tmp = nil
		return nil, fmt.Errorf("close archive: %w", err)
	}
	tmp = nil

	if beforeRename != nil {
		if err := beforeRename(); err != nil {
			return nil, err
		}
	}

	if err := os.Rename(tmpPath, outputPath); err != nil {
		return nil, fmt.Errorf("rename temp archive: %w", err)
	}
	tmpPath = ""

	return res, nil
}

// writeLayout carries precomputed serialization geometry.
type writeLayout struct {
	// names is the assembled name table slab.
	names []byte
	// nameOffsets maps entry names to name table offsets.
	nameOffsets map[string]uint32
	// pages holds the payload page index per staged entry; directories get 0.
	pages []uint32
	// namesPad is zero padding after the name table.
	namesPad int64
	// dataBytes is stored payload bytes without padding.
	dataBytes int64
	// paddingBytes is total alignment padding including namesPad.
	paddingBytes int64
	// totalBytes is the final archive size.
	totalBytes int64
}

// computeLayout builds the name table and assigns page-aligned payload
// offsets. The name table lists entry names sorted lexicographically with
// exact duplicates shared; TOC and payload order stay insertion order.
func (w *Writer) computeLayout() (*writeLayout, error) {
	sortedNames := make([]string, len(w.entries))
	for i := range w.entries {
		sortedNames[i] = w.entries[i].name
	}
	sort.Strings(sortedNames)

	var slab bytes.Buffer
	nameOffsets := make(map[string]uint32, len(sortedNames))
	for _, name := range sortedNames {
		if _, ok := nameOffsets[name]; ok {
			continue
		}

		nameOffsets[name] = uint32(slab.Len())
		slab.WriteString(name)
		slab.WriteByte(0)
	}

	if _, err := checkedPayloadSize("name table", int64(slab.Len())); err != nil {
		return nil, err
	}

	layout := &writeLayout{
		names:       slab.Bytes(),
		nameOffsets: nameOffsets,
		pages:       make([]uint32, len(w.entries)),
	}

	metaEnd := int64(headerSize) + int64(len(w.entries))*tocEntrySize + int64(slab.Len())
	cursor := alignUp(metaEnd)
	layout.namesPad = cursor - metaEnd
	layout.paddingBytes = layout.namesPad

	for i := range w.entries {
		e := &w.entries[i]
		if e.directory {
			continue
		}

		page := cursor / pageSize
		if page > maxPageIndex {
			return nil, fmt.Errorf("%w: entry %s at page %d", ErrArchiveTooLarge, e.name, page)
		}

		layout.pages[i] = uint32(page)
		size := int64(e.storedSize())
		layout.dataBytes += size

		cursor += size
		padded := alignUp(cursor)
		layout.paddingBytes += padded - cursor
		cursor = padded
	}

	layout.totalBytes = cursor
	return layout, nil
}

// serialize writes the complete archive in one forward pass.
func (w *Writer) serialize(out io.Writer, opts WriteOptions) (*WriteResult, error) {
	startedAt := time.Now()

	if out == nil {
		return nil, ErrNilWriter
	}

	progress := func(percent int, phase string) {
		if opts.OnProgress != nil {
			opts.OnProgress(percent, phase)
		}
	}

	layout, err := w.computeLayout()
	if err != nil {
		return nil, err
	}

	bw, releaseWriter := acquireArchiveWriter(out, opts.BufferSize)
	defer releaseWriter()

	header := make([]byte, headerSize)
	putUint32(header, 0, archiveMagic)
	putUint32(header, 4, uint32(len(w.entries))*tocEntrySize)
	putUint32(header, 8, uint32(len(w.entries)))
	putUint32(header, 12, uint32(len(layout.names)))
	putUint32(header, 16, 0)
	putUint32(header, 20, opts.SpecialFlag)

	if _, err := bw.Write(header); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}

	result := &WriteResult{Entries: len(w.entries)}

	var rec [tocEntrySize]byte
	for i := range w.entries {
		e := &w.entries[i]
		putUint32(rec[:], 0, layout.nameOffsets[e.name])
		putUint32(rec[:], 4, e.storedSize())
		putUint24(rec[:], 8, layout.pages[i])
		rec[11] = entryFlags(e)
		putUint32(rec[:], 12, e.uncompressedSize)

		if _, err := bw.Write(rec[:]); err != nil {
			return nil, fmt.Errorf("write TOC record %s: %w", e.name, err)
		}

		if e.directory {
			result.Directories++
		} else {
			result.Files++
			if e.compressed {
				result.CompressedEntries++
			}
		}
	}

	progress(10, "header and table of contents")

	if _, err := bw.Write(layout.names); err != nil {
		return nil, fmt.Errorf("write name table: %w", err)
	}

	if err := writePadding(bw, layout.namesPad); err != nil {
		return nil, err
	}

	progress(30, "name table")

	copyBuf, releaseCopyBuffer := acquireCopyBuffer()
	defer releaseCopyBuffer()

	if result.Files > 0 {
		progress(50, "payload data")
	}

	fileIndex := 0
	for i := range w.entries {
		e := &w.entries[i]
		if e.directory {
			continue
		}

		if err := writeStagedPayload(bw, e, copyBuf); err != nil {
			return nil, err
		}

		pad := alignUp(int64(e.storedSize())) - int64(e.storedSize())
		if err := writePadding(bw, pad); err != nil {
			return nil, err
		}

		fileIndex++
		progress(50+45*fileIndex/max(result.Files, 1), e.name)
	}

	if err := bw.Flush(); err != nil {
		return nil, fmt.Errorf("flush archive: %w", err)
	}

	result.DataBytes = layout.dataBytes
	result.PaddingBytes = layout.paddingBytes
	result.TotalBytes = layout.totalBytes
	result.Duration = time.Since(startedAt)

	progress(100, "complete")
	return result, nil
}

// entryFlags composes the on-disk flag byte for one staged entry.
func entryFlags(e *stagedEntry) uint8 {
	f := e.resourceType & resourceTypeMask
	if e.compressed {
		f |= flagCompressed
	}
	if e.directory {
		f |= flagDirectory
	}
	return f
}

// writeStagedPayload emits one payload from its resident or source form.
func writeStagedPayload(dst io.Writer, e *stagedEntry, copyBuf []byte) error {
	if e.source == nil {
		if len(e.data) == 0 {
			return nil
		}

		if _, err := dst.Write(e.data); err != nil {
			return fmt.Errorf("write payload %s: %w", e.name, err)
		}

		return nil
	}

	src := e.source.reader
	if err := src.ensureOpen(); err != nil {
		return fmt.Errorf("source payload %s: %w", e.name, err)
	}

	size := int64(e.source.entry.DataSize)
	if size == 0 {
		return nil
	}

	sr := io.NewSectionReader(src.ra, e.source.entry.ByteOffset(), size)
	written, err := copyPayloadBounded(dst, sr, size, copyBuf)
	if err != nil {
		return fmt.Errorf("copy source payload %s: %w", e.name, err)
	}
	if written != size {
		return fmt.Errorf("copy source payload %s: short read (%d/%d)", e.name, written, size)
	}

	return nil
}

// writePadding writes n zero bytes from the shared page.
func writePadding(dst io.Writer, n int64) error {
	for n > 0 {
		chunk := n
		if chunk > pageSize {
			chunk = pageSize
		}

		if _, err := dst.Write(zeroPage[:chunk]); err != nil {
			return fmt.Errorf("write padding: %w", err)
		}

		n -= chunk
	}

	return nil
}

// acquireArchiveWriter returns a buffered writer and release callback.
func acquireArchiveWriter(out io.Writer, size int) (*bufio.Writer, func()) {
	if size == DefaultWriteBuffer {
		w := defaultWriterPool.Get().(*bufio.Writer) //nolint:forcetypeassert // pool contains only *bufio.Writer
		w.Reset(out)

		return w, func() {
			w.Reset(io.Discard)
			defaultWriterPool.Put(w)
		}
	}

	return bufio.NewWriterSize(out, size), func() {}
}

// acquireCopyBuffer returns a reusable payload copy buffer and release callback.
func acquireCopyBuffer() ([]byte, func()) {
	arr := copyBufferPool.Get().(*[writeCopyBufferSize]byte) //nolint:forcetypeassert // pool contains only fixed-size buffers
	return arr[:], func() {
		copyBufferPool.Put(arr)
	}
}

// copyPayloadBounded streams payload from src to dst and enforces a strict size limit.
func copyPayloadBounded(dst io.Writer, src io.Reader, limit int64, buf []byte) (int64, error) {
	if dst == nil {
		return 0, ErrNilWriter
	}
	if src == nil {
		return 0, ErrNilReader
	}
	if limit < 0 {
		return 0, ErrSizeOverflow
	}
	if len(buf) == 0 {
		buf = make([]byte, 32*1024)
	}

	var written int64
	emptyReads := 0
	for written < limit {
		chunkSize := len(buf)
		remaining := limit - written
		if int64(chunkSize) > remaining {
			chunkSize = int(remaining)
		}

		n, readErr := src.Read(buf[:chunkSize])
		if n > 0 {
			emptyReads = 0
			nw, writeErr := dst.Write(buf[:n])
			written += int64(nw)

			if writeErr != nil {
				return written, writeErr
			}
			if nw != n {
				return written, io.ErrShortWrite
			}
		}
		if n == 0 && readErr == nil {
			emptyReads++
			if emptyReads > 100 {
				return written, io.ErrNoProgress
			}

			continue
		}

		if readErr != nil {
			if readErr == io.EOF {
				break
			}

			return written, readErr
		}
	}

	return written, nil
}

// checkedPayloadSize validates a size for the uint32 layout fields.
func checkedPayloadSize(name string, size int64) (uint32, error) {
	if size < 0 || size > int64(^uint32(0)) {
		return 0, fmt.Errorf("%w: %s size %d is out of uint32 range", ErrSizeOverflow, name, size)
	}

	return uint32(size), nil
}

// resolveResourceType picks the explicit tag or derives one from the extension.
func resolveResourceType(name string, explicit uint8) uint8 {
	if explicit != 0 {
		return explicit & resourceTypeMask
	}

	return resourceTypeForPath(name)
}
