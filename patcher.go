// SPDX-License-Identifier: MIT
// Copyright (c) 2026 ragekit
// Source: github.com/ragekit/rpf6

package rpf6

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Patcher is a modification session over an existing archive. Opening one
// stages every source entry on the embedded Writer without reading payload
// bytes: untouched files stay pending against the open source file and are
// streamed out verbatim at write time, so their stored bytes survive the
// rewrite bit for bit. Replaced and newly added payloads become resident.
//
// All Writer operations work on a Patcher, so one session can mix payload
// replacement with AddData, AddTree and Remove before serializing.
type Patcher struct {
	Writer

	source     *Reader
	sourcePath string
	opts       PatcherOptions
	// baseline maps entry keys to canonical names as they were at load.
	baseline map[string]string
	// replaced maps entry keys of baseline entries whose payload was swapped.
	replaced map[string]string
	special  uint32
	closed   bool
}

// OpenPatcher loads an archive for modification. The source file stays open
// for the lifetime of the session and Close releases it; until then pending
// entries read through to the original stored bytes.
func OpenPatcher(path string, opts PatcherOptions) (*Patcher, error) {
	opts.applyDefaults()

	src, err := Open(path)
	if err != nil {
		return nil, err
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		_ = src.Close()
		return nil, fmt.Errorf("resolve archive path: %w", err)
	}

	p := &Patcher{
		Writer:     Writer{index: make(map[string]int, len(src.entries))},
		source:     src,
		sourcePath: absPath,
		opts:       opts,
		baseline:   make(map[string]string, len(src.entries)),
		replaced:   make(map[string]string),
		special:    src.specialFlag,
	}

	for _, entry := range src.Entries() {
		staged := stageFromSource(src, entry)
		if err := p.checkDuplicate(staged.name); err != nil {
			_ = src.Close()
			return nil, fmt.Errorf("load %s: %w", path, err)
		}

		p.stage(staged)
		p.baseline[entryKey(staged.name)] = staged.name
	}

	return p, nil
}

// stageFromSource converts one parsed source entry into staged form.
// Directory names are canonicalized to the trailing-slash form; file
// payloads stay in the source archive until serialization.
func stageFromSource(src *Reader, entry EntryInfo) stagedEntry {
	if entry.Directory {
		name := entry.Name
		if !strings.HasSuffix(name, "/") {
			name += "/"
		}

		return stagedEntry{name: name, directory: true}
	}

	return stagedEntry{
		name:             entry.Name,
		source:           &sourcePayload{reader: src, entry: entry},
		uncompressedSize: entry.UncompressedSize,
		resourceType:     entry.ResourceType,
		compressed:       entry.Compressed,
	}
}

// ReplaceFile swaps the payload of an existing entry with a local file.
// Compression follows the session policy, same as ReplaceData.
func (p *Patcher) ReplaceFile(localPath, archivePath string) error {
	data, err := os.ReadFile(localPath)
	if err != nil {
		return fmt.Errorf("read input file: %w", err)
	}

	return p.replaceData(archivePath, data, p.policyOptions(archivePath), false)
}

// ReplaceData swaps the payload of an existing entry with in-memory bytes.
// The payload is copied; the session policy decides whether it is deflated.
func (p *Patcher) ReplaceData(archivePath string, data []byte) error {
	return p.replaceData(archivePath, data, p.policyOptions(archivePath), true)
}

// ReplaceDataWithOptions swaps the payload of an existing entry with
// explicit per-entry options instead of the session policy.
func (p *Patcher) ReplaceDataWithOptions(archivePath string, data []byte, opts AddOptions) error {
	return p.replaceData(archivePath, data, opts, true)
}

// policyOptions derives add options for one path from the session policy.
func (p *Patcher) policyOptions(archivePath string) AddOptions {
	return AddOptions{
		Compress: p.opts.Policy.ShouldCompress(archivePath),
		Level:    p.opts.Level,
	}
}

// replaceData rebuilds the staged record at an existing position in place,
// keeping TOC order stable. The entry must exist and must not be a directory.
func (p *Patcher) replaceData(archivePath string, data []byte, opts AddOptions, clone bool) error {
	name, err := normalizeEntryPath(archivePath)
	if err != nil {
		return err
	}

	i, ok := p.findStaged(name)
	if !ok {
		if j, isDir := p.findStaged(name + "/"); isDir && p.entries[j].directory {
			return fmt.Errorf("%w: %q", ErrEntryIsDirectory, p.entries[j].name)
		}

		return fmt.Errorf("%w: %q", ErrEntryNotFound, name)
	}

	old := &p.entries[i]
	if old.directory {
		return fmt.Errorf("%w: %q", ErrEntryIsDirectory, old.name)
	}

	// A replacement keeps the original resource tag unless overridden.
	if opts.ResourceType == 0 {
		opts.ResourceType = old.resourceType
	}

	entry, err := buildFileEntry(old.name, data, opts, clone)
	if err != nil {
		return err
	}

	p.entries[i] = entry

	key := entryKey(old.name)
	if original, ok := p.baseline[key]; ok {
		p.replaced[key] = original
	}

	return nil
}

// ExtractOriginal reads the payload an entry had when the archive was
// loaded, ignoring any staged replacement or removal.
func (p *Patcher) ExtractOriginal(archivePath string) ([]byte, error) {
	return p.source.ReadFile(archivePath)
}

// Summary reports the staged changes against the loaded archive. Name
// lists are sorted; an entry both replaced and later removed counts only
// as removed.
func (p *Patcher) Summary() ModificationSummary {
	s := ModificationSummary{
		OriginalEntries: len(p.baseline),
		CurrentEntries:  p.Len(),
	}

	for i := range p.entries {
		key := entryKey(p.entries[i].name)
		if _, ok := p.baseline[key]; !ok {
			s.Added = append(s.Added, p.entries[i].name)
			continue
		}

		if original, ok := p.replaced[key]; ok {
			s.Modified = append(s.Modified, original)
		}
	}

	for key, original := range p.baseline {
		if _, ok := p.index[key]; !ok {
			s.Removed = append(s.Removed, original)
		}
	}

	sort.Strings(s.Added)
	sort.Strings(s.Modified)
	sort.Strings(s.Removed)

	return s
}

// WriteArchive serializes the staged set with the same temp-file hardening
// as Writer.WriteArchive. A zero opts.SpecialFlag inherits the flag of the
// source archive. Writing over the source path finalizes the session: the
// source file is closed right before the rename so the swap works on
// platforms that refuse to replace an open file.
func (p *Patcher) WriteArchive(outputPath string, opts WriteOptions) (*WriteResult, error) {
	if err := p.ensureSession(); err != nil {
		return nil, err
	}

	opts.applyDefaults()
	if opts.SpecialFlag == 0 {
		opts.SpecialFlag = p.special
	}

	absOut, err := filepath.Abs(outputPath)
	if err != nil {
		return nil, fmt.Errorf("resolve output path: %w", err)
	}

	var beforeRename func() error
	if absOut == p.sourcePath {
		beforeRename = func() error {
			p.closed = true
			if err := p.source.Close(); err != nil {
				return fmt.Errorf("close source archive: %w", err)
			}

			return nil
		}
	}

	res, err := p.writeArchiveFile(outputPath, opts, beforeRename)
	if err != nil {
		if opts.OnProgress != nil {
			opts.OnProgress(0, err.Error())
		}

		return nil, err
	}

	return res, nil
}

// WriteArchiveTo serializes the staged set to an arbitrary writer. A zero
// opts.SpecialFlag inherits the flag of the source archive.
func (p *Patcher) WriteArchiveTo(out io.Writer, opts WriteOptions) (*WriteResult, error) {
	if err := p.ensureSession(); err != nil {
		return nil, err
	}

	if opts.SpecialFlag == 0 {
		opts.SpecialFlag = p.special
	}

	return p.Writer.WriteArchiveTo(out, opts)
}

// Close ends the session and releases the source archive. Pending entries
// cannot be serialized afterwards.
func (p *Patcher) Close() error {
	if p.closed {
		return nil
	}

	p.closed = true

	return p.source.Close()
}

// ensureSession fails once the session is closed.
func (p *Patcher) ensureSession() error {
	if p.closed {
		return ErrClosed
	}

	return nil
}
