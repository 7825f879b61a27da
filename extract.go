// SPDX-License-Identifier: MIT
// Copyright (c) 2026 ragekit
// Source: github.com/ragekit/rpf6

package rpf6

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

// extractWorkItem stores one selected file entry with prepared output relative paths.
type extractWorkItem struct {
	relPath string
	relDir  string
	entry   EntryInfo
}

// extractOutcome reports one finished extraction attempt for counting.
type extractOutcome struct {
	failed bool
}

// Extract writes selected entries from the archive to dstDir. Extraction is
// parallelized by MaxWorkers. Per-entry failures are logged and counted
// instead of aborting the batch; the returned error reports setup failures
// and context cancellation only.
func (r *Reader) Extract(ctx context.Context, dstDir string, opts ExtractOptions) (*ExtractResult, error) {
	if r == nil || r.ra == nil {
		return nil, ErrNilReader
	}

	if err := r.ensureOpen(); err != nil {
		return nil, err
	}

	opts.applyDefaults()
	switch opts.FileMode {
	case ExtractFileModeAuto, ExtractFileModeTruncate, ExtractFileModeCreateOnly:
	default:
		return nil, fmt.Errorf("unknown extract file mode %q", opts.FileMode)
	}

	result := &ExtractResult{}
	entries := r.selectExtractEntries(opts, result)
	if len(entries) == 0 && result.Failed == 0 {
		return result, nil
	}

	dstRootAbs, err := filepath.Abs(dstDir)
	if err != nil {
		return nil, fmt.Errorf("resolve output dir: %w", err)
	}

	if err := os.MkdirAll(dstRootAbs, 0o750); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	workItems, err := prepareExtractDirs(dstRootAbs, r.prepareExtractWorkItems(entries, opts, result), result)
	if err != nil {
		return result, err
	}

	if len(workItems) == 0 {
		return result, nil
	}

	if err := ctx.Err(); err != nil {
		return result, err
	}

	taskCh := make(chan extractWorkItem, len(workItems))
	outCh := make(chan extractOutcome, len(workItems))
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	for w := 0; w < opts.MaxWorkers; w++ {
		wg.Go(func() {
			for task := range taskCh {
				outPath, err := r.extractPreparedEntry(ctx, dstRootAbs, task, opts.FileMode)
				if err != nil {
					logrus.WithField("entry", task.entry.Name).WithError(err).Warn("extract entry failed")
				}

				if opts.OnEntryDone != nil {
					opts.OnEntryDone(task.entry, outPath, err)
				}

				select {
				case outCh <- extractOutcome{failed: err != nil}:
				case <-ctx.Done():
					return
				}
			}
		})
	}

	for _, task := range workItems {
		select {
		case <-ctx.Done():
			close(taskCh)
			wg.Wait()
			return result, ctx.Err()
		case taskCh <- task:
		}
	}

	close(taskCh)
	wg.Wait()
	close(outCh)

	for outcome := range outCh {
		if outcome.failed {
			result.Failed++
		} else {
			result.Extracted++
		}
	}

	return result, nil
}

// selectExtractEntries resolves the requested entry set. Unknown names are
// counted as failures without aborting the batch.
func (r *Reader) selectExtractEntries(opts ExtractOptions, result *ExtractResult) []EntryInfo {
	if opts.Entries == nil {
		return r.Entries()
	}

	selected := make([]EntryInfo, 0, len(opts.Entries))
	for _, name := range opts.Entries {
		entry, ok := r.Entry(name)
		if !ok {
			logrus.WithField("entry", name).Warn("extract entry not found")
			if opts.OnEntryDone != nil {
				opts.OnEntryDone(EntryInfo{Name: NormalizePath(name)}, "", fmt.Errorf("%w: %s", ErrEntryNotFound, name))
			}

			result.Failed++
			continue
		}

		selected = append(selected, entry)
	}

	return selected
}

// prepareExtractWorkItems validates selected entries and prepares relative fs paths.
// Directory entries and invalid names are resolved here; only file work remains.
func (r *Reader) prepareExtractWorkItems(entries []EntryInfo, opts ExtractOptions, result *ExtractResult) []extractWorkItem {
	workItems := make([]extractWorkItem, 0, len(entries))
	for _, entry := range entries {
		normalizedPath, err := normalizeExtractEntryPath(entry.Name)
		if err != nil {
			logrus.WithField("entry", entry.Name).WithError(err).Warn("skipping entry with unsafe path")
			if opts.OnEntryDone != nil {
				opts.OnEntryDone(entry, "", err)
			}

			result.Failed++
			continue
		}

		relPath := filepath.FromSlash(normalizedPath)
		if entry.Directory {
			workItems = append(workItems, extractWorkItem{entry: entry, relDir: relPath})
			continue
		}

		relDir := filepath.Dir(relPath)
		if relDir == "." {
			relDir = ""
		}

		workItems = append(workItems, extractWorkItem{entry: entry, relPath: relPath, relDir: relDir})
	}

	return workItems
}

// prepareExtractDirs creates all unique directories needed by work items and
// returns the remaining file-only work set.
func prepareExtractDirs(dstRootAbs string, workItems []extractWorkItem, result *ExtractResult) ([]extractWorkItem, error) {
	seen := make(map[string]struct{}, len(workItems))
	for _, task := range workItems {
		if task.relDir == "" {
			continue
		}

		dirPath := filepath.Join(dstRootAbs, task.relDir)
		key := strings.ToLower(dirPath)
		if _, exists := seen[key]; exists {
			continue
		}

		seen[key] = struct{}{}
		if err := os.MkdirAll(dirPath, 0o750); err != nil {
			return nil, fmt.Errorf("create output directory %s: %w", dirPath, err)
		}
	}

	fileItems := make([]extractWorkItem, 0, len(workItems))
	for _, task := range workItems {
		if task.entry.Directory {
			result.Directories++
			continue
		}

		fileItems = append(fileItems, task)
	}

	return fileItems, nil
}

// extractPreparedEntry writes one prepared file entry under the destination root.
func (r *Reader) extractPreparedEntry(ctx context.Context, dstRootAbs string, task extractWorkItem, fileMode ExtractFileMode) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	outPath := filepath.Join(dstRootAbs, task.relPath)

	data, err := r.readEntryPayload(&task.entry)
	if err != nil {
		return outPath, err
	}

	file, err := openExtractFile(outPath, fileMode)
	if err != nil {
		return outPath, fmt.Errorf("open %s: %w", outPath, err)
	}

	_, writeErr := file.Write(data)
	closeErr := file.Close()
	if writeErr != nil {
		return outPath, fmt.Errorf("write %s: %w", outPath, writeErr)
	}

	if closeErr != nil {
		return outPath, fmt.Errorf("close %s: %w", outPath, closeErr)
	}

	return outPath, nil
}

// openExtractFile opens output path according to selected extract file mode.
func openExtractFile(path string, mode ExtractFileMode) (*os.File, error) {
	switch mode {
	case ExtractFileModeAuto:
		file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
		if err == nil {
			return file, nil
		}

		if !os.IsExist(err) {
			return nil, err
		}

		return os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	case ExtractFileModeTruncate:
		return os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	case ExtractFileModeCreateOnly:
		return os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	default:
		return nil, fmt.Errorf("unknown extract file mode %q", mode)
	}
}

// normalizeExtractEntryPath normalizes entry path and rejects absolute/traversal inputs.
func normalizeExtractEntryPath(entryPath string) (string, error) {
	raw := strings.TrimSpace(entryPath)
	if raw == "" {
		return "", ErrInvalidExtractPath
	}
	if strings.ContainsRune(raw, 0) {
		return "", ErrInvalidExtractPath
	}
	if strings.HasPrefix(raw, `/`) || strings.HasPrefix(raw, `\`) {
		return "", ErrInvalidExtractPath
	}

	raw = strings.ReplaceAll(raw, `\`, `/`)
	if hasWindowsAbsDrivePrefix(raw) {
		return "", ErrInvalidExtractPath
	}

	parts := strings.Split(raw, `/`)
	cleanParts := make([]string, 0, len(parts))
	for _, part := range parts {
		switch part {
		case "", ".":
			continue
		case "..":
			return "", ErrInvalidExtractPath
		default:
			cleanParts = append(cleanParts, part)
		}
	}
	if len(cleanParts) == 0 {
		return "", ErrInvalidExtractPath
	}

	return strings.Join(cleanParts, `/`), nil
}

// hasWindowsAbsDrivePrefix reports whether path starts with drive-root prefix like C:/.
func hasWindowsAbsDrivePrefix(path string) bool {
	if len(path) < 3 {
		return false
	}

	return isASCIIAlpha(path[0]) && path[1] == ':' && path[2] == '/'
}

// isASCIIAlpha reports whether byte is ASCII latin letter.
func isASCIIAlpha(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}
