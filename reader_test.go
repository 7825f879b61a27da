package rpf6

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"lukechampine.com/blake3"
)

// rawEntry describes one TOC record for hand-assembled archive images.
type rawEntry struct {
	name         string
	payload      []byte
	flags        uint8
	uncompressed uint32
}

// buildRawArchive assembles a complete archive image byte by byte:
// 24-byte header, 16-byte TOC records in the given order, a name table
// in the same order, then page-aligned payloads. Tests mutate the
// returned image to model specific forms of damage.
func buildRawArchive(t *testing.T, entries []rawEntry, special uint32) []byte {
	t.Helper()

	var names bytes.Buffer
	nameOffsets := make([]uint32, len(entries))
	for i := range entries {
		nameOffsets[i] = uint32(names.Len())
		names.WriteString(entries[i].name)
		names.WriteByte(0)
	}

	metaEnd := int64(headerSize) + int64(len(entries)*tocEntrySize) + int64(names.Len())
	cursor := alignUp(metaEnd)

	pages := make([]uint32, len(entries))
	for i := range entries {
		if entries[i].flags&flagDirectory != 0 {
			continue
		}

		pages[i] = uint32(cursor / pageSize)
		cursor = alignUp(cursor + int64(len(entries[i].payload)))
	}

	img := make([]byte, cursor)
	putUint32(img, 0, archiveMagic)
	putUint32(img, 4, uint32(len(entries)*tocEntrySize))
	putUint32(img, 8, uint32(len(entries)))
	putUint32(img, 12, uint32(names.Len()))
	putUint32(img, 20, special)

	for i := range entries {
		rec := img[headerSize+i*tocEntrySize:]
		putUint32(rec, 0, nameOffsets[i])
		putUint32(rec, 4, uint32(len(entries[i].payload)))
		putUint24(rec, 8, pages[i])
		rec[11] = entries[i].flags
		putUint32(rec, 12, entries[i].uncompressed)
	}

	copy(img[headerSize+len(entries)*tocEntrySize:], names.Bytes())

	for i := range entries {
		if entries[i].flags&flagDirectory != 0 {
			continue
		}

		copy(img[int64(pages[i])*pageSize:], entries[i].payload)
	}

	return img
}

// writeArchiveFixture writes an archive image to a temp file and returns its path.
func writeArchiveFixture(t *testing.T, img []byte) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "fixture.rpf")
	if err := os.WriteFile(path, img, 0o600); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	return path
}

// patternPayload returns n deterministic non-constant bytes.
func patternPayload(n int) []byte {
	data := make([]byte, n)
	for i := range data {
		data[i] = byte(i*7 + 13)
	}

	return data
}

func TestOpen_ParsesManualArchive(t *testing.T) {
	t.Parallel()

	texture := patternPayload(1000)
	readme := []byte("hello archive\n")

	img := buildRawArchive(t, []rawEntry{
		{name: "textures/", flags: flagDirectory},
		{name: "textures/a.dds", payload: texture, uncompressed: 1000, flags: 0x08},
		{name: "readme.txt", payload: readme, uncompressed: uint32(len(readme))},
	}, 0xBEEF)

	reader, err := Open(writeArchiveFixture(t, img))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer reader.Close()

	entries := reader.Entries()
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}

	dir := entries[0]
	if dir.Name != "textures/" || !dir.Directory || dir.DataSize != 0 {
		t.Errorf("unexpected directory entry: %+v", dir)
	}

	file := entries[1]
	if file.Name != "textures/a.dds" || file.Directory || file.Compressed {
		t.Errorf("unexpected file entry: %+v", file)
	}
	if file.ResourceType != 0x08 {
		t.Errorf("expected resource type 0x08, got 0x%02X", file.ResourceType)
	}
	if file.ByteOffset() != pageSize {
		t.Errorf("expected first payload at %d, got %d", pageSize, file.ByteOffset())
	}
	if entries[2].ByteOffset() != 2*pageSize {
		t.Errorf("expected second payload at %d, got %d", 2*pageSize, entries[2].ByteOffset())
	}

	got, err := reader.ReadFile("textures/a.dds")
	if err != nil {
		t.Fatalf("read texture: %v", err)
	}
	if !bytes.Equal(got, texture) {
		t.Error("texture payload mismatch")
	}

	got, err = reader.ReadFile("readme.txt")
	if err != nil {
		t.Fatalf("read readme: %v", err)
	}
	if !bytes.Equal(got, readme) {
		t.Error("readme payload mismatch")
	}

	info := reader.Info()
	if info.EntryCount != 3 || info.FileCount != 2 || info.DirectoryCount != 1 {
		t.Errorf("unexpected counts: %+v", info)
	}
	if info.CompressedCount != 0 {
		t.Errorf("expected no compressed entries, got %d", info.CompressedCount)
	}
	if info.StoredBytes != 1000+uint64(len(readme)) {
		t.Errorf("unexpected stored bytes: %d", info.StoredBytes)
	}
	if info.SpecialFlag != 0xBEEF {
		t.Errorf("expected special flag 0xBEEF, got 0x%X", info.SpecialFlag)
	}

	if _, ok := reader.Entry("textures"); !ok {
		t.Error("expected slashless lookup to find the directory entry")
	}
	if _, ok := reader.Entry(`textures\a.dds`); !ok {
		t.Error("expected backslash lookup to find the file entry")
	}
	if _, ok := reader.Entry("missing.bin"); ok {
		t.Error("expected lookup miss for unknown entry")
	}
}

func TestOpen_EmptyArchive(t *testing.T) {
	t.Parallel()

	img := buildRawArchive(t, nil, 0)
	if len(img) != pageSize {
		t.Fatalf("expected fixture of %d bytes, got %d", pageSize, len(img))
	}

	reader, err := NewReaderFromReaderAt(bytes.NewReader(img), int64(len(img)))
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	if got := len(reader.Entries()); got != 0 {
		t.Errorf("expected no entries, got %d", got)
	}

	info := reader.Info()
	if info.EntryCount != 0 || info.FileCount != 0 || info.StoredBytes != 0 {
		t.Errorf("unexpected info for empty archive: %+v", info)
	}
}

func TestNewReaderFromReaderAt_NilReader(t *testing.T) {
	t.Parallel()

	if _, err := NewReaderFromReaderAt(nil, 0); !errors.Is(err, ErrNilReader) {
		t.Fatalf("expected ErrNilReader, got %v", err)
	}
}

func TestOpen_InvalidHeader(t *testing.T) {
	t.Parallel()

	base := buildRawArchive(t, []rawEntry{
		{name: "a.txt", payload: []byte("alpha"), uncompressed: 5},
	}, 0)

	tests := []struct {
		name   string
		mutate func(img []byte) []byte
	}{
		{"short file", func(img []byte) []byte {
			return img[:headerSize-1]
		}},
		{"bad magic", func(img []byte) []byte {
			img[0] = 'X'
			return img
		}},
		{"encrypted", func(img []byte) []byte {
			putUint32(img, 16, 1)
			return img
		}},
		{"toc size mismatch", func(img []byte) []byte {
			putUint32(img, 4, 999)
			return img
		}},
		{"truncated name table", func(img []byte) []byte {
			putUint32(img, 12, 1<<20)
			return img
		}},
		{"name offset out of range", func(img []byte) []byte {
			putUint32(img, headerSize, 0xFFFF)
			return img
		}},
		{"unterminated name", func(img []byte) []byte {
			// Shrink the name table so the trailing NUL falls outside it.
			putUint32(img, 12, 5)
			return img
		}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			img := tc.mutate(bytes.Clone(base))
			_, err := NewReaderFromReaderAt(bytes.NewReader(img), int64(len(img)))
			if !errors.Is(err, ErrInvalidHeader) {
				t.Fatalf("expected ErrInvalidHeader, got %v", err)
			}
		})
	}
}

func TestOpen_PlaceholderEntryName(t *testing.T) {
	t.Parallel()

	img := buildRawArchive(t, []rawEntry{
		{name: "", payload: []byte("ghost"), uncompressed: 5},
	}, 0)

	reader, err := NewReaderFromReaderAt(bytes.NewReader(img), int64(len(img)))
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	entries := reader.Entries()
	if len(entries) != 1 || entries[0].Name != "__unnamed_0" {
		t.Fatalf("expected placeholder entry name, got %+v", entries)
	}

	got, err := reader.ReadFile("__unnamed_0")
	if err != nil {
		t.Fatalf("read placeholder entry: %v", err)
	}
	if string(got) != "ghost" {
		t.Errorf("unexpected payload %q", got)
	}
}

func TestReadFile_Lookup(t *testing.T) {
	t.Parallel()

	img := buildRawArchive(t, []rawEntry{
		{name: "models/", flags: flagDirectory},
		{name: "legacy", flags: flagDirectory},
		{name: "Models/Horse.wdr", payload: []byte("mesh"), uncompressed: 4},
	}, 0)

	reader, err := NewReaderFromReaderAt(bytes.NewReader(img), int64(len(img)))
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	if _, err := reader.ReadFile("missing.txt"); !errors.Is(err, ErrEntryNotFound) {
		t.Errorf("expected ErrEntryNotFound, got %v", err)
	}

	// Entry names match byte for byte; lookup is case-sensitive.
	if _, err := reader.ReadFile("models/horse.wdr"); !errors.Is(err, ErrEntryNotFound) {
		t.Errorf("expected case-sensitive miss, got %v", err)
	}
	if _, err := reader.ReadFile("Models/Horse.wdr"); err != nil {
		t.Errorf("expected exact-case hit, got %v", err)
	}

	// Directories are diagnosed in both stored spellings.
	if _, err := reader.ReadFile("models"); !errors.Is(err, ErrEntryIsDirectory) {
		t.Errorf("expected ErrEntryIsDirectory for slash-form directory, got %v", err)
	}
	if _, err := reader.ReadFile("legacy"); !errors.Is(err, ErrEntryIsDirectory) {
		t.Errorf("expected ErrEntryIsDirectory for bare directory, got %v", err)
	}
}

func TestReadFile_EmptyPayload(t *testing.T) {
	t.Parallel()

	img := buildRawArchive(t, []rawEntry{
		{name: "empty.bin"},
	}, 0)

	reader, err := NewReaderFromReaderAt(bytes.NewReader(img), int64(len(img)))
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	got, err := reader.ReadFile("empty.bin")
	if err != nil {
		t.Fatalf("read empty entry: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected empty payload, got %d bytes", len(got))
	}
}

func TestReadFile_OffsetOutOfRange(t *testing.T) {
	t.Parallel()

	img := buildRawArchive(t, []rawEntry{
		{name: "a.txt", payload: []byte("alpha"), uncompressed: 5},
	}, 0)

	// Point the payload page far past the end of the image.
	putUint24(img, headerSize+8, maxPageIndex)

	reader, err := NewReaderFromReaderAt(bytes.NewReader(img), int64(len(img)))
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	if _, err := reader.ReadFile("a.txt"); !errors.Is(err, ErrEntryOutOfRange) {
		t.Fatalf("expected ErrEntryOutOfRange, got %v", err)
	}
}

func TestReadFile_CompressedRoundTrip(t *testing.T) {
	t.Parallel()

	original := bytes.Repeat([]byte("block data "), 200)
	packed, err := Compress(original, 6)
	if err != nil {
		t.Fatalf("compress: %v", err)
	}

	img := buildRawArchive(t, []rawEntry{
		{name: "models/b.wdr", payload: packed, flags: flagCompressed, uncompressed: uint32(len(original))},
	}, 0)

	reader, err := NewReaderFromReaderAt(bytes.NewReader(img), int64(len(img)))
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	entry, ok := reader.Entry("models/b.wdr")
	if !ok || !entry.Compressed {
		t.Fatalf("expected compressed entry, got %+v", entry)
	}
	if entry.DataSize != uint32(len(packed)) {
		t.Errorf("expected stored size %d, got %d", len(packed), entry.DataSize)
	}

	got, err := reader.ReadFile("models/b.wdr")
	if err != nil {
		t.Fatalf("read compressed entry: %v", err)
	}
	if !bytes.Equal(got, original) {
		t.Error("inflated payload mismatch")
	}
}

func TestReadFile_DamagedCompressedFallsBack(t *testing.T) {
	t.Parallel()

	garbage := patternPayload(64)
	img := buildRawArchive(t, []rawEntry{
		{name: "broken.wtd", payload: garbage, flags: flagCompressed, uncompressed: 4096},
	}, 0)

	reader, err := NewReaderFromReaderAt(bytes.NewReader(img), int64(len(img)))
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	got, err := reader.ReadFile("broken.wtd")
	if err != nil {
		t.Fatalf("expected damaged payload to degrade, got error %v", err)
	}
	if !bytes.Equal(got, garbage) {
		t.Error("expected raw stored bytes back for damaged stream")
	}
}

func TestReader_ClosedOperations(t *testing.T) {
	t.Parallel()

	img := buildRawArchive(t, []rawEntry{
		{name: "a.txt", payload: []byte("alpha"), uncompressed: 5},
	}, 0)

	reader, err := Open(writeArchiveFixture(t, img))
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	if err := reader.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := reader.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}

	if _, err := reader.ReadFile("a.txt"); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed from ReadFile, got %v", err)
	}
	if _, err := reader.Extract(context.Background(), t.TempDir(), ExtractOptions{}); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed from Extract, got %v", err)
	}
}

func TestDigest_MatchesPayload(t *testing.T) {
	t.Parallel()

	payload := patternPayload(512)
	img := buildRawArchive(t, []rawEntry{
		{name: "data.bin", payload: payload, uncompressed: 512},
	}, 0)

	reader, err := NewReaderFromReaderAt(bytes.NewReader(img), int64(len(img)))
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	got, err := reader.Digest("data.bin")
	if err != nil {
		t.Fatalf("digest: %v", err)
	}
	if want := blake3.Sum256(payload); got != want {
		t.Error("digest mismatch")
	}

	if _, err := reader.Digest("missing.bin"); !errors.Is(err, ErrEntryNotFound) {
		t.Errorf("expected ErrEntryNotFound, got %v", err)
	}
}

func TestEntries_ReturnsCopy(t *testing.T) {
	t.Parallel()

	img := buildRawArchive(t, []rawEntry{
		{name: "a.txt", payload: []byte("alpha"), uncompressed: 5},
	}, 0)

	reader, err := NewReaderFromReaderAt(bytes.NewReader(img), int64(len(img)))
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	entries := reader.Entries()
	entries[0].Name = "mutated"

	if reader.Entries()[0].Name != "a.txt" {
		t.Error("expected internal entry table to be isolated from callers")
	}
}

func TestExtractRoundTrip(t *testing.T) {
	t.Parallel()

	texture := patternPayload(1000)
	mesh := bytes.Repeat([]byte("vertex soup "), 300)
	packed, err := Compress(mesh, 6)
	if err != nil {
		t.Fatalf("compress: %v", err)
	}

	img := buildRawArchive(t, []rawEntry{
		{name: "textures/", flags: flagDirectory},
		{name: "textures/a.dds", payload: texture, uncompressed: 1000},
		{name: "models/b.wdr", payload: packed, flags: flagCompressed, uncompressed: uint32(len(mesh))},
	}, 0)

	reader, err := NewReaderFromReaderAt(bytes.NewReader(img), int64(len(img)))
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	dstDir := t.TempDir()
	result, err := reader.Extract(context.Background(), dstDir, ExtractOptions{})
	if err != nil {
		t.Fatalf("extract: %v", err)
	}

	if result.Extracted != 2 || result.Directories != 1 || result.Failed != 0 {
		t.Fatalf("unexpected result: %+v", result)
	}

	got, err := os.ReadFile(filepath.Join(dstDir, "textures", "a.dds"))
	if err != nil {
		t.Fatalf("read extracted texture: %v", err)
	}
	if !bytes.Equal(got, texture) {
		t.Error("extracted texture mismatch")
	}

	got, err = os.ReadFile(filepath.Join(dstDir, "models", "b.wdr"))
	if err != nil {
		t.Fatalf("read extracted mesh: %v", err)
	}
	if !bytes.Equal(got, mesh) {
		t.Error("extracted mesh should be inflated to the original bytes")
	}
}

func TestExtract_SelectedEntries(t *testing.T) {
	t.Parallel()

	img := buildRawArchive(t, []rawEntry{
		{name: "keep.txt", payload: []byte("keep"), uncompressed: 4},
		{name: "skip.txt", payload: []byte("skip"), uncompressed: 4},
	}, 0)

	reader, err := NewReaderFromReaderAt(bytes.NewReader(img), int64(len(img)))
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	var missErr error
	dstDir := t.TempDir()
	result, err := reader.Extract(context.Background(), dstDir, ExtractOptions{
		Entries: []string{"keep.txt", "missing.txt"},
		OnEntryDone: func(entry EntryInfo, _ string, err error) {
			if entry.Name == "missing.txt" {
				missErr = err
			}
		},
	})
	if err != nil {
		t.Fatalf("extract: %v", err)
	}

	if result.Extracted != 1 || result.Failed != 1 {
		t.Fatalf("unexpected result: %+v", result)
	}
	if !errors.Is(missErr, ErrEntryNotFound) {
		t.Errorf("expected ErrEntryNotFound for missing selection, got %v", missErr)
	}

	if _, err := os.Stat(filepath.Join(dstDir, "skip.txt")); !os.IsNotExist(err) {
		t.Error("unselected entry should not be extracted")
	}
}

func TestExtract_CreateOnlyMode(t *testing.T) {
	t.Parallel()

	img := buildRawArchive(t, []rawEntry{
		{name: "a.txt", payload: []byte("alpha"), uncompressed: 5},
	}, 0)

	reader, err := NewReaderFromReaderAt(bytes.NewReader(img), int64(len(img)))
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	dstDir := t.TempDir()
	opts := ExtractOptions{FileMode: ExtractFileModeCreateOnly}

	result, err := reader.Extract(context.Background(), dstDir, opts)
	if err != nil || result.Extracted != 1 {
		t.Fatalf("first pass: result=%+v err=%v", result, err)
	}

	var entryErr error
	opts.OnEntryDone = func(_ EntryInfo, _ string, err error) { entryErr = err }

	result, err = reader.Extract(context.Background(), dstDir, opts)
	if err != nil {
		t.Fatalf("second pass: %v", err)
	}
	if result.Extracted != 0 || result.Failed != 1 {
		t.Fatalf("expected existing file to fail in create-only mode, got %+v", result)
	}
	if !errors.Is(entryErr, os.ErrExist) {
		t.Errorf("expected os.ErrExist, got %v", entryErr)
	}
}

func TestExtract_DefaultModeRewritesExistingFiles(t *testing.T) {
	t.Parallel()

	img := buildRawArchive(t, []rawEntry{
		{name: "a.txt", payload: []byte("alpha"), uncompressed: 5},
	}, 0)

	reader, err := NewReaderFromReaderAt(bytes.NewReader(img), int64(len(img)))
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	dstDir := t.TempDir()
	outPath := filepath.Join(dstDir, "a.txt")
	if err := os.WriteFile(outPath, []byte("something much longer than the payload"), 0o600); err != nil {
		t.Fatalf("pre-create output: %v", err)
	}

	result, err := reader.Extract(context.Background(), dstDir, ExtractOptions{})
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if result.Extracted != 1 || result.Failed != 0 {
		t.Fatalf("unexpected result: %+v", result)
	}

	got, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	if string(got) != "alpha" {
		t.Errorf("expected rewritten file to hold exactly the payload, got %q", got)
	}
}

func TestExtract_RejectsUnsafePaths(t *testing.T) {
	t.Parallel()

	img := buildRawArchive(t, []rawEntry{
		{name: "../evil.txt", payload: []byte("evil"), uncompressed: 4},
		{name: "ok.txt", payload: []byte("fine"), uncompressed: 4},
	}, 0)

	reader, err := NewReaderFromReaderAt(bytes.NewReader(img), int64(len(img)))
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	var unsafeErr error
	parent := t.TempDir()
	dstDir := filepath.Join(parent, "out")

	result, err := reader.Extract(context.Background(), dstDir, ExtractOptions{
		OnEntryDone: func(entry EntryInfo, _ string, err error) {
			if entry.Name == "../evil.txt" {
				unsafeErr = err
			}
		},
	})
	if err != nil {
		t.Fatalf("extract: %v", err)
	}

	if result.Extracted != 1 || result.Failed != 1 {
		t.Fatalf("unexpected result: %+v", result)
	}
	if !errors.Is(unsafeErr, ErrInvalidExtractPath) {
		t.Errorf("expected ErrInvalidExtractPath, got %v", unsafeErr)
	}

	if _, err := os.Stat(filepath.Join(parent, "evil.txt")); !os.IsNotExist(err) {
		t.Error("traversal entry must not escape the output root")
	}
}

func TestExtract_ContextCanceled(t *testing.T) {
	t.Parallel()

	img := buildRawArchive(t, []rawEntry{
		{name: "a.txt", payload: []byte("alpha"), uncompressed: 5},
	}, 0)

	reader, err := NewReaderFromReaderAt(bytes.NewReader(img), int64(len(img)))
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := reader.Extract(ctx, t.TempDir(), ExtractOptions{}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestExtract_UnknownFileMode(t *testing.T) {
	t.Parallel()

	img := buildRawArchive(t, []rawEntry{
		{name: "a.txt", payload: []byte("alpha"), uncompressed: 5},
	}, 0)

	reader, err := NewReaderFromReaderAt(bytes.NewReader(img), int64(len(img)))
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	if _, err := reader.Extract(context.Background(), t.TempDir(), ExtractOptions{FileMode: "bogus"}); err == nil {
		t.Fatal("expected unknown file mode to be rejected")
	}
}
