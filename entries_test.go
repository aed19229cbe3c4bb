package cachew

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"io/fs"
	"iter"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/swipswaps/cachew/integrity"
)

// memFile is an in-memory FileLike with per-accessor failure injection.
type memFile struct {
	name    string
	data    *bytes.Reader
	mode    fs.FileMode
	pathErr error
	sizeErr error
	modeErr error
}

func newMemFile(name string, data []byte) *memFile {
	return &memFile{name: name, data: bytes.NewReader(data), mode: 0o644}
}

func (f *memFile) Read(p []byte) (int, error) { return f.data.Read(p) }

func (f *memFile) Path() (string, error) {
	if f.pathErr != nil {
		return "", f.pathErr
	}
	return f.name, nil
}

func (f *memFile) Size() (int64, error) {
	if f.sizeErr != nil {
		return 0, f.sizeErr
	}
	return f.data.Size(), nil
}

func (f *memFile) Mode() (fs.FileMode, error) {
	if f.modeErr != nil {
		return 0, f.modeErr
	}
	return f.mode, nil
}

func entrySeq(files ...*memFile) iter.Seq2[FileLike, error] {
	return func(yield func(FileLike, error) bool) {
		for _, f := range files {
			if !yield(f, nil) {
				return
			}
		}
	}
}

func packPaths(t *testing.T, cache string, sri integrity.Integrity) (packPath, idxPath string) {
	t.Helper()
	hexSRI, err := sri.Hex()
	require.NoError(t, err)
	dir := filepath.Join(cache, "packed")
	return filepath.Join(dir, hexSRI+".pack"), filepath.Join(dir, hexSRI+".idx")
}

func TestWriteEntriesEmpty(t *testing.T) {
	t.Parallel()

	cache := t.TempDir()
	sri, err := WriteEntries(context.Background(), cache, entrySeq())
	require.NoError(t, err)

	packPath, idxPath := packPaths(t, cache, sri)

	idx, err := os.ReadFile(idxPath)
	require.NoError(t, err)
	assert.Len(t, idx, 256*8)
	assert.Equal(t, make([]byte, 256*8), idx, "empty pack has an all-zero fanout and no rows")

	pack, err := os.ReadFile(packPath)
	require.NoError(t, err)
	want, err := integrity.FromBytes(integrity.SHA256, pack)
	require.NoError(t, err)
	assert.True(t, want.Match(sri), "pack files are named by the digest of the pack stream")

	r, err := OpenPack(cache, sri)
	require.NoError(t, err)
	assert.Equal(t, 0, r.Len())
}

func TestWriteEntriesTwo(t *testing.T) {
	t.Parallel()

	cache := t.TempDir()
	a := newMemFile("a", []byte("AAA"))
	a.mode = 0o755
	b := newMemFile("b", []byte("BBBB"))

	sri, err := WriteEntries(context.Background(), cache, entrySeq(a, b))
	require.NoError(t, err)

	packPath, idxPath := packPaths(t, cache, sri)
	pack, err := os.ReadFile(packPath)
	require.NoError(t, err)
	idx, err := os.ReadFile(idxPath)
	require.NoError(t, err)

	// The pack opens with the declared size of the first streamed entry.
	require.Greater(t, len(pack), 8)
	assert.Equal(t, uint64(3), binary.BigEndian.Uint64(pack[:8]))

	// Fanout: monotonic, cumulative count reaching 2 at byte 255.
	require.Len(t, idx, 256*8+2*40)
	var prev uint64
	for i := 0; i < 256; i++ {
		count := binary.BigEndian.Uint64(idx[i*8:])
		assert.GreaterOrEqual(t, count, prev, "fanout must be monotonic")
		prev = count
	}
	assert.Equal(t, uint64(2), binary.BigEndian.Uint64(idx[255*8:]))

	// Rows: the two digests in ascending order.
	digestA := sha256.Sum256([]byte("AAA"))
	digestB := sha256.Sum256([]byte("BBBB"))
	wantRows := [][]byte{digestA[:], digestB[:]}
	if bytes.Compare(wantRows[0], wantRows[1]) > 0 {
		wantRows[0], wantRows[1] = wantRows[1], wantRows[0]
	}
	body := idx[256*8:]
	assert.Equal(t, wantRows[0], body[0:32])
	assert.Equal(t, wantRows[1], body[40:72])

	// Offsets are positions just past each entry's framed payload.
	off0 := binary.BigEndian.Uint64(body[32:40])
	off1 := binary.BigEndian.Uint64(body[72:80])
	assert.NotEqual(t, off0, off1)
	assert.Less(t, max(off0, off1), uint64(len(pack)))

	// Random access through the paired index.
	r, err := OpenPack(cache, sri)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, r.Paths())

	got, err := r.Read("a")
	require.NoError(t, err)
	assert.Equal(t, []byte("AAA"), got)
	got, err = r.Read("b")
	require.NoError(t, err)
	assert.Equal(t, []byte("BBBB"), got)

	stat, ok := r.Stat("a")
	require.True(t, ok)
	assert.Equal(t, fs.FileMode(0o755), stat.Mode)
	assert.Equal(t, int64(3), stat.Size)
	assert.True(t, sriOf(t, "AAA").Match(stat.Integrity))
}

func TestWriteEntriesLargePayload(t *testing.T) {
	t.Parallel()

	cache := t.TempDir()
	big := bytes.Repeat([]byte("not very compressible 0123456789 abcdefghijklmnopqrstuvwxyz "), 4096)

	sri, err := WriteEntries(context.Background(), cache, entrySeq(
		newMemFile("big.bin", big),
		newMemFile("small.txt", []byte("tiny")),
	))
	require.NoError(t, err)

	r, err := OpenPack(cache, sri)
	require.NoError(t, err)

	got, err := r.Read("big.bin")
	require.NoError(t, err)
	assert.Equal(t, big, got)
	got, err = r.Read("small.txt")
	require.NoError(t, err)
	assert.Equal(t, []byte("tiny"), got)
}

func TestWriteEntriesModeDefault(t *testing.T) {
	t.Parallel()

	cache := t.TempDir()
	f := newMemFile("nomode", []byte("data"))
	f.modeErr = errors.New("mode unavailable")

	sri, err := WriteEntries(context.Background(), cache, entrySeq(f))
	require.NoError(t, err)

	r, err := OpenPack(cache, sri)
	require.NoError(t, err)
	stat, ok := r.Stat("nomode")
	require.True(t, ok)
	assert.Equal(t, fs.FileMode(0o644), stat.Mode)
}

func TestWriteEntriesPathErrorSkips(t *testing.T) {
	t.Parallel()

	cache := t.TempDir()
	bad := newMemFile("ignored", []byte("unreachable"))
	bad.pathErr = errors.New("no path")

	sri, err := WriteEntries(context.Background(), cache, entrySeq(
		bad,
		newMemFile("kept", []byte("still here")),
	))
	require.NoError(t, err)

	r, err := OpenPack(cache, sri)
	require.NoError(t, err)
	assert.Equal(t, []string{"kept"}, r.Paths())
}

func TestWriteEntriesSizeErrorFatal(t *testing.T) {
	t.Parallel()

	cache := t.TempDir()
	cause := errors.New("stat failed")
	bad := newMemFile("bad", []byte("data"))
	bad.sizeErr = cause

	_, err := WriteEntries(context.Background(), cache, entrySeq(bad))
	var sizeErr *EntrySizeError
	require.ErrorAs(t, err, &sizeErr)
	assert.Equal(t, "bad", sizeErr.Path)
	assert.ErrorIs(t, err, cause)
}

func TestWriteEntriesStreamErrorFatal(t *testing.T) {
	t.Parallel()

	cause := errors.New("stream broke")
	seq := func(yield func(FileLike, error) bool) {
		if !yield(newMemFile("ok", []byte("fine")), nil) {
			return
		}
		yield(nil, cause)
	}

	_, err := WriteEntries(context.Background(), t.TempDir(), seq)
	assert.ErrorIs(t, err, cause)
}

func TestWriteEntriesDeduplicatesContent(t *testing.T) {
	t.Parallel()

	cache := t.TempDir()
	sri, err := WriteEntries(context.Background(), cache, entrySeq(
		newMemFile("first/copy", []byte("same bytes")),
		newMemFile("second/copy", []byte("same bytes")),
	))
	require.NoError(t, err)

	_, idxPath := packPaths(t, cache, sri)
	idx, err := os.ReadFile(idxPath)
	require.NoError(t, err)

	// One offset row for the shared digest, two paths in the metadata.
	assert.Equal(t, uint64(1), binary.BigEndian.Uint64(idx[255*8:]))

	r, err := OpenPack(cache, sri)
	require.NoError(t, err)
	assert.Equal(t, []string{"first/copy", "second/copy"}, r.Paths())

	// Both paths resolve to the shared extent.
	for _, path := range r.Paths() {
		got, err := r.Read(path)
		require.NoError(t, err, "read %q", path)
		assert.Equal(t, []byte("same bytes"), got)
	}
	first, ok := r.Stat("first/copy")
	require.True(t, ok)
	second, ok := r.Stat("second/copy")
	require.True(t, ok)
	assert.True(t, first.Integrity.Match(second.Integrity))
}

func TestWriteEntriesDuplicatesInterleaved(t *testing.T) {
	t.Parallel()

	cache := t.TempDir()
	contents := map[string][]byte{
		"a/dup":    []byte("shared payload"),
		"b/unique": []byte("only once"),
		"c/dup":    []byte("shared payload"),
		"d/other":  []byte("another distinct entry"),
		"e/dup":    []byte("shared payload"),
	}
	sri, err := WriteEntries(context.Background(), cache, entrySeq(
		newMemFile("a/dup", contents["a/dup"]),
		newMemFile("b/unique", contents["b/unique"]),
		newMemFile("c/dup", contents["c/dup"]),
		newMemFile("d/other", contents["d/other"]),
		newMemFile("e/dup", contents["e/dup"]),
	))
	require.NoError(t, err)

	_, idxPath := packPaths(t, cache, sri)
	idx, err := os.ReadFile(idxPath)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), binary.BigEndian.Uint64(idx[255*8:]),
		"three distinct contents, three offset rows")

	r, err := OpenPack(cache, sri)
	require.NoError(t, err)
	require.Equal(t, 5, r.Len())
	for path, want := range contents {
		got, err := r.Read(path)
		require.NoError(t, err, "read %q", path)
		assert.Equal(t, want, got, "content mismatch for %q", path)
	}
}

func TestWriteEntriesDeterministic(t *testing.T) {
	t.Parallel()

	inputs := func() iter.Seq2[FileLike, error] {
		return entrySeq(
			newMemFile("z", []byte("zzz")),
			newMemFile("a", []byte("aaa")),
		)
	}

	first, err := WriteEntries(context.Background(), t.TempDir(), inputs())
	require.NoError(t, err)
	second, err := WriteEntries(context.Background(), t.TempDir(), inputs())
	require.NoError(t, err)
	assert.True(t, first.Match(second), "identical inputs must produce identically-named packs")
}

func TestWriteEntriesCancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := WriteEntries(ctx, t.TempDir(), entrySeq(newMemFile("a", []byte("aaa"))))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestOpenPackMissing(t *testing.T) {
	t.Parallel()

	_, err := OpenPack(t.TempDir(), sriOf(t, "no such pack"))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestOpenPackOrphanedPack(t *testing.T) {
	t.Parallel()

	cache := t.TempDir()
	sri, err := WriteEntries(context.Background(), cache, entrySeq(newMemFile("a", []byte("aaa"))))
	require.NoError(t, err)

	// A .pack without its .idx must read as absent.
	_, idxPath := packPaths(t, cache, sri)
	require.NoError(t, os.Remove(idxPath))

	_, err = OpenPack(cache, sri)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPackReaderMissingEntry(t *testing.T) {
	t.Parallel()

	cache := t.TempDir()
	sri, err := WriteEntries(context.Background(), cache, entrySeq(newMemFile("a", []byte("aaa"))))
	require.NoError(t, err)

	r, err := OpenPack(cache, sri)
	require.NoError(t, err)
	_, err = r.Read("missing")
	assert.ErrorIs(t, err, ErrNotFound)
}
