package cachew

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/klauspost/compress/snappy"

	"github.com/swipswaps/cachew/integrity"
	"github.com/swipswaps/cachew/internal/fb"
)

// PackEntry describes one member of a packfile.
type PackEntry struct {
	Path      string
	Integrity integrity.Integrity
	Size      int64
	Mode      fs.FileMode
}

// PackReader serves random-access reads from a persisted .pack/.idx pair.
//
// Lookup goes path → integrity through the metadata index, then
// integrity → offset through the fanout table. An entry's extent runs from
// its predecessor's recorded offset (zero for the first entry in stream
// order) to its own; the 8 bytes at the extent's start are the declared
// size, the rest is the framed payload.
type PackReader struct {
	pack    []byte
	fanout  [256]uint64
	rows    []digestOffset // ascending by digest
	starts  []uint64       // recorded offsets in ascending (stream) order
	entries map[string]PackEntry
	paths   []string // sorted
}

// OpenPack loads the packfile named by sri from <cache>/packed. A .pack
// without a matching .idx (or the reverse) is treated as absent.
func OpenPack(cache string, sri integrity.Integrity) (*PackReader, error) {
	hexSRI, err := sri.Hex()
	if err != nil {
		return nil, err
	}
	dir := filepath.Join(cache, packedDir)
	idxBytes, err := os.ReadFile(filepath.Join(dir, hexSRI+".idx"))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("cachew: packfile %s in cache at %q: %w", hexSRI, cache, ErrNotFound)
		}
		return nil, err
	}
	pack, err := os.ReadFile(filepath.Join(dir, hexSRI+".pack"))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("cachew: packfile %s in cache at %q: %w", hexSRI, cache, ErrNotFound)
		}
		return nil, err
	}

	r := &PackReader{pack: pack}
	if err := r.parseIndex(idxBytes); err != nil {
		return nil, fmt.Errorf("cachew: parse index for packfile %s: %w", hexSRI, err)
	}
	if err := r.parseMeta(); err != nil {
		return nil, fmt.Errorf("cachew: parse metadata for packfile %s: %w", hexSRI, err)
	}
	return r, nil
}

func (r *PackReader) parseIndex(idx []byte) error {
	if len(idx) < fanoutLen {
		return fmt.Errorf("index truncated: %d bytes", len(idx))
	}
	body := idx[fanoutLen:]
	if len(body)%(packDigestLen+packOffsetLen) != 0 {
		return fmt.Errorf("index body misaligned: %d bytes", len(body))
	}
	for i := range r.fanout {
		r.fanout[i] = binary.BigEndian.Uint64(idx[i*8:])
	}
	n := len(body) / (packDigestLen + packOffsetLen)
	if r.fanout[255] != uint64(n) {
		return fmt.Errorf("fanout total %d does not match %d rows", r.fanout[255], n)
	}
	r.rows = make([]digestOffset, n)
	r.starts = make([]uint64, n)
	for i := 0; i < n; i++ {
		row := body[i*(packDigestLen+packOffsetLen):]
		r.rows[i] = digestOffset{
			digest: row[:packDigestLen],
			offset: binary.BigEndian.Uint64(row[packDigestLen:]),
		}
		r.starts[i] = r.rows[i].offset
	}
	sort.Slice(r.starts, func(i, j int) bool { return r.starts[i] < r.starts[j] })
	return nil
}

// parseMeta decodes the trailing metadata index. It begins at the largest
// recorded offset, which is the end of the last entry (zero when empty).
func (r *PackReader) parseMeta() error {
	var metaStart uint64
	if n := len(r.starts); n > 0 {
		metaStart = r.starts[n-1]
	}
	if metaStart+8 > uint64(len(r.pack)) {
		return fmt.Errorf("metadata index out of range at offset %d", metaStart)
	}
	declared := binary.BigEndian.Uint64(r.pack[metaStart:])
	dec := snappy.NewReader(bytes.NewReader(r.pack[metaStart+8:]))
	raw, err := io.ReadAll(dec)
	if err != nil {
		return err
	}
	if uint64(len(raw)) != declared {
		return fmt.Errorf("metadata index size %d does not match declared %d", len(raw), declared)
	}

	root := fb.GetRootAsPackIndex(raw, 0)
	r.entries = make(map[string]PackEntry, root.EntriesLength())
	var e fb.PackEntry
	for i := 0; i < root.EntriesLength(); i++ {
		if !root.Entries(&e, i) {
			return fmt.Errorf("metadata entry %d unreadable", i)
		}
		sri, err := integrity.Parse(string(e.Integrity()))
		if err != nil {
			return err
		}
		path := string(e.Path())
		r.entries[path] = PackEntry{
			Path:      path,
			Integrity: sri,
			Size:      int64(e.Size()),
			Mode:      fs.FileMode(e.Mode()),
		}
		r.paths = append(r.paths, path)
	}
	sort.Strings(r.paths)
	return nil
}

// Len returns the number of members.
func (r *PackReader) Len() int { return len(r.entries) }

// Paths returns the member paths in sorted order.
func (r *PackReader) Paths() []string {
	out := make([]string, len(r.paths))
	copy(out, r.paths)
	return out
}

// Stat returns the metadata recorded for path.
func (r *PackReader) Stat(path string) (PackEntry, bool) {
	e, ok := r.entries[path]
	return e, ok
}

// Read decompresses and returns the member stored at path, verified
// against its recorded integrity.
func (r *PackReader) Read(path string) ([]byte, error) {
	e, ok := r.entries[path]
	if !ok {
		return nil, fmt.Errorf("cachew: pack entry %q: %w", path, ErrNotFound)
	}
	raw, err := e.Integrity.Raw()
	if err != nil {
		return nil, err
	}
	end, ok := r.lookupOffset(raw)
	if !ok {
		return nil, fmt.Errorf("cachew: pack entry %q missing from offset table: %w", path, ErrNotFound)
	}

	// The extent starts at the predecessor's recorded offset.
	i := sort.Search(len(r.starts), func(i int) bool { return r.starts[i] >= end })
	var start uint64
	if i > 0 {
		start = r.starts[i-1]
	}
	if start+8 > end || end > uint64(len(r.pack)) {
		return nil, fmt.Errorf("cachew: pack entry %q has invalid extent [%d, %d)", path, start, end)
	}

	dec := snappy.NewReader(bytes.NewReader(r.pack[start+8 : end]))
	data, err := io.ReadAll(dec)
	if err != nil {
		return nil, fmt.Errorf("cachew: decompress pack entry %q: %w", path, err)
	}
	actual, err := integrity.FromBytes(e.Integrity.Algorithm(), data)
	if err != nil {
		return nil, err
	}
	if !e.Integrity.Match(actual) {
		return nil, &IntegrityMismatchError{Expected: e.Integrity, Actual: actual}
	}
	return data, nil
}

// lookupOffset finds the recorded offset for a raw digest using the fanout
// for a one-byte dispatch and binary search within the bucket.
func (r *PackReader) lookupOffset(digest []byte) (uint64, bool) {
	if len(digest) != packDigestLen {
		return 0, false
	}
	b := int(digest[0])
	lo := 0
	if b > 0 {
		lo = int(r.fanout[b-1])
	}
	hi := int(r.fanout[b])
	if lo > hi || hi > len(r.rows) {
		return 0, false
	}
	bucket := r.rows[lo:hi]
	i := sort.Search(len(bucket), func(i int) bool {
		return bytes.Compare(bucket[i].digest, digest) >= 0
	})
	if i == len(bucket) || !bytes.Equal(bucket[i].digest, digest) {
		return 0, false
	}
	return bucket[i].offset, true
}
