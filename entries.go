package cachew

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"io/fs"
	"iter"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	flatbuffers "github.com/google/flatbuffers/go"
	"github.com/klauspost/compress/snappy"
	"golang.org/x/sync/errgroup"

	"github.com/swipswaps/cachew/integrity"
	"github.com/swipswaps/cachew/internal/fb"
)

const (
	packedDir   = "packed"
	packVersion = 1
	packDirPerm = 0o755

	// The packfile format pins SHA-256: index rows are fixed 32-byte digests.
	packDigestLen = 32
	packOffsetLen = 8
	fanoutLen     = 256 * 8
)

// FileLike is one input entry for WriteEntries: a byte stream plus the
// accessors the packfile records. Path failures cause the entry to be
// skipped, Size failures abort the build, Mode failures fall back to 0o644.
type FileLike interface {
	io.Reader

	Path() (string, error)
	Size() (int64, error)
	Mode() (fs.FileMode, error)
}

// EntriesOption configures WriteEntries.
type EntriesOption func(*entriesConfig)

type entriesConfig struct {
	logger *slog.Logger
}

// WithLogger sets a logger for the build. If nil, a discard logger is used
// (default behavior).
func WithLogger(logger *slog.Logger) EntriesOption {
	return func(c *entriesConfig) {
		c.logger = logger
	}
}

// WriteEntries drains entries into a packfile for fast random access later.
//
// Each entry is length-prefixed and compressed into the pack stream with a
// framed codec, and its digest over the uncompressed bytes is recorded in a
// paired index file. Entries with identical bytes are stored once; every
// path still resolves through the metadata index. Both files land under
// <cache>/packed, named by the hex digest of the full pack stream. The
// build runs on its own goroutine; WriteEntries returns once both files
// are persisted.
func WriteEntries(ctx context.Context, cache string, entries iter.Seq2[FileLike, error], opts ...EntriesOption) (integrity.Integrity, error) {
	cfg := entriesConfig{logger: slog.New(slog.DiscardHandler)}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.logger == nil {
		cfg.logger = slog.New(slog.DiscardHandler)
	}

	var sri integrity.Integrity
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		sri, err = buildPack(ctx, cache, entries, cfg.logger)
		return err
	})
	if err := g.Wait(); err != nil {
		return integrity.Integrity{}, err
	}
	return sri, nil
}

type packEntryMeta struct {
	sri  integrity.Integrity
	size uint64
	mode uint32
}

type digestOffset struct {
	digest []byte
	offset uint64
}

func buildPack(ctx context.Context, cache string, entries iter.Seq2[FileLike, error], logger *slog.Logger) (integrity.Integrity, error) {
	var buf bytes.Buffer
	dest, err := integrity.NewWriter(&buf, integrity.SHA256)
	if err != nil {
		return integrity.Integrity{}, err
	}

	// One offset per raw digest, one metadata record per path; later paths
	// win. Identical entry bytes are written once, so every offset row
	// corresponds to exactly one extent in the pack stream.
	offsets := make(map[string]uint64)
	meta := make(map[string]packEntryMeta)
	var prefix [8]byte

	for entry, err := range entries {
		if err != nil {
			return integrity.Integrity{}, fmt.Errorf("cachew: read entry stream: %w", err)
		}
		if err := ctx.Err(); err != nil {
			return integrity.Integrity{}, err
		}

		path, pathErr := entry.Path()
		if pathErr != nil {
			logger.Debug("skipping pack entry with unavailable path", "error", pathErr)
			continue
		}
		size, sizeErr := entry.Size()
		if sizeErr != nil {
			return integrity.Integrity{}, &EntrySizeError{Path: path, Err: sizeErr}
		}
		mode := uint32(0o644)
		if m, modeErr := entry.Mode(); modeErr == nil {
			mode = uint32(m.Perm())
		}

		hr, err := integrity.NewReader(entry, integrity.SHA256)
		if err != nil {
			return integrity.Integrity{}, err
		}
		data, err := io.ReadAll(hr)
		if err != nil {
			return integrity.Integrity{}, fmt.Errorf("cachew: read pack entry %q: %w", path, err)
		}
		sri := hr.Sum()
		raw, err := sri.Raw()
		if err != nil {
			return integrity.Integrity{}, err
		}

		// Content the pack already holds is not written again; the path
		// simply maps to the digest of the existing extent.
		if _, seen := offsets[string(raw)]; !seen {
			binary.BigEndian.PutUint64(prefix[:], uint64(size))
			if _, err := dest.Write(prefix[:]); err != nil {
				return integrity.Integrity{}, fmt.Errorf("cachew: write pack entry %q: %w", path, err)
			}
			enc := snappy.NewBufferedWriter(dest)
			if _, err := enc.Write(data); err != nil {
				return integrity.Integrity{}, fmt.Errorf("cachew: compress pack entry %q: %w", path, err)
			}
			if err := enc.Close(); err != nil {
				return integrity.Integrity{}, fmt.Errorf("cachew: finish pack entry %q: %w", path, err)
			}

			// The recorded offset is the position just past this entry's
			// frames; readers recover extents from the preceding offset.
			offsets[string(raw)] = uint64(buf.Len())
		}
		meta[path] = packEntryMeta{sri: sri, size: uint64(size), mode: mode}
	}

	indexBytes := marshalPackMeta(meta)
	binary.BigEndian.PutUint64(prefix[:], uint64(len(indexBytes)))
	if _, err := dest.Write(prefix[:]); err != nil {
		return integrity.Integrity{}, fmt.Errorf("cachew: write pack metadata index: %w", err)
	}
	enc := snappy.NewBufferedWriter(dest)
	if _, err := enc.Write(indexBytes); err != nil {
		return integrity.Integrity{}, fmt.Errorf("cachew: compress pack metadata index: %w", err)
	}
	if err := enc.Close(); err != nil {
		return integrity.Integrity{}, fmt.Errorf("cachew: finish pack metadata index: %w", err)
	}

	packSRI := dest.Sum()

	table := make([]digestOffset, 0, len(offsets))
	for digest, offset := range offsets {
		table = append(table, digestOffset{digest: []byte(digest), offset: offset})
	}
	sort.Slice(table, func(i, j int) bool {
		return bytes.Compare(table[i].digest, table[j].digest) < 0
	})

	idx := encodePackIndex(buildFanout(table), table)

	hexSRI, err := packSRI.Hex()
	if err != nil {
		return integrity.Integrity{}, err
	}
	dir := filepath.Join(cache, packedDir)
	if err := os.MkdirAll(dir, packDirPerm); err != nil {
		return integrity.Integrity{}, fmt.Errorf("cachew: create packed dir in cache at %q: %w", cache, err)
	}
	if err := persistBuffer(buf.Bytes(), filepath.Join(dir, hexSRI+".pack")); err != nil {
		return integrity.Integrity{}, fmt.Errorf("cachew: persist packfile %s: %w", hexSRI, err)
	}
	if err := persistBuffer(idx, filepath.Join(dir, hexSRI+".idx")); err != nil {
		return integrity.Integrity{}, fmt.Errorf("cachew: persist pack index %s: %w", hexSRI, err)
	}
	return packSRI, nil
}

// buildFanout computes the 256-entry prefix-sum table: fanout[b] counts the
// table entries whose leading digest byte is <= b, so fanout[255] is the
// total. The table must already be sorted by digest.
func buildFanout(table []digestOffset) [256]uint64 {
	var fanout [256]uint64
	i := 0
	for b := 0; b < 256; b++ {
		for i < len(table) && int(table[i].digest[0]) == b {
			i++
		}
		fanout[b] = uint64(i)
	}
	return fanout
}

// encodePackIndex serializes the fanout and the sorted digest/offset rows.
// Every integer is written big-endian byte-by-byte; nothing depends on host
// layout.
func encodePackIndex(fanout [256]uint64, table []digestOffset) []byte {
	out := make([]byte, 0, fanoutLen+len(table)*(packDigestLen+packOffsetLen))
	var tmp [8]byte
	for _, count := range fanout {
		binary.BigEndian.PutUint64(tmp[:], count)
		out = append(out, tmp[:]...)
	}
	for _, row := range table {
		out = append(out, row.digest...)
		binary.BigEndian.PutUint64(tmp[:], row.offset)
		out = append(out, tmp[:]...)
	}
	return out
}

// marshalPackMeta serializes the path → (integrity, size, mode) mapping.
// Entries are built in ascending path order so identical inputs produce
// identical bytes.
func marshalPackMeta(meta map[string]packEntryMeta) []byte {
	paths := make([]string, 0, len(meta))
	for path := range meta {
		paths = append(paths, path)
	}
	sort.Strings(paths)

	builder := flatbuffers.NewBuilder(1024)

	// Build entries in reverse order (FlatBuffers requirement)
	entryOffsets := make([]flatbuffers.UOffsetT, len(paths))
	for i := len(paths) - 1; i >= 0; i-- {
		m := meta[paths[i]]
		pathOffset := builder.CreateString(paths[i])
		sriOffset := builder.CreateString(m.sri.String())

		fb.PackEntryStart(builder)
		fb.PackEntryAddPath(builder, pathOffset)
		fb.PackEntryAddIntegrity(builder, sriOffset)
		fb.PackEntryAddSize(builder, m.size)
		fb.PackEntryAddMode(builder, m.mode)
		entryOffsets[i] = fb.PackEntryEnd(builder)
	}

	fb.PackIndexStartEntriesVector(builder, len(paths))
	for i := len(entryOffsets) - 1; i >= 0; i-- {
		builder.PrependUOffsetT(entryOffsets[i])
	}
	entriesOffset := builder.EndVector(len(paths))

	fb.PackIndexStart(builder)
	fb.PackIndexAddVersion(builder, packVersion)
	fb.PackIndexAddEntries(builder, entriesOffset)
	builder.Finish(fb.PackIndexEnd(builder))
	return builder.FinishedBytes()
}
