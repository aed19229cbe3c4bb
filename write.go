package cachew

import (
	"context"
	"fmt"

	"github.com/swipswaps/cachew/integrity"
	"github.com/swipswaps/cachew/internal/index"
)

// Writer is an open handle writing a single blob into the cache. Nothing is
// visible in the cache until Commit; a writer dropped via Discard leaves no
// artifact behind.
type Writer struct {
	cache   string
	key     string
	keyed   bool
	written int64
	writer  contentWriter
	opts    WriteOpts
}

// contentWriter is the collaborator surface Writer drives; it matches
// internal/content.Writer.
type contentWriter interface {
	Write(p []byte) (int, error)
	Close() (integrity.Integrity, error)
	Discard() error
}

// NewWriter opens a keyed writer with the default algorithm.
func NewWriter(ctx context.Context, cache, key string) (*Writer, error) {
	return WriteOpts{}.WithAlgorithm(integrity.DefaultAlgorithm).Open(ctx, cache, key)
}

// Write stages p. The byte counter advances by the count the content
// writer reports, not by len(p).
func (w *Writer) Write(p []byte) (int, error) {
	n, err := w.writer.Write(p)
	w.written += int64(n)
	return n, err
}

// Commit closes the content writer and finalizes the entry: the computed
// integrity is checked against a declared one, the byte count against a
// declared size, and, for keyed writers, the key index is updated. The
// returned Integrity identifies the committed content.
//
// Verification runs after the content writer has closed; on a mismatch the
// blob may remain in the content area under its actual digest, where it is
// harmless and reusable.
func (w *Writer) Commit(ctx context.Context) (integrity.Integrity, error) {
	sri, err := w.writer.Close()
	if err != nil {
		return integrity.Integrity{}, fmt.Errorf("cachew: close content writer for cache at %q: %w", w.cache, err)
	}
	if !w.opts.sri.IsZero() {
		if !w.opts.sri.Match(sri) {
			return integrity.Integrity{}, &IntegrityMismatchError{Expected: w.opts.sri, Actual: sri}
		}
	} else {
		w.opts.sri = sri
	}
	if w.opts.size != nil && *w.opts.size != w.written {
		return integrity.Integrity{}, &SizeMismatchError{Expected: *w.opts.size, Actual: w.written}
	}
	if !w.keyed {
		return sri, nil
	}

	var timeMs int64
	if w.opts.timeMs != nil {
		timeMs = *w.opts.timeMs
	}
	return index.Insert(ctx, w.cache, index.Entry{
		Key:       w.key,
		Integrity: w.opts.sri,
		Size:      w.written,
		Time:      timeMs,
		Metadata:  w.opts.metadata,
	})
}

// Discard abandons the write, dropping any staged content.
func (w *Writer) Discard() error {
	return w.writer.Discard()
}

// SyncWriter is a blocking adapter over Writer for callers that do not
// thread a context.
type SyncWriter struct {
	*Writer
}

// NewSyncWriter opens a keyed blocking writer with the default algorithm.
func NewSyncWriter(cache, key string) (*SyncWriter, error) {
	return WriteOpts{}.WithAlgorithm(integrity.DefaultAlgorithm).OpenSync(cache, key)
}

// NewSyncWriterWithSize opens a keyed blocking writer that also verifies
// the total byte count at commit.
func NewSyncWriterWithSize(cache, key string, size int64) (*SyncWriter, error) {
	return WriteOpts{}.WithAlgorithm(integrity.DefaultAlgorithm).WithSize(size).OpenSync(cache, key)
}

// Commit finalizes the entry. See Writer.Commit.
func (w *SyncWriter) Commit() (integrity.Integrity, error) {
	return w.Writer.Commit(context.Background())
}

// Write stores data under key, verifying the byte count on commit.
func Write(ctx context.Context, cache, key string, data []byte) (integrity.Integrity, error) {
	w, err := WriteOpts{}.WithSize(int64(len(data))).Open(ctx, cache, key)
	if err != nil {
		return integrity.Integrity{}, err
	}
	if _, err := w.Write(data); err != nil {
		w.Discard()
		return integrity.Integrity{}, fmt.Errorf("cachew: write data for key %q in cache at %q: %w", key, cache, err)
	}
	return w.Commit(ctx)
}

// WriteSync stores data under key without a context.
func WriteSync(cache, key string, data []byte) (integrity.Integrity, error) {
	w, err := NewSyncWriterWithSize(cache, key, int64(len(data)))
	if err != nil {
		return integrity.Integrity{}, err
	}
	if _, err := w.Write(data); err != nil {
		w.Discard()
		return integrity.Integrity{}, fmt.Errorf("cachew: write data for key %q in cache at %q: %w", key, cache, err)
	}
	return w.Commit()
}

// WriteHash stores data without indexing it under a key; the returned
// Integrity is the only handle to it.
func WriteHash(ctx context.Context, cache string, data []byte) (integrity.Integrity, error) {
	w, err := WriteOpts{}.WithSize(int64(len(data))).OpenHash(ctx, cache)
	if err != nil {
		return integrity.Integrity{}, err
	}
	if _, err := w.Write(data); err != nil {
		w.Discard()
		return integrity.Integrity{}, fmt.Errorf("cachew: write data for cache at %q: %w", cache, err)
	}
	return w.Commit(ctx)
}

// WriteHashSync stores data without a key or context.
func WriteHashSync(cache string, data []byte) (integrity.Integrity, error) {
	w, err := WriteOpts{}.WithSize(int64(len(data))).OpenHashSync(cache)
	if err != nil {
		return integrity.Integrity{}, err
	}
	if _, err := w.Write(data); err != nil {
		w.Discard()
		return integrity.Integrity{}, fmt.Errorf("cachew: write data for cache at %q: %w", cache, err)
	}
	return w.Commit()
}
