package content

import (
	"errors"
	"io"
	"os"
	"path/filepath"

	"github.com/edsrzf/mmap-go"
	"github.com/natefinch/atomic"

	"github.com/swipswaps/cachew/integrity"
)

// Writer stages a single blob and promotes it on Close.
//
// When a positive total size is declared up front the staging file is
// written through a writable memory map sized to the declaration; otherwise
// (unknown or zero size) bytes stream straight to the file. Either way every byte passes through the
// digest adapter, and Close returns the computed integrity after promoting
// the staging file to its content-addressed path.
type Writer struct {
	cache    string
	tmpPath  string
	hw       *integrity.Writer
	sink     io.Writer
	finalize func() error
	closed   bool
}

// NewWriter opens a staging writer in the cache. size < 0 means unknown.
func NewWriter(cache string, algorithm integrity.Algorithm, size int64) (*Writer, error) {
	staging := filepath.Join(cache, stagingDir)
	if err := os.MkdirAll(staging, dirPerm); err != nil {
		return nil, err
	}
	tmp, err := os.CreateTemp(staging, "staging-*")
	if err != nil {
		return nil, err
	}

	w := &Writer{cache: cache, tmpPath: tmp.Name()}
	if size > 0 {
		sink, err := newMmapSink(tmp, size)
		if err != nil {
			tmp.Close()
			os.Remove(w.tmpPath)
			return nil, err
		}
		w.sink = sink
		w.finalize = sink.finalize
	} else {
		w.sink = tmp
		w.finalize = tmp.Close
	}

	w.hw, err = integrity.NewWriter(w.sink, algorithm)
	if err != nil {
		w.finalize()
		os.Remove(w.tmpPath)
		return nil, err
	}
	return w, nil
}

// Write stages p, returning the count reported by the underlying sink.
func (w *Writer) Write(p []byte) (int, error) {
	if w.closed {
		return 0, os.ErrClosed
	}
	return w.hw.Write(p)
}

// Close finalizes the staging file and promotes it into the content area,
// returning the integrity of everything written. Promotion is atomic; if a
// blob with the same integrity already exists the staging copy is dropped.
func (w *Writer) Close() (integrity.Integrity, error) {
	if w.closed {
		return integrity.Integrity{}, os.ErrClosed
	}
	w.closed = true
	if err := w.finalize(); err != nil {
		os.Remove(w.tmpPath)
		return integrity.Integrity{}, err
	}

	sri := w.hw.Sum()
	dest, err := Path(w.cache, sri)
	if err != nil {
		os.Remove(w.tmpPath)
		return integrity.Integrity{}, err
	}
	if _, err := os.Stat(dest); err == nil {
		os.Remove(w.tmpPath)
		return sri, nil
	}
	if err := os.MkdirAll(filepath.Dir(dest), dirPerm); err != nil {
		os.Remove(w.tmpPath)
		return integrity.Integrity{}, err
	}
	if err := atomic.ReplaceFile(w.tmpPath, dest); err != nil {
		os.Remove(w.tmpPath)
		return integrity.Integrity{}, err
	}
	return sri, nil
}

// Discard drops the staged content without promoting it. Calling Discard
// after Close is a no-op.
func (w *Writer) Discard() error {
	if w.closed {
		return nil
	}
	w.closed = true
	err := w.finalize()
	if rmErr := os.Remove(w.tmpPath); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) && err == nil {
		err = rmErr
	}
	return err
}

// mmapSink writes through a writable memory map, growing the mapping by
// doubling when writes overrun the declared size. finalize unmaps and
// truncates the file to the bytes actually written.
type mmapSink struct {
	f   *os.File
	m   mmap.MMap
	off int64
}

func newMmapSink(f *os.File, size int64) (*mmapSink, error) {
	if err := f.Truncate(size); err != nil {
		f.Close()
		return nil, err
	}
	m, err := mmap.Map(f, mmap.RDWR, 0)
	if err != nil {
		f.Close()
		return nil, err
	}
	return &mmapSink{f: f, m: m}, nil
}

func (s *mmapSink) Write(p []byte) (int, error) {
	need := s.off + int64(len(p))
	if need > int64(len(s.m)) {
		if err := s.grow(need); err != nil {
			return 0, err
		}
	}
	copy(s.m[s.off:], p)
	s.off += int64(len(p))
	return len(p), nil
}

func (s *mmapSink) grow(need int64) error {
	if err := s.m.Unmap(); err != nil {
		return err
	}
	size := int64(len(s.m)) * 2
	if size < need {
		size = need
	}
	if err := s.f.Truncate(size); err != nil {
		return err
	}
	m, err := mmap.Map(s.f, mmap.RDWR, 0)
	if err != nil {
		return err
	}
	s.m = m
	return nil
}

func (s *mmapSink) finalize() error {
	if err := s.m.Unmap(); err != nil {
		s.f.Close()
		return err
	}
	if err := s.f.Truncate(s.off); err != nil {
		s.f.Close()
		return err
	}
	return s.f.Close()
}
