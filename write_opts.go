package cachew

import (
	"context"
	"encoding/json"

	"github.com/swipswaps/cachew/integrity"
	"github.com/swipswaps/cachew/internal/content"
)

// WriteOpts configures a cache write. The zero value is usable; chain the
// With* methods to set fields and finish with one of the open methods.
//
//	w, err := cachew.WriteOpts{}.WithSize(int64(len(data))).OpenSync(cache, key)
type WriteOpts struct {
	algorithm integrity.Algorithm
	sri       integrity.Integrity
	size      *int64
	timeMs    *int64
	metadata  json.RawMessage
}

// WithAlgorithm sets the hash algorithm for the content. Defaults to SHA256.
func (o WriteOpts) WithAlgorithm(algorithm integrity.Algorithm) WriteOpts {
	o.algorithm = algorithm
	return o
}

// WithIntegrity declares the expected integrity of the written data.
// Commit fails with an IntegrityMismatchError when the computed value
// differs.
func (o WriteOpts) WithIntegrity(sri integrity.Integrity) WriteOpts {
	o.sri = sri
	return o
}

// WithSize declares the expected total byte count. Commit fails with a
// SizeMismatchError when the written count differs.
func (o WriteOpts) WithSize(size int64) WriteOpts {
	o.size = &size
	return o
}

// WithTime sets the unix-millisecond timestamp recorded with the index
// entry. Defaults to the commit time.
func (o WriteOpts) WithTime(unixMilli int64) WriteOpts {
	o.timeMs = &unixMilli
	return o
}

// WithMetadata attaches an opaque JSON value to the index entry.
func (o WriteOpts) WithMetadata(metadata json.RawMessage) WriteOpts {
	o.metadata = metadata
	return o
}

// Open opens a keyed writer. The declared size is checked at commit but is
// not forwarded to the content writer, which sizes its staging on the fly.
func (o WriteOpts) Open(ctx context.Context, cache, key string) (*Writer, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return o.open(cache, key, true, false)
}

// OpenHash opens a keyless writer; commit returns the computed integrity
// without touching the key index.
func (o WriteOpts) OpenHash(ctx context.Context, cache string) (*Writer, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return o.open(cache, "", false, true)
}

// OpenSync opens a keyed blocking writer.
func (o WriteOpts) OpenSync(cache, key string) (*SyncWriter, error) {
	w, err := o.open(cache, key, true, true)
	if err != nil {
		return nil, err
	}
	return &SyncWriter{w}, nil
}

// OpenHashSync opens a keyless blocking writer.
func (o WriteOpts) OpenHashSync(cache string) (*SyncWriter, error) {
	w, err := o.open(cache, "", false, true)
	if err != nil {
		return nil, err
	}
	return &SyncWriter{w}, nil
}

func (o WriteOpts) open(cache, key string, keyed, passSize bool) (*Writer, error) {
	algorithm := o.algorithm
	if algorithm == "" {
		algorithm = integrity.DefaultAlgorithm
	}
	size := int64(-1)
	if passSize && o.size != nil {
		size = *o.size
	}
	cw, err := content.NewWriter(cache, algorithm, size)
	if err != nil {
		return nil, err
	}
	return &Writer{
		cache:  cache,
		key:    key,
		keyed:  keyed,
		writer: cw,
		opts:   o,
	}, nil
}
