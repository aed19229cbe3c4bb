package cachew

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/swipswaps/cachew/integrity"
	"github.com/swipswaps/cachew/internal/content"
	"github.com/swipswaps/cachew/internal/index"
)

// Read returns the data stored under key. Content is verified against the
// integrity recorded in the index before it is returned.
func Read(ctx context.Context, cache, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e, ok, err := index.Find(cache, key)
	if err != nil {
		return nil, fmt.Errorf("cachew: look up key %q in cache at %q: %w", key, cache, err)
	}
	if !ok {
		return nil, fmt.Errorf("cachew: key %q in cache at %q: %w", key, cache, ErrNotFound)
	}
	return ReadHash(ctx, cache, e.Integrity)
}

// ReadSync returns the data stored under key without a context.
func ReadSync(cache, key string) ([]byte, error) {
	return Read(context.Background(), cache, key)
}

// ReadHash returns the content blob identified by sri, verifying it
// against the digest before returning.
func ReadHash(ctx context.Context, cache string, sri integrity.Integrity) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := content.Read(cache, sri)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("cachew: content %s in cache at %q: %w", sri, cache, ErrNotFound)
		}
		return nil, fmt.Errorf("cachew: read content %s in cache at %q: %w", sri, cache, err)
	}
	actual, err := integrity.FromBytes(sri.Algorithm(), data)
	if err != nil {
		return nil, err
	}
	if !sri.Match(actual) {
		return nil, &IntegrityMismatchError{Expected: sri, Actual: actual}
	}
	return data, nil
}

// ReadHashSync returns the content blob identified by sri without a context.
func ReadHashSync(cache string, sri integrity.Integrity) ([]byte, error) {
	return ReadHash(context.Background(), cache, sri)
}

// Metadata returns the index entry recorded for key, without touching the
// content area. ok is false when the key is absent.
func Metadata(cache, key string) (Entry, bool, error) {
	return index.Find(cache, key)
}

// Exists reports whether a content blob for sri is present.
func Exists(cache string, sri integrity.Integrity) bool {
	return content.Exists(cache, sri)
}

// Remove unlinks key from the index. The content blob stays in the content
// area; other keys may still reference it.
func Remove(ctx context.Context, cache, key string) error {
	return index.Delete(ctx, cache, key)
}
