// Package content implements the content-addressed blob area of a cache.
//
// Blobs are staged under <cache>/tmp while their digest is computed, then
// promoted to a path derived from the final integrity value. Identical
// content maps to the same path, so repeated writes are idempotent.
package content

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/swipswaps/cachew/integrity"
)

const (
	contentDir = "content-v1"
	stagingDir = "tmp"
	dirPerm    = 0o755
)

// Path returns the content-addressed path for sri under the cache root.
func Path(cache string, sri integrity.Integrity) (string, error) {
	hexDigest, err := sri.Hex()
	if err != nil {
		return "", err
	}
	if len(hexDigest) <= 4 {
		return "", fmt.Errorf("content: digest too short: %q", hexDigest)
	}
	return filepath.Join(
		cache, contentDir, string(sri.Algorithm()),
		hexDigest[0:2], hexDigest[2:4], hexDigest[4:],
	), nil
}

// Read returns the full blob stored for sri.
func Read(cache string, sri integrity.Integrity) ([]byte, error) {
	p, err := Path(cache, sri)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(p)
}

// Exists reports whether a blob for sri is present in the cache.
func Exists(cache string, sri integrity.Integrity) bool {
	p, err := Path(cache, sri)
	if err != nil {
		return false
	}
	_, err = os.Stat(p)
	return err == nil
}

// Remove deletes the blob stored for sri. Removing an absent blob is not
// an error.
func Remove(cache string, sri integrity.Integrity) error {
	p, err := Path(cache, sri)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
