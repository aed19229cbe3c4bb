// Package index maps user keys to cache entries.
//
// Each key hashes to a bucket file under <cache>/index-v1, sharded on the
// first hex bytes of the key hash. A bucket holds one JSON document per
// line; the last line for a key wins, so concurrent inserts settle on
// last-write-wins and deletion is an appended tombstone with an empty
// integrity. Bucket updates are whole-file atomic replacements.
package index

import (
	"bufio"
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/natefinch/atomic"

	"github.com/swipswaps/cachew/integrity"
)

const (
	indexDir = "index-v1"
	dirPerm  = 0o755
)

// Entry is one key → content record.
type Entry struct {
	Key       string              `json:"key"`
	Integrity integrity.Integrity `json:"integrity"`
	Size      int64               `json:"size"`
	// Time is the insertion time in unix milliseconds.
	Time     int64           `json:"time"`
	Metadata json.RawMessage `json:"metadata,omitempty"`
}

// Insert records e under e.Key, returning e.Integrity. A zero Time is
// stamped with the current time.
func Insert(ctx context.Context, cache string, e Entry) (integrity.Integrity, error) {
	if err := ctx.Err(); err != nil {
		return integrity.Integrity{}, err
	}
	if e.Key == "" {
		return integrity.Integrity{}, errors.New("index: empty key")
	}
	if e.Time == 0 {
		e.Time = time.Now().UnixMilli()
	}

	line, err := json.Marshal(e)
	if err != nil {
		return integrity.Integrity{}, fmt.Errorf("index: encode entry for key %q: %w", e.Key, err)
	}

	bucket := bucketPath(cache, e.Key)
	if err := os.MkdirAll(filepath.Dir(bucket), dirPerm); err != nil {
		return integrity.Integrity{}, err
	}

	prev, err := os.ReadFile(bucket)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return integrity.Integrity{}, err
	}
	buf := make([]byte, 0, len(prev)+len(line)+1)
	buf = append(buf, prev...)
	buf = append(buf, line...)
	buf = append(buf, '\n')

	if err := atomic.WriteFile(bucket, bytes.NewReader(buf)); err != nil {
		return integrity.Integrity{}, fmt.Errorf("index: insert key %q in cache at %q: %w", e.Key, cache, err)
	}
	return e.Integrity, nil
}

// Find returns the latest live entry for key. ok is false when the key was
// never inserted or its latest record is a tombstone.
func Find(cache, key string) (Entry, bool, error) {
	f, err := os.Open(bucketPath(cache, key))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Entry{}, false, nil
		}
		return Entry{}, false, err
	}
	defer f.Close()

	var found Entry
	var ok bool
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		var e Entry
		if err := json.Unmarshal(line, &e); err != nil {
			// Torn or corrupt lines are skipped; later lines may still win.
			continue
		}
		if e.Key != key {
			continue
		}
		found, ok = e, !e.Integrity.IsZero()
	}
	if err := scanner.Err(); err != nil {
		return Entry{}, false, err
	}
	if !ok {
		return Entry{}, false, nil
	}
	return found, true, nil
}

// Delete appends a tombstone for key. Deleting an absent key still records
// the tombstone.
func Delete(ctx context.Context, cache, key string) error {
	_, err := Insert(ctx, cache, Entry{
		Key:  key,
		Time: time.Now().UnixMilli(),
	})
	return err
}

func bucketPath(cache, key string) string {
	sum := sha256.Sum256([]byte(key))
	h := hex.EncodeToString(sum[:])
	return filepath.Join(cache, indexDir, h[0:2], h[2:4], h[4:])
}
