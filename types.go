package cachew

import (
	"github.com/swipswaps/cachew/integrity"
	"github.com/swipswaps/cachew/internal/index"
)

// --- Re-exports from integrity ---

// Integrity is an SRI value naming a byte sequence under a hash algorithm.
type Integrity = integrity.Integrity

// Algorithm identifies a digest algorithm.
type Algorithm = integrity.Algorithm

// Supported algorithms.
const (
	SHA256 = integrity.SHA256
	SHA384 = integrity.SHA384
	SHA512 = integrity.SHA512
)

// Entry is the index record stored for a key.
type Entry = index.Entry
