// Package cachew is a content-addressable cache for the local filesystem.
//
// Blobs are stored under paths derived from their own digest, so identical
// content is written once and shared. An index maps user keys to blobs,
// carrying size, timestamp, and opaque metadata. Writes stream through a
// digest adapter and become visible only on commit; a writer abandoned
// through Discard leaves nothing behind.
//
// Many small entries can also be aggregated into a packfile: a single
// random-access file of framed-compressed payloads paired with a fanout
// index keyed on the first digest byte. See WriteEntries and PackReader.
package cachew
