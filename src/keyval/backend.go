// Package keyval defines the key/value contract that every persistence root
// is built on, together with in-memory and Badger implementations. Keys are
// hierarchical string tuples; per-key writes are atomic, which is the only
// concurrency primitive the layers above rely on.
package keyval

import (
	"strings"
	"time"
)

// KeySeparator joins the segments of a hierarchical key.
const KeySeparator = "/"

// JoinKey flattens a hierarchical string-tuple key into its path form.
func JoinKey(segments ...string) string {
	return strings.Join(segments, KeySeparator)
}

// Backend is the interface for persistence backends. Implementations must be
// safe for uncoordinated concurrent readers and writers at the key level.
type Backend interface {
	// Get returns the value stored under key, or a NotFound error.
	Get(key string) ([]byte, error)
	// Set writes value under key, overwriting any previous value.
	Set(key string, value []byte) error
	// SetIfAbsent writes value under key only if the key is not yet
	// committed. It reports whether this call performed the write.
	SetIfAbsent(key string, value []byte) (bool, error)
	// Contains reports whether key is committed.
	Contains(key string) (bool, error)
	// Delete removes key if it exists. Deleting an absent key is not an
	// error.
	Delete(key string) error
	// Keys returns all committed keys starting with prefix.
	Keys(prefix string) ([]string, error)
	// Timestamp returns the time at which key was last written. It is used
	// for backoff computations and is best-effort, not authoritative.
	Timestamp(key string) (time.Time, error)
	// Close closes the underlying database.
	Close() error
	// Path returns the filepath of the underlying database, or "" for
	// ephemeral backends.
	Path() string
}
