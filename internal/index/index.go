// Package index implements the pluggable keydir: the in-memory (or, for the
// BPlusTree variant, on-disk) mapping from key bytes to the LogPointer of
// that key's most recent live record.
package index

import (
	"bytes"

	"github.com/bitkv-io/bitkv/internal/data"
)

// Type selects a concrete Indexer implementation.
type Type byte

const (
	// BTree is the default: an ordered, mutex-guarded tree.
	BTree Type = iota
	// SkipList is a lock-striped skip list favoring read concurrency.
	SkipList
	// BPlusTree persists the index to a dedicated on-disk file.
	BPlusTree
)

// Indexer is the contract every keydir variant implements. All methods must
// be safe for concurrent use; the Engine still serializes writers with its
// own write mutex, but readers (Get, iteration snapshot construction) rely
// on the Indexer's own synchronization.
type Indexer interface {
	// Put inserts or replaces key's pointer, returning the prior pointer
	// and whether one existed.
	Put(key []byte, pointer data.LogPointer) (data.LogPointer, bool)
	// Get looks up key's current pointer.
	Get(key []byte) (data.LogPointer, bool)
	// Delete removes key, returning the prior pointer and whether one
	// existed.
	Delete(key []byte) (data.LogPointer, bool)
	// Size returns the number of live keys.
	Size() int
	// Keys returns every live key, in the variant's natural order.
	Keys() [][]byte
	// Iterator returns a variant-native ordered snapshot of the live key
	// set, optionally reversed and/or prefix-filtered. It carries no
	// pointers: callers resolve each key with a fresh Get at read time, so
	// a key deleted after the snapshot was taken is visible as absent
	// rather than read back in its stale location.
	Iterator(reverse bool, prefix []byte) [][]byte
	// Close releases any resources the variant owns (file handles, etc).
	Close() error
}

// Open constructs the Indexer named by typ, rooted at dirPath for variants
// that persist to disk.
func Open(typ Type, dirPath string) (Indexer, error) {
	switch typ {
	case BTree:
		return newBTreeIndex(), nil
	case SkipList:
		return newSkipListIndex(), nil
	case BPlusTree:
		return newBPlusTreeIndex(dirPath)
	default:
		return nil, ErrUnknownIndexType
	}
}

// hasPrefix reports whether key starts with prefix; a nil/empty prefix
// matches everything.
func hasPrefix(key, prefix []byte) bool {
	return len(prefix) == 0 || bytes.HasPrefix(key, prefix)
}
