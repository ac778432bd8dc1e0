package bitkv

import (
	"bytes"
	"sort"
)

// Iterator walks a snapshot of the key set taken at NewIterator time; keys
// written after the snapshot are invisible to it, matching the teacher's
// same-generation iteration contract. Values are not snapshotted: each call
// to Value performs a fresh keydir lookup and DataFile read, so it observes
// the key's current state. If the key has since been deleted, Value returns
// ErrKeyNotFound — callers should treat that as "skip this key", not as a
// corrupt iterator.
type Iterator struct {
	db      *DB
	options IteratorOptions
	keys    [][]byte
	pos     int
}

// NewIterator returns an Iterator positioned before the first matching key.
func (db *DB) NewIterator(options IteratorOptions) *Iterator {
	db.mu.RLock()
	keys := db.index.Iterator(options.Reverse, options.Prefix)
	db.mu.RUnlock()

	return &Iterator{db: db, options: options, keys: keys, pos: -1}
}

// Rewind returns the iterator to before its first matching key; call Next
// to advance onto it.
func (it *Iterator) Rewind() {
	it.pos = -1
}

// Seek positions the iterator just before the first key >= target (or, in
// reverse order, the first key <= target); call Next to advance onto it.
func (it *Iterator) Seek(target []byte) {
	found := sort.Search(len(it.keys), func(i int) bool {
		cmp := bytes.Compare(it.keys[i], target)
		if it.options.Reverse {
			return cmp <= 0
		}
		return cmp >= 0
	})
	it.pos = found - 1
}

// Next advances the iterator to the next key.
func (it *Iterator) Next() bool {
	it.pos++
	return it.Valid()
}

// Valid reports whether the iterator is positioned at a key.
func (it *Iterator) Valid() bool {
	return it.pos >= 0 && it.pos < len(it.keys)
}

// Key returns the current key. Callers must check Valid first.
func (it *Iterator) Key() []byte {
	return it.keys[it.pos]
}

// Value resolves the current key against the live keydir and reads its
// value. Callers must check Valid first. If the key has been deleted since
// the iterator's snapshot was taken, Value returns ErrKeyNotFound.
func (it *Iterator) Value() ([]byte, error) {
	it.db.mu.RLock()
	defer it.db.mu.RUnlock()

	pointer, ok := it.db.index.Get(it.keys[it.pos])
	if !ok {
		return nil, ErrKeyNotFound
	}
	return it.db.readValue(pointer)
}

// Close releases the iterator's snapshot.
func (it *Iterator) Close() {
	it.keys = nil
}
