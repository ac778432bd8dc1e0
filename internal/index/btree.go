package index

import (
	"bytes"
	"sync"

	"github.com/bitkv-io/bitkv/internal/data"
	"github.com/google/btree"
)

// btreeItem is the google/btree element: a key plus its current pointer.
// Ordering is lexicographic on Key, matching spec.md's "ordered tree" variant.
type btreeItem struct {
	key     []byte
	pointer data.LogPointer
}

func (a *btreeItem) Less(b btree.Item) bool {
	return bytes.Compare(a.key, b.(*btreeItem).key) < 0
}

// btreeIndex is the default ordered keydir. Writers are already serialized
// by the Engine's write mutex, so a single RWMutex around the whole tree is
// sufficient — spec.md §4.D notes contention here is minimal.
type btreeIndex struct {
	mu   sync.RWMutex
	tree *btree.BTree
}

func newBTreeIndex() *btreeIndex {
	return &btreeIndex{tree: btree.New(32)}
}

func (idx *btreeIndex) Put(key []byte, pointer data.LogPointer) (data.LogPointer, bool) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	item := &btreeItem{key: key, pointer: pointer}
	prior := idx.tree.ReplaceOrInsert(item)
	if prior == nil {
		return data.LogPointer{}, false
	}
	return prior.(*btreeItem).pointer, true
}

func (idx *btreeIndex) Get(key []byte) (data.LogPointer, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	item := idx.tree.Get(&btreeItem{key: key})
	if item == nil {
		return data.LogPointer{}, false
	}
	return item.(*btreeItem).pointer, true
}

func (idx *btreeIndex) Delete(key []byte) (data.LogPointer, bool) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	item := idx.tree.Delete(&btreeItem{key: key})
	if item == nil {
		return data.LogPointer{}, false
	}
	return item.(*btreeItem).pointer, true
}

func (idx *btreeIndex) Size() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.tree.Len()
}

func (idx *btreeIndex) Keys() [][]byte {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	keys := make([][]byte, 0, idx.tree.Len())
	idx.tree.Ascend(func(item btree.Item) bool {
		keys = append(keys, item.(*btreeItem).key)
		return true
	})
	return keys
}

func (idx *btreeIndex) Iterator(reverse bool, prefix []byte) [][]byte {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	keys := make([][]byte, 0, idx.tree.Len())
	visit := func(item btree.Item) bool {
		bi := item.(*btreeItem)
		if hasPrefix(bi.key, prefix) {
			keys = append(keys, bi.key)
		}
		return true
	}
	if reverse {
		idx.tree.Descend(visit)
	} else {
		idx.tree.Ascend(visit)
	}
	return keys
}

func (idx *btreeIndex) Close() error {
	return nil
}
