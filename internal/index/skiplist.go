package index

import (
	"bytes"
	"hash/maphash"
	"math/rand"
	"sort"
	"sync"

	"github.com/bitkv-io/bitkv/internal/data"
)

// stripeCount is the number of independent skip lists the keydir shards
// across. Reads hashing into different stripes never contend with one
// another, which is the point of this variant: heavy read concurrency must
// not serialize on a single keydir lock.
const stripeCount = 16

const skiplistMaxLevel = 16
const skiplistP = 0.25

// skipNode is one key's node within a single stripe's skip list.
type skipNode struct {
	key     []byte
	pointer data.LogPointer
	forward []*skipNode
}

// skipStripe is one shard: an independent skip list guarded by its own lock.
type skipStripe struct {
	mu   sync.RWMutex
	head *skipNode
	rng  *rand.Rand
	size int
}

func newSkipStripe(seed int64) *skipStripe {
	return &skipStripe{
		head: &skipNode{forward: make([]*skipNode, skiplistMaxLevel)},
		rng:  rand.New(rand.NewSource(seed)),
	}
}

func (s *skipStripe) randomLevel() int {
	level := 1
	for level < skiplistMaxLevel && s.rng.Float64() < skiplistP {
		level++
	}
	return level
}

// find locates, per level from top to bottom, the last node whose key is
// strictly less than key. update[i] is that node at level i.
func (s *skipStripe) find(key []byte) (update [skiplistMaxLevel]*skipNode, found *skipNode) {
	cur := s.head
	for level := skiplistMaxLevel - 1; level >= 0; level-- {
		for cur.forward[level] != nil && bytes.Compare(cur.forward[level].key, key) < 0 {
			cur = cur.forward[level]
		}
		update[level] = cur
	}
	next := cur.forward[0]
	if next != nil && bytes.Equal(next.key, key) {
		found = next
	}
	return update, found
}

func (s *skipStripe) put(key []byte, pointer data.LogPointer) (data.LogPointer, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	update, found := s.find(key)
	if found != nil {
		prior := found.pointer
		found.pointer = pointer
		return prior, true
	}

	level := s.randomLevel()
	node := &skipNode{key: key, pointer: pointer, forward: make([]*skipNode, level)}
	for i := 0; i < level; i++ {
		node.forward[i] = update[i].forward[i]
		update[i].forward[i] = node
	}
	s.size++
	return data.LogPointer{}, false
}

func (s *skipStripe) get(key []byte) (data.LogPointer, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, found := s.find(key)
	if found == nil {
		return data.LogPointer{}, false
	}
	return found.pointer, true
}

func (s *skipStripe) delete(key []byte) (data.LogPointer, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	update, found := s.find(key)
	if found == nil {
		return data.LogPointer{}, false
	}
	for i := range update {
		if update[i].forward[i] != found {
			continue
		}
		update[i].forward[i] = found.forward[i]
	}
	s.size--
	return found.pointer, true
}

func (s *skipStripe) snapshot() [][]byte {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([][]byte, 0, s.size)
	for n := s.head.forward[0]; n != nil; n = n.forward[0] {
		keys = append(keys, n.key)
	}
	return keys
}

// skiplistIndex shards the keyspace across stripeCount independent skip
// lists, keyed by a hash of the key bytes.
type skiplistIndex struct {
	stripes [stripeCount]*skipStripe
	seed    maphash.Seed
}

func newSkipListIndex() *skiplistIndex {
	idx := &skiplistIndex{seed: maphash.MakeSeed()}
	for i := range idx.stripes {
		idx.stripes[i] = newSkipStripe(int64(i) + 1)
	}
	return idx
}

func (idx *skiplistIndex) stripeFor(key []byte) *skipStripe {
	var h maphash.Hash
	h.SetSeed(idx.seed)
	h.Write(key)
	return idx.stripes[h.Sum64()%stripeCount]
}

func (idx *skiplistIndex) Put(key []byte, pointer data.LogPointer) (data.LogPointer, bool) {
	return idx.stripeFor(key).put(key, pointer)
}

func (idx *skiplistIndex) Get(key []byte) (data.LogPointer, bool) {
	return idx.stripeFor(key).get(key)
}

func (idx *skiplistIndex) Delete(key []byte) (data.LogPointer, bool) {
	return idx.stripeFor(key).delete(key)
}

func (idx *skiplistIndex) Size() int {
	total := 0
	for _, s := range idx.stripes {
		s.mu.RLock()
		total += s.size
		s.mu.RUnlock()
	}
	return total
}

func (idx *skiplistIndex) all(prefix []byte) [][]byte {
	var keys [][]byte
	for _, s := range idx.stripes {
		for _, k := range s.snapshot() {
			if hasPrefix(k, prefix) {
				keys = append(keys, k)
			}
		}
	}
	sort.Slice(keys, func(i, j int) bool {
		return bytes.Compare(keys[i], keys[j]) < 0
	})
	return keys
}

func (idx *skiplistIndex) Keys() [][]byte {
	return idx.all(nil)
}

func (idx *skiplistIndex) Iterator(reverse bool, prefix []byte) [][]byte {
	keys := idx.all(prefix)
	if reverse {
		for i, j := 0, len(keys)-1; i < j; i, j = i+1, j-1 {
			keys[i], keys[j] = keys[j], keys[i]
		}
	}
	return keys
}

func (idx *skiplistIndex) Close() error {
	return nil
}
