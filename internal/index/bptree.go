package index

import (
	"encoding/binary"
	"path/filepath"
	"time"

	"github.com/bitkv-io/bitkv/internal/data"
	"go.etcd.io/bbolt"
)

// bptreeIndexFileName is the dedicated on-disk file this variant persists
// the keydir to, per spec.md §4.D ("persists the index to a dedicated file
// under the directory").
const bptreeIndexFileName = "index.bptree"

var bptreeBucket = []byte("keydir")

// bptreeIndex persists the keydir to a bbolt-backed B+tree file, for working
// sets too large to hold comfortably in RAM at open. put/delete mutate the
// on-disk structure directly; bbolt keeps keys in order internally, which is
// exactly the "keys stored in order" contract spec.md requires.
type bptreeIndex struct {
	db *bbolt.DB
}

func newBPlusTreeIndex(dirPath string) (*bptreeIndex, error) {
	db, err := bbolt.Open(filepath.Join(dirPath, bptreeIndexFileName), 0644, &bbolt.Options{
		Timeout: time.Second,
	})
	if err != nil {
		return nil, err
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bptreeBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &bptreeIndex{db: db}, nil
}

func encodePointer(p data.LogPointer) []byte {
	buf := make([]byte, 16)
	binary.LittleEndian.PutUint32(buf[0:4], p.FileID)
	binary.LittleEndian.PutUint64(buf[4:12], p.Offset)
	binary.LittleEndian.PutUint32(buf[12:16], p.Size)
	return buf
}

func decodePointer(buf []byte) data.LogPointer {
	return data.LogPointer{
		FileID: binary.LittleEndian.Uint32(buf[0:4]),
		Offset: binary.LittleEndian.Uint64(buf[4:12]),
		Size:   binary.LittleEndian.Uint32(buf[12:16]),
	}
}

func (idx *bptreeIndex) Put(key []byte, pointer data.LogPointer) (data.LogPointer, bool) {
	var prior data.LogPointer
	var existed bool
	idx.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bptreeBucket)
		if old := b.Get(key); old != nil {
			prior = decodePointer(old)
			existed = true
		}
		return b.Put(key, encodePointer(pointer))
	})
	return prior, existed
}

func (idx *bptreeIndex) Get(key []byte) (data.LogPointer, bool) {
	var pointer data.LogPointer
	var found bool
	idx.db.View(func(tx *bbolt.Tx) error {
		if v := tx.Bucket(bptreeBucket).Get(key); v != nil {
			pointer = decodePointer(v)
			found = true
		}
		return nil
	})
	return pointer, found
}

func (idx *bptreeIndex) Delete(key []byte) (data.LogPointer, bool) {
	var prior data.LogPointer
	var existed bool
	idx.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bptreeBucket)
		if old := b.Get(key); old != nil {
			prior = decodePointer(old)
			existed = true
		}
		return b.Delete(key)
	})
	return prior, existed
}

func (idx *bptreeIndex) Size() int {
	var n int
	idx.db.View(func(tx *bbolt.Tx) error {
		n = tx.Bucket(bptreeBucket).Stats().KeyN
		return nil
	})
	return n
}

func (idx *bptreeIndex) Keys() [][]byte {
	var keys [][]byte
	idx.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(bptreeBucket).Cursor()
		for k, _ := c.First(); k != nil; k, _ = c.Next() {
			keys = append(keys, append([]byte(nil), k...))
		}
		return nil
	})
	return keys
}

func (idx *bptreeIndex) Iterator(reverse bool, prefix []byte) [][]byte {
	var keys [][]byte
	idx.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(bptreeBucket).Cursor()
		visit := func(k, v []byte) {
			if v == nil || !hasPrefix(k, prefix) {
				return
			}
			keys = append(keys, append([]byte(nil), k...))
		}
		if reverse {
			for k, v := c.Last(); k != nil; k, v = c.Prev() {
				visit(k, v)
			}
		} else {
			for k, v := c.First(); k != nil; k, v = c.Next() {
				visit(k, v)
			}
		}
		return nil
	})
	return keys
}

func (idx *bptreeIndex) Close() error {
	return idx.db.Close()
}
