package index

import (
	"testing"

	"github.com/bitkv-io/bitkv/internal/data"
	"github.com/stretchr/testify/require"
)

func openEach(t *testing.T) map[Type]Indexer {
	t.Helper()
	indexers := make(map[Type]Indexer)
	for _, typ := range []Type{BTree, SkipList, BPlusTree} {
		idx, err := Open(typ, t.TempDir())
		require.NoError(t, err)
		indexers[typ] = idx
	}
	return indexers
}

func TestIndexerPutGetDelete(t *testing.T) {
	for typ, idx := range openEach(t) {
		t.Run(typeName(typ), func(t *testing.T) {
			defer idx.Close()

			p1 := data.LogPointer{FileID: 1, Offset: 0, Size: 10}
			_, existed := idx.Put([]byte("key"), p1)
			require.False(t, existed)

			got, ok := idx.Get([]byte("key"))
			require.True(t, ok)
			require.Equal(t, p1, got)

			p2 := data.LogPointer{FileID: 1, Offset: 10, Size: 5}
			prior, existed := idx.Put([]byte("key"), p2)
			require.True(t, existed)
			require.Equal(t, p1, prior)

			got, ok = idx.Get([]byte("key"))
			require.True(t, ok)
			require.Equal(t, p2, got)

			deleted, existed := idx.Delete([]byte("key"))
			require.True(t, existed)
			require.Equal(t, p2, deleted)

			_, ok = idx.Get([]byte("key"))
			require.False(t, ok)
		})
	}
}

func TestIndexerKeysOrderedAscending(t *testing.T) {
	for typ, idx := range openEach(t) {
		t.Run(typeName(typ), func(t *testing.T) {
			defer idx.Close()

			for _, k := range []string{"charlie", "alpha", "bravo"} {
				idx.Put([]byte(k), data.LogPointer{FileID: 1})
			}

			keys := idx.Keys()
			require.Len(t, keys, 3)
			require.Equal(t, []byte("alpha"), keys[0])
			require.Equal(t, []byte("bravo"), keys[1])
			require.Equal(t, []byte("charlie"), keys[2])
		})
	}
}

func TestIndexerIteratorReverseAndPrefix(t *testing.T) {
	for typ, idx := range openEach(t) {
		t.Run(typeName(typ), func(t *testing.T) {
			defer idx.Close()

			for _, k := range []string{"app-a", "app-b", "zoo"} {
				idx.Put([]byte(k), data.LogPointer{FileID: 1})
			}

			keys := idx.Iterator(false, []byte("app-"))
			require.Len(t, keys, 2)
			require.Equal(t, []byte("app-a"), keys[0])
			require.Equal(t, []byte("app-b"), keys[1])

			reversed := idx.Iterator(true, nil)
			require.Len(t, reversed, 3)
			require.Equal(t, []byte("zoo"), reversed[0])
		})
	}
}

func TestIndexerSize(t *testing.T) {
	for typ, idx := range openEach(t) {
		t.Run(typeName(typ), func(t *testing.T) {
			defer idx.Close()
			require.Equal(t, 0, idx.Size())
			idx.Put([]byte("a"), data.LogPointer{})
			idx.Put([]byte("b"), data.LogPointer{})
			require.Equal(t, 2, idx.Size())
			idx.Delete([]byte("a"))
			require.Equal(t, 1, idx.Size())
		})
	}
}

func TestOpenUnknownType(t *testing.T) {
	_, err := Open(Type(99), t.TempDir())
	require.ErrorIs(t, err, ErrUnknownIndexType)
}

func typeName(typ Type) string {
	switch typ {
	case BTree:
		return "BTree"
	case SkipList:
		return "SkipList"
	case BPlusTree:
		return "BPlusTree"
	default:
		return "Unknown"
	}
}
