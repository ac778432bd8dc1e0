package bitkv

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIteratorWalksAllKeysInOrder(t *testing.T) {
	db := newTestDB(t, nil)
	for _, k := range []string{"c", "a", "b"} {
		require.NoError(t, db.Put([]byte(k), []byte(k+"-value")))
	}

	it := db.NewIterator(IteratorOptions{})
	defer it.Close()

	var keys []string
	for it.Next() {
		keys = append(keys, string(it.Key()))
		value, err := it.Value()
		require.NoError(t, err)
		require.Equal(t, it.Key(), []byte(string(it.Key())))
		require.Equal(t, string(it.Key())+"-value", string(value))
	}
	require.Equal(t, []string{"a", "b", "c"}, keys)
}

func TestIteratorReverse(t *testing.T) {
	db := newTestDB(t, nil)
	for _, k := range []string{"a", "b", "c"} {
		require.NoError(t, db.Put([]byte(k), []byte("v")))
	}

	it := db.NewIterator(IteratorOptions{Reverse: true})
	defer it.Close()

	var keys []string
	for it.Next() {
		keys = append(keys, string(it.Key()))
	}
	require.Equal(t, []string{"c", "b", "a"}, keys)
}

func TestIteratorPrefix(t *testing.T) {
	db := newTestDB(t, nil)
	for _, k := range []string{"app-a", "app-b", "zoo"} {
		require.NoError(t, db.Put([]byte(k), []byte("v")))
	}

	it := db.NewIterator(IteratorOptions{Prefix: []byte("app-")})
	defer it.Close()

	var keys []string
	for it.Next() {
		keys = append(keys, string(it.Key()))
	}
	require.Equal(t, []string{"app-a", "app-b"}, keys)
}

func TestIteratorSeek(t *testing.T) {
	db := newTestDB(t, nil)
	for _, k := range []string{"a", "b", "c", "d"} {
		require.NoError(t, db.Put([]byte(k), []byte("v")))
	}

	it := db.NewIterator(IteratorOptions{})
	defer it.Close()

	it.Seek([]byte("c"))
	require.True(t, it.Next())
	require.Equal(t, []byte("c"), it.Key())
	require.True(t, it.Next())
	require.Equal(t, []byte("d"), it.Key())
	require.False(t, it.Next())
}

func TestIteratorValueReflectsUpdateAfterSnapshot(t *testing.T) {
	db := newTestDB(t, nil)
	require.NoError(t, db.Put([]byte("a"), []byte("1")))

	it := db.NewIterator(IteratorOptions{})
	defer it.Close()

	require.NoError(t, db.Put([]byte("a"), []byte("2")))

	require.True(t, it.Next())
	require.Equal(t, []byte("a"), it.Key())
	value, err := it.Value()
	require.NoError(t, err)
	require.Equal(t, []byte("2"), value)
}

func TestIteratorValueSkipsKeyDeletedAfterSnapshot(t *testing.T) {
	db := newTestDB(t, nil)
	require.NoError(t, db.Put([]byte("a"), []byte("1")))
	require.NoError(t, db.Put([]byte("b"), []byte("2")))

	it := db.NewIterator(IteratorOptions{})
	defer it.Close()

	require.NoError(t, db.Delete([]byte("a")))

	require.True(t, it.Next())
	require.Equal(t, []byte("a"), it.Key())
	_, err := it.Value()
	require.ErrorIs(t, err, ErrKeyNotFound)

	require.True(t, it.Next())
	require.Equal(t, []byte("b"), it.Key())
	value, err := it.Value()
	require.NoError(t, err)
	require.Equal(t, []byte("2"), value)
}

func TestIteratorSnapshotIsolation(t *testing.T) {
	db := newTestDB(t, nil)
	require.NoError(t, db.Put([]byte("a"), []byte("1")))

	it := db.NewIterator(IteratorOptions{})
	defer it.Close()

	require.NoError(t, db.Put([]byte("b"), []byte("2")))

	var keys []string
	for it.Next() {
		keys = append(keys, string(it.Key()))
	}
	require.Equal(t, []string{"a"}, keys)
}
