package bitkv

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBatchCommitAppliesAllEntries(t *testing.T) {
	db := newTestDB(t, nil)

	batch := db.NewBatch(DefaultWriteBatchOptions())
	require.NoError(t, batch.Put([]byte("a"), []byte("1")))
	require.NoError(t, batch.Put([]byte("b"), []byte("2")))
	require.NoError(t, batch.Delete([]byte("c")))
	require.NoError(t, batch.Commit())

	got, err := db.Get([]byte("a"))
	require.NoError(t, err)
	require.Equal(t, []byte("1"), got)

	got, err = db.Get([]byte("b"))
	require.NoError(t, err)
	require.Equal(t, []byte("2"), got)
}

func TestBatchNotVisibleBeforeCommit(t *testing.T) {
	db := newTestDB(t, nil)

	batch := db.NewBatch(DefaultWriteBatchOptions())
	require.NoError(t, batch.Put([]byte("a"), []byte("1")))

	_, err := db.Get([]byte("a"))
	require.ErrorIs(t, err, ErrKeyNotFound)

	require.NoError(t, batch.Commit())
	got, err := db.Get([]byte("a"))
	require.NoError(t, err)
	require.Equal(t, []byte("1"), got)
}

func TestBatchEmptyCommitFails(t *testing.T) {
	db := newTestDB(t, nil)
	batch := db.NewBatch(DefaultWriteBatchOptions())
	require.ErrorIs(t, batch.Commit(), ErrEmptyBatch)
}

func TestBatchSameKeyTwiceCollapsesToLastWrite(t *testing.T) {
	db := newTestDB(t, nil)

	batch := db.NewBatch(DefaultWriteBatchOptions())
	require.NoError(t, batch.Put([]byte("a"), []byte("first")))
	require.NoError(t, batch.Put([]byte("a"), []byte("second")))
	require.NoError(t, batch.Commit())

	got, err := db.Get([]byte("a"))
	require.NoError(t, err)
	require.Equal(t, []byte("second"), got)
}

func TestBatchExceedsMaxBatchNum(t *testing.T) {
	db := newTestDB(t, nil)

	batch := db.NewBatch(WriteBatchOptions{MaxBatchNum: 2, SyncWrites: true})
	require.NoError(t, batch.Put([]byte("a"), []byte("1")))
	require.NoError(t, batch.Put([]byte("b"), []byte("2")))
	require.ErrorIs(t, batch.Put([]byte("c"), []byte("3")), ErrExceedMaxBatchNum)
}

func TestBatchSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	options := DefaultOptions(dir)

	db, err := Open(options)
	require.NoError(t, err)

	batch := db.NewBatch(DefaultWriteBatchOptions())
	require.NoError(t, batch.Put([]byte("a"), []byte("1")))
	require.NoError(t, batch.Put([]byte("b"), []byte("2")))
	require.NoError(t, batch.Commit())
	require.NoError(t, db.Close())

	reopened, err := Open(options)
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.Get([]byte("a"))
	require.NoError(t, err)
	require.Equal(t, []byte("1"), got)
	got, err = reopened.Get([]byte("b"))
	require.NoError(t, err)
	require.Equal(t, []byte("2"), got)
}
