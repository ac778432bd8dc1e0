package bitkv

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMergeReclaimsSpaceAndPreservesData(t *testing.T) {
	db := newTestDB(t, func(o *Options) {
		o.DataFileSize = 256
		o.DataFileMergeRatio = 0.999 // explicit Merge() below; don't race the automatic trigger
	})

	for i := 0; i < 200; i++ {
		key := []byte(fmt.Sprintf("key-%03d", i))
		require.NoError(t, db.Put(key, []byte("v1")))
	}
	for i := 0; i < 200; i++ {
		key := []byte(fmt.Sprintf("key-%03d", i))
		require.NoError(t, db.Put(key, []byte("v2-updated")))
	}

	statsBefore := db.Stats()
	require.Greater(t, statsBefore.ReclaimableSize, int64(0))

	require.NoError(t, db.Merge())

	for i := 0; i < 200; i++ {
		key := []byte(fmt.Sprintf("key-%03d", i))
		got, err := db.Get(key)
		require.NoError(t, err)
		require.Equal(t, []byte("v2-updated"), got)
	}

	statsAfter := db.Stats()
	require.Less(t, statsAfter.DiskSize, statsBefore.DiskSize)
}

func TestMergeSkipsTombstonedKeys(t *testing.T) {
	db := newTestDB(t, func(o *Options) {
		o.DataFileSize = 256
		o.DataFileMergeRatio = 0.999
	})

	for i := 0; i < 50; i++ {
		key := []byte(fmt.Sprintf("key-%03d", i))
		require.NoError(t, db.Put(key, []byte("v")))
	}
	for i := 0; i < 25; i++ {
		key := []byte(fmt.Sprintf("key-%03d", i))
		require.NoError(t, db.Delete(key))
	}

	require.NoError(t, db.Merge())

	for i := 0; i < 50; i++ {
		key := []byte(fmt.Sprintf("key-%03d", i))
		_, err := db.Get(key)
		if i < 25 {
			require.ErrorIs(t, err, ErrKeyNotFound)
		} else {
			require.NoError(t, err)
		}
	}
}

func TestMergeSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	options := DefaultOptions(dir)
	options.DataFileSize = 256
	options.DataFileMergeRatio = 0.999

	db, err := Open(options)
	require.NoError(t, err)
	for i := 0; i < 100; i++ {
		key := []byte(fmt.Sprintf("key-%03d", i))
		require.NoError(t, db.Put(key, []byte("v1")))
	}
	for i := 0; i < 100; i++ {
		key := []byte(fmt.Sprintf("key-%03d", i))
		require.NoError(t, db.Put(key, []byte("v2")))
	}
	require.NoError(t, db.Merge())
	require.NoError(t, db.Close())

	reopened, err := Open(options)
	require.NoError(t, err)
	defer reopened.Close()

	for i := 0; i < 100; i++ {
		key := []byte(fmt.Sprintf("key-%03d", i))
		got, err := reopened.Get(key)
		require.NoError(t, err)
		require.Equal(t, []byte("v2"), got)
	}
}

func TestConcurrentMergeRejected(t *testing.T) {
	db := newTestDB(t, nil)
	db.isMerging = true
	require.ErrorIs(t, db.Merge(), ErrMergeInProgress)
	db.isMerging = false
}

func TestPutTriggersAutomaticMergeAboveRatio(t *testing.T) {
	db := newTestDB(t, func(o *Options) {
		o.DataFileSize = 256
		o.DataFileMergeRatio = 0.1
	})

	for i := 0; i < 100; i++ {
		key := []byte(fmt.Sprintf("key-%03d", i))
		require.NoError(t, db.Put(key, []byte("v1")))
	}
	for i := 0; i < 100; i++ {
		key := []byte(fmt.Sprintf("key-%03d", i))
		require.NoError(t, db.Put(key, []byte("v2-updated")))
	}

	require.Eventually(t, func() bool {
		return db.Stats().ReclaimableSize == 0
	}, 2*time.Second, 10*time.Millisecond, "automatic merge never reclaimed space")

	for i := 0; i < 100; i++ {
		key := []byte(fmt.Sprintf("key-%03d", i))
		got, err := db.Get(key)
		require.NoError(t, err)
		require.Equal(t, []byte("v2-updated"), got)
	}
}

func TestMergeCompactsTheJustSealedSegment(t *testing.T) {
	db := newTestDB(t, func(o *Options) {
		o.DataFileSize = 4096 // large enough that every write below lands in one segment
		o.DataFileMergeRatio = 0.999
	})

	for i := 0; i < 10; i++ {
		require.NoError(t, db.Put([]byte("key"), []byte(fmt.Sprintf("value-%02d", i))))
	}

	before := db.Stats()
	require.Equal(t, 1, before.DataFileCount, "every write above must land in the single active segment")
	require.Greater(t, before.ReclaimableSize, int64(0))

	require.NoError(t, db.Merge())

	// The only segment on disk is the one just sealed by Merge itself. If it
	// were excluded from compaction, nothing would be rewritten and DiskSize
	// would hold steady.
	after := db.Stats()
	require.Less(t, after.DiskSize, before.DiskSize)

	got, err := db.Get([]byte("key"))
	require.NoError(t, err)
	require.Equal(t, []byte("value-09"), got)
}

func TestMergeWithOnlyActiveSegmentPreservesData(t *testing.T) {
	db := newTestDB(t, nil)
	require.NoError(t, db.Put([]byte("a"), []byte("1")))
	require.NoError(t, db.Merge())

	got, err := db.Get([]byte("a"))
	require.NoError(t, err)
	require.Equal(t, []byte("1"), got)
}
