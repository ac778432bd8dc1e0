package bitkv

import (
	"log/slog"

	"github.com/bitkv-io/bitkv/internal/index"
)

// IndexerType selects which keydir implementation an Engine uses.
type IndexerType = index.Type

const (
	// BTree is the default ordered-tree keydir.
	BTree IndexerType = index.BTree
	// SkipList is the lock-striped, read-concurrent keydir.
	SkipList IndexerType = index.SkipList
	// BPlusTree persists the keydir to a file under the directory.
	BPlusTree IndexerType = index.BPlusTree
)

// Options configures an Engine at Open. Invalid combinations fail at Open
// with ErrInvalidOption.
type Options struct {
	// DirPath is the directory the engine owns. Required.
	DirPath string
	// DataFileSize is the threshold, in bytes, at which the active segment
	// rotates.
	DataFileSize int64
	// SyncWrites, if true, fsyncs the active segment after every write.
	SyncWrites bool
	// BytesPerSync, if > 0, fsyncs whenever this many un-synced bytes have
	// accumulated since the last sync.
	BytesPerSync int64
	// IndexType selects the keydir implementation.
	IndexType IndexerType
	// MMapAtStartup uses mmap-backed reads while replaying segments at open.
	MMapAtStartup bool
	// DataFileMergeRatio is the minimum reclaimable/total-bytes ratio before
	// an automatic merge proceeds.
	DataFileMergeRatio float64
	// MaxBatchNum caps the number of entries a single WriteBatch may buffer.
	MaxBatchNum uint
	// Logger receives structured events for rotation, recovery, and merge.
	// Defaults to slog.Default().
	Logger *slog.Logger
}

// DefaultDataFileSize is the default active-segment rotation threshold.
const DefaultDataFileSize = 256 * 1024 * 1024

// DefaultDataFileMergeRatio is the default automatic-merge trigger.
const DefaultDataFileMergeRatio = 0.5

// DefaultMaxBatchNum is the default cap on entries per WriteBatch.
const DefaultMaxBatchNum = 10000

// DefaultOptions returns the configuration new Engines are opened with
// unless overridden.
func DefaultOptions(dirPath string) Options {
	return Options{
		DirPath:            dirPath,
		DataFileSize:       DefaultDataFileSize,
		SyncWrites:         false,
		BytesPerSync:       0,
		IndexType:          BTree,
		MMapAtStartup:      false,
		DataFileMergeRatio: DefaultDataFileMergeRatio,
		MaxBatchNum:        DefaultMaxBatchNum,
		Logger:             slog.Default(),
	}
}

func (o *Options) validate() error {
	if o.DirPath == "" {
		return ErrInvalidOption
	}
	if o.DataFileSize <= 0 {
		return ErrInvalidOption
	}
	if o.BytesPerSync < 0 {
		return ErrInvalidOption
	}
	if o.IndexType != BTree && o.IndexType != SkipList && o.IndexType != BPlusTree {
		return ErrInvalidOption
	}
	if o.DataFileMergeRatio < 0 || o.DataFileMergeRatio >= 1 {
		return ErrInvalidOption
	}
	if o.MaxBatchNum == 0 {
		return ErrInvalidOption
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return nil
}

// IteratorOptions configures a NewIterator call: key ordering and an
// optional key prefix filter.
type IteratorOptions struct {
	// Prefix restricts iteration to keys sharing this prefix. Nil/empty
	// means no filter.
	Prefix []byte
	// Reverse iterates from the largest key to the smallest.
	Reverse bool
}

// WriteBatchOptions configures a NewBatch call.
type WriteBatchOptions struct {
	// MaxBatchNum caps entries in this batch; zero means Options.MaxBatchNum.
	MaxBatchNum uint
	// SyncWrites fsyncs the active segment when the batch commits.
	SyncWrites bool
}

// DefaultWriteBatchOptions returns DefaultMaxBatchNum entries with a sync on
// commit. A zero-value WriteBatchOptions passed to NewBatch instead takes
// Options.MaxBatchNum and syncs on commit only if Options.SyncWrites is set.
func DefaultWriteBatchOptions() WriteBatchOptions {
	return WriteBatchOptions{
		MaxBatchNum: DefaultMaxBatchNum,
		SyncWrites:  true,
	}
}
