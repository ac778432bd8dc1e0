package bitkv

import (
	"sync"

	"github.com/bitkv-io/bitkv/internal/data"
)

// WriteBatch buffers a set of Put/Delete operations for atomic commit: either
// every buffered write becomes visible, or (on crash before Commit returns)
// none of them do. Writes to the same key within one batch collapse to the
// last one written, mirroring Put/Delete's own overwrite semantics.
type WriteBatch struct {
	mu       sync.Mutex
	db       *DB
	options  WriteBatchOptions
	pending  map[string]*data.LogRecord
	finished bool
}

// NewBatch opens a new WriteBatch against db.
func (db *DB) NewBatch(options WriteBatchOptions) *WriteBatch {
	if options.MaxBatchNum == 0 {
		options.MaxBatchNum = db.options.MaxBatchNum
	}
	return &WriteBatch{
		db:      db,
		options: options,
		pending: make(map[string]*data.LogRecord),
	}
}

// Put stages a key/value write; it is not durable or visible until Commit.
func (wb *WriteBatch) Put(key, value []byte) error {
	if len(key) == 0 {
		return ErrEmptyKey
	}

	wb.mu.Lock()
	defer wb.mu.Unlock()
	if uint(len(wb.pending)) >= wb.options.MaxBatchNum {
		if _, exists := wb.pending[string(key)]; !exists {
			return ErrExceedMaxBatchNum
		}
	}

	wb.pending[string(key)] = &data.LogRecord{Type: data.RecordNormal, Key: key, Value: value}
	return nil
}

// Delete stages a tombstone for key.
func (wb *WriteBatch) Delete(key []byte) error {
	if len(key) == 0 {
		return ErrEmptyKey
	}

	wb.mu.Lock()
	defer wb.mu.Unlock()
	if uint(len(wb.pending)) >= wb.options.MaxBatchNum {
		if _, exists := wb.pending[string(key)]; !exists {
			return ErrExceedMaxBatchNum
		}
	}

	wb.pending[string(key)] = &data.LogRecord{Type: data.RecordTombstone, Key: key}
	return nil
}

// Commit atomically applies every staged write, with one fsync of the group
// when SyncWrites is set in the batch's or the engine's options. A batch with
// no pending writes fails with ErrEmptyBatch. A WriteBatch must not be reused
// after Commit.
func (wb *WriteBatch) Commit() error {
	if err := wb.commit(); err != nil {
		return err
	}
	wb.db.maybeTriggerMerge()
	return nil
}

func (wb *WriteBatch) commit() error {
	wb.mu.Lock()
	defer wb.mu.Unlock()
	if wb.finished {
		return errDatabaseClosed
	}
	wb.finished = true

	if len(wb.pending) == 0 {
		return ErrEmptyBatch
	}

	db := wb.db
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closed {
		return errDatabaseClosed
	}

	batchID := db.nextBatchID()

	type staged struct {
		rec     *data.LogRecord
		pointer data.LogPointer
	}
	entries := make([]staged, 0, len(wb.pending))

	for _, rec := range wb.pending {
		rec.Sequence = combineSeq(batchID, db.nextSeq())
		pointer, err := db.appendLogRecord(rec)
		if err != nil {
			return err
		}
		entries = append(entries, staged{rec: rec, pointer: pointer})
	}

	marker := &data.LogRecord{
		Type:     data.RecordBatchCommit,
		Sequence: combineSeq(batchID, db.nextSeq()),
	}
	if _, err := db.appendLogRecord(marker); err != nil {
		return err
	}

	if wb.options.SyncWrites || db.options.SyncWrites {
		if err := db.activeFile.Sync(); err != nil {
			return err
		}
	}

	for _, e := range entries {
		if e.rec.IsTombstone() {
			if prior, existed := db.index.Delete(e.rec.Key); existed {
				db.reclaimableSize += int64(prior.Size)
			}
			db.reclaimableSize += int64(e.pointer.Size)
			continue
		}
		if prior, existed := db.index.Put(e.rec.Key, e.pointer); existed {
			db.reclaimableSize += int64(prior.Size)
		}
	}

	db.options.Logger.Debug("batch committed", "batch_id", batchID, "entries", len(entries))
	return nil
}
