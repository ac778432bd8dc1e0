// Package bitkv implements an embedded, single-node, Bitcask-style
// key-value storage engine: an append-only log of segment files plus an
// in-memory (or on-disk, for the BPlusTree variant) keydir index mapping
// each live key to the location of its most recent record.
package bitkv

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/bitkv-io/bitkv/internal/data"
	"github.com/bitkv-io/bitkv/internal/index"
	"github.com/gofrs/flock"
)

// DB is an open handle on a bitkv directory. A DB is safe for concurrent
// use by multiple goroutines.
type DB struct {
	mu sync.RWMutex

	options  Options
	fileLock *flock.Flock

	activeFile *data.DataFile
	olderFiles map[uint32]*data.DataFile

	index index.Indexer

	seqNo   uint64
	batchID uint64

	isMerging       bool
	reclaimableSize int64
	bytesSinceSync  int64

	closed bool
}

// Stats summarizes an open Engine's current state.
type Stats struct {
	KeyCount        int
	DataFileCount   int
	ReclaimableSize int64
	DiskSize        int64
}

// Open opens (creating if absent) the bitkv database at options.DirPath.
// Only one process may hold a directory open at a time; a second Open
// against the same directory fails with ErrDatabaseInUse.
func Open(options Options) (*DB, error) {
	if err := options.validate(); err != nil {
		return nil, err
	}

	if info, err := os.Stat(options.DirPath); err == nil {
		if !info.IsDir() {
			return nil, ErrDatabaseDirNotExist
		}
	} else if os.IsNotExist(err) {
		if err := os.MkdirAll(options.DirPath, 0755); err != nil {
			return nil, err
		}
	} else {
		return nil, err
	}

	fileLock := flock.New(filepath.Join(options.DirPath, data.FileLockName))
	locked, err := fileLock.TryLock()
	if err != nil {
		return nil, err
	}
	if !locked {
		return nil, ErrDatabaseInUse
	}

	idx, err := index.Open(options.IndexType, options.DirPath)
	if err != nil {
		fileLock.Unlock()
		return nil, err
	}

	db := &DB{
		options:    options,
		fileLock:   fileLock,
		olderFiles: make(map[uint32]*data.DataFile),
		index:      idx,
	}

	if err := db.loadMergeFiles(); err != nil {
		db.fileLock.Unlock()
		return nil, err
	}

	fileIDs, err := db.loadDataFiles()
	if err != nil {
		db.fileLock.Unlock()
		return nil, err
	}

	hinted := make(map[uint32]bool)
	if options.IndexType != BPlusTree {
		hinted, err = db.loadIndexFromHintFiles(fileIDs)
		if err != nil {
			db.fileLock.Unlock()
			return nil, err
		}
	}

	maxSeq, err := db.loadIndexFromDataFiles(fileIDs, hinted)
	if err != nil {
		db.fileLock.Unlock()
		return nil, err
	}

	persistedSeq, persistedBatch, err := db.loadSeqNo()
	if err != nil {
		db.fileLock.Unlock()
		return nil, err
	}
	if persistedSeq > maxSeq {
		maxSeq = persistedSeq
	}
	db.seqNo = maxSeq
	db.batchID = persistedBatch

	if db.activeFile == nil {
		if err := db.openNewActiveFile(); err != nil {
			db.fileLock.Unlock()
			return nil, err
		}
	}

	options.Logger.Info("bitkv opened", "dir", options.DirPath, "keys", db.index.Size(), "index", options.IndexType)
	return db, nil
}

// loadMergeFiles adopts a completed merge found under the `-merge` staging
// directory at open, in case the prior process crashed after writing the
// merge-finished marker but before the atomic directory swap completed.
func (db *DB) loadMergeFiles() error {
	mergeDirPath := mergeDirFor(db.options.DirPath)
	if _, err := os.Stat(mergeDirPath); os.IsNotExist(err) {
		return nil
	}
	defer os.RemoveAll(mergeDirPath)

	if _, err := data.ReadMergeFinished(mergeDirPath); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		if err == data.ErrUnexpectedEOF {
			return ErrMergeMarkerMissing
		}
		return err
	}

	_, err := adoptMergeDirectory(db.options.DirPath, mergeDirPath)
	return err
}

// loadDataFiles opens every segment under the directory and returns their
// file_ids in ascending order. The highest becomes the active segment.
func (db *DB) loadDataFiles() ([]uint32, error) {
	entries, err := os.ReadDir(db.options.DirPath)
	if err != nil {
		return nil, err
	}

	var fileIDs []uint32
	for _, e := range entries {
		name := e.Name()
		if !strings.HasSuffix(name, data.DataFileSuffix) {
			continue
		}
		var id uint32
		if _, err := fmt.Sscanf(name, "%09d"+data.DataFileSuffix, &id); err != nil {
			continue
		}
		fileIDs = append(fileIDs, id)
	}
	sort.Slice(fileIDs, func(i, j int) bool { return fileIDs[i] < fileIDs[j] })

	for i, id := range fileIDs {
		isActive := i == len(fileIDs)-1
		var df *data.DataFile
		if isActive || !db.options.MMapAtStartup {
			df, err = data.OpenDataFile(db.options.DirPath, id)
		} else {
			df, err = data.OpenDataFileMMap(db.options.DirPath, id)
		}
		if err != nil {
			return nil, err
		}
		if isActive {
			db.activeFile = df
		} else {
			db.olderFiles[id] = df
		}
	}
	return fileIDs, nil
}

// loadIndexFromHintFiles replays every segment's hint file, if one exists,
// into the keydir. A hint file is only ever produced by a completed merge
// and describes exactly that segment's live records, so its presence means
// the segment needs no further scanning at all.
func (db *DB) loadIndexFromHintFiles(fileIDs []uint32) (map[uint32]bool, error) {
	hinted := make(map[uint32]bool)
	for _, id := range fileIDs {
		entries, err := data.ReadHintFile(db.options.DirPath, id)
		if err != nil {
			return nil, err
		}
		if entries == nil {
			continue
		}
		hinted[id] = true
		for _, e := range entries {
			db.index.Put(e.Key, e.Pointer)
		}
	}
	return hinted, nil
}

// loadIndexFromDataFiles replays segment tails not already covered by a hint
// file, reconstructing the keydir and the highest sequence number observed.
// For the BPlusTree variant, bbolt commits each mutation synchronously with
// its own Put/Delete call, so its on-disk state is always consistent with
// every durably-acknowledged write; only the active segment's tail needs
// replay there, to discard a possibly-uncommitted trailing write.
func (db *DB) loadIndexFromDataFiles(fileIDs []uint32, hinted map[uint32]bool) (uint64, error) {
	var maxSeq uint64
	if len(fileIDs) == 0 {
		return 0, nil
	}

	activeID := fileIDs[len(fileIDs)-1]
	type pendingBatch struct {
		entries []data.LogRecord
		pointer []data.LogPointer
	}
	pending := make(map[uint64]*pendingBatch)

	applyRecord := func(rec *data.LogRecord, pointer data.LogPointer) {
		if rec.Sequence > maxSeq {
			maxSeq = rec.Sequence
		}
		if rec.IsTombstone() {
			db.index.Delete(rec.Key)
			return
		}
		db.index.Put(rec.Key, pointer)
	}

	scanSegment := func(id uint32) error {
		df := db.olderFiles[id]
		if df == nil {
			df = db.activeFile
		}
		var offset int64
		for {
			rec, size, err := df.ReadLogRecord(offset)
			if err != nil {
				if err == data.ErrUnexpectedEOF {
					if id == activeID {
						df.SetWriteOffset(offset)
					}
					break
				}
				return translateDataErr(err)
			}

			pointer := data.LogPointer{FileID: id, Offset: uint64(offset), Size: uint32(size)}
			batchID, _ := splitSeq(rec.Sequence)

			switch {
			case rec.Type == data.RecordBatchCommit:
				if b, ok := pending[batchID]; ok {
					for i, e := range b.entries {
						er := e
						applyRecord(&er, b.pointer[i])
					}
					delete(pending, batchID)
				}
				if rec.Sequence > maxSeq {
					maxSeq = rec.Sequence
				}
			case batchID == 0:
				applyRecord(rec, pointer)
			default:
				b, ok := pending[batchID]
				if !ok {
					b = &pendingBatch{}
					pending[batchID] = b
				}
				b.entries = append(b.entries, *rec)
				b.pointer = append(b.pointer, pointer)
			}

			offset += size
		}
		return nil
	}

	if db.options.IndexType == BPlusTree {
		return db.scanActiveTailOnly(activeID)
	}

	for _, id := range fileIDs {
		if id != activeID && hinted[id] {
			continue
		}
		if err := scanSegment(id); err != nil {
			return 0, err
		}
	}
	return maxSeq, nil
}

// scanActiveTailOnly replays only the active segment, for the BPlusTree
// variant whose historical segments never need a keydir rebuild.
func (db *DB) scanActiveTailOnly(activeID uint32) (uint64, error) {
	var maxSeq uint64
	df := db.activeFile
	var offset int64
	for {
		rec, size, err := df.ReadLogRecord(offset)
		if err != nil {
			if err == data.ErrUnexpectedEOF {
				df.SetWriteOffset(offset)
				break
			}
			return 0, translateDataErr(err)
		}
		if rec.Sequence > maxSeq {
			maxSeq = rec.Sequence
		}
		pointer := data.LogPointer{FileID: activeID, Offset: uint64(offset), Size: uint32(size)}
		if rec.Type != data.RecordBatchCommit {
			batchID, _ := splitSeq(rec.Sequence)
			if batchID == 0 {
				if rec.IsTombstone() {
					db.index.Delete(rec.Key)
				} else {
					db.index.Put(rec.Key, pointer)
				}
			}
		}
		offset += size
	}
	return maxSeq, nil
}

// openNewActiveFile rotates the active segment: the current active file (if
// any) becomes immutable and joins olderFiles, and a freshly created,
// empty segment becomes active.
func (db *DB) openNewActiveFile() error {
	var nextID uint32
	if db.activeFile != nil {
		nextID = db.activeFile.FileID + 1
		db.olderFiles[db.activeFile.FileID] = db.activeFile
	}
	df, err := data.OpenDataFile(db.options.DirPath, nextID)
	if err != nil {
		return err
	}
	db.activeFile = df
	db.options.Logger.Debug("rotated active segment", "file_id", nextID)
	return nil
}

// appendLogRecord serializes and appends rec to the active segment, rotating
// to a fresh one first if rec would overflow DataFileSize. Callers must hold
// db.mu for writing.
func (db *DB) appendLogRecord(rec *data.LogRecord) (data.LogPointer, error) {
	encoded := data.EncodeLogRecord(rec)
	size := int64(len(encoded))

	if db.activeFile.WriteOffset+size > db.options.DataFileSize {
		if err := db.activeFile.Sync(); err != nil {
			return data.LogPointer{}, err
		}
		if err := db.openNewActiveFile(); err != nil {
			return data.LogPointer{}, err
		}
	}

	offset := db.activeFile.WriteOffset
	if err := db.activeFile.Write(encoded); err != nil {
		return data.LogPointer{}, err
	}

	db.bytesSinceSync += size
	needSync := db.options.SyncWrites ||
		(db.options.BytesPerSync > 0 && db.bytesSinceSync >= db.options.BytesPerSync)
	if needSync {
		if err := db.activeFile.Sync(); err != nil {
			return data.LogPointer{}, err
		}
		db.bytesSinceSync = 0
	}

	return data.LogPointer{FileID: db.activeFile.FileID, Offset: uint64(offset), Size: uint32(size)}, nil
}

// Put writes key's value, replacing any prior value for key.
func (db *DB) Put(key, value []byte) error {
	if err := db.put(key, value); err != nil {
		return err
	}
	db.maybeTriggerMerge()
	return nil
}

func (db *DB) put(key, value []byte) error {
	if len(key) == 0 {
		return ErrEmptyKey
	}

	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closed {
		return errDatabaseClosed
	}

	rec := &data.LogRecord{
		Type:     data.RecordNormal,
		Sequence: combineSeq(0, db.nextSeq()),
		Key:      key,
		Value:    value,
	}
	pointer, err := db.appendLogRecord(rec)
	if err != nil {
		return err
	}

	if prior, existed := db.index.Put(key, pointer); existed {
		db.reclaimableSize += int64(prior.Size)
	}
	return nil
}

// Get returns key's current value, or ErrKeyNotFound if key is absent or
// has been deleted.
func (db *DB) Get(key []byte) ([]byte, error) {
	if len(key) == 0 {
		return nil, ErrEmptyKey
	}

	db.mu.RLock()
	defer db.mu.RUnlock()
	if db.closed {
		return nil, errDatabaseClosed
	}

	pointer, ok := db.index.Get(key)
	if !ok {
		return nil, ErrKeyNotFound
	}
	return db.readValue(pointer)
}

// readValue reads and decodes the record at pointer. Callers must hold
// db.mu (for reading or writing).
func (db *DB) readValue(pointer data.LogPointer) ([]byte, error) {
	var df *data.DataFile
	if db.activeFile != nil && pointer.FileID == db.activeFile.FileID {
		df = db.activeFile
	} else {
		df = db.olderFiles[pointer.FileID]
	}
	if df == nil {
		return nil, ErrIOFailure
	}

	rec, _, err := df.ReadLogRecord(int64(pointer.Offset))
	if err != nil {
		return nil, translateDataErr(err)
	}
	if rec.IsTombstone() {
		return nil, ErrKeyNotFound
	}
	return rec.Value, nil
}

// Delete removes key. Deleting an absent key is not an error.
func (db *DB) Delete(key []byte) error {
	if err := db.delete(key); err != nil {
		return err
	}
	db.maybeTriggerMerge()
	return nil
}

func (db *DB) delete(key []byte) error {
	if len(key) == 0 {
		return ErrEmptyKey
	}

	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closed {
		return errDatabaseClosed
	}

	if _, ok := db.index.Get(key); !ok {
		return nil
	}

	rec := &data.LogRecord{
		Type:     data.RecordTombstone,
		Sequence: combineSeq(0, db.nextSeq()),
		Key:      key,
	}
	pointer, err := db.appendLogRecord(rec)
	if err != nil {
		return err
	}
	db.reclaimableSize += int64(pointer.Size)

	if prior, existed := db.index.Delete(key); existed {
		db.reclaimableSize += int64(prior.Size)
	}
	return nil
}

// Sync flushes the active segment durably.
func (db *DB) Sync() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closed {
		return errDatabaseClosed
	}
	if err := db.activeFile.Sync(); err != nil {
		return fmt.Errorf("%w: %w", ErrSyncFailure, err)
	}
	return nil
}

// ListKeys returns every live key, in the index variant's natural order.
func (db *DB) ListKeys() [][]byte {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return db.index.Keys()
}

// Fold calls fn for every live (key, value) pair in index order, stopping
// early if fn returns false.
func (db *DB) Fold(fn func(key, value []byte) bool) error {
	db.mu.RLock()
	defer db.mu.RUnlock()

	for _, key := range db.index.Iterator(false, nil) {
		pointer, ok := db.index.Get(key)
		if !ok {
			continue
		}
		value, err := db.readValue(pointer)
		if err != nil {
			return err
		}
		if !fn(key, value) {
			break
		}
	}
	return nil
}

// Stats reports the Engine's current key count and on-disk footprint.
func (db *DB) Stats() Stats {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return db.statsLocked()
}

// statsLocked is Stats' body, for callers that already hold db.mu.
func (db *DB) statsLocked() Stats {
	var diskSize int64
	if db.activeFile != nil {
		diskSize += db.activeFile.WriteOffset
	}
	for _, df := range db.olderFiles {
		diskSize += df.WriteOffset
	}

	return Stats{
		KeyCount:        db.index.Size(),
		DataFileCount:   len(db.olderFiles) + 1,
		ReclaimableSize: db.reclaimableSize,
		DiskSize:        diskSize,
	}
}

// Backup copies every segment, hint, and metadata file currently on disk
// into targetDir, which must not already exist. The copy is crash-consistent
// but not transactionally consistent with concurrent writers: callers that
// need a consistent point-in-time snapshot must quiesce writes themselves.
func (db *DB) Backup(targetDir string) error {
	db.mu.RLock()
	defer db.mu.RUnlock()
	if db.closed {
		return errDatabaseClosed
	}

	if err := db.activeFile.Sync(); err != nil {
		return err
	}

	if err := os.MkdirAll(targetDir, 0755); err != nil {
		return err
	}

	entries, err := os.ReadDir(db.options.DirPath)
	if err != nil {
		if os.IsNotExist(err) {
			return ErrDatabaseDirNotExist
		}
		return err
	}

	for _, e := range entries {
		name := e.Name()
		if name == data.FileLockName {
			continue
		}
		src, err := os.ReadFile(filepath.Join(db.options.DirPath, name))
		if err != nil {
			return err
		}
		if err := os.WriteFile(filepath.Join(targetDir, name), src, 0644); err != nil {
			return err
		}
	}
	return nil
}

// Close persists the sequence counters, releases all file handles and the
// directory lock. Close is idempotent.
func (db *DB) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closed {
		return nil
	}
	db.closed = true

	if err := db.persistSeqNo(); err != nil {
		return err
	}
	if err := db.index.Close(); err != nil {
		return err
	}
	if db.activeFile != nil {
		if err := db.activeFile.Close(); err != nil {
			return err
		}
	}
	for _, df := range db.olderFiles {
		if err := df.Close(); err != nil {
			return err
		}
	}
	return db.fileLock.Unlock()
}
