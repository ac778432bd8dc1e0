package bitkv

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/bitkv-io/bitkv/internal/data"
)

// mergeDirFor returns the staging directory a merge rewrites into before the
// atomic directory swap: a sibling of dirPath, never a subdirectory of it,
// so a crash mid-merge can never leave half-written segments mixed into the
// live directory the original scan walks.
func mergeDirFor(dirPath string) string {
	clean := filepath.Clean(dirPath)
	return filepath.Join(filepath.Dir(clean), filepath.Base(clean)+"-merge")
}

// adoptMergeDirectory moves every staged file into dirPath, first deleting
// the original segments the merge superseded (file_id below the marker's
// unmerged bound), and returns the file_ids newly introduced.
func adoptMergeDirectory(dirPath, mergeDirPath string) ([]uint32, error) {
	unmergedFileID, err := data.ReadMergeFinished(mergeDirPath)
	if err != nil {
		return nil, err
	}

	mainEntries, err := os.ReadDir(dirPath)
	if err != nil {
		return nil, err
	}
	for _, e := range mainEntries {
		var id uint32
		if _, err := fmt.Sscanf(e.Name(), "%09d", &id); err != nil {
			continue
		}
		if id < unmergedFileID {
			os.Remove(filepath.Join(dirPath, e.Name()))
		}
	}

	entries, err := os.ReadDir(mergeDirPath)
	if err != nil {
		return nil, err
	}
	seen := make(map[uint32]bool)
	var newIDs []uint32
	for _, e := range entries {
		name := e.Name()
		if name == data.MergeFinishedFileName {
			continue
		}
		if err := os.Rename(filepath.Join(mergeDirPath, name), filepath.Join(dirPath, name)); err != nil {
			return nil, err
		}
		var id uint32
		if _, err := fmt.Sscanf(name, "%09d", &id); err == nil && !seen[id] {
			seen[id] = true
			newIDs = append(newIDs, id)
		}
	}
	sort.Slice(newIDs, func(i, j int) bool { return newIDs[i] < newIDs[j] })
	return newIDs, nil
}

// Merge compacts every immutable segment, rewriting only each key's live
// record into a fresh, densely packed set of segments plus hint files. It
// runs at most once at a time; a concurrent call fails with
// ErrMergeInProgress rather than blocking.
func (db *DB) Merge() error {
	db.mu.Lock()
	if db.closed {
		db.mu.Unlock()
		return errDatabaseClosed
	}
	if db.isMerging {
		db.mu.Unlock()
		return ErrMergeInProgress
	}
	db.isMerging = true

	if err := db.activeFile.Sync(); err != nil {
		db.isMerging = false
		db.mu.Unlock()
		return err
	}
	sealedFileID := db.activeFile.FileID
	if err := db.openNewActiveFile(); err != nil {
		db.isMerging = false
		db.mu.Unlock()
		return err
	}
	unmergedFileID := db.activeFile.FileID

	var mergeFileIDs []uint32
	sources := make(map[uint32]*data.DataFile)
	for id, df := range db.olderFiles {
		if id <= sealedFileID {
			mergeFileIDs = append(mergeFileIDs, id)
			sources[id] = df
		}
	}
	sort.Slice(mergeFileIDs, func(i, j int) bool { return mergeFileIDs[i] < mergeFileIDs[j] })
	db.mu.Unlock()

	defer func() {
		db.mu.Lock()
		db.isMerging = false
		db.mu.Unlock()
	}()

	if len(mergeFileIDs) == 0 {
		return nil
	}

	mergeDirPath := mergeDirFor(db.options.DirPath)
	if err := os.RemoveAll(mergeDirPath); err != nil {
		return err
	}
	if err := os.MkdirAll(mergeDirPath, 0755); err != nil {
		return err
	}

	var mergeFileID uint32
	mergeFile, err := data.OpenDataFile(mergeDirPath, mergeFileID)
	if err != nil {
		return err
	}
	hintWriter, err := data.NewHintWriter(mergeDirPath, mergeFileID)
	if err != nil {
		mergeFile.Close()
		return err
	}

	rotate := func() error {
		if err := mergeFile.Sync(); err != nil {
			return err
		}
		if err := mergeFile.Close(); err != nil {
			return err
		}
		if err := hintWriter.Close(); err != nil {
			return err
		}
		mergeFileID++
		mergeFile, err = data.OpenDataFile(mergeDirPath, mergeFileID)
		if err != nil {
			return err
		}
		hintWriter, err = data.NewHintWriter(mergeDirPath, mergeFileID)
		return err
	}

	fail := func(err error) error {
		mergeFile.Close()
		hintWriter.Close()
		os.RemoveAll(mergeDirPath)
		return err
	}

	for _, id := range mergeFileIDs {
		df := sources[id]
		var offset int64
		for {
			rec, size, rerr := df.ReadLogRecord(offset)
			if rerr != nil {
				if rerr == data.ErrUnexpectedEOF {
					break
				}
				return fail(translateDataErr(rerr))
			}

			live := rec.Type == data.RecordNormal
			if live {
				db.mu.RLock()
				pointer, ok := db.index.Get(rec.Key)
				db.mu.RUnlock()
				live = ok && pointer.FileID == id && pointer.Offset == uint64(offset)
			}

			if live {
				encoded := data.EncodeLogRecord(rec)
				if mergeFile.WriteOffset+int64(len(encoded)) > db.options.DataFileSize {
					if err := rotate(); err != nil {
						return fail(err)
					}
				}
				newOffset := mergeFile.WriteOffset
				if err := mergeFile.Write(encoded); err != nil {
					return fail(err)
				}
				newPointer := data.LogPointer{
					FileID: mergeFile.FileID,
					Offset: uint64(newOffset),
					Size:   uint32(len(encoded)),
				}
				entry := data.HintEntry{Key: rec.Key, Sequence: rec.Sequence, Pointer: newPointer}
				if err := hintWriter.Write(entry); err != nil {
					return fail(err)
				}
			}

			offset += size
		}
	}

	if err := mergeFile.Sync(); err != nil {
		return fail(err)
	}
	if err := mergeFile.Close(); err != nil {
		return fail(err)
	}
	if err := hintWriter.Close(); err != nil {
		return fail(err)
	}
	if err := data.WriteMergeFinished(mergeDirPath, unmergedFileID); err != nil {
		return fail(err)
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	newIDs, err := adoptMergeDirectory(db.options.DirPath, mergeDirPath)
	if err != nil {
		return err
	}
	os.RemoveAll(mergeDirPath)

	merged := make(map[uint32]bool, len(mergeFileIDs))
	for _, id := range mergeFileIDs {
		merged[id] = true
		if df, ok := db.olderFiles[id]; ok {
			df.Close()
			delete(db.olderFiles, id)
		}
	}

	for _, id := range newIDs {
		df, err := data.OpenDataFile(db.options.DirPath, id)
		if err != nil {
			return err
		}
		db.olderFiles[id] = df

		entries, err := data.ReadHintFile(db.options.DirPath, id)
		if err != nil {
			return err
		}
		for _, e := range entries {
			// A key written or deleted while the merge ran no longer points
			// into a merged segment; its newer state is kept.
			if cur, ok := db.index.Get(e.Key); ok && merged[cur.FileID] {
				db.index.Put(e.Key, e.Pointer)
			}
		}
	}

	db.reclaimableSize = 0
	db.options.Logger.Info("merge complete", "segments_merged", len(mergeFileIDs), "segments_written", len(newIDs))
	return nil
}

// shouldMerge reports whether the reclaimable-to-total-bytes ratio has
// crossed DataFileMergeRatio, the trigger Engine callers use to decide
// whether to invoke Merge proactively.
func (db *DB) shouldMerge() bool {
	db.mu.RLock()
	defer db.mu.RUnlock()

	stats := db.statsLocked()
	if stats.DiskSize == 0 {
		return false
	}
	return float64(stats.ReclaimableSize)/float64(stats.DiskSize) >= db.options.DataFileMergeRatio
}

// maybeTriggerMerge runs Merge in the background once the reclaimable ratio
// crosses DataFileMergeRatio. A merge already in flight, or one started by a
// concurrent caller that wins the race, is silently ignored — at most one
// proceeds at a time regardless of how many writers cross the threshold
// together.
func (db *DB) maybeTriggerMerge() {
	if !db.shouldMerge() {
		return
	}
	go func() {
		if err := db.Merge(); err != nil && err != ErrMergeInProgress {
			db.options.Logger.Warn("automatic merge failed", "err", err)
		}
	}()
}
