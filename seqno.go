package bitkv

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/bitkv-io/bitkv/internal/data"
)

// Sequence numbers embed a batch_id in their high 32 bits and a per-record
// local counter in the low 32 bits. A batch_id of zero marks a standalone
// (non-batch) write, so replay can tell the two apart without a side table.
const batchIDShift = 32
const localSeqMask = 0xFFFFFFFF

func combineSeq(batchID, localSeq uint64) uint64 {
	return (batchID << batchIDShift) | (localSeq & localSeqMask)
}

func splitSeq(seq uint64) (batchID, localSeq uint64) {
	return seq >> batchIDShift, seq & localSeqMask
}

// nextSeq allocates the next per-record sequence number. Callers hold the
// write mutex, so a plain increment is safe.
func (db *DB) nextSeq() uint64 {
	db.seqNo++
	return db.seqNo
}

// nextBatchID allocates the next batch identifier; zero is reserved to mean
// "not a batch".
func (db *DB) nextBatchID() uint64 {
	db.batchID++
	return db.batchID
}

// persistSeqNo writes the last allocated sequence number and batch id to
// seq-no.dat, so they continue monotonically after a restart regardless of
// index variant (spec.md §9's unconditional-persistence resolution).
func (db *DB) persistSeqNo() error {
	path := filepath.Join(db.options.DirPath, data.SeqNoFileName)
	content := fmt.Sprintf("%d %d", db.seqNo, db.batchID)
	return os.WriteFile(path, []byte(content), 0644)
}

// loadSeqNo reads back the persisted counters. A missing file is not an
// error: it returns (0, 0, nil), letting replay's own derived maximum win.
func (db *DB) loadSeqNo() (seqNo, batchID uint64, err error) {
	path := filepath.Join(db.options.DirPath, data.SeqNoFileName)
	buf, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, 0, nil
		}
		return 0, 0, err
	}
	if _, err := fmt.Sscanf(string(buf), "%d %d", &seqNo, &batchID); err != nil {
		return 0, 0, nil
	}
	return seqNo, batchID, nil
}
