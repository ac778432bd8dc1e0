package data

import (
	"bufio"
	"encoding/binary"
	"io"
	"os"
	"path/filepath"
)

// HintEntry is one (key, sequence, LogPointer) row persisted to a segment's
// hint file, accelerating startup by avoiding a full segment scan.
type HintEntry struct {
	Key      []byte
	Sequence uint64
	Pointer  LogPointer
}

// HintWriter appends HintEntry rows to a segment's hint file.
type HintWriter struct {
	fd *os.File
}

// NewHintWriter creates (truncating) the hint file for fileID in dirPath.
func NewHintWriter(dirPath string, fileID uint32) (*HintWriter, error) {
	fd, err := os.Create(HintFileName(dirPath, fileID))
	if err != nil {
		return nil, err
	}
	return &HintWriter{fd: fd}, nil
}

// Write appends one hint entry: keysize(varint) | seq(varint) | file_id(4) | offset(8) | size(4) | key.
func (w *HintWriter) Write(e HintEntry) error {
	header := make([]byte, binary.MaxVarintLen64*2+4+8+4)
	idx := binary.PutUvarint(header, uint64(len(e.Key)))
	idx += binary.PutUvarint(header[idx:], e.Sequence)
	binary.LittleEndian.PutUint32(header[idx:], e.Pointer.FileID)
	idx += 4
	binary.LittleEndian.PutUint64(header[idx:], e.Pointer.Offset)
	idx += 8
	binary.LittleEndian.PutUint32(header[idx:], e.Pointer.Size)
	idx += 4

	if _, err := w.fd.Write(header[:idx]); err != nil {
		return err
	}
	_, err := w.fd.Write(e.Key)
	return err
}

// Close flushes and closes the hint file.
func (w *HintWriter) Close() error {
	if err := w.fd.Sync(); err != nil {
		w.fd.Close()
		return err
	}
	return w.fd.Close()
}

// ReadHintFile loads every entry from fileID's hint file, in file order.
// A missing hint file is not an error: it returns (nil, nil) so the caller
// falls back to scanning the segment directly.
func ReadHintFile(dirPath string, fileID uint32) ([]HintEntry, error) {
	fd, err := os.Open(HintFileName(dirPath, fileID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer fd.Close()

	var entries []HintEntry
	r := bufio.NewReader(fd)
	fixed := make([]byte, 4+8+4)
	for {
		keySize, err := binary.ReadUvarint(r)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, ErrUnexpectedEOF
		}
		seq, err := binary.ReadUvarint(r)
		if err != nil {
			return nil, ErrUnexpectedEOF
		}
		if _, err := io.ReadFull(r, fixed); err != nil {
			return nil, ErrUnexpectedEOF
		}
		fid := binary.LittleEndian.Uint32(fixed[0:4])
		offset := binary.LittleEndian.Uint64(fixed[4:12])
		size := binary.LittleEndian.Uint32(fixed[12:16])

		key := make([]byte, keySize)
		if _, err := io.ReadFull(r, key); err != nil {
			return nil, ErrUnexpectedEOF
		}

		entries = append(entries, HintEntry{
			Key:      key,
			Sequence: seq,
			Pointer:  LogPointer{FileID: fid, Offset: offset, Size: size},
		})
	}
	return entries, nil
}

// WriteMergeFinished writes the marker file recording, as a 4-byte
// little-endian value, the exclusive upper bound file_id up to which
// compaction completed.
func WriteMergeFinished(dirPath string, unmergedFileID uint32) error {
	fd, err := os.Create(filepath.Join(dirPath, MergeFinishedFileName))
	if err != nil {
		return err
	}
	defer fd.Close()
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, unmergedFileID)
	_, err = fd.Write(buf)
	return err
}

// ReadMergeFinished reads back the unmerged-file-id upper bound, or returns
// os.ErrNotExist if no merge ever completed.
func ReadMergeFinished(dirPath string) (uint32, error) {
	buf, err := os.ReadFile(filepath.Join(dirPath, MergeFinishedFileName))
	if err != nil {
		return 0, err
	}
	if len(buf) < 4 {
		return 0, ErrUnexpectedEOF
	}
	return binary.LittleEndian.Uint32(buf), nil
}
