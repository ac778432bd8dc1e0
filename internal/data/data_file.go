package data

import (
	"fmt"
	"path/filepath"
)

const (
	// DataFileSuffix names a numbered segment: NNNNNNNNN.data.
	DataFileSuffix = ".data"
	// HintFileSuffix names a segment's companion hint file.
	HintFileSuffix = ".hint"
	// MergeFinishedFileName is the marker file, holding the 4-byte unmerged
	// file_id, written on successful merge completion.
	MergeFinishedFileName = "merge-finished"
	// SeqNoFileName holds the last allocated sequence number across restarts.
	SeqNoFileName = "seq-no.dat"
	// FileLockName is the directory-exclusivity lock file.
	FileLockName = "flock"
)

// fileNameDigits zero-pads a file_id to a fixed width, so lexicographic and
// numeric segment ordering agree.
const fileNameDigits = "%09d"

// LogPointer locates one physical record: which segment, at what offset,
// how many encoded bytes it occupies.
type LogPointer struct {
	FileID uint32
	Offset uint64
	Size   uint32
}

// DataFile owns one IOManager and the write offset of its writable tail.
// Exactly one DataFile per engine is active (writable); the rest are
// immutable and read through ReadLogRecord only.
type DataFile struct {
	FileID      uint32
	IO          IOManager
	WriteOffset int64
}

// DataFileName builds the on-disk path for a numbered segment.
func DataFileName(dirPath string, fileID uint32) string {
	return filepath.Join(dirPath, fmt.Sprintf(fileNameDigits+DataFileSuffix, fileID))
}

// HintFileName builds the on-disk path for a segment's hint file.
func HintFileName(dirPath string, fileID uint32) string {
	return filepath.Join(dirPath, fmt.Sprintf(fileNameDigits+HintFileSuffix, fileID))
}

// OpenDataFile opens (creating if absent) the active, writable segment
// fileID in dirPath.
func OpenDataFile(dirPath string, fileID uint32) (*DataFile, error) {
	io, err := NewFileIO(DataFileName(dirPath, fileID))
	if err != nil {
		return nil, err
	}
	size, err := io.Size()
	if err != nil {
		io.Close()
		return nil, err
	}
	return &DataFile{FileID: fileID, IO: io, WriteOffset: size}, nil
}

// OpenDataFileMMap opens segment fileID read-only through an mmap view, for
// immutable segments or accelerated active-file reads.
func OpenDataFileMMap(dirPath string, fileID uint32) (*DataFile, error) {
	io, err := NewMMapIO(DataFileName(dirPath, fileID))
	if err != nil {
		return nil, err
	}
	size, err := io.Size()
	if err != nil {
		io.Close()
		return nil, err
	}
	return &DataFile{FileID: fileID, IO: io, WriteOffset: size}, nil
}

// Write appends p to the segment's tail and advances WriteOffset.
func (df *DataFile) Write(p []byte) error {
	n, err := df.IO.Write(p)
	if err != nil {
		return err
	}
	df.WriteOffset += int64(n)
	return nil
}

// Sync flushes the segment durably.
func (df *DataFile) Sync() error {
	return df.IO.Sync()
}

// Close releases the segment's IOManager.
func (df *DataFile) Close() error {
	return df.IO.Close()
}

// SetWriteOffset moves the write offset back to offset, used during replay to
// discard a torn trailing write. A file-backed segment is truncated to offset
// as well, so the next append lands exactly there; if that truncation fails,
// the offset stays at the end of the file, where appends still land.
func (df *DataFile) SetWriteOffset(offset int64) {
	if f, ok := df.IO.(*FileIO); ok {
		if err := f.fd.Truncate(offset); err != nil {
			return
		}
	}
	df.WriteOffset = offset
}

// ReadLogRecord decodes exactly one record starting at offset, returning the
// record and the number of bytes it occupied on disk.
func (df *DataFile) ReadLogRecord(offset int64) (*LogRecord, int64, error) {
	fileSize, err := df.IO.Size()
	if err != nil {
		return nil, 0, err
	}

	headerBytes := int64(maxHeaderSize)
	if offset+headerBytes > fileSize {
		headerBytes = fileSize - offset
	}
	if headerBytes <= 0 {
		return nil, 0, ErrUnexpectedEOF
	}

	buf := make([]byte, headerBytes)
	if _, err := df.IO.ReadAt(buf, offset); err != nil {
		return nil, 0, err
	}

	h, err := decodeHeader(buf)
	if err != nil {
		return nil, 0, err
	}

	recordSize := int64(h.headerLen) + int64(h.keySize) + int64(h.valueSize) + crcSize
	if offset+recordSize > fileSize {
		return nil, 0, ErrUnexpectedEOF
	}

	full := make([]byte, recordSize)
	if _, err := df.IO.ReadAt(full, offset); err != nil {
		return nil, 0, err
	}

	record, err := decodeBody(h, full)
	if err != nil {
		return nil, 0, err
	}
	return record, recordSize, nil
}
