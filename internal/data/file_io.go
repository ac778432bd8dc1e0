package data

import "os"

// FileIO is the standard os.File-backed IOManager used for the active
// segment's writable tail.
type FileIO struct {
	fd *os.File
}

// NewFileIO opens (creating if necessary) the file at path for read/write,
// append-only writes.
func NewFileIO(path string) (*FileIO, error) {
	fd, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0644)
	if err != nil {
		return nil, err
	}
	return &FileIO{fd: fd}, nil
}

func (f *FileIO) Write(p []byte) (int, error) {
	return f.fd.Write(p)
}

func (f *FileIO) ReadAt(p []byte, offset int64) (int, error) {
	return f.fd.ReadAt(p, offset)
}

func (f *FileIO) Sync() error {
	return f.fd.Sync()
}

func (f *FileIO) Size() (int64, error) {
	info, err := f.fd.Stat()
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

func (f *FileIO) Close() error {
	return f.fd.Close()
}

// Fd exposes the underlying descriptor.
func (f *FileIO) Fd() uintptr {
	return f.fd.Fd()
}

// Name returns the path FileIO was opened with.
func (f *FileIO) Name() string {
	return f.fd.Name()
}
