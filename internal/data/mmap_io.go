package data

import (
	"errors"
	"os"

	"golang.org/x/sys/unix"
)

// ErrMMapUnsupported is returned by MMapIO.Write: mmap views back immutable
// segments and are never written through.
var ErrMMapUnsupported = errors.New("data: write is unsupported on a read-only mmap view")

// MMapIO is a read-only memory-mapped view over a segment file, used for the
// immutable segments opened at startup when Options.MMapAtStartup is set.
// The active segment is always opened through FileIO.
type MMapIO struct {
	fd   *os.File
	data []byte
}

// NewMMapIO opens path read-only and maps its current contents into memory.
// An empty file maps to a zero-length, always-out-of-range view.
func NewMMapIO(path string) (*MMapIO, error) {
	fd, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	info, err := fd.Stat()
	if err != nil {
		fd.Close()
		return nil, err
	}

	if info.Size() == 0 {
		return &MMapIO{fd: fd, data: nil}, nil
	}

	data, err := unix.Mmap(int(fd.Fd()), 0, int(info.Size()), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		fd.Close()
		return nil, err
	}
	return &MMapIO{fd: fd, data: data}, nil
}

func (m *MMapIO) Write(p []byte) (int, error) {
	return 0, ErrMMapUnsupported
}

func (m *MMapIO) ReadAt(p []byte, offset int64) (int, error) {
	if offset < 0 || offset >= int64(len(m.data)) {
		return 0, ErrUnexpectedEOF
	}
	n := copy(p, m.data[offset:])
	if n < len(p) {
		return n, ErrUnexpectedEOF
	}
	return n, nil
}

func (m *MMapIO) Sync() error {
	return nil
}

func (m *MMapIO) Size() (int64, error) {
	info, err := m.fd.Stat()
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

func (m *MMapIO) Close() error {
	if m.data != nil {
		if err := unix.Munmap(m.data); err != nil {
			return err
		}
		m.data = nil
	}
	return m.fd.Close()
}
