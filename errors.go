package bitkv

import (
	"errors"

	"github.com/bitkv-io/bitkv/internal/data"
)

// Input errors.
var (
	ErrEmptyKey          = errors.New("bitkv: key is empty")
	ErrKeyNotFound       = errors.New("bitkv: key not found")
	ErrInvalidOption     = errors.New("bitkv: invalid option")
	ErrExceedMaxBatchNum = errors.New("bitkv: exceed max batch size")
	ErrEmptyBatch        = errors.New("bitkv: batch has no pending writes")
)

// Concurrency errors.
var (
	ErrDatabaseInUse   = errors.New("bitkv: database directory is already in use")
	ErrMergeInProgress = errors.New("bitkv: a merge is already in progress")
)

// Durability errors.
var (
	ErrIOFailure   = errors.New("bitkv: I/O operation failed")
	ErrSyncFailure = errors.New("bitkv: sync failed")
)

// Corruption errors.
var (
	ErrInvalidCRC        = errors.New("bitkv: crc mismatch, record is corrupt")
	ErrUnexpectedEOF     = errors.New("bitkv: unexpected end of file")
	ErrUnknownRecordType = errors.New("bitkv: unknown record type")
)

// Structural errors.
var (
	ErrDatabaseDirNotExist = errors.New("bitkv: database directory does not exist")
	ErrMergeMarkerMissing  = errors.New("bitkv: merge-finished marker is missing")
	errDatabaseClosed      = errors.New("bitkv: database is closed")
)

// translateDataErr maps internal/data's corruption sentinels onto this
// package's own, so callers can errors.Is against bitkv.Err* without
// reaching into an internal package. Any other error (a raw os error from a
// failed read, for instance) passes through unchanged.
func translateDataErr(err error) error {
	switch err {
	case data.ErrInvalidCRC:
		return ErrInvalidCRC
	case data.ErrUnexpectedEOF:
		return ErrUnexpectedEOF
	case data.ErrUnknownRecordType:
		return ErrUnknownRecordType
	default:
		return err
	}
}
