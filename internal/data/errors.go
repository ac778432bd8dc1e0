package data

import "errors"

var (
	// ErrUnexpectedEOF is returned when a record is truncated mid-header or
	// mid-payload — the tail-corruption case callers treat as non-fatal
	// during replay of the active segment.
	ErrUnexpectedEOF = errors.New("data: unexpected end of file")
	// ErrInvalidCRC is returned when a decoded record's checksum does not
	// match its bytes.
	ErrInvalidCRC = errors.New("data: crc mismatch")
	// ErrUnknownRecordType is returned when a record's type tag is not one
	// of Normal/Tombstone/BatchCommit.
	ErrUnknownRecordType = errors.New("data: unknown record type")
)
