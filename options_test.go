package bitkv

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValidateRejectsEmptyDirPath(t *testing.T) {
	o := DefaultOptions("")
	require.ErrorIs(t, o.validate(), ErrInvalidOption)
}

func TestValidateRejectsNonPositiveDataFileSize(t *testing.T) {
	o := DefaultOptions(t.TempDir())
	o.DataFileSize = 0
	require.ErrorIs(t, o.validate(), ErrInvalidOption)
}

func TestValidateRejectsMergeRatioOutOfRange(t *testing.T) {
	o := DefaultOptions(t.TempDir())
	o.DataFileMergeRatio = 1
	require.ErrorIs(t, o.validate(), ErrInvalidOption)
}

func TestValidateRejectsZeroMaxBatchNum(t *testing.T) {
	o := DefaultOptions(t.TempDir())
	o.MaxBatchNum = 0
	require.ErrorIs(t, o.validate(), ErrInvalidOption)
}

func TestValidateDefaultsNilLogger(t *testing.T) {
	o := DefaultOptions(t.TempDir())
	o.Logger = nil
	require.NoError(t, o.validate())
	require.NotNil(t, o.Logger)
}

func TestValidateRejectsUnknownIndexType(t *testing.T) {
	o := DefaultOptions(t.TempDir())
	o.IndexType = IndexerType(99)
	require.ErrorIs(t, o.validate(), ErrInvalidOption)
}
