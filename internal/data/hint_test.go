package data

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHintWriteAndReadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	w, err := NewHintWriter(dir, 1)
	require.NoError(t, err)

	entries := []HintEntry{
		{Key: []byte("alpha"), Sequence: 10, Pointer: LogPointer{FileID: 1, Offset: 0, Size: 20}},
		{Key: []byte("b"), Sequence: 4294967296, Pointer: LogPointer{FileID: 1, Offset: 20, Size: 9}},
		{Key: []byte("a-much-longer-key-to-exercise-varints"), Sequence: 300, Pointer: LogPointer{FileID: 2, Offset: 128, Size: 512}},
	}
	for _, e := range entries {
		require.NoError(t, w.Write(e))
	}
	require.NoError(t, w.Close())

	got, err := ReadHintFile(dir, 1)
	require.NoError(t, err)
	require.Len(t, got, len(entries))
	for i, e := range entries {
		require.Equal(t, e.Key, got[i].Key)
		require.Equal(t, e.Sequence, got[i].Sequence)
		require.Equal(t, e.Pointer, got[i].Pointer)
	}
}

func TestReadHintFileMissingIsNotError(t *testing.T) {
	dir := t.TempDir()
	entries, err := ReadHintFile(dir, 99)
	require.NoError(t, err)
	require.Nil(t, entries)
}

func TestMergeFinishedMarkerRoundTrip(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, WriteMergeFinished(dir, 7))

	got, err := ReadMergeFinished(dir)
	require.NoError(t, err)
	require.Equal(t, uint32(7), got)
}
