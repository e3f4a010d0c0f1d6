package transfer

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLosslessChunkingRoundTrip(t *testing.T) {
	data := bytes.Repeat([]byte("helix"), 1000) // 5000 bytes
	tr, err := NewOutbound("t1", "f.bin", "application/octet-stream", data, 64, 1<<20)
	require.NoError(t, err)

	store := NewMemoryStore()
	for {
		chunk, idx, ok := tr.NextChunk()
		if !ok {
			break
		}
		require.NoError(t, store.Put("t1", idx, chunk))
	}
	got, err := store.Assemble("t1")
	require.NoError(t, err)
	require.Equal(t, data, got)
}

func TestEmptyFileIsOneZeroLengthChunk(t *testing.T) {
	tr, err := NewOutbound("t2", "empty.bin", "application/octet-stream", nil, 64, 1<<20)
	require.NoError(t, err)

	require.Equal(t, 1, TotalChunks(tr.FileSize, 64))
	chunk, idx, ok := tr.NextChunk()
	require.True(t, ok)
	require.Equal(t, 0, idx)
	require.Empty(t, chunk)

	_, _, ok = tr.NextChunk()
	require.False(t, ok)
}

func TestNewOutboundRejectsFileSizeExceedingMax(t *testing.T) {
	data := make([]byte, 101)
	_, err := NewOutbound("t3", "f", "text/plain", data, 64, 100)
	require.ErrorIs(t, err, ErrSizeExceeded)
}

func TestNewOutboundAcceptsExactMax(t *testing.T) {
	data := make([]byte, 100)
	_, err := NewOutbound("t4", "f", "text/plain", data, 64, 100)
	require.NoError(t, err)
}

func TestNewInboundRejectsFileSizeExceedingMax(t *testing.T) {
	_, err := NewInbound("t5", "f", "text/plain", 101, 100)
	require.ErrorIs(t, err, ErrSizeExceeded)
}

func TestAcceptChunkRejectsGap(t *testing.T) {
	tr, err := NewInbound("t6", "f", "text/plain", 400, 1<<20)
	require.NoError(t, err)

	require.NoError(t, tr.AcceptChunk(0, 100))
	require.NoError(t, tr.AcceptChunk(1, 100))
	require.ErrorIs(t, tr.AcceptChunk(3, 100), ErrChunkOutOfOrder)
}

func TestAcceptChunkRejectsDuplicate(t *testing.T) {
	tr, err := NewInbound("t7", "f", "text/plain", 400, 1<<20)
	require.NoError(t, err)

	require.NoError(t, tr.AcceptChunk(0, 100))
	require.ErrorIs(t, tr.AcceptChunk(0, 100), ErrChunkDuplicate)
}

func TestCheckCompleteDetectsMismatch(t *testing.T) {
	tr, err := NewInbound("t8", "f", "text/plain", 200, 1<<20)
	require.NoError(t, err)

	require.NoError(t, tr.AcceptChunk(0, 100))
	require.NoError(t, tr.AcceptChunk(1, 100))
	require.NoError(t, tr.CheckComplete(2))
	require.Error(t, tr.CheckComplete(3))
}

func TestMemoryStoreAssembleFailsOnMissingChunk(t *testing.T) {
	store := NewMemoryStore()
	require.NoError(t, store.Put("x", 2, []byte("c")))
	_, err := store.Assemble("x")
	require.Error(t, err)
}

func TestMemoryStoreDeleteIsSafeOnUnknownTransfer(t *testing.T) {
	store := NewMemoryStore()
	require.NoError(t, store.Delete("never-stored"))
}
