package chunk

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type position struct {
	X, Y, Z float32
}

func TestUncommittedChunkReadsZero(t *testing.T) {
	tbl, err := NewPlainTable[position](1000)
	require.NoError(t, err)
	defer tbl.Close()

	assert.False(t, tbl.IsCommitted(0))
	assert.Equal(t, uint32(0), tbl.ChunkVersion(0))
	assert.Equal(t, int32(0), tbl.ChunkPopulation(0))

	v, err := tbl.GetRO(5)
	require.NoError(t, err)
	assert.Equal(t, position{}, *v)
}

func TestGetRWBumpsVersionOnce(t *testing.T) {
	tbl, err := NewPlainTable[position](1000)
	require.NoError(t, err)
	defer tbl.Close()

	v, err := tbl.GetRW(5, 7)
	require.NoError(t, err)
	v.X = 1
	assert.Equal(t, uint32(7), tbl.ChunkVersion(tbl.ChunkOf(5)))

	v2, err := tbl.GetRW(6, 7)
	require.NoError(t, err)
	v2.Y = 2
	assert.Equal(t, uint32(7), tbl.ChunkVersion(tbl.ChunkOf(6)))

	ro, err := tbl.GetRO(5)
	require.NoError(t, err)
	assert.Equal(t, float32(1), ro.X)
}

func TestOutOfRangeIndex(t *testing.T) {
	tbl, err := NewPlainTable[position](10)
	require.NoError(t, err)
	defer tbl.Close()

	_, err = tbl.GetRW(10, 1)
	assert.Error(t, err)
	_, err = tbl.GetRO(-1)
	assert.Error(t, err)
}

func TestCopyRestoreChunkIdentity(t *testing.T) {
	tbl, err := NewPlainTable[position](1000)
	require.NoError(t, err)
	defer tbl.Close()

	v, err := tbl.GetRW(0, 1)
	require.NoError(t, err)
	*v = position{X: 1, Y: 2, Z: 3}

	buf := make([]byte, ChunkBytes)
	require.NoError(t, tbl.CopyChunkTo(0, buf))

	tbl2, err := NewPlainTable[position](1000)
	require.NoError(t, err)
	defer tbl2.Close()

	require.NoError(t, tbl2.RestoreChunkFrom(0, buf))
	got, err := tbl2.GetRO(0)
	require.NoError(t, err)
	assert.Equal(t, *v, *got)
}

func TestSanitizeChunkDeterministic(t *testing.T) {
	tbl, err := NewPlainTable[position](1000)
	require.NoError(t, err)
	defer tbl.Close()

	v0, _ := tbl.GetRW(0, 1)
	*v0 = position{X: 9}
	v1, _ := tbl.GetRW(1, 1)
	*v1 = position{X: 99}

	live := make([]bool, tbl.Capacity())
	live[0] = true // slot 1 is "dead"

	require.NoError(t, tbl.SanitizeChunk(0, live))

	buf1 := make([]byte, ChunkBytes)
	require.NoError(t, tbl.CopyChunkTo(0, buf1))

	// Different prior garbage at the dead slot must sanitize to the same bytes.
	tbl2, _ := NewPlainTable[position](1000)
	defer tbl2.Close()
	w0, _ := tbl2.GetRW(0, 1)
	*w0 = position{X: 9}
	w1, _ := tbl2.GetRW(1, 1)
	*w1 = position{X: -12345}
	require.NoError(t, tbl2.SanitizeChunk(0, live))

	buf2 := make([]byte, ChunkBytes)
	require.NoError(t, tbl2.CopyChunkTo(0, buf2))

	assert.Equal(t, buf1, buf2)
}

func TestTryDecommitRefusedWhilePopulated(t *testing.T) {
	tbl, err := NewPlainTable[position](1000)
	require.NoError(t, err)
	defer tbl.Close()

	_, _ = tbl.GetRW(0, 1)
	tbl.SetPopulation(0, 1)

	err = tbl.TryDecommit(0)
	assert.Error(t, err)

	tbl.SetPopulation(0, 0)
	require.NoError(t, tbl.TryDecommit(0))
	assert.False(t, tbl.IsCommitted(0))
	assert.Equal(t, uint32(0), tbl.ChunkVersion(0))
}

func TestSyncDirtyFromSkipsNeverWritten(t *testing.T) {
	// 20000 12-byte elements span four chunks, so chunk 1 exists on both.
	src, _ := NewPlainTable[position](20000)
	defer src.Close()
	dst, _ := NewPlainTable[position](20000)
	defer dst.Close()

	v, _ := src.GetRW(0, 5)
	*v = position{X: 42}
	src.SetPopulation(0, 1)

	require.NoError(t, dst.SyncDirtyFrom(src))

	got, err := dst.GetRO(0)
	require.NoError(t, err)
	assert.Equal(t, position{X: 42}, *got)
	assert.Equal(t, uint32(5), dst.ChunkVersion(0))
	assert.False(t, dst.IsCommitted(1)) // chunk 1 never written on src, skipped
}

func TestCapacityIsFloorDivision(t *testing.T) {
	tbl, err := NewPlainTable[position](1)
	require.NoError(t, err)
	defer tbl.Close()
	assert.Equal(t, ChunkBytes/12, tbl.Capacity())
}
