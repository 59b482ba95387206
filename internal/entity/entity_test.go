package entity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"corecs/internal/mask"
)

func TestCreateDestroyGenerationSequence(t *testing.T) {
	ix, err := NewIndex(100)
	require.NoError(t, err)
	defer ix.Close()

	a, err := ix.Create(1, Active)
	require.NoError(t, err)
	assert.Equal(t, uint16(1), a.Generation)
	assert.True(t, ix.IsAlive(a))

	require.NoError(t, ix.Destroy(a, 3))
	assert.False(t, ix.IsAlive(a))

	b, err := ix.Create(4, Active)
	require.NoError(t, err)
	assert.Equal(t, a.Index, b.Index)
	assert.Equal(t, uint16(2), b.Generation)
	assert.True(t, ix.IsAlive(b))
	assert.False(t, ix.IsAlive(a))
}

func TestGenerationSkipsZeroOnWrap(t *testing.T) {
	ix, err := NewIndex(10)
	require.NoError(t, err)
	defer ix.Close()

	h, err := ix.Create(1, Active)
	require.NoError(t, err)

	hdr, err := ix.GetHeader(h.Index)
	require.NoError(t, err)
	hdr.Generation = 0xFFFF
	// force the header table to reflect a near-wrap generation
	rw, err := ix.Table().GetRW(int(h.Index), 2)
	require.NoError(t, err)
	rw.Generation = 0xFFFF
	h.Generation = 0xFFFF

	require.NoError(t, ix.Destroy(h, 3))
	got, err := ix.GetHeader(h.Index)
	require.NoError(t, err)
	assert.Equal(t, uint16(1), got.Generation)
}

func TestLifecycleTransitions(t *testing.T) {
	ix, err := NewIndex(10)
	require.NoError(t, err)
	defer ix.Close()

	h, err := ix.Create(1, Constructing)
	require.NoError(t, err)

	assert.Error(t, ix.SetLifecycle(h, Constructing, 2))
	require.NoError(t, ix.SetLifecycle(h, Active, 2))
	require.NoError(t, ix.SetLifecycle(h, TearDown, 3))
	assert.Error(t, ix.SetLifecycle(h, Constructing, 4))
}

func TestCreateStagedPromotesOnAck(t *testing.T) {
	ix, err := NewIndex(10)
	require.NoError(t, err)
	defer ix.Close()

	h, err := ix.CreateStaged(1, 0b11, mask.Zero)
	require.NoError(t, err)

	hdr, _ := ix.GetHeader(h.Index)
	assert.Equal(t, Constructing, hdr.Lifecycle)

	require.NoError(t, ix.AckModule(h, 0b01, 2))
	hdr, _ = ix.GetHeader(h.Index)
	assert.Equal(t, Constructing, hdr.Lifecycle)

	require.NoError(t, ix.AckModule(h, 0b10, 3))
	hdr, _ = ix.GetHeader(h.Index)
	assert.Equal(t, Active, hdr.Lifecycle)
}

func TestHydrateRejectsConflict(t *testing.T) {
	ix, err := NewIndex(10)
	require.NoError(t, err)
	defer ix.Close()

	h, err := ix.Create(1, Active)
	require.NoError(t, err)

	err = ix.Hydrate(Handle{Index: h.Index, Generation: h.Generation + 5}, 2)
	assert.Error(t, err)
}

func TestHydrateAllocatesFreeSlot(t *testing.T) {
	ix, err := NewIndex(10)
	require.NoError(t, err)
	defer ix.Close()

	target := Handle{Index: 7, Generation: 3}
	require.NoError(t, ix.Hydrate(target, 1))
	assert.True(t, ix.IsAlive(target))
}

func TestCapacityExhausted(t *testing.T) {
	ix, err := NewIndex(2)
	require.NoError(t, err)
	defer ix.Close()

	_, err = ix.Create(1, Active)
	require.NoError(t, err)
	_, err = ix.Create(1, Active)
	require.NoError(t, err)
	_, err = ix.Create(1, Active)
	assert.Error(t, err)
}

func TestSyncFromCopiesHeaders(t *testing.T) {
	src, err := NewIndex(100)
	require.NoError(t, err)
	defer src.Close()
	dst, err := NewIndex(100)
	require.NoError(t, err)
	defer dst.Close()

	h, err := src.Create(1, Active)
	require.NoError(t, err)
	require.NoError(t, src.SetComponentBit(h, 3, true, 1))

	require.NoError(t, dst.SyncFrom(src))

	assert.True(t, dst.IsAlive(h))
	hdr, err := dst.GetHeader(h.Index)
	require.NoError(t, err)
	assert.True(t, hdr.ComponentMask.Test(3))
}
