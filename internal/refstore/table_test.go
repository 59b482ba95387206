package refstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type blob struct {
	Tag  string
	Data []byte
}

func TestSetGetRemove(t *testing.T) {
	rt := NewRefTable[*blob](100)

	require.NoError(t, rt.Set(5, &blob{Tag: "a"}, 1))
	v, ok := rt.Get(5)
	require.True(t, ok)
	assert.Equal(t, "a", v.Tag)

	assert.True(t, rt.Remove(5))
	_, ok = rt.Get(5)
	assert.False(t, ok)
	assert.False(t, rt.Remove(5))
}

func TestOutOfRange(t *testing.T) {
	rt := NewRefTable[*blob](10)
	assert.Error(t, rt.Set(10, &blob{}, 1))
}

func TestSyncDirtyFromReferenceCopy(t *testing.T) {
	src := NewRefTable[*blob](100)
	dst := NewRefTable[*blob](100)

	original := &blob{Tag: "shared"}
	require.NoError(t, src.Set(1, original, 3))

	require.NoError(t, dst.SyncDirtyFrom(src, nil))

	got, ok := dst.Get(1)
	require.True(t, ok)
	assert.Same(t, original, got)
}

func TestSyncDirtyFromCloneTagged(t *testing.T) {
	src := NewRefTable[*blob](100)
	dst := NewRefTable[*blob](100)

	original := &blob{Tag: "clone-me", Data: []byte{1, 2, 3}}
	require.NoError(t, src.Set(1, original, 3))

	clone := func(b *blob) *blob {
		cp := *b
		cp.Data = append([]byte(nil), b.Data...)
		return &cp
	}
	require.NoError(t, dst.SyncDirtyFrom(src, clone))

	got, ok := dst.Get(1)
	require.True(t, ok)
	assert.NotSame(t, original, got)
	assert.Equal(t, original.Tag, got.Tag)
	assert.Equal(t, original.Data, got.Data)
}

func TestForEachOrdered(t *testing.T) {
	rt := NewRefTable[*blob](10000)
	require.NoError(t, rt.Set(9000, &blob{Tag: "b"}, 1))
	require.NoError(t, rt.Set(5, &blob{Tag: "a"}, 1))

	var order []int
	rt.ForEach(func(index int, value *blob) { order = append(order, index) })
	assert.Equal(t, []int{5, 9000}, order)
}
