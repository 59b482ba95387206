package mask

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetClearTest(t *testing.T) {
	m := Zero.Set(3).Set(130)
	assert.True(t, m.Test(3))
	assert.True(t, m.Test(130))
	assert.False(t, m.Test(4))

	m = m.Clear(3)
	assert.False(t, m.Test(3))
	assert.True(t, m.Test(130))
}

func TestOutOfRangePanics(t *testing.T) {
	assert.Panics(t, func() { Zero.Set(256) })
	assert.Panics(t, func() { Zero.Set(-1) })
}

func TestBooleanOps(t *testing.T) {
	a := FromOrdinals(1, 2, 3)
	b := FromOrdinals(2, 3, 4)

	assert.Equal(t, FromOrdinals(2, 3), a.And(b))
	assert.Equal(t, FromOrdinals(1, 2, 3, 4), a.Or(b))
	assert.True(t, a.Not().Test(0))
	assert.False(t, a.Not().Test(1))
}

func TestVectorScalarAgree(t *testing.T) {
	cases := []struct{ target, include, exclude Mask256 }{
		{Zero, Zero, Zero},
		{FromOrdinals(1, 2, 3), FromOrdinals(1, 2), Zero},
		{FromOrdinals(1, 2, 3), FromOrdinals(1, 4), Zero},
		{FromOrdinals(1, 2, 3), Zero, FromOrdinals(3)},
		{FromOrdinals(1, 2, 3), Zero, FromOrdinals(9)},
		{FromOrdinals(200, 255), FromOrdinals(200), FromOrdinals(255)},
	}
	for _, c := range cases {
		require.Equal(t, MatchesScalar(c.target, c.include, c.exclude), MatchesVec(c.target, c.include, c.exclude))
	}
}

func TestEmptyIncludeNonEmptyExclude(t *testing.T) {
	// spec §4.5 edge case: empty include + non-empty exclude matches every
	// entity not carrying any excluded bit.
	target := FromOrdinals(5)
	assert.True(t, Matches(target, Zero, FromOrdinals(6)))
	assert.False(t, Matches(target, Zero, FromOrdinals(5)))
}

func TestBytesRoundTrip(t *testing.T) {
	m := FromOrdinals(0, 64, 128, 192, 255)
	b := m.Bytes()
	m2 := FromBytes(b)
	assert.Equal(t, m, m2)
}

func TestSetBitsOrdered(t *testing.T) {
	m := FromOrdinals(200, 1, 64, 63)
	assert.Equal(t, []int{1, 63, 64, 200}, m.SetBits())
}

func TestPopCount(t *testing.T) {
	assert.Equal(t, 3, FromOrdinals(1, 2, 3).PopCount())
	assert.Equal(t, 0, Zero.PopCount())
}
