package eventbus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"corecs/internal/registry"
)

type damageEvent struct {
	Target uint64
	Amount float32
}

func TestStreamPublishVisibleOnlyAfterSwap(t *testing.T) {
	s := NewStream[damageEvent]()
	s.Publish(damageEvent{Target: 1, Amount: 5})

	assert.Empty(t, s.ConsumePrevious())

	s.Swap()
	got := s.ConsumePrevious()
	require.Len(t, got, 1)
	assert.Equal(t, float32(5), got[0].Amount)
}

func TestStreamSwapClearsCurrent(t *testing.T) {
	s := NewStream[damageEvent]()
	s.Publish(damageEvent{Target: 1})
	s.Swap()
	s.Swap()
	assert.Empty(t, s.ConsumePrevious())
}

func TestStreamClearCurrentDiscardsUnswapped(t *testing.T) {
	s := NewStream[damageEvent]()
	s.Publish(damageEvent{Target: 1})
	s.ClearCurrent()
	s.Swap()
	assert.Empty(t, s.ConsumePrevious())
}

func TestStreamSnapshotCurrentIsACopy(t *testing.T) {
	s := NewStream[damageEvent]()
	s.Publish(damageEvent{Target: 1})
	snap := s.SnapshotCurrent()
	s.Publish(damageEvent{Target: 2})
	assert.Len(t, snap, 1)
}

func TestBusRegisterAndSwapAll(t *testing.T) {
	b := NewBus(registry.New())
	s, err := Register[damageEvent](b, "damage", registry.StoragePlain)
	require.NoError(t, err)

	s.Publish(damageEvent{Target: 7, Amount: 1})
	b.SwapAll()

	again, err := Lookup[damageEvent](b, "damage")
	require.NoError(t, err)
	got := again.ConsumePrevious()
	require.Len(t, got, 1)
	assert.Equal(t, uint64(7), got[0].Target)
}

func TestBusRegisterTypeConflict(t *testing.T) {
	b := NewBus(registry.New())
	_, err := Register[damageEvent](b, "damage", registry.StoragePlain)
	require.NoError(t, err)

	_, err = Register[string](b, "damage", registry.StoragePlain)
	assert.Error(t, err)
}

func TestBusLookupMissing(t *testing.T) {
	b := NewBus(registry.New())
	_, err := Lookup[damageEvent](b, "missing")
	assert.Error(t, err)
}

func TestBusInjectIntoCurrentForReplay(t *testing.T) {
	b := NewBus(registry.New())
	s, err := Register[damageEvent](b, "damage", registry.StoragePlain)
	require.NoError(t, err)

	s.InjectIntoCurrent([]damageEvent{{Target: 3}, {Target: 4}})
	b.SwapAll()
	got := s.ConsumePrevious()
	require.Len(t, got, 2)
}
