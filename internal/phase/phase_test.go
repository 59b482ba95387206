package phase

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSequenceForwardOnly(t *testing.T) {
	s := NewSequence()
	require.NoError(t, s.Advance(NetworkReceive))
	require.NoError(t, s.Advance(Simulation))
	assert.Error(t, s.Advance(NetworkReceive))
}

func TestSequenceResetAtTickBoundary(t *testing.T) {
	s := NewSequence()
	require.NoError(t, s.Advance(Presentation))
	s.ResetForNewTick()
	assert.Equal(t, Initialization, s.Current())
	require.NoError(t, s.Advance(NetworkReceive))
}

func TestCheckWritePermissions(t *testing.T) {
	assert.Error(t, CheckWrite(ReadOnly, true))
	assert.NoError(t, CheckWrite(ReadWriteAll, false))
	assert.NoError(t, CheckWrite(OwnedOnly, true))
	assert.Error(t, CheckWrite(OwnedOnly, false))
	assert.NoError(t, CheckWrite(UnownedOnly, false))
	assert.Error(t, CheckWrite(UnownedOnly, true))
}

func TestSchedulerTopoSortRespectsRunAfter(t *testing.T) {
	s := NewScheduler([]ModuleSpec{
		{Name: "physics", Phase: Simulation, RunAfter: []string{"input"}},
		{Name: "input", Phase: Simulation},
		{Name: "ai", Phase: Simulation, RunAfter: []string{"physics"}},
	})
	order, err := s.Order()
	require.NoError(t, err)

	sim := order[Simulation]
	require.Len(t, sim, 3)
	pos := map[string]int{}
	for i, n := range sim {
		pos[n] = i
	}
	assert.Less(t, pos["input"], pos["physics"])
	assert.Less(t, pos["physics"], pos["ai"])
}

func TestSchedulerDetectsCycle(t *testing.T) {
	s := NewScheduler([]ModuleSpec{
		{Name: "a", Phase: Simulation, RunAfter: []string{"b"}},
		{Name: "b", Phase: Simulation, RunAfter: []string{"a"}},
	})
	_, err := s.Order()
	assert.Error(t, err)
}

func TestSchedulerMissingDependency(t *testing.T) {
	s := NewScheduler([]ModuleSpec{
		{Name: "a", Phase: Simulation, RunAfter: []string{"ghost"}},
	})
	_, err := s.Order()
	assert.Error(t, err)
}

func TestSchedulerDeterministicTieBreak(t *testing.T) {
	s := NewScheduler([]ModuleSpec{
		{Name: "zeta", Phase: Initialization},
		{Name: "alpha", Phase: Initialization},
	})
	order, err := s.Order()
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "zeta"}, order[Initialization])
}
