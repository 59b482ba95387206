package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetEntityCountExposesGauge(t *testing.T) {
	c := New()
	c.SetEntityCount(42)
	value := testutil.ToFloat64(c.entityCount)
	assert.Equal(t, float64(42), value)
}

func TestStorageStatsLabelsByComponent(t *testing.T) {
	c := New()
	c.SetStorageStats("Position", StorageStats{
		ComponentCount:      10,
		MemoryUsedBytes:     4096,
		MemoryReservedBytes: 65536,
		Fragmentation:       0.25,
	})
	assert.Equal(t, float64(10), testutil.ToFloat64(c.componentCount.WithLabelValues("Position")))
	assert.Equal(t, float64(0.25), testutil.ToFloat64(c.fragmentation.WithLabelValues("Position")))
}

func TestCountersIncrement(t *testing.T) {
	c := New()
	c.RecordDroppedCommandOp()
	c.RecordDroppedCommandOp()
	c.RecordPermissionDenial()
	assert.Equal(t, float64(2), testutil.ToFloat64(c.droppedCommandOps))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.permissionDenials))
}

func TestRegistryGatherSucceeds(t *testing.T) {
	c := New()
	c.SetEntityCount(1)
	families, err := c.Registry().Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}
