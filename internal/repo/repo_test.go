package repo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"corecs/internal/command"
	"corecs/internal/entity"
	"corecs/internal/mask"
	"corecs/internal/phase"
	"corecs/internal/query"
	"corecs/internal/registry"
)

type position struct{ X, Y float32 }

type tag struct{ Name string }

func newTestRepo(t *testing.T, maxEntities int) (*Repository, *registry.Registry) {
	t.Helper()
	reg := registry.New()
	r, err := New(Config{MaxEntities: maxEntities}, reg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })
	return r, reg
}

func TestCreateAddGetRemoveComponent(t *testing.T) {
	r, _ := newTestRepo(t, 16)
	posOrd, err := RegisterPlain[position](r, "Position", registry.Persistent)
	require.NoError(t, err)

	h, err := r.CreateEntity(1, entity.Active)
	require.NoError(t, err)

	require.NoError(t, Add(r, posOrd, h, position{X: 1, Y: 2}, 1))
	assert.True(t, Has(r, posOrd, h))

	v, err := GetRO[position](r, posOrd, h)
	require.NoError(t, err)
	assert.Equal(t, position{X: 1, Y: 2}, v)

	rw, err := GetRW[position](r, posOrd, h, 2)
	require.NoError(t, err)
	rw.X = 5
	v2, err := GetRO[position](r, posOrd, h)
	require.NoError(t, err)
	assert.Equal(t, float32(5), v2.X)

	require.NoError(t, r.RemoveComponent(posOrd, h, 3))
	assert.False(t, Has(r, posOrd, h))
}

func TestGetOnDestroyedEntityFails(t *testing.T) {
	r, _ := newTestRepo(t, 4)
	posOrd, err := RegisterPlain[position](r, "Position", registry.Persistent)
	require.NoError(t, err)

	h, err := r.CreateEntity(1, entity.Active)
	require.NoError(t, err)
	require.NoError(t, r.DestroyEntity(h, 2))

	_, err = GetRO[position](r, posOrd, h)
	assert.Error(t, err)
}

func TestReferenceComponentRoundTrip(t *testing.T) {
	r, _ := newTestRepo(t, 4)
	tagOrd, err := RegisterReference[tag](r, "Tag", registry.Persistent, nil)
	require.NoError(t, err)

	h, err := r.CreateEntity(1, entity.Active)
	require.NoError(t, err)
	require.NoError(t, Add(r, tagOrd, h, tag{Name: "boss"}, 1))

	v, err := GetRO[tag](r, tagOrd, h)
	require.NoError(t, err)
	assert.Equal(t, "boss", v.Name)
}

func TestSingletonSetGetHasClear(t *testing.T) {
	r, _ := newTestRepo(t, 4)
	assert.False(t, HasSingleton[position](r))

	require.NoError(t, SetSingleton(r, position{X: 9}))
	assert.True(t, HasSingleton[position](r))

	v, err := GetSingleton[position](r)
	require.NoError(t, err)
	assert.Equal(t, float32(9), v.X)

	ClearSingleton[position](r)
	assert.False(t, HasSingleton[position](r))
}

func TestWritePermissionDeniedDuringReadOnlyPhase(t *testing.T) {
	r, _ := newTestRepo(t, 4)
	posOrd, err := RegisterPlain[position](r, "Position", registry.Persistent)
	require.NoError(t, err)
	h, err := r.CreateEntity(1, entity.Active)
	require.NoError(t, err)

	require.NoError(t, r.SetPhase(phase.Presentation))
	err = Add(r, posOrd, h, position{}, 1)
	assert.Error(t, err)
}

func TestQueryMatchesComponentSignature(t *testing.T) {
	r, _ := newTestRepo(t, 8)
	posOrd, err := RegisterPlain[position](r, "Position", registry.Persistent)
	require.NoError(t, err)
	tagOrd, err := RegisterReference[tag](r, "Tag", registry.Persistent, nil)
	require.NoError(t, err)

	withTag, err := r.CreateEntity(1, entity.Active)
	require.NoError(t, err)
	require.NoError(t, Add(r, posOrd, withTag, position{}, 1))
	require.NoError(t, Add(r, tagOrd, withTag, tag{Name: "x"}, 1))

	withoutTag, err := r.CreateEntity(1, entity.Active)
	require.NoError(t, err)
	require.NoError(t, Add(r, posOrd, withoutTag, position{}, 1))

	def, err := query.NewBuilder().WithAll(posOrd, tagOrd).Build()
	require.NoError(t, err)

	got := r.Query(def)
	require.Len(t, got, 1)
	assert.Equal(t, withTag, got[0])
}

func TestCommandBufferPlaybackCreatesAndSetsComponent(t *testing.T) {
	r, _ := newTestRepo(t, 8)
	posOrd, err := RegisterPlain[position](r, "Position", registry.Persistent)
	require.NoError(t, err)

	buf := command.New()
	ref := buf.CreateEntity(entity.Active)
	buf.AddComponent(ref, posOrd, position{X: 3, Y: 4})

	dropped, err := command.Playback(buf, r, 1)
	require.NoError(t, err)
	assert.Empty(t, dropped)

	def, err := query.NewBuilder().With(posOrd).Build()
	require.NoError(t, err)
	got := r.Query(def)
	require.Len(t, got, 1)

	v, err := GetRO[position](r, posOrd, got[0])
	require.NoError(t, err)
	assert.Equal(t, position{X: 3, Y: 4}, v)
}

func TestSyncFromCopiesEntitiesAndPersistentComponents(t *testing.T) {
	src, reg := newTestRepo(t, 8)
	posOrd, err := RegisterPlain[position](src, "Position", registry.Persistent)
	require.NoError(t, err)

	h, err := src.CreateEntity(1, entity.Active)
	require.NoError(t, err)
	require.NoError(t, Add(src, posOrd, h, position{X: 7, Y: 8}, 1))

	dst, err := New(Config{MaxEntities: 8}, reg)
	require.NoError(t, err)
	defer dst.Close()
	_, err = RegisterPlain[position](dst, "Position", registry.Persistent)
	require.NoError(t, err)

	require.NoError(t, dst.SyncFrom(src, reg.PersistentMask(), false))
	assert.True(t, dst.IsAlive(h))

	v, err := GetRO[position](dst, posOrd, h)
	require.NoError(t, err)
	assert.Equal(t, position{X: 7, Y: 8}, v)
}

func TestSyncFromExcludesTransientByDefault(t *testing.T) {
	src, reg := newTestRepo(t, 8)
	secretOrd, err := RegisterReference[tag](src, "Secret", registry.Transient, nil)
	require.NoError(t, err)

	h, err := src.CreateEntity(1, entity.Active)
	require.NoError(t, err)
	require.NoError(t, Add(src, secretOrd, h, tag{Name: "s"}, 1))

	dst, err := New(Config{MaxEntities: 8}, reg)
	require.NoError(t, err)
	defer dst.Close()
	_, err = RegisterReference[tag](dst, "Secret", registry.Transient, nil)
	require.NoError(t, err)

	require.NoError(t, dst.SyncFrom(src, mask.Zero, false))
	assert.True(t, dst.IsAlive(h))
	assert.False(t, Has(dst, secretOrd, h))

	require.NoError(t, dst.SyncFrom(src, mask.Zero, true))
	assert.True(t, Has(dst, secretOrd, h))
}
