package command

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"corecs/internal/entity"
	"corecs/internal/errs"
)

// fakeRepo is a minimal in-memory stand-in for the repository facade,
// enough to exercise Playback's ordering and drop semantics without
// pulling in the real repo package (which depends on this one).
type fakeRepo struct {
	ix          *entity.Index
	tick        uint32
	components  map[int]map[int32]any
	published   []string
}

func newFakeRepo(t *testing.T) *fakeRepo {
	ix, err := entity.NewIndex(100)
	require.NoError(t, err)
	return &fakeRepo{ix: ix, components: make(map[int]map[int32]any)}
}

func (f *fakeRepo) CreateEntity(tick uint32, lifecycle entity.Lifecycle) (entity.Handle, error) {
	return f.ix.Create(tick, lifecycle)
}

func (f *fakeRepo) DestroyEntity(h entity.Handle, tick uint32) error {
	return f.ix.Destroy(h, tick)
}

func (f *fakeRepo) IsAlive(h entity.Handle) bool { return f.ix.IsAlive(h) }

func (f *fakeRepo) AddComponent(ordinal int, h entity.Handle, payload any, tick uint32) error {
	if !f.ix.IsAlive(h) {
		return errs.New(errs.BadHandle, "dead")
	}
	if f.components[ordinal] == nil {
		f.components[ordinal] = make(map[int32]any)
	}
	f.components[ordinal][h.Index] = payload
	return f.ix.SetComponentBit(h, ordinal, true, tick)
}

func (f *fakeRepo) SetComponent(ordinal int, h entity.Handle, payload any, tick uint32) error {
	if !f.ix.IsAlive(h) {
		return errs.New(errs.BadHandle, "dead")
	}
	if f.components[ordinal] == nil {
		f.components[ordinal] = make(map[int32]any)
	}
	f.components[ordinal][h.Index] = payload
	return nil
}

func (f *fakeRepo) RemoveComponent(ordinal int, h entity.Handle, tick uint32) error {
	if !f.ix.IsAlive(h) {
		return errs.New(errs.BadHandle, "dead")
	}
	delete(f.components[ordinal], h.Index)
	return f.ix.SetComponentBit(h, ordinal, false, tick)
}

func (f *fakeRepo) PublishEvent(stream string, payload any) error {
	f.published = append(f.published, stream)
	return nil
}

func TestPlaybackCreateThenAddComponentViaLocalRef(t *testing.T) {
	repo := newFakeRepo(t)
	b := New()
	ref := b.CreateEntity(entity.Active)
	b.AddComponent(ref, 2, "payload")

	dropped, err := Playback(b, repo, 1)
	require.NoError(t, err)
	assert.Empty(t, dropped)
	assert.Len(t, repo.components[2], 1)
}

func TestPlaybackDropsOpsOnStaleHandle(t *testing.T) {
	repo := newFakeRepo(t)
	h, err := repo.ix.Create(1, entity.Active)
	require.NoError(t, err)
	require.NoError(t, repo.ix.Destroy(h, 1))

	b := New()
	b.AddComponent(HandleRef(h), 1, "x")

	dropped, err := Playback(b, repo, 2)
	require.NoError(t, err)
	require.Len(t, dropped, 1)
	assert.Equal(t, OpAddComponent, dropped[0].Op.Kind)
}

func TestPlaybackDestroyThenCreateReusesSlotDeterministically(t *testing.T) {
	repo := newFakeRepo(t)
	h, err := repo.ix.Create(1, entity.Active)
	require.NoError(t, err)

	b := New()
	b.DestroyEntity(HandleRef(h))
	ref := b.CreateEntity(entity.Active)
	b.AddComponent(ref, 0, "new")

	dropped, err := Playback(b, repo, 2)
	require.NoError(t, err)
	assert.Empty(t, dropped)
	assert.False(t, repo.ix.IsAlive(h))
	reused := entity.Handle{Index: h.Index, Generation: h.Generation + 1}
	assert.True(t, repo.ix.IsAlive(reused))
	assert.Equal(t, "new", repo.components[0][h.Index])
}

func TestPlaybackAllAppliesInOrder(t *testing.T) {
	repo := newFakeRepo(t)

	b1 := New()
	ref1 := b1.CreateEntity(entity.Active)
	b1.PublishEvent("damage", 1)

	b2 := New()
	ref2 := b2.CreateEntity(entity.Active)
	b2.PublishEvent("damage", 2)

	dropped, err := PlaybackAll([]*Buffer{b1, b2}, repo, 1)
	require.NoError(t, err)
	assert.Empty(t, dropped)
	assert.Equal(t, []string{"damage", "damage"}, repo.published)

	_ = ref1
	_ = ref2
}

func TestResetClearsBuffer(t *testing.T) {
	b := New()
	b.CreateEntity(entity.Active)
	b.Reset()
	assert.Equal(t, 0, b.Len())
}
