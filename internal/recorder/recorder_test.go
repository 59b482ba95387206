package recorder

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"corecs/internal/entity"
	"corecs/internal/eventbus"
	"corecs/internal/registry"
	"corecs/internal/repo"
)

type position struct{ X, Y float32 }

type tagComp struct{ Name string }

type damageEvent struct {
	Target uint64
	Amount float32
}

type gameTime struct{ Tick uint32 }

func newTestRepo(t *testing.T, maxEntities int) (*repo.Repository, int, int) {
	t.Helper()
	reg := registry.New()
	r, err := repo.New(repo.Config{MaxEntities: maxEntities}, reg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })

	posOrd, err := repo.RegisterPlain[position](r, "Position", registry.Persistent)
	require.NoError(t, err)
	tagOrd, err := repo.RegisterReference[tagComp](r, "Tag", registry.Persistent, nil)
	require.NoError(t, err)

	return r, posOrd, tagOrd
}

func TestWriterReaderRoundTripKeyframeThenDelta(t *testing.T) {
	r, posOrd, tagOrd := newTestRepo(t, 16)

	h1, err := r.CreateEntity(1, entity.Active)
	require.NoError(t, err)
	require.NoError(t, repo.Add(r, posOrd, h1, position{X: 1, Y: 2}, 1))
	require.NoError(t, repo.Add(r, tagOrd, h1, tagComp{Name: "alpha"}, 1))

	dir := t.TempDir()
	path := filepath.Join(dir, "session.rec")
	w, err := Create(path, r.CurrentTick(), false)
	require.NoError(t, err)
	require.NoError(t, w.WriteKeyframe(r))
	baseline := r.CurrentTick()

	tick2, err := r.Tick()
	require.NoError(t, err)
	h2, err := r.CreateEntity(tick2, entity.Active)
	require.NoError(t, err)
	require.NoError(t, repo.Add(r, posOrd, h2, position{X: 9, Y: 9}, tick2))
	require.NoError(t, w.WriteDelta(r, baseline))

	_, err = w.Close()
	require.NoError(t, err)

	reg2 := registry.New()
	replay, err := repo.New(repo.Config{MaxEntities: 16}, reg2)
	require.NoError(t, err)
	t.Cleanup(func() { _ = replay.Close() })
	replayPosOrd, err := repo.RegisterPlain[position](replay, "Position", registry.Persistent)
	require.NoError(t, err)
	replayTagOrd, err := repo.RegisterReference[tagComp](replay, "Tag", registry.Persistent, nil)
	require.NoError(t, err)
	require.Equal(t, posOrd, replayPosOrd)
	require.Equal(t, tagOrd, replayTagOrd)

	rd, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = rd.Close() })

	tick, kind, err := rd.ApplyFrame(replay)
	require.NoError(t, err)
	assert.Equal(t, baseline, tick)
	assert.Equal(t, FrameKeyframe, kind)

	v, err := repo.GetRO[position](replay, replayPosOrd, h1)
	require.NoError(t, err)
	assert.Equal(t, position{X: 1, Y: 2}, v)
	assert.False(t, replay.IsAlive(h2))

	tick, kind, err = rd.ApplyFrame(replay)
	require.NoError(t, err)
	assert.Equal(t, tick2, tick)
	assert.Equal(t, FrameDelta, kind)
	assert.True(t, replay.IsAlive(h2))
	v2, err := repo.GetRO[position](replay, replayPosOrd, h2)
	require.NoError(t, err)
	assert.Equal(t, position{X: 9, Y: 9}, v2)
	assert.Equal(t, tick2, replay.CurrentTick())
}

func TestSeekToReconstructsStateAtTick(t *testing.T) {
	r, posOrd, _ := newTestRepo(t, 16)

	h, err := r.CreateEntity(1, entity.Active)
	require.NoError(t, err)
	require.NoError(t, repo.Add(r, posOrd, h, position{X: 0, Y: 0}, 1))

	dir := t.TempDir()
	path := filepath.Join(dir, "session.rec")
	w, err := Create(path, r.CurrentTick(), false)
	require.NoError(t, err)
	require.NoError(t, w.WriteKeyframe(r))
	baseline := r.CurrentTick()

	var lastTick uint32
	for i := 0; i < 5; i++ {
		lastTick, err = r.Tick()
		require.NoError(t, err)
		rw, err := repo.GetRW[position](r, posOrd, h, lastTick)
		require.NoError(t, err)
		rw.X = float32(lastTick)
		require.NoError(t, w.WriteDelta(r, baseline))
		baseline = lastTick
	}
	_, err = w.Close()
	require.NoError(t, err)

	reg2 := registry.New()
	replay, err := repo.New(repo.Config{MaxEntities: 16}, reg2)
	require.NoError(t, err)
	t.Cleanup(func() { _ = replay.Close() })
	replayPosOrd, err := repo.RegisterPlain[position](replay, "Position", registry.Persistent)
	require.NoError(t, err)

	rd, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = rd.Close() })

	require.NoError(t, rd.SeekTo(replay, lastTick-2))
	assert.Equal(t, lastTick-2, replay.CurrentTick())
	v, err := repo.GetRO[position](replay, replayPosOrd, h)
	require.NoError(t, err)
	assert.Equal(t, float32(lastTick-2), v.X)
}

func TestSlotReuseSurvivesSeek(t *testing.T) {
	r, posOrd, _ := newTestRepo(t, 4)

	h1, err := r.CreateEntity(1, entity.Active)
	require.NoError(t, err)
	require.NoError(t, repo.Add(r, posOrd, h1, position{X: 1, Y: 1}, 1))

	dir := t.TempDir()
	path := filepath.Join(dir, "session.rec")
	w, err := Create(path, r.CurrentTick(), false)
	require.NoError(t, err)
	require.NoError(t, w.WriteKeyframe(r))
	baseline := r.CurrentTick()

	tick2, err := r.Tick()
	require.NoError(t, err)
	require.NoError(t, r.DestroyEntity(h1, tick2))
	require.NoError(t, w.WriteDelta(r, baseline))
	baseline = tick2

	tick3, err := r.Tick()
	require.NoError(t, err)
	h2, err := r.CreateEntity(tick3, entity.Active)
	require.NoError(t, err)
	require.NoError(t, repo.Add(r, posOrd, h2, position{X: 2, Y: 2}, tick3))
	require.NoError(t, w.WriteDelta(r, baseline))

	_, err = w.Close()
	require.NoError(t, err)
	require.Equal(t, h1.Index, h2.Index)
	require.NotEqual(t, h1.Generation, h2.Generation)

	reg2 := registry.New()
	replay, err := repo.New(repo.Config{MaxEntities: 4}, reg2)
	require.NoError(t, err)
	t.Cleanup(func() { _ = replay.Close() })
	replayPosOrd, err := repo.RegisterPlain[position](replay, "Position", registry.Persistent)
	require.NoError(t, err)

	rd, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = rd.Close() })

	require.NoError(t, rd.SeekTo(replay, tick3))
	assert.True(t, replay.IsAlive(h2))
	assert.False(t, replay.IsAlive(h1))
	v, err := repo.GetRO[position](replay, replayPosOrd, h2)
	require.NoError(t, err)
	assert.Equal(t, position{X: 2, Y: 2}, v)
}

// TestSanitizationMakesRecordingsDeterministic covers property P3: dead
// slots are zeroed before a chunk is written, so two repositories that saw
// the same operation sequence (including slot reuse and destruction)
// produce byte-identical recordings.
func TestSanitizationMakesRecordingsDeterministic(t *testing.T) {
	build := func(t *testing.T) []byte {
		r, posOrd, _ := newTestRepo(t, 8)
		h1, err := r.CreateEntity(1, entity.Active)
		require.NoError(t, err)
		require.NoError(t, repo.Add(r, posOrd, h1, position{X: 1, Y: 1}, 1))
		h2, err := r.CreateEntity(1, entity.Active)
		require.NoError(t, err)
		require.NoError(t, repo.Add(r, posOrd, h2, position{X: 2, Y: 2}, 1))
		require.NoError(t, r.DestroyEntity(h2, 1))

		dir := t.TempDir()
		path := filepath.Join(dir, "session.rec")
		w, err := Create(path, r.CurrentTick(), false)
		require.NoError(t, err)
		require.NoError(t, w.WriteKeyframe(r))
		_, err = w.Close()
		require.NoError(t, err)

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		return data
	}

	a := build(t)
	b := build(t)
	assert.Equal(t, a, b, "identical operation sequences must produce byte-identical recordings")
}

// TestEventAndSingletonRoundTripViaRecorder covers spec §6.1's event and
// singleton sections being addressed by type_ordinal rather than name: a
// replay process that registers the same event stream and singleton type
// (in the same order, so the shared event-type ordinal space lines up)
// must decode both correctly despite never seeing the source's name
// strings on the wire.
func TestEventAndSingletonRoundTripViaRecorder(t *testing.T) {
	r, posOrd, _ := newTestRepo(t, 8)
	h, err := r.CreateEntity(1, entity.Active)
	require.NoError(t, err)
	require.NoError(t, repo.Add(r, posOrd, h, position{X: 1, Y: 1}, 1))

	stream, err := eventbus.Register[damageEvent](r.EventBus(), "Damage", registry.StoragePlain)
	require.NoError(t, err)
	stream.Publish(damageEvent{Target: 7, Amount: 3})

	require.NoError(t, repo.SetSingleton(r, gameTime{Tick: 42}))

	dir := t.TempDir()
	path := filepath.Join(dir, "session.rec")
	w, err := Create(path, r.CurrentTick(), false)
	require.NoError(t, err)
	require.NoError(t, w.WriteKeyframe(r))
	_, err = w.Close()
	require.NoError(t, err)

	reg2 := registry.New()
	replay, err := repo.New(repo.Config{MaxEntities: 8}, reg2)
	require.NoError(t, err)
	t.Cleanup(func() { _ = replay.Close() })
	_, err = repo.RegisterPlain[position](replay, "Position", registry.Persistent)
	require.NoError(t, err)
	_, err = repo.RegisterReference[tagComp](replay, "Tag", registry.Persistent, nil)
	require.NoError(t, err)
	replayStream, err := eventbus.Register[damageEvent](replay.EventBus(), "Damage", registry.StoragePlain)
	require.NoError(t, err)
	require.NoError(t, repo.SetSingleton(replay, gameTime{}))

	rd, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = rd.Close() })

	_, _, err = rd.ApplyFrame(replay)
	require.NoError(t, err)

	replayStream.Swap()
	got := replayStream.ConsumePrevious()
	require.Len(t, got, 1)
	assert.Equal(t, uint64(7), got[0].Target)

	gt, err := repo.GetSingleton[gameTime](replay)
	require.NoError(t, err)
	assert.Equal(t, uint32(42), gt.Tick)
}
