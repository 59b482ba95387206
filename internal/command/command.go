// Package command implements the thread-local command buffer of spec
// §3/§4.8: an append-only stream of tagged structural/value edits
// recorded by module worker threads and replayed on the main thread in
// recorded order. No teacher file covers this pattern (the teacher
// mutates its world directly from systems); the op-log shape here
// follows the same tagged-struct style the teacher uses for its event
// types (event_types.go) rather than introducing a new idiom.
package command

import (
	"corecs/internal/entity"
)

// OpKind tags the kind of edit an Op represents.
type OpKind uint8

const (
	OpCreateEntity OpKind = iota
	OpDestroyEntity
	OpAddComponent
	OpSetComponent
	OpRemoveComponent
	OpPublishEvent
)

// Ref identifies the entity an op targets: either a real handle known at
// record time, or a forward reference to an entity created earlier in
// the same buffer (by the Nth CreateEntity op, 1-indexed), letting a
// producer add components to an entity it just created without waiting
// for playback to hand back a real handle.
type Ref struct {
	Handle entity.Handle
	Local  int32 // >0 selects the entity created by the Local'th CreateEntity op in this buffer
}

// HandleRef wraps a concrete handle known at record time.
func HandleRef(h entity.Handle) Ref { return Ref{Handle: h} }

// Op is one recorded edit. Only the fields relevant to Kind are
// meaningful; the rest are zero.
type Op struct {
	Kind      OpKind
	Target    Ref
	Ordinal   int // component ordinal for Add/Set/Remove component
	Payload   any // component value, or event value for PublishEvent
	Stream    string // event stream name for PublishEvent
	Lifecycle entity.Lifecycle // initial lifecycle for CreateEntity
}

// Buffer is one producer thread's append-only op log (spec §4.8). A
// Buffer is not safe for concurrent use by multiple goroutines: "one
// instance per producer thread" per spec §3.
type Buffer struct {
	ops         []Op
	localCreate int32
}

// New creates an empty buffer.
func New() *Buffer {
	return &Buffer{}
}

// Reset discards every recorded op, for reuse across frames without
// reallocating.
func (b *Buffer) Reset() {
	b.ops = b.ops[:0]
	b.localCreate = 0
}

// Len returns the number of recorded ops.
func (b *Buffer) Len() int { return len(b.ops) }

// Ops exposes the recorded ops in record order. Callers must not mutate
// the returned slice.
func (b *Buffer) Ops() []Op { return b.ops }

// CreateEntity records a creation and returns a Ref that later calls in
// this same buffer can use to target the not-yet-real entity.
func (b *Buffer) CreateEntity(lifecycle entity.Lifecycle) Ref {
	b.localCreate++
	b.ops = append(b.ops, Op{Kind: OpCreateEntity, Lifecycle: lifecycle, Target: Ref{Local: b.localCreate}})
	return Ref{Local: b.localCreate}
}

// DestroyEntity records a destruction of target.
func (b *Buffer) DestroyEntity(target Ref) {
	b.ops = append(b.ops, Op{Kind: OpDestroyEntity, Target: target})
}

// AddComponent records adding ordinal with payload to target.
func (b *Buffer) AddComponent(target Ref, ordinal int, payload any) {
	b.ops = append(b.ops, Op{Kind: OpAddComponent, Target: target, Ordinal: ordinal, Payload: payload})
}

// SetComponent records overwriting ordinal's value on target, without
// changing presence.
func (b *Buffer) SetComponent(target Ref, ordinal int, payload any) {
	b.ops = append(b.ops, Op{Kind: OpSetComponent, Target: target, Ordinal: ordinal, Payload: payload})
}

// RemoveComponent records clearing ordinal from target.
func (b *Buffer) RemoveComponent(target Ref, ordinal int) {
	b.ops = append(b.ops, Op{Kind: OpRemoveComponent, Target: target, Ordinal: ordinal})
}

// PublishEvent records publishing payload onto the named event stream.
func (b *Buffer) PublishEvent(stream string, payload any) {
	b.ops = append(b.ops, Op{Kind: OpPublishEvent, Stream: stream, Payload: payload})
}

// Repo is the subset of the repository facade that playback needs. The
// real implementation lives in package repo; this interface exists here
// purely to avoid an import cycle (repo imports command for Buffer /
// Playback, so command cannot import repo back).
type Repo interface {
	CreateEntity(tick uint32, lifecycle entity.Lifecycle) (entity.Handle, error)
	DestroyEntity(h entity.Handle, tick uint32) error
	IsAlive(h entity.Handle) bool
	AddComponent(ordinal int, h entity.Handle, payload any, tick uint32) error
	SetComponent(ordinal int, h entity.Handle, payload any, tick uint32) error
	RemoveComponent(ordinal int, h entity.Handle, tick uint32) error
	PublishEvent(stream string, payload any) error
}

// DroppedOp records an operation silently dropped during playback
// because it targeted a stale or never-resolved handle (spec §4.8: "this
// is the sole tolerated resolution of races between structural change
// and late writes"). Playback never returns an error for these; callers
// that want visibility can inspect the returned slice.
type DroppedOp struct {
	Index int
	Op    Op
}

// Playback applies every recorded op to repo, in recorded order, on
// whatever goroutine calls it (spec §4.8 requires this run on the main
// thread; the buffer itself does not enforce that). Forward references
// to locally created entities always resolve, since creates are applied
// before any op that can reference them. Returns the ops dropped due to
// stale handles.
func Playback(b *Buffer, repo Repo, tick uint32) ([]DroppedOp, error) {
	locals := make(map[int32]entity.Handle, b.localCreate)
	var dropped []DroppedOp

	resolve := func(ref Ref) (entity.Handle, bool) {
		if ref.Local > 0 {
			h, ok := locals[ref.Local]
			return h, ok
		}
		return ref.Handle, repo.IsAlive(ref.Handle)
	}

	for i, op := range b.ops {
		switch op.Kind {
		case OpCreateEntity:
			h, err := repo.CreateEntity(tick, op.Lifecycle)
			if err != nil {
				return dropped, err
			}
			locals[op.Target.Local] = h

		case OpDestroyEntity:
			h, ok := resolve(op.Target)
			if !ok {
				dropped = append(dropped, DroppedOp{Index: i, Op: op})
				continue
			}
			if err := repo.DestroyEntity(h, tick); err != nil {
				dropped = append(dropped, DroppedOp{Index: i, Op: op})
			}

		case OpAddComponent:
			h, ok := resolve(op.Target)
			if !ok {
				dropped = append(dropped, DroppedOp{Index: i, Op: op})
				continue
			}
			if err := repo.AddComponent(op.Ordinal, h, op.Payload, tick); err != nil {
				dropped = append(dropped, DroppedOp{Index: i, Op: op})
			}

		case OpSetComponent:
			h, ok := resolve(op.Target)
			if !ok {
				dropped = append(dropped, DroppedOp{Index: i, Op: op})
				continue
			}
			if err := repo.SetComponent(op.Ordinal, h, op.Payload, tick); err != nil {
				dropped = append(dropped, DroppedOp{Index: i, Op: op})
			}

		case OpRemoveComponent:
			h, ok := resolve(op.Target)
			if !ok {
				dropped = append(dropped, DroppedOp{Index: i, Op: op})
				continue
			}
			if err := repo.RemoveComponent(op.Ordinal, h, tick); err != nil {
				dropped = append(dropped, DroppedOp{Index: i, Op: op})
			}

		case OpPublishEvent:
			if err := repo.PublishEvent(op.Stream, op.Payload); err != nil {
				return dropped, err
			}
		}
	}
	return dropped, nil
}

// PlaybackAll applies a set of worker buffers against repo, serially and
// in the given order (spec §5: "applied serially on the main thread in a
// deterministic order fixed by registration order of contributors").
func PlaybackAll(buffers []*Buffer, repo Repo, tick uint32) ([]DroppedOp, error) {
	var all []DroppedOp
	for _, b := range buffers {
		dropped, err := Playback(b, repo, tick)
		all = append(all, dropped...)
		if err != nil {
			return all, err
		}
	}
	return all, nil
}
