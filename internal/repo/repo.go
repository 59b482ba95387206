// Package repo implements the Repository Facade of spec §4.6: the single
// type that unifies the entity index, every registered plain and
// reference component table, the event bus, the phase sequence and the
// command-buffer playback entry point behind one public surface. It is
// the thing module hosts construct, tick, and sync replicas from.
package repo

import (
	"sync"

	"corecs/internal/command"
	"corecs/internal/entity"
	"corecs/internal/errs"
	"corecs/internal/eventbus"
	"corecs/internal/mask"
	"corecs/internal/metrics"
	"corecs/internal/phase"
	"corecs/internal/registry"
)

// Repository is the main-thread-owned live world, or a replica/pooled
// snapshot produced by a provider (spec §5: "the live repository is
// main-thread-owned... module/worker threads operate on view
// repositories"). The type is identical either way; ownership discipline
// is the host's responsibility, not something this type enforces.
type Repository struct {
	mu sync.RWMutex

	ix  *entity.Index
	reg *registry.Registry
	bus *eventbus.Bus

	plain map[int]*plainBinding
	ref   map[int]*refBinding

	singletons               map[string]singletonEntry
	singletonCodecs          map[string]singletonCodec
	singletonCodecsByOrdinal map[int]singletonCodec
	tags                     *entity.TagRegistry

	seq      *phase.Sequence
	tick     uint32
	disposed bool

	pendingDestructions []entity.Handle
	liveEntities        int

	metrics *metrics.Collector
}

// Config bounds a Repository's fixed entity capacity, mirroring the
// teacher's WorldConfig.MaxEntities sizing knob.
type Config struct {
	MaxEntities int
}

// New constructs an empty, tick-0 repository sharing reg so that ordinal
// assignment stays consistent across every repository built from it
// (spec §3 invariant: "ordinal assignment order is the same on all
// participating processes").
func New(cfg Config, reg *registry.Registry) (*Repository, error) {
	ix, err := entity.NewIndex(cfg.MaxEntities)
	if err != nil {
		return nil, err
	}
	return &Repository{
		ix:                      ix,
		reg:                     reg,
		bus:                     eventbus.NewBus(reg),
		plain:                   make(map[int]*plainBinding),
		ref:                     make(map[int]*refBinding),
		singletons:              make(map[string]singletonEntry),
		singletonCodecs:         make(map[string]singletonCodec),
		singletonCodecsByOrdinal: make(map[int]singletonCodec),
		tags:                    entity.NewTagRegistry(),
		seq:                     phase.NewSequence(),
	}, nil
}

// Tags exposes the optional tag/group bookkeeping registry (spec §13
// supplement). Tags carry no weight in the core's handle, mask or
// lifecycle invariants.
func (r *Repository) Tags() *entity.TagRegistry { return r.tags }

// SetMetrics attaches a Prometheus collector that CreateEntity,
// DestroyEntity and the phase permission check report to. Optional: a
// Repository with no collector attached behaves exactly as before,
// metrics calls are simply skipped.
func (r *Repository) SetMetrics(c *metrics.Collector) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.metrics = c
}

// Close releases every plain table's virtual memory reservation.
func (r *Repository) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var firstErr error
	for _, b := range r.plain {
		if err := b.close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if err := r.ix.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	r.disposed = true
	return firstErr
}

func (r *Repository) requireNotDisposed() error {
	if r.disposed {
		return errs.New(errs.AlreadyDisposed, "repository has been closed")
	}
	return nil
}

// RestoreTick overwrites the repository's tick directly, bypassing the
// one-at-a-time Tick() increment. Used only by recorder playback, which
// reconstructs a specific recorded tick rather than advancing through
// every intermediate one.
func (r *Repository) RestoreTick(tick uint32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tick = tick
}

// CurrentTick returns the repository's current tick.
func (r *Repository) CurrentTick() uint32 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tick
}

// Tick advances the repository's tick by exactly one and resets the
// phase sequence to Initialization (spec §4.6, §4.8).
func (r *Repository) Tick() (uint32, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.requireNotDisposed(); err != nil {
		return 0, err
	}
	r.tick++
	r.seq.ResetForNewTick()
	return r.tick, nil
}

// SetPhase advances the phase sequence (forward-only within a frame).
func (r *Repository) SetPhase(p phase.Phase) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.seq.Advance(p)
}

// CurrentPhase returns the active phase.
func (r *Repository) CurrentPhase() phase.Phase {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.seq.Current()
}

// checkWrite enforces the active phase's permission for a write touching
// an entity whose authority bit for the relevant component is
// authoritative or not.
func (r *Repository) checkWrite(authoritative bool) error {
	if err := phase.CheckWrite(r.seq.Permission(), authoritative); err != nil {
		if r.metrics != nil {
			r.metrics.RecordPermissionDenial()
		}
		return err
	}
	return nil
}

// Registry exposes the shared component/event type registry.
func (r *Repository) Registry() *registry.Registry { return r.reg }

// EntityIndex exposes the backing entity index, for the query package and
// for recorder/provider code that needs direct access.
func (r *Repository) EntityIndex() *entity.Index { return r.ix }

// EventBus exposes the double-buffered event bus.
func (r *Repository) EventBus() *eventbus.Bus { return r.bus }

// --- Entity operations (spec §4.4, exposed via §4.6) ---

// CreateEntity allocates a new entity at the current tick.
func (r *Repository) CreateEntity(tick uint32, lifecycle entity.Lifecycle) (entity.Handle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, err := r.ix.Create(tick, lifecycle)
	if err != nil {
		return h, err
	}
	r.liveEntities++
	if r.metrics != nil {
		r.metrics.SetEntityCount(r.liveEntities)
	}
	return h, nil
}

// CreateStaged allocates a Constructing entity awaiting module acks.
func (r *Repository) CreateStaged(tick uint32, requiredModules uint64, authority mask.Mask256) (entity.Handle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ix.CreateStaged(tick, requiredModules, authority)
}

// Hydrate force-creates an entity at a specific (index, generation).
func (r *Repository) Hydrate(h entity.Handle, tick uint32) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ix.Hydrate(h, tick)
}

// DestroyEntity clears an entity and advances its generation.
func (r *Repository) DestroyEntity(h entity.Handle, tick uint32) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.ix.Destroy(h, tick); err != nil {
		return err
	}
	r.tags.ClearTag(h.Index)
	r.pendingDestructions = append(r.pendingDestructions, h)
	r.liveEntities--
	if r.metrics != nil {
		r.metrics.SetEntityCount(r.liveEntities)
	}
	return nil
}

// DrainDestructions returns and clears every entity destroyed since the
// last call, feeding the recorder's per-frame destruction section (spec
// §6.1). The entity header table already carries post-destruction state
// byte-for-byte, so this log is a convenience for listeners that want to
// react to destructions without diffing headers, not something playback
// depends on to reconstruct state.
func (r *Repository) DrainDestructions() []entity.Handle {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.pendingDestructions
	r.pendingDestructions = nil
	return out
}

// EncodeCurrentFrameEvents msgpack-encodes every event stream's
// in-progress current buffer, ordinal- and tier-addressed, for the
// recorder to capture the frame about to close before the frame driver
// calls EventBus().SwapAll().
func (r *Repository) EncodeCurrentFrameEvents() ([]eventbus.StreamFrame, error) {
	return r.bus.EncodeCurrentFrame()
}

// DecodeAndInjectEvent decodes a recorded stream's msgpack-encoded batch
// into the event-type ordinal's current buffer, used by recorder
// playback.
func (r *Repository) DecodeAndInjectEvent(ordinal int, data []byte) error {
	return r.bus.DecodeAndInject(ordinal, data)
}

// IsAlive reports whether h refers to the live entity in its slot.
func (r *Repository) IsAlive(h entity.Handle) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.ix.IsAlive(h)
}

// SetLifecycle validates and applies a monotonic lifecycle transition.
func (r *Repository) SetLifecycle(h entity.Handle, to entity.Lifecycle, tick uint32) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ix.SetLifecycle(h, to, tick)
}

// SetAuthority overwrites an entity's authority mask.
func (r *Repository) SetAuthority(h entity.Handle, authority mask.Mask256, tick uint32) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ix.SetAuthority(h, authority, tick)
}

// GetHeader returns a read-only copy of an entity's header.
func (r *Repository) GetHeader(index int32) (entity.Header, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.ix.GetHeader(index)
}

// PlaybackCommands applies b's recorded ops to r in order via
// command.Playback, then reports every dropped op to the attached
// metrics collector (spec §4.8's "sole tolerated resolution" path).
func (r *Repository) PlaybackCommands(b *command.Buffer, tick uint32) ([]command.DroppedOp, error) {
	dropped, err := command.Playback(b, r, tick)
	if err != nil {
		return dropped, err
	}
	if r.metrics != nil {
		for range dropped {
			r.metrics.RecordDroppedCommandOp()
		}
	}
	return dropped, nil
}

// PublishEvent publishes payload onto the named event stream, satisfying
// command.Repo for playback of PublishEvent ops. The stream must already
// be registered via eventbus.Register with a matching element type.
func (r *Repository) PublishEvent(stream string, payload any) error {
	return r.bus.PublishErased(stream, payload)
}

// ClearCurrentEvents empties every event stream's current buffer without
// swapping (spec §4.7 clear_current, §4.8 snapshot isolation).
func (r *Repository) ClearCurrentEvents() {
	r.bus.ClearAllCurrent()
}
