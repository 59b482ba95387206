// Package entity implements the entity handle, header table and lifecycle
// state machine from spec §3/§4.4. Entity headers are stored in the same
// chunked, lazily-committed layout as plain-data components (reusing
// chunk.PlainTable), which is why the recording format (spec §6.1)
// addresses the header table with the reserved type ordinal -1: it is
// just another chunked table under the hood.
package entity

import (
	"corecs/internal/chunk"
	"corecs/internal/errs"
	"corecs/internal/mask"
)

// Handle is the packed (index, generation) pair identifying an entity
// (spec §3). The zero Handle is the null handle.
type Handle struct {
	Index      int32
	Generation uint16
}

// IsNull reports whether h refers to no entity.
func (h Handle) IsNull() bool {
	return h.Index < 0 || h.Generation == 0
}

// Lifecycle is the four-state classification from spec §3/§4.4.
type Lifecycle uint8

const (
	Free Lifecycle = iota
	Constructing
	Active
	TearDown
	Destroyed
)

// Header is one entity's fixed-layout metadata (spec §3). It is stored
// verbatim in chunk.PlainTable[Header], so its layout participates in
// recording/sync byte-for-byte — no pointers, slices or maps allowed in
// it for that reason.
type Header struct {
	Generation     uint16
	IsActive       bool
	Lifecycle      Lifecycle
	_              [4]byte // padding, keeps masks 8-byte aligned
	LastChangeTick uint32
	ComponentMask  mask.Mask256
	AuthorityMask  mask.Mask256
}

// validTransition enforces the monotonic lifecycle sequence from spec §4.4:
// Constructing -> Active -> TearDown -> (destroyed).
func validTransition(from, to Lifecycle) bool {
	switch from {
	case Free:
		return to == Constructing || to == Active
	case Constructing:
		return to == Active
	case Active:
		return to == TearDown
	case TearDown:
		return to == Destroyed
	default:
		return false
	}
}

// Index is the entity header table: per-slot generation, activity,
// signature masks and lifecycle, plus the free-slot recycling pool that
// backs create()/destroy() (spec §4.4).
type Index struct {
	table       *chunk.PlainTable[Header]
	maxEntities int
	nextFree    int32 // high-water mark for never-used slots
	freeList    []int32
	requiredAck map[int32]uint64 // index -> bitmask of module bits required before promotion
	unionMask   []mask.Mask256   // per header-chunk OR of all live entities' component masks
}

// NewIndex reserves header storage for up to maxEntities entities.
func NewIndex(maxEntities int) (*Index, error) {
	tbl, err := chunk.NewPlainTable[Header](maxEntities)
	if err != nil {
		return nil, err
	}
	return &Index{
		table:       tbl,
		maxEntities: maxEntities,
		requiredAck: make(map[int32]uint64),
		unionMask:   make([]mask.Mask256, tbl.ChunkCount()),
	}, nil
}

// Close releases the header table's reservation.
func (ix *Index) Close() error { return ix.table.Close() }

// Table exposes the backing chunk.PlainTable for the repository's
// recorder and chunk-skip query optimizations.
func (ix *Index) Table() *chunk.PlainTable[Header] { return ix.table }

func (ix *Index) allocSlot() (int32, error) {
	if n := len(ix.freeList); n > 0 {
		idx := ix.freeList[n-1]
		ix.freeList = ix.freeList[:n-1]
		return idx, nil
	}
	if int(ix.nextFree) >= ix.maxEntities {
		return 0, errs.New(errs.EntityCapacityExceeded, "entity capacity exhausted")
	}
	idx := ix.nextFree
	ix.nextFree++
	return idx, nil
}

// Create allocates a new entity, reusing a destroyed slot when available,
// and returns its handle. lifecycle is the initial state (Constructing or
// Active per the caller's needs).
func (ix *Index) Create(tick uint32, lifecycle Lifecycle) (Handle, error) {
	idx, err := ix.allocSlot()
	if err != nil {
		return Handle{}, err
	}
	return ix.activate(idx, tick, lifecycle)
}

// CreateStaged allocates a Constructing entity and records the module
// acknowledgement bitmask required before it may be promoted to Active
// (spec §4.4 create_staged).
func (ix *Index) CreateStaged(tick uint32, requiredModules uint64, authority mask.Mask256) (Handle, error) {
	h, err := ix.Create(tick, Constructing)
	if err != nil {
		return Handle{}, err
	}
	hdr, _ := ix.table.GetRW(int(h.Index), tick)
	hdr.AuthorityMask = authority
	ix.requiredAck[h.Index] = requiredModules
	return h, nil
}

func (ix *Index) activate(idx int32, tick uint32, lifecycle Lifecycle) (Handle, error) {
	hdr, err := ix.table.GetRW(int(idx), tick)
	if err != nil {
		return Handle{}, err
	}
	gen := hdr.Generation
	if gen == 0 {
		gen = 1
	}
	*hdr = Header{
		Generation:     gen,
		IsActive:       true,
		Lifecycle:      lifecycle,
		LastChangeTick: tick,
	}
	ix.bumpPopulation(idx, 1)
	ix.recomputeUnion(idx)
	return Handle{Index: idx, Generation: gen}, nil
}

// Hydrate force-creates an entity at a specific (index, generation) pair,
// used by replay and distributed ID allocation (spec §4.4). Fails if the
// slot is currently active with a different generation.
func (ix *Index) Hydrate(h Handle, tick uint32) error {
	if h.IsNull() {
		return errs.New(errs.BadHandle, "cannot hydrate a null handle")
	}
	hdr, err := ix.table.GetRO(int(h.Index))
	if err != nil {
		return err
	}
	if hdr.IsActive && hdr.Generation != h.Generation {
		return errs.New(errs.HydrateConflict, "slot already active with a different generation")
	}
	rw, _ := ix.table.GetRW(int(h.Index), tick)
	wasActive := rw.IsActive
	*rw = Header{
		Generation:     h.Generation,
		IsActive:       true,
		Lifecycle:      Active,
		LastChangeTick: tick,
	}
	if !wasActive {
		ix.bumpPopulation(h.Index, 1)
		if int(h.Index) >= int(ix.nextFree) {
			ix.nextFree = h.Index + 1
		}
	}
	ix.recomputeUnion(h.Index)
	return nil
}

// ReserveIDRange raises the next-free watermark to at least n (spec §4.4),
// used when a peer node holds a reserved ID range.
func (ix *Index) ReserveIDRange(n int32) {
	if n > ix.nextFree {
		ix.nextFree = n
	}
}

// Destroy clears an entity's active flag and masks and advances its
// generation, skipping zero on wraparound (spec §4.4).
func (ix *Index) Destroy(h Handle, tick uint32) error {
	if !ix.IsAlive(h) {
		return errs.New(errs.BadHandle, "destroy on a non-live handle")
	}
	hdr, err := ix.table.GetRW(int(h.Index), tick)
	if err != nil {
		return err
	}
	nextGen := hdr.Generation + 1
	if nextGen == 0 {
		nextGen = 1
	}
	*hdr = Header{
		Generation:     nextGen,
		IsActive:       false,
		Lifecycle:      Destroyed,
		LastChangeTick: tick,
	}
	ix.bumpPopulation(h.Index, -1)
	ix.recomputeUnion(h.Index)
	ix.freeList = append(ix.freeList, h.Index)
	delete(ix.requiredAck, h.Index)
	return nil
}

// SetLifecycle validates and applies a monotonic lifecycle transition
// (spec §4.4/§4.8).
func (ix *Index) SetLifecycle(h Handle, to Lifecycle, tick uint32) error {
	if !ix.IsAlive(h) {
		return errs.New(errs.BadHandle, "lifecycle change on a non-live handle")
	}
	hdr, err := ix.table.GetRW(int(h.Index), tick)
	if err != nil {
		return err
	}
	if !validTransition(hdr.Lifecycle, to) {
		return errs.New(errs.InvalidLifecycleTransition, "invalid lifecycle transition").WithEntity(pack(h))
	}
	hdr.Lifecycle = to
	hdr.LastChangeTick = tick
	return nil
}

// AckModule records that moduleBit has acknowledged a staged entity; once
// every required bit has acked, the entity is promoted to Active.
func (ix *Index) AckModule(h Handle, moduleBit uint64, tick uint32) error {
	required, staged := ix.requiredAck[h.Index]
	if !staged {
		return nil
	}
	required &^= moduleBit
	if required == 0 {
		delete(ix.requiredAck, h.Index)
		return ix.SetLifecycle(h, Active, tick)
	}
	ix.requiredAck[h.Index] = required
	return nil
}

// IsAlive reports whether h refers to the currently active entity in its
// slot (spec §4.4 invariant).
func (ix *Index) IsAlive(h Handle) bool {
	if h.IsNull() {
		return false
	}
	hdr, err := ix.table.GetRO(int(h.Index))
	if err != nil {
		return false
	}
	return hdr.IsActive && hdr.Generation == h.Generation
}

// GetHeader returns a read-only copy of the header at index.
func (ix *Index) GetHeader(index int32) (Header, error) {
	hdr, err := ix.table.GetRO(int(index))
	if err != nil {
		return Header{}, err
	}
	return *hdr, nil
}

// SetAuthority overwrites the authority mask for a live entity.
func (ix *Index) SetAuthority(h Handle, authority mask.Mask256, tick uint32) error {
	if !ix.IsAlive(h) {
		return errs.New(errs.BadHandle, "set authority on a non-live handle")
	}
	hdr, err := ix.table.GetRW(int(h.Index), tick)
	if err != nil {
		return err
	}
	hdr.AuthorityMask = authority
	return nil
}

// SetComponentBit flips bit ordinal of the component mask for a live
// entity and bumps last_change_tick, as required for every structural
// change (spec §4.6).
func (ix *Index) SetComponentBit(h Handle, ordinal int, present bool, tick uint32) error {
	if !ix.IsAlive(h) {
		return errs.New(errs.BadHandle, "structural change on a non-live handle")
	}
	hdr, err := ix.table.GetRW(int(h.Index), tick)
	if err != nil {
		return err
	}
	if present {
		hdr.ComponentMask = hdr.ComponentMask.Set(ordinal)
	} else {
		hdr.ComponentMask = hdr.ComponentMask.Clear(ordinal)
	}
	hdr.LastChangeTick = tick
	ix.recomputeUnion(h.Index)
	return nil
}

// MaxEntities returns the configured entity capacity.
func (ix *Index) MaxEntities() int { return ix.maxEntities }

// SyncFrom copies the header table chunkwise from other, respecting chunk
// versions (spec §4.4/§4.6). The free list and the next-free watermark
// are not synced and are not rebuilt from the post-sync active flags;
// only the live repository ever allocates/destroys entities locally.
func (ix *Index) SyncFrom(other *Index) error {
	if err := ix.table.SyncDirtyFrom(other.table); err != nil {
		return err
	}
	for c := 0; c < ix.table.ChunkCount(); c++ {
		ix.recomputeUnion(int32(c * ix.table.Capacity()))
	}
	return nil
}

// RestrictComponentMasks clears every active header's ComponentMask bit
// outside allowed, called after SyncFrom so a destination never reports
// Has<T> true for a type sync_from's effective mask excluded (spec §4.6:
// excluded types are not just un-updated, they must read back absent).
func (ix *Index) RestrictComponentMasks(allowed mask.Mask256, tick uint32) error {
	for idx := 0; idx < ix.maxEntities; idx++ {
		c := ix.table.ChunkOf(idx)
		if !ix.table.IsCommitted(c) {
			idx = (c+1)*ix.table.Capacity() - 1
			continue
		}
		hdr, err := ix.table.GetRO(idx)
		if err != nil || !hdr.IsActive {
			continue
		}
		restricted := hdr.ComponentMask.And(allowed)
		if restricted.Equal(hdr.ComponentMask) {
			continue
		}
		rw, err := ix.table.GetRW(idx, tick)
		if err != nil {
			return err
		}
		rw.ComponentMask = restricted
	}
	for c := 0; c < ix.table.ChunkCount(); c++ {
		ix.recomputeUnion(int32(c * ix.table.Capacity()))
	}
	return nil
}

// UnionMask returns the bitwise OR of every live entity's component mask
// within header chunk c, used by the query engine's chunk-skip
// optimization (spec §4.5): if a required bit is absent from the union,
// no entity in the chunk can possibly match.
func (ix *Index) UnionMask(c int) mask.Mask256 {
	if c < 0 || c >= len(ix.unionMask) {
		return mask.Zero
	}
	return ix.unionMask[c]
}

// HeaderChunkCount returns the number of chunks backing the header table.
func (ix *Index) HeaderChunkCount() int { return ix.table.ChunkCount() }

// HeaderChunkCapacity returns the number of header slots per chunk.
func (ix *Index) HeaderChunkCapacity() int { return ix.table.Capacity() }

func (ix *Index) recomputeUnion(idx int32) {
	c := ix.table.ChunkOf(int(idx))
	if !ix.table.IsCommitted(c) {
		ix.unionMask[c] = mask.Zero
		return
	}
	var union mask.Mask256
	cap := ix.table.Capacity()
	base := c * cap
	for off := 0; off < cap; off++ {
		if base+off >= ix.maxEntities {
			break
		}
		hdr, err := ix.table.GetRO(base + off)
		if err != nil {
			continue
		}
		if hdr.IsActive {
			union = union.Or(hdr.ComponentMask)
		}
	}
	ix.unionMask[c] = union
}

func (ix *Index) bumpPopulation(idx int32, delta int32) {
	c := ix.table.ChunkOf(int(idx))
	ix.table.SetPopulation(c, ix.table.ChunkPopulation(c)+delta)
}

func pack(h Handle) uint64 {
	return uint64(uint32(h.Index))<<16 | uint64(h.Generation)
}

// Pack exposes the handle packing used for error context and recordings.
func Pack(h Handle) uint64 { return pack(h) }

// Unpack reverses Pack.
func Unpack(v uint64) Handle {
	return Handle{Index: int32(v >> 16), Generation: uint16(v)}
}
