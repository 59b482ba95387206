// Package query implements the immutable query definitions and
// allocation-free enumerators of spec §4.5, including the chunk-skip
// optimization and the versioned delta-query variant.
package query

import (
	"math/bits"

	"corecs/internal/entity"
	"corecs/internal/mask"
)

// LifecycleSet is a small bitset over the three lifecycle states a query
// may filter on (Destroyed entities are never live, so never matched).
type LifecycleSet uint8

const (
	LifecycleConstructing LifecycleSet = 1 << iota
	LifecycleActive
	LifecycleTearDown

	// LifecycleAny matches every non-destroyed lifecycle state, the
	// default when a query specifies no lifecycle filter (spec §4.5).
	LifecycleAny = LifecycleConstructing | LifecycleActive | LifecycleTearDown
)

func lifecycleBit(l entity.Lifecycle) LifecycleSet {
	switch l {
	case entity.Constructing:
		return LifecycleConstructing
	case entity.Active:
		return LifecycleActive
	case entity.TearDown:
		return LifecycleTearDown
	default:
		return 0
	}
}

// Def is an immutable query definition (spec §4.5). Build one with
// Builder and reuse it across frames; it holds no reference to any
// particular repository snapshot.
type Def struct {
	Include LifecycleMask
	Exclude LifecycleMask

	AuthorityInclude    mask.Mask256
	AuthorityExclude    mask.Mask256
	HasAuthorityInclude bool
	HasAuthorityExclude bool

	Lifecycle LifecycleSet
}

// LifecycleMask is just mask.Mask256, aliased for readability at query
// call sites.
type LifecycleMask = mask.Mask256

// ComponentVersions lets the delta enumerator ask, for a given component
// ordinal and entity index, what version the chunk holding that entity
// currently carries in some component table. The repository facade binds
// this to the real plain/reference tables; the query package itself does
// not know about storage layout beyond the entity header table.
type ComponentVersions interface {
	VersionFor(ordinal int, entityIndex int) uint32
}

// Enumerator is a value type: iterating it performs no heap allocation.
// Call Next in a loop; it returns (handle, true) for each match in
// strictly increasing index order, and (_, false) once exhausted.
type Enumerator struct {
	ix      *entity.Index
	def     Def
	current int32
	max     int32

	// delta fields; sinceTick == 0 with hasSince == false means "not a
	// delta query".
	sinceTick uint32
	hasSince  bool
	versions  ComponentVersions
}

// NewEnumerator builds a base (non-delta) enumerator over ix.
func NewEnumerator(ix *entity.Index, def Def) Enumerator {
	return Enumerator{
		ix:  ix,
		def: def,
		max: int32(ix.MaxEntities()),
	}
}

// NewDeltaEnumerator builds a delta-query enumerator (spec §4.5): in
// addition to the base predicate, an entity only yields if its header's
// last_change_tick exceeds sinceTick, or any chunk backing an included
// component type has a version exceeding sinceTick for the chunk
// containing that entity.
func NewDeltaEnumerator(ix *entity.Index, def Def, sinceTick uint32, versions ComponentVersions) Enumerator {
	e := NewEnumerator(ix, def)
	e.sinceTick = sinceTick
	e.hasSince = true
	e.versions = versions
	return e
}

// Next advances the enumerator and returns the next matching handle.
func (e *Enumerator) Next() (entity.Handle, bool) {
	capPerChunk := int32(e.ix.HeaderChunkCapacity())
	for e.current < e.max {
		chunkIdx := int(e.current / capPerChunk)
		chunkStart := int32(chunkIdx) * capPerChunk
		chunkEnd := chunkStart + capPerChunk
		if chunkEnd > e.max {
			chunkEnd = e.max
		}

		if e.current == chunkStart && e.skipChunk(chunkIdx) {
			e.current = chunkEnd
			continue
		}

		idx := e.current
		e.current++

		hdr, err := e.ix.GetHeader(idx)
		if err != nil || !hdr.IsActive {
			continue
		}
		if e.def.Lifecycle != 0 && e.def.Lifecycle&lifecycleBit(hdr.Lifecycle) == 0 {
			continue
		}
		if !mask.Matches(hdr.ComponentMask, e.def.Include, e.def.Exclude) {
			continue
		}
		if e.def.HasAuthorityInclude || e.def.HasAuthorityExclude {
			if !mask.Matches(hdr.AuthorityMask, e.def.AuthorityInclude, e.def.AuthorityExclude) {
				continue
			}
		}
		if e.hasSince && !e.isDirtySince(idx, hdr.LastChangeTick) {
			continue
		}
		return entity.Handle{Index: idx, Generation: hdr.Generation}, true
	}
	return entity.Handle{}, false
}

// skipChunk implements the chunk-skip optimization: if any required
// component bit is absent from the chunk's union mask, no entity in range
// [chunkStart, chunkEnd) can match.
func (e *Enumerator) skipChunk(chunkIdx int) bool {
	if e.def.Include.IsZero() {
		return false
	}
	union := e.ix.UnionMask(chunkIdx)
	return union.And(e.def.Include) != e.def.Include
}

func (e *Enumerator) isDirtySince(idx int32, lastChange uint32) bool {
	if lastChange > e.sinceTick {
		return true
	}
	if e.versions == nil {
		return false
	}
	for lane := 0; lane < mask.Lanes; lane++ {
		set := e.def.Include[lane]
		for set != 0 {
			ordinal := lane*64 + bits.TrailingZeros64(set)
			if e.versions.VersionFor(ordinal, int(idx)) > e.sinceTick {
				return true
			}
			set &= set - 1
		}
	}
	return false
}

// Collect drains the enumerator into a slice. Provided for callers that
// want a materialized result rather than pull-based iteration; the
// iteration contract itself (spec §4.5) is allocation-free and this is
// just a convenience on top.
func Collect(e Enumerator) []entity.Handle {
	var out []entity.Handle
	for {
		h, ok := e.Next()
		if !ok {
			return out
		}
		out = append(out, h)
	}
}
