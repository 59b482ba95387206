package chunk

import (
	"unsafe"

	"corecs/internal/errs"
)

// PlainTable is the chunked, lazily-committed store for one plain-data
// component type T (spec §4.2). T must be a fixed-layout, comparable-by-
// bytes type — no pointers, no slices/maps/interfaces inside it, since
// chunk bytes are copied, sanitized and recorded verbatim.
type PlainTable[T any] struct {
	region     *region
	capacity   int // elements per chunk = ChunkBytes / elemSize
	chunkCount int
	maxEntity  int
	elemSize   int

	version    []uint32
	population []int32
}

// NewPlainTable reserves address space for up to maxEntities elements of
// T, split into ChunkBytes-sized chunks, without committing any physical
// memory (spec §4.2 "reserve()").
func NewPlainTable[T any](maxEntities int) (*PlainTable[T], error) {
	var zero T
	elemSize := int(unsafe.Sizeof(zero))
	if elemSize == 0 {
		elemSize = 1
	}
	capacity := ChunkBytes / elemSize
	if capacity == 0 {
		return nil, errs.New(errs.EntityCapacityExceeded, "component type too large for a single chunk")
	}
	chunkCount := (maxEntities + capacity - 1) / capacity
	if chunkCount == 0 {
		chunkCount = 1
	}
	reg, err := reserve(chunkCount)
	if err != nil {
		return nil, err
	}
	return &PlainTable[T]{
		region:     reg,
		capacity:   capacity,
		chunkCount: chunkCount,
		maxEntity:  maxEntities,
		elemSize:   elemSize,
		version:    make([]uint32, chunkCount),
		population: make([]int32, chunkCount),
	}, nil
}

// ElemSize returns sizeof(T) in bytes.
func (t *PlainTable[T]) ElemSize() int { return t.elemSize }

// Capacity returns the number of elements per chunk (floor(65536/elemSize)).
func (t *PlainTable[T]) Capacity() int { return t.capacity }

// ChunkCount returns the total number of chunks reserved.
func (t *PlainTable[T]) ChunkCount() int { return t.chunkCount }

func (t *PlainTable[T]) locate(index int) (chunkIdx, offset int, err error) {
	if index < 0 || index >= t.maxEntity {
		return 0, 0, errs.New(errs.IndexOutOfRange, "entity index outside configured capacity")
	}
	return index / t.capacity, index % t.capacity, nil
}

// elements views a chunk's bytes as a []T slice of length t.capacity.
func (t *PlainTable[T]) elements(c int) []T {
	buf := t.region.bytesOf(c)
	return unsafe.Slice((*T)(unsafe.Pointer(&buf[0])), t.capacity)
}

// ChunkVersion returns the version counter of chunk c (0 means "never
// written").
func (t *PlainTable[T]) ChunkVersion(c int) uint32 { return t.version[c] }

// ChunkPopulation returns the live element count recorded for chunk c.
func (t *PlainTable[T]) ChunkPopulation(c int) int32 { return t.population[c] }

// IsCommitted reports whether chunk c currently has backing pages.
func (t *PlainTable[T]) IsCommitted(c int) bool { return t.region.isCommitted(c) }

// ChunkOf returns the chunk index containing entity index.
func (t *PlainTable[T]) ChunkOf(index int) int { return index / t.capacity }

// GetRW commits the containing chunk if needed, bumps its version to
// currentTick if it differs (check-before-write, spec §4.2), and returns
// a mutable pointer into chunk storage.
func (t *PlainTable[T]) GetRW(index int, currentTick uint32) (*T, error) {
	c, off, err := t.locate(index)
	if err != nil {
		return nil, err
	}
	if err := t.region.ensureCommitted(c); err != nil {
		return nil, err
	}
	if t.version[c] != currentTick {
		t.version[c] = currentTick
	}
	el := t.elements(c)
	return &el[off], nil
}

// GetRO commits the containing chunk if needed (reading physically
// requires backed pages) and returns an immutable pointer. Because a
// freshly committed chunk is zero-filled, reading a never-written slot
// always yields the zero value of T, satisfying spec §4.2's read
// contract without bumping the chunk version.
func (t *PlainTable[T]) GetRO(index int) (*T, error) {
	c, off, err := t.locate(index)
	if err != nil {
		return nil, err
	}
	if err := t.region.ensureCommitted(c); err != nil {
		return nil, err
	}
	el := t.elements(c)
	return &el[off], nil
}

// SetPopulation updates the live element count recorded for chunk c,
// called by higher layers (the plain component store) whenever a slot's
// liveness changes — the table itself has no notion of "live" beyond
// what callers tell it (spec §4.2's population invariant is enforced one
// layer up, where the entity header's component mask is authoritative).
func (t *PlainTable[T]) SetPopulation(c int, population int32) { t.population[c] = population }

// CopyChunkTo copies chunk c's full ChunkBytes payload into buf. An
// uncommitted chunk copies as all-zero bytes without being committed.
func (t *PlainTable[T]) CopyChunkTo(c int, buf []byte) error {
	if len(buf) != ChunkBytes {
		return errs.New(errs.SchemaMismatch, "chunk copy buffer must be exactly ChunkBytes")
	}
	if !t.region.isCommitted(c) {
		for i := range buf {
			buf[i] = 0
		}
		return nil
	}
	copy(buf, t.region.bytesOf(c))
	return nil
}

// RestoreChunkFrom commits chunk c (if needed) and overwrites its bytes
// with buf, bit-exactly.
func (t *PlainTable[T]) RestoreChunkFrom(c int, buf []byte) error {
	if len(buf) != ChunkBytes {
		return errs.New(errs.SchemaMismatch, "chunk restore buffer must be exactly ChunkBytes")
	}
	if err := t.region.ensureCommitted(c); err != nil {
		return err
	}
	copy(t.region.bytesOf(c), buf)
	return nil
}

// SanitizeChunk zeroes the bytes of every element in chunk c whose
// liveness bit is clear in live (indexed by in-chunk offset). Required
// before snapshot/record so that copy_chunk_to is deterministic
// regardless of prior writes to dead slots (spec §4.2, §6.1).
func (t *PlainTable[T]) SanitizeChunk(c int, live []bool) error {
	if !t.region.isCommitted(c) {
		return nil
	}
	buf := t.region.bytesOf(c)
	for off := 0; off < t.capacity && off < len(live); off++ {
		if live[off] {
			continue
		}
		start := off * t.elemSize
		for i := 0; i < t.elemSize; i++ {
			buf[start+i] = 0
		}
	}
	return nil
}

// TryDecommit releases chunk c's physical pages. Succeeds only when the
// caller-tracked population is zero (spec §4.2).
func (t *PlainTable[T]) TryDecommit(c int) error {
	if t.population[c] != 0 {
		return errs.New(errs.DecommitRefused, "chunk has live elements")
	}
	if err := t.region.decommit(c); err != nil {
		return err
	}
	t.version[c] = 0
	return nil
}

// SyncDirtyFrom applies spec §4.2's sync_from algorithm: for each chunk
// whose version differs from self's, copy the other's bytes (if
// committed) or decommit self (if the other is uncommitted). Chunks with
// version 0 on the source ("never written") are skipped entirely.
func (t *PlainTable[T]) SyncDirtyFrom(other *PlainTable[T]) error {
	if other.chunkCount != t.chunkCount || other.elemSize != t.elemSize {
		return errs.New(errs.SchemaMismatch, "plain table layout mismatch during sync_from")
	}
	for c := 0; c < t.chunkCount; c++ {
		if other.version[c] == 0 || other.version[c] == t.version[c] {
			continue
		}
		if other.region.isCommitted(c) {
			if err := t.RestoreChunkFrom(c, other.region.bytesOf(c)); err != nil {
				return err
			}
			t.population[c] = other.population[c]
			t.version[c] = other.version[c]
		} else if t.region.isCommitted(c) {
			if err := t.region.decommit(c); err != nil {
				return err
			}
			t.population[c] = 0
			t.version[c] = other.version[c]
		}
	}
	return nil
}

// Close releases the table's entire virtual memory reservation.
func (t *PlainTable[T]) Close() error {
	return t.region.close()
}
