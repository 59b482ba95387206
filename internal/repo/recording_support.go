package repo

import (
	"sort"

	"github.com/vmihailenco/msgpack/v5"

	"corecs/internal/chunk"
	"corecs/internal/errs"
)

// This file exposes the chunk/page/singleton primitives the recorder
// package needs to serialize and restore a repository without importing
// it into repo (which would be a cycle): the recorder depends on repo,
// never the other way around.

// PlainOrdinals returns every registered plain component ordinal in
// ascending order, for the recorder to iterate deterministically.
func (r *Repository) PlainOrdinals() []int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]int, 0, len(r.plain))
	for ord := range r.plain {
		out = append(out, ord)
	}
	sort.Ints(out)
	return out
}

// RefOrdinals returns every registered reference component ordinal in
// ascending order.
func (r *Repository) RefOrdinals() []int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]int, 0, len(r.ref))
	for ord := range r.ref {
		out = append(out, ord)
	}
	sort.Ints(out)
	return out
}

// HeaderChunkCount returns the number of chunks backing the entity
// header table, addressed by the recorder's reserved type ordinal -1
// (spec §6.1).
func (r *Repository) HeaderChunkCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.ix.HeaderChunkCount()
}

func (r *Repository) headerLiveness(c int) []bool {
	tbl := r.ix.Table()
	capacity := tbl.Capacity()
	live := make([]bool, capacity)
	base := c * capacity
	max := r.ix.MaxEntities()
	for off := 0; off < capacity; off++ {
		idx := base + off
		if idx >= max {
			break
		}
		if hdr, err := r.ix.GetHeader(int32(idx)); err == nil && hdr.IsActive {
			live[off] = true
		}
	}
	return live
}

// HeaderChunkSnapshot sanitizes dead slots and copies header chunk c's
// bytes, reporting its version and whether it currently has backing
// pages at all.
func (r *Repository) HeaderChunkSnapshot(c int) (data []byte, version uint32, committed bool, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	tbl := r.ix.Table()
	version = tbl.ChunkVersion(c)
	committed = tbl.IsCommitted(c)
	if !committed {
		return nil, version, false, nil
	}
	if err = tbl.SanitizeChunk(c, r.headerLiveness(c)); err != nil {
		return nil, version, committed, err
	}
	buf := make([]byte, chunk.ChunkBytes)
	if err = tbl.CopyChunkTo(c, buf); err != nil {
		return nil, version, committed, err
	}
	return buf, tbl.ChunkVersion(c), committed, nil
}

// RestoreHeaderChunk overwrites header chunk c's bytes during playback.
func (r *Repository) RestoreHeaderChunk(c int, data []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ix.Table().RestoreChunkFrom(c, data)
}

// HeaderDirtyChunks returns every committed header chunk whose version
// exceeds sinceTick, for a delta frame's ordinal -1 entries.
func (r *Repository) HeaderDirtyChunks(sinceTick uint32) []int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tbl := r.ix.Table()
	var out []int
	for c := 0; c < tbl.ChunkCount(); c++ {
		if tbl.IsCommitted(c) && tbl.ChunkVersion(c) > sinceTick {
			out = append(out, c)
		}
	}
	return out
}

func (r *Repository) lookupPlainBinding(ordinal int) (*plainBinding, error) {
	pb, ok := r.plain[ordinal]
	if !ok {
		return nil, errs.New(errs.TypeNotRegistered, "plain component ordinal not registered")
	}
	return pb, nil
}

func (r *Repository) lookupRefBinding(ordinal int) (*refBinding, error) {
	rb, ok := r.ref[ordinal]
	if !ok {
		return nil, errs.New(errs.TypeNotRegistered, "reference component ordinal not registered")
	}
	return rb, nil
}

// PlainChunkCount returns the number of chunks reserved for ordinal.
func (r *Repository) PlainChunkCount(ordinal int) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	pb, err := r.lookupPlainBinding(ordinal)
	if err != nil {
		return 0, err
	}
	return pb.chunkCount(), nil
}

// PlainDirtyChunks returns every committed chunk of ordinal whose version
// exceeds sinceTick.
func (r *Repository) PlainDirtyChunks(ordinal int, sinceTick uint32) ([]int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	pb, err := r.lookupPlainBinding(ordinal)
	if err != nil {
		return nil, err
	}
	var out []int
	for c := 0; c < pb.chunkCount(); c++ {
		if pb.isCommitted(c) && pb.chunkVersion(c) > sinceTick {
			out = append(out, c)
		}
	}
	return out, nil
}

func (r *Repository) plainChunkLiveness(pb *plainBinding, c int) []bool {
	capacity := pb.chunkCapacity()
	live := make([]bool, capacity)
	base := c * capacity
	max := r.ix.MaxEntities()
	for off := 0; off < capacity; off++ {
		idx := base + off
		if idx >= max {
			break
		}
		if hdr, err := r.ix.GetHeader(int32(idx)); err == nil && hdr.IsActive && hdr.ComponentMask.Test(pb.ordinal) {
			live[off] = true
		}
	}
	return live
}

// PlainChunkSnapshot sanitizes dead slots and copies chunk c of ordinal's
// bytes. Returns (nil, nil) for an uncommitted chunk.
func (r *Repository) PlainChunkSnapshot(ordinal, c int) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	pb, err := r.lookupPlainBinding(ordinal)
	if err != nil {
		return nil, err
	}
	if !pb.isCommitted(c) {
		return nil, nil
	}
	if err := pb.sanitizeChunk(c, r.plainChunkLiveness(pb, c)); err != nil {
		return nil, err
	}
	buf := make([]byte, chunk.ChunkBytes)
	if err := pb.copyChunkTo(c, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// RestorePlainChunk overwrites chunk c of ordinal's bytes during playback.
func (r *Repository) RestorePlainChunk(ordinal, c int, data []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	pb, err := r.lookupPlainBinding(ordinal)
	if err != nil {
		return err
	}
	return pb.restoreChunkFrom(c, data)
}

// TryDecommitChunk releases chunk c of ordinal's physical pages back to
// the OS, succeeding only when the chunk currently holds zero live
// elements (chunk.PlainTable.TryDecommit). A host's maintenance loop can
// call this over PlainDirtyChunks or PlainChunkCount's range to reclaim
// memory from component types that saw a burst of entities come and go.
func (r *Repository) TryDecommitChunk(ordinal, c int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	pb, err := r.lookupPlainBinding(ordinal)
	if err != nil {
		return err
	}
	if err := pb.tryDecommit(c); err != nil {
		return err
	}
	if r.metrics != nil {
		r.metrics.RecordChunkDecommit()
	}
	return nil
}

// RefHasEntries reports whether ordinal currently holds at least one live
// entry, letting the recorder skip empty reference types in any frame.
func (r *Repository) RefHasEntries(ordinal int) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rb, err := r.lookupRefBinding(ordinal)
	if err != nil {
		return false, err
	}
	return rb.count() > 0, nil
}

// RefSnapshot msgpack-encodes every present entry of a reference ordinal.
// Reference types have no chunk/page addressing a recording format can
// diff cheaply, so unlike plain types they are recorded as a single full
// dump whenever they are recorded at all.
func (r *Repository) RefSnapshot(ordinal int) ([]byte, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rb, err := r.lookupRefBinding(ordinal)
	if err != nil {
		return nil, err
	}
	return rb.encodeAll()
}

// RestoreRefSnapshot decodes and installs a recorded reference ordinal's
// full dump during playback.
func (r *Repository) RestoreRefSnapshot(ordinal int, data []byte, tick uint32) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rb, err := r.lookupRefBinding(ordinal)
	if err != nil {
		return err
	}
	return rb.decodeAndRestore(data, tick)
}

// SingletonSnapshot msgpack-encodes every currently-set singleton, keyed
// by its registered event-type ordinal, for a keyframe's singleton
// section (spec §6.1: "per modified singleton type_ordinal: i32,
// byte_count: i32, bytes").
func (r *Repository) SingletonSnapshot() (map[int][]byte, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[int][]byte, len(r.singletons))
	for _, entry := range r.singletons {
		data, err := msgpack.Marshal(entry.value)
		if err != nil {
			return nil, err
		}
		out[entry.ordinal] = data
	}
	return out, nil
}

// RestoreSingleton decodes and installs a recorded singleton using the
// codec registered by this process's first local SetSingleton[T] call
// for that type. An ordinal this process never registered cannot be
// decoded and returns errs.TypeNotRegistered — the recorder surfaces this
// rather than guessing at a layout.
func (r *Repository) RestoreSingleton(ordinal int, data []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	codec, ok := r.singletonCodecsByOrdinal[ordinal]
	if !ok {
		return errs.New(errs.TypeNotRegistered, "singleton ordinal has no registered codec in this process")
	}
	v, err := codec.decode(data)
	if err != nil {
		return err
	}
	r.singletons[codec.key] = singletonEntry{value: v, ordinal: ordinal}
	return nil
}
